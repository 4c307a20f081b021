package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/pflag"
)

// HS256 key should be at least as long as the hash output
const defaultKeyBytesLen = 32

func main() {
	length := pflag.IntP("bytes", "b", defaultKeyBytesLen, "Secret key length in bytes")
	pflag.Parse()

	key, err := generate(*length)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error while generating secret key: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(key)
}

// generate returns hex encoded random key suitable for SECRET_KEY
func generate(length int) (string, error) {
	if length < defaultKeyBytesLen {
		return "", fmt.Errorf("key must be at least %d bytes", defaultKeyBytesLen)
	}

	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	return hex.EncodeToString(b), nil
}
