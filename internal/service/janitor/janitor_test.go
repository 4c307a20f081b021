package janitor

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/portalauth/internal/logger"
)

type purgerFunc func(ctx context.Context) (int64, error)

func (f purgerFunc) PurgeExpired(ctx context.Context) (int64, error) { return f(ctx) }

func TestJanitor(t *testing.T) {
	t.Run("purge on every tick until stopped", func(t *testing.T) {
		var calls atomic.Int32
		p := purgerFunc(func(context.Context) (int64, error) {
			calls.Add(1)
			return 1, nil
		})

		ctx, cancel := context.WithCancel(t.Context())
		stopped := New(p, 10*time.Millisecond, logger.NewNoOpLogger()).Run(ctx)

		require.Eventually(t, func() bool { return calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
		cancel()

		select {
		case <-stopped:
		case <-time.After(time.Second):
			t.Fatal("janitor has to stop on context cancellation")
		}
	})

	t.Run("errors are logged and do not stop janitor", func(t *testing.T) {
		var calls atomic.Int32
		p := purgerFunc(func(context.Context) (int64, error) {
			calls.Add(1)
			return 0, errors.New("connection reset")
		})
		var buf strings.Builder
		l, err := logger.NewWriterLogger(&buf, logger.LevelError)
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(t.Context())
		stopped := New(p, 10*time.Millisecond, l).Run(ctx)

		require.Eventually(t, func() bool { return calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
		cancel()
		<-stopped

		require.Contains(t, buf.String(), "Failed to purge expired tokens")
	})

	t.Run("default interval", func(t *testing.T) {
		j := New(purgerFunc(nil), 0, logger.NewNoOpLogger())

		require.Equal(t, defaultInterval, j.interval)
	})
}
