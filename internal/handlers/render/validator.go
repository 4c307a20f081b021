package render

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/nkiryanov/portalauth/internal/models"
)

func configureValidator(validate *validator.Validate) {
	_ = validate.RegisterValidation("role", validateRole)
	validate.RegisterTagNameFunc(useJSONTagNames)
}

// Return 'json' tag name instead of struct field name
// Look at documentation of 'RegisterTagNameFunc' for more details
func useJSONTagNames(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	// skip if tag key says it should be ignored
	if name == "-" {
		return ""
	}
	return name
}

// Empty value passes, combine with 'required' if needed
func validateRole(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}
	_, err := models.ParseRole(value)
	return err == nil
}
