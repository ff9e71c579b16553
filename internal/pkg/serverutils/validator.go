package serverutils

import (
	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateRequest runs the struct's `validate` tags. The error is a validator.ValidationErrors.
func ValidateRequest(req interface{}) error {
	return validate.Struct(req)
}
