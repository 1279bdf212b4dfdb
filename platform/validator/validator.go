// Package validator wraps go-playground struct validation behind a
// small injectable type so services can verify request payloads against
// their field tags.
package validator

import "github.com/go-playground/validator/v10"

// Validator checks structs against their `validate` tags.
type Validator struct {
	v *validator.Validate
}

func New() *Validator {
	return &Validator{v: validator.New()}
}

// Struct validates every tagged field and returns the combined error.
func (val *Validator) Struct(s interface{}) error {
	return val.v.Struct(s)
}
