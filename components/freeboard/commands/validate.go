package commands

import (
	"errors"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidInput wraps input validation failures.
var ErrInvalidInput = errors.New("commands: invalid input")

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
	})
	return validate
}

// validateInput checks struct tags and reports the first failing field.
func validateInput(input any) error {
	err := getValidator().Struct(input)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		e := verrs[0]
		return fmt.Errorf("%w: field %s failed on the %s tag", ErrInvalidInput, e.Field(), e.Tag())
	}
	return fmt.Errorf("%w: %v", ErrInvalidInput, err)
}
