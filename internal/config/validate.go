package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/swiftos/birdy/internal/messages"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every field. Failures wrap ErrConfigValidation.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			problems := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				problems = append(problems, fmt.Sprintf(messages.ConfigFieldInvalidFmt, fe.Namespace(), fe.Tag(), fe.Param()))
			}
			return fmt.Errorf("%w: %s", ErrConfigValidation, strings.Join(problems, "; "))
		}
		return fmt.Errorf("%w: %w", ErrConfigValidation, err)
	}
	if c.Registry.Timeout.Duration <= 0 {
		return fmt.Errorf("%w: "+messages.ConfigDurationPositiveFmt, ErrConfigValidation, "registry.timeout")
	}
	if c.Manifest.LockTimeout.Duration <= 0 {
		return fmt.Errorf("%w: "+messages.ConfigDurationPositiveFmt, ErrConfigValidation, "manifest.lock_timeout")
	}
	return nil
}
