package validator

import (
	"errors"
	"fmt"

	"github.com/forPelevin/gomoji"
	"github.com/go-playground/validator/v10"
)

// Validator validates event payloads and outgoing requests.
type Validator struct {
	cli *validator.Validate
}

// ValidationError represents an error encountered during validation of a struct field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) String() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (v *Validator) formatError(err error) []ValidationError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []ValidationError{{Message: err.Error()}}
	}

	out := make([]ValidationError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, ValidationError{
			Field:   fe.Namespace(),
			Message: fe.Error(),
		})
	}
	return out
}

// ValidateStruct validates s and returns one entry per failing field.
func (v *Validator) ValidateStruct(s any) []ValidationError {
	if err := v.cli.Struct(s); err != nil {
		return v.formatError(err)
	}
	return nil
}

// Validate checks value against the given tags.
func (v *Validator) Validate(value any, tag string) []ValidationError {
	if err := v.cli.Var(value, tag); err != nil {
		return v.formatError(err)
	}
	return nil
}

// IsEmoji reports whether s is exactly one emoji and nothing else.
func IsEmoji(s string) bool {
	found := gomoji.CollectAll(s)
	return len(found) == 1 && found[0].Character == s
}

func validateEmoji(fl validator.FieldLevel) bool {
	return IsEmoji(fl.Field().String())
}

// New returns a Validator with the "emoji" tag registered.
func New() *Validator {
	cli := validator.New(validator.WithRequiredStructEnabled())
	// RegisterValidation only fails on an empty tag or a nil func.
	_ = cli.RegisterValidation("emoji", validateEmoji)
	return &Validator{
		cli: cli,
	}
}
