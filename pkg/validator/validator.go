package validator

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Validator checks individual fields before any transaction begins.
// Request payload validation stays with gin's binding tags.
type Validator interface {
	ValidateEmail(email string) error
}

type playgroundValidator struct {
	v *validator.Validate
}

func New() Validator {
	return &playgroundValidator{v: validator.New()}
}

func (p *playgroundValidator) ValidateEmail(email string) error {
	if err := p.v.Var(email, "required,email"); err != nil {
		return fmt.Errorf("invalid email address: %w", err)
	}
	return nil
}
