package analytics

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// Validator checks records at the repository boundary so the engine never
// sees structurally broken rows.
type Validator struct {
	validate *validator.Validate
}

// NewValidator builds a Validator that understands decimal amounts.
func NewValidator() *Validator {
	v := validator.New()
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	return &Validator{validate: v}
}

// Transaction validates t, reporting every failing field.
func (v *Validator) Transaction(t Transaction) error {
	if err := v.validate.Struct(t); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			parts := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				parts = append(parts, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w %s: %s", ErrInvalidTransaction, t.ID, strings.Join(parts, ", "))
		}
		return err
	}
	return nil
}
