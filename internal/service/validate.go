package service

import (
	"errors"
	"fmt"
	"math"
	"reflect"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"caixa/backend/internal/domain"
	"caixa/backend/internal/store"
)

var validate = validator.New()

func init() {
	// Lets numeric tags such as gte=0 run against decimal fields. Values
	// outside the storable range map to +Inf so the lte bound rejects them
	// before Float64 has to expand a huge exponent.
	validate.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if v, ok := field.Interface().(decimal.Decimal); ok {
			if v.Sign() < 0 {
				return float64(-1)
			}
			if !domain.AmountInRange(v) {
				return math.Inf(1)
			}
			f, _ := v.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
}

var fieldCodes = map[string]string{
	"Product":        "produto_invalido",
	"Description":    "descricao_invalida",
	"Amount":         "valor_invalido",
	"Tendered":       "nota_invalida",
	"PaymentMethod":  "pagamento_invalido",
	"IdempotencyKey": "chave_invalida",
}

// ValidationError names the first offending field. It matches
// store.ErrInvalidInput under errors.Is.
type ValidationError struct {
	Field string
	Code  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s", e.Field)
}

func (e *ValidationError) Unwrap() error {
	return store.ErrInvalidInput
}

func Invalid(field string) *ValidationError {
	code, ok := fieldCodes[field]
	if !ok {
		code = "entrada_invalida"
	}
	return &ValidationError{Field: field, Code: code}
}

func validateStruct(req interface{}) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		return Invalid(fieldErrs[0].Field())
	}
	return fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
}
