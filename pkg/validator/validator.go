// Package validator wraps go-playground/validator with project-specific rules.
package validator

import (
	"fmt"
	"html"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

type Validator struct {
	validate *validator.Validate
}

func New() *Validator {
	v := &Validator{
		validate: validator.New(),
	}
	v.registerCustomValidations()
	return v
}

func (v *Validator) Validate(i interface{}) error {
	if err := v.validate.Struct(i); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			var errMessages []string
			for _, e := range validationErrors {
				errMessages = append(errMessages, fmt.Sprintf(
					"Field '%s' failed validation '%s'",
					e.Field(),
					e.Tag(),
				))
			}
			return fmt.Errorf("validation failed: %v", errMessages)
		}
		return err
	}
	return nil
}

// ValidateStructured returns a map of field -> error message for frontend usage
func (v *Validator) ValidateStructured(i interface{}) map[string]string {
	errs := make(map[string]string)
	if err := v.validate.Struct(i); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			for _, e := range validationErrors {
				msg := fmt.Sprintf("failed validation on '%s'", e.Tag())
				switch e.Tag() {
				case "required":
					msg = "This field is required"
				case "gt":
					msg = fmt.Sprintf("Must be greater than %s", e.Param())
				case "min":
					msg = fmt.Sprintf("Must be at least %s", e.Param())
				case "max":
					msg = fmt.Sprintf("Must be at most %s", e.Param())
				case "chain_address":
					msg = "Invalid address for the selected chain"
				case "oneof":
					msg = fmt.Sprintf("Must be one of: %s", e.Param())
				}
				errs[e.Field()] = msg
			}
		} else {
			errs["_global"] = err.Error()
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

var (
	evmAddressRe    = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	base58AddressRe = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{25,60}$`)
	stellarRe       = regexp.MustCompile(`^G[A-Z2-7]{55}$`)
	starknetRe      = regexp.MustCompile(`^0x[0-9a-fA-F]{1,64}$`)
)

func (v *Validator) registerCustomValidations() {
	// Register decimal.Decimal to be validated as float64 for gt/lt checks
	v.validate.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if val, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := val.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})

	// chain_address checks the address shape against the Chain field of the
	// parent struct when present, otherwise accepts any known shape.
	_ = v.validate.RegisterValidation("chain_address", func(fl validator.FieldLevel) bool {
		addr := strings.TrimSpace(fl.Field().String())
		if addr == "" {
			return false
		}

		chain := ""
		parent := fl.Parent()
		if parent.IsValid() && parent.Kind() == reflect.Struct {
			cf := parent.FieldByName("Chain")
			if cf.IsValid() && cf.Kind() == reflect.String {
				chain = strings.ToLower(strings.TrimSpace(cf.String()))
			}
		}

		switch chain {
		case "ethereum":
			return evmAddressRe.MatchString(addr)
		case "starknet":
			return starknetRe.MatchString(addr)
		case "stellar":
			return stellarRe.MatchString(addr)
		case "bitcoin", "solana", "tron", "polkadot":
			return base58AddressRe.MatchString(addr)
		default:
			return evmAddressRe.MatchString(addr) ||
				base58AddressRe.MatchString(addr) ||
				stellarRe.MatchString(addr)
		}
	})
}

// Sanitize cleans string input to prevent XSS attacks
func Sanitize(input string) string {
	return html.EscapeString(strings.TrimSpace(input))
}
