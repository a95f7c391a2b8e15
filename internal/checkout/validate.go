package checkout

import (
	"fmt"
	"strings"
)

// ValidationError is bad caller input. It is never retried and maps to a 400.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// zeroDecimalCurrencies have no minor unit; their prices must be whole
// numbers (ISO 4217 exponent 0).
var zeroDecimalCurrencies = map[string]bool{
	"JPY": true, "KRW": true, "VND": true, "CLP": true,
	"ISK": true, "XOF": true, "XAF": true, "XPF": true,
}

// validateProduct checks product input before any network call.
func validateProduct(p Product) error {
	if strings.TrimSpace(p.Name) == "" {
		return &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if err := validateCurrency(p.Currency); err != nil {
		return err
	}
	return validatePrice(p.Price, p.Currency)
}

func validateCurrency(code string) error {
	if len(code) != 3 {
		return &ValidationError{Field: "currency", Reason: "must be a three-letter ISO 4217 code"}
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return &ValidationError{Field: "currency", Reason: "must be a three-letter ISO 4217 code"}
		}
	}
	return nil
}

// validatePrice accepts a positive decimal string with currency-appropriate
// precision. The value is validated, never parsed into a float: the string
// travels to the processor untouched.
func validatePrice(price, currency string) error {
	whole, frac, hasFrac := strings.Cut(price, ".")
	if whole == "" || !isDigits(whole) {
		return &ValidationError{Field: "price", Reason: "must be a positive decimal"}
	}
	if hasFrac && (frac == "" || !isDigits(frac)) {
		return &ValidationError{Field: "price", Reason: "must be a positive decimal"}
	}

	if zeroDecimalCurrencies[currency] {
		if hasFrac {
			return &ValidationError{Field: "price", Reason: fmt.Sprintf("%s does not allow decimal places", currency)}
		}
	} else if len(frac) > 2 {
		return &ValidationError{Field: "price", Reason: "at most two decimal places"}
	}

	if strings.Trim(price, "0.") == "" {
		return &ValidationError{Field: "price", Reason: "must be greater than zero"}
	}
	return nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
