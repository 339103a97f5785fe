package accounting

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// amountScale is the number of decimal places stored for posting amounts.
const amountScale = 2

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// ValidateDetails checks a posting request without touching storage.
func ValidateDetails(v *validator.Validate, details PostingDetails, actor string) error {
	if strings.TrimSpace(actor) == "" {
		return shared.Validation("actor", "required")
	}
	if details.Date.IsZero() {
		return shared.Validation("date", "required")
	}
	if strings.TrimSpace(details.Description) == "" {
		return shared.Validation("description", "required")
	}
	if err := v.Struct(details); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return shared.Validation(verrs[0].Field(), describeTag(verrs[0]))
		}
		return shared.Validation("details", err.Error())
	}
	if !details.Amount.IsPositive() {
		return shared.Validation("amount", "must be greater than zero")
	}
	if details.Amount.Exponent() < -amountScale && !details.Amount.Equal(details.Amount.Round(amountScale)) {
		return shared.Validation("amount", "at most two decimal places")
	}
	return nil
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "required"
	case "nefield":
		return "debit and credit accounts must differ"
	case "gt":
		return "must be greater than " + fe.Param()
	case "max":
		return "must be at most " + fe.Param() + " characters"
	default:
		return fe.Tag()
	}
}
