package offramp

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/paylink/offramp/internal/iban"
)

// Reason classifies a field error.
type Reason string

const (
	ReasonRequired Reason = "required"
	ReasonInvalid  Reason = "invalid"
)

// FieldError is a recoverable, field-level validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Reason  Reason `json:"type"`
	Message string `json:"message"`
}

func (e FieldError) Error() string { return e.Field + ": " + e.Message }

// Reporter receives every field error found while validating a form.
type Reporter interface {
	Report(FieldError)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(FieldError)

// Report calls f.
func (f ReporterFunc) Report(e FieldError) { f(e) }

// ErrorList collects field errors in report order.
type ErrorList []FieldError

// Report appends e.
func (l *ErrorList) Report(e FieldError) { *l = append(*l, e) }

// Has reports whether a field error with the given field and reason was collected.
func (l ErrorList) Has(field string, reason Reason) bool {
	for _, e := range l {
		if e.Field == field && e.Reason == reason {
			return true
		}
	}
	return false
}

// AccountForm is the user-supplied payout account form.
type AccountForm struct {
	Type          AccountType `json:"type"`
	AccountNumber string      `json:"accountNumber"`
	BIC           string      `json:"BIC"`
	RoutingNumber string      `json:"routingNumber"`
	Street        string      `json:"street"`
	City          string      `json:"city"`
	State         string      `json:"state"`
	PostalCode    string      `json:"postalCode"`
	Country       string      `json:"country"`
}

// Address returns the form's postal address in provider shape, or nil for IBAN forms.
func (f AccountForm) Address() *PhysicalAddress {
	if f.Type != AccountTypeUS {
		return nil
	}
	return &PhysicalAddress{
		StreetLine1: f.Street,
		City:        f.City,
		State:       f.State,
		PostalCode:  f.PostalCode,
		Country:     f.Country,
	}
}

const msgRoutingChecksum = "Routing number fails the ABA checksum"

var bicPattern = regexp.MustCompile(`^[A-Z]{6}[A-Z0-9]{2}([A-Z0-9]{3})?$`)

// Validator checks account forms, consulting the gateway for BIC and IBAN acceptance.
type Validator struct {
	bank   BankValidator
	logger *slog.Logger
}

// NewValidator builds a validator.
func NewValidator(bank BankValidator, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{bank: bank, logger: logger}
}

// ValidateAccountForm runs every applicable check, reporting each violation to r, and returns
// whether the form is valid. Checks never short-circuit so all errors surface together.
func (v *Validator) ValidateAccountForm(ctx context.Context, form AccountForm, r Reporter) bool {
	valid := true
	fail := func(field string, reason Reason, msg string) {
		valid = false
		v.logger.Debug("account form rejected", slog.String("field", field), slog.String("reason", string(reason)))
		r.Report(FieldError{Field: field, Reason: reason, Message: msg})
	}

	accountNumber := strings.TrimSpace(form.AccountNumber)
	if accountNumber == "" {
		fail("accountNumber", ReasonRequired, "Account number is required")
	}

	switch form.Type {
	case AccountTypeIBAN:
		if number := iban.Normalize(accountNumber); number != "" && !v.remote(ctx, "validate_bank_account", number, v.bank.ValidateBankAccount) {
			fail("accountNumber", ReasonInvalid, "IBAN not accepted")
		}

		bic := strings.ToUpper(strings.TrimSpace(form.BIC))
		switch {
		case bic == "":
			fail("BIC", ReasonRequired, "BIC is required")
		case !bicPattern.MatchString(bic):
			fail("BIC", ReasonInvalid, "BIC is malformed")
		case !v.remote(ctx, "validate_bic", bic, v.bank.ValidateBIC):
			fail("BIC", ReasonInvalid, "BIC not accepted")
		}

	case AccountTypeUS:
		routing := strings.TrimSpace(form.RoutingNumber)
		if routing == "" {
			fail("routingNumber", ReasonRequired, "Routing number is required")
		} else if !validRoutingNumber(routing) {
			fail("routingNumber", ReasonInvalid, msgRoutingChecksum)
		}
		required := []struct{ field, value, label string }{
			{"street", form.Street, "Street"},
			{"city", form.City, "City"},
			{"country", form.Country, "Country"},
			{"postalCode", form.PostalCode, "Postal code"},
			{"state", form.State, "State"},
		}
		for _, f := range required {
			if strings.TrimSpace(f.value) == "" {
				fail(f.field, ReasonRequired, f.label+" is required")
			}
		}

	default:
		fail("type", ReasonInvalid, "Account type must be iban or us")
	}

	return valid
}

// remote treats transport failures as rejection, matching the gateway's non-200 contract.
func (v *Validator) remote(ctx context.Context, call, value string, fn func(context.Context, string) (bool, error)) bool {
	ok, err := fn(ctx, value)
	if err != nil {
		v.logger.Warn("remote validation failed", slog.String("call", call), slog.Any("error", err))
		return false
	}
	return ok
}

// validRoutingNumber applies the ABA 3-7-1 checksum.
func validRoutingNumber(s string) bool {
	if len(s) != 9 {
		return false
	}
	weights := [3]int{3, 7, 1}
	sum := 0
	for i, r := range s {
		if r < '0' || r > '9' {
			return false
		}
		sum += int(r-'0') * weights[i%3]
	}
	return sum%10 == 0
}
