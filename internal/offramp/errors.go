package offramp

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrProvisioning marks a failed creation step. The workflow stops at the failed step.
	ErrProvisioning = errors.New("provisioning failed")

	// ErrUnderReview marks a track the provider parked for manual review.
	ErrUnderReview = errors.New("under review")

	// ErrApprovalTimeout is returned when a bounded poller runs out of attempts.
	ErrApprovalTimeout = errors.New("approval still pending")

	// ErrUnsupportedChain is returned when a chain/token pair has no provider mapping.
	ErrUnsupportedChain = errors.New("unsupported chain or token")

	// ErrValidation wraps an account form that failed validation.
	ErrValidation = errors.New("account form invalid")
)

// Step names a provisioning call.
type Step string

const (
	StepCreateUser               Step = "create_user"
	StepCreateAccount            Step = "create_account"
	StepCreateExternalAccount    Step = "create_external_account"
	StepCreateLiquidationAddress Step = "create_liquidation_address"
)

// ProvisioningError reports which creation step failed. The gateway message is kept opaque.
type ProvisioningError struct {
	Step       Step
	StatusCode int
	Err        error
}

func (e *ProvisioningError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (status %d)", ErrProvisioning, e.Step, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s: %v", ErrProvisioning, e.Step, e.Err)
}

func (e *ProvisioningError) Is(target error) bool { return target == ErrProvisioning }

func (e *ProvisioningError) Unwrap() error { return e.Err }

// UnderReviewError is returned when a track lands in under_review.
type UnderReviewError struct {
	Track Track
}

func (e *UnderReviewError) Error() string {
	return fmt.Sprintf("%s is under review", strings.ToUpper(string(e.Track)))
}

func (e *UnderReviewError) Unwrap() error { return ErrUnderReview }

// FormError carries every field error of a rejected account form.
type FormError struct {
	Fields ErrorList
}

func (e *FormError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+" "+string(f.Reason))
	}
	return fmt.Sprintf("%s: %s", ErrValidation, strings.Join(parts, ", "))
}

func (e *FormError) Unwrap() error { return ErrValidation }

func newProvisioningError(step Step, err error) error {
	var sc interface{ HTTPStatus() int }
	pe := &ProvisioningError{Step: step, Err: err}
	if errors.As(err, &sc) {
		pe.StatusCode = sc.HTTPStatus()
	}
	return pe
}
