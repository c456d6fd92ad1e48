// Package journal keeps a non-authoritative audit trail of onboarding steps. The provider
// remains the source of truth; journal writes never fail a workflow.
package journal

import "time"

// Outcome of a recorded step.
const (
	OutcomeOK     = "ok"
	OutcomeFailed = "failed"
)

// Entry is one recorded workflow step. Account identifiers are stored as keyed fingerprints.
type Entry struct {
	ID          string    `json:"id"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	CustomerID  string    `json:"customer_id"`
	Step        string    `json:"step"`
	Outcome     string    `json:"outcome"`
	Detail      string    `json:"detail,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
