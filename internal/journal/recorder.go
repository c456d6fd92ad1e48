package journal

import (
	"context"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// Recorder fingerprints account identifiers and appends entries, logging write failures.
type Recorder struct {
	repo   Repository
	key    []byte
	logger *slog.Logger
	now    func() time.Time
}

// NewRecorder builds a recorder. key must be at most 64 bytes; longer keys are truncated.
func NewRecorder(repo Repository, key []byte, logger *slog.Logger) *Recorder {
	if len(key) > blake2b.Size {
		key = key[:blake2b.Size]
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{repo: repo, key: key, logger: logger, now: time.Now}
}

// Fingerprint returns a keyed BLAKE2b-256 digest of an account identifier.
func (r *Recorder) Fingerprint(accountIdentifier string) string {
	if accountIdentifier == "" {
		return ""
	}
	h, err := blake2b.New256(r.key)
	if err != nil {
		return ""
	}
	h.Write([]byte(accountIdentifier))
	return hex.EncodeToString(h.Sum(nil))
}

// Record appends a step outcome. Failures are logged and swallowed.
func (r *Recorder) Record(ctx context.Context, customerID, accountIdentifier, step string, stepErr error) {
	if r == nil || r.repo == nil {
		return
	}
	entry := Entry{
		ID:          uuid.NewString(),
		Fingerprint: r.Fingerprint(accountIdentifier),
		CustomerID:  customerID,
		Step:        step,
		Outcome:     OutcomeOK,
		CreatedAt:   r.now().UTC(),
	}
	if stepErr != nil {
		entry.Outcome = OutcomeFailed
		entry.Detail = stepErr.Error()
	}
	if err := r.repo.Append(ctx, entry); err != nil {
		r.logger.WarnContext(ctx, "journal append failed", slog.String("step", step), slog.Any("error", err))
	}
}

// List returns the newest entries for a customer.
func (r *Recorder) List(ctx context.Context, customerID string, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return r.repo.ListByCustomer(ctx, customerID, limit)
}
