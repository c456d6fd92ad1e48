package notification

import (
	"context"
	"log/slog"
)

const (
	// KindApprovalApproved is sent when a TOS or KYC track reaches approved.
	KindApprovalApproved = "offramp.approval.approved"
	// KindApprovalUnderReview is sent when a track is parked for manual review.
	KindApprovalUnderReview = "offramp.approval.under_review"
	// KindLiquidationAddressCreated is sent once a customer can receive deposits.
	KindLiquidationAddressCreated = "offramp.liquidation_address.created"
)

// Message describes a notification payload.
type Message struct {
	Kind        string            `json:"kind"`
	Destination string            `json:"destination"`
	Body        string            `json:"body"`
	Data        map[string]string `json:"data,omitempty"`
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier writes notifications to the structured logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(ctx context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.InfoContext(ctx, "notification",
		slog.String("kind", message.Kind),
		slog.String("destination", message.Destination),
		slog.String("body", message.Body),
	)
	return nil
}
