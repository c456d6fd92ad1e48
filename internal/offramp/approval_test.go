package offramp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/paylink/offramp/internal/logging"
)

func newTestPoller(gw *fakeGateway) (*Poller, *[]time.Duration) {
	var waits []time.Duration
	p := NewPoller(gw, logging.Discard())
	p.wait = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return ctx.Err()
	}
	return p, &waits
}

func TestAwaitApprovalPollsUntilApproved(t *testing.T) {
	gw := newFakeGateway()
	gw.statuses[TrackKYC] = []ApprovalStatus{StatusPending, StatusPending, StatusApproved}
	p, waits := newTestPoller(gw)

	if err := p.AwaitApproval(context.Background(), "cust_1", TrackKYC, StatusNotStarted); err != nil {
		t.Fatalf("await: %v", err)
	}
	if got := gw.callCount("get_status_kyc"); got != 3 {
		t.Fatalf("expected 3 polls, got %d", got)
	}
	if len(*waits) != 2 {
		t.Fatalf("expected 2 waits, got %d", len(*waits))
	}
	for _, d := range *waits {
		if d != 5*time.Second {
			t.Fatalf("expected constant 5s interval, got %v", d)
		}
	}
}

func TestAwaitApprovalUnderReviewStops(t *testing.T) {
	gw := newFakeGateway()
	gw.statuses[TrackTOS] = []ApprovalStatus{StatusPending, StatusUnderReview, StatusApproved}
	p, _ := newTestPoller(gw)

	err := p.AwaitApproval(context.Background(), "cust_1", TrackTOS, StatusPending)
	var review *UnderReviewError
	if !errors.As(err, &review) || review.Track != TrackTOS {
		t.Fatalf("expected tos under review, got %v", err)
	}
	if !errors.Is(err, ErrUnderReview) {
		t.Fatal("expected error to match ErrUnderReview")
	}
	if err.Error() != "TOS is under review" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if got := gw.callCount("get_status_tos"); got != 2 {
		t.Fatalf("expected 2 polls, got %d", got)
	}
}

func TestAwaitApprovalInitialApprovedSkipsPolling(t *testing.T) {
	gw := newFakeGateway()
	p, _ := newTestPoller(gw)

	if err := p.AwaitApproval(context.Background(), "cust_1", TrackKYC, StatusApproved); err != nil {
		t.Fatalf("await: %v", err)
	}
	if len(gw.calls) != 0 {
		t.Fatalf("expected no polls, got %v", gw.calls)
	}
}

func TestAwaitApprovalPropagatesStatusError(t *testing.T) {
	gw := newFakeGateway()
	boom := errors.New("gateway down")
	gw.statusErr = boom
	p, _ := newTestPoller(gw)

	if err := p.AwaitApproval(context.Background(), "cust_1", TrackKYC, StatusPending); !errors.Is(err, boom) {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestAwaitApprovalMaxAttempts(t *testing.T) {
	gw := newFakeGateway()
	gw.statuses[TrackKYC] = []ApprovalStatus{StatusPending}
	p, waits := newTestPoller(gw)
	p.MaxAttempts = 3

	if err := p.AwaitApproval(context.Background(), "cust_1", TrackKYC, StatusPending); !errors.Is(err, ErrApprovalTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if gw.callCount("get_status_kyc") != 3 || len(*waits) != 2 {
		t.Fatalf("unexpected polls=%d waits=%d", gw.callCount("get_status_kyc"), len(*waits))
	}
}

func TestAwaitApprovalCancellationAbortsWait(t *testing.T) {
	gw := newFakeGateway()
	gw.statuses[TrackKYC] = []ApprovalStatus{StatusPending}
	p := NewPoller(gw, logging.Discard())
	p.Interval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.AwaitApproval(ctx, "cust_1", TrackKYC, StatusPending) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not stop after cancellation")
	}
}
