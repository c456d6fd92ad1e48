package offramp

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/paylink/offramp/internal/notification"
)

func onboardInput(stages *[]Stage) OnboardInput {
	return OnboardInput{
		FullName:     "Ada Lovelace",
		Email:        "ada@example.com",
		Form:         AccountForm{Type: AccountTypeIBAN, AccountNumber: testIBAN, BIC: testBIC},
		ChainID:      "1",
		TokenAddress: mainnetUSDC,
		Progress:     func(s Stage) { *stages = append(*stages, s) },
	}
}

func newOnboardGateway() *fakeGateway {
	gw := newFakeGateway()
	gw.validAccounts[testIBAN] = true
	gw.validBICs[testBIC] = true
	gw.links = Links{ID: "lnk_1", CustomerID: "cust_1", TOSStatus: StatusPending, KYCStatus: StatusNotStarted}
	gw.customer = Customer{ID: "cust_1", Address: &PhysicalAddress{StreetLine1: "Unter den Linden 1", City: "Berlin", PostalCode: "10117", Country: "DEU"}}
	gw.statuses[TrackTOS] = []ApprovalStatus{StatusApproved}
	gw.statuses[TrackKYC] = []ApprovalStatus{StatusPending, StatusApproved}
	return gw
}

func withInstantWait(svc *Service) {
	svc.poller.wait = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
}

func TestOnboardNewCustomer(t *testing.T) {
	gw := newOnboardGateway()
	svc, notifier, _ := newTestService(gw)
	withInstantWait(svc)

	var stages []Stage
	res, err := svc.Onboard(context.Background(), onboardInput(&stages))
	if err != nil {
		t.Fatalf("onboard: %v", err)
	}

	wantStages := []Stage{StageGettingKYCStatus, StageAwaitingTOS, StageAwaitingKYC, StageLinkingIBAN, StageSubmitting}
	if !reflect.DeepEqual(stages, wantStages) {
		t.Fatalf("expected stages %v, got %v", wantStages, stages)
	}
	if res.Links == nil || res.Links.ID != "lnk_1" {
		t.Fatalf("expected links in result, got %+v", res.Links)
	}
	if gw.gotCreateUser.BridgeCustomerID != "cust_1" || gw.gotCreateUser.PhysicalAddress == nil || gw.gotCreateUser.PhysicalAddress.City != "Berlin" {
		t.Fatalf("unexpected create user input %+v", gw.gotCreateUser)
	}
	if res.LiquidationAddress.ID != "liq_1" {
		t.Fatalf("unexpected result %+v", res)
	}

	var kinds []string
	for _, m := range notifier.sent {
		kinds = append(kinds, m.Kind)
	}
	wantKinds := []string{notification.KindApprovalApproved, notification.KindApprovalApproved, notification.KindLiquidationAddressCreated}
	if !reflect.DeepEqual(kinds, wantKinds) {
		t.Fatalf("expected notifications %v, got %v", wantKinds, kinds)
	}
}

func TestOnboardExistingUserSkipsApproval(t *testing.T) {
	gw := newOnboardGateway()
	gw.user = &User{
		UserID:           "usr_7",
		Email:            "ada@example.com",
		FullName:         "Ada Lovelace",
		BridgeCustomerID: "cust_7",
		Accounts:         []Account{{AccountIdentifier: testIBAN, BridgeAccountID: "ext_7"}},
	}
	svc, _, _ := newTestService(gw)

	var stages []Stage
	if _, err := svc.Onboard(context.Background(), onboardInput(&stages)); err != nil {
		t.Fatalf("onboard: %v", err)
	}

	for _, call := range []string{"get_user_links", "get_status_tos", "get_status_kyc", "create_user", "create_account", "create_external_account"} {
		if gw.callCount(call) != 0 {
			t.Fatalf("expected no %s call, got %v", call, gw.calls)
		}
	}
	if gw.gotLiquidationInput.CustomerID != "cust_7" || gw.gotLiquidationInput.ExternalAccountID != "ext_7" {
		t.Fatalf("unexpected liquidation input %+v", gw.gotLiquidationInput)
	}
	if !reflect.DeepEqual(stages, []Stage{StageLinkingIBAN, StageSubmitting}) {
		t.Fatalf("unexpected stages %v", stages)
	}
}

func TestOnboardKYCUnderReview(t *testing.T) {
	gw := newOnboardGateway()
	gw.statuses[TrackKYC] = []ApprovalStatus{StatusUnderReview}
	svc, notifier, _ := newTestService(gw)
	withInstantWait(svc)

	var stages []Stage
	_, err := svc.Onboard(context.Background(), onboardInput(&stages))
	var review *UnderReviewError
	if !errors.As(err, &review) || review.Track != TrackKYC {
		t.Fatalf("expected kyc under review, got %v", err)
	}
	if gw.callCount("create_user") != 0 {
		t.Fatal("expected provisioning not to start")
	}
	last := notifier.sent[len(notifier.sent)-1]
	if last.Kind != notification.KindApprovalUnderReview || last.Data["track"] != "kyc" {
		t.Fatalf("unexpected notification %+v", last)
	}
}

func TestOnboardInvalidFormStopsEarly(t *testing.T) {
	gw := newOnboardGateway()
	svc, _, _ := newTestService(gw)

	var stages []Stage
	in := onboardInput(&stages)
	in.Form.BIC = ""
	_, err := svc.Onboard(context.Background(), in)

	var fe *FormError
	if !errors.As(err, &fe) || !fe.Fields.Has("BIC", ReasonRequired) {
		t.Fatalf("expected form error, got %v", err)
	}
	if !errors.Is(err, ErrValidation) {
		t.Fatal("expected ErrValidation")
	}
	if gw.callCount("fetch_user") != 0 {
		t.Fatal("expected no user lookup")
	}
}

func TestOnboardUnsupportedChain(t *testing.T) {
	gw := newOnboardGateway()
	svc, _, _ := newTestService(gw)

	var stages []Stage
	in := onboardInput(&stages)
	in.ChainID = "999"
	if _, err := svc.Onboard(context.Background(), in); !errors.Is(err, ErrUnsupportedChain) {
		t.Fatalf("expected unsupported chain, got %v", err)
	}
	if len(gw.calls) != 0 {
		t.Fatalf("expected no gateway calls, got %v", gw.calls)
	}
}
