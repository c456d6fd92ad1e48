package offramp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/paylink/offramp/internal/iban"
	"github.com/paylink/offramp/internal/notification"
)

// Stage is a user-visible progress label of the onboarding flow.
type Stage string

const (
	StageGettingKYCStatus Stage = "Getting KYC status"
	StageAwaitingTOS      Stage = "Awaiting TOS confirmation"
	StageAwaitingKYC      Stage = "Awaiting KYC confirmation"
	StageLinkingIBAN      Stage = "Linking IBAN"
	StageLinkingAccount   Stage = "Linking account"
	StageSubmitting       Stage = "Submitting Offramp"
)

// ProgressFunc is told when the flow enters a new stage.
type ProgressFunc func(Stage)

// OnboardInput is everything the flow needs to take a wallet holder to a funded route.
type OnboardInput struct {
	FullName string
	Email    string
	Form     AccountForm

	ChainID      string
	TokenAddress string

	Progress ProgressFunc
}

// OnboardResult reports the provisioned route and the links the user had to complete.
type OnboardResult struct {
	ProvisionResult
	Links *Links `json:"links,omitempty"`
}

// Onboard validates the form, reuses or creates the provider customer, waits for TOS and KYC
// approval and provisions the payout route.
func (s *Service) Onboard(ctx context.Context, input OnboardInput) (OnboardResult, error) {
	var res OnboardResult
	progress := input.Progress
	if progress == nil {
		progress = func(Stage) {}
	}

	if _, _, err := s.Route(input.ChainID, input.TokenAddress); err != nil {
		return res, err
	}

	var fields ErrorList
	if !s.validator.ValidateAccountForm(ctx, input.Form, &fields) {
		return res, &FormError{Fields: fields}
	}

	identifier := strings.TrimSpace(input.Form.AccountNumber)
	if input.Form.Type == AccountTypeIBAN {
		identifier = iban.Normalize(identifier)
	}

	existing, err := s.gateway.FetchUser(ctx, identifier)
	if err != nil {
		return res, fmt.Errorf("fetch user: %w", err)
	}

	provision := ProvisionInput{
		FullName:     input.FullName,
		Email:        input.Email,
		Form:         input.Form,
		ChainID:      input.ChainID,
		TokenAddress: input.TokenAddress,
		UserDetails:  map[string]any{"source": "offramp"},
	}

	if existing != nil && existing.BridgeCustomerID != "" {
		provision.ExistingUser = existing
		provision.CustomerID = existing.BridgeCustomerID
		provision.Email = existing.Email
		provision.FullName = existing.FullName
		for i := range existing.Accounts {
			if existing.Accounts[i].AccountIdentifier == identifier {
				acc := existing.Accounts[i]
				provision.ExistingAccount = &acc
				provision.ExternalAccountID = acc.BridgeAccountID
				break
			}
		}
	} else {
		progress(StageGettingKYCStatus)
		links, err := s.gateway.GetUserLinks(ctx, LinksInput{FullName: input.FullName, Email: input.Email})
		if err != nil {
			return res, fmt.Errorf("get user links: %w", err)
		}
		res.Links = &links

		progress(StageAwaitingTOS)
		if err := s.awaitTrack(ctx, links, TrackTOS, links.TOSStatus); err != nil {
			return res, err
		}
		progress(StageAwaitingKYC)
		if err := s.awaitTrack(ctx, links, TrackKYC, links.KYCStatus); err != nil {
			return res, err
		}

		customer, err := s.gateway.GetCustomer(ctx, links.CustomerID)
		if err != nil {
			return res, fmt.Errorf("get customer: %w", err)
		}
		provision.CustomerID = links.CustomerID
		provision.PhysicalAddress = customer.Address
	}

	if input.Form.Type == AccountTypeIBAN {
		progress(StageLinkingIBAN)
	} else {
		progress(StageLinkingAccount)
	}
	progress(StageSubmitting)

	res.ProvisionResult, err = s.Provision(ctx, provision)
	if err != nil {
		return res, err
	}
	s.logger.InfoContext(ctx, "offramp onboarded",
		slog.String("customer_id", provision.CustomerID),
		slog.String("liquidation_address_id", res.LiquidationAddress.ID),
	)
	return res, nil
}

// awaitTrack polls a track with the links id and notifies the terminal outcome.
func (s *Service) awaitTrack(ctx context.Context, links Links, track Track, initial ApprovalStatus) error {
	err := s.poller.AwaitApproval(ctx, links.ID, track, initial)

	kind := ""
	switch {
	case err == nil && initial != StatusApproved:
		kind = notification.KindApprovalApproved
	case errors.Is(err, ErrUnderReview):
		kind = notification.KindApprovalUnderReview
	}
	if kind != "" && s.notifier != nil {
		if nerr := s.notifier.Send(ctx, notification.Message{
			Kind:        kind,
			Destination: links.CustomerID,
			Body:        fmt.Sprintf("%s %s", strings.ToUpper(string(track)), strings.TrimPrefix(kind, "offramp.approval.")),
			Data:        map[string]string{"track": string(track)},
		}); nerr != nil {
			s.logger.WarnContext(ctx, "notification failed", slog.Any("error", nerr))
		}
	}
	return err
}
