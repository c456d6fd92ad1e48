package offramp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/paylink/offramp/internal/chains"
	"github.com/paylink/offramp/internal/iban"
	"github.com/paylink/offramp/internal/metrics"
	"github.com/paylink/offramp/internal/notification"
)

// Journal records workflow steps for diagnostics. Implementations must not fail the workflow.
type Journal interface {
	Record(ctx context.Context, customerID, accountIdentifier, step string, err error)
}

// Options carries the optional collaborators of a Service.
type Options struct {
	Notifier notification.Notifier
	Journal  Journal
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
	Poller   *Poller
}

// Service composes gateway calls into the off-ramp onboarding workflow.
type Service struct {
	gateway   Gateway
	chains    *chains.Table
	notifier  notification.Notifier
	journal   Journal
	metrics   *metrics.Metrics
	logger    *slog.Logger
	poller    *Poller
	validator *Validator
}

// NewService constructs the workflow service.
func NewService(gateway Gateway, table *chains.Table, opts Options) *Service {
	if table == nil {
		table = chains.Default()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	poller := opts.Poller
	if poller == nil {
		poller = NewPoller(gateway, logger)
		poller.Metrics = opts.Metrics
	}
	return &Service{
		gateway:   gateway,
		chains:    table,
		notifier:  opts.Notifier,
		journal:   opts.Journal,
		metrics:   opts.Metrics,
		logger:    logger,
		poller:    poller,
		validator: NewValidator(gateway, logger),
	}
}

// Gateway exposes the underlying gateway for read-only lookups.
func (s *Service) Gateway() Gateway { return s.gateway }

// Chains exposes the identifier table.
func (s *Service) Chains() *chains.Table { return s.chains }

// Validator returns the account form validator backed by the gateway.
func (s *Service) Validator() *Validator { return s.validator }

// Poller returns the approval poller used by the workflow.
func (s *Service) Poller() *Poller { return s.poller }

// CreateUser registers the product-side user for a provider customer.
func (s *Service) CreateUser(ctx context.Context, input CreateUserInput) (User, error) {
	user, err := s.gateway.CreateUser(ctx, input)
	err = s.finish(ctx, StepCreateUser, input.BridgeCustomerID, "", err)
	return user, err
}

// CreateAccount attaches a payout account record to a product-side user.
func (s *Service) CreateAccount(ctx context.Context, input CreateAccountInput) (Account, error) {
	account, err := s.gateway.AddAccount(ctx, input)
	err = s.finish(ctx, StepCreateAccount, input.BridgeCustomerID, input.AccountIdentifier, err)
	return account, err
}

// CreateExternalAccount creates the provider-side payout account. The call is never retried.
func (s *Service) CreateExternalAccount(ctx context.Context, input CreateExternalAccountInput) (ExternalAccount, error) {
	s.logger.DebugContext(ctx, "creating external account",
		slog.String("customer_id", input.CustomerID),
		slog.String("account_type", string(input.AccountType)),
		slog.Any("address", input.Address),
		slog.String("account_owner_name", input.AccountOwnerName),
	)
	account, err := s.gateway.CreateExternalAccount(ctx, input)
	if err == nil {
		s.logger.DebugContext(ctx, "external account created", slog.Any("external_account", account))
	}
	err = s.finish(ctx, StepCreateExternalAccount, input.CustomerID, input.AccountDetails.AccountNumber, err)
	return account, err
}

// CreateLiquidationAddress requests a deposit address forwarding to an external account.
func (s *Service) CreateLiquidationAddress(ctx context.Context, input CreateLiquidationAddressInput) (LiquidationAddress, error) {
	addr, err := s.gateway.CreateLiquidationAddress(ctx, input)
	err = s.finish(ctx, StepCreateLiquidationAddress, input.CustomerID, "", err)
	if err == nil && s.notifier != nil {
		if nerr := s.notifier.Send(ctx, notification.Message{
			Kind:        notification.KindLiquidationAddressCreated,
			Destination: input.CustomerID,
			Body:        fmt.Sprintf("Send %s on %s to %s", input.TokenName, input.ChainName, addr.Address),
			Data: map[string]string{
				"liquidation_address_id": addr.ID,
				"chain":                  input.ChainName,
				"currency":               input.TokenName,
			},
		}); nerr != nil {
			s.logger.WarnContext(ctx, "notification failed", slog.Any("error", nerr))
		}
	}
	return addr, err
}

func (s *Service) finish(ctx context.Context, step Step, customerID, accountIdentifier string, err error) error {
	if err != nil {
		err = newProvisioningError(step, err)
		s.logger.ErrorContext(ctx, "provisioning step failed",
			slog.String("step", string(step)),
			slog.String("customer_id", customerID),
			slog.Any("error", err),
		)
	}
	s.metrics.ObserveStep(string(step), err)
	if s.journal != nil {
		s.journal.Record(ctx, customerID, accountIdentifier, string(step), err)
	}
	return err
}

// ProvisionInput carries everything needed to provision a payout route for a customer.
type ProvisionInput struct {
	// ExistingUser skips user creation when set.
	ExistingUser *User

	CustomerID      string
	Email           string
	FullName        string
	PhysicalAddress *PhysicalAddress
	UserDetails     map[string]any

	Form             AccountForm
	AccountOwnerName string
	// ExistingAccount skips account record creation when set.
	ExistingAccount *Account
	// ExternalAccountID reuses a provider-side payout account and skips its creation.
	ExternalAccountID string

	ChainID      string
	TokenAddress string
}

// ProvisionResult holds the records created or reused by Provision.
type ProvisionResult struct {
	User               User               `json:"user"`
	Account            Account            `json:"account"`
	ExternalAccount    ExternalAccount    `json:"external_account"`
	LiquidationAddress LiquidationAddress `json:"liquidation_address"`
}

// Route resolves the provider chain and currency names for a chain id and token address.
func (s *Service) Route(chainID, tokenAddress string) (chainName, tokenName string, err error) {
	chainName, ok := s.chains.BridgeChainName(chainID)
	if !ok {
		return "", "", fmt.Errorf("%w: chain %s", ErrUnsupportedChain, chainID)
	}
	tokenName, ok = s.chains.BridgeTokenName(chainID, tokenAddress)
	if !ok {
		return "", "", fmt.Errorf("%w: token %s on chain %s", ErrUnsupportedChain, tokenAddress, chainID)
	}
	return chainName, tokenName, nil
}

// Provision runs user, account, external account and liquidation address creation in order,
// stopping at the first failed step. Records supplied in the input are reused, and a liquidation
// address already forwarding the same chain and currency to a reused external account is returned
// instead of creating another.
func (s *Service) Provision(ctx context.Context, input ProvisionInput) (ProvisionResult, error) {
	var res ProvisionResult

	chainName, tokenName, err := s.Route(input.ChainID, input.TokenAddress)
	if err != nil {
		return res, err
	}
	details, identifier, err := accountDetails(input.Form)
	if err != nil {
		return res, err
	}

	if input.ExistingUser != nil && input.ExistingUser.UserID != "" {
		res.User = *input.ExistingUser
	} else {
		res.User, err = s.CreateUser(ctx, CreateUserInput{
			BridgeCustomerID: input.CustomerID,
			Email:            input.Email,
			FullName:         input.FullName,
			PhysicalAddress:  input.PhysicalAddress,
			UserDetails:      input.UserDetails,
		})
		if err != nil {
			return res, err
		}
	}

	if input.ExternalAccountID == "" && input.ExistingAccount != nil {
		input.ExternalAccountID = input.ExistingAccount.BridgeAccountID
	}

	if input.ExistingAccount != nil && input.ExistingAccount.AccountIdentifier == identifier {
		res.Account = *input.ExistingAccount
	} else {
		res.Account, err = s.CreateAccount(ctx, CreateAccountInput{
			UserID:            res.User.UserID,
			BridgeCustomerID:  input.CustomerID,
			BridgeAccountID:   input.ExternalAccountID,
			AccountType:       input.Form.Type,
			AccountIdentifier: identifier,
			AccountDetails:    details,
		})
		if err != nil {
			return res, err
		}
	}

	if input.ExternalAccountID != "" {
		res.ExternalAccount = ExternalAccount{ID: input.ExternalAccountID, CustomerID: input.CustomerID, AccountType: input.Form.Type}
	} else {
		owner := input.AccountOwnerName
		if owner == "" {
			owner = input.FullName
		}
		res.ExternalAccount, err = s.CreateExternalAccount(ctx, CreateExternalAccountInput{
			CustomerID:       input.CustomerID,
			AccountType:      input.Form.Type,
			AccountDetails:   details,
			Address:          input.Form.Address(),
			AccountOwnerName: owner,
		})
		if err != nil {
			return res, err
		}
	}

	rail, currency := Rail(input.Form.Type)
	if input.ExternalAccountID != "" {
		existing, found, err := s.findLiquidationAddress(ctx, input.CustomerID, chainName, tokenName, input.ExternalAccountID)
		if err != nil {
			return res, err
		}
		if found {
			res.LiquidationAddress = existing
			return res, nil
		}
	}
	res.LiquidationAddress, err = s.CreateLiquidationAddress(ctx, CreateLiquidationAddressInput{
		CustomerID:             input.CustomerID,
		ChainName:              chainName,
		TokenName:              tokenName,
		ExternalAccountID:      res.ExternalAccount.ID,
		DestinationPaymentRail: rail,
		DestinationCurrency:    currency,
	})
	if err != nil {
		return res, err
	}

	return res, nil
}

// findLiquidationAddress looks for an address already forwarding chain/currency to the external account.
func (s *Service) findLiquidationAddress(ctx context.Context, customerID, chainName, tokenName, externalAccountID string) (LiquidationAddress, bool, error) {
	addrs, err := s.gateway.ListLiquidationAddresses(ctx, customerID)
	if err != nil {
		return LiquidationAddress{}, false, fmt.Errorf("list liquidation addresses: %w", err)
	}
	for _, addr := range addrs {
		if addr.ExternalAccountID == externalAccountID &&
			strings.EqualFold(addr.Chain, chainName) &&
			strings.EqualFold(addr.Currency, tokenName) {
			return addr, true, nil
		}
	}
	return LiquidationAddress{}, false, nil
}

// accountDetails maps a form onto provider account details and the product account identifier.
func accountDetails(form AccountForm) (AccountDetails, string, error) {
	switch form.Type {
	case AccountTypeIBAN:
		number := iban.Normalize(form.AccountNumber)
		country, err := iban.CountryCode3(number)
		if err != nil {
			return AccountDetails{}, "", err
		}
		return AccountDetails{AccountNumber: number, BIC: form.BIC, Country: country}, number, nil
	case AccountTypeUS:
		number := strings.TrimSpace(form.AccountNumber)
		return AccountDetails{AccountNumber: number, RoutingNumber: strings.TrimSpace(form.RoutingNumber)}, number, nil
	default:
		return AccountDetails{}, "", &FormError{Fields: ErrorList{{Field: "type", Reason: ReasonInvalid, Message: "Account type must be iban or us"}}}
	}
}
