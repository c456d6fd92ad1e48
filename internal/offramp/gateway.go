package offramp

import "context"

// BankValidator checks bank identifiers remotely.
type BankValidator interface {
	ValidateBankAccount(ctx context.Context, account string) (bool, error)
	ValidateBIC(ctx context.Context, bic string) (bool, error)
}

// StatusSource reads the current approval status of a track.
type StatusSource interface {
	GetStatus(ctx context.Context, customerID string, track Track) (ApprovalStatus, error)
}

// Gateway is the thin backend API that proxies the compliance provider.
type Gateway interface {
	BankValidator
	StatusSource

	FetchUser(ctx context.Context, accountIdentifier string) (*User, error)
	CreateUser(ctx context.Context, input CreateUserInput) (User, error)
	AddAccount(ctx context.Context, input CreateAccountInput) (Account, error)
	CreateExternalAccount(ctx context.Context, input CreateExternalAccountInput) (ExternalAccount, error)
	ListExternalAccounts(ctx context.Context, customerID string) ([]ExternalAccount, error)
	CreateLiquidationAddress(ctx context.Context, input CreateLiquidationAddressInput) (LiquidationAddress, error)
	ListLiquidationAddresses(ctx context.Context, customerID string) ([]LiquidationAddress, error)
	GetCustomer(ctx context.Context, customerID string) (Customer, error)
	GetUserLinks(ctx context.Context, input LinksInput) (Links, error)
}

// CreateUserInput registers the product-side user for a provider customer.
type CreateUserInput struct {
	BridgeCustomerID string           `json:"bridgeCustomerId"`
	Email            string           `json:"email"`
	FullName         string           `json:"fullName"`
	PhysicalAddress  *PhysicalAddress `json:"physicalAddress,omitempty"`
	UserDetails      map[string]any   `json:"userDetails,omitempty"`
}

// CreateAccountInput attaches a payout account record to a product-side user.
type CreateAccountInput struct {
	UserID            string         `json:"userId"`
	BridgeCustomerID  string         `json:"bridgeCustomerId"`
	BridgeAccountID   string         `json:"bridgeAccountId,omitempty"`
	AccountType       AccountType    `json:"accountType"`
	AccountIdentifier string         `json:"accountIdentifier"`
	AccountDetails    AccountDetails `json:"accountDetails"`
}

// CreateExternalAccountInput creates the provider-side payout account.
type CreateExternalAccountInput struct {
	CustomerID       string           `json:"-"`
	AccountType      AccountType      `json:"accountType"`
	AccountDetails   AccountDetails   `json:"accountDetails"`
	Address          *PhysicalAddress `json:"address"`
	AccountOwnerName string           `json:"accountOwnerName"`
}

// CreateLiquidationAddressInput requests a deposit address forwarding to an external account.
type CreateLiquidationAddressInput struct {
	CustomerID             string `json:"customer_id"`
	ChainName              string `json:"chain"`
	TokenName              string `json:"currency"`
	ExternalAccountID      string `json:"external_account_id"`
	DestinationPaymentRail string `json:"destination_payment_rail"`
	DestinationCurrency    string `json:"destination_currency"`
}

// LinksInput requests onboarding links for an individual.
type LinksInput struct {
	FullName string
	Email    string
}
