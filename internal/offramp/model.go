package offramp

// AccountType distinguishes payout destinations.
type AccountType string

const (
	AccountTypeIBAN AccountType = "iban"
	AccountTypeUS   AccountType = "us"
)

// Track names one of the two approval tracks the provider runs for a customer.
type Track string

const (
	TrackTOS Track = "tos"
	TrackKYC Track = "kyc"
)

// ApprovalStatus is the provider status of a track. Only approved and under_review are
// terminal for the onboarding flow; every other value is treated as pending.
type ApprovalStatus string

const (
	StatusNotStarted   ApprovalStatus = "not_started"
	StatusPending      ApprovalStatus = "pending"
	StatusIncomplete   ApprovalStatus = "incomplete"
	StatusManualReview ApprovalStatus = "manual_review"
	StatusUnderReview  ApprovalStatus = "under_review"
	StatusApproved     ApprovalStatus = "approved"
)

// PhysicalAddress is the provider's postal address shape.
type PhysicalAddress struct {
	StreetLine1 string `json:"street_line_1"`
	City        string `json:"city"`
	State       string `json:"state"`
	PostalCode  string `json:"postal_code"`
	Country     string `json:"country"`
}

// User is the product-side off-ramp user record.
type User struct {
	UserID           string    `json:"user_id"`
	Email            string    `json:"email"`
	FullName         string    `json:"full_name"`
	BridgeCustomerID string    `json:"bridge_customer_id"`
	Accounts         []Account `json:"accounts,omitempty"`
}

// Account is the product-side record of a payout account.
type Account struct {
	AccountID         string         `json:"account_id"`
	UserID            string         `json:"user_id"`
	BridgeAccountID   string         `json:"bridge_account_id,omitempty"`
	AccountType       AccountType    `json:"account_type"`
	AccountIdentifier string         `json:"account_identifier"`
	AccountDetails    AccountDetails `json:"account_details"`
}

// AccountDetails carries the bank identifiers of a payout account.
type AccountDetails struct {
	AccountNumber string `json:"accountNumber"`
	BIC           string `json:"bic,omitempty"`
	RoutingNumber string `json:"routingNumber,omitempty"`
	Country       string `json:"country,omitempty"`
}

// Customer is the provider's view of an off-ramp identity.
type Customer struct {
	ID        string           `json:"id"`
	Email     string           `json:"email"`
	FirstName string           `json:"first_name"`
	LastName  string           `json:"last_name"`
	Status    string           `json:"status"`
	Address   *PhysicalAddress `json:"address,omitempty"`
}

// ExternalAccount is a provider-side payout destination bound to a customer.
type ExternalAccount struct {
	ID               string           `json:"id"`
	CustomerID       string           `json:"customer_id"`
	AccountType      AccountType      `json:"account_type"`
	AccountOwnerName string           `json:"account_owner_name"`
	BankName         string           `json:"bank_name,omitempty"`
	Currency         string           `json:"currency,omitempty"`
	IBAN             *IBANAccount     `json:"iban,omitempty"`
	Account          *USAccount       `json:"account,omitempty"`
	Address          *PhysicalAddress `json:"address,omitempty"`
}

// IBANAccount holds the masked IBAN details returned by the provider.
type IBANAccount struct {
	Last4   string `json:"last_4"`
	BIC     string `json:"bic"`
	Country string `json:"country"`
}

// USAccount holds the masked US account details returned by the provider.
type USAccount struct {
	Last4         string `json:"last_4"`
	RoutingNumber string `json:"routing_number"`
}

// LiquidationAddress is a deposit address that forwards funds to an external account.
type LiquidationAddress struct {
	ID                     string `json:"id"`
	CustomerID             string `json:"customer_id"`
	Chain                  string `json:"chain"`
	Currency               string `json:"currency"`
	Address                string `json:"address"`
	ExternalAccountID      string `json:"external_account_id"`
	DestinationPaymentRail string `json:"destination_payment_rail"`
	DestinationCurrency    string `json:"destination_currency"`
}

// Links is the provider's onboarding bundle for a new individual customer.
type Links struct {
	ID         string         `json:"id"`
	CustomerID string         `json:"customer_id"`
	FullName   string         `json:"full_name"`
	Email      string         `json:"email"`
	KYCLink    string         `json:"kyc_link"`
	TOSLink    string         `json:"tos_link"`
	KYCStatus  ApprovalStatus `json:"kyc_status"`
	TOSStatus  ApprovalStatus `json:"tos_status"`
}

// Rail returns the payment rail and fiat currency used to pay out to an account type.
func Rail(t AccountType) (rail, currency string) {
	if t == AccountTypeIBAN {
		return "sepa", "eur"
	}
	return "ach", "usd"
}
