package offramp

import (
	"context"
	"errors"
	"sync"
)

type statusErr struct{ code int }

func (e statusErr) Error() string   { return "gateway returned error" }
func (e statusErr) HTTPStatus() int { return e.code }

type fakeGateway struct {
	mu sync.Mutex

	calls []string

	validAccounts map[string]bool
	validBICs     map[string]bool
	transportErr  error

	statuses  map[Track][]ApprovalStatus
	statusErr error

	user         *User
	links        Links
	customer     Customer
	liquidations []LiquidationAddress

	failOn map[string]error

	gotCreateUser       CreateUserInput
	gotCreateAccount    CreateAccountInput
	gotExternalAccount  CreateExternalAccountInput
	gotLiquidationInput CreateLiquidationAddressInput
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		validAccounts: map[string]bool{},
		validBICs:     map[string]bool{},
		statuses:      map[Track][]ApprovalStatus{},
		failOn:        map[string]error{},
	}
}

func (g *fakeGateway) record(call string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, call)
	return g.failOn[call]
}

func (g *fakeGateway) callCount(call string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (g *fakeGateway) ValidateBankAccount(_ context.Context, account string) (bool, error) {
	_ = g.record("validate_bank_account")
	if g.transportErr != nil {
		return false, g.transportErr
	}
	return g.validAccounts[account], nil
}

func (g *fakeGateway) ValidateBIC(_ context.Context, bic string) (bool, error) {
	_ = g.record("validate_bic")
	if g.transportErr != nil {
		return false, g.transportErr
	}
	return g.validBICs[bic], nil
}

func (g *fakeGateway) GetStatus(_ context.Context, _ string, track Track) (ApprovalStatus, error) {
	_ = g.record("get_status_" + string(track))
	if g.statusErr != nil {
		return "", g.statusErr
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	queue := g.statuses[track]
	if len(queue) == 0 {
		return "", errors.New("no status queued")
	}
	status := queue[0]
	if len(queue) > 1 {
		g.statuses[track] = queue[1:]
	}
	return status, nil
}

func (g *fakeGateway) FetchUser(context.Context, string) (*User, error) {
	if err := g.record("fetch_user"); err != nil {
		return nil, err
	}
	return g.user, nil
}

func (g *fakeGateway) CreateUser(_ context.Context, in CreateUserInput) (User, error) {
	g.gotCreateUser = in
	if err := g.record("create_user"); err != nil {
		return User{}, err
	}
	return User{UserID: "usr_1", Email: in.Email, FullName: in.FullName, BridgeCustomerID: in.BridgeCustomerID}, nil
}

func (g *fakeGateway) AddAccount(_ context.Context, in CreateAccountInput) (Account, error) {
	g.gotCreateAccount = in
	if err := g.record("create_account"); err != nil {
		return Account{}, err
	}
	return Account{AccountID: "acc_1", UserID: in.UserID, BridgeAccountID: in.BridgeAccountID, AccountType: in.AccountType, AccountIdentifier: in.AccountIdentifier, AccountDetails: in.AccountDetails}, nil
}

func (g *fakeGateway) CreateExternalAccount(_ context.Context, in CreateExternalAccountInput) (ExternalAccount, error) {
	g.gotExternalAccount = in
	if err := g.record("create_external_account"); err != nil {
		return ExternalAccount{}, err
	}
	return ExternalAccount{ID: "ext_1", CustomerID: in.CustomerID, AccountType: in.AccountType, AccountOwnerName: in.AccountOwnerName}, nil
}

func (g *fakeGateway) ListExternalAccounts(context.Context, string) ([]ExternalAccount, error) {
	_ = g.record("list_external_accounts")
	return nil, nil
}

func (g *fakeGateway) CreateLiquidationAddress(_ context.Context, in CreateLiquidationAddressInput) (LiquidationAddress, error) {
	g.gotLiquidationInput = in
	if err := g.record("create_liquidation_address"); err != nil {
		return LiquidationAddress{}, err
	}
	return LiquidationAddress{
		ID:                     "liq_1",
		CustomerID:             in.CustomerID,
		Chain:                  in.ChainName,
		Currency:               in.TokenName,
		Address:                "0x1111111111111111111111111111111111111111",
		ExternalAccountID:      in.ExternalAccountID,
		DestinationPaymentRail: in.DestinationPaymentRail,
		DestinationCurrency:    in.DestinationCurrency,
	}, nil
}

func (g *fakeGateway) ListLiquidationAddresses(context.Context, string) ([]LiquidationAddress, error) {
	if err := g.record("list_liquidation_addresses"); err != nil {
		return nil, err
	}
	return g.liquidations, nil
}

func (g *fakeGateway) GetCustomer(context.Context, string) (Customer, error) {
	if err := g.record("get_customer"); err != nil {
		return Customer{}, err
	}
	return g.customer, nil
}

func (g *fakeGateway) GetUserLinks(context.Context, LinksInput) (Links, error) {
	if err := g.record("get_user_links"); err != nil {
		return Links{}, err
	}
	return g.links, nil
}
