// Package gateway is the HTTP client for the backend gateway that proxies the off-ramp
// provider and the product user store.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/paylink/offramp/internal/metrics"
	"github.com/paylink/offramp/internal/offramp"
)

const maxErrorBody = 4 << 10

// StatusError is returned for unexpected HTTP statuses. The body is kept for logs only.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gateway %s returned status %d", e.Endpoint, e.StatusCode)
}

// HTTPStatus returns the response status code.
func (e *StatusError) HTTPStatus() int { return e.StatusCode }

// Config controls the client.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	// RPS caps outbound requests per second; zero disables the limiter.
	RPS float64
}

// Client implements offramp.Gateway over HTTP.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

var _ offramp.Gateway = (*Client)(nil)

// NewClient creates a gateway client.
func NewClient(cfg Config, m *metrics.Metrics, logger *slog.Logger) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("gateway base url is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("gateway base url: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		baseURL:    base,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		metrics:    m,
		logger:     logger,
	}
	if cfg.RPS > 0 {
		burst := int(cfg.RPS)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RPS), burst)
	}
	return c, nil
}

// FetchUser looks up the product user owning an account identifier. A 404 yields (nil, nil).
func (c *Client) FetchUser(ctx context.Context, accountIdentifier string) (*offramp.User, error) {
	q := url.Values{"accountIdentifier": {accountIdentifier}}
	var user offramp.User
	err := c.do(ctx, "fetch_user", http.MethodGet, "peanut/user/fetch-user", q, nil, &user)
	var se *StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// CreateUser registers a product user for a provider customer.
func (c *Client) CreateUser(ctx context.Context, input offramp.CreateUserInput) (offramp.User, error) {
	var user offramp.User
	err := c.do(ctx, "create_user", http.MethodPost, "peanut/user/create-user", nil, input, &user)
	return user, err
}

// AddAccount attaches an account record to a product user.
func (c *Client) AddAccount(ctx context.Context, input offramp.CreateAccountInput) (offramp.Account, error) {
	var account offramp.Account
	err := c.do(ctx, "add_account", http.MethodPost, "peanut/user/add-account", nil, input, &account)
	return account, err
}

// CreateExternalAccount creates a provider-side payout account.
func (c *Client) CreateExternalAccount(ctx context.Context, input offramp.CreateExternalAccountInput) (offramp.ExternalAccount, error) {
	body := struct {
		AccountType      offramp.AccountType    `json:"accountType"`
		AccountDetails   offramp.AccountDetails `json:"accountDetails"`
		Address          any                    `json:"address"`
		AccountOwnerName string                 `json:"accountOwnerName"`
	}{
		AccountType:      input.AccountType,
		AccountDetails:   input.AccountDetails,
		Address:          struct{}{},
		AccountOwnerName: input.AccountOwnerName,
	}
	if input.Address != nil {
		body.Address = input.Address
	}

	q := url.Values{"customerId": {input.CustomerID}}
	var account offramp.ExternalAccount
	err := c.do(ctx, "create_external_account", http.MethodPost, "bridge/external-account/create-external-account", q, body, &account)
	return account, err
}

// ListExternalAccounts returns every payout account of a customer.
func (c *Client) ListExternalAccounts(ctx context.Context, customerID string) ([]offramp.ExternalAccount, error) {
	var accounts []offramp.ExternalAccount
	err := c.do(ctx, "list_external_accounts", http.MethodPost, "bridge/external-account/get-all-for-customerId", nil, customerRef{customerID}, &accounts)
	return accounts, err
}

// CreateLiquidationAddress requests a deposit address for an external account.
func (c *Client) CreateLiquidationAddress(ctx context.Context, input offramp.CreateLiquidationAddressInput) (offramp.LiquidationAddress, error) {
	var addr offramp.LiquidationAddress
	err := c.do(ctx, "create_liquidation_address", http.MethodPost, "bridge/liquidation-address/create", nil, input, &addr)
	return addr, err
}

// ListLiquidationAddresses returns every liquidation address of a customer.
func (c *Client) ListLiquidationAddresses(ctx context.Context, customerID string) ([]offramp.LiquidationAddress, error) {
	var addrs []offramp.LiquidationAddress
	err := c.do(ctx, "list_liquidation_addresses", http.MethodPost, "bridge/liquidation-address/get-all", nil, customerRef{customerID}, &addrs)
	return addrs, err
}

// GetCustomer fetches a provider customer.
func (c *Client) GetCustomer(ctx context.Context, customerID string) (offramp.Customer, error) {
	var customer offramp.Customer
	err := c.do(ctx, "get_customer", http.MethodPost, "bridge/get-user-by-id", nil, customerRef{customerID}, &customer)
	return customer, err
}

// GetUserLinks starts provider onboarding for an individual and returns the TOS and KYC links.
func (c *Client) GetUserLinks(ctx context.Context, input offramp.LinksInput) (offramp.Links, error) {
	body := map[string]string{
		"type":      "individual",
		"full_name": input.FullName,
		"email":     input.Email,
	}
	var links offramp.Links
	err := c.do(ctx, "get_links", http.MethodPost, "bridge/user/new/get-links", nil, body, &links)
	return links, err
}

// GetStatus reads the current status of one approval track.
func (c *Client) GetStatus(ctx context.Context, customerID string, track offramp.Track) (offramp.ApprovalStatus, error) {
	body := map[string]string{"userId": customerID, "type": string(track)}
	var out map[string]any
	if err := c.do(ctx, "get_status", http.MethodPost, "bridge/user/new/get-status", nil, body, &out); err != nil {
		return "", err
	}
	status, _ := out[string(track)+"_status"].(string)
	return offramp.ApprovalStatus(status), nil
}

// ValidateBankAccount asks the gateway whether an account number is accepted.
// Any non-200 response means not valid.
func (c *Client) ValidateBankAccount(ctx context.Context, account string) (bool, error) {
	return c.validate(ctx, "validate_bank_account", "peanut/iban/validate-bank-account", map[string]string{"bankAccount": account})
}

// ValidateBIC asks the gateway whether a BIC is accepted. Any non-200 response means not valid.
func (c *Client) ValidateBIC(ctx context.Context, bic string) (bool, error) {
	return c.validate(ctx, "validate_bic", "peanut/iban/validate-bic", map[string]string{"bic": bic})
}

func (c *Client) validate(ctx context.Context, endpoint, path string, body any) (bool, error) {
	var out struct {
		Valid bool `json:"valid"`
	}
	err := c.do(ctx, endpoint, http.MethodPost, path, nil, body, &out)
	var se *StatusError
	if errors.As(err, &se) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return out.Valid, nil
}

type customerRef struct {
	CustomerID string `json:"customerId"`
}

func (c *Client) do(ctx context.Context, endpoint, method, path string, query url.Values, in, out any) (err error) {
	start := time.Now()
	defer func() { c.metrics.ObserveGateway(endpoint, start, err) }()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	target := c.baseURL + "/" + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal %s request: %w", endpoint, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("build %s request: %w", endpoint, err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send %s request: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.handleErrorResponse(endpoint, resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Api-Key", c.apiKey)
	}
}

func (c *Client) handleErrorResponse(endpoint string, resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		c.logger.Warn("read gateway error body", slog.String("endpoint", endpoint), slog.Any("error", err))
	}
	se := &StatusError{Endpoint: endpoint, StatusCode: resp.StatusCode, Body: string(body)}
	c.logger.Debug("gateway error response", slog.String("endpoint", endpoint), slog.Int("status", se.StatusCode), slog.String("body", se.Body))
	return se
}
