package offramp

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/paylink/offramp/internal/iban"
	"github.com/paylink/offramp/internal/journal"
)

// History lists recorded workflow steps of a customer.
type History interface {
	List(ctx context.Context, customerID string, limit int) ([]journal.Entry, error)
}

// Handler exposes the off-ramp workflow over HTTP.
type Handler struct {
	service     *Service
	history     History
	waitTimeout time.Duration
}

// NewHandler builds an off-ramp HTTP handler. waitTimeout bounds approval polling per request;
// zero leaves it to the request context.
func NewHandler(service *Service, history History, waitTimeout time.Duration) *Handler {
	return &Handler{service: service, history: history, waitTimeout: waitTimeout}
}

type validateResponse struct {
	Valid  bool      `json:"valid"`
	Errors ErrorList `json:"errors"`
}

// Validate checks an account form and returns every field error.
func (h *Handler) Validate(c *fiber.Ctx) error {
	var form AccountForm
	if err := c.BodyParser(&form); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	errs := ErrorList{}
	valid := h.service.Validator().ValidateAccountForm(c.UserContext(), form, &errs)
	return c.JSON(validateResponse{Valid: valid, Errors: errs})
}

// FetchUser returns the product user owning an account identifier.
func (h *Handler) FetchUser(c *fiber.Ctx) error {
	identifier := strings.TrimSpace(c.Params("account"))
	if identifier == "" {
		return fiber.NewError(http.StatusBadRequest, "account is required")
	}
	user, err := h.service.Gateway().FetchUser(c.UserContext(), identifier)
	if err != nil {
		return h.fail(c, err)
	}
	if user == nil {
		return fiber.NewError(http.StatusNotFound, "user not found")
	}
	return c.JSON(user)
}

// CreateUser registers a product user.
func (h *Handler) CreateUser(c *fiber.Ctx) error {
	var in CreateUserInput
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if in.BridgeCustomerID == "" {
		return fiber.NewError(http.StatusBadRequest, "bridgeCustomerId is required")
	}
	user, err := h.service.CreateUser(c.UserContext(), in)
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(http.StatusCreated).JSON(user)
}

// CreateAccount attaches an account record to a product user.
func (h *Handler) CreateAccount(c *fiber.Ctx) error {
	var in CreateAccountInput
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if in.UserID == "" || in.AccountIdentifier == "" {
		return fiber.NewError(http.StatusBadRequest, "userId and accountIdentifier are required")
	}
	account, err := h.service.CreateAccount(c.UserContext(), in)
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(http.StatusCreated).JSON(account)
}

// CreateExternalAccount creates a provider payout account for the customerId query parameter.
func (h *Handler) CreateExternalAccount(c *fiber.Ctx) error {
	var in CreateExternalAccountInput
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	in.CustomerID = strings.TrimSpace(c.Query("customerId"))
	if in.CustomerID == "" {
		return fiber.NewError(http.StatusBadRequest, "customerId is required")
	}
	account, err := h.service.CreateExternalAccount(c.UserContext(), in)
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(http.StatusCreated).JSON(account)
}

// CreateLiquidationAddress requests a deposit address.
func (h *Handler) CreateLiquidationAddress(c *fiber.Ctx) error {
	var in CreateLiquidationAddressInput
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if in.CustomerID == "" || in.ExternalAccountID == "" {
		return fiber.NewError(http.StatusBadRequest, "customer_id and external_account_id are required")
	}
	addr, err := h.service.CreateLiquidationAddress(c.UserContext(), in)
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(http.StatusCreated).JSON(addr)
}

// ListExternalAccounts returns the customer's payout accounts.
func (h *Handler) ListExternalAccounts(c *fiber.Ctx) error {
	accounts, err := h.service.Gateway().ListExternalAccounts(c.UserContext(), c.Params("customerId"))
	if err != nil {
		return h.fail(c, err)
	}
	if accounts == nil {
		accounts = []ExternalAccount{}
	}
	return c.JSON(accounts)
}

// ListLiquidationAddresses returns the customer's liquidation addresses.
func (h *Handler) ListLiquidationAddresses(c *fiber.Ctx) error {
	addrs, err := h.service.Gateway().ListLiquidationAddresses(c.UserContext(), c.Params("customerId"))
	if err != nil {
		return h.fail(c, err)
	}
	if addrs == nil {
		addrs = []LiquidationAddress{}
	}
	return c.JSON(addrs)
}

// Journal returns recorded workflow steps of a customer, newest first.
func (h *Handler) Journal(c *fiber.Ctx) error {
	if h.history == nil {
		return fiber.NewError(http.StatusNotFound, "journal disabled")
	}
	entries, err := h.history.List(c.UserContext(), c.Params("customerId"), c.QueryInt("limit", 0))
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	return c.JSON(entries)
}

type provisionRequest struct {
	CustomerID        string           `json:"customer_id"`
	UserID            string           `json:"user_id"`
	Email             string           `json:"email"`
	FullName          string           `json:"full_name"`
	PhysicalAddress   *PhysicalAddress `json:"physical_address"`
	Form              AccountForm      `json:"account"`
	AccountOwnerName  string           `json:"account_owner_name"`
	ExternalAccountID string           `json:"external_account_id"`
	ChainID           string           `json:"chain_id"`
	TokenAddress      string           `json:"token_address"`
}

// Provision creates the user, account, external account and liquidation address chain.
func (h *Handler) Provision(c *fiber.Ctx) error {
	var req provisionRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.CustomerID == "" {
		return fiber.NewError(http.StatusBadRequest, "customer_id is required")
	}
	in := ProvisionInput{
		CustomerID:        req.CustomerID,
		Email:             req.Email,
		FullName:          req.FullName,
		PhysicalAddress:   req.PhysicalAddress,
		Form:              req.Form,
		AccountOwnerName:  req.AccountOwnerName,
		ExternalAccountID: req.ExternalAccountID,
		ChainID:           req.ChainID,
		TokenAddress:      req.TokenAddress,
	}
	if req.UserID != "" {
		in.ExistingUser = &User{UserID: req.UserID, Email: req.Email, FullName: req.FullName, BridgeCustomerID: req.CustomerID}
	}
	res, err := h.service.Provision(c.UserContext(), in)
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(http.StatusCreated).JSON(res)
}

type awaitRequest struct {
	CustomerID string         `json:"customer_id"`
	Track      Track          `json:"track"`
	Status     ApprovalStatus `json:"status"`
}

// AwaitApproval blocks until a track is approved, parked for review or the wait times out.
func (h *Handler) AwaitApproval(c *fiber.Ctx) error {
	var req awaitRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.CustomerID == "" {
		return fiber.NewError(http.StatusBadRequest, "customer_id is required")
	}
	if req.Track != TrackTOS && req.Track != TrackKYC {
		return fiber.NewError(http.StatusBadRequest, "track must be tos or kyc")
	}

	ctx, cancel := h.waitContext(c.UserContext())
	defer cancel()
	if err := h.service.Poller().AwaitApproval(ctx, req.CustomerID, req.Track, req.Status); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"track": req.Track, "status": StatusApproved})
}

type onboardRequest struct {
	FullName     string      `json:"full_name"`
	Email        string      `json:"email"`
	Form         AccountForm `json:"account"`
	ChainID      string      `json:"chain_id"`
	TokenAddress string      `json:"token_address"`
}

type onboardResponse struct {
	OnboardResult
	Stages []Stage `json:"stages"`
}

// Onboard runs the full flow and reports the stages it went through.
func (h *Handler) Onboard(c *fiber.Ctx) error {
	var req onboardRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.FullName) == "" || strings.TrimSpace(req.Email) == "" {
		return fiber.NewError(http.StatusBadRequest, "full_name and email are required")
	}

	ctx, cancel := h.waitContext(c.UserContext())
	defer cancel()

	stages := []Stage{}
	res, err := h.service.Onboard(ctx, OnboardInput{
		FullName:     req.FullName,
		Email:        req.Email,
		Form:         req.Form,
		ChainID:      req.ChainID,
		TokenAddress: req.TokenAddress,
		Progress:     func(s Stage) { stages = append(stages, s) },
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(http.StatusCreated).JSON(onboardResponse{OnboardResult: res, Stages: stages})
}

type personaRequest struct {
	KYCLink     string `json:"kyc_link"`
	Origin      string `json:"origin"`
	RedirectURI string `json:"redirect_uri"`
}

// PersonaURL converts a KYC link into the embeddable widget URL.
func (h *Handler) PersonaURL(c *fiber.Ctx) error {
	var req personaRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	widget, err := PersonaWidgetURL(req.KYCLink, req.Origin, req.RedirectURI)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(fiber.Map{"url": widget})
}

// Chains lists supported chains and tokens.
func (h *Handler) Chains(c *fiber.Ctx) error {
	return c.JSON(h.service.Chains().Chains())
}

// IBANCountry returns the three-letter country code of an IBAN.
func (h *Handler) IBANCountry(c *fiber.Ctx) error {
	value := c.Params("iban")
	country, err := iban.CountryCode3(value)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(fiber.Map{"iban": iban.Normalize(value), "country": country})
}

func (h *Handler) waitContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if h.waitTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, h.waitTimeout)
}

// fail maps workflow errors onto HTTP responses.
func (h *Handler) fail(c *fiber.Ctx, err error) error {
	var (
		form *FormError
		prov *ProvisioningError
	)
	switch {
	case errors.As(err, &form):
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": ErrValidation.Error(), "errors": form.Fields})
	case errors.Is(err, context.Canceled):
		return fiber.NewError(http.StatusRequestTimeout, "request canceled")
	case errors.As(err, &prov):
		return c.Status(http.StatusBadGateway).JSON(fiber.Map{"error": ErrProvisioning.Error(), "step": prov.Step})
	case errors.Is(err, ErrUnderReview):
		return fiber.NewError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrUnsupportedChain):
		return fiber.NewError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, iban.ErrInvalidIBAN):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrApprovalTimeout), errors.Is(err, context.DeadlineExceeded):
		return fiber.NewError(http.StatusGatewayTimeout, ErrApprovalTimeout.Error())
	default:
		return fiber.NewError(http.StatusBadGateway, "gateway request failed")
	}
}
