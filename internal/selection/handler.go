package selection

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes the selection endpoints.
type Handler struct {
	manager *Manager
}

// NewHandler constructs a selection handler.
func NewHandler(manager *Manager) *Handler {
	return &Handler{manager: manager}
}

// Get returns the account's current selection.
func (h *Handler) Get(c *fiber.Ctx) error {
	account, err := h.account(c)
	if err != nil {
		return err
	}
	state, err := h.manager.State(c.UserContext(), account)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(state.Snapshot())
}

// Put applies a partial update.
func (h *Handler) Put(c *fiber.Ctx) error {
	account, err := h.account(c)
	if err != nil {
		return err
	}
	var u Update
	if err := c.BodyParser(&u); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if u.Denomination != nil && *u.Denomination != DenominationUSD && *u.Denomination != DenominationToken {
		return fiber.NewError(http.StatusBadRequest, "input_denomination must be USD or TOKEN")
	}
	if u.ChainID != nil && strings.TrimSpace(*u.ChainID) == "" {
		return fiber.NewError(http.StatusBadRequest, "chain_id must not be empty")
	}
	if u.TokenAddress != nil && strings.TrimSpace(*u.TokenAddress) == "" {
		return fiber.NewError(http.StatusBadRequest, "token_address must not be empty")
	}

	snap, err := h.manager.Apply(c.UserContext(), account, u)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(snap)
}

// Reset restores stored preferences.
func (h *Handler) Reset(c *fiber.Ctx) error {
	account, err := h.account(c)
	if err != nil {
		return err
	}
	snap, err := h.manager.Reset(c.UserContext(), account)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(snap)
}

func (h *Handler) account(c *fiber.Ctx) (string, error) {
	account := strings.TrimSpace(strings.Clone(c.Params("account")))
	if account == "" {
		return "", fiber.NewError(http.StatusBadRequest, "account is required")
	}
	if subject, _ := c.Locals("user_id").(string); subject != "" && !strings.EqualFold(subject, account) {
		return "", fiber.NewError(http.StatusForbidden, "account does not belong to caller")
	}
	return account, nil
}
