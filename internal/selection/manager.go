package selection

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/paylink/offramp/internal/metrics"
)

// Manager owns the in-memory selection of every active account and evicts idle ones.
type Manager struct {
	store   PreferencesStore
	prices  PriceSource
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time

	mu        sync.Mutex
	byAccount map[string]*entry
	hits      uint64
	idleTTL   time.Duration
}

type entry struct {
	state    *State
	lastSeen time.Time
}

// NewManager builds a manager. idleTTL defaults to 30 minutes.
func NewManager(store PreferencesStore, prices PriceSource, idleTTL time.Duration, m *metrics.Metrics, logger *slog.Logger) *Manager {
	if idleTTL <= 0 {
		idleTTL = 30 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:     store,
		prices:    prices,
		metrics:   m,
		logger:    logger,
		now:       time.Now,
		byAccount: make(map[string]*entry),
		idleTTL:   idleTTL,
	}
}

// State returns the account's selection, seeding a new one from stored preferences.
func (m *Manager) State(ctx context.Context, account string) (*State, error) {
	account = accountKey(account)
	now := m.now()

	m.mu.Lock()
	if e, ok := m.byAccount[account]; ok {
		e.lastSeen = now
		m.mu.Unlock()
		return e.state, nil
	}
	m.mu.Unlock()

	prefs, found, err := m.store.Load(ctx, account)
	if err != nil {
		return nil, err
	}
	if !found {
		prefs = DefaultPreferences()
	}
	state := NewState(prefs)
	if err := state.RefreshPrice(ctx, m.prices); err != nil {
		m.logger.WarnContext(ctx, "token price unavailable", slog.Any("error", err))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.byAccount[account]; ok {
		e.lastSeen = now
		return e.state, nil
	}
	m.byAccount[account] = &entry{state: state, lastSeen: now}

	m.hits++
	if m.hits%512 == 0 {
		cutoff := now.Add(-m.idleTTL)
		for k, v := range m.byAccount {
			if v.lastSeen.Before(cutoff) {
				delete(m.byAccount, k)
			}
		}
	}
	m.metrics.SetSelectionStates(len(m.byAccount))
	return state, nil
}

// Update is a partial selection change. Nil fields are left untouched.
type Update struct {
	ChainID       *string       `json:"chain_id"`
	TokenAddress  *string       `json:"token_address"`
	Denomination  *Denomination `json:"input_denomination"`
	RefetchRoute  *bool         `json:"refetch_route"`
	SaveAsDefault bool          `json:"save_as_default"`
}

// Apply changes an account's selection, refreshing the price when token or chain moved.
func (m *Manager) Apply(ctx context.Context, account string, u Update) (Snapshot, error) {
	state, err := m.State(ctx, account)
	if err != nil {
		return Snapshot{}, err
	}

	moved := false
	if u.ChainID != nil {
		state.SetChain(*u.ChainID)
		moved = true
	}
	if u.TokenAddress != nil {
		state.SetToken(*u.TokenAddress)
		moved = true
	}
	if moved {
		if err := state.RefreshPrice(ctx, m.prices); err != nil {
			m.logger.WarnContext(ctx, "token price unavailable", slog.Any("error", err))
		}
	}
	if u.Denomination != nil {
		state.SetDenomination(*u.Denomination)
	}
	if u.RefetchRoute != nil {
		state.SetRefetchRoute(*u.RefetchRoute)
	}

	snap := state.Snapshot()
	if u.SaveAsDefault {
		if err := m.store.Save(ctx, accountKey(account), Preferences{TokenAddress: snap.TokenAddress, ChainID: snap.ChainID}); err != nil {
			return snap, err
		}
	}
	return snap, nil
}

// Reset restores an account's selection to its stored preferences.
func (m *Manager) Reset(ctx context.Context, account string) (Snapshot, error) {
	state, err := m.State(ctx, account)
	if err != nil {
		return Snapshot{}, err
	}
	prefs, found, err := m.store.Load(ctx, accountKey(account))
	if err != nil {
		return Snapshot{}, err
	}
	if !found {
		prefs = DefaultPreferences()
	}
	state.Reset(prefs)
	if err := state.RefreshPrice(ctx, m.prices); err != nil {
		m.logger.WarnContext(ctx, "token price unavailable", slog.Any("error", err))
	}
	return state.Snapshot(), nil
}

// accountKey owns its bytes; callers may pass strings backed by request buffers.
func accountKey(account string) string {
	return strings.Clone(strings.ToLower(strings.TrimSpace(account)))
}

// Len returns the number of states held.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byAccount)
}
