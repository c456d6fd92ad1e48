package selection

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/paylink/offramp/internal/logging"
)

func newRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client)
}

func TestRedisStoreRoundTrip(t *testing.T) {
	store := newRedisStore(t)
	ctx := context.Background()

	if _, found, err := store.Load(ctx, "0xabc"); err != nil || found {
		t.Fatalf("expected miss, got found=%v err=%v", found, err)
	}
	want := Preferences{TokenAddress: baseUSDC, ChainID: "8453"}
	if err := store.Save(ctx, "0xabc", want); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, found, err := store.Load(ctx, "0xabc")
	if err != nil || !found || got != want {
		t.Fatalf("unexpected load %+v found=%v err=%v", got, found, err)
	}
}

func TestManagerSeedsFromPreferences(t *testing.T) {
	store := newRedisStore(t)
	ctx := context.Background()
	_ = store.Save(ctx, "0xabc", Preferences{TokenAddress: baseUSDC, ChainID: "8453"})

	m := NewManager(store, NewStablecoinPrices(nil), time.Minute, nil, logging.Discard())
	state, err := m.State(ctx, "0xABC")
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	snap := state.Snapshot()
	if snap.ChainID != "8453" || snap.Denomination != DenominationUSD {
		t.Fatalf("expected seeded and priced state, got %+v", snap)
	}

	again, _ := m.State(ctx, "0xabc")
	if again != state {
		t.Fatal("expected the same state for the same account")
	}
}

func TestManagerApplyAndReset(t *testing.T) {
	store := NewMemoryStore()
	m := NewManager(store, NewStablecoinPrices(nil), time.Minute, nil, logging.Discard())
	ctx := context.Background()

	chain, token := "8453", baseUSDC
	snap, err := m.Apply(ctx, "0xabc", Update{ChainID: &chain, TokenAddress: &token, SaveAsDefault: true})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if snap.TokenAddress != baseUSDC || snap.TokenPrice == nil {
		t.Fatalf("unexpected snapshot %+v", snap)
	}

	other := "137"
	if _, err := m.Apply(ctx, "0xabc", Update{ChainID: &other}); err != nil {
		t.Fatalf("apply: %v", err)
	}

	snap, err = m.Reset(ctx, "0xabc")
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if snap.ChainID != "8453" || snap.TokenAddress != baseUSDC {
		t.Fatalf("expected reset to saved default, got %+v", snap)
	}
}

func TestManagerEvictsIdleStates(t *testing.T) {
	m := NewManager(NewMemoryStore(), NewStablecoinPrices(nil), time.Minute, nil, logging.Discard())
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	if _, err := m.State(ctx, "stale"); err != nil {
		t.Fatalf("state: %v", err)
	}
	now = now.Add(time.Hour)
	for i := 0; i < 511; i++ {
		if _, err := m.State(ctx, "acct-"+strconv.Itoa(i)); err != nil {
			t.Fatalf("state: %v", err)
		}
	}

	m.mu.Lock()
	_, ok := m.byAccount["stale"]
	m.mu.Unlock()
	if ok {
		t.Fatal("expected idle state to be evicted")
	}
	if m.Len() != 511 {
		t.Fatalf("expected 511 live states, got %d", m.Len())
	}
}
