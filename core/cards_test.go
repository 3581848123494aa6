package core

import (
	"context"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

func newTestRegistry(t *testing.T, engine *fakeEngine, capabilities DeviceCapabilities) *CardRegistry {
	t.Helper()
	registry, err := NewCardRegistry(engine, capabilities, fakePushTokens{provider: "fcm"}, newFakeClock(), nil, nil)
	if err != nil {
		t.Fatalf("card registry: %v", err)
	}
	return registry
}

func TestLoadCachesCardsWithEngineStatus(t *testing.T) {
	engine := newFakeEngine()
	engine.cardIDs = []string{"card-1", "card-2"}
	engine.cardStates["card-1"] = CardStatusActive
	engine.cardStates["card-2"] = CardStatusSuspended
	engine.defaults["card-1"] = true
	registry := newTestRegistry(t, engine, fakeCapabilities{biometric: true})

	cards, err := registry.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cards) != 2 {
		t.Fatalf("expected 2 cards, got %d", len(cards))
	}
	if cards[0].Status != CardStatusActive || cards[1].Status != CardStatusSuspended {
		t.Fatalf("statuses not taken from engine: %+v", cards)
	}
	if !cards[0].DefaultForContactless || cards[1].DefaultForContactless {
		t.Fatalf("default flags wrong: %+v", cards)
	}

	cached := registry.Cards()
	if len(cached) != 2 {
		t.Fatalf("expected cached list, got %v", cached)
	}
}

func TestLoadElectsDefaultWhenNoneSet(t *testing.T) {
	engine := newFakeEngine()
	engine.cardIDs = []string{"card-1", "card-2"}
	engine.cardStates["card-1"] = CardStatusActive
	engine.cardStates["card-2"] = CardStatusActive
	registry := newTestRegistry(t, engine, fakeCapabilities{biometric: true})

	cards, err := registry.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cards[0].DefaultForContactless {
		t.Fatalf("expected first card elected default: %+v", cards)
	}
	engine.mu.Lock()
	defer engine.mu.Unlock()
	if !engine.defaults["card-1"] {
		t.Fatalf("election must reach the engine")
	}
}

func TestLoadRecoversFromMissingVerificationMethod(t *testing.T) {
	engine := newFakeEngine()
	engine.cardIDs = []string{"card-1"}
	engine.cardStates["card-1"] = CardStatusActive
	engine.cardsErrs = []error{NewEngineError(EngineErrVerificationMissing, "no method set")}
	registry := newTestRegistry(t, engine, fakeCapabilities{biometric: true, keyguard: true})

	cards, err := registry.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cards) != 1 {
		t.Fatalf("expected recovery to yield cards, got %v", cards)
	}
	engine.mu.Lock()
	defer engine.mu.Unlock()
	if len(engine.verificationMethods) != 1 || engine.verificationMethods[0] != VerificationMethodBiometric {
		t.Fatalf("expected biometric initialization, got %v", engine.verificationMethods)
	}
	if engine.cardsCalls != 2 {
		t.Fatalf("expected exactly one retry, got %d calls", engine.cardsCalls)
	}
}

func TestLoadFallsBackToKeyguard(t *testing.T) {
	engine := newFakeEngine()
	engine.cardIDs = []string{"card-1"}
	engine.cardStates["card-1"] = CardStatusActive
	engine.cardsErrs = []error{NewEngineError(EngineErrVerificationMissing, "no method set")}
	registry := newTestRegistry(t, engine, fakeCapabilities{keyguard: true})

	if _, err := registry.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	engine.mu.Lock()
	defer engine.mu.Unlock()
	if len(engine.verificationMethods) != 1 || engine.verificationMethods[0] != VerificationMethodKeyguard {
		t.Fatalf("expected keyguard initialization, got %v", engine.verificationMethods)
	}
}

func TestLoadFailsOnUnsupportedDevice(t *testing.T) {
	engine := newFakeEngine()
	engine.cardsErrs = []error{NewEngineError(EngineErrVerificationMissing, "no method set")}
	registry := newTestRegistry(t, engine, fakeCapabilities{})

	_, err := registry.Load(context.Background())
	if err == nil {
		t.Fatalf("expected device unsupported failure")
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr.TextCode != WalletErrorDeviceUnsupported {
		t.Fatalf("expected %s, got %v", WalletErrorDeviceUnsupported, err)
	}
	engine.mu.Lock()
	defer engine.mu.Unlock()
	if engine.cardsCalls != 1 {
		t.Fatalf("no retry without a verification method, got %d calls", engine.cardsCalls)
	}
}

func TestLoadChecksReplenishmentPerCard(t *testing.T) {
	engine := newFakeEngine()
	engine.cardIDs = []string{"card-1", "card-2"}
	engine.cardStates["card-1"] = CardStatusActive
	engine.cardStates["card-2"] = CardStatusActive
	engine.defaults["card-1"] = true
	engine.needsReplenish["card-2"] = true
	registry := newTestRegistry(t, engine, fakeCapabilities{biometric: true})

	if _, err := registry.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	engine.mu.Lock()
	defer engine.mu.Unlock()
	if len(engine.replenishCalls) != 1 {
		t.Fatalf("expected 1 replenishment request, got %v", engine.replenishCalls)
	}
	call := engine.replenishCalls[0]
	if call.CardID != "card-2" || call.Forced || call.Provider != "fcm" {
		t.Fatalf("unexpected replenishment call %+v", call)
	}
}

func TestForcedReplenishmentSkipsNeedProbe(t *testing.T) {
	engine := newFakeEngine()
	engine.cardIDs = []string{"card-1"}
	engine.cardStates["card-1"] = CardStatusActive
	registry := newTestRegistry(t, engine, fakeCapabilities{biometric: true})

	if err := registry.CheckReplenishment(context.Background(), "card-1", true); err != nil {
		t.Fatalf("forced replenishment: %v", err)
	}
	engine.mu.Lock()
	defer engine.mu.Unlock()
	if len(engine.replenishCalls) != 1 || !engine.replenishCalls[0].Forced {
		t.Fatalf("expected forced request, got %v", engine.replenishCalls)
	}
}

func TestSetDefaultKeepsSingleDefaultInCache(t *testing.T) {
	engine := newFakeEngine()
	engine.cardIDs = []string{"card-1", "card-2"}
	engine.cardStates["card-1"] = CardStatusActive
	engine.cardStates["card-2"] = CardStatusActive
	engine.defaults["card-1"] = true
	registry := newTestRegistry(t, engine, fakeCapabilities{biometric: true})
	ctx := context.Background()

	if _, err := registry.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := registry.SetDefault(ctx, "card-2", PaymentTypeContactless); err != nil {
		t.Fatalf("set default: %v", err)
	}

	defaults := 0
	for _, card := range registry.Cards() {
		if card.DefaultForContactless {
			defaults++
			if card.ID != "card-2" {
				t.Fatalf("wrong default card %q", card.ID)
			}
		}
	}
	if defaults != 1 {
		t.Fatalf("expected exactly one default, got %d", defaults)
	}
}

func TestSuspendRefreshesCachedStatus(t *testing.T) {
	engine := newFakeEngine()
	engine.cardIDs = []string{"card-1"}
	engine.cardStates["card-1"] = CardStatusActive
	engine.defaults["card-1"] = true
	registry := newTestRegistry(t, engine, fakeCapabilities{biometric: true})
	ctx := context.Background()

	if _, err := registry.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := registry.Suspend(ctx, "card-1"); err != nil {
		t.Fatalf("suspend: %v", err)
	}
	card, ok := registry.Card("card-1")
	if !ok || card.Status != CardStatusSuspended {
		t.Fatalf("cached status not refreshed: %+v", card)
	}

	if err := registry.Resume(ctx, "card-1"); err != nil {
		t.Fatalf("resume: %v", err)
	}
	card, _ = registry.Card("card-1")
	if card.Status != CardStatusActive {
		t.Fatalf("cached status not refreshed after resume: %+v", card)
	}
}

func TestDeleteRemovesCardFromCache(t *testing.T) {
	engine := newFakeEngine()
	engine.cardIDs = []string{"card-1", "card-2"}
	engine.cardStates["card-1"] = CardStatusActive
	engine.cardStates["card-2"] = CardStatusActive
	engine.defaults["card-1"] = true
	registry := newTestRegistry(t, engine, fakeCapabilities{biometric: true})
	ctx := context.Background()

	if _, err := registry.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := registry.Delete(ctx, "card-2"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := registry.Card("card-2"); ok {
		t.Fatalf("card-2 still cached after delete")
	}
	if len(registry.Cards()) != 1 {
		t.Fatalf("expected 1 card, got %v", registry.Cards())
	}
}

func TestDefaultCardIDConsultsEngine(t *testing.T) {
	engine := newFakeEngine()
	engine.cardIDs = []string{"card-1", "card-2"}
	engine.cardStates["card-1"] = CardStatusActive
	engine.cardStates["card-2"] = CardStatusActive
	engine.defaults["card-1"] = true
	registry := newTestRegistry(t, engine, fakeCapabilities{biometric: true})
	ctx := context.Background()

	if _, err := registry.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}

	// The engine's answer wins even when it changed behind the cache.
	engine.mu.Lock()
	engine.defaults["card-1"] = false
	engine.defaults["card-2"] = true
	engine.mu.Unlock()

	if got := registry.DefaultCardID(ctx); got != "card-2" {
		t.Fatalf("expected card-2, got %q", got)
	}
}
