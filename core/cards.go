package core

import (
	"context"
	"fmt"
	"sync"

	goerrors "github.com/goliatone/go-errors"
)

// CardRegistry owns the cached card list and the single-default invariant.
// Every default-card mutation in the module goes through SetDefault here;
// components that need a temporary swap request it and own the restore.
type CardRegistry struct {
	engine       Engine
	capabilities DeviceCapabilities
	pushTokens   PushTokenProvider
	telemetry    telemetry
	clock        Clock

	mu    sync.Mutex
	cards []Card
}

func NewCardRegistry(
	engine Engine,
	capabilities DeviceCapabilities,
	pushTokens PushTokenProvider,
	clock Clock,
	logger Logger,
	metrics MetricsRecorder,
) (*CardRegistry, error) {
	if engine == nil {
		return nil, fmt.Errorf("core: card registry requires an engine")
	}
	if clock == nil {
		clock = NewSystemClock()
	}
	return &CardRegistry{
		engine:       engine,
		capabilities: capabilities,
		pushTokens:   pushTokens,
		telemetry:    telemetry{logger: logger, metrics: metrics},
		clock:        clock,
	}, nil
}

// Load refreshes the cached card list from the engine. A load rejected for a
// missing verification method initializes the strongest available method and
// retries exactly once; a device with neither biometric nor keyguard support
// is unsuitable and the error is fatal.
func (r *CardRegistry) Load(ctx context.Context) ([]Card, error) {
	if r == nil {
		return nil, fmt.Errorf("core: card registry is nil")
	}
	startedAt := r.clock.Now()

	ids, err := r.engine.Cards(ctx)
	if err != nil && EngineErrorCodeOf(err) == EngineErrVerificationMissing {
		if err = r.initializeVerificationMethod(ctx); err != nil {
			r.telemetry.observeOperation(ctx, startedAt, "cards.load", err, nil)
			return nil, err
		}
		ids, err = r.engine.Cards(ctx)
	}
	if err != nil {
		r.telemetry.observeOperation(ctx, startedAt, "cards.load", err, nil)
		return nil, err
	}

	cards := make([]Card, 0, len(ids))
	for _, id := range ids {
		card := Card{ID: id, DigitalCardID: id, Status: CardStatusUnknown}
		if status, stateErr := r.engine.CardState(ctx, id); stateErr == nil {
			card.Status = status
		}
		if isDefault, defErr := r.engine.IsDefault(ctx, id, PaymentTypeContactless); defErr == nil {
			card.DefaultForContactless = isDefault
		}
		cards = append(cards, card)
	}

	cards = r.electDefault(ctx, cards)

	r.mu.Lock()
	r.cards = append([]Card(nil), cards...)
	r.mu.Unlock()

	for _, card := range cards {
		if err := r.CheckReplenishment(ctx, card.ID, false); err != nil {
			r.telemetry.logError(ctx, "replenishment check failed", map[string]any{
				"card_id": card.ID,
				"error":   err.Error(),
			})
		}
	}

	r.telemetry.observeOperation(ctx, startedAt, "cards.load", nil, map[string]any{
		"count": len(cards),
	})
	return cards, nil
}

func (r *CardRegistry) initializeVerificationMethod(ctx context.Context) error {
	method := VerificationMethodNone
	switch {
	case r.capabilities != nil && r.capabilities.HasBiometric(ctx):
		method = VerificationMethodBiometric
	case r.capabilities != nil && r.capabilities.HasKeyguard(ctx):
		method = VerificationMethodKeyguard
	default:
		return goerrors.New(
			"core: device has no eligible verification method",
			goerrors.CategoryOperation,
		).WithTextCode(WalletErrorDeviceUnsupported)
	}
	if err := r.engine.InitializeVerificationMethod(ctx, method); err != nil {
		return fmt.Errorf("core: initialize verification method %s: %w", method, err)
	}
	r.telemetry.logInfo(ctx, "initialized verification method", map[string]any{
		"method": string(method),
	})
	return nil
}

// electDefault marks the first card default when no card is. Single pass,
// stops at the first engine acknowledgement.
func (r *CardRegistry) electDefault(ctx context.Context, cards []Card) []Card {
	for _, card := range cards {
		if card.DefaultForContactless {
			return cards
		}
	}
	for i, card := range cards {
		if err := r.engine.SetDefault(ctx, card.ID, PaymentTypeContactless); err != nil {
			r.telemetry.logError(ctx, "default election attempt failed", map[string]any{
				"card_id": card.ID,
				"error":   err.Error(),
			})
			continue
		}
		cards[i].DefaultForContactless = true
		break
	}
	return cards
}

// Cards returns the cached list from the last successful Load.
func (r *CardRegistry) Cards() []Card {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Card(nil), r.cards...)
}

// Card returns the cached entry for one card id.
func (r *CardRegistry) Card(cardID string) (Card, bool) {
	if r == nil {
		return Card{}, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, card := range r.cards {
		if card.ID == cardID {
			return card, true
		}
	}
	return Card{}, false
}

// DefaultCardID resolves the current contactless default. This is the one
// deliberate blocking lookup in the module, used when a transaction starts
// and no other card context exists. Consults the engine per cached card and
// does not cache the answer.
func (r *CardRegistry) DefaultCardID(ctx context.Context) string {
	if r == nil {
		return ""
	}
	for _, card := range r.Cards() {
		isDefault, err := r.engine.IsDefault(ctx, card.ID, PaymentTypeContactless)
		if err != nil {
			continue
		}
		if isDefault {
			return card.ID
		}
	}
	return ""
}

// IsDefault asks the engine directly; the answer is never cached because a
// concurrent SetDefault elsewhere could invalidate it.
func (r *CardRegistry) IsDefault(ctx context.Context, cardID string, paymentType PaymentType) (bool, error) {
	if r == nil {
		return false, fmt.Errorf("core: card registry is nil")
	}
	return r.engine.IsDefault(ctx, cardID, paymentType)
}

func (r *CardRegistry) SetDefault(ctx context.Context, cardID string, paymentType PaymentType) error {
	if r == nil {
		return fmt.Errorf("core: card registry is nil")
	}
	if err := r.engine.SetDefault(ctx, cardID, paymentType); err != nil {
		return err
	}
	if paymentType == PaymentTypeContactless {
		r.mu.Lock()
		for i := range r.cards {
			r.cards[i].DefaultForContactless = r.cards[i].ID == cardID
		}
		r.mu.Unlock()
	}
	return nil
}

// CheckReplenishment submits a replenishment request when the card's pool of
// single-use keys is low. A forced check skips the need probe; it is used for
// the gateway push path.
func (r *CardRegistry) CheckReplenishment(ctx context.Context, cardID string, forced bool) error {
	if r == nil {
		return fmt.Errorf("core: card registry is nil")
	}
	if !forced {
		needed, err := r.engine.NeedsKeyReplenishment(ctx, cardID)
		if err != nil {
			return err
		}
		if !needed {
			return nil
		}
	}
	provider := ""
	if r.pushTokens != nil {
		provider = r.pushTokens.Provider()
	}
	return r.engine.RequestKeyReplenishment(ctx, cardID, provider, forced)
}

// Suspend, Resume, and Delete pass through to the engine and refresh the
// cached status from it afterwards; status is never invented locally.

func (r *CardRegistry) Suspend(ctx context.Context, cardID string) error {
	if r == nil {
		return fmt.Errorf("core: card registry is nil")
	}
	return r.mutateCard(ctx, cardID, r.engine.SuspendCard)
}

func (r *CardRegistry) Resume(ctx context.Context, cardID string) error {
	if r == nil {
		return fmt.Errorf("core: card registry is nil")
	}
	return r.mutateCard(ctx, cardID, r.engine.ResumeCard)
}

func (r *CardRegistry) Delete(ctx context.Context, cardID string) error {
	if r == nil {
		return fmt.Errorf("core: card registry is nil")
	}
	if err := r.engine.DeleteCard(ctx, cardID); err != nil {
		return err
	}
	r.mu.Lock()
	kept := r.cards[:0]
	for _, card := range r.cards {
		if card.ID != cardID {
			kept = append(kept, card)
		}
	}
	r.cards = kept
	r.mu.Unlock()
	return nil
}

func (r *CardRegistry) Details(ctx context.Context, cardID string) (CardDetails, error) {
	if r == nil {
		return CardDetails{}, fmt.Errorf("core: card registry is nil")
	}
	return r.engine.CardDetails(ctx, cardID)
}

func (r *CardRegistry) mutateCard(
	ctx context.Context,
	cardID string,
	op func(context.Context, string) error,
) error {
	if r == nil {
		return fmt.Errorf("core: card registry is nil")
	}
	if err := op(ctx, cardID); err != nil {
		return err
	}
	status, err := r.engine.CardState(ctx, cardID)
	if err != nil {
		return nil
	}
	r.mu.Lock()
	for i := range r.cards {
		if r.cards[i].ID == cardID {
			r.cards[i].Status = status
		}
	}
	r.mu.Unlock()
	return nil
}
