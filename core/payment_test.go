package core

import (
	"context"
	"sync"
	"testing"
	"time"
)

type paymentRecorder struct {
	mu     sync.Mutex
	events []PaymentEvent
}

func (r *paymentRecorder) observe(event PaymentEvent) {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
}

func (r *paymentRecorder) snapshot() []PaymentEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]PaymentEvent(nil), r.events...)
}

func (r *paymentRecorder) sawPhase(phase PaymentPhase) bool {
	for _, event := range r.snapshot() {
		if event.Phase == phase {
			return true
		}
	}
	return false
}

func newTestPayment(t *testing.T, engine *fakeEngine, clock *fakeClock) (*PaymentController, *CardRegistry) {
	t.Helper()
	registry, err := NewCardRegistry(engine, fakeCapabilities{biometric: true}, fakePushTokens{provider: "fcm"}, clock, nil, nil)
	if err != nil {
		t.Fatalf("card registry: %v", err)
	}
	controller, err := NewPaymentController(engine, registry, DefaultConfig().Payment, clock, nil, nil)
	if err != nil {
		t.Fatalf("payment controller: %v", err)
	}
	return controller, registry
}

func seedCards(t *testing.T, engine *fakeEngine, registry *CardRegistry, defaultID string, ids ...string) {
	t.Helper()
	engine.mu.Lock()
	engine.cardIDs = append([]string(nil), ids...)
	for _, id := range ids {
		engine.cardStates[id] = CardStatusActive
	}
	if defaultID != "" {
		engine.defaults[defaultID] = true
	}
	engine.mu.Unlock()
	if _, err := registry.Load(context.Background()); err != nil {
		t.Fatalf("load cards: %v", err)
	}
}

func TestPaymentHappyPath(t *testing.T) {
	engine := newFakeEngine()
	clock := newFakeClock()
	controller, registry := newTestPayment(t, engine, clock)
	seedCards(t, engine, registry, "card-1", "card-1", "card-2")
	recorder := &paymentRecorder{}
	defer controller.Observe(recorder.observe)()

	engine.fireTransaction(TransactionEvent{Kind: TransactionStarted})
	waitFor(t, func() bool { return controller.Session().Phase == PaymentPhaseStarted })
	if got := controller.Session().CardID; got != "card-1" {
		t.Fatalf("expected default card on start, got %q", got)
	}

	engine.fireTransaction(TransactionEvent{
		Kind:         TransactionAuthRequired,
		Amount:       1250,
		CurrencyCode: "EUR",
		AuthMethod:   VerificationMethodBiometric,
	})
	waitFor(t, func() bool { return controller.Session().Phase == PaymentPhaseAuthRequired })

	engine.fireTransaction(TransactionEvent{Kind: TransactionReadyToTap})
	waitFor(t, func() bool { return controller.Session().Phase == PaymentPhaseReadyToTap })

	engine.fireTransaction(TransactionEvent{Kind: TransactionCompleted})
	waitFor(t, func() bool { return controller.Session().Phase == PaymentPhaseCompleted })

	session := controller.Session()
	if session.Amount != 1250 || session.CurrencyCode != "EUR" {
		t.Fatalf("amount/currency lost: %+v", session)
	}
	if !recorder.sawPhase(PaymentPhaseAuthRequired) || !recorder.sawPhase(PaymentPhaseCompleted) {
		t.Fatalf("observer missed phases: %v", recorder.snapshot())
	}
}

func TestPaymentCompletionWithinDebounceWindowWins(t *testing.T) {
	engine := newFakeEngine()
	clock := newFakeClock()
	controller, registry := newTestPayment(t, engine, clock)
	seedCards(t, engine, registry, "card-1", "card-1")
	recorder := &paymentRecorder{}
	defer controller.Observe(recorder.observe)()

	engine.fireTransaction(TransactionEvent{Kind: TransactionStarted})
	engine.fireTransaction(TransactionEvent{Kind: TransactionError, Code: "tap_failed", Message: "interference"})
	// Completion lands inside the debounce window.
	clock.Advance(100 * time.Millisecond)
	engine.fireTransaction(TransactionEvent{Kind: TransactionCompleted})
	clock.Advance(time.Second)

	waitFor(t, func() bool { return controller.Session().Phase == PaymentPhaseCompleted })
	if recorder.sawPhase(PaymentPhaseErrored) {
		t.Fatalf("debounced error must not surface after completion: %v", recorder.snapshot())
	}
}

func TestPaymentErrorPublishedAfterDebounce(t *testing.T) {
	engine := newFakeEngine()
	clock := newFakeClock()
	controller, registry := newTestPayment(t, engine, clock)
	seedCards(t, engine, registry, "card-1", "card-1")
	recorder := &paymentRecorder{}
	defer controller.Observe(recorder.observe)()

	engine.fireTransaction(TransactionEvent{Kind: TransactionStarted})
	engine.fireTransaction(TransactionEvent{Kind: TransactionError, Code: "tap_failed", Message: "interference"})

	if controller.Session().Phase == PaymentPhaseErrored {
		t.Fatalf("error surfaced before the debounce window elapsed")
	}
	clock.Advance(DefaultConfig().Payment.ErrorDebounce)
	waitFor(t, func() bool { return controller.Session().Phase == PaymentPhaseErrored })
}

func TestPaymentCountdownTicksAndTimesOut(t *testing.T) {
	engine := newFakeEngine()
	clock := newFakeClock()
	controller, registry := newTestPayment(t, engine, clock)
	seedCards(t, engine, registry, "card-1", "card-1")
	recorder := &paymentRecorder{}
	defer controller.Observe(recorder.observe)()

	engine.fireTransaction(TransactionEvent{Kind: TransactionStarted})
	engine.fireTransaction(TransactionEvent{Kind: TransactionReadyToTap})
	waitFor(t, func() bool { return controller.Session().Phase == PaymentPhaseReadyToTap })

	countdown := DefaultConfig().Payment.CountdownSeconds
	clock.Advance(time.Second)
	waitFor(t, func() bool {
		for _, event := range recorder.snapshot() {
			if event.Phase == PaymentPhaseReadyToTap && event.CountdownSeconds == countdown-1 {
				return true
			}
		}
		return false
	})

	for i := 0; i < countdown; i++ {
		clock.Advance(time.Second)
	}
	waitFor(t, func() bool { return controller.Session().Phase == PaymentPhaseErrored })

	var terminal PaymentEvent
	for _, event := range recorder.snapshot() {
		if event.Phase == PaymentPhaseErrored {
			terminal = event
		}
	}
	if terminal.Err == nil || terminal.Err.Error() != NewEngineError(EngineErrUnknown, errTapTimeout).Error() {
		t.Fatalf("expected fixed timeout error, got %v", terminal.Err)
	}
}

func TestPaymentCompletionCancelsCountdown(t *testing.T) {
	engine := newFakeEngine()
	clock := newFakeClock()
	controller, registry := newTestPayment(t, engine, clock)
	seedCards(t, engine, registry, "card-1", "card-1")

	engine.fireTransaction(TransactionEvent{Kind: TransactionStarted})
	engine.fireTransaction(TransactionEvent{Kind: TransactionReadyToTap})
	clock.Advance(2 * time.Second)
	engine.fireTransaction(TransactionEvent{Kind: TransactionCompleted})
	waitFor(t, func() bool { return controller.Session().Phase == PaymentPhaseCompleted })

	clock.Advance(60 * time.Second)
	time.Sleep(10 * time.Millisecond)
	if phase := controller.Session().Phase; phase != PaymentPhaseCompleted {
		t.Fatalf("countdown fired after completion: %q", phase)
	}
}

func TestPaymentPhasesNeverRegress(t *testing.T) {
	engine := newFakeEngine()
	clock := newFakeClock()
	controller, registry := newTestPayment(t, engine, clock)
	seedCards(t, engine, registry, "card-1", "card-1")

	engine.fireTransaction(TransactionEvent{Kind: TransactionStarted})
	engine.fireTransaction(TransactionEvent{Kind: TransactionCompleted})
	waitFor(t, func() bool { return controller.Session().Phase == PaymentPhaseCompleted })

	// A stale auth_required after completion must be dropped.
	engine.fireTransaction(TransactionEvent{Kind: TransactionAuthRequired, Amount: 1})
	time.Sleep(10 * time.Millisecond)
	if phase := controller.Session().Phase; phase != PaymentPhaseCompleted {
		t.Fatalf("phase regressed to %q", phase)
	}
}

func TestPaymentNewTapResetsSession(t *testing.T) {
	engine := newFakeEngine()
	clock := newFakeClock()
	controller, registry := newTestPayment(t, engine, clock)
	seedCards(t, engine, registry, "card-1", "card-1")

	engine.fireTransaction(TransactionEvent{Kind: TransactionStarted})
	engine.fireTransaction(TransactionEvent{Kind: TransactionCompleted})
	waitFor(t, func() bool { return controller.Session().Phase == PaymentPhaseCompleted })
	firstID := controller.Session().ID

	engine.fireTransaction(TransactionEvent{Kind: TransactionStarted})
	waitFor(t, func() bool { return controller.Session().Phase == PaymentPhaseStarted })
	if controller.Session().ID == firstID {
		t.Fatalf("expected a fresh session per tap")
	}
}

func TestPaymentInterruptedWithRetriesLeftIsNotTerminal(t *testing.T) {
	engine := newFakeEngine()
	clock := newFakeClock()
	controller, registry := newTestPayment(t, engine, clock)
	seedCards(t, engine, registry, "card-1", "card-1")

	engine.fireTransaction(TransactionEvent{Kind: TransactionStarted})
	engine.fireTransaction(TransactionEvent{Kind: TransactionInterrupted, Code: "field_lost", RetriesLeft: 2})
	clock.Advance(time.Second)
	time.Sleep(10 * time.Millisecond)
	if phase := controller.Session().Phase; phase != PaymentPhaseStarted {
		t.Fatalf("interruption with retries left must not be terminal, got %q", phase)
	}

	engine.fireTransaction(TransactionEvent{Kind: TransactionInterrupted, Code: "field_lost", RetriesLeft: 0})
	clock.Advance(DefaultConfig().Payment.ErrorDebounce)
	waitFor(t, func() bool { return controller.Session().Phase == PaymentPhaseErrored })
}

func TestPaymentNextReadyTriggersReplenishmentCheck(t *testing.T) {
	engine := newFakeEngine()
	clock := newFakeClock()
	controller, registry := newTestPayment(t, engine, clock)
	seedCards(t, engine, registry, "card-1", "card-1")
	engine.mu.Lock()
	engine.needsReplenish["card-1"] = true
	engine.mu.Unlock()

	controller.HandleTransactionEvent(TransactionEvent{Kind: TransactionNextReady, CardID: "card-1"})

	waitFor(t, func() bool {
		engine.mu.Lock()
		defer engine.mu.Unlock()
		return len(engine.replenishCalls) == 1
	})
	engine.mu.Lock()
	defer engine.mu.Unlock()
	call := engine.replenishCalls[0]
	if call.CardID != "card-1" || call.Forced {
		t.Fatalf("unexpected replenishment call %+v", call)
	}
}

func TestPayWithDefaultCardSkipsSwap(t *testing.T) {
	engine := newFakeEngine()
	clock := newFakeClock()
	controller, registry := newTestPayment(t, engine, clock)
	seedCards(t, engine, registry, "card-1", "card-1", "card-2")

	if err := controller.PayWithCard(context.Background(), "card-1"); err != nil {
		t.Fatalf("pay with default card: %v", err)
	}

	engine.mu.Lock()
	defer engine.mu.Unlock()
	if engine.deactivateCalls != 1 {
		t.Fatalf("expected deactivate before payment, got %d", engine.deactivateCalls)
	}
	if engine.authCalls != 1 {
		t.Fatalf("expected 1 authentication, got %d", engine.authCalls)
	}
	if !engine.defaults["card-1"] {
		t.Fatalf("default card must be untouched")
	}
}

func TestPayWithNonDefaultCardSwapsAndRestores(t *testing.T) {
	engine := newFakeEngine()
	clock := newFakeClock()
	controller, registry := newTestPayment(t, engine, clock)
	seedCards(t, engine, registry, "card-1", "card-1", "card-2")
	ctx := context.Background()

	if err := controller.PayWithCard(ctx, "card-2"); err != nil {
		t.Fatalf("pay with card: %v", err)
	}

	engine.mu.Lock()
	swapped := engine.defaults["card-2"]
	engine.mu.Unlock()
	if !swapped {
		t.Fatalf("expected card-2 to be default during authentication")
	}

	engine.fireAuthResult(nil)
	waitFor(t, func() bool {
		engine.mu.Lock()
		defer engine.mu.Unlock()
		return engine.defaults["card-1"]
	})
}

func TestPayWithCardRestoresDefaultOnAuthFailure(t *testing.T) {
	engine := newFakeEngine()
	clock := newFakeClock()
	controller, registry := newTestPayment(t, engine, clock)
	seedCards(t, engine, registry, "card-1", "card-1", "card-2")

	if err := controller.PayWithCard(context.Background(), "card-2"); err != nil {
		t.Fatalf("pay with card: %v", err)
	}

	engine.fireAuthResult(NewEngineError(EngineErrAuthFailed, "verification rejected"))
	waitFor(t, func() bool {
		engine.mu.Lock()
		defer engine.mu.Unlock()
		return engine.defaults["card-1"]
	})
}

func TestPayWithCardRestoresWhenStartAuthenticationFails(t *testing.T) {
	engine := newFakeEngine()
	clock := newFakeClock()
	controller, registry := newTestPayment(t, engine, clock)
	seedCards(t, engine, registry, "card-1", "card-1", "card-2")
	engine.mu.Lock()
	engine.authErr = NewEngineError(EngineErrAuthFailed, "cannot start")
	engine.mu.Unlock()

	if err := controller.PayWithCard(context.Background(), "card-2"); err == nil {
		t.Fatalf("expected authentication start failure")
	}

	engine.mu.Lock()
	defer engine.mu.Unlock()
	if !engine.defaults["card-1"] {
		t.Fatalf("default must be restored when authentication cannot start")
	}
}
