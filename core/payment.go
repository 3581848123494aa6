package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// errTapTimeout is the fixed message published when the ready-to-tap
// countdown expires without a terminal tap.
const errTapTimeout = "transaction timed out waiting for tap"

// PaymentController owns the life cycle of one contactless transaction. It is
// driven by the engine's transaction callbacks; phases never regress within a
// tap cycle and every new tap resets the session first.
type PaymentController struct {
	engine    Engine
	registry  *CardRegistry
	cfg       PaymentConfig
	clock     Clock
	telemetry telemetry

	loop           *runLoop
	session        PaymentSession
	generation     uint64
	pendingErr     *TransactionEvent
	errTimer       Timer
	countdownTimer Timer

	snapshotMu sync.RWMutex
	published  PaymentSession
	observers  map[int]PaymentObserver
	nextObsID  int
}

func NewPaymentController(
	engine Engine,
	registry *CardRegistry,
	cfg PaymentConfig,
	clock Clock,
	logger Logger,
	metrics MetricsRecorder,
) (*PaymentController, error) {
	if engine == nil {
		return nil, fmt.Errorf("core: payment controller requires an engine")
	}
	if registry == nil {
		return nil, fmt.Errorf("core: payment controller requires the card registry")
	}
	if cfg.ErrorDebounce <= 0 {
		cfg.ErrorDebounce = DefaultConfig().Payment.ErrorDebounce
	}
	if cfg.CountdownSeconds < 1 {
		cfg.CountdownSeconds = DefaultConfig().Payment.CountdownSeconds
	}
	if clock == nil {
		clock = NewSystemClock()
	}
	controller := &PaymentController{
		engine:    engine,
		registry:  registry,
		cfg:       cfg,
		clock:     clock,
		telemetry: telemetry{logger: logger, metrics: metrics},
		loop:      newRunLoop(),
		session:   PaymentSession{Phase: PaymentPhaseNone},
		observers: map[int]PaymentObserver{},
	}
	engine.SetTransactionListener(controller.HandleTransactionEvent)
	return controller, nil
}

// Session returns the last published session snapshot.
func (c *PaymentController) Session() PaymentSession {
	if c == nil {
		return PaymentSession{Phase: PaymentPhaseNone}
	}
	c.snapshotMu.RLock()
	defer c.snapshotMu.RUnlock()
	if c.published.Phase == "" {
		return PaymentSession{Phase: PaymentPhaseNone}
	}
	return c.published
}

// Observe registers a payment observer and returns its cancel function.
func (c *PaymentController) Observe(observer PaymentObserver) func() {
	if c == nil || observer == nil {
		return func() {}
	}
	c.snapshotMu.Lock()
	id := c.nextObsID
	c.nextObsID++
	c.observers[id] = observer
	c.snapshotMu.Unlock()
	return func() {
		c.snapshotMu.Lock()
		delete(c.observers, id)
		c.snapshotMu.Unlock()
	}
}

// HandleTransactionEvent is the engine's transaction callback entry point.
// Events may arrive on any thread; they are applied on the controller's loop.
func (c *PaymentController) HandleTransactionEvent(event TransactionEvent) {
	if c == nil {
		return
	}
	ctx := context.Background()
	c.loop.Do(func() {
		switch event.Kind {
		case TransactionStarted:
			c.onStarted(ctx)
		case TransactionAuthRequired:
			c.onAuthRequired(ctx, event)
		case TransactionReadyToTap:
			c.onReadyToTap(ctx)
		case TransactionCompleted:
			c.onCompleted(ctx, event)
		case TransactionError:
			c.onError(ctx, event)
		case TransactionInterrupted:
			c.onInterrupted(ctx, event)
		case TransactionNextReady:
			c.onNextReady(ctx, event)
		default:
			c.telemetry.logInfo(ctx, "ignoring unknown transaction event", map[string]any{
				"kind": string(event.Kind),
			})
		}
	})
}

// onStarted runs on the loop. A new tap cycle always resets first.
func (c *PaymentController) onStarted(ctx context.Context) {
	c.cancelTimersLocked()
	c.generation++
	c.pendingErr = nil
	c.session = PaymentSession{
		ID:    uuid.NewString(),
		Phase: PaymentPhaseNone,
	}
	// Deliberate blocking lookup: the only card context at tap time is the
	// current contactless default.
	c.session.CardID = c.registry.DefaultCardID(ctx)
	c.applyPhase(ctx, PaymentPhaseStarted, PaymentEvent{})
}

// onAuthRequired runs on the loop.
func (c *PaymentController) onAuthRequired(ctx context.Context, event TransactionEvent) {
	c.session.Amount = event.Amount
	c.session.CurrencyCode = event.CurrencyCode
	c.applyPhase(ctx, PaymentPhaseAuthRequired, PaymentEvent{
		AuthMethod: event.AuthMethod,
	})
}

// onReadyToTap runs on the loop and starts the countdown. Each tick publishes
// the remaining seconds; expiry is a terminal error with a fixed message.
func (c *PaymentController) onReadyToTap(ctx context.Context) {
	c.session.CountdownSeconds = c.cfg.CountdownSeconds
	c.applyPhase(ctx, PaymentPhaseReadyToTap, PaymentEvent{
		CountdownSeconds: c.session.CountdownSeconds,
	})
	c.scheduleCountdownTick(ctx, c.generation)
}

func (c *PaymentController) scheduleCountdownTick(ctx context.Context, gen uint64) {
	c.countdownTimer = c.clock.AfterFunc(time.Second, func() {
		c.loop.Do(func() {
			if c.generation != gen || c.session.Phase != PaymentPhaseReadyToTap {
				return
			}
			c.session.CountdownSeconds--
			if c.session.CountdownSeconds <= 0 {
				c.failLocked(ctx, NewEngineError(EngineErrUnknown, errTapTimeout))
				return
			}
			c.publish(PaymentEvent{
				Phase:            PaymentPhaseReadyToTap,
				CountdownSeconds: c.session.CountdownSeconds,
			})
			c.scheduleCountdownTick(ctx, gen)
		})
	})
}

// onCompleted runs on the loop. A queued error inside the debounce window is
// cancelled and dropped.
func (c *PaymentController) onCompleted(ctx context.Context, event TransactionEvent) {
	c.cancelTimersLocked()
	c.pendingErr = nil
	if event.Amount != 0 {
		c.session.Amount = event.Amount
	}
	if event.CurrencyCode != "" {
		c.session.CurrencyCode = event.CurrencyCode
	}
	if event.CardID != "" {
		c.session.CardID = event.CardID
	}
	c.applyPhase(ctx, PaymentPhaseCompleted, PaymentEvent{})
}

// onError runs on the loop. Publication is delayed by the debounce window to
// absorb the known race where an error lands adjacent to the completion
// event; a completion arriving inside the window wins.
func (c *PaymentController) onError(ctx context.Context, event TransactionEvent) {
	if c.session.Phase == PaymentPhaseCompleted || c.session.Phase == PaymentPhaseErrored {
		return
	}
	queued := event
	c.pendingErr = &queued
	gen := c.generation
	c.errTimer = c.clock.AfterFunc(c.cfg.ErrorDebounce, func() {
		c.loop.Do(func() {
			if c.generation != gen || c.pendingErr == nil {
				return
			}
			pending := *c.pendingErr
			c.pendingErr = nil
			code := EngineErrorCode(pending.Code)
			if code == "" {
				code = EngineErrUnknown
			}
			c.failLocked(ctx, NewEngineError(code, pending.Message))
		})
	})
}

// onInterrupted runs on the loop. The engine retries the tap on its own while
// retries remain; only an exhausted interruption is terminal.
func (c *PaymentController) onInterrupted(ctx context.Context, event TransactionEvent) {
	if event.RetriesLeft > 0 {
		c.telemetry.logInfo(ctx, "transaction interrupted, engine will retry", map[string]any{
			"code":         event.Code,
			"retries_left": event.RetriesLeft,
		})
		return
	}
	c.onError(ctx, event)
}

// onNextReady runs on the loop: post-transaction housekeeping with a
// refreshed card status triggers an opportunistic replenishment check.
func (c *PaymentController) onNextReady(ctx context.Context, event TransactionEvent) {
	if event.CardID == "" {
		return
	}
	go func() {
		if err := c.registry.CheckReplenishment(ctx, event.CardID, false); err != nil {
			c.telemetry.logError(ctx, "post-transaction replenishment check failed", map[string]any{
				"card_id": event.CardID,
				"error":   err.Error(),
			})
		}
	}()
}

// PayWithCard starts an authenticated payment with an explicitly chosen card.
// When the card is not the current default, the controller swaps it in for
// the duration of the authentication and always restores the original
// default afterwards, success or failure. Restoration errors are logged,
// never surfaced.
func (c *PaymentController) PayWithCard(ctx context.Context, cardID string) error {
	if c == nil {
		return fmt.Errorf("core: payment controller is nil")
	}
	if cardID == "" {
		return fmt.Errorf("core: card id is required")
	}

	if err := c.engine.Deactivate(ctx); err != nil {
		c.telemetry.logError(ctx, "deactivate before manual payment failed", map[string]any{
			"error": err.Error(),
		})
	}

	isDefault, err := c.registry.IsDefault(ctx, cardID, PaymentTypeContactless)
	if err != nil {
		return err
	}
	if isDefault {
		return c.engine.StartAuthentication(ctx, func(error) {}, PaymentTypeContactless)
	}

	originalID := c.registry.DefaultCardID(ctx)
	if err := c.registry.SetDefault(ctx, cardID, PaymentTypeContactless); err != nil {
		return err
	}

	restore := func() {
		if originalID == "" || originalID == cardID {
			return
		}
		if err := c.registry.SetDefault(ctx, originalID, PaymentTypeContactless); err != nil {
			c.telemetry.logError(ctx, "restoring default card failed", map[string]any{
				"card_id": originalID,
				"error":   err.Error(),
			})
		}
	}

	listener := func(authErr error) {
		// Compensating action: runs on completion and on error alike.
		restore()
		if authErr != nil {
			c.telemetry.logError(ctx, "manual payment authentication failed", map[string]any{
				"card_id": cardID,
				"error":   authErr.Error(),
			})
		}
	}

	if err := c.engine.StartAuthentication(ctx, listener, PaymentTypeContactless); err != nil {
		restore()
		return err
	}
	return nil
}

// applyPhase runs on the loop.
func (c *PaymentController) applyPhase(ctx context.Context, next PaymentPhase, event PaymentEvent) {
	if err := c.session.transitionTo(next); err != nil {
		c.telemetry.logError(ctx, "rejected payment transition", map[string]any{
			"session_id": c.session.ID,
			"error":      err.Error(),
		})
		return
	}
	c.telemetry.observeOperation(ctx, c.clock.Now(), "payment.transition", event.Err, map[string]any{
		"session_id": c.session.ID,
		"phase":      string(next),
	})
	c.publish(event)
}

// failLocked runs on the loop.
func (c *PaymentController) failLocked(ctx context.Context, err error) {
	c.cancelTimersLocked()
	if applyErr := c.session.transitionTo(PaymentPhaseErrored); applyErr != nil {
		return
	}
	c.telemetry.observeOperation(ctx, c.clock.Now(), "payment.transition", err, map[string]any{
		"session_id": c.session.ID,
		"phase":      string(PaymentPhaseErrored),
	})
	c.publish(PaymentEvent{Err: err})
}

// publish runs on the loop.
func (c *PaymentController) publish(event PaymentEvent) {
	event.SessionID = c.session.ID
	if event.Phase == "" {
		event.Phase = c.session.Phase
	}
	if event.Amount == 0 {
		event.Amount = c.session.Amount
	}
	if event.CurrencyCode == "" {
		event.CurrencyCode = c.session.CurrencyCode
	}
	if event.CardID == "" {
		event.CardID = c.session.CardID
	}

	c.snapshotMu.Lock()
	c.published = c.session
	observers := make([]PaymentObserver, 0, len(c.observers))
	for _, observer := range c.observers {
		observers = append(observers, observer)
	}
	c.snapshotMu.Unlock()

	for _, observer := range observers {
		observer(event)
	}
}

// cancelTimersLocked runs on the loop.
func (c *PaymentController) cancelTimersLocked() {
	if c.errTimer != nil {
		c.errTimer.Stop()
		c.errTimer = nil
	}
	if c.countdownTimer != nil {
		c.countdownTimer.Stop()
		c.countdownTimer = nil
	}
}
