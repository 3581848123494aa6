package core

import (
	"context"
	"fmt"
	"sync"
)

// StartOrigin tells the bring-up coordinator what triggered it. With the
// deferred payment experience, an application-start trigger is a no-op and
// bring-up waits for the first tap.
type StartOrigin string

const (
	StartOriginAppStart StartOrigin = "app_start"
	StartOriginFirstTap StartOrigin = "first_tap"
	StartOriginManual   StartOrigin = "manual"
)

// BringupCoordinator drives the engine from uninitialized to ready exactly
// once per session: core init with bounded wipe-and-retry, a delayed gateway
// configuration, then the wallet secure-enrollment handshake for migrated
// devices. Successful is terminal until the process restarts.
type BringupCoordinator struct {
	engine     Engine
	experience PaymentExperience
	cfg        BringupConfig
	clock      Clock
	telemetry  telemetry

	loop       *runLoop
	state      InitState
	lastErr    error
	attempts   int
	retryTimer Timer

	// stateMu guards the published snapshot and observer registry so reads
	// and registrations stay safe from inside observer callbacks.
	stateMu   sync.RWMutex
	published InitState
	observers map[int]BringupObserver
	nextObsID int
}

func NewBringupCoordinator(
	engine Engine,
	experience PaymentExperience,
	cfg BringupConfig,
	clock Clock,
	logger Logger,
	metrics MetricsRecorder,
) (*BringupCoordinator, error) {
	if engine == nil {
		return nil, fmt.Errorf("core: bring-up requires an engine")
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = DefaultConfig().Bringup.MaxAttempts
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = DefaultConfig().Bringup.RetryBackoff
	}
	if cfg.GatewayDelay < 0 {
		cfg.GatewayDelay = DefaultConfig().Bringup.GatewayDelay
	}
	if clock == nil {
		clock = NewSystemClock()
	}
	return &BringupCoordinator{
		engine:     engine,
		experience: experience,
		cfg:        cfg,
		clock:      clock,
		telemetry:  telemetry{logger: logger, metrics: metrics},
		loop:       newRunLoop(),
		state:      InitStateInactive,
		published:  InitStateInactive,
		observers:  map[int]BringupObserver{},
	}, nil
}

// State reads the current init state. Safe from any goroutine, including
// observer callbacks.
func (c *BringupCoordinator) State() InitState {
	if c == nil {
		return InitStateInactive
	}
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.published
}

// Observe registers an observer for every subsequent state transition and
// returns its cancel function. The current state is not replayed.
func (c *BringupCoordinator) Observe(observer BringupObserver) func() {
	if c == nil || observer == nil {
		return func() {}
	}
	c.stateMu.Lock()
	id := c.nextObsID
	c.nextObsID++
	c.observers[id] = observer
	c.stateMu.Unlock()
	return func() {
		c.stateMu.Lock()
		delete(c.observers, id)
		c.stateMu.Unlock()
	}
}

// Start begins bring-up unless it already ran or the deferred experience
// postpones an application-start trigger.
func (c *BringupCoordinator) Start(ctx context.Context, origin StartOrigin) {
	if c == nil {
		return
	}
	c.loop.Do(func() {
		if c.experience == PaymentExperienceDeferred && origin == StartOriginAppStart {
			c.telemetry.logInfo(ctx, "bring-up deferred until first tap", map[string]any{
				"origin": string(origin),
			})
			return
		}
		if c.state == InitStateInProgress || c.state == InitStateSuccessful {
			return
		}
		c.attempts = 0
		c.begin(ctx)
	})
}

// Retry re-enters bring-up after a fatal failure. The attempt counter resets;
// this coordinator never retries fatal failures on its own.
func (c *BringupCoordinator) Retry(ctx context.Context) {
	if c == nil {
		return
	}
	c.loop.Do(func() {
		if c.state != InitStateFailed {
			return
		}
		c.attempts = 0
		c.begin(ctx)
	})
}

// begin runs on the loop.
func (c *BringupCoordinator) begin(ctx context.Context) {
	if err := c.transition(ctx, InitStateInProgress, nil); err != nil {
		return
	}
	c.initializeCore(ctx)
}

func (c *BringupCoordinator) initializeCore(ctx context.Context) {
	go func() {
		err := c.engine.InitializeCore(ctx)
		c.loop.Do(func() { c.onCoreInitResult(ctx, err) })
	}()
}

// onCoreInitResult runs on the loop.
func (c *BringupCoordinator) onCoreInitResult(ctx context.Context, err error) {
	if c.state != InitStateInProgress {
		return
	}
	if err == nil {
		c.scheduleGatewayConfiguration(ctx)
		return
	}

	code := EngineErrorCodeOf(err)
	switch {
	case code == EngineErrInitInProgress:
		// Another caller owns the in-flight initialization.
		c.telemetry.logInfo(ctx, "core init already in progress", nil)
	case code == EngineErrAlreadyInitialized:
		c.scheduleGatewayConfiguration(ctx)
	case transientBringupCode(code):
		c.attempts++
		if c.attempts >= c.cfg.MaxAttempts {
			c.fail(ctx, fmt.Errorf("core: bring-up exhausted %d attempts: %w", c.attempts, err))
			return
		}
		c.telemetry.logInfo(ctx, "core init transient failure, retrying", map[string]any{
			"attempt": c.attempts,
			"code":    string(code),
		})
		c.wipeAndScheduleRetry(ctx)
	default:
		c.fail(ctx, err)
	}
}

func (c *BringupCoordinator) wipeAndScheduleRetry(ctx context.Context) {
	go func() {
		if err := c.engine.WipeStorage(ctx); err != nil {
			c.telemetry.logError(ctx, "wipe of corrupted engine state failed", map[string]any{
				"error": err.Error(),
			})
		}
		c.loop.Do(func() {
			if c.state != InitStateInProgress {
				return
			}
			c.retryTimer = c.clock.AfterFunc(c.cfg.RetryBackoff, func() {
				c.loop.Do(func() {
					if c.state != InitStateInProgress {
						return
					}
					c.initializeCore(ctx)
				})
			})
		})
	}()
}

func (c *BringupCoordinator) scheduleGatewayConfiguration(ctx context.Context) {
	c.clock.AfterFunc(c.cfg.GatewayDelay, func() {
		c.loop.Do(func() {
			if c.state != InitStateInProgress {
				return
			}
			c.configureGateway(ctx)
		})
	})
}

func (c *BringupCoordinator) configureGateway(ctx context.Context) {
	go func() {
		err := c.engine.ConfigureGateway(ctx)
		c.loop.Do(func() {
			if c.state != InitStateInProgress {
				return
			}
			if err != nil && EngineErrorCodeOf(err) != EngineErrAlreadyConfigured {
				c.fail(ctx, err)
				return
			}
			c.runSecureEnrollmentHandshake(ctx)
		})
	}()
}

// runSecureEnrollmentHandshake resolves the migration scenario for devices
// with pre-existing provisioned cards before Successful is published.
func (c *BringupCoordinator) runSecureEnrollmentHandshake(ctx context.Context) {
	go func() {
		state, err := c.engine.WalletSecureEnrollmentState(ctx)
		c.loop.Do(func() {
			if c.state != InitStateInProgress {
				return
			}
			if err != nil {
				c.fail(ctx, err)
				return
			}
			switch state {
			case WseStateNotRequired, WseStateCompleted:
				c.succeed(ctx)
			case WseStateRequired, WseStateStarted:
				// Required initiates; Started joins the in-flight attempt.
				c.startSecureEnrollment(ctx)
			default:
				c.fail(ctx, fmt.Errorf("core: unknown secure enrollment state %q", state))
			}
		})
	}()
}

func (c *BringupCoordinator) startSecureEnrollment(ctx context.Context) {
	listener := func(err error) {
		c.loop.Do(func() {
			if c.state != InitStateInProgress {
				return
			}
			if err != nil {
				c.fail(ctx, err)
				return
			}
			c.succeed(ctx)
		})
	}
	go func() {
		if err := c.engine.StartWalletSecureEnrollment(ctx, listener); err != nil {
			c.loop.Do(func() {
				if c.state != InitStateInProgress {
					return
				}
				c.fail(ctx, err)
			})
		}
	}()
}

// succeed runs on the loop.
func (c *BringupCoordinator) succeed(ctx context.Context) {
	c.cancelRetryTimer()
	_ = c.transition(ctx, InitStateSuccessful, nil)
}

// fail runs on the loop.
func (c *BringupCoordinator) fail(ctx context.Context, err error) {
	c.cancelRetryTimer()
	_ = c.transition(ctx, InitStateFailed, err)
}

func (c *BringupCoordinator) cancelRetryTimer() {
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
}

// transition runs on the loop and publishes (state, err) to all observers.
func (c *BringupCoordinator) transition(ctx context.Context, next InitState, err error) error {
	if !initStateTransitionAllowed(c.state, next) {
		c.telemetry.logError(ctx, "rejected init state transition", map[string]any{
			"from": string(c.state),
			"to":   string(next),
		})
		return fmt.Errorf("%w: %s -> %s", ErrInvalidInitStateTransition, c.state, next)
	}
	c.state = next
	c.lastErr = err
	c.stateMu.Lock()
	c.published = next
	c.stateMu.Unlock()
	c.telemetry.observeOperation(ctx, c.clock.Now(), "bringup.transition", err, map[string]any{
		"state": string(next),
	})
	event := BringupEvent{State: next, Err: err}
	for _, observer := range c.snapshotObservers() {
		observer(event)
	}
	return nil
}

func (c *BringupCoordinator) snapshotObservers() []BringupObserver {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	out := make([]BringupObserver, 0, len(c.observers))
	for _, observer := range c.observers {
		out = append(out, observer)
	}
	return out
}
