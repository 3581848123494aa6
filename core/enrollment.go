package core

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// secretWiper zeroes a buffer holding payment-card-derived material. The
// security package provides the production implementation.
type secretWiper func([]byte)

// EnrollmentCoordinator drives one card from eligibility through consent,
// digitization, and provisioning. At most one session is live; starting a new
// enrollment silently discards the previous one and wipes its activation
// secret. Late callbacks from a superseded session are ignored, never
// applied — the engine exposes no cancel primitive.
type EnrollmentCoordinator struct {
	engine     Engine
	bringup    *BringupCoordinator
	cipher     InstrumentCipher
	device     DeviceInfo
	pushTokens PushTokenProvider
	walletID   string
	locale     string
	wipe       secretWiper
	clock      Clock
	telemetry  telemetry

	loop       *runLoop
	session    *EnrollmentSession
	observer   EnrollmentObserver
	generation uint64

	// snapshotMu guards the read-side projection so Phase and ConsentText
	// stay safe from observer callbacks running on the loop.
	snapshotMu       sync.RWMutex
	publishedPhase   EnrollmentPhase
	publishedConsent string
}

func NewEnrollmentCoordinator(
	engine Engine,
	bringup *BringupCoordinator,
	cipher InstrumentCipher,
	device DeviceInfo,
	pushTokens PushTokenProvider,
	walletID string,
	locale string,
	wipe func([]byte),
	clock Clock,
	logger Logger,
	metrics MetricsRecorder,
) (*EnrollmentCoordinator, error) {
	if engine == nil {
		return nil, fmt.Errorf("core: enrollment requires an engine")
	}
	if bringup == nil {
		return nil, fmt.Errorf("core: enrollment requires the bring-up coordinator")
	}
	if cipher == nil {
		return nil, fmt.Errorf("core: enrollment requires an instrument cipher")
	}
	if wipe == nil {
		wipe = func(b []byte) {
			for i := range b {
				b[i] = 0
			}
		}
	}
	if clock == nil {
		clock = NewSystemClock()
	}
	coordinator := &EnrollmentCoordinator{
		engine:     engine,
		bringup:    bringup,
		cipher:     cipher,
		device:     device,
		pushTokens: pushTokens,
		walletID:   strings.TrimSpace(walletID),
		locale:     strings.TrimSpace(locale),
		wipe:       wipe,
		clock:      clock,
		telemetry:  telemetry{logger: logger, metrics: metrics},
		loop:       newRunLoop(),
	}
	engine.SetProvisioningListener(coordinator.handleProvisioningEvent)
	return coordinator, nil
}

// Phase reports the live session's phase, or inactive.
func (c *EnrollmentCoordinator) Phase() EnrollmentPhase {
	if c == nil {
		return EnrollmentPhaseInactive
	}
	c.snapshotMu.RLock()
	defer c.snapshotMu.RUnlock()
	if c.publishedPhase == "" {
		return EnrollmentPhaseInactive
	}
	return c.publishedPhase
}

// ConsentText returns the pending consent text, or empty outside the
// awaiting-consent state.
func (c *EnrollmentCoordinator) ConsentText() string {
	if c == nil {
		return ""
	}
	c.snapshotMu.RLock()
	defer c.snapshotMu.RUnlock()
	if c.publishedPhase != EnrollmentPhaseAwaitingConsent {
		return ""
	}
	return c.publishedConsent
}

// Enroll starts a new enrollment session and returns its id. Any previous
// session is discarded first, its secret wiped. The eligibility check is
// issued only after bring-up reports Successful.
func (c *EnrollmentCoordinator) Enroll(
	ctx context.Context,
	instrument Instrument,
	inputMethod InputMethod,
	observer EnrollmentObserver,
) (string, error) {
	if c == nil {
		return "", fmt.Errorf("core: enrollment coordinator is nil")
	}
	if err := instrument.Validate(); err != nil {
		return "", err
	}

	sealed, err := c.cipher.Seal(instrument)
	if err != nil {
		return "", fmt.Errorf("core: seal instrument: %w", err)
	}

	sessionID := uuid.NewString()
	c.loop.Do(func() {
		c.resetLocked()
		c.session = &EnrollmentSession{
			ID:        sessionID,
			Phase:     EnrollmentPhaseInactive,
			CreatedAt: c.clock.Now(),
		}
		c.observer = observer
		c.advance(ctx, EnrollmentPhaseWseCheck, EnrollmentEvent{})
		c.awaitReadiness(ctx, c.generation, sealed, inputMethod)
	})
	return sessionID, nil
}

// awaitReadiness runs on the loop. It gates on bring-up success, starting
// bring-up if it has not run yet.
func (c *EnrollmentCoordinator) awaitReadiness(
	ctx context.Context,
	gen uint64,
	sealed []byte,
	inputMethod InputMethod,
) {
	if c.bringup.State() == InitStateSuccessful {
		c.beginEligibility(ctx, gen, sealed, inputMethod)
		return
	}

	var cancel func()
	cancel = c.bringup.Observe(func(event BringupEvent) {
		switch event.State {
		case InitStateSuccessful:
			cancel()
			c.loop.Do(func() {
				if c.generation != gen {
					return
				}
				c.beginEligibility(ctx, gen, sealed, inputMethod)
			})
		case InitStateFailed:
			cancel()
			c.loop.Do(func() {
				if c.generation != gen {
					return
				}
				c.failSession(ctx, fmt.Errorf("core: bring-up failed before eligibility: %w", event.Err))
			})
		}
	})
	c.bringup.Start(ctx, StartOriginManual)
}

// beginEligibility runs on the loop.
func (c *EnrollmentCoordinator) beginEligibility(ctx context.Context, gen uint64, sealed []byte, inputMethod InputMethod) {
	c.advance(ctx, EnrollmentPhaseEligibilityCheck, EnrollmentEvent{})
	go func() {
		serial := ""
		if c.device != nil {
			if s, err := c.device.Serial(ctx); err == nil {
				serial = s
			}
		}
		result, err := c.engine.CheckCardEligibility(ctx, EligibilityRequest{
			EncryptedInstrument: sealed,
			DeviceSerial:        serial,
			Locale:              c.locale,
			InputMethod:         inputMethod,
		})
		c.loop.Do(func() {
			if c.generation != gen {
				return
			}
			if err != nil {
				c.failSession(ctx, err)
				return
			}
			c.session.ConsentText = result.ConsentText
			c.advance(ctx, EnrollmentPhaseAwaitingConsent, EnrollmentEvent{
				ConsentText: result.ConsentText,
				Issuer:      result.Issuer,
			})
		})
	}()
}

// AcceptConsent exchanges the consent for a digitization session. Outside the
// awaiting-consent state this is a logged no-op; state is authoritative, not
// caller intent.
func (c *EnrollmentCoordinator) AcceptConsent(ctx context.Context) {
	if c == nil {
		return
	}
	c.loop.Do(func() {
		if c.session == nil || c.session.Phase != EnrollmentPhaseAwaitingConsent {
			c.telemetry.logInfo(ctx, "consent accept ignored outside awaiting_consent", nil)
			return
		}
		c.session.ConsentText = ""
		c.advance(ctx, EnrollmentPhaseDigitization, EnrollmentEvent{})
		c.digitize(ctx, c.generation)
	})
}

// DeclineConsent resets the session to inactive without contacting the
// engine. A decline is a normal branch, not an error.
func (c *EnrollmentCoordinator) DeclineConsent(ctx context.Context) {
	if c == nil {
		return
	}
	c.loop.Do(func() {
		if c.session == nil || c.session.Phase != EnrollmentPhaseAwaitingConsent {
			c.telemetry.logInfo(ctx, "consent decline ignored outside awaiting_consent", nil)
			return
		}
		c.telemetry.logInfo(ctx, "consent declined", map[string]any{
			"session_id": c.session.ID,
		})
		c.resetLocked()
	})
}

// digitize runs on the loop.
func (c *EnrollmentCoordinator) digitize(ctx context.Context, gen uint64) {
	go func() {
		token, err := c.engine.AcceptConsent(ctx)
		if err != nil {
			c.loop.Do(func() {
				if c.generation != gen {
					return
				}
				c.failSession(ctx, err)
			})
			return
		}
		outcome, err := c.engine.DigitizeCard(ctx, token)
		c.loop.Do(func() {
			if c.generation != gen {
				return
			}
			if err != nil {
				c.failSession(ctx, err)
				return
			}
			c.applyDigitizationOutcome(ctx, gen, outcome)
		})
	}()
}

// applyDigitizationOutcome runs on the loop.
func (c *EnrollmentCoordinator) applyDigitizationOutcome(ctx context.Context, gen uint64, outcome DigitizationOutcome) {
	switch outcome.Kind {
	case DigitizationActivationCode:
		c.session.ActivationSecret = append([]byte(nil), outcome.ActivationCode...)
		c.advance(ctx, EnrollmentPhaseCodeAcquired, EnrollmentEvent{})
		c.branchOnEnrollmentStatus(ctx, gen)
	case DigitizationIdvSelection:
		pending := &PendingActivation{
			Kind:       PendingActivationIdvNotSelected,
			IdvMethods: outcome.IdvMethods,
		}
		c.session.Pending = pending
		c.advance(ctx, EnrollmentPhasePendingActivation, EnrollmentEvent{Pending: pending})
	case DigitizationPendingActivation:
		c.session.Pending = outcome.Pending
		c.advance(ctx, EnrollmentPhasePendingActivation, EnrollmentEvent{Pending: outcome.Pending})
	default:
		c.failSession(ctx, fmt.Errorf("core: unknown digitization outcome %q", outcome.Kind))
	}
}

// SelectIdvMethod resumes a pending activation waiting on identity
// verification selection.
func (c *EnrollmentCoordinator) SelectIdvMethod(ctx context.Context, methodID string) {
	if c == nil {
		return
	}
	c.loop.Do(func() {
		if !c.pendingWithKind(PendingActivationIdvNotSelected) {
			c.telemetry.logInfo(ctx, "idv selection ignored outside pending activation", nil)
			return
		}
		gen := c.generation
		go func() {
			outcome, err := c.engine.SelectIdvMethod(ctx, methodID)
			c.loop.Do(func() {
				if c.generation != gen {
					return
				}
				if err != nil {
					c.failSession(ctx, err)
					return
				}
				c.session.Pending = nil
				c.applyDigitizationOutcome(ctx, gen, outcome)
			})
		}()
	})
}

// SubmitOtp resumes a pending activation waiting on a one-time passcode. An
// empty passcode is a user decline: the session resets silently.
func (c *EnrollmentCoordinator) SubmitOtp(ctx context.Context, otp string) {
	if c == nil {
		return
	}
	c.loop.Do(func() {
		if !c.pendingWithKind(PendingActivationOtpNeeded) {
			c.telemetry.logInfo(ctx, "otp ignored outside pending activation", nil)
			return
		}
		if strings.TrimSpace(otp) == "" {
			c.telemetry.logInfo(ctx, "empty otp, abandoning enrollment", map[string]any{
				"session_id": c.session.ID,
			})
			c.resetLocked()
			return
		}
		gen := c.generation
		go func() {
			outcome, err := c.engine.SubmitActivationOtp(ctx, otp)
			c.loop.Do(func() {
				if c.generation != gen {
					return
				}
				if err != nil {
					c.failSession(ctx, err)
					return
				}
				c.session.Pending = nil
				c.applyDigitizationOutcome(ctx, gen, outcome)
			})
		}()
	})
}

// branchOnEnrollmentStatus runs on the loop once an activation code is held.
func (c *EnrollmentCoordinator) branchOnEnrollmentStatus(ctx context.Context, gen uint64) {
	go func() {
		status, err := c.engine.EnrollmentStatus(ctx)
		c.loop.Do(func() {
			if c.generation != gen {
				return
			}
			if err != nil {
				c.failSession(ctx, err)
				return
			}
			switch status {
			case EnrollmentStatusNeeded:
				c.advance(ctx, EnrollmentPhaseEnrolling, EnrollmentEvent{})
				c.enrollFirstCard(ctx, gen)
			case EnrollmentStatusInProgress:
				c.advance(ctx, EnrollmentPhaseContinuing, EnrollmentEvent{})
				c.runEngineOp(ctx, gen, func() error {
					return c.engine.ContinueEnrollment(ctx, c.locale)
				})
			case EnrollmentStatusComplete:
				// Additional card: the activation code goes straight out.
				c.advance(ctx, EnrollmentPhaseSendingCode, EnrollmentEvent{})
				c.runEngineOp(ctx, gen, func() error {
					return c.engine.SendActivationCode(ctx)
				})
			default:
				c.failSession(ctx, fmt.Errorf("core: unknown enrollment status %q", status))
			}
		})
	}()
}

// enrollFirstCard runs on the loop.
func (c *EnrollmentCoordinator) enrollFirstCard(ctx context.Context, gen uint64) {
	go func() {
		token := ""
		if c.pushTokens != nil {
			t, err := c.pushTokens.Token(ctx)
			if err != nil {
				c.loop.Do(func() {
					if c.generation != gen {
						return
					}
					c.failSession(ctx, fmt.Errorf("core: push token unavailable: %w", err))
				})
				return
			}
			token = t
		}
		err := c.engine.Enroll(ctx, c.walletID, token, c.locale)
		c.loop.Do(func() {
			if c.generation != gen {
				return
			}
			if err != nil {
				c.failSession(ctx, err)
			}
		})
	}()
}

// runEngineOp dispatches op off the loop and fails the session on error.
// Success is not terminal here: completion arrives via the provisioning
// listener.
func (c *EnrollmentCoordinator) runEngineOp(ctx context.Context, gen uint64, op func() error) {
	go func() {
		err := op()
		c.loop.Do(func() {
			if c.generation != gen {
				return
			}
			if err != nil {
				c.failSession(ctx, err)
			}
		})
	}()
}

// handleProvisioningEvent receives engine callbacks during provisioning.
func (c *EnrollmentCoordinator) handleProvisioningEvent(event ProvisioningEvent) {
	if c == nil {
		return
	}
	ctx := context.Background()
	c.loop.Do(func() {
		if c.session == nil {
			return
		}
		switch event.Kind {
		case ProvisioningSecretRequested:
			c.feedActivationSecret(ctx, c.generation)
		case ProvisioningCompleted:
			c.advance(ctx, EnrollmentPhaseFinished, EnrollmentEvent{})
			c.wipeSecretLocked()
		case ProvisioningFailed:
			c.failSession(ctx, NewEngineError(EngineErrorCode(event.Code), event.Message))
		}
	})
}

// feedActivationSecret runs on the loop. The stored code goes into the
// engine's secure input channel byte by byte; the in-memory copy is zeroed
// and dropped immediately afterwards, success or failure.
func (c *EnrollmentCoordinator) feedActivationSecret(ctx context.Context, gen uint64) {
	secret := c.session.ActivationSecret
	c.session.ActivationSecret = nil
	if len(secret) == 0 {
		c.failSession(ctx, fmt.Errorf("core: engine requested activation secret but none is held"))
		return
	}
	go func() {
		var inputErr error
		for _, b := range secret {
			if inputErr = c.engine.InputActivationSecret(ctx, b); inputErr != nil {
				break
			}
		}
		c.wipe(secret)
		c.loop.Do(func() {
			if c.generation != gen {
				return
			}
			if inputErr != nil {
				c.failSession(ctx, inputErr)
			}
		})
	}()
}

// pendingWithKind runs on the loop.
func (c *EnrollmentCoordinator) pendingWithKind(kind PendingActivationKind) bool {
	return c.session != nil &&
		c.session.Phase == EnrollmentPhasePendingActivation &&
		c.session.Pending != nil &&
		c.session.Pending.Kind == kind
}

// advance runs on the loop: applies the transition and publishes the event to
// the session observer.
func (c *EnrollmentCoordinator) advance(ctx context.Context, next EnrollmentPhase, event EnrollmentEvent) {
	if c.session == nil {
		return
	}
	if err := c.session.transitionTo(next); err != nil {
		c.telemetry.logError(ctx, "rejected enrollment transition", map[string]any{
			"session_id": c.session.ID,
			"error":      err.Error(),
		})
		return
	}
	c.telemetry.observeOperation(ctx, c.clock.Now(), "enrollment.transition", event.Err, map[string]any{
		"session_id": c.session.ID,
		"phase":      string(next),
	})
	c.snapshotMu.Lock()
	c.publishedPhase = next
	c.publishedConsent = c.session.ConsentText
	c.snapshotMu.Unlock()
	event.SessionID = c.session.ID
	event.Phase = next
	if c.observer != nil {
		c.observer(event)
	}
}

// failSession runs on the loop.
func (c *EnrollmentCoordinator) failSession(ctx context.Context, err error) {
	if c.session == nil {
		return
	}
	c.session.LastError = err.Error()
	c.wipeSecretLocked()
	c.advance(ctx, EnrollmentPhaseErrored, EnrollmentEvent{
		Err:     err,
		Message: err.Error(),
	})
}

// resetLocked runs on the loop: wipes the secret, drops the session, and
// bumps the generation so late callbacks are ignored.
func (c *EnrollmentCoordinator) resetLocked() {
	c.wipeSecretLocked()
	c.session = nil
	c.observer = nil
	c.generation++
	c.snapshotMu.Lock()
	c.publishedPhase = EnrollmentPhaseInactive
	c.publishedConsent = ""
	c.snapshotMu.Unlock()
}

func (c *EnrollmentCoordinator) wipeSecretLocked() {
	if c.session == nil || len(c.session.ActivationSecret) == 0 {
		return
	}
	c.wipe(c.session.ActivationSecret)
	c.session.ActivationSecret = nil
}
