package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidInitStateTransition  = errors.New("core: invalid init state transition")
	ErrInvalidEnrollmentTransition = errors.New("core: invalid enrollment phase transition")
	ErrPaymentPhaseRegression      = errors.New("core: payment phase regression")
	ErrInvalidCardStatus           = errors.New("core: invalid card status")
)

// InitState tracks engine bring-up. It is mutated only by the
// BringupCoordinator; every other component reads it as a readiness gate.
type InitState string

const (
	InitStateInactive   InitState = "inactive"
	InitStateInProgress InitState = "in_progress"
	InitStateSuccessful InitState = "successful"
	InitStateFailed     InitState = "failed"
)

func initStateTransitionAllowed(current, next InitState) bool {
	allowed := map[InitState]map[InitState]struct{}{
		InitStateInactive: {
			InitStateInProgress: {},
		},
		InitStateInProgress: {
			InitStateSuccessful: {},
			InitStateFailed:     {},
		},
		InitStateFailed: {
			InitStateInProgress: {},
		},
	}
	_, ok := allowed[current][next]
	return ok
}

type CardStatus string

const (
	CardStatusActive    CardStatus = "active"
	CardStatusSuspended CardStatus = "suspended"
	CardStatusRetired   CardStatus = "retired"
	CardStatusUnknown   CardStatus = "unknown"
)

func ParseCardStatus(raw string) (CardStatus, error) {
	status := CardStatus(strings.ToLower(strings.TrimSpace(raw)))
	switch status {
	case CardStatusActive, CardStatusSuspended, CardStatusRetired, CardStatusUnknown:
		return status, nil
	}
	return CardStatusUnknown, fmt.Errorf("%w: %q", ErrInvalidCardStatus, raw)
}

type PaymentType string

const (
	PaymentTypeContactless PaymentType = "contactless"
	PaymentTypeRemote      PaymentType = "remote"
)

// Card is the cached projection of one provisioned card. Status always comes
// from the engine; it is refreshed on demand, never invented locally.
type Card struct {
	ID                    string
	DigitalCardID         string
	Status                CardStatus
	DefaultForContactless bool
	PendingActivation     bool
}

// Instrument holds the cleartext card data submitted for eligibility.
// Callers own the values until the cipher seals them.
type Instrument struct {
	PAN         string
	ExpiryMonth int
	ExpiryYear  int
	CVV         string
	HolderName  string
}

func (i Instrument) Validate() error {
	if strings.TrimSpace(i.PAN) == "" {
		return fmt.Errorf("core: instrument pan is required")
	}
	if i.ExpiryMonth < 1 || i.ExpiryMonth > 12 {
		return fmt.Errorf("core: instrument expiry month out of range")
	}
	if i.ExpiryYear <= 0 {
		return fmt.Errorf("core: instrument expiry year is required")
	}
	return nil
}

// InputMethod tags how the instrument data entered the device.
type InputMethod string

const (
	InputMethodManual InputMethod = "manual"
	InputMethodOCR    InputMethod = "ocr"
	InputMethodIntent InputMethod = "intent"
)

type EnrollmentPhase string

const (
	EnrollmentPhaseInactive          EnrollmentPhase = "inactive"
	EnrollmentPhaseWseCheck          EnrollmentPhase = "wse_check"
	EnrollmentPhaseEligibilityCheck  EnrollmentPhase = "eligibility_check"
	EnrollmentPhaseAwaitingConsent   EnrollmentPhase = "awaiting_consent"
	EnrollmentPhaseDigitization      EnrollmentPhase = "digitization"
	EnrollmentPhaseCodeAcquired      EnrollmentPhase = "activation_code_acquired"
	EnrollmentPhaseEnrolling         EnrollmentPhase = "enrolling"
	EnrollmentPhaseContinuing        EnrollmentPhase = "continuing"
	EnrollmentPhaseSendingCode       EnrollmentPhase = "sending_activation_code"
	EnrollmentPhasePendingActivation EnrollmentPhase = "pending_activation"
	EnrollmentPhaseFinished          EnrollmentPhase = "finished"
	EnrollmentPhaseErrored           EnrollmentPhase = "errored"
)

func enrollmentTransitionAllowed(current, next EnrollmentPhase) bool {
	if next == EnrollmentPhaseErrored {
		return current != EnrollmentPhaseInactive && current != EnrollmentPhaseFinished
	}
	allowed := map[EnrollmentPhase]map[EnrollmentPhase]struct{}{
		EnrollmentPhaseInactive: {
			EnrollmentPhaseWseCheck: {},
		},
		EnrollmentPhaseWseCheck: {
			EnrollmentPhaseEligibilityCheck: {},
		},
		EnrollmentPhaseEligibilityCheck: {
			EnrollmentPhaseAwaitingConsent: {},
		},
		EnrollmentPhaseAwaitingConsent: {
			EnrollmentPhaseDigitization: {},
			EnrollmentPhaseInactive:     {},
		},
		EnrollmentPhaseDigitization: {
			EnrollmentPhaseCodeAcquired:      {},
			EnrollmentPhasePendingActivation: {},
		},
		EnrollmentPhasePendingActivation: {
			EnrollmentPhaseDigitization: {},
			EnrollmentPhaseCodeAcquired: {},
			EnrollmentPhaseInactive:     {},
		},
		EnrollmentPhaseCodeAcquired: {
			EnrollmentPhaseEnrolling:   {},
			EnrollmentPhaseContinuing:  {},
			EnrollmentPhaseSendingCode: {},
		},
		EnrollmentPhaseEnrolling: {
			EnrollmentPhaseFinished: {},
		},
		EnrollmentPhaseContinuing: {
			EnrollmentPhaseFinished: {},
		},
		EnrollmentPhaseSendingCode: {
			EnrollmentPhaseFinished: {},
		},
	}
	_, ok := allowed[current][next]
	return ok
}

// PendingActivationKind names the deferred-activation branch reached when
// digitization yields a pending-activation object instead of a code.
type PendingActivationKind string

const (
	PendingActivationIdvNotSelected PendingActivationKind = "idv_method_not_selected"
	PendingActivationOtpNeeded      PendingActivationKind = "otp_needed"
	PendingActivationWeb3ds         PendingActivationKind = "web3ds"
	PendingActivationApp2App        PendingActivationKind = "app2app"
)

// Supported reports whether this layer can advance the pending-activation
// branch on device. Web 3DS and app-to-app hand-offs are surfaced but never
// driven here.
func (k PendingActivationKind) Supported() bool {
	return k == PendingActivationIdvNotSelected || k == PendingActivationOtpNeeded
}

// EnrollmentSession is the single live enrollment. Starting a new enrollment
// discards the previous session and wipes any held activation secret.
type EnrollmentSession struct {
	ID               string
	Phase            EnrollmentPhase
	ConsentText      string
	ActivationSecret []byte
	Pending          *PendingActivation
	LastError        string
	CreatedAt        time.Time
}

func (s *EnrollmentSession) transitionTo(next EnrollmentPhase) error {
	if s == nil {
		return nil
	}
	if s.Phase == next {
		return nil
	}
	if !enrollmentTransitionAllowed(s.Phase, next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidEnrollmentTransition, s.Phase, next)
	}
	s.Phase = next
	return nil
}

type PaymentPhase string

const (
	PaymentPhaseNone         PaymentPhase = "none"
	PaymentPhaseStarted      PaymentPhase = "transaction_started"
	PaymentPhaseAuthRequired PaymentPhase = "authentication_required"
	PaymentPhaseReadyToTap   PaymentPhase = "ready_to_tap"
	PaymentPhaseCompleted    PaymentPhase = "transaction_completed"
	PaymentPhaseErrored      PaymentPhase = "errored"
)

// paymentPhaseRank orders phases within one tap cycle. Transitions never
// regress; a new tap first resets the session to PaymentPhaseNone.
var paymentPhaseRank = map[PaymentPhase]int{
	PaymentPhaseNone:         0,
	PaymentPhaseStarted:      1,
	PaymentPhaseAuthRequired: 2,
	PaymentPhaseReadyToTap:   3,
	PaymentPhaseCompleted:    4,
	PaymentPhaseErrored:      4,
}

// PaymentSession is the transient state of one contactless transaction.
type PaymentSession struct {
	ID               string
	Amount           int64
	CurrencyCode     string
	CardID           string
	Phase            PaymentPhase
	CountdownSeconds int
}

func (s *PaymentSession) transitionTo(next PaymentPhase) error {
	if s == nil {
		return nil
	}
	if next == PaymentPhaseNone {
		s.Phase = PaymentPhaseNone
		return nil
	}
	if paymentPhaseRank[next] < paymentPhaseRank[s.Phase] {
		return fmt.Errorf("%w: %s -> %s", ErrPaymentPhaseRegression, s.Phase, next)
	}
	s.Phase = next
	return nil
}
