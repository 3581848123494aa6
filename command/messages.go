package command

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-wallet/core"
)

const (
	TypeStartBringup       = "wallet.command.bringup.start"
	TypeRetryBringup       = "wallet.command.bringup.retry"
	TypeEnrollCard         = "wallet.command.enrollment.enroll"
	TypeAcceptConsent      = "wallet.command.enrollment.consent.accept"
	TypeDeclineConsent     = "wallet.command.enrollment.consent.decline"
	TypeSelectIdvMethod    = "wallet.command.enrollment.idv.select"
	TypeSubmitOtp          = "wallet.command.enrollment.otp.submit"
	TypeSetDefaultCard     = "wallet.command.cards.set_default"
	TypeSuspendCard        = "wallet.command.cards.suspend"
	TypeResumeCard         = "wallet.command.cards.resume"
	TypeDeleteCard         = "wallet.command.cards.delete"
	TypeCheckReplenishment = "wallet.command.cards.replenish"
	TypePayWithCard        = "wallet.command.payment.pay"
)

type StartBringupMessage struct {
	Origin core.StartOrigin
}

func (StartBringupMessage) Type() string { return TypeStartBringup }

func (m StartBringupMessage) Validate() error {
	switch m.Origin {
	case core.StartOriginAppStart, core.StartOriginFirstTap, core.StartOriginManual:
		return nil
	}
	return fmt.Errorf("command: unknown bring-up origin %q", m.Origin)
}

type RetryBringupMessage struct{}

func (RetryBringupMessage) Type() string { return TypeRetryBringup }

type EnrollCardMessage struct {
	Instrument  core.Instrument
	InputMethod core.InputMethod
}

func (EnrollCardMessage) Type() string { return TypeEnrollCard }

func (m EnrollCardMessage) Validate() error {
	if err := m.Instrument.Validate(); err != nil {
		return fmt.Errorf("command: %w", err)
	}
	return nil
}

type AcceptConsentMessage struct{}

func (AcceptConsentMessage) Type() string { return TypeAcceptConsent }

type DeclineConsentMessage struct{}

func (DeclineConsentMessage) Type() string { return TypeDeclineConsent }

type SelectIdvMethodMessage struct {
	MethodID string
}

func (SelectIdvMethodMessage) Type() string { return TypeSelectIdvMethod }

func (m SelectIdvMethodMessage) Validate() error {
	if strings.TrimSpace(m.MethodID) == "" {
		return commandValidationError("method_id", "idv method id is required")
	}
	return nil
}

type SubmitOtpMessage struct {
	Otp string
}

func (SubmitOtpMessage) Type() string { return TypeSubmitOtp }

type SetDefaultCardMessage struct {
	CardID      string
	PaymentType core.PaymentType
}

func (SetDefaultCardMessage) Type() string { return TypeSetDefaultCard }

func (m SetDefaultCardMessage) Validate() error {
	return validateCardID(m.CardID)
}

type SuspendCardMessage struct {
	CardID string
}

func (SuspendCardMessage) Type() string { return TypeSuspendCard }

func (m SuspendCardMessage) Validate() error {
	return validateCardID(m.CardID)
}

type ResumeCardMessage struct {
	CardID string
}

func (ResumeCardMessage) Type() string { return TypeResumeCard }

func (m ResumeCardMessage) Validate() error {
	return validateCardID(m.CardID)
}

type DeleteCardMessage struct {
	CardID string
}

func (DeleteCardMessage) Type() string { return TypeDeleteCard }

func (m DeleteCardMessage) Validate() error {
	return validateCardID(m.CardID)
}

type CheckReplenishmentMessage struct {
	CardID string
	Forced bool
}

func (CheckReplenishmentMessage) Type() string { return TypeCheckReplenishment }

func (m CheckReplenishmentMessage) Validate() error {
	return validateCardID(m.CardID)
}

type PayWithCardMessage struct {
	CardID string
}

func (PayWithCardMessage) Type() string { return TypePayWithCard }

func (m PayWithCardMessage) Validate() error {
	return validateCardID(m.CardID)
}

func validateCardID(cardID string) error {
	if strings.TrimSpace(cardID) == "" {
		return commandValidationError("card_id", "card id is required")
	}
	return nil
}
