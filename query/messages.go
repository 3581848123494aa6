package query

import "strings"

const (
	TypeListCards      = "wallet.query.cards.list"
	TypeGetCard        = "wallet.query.cards.get"
	TypeCardDetails    = "wallet.query.cards.details"
	TypeDefaultCard    = "wallet.query.cards.default"
	TypeInitState      = "wallet.query.bringup.state"
	TypeEnrollment     = "wallet.query.enrollment.phase"
	TypeConsentText    = "wallet.query.enrollment.consent"
	TypePaymentSession = "wallet.query.payment.session"
)

type ListCardsMessage struct {
	// Refresh forces a reload from the engine instead of serving the cache.
	Refresh bool
}

func (ListCardsMessage) Type() string { return TypeListCards }

type GetCardMessage struct {
	CardID string
}

func (GetCardMessage) Type() string { return TypeGetCard }

func (m GetCardMessage) Validate() error {
	return validateCardID(m.CardID)
}

type CardDetailsMessage struct {
	CardID string
}

func (CardDetailsMessage) Type() string { return TypeCardDetails }

func (m CardDetailsMessage) Validate() error {
	return validateCardID(m.CardID)
}

type DefaultCardMessage struct{}

func (DefaultCardMessage) Type() string { return TypeDefaultCard }

type InitStateMessage struct{}

func (InitStateMessage) Type() string { return TypeInitState }

type EnrollmentPhaseMessage struct{}

func (EnrollmentPhaseMessage) Type() string { return TypeEnrollment }

type ConsentTextMessage struct{}

func (ConsentTextMessage) Type() string { return TypeConsentText }

type PaymentSessionMessage struct{}

func (PaymentSessionMessage) Type() string { return TypePaymentSession }

func validateCardID(cardID string) error {
	if strings.TrimSpace(cardID) == "" {
		return queryValidationError("card_id", "card id is required")
	}
	return nil
}
