package query

import (
	"context"

	"github.com/goliatone/go-wallet/core"
)

// CardReader is the read-only slice of the wallet service the card queries
// consume. *core.Service satisfies it.
type CardReader interface {
	LoadCards(ctx context.Context) ([]core.Card, error)
	Cards() []core.Card
	Card(cardID string) (core.Card, bool)
	CardDetails(ctx context.Context, cardID string) (core.CardDetails, error)
	DefaultCardID(ctx context.Context) string
}

type StateReader interface {
	InitState() core.InitState
	EnrollmentPhase() core.EnrollmentPhase
	ConsentText() string
	PaymentSession() core.PaymentSession
}

type ListCardsQuery struct {
	reader CardReader
}

func NewListCardsQuery(reader CardReader) *ListCardsQuery {
	return &ListCardsQuery{reader: reader}
}

func (q *ListCardsQuery) Query(ctx context.Context, msg ListCardsMessage) ([]core.Card, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: card reader is required")
	}
	if msg.Refresh {
		return q.reader.LoadCards(ctx)
	}
	return q.reader.Cards(), nil
}

type GetCardQuery struct {
	reader CardReader
}

func NewGetCardQuery(reader CardReader) *GetCardQuery {
	return &GetCardQuery{reader: reader}
}

func (q *GetCardQuery) Query(_ context.Context, msg GetCardMessage) (core.Card, error) {
	if q == nil || q.reader == nil {
		return core.Card{}, queryDependencyError("query: card reader is required")
	}
	card, ok := q.reader.Card(msg.CardID)
	if !ok {
		return core.Card{}, queryNotFoundError(msg.CardID)
	}
	return card, nil
}

type CardDetailsQuery struct {
	reader CardReader
}

func NewCardDetailsQuery(reader CardReader) *CardDetailsQuery {
	return &CardDetailsQuery{reader: reader}
}

func (q *CardDetailsQuery) Query(ctx context.Context, msg CardDetailsMessage) (core.CardDetails, error) {
	if q == nil || q.reader == nil {
		return core.CardDetails{}, queryDependencyError("query: card reader is required")
	}
	return q.reader.CardDetails(ctx, msg.CardID)
}

type DefaultCardQuery struct {
	reader CardReader
}

func NewDefaultCardQuery(reader CardReader) *DefaultCardQuery {
	return &DefaultCardQuery{reader: reader}
}

func (q *DefaultCardQuery) Query(ctx context.Context, _ DefaultCardMessage) (string, error) {
	if q == nil || q.reader == nil {
		return "", queryDependencyError("query: card reader is required")
	}
	return q.reader.DefaultCardID(ctx), nil
}

type InitStateQuery struct {
	reader StateReader
}

func NewInitStateQuery(reader StateReader) *InitStateQuery {
	return &InitStateQuery{reader: reader}
}

func (q *InitStateQuery) Query(context.Context, InitStateMessage) (core.InitState, error) {
	if q == nil || q.reader == nil {
		return core.InitStateInactive, queryDependencyError("query: state reader is required")
	}
	return q.reader.InitState(), nil
}

type EnrollmentPhaseQuery struct {
	reader StateReader
}

func NewEnrollmentPhaseQuery(reader StateReader) *EnrollmentPhaseQuery {
	return &EnrollmentPhaseQuery{reader: reader}
}

func (q *EnrollmentPhaseQuery) Query(context.Context, EnrollmentPhaseMessage) (core.EnrollmentPhase, error) {
	if q == nil || q.reader == nil {
		return "", queryDependencyError("query: state reader is required")
	}
	return q.reader.EnrollmentPhase(), nil
}

type ConsentTextQuery struct {
	reader StateReader
}

func NewConsentTextQuery(reader StateReader) *ConsentTextQuery {
	return &ConsentTextQuery{reader: reader}
}

func (q *ConsentTextQuery) Query(context.Context, ConsentTextMessage) (string, error) {
	if q == nil || q.reader == nil {
		return "", queryDependencyError("query: state reader is required")
	}
	return q.reader.ConsentText(), nil
}

type PaymentSessionQuery struct {
	reader StateReader
}

func NewPaymentSessionQuery(reader StateReader) *PaymentSessionQuery {
	return &PaymentSessionQuery{reader: reader}
}

func (q *PaymentSessionQuery) Query(context.Context, PaymentSessionMessage) (core.PaymentSession, error) {
	if q == nil || q.reader == nil {
		return core.PaymentSession{}, queryDependencyError("query: state reader is required")
	}
	return q.reader.PaymentSession(), nil
}
