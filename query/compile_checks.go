package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-wallet/core"
)

var (
	_ gocmd.Querier[ListCardsMessage, []core.Card]                = (*ListCardsQuery)(nil)
	_ gocmd.Querier[GetCardMessage, core.Card]                    = (*GetCardQuery)(nil)
	_ gocmd.Querier[CardDetailsMessage, core.CardDetails]         = (*CardDetailsQuery)(nil)
	_ gocmd.Querier[DefaultCardMessage, string]                   = (*DefaultCardQuery)(nil)
	_ gocmd.Querier[InitStateMessage, core.InitState]             = (*InitStateQuery)(nil)
	_ gocmd.Querier[EnrollmentPhaseMessage, core.EnrollmentPhase] = (*EnrollmentPhaseQuery)(nil)
	_ gocmd.Querier[ConsentTextMessage, string]                   = (*ConsentTextQuery)(nil)
	_ gocmd.Querier[PaymentSessionMessage, core.PaymentSession]   = (*PaymentSessionQuery)(nil)
)
