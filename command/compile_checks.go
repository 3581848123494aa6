package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[StartBringupMessage]       = (*StartBringupCommand)(nil)
	_ gocmd.Commander[RetryBringupMessage]       = (*RetryBringupCommand)(nil)
	_ gocmd.Commander[EnrollCardMessage]         = (*EnrollCardCommand)(nil)
	_ gocmd.Commander[AcceptConsentMessage]      = (*AcceptConsentCommand)(nil)
	_ gocmd.Commander[DeclineConsentMessage]     = (*DeclineConsentCommand)(nil)
	_ gocmd.Commander[SelectIdvMethodMessage]    = (*SelectIdvMethodCommand)(nil)
	_ gocmd.Commander[SubmitOtpMessage]          = (*SubmitOtpCommand)(nil)
	_ gocmd.Commander[SetDefaultCardMessage]     = (*SetDefaultCardCommand)(nil)
	_ gocmd.Commander[SuspendCardMessage]        = (*SuspendCardCommand)(nil)
	_ gocmd.Commander[ResumeCardMessage]         = (*ResumeCardCommand)(nil)
	_ gocmd.Commander[DeleteCardMessage]         = (*DeleteCardCommand)(nil)
	_ gocmd.Commander[CheckReplenishmentMessage] = (*CheckReplenishmentCommand)(nil)
	_ gocmd.Commander[PayWithCardMessage]        = (*PayWithCardCommand)(nil)
)
