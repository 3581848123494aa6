package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-wallet/core"
)

// MutatingService is the slice of the wallet service the commands mutate
// through. *core.Service satisfies it.
type MutatingService interface {
	Start(ctx context.Context, origin core.StartOrigin)
	RetryBringup(ctx context.Context)
	EnrollCard(ctx context.Context, instrument core.Instrument, inputMethod core.InputMethod, observer core.EnrollmentObserver) (string, error)
	AcceptConsent(ctx context.Context)
	DeclineConsent(ctx context.Context)
	SelectIdvMethod(ctx context.Context, methodID string)
	SubmitOtp(ctx context.Context, otp string)
	SetDefaultCard(ctx context.Context, cardID string, paymentType core.PaymentType) error
	SuspendCard(ctx context.Context, cardID string) error
	ResumeCard(ctx context.Context, cardID string) error
	DeleteCard(ctx context.Context, cardID string) error
	CheckReplenishment(ctx context.Context, cardID string, forced bool) error
	PayWithCard(ctx context.Context, cardID string) error
}

type StartBringupCommand struct {
	service MutatingService
}

func NewStartBringupCommand(service MutatingService) *StartBringupCommand {
	return &StartBringupCommand{service: service}
}

func (c *StartBringupCommand) Execute(ctx context.Context, msg StartBringupMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: bring-up service is required")
	}
	c.service.Start(ctx, msg.Origin)
	return nil
}

type RetryBringupCommand struct {
	service MutatingService
}

func NewRetryBringupCommand(service MutatingService) *RetryBringupCommand {
	return &RetryBringupCommand{service: service}
}

func (c *RetryBringupCommand) Execute(ctx context.Context, _ RetryBringupMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: bring-up service is required")
	}
	c.service.RetryBringup(ctx)
	return nil
}

type EnrollCardCommand struct {
	service MutatingService
}

func NewEnrollCardCommand(service MutatingService) *EnrollCardCommand {
	return &EnrollCardCommand{service: service}
}

// Execute starts the enrollment and stores the session id for the caller.
func (c *EnrollCardCommand) Execute(ctx context.Context, msg EnrollCardMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: enrollment service is required")
	}
	sessionID, err := c.service.EnrollCard(ctx, msg.Instrument, msg.InputMethod, nil)
	if err != nil {
		return err
	}
	storeResult(ctx, sessionID)
	return nil
}

type AcceptConsentCommand struct {
	service MutatingService
}

func NewAcceptConsentCommand(service MutatingService) *AcceptConsentCommand {
	return &AcceptConsentCommand{service: service}
}

func (c *AcceptConsentCommand) Execute(ctx context.Context, _ AcceptConsentMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: enrollment service is required")
	}
	c.service.AcceptConsent(ctx)
	return nil
}

type DeclineConsentCommand struct {
	service MutatingService
}

func NewDeclineConsentCommand(service MutatingService) *DeclineConsentCommand {
	return &DeclineConsentCommand{service: service}
}

func (c *DeclineConsentCommand) Execute(ctx context.Context, _ DeclineConsentMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: enrollment service is required")
	}
	c.service.DeclineConsent(ctx)
	return nil
}

type SelectIdvMethodCommand struct {
	service MutatingService
}

func NewSelectIdvMethodCommand(service MutatingService) *SelectIdvMethodCommand {
	return &SelectIdvMethodCommand{service: service}
}

func (c *SelectIdvMethodCommand) Execute(ctx context.Context, msg SelectIdvMethodMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: enrollment service is required")
	}
	c.service.SelectIdvMethod(ctx, msg.MethodID)
	return nil
}

type SubmitOtpCommand struct {
	service MutatingService
}

func NewSubmitOtpCommand(service MutatingService) *SubmitOtpCommand {
	return &SubmitOtpCommand{service: service}
}

func (c *SubmitOtpCommand) Execute(ctx context.Context, msg SubmitOtpMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: enrollment service is required")
	}
	c.service.SubmitOtp(ctx, msg.Otp)
	return nil
}

type SetDefaultCardCommand struct {
	service MutatingService
}

func NewSetDefaultCardCommand(service MutatingService) *SetDefaultCardCommand {
	return &SetDefaultCardCommand{service: service}
}

func (c *SetDefaultCardCommand) Execute(ctx context.Context, msg SetDefaultCardMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: card service is required")
	}
	paymentType := msg.PaymentType
	if paymentType == "" {
		paymentType = core.PaymentTypeContactless
	}
	return c.service.SetDefaultCard(ctx, msg.CardID, paymentType)
}

type SuspendCardCommand struct {
	service MutatingService
}

func NewSuspendCardCommand(service MutatingService) *SuspendCardCommand {
	return &SuspendCardCommand{service: service}
}

func (c *SuspendCardCommand) Execute(ctx context.Context, msg SuspendCardMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: card service is required")
	}
	return c.service.SuspendCard(ctx, msg.CardID)
}

type ResumeCardCommand struct {
	service MutatingService
}

func NewResumeCardCommand(service MutatingService) *ResumeCardCommand {
	return &ResumeCardCommand{service: service}
}

func (c *ResumeCardCommand) Execute(ctx context.Context, msg ResumeCardMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: card service is required")
	}
	return c.service.ResumeCard(ctx, msg.CardID)
}

type DeleteCardCommand struct {
	service MutatingService
}

func NewDeleteCardCommand(service MutatingService) *DeleteCardCommand {
	return &DeleteCardCommand{service: service}
}

func (c *DeleteCardCommand) Execute(ctx context.Context, msg DeleteCardMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: card service is required")
	}
	return c.service.DeleteCard(ctx, msg.CardID)
}

type CheckReplenishmentCommand struct {
	service MutatingService
}

func NewCheckReplenishmentCommand(service MutatingService) *CheckReplenishmentCommand {
	return &CheckReplenishmentCommand{service: service}
}

func (c *CheckReplenishmentCommand) Execute(ctx context.Context, msg CheckReplenishmentMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: card service is required")
	}
	return c.service.CheckReplenishment(ctx, msg.CardID, msg.Forced)
}

type PayWithCardCommand struct {
	service MutatingService
}

func NewPayWithCardCommand(service MutatingService) *PayWithCardCommand {
	return &PayWithCardCommand{service: service}
}

func (c *PayWithCardCommand) Execute(ctx context.Context, msg PayWithCardMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: payment service is required")
	}
	return c.service.PayWithCard(ctx, msg.CardID)
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
