package wallet

import (
	"fmt"

	walletcommand "github.com/goliatone/go-wallet/command"
	"github.com/goliatone/go-wallet/core"
	"github.com/goliatone/go-wallet/push"
	walletquery "github.com/goliatone/go-wallet/query"
)

// CommandQueryService is the slice of the wallet service the facade
// dispatches through. *core.Service satisfies it.
type CommandQueryService interface {
	walletcommand.MutatingService
	walletquery.CardReader
	walletquery.StateReader
}

type Commands struct {
	StartBringup       *walletcommand.StartBringupCommand
	RetryBringup       *walletcommand.RetryBringupCommand
	EnrollCard         *walletcommand.EnrollCardCommand
	AcceptConsent      *walletcommand.AcceptConsentCommand
	DeclineConsent     *walletcommand.DeclineConsentCommand
	SelectIdvMethod    *walletcommand.SelectIdvMethodCommand
	SubmitOtp          *walletcommand.SubmitOtpCommand
	SetDefaultCard     *walletcommand.SetDefaultCardCommand
	SuspendCard        *walletcommand.SuspendCardCommand
	ResumeCard         *walletcommand.ResumeCardCommand
	DeleteCard         *walletcommand.DeleteCardCommand
	CheckReplenishment *walletcommand.CheckReplenishmentCommand
	PayWithCard        *walletcommand.PayWithCardCommand
}

type Queries struct {
	ListCards       *walletquery.ListCardsQuery
	GetCard         *walletquery.GetCardQuery
	CardDetails     *walletquery.CardDetailsQuery
	DefaultCard     *walletquery.DefaultCardQuery
	InitState       *walletquery.InitStateQuery
	EnrollmentPhase *walletquery.EnrollmentPhaseQuery
	ConsentText     *walletquery.ConsentTextQuery
	PaymentSession  *walletquery.PaymentSessionQuery
}

// Facade bundles the command handlers, query handlers, and the push router
// over one wallet service.
type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
	router   *push.Router
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	router *push.Router
}

// WithPushRouter installs a pre-built push router instead of deriving one
// from the service internals.
func WithPushRouter(router *push.Router) FacadeOption {
	return func(options *facadeOptions) {
		options.router = router
	}
}

func NewFacade(service CommandQueryService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("wallet: command/query service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	router := cfg.router
	if router == nil {
		built, err := resolvePushRouter(service)
		if err != nil {
			return nil, err
		}
		router = built
	}

	facade := &Facade{service: service, router: router}
	facade.commands = Commands{
		StartBringup:       walletcommand.NewStartBringupCommand(service),
		RetryBringup:       walletcommand.NewRetryBringupCommand(service),
		EnrollCard:         walletcommand.NewEnrollCardCommand(service),
		AcceptConsent:      walletcommand.NewAcceptConsentCommand(service),
		DeclineConsent:     walletcommand.NewDeclineConsentCommand(service),
		SelectIdvMethod:    walletcommand.NewSelectIdvMethodCommand(service),
		SubmitOtp:          walletcommand.NewSubmitOtpCommand(service),
		SetDefaultCard:     walletcommand.NewSetDefaultCardCommand(service),
		SuspendCard:        walletcommand.NewSuspendCardCommand(service),
		ResumeCard:         walletcommand.NewResumeCardCommand(service),
		DeleteCard:         walletcommand.NewDeleteCardCommand(service),
		CheckReplenishment: walletcommand.NewCheckReplenishmentCommand(service),
		PayWithCard:        walletcommand.NewPayWithCardCommand(service),
	}
	facade.queries = Queries{
		ListCards:       walletquery.NewListCardsQuery(service),
		GetCard:         walletquery.NewGetCardQuery(service),
		CardDetails:     walletquery.NewCardDetailsQuery(service),
		DefaultCard:     walletquery.NewDefaultCardQuery(service),
		InitState:       walletquery.NewInitStateQuery(service),
		EnrollmentPhase: walletquery.NewEnrollmentPhaseQuery(service),
		ConsentText:     walletquery.NewConsentTextQuery(service),
		PaymentSession:  walletquery.NewPaymentSessionQuery(service),
	}

	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}

// Router returns the push router, or nil when the service does not expose
// the internals a router needs and none was supplied.
func (f *Facade) Router() *push.Router {
	if f == nil {
		return nil
	}
	return f.router
}

// Close releases the push router, if any. The underlying service is left
// running.
func (f *Facade) Close() {
	if f == nil || f.router == nil {
		return
	}
	f.router.Close()
}

// routerInternals is the accessor surface *core.Service exposes; a custom
// service that implements it gets a router built for free.
type routerInternals interface {
	Engine() core.Engine
	Registry() *core.CardRegistry
	Bringup() *core.BringupCoordinator
	Config() core.Config
	Dependencies() core.ServiceDependencies
}

func resolvePushRouter(service CommandQueryService) (*push.Router, error) {
	internals, ok := service.(routerInternals)
	if !ok {
		return nil, nil
	}
	engine := internals.Engine()
	registry := internals.Registry()
	bringup := internals.Bringup()
	if engine == nil || registry == nil || bringup == nil {
		return nil, nil
	}
	return push.NewRouter(
		engine,
		registry,
		bringup,
		internals.Config().Push,
		internals.Dependencies().Logger,
	)
}
