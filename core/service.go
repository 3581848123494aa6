package core

import (
	"context"
	"errors"
	"fmt"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

var (
	ErrEngineRequired = errors.New("core: engine is required")
	ErrCipherRequired = errors.New("core: instrument cipher is required")
)

// Service is the composition root: it owns the card registry and the three
// coordinators, and presents the operations the command and query layers
// delegate to. All blocking behavior lives behind it; callers observe
// progress through the registered observers.
type Service struct {
	config          Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorFactory    ErrorFactory
	errorMapper     ErrorMapper
	configProvider  ConfigProvider
	optionsResolver OptionsResolver
	clock           Clock

	engine     Engine
	registry   *CardRegistry
	bringup    *BringupCoordinator
	enrollment *EnrollmentCoordinator
	payment    *PaymentController
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("wallet", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("wallet"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorFactory == nil {
		builder.errorFactory = goerrors.New
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.clock == nil {
		builder.clock = NewSystemClock()
	}
	if builder.engine == nil {
		return nil, mapBuildError(builder.errorMapper, ErrEngineRequired)
	}
	if builder.cipher == nil {
		return nil, mapBuildError(builder.errorMapper, ErrCipherRequired)
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	registry, err := NewCardRegistry(
		builder.engine,
		builder.capabilities,
		builder.pushTokens,
		builder.clock,
		logger,
		builder.metricsRecorder,
	)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	bringup, err := NewBringupCoordinator(
		builder.engine,
		finalConfig.PaymentExperience,
		finalConfig.Bringup,
		builder.clock,
		logger,
		builder.metricsRecorder,
	)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	enrollment, err := NewEnrollmentCoordinator(
		builder.engine,
		bringup,
		builder.cipher,
		builder.device,
		builder.pushTokens,
		finalConfig.WalletID,
		finalConfig.Locale,
		nil,
		builder.clock,
		logger,
		builder.metricsRecorder,
	)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	payment, err := NewPaymentController(
		builder.engine,
		registry,
		finalConfig.Payment,
		builder.clock,
		logger,
		builder.metricsRecorder,
	)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	return &Service{
		config:          finalConfig,
		logger:          logger,
		loggerProvider:  provider,
		metricsRecorder: builder.metricsRecorder,
		errorFactory:    builder.errorFactory,
		errorMapper:     builder.errorMapper,
		configProvider:  builder.configProvider,
		optionsResolver: builder.optionsResolver,
		clock:           builder.clock,
		engine:          builder.engine,
		registry:        registry,
		bringup:         bringup,
		enrollment:      enrollment,
		payment:         payment,
	}, nil
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return NewService(cfg, opts...)
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

// ServiceDependencies is the resolved dependency snapshot, mostly useful for
// wiring assertions and adapters composed outside of core.
type ServiceDependencies struct {
	Logger          Logger
	LoggerProvider  LoggerProvider
	MetricsRecorder MetricsRecorder
	ErrorFactory    ErrorFactory
	ErrorMapper     ErrorMapper
	ConfigProvider  ConfigProvider
	OptionsResolver OptionsResolver
	Engine          Engine
	Clock           Clock
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:          s.logger,
		LoggerProvider:  s.loggerProvider,
		MetricsRecorder: s.metricsRecorder,
		ErrorFactory:    s.errorFactory,
		ErrorMapper:     s.errorMapper,
		ConfigProvider:  s.configProvider,
		OptionsResolver: s.optionsResolver,
		Engine:          s.engine,
		Clock:           s.clock,
	}
}

// Config returns the resolved configuration.
func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

// Registry exposes the card registry for components wired outside of core,
// such as the push router.
func (s *Service) Registry() *CardRegistry {
	if s == nil {
		return nil
	}
	return s.registry
}

func (s *Service) Bringup() *BringupCoordinator {
	if s == nil {
		return nil
	}
	return s.bringup
}

func (s *Service) Enrollment() *EnrollmentCoordinator {
	if s == nil {
		return nil
	}
	return s.enrollment
}

func (s *Service) Payment() *PaymentController {
	if s == nil {
		return nil
	}
	return s.payment
}

// Engine exposes the underlying engine boundary for the push router's
// provisioning message path.
func (s *Service) Engine() Engine {
	if s == nil {
		return nil
	}
	return s.engine
}

// Start triggers bring-up. With the deferred payment experience an
// application-start origin is postponed until the first tap.
func (s *Service) Start(ctx context.Context, origin StartOrigin) {
	if s == nil {
		return
	}
	s.bringup.Start(ctx, origin)
}

// RetryBringup re-enters bring-up after a fatal failure.
func (s *Service) RetryBringup(ctx context.Context) {
	if s == nil {
		return
	}
	s.bringup.Retry(ctx)
}

func (s *Service) InitState() InitState {
	if s == nil {
		return InitStateInactive
	}
	return s.bringup.State()
}

func (s *Service) ObserveBringup(observer BringupObserver) func() {
	if s == nil {
		return func() {}
	}
	return s.bringup.Observe(observer)
}

// LoadCards refreshes the cached card list from the engine.
func (s *Service) LoadCards(ctx context.Context) ([]Card, error) {
	if s == nil {
		return nil, fmt.Errorf("core: service is nil")
	}
	cards, err := s.registry.Load(ctx)
	if err != nil {
		return nil, s.mapError(err)
	}
	return cards, nil
}

func (s *Service) Cards() []Card {
	if s == nil {
		return nil
	}
	return s.registry.Cards()
}

func (s *Service) Card(cardID string) (Card, bool) {
	if s == nil {
		return Card{}, false
	}
	return s.registry.Card(cardID)
}

func (s *Service) CardDetails(ctx context.Context, cardID string) (CardDetails, error) {
	if s == nil {
		return CardDetails{}, fmt.Errorf("core: service is nil")
	}
	details, err := s.registry.Details(ctx, cardID)
	if err != nil {
		return CardDetails{}, s.mapError(err)
	}
	return details, nil
}

func (s *Service) DefaultCardID(ctx context.Context) string {
	if s == nil {
		return ""
	}
	return s.registry.DefaultCardID(ctx)
}

func (s *Service) SetDefaultCard(ctx context.Context, cardID string, paymentType PaymentType) error {
	if s == nil {
		return fmt.Errorf("core: service is nil")
	}
	return s.mapError(s.registry.SetDefault(ctx, cardID, paymentType))
}

func (s *Service) SuspendCard(ctx context.Context, cardID string) error {
	if s == nil {
		return fmt.Errorf("core: service is nil")
	}
	return s.mapError(s.registry.Suspend(ctx, cardID))
}

func (s *Service) ResumeCard(ctx context.Context, cardID string) error {
	if s == nil {
		return fmt.Errorf("core: service is nil")
	}
	return s.mapError(s.registry.Resume(ctx, cardID))
}

func (s *Service) DeleteCard(ctx context.Context, cardID string) error {
	if s == nil {
		return fmt.Errorf("core: service is nil")
	}
	return s.mapError(s.registry.Delete(ctx, cardID))
}

func (s *Service) CheckReplenishment(ctx context.Context, cardID string, forced bool) error {
	if s == nil {
		return fmt.Errorf("core: service is nil")
	}
	return s.mapError(s.registry.CheckReplenishment(ctx, cardID, forced))
}

// EnrollCard starts a new enrollment session and returns its id.
func (s *Service) EnrollCard(
	ctx context.Context,
	instrument Instrument,
	inputMethod InputMethod,
	observer EnrollmentObserver,
) (string, error) {
	if s == nil {
		return "", fmt.Errorf("core: service is nil")
	}
	sessionID, err := s.enrollment.Enroll(ctx, instrument, inputMethod, observer)
	if err != nil {
		return "", s.mapError(err)
	}
	return sessionID, nil
}

func (s *Service) AcceptConsent(ctx context.Context) {
	if s == nil {
		return
	}
	s.enrollment.AcceptConsent(ctx)
}

func (s *Service) DeclineConsent(ctx context.Context) {
	if s == nil {
		return
	}
	s.enrollment.DeclineConsent(ctx)
}

func (s *Service) SelectIdvMethod(ctx context.Context, methodID string) {
	if s == nil {
		return
	}
	s.enrollment.SelectIdvMethod(ctx, methodID)
}

func (s *Service) SubmitOtp(ctx context.Context, otp string) {
	if s == nil {
		return
	}
	s.enrollment.SubmitOtp(ctx, otp)
}

func (s *Service) EnrollmentPhase() EnrollmentPhase {
	if s == nil {
		return EnrollmentPhaseInactive
	}
	return s.enrollment.Phase()
}

func (s *Service) ConsentText() string {
	if s == nil {
		return ""
	}
	return s.enrollment.ConsentText()
}

// PayWithCard starts an authenticated payment with an explicit card,
// temporarily swapping the contactless default when needed.
func (s *Service) PayWithCard(ctx context.Context, cardID string) error {
	if s == nil {
		return fmt.Errorf("core: service is nil")
	}
	return s.mapError(s.payment.PayWithCard(ctx, cardID))
}

func (s *Service) PaymentSession() PaymentSession {
	if s == nil {
		return PaymentSession{Phase: PaymentPhaseNone}
	}
	return s.payment.Session()
}

func (s *Service) ObservePayment(observer PaymentObserver) func() {
	if s == nil {
		return func() {}
	}
	return s.payment.Observe(observer)
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	mapped := s.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}
