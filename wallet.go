package wallet

import "github.com/goliatone/go-wallet/core"

type Config = core.Config

type PushConfig = core.PushConfig

type Option = core.Option

type Service = core.Service

type ServiceDependencies = core.ServiceDependencies
type Engine = core.Engine
type InstrumentCipher = core.InstrumentCipher
type DeviceCapabilities = core.DeviceCapabilities
type DeviceInfo = core.DeviceInfo
type PushTokenProvider = core.PushTokenProvider
type Clock = core.Clock
type Logger = core.Logger
type LoggerProvider = core.LoggerProvider
type MetricsRecorder = core.MetricsRecorder

type Card = core.Card
type CardDetails = core.CardDetails
type Instrument = core.Instrument
type PaymentSession = core.PaymentSession

type InitState = core.InitState
type EnrollmentPhase = core.EnrollmentPhase
type StartOrigin = core.StartOrigin
type PaymentType = core.PaymentType
type InputMethod = core.InputMethod

type BringupObserver = core.BringupObserver
type EnrollmentObserver = core.EnrollmentObserver
type PaymentObserver = core.PaymentObserver

var (
	WithLogger             = core.WithLogger
	WithLoggerProvider     = core.WithLoggerProvider
	WithMetricsRecorder    = core.WithMetricsRecorder
	WithErrorFactory       = core.WithErrorFactory
	WithErrorMapper        = core.WithErrorMapper
	WithConfigProvider     = core.WithConfigProvider
	WithOptionsResolver    = core.WithOptionsResolver
	WithEngine             = core.WithEngine
	WithDeviceCapabilities = core.WithDeviceCapabilities
	WithDeviceInfo         = core.WithDeviceInfo
	WithPushTokenProvider  = core.WithPushTokenProvider
	WithInstrumentCipher   = core.WithInstrumentCipher
	WithClock              = core.WithClock
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return core.Setup(cfg, opts...)
}
