package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

// WseState is the wallet secure-enrollment handshake state reported by the
// engine for devices that carry pre-provisioned cards.
type WseState string

const (
	WseStateNotRequired WseState = "not_required"
	WseStateRequired    WseState = "required"
	WseStateStarted     WseState = "started"
	WseStateCompleted   WseState = "completed"
)

// EnrollmentStatus is the engine-side provisioning enrollment state used to
// decide between first-card enrollment, resume, and additional-card paths.
type EnrollmentStatus string

const (
	EnrollmentStatusNeeded     EnrollmentStatus = "needed"
	EnrollmentStatusInProgress EnrollmentStatus = "in_progress"
	EnrollmentStatusComplete   EnrollmentStatus = "complete"
)

type VerificationMethod string

const (
	VerificationMethodBiometric VerificationMethod = "biometric"
	VerificationMethodKeyguard  VerificationMethod = "keyguard"
	VerificationMethodNone      VerificationMethod = "none"
)

type EligibilityRequest struct {
	EncryptedInstrument []byte
	DeviceSerial        string
	Locale              string
	InputMethod         InputMethod
}

type IssuerMetadata struct {
	Name             string
	TermsURL         string
	PrivacyPolicyURL string
}

type EligibilityResult struct {
	ConsentText string
	Issuer      IssuerMetadata
}

type IdvMethod struct {
	ID          string
	DisplayName string
}

// PendingActivation is the deferred-activation object the engine may return
// from digitization instead of an activation code.
type PendingActivation struct {
	Kind       PendingActivationKind
	CardID     string
	IdvMethods []IdvMethod
}

type DigitizationOutcomeKind string

const (
	DigitizationActivationCode    DigitizationOutcomeKind = "activation_code"
	DigitizationIdvSelection      DigitizationOutcomeKind = "idv_selection"
	DigitizationPendingActivation DigitizationOutcomeKind = "pending_activation"
)

type DigitizationOutcome struct {
	Kind           DigitizationOutcomeKind
	ActivationCode []byte
	IdvMethods     []IdvMethod
	Pending        *PendingActivation
}

type CardDetails struct {
	MaskedPAN   string
	ExpiryMonth int
	ExpiryYear  int
}

// TransactionEventKind enumerates the closed set of transaction callbacks the
// engine produces during one tap cycle.
type TransactionEventKind string

const (
	TransactionStarted      TransactionEventKind = "started"
	TransactionAuthRequired TransactionEventKind = "auth_required"
	TransactionReadyToTap   TransactionEventKind = "ready_to_tap"
	TransactionCompleted    TransactionEventKind = "completed"
	TransactionError        TransactionEventKind = "error"
	TransactionInterrupted  TransactionEventKind = "interrupted"
	TransactionNextReady    TransactionEventKind = "next_ready"
)

// TransactionEvent is the tagged variant delivered by the engine on an
// unspecified thread. Fields are populated per Kind.
type TransactionEvent struct {
	Kind         TransactionEventKind
	Amount       int64
	CurrencyCode string
	CardID       string
	AuthMethod   VerificationMethod
	Code         string
	Message      string
	RetriesLeft  int
	CardStatus   CardStatus
}

type TransactionListener func(TransactionEvent)

// ProvisioningEventKind enumerates engine callbacks emitted while a card is
// being provisioned after an activation code was acquired.
type ProvisioningEventKind string

const (
	ProvisioningSecretRequested ProvisioningEventKind = "secret_requested"
	ProvisioningCompleted       ProvisioningEventKind = "completed"
	ProvisioningFailed          ProvisioningEventKind = "failed"
)

type ProvisioningEvent struct {
	Kind    ProvisioningEventKind
	Code    string
	Message string
}

type ProvisioningListener func(ProvisioningEvent)

// AuthenticationListener receives the outcome of a StartAuthentication call.
// A nil error means the holder completed verification.
type AuthenticationListener func(err error)

// WseListener receives the outcome of the wallet secure-enrollment handshake.
type WseListener func(err error)

// ServerMessageSink collects per-card server message codes reported by the
// provisioning processor while it consumes one push payload, followed by a
// single completion signal.
type ServerMessageSink interface {
	OnCardMessage(cardID string, code string)
	OnComplete()
}

// Engine is the boundary to the external tokenization/contactless-payment
// engine. Every method is a thin contract over an asynchronous black box;
// coordinators call them off their run loop and marshal results back.
type Engine interface {
	InitializeCore(ctx context.Context) error
	ConfigureGateway(ctx context.Context) error
	WipeStorage(ctx context.Context) error

	WalletSecureEnrollmentState(ctx context.Context) (WseState, error)
	StartWalletSecureEnrollment(ctx context.Context, listener WseListener) error

	CheckCardEligibility(ctx context.Context, req EligibilityRequest) (EligibilityResult, error)
	AcceptConsent(ctx context.Context) (string, error)
	DigitizeCard(ctx context.Context, sessionToken string) (DigitizationOutcome, error)
	SelectIdvMethod(ctx context.Context, methodID string) (DigitizationOutcome, error)
	SubmitActivationOtp(ctx context.Context, otp string) (DigitizationOutcome, error)

	EnrollmentStatus(ctx context.Context) (EnrollmentStatus, error)
	Enroll(ctx context.Context, walletID string, pushToken string, locale string) error
	ContinueEnrollment(ctx context.Context, locale string) error
	SendActivationCode(ctx context.Context) error
	InputActivationSecret(ctx context.Context, b byte) error
	SetProvisioningListener(listener ProvisioningListener)

	Cards(ctx context.Context) ([]string, error)
	CardState(ctx context.Context, cardID string) (CardStatus, error)
	CardDetails(ctx context.Context, cardID string) (CardDetails, error)
	IsDefault(ctx context.Context, cardID string, paymentType PaymentType) (bool, error)
	SetDefault(ctx context.Context, cardID string, paymentType PaymentType) error
	DeleteCard(ctx context.Context, cardID string) error
	SuspendCard(ctx context.Context, cardID string) error
	ResumeCard(ctx context.Context, cardID string) error

	NeedsKeyReplenishment(ctx context.Context, cardID string) (bool, error)
	RequestKeyReplenishment(ctx context.Context, cardID string, pushProvider string, forced bool) error

	InitializeVerificationMethod(ctx context.Context, method VerificationMethod) error

	StartAuthentication(ctx context.Context, listener AuthenticationListener, paymentType PaymentType) error
	Deactivate(ctx context.Context) error
	SetTransactionListener(listener TransactionListener)

	ProcessServerMessage(ctx context.Context, payload map[string]string, sink ServerMessageSink) error
}

// DeviceCapabilities probes the holder-verification hardware available on the
// device. Used once when the card load reports a missing verification method.
type DeviceCapabilities interface {
	HasBiometric(ctx context.Context) bool
	HasKeyguard(ctx context.Context) bool
}

// DeviceInfo identifies the physical device to the onboarding service.
type DeviceInfo interface {
	Serial(ctx context.Context) (string, error)
}

// PushTokenProvider supplies the notification token and channel name the
// engine tags replenishment and enrollment requests with.
type PushTokenProvider interface {
	Token(ctx context.Context) (string, error)
	Provider() string
}

// InstrumentCipher seals cleartext instrument data under the fixed onboarding
// public key before it leaves this layer.
type InstrumentCipher interface {
	Seal(instrument Instrument) ([]byte, error)
}

type BringupEvent struct {
	State InitState
	Err   error
}

type BringupObserver func(BringupEvent)

type EnrollmentEvent struct {
	SessionID   string
	Phase       EnrollmentPhase
	ConsentText string
	Issuer      IssuerMetadata
	Pending     *PendingActivation
	Err         error
	Message     string
}

type EnrollmentObserver func(EnrollmentEvent)

type PaymentEvent struct {
	SessionID        string
	Phase            PaymentPhase
	Amount           int64
	CurrencyCode     string
	CardID           string
	AuthMethod       VerificationMethod
	CountdownSeconds int
	Err              error
}

type PaymentObserver func(PaymentEvent)

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string)         {}
func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

// Timer is the cancellable handle returned by Clock.AfterFunc.
type Timer interface {
	Stop() bool
}

// Clock abstracts the scheduled callbacks this layer owns: the bring-up retry
// backoff, the gateway-configuration delay, the payment error debounce, and
// the ready-to-tap countdown ticks.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Timer
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

func (realClock) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// NewSystemClock returns the wall clock used outside of tests.
func NewSystemClock() Clock { return realClock{} }

// JobExecutionMessage mirrors the background-job contract used to hand
// replenishment checks and deferred push flushes to a queue runtime.
type JobExecutionMessage struct {
	JobID          string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}

type JobWorkerEvent struct {
	Message   *JobExecutionMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

type JobWorkerHook interface {
	OnStart(ctx context.Context, event JobWorkerEvent)
	OnSuccess(ctx context.Context, event JobWorkerEvent)
	OnFailure(ctx context.Context, event JobWorkerEvent)
	OnRetry(ctx context.Context, event JobWorkerEvent)
}
