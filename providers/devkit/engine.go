package devkit

import (
	"context"
	"fmt"
	"sync"

	"github.com/goliatone/go-wallet/core"
)

// ReplenishmentRequest records one key-replenishment submission.
type ReplenishmentRequest struct {
	CardID   string
	Provider string
	Forced   bool
}

// EnrollRequest records one wallet enrollment submission.
type EnrollRequest struct {
	WalletID  string
	PushToken string
	Locale    string
}

// ScriptedEngine is an in-memory engine double. Outcomes are scripted per
// operation; error queues pop one entry per call and an empty queue means
// success. Callbacks are fired explicitly through the Fire helpers.
type ScriptedEngine struct {
	mu sync.Mutex

	InitErrors    []error
	InitCalls     int
	WipeCalls     int
	GatewayError  error
	GatewayCalls  int
	WseState      core.WseState
	WseStateError error
	StartWseError error

	EligibilityResult core.EligibilityResult
	EligibilityError  error
	ConsentToken      string
	ConsentError      error
	DigitizeOutcome   core.DigitizationOutcome
	DigitizeError     error
	IdvOutcome        core.DigitizationOutcome
	IdvError          error
	OtpOutcome        core.DigitizationOutcome
	OtpError          error

	EnrollmentState      core.EnrollmentStatus
	EnrollmentStateError error
	EnrollError          error
	EnrollRequests       []EnrollRequest
	ContinueError        error
	ContinueCalls        int
	SendCodeError        error
	SendCodeCalls        int
	SecretInputError     error
	SecretInput          []byte

	CardIDs      []string
	CardsError   error
	CardStates   map[string]core.CardStatus
	Details      map[string]core.CardDetails
	Defaults     map[string]bool
	NeedsKeys    map[string]bool
	Replenishs   []ReplenishmentRequest
	DeleteError  error
	SuspendError error
	ResumeError  error

	VerificationError   error
	VerificationMethods []core.VerificationMethod

	AuthError       error
	AuthCalls       int
	DeactivateCalls int
	DeactivateError error

	ProcessError      error
	ProcessedPayloads []map[string]string
	ProcessScript     func(sink core.ServerMessageSink)

	wseListener          core.WseListener
	provisioningListener core.ProvisioningListener
	transactionListener  core.TransactionListener
	authListener         core.AuthenticationListener
}

// NewScriptedEngine returns an engine scripted for the straight-line happy
// path: ready secure-enrollment state, eligible card, activation code
// digitization, first-card enrollment.
func NewScriptedEngine() *ScriptedEngine {
	return &ScriptedEngine{
		WseState:        core.WseStateNotRequired,
		ConsentToken:    "devkit-digitization-token",
		EnrollmentState: core.EnrollmentStatusNeeded,
		EligibilityResult: core.EligibilityResult{
			ConsentText: "devkit consent",
			Issuer:      core.IssuerMetadata{Name: "Devkit Bank"},
		},
		DigitizeOutcome: core.DigitizationOutcome{
			Kind:           core.DigitizationActivationCode,
			ActivationCode: []byte("devkit-activation"),
		},
		CardStates: map[string]core.CardStatus{},
		Details:    map[string]core.CardDetails{},
		Defaults:   map[string]bool{},
		NeedsKeys:  map[string]bool{},
	}
}

func (e *ScriptedEngine) InitializeCore(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.InitCalls++
	if len(e.InitErrors) > 0 {
		err := e.InitErrors[0]
		e.InitErrors = e.InitErrors[1:]
		return err
	}
	return nil
}

func (e *ScriptedEngine) ConfigureGateway(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.GatewayCalls++
	return e.GatewayError
}

func (e *ScriptedEngine) WipeStorage(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.WipeCalls++
	return nil
}

func (e *ScriptedEngine) WalletSecureEnrollmentState(context.Context) (core.WseState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.WseState, e.WseStateError
}

func (e *ScriptedEngine) StartWalletSecureEnrollment(_ context.Context, listener core.WseListener) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.StartWseError != nil {
		return e.StartWseError
	}
	e.wseListener = listener
	return nil
}

func (e *ScriptedEngine) CheckCardEligibility(_ context.Context, _ core.EligibilityRequest) (core.EligibilityResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.EligibilityError != nil {
		return core.EligibilityResult{}, e.EligibilityError
	}
	return e.EligibilityResult, nil
}

func (e *ScriptedEngine) AcceptConsent(context.Context) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ConsentError != nil {
		return "", e.ConsentError
	}
	return e.ConsentToken, nil
}

func (e *ScriptedEngine) DigitizeCard(_ context.Context, _ string) (core.DigitizationOutcome, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.DigitizeError != nil {
		return core.DigitizationOutcome{}, e.DigitizeError
	}
	return e.DigitizeOutcome, nil
}

func (e *ScriptedEngine) SelectIdvMethod(_ context.Context, _ string) (core.DigitizationOutcome, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.IdvError != nil {
		return core.DigitizationOutcome{}, e.IdvError
	}
	return e.IdvOutcome, nil
}

func (e *ScriptedEngine) SubmitActivationOtp(_ context.Context, _ string) (core.DigitizationOutcome, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.OtpError != nil {
		return core.DigitizationOutcome{}, e.OtpError
	}
	return e.OtpOutcome, nil
}

func (e *ScriptedEngine) EnrollmentStatus(context.Context) (core.EnrollmentStatus, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.EnrollmentState, e.EnrollmentStateError
}

func (e *ScriptedEngine) Enroll(_ context.Context, walletID string, pushToken string, locale string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.EnrollError != nil {
		return e.EnrollError
	}
	e.EnrollRequests = append(e.EnrollRequests, EnrollRequest{
		WalletID:  walletID,
		PushToken: pushToken,
		Locale:    locale,
	})
	return nil
}

func (e *ScriptedEngine) ContinueEnrollment(_ context.Context, _ string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ContinueCalls++
	return e.ContinueError
}

func (e *ScriptedEngine) SendActivationCode(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.SendCodeCalls++
	return e.SendCodeError
}

func (e *ScriptedEngine) InputActivationSecret(_ context.Context, b byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.SecretInputError != nil {
		return e.SecretInputError
	}
	e.SecretInput = append(e.SecretInput, b)
	return nil
}

func (e *ScriptedEngine) SetProvisioningListener(listener core.ProvisioningListener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.provisioningListener = listener
}

func (e *ScriptedEngine) Cards(context.Context) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.CardsError != nil {
		return nil, e.CardsError
	}
	return append([]string(nil), e.CardIDs...), nil
}

func (e *ScriptedEngine) CardState(_ context.Context, cardID string) (core.CardStatus, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	status, ok := e.CardStates[cardID]
	if !ok {
		return core.CardStatusUnknown, fmt.Errorf("devkit: no card %q", cardID)
	}
	return status, nil
}

func (e *ScriptedEngine) CardDetails(_ context.Context, cardID string) (core.CardDetails, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	details, ok := e.Details[cardID]
	if !ok {
		return core.CardDetails{}, fmt.Errorf("devkit: no card %q", cardID)
	}
	return details, nil
}

func (e *ScriptedEngine) IsDefault(_ context.Context, cardID string, _ core.PaymentType) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Defaults[cardID], nil
}

func (e *ScriptedEngine) SetDefault(_ context.Context, cardID string, _ core.PaymentType) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id := range e.Defaults {
		e.Defaults[id] = false
	}
	e.Defaults[cardID] = true
	return nil
}

func (e *ScriptedEngine) DeleteCard(_ context.Context, cardID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.DeleteError != nil {
		return e.DeleteError
	}
	kept := e.CardIDs[:0]
	for _, id := range e.CardIDs {
		if id != cardID {
			kept = append(kept, id)
		}
	}
	e.CardIDs = kept
	delete(e.CardStates, cardID)
	return nil
}

func (e *ScriptedEngine) SuspendCard(_ context.Context, cardID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.SuspendError != nil {
		return e.SuspendError
	}
	e.CardStates[cardID] = core.CardStatusSuspended
	return nil
}

func (e *ScriptedEngine) ResumeCard(_ context.Context, cardID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ResumeError != nil {
		return e.ResumeError
	}
	e.CardStates[cardID] = core.CardStatusActive
	return nil
}

func (e *ScriptedEngine) NeedsKeyReplenishment(_ context.Context, cardID string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.NeedsKeys[cardID], nil
}

func (e *ScriptedEngine) RequestKeyReplenishment(_ context.Context, cardID string, pushProvider string, forced bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Replenishs = append(e.Replenishs, ReplenishmentRequest{
		CardID:   cardID,
		Provider: pushProvider,
		Forced:   forced,
	})
	return nil
}

func (e *ScriptedEngine) InitializeVerificationMethod(_ context.Context, method core.VerificationMethod) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.VerificationError != nil {
		return e.VerificationError
	}
	e.VerificationMethods = append(e.VerificationMethods, method)
	return nil
}

func (e *ScriptedEngine) StartAuthentication(_ context.Context, listener core.AuthenticationListener, _ core.PaymentType) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.AuthCalls++
	if e.AuthError != nil {
		return e.AuthError
	}
	e.authListener = listener
	return nil
}

func (e *ScriptedEngine) Deactivate(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.DeactivateCalls++
	return e.DeactivateError
}

func (e *ScriptedEngine) SetTransactionListener(listener core.TransactionListener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.transactionListener = listener
}

func (e *ScriptedEngine) ProcessServerMessage(_ context.Context, payload map[string]string, sink core.ServerMessageSink) error {
	e.mu.Lock()
	script := e.ProcessScript
	err := e.ProcessError
	copied := make(map[string]string, len(payload))
	for key, value := range payload {
		copied[key] = value
	}
	e.ProcessedPayloads = append(e.ProcessedPayloads, copied)
	e.mu.Unlock()
	if err != nil {
		return err
	}
	if script != nil {
		script(sink)
	}
	return nil
}

// FireWseResult completes an in-flight secure-enrollment handshake.
func (e *ScriptedEngine) FireWseResult(err error) {
	e.mu.Lock()
	listener := e.wseListener
	e.mu.Unlock()
	if listener != nil {
		listener(err)
	}
}

// FireProvisioning delivers a provisioning callback.
func (e *ScriptedEngine) FireProvisioning(event core.ProvisioningEvent) {
	e.mu.Lock()
	listener := e.provisioningListener
	e.mu.Unlock()
	if listener != nil {
		listener(event)
	}
}

// FireTransaction delivers a transaction callback.
func (e *ScriptedEngine) FireTransaction(event core.TransactionEvent) {
	e.mu.Lock()
	listener := e.transactionListener
	e.mu.Unlock()
	if listener != nil {
		listener(event)
	}
}

// FireAuthResult completes an in-flight holder authentication.
func (e *ScriptedEngine) FireAuthResult(err error) {
	e.mu.Lock()
	listener := e.authListener
	e.mu.Unlock()
	if listener != nil {
		listener(err)
	}
}

// Lock and Unlock expose the engine's mutex so tests can inspect recorded
// calls without racing in-flight operations.
func (e *ScriptedEngine) Lock()   { e.mu.Lock() }
func (e *ScriptedEngine) Unlock() { e.mu.Unlock() }

var _ core.Engine = (*ScriptedEngine)(nil)
