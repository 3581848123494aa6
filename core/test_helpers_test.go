package core

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

// waitFor polls cond until it holds or the deadline passes. Coordinator work
// hops goroutines, so tests synchronize on observable state, not on sleeps.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not reached within deadline")
}

type fakeTimer struct {
	clock   *fakeClock
	when    time.Time
	fn      func()
	stopped bool
	fired   bool
}

func (ft *fakeTimer) Stop() bool {
	ft.clock.mu.Lock()
	defer ft.clock.mu.Unlock()
	if ft.fired || ft.stopped {
		return false
	}
	ft.stopped = true
	return true
}

// fakeClock is a manual clock: AfterFunc registers timers and Advance fires
// the ones that come due, in order.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, fn func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	timer := &fakeTimer{clock: c, when: c.now.Add(d), fn: fn}
	c.timers = append(c.timers, timer)
	return timer
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	due := []*fakeTimer{}
	for _, timer := range c.timers {
		if !timer.stopped && !timer.fired && !timer.when.After(c.now) {
			timer.fired = true
			due = append(due, timer)
		}
	}
	c.mu.Unlock()
	for _, timer := range due {
		timer.fn()
	}
}

func (c *fakeClock) pendingTimers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	count := 0
	for _, timer := range c.timers {
		if !timer.stopped && !timer.fired {
			count++
		}
	}
	return count
}

type replenishCall struct {
	CardID   string
	Provider string
	Forced   bool
}

// fakeEngine is a scriptable engine double. Error queues pop one entry per
// call; an empty queue means success.
type fakeEngine struct {
	mu sync.Mutex

	initErrs  []error
	initCalls int
	wipeCalls int

	gatewayErr   error
	gatewayCalls int

	wseState    WseState
	wseStateErr error
	startWseErr error
	wseListener WseListener

	eligibilityResult EligibilityResult
	eligibilityErr    error
	eligibilityReqs   []EligibilityRequest

	consentToken     string
	acceptConsentErr error
	consentCalls     int

	digitizeOutcome DigitizationOutcome
	digitizeErr     error
	digitizeTokens  []string

	idvOutcome DigitizationOutcome
	idvErr     error
	idvCalls   []string

	otpOutcome DigitizationOutcome
	otpErr     error
	otpCalls   []string

	enrollmentStatus    EnrollmentStatus
	enrollmentStatusErr error
	enrollErr           error
	enrollCalls         []string
	continueErr         error
	continueCalls       int
	sendCodeErr         error
	sendCodeCalls       int

	inputErr             error
	inputBytes           []byte
	provisioningListener ProvisioningListener

	cardIDs     []string
	cardsErrs   []error
	cardsCalls  int
	cardStates  map[string]CardStatus
	cardDetails map[string]CardDetails
	defaults    map[string]bool
	deleteErr   error
	suspendErr  error
	resumeErr   error

	needsReplenish map[string]bool
	replenishErr   error
	replenishCalls []replenishCall

	verificationMethods []VerificationMethod
	verificationErr     error

	authErr         error
	authListeners   []AuthenticationListener
	authCalls       int
	deactivateCalls int
	deactivateErr   error

	txListener TransactionListener

	processErr        error
	processedPayloads []map[string]string
	processSink       func(sink ServerMessageSink)
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		wseState:         WseStateNotRequired,
		consentToken:     "digitization-token",
		enrollmentStatus: EnrollmentStatusNeeded,
		cardStates:       map[string]CardStatus{},
		cardDetails:      map[string]CardDetails{},
		defaults:         map[string]bool{},
		needsReplenish:   map[string]bool{},
		digitizeOutcome: DigitizationOutcome{
			Kind:           DigitizationActivationCode,
			ActivationCode: []byte("activation-code"),
		},
	}
}

func (e *fakeEngine) InitializeCore(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.initCalls++
	if len(e.initErrs) > 0 {
		err := e.initErrs[0]
		e.initErrs = e.initErrs[1:]
		return err
	}
	return nil
}

func (e *fakeEngine) ConfigureGateway(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.gatewayCalls++
	return e.gatewayErr
}

func (e *fakeEngine) WipeStorage(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.wipeCalls++
	return nil
}

func (e *fakeEngine) WalletSecureEnrollmentState(context.Context) (WseState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.wseState, e.wseStateErr
}

func (e *fakeEngine) StartWalletSecureEnrollment(_ context.Context, listener WseListener) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.startWseErr != nil {
		return e.startWseErr
	}
	e.wseListener = listener
	return nil
}

func (e *fakeEngine) CheckCardEligibility(_ context.Context, req EligibilityRequest) (EligibilityResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.eligibilityReqs = append(e.eligibilityReqs, req)
	if e.eligibilityErr != nil {
		return EligibilityResult{}, e.eligibilityErr
	}
	return e.eligibilityResult, nil
}

func (e *fakeEngine) AcceptConsent(context.Context) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.consentCalls++
	if e.acceptConsentErr != nil {
		return "", e.acceptConsentErr
	}
	return e.consentToken, nil
}

func (e *fakeEngine) DigitizeCard(_ context.Context, token string) (DigitizationOutcome, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.digitizeTokens = append(e.digitizeTokens, token)
	if e.digitizeErr != nil {
		return DigitizationOutcome{}, e.digitizeErr
	}
	return e.digitizeOutcome, nil
}

func (e *fakeEngine) SelectIdvMethod(_ context.Context, methodID string) (DigitizationOutcome, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.idvCalls = append(e.idvCalls, methodID)
	if e.idvErr != nil {
		return DigitizationOutcome{}, e.idvErr
	}
	return e.idvOutcome, nil
}

func (e *fakeEngine) SubmitActivationOtp(_ context.Context, otp string) (DigitizationOutcome, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.otpCalls = append(e.otpCalls, otp)
	if e.otpErr != nil {
		return DigitizationOutcome{}, e.otpErr
	}
	return e.otpOutcome, nil
}

func (e *fakeEngine) EnrollmentStatus(context.Context) (EnrollmentStatus, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enrollmentStatus, e.enrollmentStatusErr
}

func (e *fakeEngine) Enroll(_ context.Context, walletID string, pushToken string, locale string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enrollCalls = append(e.enrollCalls, fmt.Sprintf("%s|%s|%s", walletID, pushToken, locale))
	return e.enrollErr
}

func (e *fakeEngine) ContinueEnrollment(_ context.Context, _ string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.continueCalls++
	return e.continueErr
}

func (e *fakeEngine) SendActivationCode(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sendCodeCalls++
	return e.sendCodeErr
}

func (e *fakeEngine) InputActivationSecret(_ context.Context, b byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inputErr != nil {
		return e.inputErr
	}
	e.inputBytes = append(e.inputBytes, b)
	return nil
}

func (e *fakeEngine) SetProvisioningListener(listener ProvisioningListener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.provisioningListener = listener
}

func (e *fakeEngine) Cards(context.Context) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cardsCalls++
	if len(e.cardsErrs) > 0 {
		err := e.cardsErrs[0]
		e.cardsErrs = e.cardsErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return append([]string(nil), e.cardIDs...), nil
}

func (e *fakeEngine) CardState(_ context.Context, cardID string) (CardStatus, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	status, ok := e.cardStates[cardID]
	if !ok {
		return CardStatusUnknown, fmt.Errorf("fake engine: no card %q", cardID)
	}
	return status, nil
}

func (e *fakeEngine) CardDetails(_ context.Context, cardID string) (CardDetails, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	details, ok := e.cardDetails[cardID]
	if !ok {
		return CardDetails{}, fmt.Errorf("fake engine: no card %q", cardID)
	}
	return details, nil
}

func (e *fakeEngine) IsDefault(_ context.Context, cardID string, _ PaymentType) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.defaults[cardID], nil
}

func (e *fakeEngine) SetDefault(_ context.Context, cardID string, _ PaymentType) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id := range e.defaults {
		e.defaults[id] = false
	}
	e.defaults[cardID] = true
	return nil
}

func (e *fakeEngine) DeleteCard(_ context.Context, cardID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleteErr != nil {
		return e.deleteErr
	}
	kept := e.cardIDs[:0]
	for _, id := range e.cardIDs {
		if id != cardID {
			kept = append(kept, id)
		}
	}
	e.cardIDs = kept
	delete(e.cardStates, cardID)
	return nil
}

func (e *fakeEngine) SuspendCard(_ context.Context, cardID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.suspendErr != nil {
		return e.suspendErr
	}
	e.cardStates[cardID] = CardStatusSuspended
	return nil
}

func (e *fakeEngine) ResumeCard(_ context.Context, cardID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.resumeErr != nil {
		return e.resumeErr
	}
	e.cardStates[cardID] = CardStatusActive
	return nil
}

func (e *fakeEngine) NeedsKeyReplenishment(_ context.Context, cardID string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.needsReplenish[cardID], nil
}

func (e *fakeEngine) RequestKeyReplenishment(_ context.Context, cardID string, pushProvider string, forced bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.replenishErr != nil {
		return e.replenishErr
	}
	e.replenishCalls = append(e.replenishCalls, replenishCall{CardID: cardID, Provider: pushProvider, Forced: forced})
	return nil
}

func (e *fakeEngine) InitializeVerificationMethod(_ context.Context, method VerificationMethod) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.verificationErr != nil {
		return e.verificationErr
	}
	e.verificationMethods = append(e.verificationMethods, method)
	return nil
}

func (e *fakeEngine) StartAuthentication(_ context.Context, listener AuthenticationListener, _ PaymentType) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.authCalls++
	if e.authErr != nil {
		return e.authErr
	}
	e.authListeners = append(e.authListeners, listener)
	return nil
}

func (e *fakeEngine) Deactivate(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.deactivateCalls++
	return e.deactivateErr
}

func (e *fakeEngine) SetTransactionListener(listener TransactionListener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.txListener = listener
}

func (e *fakeEngine) ProcessServerMessage(_ context.Context, payload map[string]string, sink ServerMessageSink) error {
	e.mu.Lock()
	hook := e.processSink
	err := e.processErr
	copied := make(map[string]string, len(payload))
	for key, value := range payload {
		copied[key] = value
	}
	e.processedPayloads = append(e.processedPayloads, copied)
	e.mu.Unlock()
	if err != nil {
		return err
	}
	if hook != nil {
		hook(sink)
	}
	return nil
}

func (e *fakeEngine) fireProvisioning(event ProvisioningEvent) {
	e.mu.Lock()
	listener := e.provisioningListener
	e.mu.Unlock()
	if listener != nil {
		listener(event)
	}
}

func (e *fakeEngine) fireTransaction(event TransactionEvent) {
	e.mu.Lock()
	listener := e.txListener
	e.mu.Unlock()
	if listener != nil {
		listener(event)
	}
}

func (e *fakeEngine) fireWseResult(err error) {
	e.mu.Lock()
	listener := e.wseListener
	e.mu.Unlock()
	if listener != nil {
		listener(err)
	}
}

func (e *fakeEngine) fireAuthResult(err error) {
	e.mu.Lock()
	var listener AuthenticationListener
	if len(e.authListeners) > 0 {
		listener = e.authListeners[len(e.authListeners)-1]
	}
	e.mu.Unlock()
	if listener != nil {
		listener(err)
	}
}

type fakeCipher struct {
	sealErr error
	sealed  [][]byte
	mu      sync.Mutex
}

func (c *fakeCipher) Seal(instrument Instrument) ([]byte, error) {
	if c.sealErr != nil {
		return nil, c.sealErr
	}
	payload := []byte("sealed:" + instrument.PAN)
	c.mu.Lock()
	c.sealed = append(c.sealed, payload)
	c.mu.Unlock()
	return payload, nil
}

type fakeDevice struct {
	serial string
	err    error
}

func (d fakeDevice) Serial(context.Context) (string, error) {
	return d.serial, d.err
}

type fakePushTokens struct {
	token    string
	tokenErr error
	provider string
}

func (p fakePushTokens) Token(context.Context) (string, error) {
	return p.token, p.tokenErr
}

func (p fakePushTokens) Provider() string { return p.provider }

type fakeCapabilities struct {
	biometric bool
	keyguard  bool
}

func (c fakeCapabilities) HasBiometric(context.Context) bool { return c.biometric }
func (c fakeCapabilities) HasKeyguard(context.Context) bool  { return c.keyguard }

type stubLogger struct{}

func (stubLogger) Trace(string, ...any) {}
func (stubLogger) Debug(string, ...any) {}
func (stubLogger) Info(string, ...any)  {}
func (stubLogger) Warn(string, ...any)  {}
func (stubLogger) Error(string, ...any) {}
func (stubLogger) Fatal(string, ...any) {}
func (s stubLogger) WithContext(context.Context) Logger {
	return s
}

type stubLoggerProvider struct {
	logger Logger
}

func (s stubLoggerProvider) GetLogger(string) Logger {
	return s.logger
}

type mapRawLoader struct {
	values map[string]any
}

func (l mapRawLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.values))
	for key, value := range l.values {
		out[key] = value
	}
	return out, nil
}

func newTestBringup(t *testing.T, engine Engine, experience PaymentExperience, clock Clock) *BringupCoordinator {
	t.Helper()
	coordinator, err := NewBringupCoordinator(engine, experience, DefaultConfig().Bringup, clock, nil, nil)
	if err != nil {
		t.Fatalf("bring-up coordinator: %v", err)
	}
	return coordinator
}
