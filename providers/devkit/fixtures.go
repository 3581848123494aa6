package devkit

import (
	"context"
	"sync"
	"time"

	"github.com/goliatone/go-wallet/core"
)

// SampleInstrument returns a syntactically valid test instrument.
func SampleInstrument() core.Instrument {
	return core.Instrument{
		PAN:         "4111111111111111",
		ExpiryMonth: 12,
		ExpiryYear:  2030,
		CVV:         "123",
		HolderName:  "DEVKIT HOLDER",
	}
}

// ProvisioningPayload returns a minimal provisioning push payload.
func ProvisioningPayload(extra map[string]string) map[string]string {
	payload := map[string]string{
		"sender": "provisioning",
		"action": "serverMessage",
	}
	for key, value := range extra {
		payload[key] = value
	}
	return payload
}

// ReplenishmentPayload returns a gateway push payload that requests forced
// key replenishment for cardID.
func ReplenishmentPayload(cardID string) map[string]string {
	return map[string]string{
		"sender":        "gateway",
		"action":        "keyReplenishmentNeeded",
		"digitalCardID": cardID,
	}
}

// StaticDevice is a fixed-serial device identity.
type StaticDevice struct {
	SerialValue string
	Err         error
}

func (d StaticDevice) Serial(context.Context) (string, error) {
	return d.SerialValue, d.Err
}

// StaticPushTokens serves one token and provider name.
type StaticPushTokens struct {
	TokenValue    string
	TokenErr      error
	ProviderValue string
}

func (p StaticPushTokens) Token(context.Context) (string, error) {
	return p.TokenValue, p.TokenErr
}

func (p StaticPushTokens) Provider() string { return p.ProviderValue }

// StaticCapabilities reports fixed holder-verification hardware.
type StaticCapabilities struct {
	Biometric bool
	Keyguard  bool
}

func (c StaticCapabilities) HasBiometric(context.Context) bool { return c.Biometric }
func (c StaticCapabilities) HasKeyguard(context.Context) bool  { return c.Keyguard }

// PassthroughCipher seals instruments with a reversible prefix. Test use
// only; it provides no confidentiality.
type PassthroughCipher struct{}

func (PassthroughCipher) Seal(instrument core.Instrument) ([]byte, error) {
	return []byte("devkit:" + instrument.PAN), nil
}

type manualTimer struct {
	clock   *ManualClock
	when    time.Time
	fn      func()
	stopped bool
	fired   bool
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// ManualClock is a deterministic clock for driving coordinator timers in
// tests. Advance fires due timers in registration order.
type ManualClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*manualTimer
}

func NewManualClock() *ManualClock {
	return &ManualClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) AfterFunc(d time.Duration, fn func()) core.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	timer := &manualTimer{clock: c, when: c.now.Add(d), fn: fn}
	c.timers = append(c.timers, timer)
	return timer
}

// Advance moves the clock forward and fires every timer that came due.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	due := []*manualTimer{}
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

// PendingTimers counts timers that are registered and not yet fired.
func (c *ManualClock) PendingTimers() int {
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

var (
	_ core.Clock              = (*ManualClock)(nil)
	_ core.DeviceInfo         = StaticDevice{}
	_ core.PushTokenProvider  = StaticPushTokens{}
	_ core.DeviceCapabilities = StaticCapabilities{}
	_ core.InstrumentCipher   = PassthroughCipher{}
)
