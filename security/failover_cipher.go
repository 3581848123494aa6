package security

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/goliatone/go-wallet/core"
)

type CipherFailurePolicy string

const (
	CipherFailurePolicyStrict   CipherFailurePolicy = "strict_fail"
	CipherFailurePolicyFallback CipherFailurePolicy = "fallback_allowed"
)

// CipherDiagnostic reports one failover decision to an optional hook. The
// instrument itself never appears in diagnostics.
type CipherDiagnostic struct {
	OccurredAt time.Time
	Policy     CipherFailurePolicy
	Outcome    string
	Primary    string
	Fallback   string
	Error      string
}

type CipherDiagnosticHook func(event CipherDiagnostic)

type FailoverOption func(*FailoverInstrumentCipher)

// FailoverInstrumentCipher seals with a primary cipher and, under the
// fallback policy, retries with a secondary one when the primary fails.
// Used during onboarding-key rotations where two published keys overlap.
type FailoverInstrumentCipher struct {
	primary        core.InstrumentCipher
	fallback       core.InstrumentCipher
	policy         CipherFailurePolicy
	diagnosticHook CipherDiagnosticHook
	now            func() time.Time
}

func NewFailoverInstrumentCipher(primary core.InstrumentCipher, opts ...FailoverOption) (*FailoverInstrumentCipher, error) {
	if primary == nil {
		return nil, fmt.Errorf("security: primary instrument cipher is required")
	}
	cipher := &FailoverInstrumentCipher{
		primary: primary,
		policy:  CipherFailurePolicyStrict,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(cipher)
	}
	cipher.policy = normalizeFailurePolicy(cipher.policy)
	if cipher.policy == CipherFailurePolicyFallback && cipher.fallback == nil {
		return nil, fmt.Errorf("security: fallback policy requires a configured fallback cipher")
	}
	return cipher, nil
}

func WithFallbackCipher(cipher core.InstrumentCipher) FailoverOption {
	return func(f *FailoverInstrumentCipher) {
		if f == nil {
			return
		}
		f.fallback = cipher
	}
}

func WithCipherFailurePolicy(policy CipherFailurePolicy) FailoverOption {
	return func(f *FailoverInstrumentCipher) {
		if f == nil {
			return
		}
		f.policy = normalizeFailurePolicy(policy)
	}
}

func WithCipherDiagnostics(hook CipherDiagnosticHook) FailoverOption {
	return func(f *FailoverInstrumentCipher) {
		if f == nil {
			return
		}
		f.diagnosticHook = hook
	}
}

func WithFailoverClock(now func() time.Time) FailoverOption {
	return func(f *FailoverInstrumentCipher) {
		if f == nil || now == nil {
			return
		}
		f.now = now
	}
}

func (f *FailoverInstrumentCipher) Seal(instrument core.Instrument) ([]byte, error) {
	if f == nil {
		return nil, fmt.Errorf("security: instrument cipher is nil")
	}
	sealed, err := f.primary.Seal(instrument)
	if err == nil {
		return sealed, nil
	}
	f.emit("primary_failed", err)
	if f.policy == CipherFailurePolicyStrict || f.fallback == nil {
		return nil, fmt.Errorf("security: primary seal failed with %s policy: %w", f.policy, err)
	}
	fallbackSealed, fallbackErr := f.fallback.Seal(instrument)
	if fallbackErr != nil {
		f.emit("fallback_failed", fallbackErr)
		return nil, fmt.Errorf("security: primary seal failed: %v; fallback seal failed: %w", err, fallbackErr)
	}
	f.emit("fallback_succeeded", err)
	return fallbackSealed, nil
}

func (f *FailoverInstrumentCipher) emit(outcome string, err error) {
	if f == nil || f.diagnosticHook == nil {
		return
	}
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	f.diagnosticHook(CipherDiagnostic{
		OccurredAt: f.now().UTC(),
		Policy:     f.policy,
		Outcome:    outcome,
		Primary:    describeCipher(f.primary),
		Fallback:   describeCipher(f.fallback),
		Error:      msg,
	})
}

func normalizeFailurePolicy(policy CipherFailurePolicy) CipherFailurePolicy {
	normalized := CipherFailurePolicy(strings.ToLower(strings.TrimSpace(string(policy))))
	switch normalized {
	case CipherFailurePolicyFallback:
		return CipherFailurePolicyFallback
	default:
		return CipherFailurePolicyStrict
	}
}

func describeCipher(cipher core.InstrumentCipher) string {
	if cipher == nil {
		return ""
	}
	label := reflect.TypeOf(cipher).String()
	keyed, ok := cipher.(interface {
		KeyID() string
		Version() int
	})
	if !ok {
		return label
	}
	keyID := strings.TrimSpace(keyed.KeyID())
	if keyID == "" || keyed.Version() <= 0 {
		return label
	}
	return fmt.Sprintf("%s(%s:%d)", label, keyID, keyed.Version())
}

var _ core.InstrumentCipher = (*FailoverInstrumentCipher)(nil)
