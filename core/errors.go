package core

import (
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	WalletErrorBadInput          = "WALLET_BAD_INPUT"
	WalletErrorNotReady          = "WALLET_NOT_READY"
	WalletErrorBringupFailed     = "WALLET_BRINGUP_FAILED"
	WalletErrorDeviceUnsupported = "WALLET_DEVICE_UNSUPPORTED"
	WalletErrorCardNotFound      = "WALLET_CARD_NOT_FOUND"
	WalletErrorEngineRejected    = "WALLET_ENGINE_REJECTED"
	WalletErrorSessionConflict   = "WALLET_SESSION_CONFLICT"
	WalletErrorInternal          = "WALLET_INTERNAL_ERROR"
)

// EngineErrorCode is the closed set of codes the external engine reports.
// Bring-up classifies these into ignore / success / transient / fatal.
type EngineErrorCode string

const (
	EngineErrInitInProgress      EngineErrorCode = "init_in_progress"
	EngineErrAlreadyInitialized  EngineErrorCode = "already_initialized"
	EngineErrAlreadyConfigured   EngineErrorCode = "already_configured"
	EngineErrInternal            EngineErrorCode = "internal_error"
	EngineErrStorage             EngineErrorCode = "storage_error"
	EngineErrStaleVersion        EngineErrorCode = "stale_version"
	EngineErrMigration           EngineErrorCode = "migration_error"
	EngineErrVerificationMissing EngineErrorCode = "verification_method_required"
	EngineErrEligibilityRefused  EngineErrorCode = "eligibility_refused"
	EngineErrDigitizationFailed  EngineErrorCode = "digitization_failed"
	EngineErrEnrollmentFailed    EngineErrorCode = "enrollment_failed"
	EngineErrAuthFailed          EngineErrorCode = "authentication_failed"
	EngineErrUnknown             EngineErrorCode = "unknown"
)

// EngineError carries an engine-reported code and message verbatim across the
// boundary. Business errors are never retried by this layer.
type EngineError struct {
	Code    EngineErrorCode
	Message string
}

func (e *EngineError) Error() string {
	if e == nil {
		return "core: engine error"
	}
	if strings.TrimSpace(e.Message) == "" {
		return "core: engine error: " + string(e.Code)
	}
	return "core: engine error " + string(e.Code) + ": " + e.Message
}

func NewEngineError(code EngineErrorCode, message string) *EngineError {
	return &EngineError{Code: code, Message: strings.TrimSpace(message)}
}

// EngineErrorCodeOf extracts the engine code from an error chain, returning
// EngineErrUnknown for anything the engine did not produce.
func EngineErrorCodeOf(err error) EngineErrorCode {
	var engineErr *EngineError
	if errors.As(err, &engineErr) && engineErr != nil {
		return engineErr.Code
	}
	return EngineErrUnknown
}

// transientBringupCode reports whether a core-init failure is in the bounded
// wipe-and-retry set.
func transientBringupCode(code EngineErrorCode) bool {
	switch code {
	case EngineErrInternal, EngineErrStorage, EngineErrStaleVersion, EngineErrMigration:
		return true
	}
	return false
}

func walletErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureWalletErrorEnvelope(richErr)
	}

	var engineErr *EngineError
	if errors.As(err, &engineErr) {
		return ensureWalletErrorEnvelope(
			goerrors.Wrap(err, goerrors.CategoryOperation, engineErr.Error()).
				WithTextCode(WalletErrorEngineRejected),
		)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "not ready"), strings.Contains(msg, "bring-up"):
		return newWalletError(err.Error(), goerrors.CategoryConflict, WalletErrorNotReady)
	case strings.Contains(msg, "device") && strings.Contains(msg, "verification"):
		return newWalletError(err.Error(), goerrors.CategoryOperation, WalletErrorDeviceUnsupported)
	case strings.Contains(msg, "card") && strings.Contains(msg, "not found"):
		return newWalletError(err.Error(), goerrors.CategoryNotFound, WalletErrorCardNotFound)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "out of range"):
		return newWalletError(err.Error(), goerrors.CategoryBadInput, WalletErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureWalletErrorEnvelope(mapped)
}

func newWalletError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureWalletErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureWalletErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = walletHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultWalletTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultWalletTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return WalletErrorBadInput
	case goerrors.CategoryNotFound:
		return WalletErrorCardNotFound
	case goerrors.CategoryConflict:
		return WalletErrorSessionConflict
	case goerrors.CategoryOperation:
		return WalletErrorEngineRejected
	default:
		return WalletErrorInternal
	}
}

func walletHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryOperation:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
