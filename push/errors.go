package push

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-wallet/core"
)

func pushError(
	message string,
	category goerrors.Category,
	code int,
	textCode string,
	metadata map[string]any,
) error {
	err := goerrors.New(message, category).
		WithCode(code).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func pushWrapError(
	source error,
	category goerrors.Category,
	message string,
	code int,
	textCode string,
	metadata map[string]any,
) error {
	if source == nil {
		return pushError(message, category, code, textCode, metadata)
	}
	err := goerrors.Wrap(source, category, message).
		WithCode(code).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func pushBadInput(message string, metadata map[string]any) error {
	return pushError(
		message,
		goerrors.CategoryBadInput,
		http.StatusBadRequest,
		core.WalletErrorBadInput,
		metadata,
	)
}

func pushInternal(message string, metadata map[string]any) error {
	return pushError(
		message,
		goerrors.CategoryInternal,
		http.StatusInternalServerError,
		core.WalletErrorInternal,
		metadata,
	)
}
