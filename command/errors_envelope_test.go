package command

import (
	"context"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-wallet/core"
)

func TestPayWithCardMessage_ValidateReturnsRichError(t *testing.T) {
	err := (PayWithCardMessage{}).Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryValidation {
		t.Fatalf("expected validation category, got %q", rich.Category)
	}
	if rich.TextCode != core.WalletErrorBadInput {
		t.Fatalf("expected %q text code, got %q", core.WalletErrorBadInput, rich.TextCode)
	}
}

func TestStartBringupMessage_ValidateRejectsUnknownOrigin(t *testing.T) {
	if err := (StartBringupMessage{Origin: "reboot"}).Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
	if err := (StartBringupMessage{Origin: core.StartOriginManual}).Validate(); err != nil {
		t.Fatalf("expected manual origin to validate, got %v", err)
	}
}

func TestPayWithCardCommand_NilServiceReturnsRichError(t *testing.T) {
	var cmd *PayWithCardCommand
	err := cmd.Execute(context.Background(), PayWithCardMessage{CardID: "card-1"})
	if err == nil {
		t.Fatalf("expected command dependency error")
	}

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryInternal {
		t.Fatalf("expected internal category, got %q", rich.Category)
	}
}
