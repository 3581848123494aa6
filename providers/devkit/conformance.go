package devkit

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-wallet/core"
)

// ValidateEngineCardConformance drives the default-card contract on a live
// engine: after SetDefault the chosen card must be the only default, and
// CardState must resolve for every card the engine lists.
func ValidateEngineCardConformance(
	ctx context.Context,
	engine core.Engine,
	paymentType core.PaymentType,
) error {
	if engine == nil {
		return fmt.Errorf("devkit: engine is required")
	}
	cardIDs, err := engine.Cards(ctx)
	if err != nil {
		return err
	}
	if len(cardIDs) == 0 {
		return fmt.Errorf("devkit: engine must list at least one card")
	}
	for _, cardID := range cardIDs {
		if _, err := engine.CardState(ctx, cardID); err != nil {
			return fmt.Errorf("devkit: card state lookup failed for %q: %w", cardID, err)
		}
	}

	chosen := cardIDs[len(cardIDs)-1]
	if err := engine.SetDefault(ctx, chosen, paymentType); err != nil {
		return err
	}
	defaults := 0
	for _, cardID := range cardIDs {
		isDefault, err := engine.IsDefault(ctx, cardID, paymentType)
		if err != nil {
			return err
		}
		if isDefault {
			defaults++
			if cardID != chosen {
				return fmt.Errorf("devkit: %q is default but %q was set", cardID, chosen)
			}
		}
	}
	if defaults != 1 {
		return fmt.Errorf("devkit: expected exactly one default card, got %d", defaults)
	}
	return nil
}

// ValidateInstrumentCipherConformance checks that sealed instrument data is
// non-empty and does not leak the PAN in cleartext.
func ValidateInstrumentCipherConformance(
	cipher core.InstrumentCipher,
	instrument core.Instrument,
) error {
	if cipher == nil {
		return fmt.Errorf("devkit: instrument cipher is required")
	}
	if err := instrument.Validate(); err != nil {
		return err
	}
	sealed, err := cipher.Seal(instrument)
	if err != nil {
		return err
	}
	if len(sealed) == 0 {
		return fmt.Errorf("devkit: sealed instrument must not be empty")
	}
	if bytes.Contains(sealed, []byte(instrument.PAN)) {
		return fmt.Errorf("devkit: sealed instrument leaks the card number")
	}
	return nil
}

// ValidatePushTokenProviderConformance checks that a token provider yields a
// usable token and names its channel.
func ValidatePushTokenProviderConformance(
	ctx context.Context,
	tokens core.PushTokenProvider,
) error {
	if tokens == nil {
		return fmt.Errorf("devkit: push token provider is required")
	}
	if strings.TrimSpace(tokens.Provider()) == "" {
		return fmt.Errorf("devkit: push token provider name is required")
	}
	token, err := tokens.Token(ctx)
	if err != nil {
		return err
	}
	if strings.TrimSpace(token) == "" {
		return fmt.Errorf("devkit: push token must not be empty")
	}
	return nil
}
