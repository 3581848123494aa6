package core

import (
	"fmt"
	"strings"
	"time"
)

// PaymentExperience selects when bring-up runs: eagerly at application start
// or deferred until the first terminal tap.
type PaymentExperience string

const (
	PaymentExperienceImmediate PaymentExperience = "immediate"
	PaymentExperienceDeferred  PaymentExperience = "deferred"
)

type BringupConfig struct {
	MaxAttempts  int           `koanf:"max_attempts" mapstructure:"max_attempts"`
	RetryBackoff time.Duration `koanf:"retry_backoff" mapstructure:"retry_backoff"`
	GatewayDelay time.Duration `koanf:"gateway_delay" mapstructure:"gateway_delay"`
}

type PaymentConfig struct {
	ErrorDebounce    time.Duration `koanf:"error_debounce" mapstructure:"error_debounce"`
	CountdownSeconds int           `koanf:"countdown_seconds" mapstructure:"countdown_seconds"`
}

type PushConfig struct {
	QueueLimit int `koanf:"queue_limit" mapstructure:"queue_limit"`
}

type Config struct {
	ServiceName       string            `koanf:"service_name" mapstructure:"service_name"`
	WalletID          string            `koanf:"wallet_id" mapstructure:"wallet_id"`
	Locale            string            `koanf:"locale" mapstructure:"locale"`
	PaymentExperience PaymentExperience `koanf:"payment_experience" mapstructure:"payment_experience"`
	Bringup           BringupConfig     `koanf:"bringup" mapstructure:"bringup"`
	Payment           PaymentConfig     `koanf:"payment" mapstructure:"payment"`
	Push              PushConfig        `koanf:"push" mapstructure:"push"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName:       "wallet",
		Locale:            "en-US",
		PaymentExperience: PaymentExperienceImmediate,
		Bringup: BringupConfig{
			MaxAttempts:  3,
			RetryBackoff: 2500 * time.Millisecond,
			// Chosen so a cold start triggered by a terminal tap does not
			// block the time-critical payment path on gateway setup.
			GatewayDelay: 700 * time.Millisecond,
		},
		Payment: PaymentConfig{
			ErrorDebounce:    300 * time.Millisecond,
			CountdownSeconds: 45,
		},
		Push: PushConfig{
			QueueLimit: 64,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	switch c.PaymentExperience {
	case PaymentExperienceImmediate, PaymentExperienceDeferred:
	default:
		return fmt.Errorf("core: invalid payment_experience %q", c.PaymentExperience)
	}
	if c.Bringup.MaxAttempts < 1 {
		return fmt.Errorf("core: bringup.max_attempts must be positive")
	}
	if c.Bringup.RetryBackoff < 0 || c.Bringup.GatewayDelay < 0 {
		return fmt.Errorf("core: bringup delays must not be negative")
	}
	if c.Payment.ErrorDebounce < 0 {
		return fmt.Errorf("core: payment.error_debounce must not be negative")
	}
	if c.Payment.CountdownSeconds < 1 {
		return fmt.Errorf("core: payment.countdown_seconds must be positive")
	}
	if c.Push.QueueLimit < 1 {
		return fmt.Errorf("core: push.queue_limit must be positive")
	}
	return nil
}
