package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"

	"github.com/goliatone/go-wallet/core"
)

const (
	envelopePrefix    = "wallet.instrument.v1:"
	envelopeAlgorithm = "x25519-hkdf-chacha20poly1305"
	hkdfInfo          = "wallet instrument sealing"
)

type envelope struct {
	KeyID      string `json:"kid"`
	Version    int    `json:"ver"`
	Algorithm  string `json:"alg"`
	Ephemeral  string `json:"epk"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

type Option func(*X25519InstrumentCipher)

func WithKeyID(id string) Option {
	return func(c *X25519InstrumentCipher) {
		trimmed := strings.TrimSpace(id)
		if trimmed != "" {
			c.keyID = trimmed
		}
	}
}

func WithVersion(version int) Option {
	return func(c *X25519InstrumentCipher) {
		if version > 0 {
			c.version = version
		}
	}
}

// X25519InstrumentCipher seals instruments for the onboarding service. Each
// Seal uses a fresh ephemeral key pair, so two seals of the same instrument
// never produce the same envelope.
type X25519InstrumentCipher struct {
	recipient []byte
	keyID     string
	version   int
}

func NewX25519InstrumentCipher(recipientPublicKey []byte, opts ...Option) (*X25519InstrumentCipher, error) {
	if len(recipientPublicKey) != curve25519.PointSize {
		return nil, fmt.Errorf("security: recipient public key must be %d bytes, got %d",
			curve25519.PointSize, len(recipientPublicKey))
	}
	cipher := &X25519InstrumentCipher{
		recipient: append([]byte(nil), recipientPublicKey...),
		keyID:     "onboarding-key",
		version:   1,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(cipher)
	}
	return cipher, nil
}

func (c *X25519InstrumentCipher) Seal(instrument core.Instrument) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("security: instrument cipher is nil")
	}
	if err := instrument.Validate(); err != nil {
		return nil, err
	}

	plaintext, err := json.Marshal(instrumentPayload{
		PAN:         instrument.PAN,
		ExpiryMonth: instrument.ExpiryMonth,
		ExpiryYear:  instrument.ExpiryYear,
		CVV:         instrument.CVV,
		HolderName:  instrument.HolderName,
	})
	if err != nil {
		return nil, fmt.Errorf("security: encode instrument: %w", err)
	}
	defer Wipe(plaintext)

	ephemeralPriv := make([]byte, curve25519.ScalarSize)
	if _, err := io.ReadFull(rand.Reader, ephemeralPriv); err != nil {
		return nil, fmt.Errorf("security: ephemeral key generation failed: %w", err)
	}
	defer Wipe(ephemeralPriv)

	ephemeralPub, err := curve25519.X25519(ephemeralPriv, curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("security: ephemeral public key: %w", err)
	}

	key, err := deriveSealingKey(ephemeralPriv, c.recipient, ephemeralPub)
	if err != nil {
		return nil, err
	}
	defer Wipe(key)

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("security: create aead: %w", err)
	}
	nonce := make([]byte, chacha20poly1305.NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("security: nonce generation failed: %w", err)
	}
	sealed := aead.Seal(nil, nonce, plaintext, nil)

	data, err := json.Marshal(envelope{
		KeyID:      c.keyID,
		Version:    c.version,
		Algorithm:  envelopeAlgorithm,
		Ephemeral:  base64.StdEncoding.EncodeToString(ephemeralPub),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(sealed),
	})
	if err != nil {
		return nil, fmt.Errorf("security: encode envelope: %w", err)
	}
	return append([]byte(envelopePrefix), data...), nil
}

func (c *X25519InstrumentCipher) KeyID() string {
	if c == nil {
		return ""
	}
	return c.keyID
}

func (c *X25519InstrumentCipher) Version() int {
	if c == nil {
		return 0
	}
	return c.version
}

// Open reverses Seal with the recipient's private key. The onboarding service
// holds that key; this side only uses Open in tests and conformance checks.
func Open(recipientPrivateKey []byte, sealed []byte) (core.Instrument, error) {
	if len(recipientPrivateKey) != curve25519.ScalarSize {
		return core.Instrument{}, fmt.Errorf("security: recipient private key must be %d bytes", curve25519.ScalarSize)
	}
	payload := string(sealed)
	if !strings.HasPrefix(payload, envelopePrefix) {
		return core.Instrument{}, fmt.Errorf("security: invalid envelope prefix")
	}
	payload = strings.TrimPrefix(payload, envelopePrefix)

	var parsed envelope
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		return core.Instrument{}, fmt.Errorf("security: decode envelope: %w", err)
	}
	if parsed.Algorithm != envelopeAlgorithm {
		return core.Instrument{}, fmt.Errorf("security: unsupported algorithm %q", parsed.Algorithm)
	}

	ephemeralPub, err := base64.StdEncoding.DecodeString(parsed.Ephemeral)
	if err != nil {
		return core.Instrument{}, fmt.Errorf("security: decode ephemeral key: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(parsed.Nonce)
	if err != nil {
		return core.Instrument{}, fmt.Errorf("security: decode nonce: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(parsed.Ciphertext)
	if err != nil {
		return core.Instrument{}, fmt.Errorf("security: decode ciphertext: %w", err)
	}

	key, err := deriveSealingKey(recipientPrivateKey, ephemeralPub, ephemeralPub)
	if err != nil {
		return core.Instrument{}, err
	}
	defer Wipe(key)

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return core.Instrument{}, fmt.Errorf("security: create aead: %w", err)
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return core.Instrument{}, fmt.Errorf("security: open envelope: %w", err)
	}
	defer Wipe(plaintext)

	var decoded instrumentPayload
	if err := json.Unmarshal(plaintext, &decoded); err != nil {
		return core.Instrument{}, fmt.Errorf("security: decode instrument: %w", err)
	}
	return core.Instrument{
		PAN:         decoded.PAN,
		ExpiryMonth: decoded.ExpiryMonth,
		ExpiryYear:  decoded.ExpiryYear,
		CVV:         decoded.CVV,
		HolderName:  decoded.HolderName,
	}, nil
}

// GenerateRecipientKeyPair returns a fresh X25519 key pair. Production
// deployments embed the onboarding service's published key instead.
func GenerateRecipientKeyPair() (privateKey []byte, publicKey []byte, err error) {
	privateKey = make([]byte, curve25519.ScalarSize)
	if _, err = io.ReadFull(rand.Reader, privateKey); err != nil {
		return nil, nil, fmt.Errorf("security: key generation failed: %w", err)
	}
	publicKey, err = curve25519.X25519(privateKey, curve25519.Basepoint)
	if err != nil {
		return nil, nil, fmt.Errorf("security: public key derivation failed: %w", err)
	}
	return privateKey, publicKey, nil
}

// deriveSealingKey binds the AEAD key to the ephemeral public key so a
// transplanted ephemeral cannot be replayed against another envelope.
func deriveSealingKey(scalar []byte, point []byte, ephemeralPub []byte) ([]byte, error) {
	shared, err := curve25519.X25519(scalar, point)
	if err != nil {
		return nil, fmt.Errorf("security: key agreement failed: %w", err)
	}
	defer Wipe(shared)

	key := make([]byte, chacha20poly1305.KeySize)
	reader := hkdf.New(sha256.New, shared, ephemeralPub, []byte(hkdfInfo))
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("security: key derivation failed: %w", err)
	}
	return key, nil
}

type instrumentPayload struct {
	PAN         string `json:"pan"`
	ExpiryMonth int    `json:"expiryMonth"`
	ExpiryYear  int    `json:"expiryYear"`
	CVV         string `json:"cvv,omitempty"`
	HolderName  string `json:"holderName,omitempty"`
}

var _ core.InstrumentCipher = (*X25519InstrumentCipher)(nil)
