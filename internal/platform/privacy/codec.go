package privacy

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrInvalidKey is returned by Seal/Open for keys of the wrong length.
	ErrInvalidKey = errors.New("invalid content key")

	// ErrDecryptFailed is returned by Open when GCM authentication fails.
	// Wrong key, flipped bit and truncated ciphertext are indistinguishable
	// here, deliberately.
	ErrDecryptFailed = errors.New("decryption failed")
)

// FieldState classifies the outcome of reading one sensitive field.
type FieldState int

const (
	// FieldClear means plaintext is available, either decrypted or stored
	// in the clear by an older release.
	FieldClear FieldState = iota
	// FieldRedacted means ciphertext exists but no key was available. An
	// expected state on unconfigured deployments, not an error.
	FieldRedacted
	// FieldUnreadable means a key was available but the envelope could not
	// be decoded or authenticated. Something is wrong with the data or the
	// key, and the UI must show it differently from Redacted.
	FieldUnreadable
)

func (s FieldState) String() string {
	switch s {
	case FieldClear:
		return "clear"
	case FieldRedacted:
		return "redacted"
	case FieldUnreadable:
		return "unreadable"
	default:
		return "unknown"
	}
}

// FieldResult is the tri-state outcome of decoding one sensitive field.
// Plaintext is meaningful only when State is FieldClear. Raw preserves the
// stored value for diagnostics when State is FieldUnreadable.
type FieldResult struct {
	State     FieldState
	Plaintext string
	Raw       []byte
}

func clearResult(plaintext string) FieldResult {
	return FieldResult{State: FieldClear, Plaintext: plaintext}
}

// EncryptedField is one sensitive attribute as stored: at most one of the
// two representations is written per record, but both are read so records
// written before encryption was enabled stay legible.
type EncryptedField struct {
	// Envelope holds the stored ciphertext in whatever shape the writing
	// release used. Nil when the field was stored as plaintext.
	Envelope json.RawMessage `json:"envelope,omitempty"`
	// LegacyPlaintext is the pre-encryption cleartext value, if any.
	LegacyPlaintext *string `json:"plaintext,omitempty"`
}

func (f EncryptedField) legacy() (string, bool) {
	if f.LegacyPlaintext == nil {
		return "", false
	}
	return *f.LegacyPlaintext, true
}

// Seal encrypts plaintext under key with AES-256-GCM and a fresh random
// 12-byte IV. IVs are never reused across envelopes, even for the same
// field and key.
func Seal(key ContentKey, plaintext []byte) (*Envelope, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	iv := make([]byte, IVSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("generate iv: %w", err)
	}
	return &Envelope{
		Version:    EnvelopeVersion,
		IV:         iv,
		Ciphertext: gcm.Seal(nil, iv, plaintext, nil),
	}, nil
}

// Open decrypts and authenticates an envelope.
func Open(key ContentKey, env *Envelope) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(env.IV) != IVSize {
		return nil, ErrDecryptFailed
	}
	plaintext, err := gcm.Open(nil, env.IV, env.Ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	return plaintext, nil
}

func newGCM(key ContentKey) (cipher.AEAD, error) {
	if len(key) != ContentKeySize {
		return nil, fmt.Errorf("%w: need %d bytes, got %d", ErrInvalidKey, ContentKeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return cipher.NewGCM(block)
}

// Encrypt seals a sensitive string value into a fresh envelope.
func Encrypt(key ContentKey, plaintext string) (*Envelope, error) {
	return Seal(key, []byte(plaintext))
}

// Decrypt reads one stored field and reduces it to a FieldResult. key may be
// nil when the deployment has no salt configured.
//
// Precedence: the envelope wins when a key is available and it decodes and
// authenticates; any envelope failure falls back to the legacy plaintext if
// one exists; a failed envelope with no fallback is Unreadable; an envelope
// without a key and without a fallback is Redacted. A field with neither
// representation is Clear with an empty string.
func Decrypt(key ContentKey, field EncryptedField) FieldResult {
	if key == nil {
		return DecryptAny(nil, field)
	}
	return DecryptAny([]ContentKey{key}, field)
}

// DecryptAny is Decrypt over candidate keys: the envelope is accepted on the
// first key that authenticates it. Deployments holding salts in more than one
// place derive one key per salt, so ciphertext written before a salt moved
// between sources stays readable. An empty key slice is the no-key path.
func DecryptAny(keys []ContentKey, field EncryptedField) FieldResult {
	if len(field.Envelope) == 0 {
		if legacy, ok := field.legacy(); ok {
			return clearResult(legacy)
		}
		return clearResult("")
	}

	if len(keys) == 0 {
		if legacy, ok := field.legacy(); ok {
			return clearResult(legacy)
		}
		return FieldResult{State: FieldRedacted, Raw: field.Envelope}
	}

	if env, err := ParseEnvelope(field.Envelope); err == nil {
		for _, key := range keys {
			if plaintext, err := Open(key, env); err == nil {
				return clearResult(string(plaintext))
			}
		}
	}

	if legacy, ok := field.legacy(); ok {
		return clearResult(legacy)
	}
	return FieldResult{State: FieldUnreadable, Raw: field.Envelope}
}
