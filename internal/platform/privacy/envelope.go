package privacy

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	// EnvelopeVersion is the version written to new envelopes.
	EnvelopeVersion = 1

	// IVSize is the GCM nonce length. Fixed by the envelope format.
	IVSize = 12

	stringEnvelopePrefix = "enc:v1:"
)

// ErrMalformedEnvelope is returned when a stored value cannot be normalized
// into an envelope.
var ErrMalformedEnvelope = errors.New("malformed envelope")

// Envelope is the canonical authenticated-ciphertext shape for one sensitive
// field. The GCM tag is appended to Ciphertext. Envelopes are never mutated
// in place; re-encryption writes a new one with a fresh IV.
type Envelope struct {
	Version    int    `json:"v"`
	IV         []byte `json:"iv"`
	Ciphertext []byte `json:"ciphertext"`
}

// String renders the compact text form, "enc:v1:<b64 iv>:<b64 ciphertext>",
// used where storage wants a single string column.
func (e *Envelope) String() string {
	return fmt.Sprintf("enc:v%d:%s:%s", e.Version,
		base64.StdEncoding.EncodeToString(e.IV),
		base64.StdEncoding.EncodeToString(e.Ciphertext))
}

// envelopeJSON accepts the field spellings earlier releases wrote. Each
// byte field may be base64 text or a raw JSON byte array.
type envelopeJSON struct {
	Version    int       `json:"v"`
	VersionAlt int       `json:"version"`
	IV         flexBytes `json:"iv"`
	Nonce      flexBytes `json:"nonce"`
	Ciphertext flexBytes `json:"ciphertext"`
	Data       flexBytes `json:"data"`
}

// flexBytes unmarshals either a base64 JSON string or a JSON array of byte
// values into raw bytes.
type flexBytes []byte

func (f *flexBytes) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		b, err := decodeBase64(s)
		if err != nil {
			return err
		}
		*f = b
		return nil
	}
	var nums []int
	if err := json.Unmarshal(data, &nums); err != nil {
		return err
	}
	b := make([]byte, len(nums))
	for i, n := range nums {
		if n < 0 || n > 255 {
			return fmt.Errorf("byte value %d out of range", n)
		}
		b[i] = byte(n)
	}
	*f = b
	return nil
}

func decodeBase64(s string) ([]byte, error) {
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawStdEncoding.DecodeString(s)
}

// ParseEnvelope normalizes any historical stored shape into the canonical
// envelope: a JSON object (byte arrays or base64 strings, "iv" or "nonce",
// "ciphertext" or "data"), the compact "enc:v1:..." string, or a JSON string
// containing that compact form. It never panics on malformed input.
func ParseEnvelope(raw []byte) (*Envelope, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return nil, ErrMalformedEnvelope
	}

	if strings.HasPrefix(trimmed, stringEnvelopePrefix) {
		return parseStringEnvelope(trimmed)
	}

	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal([]byte(trimmed), &s); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
		}
		return parseStringEnvelope(s)
	case '{':
		return parseObjectEnvelope([]byte(trimmed))
	default:
		return nil, fmt.Errorf("%w: unrecognized shape", ErrMalformedEnvelope)
	}
}

func parseStringEnvelope(s string) (*Envelope, error) {
	if !strings.HasPrefix(s, stringEnvelopePrefix) {
		return nil, fmt.Errorf("%w: missing enc prefix", ErrMalformedEnvelope)
	}
	parts := strings.Split(strings.TrimPrefix(s, stringEnvelopePrefix), ":")
	if len(parts) != 2 {
		return nil, fmt.Errorf("%w: expected iv:ciphertext segments", ErrMalformedEnvelope)
	}
	iv, err := decodeBase64(parts[0])
	if err != nil {
		return nil, fmt.Errorf("%w: iv: %v", ErrMalformedEnvelope, err)
	}
	ct, err := decodeBase64(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: ciphertext: %v", ErrMalformedEnvelope, err)
	}
	return validated(&Envelope{Version: 1, IV: iv, Ciphertext: ct})
}

func parseObjectEnvelope(raw []byte) (*Envelope, error) {
	var obj envelopeJSON
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}

	iv := []byte(obj.IV)
	if len(iv) == 0 {
		iv = []byte(obj.Nonce)
	}
	ct := []byte(obj.Ciphertext)
	if len(ct) == 0 {
		ct = []byte(obj.Data)
	}

	version := obj.Version
	if version == 0 {
		version = obj.VersionAlt
	}
	if version == 0 {
		version = 1
	}

	return validated(&Envelope{Version: version, IV: iv, Ciphertext: ct})
}

func validated(e *Envelope) (*Envelope, error) {
	if len(e.IV) != IVSize {
		return nil, fmt.Errorf("%w: iv must be %d bytes, got %d", ErrMalformedEnvelope, IVSize, len(e.IV))
	}
	if len(e.Ciphertext) == 0 {
		return nil, fmt.Errorf("%w: empty ciphertext", ErrMalformedEnvelope)
	}
	return e, nil
}
