// Package privacy implements the confidentiality layer for sensitive patient
// fields: deterministic per-patient content keys, the authenticated envelope
// format, and a decoder tolerant of the encodings earlier releases wrote.
package privacy

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"
)

// ContentKey is a 256-bit symmetric key for one patient's sensitive fields.
type ContentKey []byte

const (
	// ContentKeySize is the derived key length in bytes (AES-256).
	ContentKeySize = 32

	// DefaultSaltFloor is the minimum server salt length accepted by
	// derivation. A floor, not a security guarantee.
	DefaultSaltFloor = 8

	keyInfoPrefix = "carecircle/patient-field/v1:"
)

// ErrKeyUnavailable is returned when a content key cannot be derived, most
// commonly because the server salt is absent or below the configured floor.
// Derivation never proceeds with a weak key.
var ErrKeyUnavailable = errors.New("content key unavailable")

// KeyDeriver derives patient content keys. Derivation is pure: the same
// (patient id, salt) pair always yields the same key on any device, with no
// per-call randomness and no cached state.
type KeyDeriver struct {
	saltFloor int
}

func NewKeyDeriver(saltFloor int) *KeyDeriver {
	if saltFloor < DefaultSaltFloor {
		saltFloor = DefaultSaltFloor
	}
	return &KeyDeriver{saltFloor: saltFloor}
}

// DerivePatientKey expands the server salt into a 256-bit key bound to one
// patient via HKDF-SHA256. The salt is the input key material; the patient id
// is carried in the info string so distinct patients get independent keys
// from the same deployment salt.
func (d *KeyDeriver) DerivePatientKey(patientID uuid.UUID, serverSalt string) (ContentKey, error) {
	if len(serverSalt) < d.saltFloor {
		return nil, fmt.Errorf("%w: salt shorter than %d characters", ErrKeyUnavailable, d.saltFloor)
	}

	r := hkdf.New(sha256.New, []byte(serverSalt), nil, []byte(keyInfoPrefix+patientID.String()))
	key := make(ContentKey, ContentKeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyUnavailable, err)
	}
	return key, nil
}
