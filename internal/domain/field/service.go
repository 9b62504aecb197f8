// Package field exposes the sensitive-field codec to callers: sealing a
// value for one patient and revealing a stored field, gated by the
// permission resolver. A field renders only when the resolver allows the
// view and the codec produces a display string.
package field

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/carecircle/carecircle/internal/platform/privacy"
)

// SensitiveFeatureKey is the capability gating sensitive-field access.
const SensitiveFeatureKey = "sensitive_view"

// Service binds the key deriver to the deployment's salt sources. It holds
// no key material between calls; the salt is fetched and the key re-derived
// on every operation so rotation takes effect immediately.
type Service struct {
	deriver *privacy.KeyDeriver
	salts   privacy.SaltSource
}

func NewService(deriver *privacy.KeyDeriver, salts privacy.SaltSource) *Service {
	return &Service{deriver: deriver, salts: salts}
}

// patientKey derives the patient's content key, or nil when the deployment
// has no salt configured. A salt below the floor is an error, not a weaker
// key.
func (s *Service) patientKey(ctx context.Context, patientID uuid.UUID) (privacy.ContentKey, error) {
	salt, err := s.salts.Salt(ctx)
	if errors.Is(err, privacy.ErrSaltUnavailable) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s.deriver.DerivePatientKey(patientID, salt)
}

// Seal encrypts a sensitive value into a fresh envelope. Sealing requires a
// derivable key; there is no plaintext fallback on the write path.
func (s *Service) Seal(ctx context.Context, patientID uuid.UUID, plaintext string) (*privacy.Envelope, error) {
	key, err := s.patientKey(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if key == nil {
		return nil, fmt.Errorf("%w: no deployment salt configured", privacy.ErrKeyUnavailable)
	}
	return privacy.Encrypt(key, plaintext)
}

// patientKeys derives one candidate key per configured salt, for the read
// path. A salt that cannot produce a key (below the floor, source down) is
// skipped; the remaining candidates are still tried.
func (s *Service) patientKeys(ctx context.Context, patientID uuid.UUID) []privacy.ContentKey {
	lister, ok := s.salts.(privacy.SaltLister)
	if !ok {
		key, err := s.patientKey(ctx, patientID)
		if err != nil || key == nil {
			return nil
		}
		return []privacy.ContentKey{key}
	}

	salts, err := lister.Salts(ctx)
	if err != nil {
		return nil
	}
	keys := make([]privacy.ContentKey, 0, len(salts))
	for _, salt := range salts {
		key, err := s.deriver.DerivePatientKey(patientID, salt)
		if err != nil {
			continue
		}
		keys = append(keys, key)
	}
	return keys
}

// Reveal decodes a stored field, trying a key per configured salt so a value
// sealed under the database salt stays readable after an environment salt is
// added on top. Key derivation failures degrade to the no-key path: the
// result is Redacted or the legacy plaintext, never an error that would take
// down the surrounding read.
func (s *Service) Reveal(ctx context.Context, patientID uuid.UUID, f privacy.EncryptedField) privacy.FieldResult {
	return privacy.DecryptAny(s.patientKeys(ctx, patientID), f)
}
