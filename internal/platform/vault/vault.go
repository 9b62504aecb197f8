package vault

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/scrypt"

	"github.com/carecircle/carecircle/internal/platform/privacy"
)

var (
	// ErrDeviceSecretMissing is returned when no device secret is supplied,
	// or an unwrap fails because the supplied secret does not match the one
	// the key was wrapped under. Previously wrapped keys are unrecoverable
	// without the original secret; callers should prompt re-generation.
	ErrDeviceSecretMissing = errors.New("device secret missing or invalid")

	// ErrGenerationFailed is returned when keypair generation or wrapping
	// fails.
	ErrGenerationFailed = errors.New("key generation failed")
)

const (
	wrapSaltSize    = 16
	minDeviceSecret = 16
	wrapKeySize     = privacy.ContentKeySize
)

// ScryptParams tunes the key-stretching cost for wrapping. Parameters are
// stored alongside each record so they can be raised for new keys without
// breaking unwrap of old ones.
type ScryptParams struct {
	N int
	R int
	P int
}

// DefaultScryptParams matches the interactive-login cost recommended for
// scrypt.
func DefaultScryptParams() ScryptParams {
	return ScryptParams{N: 1 << 15, R: 8, P: 1}
}

// Service generates and stores device keypairs. Generation is serialized per
// account: two concurrent calls for the same account would otherwise race
// and leave the server holding a public key whose private half one device
// already discarded.
type Service struct {
	repo   KeyRepository
	params ScryptParams

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewService(repo KeyRepository, params ScryptParams) *Service {
	if params.N == 0 {
		params = DefaultScryptParams()
	}
	return &Service{
		repo:   repo,
		params: params,
		locks:  make(map[string]*sync.Mutex),
	}
}

func (s *Service) accountLock(accountID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[accountID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[accountID] = l
	}
	return l
}

// GenerateAndStore creates a fresh X25519 keypair for the account, wraps the
// private key under the device secret, and upserts the record. Only the
// wrapped form and the public key are handed to storage.
func (s *Service) GenerateAndStore(ctx context.Context, accountID string, deviceSecret []byte) (*PublicKeyRecord, error) {
	if accountID == "" {
		return nil, fmt.Errorf("%w: account id is required", ErrGenerationFailed)
	}
	if len(deviceSecret) < minDeviceSecret {
		return nil, ErrDeviceSecretMissing
	}

	l := s.accountLock(accountID)
	l.Lock()
	defer l.Unlock()

	priv, err := ecdh.X25519().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	salt := make([]byte, wrapSaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	wrapKey, err := s.stretch(deviceSecret, salt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	env, err := privacy.Seal(wrapKey, priv.Bytes())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	rec := &KeyRecord{
		AccountID:  accountID,
		PublicKey:  priv.PublicKey().Bytes(),
		WrappedKey: env.Ciphertext,
		WrapIV:     env.IV,
		WrapSalt:   salt,
		ScryptN:    s.params.N,
		ScryptR:    s.params.R,
		ScryptP:    s.params.P,
	}
	if err := s.repo.Upsert(ctx, rec); err != nil {
		return nil, fmt.Errorf("store device key: %w", err)
	}
	return rec.Public(), nil
}

// Unwrap recovers the private key from a stored record using the device
// secret it was wrapped under. A wrong or lost secret surfaces as
// ErrDeviceSecretMissing; the wrapped key is unrecoverable without it.
func (s *Service) Unwrap(rec *KeyRecord, deviceSecret []byte) (*ecdh.PrivateKey, error) {
	if len(deviceSecret) == 0 {
		return nil, ErrDeviceSecretMissing
	}

	wrapKey, err := scrypt.Key(deviceSecret, rec.WrapSalt, rec.ScryptN, rec.ScryptR, rec.ScryptP, wrapKeySize)
	if err != nil {
		return nil, fmt.Errorf("stretch device secret: %w", err)
	}

	raw, err := privacy.Open(privacy.ContentKey(wrapKey), &privacy.Envelope{
		Version:    privacy.EnvelopeVersion,
		IV:         rec.WrapIV,
		Ciphertext: rec.WrappedKey,
	})
	if err != nil {
		return nil, ErrDeviceSecretMissing
	}

	priv, err := ecdh.X25519().NewPrivateKey(raw)
	if err != nil {
		return nil, fmt.Errorf("decode private key: %w", err)
	}
	return priv, nil
}

// Get returns the public projection of the account's stored keypair.
func (s *Service) Get(ctx context.Context, accountID string) (*PublicKeyRecord, error) {
	rec, err := s.repo.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return rec.Public(), nil
}

// Store persists a record the device wrapped itself, for clients that run
// generation locally and upload only the wrapped result.
func (s *Service) Store(ctx context.Context, rec *KeyRecord) error {
	if rec.AccountID == "" || len(rec.PublicKey) == 0 || len(rec.WrappedKey) == 0 {
		return fmt.Errorf("%w: incomplete record", ErrGenerationFailed)
	}
	if len(rec.WrapIV) != privacy.IVSize || len(rec.WrapSalt) == 0 {
		return fmt.Errorf("%w: incomplete wrap parameters", ErrGenerationFailed)
	}
	if rec.ScryptN == 0 {
		rec.ScryptN, rec.ScryptR, rec.ScryptP = s.params.N, s.params.R, s.params.P
	}

	l := s.accountLock(rec.AccountID)
	l.Lock()
	defer l.Unlock()
	return s.repo.Upsert(ctx, rec)
}

func (s *Service) stretch(deviceSecret, salt []byte) (privacy.ContentKey, error) {
	key, err := scrypt.Key(deviceSecret, salt, s.params.N, s.params.R, s.params.P, wrapKeySize)
	if err != nil {
		return nil, err
	}
	return privacy.ContentKey(key), nil
}
