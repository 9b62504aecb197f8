package privacy

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrSaltUnavailable is returned when no configured source can produce a
// deployment salt.
var ErrSaltUnavailable = errors.New("deployment salt unavailable")

// SaltSource yields the server-held salt consumed by key derivation. Sources
// must not cache the value between calls; rotation takes effect on the next
// derivation without an invalidation protocol.
type SaltSource interface {
	Salt(ctx context.Context) (string, error)
}

// SaltLister reports every currently valid salt, in preference order. Seal
// always uses the first; decrypt paths derive a candidate key from each so
// ciphertext written under a salt that later moved between sources stays
// readable.
type SaltLister interface {
	Salts(ctx context.Context) ([]string, error)
}

// StaticSaltSource serves a salt fixed at process start, typically from the
// CIRCLE_SALT environment variable.
type StaticSaltSource struct{ value string }

func NewStaticSaltSource(value string) *StaticSaltSource {
	return &StaticSaltSource{value: value}
}

func (s *StaticSaltSource) Salt(context.Context) (string, error) {
	if s.value == "" {
		return "", ErrSaltUnavailable
	}
	return s.value, nil
}

// DBSaltSource reads the deployment salt from the deployment_secret table on
// every call.
type DBSaltSource struct{ pool *pgxpool.Pool }

func NewDBSaltSource(pool *pgxpool.Pool) *DBSaltSource {
	return &DBSaltSource{pool: pool}
}

func (s *DBSaltSource) Salt(ctx context.Context) (string, error) {
	var value string
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM deployment_secret WHERE name = 'circle_salt'`).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrSaltUnavailable
	}
	if err != nil {
		return "", fmt.Errorf("load deployment salt: %w", err)
	}
	return value, nil
}

// MultiSaltSource tries each source in order and returns the first salt
// found. Deployments that moved the salt between the environment and the
// database keep both sources wired so old data stays decryptable.
type MultiSaltSource struct{ sources []SaltSource }

func NewMultiSaltSource(sources ...SaltSource) *MultiSaltSource {
	return &MultiSaltSource{sources: sources}
}

func (s *MultiSaltSource) Salt(ctx context.Context) (string, error) {
	var lastErr error = ErrSaltUnavailable
	for _, src := range s.sources {
		salt, err := src.Salt(ctx)
		if err == nil && salt != "" {
			return salt, nil
		}
		if err != nil && !errors.Is(err, ErrSaltUnavailable) {
			lastErr = err
		}
	}
	return "", lastErr
}

// Salts collects the salt from every backing source, deduplicated, in source
// order. A source that is down is skipped rather than hiding the salts the
// other sources can still produce; its error is surfaced only when no source
// yields anything.
func (s *MultiSaltSource) Salts(ctx context.Context) ([]string, error) {
	var salts []string
	var lastErr error = ErrSaltUnavailable
	seen := make(map[string]bool, len(s.sources))
	for _, src := range s.sources {
		salt, err := src.Salt(ctx)
		if err != nil {
			if !errors.Is(err, ErrSaltUnavailable) {
				lastErr = err
			}
			continue
		}
		if salt == "" || seen[salt] {
			continue
		}
		seen[salt] = true
		salts = append(salts, salt)
	}
	if len(salts) == 0 {
		return nil, lastErr
	}
	return salts, nil
}
