package vault

import (
	"context"
	"errors"
)

// ErrNotFound is returned when an account has no stored device key.
var ErrNotFound = errors.New("device key not found")

// KeyRepository persists device key records, one per account.
type KeyRepository interface {
	// Upsert stores the record, replacing any existing one for the account.
	Upsert(ctx context.Context, rec *KeyRecord) error
	Get(ctx context.Context, accountID string) (*KeyRecord, error)
	Delete(ctx context.Context, accountID string) error
}
