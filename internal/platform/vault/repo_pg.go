package vault

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carecircle/carecircle/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type keyRepoPG struct{ pool *pgxpool.Pool }

func NewKeyRepoPG(pool *pgxpool.Pool) KeyRepository {
	return &keyRepoPG{pool: pool}
}

func (r *keyRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *keyRepoPG) Upsert(ctx context.Context, rec *KeyRecord) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO device_key
			(account_id, public_key, wrapped_key, wrap_iv, wrap_salt, scrypt_n, scrypt_r, scrypt_p)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (account_id) DO UPDATE SET
			public_key = EXCLUDED.public_key,
			wrapped_key = EXCLUDED.wrapped_key,
			wrap_iv = EXCLUDED.wrap_iv,
			wrap_salt = EXCLUDED.wrap_salt,
			scrypt_n = EXCLUDED.scrypt_n,
			scrypt_r = EXCLUDED.scrypt_r,
			scrypt_p = EXCLUDED.scrypt_p,
			updated_at = NOW()`,
		rec.AccountID, rec.PublicKey, rec.WrappedKey, rec.WrapIV, rec.WrapSalt,
		rec.ScryptN, rec.ScryptR, rec.ScryptP)
	return err
}

func (r *keyRepoPG) Get(ctx context.Context, accountID string) (*KeyRecord, error) {
	var rec KeyRecord
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT account_id, public_key, wrapped_key, wrap_iv, wrap_salt,
			scrypt_n, scrypt_r, scrypt_p, created_at, updated_at
		FROM device_key
		WHERE account_id = $1`, accountID).
		Scan(&rec.AccountID, &rec.PublicKey, &rec.WrappedKey, &rec.WrapIV, &rec.WrapSalt,
			&rec.ScryptN, &rec.ScryptR, &rec.ScryptP, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *keyRepoPG) Delete(ctx context.Context, accountID string) error {
	_, err := r.conn(ctx).Exec(ctx,
		`DELETE FROM device_key WHERE account_id = $1`, accountID)
	return err
}
