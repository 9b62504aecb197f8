// Package vault manages per-account device keypairs: an X25519 key-agreement
// pair whose private half is wrapped under a device-held secret before it is
// ever persisted. The unwrapped private key and the device secret never
// leave the device.
package vault

import "time"

// KeyRecord is the server-side row for one account's device keypair. The
// public key is stored in the clear; the private key only in wrapped form.
type KeyRecord struct {
	AccountID  string    `db:"account_id" json:"account_id"`
	PublicKey  []byte    `db:"public_key" json:"public_key"`
	WrappedKey []byte    `db:"wrapped_key" json:"wrapped_key"`
	WrapIV     []byte    `db:"wrap_iv" json:"wrap_iv"`
	WrapSalt   []byte    `db:"wrap_salt" json:"wrap_salt"`
	ScryptN    int       `db:"scrypt_n" json:"scrypt_n"`
	ScryptR    int       `db:"scrypt_r" json:"scrypt_r"`
	ScryptP    int       `db:"scrypt_p" json:"scrypt_p"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// PublicKeyRecord is the caller-facing projection, with the wrapped private
// material omitted.
type PublicKeyRecord struct {
	AccountID string    `json:"account_id"`
	PublicKey []byte    `json:"public_key"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (r *KeyRecord) Public() *PublicKeyRecord {
	return &PublicKeyRecord{
		AccountID: r.AccountID,
		PublicKey: r.PublicKey,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}
