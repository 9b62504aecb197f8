package privacy

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestDerivePatientKey_Deterministic(t *testing.T) {
	d := NewKeyDeriver(8)
	patientID := uuid.New()

	k1, err := d.DerivePatientKey(patientID, "deployment-salt-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	k2, err := d.DerivePatientKey(patientID, "deployment-salt-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(k1, k2) {
		t.Fatal("same inputs must yield the same key")
	}
	if len(k1) != ContentKeySize {
		t.Fatalf("expected %d-byte key, got %d", ContentKeySize, len(k1))
	}
}

func TestDerivePatientKey_DistinctInputsDistinctKeys(t *testing.T) {
	d := NewKeyDeriver(8)
	p1, p2 := uuid.New(), uuid.New()

	k1, _ := d.DerivePatientKey(p1, "deployment-salt-1")
	k2, _ := d.DerivePatientKey(p2, "deployment-salt-1")
	if bytes.Equal(k1, k2) {
		t.Fatal("different patients must get different keys")
	}

	k3, _ := d.DerivePatientKey(p1, "deployment-salt-2")
	if bytes.Equal(k1, k3) {
		t.Fatal("different salts must get different keys")
	}
}

func TestDerivePatientKey_SaltFloor(t *testing.T) {
	d := NewKeyDeriver(8)

	for _, salt := range []string{"", "short", "1234567"} {
		_, err := d.DerivePatientKey(uuid.New(), salt)
		if !errors.Is(err, ErrKeyUnavailable) {
			t.Errorf("salt %q: expected ErrKeyUnavailable, got %v", salt, err)
		}
	}

	if _, err := d.DerivePatientKey(uuid.New(), "12345678"); err != nil {
		t.Errorf("8-char salt should pass the default floor, got %v", err)
	}
}

func TestNewKeyDeriver_FloorNeverBelowDefault(t *testing.T) {
	d := NewKeyDeriver(0)
	_, err := d.DerivePatientKey(uuid.New(), "1234567")
	if !errors.Is(err, ErrKeyUnavailable) {
		t.Fatalf("floor must not drop below %d, got %v", DefaultSaltFloor, err)
	}
}
