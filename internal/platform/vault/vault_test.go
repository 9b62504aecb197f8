package vault

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
)

// testScryptParams keeps the stretch cheap so the suite stays fast. The
// minimum legal N for scrypt is 2.
var testScryptParams = ScryptParams{N: 1 << 4, R: 8, P: 1}

type mockKeyRepo struct {
	mu      sync.Mutex
	records map[string]*KeyRecord
	fail    bool
}

func newMockKeyRepo() *mockKeyRepo {
	return &mockKeyRepo{records: make(map[string]*KeyRecord)}
}

func (m *mockKeyRepo) Upsert(_ context.Context, rec *KeyRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("storage down")
	}
	m.records[rec.AccountID] = rec
	return nil
}

func (m *mockKeyRepo) Get(_ context.Context, accountID string) (*KeyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return nil, errors.New("storage down")
	}
	rec, ok := m.records[accountID]
	if !ok {
		return nil, ErrNotFound
	}
	return rec, nil
}

func (m *mockKeyRepo) Delete(_ context.Context, accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, accountID)
	return nil
}

func deviceSecret() []byte {
	return []byte("0123456789abcdef0123456789abcdef")
}

func TestGenerateAndStore_RoundTrip(t *testing.T) {
	repo := newMockKeyRepo()
	svc := NewService(repo, testScryptParams)
	ctx := context.Background()

	pub, err := svc.GenerateAndStore(ctx, "acct-1", deviceSecret())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(pub.PublicKey) != 32 {
		t.Fatalf("expected 32-byte X25519 public key, got %d", len(pub.PublicKey))
	}

	rec := repo.records["acct-1"]
	if rec == nil {
		t.Fatal("record not stored")
	}
	if bytes.Contains(rec.WrappedKey, deviceSecret()) {
		t.Fatal("device secret must never reach storage")
	}

	priv, err := svc.Unwrap(rec, deviceSecret())
	if err != nil {
		t.Fatalf("unwrap: %v", err)
	}
	if !bytes.Equal(priv.PublicKey().Bytes(), pub.PublicKey) {
		t.Fatal("unwrapped private key does not match stored public key")
	}
}

func TestGenerateAndStore_MissingSecret(t *testing.T) {
	svc := NewService(newMockKeyRepo(), testScryptParams)

	for _, secret := range [][]byte{nil, {}, []byte("too short")} {
		_, err := svc.GenerateAndStore(context.Background(), "acct-1", secret)
		if !errors.Is(err, ErrDeviceSecretMissing) {
			t.Errorf("secret %q: expected ErrDeviceSecretMissing, got %v", secret, err)
		}
	}
}

func TestUnwrap_WrongSecret(t *testing.T) {
	repo := newMockKeyRepo()
	svc := NewService(repo, testScryptParams)

	if _, err := svc.GenerateAndStore(context.Background(), "acct-1", deviceSecret()); err != nil {
		t.Fatal(err)
	}
	rec := repo.records["acct-1"]

	_, err := svc.Unwrap(rec, []byte("a different secret entirely!"))
	if !errors.Is(err, ErrDeviceSecretMissing) {
		t.Fatalf("expected ErrDeviceSecretMissing for wrong secret, got %v", err)
	}
	_, err = svc.Unwrap(rec, nil)
	if !errors.Is(err, ErrDeviceSecretMissing) {
		t.Fatalf("expected ErrDeviceSecretMissing for nil secret, got %v", err)
	}
}

func TestGenerateAndStore_ReplacesPreviousKey(t *testing.T) {
	repo := newMockKeyRepo()
	svc := NewService(repo, testScryptParams)
	ctx := context.Background()

	p1, err := svc.GenerateAndStore(ctx, "acct-1", deviceSecret())
	if err != nil {
		t.Fatal(err)
	}
	p2, err := svc.GenerateAndStore(ctx, "acct-1", deviceSecret())
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(p1.PublicKey, p2.PublicKey) {
		t.Fatal("regeneration must produce a fresh keypair")
	}
	if len(repo.records) != 1 {
		t.Fatalf("expected one record per account, got %d", len(repo.records))
	}
	if !bytes.Equal(repo.records["acct-1"].PublicKey, p2.PublicKey) {
		t.Fatal("stored record must hold the latest keypair")
	}
}

func TestGenerateAndStore_ConcurrentSameAccount(t *testing.T) {
	repo := newMockKeyRepo()
	svc := NewService(repo, testScryptParams)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.GenerateAndStore(ctx, "acct-1", deviceSecret()); err != nil {
				t.Errorf("concurrent generate: %v", err)
			}
		}()
	}
	wg.Wait()

	// Whatever ordering won, the stored wrapped key must unwrap to the
	// stored public key.
	rec := repo.records["acct-1"]
	priv, err := svc.Unwrap(rec, deviceSecret())
	if err != nil {
		t.Fatalf("unwrap after concurrent generation: %v", err)
	}
	if !bytes.Equal(priv.PublicKey().Bytes(), rec.PublicKey) {
		t.Fatal("stored public key and wrapped private key are from different pairs")
	}
}

func TestGenerateAndStore_StorageFailure(t *testing.T) {
	repo := newMockKeyRepo()
	repo.fail = true
	svc := NewService(repo, testScryptParams)

	if _, err := svc.GenerateAndStore(context.Background(), "acct-1", deviceSecret()); err == nil {
		t.Fatal("expected storage error")
	}
}

func TestStore_ValidatesRecord(t *testing.T) {
	svc := NewService(newMockKeyRepo(), testScryptParams)
	ctx := context.Background()

	err := svc.Store(ctx, &KeyRecord{AccountID: "acct-1"})
	if !errors.Is(err, ErrGenerationFailed) {
		t.Fatalf("expected ErrGenerationFailed for incomplete record, got %v", err)
	}
}

func TestStore_DeviceWrappedRecord(t *testing.T) {
	// Simulate the device path: generation and wrapping happen locally
	// via one service, the wrapped result is uploaded through another.
	serverRepo := newMockKeyRepo()
	server := NewService(serverRepo, testScryptParams)
	ctx := context.Background()

	localRepo := newMockKeyRepo()
	local := NewService(localRepo, testScryptParams)
	if _, err := local.GenerateAndStore(ctx, "acct-1", deviceSecret()); err != nil {
		t.Fatal(err)
	}
	rec := localRepo.records["acct-1"]

	if err := server.Store(ctx, rec); err != nil {
		t.Fatalf("store device-wrapped record: %v", err)
	}
	priv, err := server.Unwrap(serverRepo.records["acct-1"], deviceSecret())
	if err != nil {
		t.Fatalf("unwrap uploaded record: %v", err)
	}
	if !bytes.Equal(priv.PublicKey().Bytes(), rec.PublicKey) {
		t.Fatal("uploaded record does not round-trip")
	}
}
