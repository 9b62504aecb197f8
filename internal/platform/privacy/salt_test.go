package privacy

import (
	"context"
	"errors"
	"testing"
)

type saltFunc func(ctx context.Context) (string, error)

func (f saltFunc) Salt(ctx context.Context) (string, error) { return f(ctx) }

func TestStaticSaltSource(t *testing.T) {
	if _, err := NewStaticSaltSource("").Salt(context.Background()); !errors.Is(err, ErrSaltUnavailable) {
		t.Fatalf("expected ErrSaltUnavailable for empty value, got %v", err)
	}
	salt, err := NewStaticSaltSource("configured-salt").Salt(context.Background())
	if err != nil || salt != "configured-salt" {
		t.Fatalf("got %q, %v", salt, err)
	}
}

func TestMultiSaltSource_FirstHitWins(t *testing.T) {
	src := NewMultiSaltSource(
		NewStaticSaltSource(""),
		NewStaticSaltSource("env-salt"),
		NewStaticSaltSource("db-salt"),
	)
	salt, err := src.Salt(context.Background())
	if err != nil || salt != "env-salt" {
		t.Fatalf("got %q, %v", salt, err)
	}
}

func TestMultiSaltSource_AllEmpty(t *testing.T) {
	src := NewMultiSaltSource(NewStaticSaltSource(""), NewStaticSaltSource(""))
	if _, err := src.Salt(context.Background()); !errors.Is(err, ErrSaltUnavailable) {
		t.Fatalf("expected ErrSaltUnavailable, got %v", err)
	}
}

func TestMultiSaltSource_SaltsListsAllCandidates(t *testing.T) {
	src := NewMultiSaltSource(
		NewStaticSaltSource("env-salt"),
		NewStaticSaltSource(""),
		NewStaticSaltSource("db-salt"),
		NewStaticSaltSource("env-salt"),
	)
	salts, err := src.Salts(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(salts) != 2 || salts[0] != "env-salt" || salts[1] != "db-salt" {
		t.Fatalf("expected [env-salt db-salt], got %v", salts)
	}
}

func TestMultiSaltSource_SaltsSkipsDownSource(t *testing.T) {
	backendDown := errors.New("connection refused")
	src := NewMultiSaltSource(
		saltFunc(func(context.Context) (string, error) { return "", backendDown }),
		NewStaticSaltSource("db-salt"),
	)
	salts, err := src.Salts(context.Background())
	if err != nil || len(salts) != 1 || salts[0] != "db-salt" {
		t.Fatalf("expected the surviving salt, got %v, %v", salts, err)
	}

	empty := NewMultiSaltSource(
		saltFunc(func(context.Context) (string, error) { return "", backendDown }),
		NewStaticSaltSource(""),
	)
	if _, err := empty.Salts(context.Background()); !errors.Is(err, backendDown) {
		t.Fatalf("expected backend error when nothing was produced, got %v", err)
	}
}

func TestMultiSaltSource_SurfacesBackendError(t *testing.T) {
	backendDown := errors.New("connection refused")
	src := NewMultiSaltSource(
		saltFunc(func(context.Context) (string, error) { return "", backendDown }),
		NewStaticSaltSource(""),
	)
	if _, err := src.Salt(context.Background()); !errors.Is(err, backendDown) {
		t.Fatalf("expected backend error surfaced, got %v", err)
	}
}
