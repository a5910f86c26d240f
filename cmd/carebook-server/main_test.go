package main

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carebook/carebook/internal/config"
	"github.com/carebook/carebook/internal/domain/identity"
)

func TestResolveJWTSecretUsesConfiguredValue(t *testing.T) {
	cfg := &config.Config{JWTSecret: "configured-secret"}
	secret, err := resolveJWTSecret(cfg, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if string(secret) != "configured-secret" {
		t.Errorf("secret = %q", secret)
	}
}

func TestResolveJWTSecretGeneratesWhenEmpty(t *testing.T) {
	cfg := &config.Config{}
	first, err := resolveJWTSecret(cfg, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if len(first) == 0 {
		t.Fatal("empty generated secret")
	}
	second, err := resolveJWTSecret(cfg, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if string(first) == string(second) {
		t.Error("generated secrets should differ per call")
	}
}

type stubAccountRepo struct {
	byID map[uuid.UUID]*identity.Account
}

func (s *stubAccountRepo) Create(_ context.Context, a *identity.Account) error { return nil }
func (s *stubAccountRepo) GetByID(_ context.Context, id uuid.UUID) (*identity.Account, error) {
	a, ok := s.byID[id]
	if !ok {
		return nil, identity.ErrNotFound
	}
	return a, nil
}
func (s *stubAccountRepo) GetByEmail(_ context.Context, email string) (*identity.Account, error) {
	return nil, identity.ErrNotFound
}
func (s *stubAccountRepo) Update(_ context.Context, a *identity.Account) error { return nil }
func (s *stubAccountRepo) Delete(_ context.Context, id uuid.UUID) error        { return nil }
func (s *stubAccountRepo) List(_ context.Context, role string, limit, offset int) ([]*identity.Account, int, error) {
	return nil, 0, nil
}

func TestAccountDirectoryContactFor(t *testing.T) {
	id := uuid.New()
	repo := &stubAccountRepo{byID: map[uuid.UUID]*identity.Account{
		id: {ID: id, Email: "sam@example.com", FirstName: "Sam", LastName: "Lee"},
	}}
	dir := &accountDirectory{accounts: repo}

	contact, err := dir.ContactFor(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if contact.Name != "Sam Lee" {
		t.Errorf("name = %q", contact.Name)
	}
	if contact.Email != "sam@example.com" {
		t.Errorf("email = %q", contact.Email)
	}

	if _, err := dir.ContactFor(context.Background(), uuid.New()); err == nil {
		t.Error("expected error for unknown account")
	}
}
