package store

import (
	"context"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"tshreg/internal/domain"
	"tshreg/pkg/derrors"
)

// SeedRegistrars inserts development registrars when they are absent.
// Production deployments provision registrars out of band.
func SeedRegistrars(ctx context.Context, s Store) error {
	seeds := []struct {
		id, secret string
		credits    int
	}{
		{"test1", "test1", 1000},
		{"test2", "test2", 1000},
	}

	for _, seed := range seeds {
		_, err := s.FindRegistrar(ctx, seed.id)
		if err == nil {
			continue
		}
		if !derrors.Is(err, derrors.CodeNotFound) {
			return fmt.Errorf("seed registrar %s: %w", seed.id, err)
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(seed.secret), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hash seed secret: %w", err)
		}
		r := domain.Registrar{ID: seed.id, PasswordHash: string(hash), Credits: seed.credits}
		if err := s.SaveRegistrar(ctx, r); err != nil {
			return fmt.Errorf("seed registrar %s: %w", seed.id, err)
		}
	}
	return nil
}
