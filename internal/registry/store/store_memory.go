package store

import (
	"context"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"tshreg/internal/domain"
	"tshreg/pkg/derrors"
)

// Memory is the in-memory Store. It favors clarity over performance; the
// single mutex also makes Claim trivially atomic.
type Memory struct {
	mu         sync.RWMutex
	domains    map[string]domain.Domain
	registrars map[string]domain.Registrar
}

func NewMemory() *Memory {
	return &Memory{
		domains:    make(map[string]domain.Domain),
		registrars: make(map[string]domain.Registrar),
	}
}

func (s *Memory) FindDomain(_ context.Context, name string) (*domain.Domain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if d, ok := s.domains[name]; ok {
		return &d, nil
	}
	return nil, ErrNotFound
}

func (s *Memory) IsAvailable(_ context.Context, name string) (Availability, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.availabilityLocked(name), nil
}

func (s *Memory) availabilityLocked(name string) Availability {
	d, ok := s.domains[name]
	if !ok {
		return Availability{Available: true}
	}
	avail := d.Status == domain.StatusInactive || d.Status == domain.StatusDeleted
	return Availability{Available: avail, Status: d.Status}
}

func (s *Memory) Claim(_ context.Context, name, registrar string, expiry time.Time, score int) (*domain.Domain, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	existing, ok := s.domains[name]
	if !ok || existing.Status == domain.StatusDeleted {
		d := domain.Domain{
			Name:       name,
			Status:     domain.StatusActive,
			Registrar:  registrar,
			CreatedAt:  now,
			ExpiryDate: &expiry,
			Score:      score,
		}
		s.domains[name] = d
		return &d, nil
	}

	if existing.Status != domain.StatusInactive {
		return nil, ErrNotAvailable
	}

	existing.Registrar = registrar
	existing.Status = domain.StatusActive
	existing.UpdatedAt = &now
	existing.ExpiryDate = &expiry
	s.domains[name] = existing
	return &existing, nil
}

func (s *Memory) SetStatus(_ context.Context, name string, status domain.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.domains[name]
	if !ok {
		return ErrNotFound
	}
	now := time.Now()
	d.Status = status
	d.UpdatedAt = &now
	s.domains[name] = d
	return nil
}

func (s *Memory) ListExpiringOn(_ context.Context, day time.Time) ([]ExpiringDomain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start, end := DayBounds(day)
	var out []ExpiringDomain
	for _, d := range s.domains {
		if d.Status != domain.StatusActive || d.ExpiryDate == nil {
			continue
		}
		if !d.ExpiryDate.Before(start) && d.ExpiryDate.Before(end) {
			out = append(out, ExpiringDomain{Name: d.Name, Score: d.Score})
		}
	}
	return out, nil
}

func (s *Memory) ListByRegistrar(_ context.Context, registrar string) ([]domain.Domain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Domain
	for _, d := range s.domains {
		if d.Registrar == registrar {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *Memory) FindRegistrar(_ context.Context, id string) (*domain.Registrar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r, ok := s.registrars[id]; ok {
		return &r, nil
	}
	return nil, ErrNotFound
}

func (s *Memory) Authenticate(_ context.Context, id, secret string) (bool, error) {
	s.mu.RLock()
	r, ok := s.registrars[id]
	s.mu.RUnlock()
	if !ok {
		return false, nil
	}
	err := bcrypt.CompareHashAndPassword([]byte(r.PasswordHash), []byte(secret))
	return err == nil, nil
}

func (s *Memory) SaveRegistrar(_ context.Context, r domain.Registrar) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registrars[r.ID] = r
	return nil
}

func (s *Memory) AdjustCredits(_ context.Context, id string, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.registrars[id]
	if !ok {
		return derrors.New(derrors.CodeNotFound, "registrar not found")
	}
	r.Credits += delta
	s.registrars[id] = r
	return nil
}
