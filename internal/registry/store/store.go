// Package store is the durable repository consumed by the protocol core.
// Two implementations exist: an in-memory store for tests and development,
// and a PostgreSQL store for production.
package store

import (
	"context"
	"time"

	"tshreg/internal/domain"
	"tshreg/pkg/derrors"
)

// ErrNotFound is returned by lookups that miss.
var ErrNotFound = derrors.New(derrors.CodeNotFound, "record not found")

// ErrNotAvailable is returned by Claim when the name is already held.
var ErrNotAvailable = derrors.New(derrors.CodeConflict, "domain is not available")

// Availability reports whether a name can be claimed and, when a record
// exists, its current status.
type Availability struct {
	Available bool
	Status    domain.Status
}

// ExpiringDomain is one candidate row for an expiry run.
type ExpiringDomain struct {
	Name  string
	Score int
}

// Store is the repository contract. Claim must be atomic with respect to the
// availability state it observes: two concurrent claims for the same name
// must never both succeed.
type Store interface {
	FindDomain(ctx context.Context, name string) (*domain.Domain, error)
	IsAvailable(ctx context.Context, name string) (Availability, error)
	// Claim creates the domain when absent, or transfers it when its current
	// status is inactive or deleted, in one conditional write. Any other
	// status fails with ErrNotAvailable.
	Claim(ctx context.Context, name, registrar string, expiry time.Time, score int) (*domain.Domain, error)
	SetStatus(ctx context.Context, name string, status domain.Status) error
	ListExpiringOn(ctx context.Context, day time.Time) ([]ExpiringDomain, error)
	ListByRegistrar(ctx context.Context, registrar string) ([]domain.Domain, error)

	FindRegistrar(ctx context.Context, id string) (*domain.Registrar, error)
	// Authenticate verifies a registrar secret against its stored hash.
	// Unknown registrars authenticate false without error.
	Authenticate(ctx context.Context, id, secret string) (bool, error)
	SaveRegistrar(ctx context.Context, r domain.Registrar) error
	AdjustCredits(ctx context.Context, id string, delta int) error
}

// DayBounds returns the [00:00, 24:00) boundaries of the day containing t,
// in t's location.
func DayBounds(t time.Time) (time.Time, time.Time) {
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return start, start.AddDate(0, 0, 1)
}
