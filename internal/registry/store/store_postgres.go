package store

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"tshreg/internal/domain"
	"tshreg/pkg/derrors"
)

// Postgres persists the registry in PostgreSQL.
type Postgres struct {
	pool *pgxpool.Pool
	sb   sq.StatementBuilderType
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{
		pool: pool,
		sb:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

const domainColumns = `name, status, registrar, created_at, updated_at, expiry_date, score`

const findDomainSQL = `
SELECT ` + domainColumns + `
FROM domains
WHERE name = $1`

// claimSQL is a single conditional write: a fresh insert, or a takeover of a
// released record. The WHERE clause on the conflict arm makes concurrent
// claims race-free; a claim that loses returns no row.
const claimSQL = `
INSERT INTO domains (name, status, registrar, created_at, expiry_date, score)
VALUES ($1, 'active', $2, now(), $3, $4)
ON CONFLICT (name) DO UPDATE
SET registrar   = EXCLUDED.registrar,
    status      = 'active',
    updated_at  = now(),
    expiry_date = EXCLUDED.expiry_date
WHERE domains.status IN ('inactive', 'deleted')
RETURNING ` + domainColumns

const setStatusSQL = `
UPDATE domains
SET status = $2, updated_at = now()
WHERE name = $1`

const findRegistrarSQL = `
SELECT id, password_hash, credits
FROM registrars
WHERE id = $1`

const saveRegistrarSQL = `
INSERT INTO registrars (id, password_hash, credits)
VALUES ($1, $2, $3)
ON CONFLICT (id) DO UPDATE
SET password_hash = EXCLUDED.password_hash, credits = EXCLUDED.credits`

const adjustCreditsSQL = `
UPDATE registrars
SET credits = credits + $2
WHERE id = $1`

type domainRow struct {
	Name       string        `db:"name"`
	Status     string        `db:"status"`
	Registrar  string        `db:"registrar"`
	CreatedAt  time.Time     `db:"created_at"`
	UpdatedAt  *time.Time    `db:"updated_at"`
	ExpiryDate *time.Time    `db:"expiry_date"`
	Score      int           `db:"score"`
}

func (r domainRow) toDomain() *domain.Domain {
	return &domain.Domain{
		Name:       r.Name,
		Status:     domain.Status(r.Status),
		Registrar:  r.Registrar,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
		ExpiryDate: r.ExpiryDate,
		Score:      r.Score,
	}
}

type registrarRow struct {
	ID           string `db:"id"`
	PasswordHash string `db:"password_hash"`
	Credits      int    `db:"credits"`
}

func (s *Postgres) FindDomain(ctx context.Context, name string) (*domain.Domain, error) {
	var row domainRow
	if err := pgxscan.Get(ctx, s.pool, &row, findDomainSQL, name); err != nil {
		if pgxscan.NotFound(err) {
			return nil, ErrNotFound
		}
		return nil, derrors.Wrap(err, derrors.CodeInternal, "find domain")
	}
	return row.toDomain(), nil
}

func (s *Postgres) IsAvailable(ctx context.Context, name string) (Availability, error) {
	d, err := s.FindDomain(ctx, name)
	if err != nil {
		if derrors.Is(err, derrors.CodeNotFound) {
			return Availability{Available: true}, nil
		}
		return Availability{}, err
	}
	avail := d.Status == domain.StatusInactive || d.Status == domain.StatusDeleted
	return Availability{Available: avail, Status: d.Status}, nil
}

func (s *Postgres) Claim(ctx context.Context, name, registrar string, expiry time.Time, score int) (*domain.Domain, error) {
	var row domainRow
	err := pgxscan.Get(ctx, s.pool, &row, claimSQL, name, registrar, expiry, score)
	if err != nil {
		if pgxscan.NotFound(err) {
			// Conflict arm declined the update: record exists and is held.
			return nil, ErrNotAvailable
		}
		return nil, derrors.Wrap(err, derrors.CodeInternal, "claim domain")
	}
	return row.toDomain(), nil
}

func (s *Postgres) SetStatus(ctx context.Context, name string, status domain.Status) error {
	tag, err := s.pool.Exec(ctx, setStatusSQL, name, string(status))
	if err != nil {
		return derrors.Wrap(err, derrors.CodeInternal, "set domain status")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) ListExpiringOn(ctx context.Context, day time.Time) ([]ExpiringDomain, error) {
	start, end := DayBounds(day)
	query, args, err := s.sb.
		Select("name", "score").
		From("domains").
		Where(sq.Eq{"status": string(domain.StatusActive)}).
		Where(sq.GtOrEq{"expiry_date": start}).
		Where(sq.Lt{"expiry_date": end}).
		OrderBy("name").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build expiring query: %w", err)
	}

	var rows []struct {
		Name  string `db:"name"`
		Score int    `db:"score"`
	}
	if err := pgxscan.Select(ctx, s.pool, &rows, query, args...); err != nil {
		return nil, derrors.Wrap(err, derrors.CodeInternal, "list expiring domains")
	}

	out := make([]ExpiringDomain, 0, len(rows))
	for _, r := range rows {
		out = append(out, ExpiringDomain{Name: r.Name, Score: r.Score})
	}
	return out, nil
}

func (s *Postgres) ListByRegistrar(ctx context.Context, registrar string) ([]domain.Domain, error) {
	query, args, err := s.sb.
		Select("name", "status", "registrar", "created_at", "updated_at", "expiry_date", "score").
		From("domains").
		Where(sq.Eq{"registrar": registrar}).
		OrderBy("created_at DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build registrar domains query: %w", err)
	}

	var rows []domainRow
	if err := pgxscan.Select(ctx, s.pool, &rows, query, args...); err != nil {
		return nil, derrors.Wrap(err, derrors.CodeInternal, "list registrar domains")
	}

	out := make([]domain.Domain, 0, len(rows))
	for _, r := range rows {
		out = append(out, *r.toDomain())
	}
	return out, nil
}

func (s *Postgres) FindRegistrar(ctx context.Context, id string) (*domain.Registrar, error) {
	var row registrarRow
	if err := pgxscan.Get(ctx, s.pool, &row, findRegistrarSQL, id); err != nil {
		if pgxscan.NotFound(err) {
			return nil, ErrNotFound
		}
		return nil, derrors.Wrap(err, derrors.CodeInternal, "find registrar")
	}
	return &domain.Registrar{ID: row.ID, PasswordHash: row.PasswordHash, Credits: row.Credits}, nil
}

func (s *Postgres) Authenticate(ctx context.Context, id, secret string) (bool, error) {
	r, err := s.FindRegistrar(ctx, id)
	if err != nil {
		if derrors.Is(err, derrors.CodeNotFound) {
			return false, nil
		}
		return false, err
	}
	return bcrypt.CompareHashAndPassword([]byte(r.PasswordHash), []byte(secret)) == nil, nil
}

func (s *Postgres) SaveRegistrar(ctx context.Context, r domain.Registrar) error {
	if _, err := s.pool.Exec(ctx, saveRegistrarSQL, r.ID, r.PasswordHash, r.Credits); err != nil {
		return derrors.Wrap(err, derrors.CodeInternal, "save registrar")
	}
	return nil
}

func (s *Postgres) AdjustCredits(ctx context.Context, id string, delta int) error {
	tag, err := s.pool.Exec(ctx, adjustCreditsSQL, id, delta)
	if err != nil {
		return derrors.Wrap(err, derrors.CodeInternal, "adjust credits")
	}
	if tag.RowsAffected() == 0 {
		return derrors.New(derrors.CodeNotFound, "registrar not found")
	}
	return nil
}
