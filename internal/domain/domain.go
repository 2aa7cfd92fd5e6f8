// Package domain holds the registry's core types and the namespace rules
// they obey. Storage and transport packages depend on this package, never
// the other way around.
package domain

import (
	"math/rand/v2"
	"strings"
	"time"
)

// Status is the lifecycle state of a domain record.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusPending  Status = "pending"
	StatusDeleted  Status = "deleted"
)

// IsValid checks if the status is one of the supported enum values.
func (s Status) IsValid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusPending, StatusDeleted:
		return true
	}
	return false
}

// Domain is a single name in the registry namespace.
// At most one non-deleted record exists per name.
type Domain struct {
	Name       string
	Status     Status
	Registrar  string
	CreatedAt  time.Time
	UpdatedAt  *time.Time
	ExpiryDate *time.Time
	Score      int
}

// Registrar is an authenticated identity entitled to claim domains.
// Credits may go negative under usage penalties.
type Registrar struct {
	ID           string
	PasswordHash string
	Credits      int
}

// Suffix is the reserved top level the registry operates.
const Suffix = ".tsh"

const (
	minLabelLen = 2
	maxLabelLen = 63
)

// idnPrefix marks ACE-encoded internationalized labels, which are exempt
// from the doubled-hyphen rule.
const idnPrefix = "xn--"

// ValidName reports whether name is a well-formed domain under suffix:
// lowercase alphanumerics and internal hyphens, label length 2-63,
// no leading, trailing, or doubled hyphens.
func ValidName(name, suffix string) bool {
	name = strings.ToLower(name)
	if suffix == "" || !strings.HasSuffix(name, suffix) {
		return false
	}

	label := strings.TrimSuffix(name, suffix)
	if len(label) < minLabelLen || len(label) > maxLabelLen {
		return false
	}
	if strings.HasPrefix(label, "-") || strings.HasSuffix(label, "-") {
		return false
	}
	if !strings.HasPrefix(label, idnPrefix) && strings.Contains(label, "--") {
		return false
	}
	for _, r := range label {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '-' {
			return false
		}
	}
	return true
}

// scoreBand is one tier of the popularity distribution.
type scoreBand struct {
	min, max int
	weight   int
}

// Bands sum to 100. Most names land in the common middle, a thin tail is
// high-value.
var scoreBands = []scoreBand{
	{min: 90, max: 100, weight: 5},
	{min: 70, max: 89, weight: 15},
	{min: 30, max: 69, weight: 60},
	{min: 1, max: 29, weight: 20},
}

// GenerateScore draws a popularity score in [1,100] from the weighted band
// distribution, with a triangular spread inside the chosen band.
func GenerateScore() int {
	roll := rand.IntN(100)
	cumulative := 0
	for _, band := range scoreBands {
		cumulative += band.weight
		if roll < cumulative {
			triangular := (rand.Float64() + rand.Float64()) / 2
			size := band.max - band.min + 1
			score := band.min + int(triangular*float64(size))
			return min(max(score, band.min), band.max)
		}
	}
	return rand.IntN(100) + 1
}

// ExpiryFrom computes a registration expiry from a start instant.
func ExpiryFrom(start time.Time, period time.Duration) time.Time {
	return start.Add(period)
}
