package shared

import (
	"math"
	"sort"
	"strconv"
	"strings"
)

// ═══════════════════════════════════════════════════════════════════════════
// ID Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// ID is a storage-assigned numeric identifier. Zero means "not persisted".
type ID int64

// IsValid checks if the ID is a positive number.
func (id ID) IsValid() bool {
	return id > 0
}

// Int64 returns the underlying int64 value.
func (id ID) Int64() int64 {
	return int64(id)
}

// String returns the decimal representation.
func (id ID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// ParseID parses a decimal identifier.
func ParseID(s string) (ID, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || v <= 0 {
		return 0, ErrInvalidID
	}
	return ID(v), nil
}

// IDSet is a set of identifiers with deterministic iteration helpers.
type IDSet map[ID]struct{}

// NewIDSet builds a set from the given identifiers.
func NewIDSet(ids ...ID) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Add inserts an identifier.
func (s IDSet) Add(id ID) {
	s[id] = struct{}{}
}

// Has reports membership.
func (s IDSet) Has(id ID) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the members in ascending order.
func (s IDSet) Sorted() []ID {
	out := make([]ID, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ═══════════════════════════════════════════════════════════════════════════
// Ratio Value Object
// ═══════════════════════════════════════════════════════════════════════════

// Ratio is a fraction in [0, 1].
type Ratio float64

// IsValid checks that the ratio is a finite number in [0, 1].
func (r Ratio) IsValid() bool {
	f := float64(r)
	return !math.IsNaN(f) && f >= 0 && f <= 1
}

// Float64 returns the underlying value.
func (r Ratio) Float64() float64 {
	return float64(r)
}

// SafeDivide returns num/den, or 0 when den is not positive.
func SafeDivide(num, den float64) float64 {
	if den <= 0 {
		return 0
	}
	return num / den
}

// Clamp limits v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ═══════════════════════════════════════════════════════════════════════════
// Cohort
// ═══════════════════════════════════════════════════════════════════════════

// Cohort identifies an intake group of students, e.g. "K2023".
type Cohort string

// String returns the string representation.
func (c Cohort) String() string {
	return string(c)
}

// IsEmpty reports whether the cohort is unset (meaning "all cohorts" in filters).
func (c Cohort) IsEmpty() bool {
	return strings.TrimSpace(string(c)) == ""
}
