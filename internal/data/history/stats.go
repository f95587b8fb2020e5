package history

import "fmt"

// ChangeStats accumulates line changes. The zero value is the identity for
// Merge, which is associative and commutative.
type ChangeStats struct {
	Added   int
	Removed int
	Count   int
}

// NewChangeStats describes a single change.
func NewChangeStats(added, removed int) ChangeStats {
	return ChangeStats{Added: added, Removed: removed, Count: 1}
}

func (s ChangeStats) Merge(o ChangeStats) ChangeStats {
	return ChangeStats{
		Added:   s.Added + o.Added,
		Removed: s.Removed + o.Removed,
		Count:   s.Count + o.Count,
	}
}

// Add records one more change in place.
func (s *ChangeStats) Add(added, removed int) {
	s.Added += added
	s.Removed += removed
	s.Count++
}

func (s ChangeStats) Changes() int {
	return s.Added + s.Removed
}

func (s ChangeStats) Delta() int {
	return s.Added - s.Removed
}

func (s ChangeStats) IsZero() bool {
	return s == ChangeStats{}
}

func (s ChangeStats) String() string {
	return fmt.Sprintf("(+%d,-%d)", s.Added, s.Removed)
}
