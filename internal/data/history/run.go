package history

import "time"

// Run is a persisted materiality measurement.
type Run struct {
	ID                string
	Timestamp         time.Time
	Entry             string
	Project           string
	Files             int
	Lines             int
	Authors           int
	ReachableChanges  int
	RepositoryChanges int
	Ratio             float64
}
