package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Document records one ingested document. The chunk payloads live in the
// vector store; this row is the local catalog entry.
type Document struct {
	ID        string
	SessionID string
	Name      string
	Chunks    int
	CreatedAt time.Time
}

// Analysis statuses.
const (
	AnalysisCompleted = "completed"
	AnalysisPartial   = "partial" // first stage done, a derivation stage failed
)

// Analysis records one team run and its three output stages.
type Analysis struct {
	ID              string
	SessionID       string
	Mode            string
	Query           string
	Analysis        string
	KeyPoints       string
	Recommendations string
	Status          string
	CreatedAt       time.Time
}
