package store

import "time"

// File is one cached analysis: the content hash it was computed for and
// when.
type File struct {
	ID         int64
	Path       string
	Hash       string
	AnalyzedAt time.Time
}
