package types

import "fmt"

// SourceKind is the on-disk format an input was read from
type SourceKind string

const (
	SourceCSV SourceKind = "csv"
	SourceXML SourceKind = "xml"
)

// IsValid checks if the source kind value is valid
func (k SourceKind) IsValid() bool {
	switch k {
	case SourceCSV, SourceXML:
		return true
	}
	return false
}

// Source describes one input file of a run.
type Source struct {
	ID   int        `json:"id"`
	Path string     `json:"path"`
	Kind SourceKind `json:"kind"`

	// Rows is the number of records seen, Dropped the number rejected at
	// ingestion (bad period or malformed numeric field).
	Rows    int `json:"rows"`
	Dropped int `json:"dropped"`
}

// Accepted is the number of records that became candidates.
func (s *Source) Accepted() int {
	return s.Rows - s.Dropped
}

// Validate checks if the source has valid field values
func (s *Source) Validate() error {
	if s.Path == "" {
		return fmt.Errorf("path is required")
	}
	if !s.Kind.IsValid() {
		return fmt.Errorf("invalid source kind: %s", s.Kind)
	}
	if s.Rows < 0 || s.Dropped < 0 {
		return fmt.Errorf("row counts cannot be negative (rows=%d, dropped=%d)", s.Rows, s.Dropped)
	}
	if s.Dropped > s.Rows {
		return fmt.Errorf("dropped (%d) cannot exceed rows (%d)", s.Dropped, s.Rows)
	}
	return nil
}
