package models

import "time"

// SliceMetadata describes where a DataSlice came from.
type SliceMetadata struct {
	Provider  string     `json:"provider"`
	Symbol    string     `json:"symbol"`
	Kind      Kind       `json:"kind"`
	Rows      int        `json:"rows"`
	Start     *time.Time `json:"start,omitempty"`
	End       *time.Time `json:"end,omitempty"`
	FetchedAt time.Time  `json:"fetched_at"`
}

// DataSlice is the output of one adapter call: time-ascending records with unique
// timestamps plus run metadata. It is not mutated after construction.
type DataSlice struct {
	Records []Record      `json:"-"`
	Meta    SliceMetadata `json:"meta"`
}

// NewDataSlice sorts and de-duplicates records and fills Meta.Rows.
func NewDataSlice(meta SliceMetadata, records []Record) *DataSlice {
	sorted := SortRecords(records)
	meta.Rows = len(sorted)
	if meta.FetchedAt.IsZero() {
		meta.FetchedAt = time.Now().UTC()
	}
	return &DataSlice{Records: sorted, Meta: meta}
}

// Len returns the number of records.
func (s *DataSlice) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Records)
}

// Empty reports whether the slice has no records.
func (s *DataSlice) Empty() bool { return s.Len() == 0 }
