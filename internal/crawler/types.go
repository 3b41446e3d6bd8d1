package crawler

import "time"

// ListingRecord is one restaurant entry extracted from a district listing.
// Field order and JSON names define the canonical dataset schema; optional
// text fields are always present (empty string) so tabular output stays stable.
type ListingRecord struct {
	Name         string  `json:"name"`
	Cuisine      string  `json:"cuisine"`
	DishType     string  `json:"type"`
	PriceBand    string  `json:"price"`
	Phone        string  `json:"phone"`
	OpeningHours string  `json:"opening_hours"`
	Rating       float64 `json:"rating"`
	ReviewCount  int     `json:"review_count"`
	SpecialDish  string  `json:"special_dish"`
	Address      string  `json:"address"`
	URL          string  `json:"url"`
	District     string  `json:"district"`
}

// Complete reports whether the record passes the completeness gate.
func (r ListingRecord) Complete() bool {
	return r.Name != "" && r.Cuisine != "" && r.DishType != "" && r.PriceBand != ""
}

// Key identifies a listing across districts for deduplication.
func (r ListingRecord) Key() string {
	if r.URL != "" {
		return r.URL
	}
	return r.District + "\x00" + r.Name + "\x00" + r.Address
}

// CrawlTarget is a district directory URL plus the label derived from it.
type CrawlTarget struct {
	URL      string
	District string
}

// TargetStatus is the outcome of processing one target.
type TargetStatus string

// Target outcomes recorded in a RunSummary.
const (
	TargetSucceeded TargetStatus = "succeeded"
	TargetEmpty     TargetStatus = "empty"
	TargetFailed    TargetStatus = "failed"
	TargetSkipped   TargetStatus = "skipped"
)

// TargetResult captures per-target counters for progress reporting.
type TargetResult struct {
	Target     CrawlTarget   `json:"target"`
	Status     TargetStatus  `json:"status"`
	Records    int           `json:"records"`
	Duplicates int           `json:"duplicates"`
	Containers int           `json:"containers"`
	Dropped    int           `json:"dropped"`
	Bytes      int           `json:"bytes"`
	Duration   time.Duration `json:"duration"`
	ErrorText  string        `json:"error_text,omitempty"`
}

// RunSummary describes a completed (possibly partial) crawl run.
type RunSummary struct {
	RunID    string         `json:"run_id"`
	Started  time.Time      `json:"started_at"`
	Finished time.Time      `json:"finished_at"`
	Targets  []TargetResult `json:"targets"`
	Records  int            `json:"records"`
}

// Failed returns the number of targets that contributed no records due to an error.
func (s RunSummary) Failed() int {
	n := 0
	for _, t := range s.Targets {
		if t.Status == TargetFailed {
			n++
		}
	}
	return n
}

// ParseReport is what a Parser observed while extracting one page.
type ParseReport struct {
	Records           []ListingRecord
	Containers        int
	DroppedNoName     int
	DroppedIncomplete int
	SkippedErrors     int
	Mismatch          bool
}

// Dropped is the number of containers that produced no record.
func (r ParseReport) Dropped() int {
	return r.DroppedNoName + r.DroppedIncomplete + r.SkippedErrors
}
