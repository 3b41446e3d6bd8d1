package crawler

import (
	"errors"
	"fmt"
)

// ErrStructuralMismatch signals that no listing containers matched; the
// container selector has most likely gone stale upstream.
var ErrStructuralMismatch = errors.New("no listing containers found")

// ErrNoDistrictMarker is returned when a target URL lacks the district marker.
var ErrNoDistrictMarker = errors.New("target url has no district marker")

// FetchError reports that a browser session could not be created or that
// navigation failed for URL.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// NewFetchError wraps err as a FetchError unless it already is one.
func NewFetchError(url string, err error) error {
	if err == nil {
		return nil
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return err
	}
	return &FetchError{URL: url, Err: err}
}

// FieldExtractionError describes a container skipped because extraction failed.
type FieldExtractionError struct {
	Index int
	Name  string
	Field string
	Err   error
}

func (e *FieldExtractionError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("container %d: extract %s: %v", e.Index, e.Field, e.Err)
	}
	return fmt.Sprintf("container %d (%s): extract %s: %v", e.Index, e.Name, e.Field, e.Err)
}

func (e *FieldExtractionError) Unwrap() error {
	return e.Err
}
