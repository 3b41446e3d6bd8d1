package crawler

import (
	"context"
	"io"
	"time"
)

// Fetcher loads a URL and returns the fully rendered markup.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Parser extracts listing records from rendered markup for one district.
type Parser interface {
	ParseReport(markup string, district string) ParseReport
}

// Pauser blocks for the inter-target delay.
type Pauser interface {
	Pause(ctx context.Context, delay time.Duration)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}

// Hasher computes digests for dataset integrity.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// BlobStore writes dataset artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// ListingStore persists records produced by a run.
type ListingStore interface {
	SaveListings(ctx context.Context, runID string, records []ListingRecord) (int, error)
	Close()
}

// Publisher pushes dataset-ready events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}
