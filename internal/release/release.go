// Package release hands a finished dataset to its downstream destinations:
// artifacts are mirrored to a blob store, listings are upserted into the
// listing store, and a dataset-ready notification is published.
//
// Every destination is optional. Failures are collected and returned together
// after all destinations have been attempted; the local dataset files are
// already durable at this point, so callers treat release errors as
// non-fatal.
package release

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/openrice-crawler/internal/clock/system"
	"github.com/JakeFAU/openrice-crawler/internal/crawler"
	"github.com/JakeFAU/openrice-crawler/internal/dataset"
	"github.com/JakeFAU/openrice-crawler/internal/hash/sha256"
)

// EventDatasetReady is the notification type attribute.
const EventDatasetReady = "dataset.ready"

// Config controls where artifacts land and which topic is notified.
type Config struct {
	// Prefix is prepended to mirrored object paths.
	Prefix string
	// Topic is passed to the publisher; empty disables notification.
	Topic string
}

// ArtifactRef describes a mirrored artifact inside a notification.
type ArtifactRef struct {
	Name        string `json:"name"`
	URI         string `json:"uri,omitempty"`
	SHA256      string `json:"sha256"`
	Bytes       int    `json:"bytes"`
	ContentType string `json:"content_type"`
}

// DatasetReady is published once per run after the dataset is written.
type DatasetReady struct {
	RunID         string        `json:"run_id"`
	Records       int           `json:"records"`
	Targets       int           `json:"targets"`
	FailedTargets int           `json:"failed_targets"`
	StartedAt     time.Time     `json:"started_at"`
	FinishedAt    time.Time     `json:"finished_at"`
	PublishedAt   time.Time     `json:"published_at"`
	Artifacts     []ArtifactRef `json:"artifacts"`
}

// Attributes returns message attributes for transports that support them.
func (d DatasetReady) Attributes() map[string]string {
	return map[string]string{
		"event":  EventDatasetReady,
		"run_id": d.RunID,
	}
}

// Result reports what a release reached.
type Result struct {
	Artifacts []ArtifactRef
	Saved     int
	MessageID string
}

// Releaser fans a finished dataset out to its destinations.
type Releaser struct {
	blobs     crawler.BlobStore
	listings  crawler.ListingStore
	publisher crawler.Publisher
	hasher    crawler.Hasher
	clock     crawler.Clock
	cfg       Config
	logger    *zap.Logger
}

// Option customizes a Releaser.
type Option func(*Releaser)

// WithBlobStore mirrors artifacts to store.
func WithBlobStore(store crawler.BlobStore) Option {
	return func(r *Releaser) { r.blobs = store }
}

// WithListingStore upserts records into store.
func WithListingStore(store crawler.ListingStore) Option {
	return func(r *Releaser) { r.listings = store }
}

// WithPublisher publishes the dataset-ready notification through p.
func WithPublisher(p crawler.Publisher) Option {
	return func(r *Releaser) { r.publisher = p }
}

// WithHasher overrides the artifact digest.
func WithHasher(h crawler.Hasher) Option {
	return func(r *Releaser) { r.hasher = h }
}

// WithClock overrides the publish timestamp source.
func WithClock(c crawler.Clock) Option {
	return func(r *Releaser) { r.clock = c }
}

// New constructs a Releaser. Destinations are added with options.
func New(cfg Config, logger *zap.Logger, opts ...Option) *Releaser {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Releaser{
		hasher: sha256.New(),
		clock:  system.New(),
		cfg:    cfg,
		logger: logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Release mirrors artifacts, saves records, and publishes the notification.
func (r *Releaser) Release(
	ctx context.Context,
	summary crawler.RunSummary,
	records []crawler.ListingRecord,
	artifacts []dataset.Artifact,
) (Result, error) {
	var (
		res  Result
		errs []error
	)

	for _, art := range artifacts {
		ref, err := r.mirror(ctx, summary.RunID, art)
		if err != nil {
			errs = append(errs, err)
			r.logger.Error("artifact mirror failed", zap.String("path", art.Path), zap.Error(err))
		}
		res.Artifacts = append(res.Artifacts, ref)
	}

	if r.listings != nil {
		saved, err := r.listings.SaveListings(ctx, summary.RunID, records)
		if err != nil {
			errs = append(errs, fmt.Errorf("save listings: %w", err))
			r.logger.Error("listing store write failed", zap.Error(err))
		} else {
			res.Saved = saved
			r.logger.Info("listings saved", zap.String("run_id", summary.RunID), zap.Int("rows", saved))
		}
	}

	if r.publisher != nil && r.cfg.Topic != "" {
		msg := DatasetReady{
			RunID:         summary.RunID,
			Records:       len(records),
			Targets:       len(summary.Targets),
			FailedTargets: summary.Failed(),
			StartedAt:     summary.Started,
			FinishedAt:    summary.Finished,
			PublishedAt:   r.clock.Now(),
			Artifacts:     res.Artifacts,
		}
		id, err := r.publisher.Publish(ctx, r.cfg.Topic, msg)
		if err != nil {
			errs = append(errs, fmt.Errorf("publish dataset ready: %w", err))
			r.logger.Error("dataset notification failed", zap.String("topic", r.cfg.Topic), zap.Error(err))
		} else {
			res.MessageID = id
			r.logger.Info("dataset published",
				zap.String("run_id", summary.RunID),
				zap.String("topic", r.cfg.Topic),
				zap.String("message_id", id),
				zap.Int("artifacts", len(res.Artifacts)),
			)
		}
	}

	return res, errors.Join(errs...)
}

func (r *Releaser) mirror(ctx context.Context, runID string, art dataset.Artifact) (ArtifactRef, error) {
	ref := ArtifactRef{
		Name:        filepath.Base(art.Path),
		Bytes:       art.Bytes,
		ContentType: art.ContentType,
	}
	// #nosec G304 -- artifacts are files this process just wrote.
	data, err := os.ReadFile(art.Path)
	if err != nil {
		return ref, fmt.Errorf("read artifact %s: %w", art.Path, err)
	}
	ref.Bytes = len(data)
	digest, err := r.hasher.Hash(data)
	if err != nil {
		return ref, fmt.Errorf("hash artifact %s: %w", art.Path, err)
	}
	ref.SHA256 = digest
	if r.blobs == nil {
		return ref, nil
	}
	uri, err := r.blobs.PutObject(ctx, r.objectPath(runID, ref.Name), art.ContentType, bytes.NewReader(data))
	if err != nil {
		return ref, fmt.Errorf("put object %s: %w", ref.Name, err)
	}
	ref.URI = uri
	r.logger.Debug("artifact mirrored", zap.String("uri", uri), zap.String("sha256", digest))
	return ref, nil
}

func (r *Releaser) objectPath(runID, name string) string {
	prefix := strings.Trim(r.cfg.Prefix, "/")
	if prefix == "" {
		return fmt.Sprintf("%s/%s", runID, name)
	}
	return fmt.Sprintf("%s/%s/%s", prefix, runID, name)
}
