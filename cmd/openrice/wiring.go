package main

import (
	"context"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/openrice-crawler/internal/config"
	"github.com/JakeFAU/openrice-crawler/internal/crawler"
	collyfetcher "github.com/JakeFAU/openrice-crawler/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/openrice-crawler/internal/fetcher/headless"
	"github.com/JakeFAU/openrice-crawler/internal/fetcher/hybrid"
	"github.com/JakeFAU/openrice-crawler/internal/headless/detector"
	memorypublisher "github.com/JakeFAU/openrice-crawler/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/openrice-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/openrice-crawler/internal/release"
	gcsstorage "github.com/JakeFAU/openrice-crawler/internal/storage/gcs"
	localstorage "github.com/JakeFAU/openrice-crawler/internal/storage/local"
	"github.com/JakeFAU/openrice-crawler/internal/storage/memory"
	pgstore "github.com/JakeFAU/openrice-crawler/internal/storage/postgres"
)

func userAgent(cfg config.Config) string {
	if cfg.Crawler.UserAgent != "" {
		return cfg.Crawler.UserAgent
	}
	return headlessfetcher.DefaultUserAgent
}

func buildFetcher(cfg config.Config, logger *zap.Logger) (crawler.Fetcher, error) {
	static := func() crawler.Fetcher {
		return collyfetcher.New(collyfetcher.Config{
			UserAgent: userAgent(cfg),
			Timeout:   cfg.HTTP.Timeout(),
		})
	}
	if cfg.Fetcher.Mode == config.FetcherStatic {
		logger.Info("using static fetcher")
		return static(), nil
	}

	headless, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
		UserAgent:         userAgent(cfg),
		ExecPath:          cfg.Headless.ExecPath,
		NoSandbox:         cfg.Headless.NoSandbox,
		NavigationTimeout: cfg.Headless.NavTimeout(),
		SettleDelay:       cfg.Headless.Settle(),
		Scroll: headlessfetcher.ScrollConfig{
			MaxCycles:         cfg.Headless.ScrollCycles,
			Wait:              cfg.Headless.ScrollWait(),
			StableRounds:      cfg.Headless.StableRounds,
			ContainerSelector: cfg.Crawler.Selectors.Container,
		},
	}, logger.Named("headless"))
	if err != nil {
		return nil, fmt.Errorf("headless fetcher init failed: %w", err)
	}
	if cfg.Fetcher.Mode == config.FetcherHeadless {
		logger.Info("using headless fetcher")
		return headless, nil
	}

	logger.Info("using hybrid fetcher", zap.Int("min_containers", cfg.Fetcher.MinContainers))
	detect := detector.NewHeuristic(cfg.Fetcher.MinContainers, cfg.Crawler.Selectors.Container)
	f, err := hybrid.New(static(), headless, detect, logger.Named("hybrid"))
	if err != nil {
		return nil, fmt.Errorf("hybrid fetcher init failed: %w", err)
	}
	return f, nil
}

// releaseDeps owns the clients behind the release destinations.
type releaseDeps struct {
	gcs       *storage.Client
	pubsub    *pubsub.Client
	publisher *gcppublisher.Publisher
	listings  *pgstore.ListingStore

	// Dry run destinations, set when configured.
	blobs    *memory.BlobStore
	messages *memorypublisher.Publisher
}

// LogDryRun reports what the in-memory destinations captured.
func (d *releaseDeps) LogDryRun(logger *zap.Logger) {
	if d.blobs != nil {
		for _, path := range d.blobs.Paths() {
			obj, _ := d.blobs.Get(path)
			logger.Info("dry run artifact",
				zap.String("path", path),
				zap.String("content_type", obj.ContentType),
				zap.Int("bytes", len(obj.Data)),
			)
		}
	}
	if d.messages != nil {
		for _, msg := range d.messages.Messages() {
			logger.Info("dry run notification",
				zap.String("topic", msg.Topic),
				zap.ByteString("payload", msg.Data),
				zap.Any("attributes", msg.Attributes),
			)
		}
	}
}

func (d *releaseDeps) Close(logger *zap.Logger) {
	if d.publisher != nil {
		d.publisher.Stop()
	}
	if d.pubsub != nil {
		if err := d.pubsub.Close(); err != nil {
			logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if d.listings != nil {
		d.listings.Close()
	}
	if d.gcs != nil {
		if err := d.gcs.Close(); err != nil {
			logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
}

func buildReleaser(ctx context.Context, cfg config.Config, logger *zap.Logger) (*release.Releaser, *releaseDeps, error) {
	deps := &releaseDeps{}
	opts := []release.Option{}

	blobs, err := setupStorage(ctx, cfg, deps, logger)
	if err != nil {
		deps.Close(logger)
		return nil, nil, err
	}
	if blobs != nil {
		opts = append(opts, release.WithBlobStore(blobs))
	}

	if cfg.DB.DSN == "" {
		logger.Debug("no db.dsn configured, skipping listing store")
	} else {
		deps.listings, err = pgstore.NewListingStore(ctx, pgstore.ListingStoreConfig{
			DSN:      cfg.DB.DSN,
			Table:    cfg.DB.Table,
			MaxConns: cfg.DB.MaxConns,
		})
		if err != nil {
			deps.Close(logger)
			return nil, nil, fmt.Errorf("listing store init failed: %w", err)
		}
		if cfg.DB.CreateTable {
			if err := deps.listings.EnsureSchema(ctx); err != nil {
				deps.Close(logger)
				return nil, nil, err
			}
		}
		logger.Info("listing store initialized", zap.String("table", cfg.DB.Table))
		opts = append(opts, release.WithListingStore(deps.listings))
	}

	switch {
	case cfg.PubSub.TopicName == "":
		logger.Debug("no pubsub topic configured, skipping dataset notification")
	case cfg.PubSub.DryRun:
		deps.messages = memorypublisher.New()
		logger.Info("recording dataset notifications in memory", zap.String("topic", cfg.PubSub.TopicName))
		opts = append(opts, release.WithPublisher(deps.messages))
	default:
		deps.pubsub, err = pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			deps.Close(logger)
			return nil, nil, fmt.Errorf("pubsub client init failed: %w", err)
		}
		deps.publisher = gcppublisher.New(deps.pubsub.Publisher(cfg.PubSub.TopicName))
		logger.Info("pubsub publisher initialized",
			zap.String("project", cfg.PubSub.ProjectID),
			zap.String("topic", cfg.PubSub.TopicName),
		)
		opts = append(opts, release.WithPublisher(deps.publisher))
	}

	r := release.New(release.Config{
		Prefix: cfg.Storage.Prefix,
		Topic:  cfg.PubSub.TopicName,
	}, logger, opts...)
	return r, deps, nil
}

func setupStorage(ctx context.Context, cfg config.Config, deps *releaseDeps, logger *zap.Logger) (crawler.BlobStore, error) {
	switch cfg.Storage.Backend {
	case config.StorageGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		deps.gcs = client
		store, err := gcsstorage.New(client, gcsstorage.Config{Bucket: cfg.Storage.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		logger.Info("mirroring datasets to gcs", zap.String("bucket", cfg.Storage.GCSBucket))
		return store, nil
	case config.StorageLocal:
		store, err := localstorage.New(localstorage.Config{BaseDir: cfg.Storage.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		logger.Info("mirroring datasets locally", zap.String("dir", cfg.Storage.LocalDir))
		return store, nil
	case config.StorageMemory:
		deps.blobs = memory.NewBlobStore()
		logger.Info("mirroring datasets in memory")
		return deps.blobs, nil
	default:
		return nil, nil
	}
}
