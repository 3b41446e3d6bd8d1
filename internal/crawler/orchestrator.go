package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/openrice-crawler/internal/clock/system"
	uuidgen "github.com/JakeFAU/openrice-crawler/internal/id/uuid"
	"github.com/JakeFAU/openrice-crawler/internal/progress"
)

// DefaultDelay is the pause inserted after every target.
const DefaultDelay = 3 * time.Second

// Config controls Orchestrator behavior.
type Config struct {
	// Delay is applied after each target regardless of outcome.
	Delay time.Duration
}

// Orchestrator iterates district targets sequentially, fetching and parsing
// each one while isolating failures to the target that produced them.
type Orchestrator struct {
	fetcher Fetcher
	parser  Parser
	pauser  Pauser
	emitter progress.Emitter
	clock   Clock
	ids     IDGenerator
	cfg     Config
	logger  *zap.Logger
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithPauser overrides the inter-target pauser.
func WithPauser(p Pauser) Option {
	return func(o *Orchestrator) {
		if p != nil {
			o.pauser = p
		}
	}
}

// WithEmitter routes progress events to e.
func WithEmitter(e progress.Emitter) Option {
	return func(o *Orchestrator) {
		if e != nil {
			o.emitter = e
		}
	}
}

// WithClock overrides the time source.
func WithClock(c Clock) Option {
	return func(o *Orchestrator) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithIDGenerator overrides run id generation.
func WithIDGenerator(g IDGenerator) Option {
	return func(o *Orchestrator) {
		if g != nil {
			o.ids = g
		}
	}
}

// NewOrchestrator constructs an Orchestrator. A negative delay disables throttling.
func NewOrchestrator(fetcher Fetcher, parser Parser, cfg Config, logger *zap.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Delay == 0 {
		cfg.Delay = DefaultDelay
	}
	o := &Orchestrator{
		fetcher: fetcher,
		parser:  parser,
		pauser:  TimerPauser{},
		emitter: progress.Discard{},
		clock:   system.New(),
		ids:     uuidgen.New(),
		cfg:     cfg,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run processes targets in order and returns the accumulated records. It
// never fails: a target that errors contributes zero records.
func (o *Orchestrator) Run(ctx context.Context, targets []CrawlTarget) []ListingRecord {
	records, _ := o.RunWithSummary(ctx, targets)
	return records
}

// RunWithSummary is Run plus a per-target account of the run. Cancelling ctx
// stops the run between targets; the remaining targets are marked skipped and
// the partial accumulation is returned.
func (o *Orchestrator) RunWithSummary(ctx context.Context, targets []CrawlTarget) ([]ListingRecord, RunSummary) {
	runID := o.newRunID()
	summary := RunSummary{RunID: runID, Started: o.clock.Now().UTC()}
	eventID := progress.ParseRunID(runID)
	logger := o.logger.With(zap.String("run_id", runID))

	logger.Info("crawl run started", zap.Int("targets", len(targets)))
	o.emitter.Emit(progress.Event{
		RunID: eventID,
		TS:    summary.Started,
		Stage: progress.StageRunStart,
		Total: len(targets),
	})

	tracker := newRecordTracker()
	records := make([]ListingRecord, 0)
	for i, target := range targets {
		if err := ctx.Err(); err != nil {
			logger.Warn("crawl run interrupted; returning partial results",
				zap.Int("remaining", len(targets)-i),
				zap.Error(err),
			)
			for _, rest := range targets[i:] {
				summary.Targets = append(summary.Targets, TargetResult{Target: rest, Status: TargetSkipped})
			}
			break
		}
		result, accepted := o.processTarget(ctx, logger, eventID, i, len(targets), target, tracker)
		records = append(records, accepted...)
		summary.Targets = append(summary.Targets, result)
		o.pauser.Pause(ctx, o.cfg.Delay)
	}

	summary.Finished = o.clock.Now().UTC()
	summary.Records = len(records)
	logger.Info("crawl run finished",
		zap.Int("records", summary.Records),
		zap.Int("failed_targets", summary.Failed()),
		zap.Duration("duration", summary.Finished.Sub(summary.Started)),
	)
	o.emitter.Emit(progress.Event{
		RunID:   eventID,
		TS:      summary.Finished,
		Stage:   progress.StageRunDone,
		Total:   len(targets),
		Records: int64(summary.Records),
		Dur:     nonNegative(summary.Finished.Sub(summary.Started)),
	})
	return records, summary
}

func (o *Orchestrator) processTarget(
	ctx context.Context,
	logger *zap.Logger,
	eventID [16]byte,
	index, total int,
	target CrawlTarget,
	tracker *recordTracker,
) (TargetResult, []ListingRecord) {
	logger = logger.With(zap.String("district", target.District), zap.String("url", target.URL))
	start := o.clock.Now()
	base := progress.Event{
		RunID:    eventID,
		District: target.District,
		URL:      target.URL,
		Index:    index + 1,
		Total:    total,
	}
	startEvt := base
	startEvt.TS = start.UTC()
	startEvt.Stage = progress.StageTargetStart
	o.emitter.Emit(startEvt)

	result := TargetResult{Target: target}
	report, size, err := o.fetchAndParse(ctx, target)
	result.Duration = nonNegative(o.clock.Now().Sub(start))
	result.Bytes = size

	if err != nil {
		result.Status = TargetFailed
		result.ErrorText = err.Error()
		logger.Error("target failed; continuing with next district", zap.Error(err))
		evt := base
		evt.TS = o.clock.Now().UTC()
		evt.Stage = progress.StageTargetError
		evt.Bytes = int64(size)
		evt.Dur = result.Duration
		evt.Note = result.ErrorText
		o.emitter.Emit(evt)
		return result, nil
	}

	accepted := make([]ListingRecord, 0, len(report.Records))
	for _, rec := range report.Records {
		if !tracker.MarkIfNew(rec.Key()) {
			result.Duplicates++
			continue
		}
		accepted = append(accepted, rec)
	}
	result.Records = len(accepted)
	result.Containers = report.Containers
	result.Dropped = report.Dropped()
	result.Status = TargetSucceeded
	if len(accepted) == 0 {
		result.Status = TargetEmpty
	}
	logger.Info("target processed",
		zap.Int("records", result.Records),
		zap.Int("duplicates", result.Duplicates),
		zap.Int("containers", result.Containers),
		zap.Int("dropped", result.Dropped),
		zap.Duration("duration", result.Duration),
	)
	evt := base
	evt.TS = o.clock.Now().UTC()
	evt.Stage = progress.StageTargetDone
	evt.Bytes = int64(size)
	evt.Records = int64(result.Records)
	evt.Dropped = int64(result.Dropped)
	evt.Dur = result.Duration
	o.emitter.Emit(evt)
	return result, accepted
}

// fetchAndParse runs both collaborators for one target and converts a panic
// in either into an error so the run can continue.
func (o *Orchestrator) fetchAndParse(ctx context.Context, target CrawlTarget) (report ParseReport, size int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("target %s panicked: %v", target.District, r)
		}
	}()
	if o.fetcher == nil {
		return ParseReport{}, 0, errors.New("no fetcher configured")
	}
	if o.parser == nil {
		return ParseReport{}, 0, errors.New("no parser configured")
	}
	markup, err := o.fetcher.Fetch(ctx, target.URL)
	if err != nil {
		return ParseReport{}, 0, NewFetchError(target.URL, err)
	}
	return o.parser.ParseReport(markup, target.District), len(markup), nil
}

func (o *Orchestrator) newRunID() string {
	id, err := o.ids.NewID()
	if err != nil || id == "" {
		o.logger.Warn("run id generation failed; falling back to random uuid", zap.Error(err))
		return uuid.NewString()
	}
	return id
}

func nonNegative(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
