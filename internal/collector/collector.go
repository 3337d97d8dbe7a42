package collector

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/rotisserie/eris"

	"github.com/shanehull/phonesourcer/internal/enrich"
	"github.com/shanehull/phonesourcer/internal/model"
	"github.com/shanehull/phonesourcer/internal/resilience"
	"github.com/shanehull/phonesourcer/internal/source"
	"github.com/shanehull/phonesourcer/internal/storage"
)

// State is the lifecycle stage of a collector.
type State int32

const (
	Idle State = iota
	Discovering
	Collecting
	Draining
	Done
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Discovering:
		return "discovering"
	case Collecting:
		return "collecting"
	case Draining:
		return "draining"
	case Done:
		return "done"
	}
	return "unknown"
}

// Outcome is what a finished run reports to the user.
type Outcome string

const (
	Success Outcome = "success"
	Partial Outcome = "partial"
)

// Reason records why collection stopped.
type Reason string

const (
	ReasonTarget    Reason = "target reached"
	ReasonExhausted Reason = "queue exhausted"
	ReasonFailures  Reason = "too many consecutive failures"
	ReasonCancelled Reason = "cancelled"
	ReasonFatal     Reason = "fatal source error"
)

// Config bounds one run. TargetCount, MaxPages and MaxEntities are required.
type Config struct {
	Name                   string
	TargetCount            int
	MaxPages               int
	MaxEntities            int
	SnapshotEvery          int
	MaxConsecutiveFailures int
}

func (c Config) Validate() error {
	switch {
	case c.Name == "":
		return eris.New("collector: name is required")
	case c.TargetCount <= 0:
		return eris.Errorf("collector %s: target count must be positive", c.Name)
	case c.MaxPages <= 0:
		return eris.Errorf("collector %s: max pages must be positive", c.Name)
	case c.MaxEntities <= 0:
		return eris.Errorf("collector %s: max entities must be positive", c.Name)
	}
	return nil
}

// Result summarises a run.
type Result struct {
	Outcome    Outcome
	Reason     Reason
	Accepted   int
	New        int
	Discovered int
	Processed  int
	Pages      int
	Failures   int
}

// Collector pages through a source, extracts and normalizes phones and
// accumulates the distinct identities until the target is met or the
// source runs dry. One collector is single-use and sequential.
type Collector struct {
	cfg       Config
	source    source.RecordSource
	extractor enrich.Extractor
	store     storage.CheckpointStore
	exporter  storage.Exporter
	logger    *slog.Logger

	state     atomic.Int32
	accepted  *model.AcceptedSet
	processed model.EntitySet
	queue     []model.Entity

	result      Result
	consecutive int
	sinceSnap   int
	stopReason  Reason
}

// New builds a collector. store and exporter may be nil.
func New(cfg Config, src source.RecordSource, ex enrich.Extractor, store storage.CheckpointStore, exp storage.Exporter, logger *slog.Logger) (*Collector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if src == nil || ex == nil {
		return nil, eris.Errorf("collector %s: source and extractor are required", cfg.Name)
	}
	if cfg.SnapshotEvery <= 0 {
		cfg.SnapshotEvery = 10
	}
	return &Collector{
		cfg:       cfg,
		source:    src,
		extractor: ex,
		store:     store,
		exporter:  exp,
		logger:    logger.With("collector", cfg.Name),
		accepted:  model.NewAcceptedSet(),
		processed: make(model.EntitySet),
	}, nil
}

func (c *Collector) State() State { return State(c.state.Load()) }

func (c *Collector) setState(s State) {
	c.state.Store(int32(s))
	c.logger.Debug("State changed", "state", s.String())
}

// Accepted returns the accepted set. It must not be modified while Run is
// in progress.
func (c *Collector) Accepted() *model.AcceptedSet { return c.accepted }

// Run executes the whole lifecycle. A fatal source error still drains (the
// last good progress is saved) and is then returned. Cancelling ctx is not
// an error: the run drains and reports Partial.
func (c *Collector) Run(ctx context.Context) (Result, error) {
	if c.State() != Idle {
		return c.result, eris.Errorf("collector %s: already run", c.cfg.Name)
	}

	if err := c.loadCheckpoint(ctx); err != nil {
		c.setState(Done)
		return c.result, err
	}

	var runErr error
	if c.targetMet() {
		c.stopReason = ReasonTarget
	} else {
		c.setState(Discovering)
		runErr = c.discover(ctx)
		if runErr == nil && c.stopReason == "" {
			c.setState(Collecting)
			runErr = c.collect(ctx)
		}
	}
	if runErr != nil {
		c.stopReason = ReasonFatal
	}

	c.setState(Draining)
	drainErr := c.drain(context.WithoutCancel(ctx))
	c.setState(Done)

	c.result.Accepted = c.accepted.Len()
	c.result.Reason = c.stopReason
	c.result.Outcome = Partial
	if c.targetMet() {
		c.result.Outcome = Success
	}

	c.logger.Info("Collector finished",
		"outcome", c.result.Outcome,
		"reason", c.result.Reason,
		"total", c.result.Accepted,
		"new", c.result.New,
		"discovered", c.result.Discovered,
		"processed", c.result.Processed,
		"pages", c.result.Pages,
		"failures", c.result.Failures)

	return c.result, errors.Join(runErr, drainErr)
}

func (c *Collector) targetMet() bool { return c.accepted.Len() >= c.cfg.TargetCount }

func (c *Collector) loadCheckpoint(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	set, processed, err := c.store.Load(ctx)
	if err != nil {
		return eris.Wrapf(err, "collector %s: load checkpoint", c.cfg.Name)
	}
	c.accepted = set
	c.processed = processed
	c.logger.Info("Loaded checkpoint", "total", set.Len(), "processed", len(processed))
	return nil
}

// failure counts a failed page or entity and reports whether the run must
// stop.
func (c *Collector) failure(what string, err error) bool {
	c.result.Failures++
	c.consecutive++
	c.logger.Warn("Skipping after failure", "what", what, "consecutive", c.consecutive, "err", err)
	if c.cfg.MaxConsecutiveFailures > 0 && c.consecutive > c.cfg.MaxConsecutiveFailures {
		c.stopReason = ReasonFailures
		c.logger.Error("Too many consecutive failures, draining", "consecutive", c.consecutive)
		return true
	}
	return false
}

func (c *Collector) discover(ctx context.Context) error {
	seen := make(map[string]struct{})
	for page := 1; page <= c.cfg.MaxPages; page++ {
		if ctx.Err() != nil {
			c.stopReason = ReasonCancelled
			return nil
		}

		records, err := c.source.NextPage(ctx, page)
		c.result.Pages++
		if err != nil {
			if ctx.Err() != nil {
				c.stopReason = ReasonCancelled
				return nil
			}
			if resilience.IsFatal(err) {
				return eris.Wrapf(err, "collector %s: page %d", c.cfg.Name, page)
			}
			if c.failure("page", err) {
				return nil
			}
			continue
		}
		c.consecutive = 0
		if len(records) == 0 {
			c.logger.Info("Source exhausted", "page", page)
			return nil
		}

		for _, rec := range records {
			id, ok := rec.ID()
			if !ok {
				c.logger.Debug("Skipping record without id", "page", page)
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			c.result.Discovered++
			if c.processed.Has(id) {
				continue
			}
			c.queue = append(c.queue, model.Entity{ID: id, Source: c.source.Name(), Record: rec})
			if len(c.queue) >= c.cfg.MaxEntities {
				c.logger.Info("Entity cap reached", "page", page, "queued", len(c.queue))
				return nil
			}
		}
		c.logger.Info("Discovered page", "page", page, "records", len(records), "queued", len(c.queue))
	}
	return nil
}

func (c *Collector) collect(ctx context.Context) error {
	// Page failures from discovery do not count against entities.
	c.consecutive = 0
	for i, ent := range c.queue {
		if ctx.Err() != nil {
			c.stopReason = ReasonCancelled
			return nil
		}
		if c.processed.Has(ent.ID) {
			continue
		}

		cands, err := c.extractor.Extract(ctx, ent)
		if err != nil && ctx.Err() != nil {
			c.stopReason = ReasonCancelled
			return nil
		}
		c.processed.Add(ent.ID)
		c.result.Processed++

		if err != nil {
			switch {
			case resilience.IsFatal(err):
				return eris.Wrapf(err, "collector %s: entity %s", c.cfg.Name, ent.ID)
			case resilience.IsMalformed(err):
				c.logger.Debug("Skipping malformed entity", "entity", ent.ID, "err", err)
				continue
			}
			if c.failure("entity "+ent.ID, err) {
				return nil
			}
			continue
		}
		c.consecutive = 0

		for _, cand := range cands {
			if c.accept(ctx, ent, cand) {
				return nil
			}
		}

		if (i+1)%50 == 0 {
			c.logger.Info("Progress", "processed", i+1, "queued", len(c.queue), "total", c.accepted.Len())
		}
	}
	c.stopReason = ReasonExhausted
	return nil
}

// accept normalizes one candidate and adds it. It reports whether the
// target has been reached.
func (c *Collector) accept(ctx context.Context, ent model.Entity, cand enrich.Candidate) bool {
	p, ok := model.NormalizePhone(cand.Raw)
	if !ok {
		c.logger.Debug("Rejected phone", "entity", ent.ID, "raw", cand.Raw)
		return false
	}
	if !c.accepted.Add(p, c.cfg.Name) {
		return false
	}
	c.result.New++
	c.sinceSnap++
	c.logger.Info("Accepted phone", "entity", ent.ID, "key", cand.Key, "phone", p.String(), "total", c.accepted.Len())

	if c.targetMet() {
		c.stopReason = ReasonTarget
		return true
	}
	if c.sinceSnap >= c.cfg.SnapshotEvery {
		c.snapshot(ctx)
	}
	return false
}

// snapshot writes a periodic export and checkpoint. Failures are logged;
// the final drain retries them.
func (c *Collector) snapshot(ctx context.Context) {
	c.sinceSnap = 0
	if c.exporter != nil {
		if err := c.exporter.Snapshot(ctx, c.accepted); err != nil {
			c.logger.Warn("Snapshot export failed", "err", err)
		}
	}
	if c.store != nil {
		if err := c.store.Save(ctx, c.accepted, c.processed); err != nil {
			c.logger.Warn("Checkpoint save failed", "err", err)
		}
	}
	c.logger.Info("Snapshot written", "total", c.accepted.Len())
}

func (c *Collector) drain(ctx context.Context) error {
	var errs []error
	if c.exporter != nil {
		if err := c.exporter.Snapshot(ctx, c.accepted); err != nil {
			errs = append(errs, eris.Wrapf(err, "collector %s: final export", c.cfg.Name))
		}
	}
	if c.store != nil {
		if err := c.store.Save(ctx, c.accepted, c.processed); err != nil {
			errs = append(errs, eris.Wrapf(err, "collector %s: final checkpoint", c.cfg.Name))
		}
	}
	return errors.Join(errs...)
}
