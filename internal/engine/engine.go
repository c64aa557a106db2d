// Package engine runs the polling loop that feeds the detection log through
// the tracker and persists the result.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/kdimtricp/lostfound/internal/database"
	"github.com/kdimtricp/lostfound/internal/gc"
	"github.com/kdimtricp/lostfound/internal/logger"
	"github.com/kdimtricp/lostfound/internal/logreader"
	"github.com/kdimtricp/lostfound/internal/models"
	"github.com/kdimtricp/lostfound/internal/persistence"
	"github.com/kdimtricp/lostfound/internal/storage"
	"github.com/kdimtricp/lostfound/internal/tracker"
)

const (
	DefaultPollInterval      = 2 * time.Second
	DefaultMissingLogBackoff = 10 * time.Second
)

// LostHistory keeps a durable record of Lost transitions.
type LostHistory interface {
	Record(ctx context.Context, sessionID string, rec models.LostRecord) error
	MarkReactivated(ctx context.Context, key string, frame int, at time.Time) error
}

type Deps struct {
	Reader    *logreader.Reader
	Tracker   *tracker.Tracker
	Snapshot  *persistence.SnapshotWriter
	Artifacts *persistence.ArtifactWriter
	Collector *gc.Collector
	// History is optional.
	History LostHistory
	Logger  *logger.Logger
}

type Options struct {
	PollInterval      time.Duration
	MissingLogBackoff time.Duration
	SessionID         string
	Now               func() time.Time
}

// CycleReport summarizes one ingestion cycle.
type CycleReport struct {
	Events      int
	Created     int
	Updated     int
	Reactivated int
	Lost        int
	Dropped     int
	Warnings    int
	Written     int
	Removed     int
	Active      int
	LostPool    int
	GC          gc.Report
	// Failures are persistence errors; they are retried next cycle.
	Failures []error
}

// Engine is the single writer of the identity table, the snapshot and the
// lost artifacts.
type Engine struct {
	reader    *logreader.Reader
	tracker   *tracker.Tracker
	snapshot  *persistence.SnapshotWriter
	artifacts *persistence.ArtifactWriter
	collector *gc.Collector
	history   LostHistory
	log       *logger.Logger
	opts      Options

	// persisted maps artifact keys on disk to whether this session owns them.
	// Keys left by an earlier process are never removed by this one unless
	// they reappear in the lost pool.
	persisted map[string]bool
	seeded    bool
	saved     bool
}

func New(deps Deps, opts Options) (*Engine, error) {
	switch {
	case deps.Reader == nil:
		return nil, errors.New("engine: nil reader")
	case deps.Tracker == nil:
		return nil, errors.New("engine: nil tracker")
	case deps.Snapshot == nil:
		return nil, errors.New("engine: nil snapshot writer")
	case deps.Artifacts == nil:
		return nil, errors.New("engine: nil artifact writer")
	case deps.Collector == nil:
		return nil, errors.New("engine: nil garbage collector")
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.MissingLogBackoff <= 0 {
		opts.MissingLogBackoff = DefaultMissingLogBackoff
	}
	if opts.SessionID == "" {
		opts.SessionID = uuid.NewString()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := deps.Logger
	if log == nil {
		log = logger.Nop()
	}

	return &Engine{
		reader:    deps.Reader,
		tracker:   deps.Tracker,
		snapshot:  deps.Snapshot,
		artifacts: deps.Artifacts,
		collector: deps.Collector,
		history:   deps.History,
		log:       log.With("session", opts.SessionID),
		opts:      opts,
		persisted: make(map[string]bool),
	}, nil
}

func (e *Engine) SessionID() string { return e.opts.SessionID }

func (e *Engine) Tracker() *tracker.Tracker { return e.tracker }

// Run repeats cycles until ctx is cancelled. Cancellation is honoured only
// between cycles, so a started cycle always completes its writes.
func (e *Engine) Run(ctx context.Context) error {
	e.log.Info("engine started",
		"log", e.reader.Path(),
		"strategy", e.reader.Strategy(),
		"snapshot", e.snapshot.Path(),
		"pollInterval", e.opts.PollInterval,
	)
	for {
		wait := e.opts.PollInterval
		if _, err := e.RunCycle(ctx); err != nil {
			if errors.Is(err, logreader.ErrLogMissing) {
				wait = e.opts.MissingLogBackoff
				e.log.Warn("detection log unavailable, backing off", "error", err, "retryIn", wait)
			} else {
				e.log.Error("cycle failed", "error", err)
			}
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			e.log.Info("engine stopped")
			return nil
		case <-timer.C:
		}
	}
}

// RunCycle performs one read, match, lifecycle, persist and collect pass. The
// returned error is the read error, if any; persistence failures are logged,
// listed in the report and retried next cycle.
func (e *Engine) RunCycle(ctx context.Context) (CycleReport, error) {
	ctx = context.WithoutCancel(ctx)
	var rep CycleReport

	if !e.seeded {
		if err := e.seed(); err != nil {
			rep.Failures = append(rep.Failures, err)
			e.log.Error("list existing artifacts", "error", err)
		}
	}

	// In rebuild mode the table is recomputed from scratch, but only once the
	// log turns out to be readable so a missing log keeps the previous table.
	rebuild := e.reader.Strategy() == logreader.StrategyRebuild
	reset := rebuild
	var changes []tracker.Change
	for ev := range e.reader.Events(ctx) {
		if reset {
			e.tracker.Reset()
			reset = false
		}
		rep.Events++
		c, dropped := e.tracker.Ingest(ev)
		changes = append(changes, c...)
		for _, err := range dropped {
			rep.Dropped++
			e.log.Warn("detection dropped", "frame", ev.Frame, "error", err)
		}
	}
	for _, w := range e.reader.Warnings() {
		rep.Warnings++
		e.log.Warn("log line skipped", "line", w.Line, "offset", w.Offset, "error", w.Err, "text", w.Text)
	}
	if err := e.reader.Err(); err != nil {
		return rep, err
	}
	if reset {
		e.tracker.Reset()
	}
	changes = append(changes, e.tracker.Finish()...)
	count(&rep, changes)

	// A rebuild can empty the table without reporting a change, so its
	// snapshot is always rewritten.
	identities := e.tracker.Identities()
	if rebuild || len(changes) > 0 || !e.saved {
		if err := e.snapshot.Save(identities); err != nil {
			e.saved = false
			rep.Failures = append(rep.Failures, err)
			e.log.Error("save snapshot", "path", e.snapshot.Path(), "error", err)
		} else {
			e.saved = true
		}
	}

	e.markReactivated(ctx, changes, &rep)
	e.reconcileArtifacts(ctx, &rep)

	lost := e.tracker.Lost()
	gcRep, err := e.collector.Reconcile(ctx, identities, lost)
	if err != nil {
		rep.Failures = append(rep.Failures, err)
		e.log.Error("collect frame images", "error", err)
	}
	rep.GC = gcRep
	rep.Active = len(identities)
	rep.LostPool = len(lost)

	if rep.Events > 0 || len(changes) > 0 {
		e.log.Debug("cycle complete",
			"events", rep.Events,
			"created", rep.Created,
			"updated", rep.Updated,
			"reactivated", rep.Reactivated,
			"lost", rep.Lost,
			"active", rep.Active,
			"lostPool", rep.LostPool,
			"framesDeleted", len(gcRep.Deleted),
		)
	}
	return rep, nil
}

func count(rep *CycleReport, changes []tracker.Change) {
	for _, c := range changes {
		switch c.Kind {
		case tracker.ChangeCreated:
			rep.Created++
		case tracker.ChangeUpdated:
			rep.Updated++
		case tracker.ChangeReactivated:
			rep.Reactivated++
		case tracker.ChangeLost:
			rep.Lost++
		}
	}
}

func (e *Engine) seed() error {
	keys, err := e.artifacts.Existing()
	if err != nil {
		return err
	}
	for _, k := range keys {
		e.persisted[k] = false
	}
	e.seeded = true
	return nil
}

// markReactivated updates the history of persisted records that were found
// again. A record lost and found within one cycle was never persisted.
func (e *Engine) markReactivated(ctx context.Context, changes []tracker.Change, rep *CycleReport) {
	for _, c := range changes {
		if c.Kind != tracker.ChangeReactivated {
			continue
		}
		if _, ok := e.persisted[c.LostKey]; !ok {
			continue
		}
		e.log.Info("lost object found again", "id", c.ID, "key", c.LostKey, "frame", c.Frame)
		if e.history == nil {
			continue
		}
		err := e.history.MarkReactivated(ctx, c.LostKey, c.Frame, e.opts.Now())
		if errors.Is(err, database.ErrNotFound) {
			e.log.Debug("no history row for reactivated object", "key", c.LostKey)
			continue
		}
		if err != nil {
			rep.Failures = append(rep.Failures, err)
			e.log.Error("record reactivation", "key", c.LostKey, "error", err)
		}
	}
}

// reconcileArtifacts writes artifacts for lost records that have none yet and
// removes those of records that left the pool.
func (e *Engine) reconcileArtifacts(ctx context.Context, rep *CycleReport) {
	inPool := make(map[string]struct{})
	for _, rec := range e.tracker.Lost() {
		key := rec.Key()
		inPool[key] = struct{}{}
		if _, ok := e.persisted[key]; ok {
			e.persisted[key] = true
			continue
		}

		paths, err := e.artifacts.Write(rec)
		switch {
		case errors.Is(err, storage.ErrFrameNotFound):
			e.log.Warn("frame image unavailable, wrote metadata only", "key", key, "frame", rec.Frame())
		case err != nil:
			rep.Failures = append(rep.Failures, err)
			e.log.Error("write lost artifacts", "key", key, "error", err)
			continue
		}
		rep.Written++
		e.persisted[key] = true
		e.tracker.AttachArtifacts(key, paths)
		rec.ArtifactPaths = paths
		e.log.Info("object lost", "id", rec.Identity.ID, "key", key, "frame", rec.Frame(), "artifacts", paths)

		if e.history != nil {
			if err := e.history.Record(ctx, e.opts.SessionID, rec); err != nil {
				rep.Failures = append(rep.Failures, err)
				e.log.Error("record lost object", "key", key, "error", err)
			}
		}
	}

	for key, owned := range e.persisted {
		if _, ok := inPool[key]; ok || !owned {
			continue
		}
		missing, err := e.artifacts.Remove(key)
		for _, name := range missing {
			e.log.Warn("artifact already gone", "key", key, "file", name)
		}
		if err != nil {
			rep.Failures = append(rep.Failures, err)
			e.log.Error("remove lost artifacts", "key", key, "error", err)
			continue
		}
		rep.Removed++
		delete(e.persisted, key)
	}
}
