// Package tracker resolves detections into stable identities and moves those
// identities between the Active table and the lost-object pool.
//
// A Tracker is owned by a single goroutine (the engine loop). It holds no
// package-level state; every piece of the identity table lives on the value.
package tracker

import (
	"math"
	"strings"
	"time"

	"github.com/kdimtricp/lostfound/internal/color"
	"github.com/kdimtricp/lostfound/internal/models"
	"github.com/pkg/errors"
)

var (
	ErrMissingField = errors.New("detection is missing a required field")
	ErrIgnoredClass = errors.New("detection class is ignored")
)

type Config struct {
	// Threshold is the similarity threshold for Active identities.
	Threshold float64
	// LostThreshold is used when re-matching lost records. Zero derives it
	// from Threshold with the comparator's StricterThreshold.
	LostThreshold float64
	// MaxLostFrames is how many frames an identity may go unseen before it is
	// lost.
	MaxLostFrames int
	// Rematch lets detections reactivate records of the lost pool.
	Rematch        bool
	IgnoredClasses []string
}

// MaxLostFrames converts a timeout in seconds to whole frames, rounding up.
func MaxLostFrames(seconds, fps float64) int {
	if seconds <= 0 || fps <= 0 {
		return 0
	}
	return int(math.Ceil(seconds*fps - 1e-9))
}

type ChangeKind string

const (
	ChangeCreated     ChangeKind = "created"
	ChangeUpdated     ChangeKind = "updated"
	ChangeReactivated ChangeKind = "reactivated"
	ChangeLost        ChangeKind = "lost"
)

// Change is one bookkeeping event produced while ingesting or sweeping.
type Change struct {
	Kind  ChangeKind
	ID    string
	Frame int
	// LostKey names the lost record involved in a lost or reactivated change.
	LostKey string
}

type Option func(*Tracker)

// WithClock replaces time.Now as the source of LostAt timestamps.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

type Tracker struct {
	cfg       Config
	extractor *color.Extractor
	ignored   map[string]struct{}
	now       func() time.Time

	active  *table
	lost    *pool
	horizon int
	seen    bool
}

func New(cfg Config, extractor *color.Extractor, opts ...Option) (*Tracker, error) {
	if extractor == nil {
		return nil, errors.New("tracker: nil color extractor")
	}
	if cfg.MaxLostFrames < 0 {
		return nil, errors.Errorf("tracker: negative MaxLostFrames %d", cfg.MaxLostFrames)
	}
	if cfg.LostThreshold == 0 {
		cfg.LostThreshold = extractor.Comparator().StricterThreshold(cfg.Threshold)
	}

	t := &Tracker{
		cfg:       cfg,
		extractor: extractor,
		ignored:   make(map[string]struct{}, len(cfg.IgnoredClasses)),
		now:       time.Now,
	}
	for _, name := range cfg.IgnoredClasses {
		if name = strings.TrimSpace(name); name != "" {
			t.ignored[name] = struct{}{}
		}
	}
	for _, opt := range opts {
		opt(t)
	}
	t.Reset()
	return t, nil
}

func (t *Tracker) Config() Config { return t.cfg }

// Reset forgets every identity, lost record and issued id.
func (t *Tracker) Reset() {
	t.active = newTable()
	t.lost = &pool{}
	t.horizon = 0
	t.seen = false
}

// Identities returns a copy of the Active table in insertion order.
func (t *Tracker) Identities() []models.Identity {
	return t.active.snapshot()
}

// Lost returns a copy of the lost pool, oldest first.
func (t *Tracker) Lost() []models.LostRecord {
	return t.lost.snapshot()
}

// Identity looks up an Active identity by id.
func (t *Tracker) Identity(id string) (models.Identity, bool) {
	ident, ok := t.active.get(id)
	if !ok {
		return models.Identity{}, false
	}
	return *ident, true
}

// Horizon is the highest frame ingested so far.
func (t *Tracker) Horizon() int { return t.horizon }

// AttachArtifacts records where the artifacts of a lost record were persisted.
func (t *Tracker) AttachArtifacts(key string, paths []string) bool {
	return t.lost.setArtifacts(key, paths)
}

// Ingest sweeps up to the event's frame and then matches its detections in
// order. Dropped detections are returned as errors; none of them stop the
// event.
func (t *Tracker) Ingest(ev models.FrameEvent) ([]Change, []error) {
	if !t.seen || ev.Frame > t.horizon {
		t.horizon = ev.Frame
		t.seen = true
	}
	changes := t.Sweep(ev.Frame)

	var dropped []error
	for i, rec := range ev.Detections {
		rec.Frame = ev.Frame
		c, err := t.match(rec)
		if err != nil {
			dropped = append(dropped, errors.Wrapf(err, "frame %d detection %d", ev.Frame, i))
			continue
		}
		changes = append(changes, c)
	}
	return changes, dropped
}

// Finish runs the end-of-cycle sweep at the highest frame ingested.
func (t *Tracker) Finish() []Change {
	if !t.seen {
		return nil
	}
	return t.Sweep(t.horizon)
}
