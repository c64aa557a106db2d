package tracker

import (
	"testing"
	"time"

	"github.com/kdimtricp/lostfound/internal/color"
	"github.com/kdimtricp/lostfound/internal/models"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTracker(t *testing.T, cfg Config) *Tracker {
	t.Helper()
	if cfg.Threshold == 0 {
		cfg.Threshold = 50
	}
	tr, err := New(cfg, color.NewExtractor(color.MeanColor{}, nil), WithClock(func() time.Time { return fixedNow }))
	require.NoError(t, err)
	return tr
}

func det(name, hex string, bbox models.BBox) models.DetectionRecord {
	return models.DetectionRecord{ClassID: 1, Name: name, Color: models.ColorValue{Hex: hex}, BBox: bbox}
}

func event(frame int, recs ...models.DetectionRecord) models.FrameEvent {
	return models.FrameEvent{Frame: frame, Detections: recs}
}

func ids(idents []models.Identity) []string {
	out := make([]string, len(idents))
	for i, ident := range idents {
		out[i] = ident.ID
	}
	return out
}

func ingest(t *testing.T, tr *Tracker, ev models.FrameEvent) []Change {
	t.Helper()
	changes, dropped := tr.Ingest(ev)
	require.Empty(t, dropped)
	return changes
}

var box = models.BBox{XMin: 0, YMin: 0, XMax: 10, YMax: 10}

func TestClassIsolation(t *testing.T) {
	tr := newTracker(t, Config{MaxLostFrames: 100})

	ingest(t, tr, event(1, det("dog", "#112233", box), det("cat", "#112233", box)))
	assert.Equal(t, []string{"dog_1", "cat_1"}, ids(tr.Identities()))

	changes := ingest(t, tr, event(2, det("cat", "#112234", box)))
	require.Len(t, changes, 1)
	assert.Equal(t, Change{Kind: ChangeUpdated, ID: "cat_1", Frame: 2}, changes[0])

	dog, ok := tr.Identity("dog_1")
	require.True(t, ok)
	assert.Equal(t, 1, dog.LastSeenFrame)
	assert.Equal(t, "#112233", dog.Signature.String())
}

func TestFirstMatchWins(t *testing.T) {
	tr := newTracker(t, Config{MaxLostFrames: 100})

	ingest(t, tr, event(1, det("cup", "#000000", box)))
	ingest(t, tr, event(2, det("cup", "#650000", box)))
	assert.Equal(t, []string{"cup_1", "cup_2"}, ids(tr.Identities()))

	// Walk cup_1 towards cup_2 in steps within the threshold.
	ingest(t, tr, event(3, det("cup", "#2d0000", box)))
	ingest(t, tr, event(4, det("cup", "#5f0000", box)))

	// 0x64 is 5 from cup_1 (0x5f) and 1 from cup_2 (0x65); cup_1 was registered first.
	changes := ingest(t, tr, event(5, det("cup", "#640000", box)))
	require.Len(t, changes, 1)
	assert.Equal(t, "cup_1", changes[0].ID)

	cup2, ok := tr.Identity("cup_2")
	require.True(t, ok)
	assert.Equal(t, 2, cup2.LastSeenFrame)
}

func TestLifecycleRoundTrip(t *testing.T) {
	tr := newTracker(t, Config{MaxLostFrames: 10, Rematch: true})

	ingest(t, tr, event(3, det("dog", "#112233", box)))
	assert.Empty(t, ingest(t, tr, event(13)), "10 frames unseen is not yet lost")

	changes := ingest(t, tr, event(14))
	require.Len(t, changes, 1)
	assert.Equal(t, Change{Kind: ChangeLost, ID: "dog_1", Frame: 3, LostKey: "dog_1_frame3"}, changes[0])
	assert.Empty(t, tr.Identities())

	lost := tr.Lost()
	require.Len(t, lost, 1)
	assert.Equal(t, models.StateLost, lost[0].Identity.State)
	assert.Equal(t, fixedNow, lost[0].LostAt)

	// Lost exactly once.
	assert.Empty(t, ingest(t, tr, event(20)))
	assert.Empty(t, tr.Finish())
	assert.Len(t, tr.Lost(), 1)

	changes = ingest(t, tr, event(30, det("dog", "#112235", box)))
	require.Len(t, changes, 1)
	assert.Equal(t, Change{Kind: ChangeReactivated, ID: "dog_1", Frame: 30, LostKey: "dog_1_frame3"}, changes[0])
	assert.Empty(t, tr.Lost())

	dog, ok := tr.Identity("dog_1")
	require.True(t, ok)
	assert.Equal(t, models.StateActive, dog.State)
	assert.True(t, dog.LostAt.IsZero())
	assert.Equal(t, 3, dog.FirstSeenFrame)
	assert.Equal(t, 30, dog.LastSeenFrame)
}

func TestEndToEndExample(t *testing.T) {
	first := det("dog", "#112233", models.BBox{XMin: 0, YMin: 0, XMax: 10, YMax: 10})
	later := det("dog", "#11223A", models.BBox{XMin: 1, YMin: 1, XMax: 9, YMax: 9})
	maxLost := MaxLostFrames(1, 10)
	require.Equal(t, 10, maxLost)

	t.Run("rematch enabled reactivates dog_1", func(t *testing.T) {
		tr := newTracker(t, Config{MaxLostFrames: maxLost, Rematch: true})
		ingest(t, tr, event(3, first))

		changes := ingest(t, tr, event(50, later))
		require.Len(t, changes, 2)
		assert.Equal(t, ChangeLost, changes[0].Kind)
		assert.Equal(t, ChangeReactivated, changes[1].Kind)
		assert.Equal(t, "dog_1_frame3", changes[1].LostKey)

		assert.Equal(t, []string{"dog_1"}, ids(tr.Identities()))
		assert.Empty(t, tr.Lost())
		dog, _ := tr.Identity("dog_1")
		assert.Equal(t, 50, dog.LastSeenFrame)
		assert.Equal(t, later.BBox, dog.LastSeenBBox)
	})

	t.Run("rematch disabled creates dog_2", func(t *testing.T) {
		tr := newTracker(t, Config{MaxLostFrames: maxLost})
		ingest(t, tr, event(3, first))

		changes := ingest(t, tr, event(50, later))
		require.Len(t, changes, 2)
		assert.Equal(t, Change{Kind: ChangeCreated, ID: "dog_2", Frame: 50}, changes[1])

		assert.Equal(t, []string{"dog_2"}, ids(tr.Identities()))
		lost := tr.Lost()
		require.Len(t, lost, 1)
		assert.Equal(t, "dog_1", lost[0].Identity.ID)
		assert.Equal(t, 3, lost[0].Frame())
	})
}

func TestLostRematchUsesStricterThreshold(t *testing.T) {
	tr := newTracker(t, Config{MaxLostFrames: 5, Rematch: true})
	assert.Equal(t, 25.0, tr.Config().LostThreshold)

	ingest(t, tr, event(1, det("dog", "#000000", box)))
	ingest(t, tr, event(10))
	require.Len(t, tr.Lost(), 1)

	// 30 away: similar for an Active identity, too far for the lost pool.
	changes := ingest(t, tr, event(11, det("dog", "#00001e", box)))
	require.Len(t, changes, 1)
	assert.Equal(t, Change{Kind: ChangeCreated, ID: "dog_2", Frame: 11}, changes[0])
	assert.Len(t, tr.Lost(), 1)
}

func TestIDsNeverReused(t *testing.T) {
	tr := newTracker(t, Config{MaxLostFrames: 2})

	ingest(t, tr, event(1, det("dog", "#000000", box)))
	ingest(t, tr, event(10))
	require.Empty(t, tr.Identities())

	ingest(t, tr, event(11, det("dog", "#ffffff", box)))
	assert.Equal(t, []string{"dog_2"}, ids(tr.Identities()))

	tr.Reset()
	ingest(t, tr, event(1, det("dog", "#000000", box)))
	assert.Equal(t, []string{"dog_1"}, ids(tr.Identities()), "Reset starts a fresh table")
}

func TestDroppedDetections(t *testing.T) {
	tr := newTracker(t, Config{MaxLostFrames: 10, IgnoredClasses: []string{"person"}})

	changes, dropped := tr.Ingest(event(1,
		det("", "#000000", box),
		det("dog", "", box),
		det("person", "#000000", box),
		det("dog", "not-a-color", box),
		det("cat", "#000000", box),
	))
	require.Len(t, dropped, 4)
	assert.True(t, errors.Is(dropped[0], ErrMissingField))
	assert.True(t, errors.Is(dropped[1], ErrMissingField))
	assert.True(t, errors.Is(dropped[2], ErrIgnoredClass))
	assert.True(t, errors.Is(dropped[3], color.ErrInvalidHex))

	require.Len(t, changes, 1)
	assert.Equal(t, []string{"cat_1"}, ids(tr.Identities()))
}

func TestFinishSweepsAtHorizon(t *testing.T) {
	tr := newTracker(t, Config{MaxLostFrames: 3})
	assert.Nil(t, tr.Finish())

	ingest(t, tr, event(6, det("cat", "#000000", box)))
	// A late line for an earlier frame sweeps only up to its own frame.
	ingest(t, tr, event(2, det("dog", "#000000", box)))
	assert.Equal(t, 6, tr.Horizon())
	assert.Equal(t, []string{"cat_1", "dog_1"}, ids(tr.Identities()))

	changes := tr.Finish()
	require.Len(t, changes, 1)
	assert.Equal(t, Change{Kind: ChangeLost, ID: "dog_1", Frame: 2, LostKey: "dog_1_frame2"}, changes[0])
	assert.Equal(t, []string{"cat_1"}, ids(tr.Identities()))
}

func TestAttachArtifacts(t *testing.T) {
	tr := newTracker(t, Config{MaxLostFrames: 1})
	ingest(t, tr, event(1, det("dog", "#000000", box)))
	ingest(t, tr, event(5))

	assert.True(t, tr.AttachArtifacts("dog_1_frame1", []string{"a.jpg", "a.txt"}))
	assert.False(t, tr.AttachArtifacts("dog_9_frame1", nil))
	assert.Equal(t, []string{"a.jpg", "a.txt"}, tr.Lost()[0].ArtifactPaths)
}

func TestMaxLostFrames(t *testing.T) {
	tests := []struct {
		seconds, fps float64
		want         int
	}{
		{1, 10, 10},
		{0.3, 10, 3},
		{2.5, 3, 8},
		{0, 30, 0},
		{5, 0, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MaxLostFrames(tt.seconds, tt.fps), "%vs at %v fps", tt.seconds, tt.fps)
	}
}
