package models

import (
	"fmt"
	"time"

	"github.com/kdimtricp/lostfound/internal/color"
)

type State string

const (
	StateActive State = "active"
	StateLost   State = "lost"
)

// Identity is one physical object re-identified across frames.
type Identity struct {
	ID             string
	Name           string
	ClassID        int
	Signature      color.Descriptor
	FirstSeenFrame int
	LastSeenFrame  int
	LastSeenBBox   BBox
	Confidence     float64
	State          State
	LostAt         time.Time
	// Detection is the last accepted detection; it is what the snapshot file shows.
	Detection DetectionRecord
}

// NewIdentity seeds an active identity from its first detection.
func NewIdentity(id string, rec DetectionRecord, sig color.Descriptor) *Identity {
	ident := &Identity{
		ID:             id,
		Name:           rec.Name,
		State:          StateActive,
		FirstSeenFrame: rec.Frame,
		LastSeenFrame:  rec.Frame,
	}
	ident.Observe(rec, sig)
	return ident
}

// Observe applies a matching detection. LastSeenFrame never moves backwards.
func (i *Identity) Observe(rec DetectionRecord, sig color.Descriptor) {
	i.ClassID = rec.ClassID
	i.Signature = sig
	i.LastSeenBBox = rec.BBox
	i.Confidence = rec.ConfidenceOr(0)
	i.Detection = rec
	if rec.Frame > i.LastSeenFrame {
		i.LastSeenFrame = rec.Frame
	}
	i.Detection.Frame = i.LastSeenFrame
}

// ArtifactKey names the lost-object artifacts of an identity lost at frame.
func ArtifactKey(id string, frame int) string {
	return fmt.Sprintf("%s_frame%d", id, frame)
}

// LostRecord is the snapshot of an identity taken when it became lost.
type LostRecord struct {
	Identity      Identity
	LostAt        time.Time
	ArtifactPaths []string
}

func (r LostRecord) Key() string {
	return ArtifactKey(r.Identity.ID, r.Identity.LastSeenFrame)
}

func (r LostRecord) Frame() int {
	return r.Identity.LastSeenFrame
}
