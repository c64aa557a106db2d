// Package gc deletes frame images that no identity references any more.
package gc

import (
	"context"
	"errors"
	"io/fs"

	"github.com/kdimtricp/lostfound/internal/logger"
	"github.com/kdimtricp/lostfound/internal/models"
	"github.com/kdimtricp/lostfound/internal/storage"
)

const DefaultRetentionWindow = 10

// Report summarizes one reconciliation.
type Report struct {
	MaxReferenced int
	Scanned       int
	Deleted       []int
	Missing       []int
	Failed        []int
}

type Collector struct {
	frames    *storage.FrameStore
	retention int
	log       *logger.Logger
}

func New(frames *storage.FrameStore, retentionWindow int, log *logger.Logger) *Collector {
	if retentionWindow < 0 {
		retentionWindow = DefaultRetentionWindow
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Collector{frames: frames, retention: retentionWindow, log: log}
}

// Reconcile deletes every frame image whose frame is referenced by no Active
// identity or lost record and lies strictly below the highest referenced frame
// minus the retention window. With nothing referenced, nothing is deleted.
func (c *Collector) Reconcile(ctx context.Context, identities []models.Identity, lost []models.LostRecord) (Report, error) {
	var rep Report
	refs := make(map[int]struct{}, len(identities)+len(lost))
	maxRef, found := 0, false
	ref := func(frame int) {
		refs[frame] = struct{}{}
		if !found || frame > maxRef {
			maxRef, found = frame, true
		}
	}
	for _, ident := range identities {
		ref(ident.LastSeenFrame)
	}
	for _, rec := range lost {
		ref(rec.Frame())
	}
	if !found {
		return rep, nil
	}
	rep.MaxReferenced = maxRef

	files, err := c.frames.Frames()
	if err != nil {
		return rep, err
	}
	rep.Scanned = len(files)
	cutoff := maxRef - c.retention
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		if _, ok := refs[f.Frame]; ok || f.Frame >= cutoff {
			continue
		}
		if err := c.frames.DeleteFile(f.Name); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				c.log.Warn("frame image already gone", "frame", f.Frame, "file", f.Name)
				rep.Missing = append(rep.Missing, f.Frame)
				continue
			}
			c.log.Error("delete frame image", "frame", f.Frame, "file", f.Name, "error", err)
			rep.Failed = append(rep.Failed, f.Frame)
			continue
		}
		rep.Deleted = append(rep.Deleted, f.Frame)
	}
	if len(rep.Deleted) > 0 {
		c.log.Debug("frame images collected", "deleted", len(rep.Deleted), "maxReferenced", maxRef)
	}
	return rep, nil
}
