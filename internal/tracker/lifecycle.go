package tracker

import (
	"time"

	"github.com/kdimtricp/lostfound/internal/models"
)

// Sweep moves every Active identity unseen for more than MaxLostFrames frames
// before horizon into the lost pool. Each identity is lost exactly once per
// stay in the Active table.
func (t *Tracker) Sweep(horizon int) []Change {
	expired := t.active.removeIf(func(ident *models.Identity) bool {
		return horizon-ident.LastSeenFrame > t.cfg.MaxLostFrames
	})
	if len(expired) == 0 {
		return nil
	}

	now := t.now()
	changes := make([]Change, 0, len(expired))
	for _, ident := range expired {
		rec := lose(*ident, now)
		t.lost.add(rec)
		changes = append(changes, Change{Kind: ChangeLost, ID: ident.ID, Frame: ident.LastSeenFrame, LostKey: rec.Key()})
	}
	return changes
}

func lose(ident models.Identity, at time.Time) models.LostRecord {
	ident.State = models.StateLost
	ident.LostAt = at
	return models.LostRecord{Identity: ident, LostAt: at}
}
