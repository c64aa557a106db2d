package tracker

import (
	"strings"
	"time"

	"github.com/kdimtricp/lostfound/internal/color"
	"github.com/kdimtricp/lostfound/internal/models"
	"github.com/pkg/errors"
)

func source(rec models.DetectionRecord) color.Source {
	return color.Source{
		Frame:     rec.Frame,
		Region:    rec.BBox.Rect(),
		Hex:       rec.Color.Hex,
		Histogram: rec.Color.Histogram,
	}
}

// match resolves one detection. Candidates are Active identities of the same
// name in insertion order, and the first similar one wins even when a later
// one is closer.
func (t *Tracker) match(rec models.DetectionRecord) (Change, error) {
	rec.Name = strings.TrimSpace(rec.Name)
	if rec.Name == "" {
		return Change{}, errors.Wrap(ErrMissingField, "name")
	}
	if rec.Color.IsZero() {
		return Change{}, errors.Wrapf(ErrMissingField, "color of %s", rec.Name)
	}
	if _, ok := t.ignored[rec.Name]; ok {
		return Change{}, errors.Wrap(ErrIgnoredClass, rec.Name)
	}

	sig, err := t.extractor.Describe(source(rec))
	if err != nil {
		return Change{}, errors.Wrapf(err, "describe %s", rec.Name)
	}
	cmp := t.extractor.Comparator()

	for _, ident := range t.active.candidates(rec.Name) {
		ok, err := cmp.IsSimilar(ident.Signature, sig, t.cfg.Threshold)
		if err != nil {
			return Change{}, errors.Wrapf(err, "compare with %s", ident.ID)
		}
		if ok {
			ident.Observe(rec, sig)
			return Change{Kind: ChangeUpdated, ID: ident.ID, Frame: ident.LastSeenFrame}, nil
		}
	}

	if t.cfg.Rematch {
		lost, ok, err := t.lost.take(rec.Name, func(lr models.LostRecord) (bool, error) {
			return cmp.IsSimilar(lr.Identity.Signature, sig, t.cfg.LostThreshold)
		})
		if err != nil {
			return Change{}, errors.Wrapf(err, "compare %s with lost pool", rec.Name)
		}
		if ok {
			ident := lost.Identity
			ident.State = models.StateActive
			ident.LostAt = time.Time{}
			ident.Observe(rec, sig)
			t.active.insert(&ident)
			return Change{Kind: ChangeReactivated, ID: ident.ID, Frame: ident.LastSeenFrame, LostKey: lost.Key()}, nil
		}
	}

	ident := models.NewIdentity(t.active.nextID(rec.Name), rec, sig)
	t.active.insert(ident)
	return Change{Kind: ChangeCreated, ID: ident.ID, Frame: ident.LastSeenFrame}, nil
}
