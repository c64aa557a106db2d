package tracker

import (
	"slices"

	"github.com/kdimtricp/lostfound/internal/models"
)

// pool is the lost-object pool, ordered by the time each record was lost.
type pool struct {
	records []models.LostRecord
}

func (p *pool) add(rec models.LostRecord) {
	p.records = append(p.records, rec)
}

// take removes and returns the first record of the given name accepted by fn.
func (p *pool) take(name string, fn func(models.LostRecord) (bool, error)) (models.LostRecord, bool, error) {
	for i, rec := range p.records {
		if rec.Identity.Name != name {
			continue
		}
		ok, err := fn(rec)
		if err != nil {
			return models.LostRecord{}, false, err
		}
		if ok {
			p.records = slices.Delete(p.records, i, i+1)
			return rec, true, nil
		}
	}
	return models.LostRecord{}, false, nil
}

func (p *pool) setArtifacts(key string, paths []string) bool {
	for i := range p.records {
		if p.records[i].Key() == key {
			p.records[i].ArtifactPaths = slices.Clone(paths)
			return true
		}
	}
	return false
}

func (p *pool) snapshot() []models.LostRecord {
	out := make([]models.LostRecord, len(p.records))
	for i, rec := range p.records {
		rec.ArtifactPaths = slices.Clone(rec.ArtifactPaths)
		out[i] = rec
	}
	return out
}
