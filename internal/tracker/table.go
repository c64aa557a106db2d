package tracker

import (
	"fmt"

	"github.com/kdimtricp/lostfound/internal/models"
)

// table holds the Active identities in insertion order.
type table struct {
	order []*models.Identity
	byID  map[string]*models.Identity
	// issued counts every id ever handed out per name, lost ones included.
	issued map[string]int
}

func newTable() *table {
	return &table{
		byID:   make(map[string]*models.Identity),
		issued: make(map[string]int),
	}
}

func (t *table) nextID(name string) string {
	t.issued[name]++
	return fmt.Sprintf("%s_%d", name, t.issued[name])
}

func (t *table) insert(ident *models.Identity) {
	t.order = append(t.order, ident)
	t.byID[ident.ID] = ident
}

func (t *table) get(id string) (*models.Identity, bool) {
	ident, ok := t.byID[id]
	return ident, ok
}

// candidates returns the identities named name, oldest first.
func (t *table) candidates(name string) []*models.Identity {
	var out []*models.Identity
	for _, ident := range t.order {
		if ident.Name == name {
			out = append(out, ident)
		}
	}
	return out
}

// removeIf drops every identity for which fn returns true and returns them in
// table order.
func (t *table) removeIf(fn func(*models.Identity) bool) []*models.Identity {
	var removed []*models.Identity
	kept := t.order[:0]
	for _, ident := range t.order {
		if fn(ident) {
			removed = append(removed, ident)
			delete(t.byID, ident.ID)
			continue
		}
		kept = append(kept, ident)
	}
	clear(t.order[len(kept):])
	t.order = kept
	return removed
}

func (t *table) snapshot() []models.Identity {
	out := make([]models.Identity, len(t.order))
	for i, ident := range t.order {
		out[i] = *ident
	}
	return out
}
