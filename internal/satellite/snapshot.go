package satellite

import (
	"time"

	"github.com/star/satviz/internal/tle"
)

// Snapshot is an immutable view of the collection. A new snapshot replaces
// the previous one on every change; readers keep whichever they loaded.
type Snapshot struct {
	Generation uint64
	At         time.Time // instant of the last tick, zero before the first

	order []tle.CatalogNumber
	byID  map[tle.CatalogNumber]*Entity
}

func emptySnapshot() *Snapshot {
	return &Snapshot{byID: make(map[tle.CatalogNumber]*Entity)}
}

// Len returns the number of selected satellites.
func (s *Snapshot) Len() int { return len(s.order) }

// Get returns the entity for id.
func (s *Snapshot) Get(id tle.CatalogNumber) (*Entity, bool) {
	e, ok := s.byID[id]
	return e, ok
}

// Contains reports whether id is selected.
func (s *Snapshot) Contains(id tle.CatalogNumber) bool {
	_, ok := s.byID[id]
	return ok
}

// IDs returns the selected catalog numbers in selection order.
func (s *Snapshot) IDs() []tle.CatalogNumber {
	return append([]tle.CatalogNumber(nil), s.order...)
}

// Entities returns the entities in selection order.
func (s *Snapshot) Entities() []*Entity {
	out := make([]*Entity, len(s.order))
	for i, id := range s.order {
		out[i] = s.byID[id]
	}
	return out
}

// InState returns the catalog numbers of entities in state st.
func (s *Snapshot) InState(st State) []tle.CatalogNumber {
	var ids []tle.CatalogNumber
	for _, id := range s.order {
		if s.byID[id].State() == st {
			ids = append(ids, id)
		}
	}
	return ids
}

// OrbitsDue returns the Active entities with a visible orbit whose cached
// path is missing or more than maxAge of simulated time away from t.
func (s *Snapshot) OrbitsDue(t time.Time, maxAge time.Duration) []*Entity {
	var due []*Entity
	for _, id := range s.order {
		e := s.byID[id]
		if e.State() != Active || !e.OrbitVisible() {
			continue
		}
		points, at := e.Orbit()
		if points == nil || absDuration(t.Sub(at)) > maxAge {
			due = append(due, e)
		}
	}
	return due
}

// next returns a mutable copy for the writer to build the successor from.
func (s *Snapshot) next() *Snapshot {
	n := &Snapshot{
		Generation: s.Generation + 1,
		At:         s.At,
		order:      append([]tle.CatalogNumber(nil), s.order...),
		byID:       make(map[tle.CatalogNumber]*Entity, len(s.byID)),
	}
	for id, e := range s.byID {
		n.byID[id] = e
	}
	return n
}

func (s *Snapshot) put(e *Entity) {
	if _, ok := s.byID[e.CatalogNumber()]; !ok {
		s.order = append(s.order, e.CatalogNumber())
	}
	s.byID[e.CatalogNumber()] = e
}

func (s *Snapshot) remove(id tle.CatalogNumber) {
	if _, ok := s.byID[id]; !ok {
		return
	}
	delete(s.byID, id)
	for i, o := range s.order {
		if o == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}
