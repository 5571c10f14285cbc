// Package schedule holds the slot schedule: which EO is taught in which
// (date, period, phase) slot, with instructor/classroom double-booking
// guarded on every edit.
//
// A Schedule is not safe for concurrent use; callers serialize access and
// persist Snapshot() after each successful mutation.
package schedule

import (
	"sort"

	"cloud.google.com/go/civil"

	"cadetplan/internal/model"
)

// Patch is a partial update of a slot's resources. Nil fields are left as is.
type Patch struct {
	Instructor *string `json:"instructor,omitempty"`
	Classroom  *string `json:"classroom,omitempty"`
}

// Entry is a key/item pair as returned by Entries.
type Entry struct {
	Key  model.SlotKey
	Item model.ScheduledItem
}

// Schedule maps slot keys to scheduled items. A present key always holds an
// item; removal deletes the key.
type Schedule struct {
	items map[model.SlotKey]model.ScheduledItem
}

// New returns an empty schedule.
func New() *Schedule {
	return &Schedule{items: make(map[model.SlotKey]model.ScheduledItem)}
}

// FromSnapshot rebuilds a schedule from a persisted snapshot. The map is
// copied.
func FromSnapshot(snap map[model.SlotKey]model.ScheduledItem) *Schedule {
	s := New()
	for k, v := range snap {
		s.items[k] = v
	}
	return s
}

// Assign places eo into an empty slot with no instructor or classroom.
func (s *Schedule) Assign(key model.SlotKey, eo model.EO) (model.ScheduledItem, error) {
	if existing, ok := s.items[key]; ok {
		return model.ScheduledItem{}, &SlotOccupiedError{Key: key, Existing: existing}
	}
	it := model.ScheduledItem{EO: eo}
	s.items[key] = it
	return it, nil
}

// Update edits the instructor and/or classroom of an occupied slot. The
// proposed resources are checked against every other slot in the same
// (date, period); on conflict nothing is changed.
func (s *Schedule) Update(key model.SlotKey, p Patch) (model.ScheduledItem, error) {
	cur, ok := s.items[key]
	if !ok {
		return model.ScheduledItem{}, &SlotNotFoundError{Key: key}
	}

	if c := CheckConflict(s.items, key.Date, key.Period, Candidate(p), key); c != nil {
		return model.ScheduledItem{}, c
	}

	next := cur
	if p.Instructor != nil {
		next.Instructor = *p.Instructor
	}
	if p.Classroom != nil {
		next.Classroom = *p.Classroom
	}
	s.items[key] = next
	return next, nil
}

// Remove clears a slot. Removing an empty slot is a no-op.
func (s *Schedule) Remove(key model.SlotKey) {
	delete(s.items, key)
}

// Get returns the item in a slot, if any.
func (s *Schedule) Get(key model.SlotKey) (model.ScheduledItem, bool) {
	it, ok := s.items[key]
	return it, ok
}

// RemoveEO clears every slot holding the given EO and returns the cleared keys
// in order.
func (s *Schedule) RemoveEO(eoID string) []model.SlotKey {
	removed := make([]model.SlotKey, 0)
	for k, it := range s.items {
		if it.EO.ID == eoID {
			removed = append(removed, k)
		}
	}
	sortKeys(removed)
	for _, k := range removed {
		delete(s.items, k)
	}
	return removed
}

func (s *Schedule) Len() int { return len(s.items) }

// Keys returns all occupied keys in (date, period, phase) order.
func (s *Schedule) Keys() []model.SlotKey {
	keys := make([]model.SlotKey, 0, len(s.items))
	for k := range s.items {
		keys = append(keys, k)
	}
	sortKeys(keys)
	return keys
}

// Entries returns all slots in key order.
func (s *Schedule) Entries() []Entry {
	keys := s.Keys()
	out := make([]Entry, 0, len(keys))
	for _, k := range keys {
		out = append(out, Entry{Key: k, Item: s.items[k]})
	}
	return out
}

// OnDate returns the slots of a single night in key order.
func (s *Schedule) OnDate(d civil.Date) []Entry {
	out := make([]Entry, 0)
	for _, e := range s.Entries() {
		if e.Key.Date == d {
			out = append(out, e)
		}
	}
	return out
}

// Snapshot returns a copy of the underlying map for persistence or
// aggregation.
func (s *Schedule) Snapshot() map[model.SlotKey]model.ScheduledItem {
	out := make(map[model.SlotKey]model.ScheduledItem, len(s.items))
	for k, v := range s.items {
		out[k] = v
	}
	return out
}

func sortKeys(keys []model.SlotKey) {
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
}
