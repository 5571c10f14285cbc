package schedule

import (
	"sort"

	"cloud.google.com/go/civil"

	"cadetplan/internal/model"
)

// Candidate holds the resources proposed for a slot. A nil field is not
// checked; an empty string never conflicts.
type Candidate struct {
	Instructor *string
	Classroom  *string
}

// CheckConflict scans every entry sharing (date, period) other than exclude
// and reports the first one already holding a candidate resource. Instructors
// and classrooms are scoped per period across all phases. Entries are visited
// in ascending phase order and, per entry, the instructor is checked before
// the classroom. Comparison is exact and case-sensitive. Returns nil when the
// candidate is free.
func CheckConflict(entries map[model.SlotKey]model.ScheduledItem, date civil.Date, period int, cand Candidate, exclude model.SlotKey) *ResourceConflictError {
	instructor := deref(cand.Instructor)
	classroom := deref(cand.Classroom)
	if instructor == "" && classroom == "" {
		return nil
	}

	at := model.SlotKey{Date: date, Period: period}
	peers := make([]model.SlotKey, 0)
	for k := range entries {
		if k == exclude || !k.SamePeriod(at) {
			continue
		}
		peers = append(peers, k)
	}
	sort.Slice(peers, func(i, j int) bool { return peers[i].Less(peers[j]) })

	for _, k := range peers {
		it := entries[k]
		if instructor != "" && it.Instructor == instructor {
			return &ResourceConflictError{Resource: ResourceInstructor, Value: instructor, OccupiedBy: k}
		}
		if classroom != "" && it.Classroom == classroom {
			return &ResourceConflictError{Resource: ResourceClassroom, Value: classroom, OccupiedBy: k}
		}
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
