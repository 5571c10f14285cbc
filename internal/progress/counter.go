package progress

import "cadetplan/internal/model"

// Counts maps EO id to how many times it was taught across every scheduling
// surface. A missing id means zero.
type Counts map[string]int

// Get returns the count for id, zero if absent.
func (c Counts) Get(id string) int {
	return c[id]
}

// CountOccurrences folds the slot schedule and every auxiliary collection
// into one occurrence count per EO. Each scheduled slot counts once; each EO
// listed in a collection counts once per listing, duplicates included.
func CountOccurrences(entries map[model.SlotKey]model.ScheduledItem, aux ...model.EOCollection) Counts {
	counts := make(Counts)
	for _, it := range entries {
		counts[it.EO.ID]++
	}
	for _, col := range aux {
		if col == nil {
			continue
		}
		for _, eo := range col.Objectives() {
			counts[eo.ID]++
		}
	}
	return counts
}

// Collections adapts day and activity planners to the EOCollection list
// CountOccurrences takes.
func Collections(days []model.DayPlanner, activities []model.ActivityPlanner) []model.EOCollection {
	out := make([]model.EOCollection, 0, len(days)+len(activities))
	for _, d := range days {
		out = append(out, d)
	}
	for _, a := range activities {
		out = append(out, a)
	}
	return out
}
