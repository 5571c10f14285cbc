package model

import "cloud.google.com/go/civil"

// EOCollection is any named collection recording EO occurrences outside the
// slot schedule. Duplicates are meaningful: an EO listed twice was taught twice.
type EOCollection interface {
	CollectionName() string
	Objectives() []EO
}

// DayPlanner is a day or weekend training event.
type DayPlanner struct {
	ID   string     `json:"id"`
	Name string     `json:"name"`
	Date civil.Date `json:"date"`
	EOs  []EO       `json:"eos"`
}

func (p DayPlanner) CollectionName() string { return p.Name }
func (p DayPlanner) Objectives() []EO       { return p.EOs }

// ActivityPlanner is an externally-run activity (ADA). It has no date slotting.
type ActivityPlanner struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	EOs  []EO   `json:"eos"`
}

func (p ActivityPlanner) CollectionName() string { return p.Name }
func (p ActivityPlanner) Objectives() []EO       { return p.EOs }

// PlannerKind distinguishes the two auxiliary planner shapes when they share
// storage or transport.
type PlannerKind string

const (
	KindDay      PlannerKind = "day"
	KindActivity PlannerKind = "activity"
)
