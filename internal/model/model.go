package model

// ObjectiveType marks whether an enabling objective counts toward phase completion.
type ObjectiveType string

const (
	Mandatory ObjectiveType = "mandatory"
	Optional  ObjectiveType = "optional"
)

// EO is an enabling objective: the atomic curriculum unit that gets scheduled.
// EOs are immutable once loaded; identity is ID.
type EO struct {
	ID      string        `json:"id" yaml:"id"`
	Title   string        `json:"title" yaml:"title"`
	Type    ObjectiveType `json:"type" yaml:"type"`
	Periods int           `json:"periods" yaml:"periods"`
}

// IsMandatory reports whether the EO counts toward completion.
func (e EO) IsMandatory() bool {
	return e.Type == Mandatory
}

// PerformanceObjective groups EOs under a phase.
type PerformanceObjective struct {
	ID    string `json:"id" yaml:"id"`
	Title string `json:"title" yaml:"title"`
	EOs   []EO   `json:"enabling_objectives" yaml:"enabling_objectives"`
}

// Phase is a top-level curriculum grouping (one cadet training level).
type Phase struct {
	Number int                    `json:"number" yaml:"number"`
	Name   string                 `json:"name" yaml:"name"`
	POs    []PerformanceObjective `json:"performance_objectives" yaml:"performance_objectives"`
}

// MandatoryEOs returns every mandatory EO of the phase in curriculum order.
func (p Phase) MandatoryEOs() []EO {
	out := make([]EO, 0)
	for _, po := range p.POs {
		for _, eo := range po.EOs {
			if eo.IsMandatory() {
				out = append(out, eo)
			}
		}
	}
	return out
}

// Curriculum is the read-only Phase -> PO -> EO tree. Build it with
// NewCurriculum so the EO index is populated.
type Curriculum struct {
	Phases []Phase

	byID    map[string]EO
	phaseOf map[string]int
}

// NewCurriculum indexes the given phases. Callers are expected to have
// validated uniqueness of EO ids (see internal/curriculum); on duplicates the
// last occurrence wins in the index.
func NewCurriculum(phases []Phase) *Curriculum {
	c := &Curriculum{
		Phases:  phases,
		byID:    make(map[string]EO),
		phaseOf: make(map[string]int),
	}
	for _, p := range phases {
		for _, po := range p.POs {
			for _, eo := range po.EOs {
				c.byID[eo.ID] = eo
				c.phaseOf[eo.ID] = p.Number
			}
		}
	}
	return c
}

// EO looks up an enabling objective by id.
func (c *Curriculum) EO(id string) (EO, bool) {
	if c == nil {
		return EO{}, false
	}
	eo, ok := c.byID[id]
	return eo, ok
}

// PhaseOf returns the phase number owning the EO.
func (c *Curriculum) PhaseOf(id string) (int, bool) {
	if c == nil {
		return 0, false
	}
	n, ok := c.phaseOf[id]
	return n, ok
}

// Phase looks up a phase by number.
func (c *Curriculum) Phase(number int) (Phase, bool) {
	if c == nil {
		return Phase{}, false
	}
	for _, p := range c.Phases {
		if p.Number == number {
			return p, true
		}
	}
	return Phase{}, false
}

// ScheduledItem is what a slot holds. Empty Instructor / Classroom mean
// "unassigned".
type ScheduledItem struct {
	EO         EO     `json:"eo"`
	Instructor string `json:"instructor"`
	Classroom  string `json:"classroom"`
}
