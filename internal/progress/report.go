package progress

import (
	"cadetplan/internal/model"
)

// EOStatus describes one mandatory EO whose count differs from its required
// periods.
type EOStatus struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Periods  int    `json:"periods"`
	Count    int    `json:"count"`
	Credited int    `json:"credited"`
}

// PhaseReport extends PhaseProgress with the EOs a planner should look at.
type PhaseReport struct {
	PhaseProgress
	// Overscheduled lists mandatory EOs taught more often than required;
	// the extra periods earn no credit.
	Overscheduled []EOStatus `json:"overscheduled"`
	// Outstanding lists mandatory EOs still short of their periods.
	Outstanding []EOStatus `json:"outstanding"`
}

// Report is the full-curriculum progress view.
type Report struct {
	Phases  []PhaseReport `json:"phases"`
	Overall PhaseProgress `json:"overall"`
}

// BuildReport runs ComputePhaseProgress for every phase in curriculum order
// and adds an overall mandatory rollup across all phases.
func BuildReport(c *model.Curriculum, counts Counts) Report {
	rep := Report{Phases: make([]PhaseReport, 0)}
	rep.Overall.PhaseName = "Overall"
	if c == nil {
		rep.Overall.ProgressPercent = 100
		return rep
	}

	for _, ph := range c.Phases {
		pr := PhaseReport{
			PhaseProgress: ComputePhaseProgress(ph, counts),
			Overscheduled: make([]EOStatus, 0),
			Outstanding:   make([]EOStatus, 0),
		}
		for _, eo := range ph.MandatoryEOs() {
			st := EOStatus{
				ID:       eo.ID,
				Title:    eo.Title,
				Periods:  eo.Periods,
				Count:    counts.Get(eo.ID),
				Credited: credited(eo, counts),
			}
			switch {
			case st.Count > eo.Periods:
				pr.Overscheduled = append(pr.Overscheduled, st)
			case st.Count < eo.Periods:
				pr.Outstanding = append(pr.Outstanding, st)
			}
		}
		rep.Overall.CompletedPeriods += pr.CompletedPeriods
		rep.Overall.TotalPeriods += pr.TotalPeriods
		rep.Phases = append(rep.Phases, pr)
	}

	if rep.Overall.TotalPeriods == 0 {
		rep.Overall.ProgressPercent = 100
	} else {
		rep.Overall.ProgressPercent = percent(rep.Overall.CompletedPeriods, rep.Overall.TotalPeriods)
	}
	return rep
}
