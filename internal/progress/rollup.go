// Package progress aggregates how often each EO was taught and rolls that up
// into per-phase completion of the mandatory curriculum.
package progress

import (
	"cadetplan/internal/model"
)

// PhaseProgress is the completion of one phase's mandatory periods.
type PhaseProgress struct {
	PhaseNumber      int     `json:"phase_number"`
	PhaseName        string  `json:"phase_name"`
	CompletedPeriods int     `json:"completed_periods"`
	TotalPeriods     int     `json:"total_periods"`
	ProgressPercent  float64 `json:"progress_percent"`
}

// ComputePhaseProgress credits each mandatory EO with min(count, periods)
// and reports the credited share of the phase's required periods. A phase
// with no mandatory periods is complete by convention.
func ComputePhaseProgress(phase model.Phase, counts Counts) PhaseProgress {
	out := PhaseProgress{
		PhaseNumber: phase.Number,
		PhaseName:   phase.Name,
	}

	mandatory := phase.MandatoryEOs()
	for _, eo := range mandatory {
		out.TotalPeriods += eo.Periods
	}
	if out.TotalPeriods == 0 {
		out.ProgressPercent = 100
		return out
	}

	for _, eo := range mandatory {
		out.CompletedPeriods += credited(eo, counts)
	}
	out.ProgressPercent = percent(out.CompletedPeriods, out.TotalPeriods)
	return out
}

func credited(eo model.EO, counts Counts) int {
	n := counts.Get(eo.ID)
	if n > eo.Periods {
		return eo.Periods
	}
	if n < 0 {
		return 0
	}
	return n
}

func percent(done, total int) float64 {
	p := 100 * float64(done) / float64(total)
	if p > 100 {
		return 100
	}
	return p
}
