package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cadetplan/internal/model"
)

func testPhase() model.Phase {
	return model.Phase{
		Number: 1,
		Name:   "Phase One",
		POs: []model.PerformanceObjective{
			{ID: "PO-1", EOs: []model.EO{eoA, eoC}},
			{ID: "PO-2", EOs: []model.EO{eoB}},
		},
	}
}

func TestComputePhaseProgress(t *testing.T) {
	tests := []struct {
		name      string
		counts    Counts
		completed int
		percent   float64
	}{
		{name: "nothing scheduled", counts: Counts{}, completed: 0, percent: 0},
		{name: "partial", counts: Counts{"A-001": 1, "B-001": 1}, completed: 2, percent: 40},
		{name: "optional ignored", counts: Counts{"C-001": 10}, completed: 0, percent: 0},
		{name: "capped", counts: Counts{"A-001": 5}, completed: 2, percent: 40},
		{name: "complete", counts: Counts{"A-001": 2, "B-001": 3}, completed: 5, percent: 100},
		{name: "overscheduled everywhere", counts: Counts{"A-001": 9, "B-001": 9}, completed: 5, percent: 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputePhaseProgress(testPhase(), tt.counts)
			assert.Equal(t, "Phase One", got.PhaseName)
			assert.Equal(t, 5, got.TotalPeriods)
			assert.Equal(t, tt.completed, got.CompletedPeriods)
			assert.InDelta(t, tt.percent, got.ProgressPercent, 1e-9)
		})
	}
}

func TestComputePhaseProgressNoMandatory(t *testing.T) {
	ph := model.Phase{Number: 4, Name: "Electives", POs: []model.PerformanceObjective{{ID: "PO", EOs: []model.EO{eoC}}}}
	got := ComputePhaseProgress(ph, Counts{"C-001": 1})
	assert.Equal(t, 0, got.CompletedPeriods)
	assert.Equal(t, 0, got.TotalPeriods)
	assert.Equal(t, 100.0, got.ProgressPercent)

	empty := ComputePhaseProgress(model.Phase{Name: "Empty"}, nil)
	assert.Equal(t, 100.0, empty.ProgressPercent)
}

func TestComputePhaseProgressMonotonic(t *testing.T) {
	ph := testPhase()
	prev := -1.0
	for n := 0; n <= eoB.Periods+3; n++ {
		got := ComputePhaseProgress(ph, Counts{"A-001": 1, "B-001": n})
		assert.GreaterOrEqual(t, got.ProgressPercent, prev, "count %d", n)
		if n > eoB.Periods {
			assert.Equal(t, prev, got.ProgressPercent, "no credit past the cap at count %d", n)
		}
		prev = got.ProgressPercent
	}
}

func TestBuildReport(t *testing.T) {
	c := model.NewCurriculum([]model.Phase{
		testPhase(),
		{Number: 2, Name: "Phase Two", POs: []model.PerformanceObjective{{ID: "PO-3", EOs: []model.EO{
			{ID: "D-001", Type: model.Mandatory, Periods: 5},
		}}}},
		{Number: 3, Name: "Electives", POs: []model.PerformanceObjective{{ID: "PO-4", EOs: []model.EO{eoC}}}},
	})
	rep := BuildReport(c, Counts{"A-001": 5, "B-001": 1, "D-001": 5})

	require.Len(t, rep.Phases, 3)
	p1 := rep.Phases[0]
	assert.Equal(t, 3, p1.CompletedPeriods)
	assert.InDelta(t, 60, p1.ProgressPercent, 1e-9)
	require.Len(t, p1.Overscheduled, 1)
	assert.Equal(t, EOStatus{ID: "A-001", Periods: 2, Count: 5, Credited: 2}, p1.Overscheduled[0])
	require.Len(t, p1.Outstanding, 1)
	assert.Equal(t, "B-001", p1.Outstanding[0].ID)

	p2 := rep.Phases[1]
	assert.Equal(t, 100.0, p2.ProgressPercent)
	assert.Empty(t, p2.Overscheduled)
	assert.Empty(t, p2.Outstanding)

	assert.Equal(t, 100.0, rep.Phases[2].ProgressPercent)

	assert.Equal(t, 8, rep.Overall.CompletedPeriods)
	assert.Equal(t, 10, rep.Overall.TotalPeriods)
	assert.InDelta(t, 80, rep.Overall.ProgressPercent, 1e-9)
}

func TestBuildReportNilCurriculum(t *testing.T) {
	rep := BuildReport(nil, Counts{"A-001": 1})
	assert.Empty(t, rep.Phases)
	assert.Equal(t, 100.0, rep.Overall.ProgressPercent)
}
