package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCurriculumLookup(t *testing.T) {
	c := NewCurriculum([]Phase{
		{Number: 1, Name: "Green Star", POs: []PerformanceObjective{{
			ID: "PO-101",
			EOs: []EO{
				{ID: "M101.01", Type: Mandatory, Periods: 1},
				{ID: "C101.01", Type: Optional, Periods: 2},
			},
		}}},
		{Number: 2, Name: "Red Star", POs: []PerformanceObjective{{
			ID:  "PO-201",
			EOs: []EO{{ID: "M201.01", Type: Mandatory, Periods: 3}},
		}}},
	})

	eo, ok := c.EO("M201.01")
	assert.True(t, ok)
	assert.Equal(t, 3, eo.Periods)

	ph, ok := c.PhaseOf("C101.01")
	assert.True(t, ok)
	assert.Equal(t, 1, ph)

	_, ok = c.EO("missing")
	assert.False(t, ok)

	p, ok := c.Phase(2)
	assert.True(t, ok)
	assert.Equal(t, "Red Star", p.Name)

	mand := c.Phases[0].MandatoryEOs()
	assert.Len(t, mand, 1)
	assert.Equal(t, "M101.01", mand[0].ID)

	var nilCur *Curriculum
	_, ok = nilCur.EO("M101.01")
	assert.False(t, ok)
}

func TestPlannersAreCollections(t *testing.T) {
	eos := []EO{{ID: "A"}, {ID: "A"}}
	var cols []EOCollection = []EOCollection{
		DayPlanner{Name: "Fall FTX", EOs: eos},
		ActivityPlanner{Name: "Band ADA", EOs: eos[:1]},
	}
	assert.Equal(t, "Fall FTX", cols[0].CollectionName())
	assert.Len(t, cols[0].Objectives(), 2)
	assert.Len(t, cols[1].Objectives(), 1)
}
