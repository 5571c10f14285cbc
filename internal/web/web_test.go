package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cadetplan/internal/config"
	"cadetplan/internal/model"
	"cadetplan/internal/progress"
	"cadetplan/internal/storage"
)

type fakeStore struct {
	saves    int
	snap     map[model.SlotKey]model.ScheduledItem
	days     map[string]model.DayPlanner
	acts     map[string]model.ActivityPlanner
	replaced bool
	failWith error
}

func newFakeStore() *fakeStore {
	return &fakeStore{days: map[string]model.DayPlanner{}, acts: map[string]model.ActivityPlanner{}}
}

func (f *fakeStore) SaveSchedule(_ context.Context, snap map[model.SlotKey]model.ScheduledItem) error {
	if f.failWith != nil {
		return f.failWith
	}
	f.saves++
	f.snap = snap
	return nil
}

func (f *fakeStore) SaveDayPlanner(_ context.Context, p model.DayPlanner) (string, error) {
	f.days[p.ID] = p
	return p.ID, nil
}

func (f *fakeStore) SaveActivityPlanner(_ context.Context, p model.ActivityPlanner) (string, error) {
	f.acts[p.ID] = p
	return p.ID, nil
}

func (f *fakeStore) DeletePlanner(_ context.Context, id string) error {
	delete(f.days, id)
	delete(f.acts, id)
	return nil
}

func (f *fakeStore) ReplaceAll(_ context.Context, snap map[model.SlotKey]model.ScheduledItem, days []model.DayPlanner, acts []model.ActivityPlanner) error {
	f.replaced = true
	f.snap = snap
	return nil
}

func testCurriculum() *model.Curriculum {
	return model.NewCurriculum([]model.Phase{
		{Number: 1, Name: "Phase One", POs: []model.PerformanceObjective{{ID: "PO-1", EOs: []model.EO{
			{ID: "A-001", Title: "Drill", Type: model.Mandatory, Periods: 2},
			{ID: "A-002", Title: "Band", Type: model.Optional, Periods: 1},
		}}}},
		{Number: 2, Name: "Phase Two", POs: []model.PerformanceObjective{{ID: "PO-2", EOs: []model.EO{
			{ID: "B-001", Title: "Leadership", Type: model.Mandatory, Periods: 2},
		}}}},
		{Number: 3, Name: "Phase Three", POs: []model.PerformanceObjective{{ID: "PO-3", EOs: []model.EO{
			{ID: "C-001", Title: "Navigation", Type: model.Mandatory, Periods: 1},
		}}}},
	})
}

func testWindow() model.TrainingYearWindow {
	return model.TrainingYearWindow{
		Start:              civil.Date{Year: 2024, Month: time.September, Day: 1},
		End:                civil.Date{Year: 2025, Month: time.June, Day: 30},
		TrainingWeekday:    int(time.Wednesday),
		FirstTrainingNight: civil.Date{Year: 2024, Month: time.September, Day: 11},
	}
}

func newTestServer(t *testing.T, store Persister) *Server {
	t.Helper()
	cfg := config.DefaultConfig()
	s, err := NewServer(cfg, State{Curriculum: testCurriculum(), Window: testWindow()}, store)
	require.NoError(t, err)
	return s
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestNewServerRejectsBadWindow(t *testing.T) {
	w := testWindow()
	w.FirstTrainingNight = civil.Date{Year: 2024, Month: time.September, Day: 12}
	_, err := NewServer(config.DefaultConfig(), State{Curriculum: testCurriculum(), Window: w}, nil)
	assert.Error(t, err)
}

func TestHealthAndDates(t *testing.T) {
	h := newTestServer(t, nil).Handler()

	rec := do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/dates", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp datesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "2024-09-11", resp.Dates[0])
	assert.Equal(t, "2024-09-18", resp.Dates[1])
	assert.Equal(t, 3, resp.PeriodsPerNight)
	assert.Equal(t, []int{1, 2, 3}, resp.Phases)
	require.Len(t, resp.Slots, len(resp.Dates)*3*3)
	assert.Equal(t, []string{"2024-09-11-1-1", "2024-09-11-1-2", "2024-09-11-1-3", "2024-09-11-2-1"}, resp.Slots[:4])
	assert.Equal(t, "2025-06-25-3-3", resp.Slots[len(resp.Slots)-1])

	rec = do(t, h, http.MethodPost, "/api/dates", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestScheduleFlow(t *testing.T) {
	store := newFakeStore()
	h := newTestServer(t, store).Handler()

	rec := do(t, h, http.MethodPost, "/api/schedule", `{"slot":"2024-09-11-1-2","eo_id":"B-001"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, 1, store.saves)

	rec = do(t, h, http.MethodPost, "/api/schedule", `{"slot":"2024-09-11-1-3","eo_id":"C-001"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/schedule", `{"slot":"2024-09-11-1-2","eo_id":"A-001"}`)
	assert.Equal(t, http.StatusConflict, rec.Code, "occupied")

	rec = do(t, h, http.MethodPatch, "/api/schedule", `{"slot":"2024-09-11-1-2","instructor":"Smith"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var slot slotDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &slot))
	assert.Equal(t, "Smith", slot.Instructor)

	rec = do(t, h, http.MethodPatch, "/api/schedule", `{"slot":"2024-09-11-1-3","instructor":"Smith"}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	var conflict conflictResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &conflict))
	assert.Equal(t, "instructor", conflict.Resource)
	assert.Equal(t, "Smith", conflict.Value)
	assert.Equal(t, "2024-09-11-1-2", conflict.OccupiedBy)

	rec = do(t, h, http.MethodPatch, "/api/schedule", `{"slot":"2024-09-18-1-3","instructor":"Smith"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	for _, body := range []string{
		`{"slot":"2024-09-11-+1-2","instructor":"Smith"}`,
		`{"slot":"2024-09-11-1","instructor":"Smith"}`,
		`{"instructor":"Smith"}`,
	} {
		rec = do(t, h, http.MethodPatch, "/api/schedule", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}

	rec = do(t, h, http.MethodGet, "/api/schedule", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []slotDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 2)
	assert.Equal(t, "2024-09-11-1-2", list[0].Slot)
	assert.Equal(t, "", list[1].Instructor)

	rec = do(t, h, http.MethodDelete, "/api/schedule?slot=2024-09-11-1-3", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, h, http.MethodDelete, "/api/schedule?slot=2024-09-11-1-3", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Len(t, store.snap, 1)
}

func TestScheduleRejectsOffGridSlots(t *testing.T) {
	h := newTestServer(t, nil).Handler()
	tests := []struct {
		name string
		body string
	}{
		{name: "not a training night", body: `{"slot":"2024-09-12-1-1","eo_id":"A-001"}`},
		{name: "period beyond night", body: `{"slot":"2024-09-11-4-1","eo_id":"A-001"}`},
		{name: "unknown phase", body: `{"slot":"2024-09-11-1-9","eo_id":"A-001"}`},
		{name: "unknown EO", body: `{"slot":"2024-09-11-1-1","eo_id":"Z-001"}`},
		{name: "malformed key", body: `{"slot":"tomorrow","eo_id":"A-001"}`},
		{name: "unknown field", body: `{"slot":"2024-09-11-1-1","eo_id":"A-001","force":true}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/api/schedule", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}

func TestStorageFailureLeavesScheduleUnchanged(t *testing.T) {
	store := newFakeStore()
	h := newTestServer(t, store).Handler()

	rec := do(t, h, http.MethodPost, "/api/schedule", `{"slot":"2024-09-11-1-1","eo_id":"A-001"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = do(t, h, http.MethodPatch, "/api/schedule", `{"slot":"2024-09-11-1-1","instructor":"Smith"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	store.failWith = &storage.Error{Op: "save schedule", Err: errors.New("disk full")}

	tests := []struct {
		name   string
		method string
		target string
		body   string
	}{
		{name: "assign", method: http.MethodPost, target: "/api/schedule", body: `{"slot":"2024-09-11-2-1","eo_id":"A-002"}`},
		{name: "update", method: http.MethodPatch, target: "/api/schedule", body: `{"slot":"2024-09-11-1-1","instructor":"Jones"}`},
		{name: "remove", method: http.MethodDelete, target: "/api/schedule?slot=2024-09-11-1-1"},
		{name: "remove EO", method: http.MethodDelete, target: "/api/schedule?eo_id=A-001"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, tt.method, tt.target, tt.body)
			assert.Equal(t, http.StatusInternalServerError, rec.Code)

			rec = do(t, h, http.MethodGet, "/api/schedule", "")
			require.Equal(t, http.StatusOK, rec.Code)
			var list []slotDTO
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
			require.Len(t, list, 1)
			assert.Equal(t, "2024-09-11-1-1", list[0].Slot)
			assert.Equal(t, "Smith", list[0].Instructor)
		})
	}

	rec = do(t, h, http.MethodGet, "/api/progress", "")
	var report progress.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, 1, report.Phases[0].CompletedPeriods)

	// Once storage recovers, the rejected assignment can be retried.
	store.failWith = nil
	rec = do(t, h, http.MethodPost, "/api/schedule", `{"slot":"2024-09-11-2-1","eo_id":"A-002"}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Len(t, store.snap, 2)
}

func TestScheduleByDateAndClearEO(t *testing.T) {
	store := newFakeStore()
	h := newTestServer(t, store).Handler()
	for _, body := range []string{
		`{"slot":"2024-09-11-1-1","eo_id":"A-001"}`,
		`{"slot":"2024-09-11-2-2","eo_id":"B-001"}`,
		`{"slot":"2024-09-18-1-1","eo_id":"A-001"}`,
	} {
		rec := do(t, h, http.MethodPost, "/api/schedule", body)
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := do(t, h, http.MethodGet, "/api/schedule?date=2024-09-11", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var night []slotDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &night))
	require.Len(t, night, 2)
	assert.Equal(t, "2024-09-11-1-1", night[0].Slot)
	assert.Equal(t, 1, night[0].EOPhase)
	assert.Equal(t, 2, night[1].EOPhase)

	rec = do(t, h, http.MethodGet, "/api/schedule?date=11-09-2024", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodDelete, "/api/schedule?eo_id=A-001", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var removed removedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &removed))
	require.Len(t, removed.Removed, 2)
	assert.Equal(t, "2024-09-11-1-1", removed.Removed[0].String())
	assert.Equal(t, "2024-09-18-1-1", removed.Removed[1].String())
	assert.Contains(t, rec.Body.String(), `"removed":["2024-09-11-1-1","2024-09-18-1-1"]`)
	assert.Len(t, store.snap, 1)
}

func TestRequestBodyLimits(t *testing.T) {
	h := newTestServer(t, nil).Handler()

	rec := do(t, h, http.MethodPost, "/api/schedule", `{"slot":"2024-09-11-1-1","eo_id":"A-001"} {}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "second value")
	rec = do(t, h, http.MethodPost, "/api/schedule", `{"slot":"2024-09-11-1-1","eo_id":"A-001"}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "stray closer")

	huge := `{"slot":"2024-09-11-1-1","eo_id":"` + strings.Repeat("x", maxBodyBytes) + `"}`
	rec = do(t, h, http.MethodPost, "/api/schedule", huge)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/planners", `{"kind":"activity","name":"Band"}]`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPlannersAndProgress(t *testing.T) {
	store := newFakeStore()
	s := newTestServer(t, store)
	h := s.Handler()

	for _, slot := range []string{"2024-09-11-1-1", "2024-09-18-1-1"} {
		rec := do(t, h, http.MethodPost, "/api/schedule", `{"slot":"`+slot+`","eo_id":"A-001"}`)
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := do(t, h, http.MethodPost, "/api/planners", `{"kind":"day","name":"Fall FTX","date":"2024-10-05","eo_ids":["A-001","B-001"]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var day plannerDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &day))
	assert.NotEmpty(t, day.ID)
	assert.Contains(t, store.days, day.ID)

	rec = do(t, h, http.MethodPost, "/api/planners", `{"id":"ada","kind":"activity","name":"Marksmanship","eo_ids":["A-001","C-001"]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/planners", `{"kind":"activity","name":"Bad","eo_ids":["nope"]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, h, http.MethodPost, "/api/planners", `{"kind":"weekend","name":"Bad"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, h, http.MethodPost, "/api/planners", `{"id":"ada","kind":"day","name":"Clash","date":"2024-10-05"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/progress", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var rep progress.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rep))
	require.Len(t, rep.Phases, 3)
	// A-001 counted 4 times (2 slots, FTX, ADA) but credited 2 of 2.
	assert.Equal(t, 2, rep.Phases[0].CompletedPeriods)
	assert.Equal(t, 100.0, rep.Phases[0].ProgressPercent)
	require.Len(t, rep.Phases[0].Overscheduled, 1)
	assert.Equal(t, 4, rep.Phases[0].Overscheduled[0].Count)
	assert.Equal(t, 50.0, rep.Phases[1].ProgressPercent)
	assert.Equal(t, 100.0, rep.Phases[2].ProgressPercent)

	rec = do(t, h, http.MethodDelete, "/api/planners?id="+day.ID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.NotContains(t, store.days, day.ID)

	after := s.ProgressReport()
	assert.Equal(t, 0.0, after.Phases[1].ProgressPercent)
}

func TestCalendarExport(t *testing.T) {
	h := newTestServer(t, nil).Handler()
	rec := do(t, h, http.MethodPost, "/api/schedule", `{"slot":"2024-09-11-2-1","eo_id":"A-001"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/calendar.ics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/calendar")
	body := rec.Body.String()
	assert.Contains(t, body, "BEGIN:VCALENDAR")
	assert.Contains(t, body, "night-2024-09-11@cadetplan")
	assert.Equal(t, 42, strings.Count(body, "BEGIN:VEVENT"))
}

func TestPlanExportImport(t *testing.T) {
	store := newFakeStore()
	h := newTestServer(t, store).Handler()

	rec := do(t, h, http.MethodPost, "/api/schedule", `{"slot":"2024-09-11-1-1","eo_id":"A-001"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = do(t, h, http.MethodPatch, "/api/schedule", `{"slot":"2024-09-11-1-1","classroom":"Gym"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/plan", "")
	require.Equal(t, http.StatusOK, rec.Code)
	exported := rec.Body.String()
	assert.Contains(t, exported, `"classroom": "Gym"`)

	// Importing into a fresh server restores the same schedule.
	other := newFakeStore()
	h2 := newTestServer(t, other).Handler()
	rec = do(t, h2, http.MethodPost, "/api/plan", exported)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, other.replaced)
	rec = do(t, h2, http.MethodGet, "/api/plan", "")
	assert.Equal(t, exported, rec.Body.String())

	// A plan for another year is rejected.
	shifted := strings.Replace(exported, `"end": "2025-06-30"`, `"end": "2025-06-29"`, 1)
	rec = do(t, h2, http.MethodPost, "/api/plan", shifted)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h2, http.MethodPost, "/api/plan", `{"version":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h2, http.MethodPost, "/api/plan", exported+"}")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBasicAuth(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BasicAuth = &config.BasicAuthConfig{Username: "co", Password: "secret"}
	s, err := NewServer(cfg, State{Curriculum: testCurriculum(), Window: testWindow()}, nil)
	require.NoError(t, err)
	h := s.Handler()

	rec := do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/progress", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/progress", nil)
	req.SetBasicAuth("co", "secret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
