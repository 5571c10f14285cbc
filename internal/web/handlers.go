package web

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"cadetplan/internal/calendar"
	appLog "cadetplan/internal/log"
	"cadetplan/internal/model"
	"cadetplan/internal/planio"
	"cadetplan/internal/schedule"
)

// datesResponse is the JSON response shape for /api/dates.
type datesResponse struct {
	Dates           []string `json:"dates"`
	TrainingWeekday int      `json:"training_weekday"`
	PeriodsPerNight int      `json:"periods_per_night"`
	Phases          []int    `json:"phases"`
	Slots           []string `json:"slots"`
}

// slotDTO is a JSON-friendly view of a scheduled slot.
type slotDTO struct {
	Slot       string   `json:"slot"`
	Date       string   `json:"date"`
	Period     int      `json:"period"`
	Phase      int      `json:"phase"`
	EO         model.EO `json:"eo"`
	EOPhase    int      `json:"eo_phase"`
	Instructor string   `json:"instructor"`
	Classroom  string   `json:"classroom"`
}

type removedResponse struct {
	Removed []model.SlotKey `json:"removed"`
}

type assignRequest struct {
	Slot string `json:"slot"`
	EOID string `json:"eo_id"`
}

type updateRequest struct {
	Slot       model.SlotKey `json:"slot"`
	Instructor *string       `json:"instructor"`
	Classroom  *string       `json:"classroom"`
}

// plannerDTO is a JSON-friendly view of either planner kind.
type plannerDTO struct {
	ID   string     `json:"id"`
	Kind string     `json:"kind"`
	Name string     `json:"name"`
	Date string     `json:"date,omitempty"`
	EOs  []model.EO `json:"eos"`
}

type plannersResponse struct {
	DayPlanners      []plannerDTO `json:"day_planners"`
	ActivityPlanners []plannerDTO `json:"activity_planners"`
}

type plannerRequest struct {
	ID    string   `json:"id"`
	Kind  string   `json:"kind"`
	Name  string   `json:"name"`
	Date  string   `json:"date"`
	EOIDs []string `json:"eo_ids"`
}

func (s *Server) handleDates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	s.mu.Lock()
	resp := datesResponse{
		Dates:           make([]string, 0, len(s.dates)),
		TrainingWeekday: s.state.Window.TrainingWeekday,
		PeriodsPerNight: s.cfg.PeriodsPerNight,
		Phases:          s.phaseNumbers(),
	}
	for _, d := range s.dates {
		resp.Dates = append(resp.Dates, d.String())
	}
	grid := calendar.SlotsFor(s.dates, s.cfg.PeriodsPerNight, resp.Phases)
	resp.Slots = make([]string, 0, len(grid))
	for _, k := range grid {
		resp.Slots = append(resp.Slots, k.String())
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, resp)
}

// handleSchedule serves the slot schedule.
//
//	GET    /api/schedule[?date=YYYY-MM-DD]  list slots, optionally for one night
//	POST   /api/schedule                    {"slot", "eo_id"} assign
//	PATCH  /api/schedule                    {"slot", "instructor"?, "classroom"?} update
//	DELETE /api/schedule?slot=KEY           clear one slot
//	DELETE /api/schedule?eo_id=ID           clear every slot holding an EO
//
// A mutation whose save fails is rolled back, so the schedule only ever
// reflects what was persisted.
func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		var date civil.Date
		if raw := r.URL.Query().Get("date"); raw != "" {
			d, err := civil.ParseDate(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
				return
			}
			date = d
		}
		s.mu.Lock()
		var entries []schedule.Entry
		if date.IsValid() {
			entries = s.state.Schedule.OnDate(date)
		} else {
			entries = s.state.Schedule.Entries()
		}
		out := make([]slotDTO, 0, len(entries))
		for _, e := range entries {
			out = append(out, s.toSlot(e.Key, e.Item))
		}
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, out)

	case http.MethodPost:
		var req assignRequest
		if err := decodeBody(w, r, &req); err != nil {
			writeBodyError(w, err)
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		key, err := s.slotLocked(req.Slot)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		eo, ok := s.state.Curriculum.EO(req.EOID)
		if !ok {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown EO %q", req.EOID))
			return
		}
		prev := s.state.Schedule.Snapshot()
		item, err := s.state.Schedule.Assign(key, eo)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		if err := s.persistScheduleLocked(r, prev); err != nil {
			writeDomainError(w, err)
			return
		}
		appLog.Debug("slot assigned", "slot", key.String(), "eo", eo.ID)
		writeJSON(w, http.StatusCreated, s.toSlot(key, item))

	case http.MethodPatch:
		var req updateRequest
		if err := decodeBody(w, r, &req); err != nil {
			writeBodyError(w, err)
			return
		}
		key := req.Slot
		if err := key.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, "slot is required")
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		prev := s.state.Schedule.Snapshot()
		item, err := s.state.Schedule.Update(key, schedule.Patch{Instructor: req.Instructor, Classroom: req.Classroom})
		if err != nil {
			writeDomainError(w, err)
			return
		}
		if err := s.persistScheduleLocked(r, prev); err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s.toSlot(key, item))

	case http.MethodDelete:
		q := r.URL.Query()
		if eoID := q.Get("eo_id"); eoID != "" {
			s.mu.Lock()
			defer s.mu.Unlock()
			prev := s.state.Schedule.Snapshot()
			removed := s.state.Schedule.RemoveEO(eoID)
			if err := s.persistScheduleLocked(r, prev); err != nil {
				writeDomainError(w, err)
				return
			}
			resp := removedResponse{Removed: removed}
			appLog.Debug("EO cleared from schedule", "eo", eoID, "slots", len(removed))
			writeJSON(w, http.StatusOK, resp)
			return
		}
		key, err := model.ParseSlotKey(q.Get("slot"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		prev := s.state.Schedule.Snapshot()
		s.state.Schedule.Remove(key)
		if err := s.persistScheduleLocked(r, prev); err != nil {
			writeDomainError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		methodNotAllowed(w, "GET, POST, PATCH, DELETE")
	}
}

// slotLocked parses a slot key and checks it lies on the presented grid:
// a generated training night, a configured period and a curriculum phase.
func (s *Server) slotLocked(raw string) (model.SlotKey, error) {
	key, err := model.ParseSlotKey(raw)
	if err != nil {
		return model.SlotKey{}, err
	}
	if !calendar.IsTrainingNight(s.state.Window, key.Date) {
		return model.SlotKey{}, fmt.Errorf("%s is not a training night", key.Date)
	}
	if key.Period > s.cfg.PeriodsPerNight {
		return model.SlotKey{}, fmt.Errorf("period %d exceeds %d periods per night", key.Period, s.cfg.PeriodsPerNight)
	}
	if _, ok := s.state.Curriculum.Phase(key.Phase); !ok {
		return model.SlotKey{}, fmt.Errorf("unknown phase %d", key.Phase)
	}
	return key, nil
}

// persistScheduleLocked saves the current schedule. On failure the schedule
// is restored to prev.
func (s *Server) persistScheduleLocked(r *http.Request, prev map[model.SlotKey]model.ScheduledItem) error {
	if s.store == nil {
		return nil
	}
	if err := s.store.SaveSchedule(r.Context(), s.state.Schedule.Snapshot()); err != nil {
		s.state.Schedule = schedule.FromSnapshot(prev)
		return err
	}
	return nil
}

// handlePlanners serves day and activity planners.
//
//	GET    /api/planners          list
//	POST   /api/planners          create or replace (id optional)
//	DELETE /api/planners?id=ID    delete
func (s *Server) handlePlanners(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.mu.Lock()
		resp := plannersResponse{
			DayPlanners:      make([]plannerDTO, 0, len(s.state.DayPlanners)),
			ActivityPlanners: make([]plannerDTO, 0, len(s.state.ActivityPlanners)),
		}
		for _, d := range s.state.DayPlanners {
			resp.DayPlanners = append(resp.DayPlanners, plannerDTO{ID: d.ID, Kind: string(model.KindDay), Name: d.Name, Date: d.Date.String(), EOs: d.EOs})
		}
		for _, a := range s.state.ActivityPlanners {
			resp.ActivityPlanners = append(resp.ActivityPlanners, plannerDTO{ID: a.ID, Kind: string(model.KindActivity), Name: a.Name, EOs: a.EOs})
		}
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, resp)

	case http.MethodPost:
		var req plannerRequest
		if err := decodeBody(w, r, &req); err != nil {
			writeBodyError(w, err)
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		dto, err := s.savePlannerLocked(r, req)
		if err != nil {
			var bad badRequest
			if errors.As(err, &bad) {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, dto)

	case http.MethodDelete:
		id := r.URL.Query().Get("id")
		if id == "" {
			writeError(w, http.StatusBadRequest, "id is required")
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.store != nil {
			if err := s.store.DeletePlanner(r.Context(), id); err != nil {
				writeDomainError(w, err)
				return
			}
		}
		s.state.DayPlanners = removeDay(s.state.DayPlanners, id)
		s.state.ActivityPlanners = removeActivity(s.state.ActivityPlanners, id)
		w.WriteHeader(http.StatusNoContent)

	default:
		methodNotAllowed(w, "GET, POST, DELETE")
	}
}

type badRequest string

func (b badRequest) Error() string { return string(b) }

func (s *Server) savePlannerLocked(r *http.Request, req plannerRequest) (plannerDTO, error) {
	if strings.TrimSpace(req.Name) == "" {
		return plannerDTO{}, badRequest("name is required")
	}
	eos := make([]model.EO, 0, len(req.EOIDs))
	for _, id := range req.EOIDs {
		eo, ok := s.state.Curriculum.EO(id)
		if !ok {
			return plannerDTO{}, badRequest(fmt.Sprintf("unknown EO %q", id))
		}
		eos = append(eos, eo)
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	// One id, one kind: an id already used by the other kind is rejected.
	switch model.PlannerKind(req.Kind) {
	case model.KindDay:
		if hasActivity(s.state.ActivityPlanners, req.ID) {
			return plannerDTO{}, badRequest(fmt.Sprintf("planner %s is an activity planner", req.ID))
		}
		date, err := civil.ParseDate(req.Date)
		if err != nil {
			return plannerDTO{}, badRequest("date must be YYYY-MM-DD")
		}
		p := model.DayPlanner{ID: req.ID, Name: req.Name, Date: date, EOs: eos}
		if s.store != nil {
			if _, err := s.store.SaveDayPlanner(r.Context(), p); err != nil {
				return plannerDTO{}, err
			}
		}
		s.state.DayPlanners = append(removeDay(s.state.DayPlanners, p.ID), p)
		return plannerDTO{ID: p.ID, Kind: req.Kind, Name: p.Name, Date: p.Date.String(), EOs: p.EOs}, nil
	case model.KindActivity:
		if hasDay(s.state.DayPlanners, req.ID) {
			return plannerDTO{}, badRequest(fmt.Sprintf("planner %s is a day planner", req.ID))
		}
		p := model.ActivityPlanner{ID: req.ID, Name: req.Name, EOs: eos}
		if s.store != nil {
			if _, err := s.store.SaveActivityPlanner(r.Context(), p); err != nil {
				return plannerDTO{}, err
			}
		}
		s.state.ActivityPlanners = append(removeActivity(s.state.ActivityPlanners, p.ID), p)
		return plannerDTO{ID: p.ID, Kind: req.Kind, Name: p.Name, EOs: p.EOs}, nil
	default:
		return plannerDTO{}, badRequest(`kind must be "day" or "activity"`)
	}
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, s.ProgressReport())
}

func (s *Server) handleICS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	s.mu.Lock()
	body := calendar.ExportICS(calendar.ExportOptions{
		Dates:       s.dates,
		Entries:     s.state.Schedule.Snapshot(),
		DayPlanners: s.state.DayPlanners,
		Stamp:       time.Now(),
	})
	s.mu.Unlock()
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

// handlePlan exports (GET) or imports (POST) the whole plan. An import
// replaces every slot and planner, and must use the configured training
// window.
func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.mu.Lock()
		plan := &planio.Plan{
			Window:           s.state.Window,
			Schedule:         s.state.Schedule,
			DayPlanners:      s.state.DayPlanners,
			ActivityPlanners: s.state.ActivityPlanners,
		}
		var buf bytes.Buffer
		err := planio.Encode(&buf, plan)
		s.mu.Unlock()
		if err != nil {
			writeDomainError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(buf.Bytes())

	case http.MethodPost:
		doc, err := planio.Decode(http.MaxBytesReader(w, r.Body, maxPlanBytes))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		plan, err := planio.Resolve(doc, s.state.Curriculum, planio.Options{PeriodsPerNight: s.cfg.PeriodsPerNight})
		if err != nil {
			writeDomainError(w, err)
			return
		}
		if plan.Window != s.state.Window {
			writeError(w, http.StatusBadRequest, "plan window does not match the configured training year")
			return
		}
		if s.store != nil {
			if err := s.store.ReplaceAll(r.Context(), plan.Schedule.Snapshot(), plan.DayPlanners, plan.ActivityPlanners); err != nil {
				writeDomainError(w, err)
				return
			}
		}
		s.state.Schedule = plan.Schedule
		s.state.DayPlanners = plan.DayPlanners
		s.state.ActivityPlanners = plan.ActivityPlanners
		appLog.Info("plan imported",
			"slots", plan.Schedule.Len(),
			"day_planners", len(plan.DayPlanners),
			"activity_planners", len(plan.ActivityPlanners),
		)
		writeJSON(w, http.StatusOK, s.reportLocked())

	default:
		methodNotAllowed(w, "GET, POST")
	}
}

// toSlot renders a slot; EOPhase is the phase that owns the EO in the
// curriculum, which may differ from the slot's phase track.
func (s *Server) toSlot(k model.SlotKey, it model.ScheduledItem) slotDTO {
	eoPhase, _ := s.state.Curriculum.PhaseOf(it.EO.ID)
	return slotDTO{
		Slot:       k.String(),
		Date:       k.Date.String(),
		Period:     k.Period,
		Phase:      k.Phase,
		EO:         it.EO,
		EOPhase:    eoPhase,
		Instructor: it.Instructor,
		Classroom:  it.Classroom,
	}
}

func removeDay(in []model.DayPlanner, id string) []model.DayPlanner {
	out := make([]model.DayPlanner, 0, len(in))
	for _, p := range in {
		if p.ID != id {
			out = append(out, p)
		}
	}
	return out
}

func removeActivity(in []model.ActivityPlanner, id string) []model.ActivityPlanner {
	out := make([]model.ActivityPlanner, 0, len(in))
	for _, p := range in {
		if p.ID != id {
			out = append(out, p)
		}
	}
	return out
}

func hasDay(in []model.DayPlanner, id string) bool {
	for _, p := range in {
		if p.ID == id {
			return true
		}
	}
	return false
}

func hasActivity(in []model.ActivityPlanner, id string) bool {
	for _, p := range in {
		if p.ID == id {
			return true
		}
	}
	return false
}
