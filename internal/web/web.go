package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sort"
	"sync"

	"cloud.google.com/go/civil"

	"cadetplan/internal/calendar"
	"cadetplan/internal/config"
	appLog "cadetplan/internal/log"
	"cadetplan/internal/model"
	"cadetplan/internal/planio"
	"cadetplan/internal/progress"
	"cadetplan/internal/schedule"
	"cadetplan/internal/storage"
	"cadetplan/internal/validate"
)

// Persister stores state after each successful mutation. *storage.Store
// implements it.
type Persister interface {
	SaveSchedule(ctx context.Context, snap map[model.SlotKey]model.ScheduledItem) error
	SaveDayPlanner(ctx context.Context, p model.DayPlanner) (string, error)
	SaveActivityPlanner(ctx context.Context, p model.ActivityPlanner) (string, error)
	DeletePlanner(ctx context.Context, id string) error
	ReplaceAll(ctx context.Context, snap map[model.SlotKey]model.ScheduledItem, days []model.DayPlanner, acts []model.ActivityPlanner) error
}

// State is the planning state the server owns for its lifetime.
type State struct {
	Curriculum       *model.Curriculum
	Window           model.TrainingYearWindow
	Schedule         *schedule.Schedule
	DayPlanners      []model.DayPlanner
	ActivityPlanners []model.ActivityPlanner
}

// Server provides the HTTP API over one planning state. All reads and
// writes of the state go through mu; the schedule itself does no locking.
type Server struct {
	cfg   *config.Config
	mux   *http.ServeMux
	store Persister

	mu    sync.Mutex
	state State
	dates []civil.Date
}

// NewServer constructs a new Server. The training window is validated here
// so a misconfigured year fails at startup.
func NewServer(cfg *config.Config, st State, store Persister) (*Server, error) {
	dates, err := calendar.GenerateTrainingDates(st.Window)
	if err != nil {
		return nil, err
	}
	if st.Schedule == nil {
		st.Schedule = schedule.New()
	}
	s := &Server{
		cfg:   cfg,
		mux:   http.NewServeMux(),
		store: store,
		state: st,
		dates: dates,
	}
	s.registerRoutes()
	return s, nil
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty username or password disables auth.
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return false
	}
	return true
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="cadetplan", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/dates", s.handleDates)
	s.mux.HandleFunc("/api/schedule", s.handleSchedule)
	s.mux.HandleFunc("/api/planners", s.handlePlanners)
	s.mux.HandleFunc("/api/progress", s.handleProgress)
	s.mux.HandleFunc("/api/calendar.ics", s.handleICS)
	s.mux.HandleFunc("/api/plan", s.handlePlan)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// ProgressReport computes the current completion report. It is safe to call
// from other goroutines (e.g. the cron report job).
func (s *Server) ProgressReport() progress.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reportLocked()
}

func (s *Server) reportLocked() progress.Report {
	counts := progress.CountOccurrences(
		s.state.Schedule.Snapshot(),
		progress.Collections(s.state.DayPlanners, s.state.ActivityPlanners)...,
	)
	return progress.BuildReport(s.state.Curriculum, counts)
}

func (s *Server) phaseNumbers() []int {
	out := make([]int, 0)
	if s.state.Curriculum == nil {
		return out
	}
	for _, p := range s.state.Curriculum.Phases {
		out = append(out, p.Number)
	}
	sort.Ints(out)
	return out
}

// writeDomainError maps planning and storage errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	var conflict *schedule.ResourceConflictError
	var verr *validate.ValidationError
	var serr *storage.Error
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, conflictResponse{
			Error:      err.Error(),
			Resource:   conflict.Resource,
			Value:      conflict.Value,
			OccupiedBy: conflict.OccupiedBy.String(),
		})
	case errors.Is(err, schedule.ErrSlotOccupied):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, schedule.ErrSlotNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, validationResponse{Error: verr.Err.Error(), Fields: verr.Fields})
	case errors.Is(err, calendar.ErrInvalidWindow), errors.Is(err, planio.ErrInvalidPlan):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &serr):
		appLog.Error("storage failure", err)
		writeError(w, http.StatusInternalServerError, "failed to persist changes")
	default:
		appLog.Error("unexpected api error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

type conflictResponse struct {
	Error      string `json:"error"`
	Resource   string `json:"resource"`
	Value      string `json:"value"`
	OccupiedBy string `json:"occupied_by"`
}

type validationResponse struct {
	Error  string                `json:"error"`
	Fields []validate.FieldError `json:"fields"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}

func methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

// Request body limits.
const (
	maxBodyBytes = 1 << 20
	maxPlanBytes = 8 << 20
)

// decodeBody decodes exactly one JSON value from a size-limited body.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("unexpected data after JSON body")
	}
	return nil
}

// writeBodyError reports a request body that could not be decoded.
func writeBodyError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
}
