// Package planio imports and exports whole training plans as JSON. Imports
// are validated against an explicit schema and fail closed: any mismatch
// rejects the entire document.
package planio

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"

	"cloud.google.com/go/civil"

	"cadetplan/internal/calendar"
	"cadetplan/internal/model"
	"cadetplan/internal/schedule"
	"cadetplan/internal/validate"
)

// Version is the only document version this package reads and writes.
const Version = 1

// ErrInvalidPlan is wrapped by every import rejection.
var ErrInvalidPlan = errors.New("planio: invalid plan")

// Document is the wire form of a plan.
type Document struct {
	Version          int                  `json:"version" validate:"eq=1"`
	Window           WindowDoc            `json:"window"`
	Schedule         []SlotDoc            `json:"schedule" validate:"dive"`
	DayPlanners      []DayPlannerDoc      `json:"day_planners" validate:"dive"`
	ActivityPlanners []ActivityPlannerDoc `json:"activity_planners" validate:"dive"`
}

type WindowDoc struct {
	Start              string `json:"start" validate:"required,datetime=2006-01-02"`
	End                string `json:"end" validate:"required,datetime=2006-01-02"`
	TrainingWeekday    int    `json:"training_weekday" validate:"gte=0,lte=6"`
	FirstTrainingNight string `json:"first_training_night" validate:"required,datetime=2006-01-02"`
}

type SlotDoc struct {
	Date       string `json:"date" validate:"required,datetime=2006-01-02"`
	Period     int    `json:"period" validate:"gt=0"`
	Phase      int    `json:"phase" validate:"gt=0"`
	EOID       string `json:"eo_id" validate:"required"`
	Instructor string `json:"instructor"`
	Classroom  string `json:"classroom"`
}

type DayPlannerDoc struct {
	ID    string   `json:"id" validate:"required"`
	Name  string   `json:"name" validate:"required"`
	Date  string   `json:"date" validate:"required,datetime=2006-01-02"`
	EOIDs []string `json:"eo_ids" validate:"dive,required"`
}

type ActivityPlannerDoc struct {
	ID    string   `json:"id" validate:"required"`
	Name  string   `json:"name" validate:"required"`
	EOIDs []string `json:"eo_ids" validate:"dive,required"`
}

// Plan is the in-memory form of an imported document.
type Plan struct {
	Window           model.TrainingYearWindow
	Schedule         *schedule.Schedule
	DayPlanners      []model.DayPlanner
	ActivityPlanners []model.ActivityPlanner
}

// Options bound the slot grid an import may use.
type Options struct {
	// PeriodsPerNight caps slot periods; zero disables the check.
	PeriodsPerNight int
}

// Decode reads a document, rejecting unknown fields and trailing data.
func Decode(r io.Reader) (Document, error) {
	var doc Document
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return Document{}, fmt.Errorf("%w: %w", ErrInvalidPlan, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Document{}, fmt.Errorf("%w: trailing data after document", ErrInvalidPlan)
	}
	return doc, nil
}

// Import decodes and resolves a document against the curriculum.
func Import(r io.Reader, c *model.Curriculum, opts Options) (*Plan, error) {
	doc, err := Decode(r)
	if err != nil {
		return nil, err
	}
	return Resolve(doc, c, opts)
}

// Resolve validates a decoded document and builds the plan. Every slot is
// replayed through Schedule.Assign and Schedule.Update so an imported plan
// obeys the same occupancy and double-booking rules as interactive edits.
func Resolve(doc Document, c *model.Curriculum, opts Options) (*Plan, error) {
	if err := validate.Struct(validate.New(), ErrInvalidPlan, doc); err != nil {
		return nil, err
	}

	var fields []validate.FieldError
	reject := func(field, format string, args ...any) {
		fields = append(fields, validate.FieldError{Field: field, Error: fmt.Sprintf(format, args...)})
	}

	window := model.TrainingYearWindow{
		Start:              mustDate(doc.Window.Start),
		End:                mustDate(doc.Window.End),
		TrainingWeekday:    doc.Window.TrainingWeekday,
		FirstTrainingNight: mustDate(doc.Window.FirstTrainingNight),
	}
	if err := calendar.ValidateWindow(window); err != nil {
		var werr *calendar.InvalidWindowError
		if errors.As(err, &werr) {
			reject("window."+werr.Field, "%s", werr.Reason)
		} else {
			reject("window", "%v", err)
		}
		return nil, &validate.ValidationError{Err: ErrInvalidPlan, Fields: fields}
	}

	sched := schedule.New()
	for i, s := range doc.Schedule {
		field := fmt.Sprintf("schedule[%d]", i)
		key := model.NewSlotKey(mustDate(s.Date), s.Period, s.Phase)
		eo, ok := c.EO(s.EOID)
		if !ok {
			reject(field+".eo_id", "unknown EO %q", s.EOID)
			continue
		}
		if _, ok := c.Phase(s.Phase); !ok {
			reject(field+".phase", "unknown phase %d", s.Phase)
			continue
		}
		if opts.PeriodsPerNight > 0 && s.Period > opts.PeriodsPerNight {
			reject(field+".period", "must be at most %d", opts.PeriodsPerNight)
			continue
		}
		if !calendar.IsTrainingNight(window, key.Date) {
			reject(field+".date", "%s is not a training night", key.Date)
			continue
		}
		if _, err := sched.Assign(key, eo); err != nil {
			reject(field, "%v", err)
			continue
		}
		instructor, classroom := s.Instructor, s.Classroom
		if _, err := sched.Update(key, schedule.Patch{Instructor: &instructor, Classroom: &classroom}); err != nil {
			reject(field, "%v", err)
		}
	}

	seen := make(map[string]bool)
	days := make([]model.DayPlanner, 0, len(doc.DayPlanners))
	for i, p := range doc.DayPlanners {
		field := fmt.Sprintf("day_planners[%d]", i)
		if seen[p.ID] {
			reject(field+".id", "duplicate planner id %q", p.ID)
			continue
		}
		seen[p.ID] = true
		eos, bad := resolveEOs(c, p.EOIDs)
		for _, j := range bad {
			reject(fmt.Sprintf("%s.eo_ids[%d]", field, j), "unknown EO %q", p.EOIDs[j])
		}
		days = append(days, model.DayPlanner{ID: p.ID, Name: p.Name, Date: mustDate(p.Date), EOs: eos})
	}

	activities := make([]model.ActivityPlanner, 0, len(doc.ActivityPlanners))
	for i, p := range doc.ActivityPlanners {
		field := fmt.Sprintf("activity_planners[%d]", i)
		if seen[p.ID] {
			reject(field+".id", "duplicate planner id %q", p.ID)
			continue
		}
		seen[p.ID] = true
		eos, bad := resolveEOs(c, p.EOIDs)
		for _, j := range bad {
			reject(fmt.Sprintf("%s.eo_ids[%d]", field, j), "unknown EO %q", p.EOIDs[j])
		}
		activities = append(activities, model.ActivityPlanner{ID: p.ID, Name: p.Name, EOs: eos})
	}

	if len(fields) > 0 {
		return nil, &validate.ValidationError{Err: ErrInvalidPlan, Fields: fields}
	}
	return &Plan{
		Window:           window,
		Schedule:         sched,
		DayPlanners:      days,
		ActivityPlanners: activities,
	}, nil
}

// Export converts a plan to its wire form. Slots come out in key order and
// planners sorted by id so repeated exports are byte-identical.
func Export(p *Plan) Document {
	doc := Document{
		Version: Version,
		Window: WindowDoc{
			Start:              p.Window.Start.String(),
			End:                p.Window.End.String(),
			TrainingWeekday:    p.Window.TrainingWeekday,
			FirstTrainingNight: p.Window.FirstTrainingNight.String(),
		},
		Schedule:         make([]SlotDoc, 0),
		DayPlanners:      make([]DayPlannerDoc, 0, len(p.DayPlanners)),
		ActivityPlanners: make([]ActivityPlannerDoc, 0, len(p.ActivityPlanners)),
	}
	if p.Schedule != nil {
		for _, e := range p.Schedule.Entries() {
			doc.Schedule = append(doc.Schedule, SlotDoc{
				Date:       e.Key.Date.String(),
				Period:     e.Key.Period,
				Phase:      e.Key.Phase,
				EOID:       e.Item.EO.ID,
				Instructor: e.Item.Instructor,
				Classroom:  e.Item.Classroom,
			})
		}
	}
	for _, d := range p.DayPlanners {
		doc.DayPlanners = append(doc.DayPlanners, DayPlannerDoc{ID: d.ID, Name: d.Name, Date: d.Date.String(), EOIDs: eoIDs(d.EOs)})
	}
	for _, a := range p.ActivityPlanners {
		doc.ActivityPlanners = append(doc.ActivityPlanners, ActivityPlannerDoc{ID: a.ID, Name: a.Name, EOIDs: eoIDs(a.EOs)})
	}
	sort.Slice(doc.DayPlanners, func(i, j int) bool { return doc.DayPlanners[i].ID < doc.DayPlanners[j].ID })
	sort.Slice(doc.ActivityPlanners, func(i, j int) bool { return doc.ActivityPlanners[i].ID < doc.ActivityPlanners[j].ID })
	return doc
}

// Encode writes the exported plan as indented JSON.
func Encode(w io.Writer, p *Plan) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(Export(p)); err != nil {
		return fmt.Errorf("planio: encode: %w", err)
	}
	return nil
}

func resolveEOs(c *model.Curriculum, ids []string) ([]model.EO, []int) {
	eos := make([]model.EO, 0, len(ids))
	var bad []int
	for i, id := range ids {
		eo, ok := c.EO(id)
		if !ok {
			bad = append(bad, i)
			continue
		}
		eos = append(eos, eo)
	}
	return eos, bad
}

func eoIDs(eos []model.EO) []string {
	out := make([]string, 0, len(eos))
	for _, eo := range eos {
		out = append(out, eo.ID)
	}
	return out
}

// mustDate parses a date already checked by the datetime validator.
func mustDate(s string) civil.Date {
	d, _ := civil.ParseDate(s)
	return d
}
