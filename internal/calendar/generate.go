package calendar

import (
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/teambition/rrule-go"

	"cadetplan/internal/model"
)

// ErrInvalidWindow is matched (errors.Is) by every InvalidWindowError.
var ErrInvalidWindow = errors.New("calendar: invalid training year window")

// InvalidWindowError reports a malformed TrainingYearWindow. The generator
// never corrects a window on the caller's behalf.
type InvalidWindowError struct {
	Field  string
	Reason string
}

func (e *InvalidWindowError) Error() string {
	return fmt.Sprintf("calendar: invalid training year window: %s: %s", e.Field, e.Reason)
}

func (e *InvalidWindowError) Is(target error) bool {
	return target == ErrInvalidWindow
}

var rruleWeekdays = [7]rrule.Weekday{
	time.Sunday:    rrule.SU,
	time.Monday:    rrule.MO,
	time.Tuesday:   rrule.TU,
	time.Wednesday: rrule.WE,
	time.Thursday:  rrule.TH,
	time.Friday:    rrule.FR,
	time.Saturday:  rrule.SA,
}

// ValidateWindow checks the window preconditions. A first training night
// after End is allowed and simply yields no dates.
func ValidateWindow(w model.TrainingYearWindow) error {
	if w.TrainingWeekday < 0 || w.TrainingWeekday > 6 {
		return &InvalidWindowError{Field: "training_weekday", Reason: fmt.Sprintf("%d is outside 0-6", w.TrainingWeekday)}
	}
	if !w.Start.IsValid() {
		return &InvalidWindowError{Field: "start", Reason: "not a valid date"}
	}
	if !w.End.IsValid() {
		return &InvalidWindowError{Field: "end", Reason: "not a valid date"}
	}
	if !w.FirstTrainingNight.IsValid() {
		return &InvalidWindowError{Field: "first_training_night", Reason: "not a valid date"}
	}
	if w.End.Before(w.Start) {
		return &InvalidWindowError{Field: "end", Reason: fmt.Sprintf("%s is before start %s", w.End, w.Start)}
	}
	if w.FirstTrainingNight.Before(w.Start) {
		return &InvalidWindowError{Field: "first_training_night", Reason: fmt.Sprintf("%s is before start %s", w.FirstTrainingNight, w.Start)}
	}
	if got := model.Weekday(w.FirstTrainingNight); int(got) != w.TrainingWeekday {
		return &InvalidWindowError{
			Field:  "first_training_night",
			Reason: fmt.Sprintf("%s is a %s, expected %s", w.FirstTrainingNight, got, time.Weekday(w.TrainingWeekday)),
		}
	}
	return nil
}

// GenerateTrainingDates returns every training night of the window in
// ascending order: dates in [FirstTrainingNight, End] falling on
// TrainingWeekday. The result is a pure function of w.
func GenerateTrainingDates(w model.TrainingYearWindow) ([]civil.Date, error) {
	if err := ValidateWindow(w); err != nil {
		return nil, err
	}
	out := make([]civil.Date, 0)
	if w.FirstTrainingNight.After(w.End) {
		return out, nil
	}

	r, err := rrule.NewRRule(rrule.ROption{
		Freq:      rrule.WEEKLY,
		Dtstart:   w.FirstTrainingNight.In(time.UTC),
		Byweekday: []rrule.Weekday{rruleWeekdays[w.TrainingWeekday]},
		Until:     w.End.In(time.UTC),
	})
	if err != nil {
		return nil, fmt.Errorf("calendar: build weekly rule: %w", err)
	}

	for _, t := range r.All() {
		out = append(out, civil.DateOf(t))
	}
	return out, nil
}

// IsTrainingNight reports whether d is one of the window's training nights.
func IsTrainingNight(w model.TrainingYearWindow, d civil.Date) bool {
	if ValidateWindow(w) != nil {
		return false
	}
	if d.Before(w.FirstTrainingNight) || d.After(w.End) {
		return false
	}
	return int(model.Weekday(d)) == w.TrainingWeekday
}

// SlotsFor enumerates the slot grid presented for the given nights: every
// period 1..periodsPerNight for each phase number (phases in the order
// given).
func SlotsFor(dates []civil.Date, periodsPerNight int, phases []int) []model.SlotKey {
	out := make([]model.SlotKey, 0, len(dates)*periodsPerNight*len(phases))
	for _, d := range dates {
		for p := 1; p <= periodsPerNight; p++ {
			for _, ph := range phases {
				out = append(out, model.NewSlotKey(d, p, ph))
			}
		}
	}
	return out
}
