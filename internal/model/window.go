package model

import (
	"time"

	"cloud.google.com/go/civil"
)

// TrainingYearWindow describes when the weekly program runs.
// TrainingWeekday uses time.Weekday numbering (0 = Sunday).
type TrainingYearWindow struct {
	Start              civil.Date `json:"start"`
	End                civil.Date `json:"end"`
	TrainingWeekday    int        `json:"training_weekday"`
	FirstTrainingNight civil.Date `json:"first_training_night"`
}

// Weekday returns the weekday of a civil date.
func Weekday(d civil.Date) time.Weekday {
	return d.In(time.UTC).Weekday()
}
