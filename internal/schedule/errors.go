package schedule

import (
	"errors"
	"fmt"

	"cadetplan/internal/model"
)

var (
	ErrSlotOccupied     = errors.New("schedule: slot occupied")
	ErrSlotNotFound     = errors.New("schedule: slot not found")
	ErrResourceConflict = errors.New("schedule: resource conflict")
)

// Resource names reported by ResourceConflictError.
const (
	ResourceInstructor = "instructor"
	ResourceClassroom  = "classroom"
)

// SlotOccupiedError is returned by Assign when the key already holds an item.
type SlotOccupiedError struct {
	Key      model.SlotKey
	Existing model.ScheduledItem
}

func (e *SlotOccupiedError) Error() string {
	return fmt.Sprintf("schedule: slot %s already holds %s", e.Key, e.Existing.EO.ID)
}

func (e *SlotOccupiedError) Is(target error) bool { return target == ErrSlotOccupied }

// SlotNotFoundError is returned by Update when the key is absent.
type SlotNotFoundError struct {
	Key model.SlotKey
}

func (e *SlotNotFoundError) Error() string {
	return fmt.Sprintf("schedule: slot %s is empty", e.Key)
}

func (e *SlotNotFoundError) Is(target error) bool { return target == ErrSlotNotFound }

// ResourceConflictError names the double-booked resource and the slot that
// already holds it, so the caller can offer a corrective choice.
type ResourceConflictError struct {
	Resource   string
	Value      string
	OccupiedBy model.SlotKey
}

func (e *ResourceConflictError) Error() string {
	return fmt.Sprintf("schedule: %s %q is already booked in slot %s", e.Resource, e.Value, e.OccupiedBy)
}

func (e *ResourceConflictError) Is(target error) bool { return target == ErrResourceConflict }
