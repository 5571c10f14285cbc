// Package storage persists schedule snapshots and auxiliary planners in
// sqlite via gorm. It sits on the caller side of the planning core: the
// core never calls it, the application saves after each successful edit.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	appLog "cadetplan/internal/log"
	"cadetplan/internal/model"
)

// Error wraps every failure of this package so callers can tell storage
// problems apart from scheduling errors.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return "storage: " + e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}

type slotRow struct {
	Date       string `gorm:"primaryKey;size:10"`
	Period     int    `gorm:"primaryKey;autoIncrement:false"`
	Phase      int    `gorm:"primaryKey;autoIncrement:false"`
	EOID       string `gorm:"column:eo_id;not null"`
	Instructor string
	Classroom  string
}

func (slotRow) TableName() string { return "schedule_slots" }

type plannerRow struct {
	ID        string `gorm:"primaryKey"`
	Kind      string `gorm:"not null;index"`
	Name      string `gorm:"not null"`
	Date      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (plannerRow) TableName() string { return "planners" }

type plannerEORow struct {
	PlannerID string `gorm:"primaryKey"`
	Position  int    `gorm:"primaryKey;autoIncrement:false"`
	EOID      string `gorm:"column:eo_id;not null"`
}

func (plannerEORow) TableName() string { return "planner_eos" }

// Store provides sqlite-backed persistence.
type Store struct {
	db *gorm.DB
}

// Open opens (creating if needed) the sqlite database at path and migrates
// the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, wrap("open", err)
		}
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, wrap("open", err)
	}
	if err := db.AutoMigrate(&slotRow{}, &plannerRow{}, &plannerEORow{}); err != nil {
		return nil, wrap("migrate", err)
	}
	appLog.Info("storage opened", "path", path)
	return &Store{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return wrap("close", err)
	}
	return wrap("close", sqlDB.Close())
}

// SaveSchedule replaces the stored schedule with snap in one transaction.
func (s *Store) SaveSchedule(ctx context.Context, snap map[model.SlotKey]model.ScheduledItem) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return replaceSlots(tx, snap)
	})
	return wrap("save schedule", err)
}

// LoadSchedule reads the stored schedule. Rows referring to an EO the
// curriculum no longer has are rejected rather than dropped.
func (s *Store) LoadSchedule(ctx context.Context, c *model.Curriculum) (map[model.SlotKey]model.ScheduledItem, error) {
	var rows []slotRow
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, wrap("load schedule", err)
	}
	out := make(map[model.SlotKey]model.ScheduledItem, len(rows))
	for _, r := range rows {
		d, err := civil.ParseDate(r.Date)
		if err != nil {
			return nil, wrap("load schedule", fmt.Errorf("slot date %q: %w", r.Date, err))
		}
		eo, ok := c.EO(r.EOID)
		if !ok {
			return nil, wrap("load schedule", fmt.Errorf("slot %s-%d-%d: unknown EO %q", r.Date, r.Period, r.Phase, r.EOID))
		}
		out[model.NewSlotKey(d, r.Period, r.Phase)] = model.ScheduledItem{EO: eo, Instructor: r.Instructor, Classroom: r.Classroom}
	}
	return out, nil
}

// SaveDayPlanner inserts or replaces a day planner. An empty ID is filled
// with a new UUID, which is returned.
func (s *Store) SaveDayPlanner(ctx context.Context, p model.DayPlanner) (string, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	row := plannerRow{ID: p.ID, Kind: string(model.KindDay), Name: p.Name, Date: p.Date.String()}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return upsertPlanner(tx, row, p.EOs)
	})
	return p.ID, wrap("save day planner", err)
}

// SaveActivityPlanner inserts or replaces an activity planner.
func (s *Store) SaveActivityPlanner(ctx context.Context, p model.ActivityPlanner) (string, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	row := plannerRow{ID: p.ID, Kind: string(model.KindActivity), Name: p.Name}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return upsertPlanner(tx, row, p.EOs)
	})
	return p.ID, wrap("save activity planner", err)
}

// DeletePlanner removes a planner and its EO list. Deleting an unknown id
// is not an error.
func (s *Store) DeletePlanner(ctx context.Context, id string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("planner_id = ?", id).Delete(&plannerEORow{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&plannerRow{}).Error
	})
	return wrap("delete planner", err)
}

// LoadPlanners returns all planners, day planners ordered by date then
// name, activities by name.
func (s *Store) LoadPlanners(ctx context.Context, c *model.Curriculum) ([]model.DayPlanner, []model.ActivityPlanner, error) {
	db := s.db.WithContext(ctx)

	var rows []plannerRow
	if err := db.Order("date, name, id").Find(&rows).Error; err != nil {
		return nil, nil, wrap("load planners", err)
	}
	var eoRows []plannerEORow
	if err := db.Order("planner_id, position").Find(&eoRows).Error; err != nil {
		return nil, nil, wrap("load planners", err)
	}
	byPlanner := make(map[string][]model.EO)
	for _, r := range eoRows {
		eo, ok := c.EO(r.EOID)
		if !ok {
			return nil, nil, wrap("load planners", fmt.Errorf("planner %s: unknown EO %q", r.PlannerID, r.EOID))
		}
		byPlanner[r.PlannerID] = append(byPlanner[r.PlannerID], eo)
	}

	days := make([]model.DayPlanner, 0)
	acts := make([]model.ActivityPlanner, 0)
	for _, r := range rows {
		eos := byPlanner[r.ID]
		if eos == nil {
			eos = []model.EO{}
		}
		switch model.PlannerKind(r.Kind) {
		case model.KindDay:
			d, err := civil.ParseDate(r.Date)
			if err != nil {
				return nil, nil, wrap("load planners", fmt.Errorf("planner %s date %q: %w", r.ID, r.Date, err))
			}
			days = append(days, model.DayPlanner{ID: r.ID, Name: r.Name, Date: d, EOs: eos})
		case model.KindActivity:
			acts = append(acts, model.ActivityPlanner{ID: r.ID, Name: r.Name, EOs: eos})
		default:
			return nil, nil, wrap("load planners", fmt.Errorf("planner %s: unknown kind %q", r.ID, r.Kind))
		}
	}
	return days, acts, nil
}

// ReplaceAll swaps the whole persisted state in one transaction; used after
// a plan import.
func (s *Store) ReplaceAll(ctx context.Context, snap map[model.SlotKey]model.ScheduledItem, days []model.DayPlanner, acts []model.ActivityPlanner) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := replaceSlots(tx, snap); err != nil {
			return err
		}
		if err := tx.Where("1 = 1").Delete(&plannerEORow{}).Error; err != nil {
			return err
		}
		if err := tx.Where("1 = 1").Delete(&plannerRow{}).Error; err != nil {
			return err
		}
		for _, d := range days {
			row := plannerRow{ID: d.ID, Kind: string(model.KindDay), Name: d.Name, Date: d.Date.String()}
			if err := upsertPlanner(tx, row, d.EOs); err != nil {
				return err
			}
		}
		for _, a := range acts {
			row := plannerRow{ID: a.ID, Kind: string(model.KindActivity), Name: a.Name}
			if err := upsertPlanner(tx, row, a.EOs); err != nil {
				return err
			}
		}
		return nil
	})
	return wrap("replace all", err)
}

func replaceSlots(tx *gorm.DB, snap map[model.SlotKey]model.ScheduledItem) error {
	if err := tx.Where("1 = 1").Delete(&slotRow{}).Error; err != nil {
		return err
	}
	if len(snap) == 0 {
		return nil
	}
	rows := make([]slotRow, 0, len(snap))
	for k, it := range snap {
		rows = append(rows, slotRow{
			Date:       k.Date.String(),
			Period:     k.Period,
			Phase:      k.Phase,
			EOID:       it.EO.ID,
			Instructor: it.Instructor,
			Classroom:  it.Classroom,
		})
	}
	return tx.CreateInBatches(rows, 200).Error
}

func upsertPlanner(tx *gorm.DB, row plannerRow, eos []model.EO) error {
	upsert := clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"kind", "name", "date", "updated_at"}),
	}
	if err := tx.Clauses(upsert).Create(&row).Error; err != nil {
		return err
	}
	if err := tx.Where("planner_id = ?", row.ID).Delete(&plannerEORow{}).Error; err != nil {
		return err
	}
	if len(eos) == 0 {
		return nil
	}
	rows := make([]plannerEORow, 0, len(eos))
	for i, eo := range eos {
		rows = append(rows, plannerEORow{PlannerID: row.ID, Position: i, EOID: eo.ID})
	}
	return tx.Create(&rows).Error
}
