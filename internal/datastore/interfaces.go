// Package datastore mirrors attendance events into SQLite or MySQL through
// GORM, for reporting tools that prefer SQL over the daily CSV files. The
// CSV log stays authoritative; the mirror is written best effort.
package datastore

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tphakala/faceattend/internal/attendance"
	"github.com/tphakala/faceattend/internal/conf"
	"github.com/tphakala/faceattend/internal/errors"
	"github.com/tphakala/faceattend/internal/logger"
)

// DefaultSlowQueryThreshold is the duration after which a query is logged
// as slow.
const DefaultSlowQueryThreshold = 500 * time.Millisecond

// Interface abstracts the database backends.
type Interface interface {
	Open() error
	Close() error
	Save(ctx context.Context, ev *AttendanceEvent) error
	EventsForDate(ctx context.Context, date string) ([]AttendanceEvent, error)
	EventsForEmployee(ctx context.Context, employeeID string, limit int) ([]AttendanceEvent, error)
	// Record makes every backend usable as an attendance.Sink.
	Record(ctx context.Context, ev attendance.Event) error
}

// DataStore implements the backend independent queries on an open *gorm.DB.
type DataStore struct {
	DB *gorm.DB
}

// New returns the configured backend, or nil when no database output is
// enabled. The returned store is not opened yet.
func New(settings *conf.Settings) Interface {
	switch {
	case settings.Output.SQLite.Enabled:
		return &SQLiteStore{Path: settings.Output.SQLite.Path}
	case settings.Output.MySQL.Enabled:
		m := settings.Output.MySQL
		return &MySQLStore{
			Username: m.Username,
			Password: m.Password,
			Host:     m.Host,
			Port:     m.Port,
			Database: m.Database,
		}
	default:
		return nil
	}
}

func newGormConfig() *gorm.Config {
	return &gorm.Config{
		Logger: logger.NewGormLoggerAdapter(GetLogger(), DefaultSlowQueryThreshold),
	}
}

func (ds *DataStore) ready() error {
	if ds.DB == nil {
		return errors.Newf("database connection is not initialized").
			Component("datastore").
			Category(errors.CategoryState).
			Build()
	}
	return nil
}

// Save inserts ev. An event id that is already stored is ignored, so a
// retried write does not duplicate the row.
func (ds *DataStore) Save(ctx context.Context, ev *AttendanceEvent) error {
	if err := ds.ready(); err != nil {
		return err
	}
	err := ds.DB.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "event_id"}}, DoNothing: true}).
		Create(ev).Error
	if err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "save_attendance_event").
			Context("employee_id", ev.EmployeeID).
			Build()
	}
	return nil
}

// Record implements attendance.Sink.
func (ds *DataStore) Record(ctx context.Context, ev attendance.Event) error {
	return ds.Save(ctx, FromEvent(ev))
}

// EventsForDate returns the events of one YYYY-MM-DD day in time order.
func (ds *DataStore) EventsForDate(ctx context.Context, date string) ([]AttendanceEvent, error) {
	if err := ds.ready(); err != nil {
		return nil, err
	}
	var events []AttendanceEvent
	err := ds.DB.WithContext(ctx).
		Where("date = ?", date).
		Order("recorded_at ASC, id ASC").
		Find(&events).Error
	if err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "events_for_date").
			Context("date", date).
			Build()
	}
	return events, nil
}

// EventsForEmployee returns the newest events of one employee. A limit of
// zero or less returns all of them.
func (ds *DataStore) EventsForEmployee(ctx context.Context, employeeID string, limit int) ([]AttendanceEvent, error) {
	if err := ds.ready(); err != nil {
		return nil, err
	}
	q := ds.DB.WithContext(ctx).
		Where("employee_id = ?", employeeID).
		Order("recorded_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var events []AttendanceEvent
	if err := q.Find(&events).Error; err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "events_for_employee").
			Context("employee_id", employeeID).
			Build()
	}
	return events, nil
}

func (ds *DataStore) closeDB(backend string) error {
	if err := ds.ready(); err != nil {
		return err
	}
	sqlDB, err := ds.DB.DB()
	if err != nil {
		return errors.New(err).Component("datastore").Category(errors.CategoryDatabase).Build()
	}
	if err := sqlDB.Close(); err != nil {
		GetLogger().Error("failed to close database",
			logger.String("backend", backend),
			logger.Error(err))
		return errors.New(err).Component("datastore").Category(errors.CategoryDatabase).Build()
	}
	ds.DB = nil
	return nil
}
