// Package attendance records attendance events and builds daily reports
// from them.
//
// Events are appended to one CSV file per day named attendance_YYYY-MM-DD.csv
// in the attendance directory. Secondary sinks (database mirror, MQTT) receive
// the same events through MultiSink.
package attendance

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/faceattend/internal/logger"
)

// EventTypeDetect marks an event written by the recognition loop.
const EventTypeDetect = "DETECT"

// Layouts of the date and time columns.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04:05"
)

// Event is one attendance record.
type Event struct {
	ID         string    `json:"id"`
	EmployeeID string    `json:"employee_id"`
	Name       string    `json:"name"`
	Department string    `json:"department"`
	Time       time.Time `json:"time"`
	Type       string    `json:"type"`
}

// NewEvent returns a DETECT event with a fresh id.
func NewEvent(employeeID, name, department string, at time.Time) Event {
	return Event{
		ID:         uuid.NewString(),
		EmployeeID: employeeID,
		Name:       name,
		Department: department,
		Time:       at,
		Type:       EventTypeDetect,
	}
}

// Date returns the event day as YYYY-MM-DD in the event's location.
func (e Event) Date() string { return e.Time.Format(DateLayout) }

// Clock returns the event time of day as HH:MM:SS.
func (e Event) Clock() string { return e.Time.Format(TimeLayout) }

// Sink receives committed attendance events.
type Sink interface {
	Record(ctx context.Context, ev Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ev Event) error

// Record calls f.
func (f SinkFunc) Record(ctx context.Context, ev Event) error { return f(ctx, ev) }

// GetLogger returns the attendance module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("attendance")
}
