package datastore

import (
	"time"

	"github.com/tphakala/faceattend/internal/attendance"
)

// AttendanceEvent is the database row of one committed attendance event.
type AttendanceEvent struct {
	ID         uint      `gorm:"primaryKey"`
	EventID    string    `gorm:"size:36;uniqueIndex"`
	EmployeeID string    `gorm:"size:64;index:idx_attendance_employee_date,priority:1"`
	Name       string    `gorm:"size:255"`
	Department string    `gorm:"size:255"`
	Date       string    `gorm:"size:10;index;index:idx_attendance_employee_date,priority:2"`
	Clock      string    `gorm:"size:8"`
	Type       string    `gorm:"size:16"`
	RecordedAt time.Time `gorm:"index"`
	CreatedAt  time.Time
}

// TableName keeps the table name stable across GORM naming strategies.
func (AttendanceEvent) TableName() string {
	return "attendance_events"
}

// FromEvent converts a committed event into its row.
func FromEvent(ev attendance.Event) *AttendanceEvent {
	return &AttendanceEvent{
		EventID:    ev.ID,
		EmployeeID: ev.EmployeeID,
		Name:       ev.Name,
		Department: ev.Department,
		Date:       ev.Date(),
		Clock:      ev.Clock(),
		Type:       ev.Type,
		RecordedAt: ev.Time,
	}
}
