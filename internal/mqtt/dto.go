package mqtt

import "github.com/tphakala/faceattend/internal/attendance"

// AttendanceMessage is the JSON payload of an attendance event.
//
// Field names are part of the published contract; add fields, do not rename.
type AttendanceMessage struct {
	EventID    string `json:"eventId"`
	EmployeeID string `json:"employeeId"`
	Name       string `json:"name"`
	Department string `json:"department"`
	Date       string `json:"date"` // "2026-03-02"
	Time       string `json:"time"` // "08:01:02"
	Type       string `json:"type"`
	Timestamp  string `json:"timestamp"` // RFC 3339 with zone
	Node       string `json:"node,omitempty"`
}

func newAttendanceMessage(ev attendance.Event, node string) AttendanceMessage {
	return AttendanceMessage{
		EventID:    ev.ID,
		EmployeeID: ev.EmployeeID,
		Name:       ev.Name,
		Department: ev.Department,
		Date:       ev.Date(),
		Time:       ev.Clock(),
		Type:       ev.Type,
		Timestamp:  ev.Time.Format("2006-01-02T15:04:05Z07:00"),
		Node:       node,
	}
}
