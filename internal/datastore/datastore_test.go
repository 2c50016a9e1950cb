package datastore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/faceattend/internal/attendance"
	"github.com/tphakala/faceattend/internal/conf"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store := &SQLiteStore{Path: filepath.Join(t.TempDir(), "db", "attendance.db")}
	require.NoError(t, store.Open())
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRecordAndQueryByDate(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	day := time.Date(2026, 3, 2, 8, 1, 2, 0, time.Local)

	first := attendance.NewEvent("E1", "Alice", "Eng", day)
	second := attendance.NewEvent("E2", "Bob", "Ops", day.Add(time.Hour))
	other := attendance.NewEvent("E1", "Alice", "Eng", day.AddDate(0, 0, 1))
	for _, ev := range []attendance.Event{second, first, other} {
		require.NoError(t, store.Record(t.Context(), ev))
	}

	events, err := store.EventsForDate(t.Context(), "2026-03-02")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "E1", events[0].EmployeeID)
	assert.Equal(t, "08:01:02", events[0].Clock)
	assert.Equal(t, attendance.EventTypeDetect, events[0].Type)
	assert.Equal(t, first.ID, events[0].EventID)
	assert.Equal(t, "E2", events[1].EmployeeID)
}

func TestRecordIsIdempotentPerEventID(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ev := attendance.NewEvent("E1", "Alice", "Eng", time.Now())
	require.NoError(t, store.Record(t.Context(), ev))
	require.NoError(t, store.Record(t.Context(), ev))

	events, err := store.EventsForEmployee(t.Context(), "E1", 0)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestEventsForEmployeeNewestFirst(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	base := time.Date(2026, 3, 2, 8, 0, 0, 0, time.Local)
	for i := range 5 {
		require.NoError(t, store.Record(t.Context(), attendance.NewEvent("E1", "Alice", "Eng", base.Add(time.Duration(i)*time.Hour))))
	}

	events, err := store.EventsForEmployee(t.Context(), "E1", 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "12:00:00", events[0].Clock)
	assert.Equal(t, "11:00:00", events[1].Clock)
}

func TestClosedStoreRejectsWrites(t *testing.T) {
	t.Parallel()

	store := &SQLiteStore{Path: filepath.Join(t.TempDir(), "a.db")}
	require.Error(t, store.Record(t.Context(), attendance.NewEvent("E1", "A", "B", time.Now())))
	require.NoError(t, store.Open())
	require.NoError(t, store.Close())
	require.Error(t, store.Close())
}

func TestNewSelectsBackend(t *testing.T) {
	t.Parallel()

	s := &conf.Settings{}
	assert.Nil(t, New(s))

	s.Output.SQLite.Enabled = true
	s.Output.SQLite.Path = "x.db"
	assert.IsType(t, &SQLiteStore{}, New(s))

	s.Output.SQLite.Enabled = false
	s.Output.MySQL.Enabled = true
	s.Output.MySQL.Username = "att"
	s.Output.MySQL.Password = "secret"
	s.Output.MySQL.Host = "db.local"
	s.Output.MySQL.Port = "3306"
	s.Output.MySQL.Database = "faceattend"
	store, ok := New(s).(*MySQLStore)
	require.True(t, ok)
	assert.Equal(t, "att:secret@tcp(db.local:3306)/faceattend?charset=utf8mb4&parseTime=True&loc=Local", store.DSN())
}
