package attendance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/faceattend/internal/facestore"
)

type roster []facestore.Identity

func (r roster) Identities() []facestore.Identity { return r }

func clock(s string) time.Time {
	t, err := time.Parse(TimeLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestDetermineStatus(t *testing.T) {
	t.Parallel()

	start, end := clock("08:00:00"), clock("17:30:00")
	tests := []struct {
		name     string
		in, out  string
		expected string
	}{
		{"absent", "", "", StatusAbsent},
		{"on time", "07:59:59", "17:30:00", StatusOnTime},
		{"exactly on start", "08:00:00", "18:00:00", StatusOnTime},
		{"late", "08:00:01", "17:45:00", StatusLate},
		{"left early", "07:30:00", "16:00:00", StatusLeftEarly},
		{"late and left early", "09:00:00", "12:00:00", "late + left-early"},
		{"only check-in on time", "07:50:00", "", StatusOnTime},
		{"garbage", "8am", "", StatusInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, DetermineStatus(tt.in, tt.out, start, end))
		})
	}
}

func TestWorkDuration(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "09:35:05", WorkDuration("08:00:00", "17:35:05"))
	assert.Equal(t, "00:00:00", WorkDuration("08:00:00", "08:00:00"))
	assert.Equal(t, "00:00:00", WorkDuration("09:00:00", "08:00:00"))
	assert.Equal(t, NoDuration, WorkDuration("08:00:00", ""))
	assert.Equal(t, NoDuration, WorkDuration("", ""))
	assert.Equal(t, NoDuration, WorkDuration("x", "17:00:00"))
}

type reportFixture struct {
	log    *CSVLog
	reader *Reader
}

func newReportFixture(t *testing.T, today string) reportFixture {
	t.Helper()
	log, err := NewCSVLog(t.TempDir())
	require.NoError(t, err)

	people := roster{
		{ID: "E1", Name: "Alice", Department: "Eng"},
		{ID: "E2", Name: "Bob", Department: "Ops"},
		{ID: "E3", Name: "Chi"},
	}
	reader, err := NewReader(log, people, "08:00:00", "17:30:00", time.Minute,
		WithReaderClock(func() time.Time { return at(today, "12:00:00") }))
	require.NoError(t, err)
	return reportFixture{log: log, reader: reader}
}

func (f reportFixture) sighting(t *testing.T, id, date, clock string) {
	t.Helper()
	require.NoError(t, f.log.Record(t.Context(), NewEvent(id, "", "", at(date, clock))))
}

func TestReportCombinesLogRosterAndOverrides(t *testing.T) {
	t.Parallel()

	f := newReportFixture(t, "2026-03-05")
	f.sighting(t, "E1", "2026-03-02", "07:50:00")
	f.sighting(t, "E1", "2026-03-02", "12:00:00")
	f.sighting(t, "E1", "2026-03-02", "17:45:00")
	f.sighting(t, "E2", "2026-03-02", "08:20:00")
	f.sighting(t, "X9", "2026-03-02", "08:00:00")

	rep, err := f.reader.Report("2026-03-02")
	require.NoError(t, err)
	require.Len(t, rep.Records, 3, "unknown ids are ignored")

	e1, _ := rep.Record("E1")
	assert.Equal(t, "07:50:00", e1.CheckIn)
	assert.Equal(t, "17:45:00", e1.CheckOut)
	assert.Equal(t, StatusOnTime, e1.Status)
	assert.Equal(t, "09:55:00", e1.Duration)

	e2, _ := rep.Record("E2")
	assert.Equal(t, "late + left-early", e2.Status, "a single sighting is both check-in and check-out")
	assert.Equal(t, "00:00:00", e2.Duration)

	e3, _ := rep.Record("E3")
	assert.Equal(t, StatusAbsent, e3.Status)
	assert.Equal(t, "N/A", e3.Department)
	assert.Equal(t, NoDuration, e3.Duration)

	require.NoError(t, f.reader.SetOverride("2026-03-02", "E3", "sick leave"))
	rep, err = f.reader.Report("2026-03-02")
	require.NoError(t, err)
	e3, _ = rep.Record("E3")
	assert.Equal(t, "sick leave", e3.Status, "override invalidates the cached report")

	overrides, err := f.reader.Overrides("2026-03-02")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"E3": "sick leave"}, overrides)
}

func TestReportCachesPastDaysOnly(t *testing.T) {
	t.Parallel()

	f := newReportFixture(t, "2026-03-05")
	f.sighting(t, "E1", "2026-03-02", "07:50:00")
	f.sighting(t, "E1", "2026-03-05", "07:50:00")

	_, err := f.reader.Report("2026-03-02")
	require.NoError(t, err)
	_, err = f.reader.Report("2026-03-05")
	require.NoError(t, err)

	f.sighting(t, "E2", "2026-03-02", "08:10:00")
	f.sighting(t, "E2", "2026-03-05", "08:10:00")

	past, err := f.reader.Report("2026-03-02")
	require.NoError(t, err)
	e2, _ := past.Record("E2")
	assert.Equal(t, StatusAbsent, e2.Status, "past day served from cache")

	today, err := f.reader.Report("2026-03-05")
	require.NoError(t, err)
	e2, _ = today.Record("E2")
	assert.Equal(t, "08:10:00", e2.CheckIn, "today is never cached")
}

func TestInvalidateDropsCachedReports(t *testing.T) {
	t.Parallel()

	f := newReportFixture(t, "2026-03-05")
	f.sighting(t, "E1", "2026-03-02", "07:50:00")
	_, err := f.reader.Report("2026-03-02")
	require.NoError(t, err)

	f.sighting(t, "E2", "2026-03-02", "08:10:00")
	f.reader.Invalidate()

	rep, err := f.reader.Report("2026-03-02")
	require.NoError(t, err)
	e2, _ := rep.Record("E2")
	assert.Equal(t, "08:10:00", e2.CheckIn)
}

func TestReportRejectsBadDates(t *testing.T) {
	t.Parallel()

	f := newReportFixture(t, "2026-03-05")
	for _, d := range []string{"", "2026-3-2", "../../etc/passwd", "2026-02-30"} {
		_, err := f.reader.Report(d)
		require.ErrorIs(t, err, ErrInvalidDate, d)
	}
	require.ErrorIs(t, f.reader.SetOverride("yesterday", "E1", "x"), ErrInvalidDate)
}

func TestMonthlySummaryAndHistory(t *testing.T) {
	t.Parallel()

	f := newReportFixture(t, "2026-03-05")
	f.sighting(t, "E1", "2026-03-02", "07:50:00")
	f.sighting(t, "E1", "2026-03-02", "17:40:00")
	f.sighting(t, "E2", "2026-03-02", "09:00:00")
	f.sighting(t, "E2", "2026-03-02", "17:40:00")
	f.sighting(t, "E1", "2026-03-03", "07:55:00")
	f.sighting(t, "E1", "2026-03-03", "17:31:00")

	sum, err := f.reader.MonthlySummary(0)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.TotalDays)
	assert.Equal(t, 3, sum.TotalEmployees)
	assert.Equal(t, 3, sum.TotalRecords)
	require.Len(t, sum.Daily, 2)

	newest := sum.Daily[0]
	assert.Equal(t, "2026-03-03", newest.Date)
	assert.Equal(t, 1, newest.OnTime)
	assert.Zero(t, newest.Issues)

	oldest := sum.Daily[1]
	assert.Equal(t, 1, oldest.OnTime)
	assert.Equal(t, 1, oldest.Issues)
	assert.InDelta(t, 100.0/3, oldest.OnTimePercent, 1e-9)
	assert.InDelta(t, 100.0/3, sum.AvgOnTimePercent, 1e-9)

	history, err := f.reader.EmployeeHistory("E2", 31)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "2026-03-03", history[0].Date)
	assert.Equal(t, StatusAbsent, history[0].Status)
	assert.Equal(t, StatusLate, history[1].Status)
}
