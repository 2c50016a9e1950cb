package attendance

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(date, clock string) time.Time {
	t, err := time.ParseInLocation(DateLayout+" "+TimeLayout, date+" "+clock, time.Local)
	if err != nil {
		panic(err)
	}
	return t
}

func TestCSVLogWritesHeaderOnce(t *testing.T) {
	t.Parallel()

	log, err := NewCSVLog(filepath.Join(t.TempDir(), "attendance"))
	require.NoError(t, err)

	require.NoError(t, log.Record(t.Context(), NewEvent("E1", "Nguyễn Văn A", "Eng", at("2026-03-02", "07:55:10"))))
	require.NoError(t, log.Record(t.Context(), NewEvent("E1", "Nguyễn Văn A", "Eng", at("2026-03-02", "17:40:00"))))

	data, err := os.ReadFile(log.Path("2026-03-02"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "employee_id,name,department,date,time,type", lines[0])
	assert.Equal(t, "E1,Nguyễn Văn A,Eng,2026-03-02,07:55:10,DETECT", lines[1])

	records, err := log.Records("2026-03-02")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "17:40:00", records[1].Time)
	assert.Equal(t, EventTypeDetect, records[1].Type)
}

func TestCSVLogPartitionsByDay(t *testing.T) {
	t.Parallel()

	log, err := NewCSVLog(t.TempDir())
	require.NoError(t, err)

	for _, d := range []string{"2026-03-01", "2026-03-03", "2026-03-02"} {
		require.NoError(t, log.Record(t.Context(), NewEvent("E1", "A", "Eng", at(d, "08:00:00"))))
	}
	require.NoError(t, os.WriteFile(filepath.Join(log.Dir(), "notes.txt"), []byte("x"), 0o600))

	dates, err := log.Dates(0)
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-03-03", "2026-03-02", "2026-03-01"}, dates)

	dates, err = log.Dates(2)
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-03-03", "2026-03-02"}, dates)
}

func TestCSVLogMissingDay(t *testing.T) {
	t.Parallel()

	log, err := NewCSVLog(t.TempDir())
	require.NoError(t, err)

	records, err := log.Records("2020-01-01")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestCSVLogConcurrentAppends(t *testing.T) {
	t.Parallel()

	log, err := NewCSVLog(t.TempDir())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 20 {
		wg.Go(func() {
			assert.NoError(t, log.Record(t.Context(), NewEvent("E1", "A", "Eng", at("2026-03-02", "09:00:00"))))
		})
	}
	wg.Wait()

	records, err := log.Records("2026-03-02")
	require.NoError(t, err)
	assert.Len(t, records, 20)
}
