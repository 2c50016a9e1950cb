package attendance

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/tphakala/faceattend/internal/errors"
)

// csvHeader is the first row of every daily file.
var csvHeader = []string{"employee_id", "name", "department", "date", "time", "type"}

const (
	filePrefix = "attendance_"
	fileSuffix = ".csv"
)

// Record is one parsed CSV row.
type Record struct {
	EmployeeID string `json:"employee_id"`
	Name       string `json:"name"`
	Department string `json:"department"`
	Date       string `json:"date"`
	Time       string `json:"time"`
	Type       string `json:"type"`
}

// CSVLog appends events to daily CSV files. It is the primary sink.
type CSVLog struct {
	dir string
	mu  sync.Mutex
}

// NewCSVLog creates dir when missing.
func NewCSVLog(dir string) (*CSVLog, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.New(err).
			Component("attendance").
			Category(errors.CategoryFileIO).
			Context("path", dir).
			Build()
	}
	return &CSVLog{dir: dir}, nil
}

// Dir returns the attendance directory.
func (l *CSVLog) Dir() string { return l.dir }

// Path returns the file of date (YYYY-MM-DD).
func (l *CSVLog) Path(date string) string {
	return filepath.Join(l.dir, filePrefix+date+fileSuffix)
}

// Record appends ev to its day's file, writing the header first when the
// file is new.
func (l *CSVLog) Record(_ context.Context, ev Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	path := l.Path(ev.Date())
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.New(err).
			Component("attendance").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return errors.New(err).Component("attendance").Category(errors.CategoryFileIO).Context("path", path).Build()
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		_ = w.Write(csvHeader)
	}
	eventType := ev.Type
	if eventType == "" {
		eventType = EventTypeDetect
	}
	_ = w.Write([]string{ev.EmployeeID, ev.Name, ev.Department, ev.Date(), ev.Clock(), eventType})
	w.Flush()
	if err := w.Error(); err != nil {
		return errors.New(err).
			Component("attendance").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	return nil
}

// Records reads the rows of date in file order. A missing file yields no
// rows and no error.
func (l *CSVLog) Records(date string) ([]Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	path := l.Path(date)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.New(err).
			Component("attendance").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	defer f.Close()

	return parseRecords(f, path)
}

func parseRecords(r io.Reader, path string) ([]Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, errors.New(err).
			Component("attendance").
			Category(errors.CategoryFileParsing).
			Context("path", path).
			Build()
	}

	var records []Record
	for i, row := range rows {
		if i == 0 && len(row) > 0 && row[0] == csvHeader[0] {
			continue
		}
		if len(row) < 5 || row[0] == "" {
			continue
		}
		rec := Record{
			EmployeeID: row[0],
			Name:       row[1],
			Department: row[2],
			Date:       row[3],
			Time:       row[4],
			Type:       EventTypeDetect,
		}
		if len(row) > 5 && row[5] != "" {
			rec.Type = row[5]
		}
		records = append(records, rec)
	}
	return records, nil
}

// Dates lists the days that have a log file, newest first, at most limit
// entries. limit <= 0 returns all.
func (l *CSVLog) Dates(limit int) ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.New(err).
			Component("attendance").
			Category(errors.CategoryFileIO).
			Context("path", l.dir).
			Build()
	}

	var dates []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		dates = append(dates, strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix))
	}

	slices.Sort(dates)
	slices.Reverse(dates)
	if limit > 0 && len(dates) > limit {
		dates = dates[:limit]
	}
	return dates, nil
}
