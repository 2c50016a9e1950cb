package attendance

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/tphakala/faceattend/internal/errors"
	"github.com/tphakala/faceattend/internal/facestore"
	"github.com/tphakala/faceattend/internal/logger"
)

// Status values of a daily record. Manual overrides may hold any text.
const (
	StatusOnTime    = "on-time"
	StatusLate      = "late"
	StatusLeftEarly = "left-early"
	StatusAbsent    = "absent"
	StatusInvalid   = "invalid-data"
)

// NoDuration is shown when check-in or check-out is missing.
const NoDuration = "--:--:--"

// DefaultMaxDates is the number of days listed and summarized by default.
const DefaultMaxDates = 31

// ErrInvalidDate is returned for dates not in YYYY-MM-DD form.
var ErrInvalidDate = errors.NewStd("invalid date")

// Roster lists the known employees in stored order.
type Roster interface {
	Identities() []facestore.Identity
}

// DayRecord is one employee's attendance on one day.
type DayRecord struct {
	Date       string `json:"date,omitempty"`
	EmployeeID string `json:"employee_id"`
	Name       string `json:"name"`
	Department string `json:"department"`
	CheckIn    string `json:"check_in,omitempty"`
	CheckOut   string `json:"check_out,omitempty"`
	Status     string `json:"status"`
	Duration   string `json:"duration"`
}

// DailyReport lists every employee of the roster for one date.
type DailyReport struct {
	Date    string      `json:"date"`
	Records []DayRecord `json:"records"`
}

// Record returns the row of id.
func (d DailyReport) Record(id string) (DayRecord, bool) {
	for _, r := range d.Records {
		if r.EmployeeID == id {
			return r, true
		}
	}
	return DayRecord{}, false
}

// DayStats summarizes one date.
type DayStats struct {
	Date          string  `json:"date"`
	Total         int     `json:"total"`
	OnTime        int     `json:"on_time"`
	Issues        int     `json:"issues"`
	OnTimePercent float64 `json:"on_time_percent"`
}

// Summary aggregates the most recent dates.
type Summary struct {
	TotalDays        int        `json:"total_days"`
	TotalEmployees   int        `json:"total_employees"`
	TotalRecords     int        `json:"total_records"`
	AvgOnTimePercent float64    `json:"avg_on_time_percent"`
	Daily            []DayStats `json:"daily_stats"`
}

// Reader builds reports from the CSV log, the roster and the manual status
// overrides stored as manual_status_{date}.json next to the logs. Reports of
// past days are cached; today's report is always rebuilt.
type Reader struct {
	log       *CSVLog
	roster    Roster
	workStart time.Time
	workEnd   time.Time
	cache     *cache.Cache
	now       func() time.Time

	overridesMu sync.Mutex
}

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithReaderClock replaces time.Now when deciding what "today" is.
func WithReaderClock(now func() time.Time) ReaderOption {
	return func(r *Reader) { r.now = now }
}

// NewReader parses the work window (HH:MM:SS) and sets up the report cache.
func NewReader(log *CSVLog, roster Roster, workStart, workEnd string, cacheTTL time.Duration, opts ...ReaderOption) (*Reader, error) {
	start, err := time.Parse(TimeLayout, workStart)
	if err != nil {
		return nil, errors.New(err).Component("attendance").Category(errors.CategoryValidation).Context("work_start", workStart).Build()
	}
	end, err := time.Parse(TimeLayout, workEnd)
	if err != nil {
		return nil, errors.New(err).Component("attendance").Category(errors.CategoryValidation).Context("work_end", workEnd).Build()
	}
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}

	r := &Reader{
		log:       log,
		roster:    roster,
		workStart: start,
		workEnd:   end,
		cache:     cache.New(cacheTTL, cacheTTL*2),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func validateDate(date string) error {
	if _, err := time.Parse(DateLayout, date); err != nil {
		return errors.New(ErrInvalidDate).
			Component("attendance").
			Category(errors.CategoryValidation).
			Context("date", date).
			Build()
	}
	return nil
}

// Invalidate drops every cached report. Call it when the roster changes,
// since names and absences are resolved at build time.
func (r *Reader) Invalidate() {
	r.cache.Flush()
}

// Today returns the current date in YYYY-MM-DD form.
func (r *Reader) Today() string { return r.now().Format(DateLayout) }

// Records returns the raw events of date, optionally only those of
// employeeID.
func (r *Reader) Records(date, employeeID string) ([]Record, error) {
	if err := validateDate(date); err != nil {
		return nil, err
	}
	all, err := r.log.Records(date)
	if err != nil {
		return nil, err
	}
	if employeeID == "" {
		return all, nil
	}
	return slices.DeleteFunc(all, func(rec Record) bool { return rec.EmployeeID != employeeID }), nil
}

// Report returns the daily report of date.
func (r *Reader) Report(date string) (DailyReport, error) {
	if err := validateDate(date); err != nil {
		return DailyReport{}, err
	}

	cacheable := date != r.Today()
	if cacheable {
		if cached, found := r.cache.Get(date); found {
			rep := cached.(DailyReport)
			rep.Records = slices.Clone(rep.Records)
			return rep, nil
		}
	}

	rep, err := r.buildReport(date)
	if err != nil {
		return DailyReport{}, err
	}
	if cacheable {
		r.cache.Set(date, DailyReport{Date: rep.Date, Records: slices.Clone(rep.Records)}, cache.DefaultExpiration)
	}
	return rep, nil
}

func (r *Reader) buildReport(date string) (DailyReport, error) {
	records, err := r.log.Records(date)
	if err != nil {
		return DailyReport{}, err
	}
	overrides, err := r.Overrides(date)
	if err != nil {
		GetLogger().Warn("ignoring unreadable status overrides", logger.Error(err), logger.String("date", date))
		overrides = nil
	}

	identities := r.roster.Identities()
	rows := make([]DayRecord, len(identities))
	index := make(map[string]int, len(identities))
	for i, ident := range identities {
		rows[i] = DayRecord{
			EmployeeID: ident.ID,
			Name:       orDefault(ident.Name, "Unknown"),
			Department: orDefault(ident.Department, "N/A"),
		}
		index[ident.ID] = i
	}

	for _, rec := range records {
		i, ok := index[rec.EmployeeID]
		if !ok {
			continue
		}
		if rows[i].CheckIn == "" {
			rows[i].CheckIn = rec.Time
		}
		rows[i].CheckOut = rec.Time
	}

	for i := range rows {
		if status, ok := overrides[rows[i].EmployeeID]; ok {
			rows[i].Status = status
		} else {
			rows[i].Status = DetermineStatus(rows[i].CheckIn, rows[i].CheckOut, r.workStart, r.workEnd)
		}
		rows[i].Duration = WorkDuration(rows[i].CheckIn, rows[i].CheckOut)
	}

	return DailyReport{Date: date, Records: rows}, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// DetermineStatus derives the status from the first and last sighting of the
// day. A missing check-in is absent; lateness and leaving early combine
// with " + ".
func DetermineStatus(checkIn, checkOut string, workStart, workEnd time.Time) string {
	if checkIn == "" {
		return StatusAbsent
	}
	in, err := time.Parse(TimeLayout, checkIn)
	if err != nil {
		return StatusInvalid
	}

	var statuses []string
	if in.After(workStart) {
		statuses = append(statuses, StatusLate)
	}
	if checkOut != "" {
		out, err := time.Parse(TimeLayout, checkOut)
		if err != nil {
			return StatusInvalid
		}
		if out.Before(workEnd) {
			statuses = append(statuses, StatusLeftEarly)
		}
	}

	if len(statuses) == 0 {
		return StatusOnTime
	}
	return strings.Join(statuses, " + ")
}

// WorkDuration formats checkOut - checkIn as HH:MM:SS. Negative spans are
// 00:00:00, missing or malformed input is NoDuration.
func WorkDuration(checkIn, checkOut string) string {
	if checkIn == "" || checkOut == "" {
		return NoDuration
	}
	in, err := time.Parse(TimeLayout, checkIn)
	if err != nil {
		return NoDuration
	}
	out, err := time.Parse(TimeLayout, checkOut)
	if err != nil {
		return NoDuration
	}

	d := out.Sub(in)
	if d < 0 {
		return "00:00:00"
	}
	secs := int(d.Seconds())
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, (secs%3600)/60, secs%60)
}

func (r *Reader) overridesPath(date string) string {
	return filepath.Join(r.log.Dir(), "manual_status_"+date+".json")
}

// Overrides returns the manual statuses of date keyed by employee id.
func (r *Reader) Overrides(date string) (map[string]string, error) {
	if err := validateDate(date); err != nil {
		return nil, err
	}
	r.overridesMu.Lock()
	defer r.overridesMu.Unlock()
	return r.readOverrides(date)
}

func (r *Reader) readOverrides(date string) (map[string]string, error) {
	path := r.overridesPath(date)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, errors.New(err).Component("attendance").Category(errors.CategoryFileIO).Context("path", path).Build()
	}
	overrides := map[string]string{}
	if err := json.Unmarshal(data, &overrides); err != nil {
		return nil, errors.New(err).Component("attendance").Category(errors.CategoryFileParsing).Context("path", path).Build()
	}
	return overrides, nil
}

// SetOverride stores a manual status for employeeID on date.
func (r *Reader) SetOverride(date, employeeID, status string) error {
	if err := validateDate(date); err != nil {
		return err
	}
	if strings.TrimSpace(employeeID) == "" || strings.TrimSpace(status) == "" {
		return errors.Newf("employee id and status are required").
			Component("attendance").
			Category(errors.CategoryValidation).
			Build()
	}

	r.overridesMu.Lock()
	defer r.overridesMu.Unlock()

	overrides, err := r.readOverrides(date)
	if err != nil {
		GetLogger().Warn("replacing unreadable status overrides", logger.Error(err), logger.String("date", date))
		overrides = map[string]string{}
	}
	overrides[employeeID] = status

	data, err := json.MarshalIndent(overrides, "", "    ")
	if err != nil {
		return errors.New(err).Component("attendance").Category(errors.CategoryFileIO).Build()
	}
	path := r.overridesPath(date)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.New(err).Component("attendance").Category(errors.CategoryFileIO).Context("path", path).Build()
	}

	r.cache.Delete(date)
	GetLogger().Info("manual status set",
		logger.String("date", date),
		logger.String("employee_id", employeeID),
		logger.String("status", status))
	return nil
}

// AvailableDates lists dates with a log file, newest first. max <= 0 uses
// DefaultMaxDates.
func (r *Reader) AvailableDates(maxDates int) ([]string, error) {
	if maxDates <= 0 {
		maxDates = DefaultMaxDates
	}
	return r.log.Dates(maxDates)
}

// MonthlySummary aggregates the reports of the most recent dates.
func (r *Reader) MonthlySummary(maxDates int) (Summary, error) {
	dates, err := r.AvailableDates(maxDates)
	if err != nil {
		return Summary{}, err
	}

	sum := Summary{
		TotalDays:      len(dates),
		TotalEmployees: len(r.roster.Identities()),
		Daily:          make([]DayStats, 0, len(dates)),
	}

	var percentTotal float64
	for _, date := range dates {
		rep, err := r.Report(date)
		if err != nil {
			return Summary{}, err
		}
		stats := DayStats{Date: date, Total: len(rep.Records)}
		for _, rec := range rep.Records {
			switch rec.Status {
			case StatusOnTime:
				stats.OnTime++
			case StatusAbsent:
			default:
				stats.Issues++
			}
			if rec.CheckIn != "" {
				sum.TotalRecords++
			}
		}
		if stats.Total > 0 {
			stats.OnTimePercent = float64(stats.OnTime) / float64(stats.Total) * 100
		}
		percentTotal += stats.OnTimePercent
		sum.Daily = append(sum.Daily, stats)
	}
	if len(dates) > 0 {
		sum.AvgOnTimePercent = percentTotal / float64(len(dates))
	}
	return sum, nil
}

// EmployeeHistory returns one row per available date for employeeID, absent
// days included, newest first.
func (r *Reader) EmployeeHistory(employeeID string, days int) ([]DayRecord, error) {
	dates, err := r.AvailableDates(days)
	if err != nil {
		return nil, err
	}

	var history []DayRecord
	for _, date := range dates {
		rep, err := r.Report(date)
		if err != nil {
			return nil, err
		}
		if rec, ok := rep.Record(employeeID); ok {
			rec.Date = date
			history = append(history, rec)
		}
	}
	return history, nil
}
