package report

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/faceattend/internal/analysis"
	"github.com/tphakala/faceattend/internal/attendance"
	"github.com/tphakala/faceattend/internal/conf"
)

type options struct {
	summary  bool
	employee string
	days     int
}

// Command creates the report command which prints attendance reports from
// the daily logs.
func Command(settings *conf.Settings) *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "report [date]",
		Short: "Print the attendance report of a day",
		Long: "Print every employee's check-in, check-out and status for a date (YYYY-MM-DD, today by default). " +
			"--summary aggregates the most recent days and --employee prints one employee's history.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := analysis.OpenStore(settings, nil)
			if err != nil {
				return err
			}
			_, reader, err := analysis.OpenAttendance(settings, store)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch {
			case opts.summary:
				sum, err := reader.MonthlySummary(opts.days)
				if err != nil {
					return err
				}
				return PrintSummary(out, sum)
			case opts.employee != "":
				history, err := reader.EmployeeHistory(opts.employee, opts.days)
				if err != nil {
					return err
				}
				return PrintHistory(out, history)
			}

			date := reader.Today()
			if len(args) == 1 {
				date = args[0]
			}
			rep, err := reader.Report(date)
			if err != nil {
				return err
			}
			return PrintReport(out, rep)
		},
	}

	cmd.Flags().BoolVar(&opts.summary, "summary", false, "Summarize the most recent days")
	cmd.Flags().StringVar(&opts.employee, "employee", "", "Print the history of one employee")
	cmd.Flags().IntVar(&opts.days, "days", viper.GetInt("attendance.maxdates"), "Number of recent days for --summary and --employee")

	return cmd
}

// PrintReport writes a daily report as an aligned table.
func PrintReport(out io.Writer, rep attendance.DailyReport) error {
	fmt.Fprintf(out, "Attendance %s\n", rep.Date)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tDEPARTMENT\tIN\tOUT\tDURATION\tSTATUS")
	for _, r := range rep.Records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.EmployeeID, r.Name, r.Department, dash(r.CheckIn), dash(r.CheckOut), dash(r.Duration), r.Status)
	}
	return w.Flush()
}

// PrintSummary writes per-day statistics followed by the totals.
func PrintSummary(out io.Writer, sum attendance.Summary) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tEMPLOYEES\tON TIME\tISSUES\tON TIME %")
	for _, d := range sum.Daily {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%.1f\n", d.Date, d.Total, d.OnTime, d.Issues, d.OnTimePercent)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(out, "%d days, %d employees, %d check-ins, %.1f%% on time on average\n",
		sum.TotalDays, sum.TotalEmployees, sum.TotalRecords, sum.AvgOnTimePercent)
	return err
}

// PrintHistory writes one employee's rows, newest first.
func PrintHistory(out io.Writer, history []attendance.DayRecord) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tIN\tOUT\tDURATION\tSTATUS")
	for _, r := range history {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.Date, dash(r.CheckIn), dash(r.CheckOut), dash(r.Duration), r.Status)
	}
	return w.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
