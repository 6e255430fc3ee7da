package cmd

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ogurasousui/timesheet-sync/internal/core/timesheet"
)

const timeLayout = "2006-01-02 15:04"

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func warnDegraded(cmd *cobra.Command, degraded bool) {
	if degraded {
		cmd.PrintErrln("warning: store unreachable, showing the last known data")
	}
}

func printWrite(cmd *cobra.Command, what string, res timesheet.WriteResult) {
	if res.Changed() {
		fmt.Fprintf(cmd.OutOrStdout(), "%s saved (version %s)\n", what, res.Version)
		return
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s unchanged\n", what)
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatOptional(v *float64) string {
	if v == nil {
		return "-"
	}
	return formatNumber(*v)
}

func formatTime(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return "-"
	}
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format(timeLayout)
}

func formatOptionalTime(t *time.Time, loc *time.Location) string {
	if t == nil {
		return "-"
	}
	return formatTime(*t, loc)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func printTasks(w io.Writer, tasks []*timesheet.Task, loc *time.Location) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tDATE\tEMPLOYEE\tTASK\tCUSTOMER\tSTART\tEND\tMINUTES\tCOST")
	for _, t := range tasks {
		date := "-"
		if !t.Date.IsZero() {
			date = t.Date.Format(dateLayout)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			t.ID,
			date,
			orDash(t.EmployeeName),
			orDash(t.TaskName),
			orDash(t.Customer),
			formatTime(t.StartTime, loc),
			formatOptionalTime(t.EndTime, loc),
			formatOptional(t.DurationMinutes),
			formatOptional(t.Cost),
		)
	}
	return tw.Flush()
}
