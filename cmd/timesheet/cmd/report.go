package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ogurasousui/timesheet-sync/internal/core/timesheet"
)

func newCustomersCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "customers",
		Short: "List customers seen in recorded tasks",
		Args:  cobra.NoArgs,
		RunE: opts.runE(func(cmd *cobra.Command, _ []string) error {
			res, err := opts.svc().ListCustomers(cmd.Context())
			if err != nil {
				return err
			}
			warnDegraded(cmd, res.Degraded)
			for _, c := range res.Customers {
				fmt.Fprintln(cmd.OutOrStdout(), c)
			}
			return nil
		}),
	}
}

func newReportCommand(opts *rootOptions) *cobra.Command {
	var (
		in       timesheet.ReportInput
		from, to string
	)

	report := &cobra.Command{
		Use:   "report",
		Short: "Summarize completed tasks by employee, customer, task and week",
		Args:  cobra.NoArgs,
		RunE: opts.runE(func(cmd *cobra.Command, _ []string) error {
			var err error
			if in.From, err = opts.parseDate(from); err != nil {
				return err
			}
			if in.To, err = opts.parseDate(to); err != nil {
				return err
			}

			rep, err := opts.svc().Report(cmd.Context(), in)
			if err != nil {
				return err
			}
			warnDegraded(cmd, rep.Degraded)

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Tasks: %d  Hours: %s  Cost: %s\n",
				rep.Totals.Tasks, formatNumber(rep.Totals.Hours), formatNumber(rep.Totals.Cost))
			for _, section := range []struct {
				title  string
				groups []timesheet.ReportGroup
			}{
				{"By employee", rep.ByEmployee},
				{"By customer", rep.ByCustomer},
				{"By task", rep.ByTaskType},
				{"By week", rep.ByWeek},
			} {
				if err := printGroups(w, section.title, section.groups); err != nil {
					return err
				}
			}
			return nil
		}),
	}
	report.Flags().StringVar(&from, "from", "", "first day (YYYY-MM-DD)")
	report.Flags().StringVar(&to, "to", "", "last day (YYYY-MM-DD)")
	report.Flags().StringVar(&in.EmployeeID, "employee", "", "employee ID")
	report.Flags().StringVar(&in.Customer, "customer", "", "customer name")
	report.Flags().StringVar(&in.TaskTypeID, "task-type", "", "task type ID")
	return report
}

func printGroups(w io.Writer, title string, groups []timesheet.ReportGroup) error {
	if len(groups) == 0 {
		return nil
	}
	fmt.Fprintf(w, "\n%s\n", title)
	tw := newTable(w)
	fmt.Fprintln(tw, "NAME\tTASKS\tHOURS\tCOST")
	for _, g := range groups {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", g.Label, g.Totals.Tasks, formatNumber(g.Totals.Hours), formatNumber(g.Totals.Cost))
	}
	return tw.Flush()
}
