package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ogurasousui/timesheet-sync/internal/core/timesheet"
)

func newEmployeesCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "employees",
		Aliases: []string{"employee", "emp"},
		Short:   "Manage the employee table",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List employees",
		Args:  cobra.NoArgs,
		RunE: opts.runE(func(cmd *cobra.Command, _ []string) error {
			res, err := opts.svc().ListEmployees(cmd.Context())
			if err != nil {
				return err
			}
			warnDegraded(cmd, res.Degraded)

			tw := newTable(cmd.OutOrStdout())
			fmt.Fprintln(tw, "ID\tNAME\tROLE\tRATE")
			for _, e := range res.Employees {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.ID, e.Name, orDash(e.Role), formatNumber(e.HourlyRate))
			}
			return tw.Flush()
		}),
	}

	var in timesheet.UpsertEmployeeInput
	upsert := &cobra.Command{
		Use:   "upsert",
		Short: "Add an employee or update an existing one",
		Long:  "Add an employee or update an existing one. A new ID is generated when --id is omitted.",
		Args:  cobra.NoArgs,
		RunE: opts.runE(func(cmd *cobra.Command, _ []string) error {
			res, err := opts.svc().UpsertEmployee(cmd.Context(), in)
			if err != nil {
				return err
			}
			printWrite(cmd, "employee "+res.Employee.ID, res.WriteResult)
			return nil
		}),
	}
	upsert.Flags().StringVar(&in.ID, "id", "", "employee ID")
	upsert.Flags().StringVar(&in.Name, "name", "", "display name")
	upsert.Flags().StringVar(&in.Role, "role", "", "role")
	upsert.Flags().Float64Var(&in.HourlyRate, "rate", 0, "hourly rate")
	_ = upsert.MarkFlagRequired("name")

	del := &cobra.Command{
		Use:   "delete <employee-id>",
		Short: "Delete an employee; recorded tasks are kept",
		Args:  cobra.ExactArgs(1),
		RunE: opts.runE(func(cmd *cobra.Command, args []string) error {
			res, err := opts.svc().DeleteEmployee(cmd.Context(), timesheet.DeleteEmployeeInput{ID: args[0]})
			if err != nil {
				return err
			}
			printWrite(cmd, "employee "+args[0], *res)
			return nil
		}),
	}

	cmd.AddCommand(list, upsert, del)
	return cmd
}
