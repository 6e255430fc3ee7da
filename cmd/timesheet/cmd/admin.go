package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ogurasousui/timesheet-sync/internal/core/timesheet"
)

func newCheckCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Report whether each table file exists in the store",
		Args:  cobra.NoArgs,
		RunE: opts.runE(func(cmd *cobra.Command, _ []string) error {
			statuses, err := opts.svc().CheckTables(cmd.Context())
			if err != nil {
				return err
			}

			tw := newTable(cmd.OutOrStdout())
			fmt.Fprintln(tw, "TABLE\tPATH\tSTATUS")
			for _, st := range statuses {
				state := "missing"
				switch {
				case st.Err != nil:
					state = "error: " + st.Err.Error()
				case st.Exists:
					state = "ok"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", st.Name, st.Path, state)
			}
			return tw.Flush()
		}),
	}
}

func newSyncCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "sync <table>",
		Short:     "Rewrite a table in canonical form",
		Long:      "Rewrite a table in canonical form. Tables: employees, task_types, tasks.",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{timesheet.TableEmployees, timesheet.TableTaskTypes, timesheet.TableTasks},
		RunE: opts.runE(func(cmd *cobra.Command, args []string) error {
			res, err := opts.svc().SyncTable(cmd.Context(), timesheet.SyncTableInput{Table: args[0]})
			if err != nil {
				return err
			}
			printWrite(cmd, "table "+args[0], *res)
			return nil
		}),
	}
}
