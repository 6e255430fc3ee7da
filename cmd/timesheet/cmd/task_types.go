package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ogurasousui/timesheet-sync/internal/core/timesheet"
)

func newTaskTypesCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "task-types",
		Aliases: []string{"task-type", "tt"},
		Short:   "Manage the task type library",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List task types",
		Args:  cobra.NoArgs,
		RunE: opts.runE(func(cmd *cobra.Command, _ []string) error {
			res, err := opts.svc().ListTaskTypes(cmd.Context())
			if err != nil {
				return err
			}
			warnDegraded(cmd, res.Degraded)

			tw := newTable(cmd.OutOrStdout())
			fmt.Fprintln(tw, "ID\tNAME\tCATEGORY")
			for _, tt := range res.TaskTypes {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", tt.ID, tt.Name, tt.Category)
			}
			return tw.Flush()
		}),
	}

	var in timesheet.UpsertTaskTypeInput
	upsert := &cobra.Command{
		Use:   "upsert",
		Short: "Add a task type or update an existing one",
		Args:  cobra.NoArgs,
		RunE: opts.runE(func(cmd *cobra.Command, _ []string) error {
			res, err := opts.svc().UpsertTaskType(cmd.Context(), in)
			if err != nil {
				return err
			}
			printWrite(cmd, "task type "+res.TaskType.ID, res.WriteResult)
			return nil
		}),
	}
	upsert.Flags().StringVar(&in.ID, "id", "", "task type ID")
	upsert.Flags().StringVar(&in.Name, "name", "", "task name")
	upsert.Flags().StringVar(&in.Category, "category", "", "category (default General)")
	_ = upsert.MarkFlagRequired("name")

	cmd.AddCommand(list, upsert)
	return cmd
}
