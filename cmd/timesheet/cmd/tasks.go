package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ogurasousui/timesheet-sync/internal/core/timesheet"
)

func newTasksCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "tasks",
		Aliases: []string{"task"},
		Short:   "Start, finish and review recorded work",
	}
	cmd.AddCommand(
		newTasksListCommand(opts),
		newTasksStartCommand(opts),
		newTasksFinishCommand(opts),
		newTasksCancelCommand(opts),
		newTasksDeleteCommand(opts),
	)
	return cmd
}

func newTasksListCommand(opts *rootOptions) *cobra.Command {
	var (
		filter   timesheet.TaskFilter
		from, to string
		status   string
	)

	list := &cobra.Command{
		Use:   "list",
		Short: "List tasks, newest first",
		Args:  cobra.NoArgs,
		RunE: opts.runE(func(cmd *cobra.Command, _ []string) error {
			var err error
			if filter.From, err = opts.parseDate(from); err != nil {
				return err
			}
			if filter.To, err = opts.parseDate(to); err != nil {
				return err
			}
			if status != "" {
				st := timesheet.TaskStatus(strings.ToLower(status))
				filter.Status = &st
			}

			res, err := opts.svc().ListTasks(cmd.Context(), filter)
			if err != nil {
				return err
			}
			warnDegraded(cmd, res.Degraded)
			return printTasks(cmd.OutOrStdout(), res.Tasks, opts.current.loc)
		}),
	}
	list.Flags().StringVar(&filter.EmployeeID, "employee", "", "employee ID")
	list.Flags().StringVar(&filter.TaskTypeID, "task-type", "", "task type ID")
	list.Flags().StringVar(&filter.Customer, "customer", "", "customer name")
	list.Flags().StringVar(&from, "from", "", "first day (YYYY-MM-DD)")
	list.Flags().StringVar(&to, "to", "", "last day (YYYY-MM-DD)")
	list.Flags().StringVar(&status, "status", "", "active or completed")
	return list
}

func newTasksStartCommand(opts *rootOptions) *cobra.Command {
	var (
		in           timesheet.StartTaskInput
		employeeName string
		taskName     string
	)

	start := &cobra.Command{
		Use:   "start",
		Short: "Start the timer for an employee",
		Args:  cobra.NoArgs,
		RunE: opts.runE(func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			svc := opts.svc()

			if in.EmployeeID == "" && employeeName != "" {
				e, err := svc.FindEmployeeByName(ctx, employeeName)
				if err != nil {
					return err
				}
				in.EmployeeID = e.ID
			}
			if in.TaskTypeID == "" && taskName != "" {
				tt, err := svc.FindTaskTypeByName(ctx, taskName)
				if err != nil {
					return err
				}
				in.TaskTypeID = tt.ID
			}

			task, err := svc.StartTask(ctx, in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "started %s for %s at %s\n", task.ID, task.EmployeeName, formatTime(task.StartTime, opts.current.loc))
			return nil
		}),
	}
	start.Flags().StringVar(&in.EmployeeID, "employee", "", "employee ID")
	start.Flags().StringVar(&employeeName, "employee-name", "", "employee name (when --employee is omitted)")
	start.Flags().StringVar(&in.TaskTypeID, "task-type", "", "task type ID")
	start.Flags().StringVar(&taskName, "task-name", "", "task name (when --task-type is omitted)")
	start.Flags().StringVar(&in.Customer, "customer", "", "customer name")
	start.Flags().StringVar(&in.Notes, "notes", "", "task description")
	return start
}

func newTasksFinishCommand(opts *rootOptions) *cobra.Command {
	var taskType, customer, notes string

	finish := &cobra.Command{
		Use:   "finish <task-id>",
		Short: "Stop a running timer and record its cost",
		Args:  cobra.ExactArgs(1),
		RunE: opts.runE(func(cmd *cobra.Command, args []string) error {
			in := timesheet.FinishTaskInput{TaskID: args[0]}
			if cmd.Flags().Changed("task-type") {
				in.TaskTypeID = &taskType
			}
			if cmd.Flags().Changed("customer") {
				in.Customer = &customer
			}
			if cmd.Flags().Changed("notes") {
				in.Notes = &notes
			}

			task, err := opts.svc().FinishTask(cmd.Context(), in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "finished %s: %s minutes, cost %s\n", task.ID, formatOptional(task.DurationMinutes), formatOptional(task.Cost))
			return nil
		}),
	}
	finish.Flags().StringVar(&taskType, "task-type", "", "change the task type")
	finish.Flags().StringVar(&customer, "customer", "", "change the customer")
	finish.Flags().StringVar(&notes, "notes", "", "change the description")
	return finish
}

func newTasksCancelCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <task-id>",
		Short: "Discard a running timer",
		Args:  cobra.ExactArgs(1),
		RunE: opts.runE(func(cmd *cobra.Command, args []string) error {
			if err := opts.svc().CancelTask(cmd.Context(), timesheet.CancelTaskInput{TaskID: args[0]}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cancelled %s\n", args[0])
			return nil
		}),
	}
}

func newTasksDeleteCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <task-id>...",
		Short: "Delete completed tasks in a single write",
		Args:  cobra.MinimumNArgs(1),
		RunE: opts.runE(func(cmd *cobra.Command, args []string) error {
			if err := opts.svc().DeleteTask(cmd.Context(), timesheet.DeleteTaskInput{TaskIDs: args}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", strings.Join(args, ", "))
			return nil
		}),
	}
}
