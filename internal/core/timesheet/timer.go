package timesheet

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/ogurasousui/timesheet-sync/internal/core/table"
)

// StartTaskInput はタイマー開始時の入力です。
type StartTaskInput struct {
	EmployeeID string
	TaskTypeID string
	Customer   string
	Notes      string
}

// FinishTaskInput はタイマー終了時の入力です。nil でないフィールドは終了時に上書きされます。
type FinishTaskInput struct {
	TaskID     string
	TaskTypeID *string
	Customer   *string
	Notes      *string
}

// CancelTaskInput は進行中タスクの取り消し時の入力です。
type CancelTaskInput struct {
	TaskID string
}

// DeleteTaskInput はタスク削除時の入力です。TaskID と TaskIDs は一回の書き込みでまとめて削除します。
type DeleteTaskInput struct {
	TaskID  string
	TaskIDs []string
}

// StartTask は社員のタイマーを開始します。既に進行中のタスクがある場合は ErrAlreadyActive を返します。
func (s *Service) StartTask(ctx context.Context, in StartTaskInput) (*Task, error) {
	employeeID, err := normalizeRequiredID(in.EmployeeID)
	if err != nil {
		return nil, err
	}
	taskTypeID, err := normalizeRequiredID(in.TaskTypeID)
	if err != nil {
		return nil, err
	}

	var (
		emp *Employee
		tt  *TaskType
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		emp, err = s.lookupEmployee(gctx, employeeID)
		return err
	})
	g.Go(func() error {
		var err error
		tt, err = s.lookupTaskType(gctx, taskTypeID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	now := s.now()
	task := &Task{
		ID:           newTaskID(),
		Date:         now,
		EmployeeID:   emp.ID,
		EmployeeName: emp.Name,
		TaskTypeID:   tt.ID,
		TaskName:     tt.Name,
		TaskCategory: tt.Category,
		Customer:     strings.TrimSpace(in.Customer),
		Description:  strings.TrimSpace(in.Notes),
		StartTime:    now,
	}

	_, err = s.repo.Apply(ctx, s.tables.Tasks, table.Change{
		Upserts: []table.Row{taskRow(s.tables.Tasks.Schema, task)},
		Message: fmt.Sprintf("Start %s", task.ID),
		Precondition: func(current table.RowSet) error {
			for _, row := range current.Rows {
				if row.Key() == task.ID {
					return fmt.Errorf("%w: task id %s already used", ErrInvalidID, task.ID)
				}
				if row.Text(colEmployeeID) == emp.ID && row.Get(colEndTime).IsNull() {
					return fmt.Errorf("%w: %s", ErrAlreadyActive, row.Key())
				}
			}
			return nil
		},
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "task started",
		slog.String("task_id", task.ID),
		slog.String("employee_id", emp.ID),
		slog.String("task_type_id", tt.ID),
	)
	return task, nil
}

// FinishTask は進行中のタスクを完了します。費用は完了時点の時給で算出します。
func (s *Service) FinishTask(ctx context.Context, in FinishTaskInput) (*Task, error) {
	taskID, err := normalizeRequiredID(in.TaskID)
	if err != nil {
		return nil, err
	}

	var override *TaskType
	if in.TaskTypeID != nil && strings.TrimSpace(*in.TaskTypeID) != "" {
		id, err := normalizeRequiredID(*in.TaskTypeID)
		if err != nil {
			return nil, err
		}
		if override, err = s.lookupTaskType(ctx, id); err != nil {
			return nil, err
		}
	}

	employees, err := s.repo.Load(ctx, s.tables.Employees)
	if err != nil {
		return nil, err
	}
	if employees.Degraded {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, employees.Cause)
	}

	now := s.now()
	var finished *Task
	_, err = s.repo.Apply(ctx, s.tables.Tasks, table.Change{
		Message: fmt.Sprintf("Finish %s", taskID),
		Derive: func(current table.RowSet) ([]table.Row, error) {
			row, ok := current.Find(taskID)
			if !ok {
				return nil, ErrTaskNotFound
			}
			task := taskFromRow(row)
			if !task.Active() {
				return nil, ErrAlreadyCompleted
			}
			if task.StartTime.IsZero() || !now.After(task.StartTime) {
				return nil, ErrInvalidTimeRange
			}

			rate, err := s.currentRate(ctx, employees, task.EmployeeID)
			if err != nil {
				return nil, err
			}

			end := now
			minutes := end.Sub(task.StartTime).Minutes()
			cost := math.Round(minutes/60*rate*100) / 100
			task.EndTime = &end
			task.DurationMinutes = &minutes
			task.Cost = &cost

			if override != nil {
				task.TaskTypeID = override.ID
				task.TaskName = override.Name
				task.TaskCategory = override.Category
			}
			if in.Customer != nil {
				task.Customer = strings.TrimSpace(*in.Customer)
			}
			if in.Notes != nil {
				task.Description = strings.TrimSpace(*in.Notes)
			}

			finished = task
			return []table.Row{taskRow(current.Schema, task)}, nil
		},
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "task finished",
		slog.String("task_id", finished.ID),
		slog.Float64("duration_minutes", *finished.DurationMinutes),
	)
	return finished, nil
}

// CancelTask は進行中のタスクを記録ごと取り消します。
func (s *Service) CancelTask(ctx context.Context, in CancelTaskInput) error {
	taskID, err := normalizeRequiredID(in.TaskID)
	if err != nil {
		return err
	}

	_, err = s.repo.Apply(ctx, s.tables.Tasks, table.Change{
		Deletes: []string{taskID},
		Message: fmt.Sprintf("Cancel %s", taskID),
		Precondition: func(current table.RowSet) error {
			row, ok := current.Find(taskID)
			if !ok {
				return ErrTaskNotFound
			}
			if !row.Get(colEndTime).IsNull() {
				return ErrAlreadyCompleted
			}
			return nil
		},
	})
	return err
}

// DeleteTask は記録済みのタスクを削除します。進行中のタスクが一つでも含まれる場合は ErrActiveTaskGuard で全体を拒否します。
func (s *Service) DeleteTask(ctx context.Context, in DeleteTaskInput) error {
	taskIDs, err := deleteTargets(in)
	if err != nil {
		return err
	}

	message := fmt.Sprintf("Delete %s", taskIDs[0])
	if len(taskIDs) > 1 {
		message = fmt.Sprintf("Delete %d tasks", len(taskIDs))
	}

	_, err = s.repo.Apply(ctx, s.tables.Tasks, table.Change{
		Deletes: taskIDs,
		Message: message,
		Precondition: func(current table.RowSet) error {
			for _, id := range taskIDs {
				row, ok := current.Find(id)
				if !ok {
					return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
				}
				if row.Get(colEndTime).IsNull() {
					return fmt.Errorf("%w: %s", ErrActiveTaskGuard, id)
				}
			}
			return nil
		},
	})
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "tasks deleted", slog.Any("task_ids", taskIDs))
	return nil
}

func deleteTargets(in DeleteTaskInput) ([]string, error) {
	raw := in.TaskIDs
	if strings.TrimSpace(in.TaskID) != "" || len(raw) == 0 {
		raw = append([]string{in.TaskID}, raw...)
	}

	seen := make(map[string]struct{}, len(raw))
	ids := make([]string, 0, len(raw))
	for _, r := range raw {
		id, err := normalizeRequiredID(r)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *Service) currentRate(ctx context.Context, employees table.Snapshot, employeeID string) (float64, error) {
	if employees.Degraded {
		return 0, fmt.Errorf("%w: %w", ErrUnavailable, employees.Cause)
	}
	if row, ok := employees.Rows.Find(employeeID); ok {
		return employeeFromRow(row).HourlyRate, nil
	}
	s.logger.WarnContext(ctx, "employee no longer exists; cost recorded as zero",
		slog.String("employee_id", employeeID),
	)
	return 0, nil
}

func (s *Service) lookupEmployee(ctx context.Context, id string) (*Employee, error) {
	snap, err := s.repo.Get(ctx, s.tables.Employees)
	if err != nil {
		return nil, err
	}
	if snap.Degraded {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, snap.Cause)
	}
	if row, ok := snap.Rows.Find(id); ok {
		return employeeFromRow(row), nil
	}
	return nil, ErrEmployeeNotFound
}

func (s *Service) lookupTaskType(ctx context.Context, id string) (*TaskType, error) {
	snap, err := s.repo.Get(ctx, s.tables.TaskTypes)
	if err != nil {
		return nil, err
	}
	if snap.Degraded {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, snap.Cause)
	}
	if row, ok := snap.Rows.Find(id); ok {
		return taskTypeFromRow(row), nil
	}
	return nil, ErrTaskTypeNotFound
}
