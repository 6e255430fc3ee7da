package timesheet

import "errors"

var (
	ErrInvalidID         = errors.New("timesheet: invalid id")
	ErrInvalidName       = errors.New("timesheet: invalid name")
	ErrInvalidHourlyRate = errors.New("timesheet: invalid hourly rate")
	ErrInvalidTaskName   = errors.New("timesheet: invalid task name")
	ErrInvalidStatus     = errors.New("timesheet: invalid status")
	ErrInvalidDateRange  = errors.New("timesheet: invalid date range")
	ErrInvalidTimeRange  = errors.New("timesheet: end time must be after start time")
	ErrInvalidTable      = errors.New("timesheet: unknown table")
	ErrAmbiguousName     = errors.New("timesheet: ambiguous name")
	ErrEmployeeNotFound  = errors.New("timesheet: employee not found")
	ErrTaskTypeNotFound  = errors.New("timesheet: task type not found")
	ErrTaskNotFound      = errors.New("timesheet: task not found")
	ErrAlreadyActive     = errors.New("timesheet: employee already has an active task")
	ErrAlreadyCompleted  = errors.New("timesheet: task already completed")
	ErrActiveTaskGuard   = errors.New("timesheet: active task must be cancelled or finished before deletion")
	ErrUnavailable       = errors.New("timesheet: store unavailable")
)
