package timesheet

import (
	"time"

	"github.com/ogurasousui/timesheet-sync/internal/core/table"
)

// TaskStatus はタスクのライフサイクル状態です。
type TaskStatus string

const (
	TaskStatusActive    TaskStatus = "active"
	TaskStatusCompleted TaskStatus = "completed"
)

// Valid は定義済みのステータスかどうかを返します。
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusActive, TaskStatusCompleted:
		return true
	default:
		return false
	}
}

// Employee は作業者を表します。
type Employee struct {
	ID         string
	Name       string
	Role       string
	HourlyRate float64
}

// TaskType はタスクライブラリの項目を表します。
type TaskType struct {
	ID       string
	Name     string
	Category string
}

// Task は記録された作業区間です。社員とタスク種別は開始時点の内容を複製して保持します。
type Task struct {
	ID              string
	Date            time.Time
	EmployeeID      string
	EmployeeName    string
	TaskTypeID      string
	TaskName        string
	TaskCategory    string
	Customer        string
	Description     string
	StartTime       time.Time
	EndTime         *time.Time
	DurationMinutes *float64
	Cost            *float64
}

// Active は終了時刻が未設定かどうかを返します。
func (t *Task) Active() bool {
	return t.EndTime == nil
}

// Status はタスクの状態を返します。
func (t *Task) Status() TaskStatus {
	if t.Active() {
		return TaskStatusActive
	}
	return TaskStatusCompleted
}

// WriteResult は書き込み系ユースケースの結果です。変更が無かった場合は Outcome が NoOp になります。
type WriteResult struct {
	Outcome table.Outcome
	Version string
}

// Changed はリモートに書き込まれたかどうかを返します。
func (r WriteResult) Changed() bool {
	return r.Outcome == table.OutcomeWritten
}

func writeResult(res *table.Result) *WriteResult {
	return &WriteResult{Outcome: res.Outcome, Version: res.Version}
}
