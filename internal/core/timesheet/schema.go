package timesheet

import (
	"time"

	"github.com/ogurasousui/timesheet-sync/internal/core/table"
)

const (
	TableEmployees = "employees"
	TableTaskTypes = "task_types"
	TableTasks     = "tasks"
)

const (
	colEmployeeID      = "employee_id"
	colName            = "name"
	colRole            = "role"
	colHourlyRate      = "hourly_rate"
	colTaskTypeID      = "task_type_id"
	colTaskName        = "task_name"
	colCategory        = "category"
	colTaskID          = "task_id"
	colDate            = "date"
	colEmployeeName    = "employee_name"
	colTaskCategory    = "task_category"
	colCustomer        = "customer"
	colTaskDescription = "task_description"
	colStartTime       = "start_time"
	colEndTime         = "end_time"
	colDurationMinutes = "duration_minutes"
	colCost            = "cost"
)

const (
	defaultCategory     = "General"
	defaultTaskCategory = "Uncategorized"
)

// TablePaths は各テーブルのリモート上の配置です。Legacy* は任意です。
type TablePaths struct {
	Employees       string
	TaskTypes       string
	Tasks           string
	LegacyEmployees string
	LegacyTaskTypes string
	LegacyTasks     string
}

// Tables は本サービスが扱う三つのテーブル定義です。
type Tables struct {
	Employees table.Table
	TaskTypes table.Table
	Tasks     table.Table
}

// NewTables はテーブル定義を生成します。loc はオフセットの無い時刻の解釈に使われます。
func NewTables(paths TablePaths, loc *time.Location) Tables {
	employees := table.NewSchema(TableEmployees, colEmployeeID, []table.Column{
		{Name: colEmployeeID, Kind: table.KindText},
		{Name: colName, Kind: table.KindText},
		{Name: colRole, Kind: table.KindText},
		{Name: colHourlyRate, Kind: table.KindNumber},
	}, loc, nil)

	taskTypes := table.NewSchema(TableTaskTypes, colTaskTypeID, []table.Column{
		{Name: colTaskTypeID, Kind: table.KindText},
		{Name: colTaskName, Kind: table.KindText},
		{Name: colCategory, Kind: table.KindText, Default: defaultCategory},
	}, loc, nil)

	tasks := table.NewSchema(TableTasks, colTaskID, []table.Column{
		{Name: colTaskID, Kind: table.KindText},
		{Name: colDate, Kind: table.KindDate},
		{Name: colEmployeeID, Kind: table.KindText},
		{Name: colEmployeeName, Kind: table.KindText},
		{Name: colTaskTypeID, Kind: table.KindText},
		{Name: colTaskName, Kind: table.KindText},
		{Name: colTaskCategory, Kind: table.KindText, Default: defaultTaskCategory},
		{Name: colCustomer, Kind: table.KindText},
		{Name: colTaskDescription, Kind: table.KindText},
		{Name: colStartTime, Kind: table.KindTime},
		{Name: colEndTime, Kind: table.KindTime},
		{Name: colDurationMinutes, Kind: table.KindNumber, BlankIsNull: true},
		{Name: colCost, Kind: table.KindNumber, BlankIsNull: true},
	}, loc, deriveTaskDate)

	seed := make([]table.Row, 0, len(DefaultTaskTypes()))
	for _, tt := range DefaultTaskTypes() {
		seed = append(seed, taskTypeRow(taskTypes, tt))
	}

	return Tables{
		Employees: table.Table{Schema: employees, Path: paths.Employees, LegacyPath: paths.LegacyEmployees},
		TaskTypes: table.Table{Schema: taskTypes, Path: paths.TaskTypes, LegacyPath: paths.LegacyTaskTypes, Seed: seed},
		Tasks:     table.Table{Schema: tasks, Path: paths.Tasks, LegacyPath: paths.LegacyTasks},
	}
}

func (t Tables) byName(name string) (table.Table, bool) {
	switch name {
	case TableEmployees:
		return t.Employees, true
	case TableTaskTypes:
		return t.TaskTypes, true
	case TableTasks:
		return t.Tasks, true
	default:
		return table.Table{}, false
	}
}

func (t Tables) all() []table.Table {
	return []table.Table{t.Employees, t.TaskTypes, t.Tasks}
}

// DefaultTaskTypes はタスク種別テーブルが空の場合に書き込まれる初期値です。
func DefaultTaskTypes() []*TaskType {
	return []*TaskType{
		{ID: "TT_SALES_1", Name: "Sales – First Contact Reply", Category: "Sales"},
		{ID: "TT_SALES_2", Name: "Sales – Schedule Site Survey", Category: "Sales"},
		{ID: "TT_SALES_3", Name: "Sales – Record Site Survey Results", Category: "Sales"},
		{ID: "TT_SALES_4", Name: "Sales – Schedule Prep", Category: "Sales"},
		{ID: "TT_SALES_5", Name: "Sales – Schedule Install", Category: "Sales"},
		{ID: "TT_OPS_1", Name: "Construction – Pull Fiber", Category: "Construction"},
		{ID: "TT_OPS_2", Name: "Construction – Lash Fiber", Category: "Construction"},
	}
}

func deriveTaskDate(row table.Row) table.Row {
	if !row.Get(colDate).IsNull() {
		return row
	}
	if start, ok := row.Time(colStartTime); ok {
		return row.Set(colDate, table.Date(start.In(row.Schema().Location)))
	}
	return row
}

func employeeFromRow(row table.Row) *Employee {
	rate, _ := row.Float(colHourlyRate)
	return &Employee{
		ID:         row.Text(colEmployeeID),
		Name:       row.Text(colName),
		Role:       row.Text(colRole),
		HourlyRate: rate,
	}
}

func employeeRow(s *table.Schema, e *Employee) table.Row {
	return s.NewRow().
		Set(colEmployeeID, table.Text(e.ID)).
		Set(colName, table.Text(e.Name)).
		Set(colRole, table.Text(e.Role)).
		Set(colHourlyRate, table.Number(e.HourlyRate))
}

func taskTypeFromRow(row table.Row) *TaskType {
	return &TaskType{
		ID:       row.Text(colTaskTypeID),
		Name:     row.Text(colTaskName),
		Category: row.Text(colCategory),
	}
}

func taskTypeRow(s *table.Schema, tt *TaskType) table.Row {
	return s.NewRow().
		Set(colTaskTypeID, table.Text(tt.ID)).
		Set(colTaskName, table.Text(tt.Name)).
		Set(colCategory, table.Text(tt.Category))
}

func taskFromRow(row table.Row) *Task {
	task := &Task{
		ID:           row.Text(colTaskID),
		EmployeeID:   row.Text(colEmployeeID),
		EmployeeName: row.Text(colEmployeeName),
		TaskTypeID:   row.Text(colTaskTypeID),
		TaskName:     row.Text(colTaskName),
		TaskCategory: row.Text(colTaskCategory),
		Customer:     row.Text(colCustomer),
		Description:  row.Text(colTaskDescription),
	}
	if date, ok := row.Time(colDate); ok {
		task.Date = date
	}
	if start, ok := row.Time(colStartTime); ok {
		task.StartTime = start
	}
	if end, ok := row.Time(colEndTime); ok {
		task.EndTime = &end
	}
	if minutes, ok := row.Float(colDurationMinutes); ok {
		task.DurationMinutes = &minutes
	}
	if cost, ok := row.Float(colCost); ok {
		task.Cost = &cost
	}
	return task
}

func taskRow(s *table.Schema, t *Task) table.Row {
	row := s.NewRow().
		Set(colTaskID, table.Text(t.ID)).
		Set(colEmployeeID, table.Text(t.EmployeeID)).
		Set(colEmployeeName, table.Text(t.EmployeeName)).
		Set(colTaskTypeID, table.Text(t.TaskTypeID)).
		Set(colTaskName, table.Text(t.TaskName)).
		Set(colTaskCategory, table.Text(t.TaskCategory)).
		Set(colCustomer, table.Text(t.Customer)).
		Set(colTaskDescription, table.Text(t.Description))
	if !t.Date.IsZero() {
		row = row.Set(colDate, table.Date(t.Date))
	}
	if !t.StartTime.IsZero() {
		row = row.Set(colStartTime, table.Timestamp(t.StartTime))
	}
	if t.EndTime != nil {
		row = row.Set(colEndTime, table.Timestamp(*t.EndTime))
	}
	if t.DurationMinutes != nil {
		row = row.Set(colDurationMinutes, table.Number(*t.DurationMinutes))
	}
	if t.Cost != nil {
		row = row.Set(colCost, table.Number(*t.Cost))
	}
	return row
}
