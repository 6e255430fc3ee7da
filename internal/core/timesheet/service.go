package timesheet

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ogurasousui/timesheet-sync/internal/core/table"
)

// Clock は現在時刻を提供します。
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now().UTC()
}

var idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// Service はタイムシートのユースケースをまとめます。
type Service struct {
	repo   Repository
	tables Tables
	clock  Clock
	loc    *time.Location
	logger *slog.Logger
}

// UseCase はタイムシートユースケースの公開インターフェースです。
type UseCase interface {
	ListEmployees(ctx context.Context) (*ListEmployeesResult, error)
	UpsertEmployee(ctx context.Context, in UpsertEmployeeInput) (*UpsertEmployeeResult, error)
	DeleteEmployee(ctx context.Context, in DeleteEmployeeInput) (*WriteResult, error)
	FindEmployeeByName(ctx context.Context, name string) (*Employee, error)
	ListTaskTypes(ctx context.Context) (*ListTaskTypesResult, error)
	UpsertTaskType(ctx context.Context, in UpsertTaskTypeInput) (*UpsertTaskTypeResult, error)
	FindTaskTypeByName(ctx context.Context, name string) (*TaskType, error)
	ListTasks(ctx context.Context, filter TaskFilter) (*ListTasksResult, error)
	ListCustomers(ctx context.Context) (*ListCustomersResult, error)
	StartTask(ctx context.Context, in StartTaskInput) (*Task, error)
	FinishTask(ctx context.Context, in FinishTaskInput) (*Task, error)
	CancelTask(ctx context.Context, in CancelTaskInput) error
	DeleteTask(ctx context.Context, in DeleteTaskInput) error
	Report(ctx context.Context, in ReportInput) (*Report, error)
	Refresh(ctx context.Context)
	CheckTables(ctx context.Context) ([]TableStatus, error)
	SyncTable(ctx context.Context, in SyncTableInput) (*WriteResult, error)
}

// NewService は Service を生成します。
func NewService(repo Repository, tables Tables, clock Clock, logger *slog.Logger) *Service {
	if clock == nil {
		clock = realClock{}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	loc := time.UTC
	if tables.Tasks.Schema != nil && tables.Tasks.Schema.Location != nil {
		loc = tables.Tasks.Schema.Location
	}
	return &Service{repo: repo, tables: tables, clock: clock, loc: loc, logger: logger}
}

// UpsertEmployeeInput は社員の追加・更新時の入力です。ID が空の場合は採番します。
type UpsertEmployeeInput struct {
	ID         string
	Name       string
	Role       string
	HourlyRate float64
}

// UpsertEmployeeResult は社員の追加・更新結果です。
type UpsertEmployeeResult struct {
	Employee *Employee
	WriteResult
}

// DeleteEmployeeInput は社員削除時の入力です。
type DeleteEmployeeInput struct {
	ID string
}

// UpsertTaskTypeInput はタスク種別の追加・更新時の入力です。ID が空の場合は採番します。
type UpsertTaskTypeInput struct {
	ID       string
	Name     string
	Category string
}

// UpsertTaskTypeResult はタスク種別の追加・更新結果です。
type UpsertTaskTypeResult struct {
	TaskType *TaskType
	WriteResult
}

// TaskFilter はタスク一覧の絞り込み条件です。From/To は日付単位で両端を含みます。
type TaskFilter struct {
	EmployeeID string
	TaskTypeID string
	Customer   string
	From       *time.Time
	To         *time.Time
	Status     *TaskStatus
}

// SyncTableInput は手動同期の入力です。
type SyncTableInput struct {
	Table string
}

// ListEmployeesResult は社員一覧です。Degraded はリモート取得に失敗したことを示します。
type ListEmployeesResult struct {
	Employees []*Employee
	Degraded  bool
}

// ListTaskTypesResult はタスク種別一覧です。
type ListTaskTypesResult struct {
	TaskTypes []*TaskType
	Degraded  bool
}

// ListTasksResult はタスク一覧です。
type ListTasksResult struct {
	Tasks    []*Task
	Degraded bool
}

// ListCustomersResult は顧客名の一覧です。
type ListCustomersResult struct {
	Customers []string
	Degraded  bool
}

// TableStatus はテーブルの存在確認結果です。
type TableStatus struct {
	Name   string
	Path   string
	Exists bool
	Err    error
}

// ListEmployees は社員一覧を返します。
func (s *Service) ListEmployees(ctx context.Context) (*ListEmployeesResult, error) {
	snap, err := s.repo.Get(ctx, s.tables.Employees)
	if err != nil {
		return nil, err
	}
	employees := make([]*Employee, 0, snap.Rows.Len())
	for _, row := range snap.Rows.Rows {
		employees = append(employees, employeeFromRow(row))
	}
	return &ListEmployeesResult{Employees: employees, Degraded: snap.Degraded}, nil
}

// UpsertEmployee は社員を主キーで追加または更新します。
func (s *Service) UpsertEmployee(ctx context.Context, in UpsertEmployeeInput) (*UpsertEmployeeResult, error) {
	id, err := normalizeOptionalID(in.ID, newEmployeeID)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, ErrInvalidName
	}
	if in.HourlyRate < 0 || math.IsNaN(in.HourlyRate) || math.IsInf(in.HourlyRate, 0) {
		return nil, ErrInvalidHourlyRate
	}

	emp := &Employee{
		ID:         id,
		Name:       name,
		Role:       strings.TrimSpace(in.Role),
		HourlyRate: in.HourlyRate,
	}
	res, err := s.repo.Apply(ctx, s.tables.Employees, table.Change{
		Upserts: []table.Row{employeeRow(s.tables.Employees.Schema, emp)},
		Message: fmt.Sprintf("Upsert employee %s", emp.ID),
	})
	if err != nil {
		return nil, err
	}
	return &UpsertEmployeeResult{Employee: emp, WriteResult: *writeResult(res)}, nil
}

// DeleteEmployee は社員を削除します。記録済みのタスクは削除しません。
func (s *Service) DeleteEmployee(ctx context.Context, in DeleteEmployeeInput) (*WriteResult, error) {
	id, err := normalizeRequiredID(in.ID)
	if err != nil {
		return nil, err
	}

	res, err := s.repo.Apply(ctx, s.tables.Employees, table.Change{
		Deletes: []string{id},
		Message: fmt.Sprintf("Delete employee %s", id),
		Precondition: func(current table.RowSet) error {
			if _, ok := current.Find(id); !ok {
				return ErrEmployeeNotFound
			}
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	return writeResult(res), nil
}

// FindEmployeeByName は表示名から社員を一意に特定します。
func (s *Service) FindEmployeeByName(ctx context.Context, name string) (*Employee, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidName
	}
	snap, err := s.repo.Get(ctx, s.tables.Employees)
	if err != nil {
		return nil, err
	}
	if snap.Degraded {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, snap.Cause)
	}

	var found *Employee
	for _, row := range snap.Rows.Rows {
		emp := employeeFromRow(row)
		if emp.Name != name {
			continue
		}
		if found != nil {
			return nil, fmt.Errorf("%w: employee %q", ErrAmbiguousName, name)
		}
		found = emp
	}
	if found == nil {
		return nil, ErrEmployeeNotFound
	}
	return found, nil
}

// ListTaskTypes はタスク種別一覧を返します。
func (s *Service) ListTaskTypes(ctx context.Context) (*ListTaskTypesResult, error) {
	snap, err := s.repo.Get(ctx, s.tables.TaskTypes)
	if err != nil {
		return nil, err
	}
	types := make([]*TaskType, 0, snap.Rows.Len())
	for _, row := range snap.Rows.Rows {
		types = append(types, taskTypeFromRow(row))
	}
	return &ListTaskTypesResult{TaskTypes: types, Degraded: snap.Degraded}, nil
}

// UpsertTaskType はタスク種別を主キーで追加または更新します。
func (s *Service) UpsertTaskType(ctx context.Context, in UpsertTaskTypeInput) (*UpsertTaskTypeResult, error) {
	id, err := normalizeOptionalID(in.ID, newTaskTypeID)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, ErrInvalidTaskName
	}
	category := strings.TrimSpace(in.Category)
	if category == "" {
		category = defaultCategory
	}

	tt := &TaskType{ID: id, Name: name, Category: category}
	res, err := s.repo.Apply(ctx, s.tables.TaskTypes, table.Change{
		Upserts: []table.Row{taskTypeRow(s.tables.TaskTypes.Schema, tt)},
		Message: fmt.Sprintf("Upsert task type %s", tt.ID),
	})
	if err != nil {
		return nil, err
	}
	return &UpsertTaskTypeResult{TaskType: tt, WriteResult: *writeResult(res)}, nil
}

// FindTaskTypeByName は表示名からタスク種別を一意に特定します。
func (s *Service) FindTaskTypeByName(ctx context.Context, name string) (*TaskType, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidTaskName
	}
	snap, err := s.repo.Get(ctx, s.tables.TaskTypes)
	if err != nil {
		return nil, err
	}
	if snap.Degraded {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, snap.Cause)
	}

	var found *TaskType
	for _, row := range snap.Rows.Rows {
		tt := taskTypeFromRow(row)
		if tt.Name != name {
			continue
		}
		if found != nil {
			return nil, fmt.Errorf("%w: task type %q", ErrAmbiguousName, name)
		}
		found = tt
	}
	if found == nil {
		return nil, ErrTaskTypeNotFound
	}
	return found, nil
}

// ListTasks は条件に一致するタスクを開始時刻の新しい順に返します。
func (s *Service) ListTasks(ctx context.Context, filter TaskFilter) (*ListTasksResult, error) {
	match, err := s.taskMatcher(filter)
	if err != nil {
		return nil, err
	}

	snap, err := s.repo.Get(ctx, s.tables.Tasks)
	if err != nil {
		return nil, err
	}

	tasks := make([]*Task, 0, snap.Rows.Len())
	for _, row := range snap.Rows.Rows {
		task := taskFromRow(row)
		if match(task) {
			tasks = append(tasks, task)
		}
	}
	sort.SliceStable(tasks, func(i, j int) bool {
		return tasks[i].StartTime.After(tasks[j].StartTime)
	})
	return &ListTasksResult{Tasks: tasks, Degraded: snap.Degraded}, nil
}

// ListCustomers はタスクに記録された顧客名を重複なく昇順で返します。
func (s *Service) ListCustomers(ctx context.Context) (*ListCustomersResult, error) {
	snap, err := s.repo.Get(ctx, s.tables.Tasks)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	customers := make([]string, 0)
	for _, row := range snap.Rows.Rows {
		customer := row.Text(colCustomer)
		if customer == "" {
			continue
		}
		if _, ok := seen[customer]; ok {
			continue
		}
		seen[customer] = struct{}{}
		customers = append(customers, customer)
	}
	sort.Strings(customers)
	return &ListCustomersResult{Customers: customers, Degraded: snap.Degraded}, nil
}

// Refresh は全テーブルのキャッシュを破棄します。
func (s *Service) Refresh(ctx context.Context) {
	s.repo.InvalidateAll()
	s.logger.InfoContext(ctx, "cache invalidated")
}

// CheckTables は各テーブルのファイルがリモートに存在するかを確認します。
func (s *Service) CheckTables(ctx context.Context) ([]TableStatus, error) {
	tables := s.tables.all()
	statuses := make([]TableStatus, len(tables))

	var g errgroup.Group
	for i, t := range tables {
		g.Go(func() error {
			exists, err := s.repo.Exists(ctx, t)
			statuses[i] = TableStatus{Name: t.Name(), Path: t.Path, Exists: exists, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return statuses, nil
}

// SyncTable はリモートの内容を正規形で書き戻します。既に正規形であれば何もしません。
func (s *Service) SyncTable(ctx context.Context, in SyncTableInput) (*WriteResult, error) {
	t, ok := s.tables.byName(strings.TrimSpace(in.Table))
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTable, in.Table)
	}

	res, err := s.repo.Apply(ctx, t, table.Change{
		Message: fmt.Sprintf("Manual sync %s", t.Name()),
		Derive: func(current table.RowSet) ([]table.Row, error) {
			return current.Rows, nil
		},
	})
	if err != nil {
		return nil, err
	}
	return writeResult(res), nil
}

func (s *Service) taskMatcher(filter TaskFilter) (func(*Task) bool, error) {
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, ErrInvalidStatus
	}
	from, to, err := s.dateRange(filter.From, filter.To)
	if err != nil {
		return nil, err
	}
	employeeID := strings.TrimSpace(filter.EmployeeID)
	taskTypeID := strings.TrimSpace(filter.TaskTypeID)
	customer := strings.TrimSpace(filter.Customer)

	return func(task *Task) bool {
		if employeeID != "" && task.EmployeeID != employeeID {
			return false
		}
		if taskTypeID != "" && task.TaskTypeID != taskTypeID {
			return false
		}
		if customer != "" && task.Customer != customer {
			return false
		}
		if filter.Status != nil && task.Status() != *filter.Status {
			return false
		}
		if from != nil || to != nil {
			if task.Date.IsZero() {
				return false
			}
			day := s.dateOf(task.Date)
			if from != nil && day.Before(*from) {
				return false
			}
			if to != nil && day.After(*to) {
				return false
			}
		}
		return true
	}, nil
}

func (s *Service) dateRange(from, to *time.Time) (*time.Time, *time.Time, error) {
	var f, t *time.Time
	if from != nil {
		d := s.dateOf(*from)
		f = &d
	}
	if to != nil {
		d := s.dateOf(*to)
		t = &d
	}
	if f != nil && t != nil && f.After(*t) {
		return nil, nil, ErrInvalidDateRange
	}
	return f, t, nil
}

func (s *Service) dateOf(t time.Time) time.Time {
	y, m, d := t.In(s.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, s.loc)
}

func (s *Service) now() time.Time {
	return s.clock.Now().In(s.loc)
}

func normalizeRequiredID(raw string) (string, error) {
	id := strings.TrimSpace(raw)
	if id == "" || !idPattern.MatchString(id) {
		return "", ErrInvalidID
	}
	return id, nil
}

func normalizeOptionalID(raw string, generate func() string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return generate(), nil
	}
	return normalizeRequiredID(raw)
}

func newEmployeeID() string {
	return "E" + shortHex()
}

func newTaskTypeID() string {
	return "TT_" + shortHex()
}

func newTaskID() string {
	id := uuid.New()
	return "T" + hex.EncodeToString(id[:])
}

func shortHex() string {
	id := uuid.New()
	return strings.ToUpper(hex.EncodeToString(id[:4]))
}
