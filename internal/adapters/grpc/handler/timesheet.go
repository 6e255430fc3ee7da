package handler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ogurasousui/timesheet-sync/internal/adapters/grpc/timesheetv1"
	"github.com/ogurasousui/timesheet-sync/internal/core/timesheet"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const dateLayout = "2006-01-02"

// TimesheetGrpcHandler は TimesheetService の gRPC 実装です。
type TimesheetGrpcHandler struct {
	svc timesheet.UseCase
	loc *time.Location
}

var _ timesheetv1.TimesheetServiceServer = (*TimesheetGrpcHandler)(nil)

// NewTimesheetGrpcHandler は TimesheetGrpcHandler を生成します。loc は日付指定の解釈に使われます。
func NewTimesheetGrpcHandler(svc timesheet.UseCase, loc *time.Location) *TimesheetGrpcHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &TimesheetGrpcHandler{svc: svc, loc: loc}
}

// ListEmployees は社員一覧を返します。
func (h *TimesheetGrpcHandler) ListEmployees(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	result, err := h.svc.ListEmployees(ctx)
	if err != nil {
		return nil, toStatusError(err)
	}

	items := make([]any, 0, len(result.Employees))
	for _, e := range result.Employees {
		items = append(items, employeeFields(e))
	}
	return newStruct(map[string]any{"employees": items, "degraded": result.Degraded})
}

// UpsertEmployee は社員を追加・更新します。
func (h *TimesheetGrpcHandler) UpsertEmployee(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f, err := requestFields(req)
	if err != nil {
		return nil, err
	}
	rate, err := f.number("hourly_rate")
	if err != nil {
		return nil, err
	}

	result, err := h.svc.UpsertEmployee(ctx, timesheet.UpsertEmployeeInput{
		ID:         f.str("employee_id"),
		Name:       f.str("name"),
		Role:       f.str("role"),
		HourlyRate: rate,
	})
	if err != nil {
		return nil, toStatusError(err)
	}

	out := writeFields(result.WriteResult)
	out["employee"] = employeeFields(result.Employee)
	return newStruct(out)
}

// DeleteEmployee は社員を削除します。記録済みのタスクは残ります。
func (h *TimesheetGrpcHandler) DeleteEmployee(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f, err := requestFields(req)
	if err != nil {
		return nil, err
	}

	result, err := h.svc.DeleteEmployee(ctx, timesheet.DeleteEmployeeInput{ID: f.str("employee_id")})
	if err != nil {
		return nil, toStatusError(err)
	}
	return newStruct(writeFields(*result))
}

// ListTaskTypes はタスク種別一覧を返します。
func (h *TimesheetGrpcHandler) ListTaskTypes(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	result, err := h.svc.ListTaskTypes(ctx)
	if err != nil {
		return nil, toStatusError(err)
	}

	items := make([]any, 0, len(result.TaskTypes))
	for _, tt := range result.TaskTypes {
		items = append(items, taskTypeFields(tt))
	}
	return newStruct(map[string]any{"task_types": items, "degraded": result.Degraded})
}

// UpsertTaskType はタスク種別を追加・更新します。
func (h *TimesheetGrpcHandler) UpsertTaskType(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f, err := requestFields(req)
	if err != nil {
		return nil, err
	}

	result, err := h.svc.UpsertTaskType(ctx, timesheet.UpsertTaskTypeInput{
		ID:       f.str("task_type_id"),
		Name:     f.str("task_name"),
		Category: f.str("category"),
	})
	if err != nil {
		return nil, toStatusError(err)
	}

	out := writeFields(result.WriteResult)
	out["task_type"] = taskTypeFields(result.TaskType)
	return newStruct(out)
}

// ListTasks は条件に一致するタスクを返します。
func (h *TimesheetGrpcHandler) ListTasks(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f, err := requestFields(req)
	if err != nil {
		return nil, err
	}
	from, err := f.date("from", h.loc)
	if err != nil {
		return nil, err
	}
	to, err := f.date("to", h.loc)
	if err != nil {
		return nil, err
	}

	filter := timesheet.TaskFilter{
		EmployeeID: f.str("employee_id"),
		TaskTypeID: f.str("task_type_id"),
		Customer:   f.str("customer"),
		From:       from,
		To:         to,
	}
	if raw := strings.TrimSpace(f.str("status")); raw != "" {
		st := timesheet.TaskStatus(strings.ToLower(raw))
		filter.Status = &st
	}

	result, err := h.svc.ListTasks(ctx, filter)
	if err != nil {
		return nil, toStatusError(err)
	}

	items := make([]any, 0, len(result.Tasks))
	for _, task := range result.Tasks {
		items = append(items, taskFields(task))
	}
	return newStruct(map[string]any{"tasks": items, "degraded": result.Degraded})
}

// ListCustomers は記録済みの顧客名を返します。
func (h *TimesheetGrpcHandler) ListCustomers(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	result, err := h.svc.ListCustomers(ctx)
	if err != nil {
		return nil, toStatusError(err)
	}

	items := make([]any, 0, len(result.Customers))
	for _, c := range result.Customers {
		items = append(items, c)
	}
	return newStruct(map[string]any{"customers": items, "degraded": result.Degraded})
}

// StartTask はタイマーを開始します。ID の代わりに社員名・タスク名でも指定できます。
func (h *TimesheetGrpcHandler) StartTask(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f, err := requestFields(req)
	if err != nil {
		return nil, err
	}

	employeeID := f.str("employee_id")
	if strings.TrimSpace(employeeID) == "" && f.str("employee_name") != "" {
		e, err := h.svc.FindEmployeeByName(ctx, f.str("employee_name"))
		if err != nil {
			return nil, toStatusError(err)
		}
		employeeID = e.ID
	}

	taskTypeID := f.str("task_type_id")
	if strings.TrimSpace(taskTypeID) == "" && f.str("task_name") != "" {
		tt, err := h.svc.FindTaskTypeByName(ctx, f.str("task_name"))
		if err != nil {
			return nil, toStatusError(err)
		}
		taskTypeID = tt.ID
	}

	task, err := h.svc.StartTask(ctx, timesheet.StartTaskInput{
		EmployeeID: employeeID,
		TaskTypeID: taskTypeID,
		Customer:   f.str("customer"),
		Notes:      f.str("notes"),
	})
	if err != nil {
		return nil, toStatusError(err)
	}
	return newStruct(map[string]any{"task": taskFields(task)})
}

// FinishTask はタイマーを終了し、所要時間と費用を確定します。
func (h *TimesheetGrpcHandler) FinishTask(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f, err := requestFields(req)
	if err != nil {
		return nil, err
	}

	task, err := h.svc.FinishTask(ctx, timesheet.FinishTaskInput{
		TaskID:     f.str("task_id"),
		TaskTypeID: f.optionalStr("task_type_id"),
		Customer:   f.optionalStr("customer"),
		Notes:      f.optionalStr("notes"),
	})
	if err != nil {
		return nil, toStatusError(err)
	}
	return newStruct(map[string]any{"task": taskFields(task)})
}

// CancelTask は進行中のタスクを取り消します。
func (h *TimesheetGrpcHandler) CancelTask(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f, err := requestFields(req)
	if err != nil {
		return nil, err
	}
	if err := h.svc.CancelTask(ctx, timesheet.CancelTaskInput{TaskID: f.str("task_id")}); err != nil {
		return nil, toStatusError(err)
	}
	return &structpb.Struct{}, nil
}

// DeleteTask は完了済みのタスクを削除します。task_ids を指定すると一回の書き込みでまとめて削除します。
func (h *TimesheetGrpcHandler) DeleteTask(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f, err := requestFields(req)
	if err != nil {
		return nil, err
	}
	taskIDs, err := f.strList("task_ids")
	if err != nil {
		return nil, err
	}
	if err := h.svc.DeleteTask(ctx, timesheet.DeleteTaskInput{TaskID: f.str("task_id"), TaskIDs: taskIDs}); err != nil {
		return nil, toStatusError(err)
	}
	return &structpb.Struct{}, nil
}

// GetReport は完了済みタスクの集計を返します。
func (h *TimesheetGrpcHandler) GetReport(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f, err := requestFields(req)
	if err != nil {
		return nil, err
	}
	from, err := f.date("from", h.loc)
	if err != nil {
		return nil, err
	}
	to, err := f.date("to", h.loc)
	if err != nil {
		return nil, err
	}

	report, err := h.svc.Report(ctx, timesheet.ReportInput{
		From:       from,
		To:         to,
		EmployeeID: f.str("employee_id"),
		Customer:   f.str("customer"),
		TaskTypeID: f.str("task_type_id"),
	})
	if err != nil {
		return nil, toStatusError(err)
	}

	return newStruct(map[string]any{
		"totals":      totalsFields(report.Totals),
		"by_employee": groupFields(report.ByEmployee),
		"by_customer": groupFields(report.ByCustomer),
		"by_task":     groupFields(report.ByTaskType),
		"by_week":     groupFields(report.ByWeek),
		"degraded":    report.Degraded,
	})
}

// Refresh はキャッシュを破棄します。
func (h *TimesheetGrpcHandler) Refresh(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	h.svc.Refresh(ctx)
	return &structpb.Struct{}, nil
}

// CheckTables は各テーブルファイルの存在を確認します。
func (h *TimesheetGrpcHandler) CheckTables(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	statuses, err := h.svc.CheckTables(ctx)
	if err != nil {
		return nil, toStatusError(err)
	}

	items := make([]any, 0, len(statuses))
	for _, st := range statuses {
		item := map[string]any{"name": st.Name, "path": st.Path, "exists": st.Exists}
		if st.Err != nil {
			item["error"] = st.Err.Error()
		}
		items = append(items, item)
	}
	return newStruct(map[string]any{"tables": items})
}

// SyncTable はテーブルを正規形で書き戻します。
func (h *TimesheetGrpcHandler) SyncTable(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f, err := requestFields(req)
	if err != nil {
		return nil, err
	}

	result, err := h.svc.SyncTable(ctx, timesheet.SyncTableInput{Table: f.str("table")})
	if err != nil {
		return nil, toStatusError(err)
	}
	return newStruct(writeFields(*result))
}

type fields map[string]*structpb.Value

func requestFields(req *structpb.Struct) (fields, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	return req.GetFields(), nil
}

func (f fields) str(key string) string {
	return f[key].GetStringValue()
}

func (f fields) optionalStr(key string) *string {
	v, ok := f[key]
	if !ok {
		return nil
	}
	if _, isNull := v.GetKind().(*structpb.Value_NullValue); isNull {
		return nil
	}
	s := v.GetStringValue()
	return &s
}

func (f fields) strList(key string) ([]string, error) {
	v, ok := f[key]
	if !ok {
		return nil, nil
	}
	switch kind := v.GetKind().(type) {
	case *structpb.Value_NullValue:
		return nil, nil
	case *structpb.Value_ListValue:
		out := make([]string, 0, len(kind.ListValue.GetValues()))
		for _, item := range kind.ListValue.GetValues() {
			str, isStr := item.GetKind().(*structpb.Value_StringValue)
			if !isStr {
				return nil, status.Error(codes.InvalidArgument, fmt.Sprintf("%s: expected a list of strings", key))
			}
			out = append(out, str.StringValue)
		}
		return out, nil
	default:
		return nil, status.Error(codes.InvalidArgument, fmt.Sprintf("%s: expected a list of strings", key))
	}
}

func (f fields) number(key string) (float64, error) {
	v, ok := f[key]
	if !ok {
		return 0, nil
	}
	switch kind := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		return kind.NumberValue, nil
	case *structpb.Value_StringValue:
		n, err := strconv.ParseFloat(strings.TrimSpace(kind.StringValue), 64)
		if err != nil {
			return 0, status.Error(codes.InvalidArgument, fmt.Sprintf("%s: not a number", key))
		}
		return n, nil
	case *structpb.Value_NullValue:
		return 0, nil
	default:
		return 0, status.Error(codes.InvalidArgument, fmt.Sprintf("%s: not a number", key))
	}
}

func (f fields) date(key string, loc *time.Location) (*time.Time, error) {
	raw := strings.TrimSpace(f.str(key))
	if raw == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(dateLayout, raw, loc)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, fmt.Sprintf("%s: invalid format, expected YYYY-MM-DD", key))
	}
	return &t, nil
}

func newStruct(m map[string]any) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return s, nil
}

func writeFields(res timesheet.WriteResult) map[string]any {
	return map[string]any{
		"outcome": res.Outcome.String(),
		"version": res.Version,
	}
}

func employeeFields(e *timesheet.Employee) map[string]any {
	if e == nil {
		return nil
	}
	return map[string]any{
		"employee_id": e.ID,
		"name":        e.Name,
		"role":        e.Role,
		"hourly_rate": e.HourlyRate,
	}
}

func taskTypeFields(tt *timesheet.TaskType) map[string]any {
	if tt == nil {
		return nil
	}
	return map[string]any{
		"task_type_id": tt.ID,
		"task_name":    tt.Name,
		"category":     tt.Category,
	}
}

func taskFields(t *timesheet.Task) map[string]any {
	out := map[string]any{
		"task_id":          t.ID,
		"employee_id":      t.EmployeeID,
		"employee_name":    t.EmployeeName,
		"task_type_id":     t.TaskTypeID,
		"task_name":        t.TaskName,
		"task_category":    t.TaskCategory,
		"customer":         t.Customer,
		"task_description": t.Description,
		"status":           string(t.Status()),
		"date":             nil,
		"start_time":       nil,
		"end_time":         nil,
		"duration_minutes": nil,
		"cost":             nil,
	}
	if !t.Date.IsZero() {
		out["date"] = t.Date.Format(dateLayout)
	}
	if !t.StartTime.IsZero() {
		out["start_time"] = t.StartTime.Format(time.RFC3339Nano)
	}
	if t.EndTime != nil {
		out["end_time"] = t.EndTime.Format(time.RFC3339Nano)
	}
	if t.DurationMinutes != nil {
		out["duration_minutes"] = *t.DurationMinutes
	}
	if t.Cost != nil {
		out["cost"] = *t.Cost
	}
	return out
}

func totalsFields(t timesheet.ReportTotals) map[string]any {
	return map[string]any{
		"tasks":   t.Tasks,
		"minutes": t.Minutes,
		"hours":   t.Hours,
		"cost":    t.Cost,
	}
}

func groupFields(groups []timesheet.ReportGroup) []any {
	out := make([]any, 0, len(groups))
	for _, g := range groups {
		item := totalsFields(g.Totals)
		item["key"] = g.Key
		item["label"] = g.Label
		out = append(out, item)
	}
	return out
}
