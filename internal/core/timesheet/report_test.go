package timesheet

import (
	"context"
	"testing"
	"time"
)

func TestReport_AggregatesCompletedTasks(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0)
	ctx := context.Background()
	f.employee(t, "E1", "Alice", 20)
	f.employee(t, "E2", "Bob", 40)

	run := func(employeeID, taskTypeID, customer string, d time.Duration) {
		t.Helper()
		task, err := f.svc.StartTask(ctx, StartTaskInput{EmployeeID: employeeID, TaskTypeID: taskTypeID, Customer: customer})
		if err != nil {
			t.Fatalf("StartTask returned error: %v", err)
		}
		f.clock.Advance(d)
		if _, err := f.svc.FinishTask(ctx, FinishTaskInput{TaskID: task.ID}); err != nil {
			t.Fatalf("FinishTask returned error: %v", err)
		}
	}

	// 2024-01-01 は月曜日
	run("E1", "TT_SALES_1", "Acme", 90*time.Minute)
	f.clock.Advance(9 * 24 * time.Hour)
	run("E2", "TT_OPS_1", "", 30*time.Minute)
	if _, err := f.svc.StartTask(ctx, StartTaskInput{EmployeeID: "E1", TaskTypeID: "TT_SALES_1"}); err != nil {
		t.Fatalf("StartTask returned error: %v", err)
	}

	report, err := f.svc.Report(ctx, ReportInput{})
	if err != nil {
		t.Fatalf("Report returned error: %v", err)
	}

	if report.Totals.Tasks != 2 || report.Totals.Minutes != 120 || report.Totals.Hours != 2 || report.Totals.Cost != 50 {
		t.Fatalf("unexpected totals: %+v", report.Totals)
	}
	if len(report.ByWeek) != 2 || report.ByWeek[0].Key != "2024-01-01" || report.ByWeek[1].Key != "2024-01-08" {
		t.Fatalf("unexpected weeks: %+v", report.ByWeek)
	}
	if len(report.ByEmployee) != 2 || report.ByEmployee[1].Label != "Bob" || report.ByEmployee[1].Totals.Cost != 20 {
		t.Fatalf("unexpected employee groups: %+v", report.ByEmployee)
	}
	if len(report.ByCustomer) != 2 || report.ByCustomer[0].Label != unspecifiedLabel || report.ByCustomer[1].Key != "Acme" {
		t.Fatalf("unexpected customer groups: %+v", report.ByCustomer)
	}

	from := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	filtered, err := f.svc.Report(ctx, ReportInput{From: &from, EmployeeID: "E2"})
	if err != nil {
		t.Fatalf("Report returned error: %v", err)
	}
	if filtered.Totals.Tasks != 1 || filtered.Totals.Cost != 20 {
		t.Fatalf("unexpected filtered totals: %+v", filtered.Totals)
	}
}

func TestWeekStart(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"2024-01-01": "2024-01-01",
		"2024-01-07": "2024-01-01",
		"2024-01-10": "2024-01-08",
	}
	for in, want := range cases {
		day, _ := time.Parse("2006-01-02", in)
		if got := weekStart(day).Format("2006-01-02"); got != want {
			t.Fatalf("weekStart(%s) = %s, want %s", in, got, want)
		}
	}
}
