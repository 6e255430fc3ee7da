package cmd

import (
	"bytes"
	"context"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ogurasousui/timesheet-sync/internal/adapters/store/memory"
	"github.com/ogurasousui/timesheet-sync/internal/core/table"
	"github.com/ogurasousui/timesheet-sync/internal/core/timesheet"
	"github.com/ogurasousui/timesheet-sync/internal/platform/config"
)

type stubClock struct {
	mu  sync.Mutex
	now time.Time
}

func (s *stubClock) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

func (s *stubClock) Advance(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = s.now.Add(d)
}

type harness struct {
	store   *memory.Store
	clock   *stubClock
	backend string
	opened  int
	closed  int
}

func newHarness() *harness {
	return &harness{
		store: memory.New(),
		clock: &stubClock{now: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)},
	}
}

func (h *harness) factory(_ context.Context, cfg *config.Config, log *slog.Logger) (*session, error) {
	h.opened++
	h.backend = cfg.Store.Backend
	rec := table.NewReconciler(h.store, table.ReconcilerConfig{MaxAttempts: 3, Backoff: -1}, nil, log)
	repo := table.NewRepository(h.store, rec, nil, log)
	tables := timesheet.NewTables(timesheet.TablePaths{
		Employees: cfg.Tables.Employees,
		TaskTypes: cfg.Tables.TaskTypes,
		Tasks:     cfg.Tables.Tasks,
	}, cfg.Timesheet.Location)
	return &session{
		svc:   timesheet.NewService(repo, tables, h.clock, log),
		loc:   cfg.Timesheet.Location,
		close: func() { h.closed++ },
	}, nil
}

func (h *harness) run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	root := newRootCommand(h.factory)
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"--backend", "memory"}, args...))
	err := root.Execute()
	return out.String(), err
}

func (h *harness) mustRun(t *testing.T, args ...string) string {
	t.Helper()

	out, err := h.run(t, args...)
	if err != nil {
		t.Fatalf("%v returned error: %v", args, err)
	}
	return out
}

var startedPattern = regexp.MustCompile(`started (T[0-9a-f]+) for Alice`)

func TestCLI_TimerFlow(t *testing.T) {
	t.Parallel()

	h := newHarness()

	out := h.mustRun(t, "employees", "upsert", "--id", "E1", "--name", "Alice", "--rate", "20")
	if !strings.Contains(out, "employee E1 saved") {
		t.Fatalf("unexpected upsert output: %q", out)
	}
	out = h.mustRun(t, "employees", "upsert", "--id", "E1", "--name", "Alice", "--rate", "20")
	if !strings.Contains(out, "employee E1 unchanged") {
		t.Fatalf("unexpected repeated upsert output: %q", out)
	}

	out = h.mustRun(t, "employees", "list")
	if !strings.Contains(out, "Alice") || !strings.Contains(out, "20") {
		t.Fatalf("unexpected employee list: %q", out)
	}

	out = h.mustRun(t, "tasks", "start", "--employee-name", "Alice", "--task-type", "TT_SALES_1")
	m := startedPattern.FindStringSubmatch(out)
	if m == nil {
		t.Fatalf("unexpected start output: %q", out)
	}
	taskID := m[1]

	if _, err := h.run(t, "tasks", "start", "--employee", "E1", "--task-type", "TT_SALES_1"); err == nil {
		t.Fatal("expected error when starting a second timer")
	}

	h.clock.Advance(30 * time.Minute)

	out = h.mustRun(t, "tasks", "finish", taskID, "--customer", "Acme")
	if !strings.Contains(out, "30 minutes, cost 10") {
		t.Fatalf("unexpected finish output: %q", out)
	}

	out = h.mustRun(t, "tasks", "list", "--status", "completed", "--from", "2024-01-01")
	if !strings.Contains(out, taskID) || !strings.Contains(out, "Acme") {
		t.Fatalf("unexpected task list: %q", out)
	}

	out = h.mustRun(t, "report")
	if !strings.Contains(out, "Tasks: 1  Hours: 0.5  Cost: 10") || !strings.Contains(out, "By week") {
		t.Fatalf("unexpected report: %q", out)
	}

	out = h.mustRun(t, "customers")
	if strings.TrimSpace(out) != "Acme" {
		t.Fatalf("unexpected customers: %q", out)
	}

	if h.opened != h.closed {
		t.Fatalf("sessions not closed: opened=%d closed=%d", h.opened, h.closed)
	}
}

func TestCLI_DeleteSeveralTasks(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.mustRun(t, "employees", "upsert", "--id", "E1", "--name", "Alice", "--rate", "20")

	var ids []string
	for i := 0; i < 2; i++ {
		m := startedPattern.FindStringSubmatch(h.mustRun(t, "tasks", "start", "--employee", "E1", "--task-type", "TT_SALES_1"))
		if m == nil {
			t.Fatal("start output did not contain a task id")
		}
		h.clock.Advance(10 * time.Minute)
		h.mustRun(t, "tasks", "finish", m[1])
		ids = append(ids, m[1])
	}

	out := h.mustRun(t, "tasks", "delete", ids[0], ids[1])
	if !strings.Contains(out, "deleted "+ids[0]+", "+ids[1]) {
		t.Fatalf("unexpected delete output: %q", out)
	}
	out = h.mustRun(t, "tasks", "list")
	if strings.Contains(out, ids[0]) || strings.Contains(out, ids[1]) {
		t.Fatalf("expected tasks removed, got %q", out)
	}
	if _, err := h.run(t, "tasks", "delete"); err == nil {
		t.Fatal("expected error without task ids")
	}
}

func TestCLI_AdminCommands(t *testing.T) {
	t.Parallel()

	h := newHarness()

	out := h.mustRun(t, "check")
	if !strings.Contains(out, "employees") || !strings.Contains(out, "missing") {
		t.Fatalf("unexpected check output: %q", out)
	}

	h.mustRun(t, "task-types", "list")
	out = h.mustRun(t, "sync", "task_types")
	if !strings.Contains(out, "table task_types unchanged") {
		t.Fatalf("unexpected sync output: %q", out)
	}

	if _, err := h.run(t, "sync", "payroll"); err == nil {
		t.Fatal("expected error for unknown table")
	}
	if _, err := h.run(t, "tasks", "list", "--from", "01/02/2024"); err == nil {
		t.Fatal("expected error for invalid date")
	}
	if h.opened != h.closed {
		t.Fatalf("sessions not closed after errors: opened=%d closed=%d", h.opened, h.closed)
	}
}

func TestCLI_BackendFromEnvironment(t *testing.T) {
	t.Setenv("TIMESHEET_BACKEND", "memory")
	t.Setenv("TIMESHEET_TIMEZONE", "America/New_York")

	h := newHarness()
	root := newRootCommand(h.factory)
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"employees", "list"})
	if err := root.Execute(); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if h.backend != config.BackendMemory {
		t.Fatalf("expected backend from environment, got %q", h.backend)
	}
}

func TestCLI_MissingBackend(t *testing.T) {
	t.Parallel()

	h := newHarness()
	root := newRootCommand(h.factory)
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"employees", "list"})
	if err := root.Execute(); err == nil {
		t.Fatal("expected error without a backend")
	}
	if h.opened != 0 {
		t.Fatalf("factory should not be called, got %d", h.opened)
	}
}
