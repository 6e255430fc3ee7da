package server

import (
	"bytes"
	"context"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ogurasousui/timesheet-sync/internal/adapters/grpc/timesheetv1"
	"github.com/ogurasousui/timesheet-sync/internal/adapters/store/memory"
	"github.com/ogurasousui/timesheet-sync/internal/core/table"
	"github.com/ogurasousui/timesheet-sync/internal/core/timesheet"
	"github.com/ogurasousui/timesheet-sync/internal/platform/config"
	"github.com/ogurasousui/timesheet-sync/internal/platform/logger"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/test/bufconn"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func startTestServer(t *testing.T, logs *lockedBuffer) *grpc.ClientConn {
	t.Helper()

	store := memory.New()
	rec := table.NewReconciler(store, table.ReconcilerConfig{Backoff: -1}, nil, nil)
	repo := table.NewRepository(store, rec, nil, nil)
	svc := timesheet.NewService(repo, timesheet.NewTables(timesheet.TablePaths{
		Employees: "Data/employees.csv",
		TaskTypes: "Data/Tasklist.csv",
		Tasks:     "Data/tasks.csv",
	}, time.UTC), nil, nil)

	log := logger.New(config.LogConfig{Level: "info", Format: "json"}, logs)
	srv := New("bufnet", svc, time.UTC, log)

	ctx, cancel := context.WithCancel(context.Background())
	lis := bufconn.Listen(1 << 20)
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, lis) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Serve returned error: %v", err)
		}
	})

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestServer_HealthServing(t *testing.T) {
	t.Parallel()

	conn := startTestServer(t, &lockedBuffer{})

	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{
		Service: timesheetv1.ServiceName,
	})
	if err != nil {
		t.Fatalf("Check returned error: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("expected SERVING, got %s", resp.GetStatus())
	}
}

func TestServer_PropagatesRequestID(t *testing.T) {
	t.Parallel()

	logs := &lockedBuffer{}
	conn := startTestServer(t, logs)

	ctx := metadata.AppendToOutgoingContext(context.Background(), RequestIDHeader, "req-abc")
	var header metadata.MD
	if _, err := timesheetv1.NewClient(conn).Call(ctx, timesheetv1.MethodListEmployees, nil, grpc.Header(&header)); err != nil {
		t.Fatalf("ListEmployees returned error: %v", err)
	}

	if got := header.Get(RequestIDHeader); len(got) != 1 || got[0] != "req-abc" {
		t.Fatalf("expected request id header, got %v", got)
	}

	out := logs.String()
	if !strings.Contains(out, `"request_id":"req-abc"`) || !strings.Contains(out, timesheetv1.FullMethod(timesheetv1.MethodListEmployees)) {
		t.Fatalf("expected request log line, got %q", out)
	}
}

func TestServer_GeneratesRequestID(t *testing.T) {
	t.Parallel()

	conn := startTestServer(t, &lockedBuffer{})

	var header metadata.MD
	if _, err := timesheetv1.NewClient(conn).Call(context.Background(), timesheetv1.MethodListCustomers, nil, grpc.Header(&header)); err != nil {
		t.Fatalf("ListCustomers returned error: %v", err)
	}
	if got := header.Get(RequestIDHeader); len(got) != 1 || got[0] == "" {
		t.Fatalf("expected generated request id, got %v", got)
	}
}
