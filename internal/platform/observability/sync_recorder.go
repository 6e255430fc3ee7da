package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ogurasousui/timesheet-sync/internal/core/table"
)

// SyncRecorder はテーブル書き込みの結果をカウンターへ記録します。
type SyncRecorder struct {
	writes   metric.Int64Counter
	attempts metric.Int64Counter
}

var _ table.Observer = (*SyncRecorder)(nil)

// NewSyncRecorder は meter 上にカウンターを登録します。
func NewSyncRecorder(meter metric.Meter) (*SyncRecorder, error) {
	writes, err := meter.Int64Counter(
		"timesheet.sync.writes",
		metric.WithDescription("Table write outcomes by table"),
	)
	if err != nil {
		return nil, fmt.Errorf("observability: create writes counter: %w", err)
	}

	attempts, err := meter.Int64Counter(
		"timesheet.sync.attempts",
		metric.WithDescription("Fetch-merge-write attempts spent per table"),
	)
	if err != nil {
		return nil, fmt.Errorf("observability: create attempts counter: %w", err)
	}

	return &SyncRecorder{writes: writes, attempts: attempts}, nil
}

// ObserveSync は table.Observer を実装します。
func (r *SyncRecorder) ObserveSync(ctx context.Context, tableName string, outcome table.Outcome, attempts int) {
	tableAttr := attribute.String("table", tableName)
	r.writes.Add(ctx, 1, metric.WithAttributes(tableAttr, attribute.String("outcome", outcome.String())))
	if attempts > 0 {
		r.attempts.Add(ctx, int64(attempts), metric.WithAttributes(tableAttr))
	}
}
