package timesheet

import (
	"context"

	"github.com/ogurasousui/timesheet-sync/internal/core/table"
)

// Repository はテーブル永続化の抽象です。*table.Repository が実装します。
type Repository interface {
	Get(ctx context.Context, t table.Table) (table.Snapshot, error)
	Load(ctx context.Context, t table.Table) (table.Snapshot, error)
	Apply(ctx context.Context, t table.Table, change table.Change) (*table.Result, error)
	Exists(ctx context.Context, t table.Table) (bool, error)
	InvalidateAll()
}
