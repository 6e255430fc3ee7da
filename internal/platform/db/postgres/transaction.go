package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type txKey struct{}

// Queryer は pgx.Tx および pgxpool.Pool と互換性のあるクエリ実行インターフェースです。
type Queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// TxBeginner は BeginTx を持つプールまたはコネクションです。
type TxBeginner interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// TransactionManager はブロブの書き込みと履歴の記録を一つのトランザクションにまとめます。
type TransactionManager struct {
	db   TxBeginner
	opts pgx.TxOptions
}

// TxOption は TransactionManager の設定を変更します。
type TxOption func(*TransactionManager)

// WithIsoLevel はトランザクション分離レベルを指定します。
func WithIsoLevel(level pgx.TxIsoLevel) TxOption {
	return func(m *TransactionManager) {
		m.opts.IsoLevel = level
	}
}

// NewTransactionManager は読み書きトランザクションを開始する TransactionManager を生成します。db が nil の場合は nil を返します。
func NewTransactionManager(db TxBeginner, opts ...TxOption) *TransactionManager {
	if db == nil {
		return nil
	}
	m := &TransactionManager{db: db, opts: pgx.TxOptions{AccessMode: pgx.ReadWrite}}
	for _, o := range opts {
		o(m)
	}
	return m
}

// InTx はトランザクション内で fn を実行し、fn がエラーを返さなければコミットします。
// m が nil の場合やコンテキストに既にトランザクションがある場合は fn をそのまま実行します。
func (m *TransactionManager) InTx(ctx context.Context, fn func(context.Context) error) error {
	if fn == nil {
		return fmt.Errorf("postgres: transaction function is required")
	}
	if m == nil {
		return fn(ctx)
	}
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}

	tx, err := m.db.BeginTx(ctx, m.opts)
	if err != nil {
		return fmt.Errorf("postgres: begin tx: %w", err)
	}

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return errors.Join(err, rollback(ctx, tx))
	}

	if err := tx.Commit(ctx); err != nil {
		commitErr := fmt.Errorf("postgres: commit: %w", err)
		if errors.Is(err, pgx.ErrTxClosed) {
			return commitErr
		}
		return errors.Join(commitErr, rollback(ctx, tx))
	}
	return nil
}

func rollback(ctx context.Context, tx pgx.Tx) error {
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("postgres: rollback: %w", err)
	}
	return nil
}

// QueryerFromContext はコンテキスト内にトランザクションが存在すればそれを返し、存在しなければ fallback を返します。
func QueryerFromContext(ctx context.Context, fallback Queryer) Queryer {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return fallback
}
