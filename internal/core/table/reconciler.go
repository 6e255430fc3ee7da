package table

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/ogurasousui/timesheet-sync/internal/core/blobstore"
)

const (
	defaultMaxAttempts = 3
	defaultBackoff     = 200 * time.Millisecond
)

// Outcome は同期書き込みの結果種別です。
type Outcome int

const (
	OutcomeNoOp Outcome = iota
	OutcomeWritten
	OutcomeFailed
	// OutcomeRejected は Precondition または Derive が変更を拒否したことを示します。
	OutcomeRejected
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNoOp:
		return "noop"
	case OutcomeWritten:
		return "written"
	case OutcomeRejected:
		return "rejected"
	default:
		return "failed"
	}
}

// Change は呼び出し元の変更内容です。
type Change struct {
	Upserts []Row
	// Deletes は削除する主キーです。取得したリモートの行に対して適用されます。
	Deletes []string
	Message string
	// IfEmpty が true の場合、リモートに行が無いときのみ書き込みます。
	IfEmpty bool
	// Precondition は取得直後のリモート状態に対して毎回評価されます。
	// エラーを返すと再試行せずにそのまま呼び出し元へ返却します。
	Precondition func(current RowSet) error
	// Derive は取得直後のリモート状態から追加の upsert 行を算出します。
	// エラーの扱いは Precondition と同じです。
	Derive func(current RowSet) ([]Row, error)
}

// Result は Apply の結果です。
type Result struct {
	Outcome  Outcome
	Version  string
	Rows     RowSet
	Attempts int
	Deleted  int
}

type rejection struct {
	err error
}

func (r rejection) Error() string { return r.err.Error() }

func (r rejection) Unwrap() error { return r.err }

// Observer は同期結果の観測フックです。
type Observer interface {
	ObserveSync(ctx context.Context, table string, outcome Outcome, attempts int)
}

type noopObserver struct{}

func (noopObserver) ObserveSync(context.Context, string, Outcome, int) {}

// ReconcilerConfig は Reconciler の設定です。ゼロ値は既定値で補われます。
type ReconcilerConfig struct {
	MaxAttempts int
	// Backoff が負の場合は待機しません。
	Backoff time.Duration
}

// Reconciler はリモートの最新状態に行単位で変更をマージしてから書き込みます。
type Reconciler struct {
	store       blobstore.Store
	maxAttempts int
	backoff     time.Duration
	observer    Observer
	logger      *slog.Logger
}

// NewReconciler は Reconciler を生成します。
func NewReconciler(store blobstore.Store, cfg ReconcilerConfig, observer Observer, logger *slog.Logger) *Reconciler {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.Backoff == 0 {
		cfg.Backoff = defaultBackoff
	}
	if observer == nil {
		observer = noopObserver{}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Reconciler{
		store:       store,
		maxAttempts: cfg.MaxAttempts,
		backoff:     cfg.Backoff,
		observer:    observer,
		logger:      logger,
	}
}

// Apply は変更をリモートへ反映します。
// 競合・通信失敗は MaxAttempts まで全体をやり直し、超えた場合は ErrWriteFailed を返します。
func (r *Reconciler) Apply(ctx context.Context, schema *Schema, path string, change Change) (*Result, error) {
	change.Upserts = keyed(NormalizeRows(schema, change.Upserts))

	var lastErr error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		if attempt > 1 {
			if err := sleepContext(ctx, r.backoff); err != nil {
				lastErr = err
				break
			}
		}

		res, err := r.attempt(ctx, schema, path, change)
		if err == nil {
			res.Attempts = attempt
			r.observer.ObserveSync(ctx, schema.Name, res.Outcome, attempt)
			return res, nil
		}
		var rej rejection
		if errors.As(err, &rej) {
			r.observer.ObserveSync(ctx, schema.Name, OutcomeRejected, attempt)
			return nil, rej.err
		}
		if !blobstore.IsRetryable(err) {
			r.observer.ObserveSync(ctx, schema.Name, OutcomeFailed, attempt)
			return nil, err
		}

		lastErr = err
		r.logger.WarnContext(ctx, "sync attempt failed",
			slog.String("table", schema.Name),
			slog.String("path", path),
			slog.Int("attempt", attempt),
			slog.Any("error", err),
		)
	}

	r.observer.ObserveSync(ctx, schema.Name, OutcomeFailed, r.maxAttempts)
	return nil, fmt.Errorf("%w: %s: %w", ErrWriteFailed, path, lastErr)
}

func (r *Reconciler) attempt(ctx context.Context, schema *Schema, path string, change Change) (*Result, error) {
	current, raw, version, exists, err := r.fetch(ctx, schema, path)
	if err != nil {
		return nil, err
	}

	if change.Precondition != nil {
		if err := change.Precondition(current); err != nil {
			return nil, rejection{err: err}
		}
	}

	if change.IfEmpty && current.Len() > 0 {
		return &Result{Outcome: OutcomeNoOp, Version: version, Rows: current}, nil
	}

	upserts := change.Upserts
	if change.Derive != nil {
		derived, err := change.Derive(current)
		if err != nil {
			return nil, rejection{err: err}
		}
		upserts = append(append([]Row(nil), upserts...), keyed(NormalizeRows(schema, derived))...)
	}

	merged, deleted := merge(current, upserts, change.Deletes)
	content := Encode(merged)

	if exists && bytes.Equal(content, raw) {
		return &Result{Outcome: OutcomeNoOp, Version: version, Rows: current}, nil
	}
	if !exists && merged.Len() == 0 {
		return &Result{Outcome: OutcomeNoOp, Rows: current}, nil
	}

	message := change.Message
	if message == "" {
		message = fmt.Sprintf("Update %s", schema.Name)
	}

	newVersion, err := r.store.Put(ctx, blobstore.PutRequest{
		Path:    path,
		Content: content,
		Version: version,
		Message: message,
	})
	if err != nil {
		return nil, err
	}

	return &Result{Outcome: OutcomeWritten, Version: newVersion, Rows: merged, Deleted: deleted}, nil
}

func (r *Reconciler) fetch(ctx context.Context, schema *Schema, path string) (RowSet, []byte, string, bool, error) {
	blob, err := r.store.Fetch(ctx, path)
	if errors.Is(err, blobstore.ErrNotFound) {
		return RowSet{Schema: schema, Rows: []Row{}}, nil, "", false, nil
	}
	if err != nil {
		return RowSet{}, nil, "", false, err
	}

	rows, err := Decode(schema, blob.Content)
	if err != nil {
		return RowSet{}, nil, "", false, &blobstore.TransportError{Op: "decode", Path: path, Err: err}
	}
	return rows, blob.Content, blob.Version, true, nil
}

func merge(current RowSet, upserts []Row, deletes []string) (RowSet, int) {
	remove := make(map[string]struct{}, len(deletes))
	for _, key := range deletes {
		remove[key] = struct{}{}
	}

	rows := make([]Row, 0, len(current.Rows)+len(upserts))
	position := make(map[string]int, len(current.Rows))
	deleted := 0
	for _, row := range current.Rows {
		if _, ok := remove[row.Key()]; ok {
			deleted++
			continue
		}
		position[row.Key()] = len(rows)
		rows = append(rows, row)
	}

	for _, up := range upserts {
		key := up.Key()
		if i, ok := position[key]; ok {
			rows[i] = up
			continue
		}
		position[key] = len(rows)
		rows = append(rows, up)
	}

	return RowSet{Schema: current.Schema, Rows: rows}, deleted
}

func keyed(rows []Row) []Row {
	out := rows[:0]
	for _, row := range rows {
		if strings.TrimSpace(row.Key()) != "" {
			out = append(out, row)
		}
	}
	return out
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
