package table

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/ogurasousui/timesheet-sync/internal/core/blobstore"
)

// Table はリモート上の一つの CSV ファイルを表します。
type Table struct {
	Schema *Schema
	Path   string
	// LegacyPath は Path が存在しない、または空の場合に取り込む旧配置のファイルです。
	LegacyPath string
	// Seed はテーブルが存在しない、または空の場合に一度だけ書き込まれる初期行です。
	Seed []Row
}

// Name はテーブル名を返します。
func (t Table) Name() string {
	return t.Schema.Name
}

// Snapshot は読み込んだテーブルの状態です。
type Snapshot struct {
	Rows    RowSet
	Version string
	// Degraded は取得に失敗し、最後に成功した内容(または空)を返していることを示します。
	Degraded bool
	Cause    error
}

// Repository はテーブル単位の読み書きを提供します。
type Repository struct {
	store      blobstore.Store
	reconciler *Reconciler
	cache      *Cache
	logger     *slog.Logger

	mu       sync.Mutex
	lastGood map[string]Snapshot
}

// NewRepository は Repository を生成します。cache が nil の場合はキャッシュしません。
func NewRepository(store blobstore.Store, reconciler *Reconciler, cache *Cache, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Repository{
		store:      store,
		reconciler: reconciler,
		cache:      cache,
		logger:     logger,
		lastGood:   make(map[string]Snapshot),
	}
}

// Get はキャッシュ経由でテーブルを読み込みます。
func (r *Repository) Get(ctx context.Context, t Table) (Snapshot, error) {
	return r.cache.GetOrLoad(ctx, t.Name(), func(ctx context.Context) (Snapshot, error) {
		return r.Load(ctx, t)
	})
}

// Load はキャッシュを経由せずリモートから読み込みます。
// 通信失敗時はエラーではなく劣化したスナップショットを返します。
func (r *Repository) Load(ctx context.Context, t Table) (Snapshot, error) {
	blob, err := r.store.Fetch(ctx, t.Path)
	if errors.Is(err, blobstore.ErrNotFound) {
		return r.bootstrap(ctx, t)
	}
	if err != nil {
		return r.degraded(ctx, t, err)
	}

	rows, err := Decode(t.Schema, blob.Content)
	if err != nil {
		return r.degraded(ctx, t, &blobstore.TransportError{Op: "decode", Path: t.Path, Err: err})
	}
	if rows.Len() == 0 && (len(t.Seed) > 0 || t.LegacyPath != "") {
		return r.bootstrap(ctx, t)
	}

	snap := Snapshot{Rows: rows, Version: blob.Version}
	r.remember(t, snap)
	return snap, nil
}

// Save は行をリモートへ upsert します。
func (r *Repository) Save(ctx context.Context, t Table, rows ...Row) (*Result, error) {
	return r.Apply(ctx, t, Change{Upserts: rows})
}

// Delete は主キーで行を削除します。
func (r *Repository) Delete(ctx context.Context, t Table, keys ...string) (*Result, error) {
	return r.Apply(ctx, t, Change{Deletes: keys})
}

// Apply は変更を Reconciler 経由で書き込み、キャッシュを無効化します。
func (r *Repository) Apply(ctx context.Context, t Table, change Change) (*Result, error) {
	res, err := r.reconciler.Apply(ctx, t.Schema, t.Path, change)
	r.cache.Invalidate(t.Name())
	if err != nil {
		return nil, err
	}
	r.remember(t, Snapshot{Rows: res.Rows, Version: res.Version})
	return res, nil
}

// Invalidate はテーブルのキャッシュを破棄します。
func (r *Repository) Invalidate(t Table) {
	r.cache.Invalidate(t.Name())
}

// InvalidateAll は全テーブルのキャッシュを破棄します。
func (r *Repository) InvalidateAll() {
	r.cache.InvalidateAll()
}

// Exists はテーブルのファイルがリモートに存在するかを確認します。
func (r *Repository) Exists(ctx context.Context, t Table) (bool, error) {
	_, err := r.store.Fetch(ctx, t.Path)
	if errors.Is(err, blobstore.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *Repository) bootstrap(ctx context.Context, t Table) (Snapshot, error) {
	rows, message, err := r.initialRows(ctx, t)
	if err != nil {
		return r.degraded(ctx, t, err)
	}
	if len(rows) == 0 {
		snap := Snapshot{Rows: RowSet{Schema: t.Schema, Rows: []Row{}}}
		r.remember(t, snap)
		return snap, nil
	}

	res, err := r.reconciler.Apply(ctx, t.Schema, t.Path, Change{
		Upserts: rows,
		IfEmpty: true,
		Message: message,
	})
	if err != nil {
		return r.degraded(ctx, t, err)
	}
	if res.Outcome == OutcomeWritten {
		r.logger.InfoContext(ctx, "bootstrapped table",
			slog.String("table", t.Name()),
			slog.String("source", message),
			slog.Int("rows", res.Rows.Len()),
		)
	}

	snap := Snapshot{Rows: res.Rows, Version: res.Version}
	r.remember(t, snap)
	return snap, nil
}

func (r *Repository) initialRows(ctx context.Context, t Table) ([]Row, string, error) {
	if t.LegacyPath != "" {
		blob, err := r.store.Fetch(ctx, t.LegacyPath)
		switch {
		case errors.Is(err, blobstore.ErrNotFound):
		case err != nil:
			return nil, "", err
		default:
			legacy, err := Decode(t.Schema, blob.Content)
			if err != nil {
				return nil, "", &blobstore.TransportError{Op: "decode", Path: t.LegacyPath, Err: err}
			}
			if legacy.Len() > 0 {
				return legacy.Rows, "Import " + t.LegacyPath, nil
			}
		}
	}
	return t.Seed, "Seed " + t.Name(), nil
}

func (r *Repository) degraded(ctx context.Context, t Table, cause error) (Snapshot, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Snapshot{}, ctxErr
	}

	r.logger.WarnContext(ctx, "table read degraded",
		slog.String("table", t.Name()),
		slog.String("path", t.Path),
		slog.Any("error", cause),
	)

	r.mu.Lock()
	last, ok := r.lastGood[t.Name()]
	r.mu.Unlock()
	if !ok {
		last = Snapshot{Rows: RowSet{Schema: t.Schema, Rows: []Row{}}}
	}

	last.Degraded = true
	last.Cause = cause
	return last, nil
}

func (r *Repository) remember(t Table, snap Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastGood[t.Name()] = snap
}
