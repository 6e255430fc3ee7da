package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ogurasousui/timesheet-sync/internal/core/blobstore"
)

const schema = `
CREATE TABLE IF NOT EXISTS blobs (
    path TEXT PRIMARY KEY,
    content BLOB NOT NULL,
    version INTEGER NOT NULL,
    message TEXT NOT NULL DEFAULT '',
    updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS blob_revisions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    path TEXT NOT NULL,
    version INTEGER NOT NULL,
    message TEXT NOT NULL,
    committed_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_blob_revisions_path ON blob_revisions(path);
`

// Store は単一マシン向けに SQLite ファイルへ保存する blobstore.Store 実装です。
type Store struct {
	db *sql.DB
}

// Open は SQLite データベースを開き、スキーマを作成します。
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: set busy timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close はデータベースを閉じます。
func (s *Store) Close() error {
	return s.db.Close()
}

// Fetch はパスの内容と現在のバージョンを返します。
func (s *Store) Fetch(ctx context.Context, path string) (*blobstore.Blob, error) {
	var (
		content []byte
		version int64
	)
	err := s.db.QueryRowContext(ctx, `SELECT content, version FROM blobs WHERE path = ?`, path).Scan(&content, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, blobstore.ErrNotFound
	}
	if err != nil {
		return nil, &blobstore.TransportError{Op: "fetch", Path: path, Err: err}
	}
	if content == nil {
		content = []byte{}
	}
	return &blobstore.Blob{Path: path, Content: content, Version: strconv.FormatInt(version, 10)}, nil
}

// Put はバージョンが一致する場合のみ内容を置き換え、履歴を記録します。
func (s *Store) Put(ctx context.Context, req blobstore.PutRequest) (string, error) {
	var expected int64
	if req.Version != "" {
		v, err := strconv.ParseInt(req.Version, 10, 64)
		if err != nil {
			return "", &blobstore.ConflictError{Path: req.Path, Expected: req.Version}
		}
		expected = v
	}
	message := req.Message
	if message == "" {
		message = "Update " + req.Path
	}
	content := req.Content
	if content == nil {
		content = []byte{}
	}
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", &blobstore.TransportError{Op: "put", Path: req.Path, Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	var res sql.Result
	version := expected + 1
	if req.Version == "" {
		res, err = tx.ExecContext(ctx, `
			INSERT INTO blobs (path, content, version, message, updated_at)
			VALUES (?, ?, 1, ?, ?)
			ON CONFLICT(path) DO NOTHING
		`, req.Path, content, message, now)
	} else {
		res, err = tx.ExecContext(ctx, `
			UPDATE blobs
			   SET content = ?, version = version + 1, message = ?, updated_at = ?
			 WHERE path = ? AND version = ?
		`, content, message, now, req.Path, expected)
	}
	if err != nil {
		return "", &blobstore.TransportError{Op: "put", Path: req.Path, Err: err}
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return "", &blobstore.TransportError{Op: "put", Path: req.Path, Err: err}
	}
	if affected == 0 {
		return "", &blobstore.ConflictError{Path: req.Path, Expected: req.Version}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO blob_revisions (path, version, message, committed_at)
		VALUES (?, ?, ?, ?)
	`, req.Path, version, message, now); err != nil {
		return "", &blobstore.TransportError{Op: "put", Path: req.Path, Err: err}
	}

	if err := tx.Commit(); err != nil {
		return "", &blobstore.TransportError{Op: "put", Path: req.Path, Err: err}
	}
	return strconv.FormatInt(version, 10), nil
}
