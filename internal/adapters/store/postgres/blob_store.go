package postgres

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ogurasousui/timesheet-sync/internal/core/blobstore"
	pgdb "github.com/ogurasousui/timesheet-sync/internal/platform/db/postgres"
)

const (
	uniqueViolationCode      = "23505"
	serializationFailureCode = "40001"
	deadlockDetectedCode     = "40P01"
)

const (
	fetchBlobSQL = `
        SELECT content, version
          FROM blobs
         WHERE path = $1
    `
	insertBlobSQL = `
        INSERT INTO blobs (path, content, version, message, updated_at)
        VALUES ($1, $2, 1, $3, $4)
        ON CONFLICT (path) DO NOTHING
        RETURNING version
    `
	updateBlobSQL = `
        UPDATE blobs
           SET content = $1,
               version = version + 1,
               message = $2,
               updated_at = $3
         WHERE path = $4 AND version = $5
        RETURNING version
    `
	insertRevisionSQL = `
        INSERT INTO blob_revisions (path, version, message, committed_at)
        VALUES ($1, $2, $3, $4)
    `
)

// BlobStore は PostgreSQL の blobs テーブルを利用した blobstore.Store 実装です。
// version 列を楽観ロックのトークンとして使います。
type BlobStore struct {
	pool pgdb.Queryer
	tx   *pgdb.TransactionManager
}

// NewBlobStore は BlobStore を生成します。tx が nil の場合は履歴の書き込みをトランザクションで囲みません。
func NewBlobStore(pool pgdb.Queryer, tx *pgdb.TransactionManager) *BlobStore {
	return &BlobStore{pool: pool, tx: tx}
}

// Fetch はパスの内容と現在のバージョンを返します。
func (s *BlobStore) Fetch(ctx context.Context, path string) (*blobstore.Blob, error) {
	exec := pgdb.QueryerFromContext(ctx, s.pool)
	row := exec.QueryRow(ctx, fetchBlobSQL, path)

	blob, err := scanBlob(row, path)
	if err != nil {
		return nil, translatePgError("fetch", path, "", err)
	}
	return blob, nil
}

// Put はバージョンが一致する場合のみ内容を置き換え、履歴を記録します。
func (s *BlobStore) Put(ctx context.Context, req blobstore.PutRequest) (string, error) {
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
	now := time.Now().UTC()

	var version int64
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		exec := pgdb.QueryerFromContext(ctx, s.pool)

		var row pgx.Row
		if req.Version == "" {
			row = exec.QueryRow(ctx, insertBlobSQL, req.Path, req.Content, message, now)
		} else {
			row = exec.QueryRow(ctx, updateBlobSQL, req.Content, message, now, req.Path, expected)
		}
		if err := row.Scan(&version); err != nil {
			return translatePgError("put", req.Path, req.Version, err)
		}

		if _, err := exec.Exec(ctx, insertRevisionSQL, req.Path, version, message, now); err != nil {
			return translatePgError("put", req.Path, req.Version, err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, blobstore.ErrConflict) || errors.Is(err, blobstore.ErrTransport) {
			return "", err
		}
		return "", &blobstore.TransportError{Op: "put", Path: req.Path, Err: err}
	}

	return strconv.FormatInt(version, 10), nil
}

func scanBlob(row pgx.Row, path string) (*blobstore.Blob, error) {
	var (
		content []byte
		version int64
	)
	if err := row.Scan(&content, &version); err != nil {
		return nil, err
	}
	if content == nil {
		content = []byte{}
	}
	return &blobstore.Blob{
		Path:    path,
		Content: content,
		Version: strconv.FormatInt(version, 10),
	}, nil
}

// translatePgError は pgx のエラーを blobstore のエラーに変換します。
// 書き込み時の ErrNoRows は条件付き更新・作成が行われなかったことを意味します。
func translatePgError(op, path, expected string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		if op == "fetch" {
			return blobstore.ErrNotFound
		}
		return &blobstore.ConflictError{Path: path, Expected: expected}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolationCode:
			return &blobstore.ConflictError{Path: path}
		case serializationFailureCode, deadlockDetectedCode:
			return &blobstore.ConflictError{Path: path, Expected: expected}
		}
	}

	return &blobstore.TransportError{Op: op, Path: path, Err: err}
}
