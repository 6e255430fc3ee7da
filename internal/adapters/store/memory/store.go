package memory

import (
	"context"
	"strconv"
	"sync"

	"github.com/ogurasousui/timesheet-sync/internal/core/blobstore"
)

type entry struct {
	content []byte
	version uint64
}

// Store はプロセス内で完結する blobstore.Store 実装です。
type Store struct {
	mu    sync.Mutex
	blobs map[string]entry
	seq   uint64
}

// New は空の Store を生成します。
func New() *Store {
	return &Store{blobs: make(map[string]entry)}
}

// Fetch はパスの内容と現在のバージョンを返します。
func (s *Store) Fetch(ctx context.Context, path string) (*blobstore.Blob, error) {
	if err := ctx.Err(); err != nil {
		return nil, &blobstore.TransportError{Op: "fetch", Path: path, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.blobs[path]
	if !ok {
		return nil, blobstore.ErrNotFound
	}
	return &blobstore.Blob{
		Path:    path,
		Content: append([]byte(nil), e.content...),
		Version: strconv.FormatUint(e.version, 10),
	}, nil
}

// Put はバージョンが一致する場合のみ内容を置き換えます。
func (s *Store) Put(ctx context.Context, req blobstore.PutRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &blobstore.TransportError{Op: "put", Path: req.Path, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.blobs[req.Path]
	switch {
	case exists && req.Version == "":
		return "", &blobstore.ConflictError{Path: req.Path}
	case exists && req.Version != strconv.FormatUint(current.version, 10):
		return "", &blobstore.ConflictError{Path: req.Path, Expected: req.Version}
	case !exists && req.Version != "":
		return "", &blobstore.ConflictError{Path: req.Path, Expected: req.Version}
	}

	s.seq++
	s.blobs[req.Path] = entry{content: append([]byte(nil), req.Content...), version: s.seq}
	return strconv.FormatUint(s.seq, 10), nil
}
