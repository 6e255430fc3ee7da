package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/ogurasousui/timesheet-sync/internal/core/blobstore"
)

func TestStore_FetchMissing(t *testing.T) {
	t.Parallel()

	_, err := New().Fetch(context.Background(), "Data/tasks.csv")
	if !errors.Is(err, blobstore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_OptimisticConcurrency(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := New()

	v1, err := store.Put(ctx, blobstore.PutRequest{Path: "a.csv", Content: []byte("id\n")})
	if err != nil {
		t.Fatalf("Put returned error: %v", err)
	}

	_, err = store.Put(ctx, blobstore.PutRequest{Path: "a.csv", Content: []byte("id\nx\n")})
	if !errors.Is(err, blobstore.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists on blind create, got %v", err)
	}

	v2, err := store.Put(ctx, blobstore.PutRequest{Path: "a.csv", Content: []byte("id\nx\n"), Version: v1})
	if err != nil {
		t.Fatalf("Put returned error: %v", err)
	}
	if v2 == v1 {
		t.Fatalf("expected version to change")
	}

	_, err = store.Put(ctx, blobstore.PutRequest{Path: "a.csv", Content: []byte("id\ny\n"), Version: v1})
	if !errors.Is(err, blobstore.ErrConflict) || errors.Is(err, blobstore.ErrAlreadyExists) {
		t.Fatalf("expected stale-version conflict, got %v", err)
	}

	blob, err := store.Fetch(ctx, "a.csv")
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if string(blob.Content) != "id\nx\n" || blob.Version != v2 {
		t.Fatalf("unexpected blob: %q at %s", blob.Content, blob.Version)
	}
}

func TestStore_CancelledContextIsTransportError(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New().Fetch(ctx, "a.csv")
	if !errors.Is(err, blobstore.ErrTransport) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected transport error wrapping cancellation, got %v", err)
	}
}
