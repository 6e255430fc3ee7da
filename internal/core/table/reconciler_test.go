package table

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"testing"

	"golang.org/x/sync/errgroup"

	"github.com/ogurasousui/timesheet-sync/internal/core/blobstore"
)

const itemsPath = "Data/items.csv"

func newTestReconciler(store blobstore.Store, observer Observer, attempts int) *Reconciler {
	return NewReconciler(store, ReconcilerConfig{MaxAttempts: attempts, Backoff: -1}, observer, nil)
}

func decodeStored(t *testing.T, store *fakeStore, s *Schema) RowSet {
	t.Helper()
	rs, err := Decode(s, store.content(itemsPath))
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	return rs
}

func TestReconciler_CreatesMissingTable(t *testing.T) {
	t.Parallel()

	s := itemSchema()
	store := newFakeStore()
	rec := newTestReconciler(store, nil, 3)

	res, err := rec.Apply(context.Background(), s, itemsPath, Change{Upserts: []Row{item(s, "a", "Widget")}})
	if err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	if res.Outcome != OutcomeWritten || res.Attempts != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if got := keys(decodeStored(t, store, s)); !reflect.DeepEqual(got, []string{"a"}) {
		t.Fatalf("unexpected stored keys: %v", got)
	}
}

func TestReconciler_PreservesConcurrentRows(t *testing.T) {
	t.Parallel()

	s := itemSchema()
	store := newFakeStore()
	store.write(itemsPath, seedContent(s, item(s, "a", "Widget")))
	store.beforePut = func() {
		store.write(itemsPath, seedContent(s, item(s, "a", "Widget"), item(s, "b", "Other writer")))
	}

	observer := &fakeObserver{}
	rec := newTestReconciler(store, observer, 3)

	res, err := rec.Apply(context.Background(), s, itemsPath, Change{Upserts: []Row{item(s, "c", "Mine")}})
	if err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	if res.Attempts != 2 {
		t.Fatalf("expected one retry after conflict, got %d attempts", res.Attempts)
	}
	if got := keys(decodeStored(t, store, s)); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("expected concurrent row to survive, got %v", got)
	}
	if len(observer.seen) != 1 || observer.seen[0].outcome != OutcomeWritten || observer.seen[0].attempts != 2 {
		t.Fatalf("unexpected observations: %+v", observer.seen)
	}
}

func TestReconciler_NoOpWhenNothingChanges(t *testing.T) {
	t.Parallel()

	s := itemSchema()
	store := newFakeStore()
	store.write(itemsPath, seedContent(s, item(s, "a", "Widget"), item(s, "b", "Gadget")))

	rec := newTestReconciler(store, nil, 3)
	res, err := rec.Apply(context.Background(), s, itemsPath, Change{Upserts: []Row{item(s, "b", "Gadget")}})
	if err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	if res.Outcome != OutcomeNoOp {
		t.Fatalf("expected no-op, got %v", res.Outcome)
	}
	if _, puts, _ := store.counts(); puts != 0 {
		t.Fatalf("expected no put for a no-op, got %d", puts)
	}
	if res.Version != "1" {
		t.Fatalf("expected current version to be reported, got %q", res.Version)
	}
}

func TestReconciler_NoOpForMissingTableWithoutRows(t *testing.T) {
	t.Parallel()

	s := itemSchema()
	store := newFakeStore()
	rec := newTestReconciler(store, nil, 3)

	res, err := rec.Apply(context.Background(), s, itemsPath, Change{Deletes: []string{"a"}})
	if err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	if res.Outcome != OutcomeNoOp {
		t.Fatalf("expected no-op, got %v", res.Outcome)
	}
	if _, puts, _ := store.counts(); puts != 0 {
		t.Fatalf("expected no put, got %d", puts)
	}
}

func TestReconciler_ConflictTwiceThenSucceeds(t *testing.T) {
	t.Parallel()

	s := itemSchema()
	store := newFakeStore()
	store.write(itemsPath, seedContent(s, item(s, "a", "Widget")))
	store.putErrs = []error{
		&blobstore.ConflictError{Path: itemsPath, Expected: "1"},
		&blobstore.ConflictError{Path: itemsPath, Expected: "1"},
	}

	rec := newTestReconciler(store, nil, 3)
	res, err := rec.Apply(context.Background(), s, itemsPath, Change{Upserts: []Row{item(s, "b", "Gadget")}})
	if err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	if res.Outcome != OutcomeWritten || res.Attempts != 3 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if fetches, _, _ := store.counts(); fetches != 3 {
		t.Fatalf("expected a fresh fetch per attempt, got %d", fetches)
	}
}

func TestReconciler_ExhaustedRetriesReturnWriteFailed(t *testing.T) {
	t.Parallel()

	s := itemSchema()
	store := newFakeStore()
	store.putErrs = []error{
		&blobstore.ConflictError{Path: itemsPath},
		&blobstore.TransportError{Op: "put", Path: itemsPath, StatusCode: 502},
		&blobstore.ConflictError{Path: itemsPath, Expected: "9"},
	}

	observer := &fakeObserver{}
	rec := newTestReconciler(store, observer, 3)
	_, err := rec.Apply(context.Background(), s, itemsPath, Change{Upserts: []Row{item(s, "a", "Widget")}})
	if !errors.Is(err, ErrWriteFailed) {
		t.Fatalf("expected ErrWriteFailed, got %v", err)
	}
	if !errors.Is(err, blobstore.ErrConflict) {
		t.Fatalf("expected last cause to be preserved, got %v", err)
	}
	if _, _, writes := store.counts(); writes != 0 {
		t.Fatalf("expected nothing written, got %d", writes)
	}
	if len(observer.seen) != 1 || observer.seen[0].outcome != OutcomeFailed {
		t.Fatalf("unexpected observations: %+v", observer.seen)
	}
}

func TestReconciler_RetriesTransportErrorOnFetch(t *testing.T) {
	t.Parallel()

	s := itemSchema()
	store := newFakeStore()
	store.setFetchErr(&blobstore.TransportError{Op: "fetch", Path: itemsPath, StatusCode: 503})

	rec := newTestReconciler(store, nil, 2)
	_, err := rec.Apply(context.Background(), s, itemsPath, Change{Upserts: []Row{item(s, "a", "Widget")}})
	if !errors.Is(err, ErrWriteFailed) || !errors.Is(err, blobstore.ErrTransport) {
		t.Fatalf("expected ErrWriteFailed wrapping transport error, got %v", err)
	}
	if fetches, _, _ := store.counts(); fetches != 2 {
		t.Fatalf("expected 2 fetch attempts, got %d", fetches)
	}
}

func TestReconciler_PreconditionAbortsWithoutRetry(t *testing.T) {
	t.Parallel()

	s := itemSchema()
	store := newFakeStore()
	store.write(itemsPath, seedContent(s, item(s, "a", "Widget")))

	errTaken := errors.New("taken")
	observer := &fakeObserver{}
	rec := newTestReconciler(store, observer, 3)
	_, err := rec.Apply(context.Background(), s, itemsPath, Change{
		Upserts: []Row{item(s, "a", "Replacement")},
		Precondition: func(current RowSet) error {
			if _, ok := current.Find("a"); ok {
				return errTaken
			}
			return nil
		},
	})
	if !errors.Is(err, errTaken) {
		t.Fatalf("expected precondition error, got %v", err)
	}
	if errors.Is(err, ErrWriteFailed) {
		t.Fatalf("precondition error must not be reported as write failure")
	}
	if fetches, puts, _ := store.counts(); fetches != 1 || puts != 0 {
		t.Fatalf("expected single fetch and no put, got %d/%d", fetches, puts)
	}
	if len(observer.seen) != 1 || observer.seen[0].outcome != OutcomeRejected {
		t.Fatalf("expected a single rejected observation, got %+v", observer.seen)
	}
}

func TestReconciler_DeriveErrorIsRejectedNotRetried(t *testing.T) {
	t.Parallel()

	s := itemSchema()
	store := newFakeStore()
	store.write(itemsPath, seedContent(s, item(s, "a", "Widget")))

	// 取得失敗と同じ型でも Derive が返したものは再試行しない
	unavailable := fmt.Errorf("rates unavailable: %w", &blobstore.TransportError{Op: "fetch", Path: "rates"})
	observer := &fakeObserver{}
	rec := newTestReconciler(store, observer, 3)
	_, err := rec.Apply(context.Background(), s, itemsPath, Change{
		Derive: func(RowSet) ([]Row, error) { return nil, unavailable },
	})
	if !errors.Is(err, blobstore.ErrTransport) || errors.Is(err, ErrWriteFailed) {
		t.Fatalf("expected derive error returned as is, got %v", err)
	}
	if fetches, _, _ := store.counts(); fetches != 1 {
		t.Fatalf("expected single fetch, got %d", fetches)
	}
	if len(observer.seen) != 1 || observer.seen[0].outcome != OutcomeRejected || observer.seen[0].outcome.String() != "rejected" {
		t.Fatalf("unexpected observations: %+v", observer.seen)
	}
}

func TestReconciler_DeletesApplyToFreshRemote(t *testing.T) {
	t.Parallel()

	s := itemSchema()
	store := newFakeStore()
	store.write(itemsPath, seedContent(s, item(s, "a", "A"), item(s, "b", "B"), item(s, "c", "C")))
	store.beforePut = func() {
		store.write(itemsPath, seedContent(s, item(s, "a", "A"), item(s, "b", "B"), item(s, "c", "C"), item(s, "d", "D")))
	}

	rec := newTestReconciler(store, nil, 3)
	res, err := rec.Apply(context.Background(), s, itemsPath, Change{Deletes: []string{"b"}})
	if err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	if res.Deleted != 1 {
		t.Fatalf("expected 1 deleted row, got %d", res.Deleted)
	}
	if got := keys(decodeStored(t, store, s)); !reflect.DeepEqual(got, []string{"a", "c", "d"}) {
		t.Fatalf("unexpected stored keys: %v", got)
	}
}

func TestReconciler_IfEmptySkipsPopulatedTable(t *testing.T) {
	t.Parallel()

	s := itemSchema()
	store := newFakeStore()
	store.write(itemsPath, seedContent(s, item(s, "x", "Existing")))

	rec := newTestReconciler(store, nil, 3)
	res, err := rec.Apply(context.Background(), s, itemsPath, Change{
		Upserts: []Row{item(s, "a", "Seed")},
		IfEmpty: true,
	})
	if err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	if res.Outcome != OutcomeNoOp {
		t.Fatalf("expected no-op, got %v", res.Outcome)
	}
	if got := keys(res.Rows); !reflect.DeepEqual(got, []string{"x"}) {
		t.Fatalf("expected remote rows in result, got %v", got)
	}
}

func TestReconciler_ConcurrentWritersLoseNothing(t *testing.T) {
	t.Parallel()

	const writers = 8

	s := itemSchema()
	store := newFakeStore()
	rec := newTestReconciler(store, nil, writers+2)

	var g errgroup.Group
	for i := 0; i < writers; i++ {
		id := fmt.Sprintf("w-%d", i)
		g.Go(func() error {
			_, err := rec.Apply(context.Background(), s, itemsPath, Change{Upserts: []Row{item(s, id, "writer")}})
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}

	got := keys(decodeStored(t, store, s))
	sort.Strings(got)
	want := make([]string, 0, writers)
	for i := 0; i < writers; i++ {
		want = append(want, fmt.Sprintf("w-%d", i))
	}
	sort.Strings(want)
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected all writers to persist, got %v", got)
	}
}

func TestReconciler_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	s := itemSchema()
	store := newFakeStore()
	store.putErrs = []error{&blobstore.ConflictError{Path: itemsPath}}

	ctx, cancel := context.WithCancel(context.Background())
	rec := NewReconciler(store, ReconcilerConfig{MaxAttempts: 3}, nil, nil)
	store.beforePut = cancel

	_, err := rec.Apply(ctx, s, itemsPath, Change{Upserts: []Row{item(s, "a", "Widget")}})
	if !errors.Is(err, ErrWriteFailed) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation to surface, got %v", err)
	}
}

func TestReconciler_RewritesNonCanonicalContentOnce(t *testing.T) {
	t.Parallel()

	s := itemSchema()
	store := newFakeStore()
	store.write(itemsPath, []byte("name,id,rate\nWidget,a,1.50\n"))
	rec := newTestReconciler(store, nil, 3)
	change := Change{Upserts: []Row{item(s, "a", "Widget").Set("rate", Number(1.5))}}

	first, err := rec.Apply(context.Background(), s, itemsPath, change)
	if err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	if first.Outcome != OutcomeWritten {
		t.Fatalf("expected canonical rewrite, got %v", first.Outcome)
	}

	second, err := rec.Apply(context.Background(), s, itemsPath, change)
	if err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	if second.Outcome != OutcomeNoOp || second.Version != first.Version {
		t.Fatalf("expected no-op at %q, got %v at %q", first.Version, second.Outcome, second.Version)
	}
}

func TestReconciler_DeriveSeesFreshRemote(t *testing.T) {
	t.Parallel()

	s := itemSchema()
	store := newFakeStore()
	store.write(itemsPath, seedContent(s, item(s, "a", "v1")))
	store.beforePut = func() {
		store.write(itemsPath, seedContent(s, item(s, "a", "v2")))
	}

	var seen []string
	rec := newTestReconciler(store, nil, 3)
	_, err := rec.Apply(context.Background(), s, itemsPath, Change{
		Derive: func(current RowSet) ([]Row, error) {
			row, ok := current.Find("a")
			if !ok {
				return nil, errors.New("missing")
			}
			seen = append(seen, row.Text("name"))
			return []Row{row.Set("rate", Number(3))}, nil
		},
	})
	if err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	if !reflect.DeepEqual(seen, []string{"v1", "v2"}) {
		t.Fatalf("expected derive to run per attempt on fresh rows, got %v", seen)
	}
	row, _ := decodeStored(t, store, s).Find("a")
	if row.Text("name") != "v2" || row.Text("rate") != "3" {
		t.Fatalf("unexpected stored row: %v", row.Strings())
	}
}
