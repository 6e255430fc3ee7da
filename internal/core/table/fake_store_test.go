package table

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/ogurasousui/timesheet-sync/internal/core/blobstore"
)

type stubClock struct {
	mu  sync.Mutex
	now time.Time
}

func (s *stubClock) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

func (s *stubClock) Advance(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = s.now.Add(d)
}

type storedBlob struct {
	content []byte
	version int
}

type fakeStore struct {
	mu       sync.Mutex
	blobs    map[string]storedBlob
	seq      int
	fetchErr error
	putErrs  []error
	// beforePut は Put の判定前に一度だけ呼び出されます。
	beforePut func()
	fetches   int
	puts      int
	writes    int
}

func newFakeStore() *fakeStore {
	return &fakeStore{blobs: make(map[string]storedBlob)}
}

func (s *fakeStore) Fetch(_ context.Context, path string) (*blobstore.Blob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches++
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	b, ok := s.blobs[path]
	if !ok {
		return nil, blobstore.ErrNotFound
	}
	return &blobstore.Blob{
		Path:    path,
		Content: append([]byte(nil), b.content...),
		Version: strconv.Itoa(b.version),
	}, nil
}

func (s *fakeStore) Put(_ context.Context, req blobstore.PutRequest) (string, error) {
	s.mu.Lock()
	hook := s.beforePut
	s.beforePut = nil
	s.mu.Unlock()
	if hook != nil {
		hook()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.puts++
	if len(s.putErrs) > 0 {
		err := s.putErrs[0]
		s.putErrs = s.putErrs[1:]
		return "", err
	}

	current, exists := s.blobs[req.Path]
	switch {
	case exists && req.Version == "":
		return "", &blobstore.ConflictError{Path: req.Path}
	case exists && req.Version != strconv.Itoa(current.version):
		return "", &blobstore.ConflictError{Path: req.Path, Expected: req.Version}
	case !exists && req.Version != "":
		return "", &blobstore.ConflictError{Path: req.Path, Expected: req.Version}
	}
	return s.writeLocked(req.Path, req.Content), nil
}

func (s *fakeStore) write(path string, content []byte) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(path, content)
}

func (s *fakeStore) writeLocked(path string, content []byte) string {
	s.seq++
	s.writes++
	s.blobs[path] = storedBlob{content: append([]byte(nil), content...), version: s.seq}
	return strconv.Itoa(s.seq)
}

func (s *fakeStore) content(path string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blobs[path].content
}

func (s *fakeStore) setFetchErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchErr = err
}

func (s *fakeStore) counts() (fetches, puts, writes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches, s.puts, s.writes
}

type observation struct {
	table    string
	outcome  Outcome
	attempts int
}

type fakeObserver struct {
	mu   sync.Mutex
	seen []observation
}

func (o *fakeObserver) ObserveSync(_ context.Context, table string, outcome Outcome, attempts int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seen = append(o.seen, observation{table: table, outcome: outcome, attempts: attempts})
}

func itemSchema() *Schema {
	return NewSchema("items", "id", []Column{
		{Name: "id", Kind: KindText},
		{Name: "name", Kind: KindText},
		{Name: "category", Kind: KindText, Default: "General"},
		{Name: "amount", Kind: KindNumber, BlankIsNull: true},
		{Name: "rate", Kind: KindNumber},
		{Name: "started_at", Kind: KindTime},
		{Name: "day", Kind: KindDate},
	}, time.UTC, func(row Row) Row {
		if !row.Get("day").IsNull() {
			return row
		}
		if started, ok := row.Time("started_at"); ok {
			return row.Set("day", Date(started))
		}
		return row
	})
}

func item(s *Schema, id, name string) Row {
	return s.NewRow().Set("id", Text(id)).Set("name", Text(name))
}

func keys(rs RowSet) []string {
	out := make([]string, 0, rs.Len())
	for _, row := range rs.Rows {
		out = append(out, row.Key())
	}
	return out
}

func seedContent(s *Schema, rows ...Row) []byte {
	return Encode(RowSet{Schema: s, Rows: NormalizeRows(s, rows)})
}
