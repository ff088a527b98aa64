package dispatch

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/barterli/barterd/internal/bus"
	"github.com/barterli/barterd/internal/store"
	"go.uber.org/zap"
)

func testDispatcher(t *testing.T) (*Dispatcher, *store.DB, *bus.Bus) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	b := bus.New()
	d := New(db, b, zap.NewNop())
	d.Start(context.Background())
	t.Cleanup(d.Stop)
	return d, db, b
}

// recorder collects callback invocations on channels.
type recorder struct {
	inserts chan int64
	updates chan int64
	deletes chan int64
	queries chan *store.ResultSet
	errs    chan error
	cookies chan any
	panic   bool
}

func newRecorder() *recorder {
	return &recorder{
		inserts: make(chan int64, 64),
		updates: make(chan int64, 64),
		deletes: make(chan int64, 64),
		queries: make(chan *store.ResultSet, 64),
		errs:    make(chan error, 64),
		cookies: make(chan any, 64),
	}
}

func (r *recorder) OnInsertComplete(token int, cookie any, rowID int64) {
	r.cookies <- cookie
	r.inserts <- rowID
	if r.panic {
		panic("callback exploded")
	}
}
func (r *recorder) OnUpdateComplete(token int, cookie any, affected int64) { r.updates <- affected }
func (r *recorder) OnDeleteComplete(token int, cookie any, affected int64) { r.deletes <- affected }
func (r *recorder) OnQueryComplete(token int, cookie any, result *store.ResultSet) {
	r.queries <- result
}
func (r *recorder) OnError(token int, cookie any, err error) { r.errs <- err }

func waitFor[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for %s", what)
		panic("unreachable")
	}
}

func TestInsertDeliversExactlyOneCallback(t *testing.T) {
	d, _, _ := testDispatcher(t)
	rec := newRecorder()

	d.Insert(1, "ctx", store.TableBooksSearch, map[string]any{"book_id": "42", "title": "Dune"}, false, rec)

	rowID := waitFor(t, rec.inserts, "insert callback")
	if rowID <= 0 {
		t.Errorf("row id = %d, want positive", rowID)
	}
	cookie := waitFor(t, rec.cookies, "cookie")
	if cookie != "ctx" {
		t.Errorf("cookie = %v, want ctx (echoed verbatim)", cookie)
	}

	select {
	case <-rec.inserts:
		t.Error("second callback for a single request")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSerialOrdering(t *testing.T) {
	d, db, _ := testDispatcher(t)
	rec := newRecorder()

	const n = 20
	for i := 0; i < n; i++ {
		d.Insert(i, nil, store.TableBooksSearch,
			map[string]any{"book_id": fmt.Sprintf("b%03d", i), "title": "x"}, false, rec)
	}
	for i := 0; i < n; i++ {
		waitFor(t, rec.inserts, "insert callback")
	}

	// Effects must be visible in submission order: surrogate ids ascend with
	// submission index.
	rs, err := db.QueryRows(store.Query{
		Table:   store.TableBooksSearch,
		Columns: []string{"book_id"},
		OrderBy: "id ASC",
	})
	if err != nil {
		t.Fatal(err)
	}
	if rs.Len() != n {
		t.Fatalf("got %d rows, want %d", rs.Len(), n)
	}
	for i := 0; i < n; i++ {
		want := fmt.Sprintf("b%03d", i)
		if got := rs.Value(i, "book_id"); got != want {
			t.Fatalf("row %d = %v, want %v (out-of-order write)", i, got, want)
		}
	}
}

func TestCancelSuppressesCallbackNotEffect(t *testing.T) {
	d, db, _ := testDispatcher(t)
	rec := newRecorder()
	barrier := newRecorder()

	d.Insert(1, nil, store.TableBooksSearch, map[string]any{"book_id": "42", "title": "Dune"}, false, rec)
	d.Cancel(1)

	// A later request on another token acts as a barrier: once it completes,
	// the cancelled task has already run.
	d.Query(2, nil, store.Query{Table: store.TableBooksSearch}, barrier)
	waitFor(t, barrier.queries, "barrier query")

	select {
	case <-rec.inserts:
		t.Error("cancelled request delivered its callback")
	case <-time.After(100 * time.Millisecond):
	}

	// The write still happened.
	count, err := db.BookCount(store.TableBooksSearch)
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("book count = %d, want 1 (cancellation must not undo the write)", count)
	}
}

func TestCancelTokenReuseRearmsDelivery(t *testing.T) {
	d, _, _ := testDispatcher(t)
	rec := newRecorder()

	d.Cancel(7)
	d.Insert(7, nil, store.TableBooksSearch, map[string]any{"book_id": "later"}, false, rec)

	waitFor(t, rec.inserts, "insert callback after token reuse")
}

func TestErrorDelivery(t *testing.T) {
	d, _, _ := testDispatcher(t)
	rec := newRecorder()

	d.Insert(1, nil, "no_such_table", map[string]any{"x": 1}, false, rec)

	err := waitFor(t, rec.errs, "error callback")
	if err == nil {
		t.Fatal("expected engine error")
	}
}

func TestAutoNotifyPublishesTableChange(t *testing.T) {
	d, _, b := testDispatcher(t)
	ch, unsub := b.Subscribe(bus.TableKind(store.TableBooksSearch), 10)
	defer unsub()
	rec := newRecorder()

	d.Insert(1, nil, store.TableBooksSearch, map[string]any{"book_id": "42", "title": "Dune"}, true, rec)

	evt := waitFor(t, ch, "table change event")
	if evt.Kind != "table.books_search" {
		t.Errorf("kind = %q, want table.books_search", evt.Kind)
	}
	waitFor(t, rec.inserts, "insert callback")
}

func TestNoNotifyOnFailedMutation(t *testing.T) {
	d, _, b := testDispatcher(t)
	ch, unsub := b.Subscribe("table.", 10)
	defer unsub()
	rec := newRecorder()

	d.Insert(1, nil, "no_such_table", map[string]any{"x": 1}, true, rec)
	waitFor(t, rec.errs, "error callback")

	select {
	case evt := <-ch:
		t.Errorf("unexpected change event %q for failed mutation", evt.Kind)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestQueueSurvivesPanickingCallback(t *testing.T) {
	d, _, _ := testDispatcher(t)
	bad := newRecorder()
	bad.panic = true
	good := newRecorder()

	d.Insert(1, nil, store.TableBooksSearch, map[string]any{"book_id": "a"}, false, bad)
	d.Insert(2, nil, store.TableBooksSearch, map[string]any{"book_id": "b"}, false, good)

	waitFor(t, good.inserts, "callback after a panicking predecessor")
}

func TestUpdateAndDeleteCallbacks(t *testing.T) {
	d, db, _ := testDispatcher(t)
	rec := newRecorder()

	if _, err := db.InsertRow(store.TableBooksSearch, map[string]any{"book_id": "42", "title": "Dune"}); err != nil {
		t.Fatal(err)
	}

	d.Update(1, nil, store.TableBooksSearch, map[string]any{"title": "Dune Messiah"}, "book_id = ?", []any{"42"}, false, rec)
	if affected := waitFor(t, rec.updates, "update callback"); affected != 1 {
		t.Errorf("updated = %d, want 1", affected)
	}

	d.Delete(2, nil, store.TableBooksSearch, "book_id = ?", []any{"42"}, false, rec)
	if affected := waitFor(t, rec.deletes, "delete callback"); affected != 1 {
		t.Errorf("deleted = %d, want 1", affected)
	}
}
