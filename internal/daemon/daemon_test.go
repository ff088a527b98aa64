package daemon

import (
	"testing"
	"time"

	"github.com/barterli/barterd/internal/data"
	"github.com/barterli/barterd/internal/ingest"
	"github.com/barterli/barterd/internal/status"
	"github.com/barterli/barterd/internal/store"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
)

func TestDaemonLifecycle(t *testing.T) {
	var (
		access  *data.Access
		machine *status.Machine
		engine  *ingest.Engine
	)

	app := fxtest.New(t,
		Module(Params{ProfileName: "test", DataDir: t.TempDir()}),
		fx.Populate(&access, &machine, &engine),
	)
	app.RequireStart()

	if machine.Current() != status.Ready {
		t.Errorf("state = %s after start, want READY", machine.Current())
	}

	// The facade is usable end to end: write a book, observe it live.
	w := access.Watch(store.TableBooksSearch, store.Query{
		Table:   store.TableBooksSearch,
		Columns: []string{"book_id"},
	}, 4)

	select {
	case rs := <-w.Results():
		if rs.Len() != 0 {
			t.Errorf("initial result has %d rows, want 0", rs.Len())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no initial watch result")
	}

	if err := engine.IngestBook(store.TableBooksSearch, &store.Book{BookID: "42", Title: "Dune"}); err != nil {
		t.Fatal(err)
	}

	select {
	case rs := <-w.Results():
		if rs.Len() != 1 {
			t.Errorf("refreshed result has %d rows, want 1", rs.Len())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watcher never refreshed after ingest")
	}

	w.Close()
	app.RequireStop()
}

func TestSecondDaemonOnSameProfileFails(t *testing.T) {
	dir := t.TempDir()

	app := fxtest.New(t, Module(Params{ProfileName: "test", DataDir: dir}))
	app.RequireStart()
	defer app.RequireStop()

	second := fx.New(Module(Params{ProfileName: "test", DataDir: dir}))
	if err := second.Err(); err == nil {
		t.Error("second daemon on the same profile should fail to construct")
	}
}
