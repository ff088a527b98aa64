package data

import (
	"context"

	"github.com/barterli/barterd/internal/bus"
	"github.com/barterli/barterd/internal/store"
	"go.uber.org/zap"
)

// Watcher re-runs a query whenever its table changes and delivers fresh
// results on a channel. Delivery is level-triggered: registration always
// produces an immediate first result, whether or not a change is pending.
type Watcher struct {
	results chan *store.ResultSet
	cancel  context.CancelFunc
}

// Watch registers a live query against a table or view. Results arrive on
// Results() until Close. A consumer that lags gets the latest result set;
// intermediate refreshes coalesce.
func (a *Access) Watch(table string, q store.Query, bufSize int) *Watcher {
	if bufSize <= 0 {
		bufSize = 1
	}
	ch, unsub := a.bus.Subscribe(bus.TableKind(table), bufSize)
	ctx, cancel := context.WithCancel(context.Background())

	w := &Watcher{
		results: make(chan *store.ResultSet, bufSize),
		cancel:  cancel,
	}

	go func() {
		defer unsub()
		defer close(w.results)

		w.refresh(a, q)
		for {
			select {
			case <-ch:
				w.refresh(a, q)
			case <-ctx.Done():
				return
			}
		}
	}()

	return w
}

// Results returns the channel fresh result sets arrive on. It is closed by
// Close.
func (w *Watcher) Results() <-chan *store.ResultSet {
	return w.results
}

// Close stops the watcher and releases its subscription.
func (w *Watcher) Close() {
	w.cancel()
}

func (w *Watcher) refresh(a *Access, q store.Query) {
	rs, err := a.db.QueryRows(q)
	if err != nil {
		a.logger.Error("watch refresh failed", zap.String("table", q.Table), zap.Error(err))
		return
	}
	select {
	case w.results <- rs:
	default:
		// Consumer is behind; drop the oldest buffered result and retry so
		// the latest state wins.
		select {
		case <-w.results:
		default:
		}
		select {
		case w.results <- rs:
		default:
		}
	}
}
