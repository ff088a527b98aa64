// Package dispatch executes CRUD requests against the cache on a single
// serial background worker, delivering exactly one completion callback per
// request. Serial execution keeps all async mutation on one goroutine, so no
// two tasks ever race on the shared connection.
package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/barterli/barterd/internal/bus"
	"github.com/barterli/barterd/internal/store"
	"go.uber.org/zap"
)

type op int

const (
	opInsert op = iota
	opUpdate
	opDelete
	opQuery
)

// Callback receives the completion of async requests. Exactly one method is
// invoked per request, on the worker goroutine, carrying the caller's token
// and cookie. Failed requests are reported through OnError.
type Callback interface {
	OnInsertComplete(token int, cookie any, rowID int64)
	OnUpdateComplete(token int, cookie any, affected int64)
	OnDeleteComplete(token int, cookie any, affected int64)
	OnQueryComplete(token int, cookie any, result *store.ResultSet)
	OnError(token int, cookie any, err error)
}

type request struct {
	op         op
	token      int
	cookie     any
	table      string
	values     map[string]any
	where      string
	whereArgs  []any
	query      store.Query
	autoNotify bool
	cb         Callback
}

// Dispatcher owns the serial worker queue. Requests execute in strict FIFO
// submission order, one at a time.
type Dispatcher struct {
	db     *store.DB
	bus    *bus.Bus
	logger *zap.Logger

	reqs chan request
	mu   sync.Mutex
	// cancelled tokens suppress callback delivery until the token is reused
	// by a new submission. The task itself still runs to completion.
	cancelled map[int]struct{}

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a dispatcher. Start must be called before submitting requests.
func New(db *store.DB, b *bus.Bus, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		db:        db,
		bus:       b,
		logger:    logger,
		reqs:      make(chan request, 256),
		cancelled: make(map[int]struct{}),
	}
}

// Start launches the serial worker.
func (d *Dispatcher) Start(ctx context.Context) {
	ctx, d.cancel = context.WithCancel(ctx)
	d.done = make(chan struct{})
	go d.loop(ctx)
}

// Stop shuts the worker down. Pending requests are discarded.
func (d *Dispatcher) Stop() {
	if d.cancel != nil {
		d.cancel()
		<-d.done
	}
}

// Insert submits an async row insert.
func (d *Dispatcher) Insert(token int, cookie any, table string, values map[string]any, autoNotify bool, cb Callback) {
	d.submit(request{op: opInsert, token: token, cookie: cookie, table: table, values: values, autoNotify: autoNotify, cb: cb})
}

// Update submits an async update of all rows matching the predicate.
func (d *Dispatcher) Update(token int, cookie any, table string, values map[string]any, where string, whereArgs []any, autoNotify bool, cb Callback) {
	d.submit(request{op: opUpdate, token: token, cookie: cookie, table: table, values: values, where: where, whereArgs: whereArgs, autoNotify: autoNotify, cb: cb})
}

// Delete submits an async delete of all rows matching the predicate.
func (d *Dispatcher) Delete(token int, cookie any, table string, where string, whereArgs []any, autoNotify bool, cb Callback) {
	d.submit(request{op: opDelete, token: token, cookie: cookie, table: table, where: where, whereArgs: whereArgs, autoNotify: autoNotify, cb: cb})
}

// Query submits an async read.
func (d *Dispatcher) Query(token int, cookie any, q store.Query, cb Callback) {
	d.submit(request{op: opQuery, token: token, cookie: cookie, query: q, cb: cb})
}

// Cancel suppresses callback delivery for every pending or in-flight request
// with the given token. A cancelled task still runs to completion; its side
// effect is not undone. Submitting a new request with the token re-arms
// delivery.
func (d *Dispatcher) Cancel(token int) {
	d.mu.Lock()
	d.cancelled[token] = struct{}{}
	d.mu.Unlock()
}

func (d *Dispatcher) submit(req request) {
	d.mu.Lock()
	delete(d.cancelled, req.token)
	d.mu.Unlock()
	d.reqs <- req
}

func (d *Dispatcher) loop(ctx context.Context) {
	defer close(d.done)
	for {
		select {
		case req := <-d.reqs:
			d.execute(req)
		case <-ctx.Done():
			return
		}
	}
}

func (d *Dispatcher) execute(req request) {
	// A panicking task must not take the serial queue down; subsequent
	// requests keep executing in order.
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("dispatch task panicked",
				zap.Int("token", req.token),
				zap.String("table", req.table),
				zap.Any("panic", r))
		}
	}()

	var (
		rowID    int64
		affected int64
		result   *store.ResultSet
		err      error
	)
	switch req.op {
	case opInsert:
		rowID, err = d.db.InsertRow(req.table, req.values)
	case opUpdate:
		affected, err = d.db.UpdateRows(req.table, req.values, req.where, req.whereArgs...)
	case opDelete:
		affected, err = d.db.DeleteRows(req.table, req.where, req.whereArgs...)
	case opQuery:
		result, err = d.db.QueryRows(req.query)
	}

	if err == nil && req.autoNotify && req.op != opQuery {
		d.bus.Publish(bus.Event{
			Kind:      bus.TableKind(req.table),
			Timestamp: time.Now(),
			Payload:   req.table,
		})
	}

	if d.isCancelled(req.token) {
		// Effect stays; only the callback is suppressed.
		return
	}
	if req.cb == nil {
		return
	}
	if err != nil {
		req.cb.OnError(req.token, req.cookie, err)
		return
	}
	switch req.op {
	case opInsert:
		req.cb.OnInsertComplete(req.token, req.cookie, rowID)
	case opUpdate:
		req.cb.OnUpdateComplete(req.token, req.cookie, affected)
	case opDelete:
		req.cb.OnDeleteComplete(req.token, req.cookie, affected)
	case opQuery:
		req.cb.OnQueryComplete(req.token, req.cookie, result)
	}
}

func (d *Dispatcher) isCancelled(token int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.cancelled[token]
	return ok
}
