// Package data is the single entry point through which the rest of the
// client reads and writes the local cache. Synchronous methods call the
// store directly and must run off the UI loop; async methods delegate to the
// serial dispatcher and deliver results through callbacks.
package data

import (
	"time"

	"github.com/barterli/barterd/internal/bus"
	"github.com/barterli/barterd/internal/dispatch"
	"github.com/barterli/barterd/internal/store"
	"go.uber.org/zap"
)

// Access is the cache facade.
type Access struct {
	db       *store.DB
	disp     *dispatch.Dispatcher
	bus      *bus.Bus
	contract *Contract
	logger   *zap.Logger
}

// NewAccess wires the facade. All collaborators are owned by the composition
// root; Access holds no global state.
func NewAccess(db *store.DB, disp *dispatch.Dispatcher, b *bus.Bus, contract *Contract, logger *zap.Logger) *Access {
	return &Access{db: db, disp: disp, bus: b, contract: contract, logger: logger}
}

// BindUILoop registers the calling goroutine as the UI loop for contract
// enforcement.
func (a *Access) BindUILoop() {
	a.contract.BindUILoop()
}

// Insert synchronously inserts one row and returns its local surrogate id.
// Must not be called from the UI loop goroutine.
func (a *Access) Insert(table string, values map[string]any) (int64, error) {
	a.contract.CheckSync("insert")
	return a.db.InsertRow(table, values)
}

// Update synchronously updates matching rows and returns the affected count.
// Must not be called from the UI loop goroutine.
func (a *Access) Update(table string, values map[string]any, where string, whereArgs ...any) (int64, error) {
	a.contract.CheckSync("update")
	return a.db.UpdateRows(table, values, where, whereArgs...)
}

// Delete synchronously deletes matching rows and returns the affected count.
// Must not be called from the UI loop goroutine.
func (a *Access) Delete(table string, where string, whereArgs ...any) (int64, error) {
	a.contract.CheckSync("delete")
	return a.db.DeleteRows(table, where, whereArgs...)
}

// Query synchronously runs a read and materializes the result.
// Must not be called from the UI loop goroutine.
func (a *Access) Query(q store.Query) (*store.ResultSet, error) {
	a.contract.CheckSync("query")
	return a.db.QueryRows(q)
}

// InsertAsync submits an insert to the serial worker. When autoNotify is set,
// a successful insert publishes a table-changed event.
func (a *Access) InsertAsync(token int, cookie any, table string, values map[string]any, autoNotify bool, cb dispatch.Callback) {
	a.contract.CheckAsync("insert")
	a.disp.Insert(token, cookie, table, values, autoNotify, cb)
}

// UpdateAsync submits an update to the serial worker.
func (a *Access) UpdateAsync(token int, cookie any, table string, values map[string]any, where string, whereArgs []any, autoNotify bool, cb dispatch.Callback) {
	a.contract.CheckAsync("update")
	a.disp.Update(token, cookie, table, values, where, whereArgs, autoNotify, cb)
}

// DeleteAsync submits a delete to the serial worker.
func (a *Access) DeleteAsync(token int, cookie any, table string, where string, whereArgs []any, autoNotify bool, cb dispatch.Callback) {
	a.contract.CheckAsync("delete")
	a.disp.Delete(token, cookie, table, where, whereArgs, autoNotify, cb)
}

// QueryAsync submits a read to the serial worker.
func (a *Access) QueryAsync(token int, cookie any, q store.Query, cb dispatch.Callback) {
	a.contract.CheckAsync("query")
	a.disp.Query(token, cookie, q, cb)
}

// CancelAsync suppresses callback delivery for pending requests with the
// token. The underlying operations still execute.
func (a *Access) CancelAsync(token int) {
	a.disp.Cancel(token)
}

// NotifyChange publishes a table-changed event for observers of the table.
// Synchronous callers use this after mutations; async callers usually rely on
// autoNotify instead.
func (a *Access) NotifyChange(table string) {
	a.bus.Publish(bus.Event{
		Kind:      bus.TableKind(table),
		Timestamp: time.Now(),
		Payload:   table,
	})
}
