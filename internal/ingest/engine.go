// Package ingest writes parsed server payloads into the local cache. The
// response-parsing layer publishes api.* events on the bus; the engine
// performs idempotent upserts and announces table changes for live watchers.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/barterli/barterd/internal/bus"
	"github.com/barterli/barterd/internal/store"
	"go.uber.org/zap"
)

// Event kinds the engine consumes.
const (
	KindBook      = "api.book"
	KindBookBatch = "api.book_batch"
	KindLocation  = "api.location"
	KindUser      = "api.user"
	KindMessage   = "api.message"
)

// BookPayload pairs a parsed book with its destination table
// (store.TableBooksSearch or store.TableBooksOwned).
type BookPayload struct {
	Table string
	Book  *store.Book
}

// BookBatchPayload carries a page of search results or an owned shelf.
type BookBatchPayload struct {
	Table string
	Books []*store.Book
}

// Engine handles idempotent ingestion of server payloads into the store.
type Engine struct {
	db     *store.DB
	bus    *bus.Bus
	logger *zap.Logger
	cancel context.CancelFunc
}

// NewEngine creates a new ingestion engine.
func NewEngine(db *store.DB, b *bus.Bus, logger *zap.Logger) *Engine {
	return &Engine{
		db:     db,
		bus:    b,
		logger: logger,
	}
}

// Start subscribes to api.* events on the bus.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	ch, unsub := e.bus.Subscribe("api.", 256)

	go func() {
		defer unsub()
		for {
			select {
			case evt := <-ch:
				e.handleEvent(evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the engine.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
}

func (e *Engine) handleEvent(evt bus.Event) {
	switch evt.Kind {
	case KindBook:
		p, ok := evt.Payload.(*BookPayload)
		if !ok {
			return
		}
		if err := e.IngestBook(p.Table, p.Book); err != nil {
			e.logger.Error("failed to ingest book", zap.Error(err), zap.String("book_id", p.Book.BookID))
		}
	case KindBookBatch:
		p, ok := evt.Payload.(*BookBatchPayload)
		if !ok {
			return
		}
		if err := e.IngestBookBatch(p.Table, p.Books); err != nil {
			e.logger.Error("failed to ingest book batch", zap.Error(err), zap.Int("count", len(p.Books)))
		} else {
			e.logger.Info("book batch ingested", zap.Int("books", len(p.Books)), zap.String("table", p.Table))
		}
	case KindLocation:
		l, ok := evt.Payload.(*store.Location)
		if !ok {
			return
		}
		if err := e.IngestLocation(l); err != nil {
			e.logger.Error("failed to ingest location", zap.Error(err), zap.String("location_id", l.LocationID))
		}
	case KindUser:
		u, ok := evt.Payload.(*store.User)
		if !ok {
			return
		}
		if err := e.IngestUser(u); err != nil {
			e.logger.Error("failed to ingest user", zap.Error(err), zap.String("user_id", u.UserID))
		}
	case KindMessage:
		m, ok := evt.Payload.(*store.Message)
		if !ok {
			return
		}
		if err := e.IngestMessage(m); err != nil {
			e.logger.Error("failed to ingest message", zap.Error(err), zap.String("chat_id", m.ChatID))
		}
	}
}

// IngestBook upserts a single book and announces the table change.
func (e *Engine) IngestBook(table string, b *store.Book) error {
	if err := e.db.UpsertBook(table, b); err != nil {
		return fmt.Errorf("upsert book: %w", err)
	}
	e.notify(table)
	return nil
}

// IngestBookBatch upserts a page of books in a single transaction and
// announces one table change for the whole batch.
func (e *Engine) IngestBookBatch(table string, books []*store.Book) error {
	tx, err := e.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixMilli()
	for _, b := range books {
		if _, err := tx.Exec(fmt.Sprintf(`
			INSERT INTO %s (book_id, isbn_10, isbn_13, title, author, description, barter_type,
				owner_id, location_id, image_url, pub_year, pub_month, price, condition, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(book_id) DO UPDATE SET
				isbn_10 = excluded.isbn_10,
				isbn_13 = excluded.isbn_13,
				title = excluded.title,
				author = excluded.author,
				description = excluded.description,
				barter_type = excluded.barter_type,
				owner_id = excluded.owner_id,
				location_id = excluded.location_id,
				image_url = excluded.image_url,
				pub_year = excluded.pub_year,
				pub_month = excluded.pub_month,
				price = excluded.price,
				condition = excluded.condition,
				updated_at = excluded.updated_at`, table),
			b.BookID, b.ISBN10, b.ISBN13, b.Title, b.Author, b.Description, b.BarterType,
			b.OwnerID, b.LocationID, b.ImageURL, b.PubYear, b.PubMonth, b.Price, b.Condition, now); err != nil {
			return fmt.Errorf("upsert book %q in batch: %w", b.BookID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}

	e.notify(table)
	return nil
}

// IngestLocation upserts a location and announces the table change.
func (e *Engine) IngestLocation(l *store.Location) error {
	if err := e.db.UpsertLocation(l); err != nil {
		return fmt.Errorf("upsert location: %w", err)
	}
	e.notify(store.TableLocations)
	return nil
}

// IngestUser upserts a user and announces the table change.
func (e *Engine) IngestUser(u *store.User) error {
	if err := e.db.UpsertUser(u); err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	e.notify(store.TableUsers)
	return nil
}

// IngestMessage records an incoming chat message. The chat row is derived
// from the participant pair, so messages in either direction land in the
// same conversation.
func (e *Engine) IngestMessage(m *store.Message) error {
	if m.ChatID == "" {
		m.ChatID = store.ChatID(m.SenderID, m.ReceiverID)
	}
	if m.Status == "" {
		m.Status = "received"
	}

	if err := e.db.UpsertChat(&store.Chat{
		ChatID:             m.ChatID,
		SenderID:           m.SenderID,
		ReceiverID:         m.ReceiverID,
		LastMessageAt:      m.Timestamp,
		LastMessagePreview: truncate(m.Body, 100),
	}); err != nil {
		return fmt.Errorf("upsert chat: %w", err)
	}
	if _, err := e.db.InsertMessage(m); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	e.notify(store.TableChats)
	e.notify(store.TableMessages)
	return nil
}

func (e *Engine) notify(table string) {
	e.bus.Publish(bus.Event{
		Kind:      bus.TableKind(table),
		Timestamp: time.Now(),
		Payload:   table,
	})
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
