// Package outbox drains queued outgoing chat messages through the remote
// API client and mirrors delivery progress into the message cache.
package outbox

import (
	"context"
	"time"

	"github.com/barterli/barterd/internal/bus"
	"github.com/barterli/barterd/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MessageSender is the interface to the remote chat API.
type MessageSender interface {
	SendMessage(ctx context.Context, receiverID, body string) (serverMsgID string, err error)
}

// DefaultPollInterval is used when no interval is configured.
const DefaultPollInterval = 500 * time.Millisecond

// Sender polls the outbox and pushes pending messages to the server.
type Sender struct {
	db       *store.DB
	sender   MessageSender
	bus      *bus.Bus
	logger   *zap.Logger
	selfID   string
	interval time.Duration
	cancel   context.CancelFunc
}

// NewSender creates an outbox sender. selfID is the logged-in user's server
// id; it becomes the sender of every outgoing message.
func NewSender(db *store.DB, sender MessageSender, b *bus.Bus, logger *zap.Logger, selfID string, interval time.Duration) *Sender {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Sender{
		db:       db,
		sender:   sender,
		bus:      b,
		logger:   logger,
		selfID:   selfID,
		interval: interval,
	}
}

// Queue records an outgoing message and returns its client id. The message
// is delivered by the polling loop.
func (s *Sender) Queue(receiverID, body string) (string, error) {
	clientMsgID := uuid.New().String()
	chatID := store.ChatID(s.selfID, receiverID)
	if err := s.db.QueueOutbox(clientMsgID, chatID, receiverID, body); err != nil {
		return "", err
	}
	s.publish("chat.queued", map[string]string{"client_msg_id": clientMsgID, "chat_id": chatID})
	return clientMsgID, nil
}

// Start begins polling the outbox for pending messages.
func (s *Sender) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	go s.loop(ctx)
}

// Stop stops the sender loop.
func (s *Sender) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Sender) loop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.processPending(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Sender) processPending(ctx context.Context) {
	pending, err := s.db.PendingOutbox()
	if err != nil {
		s.logger.Error("failed to read outbox", zap.Error(err))
		return
	}

	for _, entry := range pending {
		if err := s.db.MarkOutboxSending(entry.ClientMsgID); err != nil {
			s.logger.Error("failed to mark sending", zap.Error(err), zap.String("client_msg_id", entry.ClientMsgID))
			continue
		}

		// Optimistic insert: the message shows in the chat immediately.
		now := time.Now().UnixMilli()
		if _, err := s.db.InsertMessage(&store.Message{
			ChatID:      entry.ChatID,
			ClientMsgID: entry.ClientMsgID,
			SenderID:    s.selfID,
			ReceiverID:  entry.ReceiverID,
			Body:        entry.Body,
			Timestamp:   now,
			Status:      "sending",
		}); err != nil {
			s.logger.Error("failed to insert optimistic message", zap.Error(err), zap.String("client_msg_id", entry.ClientMsgID))
		}
		_ = s.db.UpsertChat(&store.Chat{
			ChatID:             entry.ChatID,
			SenderID:           s.selfID,
			ReceiverID:         entry.ReceiverID,
			LastMessageAt:      now,
			LastMessagePreview: entry.Body,
		})
		s.notifyChatTables()

		serverMsgID, err := s.sender.SendMessage(ctx, entry.ReceiverID, entry.Body)
		if err != nil {
			s.logger.Error("failed to send message", zap.Error(err), zap.String("client_msg_id", entry.ClientMsgID))
			_ = s.db.MarkOutboxFailed(entry.ClientMsgID, err.Error())
			_ = s.db.UpdateMessageStatus(entry.ClientMsgID, "failed")
			s.notifyChatTables()
			s.publish("chat.send_failed", map[string]string{
				"client_msg_id": entry.ClientMsgID,
				"error":         err.Error(),
			})
			continue
		}

		if err := s.db.MarkOutboxSent(entry.ClientMsgID, serverMsgID); err != nil {
			s.logger.Error("failed to mark sent", zap.Error(err), zap.String("client_msg_id", entry.ClientMsgID))
		}
		_ = s.db.UpdateMessageStatus(entry.ClientMsgID, "sent")
		s.notifyChatTables()

		s.logger.Info("message sent", zap.String("client_msg_id", entry.ClientMsgID), zap.String("server_msg_id", serverMsgID))
		s.publish("chat.send_ack", map[string]string{
			"client_msg_id": entry.ClientMsgID,
			"server_msg_id": serverMsgID,
		})
	}
}

func (s *Sender) notifyChatTables() {
	for _, table := range []string{store.TableChats, store.TableMessages} {
		s.publish(bus.TableKind(table), table)
	}
}

func (s *Sender) publish(kind string, payload any) {
	s.bus.Publish(bus.Event{Kind: kind, Timestamp: time.Now(), Payload: payload})
}
