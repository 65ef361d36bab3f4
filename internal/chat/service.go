// Package chat routes messages between two users: it persists every message
// exactly once, then pushes it to every live connection of both participants,
// and serves the ordered conversation history of a pair.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"pairchat/internal/model"
	"pairchat/internal/notify"
	"pairchat/internal/store"
)

var (
	// ErrValidation covers malformed send events: empty content, unknown
	// kind, missing receiver. Nothing is persisted or pushed.
	ErrValidation = errors.New("invalid message event")
	// ErrUnauthorized covers operations attempted without an authenticated
	// identity.
	ErrUnauthorized = errors.New("no access")
)

// timeLayout is the human-readable label carried on deliveries and history
// entries.
const timeLayout = "15:04"

// LiveRegistry is the slice of the hub the router needs.
type LiveRegistry interface {
	Online(userID uint) bool
	Broadcast(userID uint, message []byte) int
}

type HistoryCache interface {
	Get(ctx context.Context, userA, userB uint) ([]model.Message, bool, error)
	Set(ctx context.Context, userA, userB uint, messages []model.Message) error
	Invalidate(ctx context.Context, userA, userB uint) error
	MarkDirty(ctx context.Context, userA, userB uint) error
	IsDirty(ctx context.Context, userA, userB uint) (bool, error)
}

type UnreadCounters interface {
	Get(ctx context.Context, receiverID, senderID uint) (int64, error)
	Clear(ctx context.Context, receiverID, senderID uint) error
}

type NotifyPublisher interface {
	Publish(ctx context.Context, event notify.Event) error
}

// Frame is the outbound wire envelope pushed over live connections.
type Frame struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Body  any    `json:"body,omitempty"`
}

// Delivery is the payload pushed to each live connection for a new message.
type Delivery struct {
	Content  string `json:"content"`
	Kind     string `json:"kind"`
	SenderID uint   `json:"senderId"`
	Time     string `json:"time"`
}

// HistoryEntry is one conversation item returned by History.
type HistoryEntry struct {
	Content  string `json:"content"`
	Kind     string `json:"kind"`
	SenderID uint   `json:"senderId"`
	Time     string `json:"time"`
	Read     bool   `json:"read"`
}

// SendResult reports what the router did with an accepted message.
type SendResult struct {
	Message   model.Message
	Delivered int
}

type Service struct {
	store     store.Store
	live      LiveRegistry
	history   HistoryCache
	unread    UnreadCounters
	publisher NotifyPublisher
	log       *slog.Logger

	mu        sync.Mutex
	pairLocks map[pair]*sync.Mutex
}

// pair is the canonical unordered user-id pair keying conversation locks.
type pair struct {
	lo, hi uint
}

func makePair(a, b uint) pair {
	if a > b {
		a, b = b, a
	}
	return pair{lo: a, hi: b}
}

func (s *Service) pairLock(a, b uint) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := makePair(a, b)
	lock, ok := s.pairLocks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.pairLocks[key] = lock
	}
	return lock
}

// NewService wires the router. history, unread and publisher may be nil; the
// corresponding side effects are skipped (memory storage driver, tests).
func NewService(
	st store.Store,
	live LiveRegistry,
	history HistoryCache,
	unread UnreadCounters,
	publisher NotifyPublisher,
	log *slog.Logger,
) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:     st,
		live:      live,
		history:   history,
		unread:    unread,
		publisher: publisher,
		log:       log,
		pairLocks: make(map[pair]*sync.Mutex),
	}
}

// Send validates, persists and routes one message event. The message is
// persisted before any push; on a storage failure nothing is broadcast and
// the error surfaces to the originating connection only. The push reaches
// every live connection of the receiver and of the sender (self-echo); when
// sender and receiver are the same identity each connection still receives
// exactly one push.
func (s *Service) Send(ctx context.Context, senderID, receiverID uint, kind, content string) (SendResult, error) {
	if senderID == 0 {
		return SendResult{}, ErrUnauthorized
	}
	if receiverID == 0 {
		return SendResult{}, ErrValidation
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return SendResult{}, ErrValidation
	}
	if kind == "" {
		kind = model.KindText
	}
	if !model.ValidKind(kind) {
		return SendResult{}, ErrValidation
	}

	msg, delivered, err := s.persistAndPush(ctx, senderID, receiverID, kind, content)
	if err != nil {
		return SendResult{}, err
	}

	if s.history != nil {
		if err := s.history.MarkDirty(ctx, senderID, receiverID); err != nil {
			s.log.Warn("mark history cache dirty failed", "error", err)
		}
		if err := s.history.Invalidate(ctx, senderID, receiverID); err != nil {
			s.log.Warn("invalidate history cache failed", "error", err)
		}
	}
	if s.publisher != nil {
		event := notify.Event{
			MessageID:  msg.ID,
			SenderID:   senderID,
			ReceiverID: receiverID,
			Kind:       msg.Kind,
		}
		if err := s.publisher.Publish(ctx, event); err != nil {
			s.log.Warn("publish notify event failed", "message_id", msg.ID, "error", err)
		}
	}

	s.log.Info("message routed",
		"message_id", msg.ID,
		"sender_id", senderID,
		"receiver_id", receiverID,
		"delivered", delivered,
	)
	return SendResult{Message: msg, Delivered: delivered}, nil
}

// persistAndPush appends and pushes under one per-pair lock, so concurrent
// sends in the same conversation reach live connections in the persisted
// (CreatedAt, ID) order. A later history fetch then never contradicts the
// order a client already saw on the wire.
func (s *Service) persistAndPush(ctx context.Context, senderID, receiverID uint, kind, content string) (model.Message, int, error) {
	lock := s.pairLock(senderID, receiverID)
	lock.Lock()
	defer lock.Unlock()

	msg, err := s.store.Append(ctx, senderID, receiverID, kind, content)
	if err != nil {
		return model.Message{}, 0, err
	}

	payload, err := json.Marshal(Frame{
		Type:  "update",
		Event: "new-message",
		Body: Delivery{
			Content:  msg.Content,
			Kind:     msg.Kind,
			SenderID: msg.SenderID,
			Time:     msg.CreatedAt.Format(timeLayout),
		},
	})
	if err != nil {
		return model.Message{}, 0, err
	}

	delivered := s.live.Broadcast(receiverID, payload)
	if senderID != receiverID {
		delivered += s.live.Broadcast(senderID, payload)
	}
	return msg, delivered, nil
}

// History returns the caller's conversation with otherID in (CreatedAt, ID)
// order. Fetching marks the messages addressed to the caller as read, which
// mirrors opening that conversation in an inbox; read state is observed on
// fetch, never pushed live.
func (s *Service) History(ctx context.Context, callerID, otherID uint) ([]HistoryEntry, error) {
	if callerID == 0 {
		return nil, ErrUnauthorized
	}
	if otherID == 0 {
		return nil, ErrValidation
	}

	changed, err := s.store.MarkReadUpTo(ctx, callerID, otherID)
	if err != nil {
		return nil, err
	}
	if changed > 0 {
		if s.history != nil {
			if err := s.history.MarkDirty(ctx, callerID, otherID); err != nil {
				s.log.Warn("mark history cache dirty failed", "error", err)
			}
			if err := s.history.Invalidate(ctx, callerID, otherID); err != nil {
				s.log.Warn("invalidate history cache failed", "error", err)
			}
		}
		if s.unread != nil {
			if err := s.unread.Clear(ctx, callerID, otherID); err != nil {
				s.log.Warn("clear unread counter failed", "error", err)
			}
		}
	}

	if s.history != nil {
		if dirty, err := s.history.IsDirty(ctx, callerID, otherID); err == nil && !dirty {
			if cached, hit, err := s.history.Get(ctx, callerID, otherID); err == nil && hit {
				return toHistoryEntries(cached), nil
			}
		}
	}

	messages, err := s.store.Conversation(ctx, callerID, otherID)
	if err != nil {
		return nil, err
	}
	// Re-check the dirty marker after the store read: an append that landed
	// while this snapshot was being taken must not be shadowed by caching
	// the snapshot.
	if s.history != nil {
		if dirty, err := s.history.IsDirty(ctx, callerID, otherID); err == nil && !dirty {
			if err := s.history.Set(ctx, callerID, otherID, messages); err != nil {
				s.log.Warn("set history cache failed", "error", err)
			}
		}
	}
	return toHistoryEntries(messages), nil
}

// ContactSummary is one entry of a user's contact page.
type ContactSummary struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	Online   bool   `json:"online"`
	Unread   int64  `json:"unread"`
}

// ContactSummaries lists the user's contacts with presence and unread badge.
// The badge comes from the redis counters when wired, falling back to a store
// count otherwise.
func (s *Service) ContactSummaries(ctx context.Context, userID uint) ([]ContactSummary, error) {
	if userID == 0 {
		return nil, ErrUnauthorized
	}

	contacts, err := s.store.Contacts(ctx, userID)
	if err != nil {
		return nil, err
	}

	summaries := make([]ContactSummary, 0, len(contacts))
	for _, contact := range contacts {
		var unreadCount int64
		if s.unread != nil {
			unreadCount, err = s.unread.Get(ctx, userID, contact.ID)
			if err != nil {
				s.log.Warn("read unread counter failed", "contact_id", contact.ID, "error", err)
				unreadCount = 0
			}
		} else {
			unreadCount, err = s.store.CountUnread(ctx, userID, contact.ID)
			if err != nil {
				return nil, err
			}
		}
		summaries = append(summaries, ContactSummary{
			ID:       contact.ID,
			Username: contact.Username,
			Online:   s.live.Online(contact.ID),
			Unread:   unreadCount,
		})
	}
	return summaries, nil
}

func toHistoryEntries(messages []model.Message) []HistoryEntry {
	entries := make([]HistoryEntry, 0, len(messages))
	for _, msg := range messages {
		entries = append(entries, HistoryEntry{
			Content:  msg.Content,
			Kind:     msg.Kind,
			SenderID: msg.SenderID,
			Time:     msg.CreatedAt.Format(timeLayout),
			Read:     msg.Read,
		})
	}
	return entries
}
