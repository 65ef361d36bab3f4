// Package store persists users, contacts and messages. Two implementations
// exist: a gorm/MySQL store for production and an in-memory store used by
// tests and the memory storage driver.
package store

import (
	"context"
	"errors"

	"pairchat/internal/model"
)

// ErrStorage marks persistence failures. Callers must not broadcast a message
// whose append returned an error wrapping ErrStorage.
var ErrStorage = errors.New("storage unavailable")

// MessageStore is the durable, ordered message log for two-party
// conversations. A conversation is keyed by the unordered user-id pair;
// appends to the same conversation are serialized so that assigned IDs and
// timestamps never reorder relative to the order the calls were issued.
type MessageStore interface {
	// Append assigns ID and CreatedAt, writes durably and returns the full
	// record.
	Append(ctx context.Context, senderID, receiverID uint, kind, content string) (model.Message, error)
	// Conversation returns both directions of the pair ordered by CreatedAt
	// then ID. No messages is an empty slice, not an error.
	Conversation(ctx context.Context, userA, userB uint) ([]model.Message, error)
	// MarkReadUpTo flips Read to true on every message of the pair addressed
	// to receiverID. Idempotent; returns the number of rows changed.
	MarkReadUpTo(ctx context.Context, receiverID, otherID uint) (int64, error)
	// CountUnread reports messages from otherID to receiverID still unread.
	CountUnread(ctx context.Context, receiverID, otherID uint) (int64, error)
}

type UserStore interface {
	// CreateUser inserts the user and fills in its ID.
	CreateUser(ctx context.Context, user *model.User) error
	// UserByUsername returns nil without error when no such user exists.
	UserByUsername(ctx context.Context, username string) (*model.User, error)
	UserByID(ctx context.Context, id uint) (*model.User, error)
	// SearchUsers matches usernames containing query, excluding excludeID.
	SearchUsers(ctx context.Context, query string, excludeID uint) ([]model.User, error)
	// AddContact is idempotent for an existing (userID, contactID) edge.
	AddContact(ctx context.Context, userID, contactID uint) error
	Contacts(ctx context.Context, userID uint) ([]model.User, error)
}

type Store interface {
	MessageStore
	UserStore
}

// pairKey is the canonical unordered pair used to key conversation locks.
type pairKey struct {
	lo, hi uint
}

func makePairKey(a, b uint) pairKey {
	if a > b {
		a, b = b, a
	}
	return pairKey{lo: a, hi: b}
}
