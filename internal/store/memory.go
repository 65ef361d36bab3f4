package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"pairchat/internal/model"
)

// Memory is an in-process Store. It backs the tests and the memory storage
// driver; the locking mirrors the mysql store so both give the same ordering
// guarantees.
type Memory struct {
	mu       sync.RWMutex
	users    []model.User
	contacts []model.Contact
	messages []model.Message

	nextUserID    uint
	nextContactID uint
	nextMessageID uint

	now func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		nextUserID:    1,
		nextContactID: 1,
		nextMessageID: 1,
		now:           time.Now,
	}
}

func (m *Memory) Append(ctx context.Context, senderID, receiverID uint, kind, content string) (model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg := model.Message{
		ID:         m.nextMessageID,
		SenderID:   senderID,
		ReceiverID: receiverID,
		Kind:       kind,
		Content:    content,
		CreatedAt:  m.now(),
	}
	m.nextMessageID++
	m.messages = append(m.messages, msg)
	return msg, nil
}

func (m *Memory) Conversation(ctx context.Context, userA, userB uint) ([]model.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	key := makePairKey(userA, userB)
	result := make([]model.Message, 0)
	for _, msg := range m.messages {
		if makePairKey(msg.SenderID, msg.ReceiverID) == key {
			result = append(result, msg)
		}
	}
	// messages are stored in append order, which by construction is
	// (CreatedAt, ID) order
	return result, nil
}

func (m *Memory) MarkReadUpTo(ctx context.Context, receiverID, otherID uint) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var changed int64
	for i := range m.messages {
		msg := &m.messages[i]
		if msg.ReceiverID == receiverID && msg.SenderID == otherID && !msg.Read {
			msg.Read = true
			changed++
		}
	}
	return changed, nil
}

func (m *Memory) CountUnread(ctx context.Context, receiverID, otherID uint) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var count int64
	for _, msg := range m.messages {
		if msg.ReceiverID == receiverID && msg.SenderID == otherID && !msg.Read {
			count++
		}
	}
	return count, nil
}

func (m *Memory) CreateUser(ctx context.Context, user *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	user.ID = m.nextUserID
	m.nextUserID++
	if user.CreatedAt.IsZero() {
		user.CreatedAt = m.now()
	}
	m.users = append(m.users, *user)
	return nil
}

func (m *Memory) UserByUsername(ctx context.Context, username string) (*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, u := range m.users {
		if u.Username == username {
			user := u
			return &user, nil
		}
	}
	return nil, nil
}

func (m *Memory) UserByID(ctx context.Context, id uint) (*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, u := range m.users {
		if u.ID == id {
			user := u
			return &user, nil
		}
	}
	return nil, nil
}

func (m *Memory) SearchUsers(ctx context.Context, query string, excludeID uint) ([]model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	query = strings.ToLower(query)
	result := make([]model.User, 0)
	for _, u := range m.users {
		if u.ID == excludeID {
			continue
		}
		if strings.Contains(strings.ToLower(u.Username), query) {
			result = append(result, u)
		}
	}
	return result, nil
}

func (m *Memory) AddContact(ctx context.Context, userID, contactID uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range m.contacts {
		if c.UserID == userID && c.ContactID == contactID {
			return nil
		}
	}
	m.contacts = append(m.contacts, model.Contact{
		ID:        m.nextContactID,
		UserID:    userID,
		ContactID: contactID,
		CreatedAt: m.now(),
	})
	m.nextContactID++
	return nil
}

func (m *Memory) Contacts(ctx context.Context, userID uint) ([]model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]model.User, 0)
	for _, c := range m.contacts {
		if c.UserID != userID {
			continue
		}
		for _, u := range m.users {
			if u.ID == c.ContactID {
				result = append(result, u)
				break
			}
		}
	}
	return result, nil
}
