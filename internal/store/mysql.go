package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"gorm.io/gorm"

	"pairchat/internal/model"
)

// MySQL implements Store on gorm. Appends to the same conversation hold a
// per-pair lock across the insert so auto-increment IDs follow issue order
// within a pair even under concurrent senders.
type MySQL struct {
	db *gorm.DB

	lockMu    sync.Mutex
	pairLocks map[pairKey]*sync.Mutex
}

func NewMySQL(db *gorm.DB) *MySQL {
	return &MySQL{
		db:        db,
		pairLocks: make(map[pairKey]*sync.Mutex),
	}
}

func (s *MySQL) pairLock(a, b uint) *sync.Mutex {
	key := makePairKey(a, b)
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.pairLocks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.pairLocks[key] = lock
	}
	return lock
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%s failed: %w", op, errors.Join(ErrStorage, err))
}

func (s *MySQL) Append(ctx context.Context, senderID, receiverID uint, kind, content string) (model.Message, error) {
	lock := s.pairLock(senderID, receiverID)
	lock.Lock()
	defer lock.Unlock()

	msg := model.Message{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Kind:       kind,
		Content:    content,
	}
	if err := s.db.WithContext(ctx).Create(&msg).Error; err != nil {
		return model.Message{}, storageErr("append message", err)
	}
	return msg, nil
}

func (s *MySQL) Conversation(ctx context.Context, userA, userB uint) ([]model.Message, error) {
	messages := make([]model.Message, 0)
	err := s.db.WithContext(ctx).
		Where("(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)",
			userA, userB, userB, userA).
		Order("created_at ASC, id ASC").
		Find(&messages).Error
	if err != nil {
		return nil, storageErr("load conversation", err)
	}
	return messages, nil
}

func (s *MySQL) MarkReadUpTo(ctx context.Context, receiverID, otherID uint) (int64, error) {
	result := s.db.WithContext(ctx).
		Model(&model.Message{}).
		Where("receiver_id = ? AND sender_id = ? AND `read` = ?", receiverID, otherID, false).
		Update("read", true)
	if result.Error != nil {
		return 0, storageErr("mark read", result.Error)
	}
	return result.RowsAffected, nil
}

func (s *MySQL) CountUnread(ctx context.Context, receiverID, otherID uint) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&model.Message{}).
		Where("receiver_id = ? AND sender_id = ? AND `read` = ?", receiverID, otherID, false).
		Count(&count).Error
	if err != nil {
		return 0, storageErr("count unread", err)
	}
	return count, nil
}

func (s *MySQL) CreateUser(ctx context.Context, user *model.User) error {
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		return storageErr("create user", err)
	}
	return nil
}

func (s *MySQL) UserByUsername(ctx context.Context, username string) (*model.User, error) {
	var user model.User
	if err := s.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, storageErr("query user by username", err)
	}
	return &user, nil
}

func (s *MySQL) UserByID(ctx context.Context, id uint) (*model.User, error) {
	var user model.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, storageErr("query user by id", err)
	}
	return &user, nil
}

func (s *MySQL) SearchUsers(ctx context.Context, query string, excludeID uint) ([]model.User, error) {
	users := make([]model.User, 0)
	err := s.db.WithContext(ctx).
		Where("username LIKE ? AND id <> ?", "%"+query+"%", excludeID).
		Limit(20).
		Find(&users).Error
	if err != nil {
		return nil, storageErr("search users", err)
	}
	return users, nil
}

func (s *MySQL) AddContact(ctx context.Context, userID, contactID uint) error {
	var existing model.Contact
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND contact_id = ?", userID, contactID).
		First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return storageErr("query contact", err)
	}

	contact := model.Contact{UserID: userID, ContactID: contactID}
	if err := s.db.WithContext(ctx).Create(&contact).Error; err != nil {
		return storageErr("create contact", err)
	}
	return nil
}

func (s *MySQL) Contacts(ctx context.Context, userID uint) ([]model.User, error) {
	users := make([]model.User, 0)
	err := s.db.WithContext(ctx).
		Joins("JOIN contacts ON contacts.contact_id = users.id").
		Where("contacts.user_id = ?", userID).
		Order("users.username ASC").
		Find(&users).Error
	if err != nil {
		return nil, storageErr("list contacts", err)
	}
	return users, nil
}
