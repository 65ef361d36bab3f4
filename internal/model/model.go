package model

import "time"

// Kind values accepted for Message.Kind. Content is an opaque blob in every
// case; for media kinds it carries a reference to the uploaded file.
const (
	KindText  = "text"
	KindImage = "image"
	KindAudio = "audio"
	KindVideo = "video"
)

func ValidKind(kind string) bool {
	switch kind {
	case KindText, KindImage, KindAudio, KindVideo:
		return true
	}
	return false
}

type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Username     string    `gorm:"size:80;not null;uniqueIndex" json:"username"`
	PasswordHash string    `gorm:"size:255;not null" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

type Contact struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index;uniqueIndex:idx_user_contact" json:"user_id"`
	ContactID uint      `gorm:"not null;uniqueIndex:idx_user_contact" json:"contact_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Message is immutable once stored except for the Read transition false->true.
type Message struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	SenderID   uint      `gorm:"not null;index" json:"sender_id"`
	ReceiverID uint      `gorm:"not null;index" json:"receiver_id"`
	Kind       string    `gorm:"size:16;not null;default:text" json:"kind"`
	Content    string    `gorm:"type:text;not null" json:"content"`
	Read       bool      `gorm:"not null;default:false" json:"read"`
	CreatedAt  time.Time `json:"created_at"`
}
