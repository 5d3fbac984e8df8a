package models

import "time"

type User struct {
	ID           uint   `gorm:"primaryKey"`
	Email        string `gorm:"uniqueIndex;size:128;not null"`
	FullName     string `gorm:"size:128;not null"`
	PasswordHash string `gorm:"not null"`
	ProfilePic   string
	Bio          string `gorm:"type:text"`
	Status       string `gorm:"size:190;default:'Hey there! I''m using Chatty'"`
	LastSeen     time.Time
	Friends      []*User `gorm:"many2many:user_friends;joinForeignKey:UserID;joinReferences:FriendID"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// FriendRequest 的待处理记录按 (from,to) 至多一条，由 service 层保证。
type FriendRequest struct {
	ID        uint   `gorm:"primaryKey"`
	FromID    uint   `gorm:"index:idx_freq_from_to;not null"`
	ToID      uint   `gorm:"index:idx_freq_from_to;index;not null"`
	Status    string `gorm:"size:16;not null;default:'pending'"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

const (
	RequestPending  = "pending"
	RequestAccepted = "accepted"
	RequestDeclined = "declined"
)

type Group struct {
	ID          uint    `gorm:"primaryKey"`
	Name        string  `gorm:"size:128;not null"`
	Description string  `gorm:"type:text"`
	CreatedBy   uint    `gorm:"not null"`
	Members     []*User `gorm:"many2many:group_members"`
	Admins      []*User `gorm:"many2many:group_admins"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Message 的 ReceiverID/GroupID 恰好一个非空；构造路径见 fanout.Target。
type Message struct {
	ID         uint   `gorm:"primaryKey"`
	SenderID   uint   `gorm:"index;not null"`
	ReceiverID *uint  `gorm:"index:idx_msg_receiver"`
	GroupID    *uint  `gorm:"index:idx_msg_group"`
	Text       string `gorm:"type:text"`
	Image      string
	ReplyToID  *uint
	Edited     bool `gorm:"not null;default:false"`
	EditedAt   *time.Time
	Deleted    bool `gorm:"not null;default:false"`
	DeletedAt  *time.Time
	ReadBy     []MessageRead `gorm:"foreignKey:MessageID"`
	CreatedAt  time.Time     `gorm:"index"`
}

// MessageRead 每个 (message,user) 至多一条回执，只增不删。
type MessageRead struct {
	ID        uint `gorm:"primaryKey"`
	MessageID uint `gorm:"uniqueIndex:idx_read_once;not null"`
	UserID    uint `gorm:"uniqueIndex:idx_read_once;not null"`
	ReadAt    time.Time
}

type RefreshToken struct {
	ID        uint      `gorm:"primaryKey"`
	UserID    uint      `gorm:"index;not null"`
	Token     string    `gorm:"uniqueIndex;size:128;not null"`
	ExpiresAt time.Time `gorm:"index;not null"`
	RevokedAt *time.Time
	CreatedAt time.Time
}
