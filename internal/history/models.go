package history

import "time"

const (
	RoleHuman = "human"
	RoleAI    = "ai"
)

type Conversation struct {
	ID             uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	ConversationID string    `gorm:"type:varchar(26);uniqueIndex;not null" json:"conversation_id"`
	UserID         uint64    `gorm:"index:idx_conv_user_active,priority:1;not null" json:"user_id"`
	IsActive       bool      `gorm:"index:idx_conv_user_active,priority:2;not null" json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (Conversation) TableName() string { return "conversations" }

type Message struct {
	ID             uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	ConversationID string    `gorm:"type:varchar(26);index;not null" json:"conversation_id"`
	Role           string    `gorm:"type:varchar(16);not null" json:"role"`
	Content        string    `gorm:"type:text;not null" json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

func (Message) TableName() string { return "messages" }

// ConversationHistory is the conversation plus its ordered message log.
type ConversationHistory struct {
	ConversationID string    `json:"conversation_id"`
	UserID         uint64    `json:"user_id"`
	CreatedAt      time.Time `json:"created_at"`
	IsActive       bool      `json:"is_active"`
	Messages       []Message `json:"messages"`
}
