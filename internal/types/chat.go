package types

import (
	"time"
)

type Chat struct {
	ID        int       `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string    `gorm:"column:name;not null" json:"name"`
	CreatedAt time.Time `gorm:"not null;default:now()" json:"createdAt"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updatedAt"`

	Messages []Message `gorm:"foreignKey:ChatID;references:ID" json:"messages,omitempty"`
	Docs     []Doc     `gorm:"foreignKey:ChatID;references:ID" json:"docs,omitempty"`
}

func (Chat) TableName() string {
	return "chat"
}
