package types

import (
	"time"
)

// Doc is one uploaded PDF. Its chunks live in the vector index under
// CollectionName; the raw bytes live in object storage under FileKey.
type Doc struct {
	ID             int       `gorm:"primaryKey;autoIncrement" json:"id"`
	ChatID         int       `gorm:"column:chat_id;not null;index" json:"chatId"`
	FileName       string    `gorm:"column:file_name;not null" json:"fileName"`
	FileKey        string    `gorm:"column:file_key;not null" json:"fileKey"`
	MimeType       string    `gorm:"column:mime_type;not null" json:"mimeType"`
	SizeBytes      int64     `gorm:"column:size_bytes;not null" json:"sizeBytes"`
	CollectionName string    `gorm:"column:collection_name;not null" json:"collectionName"`
	CreatedAt      time.Time `gorm:"not null;default:now()" json:"createdAt"`
	UpdatedAt      time.Time `gorm:"not null;default:now()" json:"updatedAt"`
}

func (Doc) TableName() string {
	return "doc"
}
