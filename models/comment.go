package models

import "time"

// Comment is an append-only reply on a post.
type Comment struct {
	ID        uint         `gorm:"primaryKey" json:"id"`
	PostID    uint         `gorm:"index;not null" json:"-"`
	UserID    uint         `gorm:"index;not null" json:"-"`
	Text      string       `gorm:"type:text;not null" json:"text"`
	CreatedAt time.Time    `json:"createdAt"`
	User      *UserSummary `gorm:"-" json:"user"`
}
