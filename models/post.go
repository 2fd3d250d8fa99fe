package models

import "time"

// Post is a piece of content published by a user. A repost is a Post whose
// OriginalPostID points at another post; the reference is not a foreign key
// so that deleting the original leaves reposts in place.
type Post struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	UserID         uint      `gorm:"index:idx_posts_author_created,priority:1;not null" json:"-"`
	Content        string    `gorm:"type:text;not null" json:"content"`
	Image          string    `gorm:"size:512" json:"image"`
	IsRepost       bool      `gorm:"default:false" json:"isRepost"`
	OriginalPostID *uint     `gorm:"index" json:"-"`
	CreatedAt      time.Time `gorm:"index:idx_posts_author_created,priority:2" json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`

	Author          *UserSummary `gorm:"-" json:"author"`
	Likes           []uint       `gorm:"-" json:"likes"`
	Comments        []Comment    `gorm:"-" json:"comments"`
	OriginalPost    *Post        `gorm:"-" json:"originalPost"`
	OriginalRemoved bool         `gorm:"-" json:"originalRemoved,omitempty"`
	LikeCount       int          `gorm:"-" json:"likeCount"`
	CommentCount    int          `gorm:"-" json:"commentCount"`
}

// Like records that a user likes a post. The composite primary key makes
// membership unique per (post, user).
type Like struct {
	PostID    uint      `gorm:"primaryKey;autoIncrement:false" json:"postId"`
	UserID    uint      `gorm:"primaryKey;autoIncrement:false;index" json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
}

// TableName pins the likes table name.
func (Like) TableName() string {
	return "post_likes"
}
