package models

import "time"

// Connection is one direction of a symmetric connection. Every accepted
// connection is stored as two rows, (a, b) and (b, a).
type Connection struct {
	UserID       uint `gorm:"primaryKey;autoIncrement:false"`
	ConnectionID uint `gorm:"primaryKey;autoIncrement:false;index"`
	CreatedAt    time.Time
}

// ConnectionRequest is an inbound pending request: RequesterID asked UserID to connect.
type ConnectionRequest struct {
	ID          uint `gorm:"primaryKey"`
	UserID      uint `gorm:"not null;uniqueIndex:idx_connection_request_pair,priority:1"`
	RequesterID uint `gorm:"not null;uniqueIndex:idx_connection_request_pair,priority:2;index"`
	CreatedAt   time.Time
}

// All lists every model that needs a table, in migration order.
func All() []interface{} {
	return []interface{}{
		&User{},
		&Post{},
		&Comment{},
		&Like{},
		&Connection{},
		&ConnectionRequest{},
	}
}
