package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// User represents a member of the network. Passwords are stored as bcrypt hashes only.
type User struct {
	ID              uint                            `gorm:"primaryKey" json:"id"`
	Name            string                          `gorm:"size:64;not null;index" json:"name"`
	Email           string                          `gorm:"size:255;not null;uniqueIndex" json:"email"`
	PasswordHash    string                          `gorm:"size:255" json:"-"`
	Provider        string                          `gorm:"size:32" json:"-"`
	ProviderID      string                          `gorm:"size:255;index" json:"-"`
	ProfilePicture  string                          `gorm:"size:512" json:"profilePicture"`
	Bio             string                          `gorm:"size:512" json:"bio"`
	Headline        string                          `gorm:"size:128" json:"headline"`
	Location        string                          `gorm:"size:128" json:"location"`
	Experience      datatypes.JSONSlice[Experience] `json:"experience"`
	Education       datatypes.JSONSlice[Education]  `json:"education"`
	Skills          datatypes.JSONSlice[Skill]      `json:"skills"`
	ProfileViews    int64                           `gorm:"default:0" json:"profileViews"`
	PostImpressions int64                           `gorm:"default:0" json:"postImpressions"`
	CreatedAt       time.Time                       `json:"createdAt"`
	UpdatedAt       time.Time                       `json:"updatedAt"`

	// Resolved at read time from the connections tables.
	Connections        []UserSummary `gorm:"-" json:"connections"`
	ConnectionRequests []UserSummary `gorm:"-" json:"connectionRequests"`
}

// Experience is one entry of a user's work history.
type Experience struct {
	Title       string     `json:"title"`
	Company     string     `json:"company"`
	Location    string     `json:"location,omitempty"`
	StartDate   *time.Time `json:"startDate,omitempty"`
	EndDate     *time.Time `json:"endDate,omitempty"`
	Current     bool       `json:"current"`
	Description string     `json:"description,omitempty"`
}

// Education is one entry of a user's schooling.
type Education struct {
	School      string     `json:"school"`
	Degree      string     `json:"degree"`
	Field       string     `json:"field,omitempty"`
	StartDate   *time.Time `json:"startDate,omitempty"`
	EndDate     *time.Time `json:"endDate,omitempty"`
	Description string     `json:"description,omitempty"`
}

// Skill carries a name and its endorsement counter.
type Skill struct {
	Name         string `json:"name"`
	Endorsements int    `json:"endorsements"`
}

// UserSummary is the public projection used when a user is referenced from another entity.
type UserSummary struct {
	ID             uint   `json:"id"`
	Name           string `json:"name"`
	ProfilePicture string `json:"profilePicture"`
	Headline       string `json:"headline,omitempty"`
	Bio            string `json:"bio,omitempty"`
}

// Summary projects the user onto its public summary.
func (u *User) Summary() UserSummary {
	return UserSummary{
		ID:             u.ID,
		Name:           u.Name,
		ProfilePicture: u.ProfilePicture,
		Headline:       u.Headline,
		Bio:            u.Bio,
	}
}

// BeforeCreate hook ensures timestamps are set even when not provided.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	u.normalize()
	return nil
}

// BeforeUpdate ensures the UpdatedAt timestamp is refreshed.
func (u *User) BeforeUpdate(tx *gorm.DB) error {
	u.UpdatedAt = time.Now()
	return nil
}

// AfterFind keeps list fields serializing as arrays rather than null.
func (u *User) AfterFind(tx *gorm.DB) error {
	u.normalize()
	return nil
}

func (u *User) normalize() {
	if u.Experience == nil {
		u.Experience = datatypes.JSONSlice[Experience]{}
	}
	if u.Education == nil {
		u.Education = datatypes.JSONSlice[Education]{}
	}
	if u.Skills == nil {
		u.Skills = datatypes.JSONSlice[Skill]{}
	}
	if u.Connections == nil {
		u.Connections = []UserSummary{}
	}
	if u.ConnectionRequests == nil {
		u.ConnectionRequests = []UserSummary{}
	}
}
