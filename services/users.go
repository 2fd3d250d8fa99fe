package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/linkup-social/linkup/models"
	"github.com/linkup-social/linkup/utils"
)

const (
	maxBioLength      = 500
	maxHeadlineLength = 120
	suggestionLimit   = 5
	searchLimit       = 10
)

// UserService owns profiles and the connection graph.
type UserService struct {
	db    *gorm.DB
	cache *utils.Cache
}

// NewUserService creates a UserService. cache may be nil.
func NewUserService(db *gorm.DB, cache *utils.Cache) *UserService {
	return &UserService{db: db, cache: cache}
}

// Get loads a user with connections and pending inbound requests resolved.
func (s *UserService) Get(ctx context.Context, id uint) (*models.User, error) {
	db := s.db.WithContext(ctx)
	var user models.User
	if err := db.First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("user")
		}
		return nil, fmt.Errorf("load user: %w", err)
	}

	var connectionIDs []uint
	if err := db.Model(&models.Connection{}).Where("user_id = ?", id).
		Order("created_at").Pluck("connection_id", &connectionIDs).Error; err != nil {
		return nil, fmt.Errorf("load connections: %w", err)
	}
	var requesterIDs []uint
	if err := db.Model(&models.ConnectionRequest{}).Where("user_id = ?", id).
		Order("created_at, id").Pluck("requester_id", &requesterIDs).Error; err != nil {
		return nil, fmt.Errorf("load connection requests: %w", err)
	}

	summaries, err := loadSummaries(db, append(append([]uint{}, connectionIDs...), requesterIDs...))
	if err != nil {
		return nil, err
	}
	user.Connections = orderedSummaries(connectionIDs, summaries)
	user.ConnectionRequests = orderedSummaries(requesterIDs, summaries)
	return &user, nil
}

// ProfileUpdate lists the editable profile fields. Nil fields are left unchanged.
type ProfileUpdate struct {
	Name           *string
	Bio            *string
	Headline       *string
	Location       *string
	ProfilePicture *string
	Experience     *[]models.Experience
	Education      *[]models.Education
	Skills         *[]models.Skill
}

// CheckProfile validates a profile update without applying it.
func CheckProfile(in ProfileUpdate) error {
	_, err := profileUpdates(in)
	return err
}

func profileUpdates(in ProfileUpdate) (map[string]interface{}, error) {
	updates := map[string]interface{}{}

	if in.Name != nil {
		name, n := utils.CleanText(*in.Name)
		if n == 0 {
			return nil, validationf("name is required")
		}
		if n > maxNameLength {
			return nil, validationf("name cannot be more than %d characters", maxNameLength)
		}
		updates["name"] = name
	}
	if in.Bio != nil {
		bio, n := utils.CleanText(*in.Bio)
		if n > maxBioLength {
			return nil, validationf("bio cannot be more than %d characters", maxBioLength)
		}
		updates["bio"] = bio
	}
	if in.Headline != nil {
		headline, n := utils.CleanText(*in.Headline)
		if n > maxHeadlineLength {
			return nil, validationf("headline cannot be more than %d characters", maxHeadlineLength)
		}
		updates["headline"] = headline
	}
	if in.Location != nil {
		location, _ := utils.CleanText(*in.Location)
		updates["location"] = location
	}
	if in.ProfilePicture != nil {
		updates["profile_picture"] = *in.ProfilePicture
	}
	if in.Experience != nil {
		updates["experience"] = datatypes.JSONSlice[models.Experience](*in.Experience)
	}
	if in.Education != nil {
		updates["education"] = datatypes.JSONSlice[models.Education](*in.Education)
	}
	if in.Skills != nil {
		skills := make([]models.Skill, 0, len(*in.Skills))
		for _, sk := range *in.Skills {
			name, _ := utils.CleanText(sk.Name)
			if name == "" {
				continue
			}
			if sk.Endorsements < 0 {
				sk.Endorsements = 0
			}
			skills = append(skills, models.Skill{Name: name, Endorsements: sk.Endorsements})
		}
		updates["skills"] = datatypes.JSONSlice[models.Skill](skills)
	}

	return updates, nil
}

// UpdateProfile applies the provided fields and returns the refreshed profile.
func (s *UserService) UpdateProfile(ctx context.Context, userID uint, in ProfileUpdate) (*models.User, error) {
	updates, err := profileUpdates(in)
	if err != nil {
		return nil, err
	}

	if len(updates) > 0 {
		if err := s.ensureExists(ctx, userID); err != nil {
			return nil, err
		}
		if err := s.db.WithContext(ctx).Model(&models.User{ID: userID}).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("update profile: %w", err)
		}
		// Cached feed pages embed author names and avatars
		s.cache.Bump(ctx, PostListCacheKey)
	}
	return s.Get(ctx, userID)
}

// RecordView increments the profile view counter of target. Viewing yourself is a no-op.
func (s *UserService) RecordView(ctx context.Context, viewerID, targetID uint) error {
	if viewerID == targetID {
		return nil
	}
	res := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", targetID).
		UpdateColumn("profile_views", gorm.Expr("profile_views + ?", 1))
	if res.Error != nil {
		return fmt.Errorf("record profile view: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return notFound("user")
	}
	return nil
}

// RequestConnection records a pending request from fromID to toID.
func (s *UserService) RequestConnection(ctx context.Context, fromID, toID uint) error {
	if fromID == toID {
		return validationf("you cannot connect with yourself")
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Select("id").First(&models.User{}, toID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound("user")
			}
			return err
		}

		var count int64
		if err := tx.Model(&models.Connection{}).
			Where("user_id = ? AND connection_id = ?", fromID, toID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return &ConflictError{Message: "already connected"}
		}

		var pending []models.ConnectionRequest
		if err := tx.Where("(user_id = ? AND requester_id = ?) OR (user_id = ? AND requester_id = ?)",
			toID, fromID, fromID, toID).Find(&pending).Error; err != nil {
			return err
		}
		if len(pending) > 0 {
			if pending[0].RequesterID == fromID {
				return &ConflictError{Message: "request already sent"}
			}
			return &ConflictError{Message: "this user has already sent you a request"}
		}

		res := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&models.ConnectionRequest{UserID: toID, RequesterID: fromID})
		if res.Error != nil {
			return fmt.Errorf("create connection request: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return &ConflictError{Message: "request already sent"}
		}
		return nil
	})
}

// AcceptConnection connects selfID and requesterID if requesterID has a pending request to selfID.
// Pending requests in both directions are cleared.
func (s *UserService) AcceptConnection(ctx context.Context, selfID, requesterID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("user_id = ? AND requester_id = ?", selfID, requesterID).Delete(&models.ConnectionRequest{})
		if res.Error != nil {
			return fmt.Errorf("remove connection request: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return validationf("no connection request found")
		}
		if err := tx.Where("user_id = ? AND requester_id = ?", requesterID, selfID).
			Delete(&models.ConnectionRequest{}).Error; err != nil {
			return fmt.Errorf("remove reciprocal request: %w", err)
		}

		pair := []models.Connection{
			{UserID: selfID, ConnectionID: requesterID},
			{UserID: requesterID, ConnectionID: selfID},
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&pair).Error; err != nil {
			return fmt.Errorf("create connection: %w", err)
		}
		return nil
	})
}

// Suggestions returns up to five users who are neither connected to nor in a pending request with userID.
func (s *UserService) Suggestions(ctx context.Context, userID uint) ([]models.UserSummary, error) {
	db := s.db.WithContext(ctx)
	excluded := []uint{userID}

	var ids []uint
	if err := db.Model(&models.Connection{}).Where("user_id = ?", userID).Pluck("connection_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("load connections: %w", err)
	}
	excluded = append(excluded, ids...)
	ids = nil
	if err := db.Model(&models.ConnectionRequest{}).Where("user_id = ?", userID).Pluck("requester_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("load inbound requests: %w", err)
	}
	excluded = append(excluded, ids...)
	ids = nil
	if err := db.Model(&models.ConnectionRequest{}).Where("requester_id = ?", userID).Pluck("user_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("load outbound requests: %w", err)
	}
	excluded = append(excluded, ids...)

	var users []models.User
	if err := db.Where("id NOT IN ?", utils.UniqueUint(excluded)).
		Order("created_at DESC, id DESC").Limit(suggestionLimit).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("load suggestions: %w", err)
	}
	return summarize(users), nil
}

// Search matches names case-insensitively, excluding the caller.
func (s *UserService) Search(ctx context.Context, query string, excludingID uint) ([]models.UserSummary, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []models.UserSummary{}, nil
	}
	pattern := "%" + escapeLike(strings.ToLower(query)) + "%"

	var users []models.User
	if err := s.db.WithContext(ctx).
		Where("LOWER(name) LIKE ? ESCAPE '!'", pattern).
		Where("id <> ?", excludingID).
		Order("name, id").Limit(searchLimit).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	return summarize(users), nil
}

func (s *UserService) ensureExists(ctx context.Context, id uint) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	if count == 0 {
		return notFound("user")
	}
	return nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")
	return r.Replace(s)
}

func summarize(users []models.User) []models.UserSummary {
	out := make([]models.UserSummary, 0, len(users))
	for i := range users {
		out = append(out, users[i].Summary())
	}
	return out
}

// loadSummaries fetches the public summaries of the given users keyed by id.
func loadSummaries(db *gorm.DB, ids []uint) (map[uint]models.UserSummary, error) {
	ids = utils.UniqueUint(ids)
	out := make(map[uint]models.UserSummary, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var users []models.User
	if err := db.Select("id", "name", "profile_picture", "headline").Find(&users, ids).Error; err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	for i := range users {
		out[users[i].ID] = models.UserSummary{
			ID:             users[i].ID,
			Name:           users[i].Name,
			ProfilePicture: users[i].ProfilePicture,
			Headline:       users[i].Headline,
		}
	}
	return out, nil
}

func orderedSummaries(ids []uint, byID map[uint]models.UserSummary) []models.UserSummary {
	out := make([]models.UserSummary, 0, len(ids))
	for _, id := range ids {
		if u, ok := byID[id]; ok {
			out = append(out, u)
		}
	}
	return out
}
