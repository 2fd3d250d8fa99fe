package services

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/linkup-social/linkup/metrics"
	"github.com/linkup-social/linkup/models"
	"github.com/linkup-social/linkup/utils"
)

const (
	maxPostLength    = 1000
	maxCommentLength = 500

	// PostListCacheKey holds the rendered feed when Redis is enabled.
	PostListCacheKey = "cache:posts:list"
)

// ImageRemover deletes stored images; satisfied by the upload gateway.
type ImageRemover interface {
	Remove(ctx context.Context, url string) error
}

// PostService owns posts and their engagement.
type PostService struct {
	db      *gorm.DB
	cache   *utils.Cache
	bus     *EventBus
	images  ImageRemover
	metrics *metrics.Metrics
}

// NewPostService creates a PostService. cache, bus, images and m may be nil.
func NewPostService(db *gorm.DB, cache *utils.Cache, bus *EventBus, images ImageRemover, m *metrics.Metrics) *PostService {
	return &PostService{db: db, cache: cache, bus: bus, images: images, metrics: m}
}

// CheckPostContent validates post text without storing anything.
func CheckPostContent(content string) error {
	_, err := postContent(content)
	return err
}

func postContent(content string) (string, error) {
	clean, n := utils.CleanText(content)
	if n == 0 {
		return "", validationf("post content is required")
	}
	if n > maxPostLength {
		return "", validationf("post cannot be more than %d characters", maxPostLength)
	}
	return clean, nil
}

// Create publishes a new post. image is a reference returned by the upload gateway.
func (s *PostService) Create(ctx context.Context, authorID uint, content, image string) (*models.Post, error) {
	clean, err := postContent(content)
	if err != nil {
		return nil, err
	}

	post := models.Post{UserID: authorID, Content: clean, Image: image}
	if err := s.db.WithContext(ctx).Create(&post).Error; err != nil {
		return nil, fmt.Errorf("create post: %w", err)
	}
	s.metrics.Engagement("post")
	return s.afterMutation(ctx, EventPostCreated, post.ID)
}

// List returns every post, newest first, with authors, comments and originals resolved.
func (s *PostService) List(ctx context.Context) ([]models.Post, error) {
	return s.list(ctx, s.db.WithContext(ctx))
}

// ListByAuthor returns the posts of one user, newest first.
func (s *PostService) ListByAuthor(ctx context.Context, authorID uint) ([]models.Post, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", authorID).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if count == 0 {
		return nil, notFound("user")
	}
	return s.list(ctx, s.db.WithContext(ctx).Where("user_id = ?", authorID))
}

func (s *PostService) list(ctx context.Context, query *gorm.DB) ([]models.Post, error) {
	var posts []models.Post
	if err := query.Order("created_at DESC, id DESC").Find(&posts).Error; err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	if err := s.hydrate(ctx, posts, 1); err != nil {
		return nil, err
	}
	return posts, nil
}

// Get returns one post. A view by anyone other than the author counts as an impression for the author.
func (s *PostService) Get(ctx context.Context, postID, viewerID uint) (*models.Post, error) {
	post, err := s.load(ctx, postID)
	if err != nil {
		return nil, err
	}
	if viewerID != 0 && viewerID != post.UserID {
		if err := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", post.UserID).
			UpdateColumn("post_impressions", gorm.Expr("post_impressions + ?", 1)).Error; err != nil {
			utils.Sugar.Warnf("record impression post=%d: %v", postID, err)
		}
	}
	return post, nil
}

// Update replaces the content of a post owned by authorID.
func (s *PostService) Update(ctx context.Context, postID, authorID uint, content string) (*models.Post, error) {
	clean, err := postContent(content)
	if err != nil {
		return nil, err
	}

	post, err := s.owned(ctx, postID, authorID, "not authorized to update this post")
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(post).Update("content", clean).Error; err != nil {
		return nil, fmt.Errorf("update post: %w", err)
	}
	s.metrics.Engagement("edit")
	return s.afterMutation(ctx, EventPostUpdated, postID)
}

// Delete removes a post owned by authorID together with its comments and likes.
// Reposts of it are kept and render the original as removed.
func (s *PostService) Delete(ctx context.Context, postID, authorID uint) error {
	post, err := s.owned(ctx, postID, authorID, "not authorized to delete this post")
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("post_id = ?", postID).Delete(&models.Comment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("post_id = ?", postID).Delete(&models.Like{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Post{}, postID).Error
	})
	if err != nil {
		return fmt.Errorf("delete post: %w", err)
	}

	if post.Image != "" && s.images != nil {
		if err := s.images.Remove(ctx, post.Image); err != nil {
			utils.Sugar.Warnf("remove image of deleted post=%d: %v", postID, err)
		}
	}
	s.metrics.Engagement("delete")
	s.cache.Bump(ctx, PostListCacheKey)
	s.publish(FeedEvent{Type: EventPostDeleted, PostID: postID})
	return nil
}

// ToggleLike flips userID's like on a post and reports whether the post is now liked.
//
// The like row's primary key is (post_id, user_id). A toggle first tries to delete the row;
// if nothing was deleted it inserts, ignoring a conflicting concurrent insert. Racing toggles
// by the same user therefore never duplicate a like.
func (s *PostService) ToggleLike(ctx context.Context, postID, userID uint) (*models.Post, bool, error) {
	liked := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Select("id").First(&models.Post{}, postID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound("post")
			}
			return err
		}
		res := tx.Where("post_id = ? AND user_id = ?", postID, userID).Delete(&models.Like{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			return nil
		}
		liked = true
		return tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&models.Like{PostID: postID, UserID: userID}).Error
	})
	if err != nil {
		if IsNotFound(err) {
			return nil, false, err
		}
		return nil, false, fmt.Errorf("toggle like: %w", err)
	}

	if liked {
		s.metrics.Engagement("like")
	} else {
		s.metrics.Engagement("unlike")
	}
	post, err := s.afterMutation(ctx, EventPostUpdated, postID)
	return post, liked, err
}

// AddComment appends a comment to a post.
func (s *PostService) AddComment(ctx context.Context, postID, userID uint, text string) (*models.Post, error) {
	clean, n := utils.CleanText(text)
	if n == 0 {
		return nil, validationf("comment text is required")
	}
	if n > maxCommentLength {
		return nil, validationf("comment cannot be more than %d characters", maxCommentLength)
	}
	if err := s.exists(ctx, postID); err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Create(&models.Comment{PostID: postID, UserID: userID, Text: clean}).Error; err != nil {
		return nil, fmt.Errorf("add comment: %w", err)
	}
	s.metrics.Engagement("comment")
	return s.afterMutation(ctx, EventPostUpdated, postID)
}

// Repost creates a new post by userID referencing postID. Reposting a repost
// references the repost itself.
func (s *PostService) Repost(ctx context.Context, postID, userID uint, content string) (*models.Post, error) {
	clean, n := utils.CleanText(content)
	if n > maxPostLength {
		return nil, validationf("post cannot be more than %d characters", maxPostLength)
	}
	if err := s.exists(ctx, postID); err != nil {
		return nil, err
	}

	original := postID
	repost := models.Post{UserID: userID, Content: clean, IsRepost: true, OriginalPostID: &original}
	if err := s.db.WithContext(ctx).Create(&repost).Error; err != nil {
		return nil, fmt.Errorf("create repost: %w", err)
	}
	s.metrics.Engagement("repost")
	return s.afterMutation(ctx, EventPostCreated, repost.ID)
}

// afterMutation invalidates the feed cache, reloads the post and announces it.
func (s *PostService) afterMutation(ctx context.Context, eventType string, postID uint) (*models.Post, error) {
	s.cache.Bump(ctx, PostListCacheKey)
	post, err := s.load(ctx, postID)
	if err != nil {
		return nil, err
	}
	s.publish(FeedEvent{Type: eventType, PostID: postID, Post: post})
	return post, nil
}

func (s *PostService) publish(ev FeedEvent) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ev); err != nil {
		utils.Sugar.Warnf("publish %s post=%d: %v", ev.Type, ev.PostID, err)
	}
}

func (s *PostService) load(ctx context.Context, postID uint) (*models.Post, error) {
	var post models.Post
	if err := s.db.WithContext(ctx).First(&post, postID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("post")
		}
		return nil, fmt.Errorf("load post: %w", err)
	}
	posts := []models.Post{post}
	if err := s.hydrate(ctx, posts, 1); err != nil {
		return nil, err
	}
	return &posts[0], nil
}

func (s *PostService) exists(ctx context.Context, postID uint) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Post{}).Where("id = ?", postID).Count(&count).Error; err != nil {
		return fmt.Errorf("load post: %w", err)
	}
	if count == 0 {
		return notFound("post")
	}
	return nil
}

func (s *PostService) owned(ctx context.Context, postID, userID uint, denied string) (*models.Post, error) {
	var post models.Post
	if err := s.db.WithContext(ctx).First(&post, postID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("post")
		}
		return nil, fmt.Errorf("load post: %w", err)
	}
	if post.UserID != userID {
		return nil, &AuthorizationError{Message: denied}
	}
	return &post, nil
}

// hydrate resolves authors, likes, comments and comment authors for posts in place.
// Originals of reposts are resolved depth levels deep.
func (s *PostService) hydrate(ctx context.Context, posts []models.Post, depth int) error {
	if len(posts) == 0 {
		return nil
	}
	db := s.db.WithContext(ctx)

	postIDs := make([]uint, 0, len(posts))
	userIDs := make([]uint, 0, len(posts))
	var originalIDs []uint
	for i := range posts {
		postIDs = append(postIDs, posts[i].ID)
		userIDs = append(userIDs, posts[i].UserID)
		if posts[i].OriginalPostID != nil {
			originalIDs = append(originalIDs, *posts[i].OriginalPostID)
		}
	}

	var likes []models.Like
	if err := db.Where("post_id IN ?", postIDs).Order("created_at, user_id").Find(&likes).Error; err != nil {
		return fmt.Errorf("load likes: %w", err)
	}
	likesByPost := make(map[uint][]uint, len(posts))
	for _, l := range likes {
		likesByPost[l.PostID] = append(likesByPost[l.PostID], l.UserID)
	}

	var comments []models.Comment
	if err := db.Where("post_id IN ?", postIDs).Order("created_at, id").Find(&comments).Error; err != nil {
		return fmt.Errorf("load comments: %w", err)
	}
	for _, c := range comments {
		userIDs = append(userIDs, c.UserID)
	}

	summaries, err := loadSummaries(db, userIDs)
	if err != nil {
		return err
	}
	commentsByPost := make(map[uint][]models.Comment, len(posts))
	for _, c := range comments {
		if u, ok := summaries[c.UserID]; ok {
			c.User = &u
		}
		commentsByPost[c.PostID] = append(commentsByPost[c.PostID], c)
	}

	originals := map[uint]*models.Post{}
	if depth > 0 && len(originalIDs) > 0 {
		var found []models.Post
		if err := db.Where("id IN ?", utils.UniqueUint(originalIDs)).Find(&found).Error; err != nil {
			return fmt.Errorf("load original posts: %w", err)
		}
		if err := s.hydrate(ctx, found, depth-1); err != nil {
			return err
		}
		for i := range found {
			originals[found[i].ID] = &found[i]
		}
	}

	for i := range posts {
		p := &posts[i]
		if u, ok := summaries[p.UserID]; ok {
			p.Author = &u
		}
		p.Likes = likesByPost[p.ID]
		if p.Likes == nil {
			p.Likes = []uint{}
		}
		p.Comments = commentsByPost[p.ID]
		if p.Comments == nil {
			p.Comments = []models.Comment{}
		}
		p.LikeCount = len(p.Likes)
		p.CommentCount = len(p.Comments)
		if p.OriginalPostID != nil && depth > 0 {
			if orig, ok := originals[*p.OriginalPostID]; ok {
				p.OriginalPost = orig
			} else {
				p.OriginalRemoved = true
			}
		}
	}
	return nil
}
