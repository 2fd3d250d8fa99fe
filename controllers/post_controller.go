package controllers

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/linkup-social/linkup/metrics"
	"github.com/linkup-social/linkup/services"
	"github.com/linkup-social/linkup/utils"
)

// PostController manages posts and their engagement.
type PostController struct {
	posts   *services.PostService
	uploads ImageUploader
	cache   *utils.Cache
	metrics *metrics.Metrics
	dev     bool
}

// NewPostController creates a new PostController instance.
func NewPostController(posts *services.PostService, uploads ImageUploader, cache *utils.Cache, m *metrics.Metrics, dev bool) *PostController {
	return &PostController{posts: posts, uploads: uploads, cache: cache, metrics: m, dev: dev}
}

// CreatePost accepts JSON or a multipart form with an optional image field.
func (p *PostController) CreatePost(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		return
	}

	var req struct {
		Content string `json:"content" form:"content"`
	}
	if err := ctx.ShouldBind(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid request payload")
		return
	}

	var image string
	if isMultipart(ctx) {
		if fh, err := ctx.FormFile("image"); err == nil {
			if err := services.CheckPostContent(req.Content); err != nil {
				respondError(ctx, err, p.dev)
				return
			}
			url, err := p.uploads.UploadFile(ctx.Request.Context(), fh)
			if err != nil {
				respondError(ctx, err, p.dev)
				return
			}
			image = url
		}
	}

	post, err := p.posts.Create(ctx.Request.Context(), userID, req.Content, image)
	if err != nil {
		discardUpload(ctx, p.uploads, image)
		respondError(ctx, err, p.dev)
		return
	}
	utils.Respond(ctx, http.StatusCreated, "Post created successfully", gin.H{"post": post})
}

// ListPosts returns the whole feed, newest first. The rendered body is cached in Redis
// until the next post mutation or profile update.
func (p *PostController) ListPosts(ctx *gin.Context) {
	key := p.cache.VersionedKey(ctx.Request.Context(), services.PostListCacheKey)
	if b, ok := p.cache.GetBytes(ctx.Request.Context(), key); ok {
		p.metrics.CacheLookup(true)
		ctx.Data(http.StatusOK, "application/json; charset=utf-8", b)
		return
	}
	if p.cache.Enabled() {
		p.metrics.CacheLookup(false)
	}

	posts, err := p.posts.List(ctx.Request.Context())
	if err != nil {
		respondError(ctx, err, p.dev)
		return
	}
	payload := gin.H{"success": true, "count": len(posts), "posts": posts}
	p.cache.SetJSON(ctx.Request.Context(), key, payload, time.Hour)
	ctx.JSON(http.StatusOK, payload)
}

// GetPost returns a single post and records an impression for its author.
func (p *PostController) GetPost(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		return
	}
	postID, err := idParam(ctx, "id")
	if err != nil {
		respondError(ctx, err, p.dev)
		return
	}
	post, err := p.posts.Get(ctx.Request.Context(), postID, userID)
	if err != nil {
		respondError(ctx, err, p.dev)
		return
	}
	utils.Success(ctx, gin.H{"post": post})
}

// UpdatePost edits the content of the caller's own post.
func (p *PostController) UpdatePost(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		return
	}
	postID, err := idParam(ctx, "id")
	if err != nil {
		respondError(ctx, err, p.dev)
		return
	}
	var req struct {
		Content string `json:"content"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid request payload")
		return
	}

	post, err := p.posts.Update(ctx.Request.Context(), postID, userID, req.Content)
	if err != nil {
		respondError(ctx, err, p.dev)
		return
	}
	utils.Respond(ctx, http.StatusOK, "Post updated successfully", gin.H{"post": post})
}

// DeletePost removes the caller's own post.
func (p *PostController) DeletePost(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		return
	}
	postID, err := idParam(ctx, "id")
	if err != nil {
		respondError(ctx, err, p.dev)
		return
	}
	if err := p.posts.Delete(ctx.Request.Context(), postID, userID); err != nil {
		respondError(ctx, err, p.dev)
		return
	}
	utils.Respond(ctx, http.StatusOK, "Post deleted successfully", nil)
}

// CreateComment appends a comment. The text may be sent as text or content.
func (p *PostController) CreateComment(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		return
	}
	postID, err := idParam(ctx, "id")
	if err != nil {
		respondError(ctx, err, p.dev)
		return
	}
	var req struct {
		Text    string `json:"text"`
		Content string `json:"content"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid request payload")
		return
	}
	text := req.Text
	if text == "" {
		text = req.Content
	}

	post, err := p.posts.AddComment(ctx.Request.Context(), postID, userID, text)
	if err != nil {
		respondError(ctx, err, p.dev)
		return
	}
	utils.Respond(ctx, http.StatusOK, "Comment added successfully", gin.H{"post": post})
}

// ToggleLike likes the post, or unlikes it when the caller already does.
func (p *PostController) ToggleLike(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		return
	}
	postID, err := idParam(ctx, "id")
	if err != nil {
		respondError(ctx, err, p.dev)
		return
	}

	post, liked, err := p.posts.ToggleLike(ctx.Request.Context(), postID, userID)
	if err != nil {
		respondError(ctx, err, p.dev)
		return
	}
	message := "Post unliked"
	if liked {
		message = "Post liked"
	}
	utils.Respond(ctx, http.StatusOK, message, gin.H{"post": post, "liked": liked})
}

// Repost shares a post with optional commentary.
func (p *PostController) Repost(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		return
	}
	postID, err := idParam(ctx, "id")
	if err != nil {
		respondError(ctx, err, p.dev)
		return
	}
	var req struct {
		Content string `json:"content"`
	}
	// Body is optional, but a body that is present must be valid
	if err := ctx.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid request payload")
		return
	}

	post, err := p.posts.Repost(ctx.Request.Context(), postID, userID, req.Content)
	if err != nil {
		respondError(ctx, err, p.dev)
		return
	}
	utils.Respond(ctx, http.StatusCreated, "Post reposted successfully", gin.H{"post": post})
}
