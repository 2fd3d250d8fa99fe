package controllers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/linkup-social/linkup/models"
	"github.com/linkup-social/linkup/services"
	"github.com/linkup-social/linkup/utils"
)

// UserController serves profiles, search and the connection workflow.
type UserController struct {
	users   *services.UserService
	posts   *services.PostService
	uploads ImageUploader
	dev     bool
}

// NewUserController creates a UserController.
func NewUserController(users *services.UserService, posts *services.PostService, uploads ImageUploader, dev bool) *UserController {
	return &UserController{users: users, posts: posts, uploads: uploads, dev: dev}
}

// Profile returns the caller's own profile.
func (u *UserController) Profile(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		return
	}
	user, err := u.users.Get(ctx.Request.Context(), userID)
	if err != nil {
		respondError(ctx, err, u.dev)
		return
	}
	utils.Success(ctx, gin.H{"user": user})
}

// profileRequest accepts the editable fields. In multipart forms the list fields
// arrive as JSON strings.
type profileRequest struct {
	Name       *string             `json:"name"`
	Bio        *string             `json:"bio"`
	Headline   *string             `json:"headline"`
	Location   *string             `json:"location"`
	Experience *[]models.Experience `json:"experience"`
	Education  *[]models.Education  `json:"education"`
	Skills     *[]models.Skill      `json:"skills"`
}

// UpdateProfile applies a partial profile update, with an optional profilePicture upload.
func (u *UserController) UpdateProfile(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		return
	}

	var req profileRequest
	multipartForm := isMultipart(ctx)
	if multipartForm {
		if err := bindProfileForm(ctx, &req); err != nil {
			utils.Error(ctx, http.StatusBadRequest, 40001, err.Error())
			return
		}
	} else if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid request payload")
		return
	}

	update := services.ProfileUpdate{
		Name:       req.Name,
		Bio:        req.Bio,
		Headline:   req.Headline,
		Location:   req.Location,
		Experience: req.Experience,
		Education:  req.Education,
		Skills:     req.Skills,
	}

	var previous string
	if multipartForm {
		if fh, err := ctx.FormFile("profilePicture"); err == nil {
			if err := services.CheckProfile(update); err != nil {
				respondError(ctx, err, u.dev)
				return
			}
			current, err := u.users.Get(ctx.Request.Context(), userID)
			if err != nil {
				respondError(ctx, err, u.dev)
				return
			}
			url, err := u.uploads.UploadFile(ctx.Request.Context(), fh)
			if err != nil {
				respondError(ctx, err, u.dev)
				return
			}
			previous = current.ProfilePicture
			update.ProfilePicture = &url
		}
	}

	user, err := u.users.UpdateProfile(ctx.Request.Context(), userID, update)
	if err != nil {
		if update.ProfilePicture != nil {
			discardUpload(ctx, u.uploads, *update.ProfilePicture)
		}
		respondError(ctx, err, u.dev)
		return
	}
	// The replaced avatar is no longer referenced
	if update.ProfilePicture != nil && previous != *update.ProfilePicture {
		discardUpload(ctx, u.uploads, previous)
	}
	utils.Respond(ctx, http.StatusOK, "Profile updated successfully", gin.H{"user": user})
}

func bindProfileForm(ctx *gin.Context, req *profileRequest) error {
	text := func(key string) *string {
		if v, ok := ctx.GetPostForm(key); ok {
			return &v
		}
		return nil
	}
	req.Name = text("name")
	req.Bio = text("bio")
	req.Headline = text("headline")
	req.Location = text("location")

	list := func(key string, dst interface{}) error {
		v, ok := ctx.GetPostForm(key)
		if !ok || v == "" {
			return nil
		}
		if err := json.Unmarshal([]byte(v), dst); err != nil {
			return &services.ValidationError{Message: "invalid " + key + " format"}
		}
		return nil
	}
	if err := list("experience", &req.Experience); err != nil {
		return err
	}
	if err := list("education", &req.Education); err != nil {
		return err
	}
	return list("skills", &req.Skills)
}

// GetUser returns another user's profile.
func (u *UserController) GetUser(ctx *gin.Context) {
	id, err := idParam(ctx, "id")
	if err != nil {
		respondError(ctx, err, u.dev)
		return
	}
	user, err := u.users.Get(ctx.Request.Context(), id)
	if err != nil {
		respondError(ctx, err, u.dev)
		return
	}
	utils.Success(ctx, gin.H{"user": user})
}

// Search finds users by name.
func (u *UserController) Search(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		return
	}
	users, err := u.users.Search(ctx.Request.Context(), ctx.Query("q"), userID)
	if err != nil {
		respondError(ctx, err, u.dev)
		return
	}
	utils.Success(ctx, gin.H{"users": users})
}

// Suggestions lists people the caller may want to connect with.
func (u *UserController) Suggestions(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		return
	}
	suggestions, err := u.users.Suggestions(ctx.Request.Context(), userID)
	if err != nil {
		respondError(ctx, err, u.dev)
		return
	}
	utils.Success(ctx, gin.H{"suggestions": suggestions})
}

// RecordView counts a profile view.
func (u *UserController) RecordView(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		return
	}
	target, err := idParam(ctx, "userId")
	if err != nil {
		respondError(ctx, err, u.dev)
		return
	}
	if err := u.users.RecordView(ctx.Request.Context(), userID, target); err != nil {
		respondError(ctx, err, u.dev)
		return
	}
	utils.Success(ctx, nil)
}

// Connect sends a connection request.
func (u *UserController) Connect(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		return
	}
	target, err := idParam(ctx, "userId")
	if err != nil {
		respondError(ctx, err, u.dev)
		return
	}
	if err := u.users.RequestConnection(ctx.Request.Context(), userID, target); err != nil {
		respondError(ctx, err, u.dev)
		return
	}
	utils.Respond(ctx, http.StatusOK, "Connection request sent", nil)
}

// Accept accepts a pending connection request.
func (u *UserController) Accept(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		return
	}
	requester, err := idParam(ctx, "userId")
	if err != nil {
		respondError(ctx, err, u.dev)
		return
	}
	if err := u.users.AcceptConnection(ctx.Request.Context(), userID, requester); err != nil {
		respondError(ctx, err, u.dev)
		return
	}
	utils.Respond(ctx, http.StatusOK, "Connection accepted", nil)
}

// MyPosts lists the caller's posts.
func (u *UserController) MyPosts(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		return
	}
	u.listPosts(ctx, userID)
}

// UserPosts lists another user's posts.
func (u *UserController) UserPosts(ctx *gin.Context) {
	id, err := idParam(ctx, "id")
	if err != nil {
		respondError(ctx, err, u.dev)
		return
	}
	u.listPosts(ctx, id)
}

func (u *UserController) listPosts(ctx *gin.Context, authorID uint) {
	posts, err := u.posts.ListByAuthor(ctx.Request.Context(), authorID)
	if err != nil {
		respondError(ctx, err, u.dev)
		return
	}
	utils.Success(ctx, gin.H{"count": len(posts), "posts": posts})
}
