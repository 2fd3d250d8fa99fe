package controllers

import (
	"context"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/linkup-social/linkup/middleware"
	"github.com/linkup-social/linkup/services"
	"github.com/linkup-social/linkup/utils"
)

// ImageUploader stores an uploaded image and returns its reference URL.
type ImageUploader interface {
	UploadFile(ctx context.Context, fh *multipart.FileHeader) (string, error)
	Remove(ctx context.Context, url string) error
}

// AuthController handles registration, sessions and external sign-in.
type AuthController struct {
	auth    *services.AuthService
	oauth   *services.OAuthService
	uploads ImageUploader
	dev     bool
}

// NewAuthController creates an AuthController.
func NewAuthController(auth *services.AuthService, oauth *services.OAuthService, uploads ImageUploader, dev bool) *AuthController {
	return &AuthController{auth: auth, oauth: oauth, uploads: uploads, dev: dev}
}

// Register creates an account from JSON or a multipart form with an optional profilePicture.
func (a *AuthController) Register(ctx *gin.Context) {
	var req struct {
		Name     string `json:"name" form:"name"`
		Email    string `json:"email" form:"email"`
		Password string `json:"password" form:"password"`
	}
	if err := ctx.ShouldBind(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid request payload")
		return
	}

	in := services.RegisterInput{Name: req.Name, Email: req.Email, Password: req.Password}
	if isMultipart(ctx) {
		if fh, err := ctx.FormFile("profilePicture"); err == nil {
			if err := a.auth.CheckRegistration(ctx.Request.Context(), in); err != nil {
				respondError(ctx, err, a.dev)
				return
			}
			url, err := a.uploads.UploadFile(ctx.Request.Context(), fh)
			if err != nil {
				respondError(ctx, err, a.dev)
				return
			}
			in.ProfilePicture = url
		}
	}

	token, user, err := a.auth.Register(ctx.Request.Context(), in)
	if err != nil {
		discardUpload(ctx, a.uploads, in.ProfilePicture)
		respondError(ctx, err, a.dev)
		return
	}
	utils.Respond(ctx, http.StatusCreated, "User registered successfully", gin.H{"token": token, "user": user})
}

// Login exchanges credentials for a token.
func (a *AuthController) Login(ctx *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid request payload")
		return
	}

	token, user, err := a.auth.Login(ctx.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(ctx, err, a.dev)
		return
	}
	utils.Respond(ctx, http.StatusOK, "Login successful", gin.H{"token": token, "user": user})
}

// Logout invalidates the token by blacklisting it until expiration.
func (a *AuthController) Logout(ctx *gin.Context) {
	token := ctx.GetString(middleware.ContextTokenKey)
	if err := a.auth.Logout(ctx.Request.Context(), token); err != nil {
		respondError(ctx, err, a.dev)
		return
	}
	utils.Respond(ctx, http.StatusOK, "Logged out", nil)
}

// Me returns the current authenticated user's profile.
func (a *AuthController) Me(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		return
	}
	user, err := a.auth.Me(ctx.Request.Context(), userID)
	if err != nil {
		respondError(ctx, err, a.dev)
		return
	}
	utils.Success(ctx, gin.H{"user": user})
}

// OAuthRedirect generates a provider-specific authorization URL.
func (a *AuthController) OAuthRedirect(ctx *gin.Context) {
	url, state, err := a.oauth.AuthURL(ctx.Request.Context(), ctx.Param("provider"))
	if err != nil {
		respondError(ctx, err, a.dev)
		return
	}
	utils.Success(ctx, gin.H{"authorizationUrl": url, "state": state})
}

// OAuthCallback exchanges the authorization code for a user identity and issues a JWT.
func (a *AuthController) OAuthCallback(ctx *gin.Context) {
	token, user, err := a.oauth.Callback(ctx.Request.Context(), ctx.Param("provider"), ctx.Query("code"), ctx.Query("state"))
	if err != nil {
		respondError(ctx, err, a.dev)
		return
	}
	utils.Success(ctx, gin.H{"token": token, "user": user})
}
