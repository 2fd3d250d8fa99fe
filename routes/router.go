package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/linkup-social/linkup/config"
	"github.com/linkup-social/linkup/controllers"
	"github.com/linkup-social/linkup/metrics"
	"github.com/linkup-social/linkup/middleware"
	"github.com/linkup-social/linkup/services"
	"github.com/linkup-social/linkup/storage"
	"github.com/linkup-social/linkup/utils"
)

// Deps carries everything the API surface needs. Nothing is read from globals.
type Deps struct {
	Config    config.AppConfig
	DB        *gorm.DB
	Cache     *utils.Cache
	Tokens    *utils.TokenIssuer
	Blacklist *utils.TokenBlacklist
	States    *utils.StateStore
	Bus       *services.EventBus
	Uploads   *storage.Gateway
	// UploadDir is served at the upload public URL when images are stored locally.
	UploadDir string
	Metrics   *metrics.Metrics
	// AccessLog receives one line per request; nil disables access logging.
	AccessLog *zap.Logger
}

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(d Deps) *gin.Engine {
	cfg := d.Config
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(utils.RequestID())
	if d.AccessLog != nil {
		r.Use(utils.Ginzap(d.AccessLog, time.RFC3339, true))
		r.Use(utils.RecoveryWithZap(d.AccessLog, true))
	} else {
		r.Use(utils.RecoveryWithZap(utils.Logger, true))
	}
	if d.Metrics != nil {
		r.Use(middleware.Metrics(d.Metrics))
	}

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", utils.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", utils.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	if d.UploadDir != "" {
		r.Static(cfg.UploadPublicURL, d.UploadDir)
	}

	r.GET("/health", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"status": "ok"})
	})
	if d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))
	}

	userService := services.NewUserService(d.DB, d.Cache)
	authService := services.NewAuthService(d.DB, d.Tokens, d.Blacklist, userService)
	oauthService := services.NewOAuthService(cfg, d.States, authService)
	postService := services.NewPostService(d.DB, d.Cache, d.Bus, d.Uploads, d.Metrics)

	dev := cfg.IsDevelopment()
	authController := controllers.NewAuthController(authService, oauthService, d.Uploads, dev)
	postController := controllers.NewPostController(postService, d.Uploads, d.Cache, d.Metrics, dev)
	userController := controllers.NewUserController(userService, postService, d.Uploads, dev)
	configController := controllers.NewConfigController(cfg.News)
	streamController := controllers.NewStreamController(d.Bus, cfg.AllowedOrigins, d.Metrics)

	authRequired := middleware.AuthRequired(authService)
	api := r.Group("/api")

	authGroup := api.Group("/auth")
	authGroup.Use(middleware.RateLimitMiddleware(cfg.RateLimitPerMinute))
	authGroup.POST("/register", authController.Register)
	authGroup.POST("/login", authController.Login)
	authGroup.GET("/oauth/:provider/login", authController.OAuthRedirect)
	authGroup.GET("/oauth/:provider/callback", authController.OAuthCallback)
	authGroup.POST("/logout", authRequired, authController.Logout)
	authGroup.GET("/me", authRequired, authController.Me)

	protected := api.Group("")
	protected.Use(authRequired)

	protected.GET("/posts", postController.ListPosts)
	protected.POST("/posts", postController.CreatePost)
	protected.GET("/posts/stream", streamController.Stream)
	protected.GET("/posts/:id", postController.GetPost)
	protected.PUT("/posts/:id", postController.UpdatePost)
	protected.DELETE("/posts/:id", postController.DeletePost)
	protected.POST("/posts/:id/comment", postController.CreateComment)
	protected.POST("/posts/:id/like", postController.ToggleLike)
	protected.POST("/posts/:id/repost", postController.Repost)

	protected.GET("/users/profile", userController.Profile)
	protected.PUT("/users/profile", userController.UpdateProfile)
	protected.GET("/users/search", userController.Search)
	protected.GET("/users/suggestions", userController.Suggestions)
	protected.GET("/users/posts", userController.MyPosts)
	protected.POST("/users/view/:userId", userController.RecordView)
	protected.POST("/users/connect/:userId", userController.Connect)
	protected.POST("/users/accept/:userId", userController.Accept)
	protected.GET("/users/:id", userController.GetUser)
	protected.GET("/users/:id/posts", userController.UserPosts)

	protected.GET("/news", configController.GetNews)

	r.NoRoute(func(ctx *gin.Context) {
		if strings.HasPrefix(ctx.Request.URL.Path, "/api/") {
			utils.Error(ctx, http.StatusNotFound, 40400, "Route not found")
			return
		}
		utils.Error(ctx, http.StatusNotFound, 40400, "not found")
	})

	return r
}
