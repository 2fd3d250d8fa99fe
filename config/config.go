package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// AppConfig holds environment driven configuration values.
// Sensitive data should never have defaults inside code and must be provided via env files or the environment.
type AppConfig struct {
	AppPort            string
	AppEnv             string
	JWTSecret          string
	TokenTTL           time.Duration
	RateLimitPerMinute int
	AllowedOrigins     []string
	OAuthRedirectBase  string
	// Gin framework configuration
	GinMode string
	GinPath string
	// Database
	DBDriver    string
	DatabaseURI string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string
	// Redis for caching, token revocation and OAuth state
	RedisEnabled  bool
	RedisHost     string
	RedisPort     int
	RedisDB       int
	RedisPassword string
	// Logging configuration
	LogLevel      string
	LogPath       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	LogCompress   bool
	// Upload gateway
	UploadBackend   string
	UploadDir       string
	UploadPublicURL string
	UploadMaxBytes  int64
	S3Bucket        string
	S3Region        string
	S3PublicURL     string
	// OAuth providers
	GitHubClientID     string
	GitHubClientSecret string
	GoogleClientID     string
	GoogleClientSecret string
	// Static news sidebar
	News []NewsItem
}

// NewsItem is one headline in the static news sidebar.
type NewsItem struct {
	ID      int    `json:"id" yaml:"id"`
	Title   string `json:"title" yaml:"title"`
	TimeAgo string `json:"timeAgo" yaml:"timeAgo"`
	Readers int    `json:"readers" yaml:"readers"`
}

// IsDevelopment reports whether unhandled error details may be returned to clients.
func (c AppConfig) IsDevelopment() bool {
	return strings.EqualFold(c.AppEnv, "development")
}

// fileConfig mirrors the grouped layout of config/config.json and config/config.yaml.
type fileConfig struct {
	App struct {
		Port               string   `json:"Port" yaml:"Port"`
		Env                string   `json:"Env" yaml:"Env"`
		JWTSecret          string   `json:"JWTSecret" yaml:"JWTSecret"`
		TokenTTLHours      int      `json:"TokenTTLHours" yaml:"TokenTTLHours"`
		RateLimitPerMinute int      `json:"RateLimitPerMinute" yaml:"RateLimitPerMinute"`
		AllowedOrigins     []string `json:"AllowedOrigins" yaml:"AllowedOrigins"`
		OAuthRedirectBase  string   `json:"OAuthRedirectBase" yaml:"OAuthRedirectBase"`
	} `json:"app" yaml:"app"`
	Gin struct {
		Mode    string `json:"Mode" yaml:"Mode"`
		LogPath string `json:"LogPath" yaml:"LogPath"`
	} `json:"gin" yaml:"gin"`
	Database struct {
		Driver      string `json:"Driver" yaml:"Driver"`
		DatabaseURI string `json:"DatabaseURI" yaml:"DatabaseURI"`
		DBHost      string `json:"DBHost" yaml:"DBHost"`
		DBPort      string `json:"DBPort" yaml:"DBPort"`
		DBUser      string `json:"DBUser" yaml:"DBUser"`
		DBPassword  string `json:"DBPassword" yaml:"DBPassword"`
		DBName      string `json:"DBName" yaml:"DBName"`
	} `json:"database" yaml:"database"`
	Redis struct {
		Enabled       bool   `json:"Enabled" yaml:"Enabled"`
		RedisHost     string `json:"RedisHost" yaml:"RedisHost"`
		RedisPort     int    `json:"RedisPort" yaml:"RedisPort"`
		RedisDB       int    `json:"RedisDB" yaml:"RedisDB"`
		RedisPassword string `json:"RedisPassword" yaml:"RedisPassword"`
	} `json:"redis" yaml:"redis"`
	Log struct {
		Level      string `json:"Level" yaml:"Level"`
		Path       string `json:"Path" yaml:"Path"`
		MaxSizeMB  int    `json:"MaxSizeMB" yaml:"MaxSizeMB"`
		MaxBackups int    `json:"MaxBackups" yaml:"MaxBackups"`
		MaxAgeDays int    `json:"MaxAgeDays" yaml:"MaxAgeDays"`
		Compress   bool   `json:"Compress" yaml:"Compress"`
	} `json:"log" yaml:"log"`
	Uploads struct {
		Backend     string `json:"Backend" yaml:"Backend"`
		Dir         string `json:"Dir" yaml:"Dir"`
		PublicURL   string `json:"PublicURL" yaml:"PublicURL"`
		MaxBytes    int64  `json:"MaxBytes" yaml:"MaxBytes"`
		S3Bucket    string `json:"S3Bucket" yaml:"S3Bucket"`
		S3Region    string `json:"S3Region" yaml:"S3Region"`
		S3PublicURL string `json:"S3PublicURL" yaml:"S3PublicURL"`
	} `json:"uploads" yaml:"uploads"`
	OAuth struct {
		GitHubClientID     string `json:"GitHubClientID" yaml:"GitHubClientID"`
		GitHubClientSecret string `json:"GitHubClientSecret" yaml:"GitHubClientSecret"`
		GoogleClientID     string `json:"GoogleClientID" yaml:"GoogleClientID"`
		GoogleClientSecret string `json:"GoogleClientSecret" yaml:"GoogleClientSecret"`
	} `json:"oauth" yaml:"oauth"`
	News []NewsItem `json:"news" yaml:"news"`
}

// Load loads the application configuration from the config/ directory. It should be called once during boot.
func Load() (AppConfig, error) {
	return LoadFrom("config")
}

// LoadFrom loads configuration with dir as the location of config.json or config.yaml.
func LoadFrom(dir string) (AppConfig, error) {
	var c AppConfig
	// Precedence: config file -> defaults -> .env files -> environment variable overrides
	if err := loadFileConfig(dir, &c); err != nil {
		return AppConfig{}, err
	}
	applyDefaults(&c)
	loadDotEnvs()
	if err := applyEnvOverrides(&c); err != nil {
		return AppConfig{}, err
	}

	if c.JWTSecret == "" {
		return AppConfig{}, errors.New("JWT_SECRET must be set in environment variables")
	}

	return c, nil
}

// loadFileConfig reads config.json or config.yaml from dir if present.
// A missing file is not an error; malformed content is.
func loadFileConfig(dir string, out *AppConfig) error {
	var fc fileConfig
	found := false
	if b, err := os.ReadFile(filepath.Join(dir, "config.json")); err == nil {
		if err := json.Unmarshal(b, &fc); err != nil {
			return fmt.Errorf("parse config.json: %w", err)
		}
		found = true
	} else if b, err := os.ReadFile(filepath.Join(dir, "config.yaml")); err == nil {
		if err := yaml.Unmarshal(b, &fc); err != nil {
			return fmt.Errorf("parse config.yaml: %w", err)
		}
		found = true
	}
	if !found {
		return nil
	}

	out.AppPort = fc.App.Port
	out.AppEnv = fc.App.Env
	out.JWTSecret = fc.App.JWTSecret
	if fc.App.TokenTTLHours > 0 {
		out.TokenTTL = time.Duration(fc.App.TokenTTLHours) * time.Hour
	}
	out.RateLimitPerMinute = fc.App.RateLimitPerMinute
	out.AllowedOrigins = fc.App.AllowedOrigins
	out.OAuthRedirectBase = fc.App.OAuthRedirectBase

	out.GinMode = fc.Gin.Mode
	out.GinPath = fc.Gin.LogPath

	out.DBDriver = fc.Database.Driver
	out.DatabaseURI = fc.Database.DatabaseURI
	out.DBHost = fc.Database.DBHost
	out.DBPort = fc.Database.DBPort
	out.DBUser = fc.Database.DBUser
	out.DBPassword = fc.Database.DBPassword
	out.DBName = fc.Database.DBName

	out.RedisEnabled = fc.Redis.Enabled
	out.RedisHost = fc.Redis.RedisHost
	out.RedisPort = fc.Redis.RedisPort
	out.RedisDB = fc.Redis.RedisDB
	out.RedisPassword = fc.Redis.RedisPassword

	out.LogLevel = fc.Log.Level
	out.LogPath = fc.Log.Path
	out.LogMaxSizeMB = fc.Log.MaxSizeMB
	out.LogMaxBackups = fc.Log.MaxBackups
	out.LogMaxAgeDays = fc.Log.MaxAgeDays
	out.LogCompress = fc.Log.Compress

	out.UploadBackend = fc.Uploads.Backend
	out.UploadDir = fc.Uploads.Dir
	out.UploadPublicURL = fc.Uploads.PublicURL
	out.UploadMaxBytes = fc.Uploads.MaxBytes
	out.S3Bucket = fc.Uploads.S3Bucket
	out.S3Region = fc.Uploads.S3Region
	out.S3PublicURL = fc.Uploads.S3PublicURL

	out.GitHubClientID = fc.OAuth.GitHubClientID
	out.GitHubClientSecret = fc.OAuth.GitHubClientSecret
	out.GoogleClientID = fc.OAuth.GoogleClientID
	out.GoogleClientSecret = fc.OAuth.GoogleClientSecret

	out.News = fc.News
	return nil
}

// loadDotEnvs loads .env files without overriding variables already present in the environment.
func loadDotEnvs() {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}
	// .env.[env].local has highest priority, usually contains credentials
	_ = godotenv.Load(".env." + env + ".local")
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load(".env." + env)
	_ = godotenv.Load(".env")
}

// applyDefaults sets sane defaults for zero-value fields.
func applyDefaults(c *AppConfig) {
	if c.AppPort == "" {
		c.AppPort = "5000"
	}
	if c.AppEnv == "" {
		c.AppEnv = "production"
	}
	if c.TokenTTL == 0 {
		c.TokenTTL = 7 * 24 * time.Hour
	}
	if c.GinMode == "" {
		c.GinMode = "release"
	}
	if c.GinPath == "" {
		c.GinPath = "logs/go_gin.log"
	}
	if c.RateLimitPerMinute == 0 {
		c.RateLimitPerMinute = 60
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	}
	if c.OAuthRedirectBase == "" {
		c.OAuthRedirectBase = "http://localhost:5000"
	}
	if c.DBDriver == "" {
		c.DBDriver = "mysql"
	}
	if c.DBHost == "" {
		c.DBHost = "127.0.0.1"
	}
	if c.DBPort == "" {
		c.DBPort = "3306"
	}
	if c.DBUser == "" {
		c.DBUser = "root"
	}
	if c.DBName == "" {
		c.DBName = "linkup"
	}
	if c.RedisHost == "" {
		c.RedisHost = "127.0.0.1"
	}
	if c.RedisPort == 0 {
		c.RedisPort = 6379
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogMaxSizeMB == 0 {
		c.LogMaxSizeMB = 100
	}
	if c.LogMaxBackups == 0 {
		c.LogMaxBackups = 3
	}
	if c.LogMaxAgeDays == 0 {
		c.LogMaxAgeDays = 7
	}
	if c.UploadBackend == "" {
		c.UploadBackend = "local"
	}
	if c.UploadDir == "" {
		c.UploadDir = "uploads"
	}
	if c.UploadPublicURL == "" {
		c.UploadPublicURL = "/uploads"
	}
	if c.UploadMaxBytes == 0 {
		c.UploadMaxBytes = 5 * 1024 * 1024
	}
	if c.S3Region == "" {
		c.S3Region = "us-east-1"
	}
	if len(c.News) == 0 {
		c.News = defaultNews()
	}
}

func defaultNews() []NewsItem {
	return []NewsItem{
		{ID: 1, Title: "Tech hiring rebounds in major cities", TimeAgo: "2d ago", Readers: 5256},
		{ID: 2, Title: "Remote work policies evolving", TimeAgo: "3d ago", Readers: 3891},
		{ID: 3, Title: "AI skills in high demand", TimeAgo: "4d ago", Readers: 1700},
		{ID: 4, Title: "Startup funding trends 2024", TimeAgo: "5d ago", Readers: 2340},
	}
}

// applyEnvOverrides lets environment variables take precedence over file values.
func applyEnvOverrides(c *AppConfig) error {
	var errs []error
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("invalid integer value %s for %s: %w", v, key, err))
				return
			}
			*dst = n
		}
	}
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			*dst = v == "true" || v == "1"
		}
	}

	setString("PORT", &c.AppPort)
	setString("APP_PORT", &c.AppPort)
	setString("APP_ENV", &c.AppEnv)
	setString("JWT_SECRET", &c.JWTSecret)
	var ttlHours int
	setInt("TOKEN_TTL_HOURS", &ttlHours)
	if ttlHours > 0 {
		c.TokenTTL = time.Duration(ttlHours) * time.Hour
	}
	setInt("RATE_LIMIT_PER_MINUTE", &c.RateLimitPerMinute)
	c.AllowedOrigins = readListEnv("ALLOWED_ORIGINS", c.AllowedOrigins)
	setString("OAUTH_REDIRECT_BASE", &c.OAuthRedirectBase)

	setString("GIN_MODE", &c.GinMode)
	setString("GIN_LOG_PATH", &c.GinPath)

	setString("DB_DRIVER", &c.DBDriver)
	setString("DATABASE_URI", &c.DatabaseURI)
	setString("DB_HOST", &c.DBHost)
	setString("DB_PORT", &c.DBPort)
	setString("DB_USER", &c.DBUser)
	setString("DB_PASSWORD", &c.DBPassword)
	setString("DB_NAME", &c.DBName)

	setBool("REDIS_ENABLED", &c.RedisEnabled)
	setString("REDIS_HOST", &c.RedisHost)
	setInt("REDIS_PORT", &c.RedisPort)
	setInt("REDIS_DB", &c.RedisDB)
	setString("REDIS_PASSWORD", &c.RedisPassword)

	setString("LOG_LEVEL", &c.LogLevel)
	setString("LOG_PATH", &c.LogPath)
	setInt("LOG_MAX_SIZE_MB", &c.LogMaxSizeMB)
	setInt("LOG_MAX_BACKUPS", &c.LogMaxBackups)
	setInt("LOG_MAX_AGE_DAYS", &c.LogMaxAgeDays)
	setBool("LOG_COMPRESS", &c.LogCompress)

	setString("UPLOAD_BACKEND", &c.UploadBackend)
	setString("UPLOAD_DIR", &c.UploadDir)
	setString("UPLOAD_PUBLIC_URL", &c.UploadPublicURL)
	var maxBytes int
	setInt("UPLOAD_MAX_BYTES", &maxBytes)
	if maxBytes > 0 {
		c.UploadMaxBytes = int64(maxBytes)
	}
	setString("S3_BUCKET", &c.S3Bucket)
	setString("S3_REGION", &c.S3Region)
	setString("S3_PUBLIC_URL", &c.S3PublicURL)

	setString("GITHUB_CLIENT_ID", &c.GitHubClientID)
	setString("GITHUB_CLIENT_SECRET", &c.GitHubClientSecret)
	setString("GOOGLE_CLIENT_ID", &c.GoogleClientID)
	setString("GOOGLE_CLIENT_SECRET", &c.GoogleClientSecret)

	return errors.Join(errs...)
}

func readListEnv(key string, defaults []string) []string {
	if raw := os.Getenv(key); raw != "" {
		return splitAndTrim(raw)
	}
	return defaults
}

func splitAndTrim(raw string) []string {
	items := []string{}
	for _, item := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}
