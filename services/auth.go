package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/linkup-social/linkup/models"
	"github.com/linkup-social/linkup/utils"
)

const maxNameLength = 50

var emailPattern = regexp.MustCompile(`^\w+([.-]?\w+)*@\w+([.-]?\w+)*(\.\w{2,3})+$`)

// errInvalidCredentials is shared by every login failure so callers cannot tell which emails exist.
var errInvalidCredentials = &AuthError{Message: "invalid email or password"}

// AuthService registers users and issues and verifies their bearer tokens.
type AuthService struct {
	db        *gorm.DB
	tokens    *utils.TokenIssuer
	blacklist *utils.TokenBlacklist
	users     *UserService
}

// NewAuthService creates an AuthService.
func NewAuthService(db *gorm.DB, tokens *utils.TokenIssuer, blacklist *utils.TokenBlacklist, users *UserService) *AuthService {
	return &AuthService{db: db, tokens: tokens, blacklist: blacklist, users: users}
}

// RegisterInput carries the fields accepted at sign-up.
type RegisterInput struct {
	Name           string
	Email          string
	Password       string
	ProfilePicture string
}

// CheckRegistration validates in without creating anything, so callers can reject
// a request before storing its profile picture.
func (s *AuthService) CheckRegistration(ctx context.Context, in RegisterInput) error {
	_, _, err := s.checkRegistration(ctx, in)
	return err
}

func (s *AuthService) checkRegistration(ctx context.Context, in RegisterInput) (string, string, error) {
	name, n := utils.CleanText(in.Name)
	email := strings.ToLower(strings.TrimSpace(in.Email))

	switch {
	case n == 0:
		return "", "", validationf("name is required")
	case n > maxNameLength:
		return "", "", validationf("name cannot be more than %d characters", maxNameLength)
	case email == "":
		return "", "", validationf("email is required")
	case !emailPattern.MatchString(email):
		return "", "", validationf("please enter a valid email")
	case len(in.Password) < utils.MinPasswordLength:
		return "", "", validationf("password must be at least %d characters", utils.MinPasswordLength)
	}

	taken, err := s.emailTaken(ctx, email)
	if err != nil {
		return "", "", err
	}
	if taken {
		return "", "", validationf("user already exists with this email")
	}
	return name, email, nil
}

// Register creates an account and returns a token for it.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (string, *models.User, error) {
	name, email, err := s.checkRegistration(ctx, in)
	if err != nil {
		return "", nil, err
	}

	hash, err := utils.HashPassword(in.Password)
	if err != nil {
		return "", nil, fmt.Errorf("hash password: %w", err)
	}

	user := models.User{
		Name:           name,
		Email:          email,
		PasswordHash:   hash,
		ProfilePicture: in.ProfilePicture,
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		// Lost a race against a concurrent registration of the same email
		if taken, _ := s.emailTaken(ctx, email); taken {
			return "", nil, validationf("user already exists with this email")
		}
		return "", nil, fmt.Errorf("create user: %w", err)
	}

	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return "", nil, fmt.Errorf("generate token: %w", err)
	}
	return token, &user, nil
}

// Login checks credentials and returns a fresh token.
func (s *AuthService) Login(ctx context.Context, email, password string) (string, *models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return "", nil, validationf("email and password are required")
	}

	var user models.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil, errInvalidCredentials
		}
		return "", nil, fmt.Errorf("load user: %w", err)
	}
	if !utils.CheckPassword(user.PasswordHash, password) {
		return "", nil, errInvalidCredentials
	}

	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return "", nil, fmt.Errorf("generate token: %w", err)
	}
	return token, &user, nil
}

// Verify resolves a bearer token to the user id it was issued for.
func (s *AuthService) Verify(ctx context.Context, token string) (uint, error) {
	if token == "" {
		return 0, &AuthError{Message: "no token, authorization denied"}
	}
	if s.blacklist.IsRevoked(ctx, token) {
		return 0, &AuthError{Message: "token revoked"}
	}
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return 0, &AuthError{Message: "token is not valid"}
	}
	return claims.UserID, nil
}

// Logout revokes token until it would have expired anyway.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return &AuthError{Message: "token is not valid"}
	}
	expiresAt := time.Now().Add(s.tokens.TTL())
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	return s.blacklist.Revoke(ctx, token, expiresAt)
}

// OAuthIdentity is a profile returned by an external identity provider.
type OAuthIdentity struct {
	Provider      string
	ProviderID    string
	Email         string
	EmailVerified bool
	Name          string
	AvatarURL     string
}

// OAuthLogin finds the account linked to identity, links an existing account with the same
// verified email, or creates a new password-less account, then issues a token.
func (s *AuthService) OAuthLogin(ctx context.Context, identity OAuthIdentity) (string, *models.User, error) {
	if identity.ProviderID == "" {
		return "", nil, &AuthError{Message: "provider did not return an account id"}
	}
	email := strings.ToLower(strings.TrimSpace(identity.Email))

	var user models.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("provider = ? AND provider_id = ?", identity.Provider, identity.ProviderID).First(&user).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if email != "" && identity.EmailVerified {
			err = tx.Where("email = ?", email).First(&user).Error
			if err == nil {
				return tx.Model(&user).Updates(map[string]interface{}{
					"provider":    identity.Provider,
					"provider_id": identity.ProviderID,
				}).Error
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
		}

		if email == "" || !identity.EmailVerified {
			// Placeholder address keeps the unique email index satisfied
			email = fmt.Sprintf("%s-%s@users.noreply.linkup", identity.Provider, identity.ProviderID)
		}
		name, _ := utils.CleanText(identity.Name)
		if name == "" {
			name = identity.Provider + " user"
		}
		if utf8.RuneCountInString(name) > maxNameLength {
			name = string([]rune(name)[:maxNameLength])
		}
		user = models.User{
			Name:           name,
			Email:          email,
			Provider:       identity.Provider,
			ProviderID:     identity.ProviderID,
			ProfilePicture: identity.AvatarURL,
		}
		return tx.Create(&user).Error
	})
	if err != nil {
		return "", nil, fmt.Errorf("oauth login: %w", err)
	}

	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return "", nil, fmt.Errorf("generate token: %w", err)
	}
	return token, &user, nil
}

// Me returns the profile of the token's owner.
func (s *AuthService) Me(ctx context.Context, userID uint) (*models.User, error) {
	return s.users.Get(ctx, userID)
}

func (s *AuthService) emailTaken(ctx context.Context, email string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return false, fmt.Errorf("check email: %w", err)
	}
	return count > 0, nil
}
