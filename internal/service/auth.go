package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/mail"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/crypto/bcrypt"

	"github.com/bnema/tubeaudit/internal/domain"
	"github.com/bnema/tubeaudit/internal/infrastructure/logger"
	"github.com/bnema/tubeaudit/internal/port"
)

const sessionLifetime = 7 * 24 * time.Hour

var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrExpiredToken  = errors.New("expired token")
	ErrInvalidCreds  = errors.New("invalid credentials")
	ErrUserExists    = errors.New("user already exists")
	ErrWrongPassword = errors.New("wrong password")
	ErrWeakPassword  = errors.New("password does not meet requirements")
	ErrInvalidEmail  = errors.New("invalid email")
)

func validateEmail(email string) error {
	if len(email) > 254 {
		return fmt.Errorf("must be at most 254 characters")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return fmt.Errorf("must be a plain address like name@example.com")
	}
	return nil
}

func validatePasswordStrength(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("%w: must be at least 8 characters", ErrWeakPassword)
	}

	var hasUpper, hasLower, hasNumber, hasSpecial bool
	for _, char := range password {
		switch {
		case unicode.IsUpper(char):
			hasUpper = true
		case unicode.IsLower(char):
			hasLower = true
		case unicode.IsNumber(char):
			hasNumber = true
		case unicode.IsPunct(char) || unicode.IsSymbol(char):
			hasSpecial = true
		}
	}

	var missing []string
	if !hasUpper {
		missing = append(missing, "uppercase letter")
	}
	if !hasLower {
		missing = append(missing, "lowercase letter")
	}
	if !hasNumber {
		missing = append(missing, "number")
	}
	if !hasSpecial {
		missing = append(missing, "special character")
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: must contain at least one %s", ErrWeakPassword, formatMissingRequirements(missing))
	}
	return nil
}

func formatMissingRequirements(missing []string) string {
	switch len(missing) {
	case 1:
		return missing[0]
	case 2:
		return missing[0] + " and " + missing[1]
	}
	return strings.Join(missing[:len(missing)-1], ", ") + ", and " + missing[len(missing)-1]
}

// AuthService handles the operator accounts and their session tokens.
type AuthService struct {
	store     port.UserStore
	secretKey string
	now       func() time.Time
}

func NewAuthService(store port.UserStore, secretKey string) *AuthService {
	return &AuthService{
		store:     store,
		secretKey: secretKey,
		now:       time.Now,
	}
}

func (s *AuthService) HasUser(ctx context.Context) (bool, error) {
	return s.store.HasUser(ctx)
}

// CreateFirstUser creates the initial operator. It fails with ErrUserExists
// once any user exists.
func (s *AuthService) CreateFirstUser(ctx context.Context, email, displayName, password string) (*domain.User, error) {
	hasUser, err := s.store.HasUser(ctx)
	if err != nil {
		return nil, err
	}
	if hasUser {
		return nil, ErrUserExists
	}

	email = strings.TrimSpace(email)
	if validateErr := validateEmail(email); validateErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidEmail, validateErr)
	}
	if validateErr := validatePasswordStrength(password); validateErr != nil {
		return nil, validateErr
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := &domain.User{
		Email:        email,
		DisplayName:  strings.TrimSpace(displayName),
		PasswordHash: string(passwordHash),
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	logger.Info.Printf("created first user %s", logger.SanitizeForLog(email))
	return user, nil
}

// Authenticate checks an email and password pair.
func (s *AuthService) Authenticate(ctx context.Context, email, password string) (*domain.User, error) {
	user, err := s.store.GetUserByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return nil, ErrInvalidCreds
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrWrongPassword
	}
	return user, nil
}

// GenerateToken signs a session token of the form timestamp:userID:signature.
func (s *AuthService) GenerateToken(user *domain.User) string {
	timestamp := strconv.FormatInt(s.now().Unix(), 10)
	return timestamp + ":" + user.ID + ":" + s.sign(timestamp, user.ID)
}

func (s *AuthService) ValidateToken(ctx context.Context, token string) (*domain.User, error) {
	parts := strings.Split(token, ":")
	if len(parts) != 3 {
		return nil, ErrInvalidToken
	}
	timestamp, userID, signature := parts[0], parts[1], parts[2]

	if !hmac.Equal([]byte(signature), []byte(s.sign(timestamp, userID))) {
		return nil, ErrInvalidToken
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if s.now().After(time.Unix(ts, 0).Add(sessionLifetime)) {
		return nil, ErrExpiredToken
	}

	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, ErrInvalidToken
	}
	return user, nil
}

func (s *AuthService) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(oldPassword)); err != nil {
		return ErrWrongPassword
	}
	if validateErr := validatePasswordStrength(newPassword); validateErr != nil {
		return validateErr
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return s.store.UpdatePassword(ctx, user.ID, string(passwordHash))
}

func (s *AuthService) sign(timestamp, userID string) string {
	mac := hmac.New(sha256.New, []byte(s.secretKey))
	mac.Write([]byte(timestamp + ":" + userID))
	return base64.URLEncoding.EncodeToString(mac.Sum(nil))
}
