package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/bnema/tubeaudit/internal/domain"
)

const testUserID = "7f8c2f0e-5a43-4a0e-9a3b-2f8f1f7e0c11"

type mockUserStore struct {
	user          *domain.User
	hasUser       bool
	createUserErr error
	getUserErr    error
}

func (m *mockUserStore) HasUser(_ context.Context) (bool, error) {
	return m.hasUser, nil
}

func (m *mockUserStore) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	if m.getUserErr != nil {
		return nil, m.getUserErr
	}
	if m.user == nil || !strings.EqualFold(m.user.Email, email) {
		return nil, domain.ErrNotFound
	}
	return m.user, nil
}

func (m *mockUserStore) GetUserByID(_ context.Context, id string) (*domain.User, error) {
	if m.getUserErr != nil {
		return nil, m.getUserErr
	}
	if m.user == nil || m.user.ID != id {
		return nil, domain.ErrNotFound
	}
	return m.user, nil
}

func (m *mockUserStore) CreateUser(_ context.Context, u *domain.User) error {
	if m.createUserErr != nil {
		return m.createUserErr
	}
	u.ID = testUserID
	m.user = u
	m.hasUser = true
	return nil
}

func (m *mockUserStore) UpdatePassword(_ context.Context, _ string, passwordHash string) error {
	if m.user != nil {
		m.user.PasswordHash = passwordHash
	}
	return nil
}

func storeWithUser(t *testing.T) *mockUserStore {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("P@ssw0rd123"), bcrypt.MinCost)
	require.NoError(t, err)
	return &mockUserStore{
		hasUser: true,
		user: &domain.User{
			ID:           testUserID,
			Email:        "auditor@example.com",
			PasswordHash: string(hash),
		},
	}
}

func signToken(secret, timestamp, userID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp + ":" + userID))
	return timestamp + ":" + userID + ":" + base64.URLEncoding.EncodeToString(mac.Sum(nil))
}

func TestAuthService_HasUser(t *testing.T) {
	t.Run("returns false when no user exists", func(t *testing.T) {
		svc := NewAuthService(&mockUserStore{}, "test-secret-key")
		hasUser, err := svc.HasUser(context.Background())
		assert.NoError(t, err)
		assert.False(t, hasUser)
	})

	t.Run("returns true when user exists", func(t *testing.T) {
		svc := NewAuthService(&mockUserStore{hasUser: true}, "test-secret-key")
		hasUser, err := svc.HasUser(context.Background())
		assert.NoError(t, err)
		assert.True(t, hasUser)
	})
}

func TestAuthService_CreateFirstUser(t *testing.T) {
	ctx := context.Background()

	t.Run("creates user successfully", func(t *testing.T) {
		store := &mockUserStore{}
		svc := NewAuthService(store, "test-secret-key")
		user, err := svc.CreateFirstUser(ctx, " auditor@example.com ", "Auditor", "P@ssw0rd123")
		require.NoError(t, err)
		assert.True(t, store.hasUser)
		assert.Equal(t, "auditor@example.com", user.Email)
		assert.Equal(t, "Auditor", user.Name())
		assert.NotEqual(t, "P@ssw0rd123", user.PasswordHash)
	})

	t.Run("returns error when user already exists", func(t *testing.T) {
		svc := NewAuthService(&mockUserStore{hasUser: true}, "test-secret-key")
		_, err := svc.CreateFirstUser(ctx, "auditor@example.com", "", "P@ssw0rd123")
		assert.ErrorIs(t, err, ErrUserExists)
	})

	t.Run("rejects invalid email", func(t *testing.T) {
		svc := NewAuthService(&mockUserStore{}, "test-secret-key")
		for _, email := range []string{"", "not-an-email", "Name <a@example.com>"} {
			_, err := svc.CreateFirstUser(ctx, email, "", "P@ssw0rd123")
			assert.ErrorIs(t, err, ErrInvalidEmail, email)
		}
	})

	t.Run("rejects weak password", func(t *testing.T) {
		svc := NewAuthService(&mockUserStore{}, "test-secret-key")
		_, err := svc.CreateFirstUser(ctx, "auditor@example.com", "", "password")
		assert.ErrorIs(t, err, ErrWeakPassword)
		assert.Contains(t, err.Error(), "uppercase letter, number, and special character")
	})
}

func TestAuthService_Authenticate(t *testing.T) {
	ctx := context.Background()

	t.Run("accepts correct password with any email case", func(t *testing.T) {
		svc := NewAuthService(storeWithUser(t), "test-secret-key")
		user, err := svc.Authenticate(ctx, "Auditor@Example.com", "P@ssw0rd123")
		require.NoError(t, err)
		assert.Equal(t, testUserID, user.ID)
	})

	t.Run("returns error for wrong password", func(t *testing.T) {
		svc := NewAuthService(storeWithUser(t), "test-secret-key")
		_, err := svc.Authenticate(ctx, "auditor@example.com", "wrongpassword")
		assert.ErrorIs(t, err, ErrWrongPassword)
	})

	t.Run("returns error for unknown user", func(t *testing.T) {
		svc := NewAuthService(storeWithUser(t), "test-secret-key")
		_, err := svc.Authenticate(ctx, "nobody@example.com", "P@ssw0rd123")
		assert.ErrorIs(t, err, ErrInvalidCreds)
	})
}

func TestAuthService_Tokens(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	const secret = "test-secret-key"

	newSvc := func(t *testing.T) *AuthService {
		svc := NewAuthService(storeWithUser(t), secret)
		svc.now = func() time.Time { return now }
		return svc
	}

	t.Run("round trip", func(t *testing.T) {
		svc := newSvc(t)
		token := svc.GenerateToken(&domain.User{ID: testUserID})
		assert.Equal(t, signToken(secret, strconv.FormatInt(now.Unix(), 10), testUserID), token)

		user, err := svc.ValidateToken(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, "auditor@example.com", user.Email)
	})

	t.Run("malformed", func(t *testing.T) {
		svc := newSvc(t)
		for _, token := range []string{"", "timestamponly", ":", "a:b:c:d"} {
			_, err := svc.ValidateToken(ctx, token)
			assert.ErrorIs(t, err, ErrInvalidToken, token)
		}
	})

	t.Run("wrong secret", func(t *testing.T) {
		svc := newSvc(t)
		token := signToken("other-secret", strconv.FormatInt(now.Unix(), 10), testUserID)
		_, err := svc.ValidateToken(ctx, token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired after seven days", func(t *testing.T) {
		svc := newSvc(t)
		old := strconv.FormatInt(now.Add(-8*24*time.Hour).Unix(), 10)
		_, err := svc.ValidateToken(ctx, signToken(secret, old, testUserID))
		assert.ErrorIs(t, err, ErrExpiredToken)

		recent := strconv.FormatInt(now.Add(-6*24*time.Hour).Unix(), 10)
		_, err = svc.ValidateToken(ctx, signToken(secret, recent, testUserID))
		assert.NoError(t, err)
	})

	t.Run("non numeric timestamp", func(t *testing.T) {
		svc := newSvc(t)
		_, err := svc.ValidateToken(ctx, signToken(secret, "not-a-number", testUserID))
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("deleted user", func(t *testing.T) {
		svc := newSvc(t)
		_, err := svc.ValidateToken(ctx, signToken(secret, strconv.FormatInt(now.Unix(), 10), "someone-else"))
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestAuthService_ChangePassword(t *testing.T) {
	ctx := context.Background()

	t.Run("changes password successfully", func(t *testing.T) {
		store := storeWithUser(t)
		old := store.user.PasswordHash
		svc := NewAuthService(store, "test-secret-key")
		require.NoError(t, svc.ChangePassword(ctx, testUserID, "P@ssw0rd123", "N3wP@ssw0rd!"))
		assert.NotEqual(t, old, store.user.PasswordHash)

		_, err := svc.Authenticate(ctx, "auditor@example.com", "N3wP@ssw0rd!")
		assert.NoError(t, err)
	})

	t.Run("returns error for wrong old password", func(t *testing.T) {
		svc := NewAuthService(storeWithUser(t), "test-secret-key")
		err := svc.ChangePassword(ctx, testUserID, "wrongpassword", "N3wP@ssw0rd!")
		assert.ErrorIs(t, err, ErrWrongPassword)
	})

	t.Run("rejects weak new password", func(t *testing.T) {
		svc := NewAuthService(storeWithUser(t), "test-secret-key")
		err := svc.ChangePassword(ctx, testUserID, "P@ssw0rd123", "short")
		assert.ErrorIs(t, err, ErrWeakPassword)
	})
}
