package port

import (
	"context"

	"github.com/bnema/tubeaudit/internal/domain"
)

type UserStore interface {
	HasUser(ctx context.Context) (bool, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	CreateUser(ctx context.Context, u *domain.User) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
}
