// Package repository declares the storage contracts the service layer depends on.
//
// Implementations live in sub-packages (sqlite, postgres, mongo). Each one
// returns apperror.ErrNotFound for a missing record and apperror.ErrConflict
// when a unique key (email, federated id) is already taken, so callers never
// have to inspect driver-specific errors.
package repository

import (
	"context"

	"github.com/sakif/auth-service/internal/model"
)

// UserRepository is the account store adapter.
//
// Every method is a single-document operation. There are no cross-call
// transactions: concurrent updates to the same account are last-write-wins.
type UserRepository interface {
	// Create inserts a new account and fills in ID, CreatedAt and UpdatedAt.
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByFederatedID(ctx context.Context, federatedID string) (*model.User, error)
	// Update writes every mutable field of user and refreshes UpdatedAt.
	Update(ctx context.Context, user *model.User) error
	Delete(ctx context.Context, id string) error
	Close() error
}
