package store

import (
	"context"
	"errors"

	"RebalanceKeeper/internal/model"
)

var (
	ErrNotFound = errors.New("not found")
	ErrExists   = errors.New("already exists")
)

// Store holds the cycle status and the registered accounts.
type Store interface {
	// Status returns ErrNotFound until InitStatus or CommitPage has run.
	Status(ctx context.Context) (model.CycleStatus, error)
	// InitStatus stores s unless a status is already present.
	InitStatus(ctx context.Context, s model.CycleStatus) error

	Account(ctx context.Context, id string) (model.Account, error)
	// Accounts lists accounts in ascending byte order of id, strictly after the cursor.
	Accounts(ctx context.Context, after string, limit int) ([]model.Account, error)
	CreateAccount(ctx context.Context, acc model.Account) error
	PutAccount(ctx context.Context, acc model.Account) error
	DeleteAccount(ctx context.Context, id string) error

	// CommitPage atomically saves the status and every updated account.
	CommitPage(ctx context.Context, s model.CycleStatus, updated []model.Account) error

	Close() error
}
