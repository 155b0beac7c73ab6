// Package repository defines the persistence contracts for accounts and
// chats. Engines live in the memory, postgres and scylla subpackages.
package repository

import (
	"context"
	"errors"
	"time"

	"chat-auth-service/internal/models"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("record already exists")
	// ErrConditionFailed means a conditional write found the row changed underneath it.
	ErrConditionFailed = errors.New("conditional update not applied")
)

// AccountStore is the durable record of accounts keyed by id, with a
// unique secondary lookup by phone number.
type AccountStore interface {
	// UpsertPendingCode creates an unverified account for phoneNumber if none
	// exists and overwrites any pending code. created reports whether the
	// account was new.
	UpsertPendingCode(ctx context.Context, phoneNumber, countryCode, codeHash string, expiresAt time.Time) (account *models.Account, created bool, err error)

	GetByPhone(ctx context.Context, phoneNumber string) (*models.Account, error)
	GetByID(ctx context.Context, id string) (*models.Account, error)
	// GetByIDs returns the accounts that exist; missing ids are skipped.
	GetByIDs(ctx context.Context, ids []string) ([]*models.Account, error)

	// ConsumeCode clears the pending code and marks the account verified
	// only if the stored hash still equals codeHash and has not expired at
	// now. Returns ErrConditionFailed otherwise.
	ConsumeCode(ctx context.Context, id, codeHash string, now time.Time) (*models.Account, error)

	// ClearPendingCode removes the pending code only if it still equals
	// codeHash. A mismatch is not an error.
	ClearPendingCode(ctx context.Context, id, codeHash string) error

	CompleteProfile(ctx context.Context, id string, profile models.Profile) (*models.Account, error)
	UpdateProfile(ctx context.Context, id string, patch models.ProfilePatch) (*models.Account, error)
	Delete(ctx context.Context, id string) error

	HealthCheck(ctx context.Context) error
}

// ChatStore keeps chat records and their member lists.
type ChatStore interface {
	Create(ctx context.Context, chat *models.Chat) error
	GetByID(ctx context.Context, id string) (*models.Chat, error)
	// ListByMember returns chats containing accountID, most recently updated first.
	ListByMember(ctx context.Context, accountID string) ([]*models.Chat, error)
	UpdateLastMessage(ctx context.Context, id, message, senderID, messageType string, at time.Time) (*models.Chat, error)
	Delete(ctx context.Context, id string) error
}

// Store bundles the engines the service layer needs.
type Store interface {
	Accounts() AccountStore
	Chats() ChatStore
	HealthCheck(ctx context.Context) error
	Close() error
}
