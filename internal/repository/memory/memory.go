// Package memory is a process-local store for development and tests.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"chat-auth-service/internal/models"
	"chat-auth-service/internal/repository"

	"github.com/google/uuid"
)

// Store holds accounts and chats behind a single mutex, so every
// conditional update is a true compare-and-set.
type Store struct {
	mu       sync.RWMutex
	accounts map[string]*models.Account
	byPhone  map[string]string
	chats    map[string]*models.Chat
}

func New() *Store {
	return &Store{
		accounts: make(map[string]*models.Account),
		byPhone:  make(map[string]string),
		chats:    make(map[string]*models.Chat),
	}
}

func (s *Store) Accounts() repository.AccountStore { return (*accountStore)(s) }
func (s *Store) Chats() repository.ChatStore       { return (*chatStore)(s) }

func (s *Store) HealthCheck(ctx context.Context) error { return ctx.Err() }

func (s *Store) Close() error { return nil }

type accountStore Store

func cloneAccount(a *models.Account) *models.Account {
	cp := *a
	if a.VerificationCodeExpiry != nil {
		exp := *a.VerificationCodeExpiry
		cp.VerificationCodeExpiry = &exp
	}
	return &cp
}

func (s *accountStore) UpsertPendingCode(ctx context.Context, phoneNumber, countryCode, codeHash string, expiresAt time.Time) (*models.Account, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	exp := expiresAt.UTC()

	if id, ok := s.byPhone[phoneNumber]; ok {
		acc := s.accounts[id]
		acc.VerificationCode = codeHash
		acc.VerificationCodeExpiry = &exp
		acc.UpdatedAt = now
		return cloneAccount(acc), false, nil
	}

	acc := &models.Account{
		ID:                     uuid.New().String(),
		PhoneNumber:            phoneNumber,
		CountryCode:            countryCode,
		VerificationCode:       codeHash,
		VerificationCodeExpiry: &exp,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	s.accounts[acc.ID] = acc
	s.byPhone[phoneNumber] = acc.ID
	return cloneAccount(acc), true, nil
}

func (s *accountStore) GetByPhone(ctx context.Context, phoneNumber string) (*models.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byPhone[phoneNumber]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneAccount(s.accounts[id]), nil
}

func (s *accountStore) GetByID(ctx context.Context, id string) (*models.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	acc, ok := s.accounts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneAccount(acc), nil
}

func (s *accountStore) GetByIDs(ctx context.Context, ids []string) ([]*models.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Account, 0, len(ids))
	for _, id := range ids {
		if acc, ok := s.accounts[id]; ok {
			out = append(out, cloneAccount(acc))
		}
	}
	return out, nil
}

func (s *accountStore) ConsumeCode(ctx context.Context, id, codeHash string, now time.Time) (*models.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if acc.VerificationCode == "" || acc.VerificationCode != codeHash || !acc.HasPendingCode(now) {
		return nil, repository.ErrConditionFailed
	}

	acc.VerificationCode = ""
	acc.VerificationCodeExpiry = nil
	acc.IsVerified = true
	acc.UpdatedAt = time.Now().UTC()
	return cloneAccount(acc), nil
}

func (s *accountStore) ClearPendingCode(ctx context.Context, id, codeHash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[id]
	if !ok {
		return repository.ErrNotFound
	}
	if acc.VerificationCode == codeHash {
		acc.VerificationCode = ""
		acc.VerificationCodeExpiry = nil
		acc.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (s *accountStore) CompleteProfile(ctx context.Context, id string, profile models.Profile) (*models.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	acc.Name = profile.Name
	acc.ProfilePicture = profile.ProfilePicture
	acc.Description = profile.Description
	acc.IsProfileComplete = true
	acc.UpdatedAt = time.Now().UTC()
	return cloneAccount(acc), nil
}

func (s *accountStore) UpdateProfile(ctx context.Context, id string, patch models.ProfilePatch) (*models.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if !patch.IsEmpty() {
		patch.Apply(acc)
		acc.UpdatedAt = time.Now().UTC()
	}
	return cloneAccount(acc), nil
}

func (s *accountStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[id]
	if !ok {
		return repository.ErrNotFound
	}
	delete(s.byPhone, acc.PhoneNumber)
	delete(s.accounts, id)
	return nil
}

func (s *accountStore) HealthCheck(ctx context.Context) error { return ctx.Err() }

type chatStore Store

func (s *chatStore) Create(ctx context.Context, chat *models.Chat) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if chat.ID == "" {
		chat.ID = uuid.New().String()
	}
	if _, ok := s.chats[chat.ID]; ok {
		return repository.ErrConflict
	}
	now := time.Now().UTC()
	if chat.CreatedAt.IsZero() {
		chat.CreatedAt = now
	}
	chat.UpdatedAt = chat.CreatedAt
	s.chats[chat.ID] = chat.Clone()
	return nil
}

func (s *chatStore) GetByID(ctx context.Context, id string) (*models.Chat, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	chat, ok := s.chats[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return chat.Clone(), nil
}

func (s *chatStore) ListByMember(ctx context.Context, accountID string) ([]*models.Chat, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Chat
	for _, chat := range s.chats {
		if slices.Contains(chat.Members, accountID) {
			out = append(out, chat.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (s *chatStore) UpdateLastMessage(ctx context.Context, id, message, senderID, messageType string, at time.Time) (*models.Chat, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	chat, ok := s.chats[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	chat.LastMessage = message
	chat.LastMessageSender = senderID
	chat.LastMessageType = messageType
	chat.UpdatedAt = at.UTC()
	return chat.Clone(), nil
}

func (s *chatStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.chats[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.chats, id)
	return nil
}
