// Package scylla implements the account and chat stores on ScyllaDB.
package scylla

import (
	"context"

	"chat-auth-service/internal/bucketing"
	"chat-auth-service/internal/repository"
)

type Store struct {
	client   *ScyllaClient
	accounts *AccountRepository
	chats    *ChatRepository
}

func NewStore(client *ScyllaClient, buckets *bucketing.BucketingManager) *Store {
	return &Store{
		client:   client,
		accounts: NewAccountRepository(client, buckets),
		chats:    NewChatRepository(client, buckets),
	}
}

func (s *Store) Accounts() repository.AccountStore { return s.accounts }
func (s *Store) Chats() repository.ChatStore       { return s.chats }

func (s *Store) HealthCheck(ctx context.Context) error {
	return s.client.HealthCheck(ctx)
}

func (s *Store) Close() error {
	s.client.Close()
	return nil
}
