package scylla

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"

	"chat-auth-service/internal/bucketing"
	"chat-auth-service/internal/models"
	"chat-auth-service/internal/repository"
)

// ChatRepository keeps chats bucketed by id plus a chats_by_member index
// for listing. Listing sorts in memory; a member's chat count is small.
type ChatRepository struct {
	client  *ScyllaClient
	buckets *bucketing.BucketingManager
}

func NewChatRepository(client *ScyllaClient, buckets *bucketing.BucketingManager) *ChatRepository {
	return &ChatRepository{client: client, buckets: buckets}
}

func (r *ChatRepository) Create(ctx context.Context, chat *models.Chat) error {
	if chat.ID == "" {
		chat.ID = uuid.New().String()
	}
	if chat.CreatedAt.IsZero() {
		chat.CreatedAt = time.Now().UTC()
	}
	chat.UpdatedAt = chat.CreatedAt

	st := r.client.Statements
	batch := r.client.Batch(ctx, gocql.LoggedBatch)
	batch.Query(st.InsertChat,
		r.buckets.GetBucket(chat.ID), chat.ID, chat.Members, chat.LastMessage,
		chat.LastMessageSender, chat.LastMessageType, chat.CreatedAt, chat.UpdatedAt)
	for _, member := range chat.Members {
		batch.Query(st.InsertChatMember, member, chat.ID)
	}

	if err := r.client.ExecuteBatch(batch); err != nil {
		return fmt.Errorf("failed to create chat: %w", err)
	}
	return nil
}

func (r *ChatRepository) GetByID(ctx context.Context, id string) (*models.Chat, error) {
	var chat models.Chat
	err := r.client.Query(ctx, r.client.Statements.GetChatByID, r.buckets.GetBucket(id), id).Scan(
		&chat.ID, &chat.Members, &chat.LastMessage, &chat.LastMessageSender,
		&chat.LastMessageType, &chat.CreatedAt, &chat.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get chat: %w", err)
	}
	chat.CreatedAt = chat.CreatedAt.UTC()
	chat.UpdatedAt = chat.UpdatedAt.UTC()
	return &chat, nil
}

func (r *ChatRepository) ListByMember(ctx context.Context, accountID string) ([]*models.Chat, error) {
	iter := r.client.Query(ctx, r.client.Statements.ListChatIDsByMember, accountID).Iter()

	var (
		ids    []string
		chatID string
	)
	for iter.Scan(&chatID) {
		ids = append(ids, chatID)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}

	chats := make([]*models.Chat, 0, len(ids))
	for _, id := range ids {
		chat, err := r.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				continue
			}
			return nil, err
		}
		chats = append(chats, chat)
	}

	sort.SliceStable(chats, func(i, j int) bool {
		if chats[i].UpdatedAt.Equal(chats[j].UpdatedAt) {
			return chats[i].ID < chats[j].ID
		}
		return chats[i].UpdatedAt.After(chats[j].UpdatedAt)
	})
	return chats, nil
}

func (r *ChatRepository) UpdateLastMessage(ctx context.Context, id, message, senderID, messageType string, at time.Time) (*models.Chat, error) {
	applied, err := r.client.Query(ctx, r.client.Statements.UpdateChatLastMessage,
		message, senderID, messageType, at.UTC(), r.buckets.GetBucket(id), id,
	).MapScanCAS(map[string]interface{}{})
	if err != nil {
		return nil, fmt.Errorf("failed to update chat: %w", err)
	}
	if !applied {
		return nil, repository.ErrNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *ChatRepository) Delete(ctx context.Context, id string) error {
	chat, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}

	st := r.client.Statements
	batch := r.client.Batch(ctx, gocql.LoggedBatch)
	batch.Query(st.DeleteChat, r.buckets.GetBucket(id), id)
	for _, member := range chat.Members {
		batch.Query(st.DeleteChatMember, member, id)
	}

	if err := r.client.ExecuteBatch(batch); err != nil {
		return fmt.Errorf("failed to delete chat: %w", err)
	}
	return nil
}
