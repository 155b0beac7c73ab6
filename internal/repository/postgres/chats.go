package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"chat-auth-service/internal/models"
	"chat-auth-service/internal/repository"

	"github.com/google/uuid"
)

// Members are aggregated in their stored order; account ids never contain commas.
const chatSelect = `SELECT c.id, c.last_message, c.last_message_sender, c.last_message_type, c.created_at, c.updated_at,
		COALESCE((SELECT string_agg(m.account_id, ',' ORDER BY m.position) FROM chat_members m WHERE m.chat_id = c.id), '') AS members
	FROM chats c`

type ChatRepository struct {
	db *sql.DB
}

func NewChatRepository(db *sql.DB) *ChatRepository {
	return &ChatRepository{db: db}
}

func scanChat(row rowScanner) (*models.Chat, error) {
	var (
		chat    models.Chat
		sender  sql.NullString
		members string
	)
	if err := row.Scan(&chat.ID, &chat.LastMessage, &sender, &chat.LastMessageType, &chat.CreatedAt, &chat.UpdatedAt, &members); err != nil {
		return nil, err
	}
	if sender.Valid {
		chat.LastMessageSender = sender.String
	}
	if members != "" {
		chat.Members = strings.Split(members, ",")
	}
	chat.CreatedAt = chat.CreatedAt.UTC()
	chat.UpdatedAt = chat.UpdatedAt.UTC()
	return &chat, nil
}

func (r *ChatRepository) Create(ctx context.Context, chat *models.Chat) error {
	if chat.ID == "" {
		chat.ID = uuid.New().String()
	}
	if chat.CreatedAt.IsZero() {
		chat.CreatedAt = time.Now().UTC()
	}
	chat.UpdatedAt = chat.CreatedAt

	err := withTx(ctx, r.db, func(ctx context.Context, tx DBTX) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO chats (id, last_message, last_message_sender, last_message_type, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $5)`,
			chat.ID, chat.LastMessage, nullable(optional(chat.LastMessageSender)), chat.LastMessageType, chat.CreatedAt,
		)
		if err != nil {
			return err
		}

		for i, member := range chat.Members {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO chat_members (chat_id, account_id, position) VALUES ($1, $2, $3)`,
				chat.ID, member, i,
			); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *ChatRepository) GetByID(ctx context.Context, id string) (*models.Chat, error) {
	chat, err := scanChat(r.db.QueryRowContext(ctx, chatSelect+` WHERE c.id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return chat, nil
}

func (r *ChatRepository) ListByMember(ctx context.Context, accountID string) ([]*models.Chat, error) {
	query := chatSelect + `
	WHERE EXISTS (SELECT 1 FROM chat_members mm WHERE mm.chat_id = c.id AND mm.account_id = $1)
	ORDER BY c.updated_at DESC, c.id`

	rows, err := r.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var chats []*models.Chat
	for rows.Next() {
		chat, err := scanChat(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		chats = append(chats, chat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return chats, nil
}

func (r *ChatRepository) UpdateLastMessage(ctx context.Context, id, message, senderID, messageType string, at time.Time) (*models.Chat, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE chats SET last_message = $2, last_message_sender = $3, last_message_type = $4, updated_at = $5
		WHERE id = $1`,
		id, message, nullable(optional(senderID)), messageType, at.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return nil, repository.ErrNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *ChatRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM chats WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
