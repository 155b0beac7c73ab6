package service

import (
	"context"
	"fmt"
	"time"

	"chat-auth-service/internal/models"
	"chat-auth-service/internal/repository"
	"chat-auth-service/internal/util"

	"go.uber.org/zap"
)

type ChatList struct {
	Chats      []models.ChatView `json:"chats"`
	TotalChats int               `json:"totalChats"`
}

// ChatService manages chat records on behalf of an authenticated account.
// Only members can see or change a chat.
type ChatService struct {
	accounts repository.AccountStore
	chats    repository.ChatStore
	logger   *zap.Logger
	now      func() time.Time
}

func NewChatService(accounts repository.AccountStore, chats repository.ChatStore, logger *zap.Logger) *ChatService {
	return &ChatService{
		accounts: accounts,
		chats:    chats,
		logger:   logger,
		now:      time.Now,
	}
}

func (s *ChatService) WithClock(now func() time.Time) *ChatService {
	s.now = now
	return s
}

// CreateChat stores a chat between the requester and req.Members. The
// requester is always a member; duplicate ids collapse.
func (s *ChatService) CreateChat(ctx context.Context, requesterID string, req CreateChatRequest) (*models.ChatView, error) {
	if verr := validate(req); verr != nil {
		return nil, verr
	}

	members := uniqueMembers(requesterID, req.Members)
	found, err := s.accounts.GetByIDs(ctx, members)
	if err != nil {
		return nil, internalError(fmt.Errorf("failed to load members: %w", err))
	}
	if missing := missingIDs(members, found); len(missing) > 0 {
		e := newError(ErrInvalidInput, "Unknown chat members")
		for _, id := range missing {
			e.Fields = append(e.Fields, FieldError{Field: "members", Message: "unknown member " + id})
		}
		return nil, e
	}

	chat := &models.Chat{
		Members:         members,
		LastMessageType: models.MessageTypeText,
	}
	if msg := util.SanitizeInput(req.LastMessage); msg != "" {
		chat.LastMessage = msg
		chat.LastMessageSender = requesterID
	}
	if err := s.chats.Create(ctx, chat); err != nil {
		return nil, internalError(fmt.Errorf("failed to create chat: %w", err))
	}

	s.logger.Info("Chat created",
		util.String("chat_id", chat.ID),
		util.String("account_id", requesterID),
		util.Int("members", len(members)))

	views, err := s.views(ctx, []*models.Chat{chat})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

func (s *ChatService) GetChat(ctx context.Context, requesterID, chatID string) (*models.ChatView, error) {
	chat, err := s.memberChat(ctx, requesterID, chatID)
	if err != nil {
		return nil, err
	}
	views, err := s.views(ctx, []*models.Chat{chat})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// UpdateLastMessage records the latest message preview and bumps the chat
// to the top of every member's list.
func (s *ChatService) UpdateLastMessage(ctx context.Context, requesterID, chatID string, req UpdateLastMessageRequest) (*models.ChatView, error) {
	req.Normalize()
	if verr := validate(req); verr != nil {
		return nil, verr
	}
	if _, err := s.memberChat(ctx, requesterID, chatID); err != nil {
		return nil, err
	}

	messageType := req.LastMessageType
	if messageType == "" {
		messageType = models.MessageTypeText
	}

	chat, err := s.chats.UpdateLastMessage(ctx, chatID, req.LastMessage, requesterID, messageType, s.now().UTC())
	if err != nil {
		return nil, storeError(err, "Chat not found")
	}

	views, err := s.views(ctx, []*models.Chat{chat})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

func (s *ChatService) DeleteChat(ctx context.Context, requesterID, chatID string) error {
	if _, err := s.memberChat(ctx, requesterID, chatID); err != nil {
		return err
	}
	if err := s.chats.Delete(ctx, chatID); err != nil {
		return storeError(err, "Chat not found")
	}
	s.logger.Info("Chat deleted",
		util.String("chat_id", chatID),
		util.String("account_id", requesterID))
	return nil
}

// ListChats returns the requester's chats, most recently updated first.
func (s *ChatService) ListChats(ctx context.Context, requesterID string) (*ChatList, error) {
	chats, err := s.chats.ListByMember(ctx, requesterID)
	if err != nil {
		return nil, internalError(fmt.Errorf("failed to list chats: %w", err))
	}
	views, err := s.views(ctx, chats)
	if err != nil {
		return nil, err
	}
	return &ChatList{Chats: views, TotalChats: len(views)}, nil
}

// memberChat loads a chat the requester belongs to. Non-members get the
// same NotFound as a missing chat.
func (s *ChatService) memberChat(ctx context.Context, requesterID, chatID string) (*models.Chat, error) {
	chat, err := s.chats.GetByID(ctx, chatID)
	if err != nil {
		return nil, storeError(err, "Chat not found")
	}
	if !chat.HasMember(requesterID) {
		return nil, newError(ErrNotFound, "Chat not found")
	}
	return chat, nil
}

// views resolves member and sender ids with a single account lookup.
// Accounts deleted since the chat was written are left out.
func (s *ChatService) views(ctx context.Context, chats []*models.Chat) ([]models.ChatView, error) {
	var ids []string
	for _, c := range chats {
		ids = append(ids, c.Members...)
		if c.LastMessageSender != "" {
			ids = append(ids, c.LastMessageSender)
		}
	}

	byID := make(map[string]*models.Account)
	if len(ids) > 0 {
		accounts, err := s.accounts.GetByIDs(ctx, uniqueMembers("", ids))
		if err != nil {
			return nil, internalError(fmt.Errorf("failed to resolve chat members: %w", err))
		}
		for _, a := range accounts {
			byID[a.ID] = a
		}
	}

	views := make([]models.ChatView, 0, len(chats))
	for _, c := range chats {
		view := models.ChatView{
			ID:              c.ID,
			Members:         make([]models.MemberSummary, 0, len(c.Members)),
			LastMessage:     c.LastMessage,
			LastMessageType: c.LastMessageType,
			CreatedAt:       c.CreatedAt,
			UpdatedAt:       c.UpdatedAt,
		}
		for _, id := range c.Members {
			if a, ok := byID[id]; ok {
				view.Members = append(view.Members, a.MemberSummary())
			}
		}
		if a, ok := byID[c.LastMessageSender]; ok {
			view.LastMessageSender = &models.SenderSummary{ID: a.ID, Name: a.Name}
		}
		views = append(views, view)
	}
	return views, nil
}

// uniqueMembers returns ids with first as the leading entry when set and
// duplicates removed, keeping first-seen order.
func uniqueMembers(first string, ids []string) []string {
	seen := make(map[string]struct{}, len(ids)+1)
	out := make([]string, 0, len(ids)+1)
	add := func(id string) {
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	add(first)
	for _, id := range ids {
		add(id)
	}
	return out
}

func missingIDs(want []string, found []*models.Account) []string {
	have := make(map[string]struct{}, len(found))
	for _, a := range found {
		have[a.ID] = struct{}{}
	}
	var missing []string
	for _, id := range want {
		if _, ok := have[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}
