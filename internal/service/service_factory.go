package service

import (
	"chat-auth-service/internal/audit"
	"chat-auth-service/internal/delivery"
	"chat-auth-service/internal/repository"

	"go.uber.org/zap"
)

// ServiceFactory creates and manages service instances
type ServiceFactory struct {
	store    repository.Store
	hasher   CodeHasher
	tokens   TokenService
	queue    delivery.Queue
	recorder *audit.Recorder
	logger   *zap.Logger

	authService *AuthService
	chatService *ChatService
}

func NewServiceFactory(
	store repository.Store,
	hasher CodeHasher,
	tokens TokenService,
	queue delivery.Queue,
	recorder *audit.Recorder,
	logger *zap.Logger,
) *ServiceFactory {
	return &ServiceFactory{
		store:    store,
		hasher:   hasher,
		tokens:   tokens,
		queue:    queue,
		recorder: recorder,
		logger:   logger,
	}
}

// AuthService returns the auth service instance (singleton)
func (f *ServiceFactory) AuthService() *AuthService {
	if f.authService == nil {
		f.authService = NewAuthService(
			f.store.Accounts(),
			f.hasher,
			f.tokens,
			f.queue,
			f.recorder,
			f.logger.Named("auth"),
		)
	}
	return f.authService
}

// ChatService returns the chat service instance (singleton)
func (f *ServiceFactory) ChatService() *ChatService {
	if f.chatService == nil {
		f.chatService = NewChatService(f.store.Accounts(), f.store.Chats(), f.logger.Named("chat"))
	}
	return f.chatService
}
