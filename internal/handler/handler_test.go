package handler

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"chat-auth-service/internal/config"
	"chat-auth-service/internal/delivery"
	"chat-auth-service/internal/hashing"
	"chat-auth-service/internal/models"
	"chat-auth-service/internal/notification"
	"chat-auth-service/internal/repository/memory"
	"chat-auth-service/internal/service"
	"chat-auth-service/internal/token"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testPhone = "+15551234567"

type healthFunc func(ctx context.Context) map[string]error

func (f healthFunc) HealthCheck(ctx context.Context) map[string]error { return f(ctx) }

type envelope struct {
	Success bool                 `json:"success"`
	Message string               `json:"message"`
	Data    json.RawMessage      `json:"data"`
	Error   string               `json:"error"`
	Errors  []service.FieldError `json:"errors"`
}

type testServer struct {
	handler http.Handler
	store   *memory.Store
	sender  *notification.LogSender
	tokens  *token.Service
	auth    *service.AuthService
}

func newTestServer(t *testing.T, serverCfg config.ServerConfig, health HealthChecker) *testServer {
	t.Helper()

	tokens, err := token.NewService(config.JWTConfig{Secret: "handler-secret", ExpiresIn: time.Hour})
	require.NoError(t, err)

	hasher := hashing.NewHasher(config.HashingConfig{
		Pepper:            "pepper",
		Argon2MemoryCost:  64,
		Argon2TimeCost:    1,
		Argon2Parallelism: 1,
	})

	s := &testServer{
		store:  memory.New(),
		sender: notification.NewLogSender(zap.NewNop(), true),
		tokens: tokens,
	}
	factory := service.NewServiceFactory(s.store, hasher, tokens, delivery.NewInlineQueue(s.sender, time.Second), nil, zap.NewNop())
	s.auth = factory.AuthService()

	if health == nil {
		health = healthFunc(func(context.Context) map[string]error { return nil })
	}
	if serverCfg.AllowedOrigins == nil {
		serverCfg.AllowedOrigins = []string{"*"}
	}
	s.handler = NewRouter(
		NewAuthHandler(factory.AuthService(), factory.ChatService(), zap.NewNop()),
		NewChatHandler(factory.AuthService(), factory.ChatService(), zap.NewNop()),
		health,
		serverCfg,
		zap.NewNop(),
	)
	return s
}

func (s *testServer) do(t *testing.T, method, path, bearer string, body interface{}) (int, envelope) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", bearer)
	}

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

// login runs send-code and verify-code and returns the bearer header value.
func (s *testServer) login(t *testing.T, phoneNumber string) string {
	t.Helper()

	status, _ := s.do(t, http.MethodPost, "/api/auth/send-code", "", map[string]string{"phoneNumber": phoneNumber})
	require.Equal(t, http.StatusOK, status)
	code, ok := s.sender.LastCode(phoneNumber)
	require.True(t, ok)

	status, env := s.do(t, http.MethodPost, "/api/auth/verify-code", "", map[string]string{"phoneNumber": phoneNumber, "code": code})
	require.Equal(t, http.StatusOK, status)

	var data service.VerifyCodeResult
	require.NoError(t, json.Unmarshal(env.Data, &data))
	return "Bearer " + data.Token
}

func (s *testServer) profiledLogin(t *testing.T, phoneNumber, name string) (string, string) {
	t.Helper()
	bearer := s.login(t, phoneNumber)
	status, env := s.do(t, http.MethodPost, "/api/auth/complete-profile", bearer, map[string]string{"name": name})
	require.Equal(t, http.StatusOK, status)

	var data struct {
		User struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	return bearer, data.User.ID
}

func TestSendAndVerify_Scenario(t *testing.T) {
	s := newTestServer(t, config.ServerConfig{}, nil)
	s.auth.WithCodeGenerator(func() (string, error) { return "123456", nil })

	status, env := s.do(t, http.MethodPost, "/auth/send-code", "", map[string]string{"phoneNumber": testPhone})
	require.Equal(t, http.StatusOK, status)
	assert.True(t, env.Success)
	assert.Equal(t, "Verification code sent successfully", env.Message)
	assert.JSONEq(t, `{"phoneNumber":"+15551234567","expiresIn":"10 minutes"}`, string(env.Data))

	code, _ := s.sender.LastCode(testPhone)
	assert.Equal(t, "123456", code)

	status, env = s.do(t, http.MethodPost, "/auth/verify-code", "", map[string]string{"phoneNumber": testPhone, "code": "123456"})
	require.Equal(t, http.StatusOK, status)

	var data struct {
		Token string                 `json:"token"`
		User  map[string]interface{} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.NotEmpty(t, data.Token)
	assert.Equal(t, true, data.User["isVerified"])
	assert.Equal(t, false, data.User["isProfileComplete"])
	assert.NotContains(t, data.User, "verificationCode")

	status, env = s.do(t, http.MethodPost, "/auth/verify-code", "", map[string]string{"phoneNumber": testPhone, "code": "123456"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.False(t, env.Success)
	assert.Equal(t, "Verification code has expired", env.Message)
}

func TestSendCode_BadInput(t *testing.T) {
	s := newTestServer(t, config.ServerConfig{}, nil)

	status, env := s.do(t, http.MethodPost, "/api/auth/send-code", "", map[string]string{"phoneNumber": "555-1234"})
	assert.Equal(t, http.StatusBadRequest, status)
	require.Len(t, env.Errors, 1)
	assert.Equal(t, "phoneNumber", env.Errors[0].Field)

	status, env = s.do(t, http.MethodPost, "/api/auth/send-code", "", `{"phoneNumber":`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Invalid request body", env.Message)
}

func TestVerifyCode_Errors(t *testing.T) {
	s := newTestServer(t, config.ServerConfig{}, nil)

	status, _ := s.do(t, http.MethodPost, "/api/auth/verify-code", "", map[string]string{"phoneNumber": testPhone, "code": "123456"})
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = s.do(t, http.MethodPost, "/api/auth/send-code", "", map[string]string{"phoneNumber": testPhone})
	require.Equal(t, http.StatusOK, status)
	code, _ := s.sender.LastCode(testPhone)
	wrong := "000000"
	if code == wrong {
		wrong = "999999"
	}

	status, env := s.do(t, http.MethodPost, "/api/auth/verify-code", "", map[string]string{"phoneNumber": testPhone, "code": wrong})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Invalid verification code", env.Message)

	status, env = s.do(t, http.MethodPost, "/api/auth/verify-code", "", map[string]string{"phoneNumber": testPhone, "code": "12"})
	assert.Equal(t, http.StatusBadRequest, status)
	require.Len(t, env.Errors, 1)
	assert.Equal(t, "code", env.Errors[0].Field)
}

func TestAuthGate(t *testing.T) {
	s := newTestServer(t, config.ServerConfig{}, nil)
	bearer := s.login(t, testPhone)

	status, _ := s.do(t, http.MethodGet, "/api/auth/me", bearer, nil)
	assert.Equal(t, http.StatusOK, status)

	status, env := s.do(t, http.MethodGet, "/api/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Authentication required", env.Message)

	status, _ = s.do(t, http.MethodGet, "/api/auth/me", "Basic dXNlcjpwYXNz", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = s.do(t, http.MethodGet, "/api/auth/me", "Bearer", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, env = s.do(t, http.MethodGet, "/api/auth/me", "Bearer garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Invalid or expired token", env.Message)

	account, err := s.store.Accounts().GetByPhone(context.Background(), testPhone)
	require.NoError(t, err)

	expired, err := s.tokens.WithClock(func() time.Time { return time.Now().Add(-3 * time.Hour) }).Issue(account.ID, testPhone)
	require.NoError(t, err)
	status, _ = s.do(t, http.MethodGet, "/api/auth/me", "Bearer "+expired, nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	// Code requested but never verified.
	status, _ = s.do(t, http.MethodPost, "/api/auth/send-code", "", map[string]string{"phoneNumber": "+447911123456"})
	require.Equal(t, http.StatusOK, status)
	pending, err := s.store.Accounts().GetByPhone(context.Background(), "+447911123456")
	require.NoError(t, err)
	unverified, err := s.tokens.Issue(pending.ID, pending.PhoneNumber)
	require.NoError(t, err)
	status, env = s.do(t, http.MethodGet, "/api/auth/me", "Bearer "+unverified, nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "Phone number not verified", env.Message)

	require.NoError(t, s.store.Accounts().Delete(context.Background(), account.ID))
	status, _ = s.do(t, http.MethodGet, "/api/auth/me", bearer, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestChats_RequireCompleteProfile(t *testing.T) {
	s := newTestServer(t, config.ServerConfig{}, nil)
	bearer := s.login(t, testPhone)

	status, env := s.do(t, http.MethodGet, "/auth/chats", bearer, nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "Please complete your profile first", env.Message)

	status, _ = s.do(t, http.MethodPost, "/api/chats", bearer, map[string]interface{}{"members": []string{"x"}})
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = s.do(t, http.MethodPost, "/auth/complete-profile", bearer, map[string]string{"name": "Ada"})
	require.Equal(t, http.StatusOK, status)

	status, env = s.do(t, http.MethodGet, "/auth/chats", bearer, nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"chats":[],"totalChats":0}`, string(env.Data))
}

func TestProfileEndpoints(t *testing.T) {
	s := newTestServer(t, config.ServerConfig{}, nil)
	bearer := s.login(t, testPhone)

	status, env := s.do(t, http.MethodPost, "/api/auth/complete-profile", bearer, map[string]string{
		"name":           "Ada",
		"profilePicture": "https://example.com/a.png",
		"description":    "first",
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Profile completed successfully", env.Message)

	status, env = s.do(t, http.MethodPatch, "/api/auth/profile", bearer, map[string]string{"description": "second"})
	require.Equal(t, http.StatusOK, status)

	var data struct {
		User models.AccountSummary `json:"user"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "Ada", data.User.Name)
	assert.Equal(t, "https://example.com/a.png", data.User.ProfilePicture)
	assert.Equal(t, "second", data.User.Description)
	assert.True(t, data.User.IsProfileComplete)

	status, env = s.do(t, http.MethodPost, "/api/auth/complete-profile", bearer, map[string]string{"name": "A"})
	assert.Equal(t, http.StatusBadRequest, status)
	require.NotEmpty(t, env.Errors)
	assert.Equal(t, "name", env.Errors[0].Field)

	status, env = s.do(t, http.MethodGet, "/api/auth/me", bearer, nil)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "second", data.User.Description)
}

func TestChatEndpoints(t *testing.T) {
	s := newTestServer(t, config.ServerConfig{}, nil)
	alice, _ := s.profiledLogin(t, "+15551230001", "Alice")
	bob, bobID := s.profiledLogin(t, "+15551230002", "Bob")
	eve, _ := s.profiledLogin(t, "+15551230003", "Eve")

	status, env := s.do(t, http.MethodPost, "/api/chats", alice, map[string]interface{}{"members": []string{bobID}, "lastMessage": "hi"})
	require.Equal(t, http.StatusCreated, status)

	var created struct {
		Chat struct {
			ID      string `json:"id"`
			Members []struct {
				ID   string `json:"id"`
				Name string `json:"name"`
			} `json:"members"`
			LastMessage string `json:"lastMessage"`
		} `json:"chat"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &created))
	chatID := created.Chat.ID
	require.NotEmpty(t, chatID)
	assert.Len(t, created.Chat.Members, 2)
	assert.Equal(t, "hi", created.Chat.LastMessage)

	status, _ = s.do(t, http.MethodGet, "/api/chats/"+chatID, bob, nil)
	assert.Equal(t, http.StatusOK, status)

	status, _ = s.do(t, http.MethodGet, "/api/chats/"+chatID, eve, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, env = s.do(t, http.MethodPatch, "/api/chats/"+chatID+"/last-message", bob, map[string]string{"lastMessage": "clip", "lastMessageType": "video"})
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(env.Data), `"lastMessageType":"video"`)

	status, env = s.do(t, http.MethodPatch, "/api/chats/"+chatID+"/last-message", bob, map[string]string{"lastMessage": "x", "lastMessageType": "gif"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "lastMessageType", env.Errors[0].Field)

	status, env = s.do(t, http.MethodGet, "/api/auth/chats", alice, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(env.Data), `"totalChats":1`)
	assert.Contains(t, string(env.Data), `"lastMessageSender":{"id":"`+bobID+`","name":"Bob"}`)

	status, _ = s.do(t, http.MethodDelete, "/api/chats/"+chatID, eve, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, env = s.do(t, http.MethodDelete, "/api/chats/"+chatID, alice, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Chat deleted successfully", env.Message)

	status, _ = s.do(t, http.MethodGet, "/api/chats/"+chatID, alice, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, config.ServerConfig{}, nil)
	status, env := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, env.Success)

	failing := newTestServer(t, config.ServerConfig{}, healthFunc(func(context.Context) map[string]error {
		return map[string]error{
			"store": errors.New("dial tcp db.internal:5432: connection refused"),
			"redis": errors.New("redis ping failed"),
		}
	}))
	status, env = failing.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.JSONEq(t, `{"status":"unhealthy","failing":["redis","store"]}`, string(env.Data))
	assert.NotContains(t, string(env.Data), "db.internal")
}

func TestRouter_NotFoundAndMethodNotAllowed(t *testing.T) {
	s := newTestServer(t, config.ServerConfig{}, nil)

	status, env := s.do(t, http.MethodGet, "/api/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "endpoint not found", env.Error)

	status, _ = s.do(t, http.MethodGet, "/api/auth/send-code", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, status)
}

func TestRouter_RequireHTTPSWhenTLSEnabled(t *testing.T) {
	s := newTestServer(t, config.ServerConfig{EnableTLS: true}, nil)

	status, _ := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusUpgradeRequired, status)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.TLS = &tls.ConnectionState{}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{header: "Bearer abc", want: "abc", ok: true},
		{header: "bearer abc", want: "abc", ok: true},
		{header: "Bearer   abc  ", want: "abc", ok: true},
		{header: "Bearer", ok: false},
		{header: "Bearer ", ok: false},
		{header: "Token abc", ok: false},
		{header: "", ok: false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", tt.header)
		got, ok := bearerToken(req)
		assert.Equal(t, tt.ok, ok, tt.header)
		assert.Equal(t, tt.want, got, tt.header)
	}
}

func TestStatusCode(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusCode(service.ErrCodeExpired))
	assert.Equal(t, http.StatusBadRequest, statusCode(service.ErrInvalidCode))
	assert.Equal(t, http.StatusUnauthorized, statusCode(service.ErrUnauthenticated))
	assert.Equal(t, http.StatusForbidden, statusCode(service.ErrForbidden))
	assert.Equal(t, http.StatusNotFound, statusCode(service.ErrNotFound))
	assert.Equal(t, http.StatusInternalServerError, statusCode(service.ErrDeliveryFailed))
	assert.Equal(t, http.StatusInternalServerError, statusCode(errors.New("boom")))
}
