package factory

import (
	"context"
	"errors"
	"testing"
	"time"

	"chat-auth-service/internal/audit"
	"chat-auth-service/internal/config"
	"chat-auth-service/internal/delivery"
	"chat-auth-service/internal/notification"
	"chat-auth-service/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConfig() *config.Config {
	return &config.Config{
		Environment: config.EnvTest,
		Store:       config.StoreConfig{Driver: config.StoreMemory},
		JWT:         config.JWTConfig{Secret: "factory-test-secret", ExpiresIn: time.Hour, Issuer: "test"},
		Hashing: config.HashingConfig{
			Pepper:            "pepper",
			Argon2MemoryCost:  64,
			Argon2TimeCost:    1,
			Argon2Parallelism: 1,
		},
		SMS:      config.SMSConfig{Provider: config.SMSProviderLog},
		Delivery: config.DeliveryConfig{Mode: config.DeliveryInline, AttemptTimeout: time.Second},
		Audit:    config.AuditConfig{Driver: config.AuditNone},
	}
}

type recordingSink struct {
	events []audit.Event
}

func (s *recordingSink) Record(ctx context.Context, event audit.Event) error {
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) Close() error { return nil }

func TestNew_MemoryInline(t *testing.T) {
	f, err := New(context.Background(), testConfig(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })

	assert.Empty(t, f.HealthCheck(context.Background()))
	assert.Nil(t, f.TLSManager())
	assert.IsType(t, &notification.LogSender{}, f.sender)
	assert.IsType(t, &delivery.InlineQueue{}, f.queue)

	// Inline delivery has no worker to run.
	assert.NoError(t, f.RunWorkers(context.Background()))

	ctx := context.Background()
	auth := f.ServiceFactory().AuthService()
	sent, err := auth.IssueCode(ctx, service.SendCodeRequest{PhoneNumber: "+14155550123"})
	require.NoError(t, err)
	assert.Equal(t, "+14155550123", sent.PhoneNumber)

	code, ok := f.sender.(*notification.LogSender).LastCode("+14155550123")
	require.True(t, ok)

	verified, err := auth.VerifyCode(ctx, service.VerifyCodeRequest{PhoneNumber: "+14155550123", Code: code})
	require.NoError(t, err)
	assert.NotEmpty(t, verified.Token)
}

func TestNew_RejectsUnknownStore(t *testing.T) {
	cfg := testConfig()
	cfg.Store.Driver = "sqlite"

	_, err := New(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store")
}

func TestNew_AuditFallsBackOutsideProduction(t *testing.T) {
	cfg := testConfig()
	cfg.Audit.Driver = config.AuditClickhouse
	cfg.Clickhouse = config.ClickhouseConfig{URL: "127.0.0.1:1", Database: "default", Username: "default"}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	f, err := New(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })

	assert.Nil(t, f.clickhouseClient)
	assert.NotContains(t, f.HealthCheck(context.Background()), "clickhouse")
}

func TestDeliveryFailed_RecordsReason(t *testing.T) {
	sink := &recordingSink{}
	f := &Factory{recorder: audit.NewRecorder(sink, zap.NewNop())}

	job := delivery.Job{AccountID: "acc-1", PhoneNumber: "+14155550123"}
	f.deliveryFailed(context.Background(), job, errors.New("carrier down"))
	f.deliveryFailed(context.Background(), job, delivery.ErrCodeExpired)

	require.Len(t, sink.events, 2)
	assert.Equal(t, audit.CodeDeliveryFailed, sink.events[0].Type)
	assert.Equal(t, "acc-1", sink.events[0].AccountID)
	assert.Equal(t, "send_failed", sink.events[0].Reason)
	assert.Equal(t, "expired_before_delivery", sink.events[1].Reason)
}

func TestHealthCheck_ReportsMissingStore(t *testing.T) {
	f := &Factory{}
	failures := f.HealthCheck(context.Background())
	assert.Contains(t, failures, "store")
}
