package factory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"chat-auth-service/internal/audit"
	"chat-auth-service/internal/bucketing"
	"chat-auth-service/internal/client"
	"chat-auth-service/internal/config"
	"chat-auth-service/internal/delivery"
	"chat-auth-service/internal/hashing"
	"chat-auth-service/internal/notification"
	"chat-auth-service/internal/repository"
	"chat-auth-service/internal/repository/memory"
	"chat-auth-service/internal/repository/postgres"
	"chat-auth-service/internal/repository/scylla"
	"chat-auth-service/internal/service"
	"chat-auth-service/internal/tls"
	"chat-auth-service/internal/token"
	"chat-auth-service/internal/util"

	"go.uber.org/zap"
)

const initTimeout = 30 * time.Second

// Factory manages the lifecycle of all application dependencies
type Factory struct {
	config     *config.Config
	logger     *zap.Logger
	tlsManager *tls.TLSManager

	// Clients
	store            repository.Store
	redisClient      *client.RedisClient
	kafkaProducer    *client.KafkaProducer
	kafkaConsumer    *client.KafkaConsumer
	clickhouseClient *client.ClickHouseClient

	hasher   *hashing.Hasher
	tokens   *token.Service
	sender   notification.Sender
	queue    delivery.Queue
	worker   *delivery.Worker
	recorder *audit.Recorder

	serviceFactory *service.ServiceFactory

	closeOnce sync.Once
}

// NewFactory loads configuration from the environment, initializes the
// global logger and builds every dependency.
func NewFactory() (*Factory, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	logger := util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)

	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()

	return New(ctx, cfg, logger)
}

// New builds the dependencies described by cfg. Anything opened before a
// failure is closed again.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Factory, error) {
	f := &Factory{
		config: cfg,
		logger: logger,
	}

	if cfg.UsesDevelopmentSecret() {
		util.Warn("JWT_SECRET not set, using the development secret")
	}

	if cfg.Server.EnableTLS {
		f.tlsManager = tls.NewTLSManager(cfg.Server, cfg.Environment)
	}

	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"store", f.initializeStore},
		{"managers", f.initializeManagers},
		{"sender", f.initializeSender},
		{"delivery", f.initializeDelivery},
		{"audit", f.initializeAudit},
	}
	for _, step := range steps {
		if err := step.fn(ctx); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to initialize %s: %w", step.name, err)
		}
	}

	f.serviceFactory = service.NewServiceFactory(f.store, f.hasher, f.tokens, f.queue, f.recorder, logger)

	util.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.String("store", cfg.Store.Driver),
		util.String("delivery", cfg.Delivery.Mode),
		util.String("sms_provider", cfg.SMS.Provider),
		util.String("audit", cfg.Audit.Driver),
		util.Bool("tls_enabled", cfg.Server.EnableTLS),
	)

	return f, nil
}

func (f *Factory) initializeStore(ctx context.Context) error {
	switch f.config.Store.Driver {
	case config.StoreMemory:
		f.store = memory.New()
		util.Warn("Using in-memory store, data is lost on restart")

	case config.StorePostgres:
		store, err := postgres.Open(ctx, f.config.Postgres)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		f.store = store
		util.Info("Postgres store initialized")

	case config.StoreScylla:
		scyllaClient, err := scylla.NewScyllaClient(f.config.Scylla, f.logger)
		if err != nil {
			return fmt.Errorf("scylla: %w", err)
		}
		if err := scyllaClient.EnsureSchema(ctx); err != nil {
			scyllaClient.Close()
			return fmt.Errorf("scylla schema: %w", err)
		}
		f.store = scylla.NewStore(scyllaClient, bucketing.NewBucketingManager(f.config.Bucketing))
		util.Info("ScyllaDB store initialized", util.Int("user_buckets", f.config.Bucketing.UserBuckets))

	default:
		return fmt.Errorf("unknown store driver %q", f.config.Store.Driver)
	}

	return f.store.HealthCheck(ctx)
}

// initializeManagers builds the code hasher and the token service
func (f *Factory) initializeManagers(context.Context) error {
	f.hasher = hashing.NewHasher(f.config.Hashing)

	tokens, err := token.NewService(f.config.JWT)
	if err != nil {
		return err
	}
	f.tokens = tokens

	util.Info("Managers initialized successfully",
		util.Duration("token_expiry", tokens.Expiry()))
	return nil
}

func (f *Factory) initializeSender(ctx context.Context) error {
	switch f.config.SMS.Provider {
	case config.SMSProviderSNS:
		sender, err := notification.NewSNSSender(ctx, f.config.SMS.Region, f.config.SMS.SenderID, f.logger.Named("sms"))
		if err != nil {
			return fmt.Errorf("sns: %w", err)
		}
		f.sender = sender
	default:
		f.sender = notification.NewLogSender(f.logger.Named("sms"), !f.config.IsProduction())
	}
	return nil
}

func (f *Factory) initializeDelivery(ctx context.Context) error {
	dc := f.config.Delivery

	var source delivery.Source
	switch dc.Mode {
	case config.DeliveryInline:
		f.queue = delivery.NewInlineQueue(f.sender, dc.AttemptTimeout)
		return nil

	case config.DeliveryKafka:
		producer, err := client.NewKafkaProducer(f.config.Kafka, f.logger)
		if err != nil {
			return fmt.Errorf("kafka producer: %w", err)
		}
		f.kafkaProducer = producer

		consumer, err := client.NewKafkaConsumer(f.config.Kafka, f.config.Kafka.DeliveryTopic, f.config.Kafka.GroupID, f.logger)
		if err != nil {
			return fmt.Errorf("kafka consumer: %w", err)
		}
		f.kafkaConsumer = consumer

		f.queue = delivery.NewKafkaQueue(producer, f.config.Kafka.DeliveryTopic)
		source = delivery.NewKafkaSource(consumer)

	case config.DeliveryRedis:
		redisClient, err := client.NewRedisClient(f.config.Redis, f.logger)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		f.redisClient = redisClient
		if err := redisClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("redis health check: %w", err)
		}

		f.queue = delivery.NewRedisQueue(redisClient, f.config.Redis.DeliveryKey)
		source = delivery.NewRedisSource(redisClient, f.config.Redis.DeliveryKey, 0)

	default:
		return fmt.Errorf("unknown delivery mode %q", dc.Mode)
	}

	f.worker = delivery.NewWorker(source, f.sender, delivery.WorkerConfig{
		Concurrency:    dc.Workers,
		MaxRetries:     dc.MaxRetries,
		AttemptTimeout: dc.AttemptTimeout,
	}, f.logger.Named("delivery")).OnFailure(f.deliveryFailed)

	util.Info("Delivery worker configured",
		util.String("mode", dc.Mode),
		util.Int("workers", dc.Workers),
		util.Int("max_retries", dc.MaxRetries))
	return nil
}

// initializeAudit wires the ClickHouse sink. Outside production an
// unreachable ClickHouse degrades to no auditing.
func (f *Factory) initializeAudit(ctx context.Context) error {
	var sink audit.Sink = audit.NopSink{}

	if f.config.Audit.Driver == config.AuditClickhouse {
		chSink, err := f.clickhouseSink(ctx)
		switch {
		case err == nil:
			sink = chSink
		case f.config.IsProduction():
			return err
		default:
			util.Warn("ClickHouse audit sink unavailable, audit events are dropped", util.ErrorField(err))
		}
	}

	f.recorder = audit.NewRecorder(sink, f.logger.Named("audit"))
	return nil
}

func (f *Factory) clickhouseSink(ctx context.Context) (*audit.ClickHouseSink, error) {
	chClient, err := client.NewClickHouseClient(f.config.Clickhouse, f.logger)
	if err != nil {
		return nil, fmt.Errorf("clickhouse: %w", err)
	}

	sink, err := audit.NewClickHouseSink(ctx, chClient)
	if err != nil {
		chClient.Close()
		return nil, err
	}

	f.clickhouseClient = chClient
	util.Info("ClickHouse audit sink initialized")
	return sink, nil
}

func (f *Factory) deliveryFailed(ctx context.Context, job delivery.Job, err error) {
	reason := "send_failed"
	if errors.Is(err, delivery.ErrCodeExpired) {
		reason = "expired_before_delivery"
	}
	f.recorder.Record(ctx, audit.Event{
		Type:        audit.CodeDeliveryFailed,
		AccountID:   job.AccountID,
		PhoneNumber: job.PhoneNumber,
		Reason:      reason,
	})
}

// RunWorkers drains the delivery queue until ctx is cancelled. It returns
// at once in inline mode.
func (f *Factory) RunWorkers(ctx context.Context) error {
	if f.worker == nil {
		return nil
	}
	return f.worker.Run(ctx)
}

// ==============================
// Health Checks
// ==============================

func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	healthErrors := make(map[string]error)

	if f.store != nil {
		if err := f.store.HealthCheck(ctx); err != nil {
			healthErrors["store"] = err
		}
	} else {
		healthErrors["store"] = fmt.Errorf("store not initialized")
	}

	if f.redisClient != nil {
		if err := f.redisClient.HealthCheck(ctx); err != nil {
			healthErrors["redis"] = err
		}
	}

	if f.kafkaProducer != nil {
		if err := f.kafkaProducer.HealthCheck(ctx); err != nil {
			healthErrors["kafka"] = err
		}
	}

	if f.clickhouseClient != nil {
		if err := f.clickhouseClient.HealthCheck(ctx); err != nil {
			healthErrors["clickhouse"] = err
		}
	}

	return healthErrors
}

func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		util.Info("Shutting down factory...")

		if f.kafkaConsumer != nil {
			if err := f.kafkaConsumer.Close(); err != nil {
				util.Error("Failed to close Kafka consumer", util.ErrorField(err))
			}
		}

		if f.kafkaProducer != nil {
			if err := f.kafkaProducer.Close(); err != nil {
				util.Error("Failed to close Kafka producer", util.ErrorField(err))
			} else {
				util.Info("Kafka producer closed")
			}
		}

		// Closes the ClickHouse connection when the sink owns one.
		if f.recorder != nil {
			if err := f.recorder.Close(); err != nil {
				util.Error("Failed to close audit sink", util.ErrorField(err))
			}
		}

		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				util.Error("Failed to close Redis client", util.ErrorField(err))
			} else {
				util.Info("Redis client closed")
			}
		}

		if f.store != nil {
			if err := f.store.Close(); err != nil {
				util.Error("Failed to close store", util.ErrorField(err))
			} else {
				util.Info("Store closed")
			}
		}

		util.Info("Factory shutdown completed")
		util.Sync()
	})

	return nil
}

func (f *Factory) Config() *config.Config {
	return f.config
}

func (f *Factory) TLSManager() *tls.TLSManager {
	return f.tlsManager
}

func (f *Factory) ServiceFactory() *service.ServiceFactory {
	return f.serviceFactory
}

func (f *Factory) Logger() *zap.Logger {
	return f.logger
}
