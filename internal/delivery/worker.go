package delivery

import (
	"context"
	"errors"
	"time"

	"chat-auth-service/internal/notification"
	"chat-auth-service/internal/util"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrCodeExpired stops retries for a job whose code can no longer be used.
var ErrCodeExpired = errors.New("verification code expired before delivery")

type WorkerConfig struct {
	Concurrency    int
	MaxRetries     int
	AttemptTimeout time.Duration
	BaseBackoff    time.Duration
}

// FailureFunc is told about every job the worker gave up on.
type FailureFunc func(ctx context.Context, job Job, err error)

// Worker drains a Source and hands each job to a Sender, retrying
// transient failures with exponential backoff.
type Worker struct {
	source    Source
	sender    notification.Sender
	cfg       WorkerConfig
	onFailure FailureFunc
	now       func() time.Time
	logger    *zap.Logger
}

func NewWorker(source Source, sender notification.Sender, cfg WorkerConfig, logger *zap.Logger) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 500 * time.Millisecond
	}
	return &Worker{
		source:    source,
		sender:    sender,
		cfg:       cfg,
		onFailure: func(context.Context, Job, error) {},
		now:       time.Now,
		logger:    logger,
	}
}

func (w *Worker) OnFailure(fn FailureFunc) *Worker {
	w.onFailure = fn
	return w
}

// Run blocks until ctx is cancelled and then returns nil. Source errors
// never stop it.
func (w *Worker) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < w.cfg.Concurrency; i++ {
		id := i
		g.Go(func() error {
			return w.loop(ctx, id)
		})
	}

	w.logger.Info("Delivery worker started", util.Int("concurrency", w.cfg.Concurrency))
	err := g.Wait()
	w.logger.Info("Delivery worker stopped")
	return err
}

const maxSourceBackoff = 30 * time.Second

func (w *Worker) sourceBackoff() retry.Backoff {
	return retry.WithCappedDuration(maxSourceBackoff, retry.NewExponential(w.cfg.BaseBackoff))
}

// loop keeps pulling until ctx is done. Source errors are logged and
// retried with backoff; the backoff resets after the next good read.
func (w *Worker) loop(ctx context.Context, id int) error {
	backoff := w.sourceBackoff()
	for {
		job, ack, err := w.source.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			wait, _ := backoff.Next()
			w.logger.Warn("Delivery source read failed",
				util.Int("worker", id),
				util.Duration("retry_in", wait),
				util.ErrorField(err))

			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil
			case <-timer.C:
			}
			continue
		}
		backoff = w.sourceBackoff()

		w.Process(ctx, job)

		if err := ack(ctx); err != nil && ctx.Err() == nil {
			w.logger.Warn("Failed to acknowledge delivery job",
				util.Int("worker", id),
				util.ErrorField(err))
		}
	}
}

// Process delivers one job. It reports whether the send succeeded.
func (w *Worker) Process(ctx context.Context, job Job) bool {
	if job.Expired(w.now()) {
		w.logger.Info("Dropping expired delivery job",
			util.String("account_id", job.AccountID),
			util.Time("expires_at", job.ExpiresAt))
		w.onFailure(ctx, job, ErrCodeExpired)
		return false
	}

	backoff := retry.WithMaxRetries(uint64(w.cfg.MaxRetries), retry.NewExponential(w.cfg.BaseBackoff))

	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if job.Expired(w.now()) {
			return ErrCodeExpired
		}

		sendCtx := ctx
		if w.cfg.AttemptTimeout > 0 {
			var cancel context.CancelFunc
			sendCtx, cancel = context.WithTimeout(ctx, w.cfg.AttemptTimeout)
			defer cancel()
		}

		if err := w.sender.Send(sendCtx, job.PhoneNumber, job.Code); err != nil {
			w.logger.Warn("Delivery attempt failed",
				util.String("account_id", job.AccountID),
				util.Int("attempt", attempt),
				util.ErrorField(err))
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		w.logger.Error("Giving up on delivery job",
			util.String("account_id", job.AccountID),
			util.Phone("phone_number", job.PhoneNumber),
			util.Int("attempts", attempt),
			util.ErrorField(err))
		w.onFailure(ctx, job, err)
		return false
	}

	w.logger.Debug("Delivery job sent",
		util.String("account_id", job.AccountID),
		util.Int("attempts", attempt))
	return true
}
