// Package audit records authentication security events. Recording is
// best effort: a failing sink is logged and never fails the caller.
package audit

import (
	"context"
	"time"

	"chat-auth-service/internal/util"

	"go.uber.org/zap"
)

type EventType string

const (
	CodeIssued         EventType = "code_issued"
	CodeDeliveryFailed EventType = "code_delivery_failed"
	CodeVerified       EventType = "code_verified"
	CodeRejected       EventType = "code_rejected"
	ProfileCompleted   EventType = "profile_completed"
)

type Event struct {
	Type        EventType
	AccountID   string
	PhoneNumber string
	// Reason is a short machine-readable cause for rejections and failures.
	Reason     string
	OccurredAt time.Time
}

type Sink interface {
	Record(ctx context.Context, event Event) error
	Close() error
}

type NopSink struct{}

func (NopSink) Record(context.Context, Event) error { return nil }
func (NopSink) Close() error                        { return nil }

// Recorder stamps events and swallows sink errors after logging them.
type Recorder struct {
	sink   Sink
	logger *zap.Logger
	now    func() time.Time
}

func NewRecorder(sink Sink, logger *zap.Logger) *Recorder {
	if sink == nil {
		sink = NopSink{}
	}
	return &Recorder{sink: sink, logger: logger, now: time.Now}
}

func (r *Recorder) Record(ctx context.Context, event Event) {
	if r == nil {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = r.now().UTC()
	}
	if err := r.sink.Record(ctx, event); err != nil {
		r.logger.Warn("Failed to record audit event",
			util.String("event", string(event.Type)),
			util.String("account_id", event.AccountID),
			util.ErrorField(err))
	}
}

func (r *Recorder) Close() error {
	return r.sink.Close()
}
