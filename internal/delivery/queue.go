// Package delivery moves issued codes from the auth flow to the SMS
// transport, either inline or through a Kafka topic or Redis list drained
// by a Worker.
package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"chat-auth-service/internal/notification"
)

// Job is one code to deliver. Code is the plaintext the user will type,
// so queues carrying jobs must not be shared with untrusted consumers.
type Job struct {
	AccountID   string    `json:"accountId"`
	PhoneNumber string    `json:"phoneNumber"`
	Code        string    `json:"code"`
	IssuedAt    time.Time `json:"issuedAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// Expired reports whether the code can no longer be verified at now.
func (j Job) Expired(now time.Time) bool {
	return !j.ExpiresAt.IsZero() && !j.ExpiresAt.After(now)
}

func (j Job) Marshal() ([]byte, error) {
	return json.Marshal(j)
}

func UnmarshalJob(data []byte) (Job, error) {
	var j Job
	if err := json.Unmarshal(data, &j); err != nil {
		return Job{}, fmt.Errorf("decode delivery job: %w", err)
	}
	if j.PhoneNumber == "" || j.Code == "" {
		return Job{}, fmt.Errorf("decode delivery job: missing phone number or code")
	}
	return j, nil
}

// Queue accepts jobs for delivery. A nil error means the job was either
// delivered (inline) or durably handed off (queued modes).
type Queue interface {
	Enqueue(ctx context.Context, job Job) error
}

// InlineQueue sends on the caller's goroutine with a single attempt.
type InlineQueue struct {
	sender  notification.Sender
	timeout time.Duration
}

func NewInlineQueue(sender notification.Sender, timeout time.Duration) *InlineQueue {
	return &InlineQueue{sender: sender, timeout: timeout}
}

func (q *InlineQueue) Enqueue(ctx context.Context, job Job) error {
	if q.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.timeout)
		defer cancel()
	}
	return q.sender.Send(ctx, job.PhoneNumber, job.Code)
}

type kafkaWriter interface {
	ProduceMessage(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
}

// KafkaQueue produces jobs keyed by phone number so codes for one phone
// stay ordered within a partition.
type KafkaQueue struct {
	producer kafkaWriter
	topic    string
}

func NewKafkaQueue(producer kafkaWriter, topic string) *KafkaQueue {
	return &KafkaQueue{producer: producer, topic: topic}
}

func (q *KafkaQueue) Enqueue(ctx context.Context, job Job) error {
	payload, err := job.Marshal()
	if err != nil {
		return err
	}
	return q.producer.ProduceMessage(ctx, q.topic, []byte(job.PhoneNumber), payload, map[string]string{
		"content-type": "application/json",
	})
}

type listPusher interface {
	LPush(ctx context.Context, key string, values ...interface{}) error
}

// RedisQueue pushes jobs onto the head of a list; RedisSource pops the tail.
type RedisQueue struct {
	client listPusher
	key    string
}

func NewRedisQueue(client listPusher, key string) *RedisQueue {
	return &RedisQueue{client: client, key: key}
}

func (q *RedisQueue) Enqueue(ctx context.Context, job Job) error {
	payload, err := job.Marshal()
	if err != nil {
		return err
	}
	if err := q.client.LPush(ctx, q.key, payload); err != nil {
		return fmt.Errorf("redis enqueue: %w", err)
	}
	return nil
}
