package delivery

import (
	"context"
	"errors"
	"time"

	"chat-auth-service/internal/client"
	"chat-auth-service/internal/util"

	"github.com/segmentio/kafka-go"
)

// AckFunc marks a received job as handled.
type AckFunc func(ctx context.Context) error

func noAck(context.Context) error { return nil }

// Source yields queued jobs to a Worker. Next blocks until a job is
// available or ctx is done.
type Source interface {
	Next(ctx context.Context) (Job, AckFunc, error)
}

type kafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaSource reads from a consumer group and commits after the worker
// has finished with a job, successful or not.
type KafkaSource struct {
	reader kafkaReader
}

func NewKafkaSource(reader kafkaReader) *KafkaSource {
	return &KafkaSource{reader: reader}
}

func (s *KafkaSource) Next(ctx context.Context) (Job, AckFunc, error) {
	for {
		msg, err := s.reader.FetchMessage(ctx)
		if err != nil {
			return Job{}, nil, err
		}

		ack := func(ctx context.Context) error {
			return s.reader.CommitMessages(ctx, msg)
		}

		job, err := UnmarshalJob(msg.Value)
		if err != nil {
			util.Warn("Skipping undecodable delivery message",
				util.Int("partition", msg.Partition),
				util.ErrorField(err))
			if err := ack(ctx); err != nil {
				return Job{}, nil, err
			}
			continue
		}
		return job, ack, nil
	}
}

type listPopper interface {
	BRPop(ctx context.Context, timeout time.Duration, key string) (string, error)
}

// RedisSource pops jobs off a list. Popping removes the job, so a crash
// between pop and send loses it; the user can request a new code.
type RedisSource struct {
	client      listPopper
	key         string
	pollTimeout time.Duration
}

func NewRedisSource(client listPopper, key string, pollTimeout time.Duration) *RedisSource {
	if pollTimeout <= 0 {
		pollTimeout = 5 * time.Second
	}
	return &RedisSource{client: client, key: key, pollTimeout: pollTimeout}
}

func (s *RedisSource) Next(ctx context.Context) (Job, AckFunc, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Job{}, nil, err
		}

		raw, err := s.client.BRPop(ctx, s.pollTimeout, s.key)
		if err != nil {
			if errors.Is(err, client.ErrEmpty) {
				continue
			}
			return Job{}, nil, err
		}

		job, err := UnmarshalJob([]byte(raw))
		if err != nil {
			util.Warn("Skipping undecodable delivery job", util.ErrorField(err))
			continue
		}
		return job, noAck, nil
	}
}
