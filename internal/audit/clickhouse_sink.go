package audit

import (
	"context"
	"fmt"

	"chat-auth-service/internal/util"
)

const createEventsTable = `CREATE TABLE IF NOT EXISTS auth_events (
	event_type   LowCardinality(String),
	account_id   String,
	phone_masked String,
	reason       String,
	occurred_at  DateTime64(3, 'UTC')
) ENGINE = MergeTree
ORDER BY (event_type, occurred_at)
TTL toDateTime(occurred_at) + INTERVAL 180 DAY`

const insertEvent = `INSERT INTO auth_events (event_type, account_id, phone_masked, reason, occurred_at)`

type clickhouseConn interface {
	Exec(ctx context.Context, query string, args ...interface{}) error
	BatchInsert(ctx context.Context, query string, data [][]interface{}) error
	Close() error
}

// ClickHouseSink appends events to the auth_events MergeTree table.
// Phone numbers are stored masked.
type ClickHouseSink struct {
	conn clickhouseConn
}

func NewClickHouseSink(ctx context.Context, conn clickhouseConn) (*ClickHouseSink, error) {
	if err := conn.Exec(ctx, createEventsTable); err != nil {
		return nil, fmt.Errorf("failed to create auth_events table: %w", err)
	}
	return &ClickHouseSink{conn: conn}, nil
}

func (s *ClickHouseSink) Record(ctx context.Context, event Event) error {
	return s.conn.BatchInsert(ctx, insertEvent, [][]interface{}{{
		string(event.Type),
		event.AccountID,
		util.MaskPhone(event.PhoneNumber),
		event.Reason,
		event.OccurredAt,
	}})
}

func (s *ClickHouseSink) Close() error {
	return s.conn.Close()
}
