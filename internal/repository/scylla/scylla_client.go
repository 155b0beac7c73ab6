package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"chat-auth-service/internal/config"
	"chat-auth-service/internal/util"
)

// Statements holds the CQL used by the repositories. gocql prepares and
// caches each statement on first use.
type Statements struct {
	InsertAccount        string
	InsertPhoneToAccount string
	GetPhoneToAccount    string
	DeletePhoneToAccount string
	GetAccountByID       string
	SetPendingCode       string
	ConsumeCode          string
	ClearPendingCode     string
	CompleteProfile      string
	DeleteAccount        string

	InsertChat            string
	InsertChatMember      string
	GetChatByID           string
	ListChatIDsByMember   string
	UpdateChatLastMessage string
	DeleteChat            string
	DeleteChatMember      string
}

const accountSelectColumns = `id, phone_number, country_code, name, profile_picture, description,
	is_verified, verification_code, verification_code_expiry, is_profile_complete, created_at, updated_at`

func newStatements() *Statements {
	return &Statements{
		InsertAccount: `INSERT INTO accounts (
			bucket, id, phone_number, country_code, name, profile_picture, description,
			is_verified, verification_code, verification_code_expiry, is_profile_complete,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, '', '', '', false, ?, ?, false, ?, ?) IF NOT EXISTS`,

		InsertPhoneToAccount: `INSERT INTO phone_to_account (phone_number, account_id, created_at)
			VALUES (?, ?, ?) IF NOT EXISTS`,

		GetPhoneToAccount: `SELECT account_id FROM phone_to_account WHERE phone_number = ?`,

		DeletePhoneToAccount: `DELETE FROM phone_to_account WHERE phone_number = ? IF account_id = ?`,

		GetAccountByID: `SELECT ` + accountSelectColumns + ` FROM accounts WHERE bucket = ? AND id = ?`,

		SetPendingCode: `UPDATE accounts SET verification_code = ?, verification_code_expiry = ?, updated_at = ?
			WHERE bucket = ? AND id = ? IF EXISTS`,

		ConsumeCode: `UPDATE accounts
			SET verification_code = null, verification_code_expiry = null, is_verified = true, updated_at = ?
			WHERE bucket = ? AND id = ?
			IF verification_code = ? AND verification_code_expiry > ?`,

		ClearPendingCode: `UPDATE accounts SET verification_code = null, verification_code_expiry = null, updated_at = ?
			WHERE bucket = ? AND id = ? IF verification_code = ?`,

		CompleteProfile: `UPDATE accounts
			SET name = ?, profile_picture = ?, description = ?, is_profile_complete = true, updated_at = ?
			WHERE bucket = ? AND id = ? IF EXISTS`,

		DeleteAccount: `DELETE FROM accounts WHERE bucket = ? AND id = ? IF EXISTS`,

		InsertChat: `INSERT INTO chats (
			bucket, id, members, last_message, last_message_sender, last_message_type, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,

		InsertChatMember: `INSERT INTO chats_by_member (member_id, chat_id) VALUES (?, ?)`,

		GetChatByID: `SELECT id, members, last_message, last_message_sender, last_message_type, created_at, updated_at
			FROM chats WHERE bucket = ? AND id = ?`,

		ListChatIDsByMember: `SELECT chat_id FROM chats_by_member WHERE member_id = ?`,

		UpdateChatLastMessage: `UPDATE chats SET last_message = ?, last_message_sender = ?, last_message_type = ?, updated_at = ?
			WHERE bucket = ? AND id = ? IF EXISTS`,

		DeleteChat: `DELETE FROM chats WHERE bucket = ? AND id = ?`,

		DeleteChatMember: `DELETE FROM chats_by_member WHERE member_id = ? AND chat_id = ?`,
	}
}

// schema is applied in order by EnsureSchema; every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		bucket int,
		id text,
		phone_number text,
		country_code text,
		name text,
		profile_picture text,
		description text,
		is_verified boolean,
		verification_code text,
		verification_code_expiry timestamp,
		is_profile_complete boolean,
		created_at timestamp,
		updated_at timestamp,
		PRIMARY KEY ((bucket), id)
	)`,
	`CREATE TABLE IF NOT EXISTS phone_to_account (
		phone_number text PRIMARY KEY,
		account_id text,
		created_at timestamp
	)`,
	`CREATE TABLE IF NOT EXISTS chats (
		bucket int,
		id text,
		members list<text>,
		last_message text,
		last_message_sender text,
		last_message_type text,
		created_at timestamp,
		updated_at timestamp,
		PRIMARY KEY ((bucket), id)
	)`,
	`CREATE TABLE IF NOT EXISTS chats_by_member (
		member_id text,
		chat_id text,
		PRIMARY KEY ((member_id), chat_id)
	)`,
}

type ScyllaClient struct {
	Session    *gocql.Session
	config     config.ScyllaConfig
	Statements *Statements
}

func NewScyllaClient(cfg config.ScyllaConfig, logger *zap.Logger) (*ScyllaClient, error) {
	cluster := gocql.NewCluster(cfg.Nodes...)
	cluster.Keyspace = cfg.Keyspace
	cluster.Consistency = gocql.LocalQuorum
	cluster.SerialConsistency = gocql.LocalSerial
	cluster.Timeout = 10 * time.Second
	cluster.ConnectTimeout = 10 * time.Second
	cluster.NumConns = 4
	cluster.SocketKeepalive = 30 * time.Second
	cluster.MaxPreparedStmts = 1000
	cluster.MaxRoutingKeyInfo = 1000
	cluster.PageSize = 1000
	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		Min:        100 * time.Millisecond,
		Max:        2 * time.Second,
		NumRetries: 3,
	}

	if cfg.CAPath != "" {
		cluster.SslOpts = &gocql.SslOptions{
			CaPath:                 cfg.CAPath,
			EnableHostVerification: true,
		}
	}

	if cfg.Username != "" && cfg.Password != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: cfg.Username,
			Password: cfg.Password,
		}
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create scylla session: %w", err)
	}

	client := &ScyllaClient{
		Session:    session,
		config:     cfg,
		Statements: newStatements(),
	}

	logger.Info("ScyllaDB client initialized",
		zap.Strings("nodes", cfg.Nodes),
		zap.String("keyspace", cfg.Keyspace))

	return client, nil
}

// EnsureSchema creates the tables the repositories use if they are missing.
func (s *ScyllaClient) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if err := s.Session.Query(stmt).WithContext(ctx).Exec(); err != nil {
			return fmt.Errorf("failed to apply scylla schema: %w", err)
		}
	}
	util.Info("ScyllaDB schema ensured", zap.String("keyspace", s.config.Keyspace))
	return nil
}

func (s *ScyllaClient) Close() {
	if s.Session != nil {
		s.Session.Close()
		util.Info("ScyllaDB client closed")
	}
}

func (s *ScyllaClient) Query(ctx context.Context, stmt string, values ...interface{}) *gocql.Query {
	return s.Session.Query(stmt, values...).WithContext(ctx)
}

func (s *ScyllaClient) Batch(ctx context.Context, typ gocql.BatchType) *gocql.Batch {
	return s.Session.NewBatch(typ).WithContext(ctx)
}

func (s *ScyllaClient) ExecuteBatch(batch *gocql.Batch) error {
	return s.Session.ExecuteBatch(batch)
}

func (s *ScyllaClient) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var clusterName string
	err := s.Session.Query(`SELECT cluster_name FROM system.local`).WithContext(ctx).Scan(&clusterName)
	if err != nil {
		return fmt.Errorf("scylla health check failed: %w", err)
	}

	util.Debug("ScyllaDB health check passed", zap.String("cluster_name", clusterName))
	return nil
}
