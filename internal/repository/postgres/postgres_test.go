package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"chat-auth-service/internal/models"
	"chat-auth-service/internal/repository"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var accountCols = []string{
	"id", "phone_number", "country_code", "name", "profile_picture", "description",
	"is_verified", "verification_code", "verification_code_expiry", "is_profile_complete",
	"created_at", "updated_at",
}

var chatCols = []string{"id", "last_message", "last_message_sender", "last_message_type", "created_at", "updated_at", "members"}

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return New(db), mock
}

func accountRow(id string, code any, expiry any, verified bool) []driver.Value {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return []driver.Value{id, "+15551234567", "US", "", "", "", verified, code, expiry, false, now, now}
}

func TestUpsertPendingCode(t *testing.T) {
	store, mock := newMockStore(t)
	exp := time.Now().Add(10 * time.Minute).UTC()

	row := append(accountRow("acc-1", "hash", exp, false), true)
	mock.ExpectQuery(`INSERT INTO accounts .* ON CONFLICT \(phone_number\) DO UPDATE .* RETURNING .*\(xmax = 0\) AS created`).
		WithArgs(sqlmock.AnyArg(), "+15551234567", "US", "hash", exp, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(append(accountCols, "created")).AddRow(row...))

	acc, created, err := store.Accounts().UpsertPendingCode(context.Background(), "+15551234567", "US", "hash", exp)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "acc-1", acc.ID)
	assert.Equal(t, "hash", acc.VerificationCode)
	require.NotNil(t, acc.VerificationCodeExpiry)
	assert.True(t, exp.Equal(*acc.VerificationCodeExpiry))
}

func TestGetByPhone_NotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT .* FROM accounts WHERE phone_number = \$1`).
		WithArgs("+15550000000").
		WillReturnError(sql.ErrNoRows)

	_, err := store.Accounts().GetByPhone(context.Background(), "+15550000000")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestGetByID_DBError(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT .* FROM accounts WHERE id = \$1`).
		WithArgs("acc-1").
		WillReturnError(errors.New("db down"))

	_, err := store.Accounts().GetByID(context.Background(), "acc-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db error: db down")
}

func TestGetByID_NullCode(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT .* FROM accounts WHERE id = \$1`).
		WithArgs("acc-1").
		WillReturnRows(sqlmock.NewRows(accountCols).AddRow(accountRow("acc-1", nil, nil, true)...))

	acc, err := store.Accounts().GetByID(context.Background(), "acc-1")
	require.NoError(t, err)
	assert.Empty(t, acc.VerificationCode)
	assert.Nil(t, acc.VerificationCodeExpiry)
	assert.True(t, acc.IsVerified)
}

func TestGetByIDs_PreservesRequestOrder(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT .* FROM accounts WHERE id IN \(\$1, \$2, \$3\)`).
		WithArgs("b", "missing", "a").
		WillReturnRows(sqlmock.NewRows(accountCols).
			AddRow(accountRow("a", nil, nil, true)...).
			AddRow(accountRow("b", nil, nil, true)...))

	got, err := store.Accounts().GetByIDs(context.Background(), []string{"b", "missing", "a"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ID)
	assert.Equal(t, "a", got[1].ID)
}

func TestGetByIDs_Empty(t *testing.T) {
	store, _ := newMockStore(t)

	got, err := store.Accounts().GetByIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestConsumeCode_Applied(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery(`UPDATE accounts\s+SET verification_code = NULL, verification_code_expiry = NULL, is_verified = TRUE.*WHERE id = \$1 AND verification_code = \$2 AND verification_code_expiry > \$3`).
		WithArgs("acc-1", "hash", now.UTC(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(accountCols).AddRow(accountRow("acc-1", nil, nil, true)...))

	acc, err := store.Accounts().ConsumeCode(context.Background(), "acc-1", "hash", now)
	require.NoError(t, err)
	assert.True(t, acc.IsVerified)
}

func TestConsumeCode_ConditionFailed(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery(`UPDATE accounts`).
		WithArgs("acc-1", "hash", now.UTC(), sqlmock.AnyArg()).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`SELECT .* FROM accounts WHERE id = \$1`).
		WithArgs("acc-1").
		WillReturnRows(sqlmock.NewRows(accountCols).AddRow(accountRow("acc-1", nil, nil, true)...))

	_, err := store.Accounts().ConsumeCode(context.Background(), "acc-1", "hash", now)
	assert.ErrorIs(t, err, repository.ErrConditionFailed)
}

func TestConsumeCode_MissingAccount(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery(`UPDATE accounts`).WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`SELECT .* FROM accounts WHERE id = \$1`).
		WithArgs("acc-1").
		WillReturnError(sql.ErrNoRows)

	_, err := store.Accounts().ConsumeCode(context.Background(), "acc-1", "hash", now)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestClearPendingCode(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE accounts\s+SET verification_code = NULL.*WHERE id = \$1 AND verification_code = \$2`).
		WithArgs("acc-1", "hash", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.NoError(t, store.Accounts().ClearPendingCode(context.Background(), "acc-1", "hash"))
}

func TestCompleteProfile(t *testing.T) {
	store, mock := newMockStore(t)

	row := accountRow("acc-1", nil, nil, true)
	row[3] = "Alice"
	row[9] = true
	mock.ExpectQuery(`UPDATE accounts\s+SET name = \$2, profile_picture = \$3, description = \$4, is_profile_complete = TRUE`).
		WithArgs("acc-1", "Alice", "", "", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(accountCols).AddRow(row...))

	acc, err := store.Accounts().CompleteProfile(context.Background(), "acc-1", models.Profile{Name: "Alice"})
	require.NoError(t, err)
	assert.Equal(t, "Alice", acc.Name)
	assert.True(t, acc.IsProfileComplete)
}

func TestUpdateProfile_OnlySuppliedFields(t *testing.T) {
	store, mock := newMockStore(t)
	desc := "Hello"

	mock.ExpectQuery(`UPDATE accounts\s+SET name = COALESCE\(\$2, name\)`).
		WithArgs("acc-1", nil, nil, "Hello", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(accountCols).AddRow(accountRow("acc-1", nil, nil, true)...))

	_, err := store.Accounts().UpdateProfile(context.Background(), "acc-1", models.ProfilePatch{Description: &desc})
	require.NoError(t, err)
}

func TestUpdateProfile_NotFound(t *testing.T) {
	store, mock := newMockStore(t)
	name := "Bob"

	mock.ExpectQuery(`UPDATE accounts`).WillReturnError(sql.ErrNoRows)

	_, err := store.Accounts().UpdateProfile(context.Background(), "acc-1", models.ProfilePatch{Name: &name})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestDeleteAccount_NotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`DELETE FROM accounts WHERE id = \$1`).
		WithArgs("acc-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, store.Accounts().Delete(context.Background(), "acc-1"), repository.ErrNotFound)
}

func TestCreateChat_Transaction(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO chats`).
		WithArgs(sqlmock.AnyArg(), "hi", nil, "text", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO chat_members`).
		WithArgs(sqlmock.AnyArg(), "a", 0).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO chat_members`).
		WithArgs(sqlmock.AnyArg(), "b", 1).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	chat := &models.Chat{Members: []string{"a", "b"}, LastMessage: "hi", LastMessageType: models.MessageTypeText}
	require.NoError(t, store.Chats().Create(context.Background(), chat))
	assert.NotEmpty(t, chat.ID)
	assert.Equal(t, chat.CreatedAt, chat.UpdatedAt)
}

func TestCreateChat_RollsBackOnMemberFailure(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO chats`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO chat_members`).WillReturnError(errors.New("fk violation"))
	mock.ExpectRollback()

	err := store.Chats().Create(context.Background(), &models.Chat{Members: []string{"ghost"}, LastMessageType: models.MessageTypeText})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fk violation")
}

func TestListByMember(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`string_agg.*WHERE EXISTS .*mm.account_id = \$1\)\s+ORDER BY c.updated_at DESC`).
		WithArgs("a").
		WillReturnRows(sqlmock.NewRows(chatCols).
			AddRow("c2", "latest", "b", "text", now, now.Add(time.Minute), "a,b").
			AddRow("c1", "", nil, "text", now, now, "a"))

	chats, err := store.Chats().ListByMember(context.Background(), "a")
	require.NoError(t, err)
	require.Len(t, chats, 2)
	assert.Equal(t, []string{"a", "b"}, chats[0].Members)
	assert.Equal(t, "b", chats[0].LastMessageSender)
	assert.Empty(t, chats[1].LastMessageSender)
}

func TestUpdateLastMessage_NotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE chats SET last_message = \$2`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := store.Chats().UpdateLastMessage(context.Background(), "c1", "hi", "a", "text", time.Now())
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestUpdateLastMessage_ReturnsFreshChat(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectExec(`UPDATE chats SET last_message = \$2`).
		WithArgs("c1", "hi", "a", "image", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`FROM chats c WHERE c.id = \$1`).
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows(chatCols).AddRow("c1", "hi", "a", "image", now, now, "a,b"))

	chat, err := store.Chats().UpdateLastMessage(context.Background(), "c1", "hi", "a", "image", now)
	require.NoError(t, err)
	assert.Equal(t, "image", chat.LastMessageType)
}

func TestHealthCheck(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectPing().WillReturnError(errors.New("refused"))

	err = New(db).HealthCheck(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refused")
}

func TestRunMigrations_UsesEmbeddedFS(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	orig := gooseUpContext
	defer func() { gooseUpContext = orig }()

	var gotDir string
	gooseUpContext = func(ctx context.Context, _ *sql.DB, dir string, _ ...goose.OptionsFunc) error {
		gotDir = dir
		return nil
	}

	require.NoError(t, RunMigrations(context.Background(), db))
	assert.Equal(t, ".", gotDir)
}
