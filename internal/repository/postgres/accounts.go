package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"chat-auth-service/internal/models"
	"chat-auth-service/internal/repository"

	"github.com/google/uuid"
)

const accountColumns = `id, phone_number, country_code, name, profile_picture, description,
		is_verified, verification_code, verification_code_expiry, is_profile_complete,
		created_at, updated_at`

type AccountRepository struct {
	db DBTX
}

func NewAccountRepository(db DBTX) *AccountRepository {
	return &AccountRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner, extra ...any) (*models.Account, error) {
	var (
		acc    models.Account
		code   sql.NullString
		expiry sql.NullTime
	)
	dest := []any{
		&acc.ID, &acc.PhoneNumber, &acc.CountryCode, &acc.Name, &acc.ProfilePicture, &acc.Description,
		&acc.IsVerified, &code, &expiry, &acc.IsProfileComplete,
		&acc.CreatedAt, &acc.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	if code.Valid {
		acc.VerificationCode = code.String
	}
	if expiry.Valid {
		t := expiry.Time.UTC()
		acc.VerificationCodeExpiry = &t
	}
	return &acc, nil
}

func (r *AccountRepository) UpsertPendingCode(ctx context.Context, phoneNumber, countryCode, codeHash string, expiresAt time.Time) (*models.Account, bool, error) {
	query := `INSERT INTO accounts (id, phone_number, country_code, verification_code, verification_code_expiry, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (phone_number) DO UPDATE
		SET verification_code = EXCLUDED.verification_code,
			verification_code_expiry = EXCLUDED.verification_code_expiry,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + accountColumns + `, (xmax = 0) AS created`

	var created bool
	acc, err := scanAccount(r.db.QueryRowContext(ctx, query,
		uuid.New().String(), phoneNumber, countryCode, codeHash, expiresAt.UTC(), time.Now().UTC(),
	), &created)
	if err != nil {
		return nil, false, fmt.Errorf("db error: %w", err)
	}
	return acc, created, nil
}

func (r *AccountRepository) GetByPhone(ctx context.Context, phoneNumber string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE phone_number = $1`

	acc, err := scanAccount(r.db.QueryRowContext(ctx, query, phoneNumber))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return acc, nil
}

func (r *AccountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`

	acc, err := scanAccount(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return acc, nil
}

func (r *AccountRepository) GetByIDs(ctx context.Context, ids []string) ([]*models.Account, error) {
	if len(ids) == 0 {
		return []*models.Account{}, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id IN (` + strings.Join(placeholders, ", ") + `)`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]*models.Account, len(ids))
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		byID[acc.ID] = acc
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	out := make([]*models.Account, 0, len(byID))
	for _, id := range ids {
		if acc, ok := byID[id]; ok {
			out = append(out, acc)
			delete(byID, id)
		}
	}
	return out, nil
}

func (r *AccountRepository) ConsumeCode(ctx context.Context, id, codeHash string, now time.Time) (*models.Account, error) {
	query := `UPDATE accounts
		SET verification_code = NULL, verification_code_expiry = NULL, is_verified = TRUE, updated_at = $4
		WHERE id = $1 AND verification_code = $2 AND verification_code_expiry > $3
		RETURNING ` + accountColumns

	acc, err := scanAccount(r.db.QueryRowContext(ctx, query, id, codeHash, now.UTC(), time.Now().UTC()))
	if err == nil {
		return acc, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("db error: %w", err)
	}

	if _, err := r.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return nil, repository.ErrConditionFailed
}

func (r *AccountRepository) ClearPendingCode(ctx context.Context, id, codeHash string) error {
	query := `UPDATE accounts
		SET verification_code = NULL, verification_code_expiry = NULL, updated_at = $3
		WHERE id = $1 AND verification_code = $2`

	if _, err := r.db.ExecContext(ctx, query, id, codeHash, time.Now().UTC()); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *AccountRepository) CompleteProfile(ctx context.Context, id string, profile models.Profile) (*models.Account, error) {
	query := `UPDATE accounts
		SET name = $2, profile_picture = $3, description = $4, is_profile_complete = TRUE, updated_at = $5
		WHERE id = $1
		RETURNING ` + accountColumns

	acc, err := scanAccount(r.db.QueryRowContext(ctx, query,
		id, profile.Name, profile.ProfilePicture, profile.Description, time.Now().UTC(),
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return acc, nil
}

func (r *AccountRepository) UpdateProfile(ctx context.Context, id string, patch models.ProfilePatch) (*models.Account, error) {
	if patch.IsEmpty() {
		return r.GetByID(ctx, id)
	}

	query := `UPDATE accounts
		SET name = COALESCE($2, name),
			profile_picture = COALESCE($3, profile_picture),
			description = COALESCE($4, description),
			updated_at = $5
		WHERE id = $1
		RETURNING ` + accountColumns

	acc, err := scanAccount(r.db.QueryRowContext(ctx, query,
		id, nullable(patch.Name), nullable(patch.ProfilePicture), nullable(patch.Description), time.Now().UTC(),
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return acc, nil
}

func (r *AccountRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *AccountRepository) HealthCheck(ctx context.Context) error {
	var one int
	if err := r.db.QueryRowContext(ctx, `SELECT 1`).Scan(&one); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
