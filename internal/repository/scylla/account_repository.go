package scylla

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"chat-auth-service/internal/bucketing"
	"chat-auth-service/internal/models"
	"chat-auth-service/internal/repository"
	"chat-auth-service/internal/util"
)

const upsertAttempts = 3

// AccountRepository stores accounts partitioned by bucket, with a
// phone_to_account table enforcing phone uniqueness through LWT inserts.
// Every write to the accounts table is a lightweight transaction so
// conditional updates serialize against each other.
type AccountRepository struct {
	client  *ScyllaClient
	buckets *bucketing.BucketingManager
}

func NewAccountRepository(client *ScyllaClient, buckets *bucketing.BucketingManager) *AccountRepository {
	return &AccountRepository{client: client, buckets: buckets}
}

func (r *AccountRepository) stmt() *Statements {
	return r.client.Statements
}

func (r *AccountRepository) UpsertPendingCode(ctx context.Context, phoneNumber, countryCode, codeHash string, expiresAt time.Time) (*models.Account, bool, error) {
	exp := expiresAt.UTC()

	for attempt := 0; attempt < upsertAttempts; attempt++ {
		id, err := r.lookupPhone(ctx, phoneNumber)
		switch {
		case err == nil:
			applied, err := r.setPendingCode(ctx, id, codeHash, exp)
			if err != nil {
				return nil, false, err
			}
			if applied {
				acc, err := r.GetByID(ctx, id)
				return acc, false, err
			}
			// The phone mapping won but the account row is not visible yet.

		case errors.Is(err, repository.ErrNotFound):
			acc, created, err := r.createAccount(ctx, phoneNumber, countryCode, codeHash, exp)
			if err != nil {
				return nil, false, err
			}
			if created {
				return acc, true, nil
			}
			// Another request claimed the phone first; update its account instead.

		default:
			return nil, false, err
		}

		select {
		case <-ctx.Done():
			return nil, false, ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 20 * time.Millisecond):
		}
	}

	return nil, false, fmt.Errorf("failed to set pending code after %d attempts", upsertAttempts)
}

func (r *AccountRepository) createAccount(ctx context.Context, phoneNumber, countryCode, codeHash string, exp time.Time) (*models.Account, bool, error) {
	now := time.Now().UTC()
	id := uuid.New().String()

	existing := map[string]interface{}{}
	applied, err := r.client.Query(ctx, r.stmt().InsertPhoneToAccount, phoneNumber, id, now).MapScanCAS(existing)
	if err != nil {
		return nil, false, fmt.Errorf("failed to claim phone number: %w", err)
	}
	if !applied {
		return nil, false, nil
	}

	bucket := r.buckets.GetBucket(id)
	if _, err := r.client.Query(ctx, r.stmt().InsertAccount,
		bucket, id, phoneNumber, countryCode, codeHash, exp, now, now,
	).MapScanCAS(map[string]interface{}{}); err != nil {
		// Release the phone so the next request can retry cleanly.
		if relErr := r.client.Query(ctx, r.stmt().DeletePhoneToAccount, phoneNumber, id).
			MapScanCAS(map[string]interface{}{}); relErr != nil {
			util.Error("Failed to release phone mapping", util.Phone("phone_number", phoneNumber), zap.Error(relErr))
		}
		return nil, false, fmt.Errorf("failed to create account: %w", err)
	}

	util.Info("Account created",
		util.String("account_id", id),
		util.Int("bucket", bucket),
		util.String("country_code", countryCode))

	return &models.Account{
		ID:                     id,
		PhoneNumber:            phoneNumber,
		CountryCode:            countryCode,
		VerificationCode:       codeHash,
		VerificationCodeExpiry: &exp,
		CreatedAt:              now,
		UpdatedAt:              now,
	}, true, nil
}

func (r *AccountRepository) setPendingCode(ctx context.Context, id, codeHash string, exp time.Time) (bool, error) {
	applied, err := r.client.Query(ctx, r.stmt().SetPendingCode,
		codeHash, exp, time.Now().UTC(), r.buckets.GetBucket(id), id,
	).MapScanCAS(map[string]interface{}{})
	if err != nil {
		return false, fmt.Errorf("failed to set pending code: %w", err)
	}
	return applied, nil
}

func (r *AccountRepository) lookupPhone(ctx context.Context, phoneNumber string) (string, error) {
	var id string
	err := r.client.Query(ctx, r.stmt().GetPhoneToAccount, phoneNumber).Scan(&id)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return "", repository.ErrNotFound
		}
		return "", fmt.Errorf("failed to look up phone number: %w", err)
	}
	return id, nil
}

func (r *AccountRepository) GetByPhone(ctx context.Context, phoneNumber string) (*models.Account, error) {
	id, err := r.lookupPhone(ctx, phoneNumber)
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

func (r *AccountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	var (
		acc    models.Account
		expiry time.Time
	)
	err := r.client.Query(ctx, r.stmt().GetAccountByID, r.buckets.GetBucket(id), id).Scan(
		&acc.ID, &acc.PhoneNumber, &acc.CountryCode, &acc.Name, &acc.ProfilePicture, &acc.Description,
		&acc.IsVerified, &acc.VerificationCode, &expiry, &acc.IsProfileComplete, &acc.CreatedAt, &acc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	if acc.VerificationCode != "" && !expiry.IsZero() {
		exp := expiry.UTC()
		acc.VerificationCodeExpiry = &exp
	} else {
		acc.VerificationCode = ""
	}
	acc.CreatedAt = acc.CreatedAt.UTC()
	acc.UpdatedAt = acc.UpdatedAt.UTC()
	return &acc, nil
}

func (r *AccountRepository) GetByIDs(ctx context.Context, ids []string) ([]*models.Account, error) {
	out := make([]*models.Account, 0, len(ids))
	for _, id := range ids {
		acc, err := r.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, acc)
	}
	return out, nil
}

func (r *AccountRepository) ConsumeCode(ctx context.Context, id, codeHash string, now time.Time) (*models.Account, error) {
	applied, err := r.client.Query(ctx, r.stmt().ConsumeCode,
		time.Now().UTC(), r.buckets.GetBucket(id), id, codeHash, now.UTC(),
	).MapScanCAS(map[string]interface{}{})
	if err != nil {
		return nil, fmt.Errorf("failed to consume code: %w", err)
	}
	if !applied {
		if _, err := r.GetByID(ctx, id); err != nil {
			return nil, err
		}
		return nil, repository.ErrConditionFailed
	}
	return r.GetByID(ctx, id)
}

func (r *AccountRepository) ClearPendingCode(ctx context.Context, id, codeHash string) error {
	_, err := r.client.Query(ctx, r.stmt().ClearPendingCode,
		time.Now().UTC(), r.buckets.GetBucket(id), id, codeHash,
	).MapScanCAS(map[string]interface{}{})
	if err != nil {
		return fmt.Errorf("failed to clear pending code: %w", err)
	}
	return nil
}

func (r *AccountRepository) CompleteProfile(ctx context.Context, id string, profile models.Profile) (*models.Account, error) {
	applied, err := r.client.Query(ctx, r.stmt().CompleteProfile,
		profile.Name, profile.ProfilePicture, profile.Description, time.Now().UTC(), r.buckets.GetBucket(id), id,
	).MapScanCAS(map[string]interface{}{})
	if err != nil {
		return nil, fmt.Errorf("failed to complete profile: %w", err)
	}
	if !applied {
		return nil, repository.ErrNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *AccountRepository) UpdateProfile(ctx context.Context, id string, patch models.ProfilePatch) (*models.Account, error) {
	if patch.IsEmpty() {
		return r.GetByID(ctx, id)
	}

	stmt, args := profilePatchStatement(patch)
	args = append(args, time.Now().UTC(), r.buckets.GetBucket(id), id)

	applied, err := r.client.Query(ctx, stmt, args...).MapScanCAS(map[string]interface{}{})
	if err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	if !applied {
		return nil, repository.ErrNotFound
	}
	return r.GetByID(ctx, id)
}

// profilePatchStatement builds an UPDATE touching only the fields present in patch.
func profilePatchStatement(patch models.ProfilePatch) (string, []interface{}) {
	var (
		sets []string
		args []interface{}
	)
	if patch.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *patch.Name)
	}
	if patch.ProfilePicture != nil {
		sets = append(sets, "profile_picture = ?")
		args = append(args, *patch.ProfilePicture)
	}
	if patch.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *patch.Description)
	}
	sets = append(sets, "updated_at = ?")

	return `UPDATE accounts SET ` + strings.Join(sets, ", ") + ` WHERE bucket = ? AND id = ? IF EXISTS`, args
}

func (r *AccountRepository) Delete(ctx context.Context, id string) error {
	acc, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}

	applied, err := r.client.Query(ctx, r.stmt().DeleteAccount, r.buckets.GetBucket(id), id).
		MapScanCAS(map[string]interface{}{})
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	if !applied {
		return repository.ErrNotFound
	}

	if _, err := r.client.Query(ctx, r.stmt().DeletePhoneToAccount, acc.PhoneNumber, id).
		MapScanCAS(map[string]interface{}{}); err != nil {
		return fmt.Errorf("failed to release phone number: %w", err)
	}
	return nil
}

func (r *AccountRepository) HealthCheck(ctx context.Context) error {
	return r.client.HealthCheck(ctx)
}
