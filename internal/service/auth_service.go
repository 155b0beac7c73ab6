package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"chat-auth-service/internal/audit"
	"chat-auth-service/internal/delivery"
	"chat-auth-service/internal/models"
	"chat-auth-service/internal/phone"
	"chat-auth-service/internal/repository"
	"chat-auth-service/internal/token"
	"chat-auth-service/internal/util"

	"go.uber.org/zap"
)

const (
	// CodeTTL is how long an issued verification code stays usable.
	CodeTTL = 10 * time.Minute

	codeExpiresIn   = "10 minutes"
	rollbackTimeout = 5 * time.Second
)

// CodeHasher is the one-way hash primitive for verification codes.
type CodeHasher interface {
	Hash(code string) (string, error)
	Compare(code, encoded string) (bool, error)
}

// TokenService issues and verifies session tokens.
type TokenService interface {
	Issue(accountID, phoneNumber string) (string, error)
	Verify(tokenString string) (*token.Claims, error)
}

type SendCodeResult struct {
	PhoneNumber string `json:"phoneNumber"`
	ExpiresIn   string `json:"expiresIn"`
}

type VerifyCodeResult struct {
	Token string                `json:"token"`
	User  models.AccountSummary `json:"user"`
}

// AuthService runs the phone verification lifecycle: code issuance,
// verification, token issuance and the profile gates.
type AuthService struct {
	accounts repository.AccountStore
	hasher   CodeHasher
	tokens   TokenService
	queue    delivery.Queue
	audit    *audit.Recorder
	logger   *zap.Logger

	now          func() time.Time
	generateCode func() (string, error)
}

func NewAuthService(
	accounts repository.AccountStore,
	hasher CodeHasher,
	tokens TokenService,
	queue delivery.Queue,
	recorder *audit.Recorder,
	logger *zap.Logger,
) *AuthService {
	return &AuthService{
		accounts:     accounts,
		hasher:       hasher,
		tokens:       tokens,
		queue:        queue,
		audit:        recorder,
		logger:       logger,
		now:          time.Now,
		generateCode: GenerateCode,
	}
}

// WithClock replaces the time source used for expiry decisions.
func (s *AuthService) WithClock(now func() time.Time) *AuthService {
	s.now = now
	return s
}

// WithCodeGenerator replaces the random code source.
func (s *AuthService) WithCodeGenerator(fn func() (string, error)) *AuthService {
	s.generateCode = fn
	return s
}

// GenerateCode returns a uniformly random six digit code.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

// IssueCode stores a fresh hashed code for the phone, creating the account
// when needed, then hands the plaintext to the delivery queue. If the
// hand-off fails the pending code is withdrawn.
func (s *AuthService) IssueCode(ctx context.Context, req SendCodeRequest) (*SendCodeResult, error) {
	if verr := validate(req); verr != nil {
		return nil, verr
	}

	code, err := s.generateCode()
	if err != nil {
		return nil, internalError(err)
	}
	hash, err := s.hasher.Hash(code)
	if err != nil {
		return nil, internalError(fmt.Errorf("failed to hash code: %w", err))
	}

	issuedAt := s.now().UTC()
	expiresAt := issuedAt.Add(CodeTTL)

	account, created, err := s.accounts.UpsertPendingCode(ctx, req.PhoneNumber, phone.Region(req.PhoneNumber), hash, expiresAt)
	if err != nil {
		return nil, internalError(fmt.Errorf("failed to store pending code: %w", err))
	}

	job := delivery.Job{
		AccountID:   account.ID,
		PhoneNumber: account.PhoneNumber,
		Code:        code,
		IssuedAt:    issuedAt,
		ExpiresAt:   expiresAt,
	}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		s.withdrawCode(ctx, account.ID, hash)
		s.audit.Record(ctx, audit.Event{
			Type:        audit.CodeDeliveryFailed,
			AccountID:   account.ID,
			PhoneNumber: account.PhoneNumber,
			Reason:      "enqueue_failed",
		})
		s.logger.Error("Failed to dispatch verification code",
			util.String("account_id", account.ID),
			util.Phone("phone_number", account.PhoneNumber),
			util.ErrorField(err))
		return nil, wrapError(ErrDeliveryFailed, "Failed to send verification code", err)
	}

	s.audit.Record(ctx, audit.Event{
		Type:        audit.CodeIssued,
		AccountID:   account.ID,
		PhoneNumber: account.PhoneNumber,
	})
	s.logger.Info("Verification code issued",
		util.String("account_id", account.ID),
		util.Phone("phone_number", account.PhoneNumber),
		util.Bool("new_account", created))

	return &SendCodeResult{PhoneNumber: account.PhoneNumber, ExpiresIn: codeExpiresIn}, nil
}

// withdrawCode clears the code just written unless a newer one replaced it.
// It outlives request cancellation so a client hang-up cannot strand the code.
func (s *AuthService) withdrawCode(ctx context.Context, accountID, hash string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()

	if err := s.accounts.ClearPendingCode(ctx, accountID, hash); err != nil {
		s.logger.Warn("Failed to withdraw undelivered code",
			util.String("account_id", accountID),
			util.ErrorField(err))
	}
}

// VerifyCode checks the submitted code and, on success, consumes it and
// returns a session token. A code verifies at most once.
func (s *AuthService) VerifyCode(ctx context.Context, req VerifyCodeRequest) (*VerifyCodeResult, error) {
	if verr := validate(req); verr != nil {
		return nil, verr
	}

	account, err := s.accounts.GetByPhone(ctx, req.PhoneNumber)
	if err != nil {
		return nil, storeError(err, "User not found")
	}

	now := s.now()
	if !account.HasPendingCode(now) {
		s.reject(ctx, account, "expired")
		return nil, newError(ErrCodeExpired, "Verification code has expired")
	}

	ok, err := s.hasher.Compare(req.Code, account.VerificationCode)
	if err != nil {
		return nil, internalError(fmt.Errorf("failed to compare code: %w", err))
	}
	if !ok {
		s.reject(ctx, account, "mismatch")
		return nil, newError(ErrInvalidCode, "Invalid verification code")
	}

	verified, err := s.accounts.ConsumeCode(ctx, account.ID, account.VerificationCode, now)
	if err != nil {
		if errors.Is(err, repository.ErrConditionFailed) {
			s.reject(ctx, account, "already_consumed")
			return nil, newError(ErrCodeExpired, "Verification code has expired")
		}
		return nil, storeError(err, "User not found")
	}

	tok, err := s.tokens.Issue(verified.ID, verified.PhoneNumber)
	if err != nil {
		return nil, internalError(fmt.Errorf("failed to issue token: %w", err))
	}

	s.audit.Record(ctx, audit.Event{
		Type:        audit.CodeVerified,
		AccountID:   verified.ID,
		PhoneNumber: verified.PhoneNumber,
	})
	s.logger.Info("Phone number verified", util.String("account_id", verified.ID))

	return &VerifyCodeResult{Token: tok, User: verified.Summary()}, nil
}

func (s *AuthService) reject(ctx context.Context, account *models.Account, reason string) {
	s.audit.Record(ctx, audit.Event{
		Type:        audit.CodeRejected,
		AccountID:   account.ID,
		PhoneNumber: account.PhoneNumber,
		Reason:      reason,
	})
	s.logger.Debug("Verification code rejected",
		util.String("account_id", account.ID),
		util.String("reason", reason))
}

// CompleteProfile overwrites every profile field and marks the profile
// complete. Omitted optional fields are cleared.
func (s *AuthService) CompleteProfile(ctx context.Context, accountID string, req CompleteProfileRequest) (*models.AccountSummary, error) {
	req.Normalize()
	if verr := validate(req); verr != nil {
		return nil, verr
	}

	account, err := s.accounts.CompleteProfile(ctx, accountID, req.Profile())
	if err != nil {
		return nil, storeError(err, "User not found")
	}

	s.audit.Record(ctx, audit.Event{
		Type:        audit.ProfileCompleted,
		AccountID:   account.ID,
		PhoneNumber: account.PhoneNumber,
	})

	summary := account.Summary()
	return &summary, nil
}

// UpdateProfile changes only the fields present in req.
func (s *AuthService) UpdateProfile(ctx context.Context, accountID string, req UpdateProfileRequest) (*models.AccountSummary, error) {
	req.Normalize()
	if verr := validate(req); verr != nil {
		return nil, verr
	}

	account, err := s.accounts.UpdateProfile(ctx, accountID, req.Patch())
	if err != nil {
		return nil, storeError(err, "User not found")
	}

	summary := account.Summary()
	return &summary, nil
}

func (s *AuthService) GetCurrentAccount(ctx context.Context, accountID string) (*models.AccountSummary, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, storeError(err, "User not found")
	}
	summary := account.Summary()
	return &summary, nil
}

// Authenticate resolves a bearer token to a verified account. The account
// is re-read on every call so deletions and flag changes apply immediately.
func (s *AuthService) Authenticate(ctx context.Context, tokenString string) (*models.Account, error) {
	if tokenString == "" {
		return nil, newError(ErrUnauthenticated, "Authentication required")
	}

	claims, err := s.tokens.Verify(tokenString)
	if err != nil {
		return nil, wrapError(ErrUnauthenticated, "Invalid or expired token", err)
	}

	account, err := s.accounts.GetByID(ctx, claims.AccountID)
	if err != nil {
		return nil, storeError(err, "User not found")
	}
	if !account.IsVerified {
		return nil, newError(ErrForbidden, "Phone number not verified")
	}
	return account, nil
}

func (s *AuthService) RequireCompleteProfile(account *models.Account) error {
	if account == nil {
		return newError(ErrUnauthenticated, "Authentication required")
	}
	if !account.IsProfileComplete {
		return newError(ErrForbidden, "Please complete your profile first")
	}
	return nil
}

// storeError maps repository failures onto the service taxonomy.
func storeError(err error, notFound string) *Error {
	if errors.Is(err, repository.ErrNotFound) {
		return wrapError(ErrNotFound, notFound, err)
	}
	return internalError(err)
}
