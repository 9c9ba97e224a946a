// Package service holds the authentication business logic.
//
// AuthService is the credential and session lifecycle state machine. It sits
// between the HTTP handlers and the storage, crypto and delivery adapters:
//
//	AuthHandler (HTTP) → AuthService (business rules) → UserRepository (DB)
//	                   ↘ PasswordService, OTP generator, TokenService, Sender
//
// ACCOUNT STATES:
//
//	Signup ──► unverified (OTP open) ──VerifyOTP──► verified
//	               ▲        │
//	               └ResendOTP┘
//	federated login ─────────────────────────────► verified
//
// Errors from this package are either an *apperror.AppError (expected,
// safe to show the caller) or a wrapped internal error that handlers log
// and render as a generic 500.
package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/sakif/auth-service/internal/apperror"
	"github.com/sakif/auth-service/internal/auth"
	"github.com/sakif/auth-service/internal/model"
	"github.com/sakif/auth-service/internal/notify"
	"github.com/sakif/auth-service/internal/repository"
)

// rollbackTimeout bounds the compensating delete of a failed signup.
const rollbackTimeout = 5 * time.Second

// CodeGenerator produces a one-time code and the instant it expires.
// *auth.OTPGenerator is the production implementation.
type CodeGenerator interface {
	Generate() (code string, expiresAt time.Time, err error)
}

// Options holds the behaviour switches of AuthService.
type Options struct {
	// RequireVerifiedLogin rejects password logins of unverified accounts
	// with apperror.ErrNotVerified, after the password has checked out.
	RequireVerifiedLogin bool
}

// AuthService handles the authentication business logic.
//
// DEPENDENCIES (injected via NewAuthService):
//   - users      repository.UserRepository → read/write account records
//   - tokens     *auth.TokenService        → mint/validate session JWTs
//   - passwords  *auth.PasswordService     → bcrypt hashing
//   - otps       CodeGenerator             → verification codes
//   - sender     notify.Sender             → code delivery
//   - logger     *slog.Logger              → structured logging
//
// AuthService holds no per-request state and is safe for concurrent use.
type AuthService struct {
	users      repository.UserRepository
	tokens     *auth.TokenService
	passwords  *auth.PasswordService
	otps       CodeGenerator
	sender     notify.Sender
	reconciler *Reconciler
	logger     *slog.Logger
	opts       Options
	now        func() time.Time

	// dummyHash is compared against when the email is unknown, so a login
	// for a missing account costs the same bcrypt time as a wrong password.
	dummyOnce sync.Once
	dummyHash string
}

// NewAuthService creates an AuthService with all required dependencies.
// Call this in server.go when wiring the dependency graph.
func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	otps CodeGenerator,
	sender notify.Sender,
	logger *slog.Logger,
	opts Options,
) *AuthService {
	return &AuthService{
		users:      users,
		tokens:     tokens,
		passwords:  passwords,
		otps:       otps,
		sender:     sender,
		reconciler: NewReconciler(users, logger),
		logger:     logger,
		opts:       opts,
		now:        time.Now,
	}
}

// AuthResult bundles the account and its freshly minted session token so the
// handler can set the cookie and respond in one step.
type AuthResult struct {
	User  *model.User
	Token string
}

// =========================================================================
// SIGNUP / OTP
// =========================================================================

// Signup creates an unverified password account and emails it a code.
//
// Signup is all-or-nothing for the caller: when the code cannot be delivered
// the new account is deleted again and apperror.ErrNotificationFailed is
// returned.
func (s *AuthService) Signup(ctx context.Context, email, password, username string) (*model.User, error) {
	email = model.NormalizeEmail(email)
	username = strings.TrimSpace(username)

	if err := validateSignup(email, password, username); err != nil {
		return nil, err
	}

	_, err := s.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return nil, apperror.AccountExists()
	case !errors.Is(err, apperror.ErrNotFound):
		return nil, fmt.Errorf("service/auth: checking existing account: %w", err)
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooLong) {
			return nil, apperror.ValidationFailed("password", "password must be 72 bytes or fewer")
		}
		return nil, fmt.Errorf("service/auth: hashing password: %w", err)
	}

	code, expiresAt, err := s.otps.Generate()
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating otp: %w", err)
	}

	user := &model.User{
		Email:        email,
		Username:     username,
		PasswordHash: hash,
	}
	user.SetOTP(code, expiresAt)

	if err := s.users.Create(ctx, user); err != nil {
		// Lost a race with a concurrent signup for the same email.
		if errors.Is(err, apperror.ErrConflict) {
			return nil, apperror.AccountExists()
		}
		return nil, fmt.Errorf("service/auth: creating account: %w", err)
	}

	if err := s.sender.SendOTP(ctx, user.Email, code, user.Username); err != nil {
		s.logger.Error("otp delivery failed, rolling back signup",
			slog.String("userID", user.ID),
			slog.String("email", notify.MaskEmail(user.Email)),
			slog.String("error", err.Error()),
		)
		if delErr := s.rollbackSignup(ctx, user.ID); delErr != nil {
			s.logger.Error("signup rollback failed",
				slog.String("userID", user.ID),
				slog.String("error", delErr.Error()),
			)
		}
		return nil, apperror.NotificationFailed("failed to send verification email")
	}

	s.logger.Info("account created",
		slog.String("userID", user.ID),
		slog.String("email", notify.MaskEmail(user.Email)),
	)
	return user, nil
}

// rollbackSignup deletes an account whose code could not be delivered.
// It runs detached from ctx: a caller that hung up or ran out of time is
// the usual reason delivery failed, and the account must go regardless.
func (s *AuthService) rollbackSignup(ctx context.Context, userID string) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()
	return s.users.Delete(ctx, userID)
}

// VerifyOTP promotes an account to verified and starts a session.
//
// Checks run in a fixed order so the error names the first thing wrong:
// not found → already verified → expired → wrong code.
func (s *AuthService) VerifyOTP(ctx context.Context, email, code string) (*AuthResult, error) {
	email = model.NormalizeEmail(email)
	if email == "" {
		return nil, apperror.ValidationFailed("email", "email is required")
	}
	if code == "" {
		return nil, apperror.ValidationFailed("otp", "otp is required")
	}

	user, err := s.pendingAccount(ctx, email)
	if err != nil {
		return nil, err
	}

	if user.OTPExpired(s.now()) {
		return nil, apperror.Expired()
	}
	if subtle.ConstantTimeCompare([]byte(code), []byte(user.OTPCode)) != 1 {
		return nil, apperror.InvalidCode()
	}

	user.MarkVerified()
	if err := s.users.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: marking account %s verified: %w", user.ID, err)
	}

	s.logger.Info("email verified", slog.String("userID", user.ID))
	return s.startSession(user)
}

// ResendOTP replaces the pending code with a fresh one and a fresh window.
//
// The new code is persisted before delivery and is not rolled back when
// delivery fails; the next resend simply overwrites it.
func (s *AuthService) ResendOTP(ctx context.Context, email string) error {
	email = model.NormalizeEmail(email)
	if email == "" {
		return apperror.ValidationFailed("email", "email is required")
	}

	user, err := s.pendingAccount(ctx, email)
	if err != nil {
		return err
	}

	code, expiresAt, err := s.otps.Generate()
	if err != nil {
		return fmt.Errorf("service/auth: generating otp: %w", err)
	}
	user.SetOTP(code, expiresAt)

	if err := s.users.Update(ctx, user); err != nil {
		return fmt.Errorf("service/auth: storing new otp for %s: %w", user.ID, err)
	}

	if err := s.sender.SendOTP(ctx, user.Email, code, user.Username); err != nil {
		s.logger.Error("otp resend delivery failed",
			slog.String("userID", user.ID),
			slog.String("error", err.Error()),
		)
		return apperror.NotificationFailed("failed to send verification email")
	}

	s.logger.Info("otp resent", slog.String("userID", user.ID))
	return nil
}

// pendingAccount loads an account that is still waiting for verification.
func (s *AuthService) pendingAccount(ctx context.Context, email string) (*model.User, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.AccountNotFound()
		}
		return nil, fmt.Errorf("service/auth: loading account: %w", err)
	}
	if user.IsVerified {
		return nil, apperror.AlreadyVerified()
	}
	return user, nil
}

// =========================================================================
// LOGIN / LOGOUT / SESSION
// =========================================================================

// Login checks a password and starts a session.
//
// Unknown email, a federated-only account and a wrong password all produce
// the same apperror.ErrInvalidCredentials, so the response never reveals
// whether an email is registered.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = model.NormalizeEmail(email)
	if email == "" {
		return nil, apperror.ValidationFailed("email", "email is required")
	}
	if password == "" {
		return nil, apperror.ValidationFailed("password", "password is required")
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			s.burnPasswordCheck(password)
			return nil, apperror.InvalidCredentials()
		}
		return nil, fmt.Errorf("service/auth: loading account: %w", err)
	}

	if !user.HasPassword() {
		s.burnPasswordCheck(password)
		return nil, apperror.InvalidCredentials()
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if !errors.Is(err, auth.ErrPasswordMismatch) {
			s.logger.Error("stored password hash unusable",
				slog.String("userID", user.ID),
				slog.String("error", err.Error()),
			)
		}
		return nil, apperror.InvalidCredentials()
	}

	if s.opts.RequireVerifiedLogin && !user.IsVerified {
		return nil, apperror.NotVerified()
	}

	s.logger.Info("user logged in", slog.String("userID", user.ID))
	return s.startSession(user)
}

// burnPasswordCheck spends one bcrypt comparison on a throwaway hash.
func (s *AuthService) burnPasswordCheck(password string) {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.passwords.Hash("not-a-real-password")
	})
	if s.dummyHash != "" {
		_ = s.passwords.Verify(s.dummyHash, password)
	}
}

// Logout ends a session. Tokens are stateless, so there is nothing to revoke
// server-side: the handler clears the cookie and the token simply expires.
func (s *AuthService) Logout(ctx context.Context, userID string) {
	s.logger.InfoContext(ctx, "user logged out", slog.String("userID", userID))
}

// Authenticate resolves a session token to a live account.
//
// It fails closed with apperror.ErrUnauthenticated for any bad token and also
// when the token is valid but its account no longer exists.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*model.User, error) {
	userID, err := s.tokens.Validate(token)
	if err != nil {
		return nil, apperror.Unauthenticated("invalid or expired session")
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if !errors.Is(err, apperror.ErrNotFound) {
			s.logger.Error("resolving session account failed",
				slog.String("userID", userID),
				slog.String("error", err.Error()),
			)
		}
		return nil, apperror.Unauthenticated("invalid or expired session")
	}
	return user, nil
}

// ProtectedAccess returns the public profile of an authenticated caller.
func (s *AuthService) ProtectedAccess(ctx context.Context, identity *model.User) (*model.Profile, error) {
	if identity == nil {
		return nil, apperror.Unauthenticated("authentication required")
	}
	return identity.Profile(), nil
}

// LoginFederated signs in the owner of an external identity, creating or
// linking the local account through the Reconciler.
func (s *AuthService) LoginFederated(ctx context.Context, profile *model.ExternalProfile) (*AuthResult, error) {
	user, err := s.reconciler.Reconcile(ctx, profile)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user authenticated via provider",
		slog.String("userID", user.ID),
		slog.String("provider", profile.Provider),
	)
	return s.startSession(user)
}

func (s *AuthService) startSession(user *model.User) (*AuthResult, error) {
	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for user %s: %w", user.ID, err)
	}
	return &AuthResult{User: user, Token: token}, nil
}

// =========================================================================
// VALIDATION
// =========================================================================

func validateSignup(email, password, username string) error {
	if email == "" {
		return apperror.ValidationFailed("email", "email is required")
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return apperror.ValidationFailed("email", "email is not a valid address")
	}
	if password == "" {
		return apperror.ValidationFailed("password", "password is required")
	}
	if username == "" {
		return apperror.ValidationFailed("username", "username is required")
	}
	return nil
}
