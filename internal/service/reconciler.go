package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/auth-service/internal/apperror"
	"github.com/sakif/auth-service/internal/model"
	"github.com/sakif/auth-service/internal/notify"
	"github.com/sakif/auth-service/internal/repository"
)

// Reconciler maps a verified external identity onto a local account.
//
// RESOLUTION ORDER:
//  1. An account already linked to the external id is returned unchanged
//  2. Otherwise an account with the same email is linked: the external id is
//     recorded, the account is marked verified and any pending OTP dropped
//  3. Otherwise a new verified account without a password is created
//
// Step 2 merges a password account into the federated identity on first
// login. It trusts the provider's email verification and is logged at warn
// level so merges can be audited.
type Reconciler struct {
	users  repository.UserRepository
	logger *slog.Logger
}

func NewReconciler(users repository.UserRepository, logger *slog.Logger) *Reconciler {
	return &Reconciler{users: users, logger: logger}
}

// Reconcile returns the local account for profile, creating or linking one
// as needed. It fails with apperror.ErrMissingEmail when the provider gave
// no email, since there is then nothing to key a new account on.
func (r *Reconciler) Reconcile(ctx context.Context, profile *model.ExternalProfile) (*model.User, error) {
	if profile == nil {
		return nil, fmt.Errorf("service/reconciler: profile must not be nil")
	}
	if profile.ExternalID == "" {
		return nil, apperror.ValidationFailed("externalId", "external id is required")
	}
	email := model.NormalizeEmail(profile.Email)
	if email == "" {
		return nil, apperror.MissingEmail(profile.Provider)
	}

	user, err := r.users.GetByFederatedID(ctx, profile.ExternalID)
	switch {
	case err == nil:
		return user, nil
	case !errors.Is(err, apperror.ErrNotFound):
		return nil, fmt.Errorf("service/reconciler: looking up federated id: %w", err)
	}

	user, err = r.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return r.link(ctx, user, profile)
	case !errors.Is(err, apperror.ErrNotFound):
		return nil, fmt.Errorf("service/reconciler: looking up email: %w", err)
	}

	user = &model.User{
		Email:       email,
		Username:    displayName(profile.DisplayName, email),
		FederatedID: profile.ExternalID,
		IsVerified:  true,
	}
	if err := r.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("service/reconciler: creating federated account: %w", err)
	}

	r.logger.Info("federated account created",
		slog.String("userID", user.ID),
		slog.String("provider", profile.Provider),
	)
	return user, nil
}

func (r *Reconciler) link(ctx context.Context, user *model.User, profile *model.ExternalProfile) (*model.User, error) {
	relinked := user.HasFederatedID()
	previous := user.FederatedID

	user.FederatedID = profile.ExternalID
	user.MarkVerified()
	if err := r.users.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("service/reconciler: linking account %s: %w", user.ID, err)
	}

	attrs := []any{
		slog.String("userID", user.ID),
		slog.String("email", notify.MaskEmail(user.Email)),
		slog.String("provider", profile.Provider),
		slog.Bool("hadPassword", user.HasPassword()),
	}
	if relinked {
		attrs = append(attrs, slog.String("replacedFederatedID", previous))
	}
	r.logger.Warn("existing account linked to federated identity by email match", attrs...)
	return user, nil
}

// displayName falls back to the email local part when the provider has no name.
func displayName(name, email string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	if at := strings.IndexByte(email, '@'); at > 0 {
		return email[:at]
	}
	return email
}
