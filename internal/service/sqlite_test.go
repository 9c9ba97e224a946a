package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sakif/auth-service/internal/apperror"
	"github.com/sakif/auth-service/internal/auth"
	"github.com/sakif/auth-service/internal/notify"
	"github.com/sakif/auth-service/internal/repository/sqlite"
)

// cancellingSender aborts the request mid-delivery, the way a client that
// hangs up does, and fails with the context error like go-mail would.
type cancellingSender struct {
	cancel context.CancelFunc
}

func (s *cancellingSender) SendOTP(ctx context.Context, _, _, _ string) error {
	s.cancel()
	return ctx.Err()
}

func newSQLiteService(t *testing.T, sender notify.Sender) (*AuthService, *sqlite.DB) {
	t.Helper()
	db, err := sqlite.New(context.Background(), ":memory:", discardLogger())
	if err != nil {
		t.Fatalf("sqlite.New() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	tokens, err := auth.NewTokenService("test-secret-at-least-16-chars!!", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	svc := NewAuthService(db, tokens, auth.NewPasswordService(4),
		auth.NewOTPGenerator(10*time.Minute), sender, discardLogger(), Options{})
	return svc, db
}

func TestSignup_CancelledDeliveryLeavesNoAccount(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc, db := newSQLiteService(t, &cancellingSender{cancel: cancel})

	_, err := svc.Signup(ctx, "a@x.com", "pw123", "alice")
	wantErr(t, err, apperror.ErrNotificationFailed)

	_, err = db.GetByEmail(context.Background(), "a@x.com")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("GetByEmail() after failed signup: error = %v, want ErrNotFound", err)
	}

	// The address is free for the next attempt.
	retry, _ := newSQLiteServiceOn(t, db)
	if _, err := retry.Signup(context.Background(), "a@x.com", "pw123", "alice"); err != nil {
		t.Fatalf("second Signup() error = %v", err)
	}
}

// newSQLiteServiceOn builds a service over an existing store with a
// sender that always succeeds.
func newSQLiteServiceOn(t *testing.T, db *sqlite.DB) (*AuthService, *fakeSender) {
	t.Helper()
	tokens, err := auth.NewTokenService("test-secret-at-least-16-chars!!", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	sender := &fakeSender{}
	svc := NewAuthService(db, tokens, auth.NewPasswordService(4),
		auth.NewOTPGenerator(10*time.Minute), sender, discardLogger(), Options{})
	return svc, sender
}
