package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/sakif/auth-service/internal/apperror"
	"github.com/sakif/auth-service/internal/auth"
	"github.com/sakif/auth-service/internal/model"
	"github.com/sakif/auth-service/internal/repository"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

// fakeUserRepo is an in-memory repository.UserRepository. It enforces the
// same unique keys as the real stores and hands out copies, so a test can
// only observe what was actually persisted.
type fakeUserRepo struct {
	mu     sync.Mutex
	users  map[string]model.User // keyed by internal ID
	nextID int

	// set to a non-nil error to simulate a database failure
	getErr    error
	createErr error
	updateErr error
	deleteErr error

	creates int
	deletes int
}

var _ repository.UserRepository = (*fakeUserRepo)(nil)

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]model.User), nextID: 1}
}

func (f *fakeUserRepo) Create(_ context.Context, user *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	for _, u := range f.users {
		if u.Email == user.Email || (user.FederatedID != "" && u.FederatedID == user.FederatedID) {
			return apperror.Conflict("user", user.Email)
		}
	}
	user.ID = fmt.Sprintf("user-%d", f.nextID)
	f.nextID++
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	f.users[user.ID] = *user
	f.creates++
	return nil
}

func (f *fakeUserRepo) find(match func(model.User) bool, key string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	for _, u := range f.users {
		if match(u) {
			copied := u
			return &copied, nil
		}
	}
	return nil, apperror.NotFound("user", key)
}

func (f *fakeUserRepo) GetByID(_ context.Context, id string) (*model.User, error) {
	return f.find(func(u model.User) bool { return u.ID == id }, id)
}

func (f *fakeUserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	return f.find(func(u model.User) bool { return u.Email == email }, email)
}

func (f *fakeUserRepo) GetByFederatedID(_ context.Context, id string) (*model.User, error) {
	return f.find(func(u model.User) bool { return id != "" && u.FederatedID == id }, id)
}

func (f *fakeUserRepo) Update(_ context.Context, user *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	if _, ok := f.users[user.ID]; !ok {
		return apperror.NotFound("user", user.ID)
	}
	user.UpdatedAt = time.Now()
	f.users[user.ID] = *user
	return nil
}

func (f *fakeUserRepo) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	// A real store gives up on a cancelled context.
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := f.users[id]; !ok {
		return apperror.NotFound("user", id)
	}
	delete(f.users, id)
	f.deletes++
	return nil
}

func (f *fakeUserRepo) Close() error { return nil }

func (f *fakeUserRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.users)
}

// stored returns the persisted copy of the account with email.
func (f *fakeUserRepo) stored(t *testing.T, email string) model.User {
	t.Helper()
	u, err := f.GetByEmail(context.Background(), email)
	if err != nil {
		t.Fatalf("account %q not in store: %v", email, err)
	}
	return *u
}

// sentOTP is one recorded delivery.
type sentOTP struct {
	Email, Code, Username string
}

// fakeSender records deliveries, or fails them when err is set.
// onSend, when set, runs before anything else.
type fakeSender struct {
	sent   []sentOTP
	err    error
	onSend func()
}

func (f *fakeSender) SendOTP(_ context.Context, email, code, username string) error {
	if f.onSend != nil {
		f.onSend()
	}
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentOTP{email, code, username})
	return nil
}

// testClock is a settable clock shared by the service and the code generator.
type testClock struct{ t time.Time }

func (c *testClock) now() time.Time          { return c.t }
func (c *testClock) advance(d time.Duration) { c.t = c.t.Add(d) }

// scriptedOTP returns codes from a fixed list, each valid for ten minutes
// from the test clock's current time.
type scriptedOTP struct {
	clock *testClock
	codes []string
	next  int
}

func (g *scriptedOTP) Generate() (string, time.Time, error) {
	if g.next >= len(g.codes) {
		return "", time.Time{}, fmt.Errorf("scriptedOTP: out of codes")
	}
	code := g.codes[g.next]
	g.next++
	return code, g.clock.now().Add(10 * time.Minute), nil
}

// harness bundles an AuthService with handles on all its fakes.
type harness struct {
	svc    *AuthService
	repo   *fakeUserRepo
	sender *fakeSender
	clock  *testClock
	otps   *scriptedOTP
	tokens *auth.TokenService
}

func newHarness(t *testing.T, opts Options, codes ...string) *harness {
	t.Helper()

	tokens, err := auth.NewTokenService("test-secret-at-least-16-chars!!", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	if len(codes) == 0 {
		codes = []string{"482913", "771204", "305518"}
	}

	h := &harness{
		repo:   newFakeUserRepo(),
		sender: &fakeSender{},
		clock:  &testClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)},
		tokens: tokens,
	}
	h.otps = &scriptedOTP{clock: h.clock, codes: codes}

	// Cost 4 is bcrypt minimum, keeps tests fast
	passwords := auth.NewPasswordService(4)

	h.svc = NewAuthService(h.repo, tokens, passwords, h.otps, h.sender, discardLogger(), opts)
	h.svc.now = h.clock.now
	return h
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// signup registers alice@x.com / pw123 and fails the test on error.
func (h *harness) signup(t *testing.T) *model.User {
	t.Helper()
	user, err := h.svc.Signup(context.Background(), "a@x.com", "pw123", "alice")
	if err != nil {
		t.Fatalf("Signup() error = %v", err)
	}
	return user
}
