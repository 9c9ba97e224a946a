package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/xid"

	"github.com/sakif/auth-service/internal/auth"
	"github.com/sakif/auth-service/internal/model"
	"github.com/sakif/auth-service/internal/service"
)

// AuthService is the slice of service.AuthService the HTTP layer calls.
// Declaring it here lets handler tests swap in a stub.
type AuthService interface {
	Signup(ctx context.Context, email, password, username string) (*model.User, error)
	VerifyOTP(ctx context.Context, email, code string) (*service.AuthResult, error)
	ResendOTP(ctx context.Context, email string) error
	Login(ctx context.Context, email, password string) (*service.AuthResult, error)
	Logout(ctx context.Context, userID string)
	Authenticate(ctx context.Context, token string) (*model.User, error)
	ProtectedAccess(ctx context.Context, identity *model.User) (*model.Profile, error)
	LoginFederated(ctx context.Context, profile *model.ExternalProfile) (*service.AuthResult, error)
}

// stateCookie holds the CSRF state of an in-flight federated login.
const stateCookie = "oauth_state"

// CookieConfig controls the session cookie.
type CookieConfig struct {
	Secure bool          // Secure should be true in production (HTTPS only)
	MaxAge time.Duration // Matches the token TTL so cookie and token die together
}

// AuthHandler exposes the account lifecycle over HTTP.
//
// HANDLER RESPONSIBILITIES:
//   - HandleSignup / HandleVerifyOTP / HandleResendOTP → email + OTP onboarding
//   - HandleLogin / HandleLogout                      → password sessions
//   - HandleProtected                                 → profile of the session owner
//   - HandleProviderLogin / HandleProviderCallback    → federated login (Google, GitHub)
//
// The handler only translates between HTTP and the service: decoding bodies,
// setting cookies and rendering errors. Every rule lives in AuthService.
type AuthHandler struct {
	svc       AuthService
	providers map[string]auth.Provider
	cookies   CookieConfig
	clientURL string
	logger    *slog.Logger
}

// NewAuthHandler creates an AuthHandler. Providers are looked up by Name(),
// which is also the {provider} segment of the federated routes.
func NewAuthHandler(
	svc AuthService,
	providers []auth.Provider,
	cookies CookieConfig,
	clientURL string,
	logger *slog.Logger,
) *AuthHandler {
	byName := make(map[string]auth.Provider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	return &AuthHandler{
		svc:       svc,
		providers: byName,
		cookies:   cookies,
		clientURL: clientURL,
		logger:    logger,
	}
}

// =========================================================================
// REQUEST / RESPONSE BODIES
// =========================================================================

type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username"`
}

type verifyOTPRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

type resendOTPRequest struct {
	Email string `json:"email"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signupData struct {
	UserID   string `json:"userId"`
	Email    string `json:"email"`
	Username string `json:"username"`
}

type signupResponse struct {
	Success bool       `json:"success"`
	Message string     `json:"message"`
	Data    signupData `json:"data"`
}

// userResponse is returned by every call that ends with a known caller.
type userResponse struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	User    *model.Profile `json:"user"`
}

// =========================================================================
// EMAIL + PASSWORD
// =========================================================================

// HandleSignup registers a password account and emails it a verification code.
//
// HTTP: POST /signup
// REQUEST BODY: {"email": "a@x.com", "password": "...", "username": "alice"}
func (h *AuthHandler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	user, err := h.svc.Signup(r.Context(), req.Email, req.Password, req.Username)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, signupResponse{
		Success: true,
		Message: "Account created. Check your email for the verification code.",
		Data: signupData{
			UserID:   user.ID,
			Email:    user.Email,
			Username: user.Username,
		},
	})
}

// HandleVerifyOTP confirms the emailed code and starts a session.
//
// HTTP: POST /verify-otp
// REQUEST BODY: {"email": "a@x.com", "otp": "482913"}
func (h *AuthHandler) HandleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyOTPRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	result, err := h.svc.VerifyOTP(r.Context(), req.Email, req.OTP)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.setSessionCookie(w, result.Token)
	writeJSON(w, http.StatusOK, userResponse{
		Success: true,
		Message: "Email verified successfully",
		User:    result.User.Profile(),
	})
}

// HandleResendOTP issues a fresh code to an unverified account.
//
// HTTP: POST /resend-otp
// REQUEST BODY: {"email": "a@x.com"}
func (h *AuthHandler) HandleResendOTP(w http.ResponseWriter, r *http.Request) {
	var req resendOTPRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	if err := h.svc.ResendOTP(r.Context(), req.Email); err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{
		Success: true,
		Message: "A new verification code has been sent",
	})
}

// HandleLogin checks a password and starts a session.
//
// HTTP: POST /login
// REQUEST BODY: {"email": "a@x.com", "password": "..."}
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	result, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.setSessionCookie(w, result.Token)
	writeJSON(w, http.StatusOK, userResponse{
		Success: true,
		Message: "Logged in successfully",
		User:    result.User.Profile(),
	})
}

// HandleLogout clears the session cookie.
//
// HTTP: POST /logout
//
// WHY POST AND NOT GET?
// Logout changes state. A GET could be triggered by a cross-site link or a
// browser prefetch.
//
// Tokens are stateless, so the token itself stays valid until it expires;
// without the cookie the browser simply stops sending it. Logout always
// succeeds, even for a caller with no valid session.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(auth.TokenCookie); err == nil && cookie.Value != "" {
		if user, err := h.svc.Authenticate(r.Context(), cookie.Value); err == nil {
			h.svc.Logout(r.Context(), user.ID)
		}
	}

	h.clearCookie(w, auth.TokenCookie)
	writeJSON(w, http.StatusOK, MessageResponse{
		Success: true,
		Message: "Logged out successfully",
	})
}

// HandleProtected returns the profile of the authenticated caller.
//
// HTTP: GET /protected
// Auth: Required (RequireAuth middleware puts the account in the context)
func (h *AuthHandler) HandleProtected(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.UserFromContext(r.Context())

	profile, err := h.svc.ProtectedAccess(r.Context(), identity)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, userResponse{
		Success: true,
		Message: "You have access to this protected route",
		User:    profile,
	})
}

// HandleHealth is the liveness probe.
//
// HTTP: GET /healthz
func (h *AuthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "ok"})
}

// =========================================================================
// FEDERATED LOGIN
// =========================================================================

// HandleProviderLogin redirects the browser to the provider's consent page.
//
// HTTP: GET /auth/{provider}
//
// CSRF PROTECTION VIA STATE:
// A random state value goes into a short-lived HttpOnly cookie and into the
// authorization URL. HandleProviderCallback only continues when the two
// match, proving this server started the flow.
func (h *AuthHandler) HandleProviderLogin(w http.ResponseWriter, r *http.Request) {
	provider, ok := h.providers[chi.URLParam(r, "provider")]
	if !ok {
		writeJSON(w, http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: "unknown login provider",
		})
		return
	}

	state := xid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600, // 10 minutes
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, provider.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleProviderCallback completes a federated login.
//
// HTTP: GET /auth/{provider}/callback?code=xxx&state=yyy
//
// FLOW:
//  1. Validate the state parameter (CSRF check)
//  2. Exchange the code for the provider's profile
//  3. Reconcile the profile with a local account
//  4. Set the session cookie and redirect to the client app
//
// Every failure redirects to the client's login page instead of rendering
// JSON: the browser arrived here through a top-level navigation.
func (h *AuthHandler) HandleProviderCallback(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "provider")
	provider, ok := h.providers[name]
	if !ok {
		h.failFederated(w, r, "unknown provider", slog.String("provider", name))
		return
	}

	// --- Step 1: Validate CSRF state ---
	cookie, err := r.Cookie(stateCookie)
	if err != nil || cookie.Value == "" {
		h.failFederated(w, r, "missing state cookie", slog.String("provider", name))
		return
	}
	// The state is single-use.
	h.clearCookie(w, stateCookie)

	query := r.URL.Query()
	if query.Get("state") != cookie.Value {
		h.failFederated(w, r, "state mismatch", slog.String("provider", name))
		return
	}

	// The user denied consent on the provider's page.
	if errParam := query.Get("error"); errParam != "" {
		h.failFederated(w, r, "authorization denied",
			slog.String("provider", name),
			slog.String("error", errParam),
		)
		return
	}

	code := query.Get("code")
	if code == "" {
		h.failFederated(w, r, "missing code", slog.String("provider", name))
		return
	}

	// --- Step 2: Exchange code for the provider profile ---
	profile, err := provider.Exchange(r.Context(), code)
	if err != nil {
		h.failFederated(w, r, "code exchange failed",
			slog.String("provider", name),
			slog.String("error", err.Error()),
		)
		return
	}

	// --- Step 3: Reconcile with a local account ---
	result, err := h.svc.LoginFederated(r.Context(), profile)
	if err != nil {
		h.failFederated(w, r, "federated login failed",
			slog.String("provider", name),
			slog.String("error", err.Error()),
		)
		return
	}

	// --- Step 4: Session cookie + redirect ---
	h.setSessionCookie(w, result.Token)
	http.Redirect(w, r, h.clientURL+"/dashboard?auth=success", http.StatusSeeOther)
}

func (h *AuthHandler) failFederated(w http.ResponseWriter, r *http.Request, reason string, attrs ...any) {
	h.logger.Warn("federated callback: "+reason, attrs...)
	http.Redirect(w, r, h.clientURL+"/login?error=oauth_failed", http.StatusSeeOther)
}

// =========================================================================
// COOKIES
// =========================================================================

// setSessionCookie stores the session token.
// HttpOnly = JavaScript cannot read this cookie (XSS protection).
// SameSite=Lax = sent on top-level navigations but not on cross-site POSTs.
func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.TokenCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.cookies.MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1, // tells the browser to delete the cookie immediately
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
