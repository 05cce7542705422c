package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/bnema/tubeaudit/internal/adapter/http/middleware"
	"github.com/bnema/tubeaudit/internal/adapter/http/ratelimit"
	"github.com/bnema/tubeaudit/internal/adapter/http/templates"
	"github.com/bnema/tubeaudit/internal/domain"
	"github.com/bnema/tubeaudit/internal/infrastructure/logger"
	"github.com/bnema/tubeaudit/internal/service"
)

const (
	CookieName     = "auth_token"
	CookieMaxAge   = 7 * 24 * 60 * 60
	CookiePath     = "/"
	CookieSameSite = http.SameSiteStrictMode
)

type AuthService interface {
	HasUser(ctx context.Context) (bool, error)
	CreateFirstUser(ctx context.Context, email, displayName, password string) (*domain.User, error)
	Authenticate(ctx context.Context, email, password string) (*domain.User, error)
	GenerateToken(user *domain.User) string
	ValidateToken(ctx context.Context, token string) (*domain.User, error)
	ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error
}

type userKey struct{}

func currentUser(r *http.Request) *domain.User {
	u, _ := r.Context().Value(userKey{}).(*domain.User)
	return u
}

func sessionUser(authSvc AuthService, r *http.Request) (*domain.User, error) {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return nil, service.ErrInvalidToken
	}
	return authSvc.ValidateToken(r.Context(), cookie.Value)
}

// AuthMiddleware guards UI pages: anonymous visitors go to /login, or to
// /setup while no account exists.
func AuthMiddleware(authSvc AuthService, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := sessionUser(authSvc, r)
		if err != nil {
			target := "/login"
			if ok, herr := authSvc.HasUser(r.Context()); herr == nil && !ok {
				target = "/setup"
			}
			http.Redirect(w, r, target, http.StatusSeeOther)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), userKey{}, user)))
	}
}

// APIAuthMiddleware guards JSON routes and answers 401 instead of redirecting.
func APIAuthMiddleware(authSvc AuthService, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := sessionUser(authSvc, r)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), userKey{}, user)))
	}
}

func SetupHandler(authSvc AuthService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hasUser, err := authSvc.HasUser(r.Context())
		if err != nil {
			logger.Error.Printf("setup: check users: %v", err)
			renderError(w, r, http.StatusInternalServerError, "Something went wrong")
			return
		}
		if hasUser {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}

		view := templates.SetupView{Chrome: chrome(r)}
		if r.Method == http.MethodGet {
			renderPage(w, r, http.StatusOK, templates.Setup(view))
			return
		}

		view.Email = strings.TrimSpace(r.FormValue("email"))
		view.DisplayName = strings.TrimSpace(r.FormValue("display_name"))

		user, err := authSvc.CreateFirstUser(r.Context(), view.Email, view.DisplayName, r.FormValue("password"))
		switch {
		case errors.Is(err, service.ErrUserExists):
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		case errors.Is(err, service.ErrInvalidEmail), errors.Is(err, service.ErrWeakPassword):
			view.Error = err.Error()
			renderPage(w, r, http.StatusBadRequest, templates.Setup(view))
			return
		case err != nil:
			logger.Error.Printf("setup: create user: %v", err)
			renderError(w, r, http.StatusInternalServerError, "Could not create the account")
			return
		}

		logger.Info.Printf("initial user %s created", logger.SanitizeForLog(user.Email))
		setSessionCookie(w, r, authSvc.GenerateToken(user))
		http.Redirect(w, r, "/", http.StatusSeeOther)
	}
}

// LoginHandler checks the per-IP rate limit before the password, and delays
// failed attempts with a growing backoff.
func LoginHandler(authSvc AuthService, limiter *ratelimit.LoginRateLimiter, delay *ratelimit.FailureDelay, behindProxy bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view := templates.LoginView{Chrome: chrome(r)}
		if r.Method == http.MethodGet {
			if ok, err := authSvc.HasUser(r.Context()); err == nil && !ok {
				http.Redirect(w, r, "/setup", http.StatusSeeOther)
				return
			}
			renderPage(w, r, http.StatusOK, templates.Login(view))
			return
		}

		ip := clientIP(r, behindProxy)
		if allowed, wait := limiter.Check(ip); !allowed {
			logger.Warn.Printf("login rate limited for %s", logger.SanitizeForLog(ip))
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(wait.Seconds())+1))
			view.Error = fmt.Sprintf("Too many attempts. Try again in %s.", wait.Round(time.Second))
			renderPage(w, r, http.StatusTooManyRequests, templates.Login(view))
			return
		}

		view.Email = strings.TrimSpace(r.FormValue("email"))
		user, err := authSvc.Authenticate(r.Context(), view.Email, r.FormValue("password"))
		if err != nil {
			if !errors.Is(err, service.ErrInvalidCreds) {
				logger.Error.Printf("login: %v", err)
				renderError(w, r, http.StatusInternalServerError, "Something went wrong")
				return
			}
			logger.Warn.Printf("failed login for %s from %s", logger.SanitizeForLog(view.Email), logger.SanitizeForLog(ip))
			if !sleep(r.Context(), delay.RecordFailure(ip)) {
				return
			}
			view.Error = "Invalid email or password"
			renderPage(w, r, http.StatusUnauthorized, templates.Login(view))
			return
		}

		limiter.Reset(ip)
		delay.RecordSuccess(ip)
		setSessionCookie(w, r, authSvc.GenerateToken(user))
		http.Redirect(w, r, "/", http.StatusSeeOther)
	}
}

func LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{
			Name:     CookieName,
			Value:    "",
			MaxAge:   -1,
			Path:     CookiePath,
			Secure:   secureRequest(r),
			HttpOnly: true,
			SameSite: CookieSameSite,
		})
		http.Redirect(w, r, "/login", http.StatusSeeOther)
	}
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// ChangePasswordHandler serves POST /api/account/password.
func ChangePasswordHandler(authSvc AuthService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req changePasswordRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
			return
		}

		user := currentUser(r)
		err := authSvc.ChangePassword(r.Context(), user.ID, req.CurrentPassword, req.NewPassword)
		switch {
		case errors.Is(err, service.ErrWrongPassword):
			writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error(), Field: "current_password"})
		case errors.Is(err, service.ErrWeakPassword):
			writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error(), Field: "new_password"})
		case err != nil:
			writeError(w, r, err)
		default:
			logger.Info.Printf("password changed for user %s", user.ID)
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		}
	}
}

func setSessionCookie(w http.ResponseWriter, r *http.Request, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		MaxAge:   CookieMaxAge,
		Path:     CookiePath,
		Secure:   secureRequest(r),
		HttpOnly: true,
		SameSite: CookieSameSite,
	})
}

func secureRequest(r *http.Request) bool {
	return r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https"
}

// clientIP keys the login limiter. X-Forwarded-For is only trusted behind a
// proxy, and then only its first hop.
func clientIP(r *http.Request, behindProxy bool) string {
	if behindProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// sleep waits for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func chrome(r *http.Request) templates.Chrome {
	return templates.Chrome{User: currentUser(r), CSRF: middleware.Token(r)}
}
