package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/api/idtoken"

	"github.com/bnema/tubeaudit/internal/infrastructure/logger"
)

var (
	errMissingBearer = errors.New("missing bearer token")
	errWrongCaller   = errors.New("token issued to an unexpected caller")
)

// TokenValidator verifies a Google-signed ID token for audience.
type TokenValidator func(ctx context.Context, token, audience string) (*idtoken.Payload, error)

// TaskAuthenticator guards the /internal routes called by the queue relay
// and the scheduler.
type TaskAuthenticator struct {
	audience      string
	email         string
	allowInsecure bool
	validate      TokenValidator
}

// NewTaskAuthenticator checks bearer ID tokens against audience. A non-empty
// email pins the caller's service account.
func NewTaskAuthenticator(audience, email string, allowInsecure bool) *TaskAuthenticator {
	return &TaskAuthenticator{
		audience:      audience,
		email:         strings.TrimSpace(email),
		allowInsecure: allowInsecure,
		validate:      idtoken.Validate,
	}
}

// WithValidator swaps the token verification, for tests.
func (a *TaskAuthenticator) WithValidator(v TokenValidator) *TaskAuthenticator {
	a.validate = v
	return a
}

func (a *TaskAuthenticator) Authenticate(r *http.Request) error {
	if a.allowInsecure {
		return nil
	}

	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return errMissingBearer
	}

	payload, err := a.validate(r.Context(), strings.TrimSpace(token), a.audience)
	if err != nil {
		return fmt.Errorf("validate id token: %w", err)
	}

	if a.email != "" {
		email, _ := payload.Claims["email"].(string)
		verified, _ := payload.Claims["email_verified"].(bool)
		if !verified || !strings.EqualFold(email, a.email) {
			return fmt.Errorf("%w: %q", errWrongCaller, email)
		}
	}
	return nil
}

func (a *TaskAuthenticator) Middleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := a.Authenticate(r); err != nil {
			logger.Warn.Printf("internal %s rejected: %v", logger.SanitizeForLog(r.URL.Path), err)
			writeJSON(w, http.StatusForbidden, errorBody{Error: "forbidden"})
			return
		}
		next(w, r)
	}
}
