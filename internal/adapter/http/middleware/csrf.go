package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"strings"
)

const (
	csrfCookieName = "csrf_token"
	csrfHeaderName = "X-CSRF-Token"
	csrfFormField  = "csrf_token"
	csrfMaxAge     = 24 * 60 * 60
	tokenSize      = 32
)

type csrfKey struct{}

// CSRFProtection is a double-submit cookie check. The token is random bytes
// followed by their HMAC, so a cookie planted by another origin without the
// secret is rejected too.
type CSRFProtection struct {
	secretKey    []byte
	exemptPrefix []string
}

// NewCSRFProtection protects every unsafe request except those whose path
// starts with one of exemptPrefixes (machine endpoints with their own auth).
func NewCSRFProtection(secretKey string, exemptPrefixes ...string) *CSRFProtection {
	return &CSRFProtection{
		secretKey:    []byte(secretKey),
		exemptPrefix: exemptPrefixes,
	}
}

func (c *CSRFProtection) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c.exempt(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token := ""
		if cookie, err := r.Cookie(csrfCookieName); err == nil && c.ValidateToken(cookie.Value) {
			token = cookie.Value
		} else {
			token = c.GenerateToken()
			setCSRFCookie(w, r, token)
		}
		r = r.WithContext(context.WithValue(r.Context(), csrfKey{}, token))

		if !isSafeMethod(r.Method) && !c.validateRequest(r) {
			http.Error(w, "Forbidden - Invalid CSRF token", http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Token returns the token to embed in forms rendered for r.
func Token(r *http.Request) string {
	token, _ := r.Context().Value(csrfKey{}).(string)
	return token
}

// GenerateToken returns unpadded base64url(32 random bytes + HMAC-SHA256 of them).
func (c *CSRFProtection) GenerateToken() string {
	random := make([]byte, tokenSize)
	_, _ = rand.Read(random)

	token := make([]byte, 0, tokenSize+sha256.Size)
	token = append(token, random...)
	token = append(token, c.sign(random)...)
	return base64.RawURLEncoding.EncodeToString(token)
}

func (c *CSRFProtection) ValidateToken(token string) bool {
	decoded, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil || len(decoded) != tokenSize+sha256.Size {
		return false
	}
	return hmac.Equal(decoded[tokenSize:], c.sign(decoded[:tokenSize]))
}

func (c *CSRFProtection) sign(random []byte) []byte {
	mac := hmac.New(sha256.New, c.secretKey)
	mac.Write(random)
	return mac.Sum(nil)
}

// validateRequest requires the header or form token to equal the cookie.
func (c *CSRFProtection) validateRequest(r *http.Request) bool {
	cookie, err := r.Cookie(csrfCookieName)
	if err != nil {
		return false
	}

	requestToken := r.Header.Get(csrfHeaderName)
	if requestToken == "" {
		requestToken = r.FormValue(csrfFormField)
	}
	if requestToken == "" {
		return false
	}

	return hmac.Equal([]byte(requestToken), []byte(cookie.Value)) && c.ValidateToken(requestToken)
}

func (c *CSRFProtection) exempt(path string) bool {
	for _, p := range c.exemptPrefix {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

func setCSRFCookie(w http.ResponseWriter, r *http.Request, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   csrfMaxAge,
		Secure:   isTLS(r),
		HttpOnly: false, // read by page scripts for the header
		SameSite: http.SameSiteStrictMode,
	})
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}
