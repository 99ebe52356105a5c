package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"sync"
	"time"

	"github.com/hugh/easy-diagrams/pkg/crypto"
)

const (
	csrfTokenLength = 32
	csrfCookieName  = "csrf_token"
	csrfHeaderName  = "X-CSRF-Token"
	csrfFormField   = "csrf_token"
	csrfTokenExpiry = 24 * time.Hour
)

type csrfToken struct {
	token     string
	expiresAt time.Time
}

// CSRFStore keeps one token per cookie session in memory.
type CSRFStore struct {
	tokens map[string]csrfToken
	mu     sync.Mutex
	now    func() time.Time
}

func NewCSRFStore() *CSRFStore {
	return &CSRFStore{
		tokens: make(map[string]csrfToken),
		now:    time.Now,
	}
}

// Run drops expired tokens every interval until done is closed.
func (s *CSRFStore) Run(done <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			s.purge()
		}
	}
}

func (s *CSRFStore) purge() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for sessionID, t := range s.tokens {
		if now.After(t.expiresAt) {
			delete(s.tokens, sessionID)
		}
	}
}

// GetOrCreate returns the session's live token, minting a new one if needed.
func (s *CSRFStore) GetOrCreate(sessionID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if t, ok := s.tokens[sessionID]; ok && now.Before(t.expiresAt) {
		return t.token, nil
	}

	token, err := crypto.GenerateRandomString(csrfTokenLength)
	if err != nil {
		return "", err
	}
	s.tokens[sessionID] = csrfToken{token: token, expiresAt: now.Add(csrfTokenExpiry)}
	return token, nil
}

func (s *CSRFStore) Validate(sessionID, provided string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[sessionID]
	if !ok || s.now().After(t.expiresAt) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(t.token), []byte(provided)) == 1
}

// CSRF protects cookie-authenticated requests. Requests carrying an
// Authorization header and requests without a session cookie pass through.
func CSRF(store *CSRFStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessionID := getSessionID(r)

			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
				if sessionID != "" {
					ensureCSRFCookie(w, r, store, sessionID)
				}
				next.ServeHTTP(w, r)
				return
			}

			if r.Header.Get("Authorization") != "" || sessionID == "" {
				next.ServeHTTP(w, r)
				return
			}

			provided := r.Header.Get(csrfHeaderName)
			if provided == "" {
				provided = r.FormValue(csrfFormField)
			}
			if provided == "" {
				writeError(w, http.StatusForbidden, "CSRF token missing")
				return
			}
			if !store.Validate(sessionID, provided) {
				writeError(w, http.StatusForbidden, "invalid CSRF token")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func ensureCSRFCookie(w http.ResponseWriter, r *http.Request, store *CSRFStore, sessionID string) {
	if c, err := r.Cookie(csrfCookieName); err == nil && store.Validate(sessionID, c.Value) {
		return
	}

	token, err := store.GetOrCreate(sessionID)
	if err != nil {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: false, // read by the frontend and echoed in X-CSRF-Token
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(csrfTokenExpiry.Seconds()),
	})
}

// getSessionID derives a session key from the token cookie. The whole token
// is hashed; JWTs share their leading bytes.
func getSessionID(r *http.Request) string {
	cookie, err := r.Cookie(TokenCookieName)
	if err != nil || cookie.Value == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(cookie.Value))
	return hex.EncodeToString(sum[:16])
}
