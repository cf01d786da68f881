package pncp

import (
	"sync"
	"time"
)

// AuthToken is a bearer credential with expiry tracking.
type AuthToken struct {
	Token        string
	ExpiresAt    time.Time
	RefreshToken string
}

// ExpiredWithin reports whether the token is absent or will expire inside
// the buffer. Treating a token as expired early leaves room for a refresh
// to complete before the next call would fail with 401.
func (t AuthToken) ExpiredWithin(buffer time.Duration, now time.Time) bool {
	if t.Token == "" {
		return true
	}
	return !now.Add(buffer).Before(t.ExpiresAt)
}

// Credentials are the PNCP login credentials. Both fields empty means
// anonymous mode: the consultation endpoints allow unauthenticated reads.
type Credentials struct {
	Login    string
	Password string
}

func (c Credentials) empty() bool {
	return c.Login == "" && c.Password == ""
}

// session owns the token for an authenticated client. The token is swapped
// atomically under the mutex so concurrent requests never observe a
// half-replaced credential.
type session struct {
	mu     sync.Mutex
	creds  Credentials
	token  AuthToken
	buffer time.Duration
	now    func() time.Time
}

func newSession(creds Credentials, buffer time.Duration) *session {
	if buffer <= 0 {
		buffer = 5 * time.Minute
	}
	return &session{creds: creds, buffer: buffer, now: time.Now}
}

// anonymous reports whether the client operates without credentials.
func (s *session) anonymous() bool {
	return s.creds.empty()
}

// bearer returns the current token string if one is held and still valid.
func (s *session) bearer() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token.ExpiredWithin(s.buffer, s.now()) {
		return "", false
	}
	return s.token.Token, true
}

// needsLogin reports whether a login call must run before the next request.
func (s *session) needsLogin() bool {
	if s.anonymous() {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token.ExpiredWithin(s.buffer, s.now())
}

func (s *session) replace(tok AuthToken) {
	s.mu.Lock()
	s.token = tok
	s.mu.Unlock()
}
