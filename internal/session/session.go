package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// PendingCode is a verification code bound to an email address, waiting to be
// consumed by registration. It lives only inside the issuing session.
type PendingCode struct {
	Email     string
	Code      string
	ExpiresAt time.Time
}

func (p PendingCode) Expired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}

type entry struct {
	userID   int
	nickname string
	lastSeen time.Time
	pending  *PendingCode
}

// Info is the identity a session resolves to. UserID is zero for anonymous
// sessions (created before registration completes).
type Info struct {
	UserID   int
	Nickname string
}

// Manager keeps server-side sessions keyed by opaque uuid tokens. Sessions
// expire after ttl of inactivity and are evicted lazily on lookup.
type Manager struct {
	mu       sync.Mutex
	ttl      time.Duration
	sessions map[string]*entry
	now      func() time.Time
}

func NewManager(ttl time.Duration) *Manager {
	return &Manager{
		ttl:      ttl,
		sessions: make(map[string]*entry),
		now:      time.Now,
	}
}

// Create starts an anonymous session and returns its token.
func (m *Manager) Create() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	token := uuid.NewString()
	m.sessions[token] = &entry{lastSeen: m.now()}
	return token
}

// Lookup resolves a token, refreshing its inactivity window. Expired tokens
// are removed and reported as missing.
func (m *Manager) Lookup(token string) (Info, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.get(token)
	if !ok {
		return Info{}, false
	}
	e.lastSeen = m.now()
	return Info{UserID: e.userID, Nickname: e.nickname}, true
}

// Bind attaches a user identity to an existing session (login, registration).
func (m *Manager) Bind(token string, userID int, nickname string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.get(token); ok {
		e.userID = userID
		e.nickname = nickname
		e.lastSeen = m.now()
	}
}

// SetNickname keeps the cached nickname in step with a profile rename.
func (m *Manager) SetNickname(token, nickname string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.get(token); ok {
		e.nickname = nickname
	}
}

func (m *Manager) Destroy(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, token)
}

// StashCode stores a verification code in the session, replacing any previous one.
func (m *Manager) StashCode(token, email, code string, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.get(token); ok {
		e.pending = &PendingCode{Email: email, Code: code, ExpiresAt: m.now().Add(ttl)}
	}
}

// Pending returns the stashed verification code, if any. Expiry is the
// caller's concern so that "expired" and "wrong" can be reported apart.
func (m *Manager) Pending(token string) (PendingCode, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.get(token)
	if !ok || e.pending == nil {
		return PendingCode{}, false
	}
	return *e.pending, true
}

// ClearCode drops the stashed code after it has been consumed.
func (m *Manager) ClearCode(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.get(token); ok {
		e.pending = nil
	}
}

func (m *Manager) Now() time.Time {
	return m.now()
}

// get must be called with the mutex held.
func (m *Manager) get(token string) (*entry, bool) {
	e, ok := m.sessions[token]
	if !ok {
		return nil, false
	}
	if m.now().Sub(e.lastSeen) > m.ttl {
		delete(m.sessions, token)
		return nil, false
	}
	return e, true
}
