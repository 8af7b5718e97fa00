package token

import (
	"strconv"
	"sync"
	"time"

	"classboard/pkg/types"
)

// MemStore is the in-memory Store implementation. It backs tests and
// environments where durable state is undesirable; the contract matches
// SQLiteStore exactly.
type MemStore struct {
	mu       sync.Mutex
	entries  map[string]string
	duration time.Duration
	now      func() time.Time
}

var _ Store = (*MemStore)(nil)

// NewMemStore returns an empty in-memory store with the given fixed
// token lifetime.
func NewMemStore(duration time.Duration) *MemStore {
	return &MemStore{
		entries:  make(map[string]string),
		duration: duration,
		now:      time.Now,
	}
}

// SetClock overrides the store's notion of now. Test hook.
func (s *MemStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemStore) SetToken(tok string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[keyAccessToken] = tok
	s.entries[keyTokenExpiry] = strconv.FormatInt(s.now().Add(s.duration).UnixMilli(), 10)
	return nil
}

func (s *MemStore) Token() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tok := s.entries[keyAccessToken]
	rawExpiry := s.entries[keyTokenExpiry]
	if tok == "" || rawExpiry == "" {
		s.clearLocked()
		return "", nil
	}

	expiry, err := strconv.ParseInt(rawExpiry, 10, 64)
	if err != nil || expired(expiry, s.now()) {
		s.clearLocked()
		return "", nil
	}

	return tok, nil
}

func (s *MemStore) SetRole(role types.Role) error {
	if !role.Valid() {
		return types.ErrInvalidRole
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[keyUserType] = string(role)
	return nil
}

func (s *MemStore) Role() (types.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return types.Role(s.entries[keyUserType]), nil
}

func (s *MemStore) IsAuthenticated() bool {
	tok, err := s.Token()
	return err == nil && tok != ""
}

func (s *MemStore) RemainingTime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiry, err := strconv.ParseInt(s.entries[keyTokenExpiry], 10, 64)
	if err != nil {
		return 0
	}
	remaining := time.UnixMilli(expiry).Sub(s.now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (s *MemStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked()
	return nil
}

func (s *MemStore) clearLocked() {
	delete(s.entries, keyAccessToken)
	delete(s.entries, keyTokenExpiry)
	delete(s.entries, keyUserType)
}
