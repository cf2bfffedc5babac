package identity

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store used by tests and local
// development. It mirrors the repository's semantics, including
// treating expired sessions as absent.
type MemoryStore struct {
	mu       sync.Mutex
	users    map[string]*User
	sessions map[string]*Session
	accounts map[string]*Account
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[string]*User),
		sessions: make(map[string]*Session),
		accounts: make(map[string]*Account),
	}
}

var _ Store = (*MemoryStore)(nil)

// FindUserByID fetches a user by id.
func (m *MemoryStore) FindUserByID(ctx context.Context, id string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *u
	return &copied, nil
}

// FindUserByEmail fetches a user by email.
func (m *MemoryStore) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			copied := *u
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

// CreateUser inserts a user, generating an id when absent.
func (m *MemoryStore) CreateUser(ctx context.Context, user User) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if strings.EqualFold(existing.Email, user.Email) {
			return nil, ErrDuplicate
		}
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	m.users[user.ID] = &user
	copied := user
	return &copied, nil
}

// UpdateUser applies the patch and returns the updated record.
func (m *MemoryStore) UpdateUser(ctx context.Context, id string, patch UserPatch) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	if patch.Email != nil {
		u.Email = *patch.Email
	}
	if patch.Name != nil {
		u.Name = *patch.Name
	}
	if patch.Role != nil {
		u.Role = *patch.Role
	}
	if patch.Banned != nil {
		u.Banned = *patch.Banned
	}
	if patch.BanReason != nil {
		u.BanReason = *patch.BanReason
	}
	if patch.BanExpires != nil {
		u.BanExpires = *patch.BanExpires
	}
	u.UpdatedAt = time.Now()
	copied := *u
	return &copied, nil
}

// DeleteUser removes a user by id.
func (m *MemoryStore) DeleteUser(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return ErrNotFound
	}
	delete(m.users, id)
	return nil
}

// LinkAccount stores a credential account row.
func (m *MemoryStore) LinkAccount(ctx context.Context, account Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	account.CreatedAt = time.Now()
	m.accounts[account.ID] = &account
	return nil
}

// FindCredentialAccount fetches the user's password account row.
func (m *MemoryStore) FindCredentialAccount(ctx context.Context, userID string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.UserID == userID && a.ProviderID == ProviderCredential {
			copied := *a
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

// UpdateCredentialPassword replaces the user's password hash.
func (m *MemoryStore) UpdateCredentialPassword(ctx context.Context, userID, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.UserID == userID && a.ProviderID == ProviderCredential {
			a.PasswordHash = passwordHash
			return nil
		}
	}
	return ErrNotFound
}

// FindSession fetches a live session by token.
func (m *MemoryStore) FindSession(ctx context.Context, token string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[token]
	if !ok || !time.Now().Before(s.ExpiresAt) {
		return nil, ErrNotFound
	}
	copied := *s
	return &copied, nil
}

// CreateSession persists a session, generating a token when absent.
func (m *MemoryStore) CreateSession(ctx context.Context, session Session) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if session.Token == "" {
		session.Token = uuid.NewString()
	}
	session.CreatedAt = time.Now()
	m.sessions[session.Token] = &session
	copied := session
	return &copied, nil
}

// DeleteSession removes a session; deleting an absent one is a no-op.
func (m *MemoryStore) DeleteSession(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, token)
	return nil
}

// DeleteUserSessions removes every session owned by the user.
func (m *MemoryStore) DeleteUserSessions(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for token, s := range m.sessions {
		if s.UserID == userID {
			delete(m.sessions, token)
		}
	}
	return nil
}

// ListSessions returns the user's live sessions, newest first.
func (m *MemoryStore) ListSessions(ctx context.Context, userID string) ([]Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sessions []Session
	now := time.Now()
	for _, s := range m.sessions {
		if s.UserID == userID && now.Before(s.ExpiresAt) {
			sessions = append(sessions, *s)
		}
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})
	return sessions, nil
}

// ListUsers returns a page of users per the query.
func (m *MemoryStore) ListUsers(ctx context.Context, query ListQuery) ([]User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	users := m.filtered(query)
	sortUsers(users, query)
	if query.Offset > 0 {
		if query.Offset >= len(users) {
			return nil, nil
		}
		users = users[query.Offset:]
	}
	if query.Limit > 0 && query.Limit < len(users) {
		users = users[:query.Limit]
	}
	return users, nil
}

// CountUsers returns the total matching the filter.
func (m *MemoryStore) CountUsers(ctx context.Context, query ListQuery) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.filtered(query)), nil
}

func (m *MemoryStore) filtered(query ListQuery) []User {
	var users []User
	for _, u := range m.users {
		if matchesSearch(u, query.Search) {
			users = append(users, *u)
		}
	}
	return users
}

func matchesSearch(u *User, search *SearchFilter) bool {
	if search == nil || search.Value == "" {
		return true
	}
	value := strings.ToLower(u.Email)
	if search.Field == "name" {
		value = strings.ToLower(u.Name)
	}
	needle := strings.ToLower(search.Value)
	switch search.Operator {
	case "starts_with":
		return strings.HasPrefix(value, needle)
	case "ends_with":
		return strings.HasSuffix(value, needle)
	default:
		return strings.Contains(value, needle)
	}
}

func sortUsers(users []User, query ListQuery) {
	desc := strings.EqualFold(query.SortDir, "desc")
	sort.Slice(users, func(i, j int) bool {
		var less bool
		switch query.SortBy {
		case "email":
			less = users[i].Email < users[j].Email
		case "name":
			less = users[i].Name < users[j].Name
		case "role":
			less = users[i].Role < users[j].Role
		default:
			less = users[i].CreatedAt.Before(users[j].CreatedAt)
		}
		if desc {
			return !less
		}
		return less
	})
}
