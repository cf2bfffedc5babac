package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence for the identity
// store.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Store = (*Repository)(nil)

const userColumns = `id, email, name, role, banned, ban_reason, ban_expires, created_at, updated_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	var banReason *string
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.Banned, &banReason, &u.BanExpires, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if banReason != nil {
		u.BanReason = *banReason
	}
	return &u, nil
}

// FindUserByID fetches a user by primary key.
func (r *Repository) FindUserByID(ctx context.Context, id string) (*User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// FindUserByEmail fetches a user by email.
func (r *Repository) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return scanUser(row)
}

// CreateUser inserts a new user record.
func (r *Repository) CreateUser(ctx context.Context, user User) (*User, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO users (id, email, name, role, banned, ban_reason, ban_expires, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, NOW(), NOW())
		RETURNING `+userColumns,
		user.ID, user.Email, user.Name, user.Role, user.Banned, user.BanReason, user.BanExpires)
	created, err := scanUser(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return created, nil
}

// UpdateUser applies the patch and returns the updated record.
func (r *Repository) UpdateUser(ctx context.Context, id string, patch UserPatch) (*User, error) {
	sets := make([]string, 0, 7)
	args := make([]any, 0, 8)
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if patch.Email != nil {
		add("email", *patch.Email)
	}
	if patch.Name != nil {
		add("name", *patch.Name)
	}
	if patch.Role != nil {
		add("role", *patch.Role)
	}
	if patch.Banned != nil {
		add("banned", *patch.Banned)
	}
	if patch.BanReason != nil {
		add("ban_reason", nullifEmpty(*patch.BanReason))
	}
	if patch.BanExpires != nil {
		add("ban_expires", *patch.BanExpires)
	}
	if len(sets) == 0 {
		return r.FindUserByID(ctx, id)
	}
	sets = append(sets, "updated_at = NOW()")
	args = append(args, id)
	query := fmt.Sprintf(`UPDATE users SET %s WHERE id = $%d RETURNING %s`,
		strings.Join(sets, ", "), len(args), userColumns)
	return scanUser(r.pool.QueryRow(ctx, query, args...))
}

// DeleteUser removes a user by id. Returns ErrNotFound when nothing
// was deleted.
func (r *Repository) DeleteUser(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// LinkAccount attaches a credential account row to a user.
func (r *Repository) LinkAccount(ctx context.Context, account Account) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO accounts (id, user_id, provider_id, password_hash, created_at)
		VALUES ($1, $2, $3, $4, NOW())`,
		account.ID, account.UserID, account.ProviderID, account.PasswordHash)
	return err
}

// FindCredentialAccount fetches the user's password account row.
func (r *Repository) FindCredentialAccount(ctx context.Context, userID string) (*Account, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, user_id, provider_id, COALESCE(password_hash, ''), created_at
		FROM accounts WHERE user_id = $1 AND provider_id = $2`, userID, ProviderCredential)
	var a Account
	if err := row.Scan(&a.ID, &a.UserID, &a.ProviderID, &a.PasswordHash, &a.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

// UpdateCredentialPassword replaces the user's password hash.
func (r *Repository) UpdateCredentialPassword(ctx context.Context, userID, passwordHash string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE accounts SET password_hash = $1 WHERE user_id = $2 AND provider_id = $3`,
		passwordHash, userID, ProviderCredential)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// FindSession fetches a live session by token. Expired rows are
// treated as absent; the background prune job removes them later.
func (r *Repository) FindSession(ctx context.Context, token string) (*Session, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT token, user_id, expires_at, COALESCE(impersonated_by, ''), ip_address, user_agent, created_at
		FROM sessions WHERE token = $1 AND expires_at > NOW()`, token)
	var s Session
	if err := row.Scan(&s.Token, &s.UserID, &s.ExpiresAt, &s.ImpersonatedBy, &s.IPAddress, &s.UserAgent, &s.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

// CreateSession persists a new session record.
func (r *Repository) CreateSession(ctx context.Context, session Session) (*Session, error) {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO sessions (token, user_id, expires_at, impersonated_by, ip_address, user_agent, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, NOW())`,
		session.Token, session.UserID, session.ExpiresAt, session.ImpersonatedBy, session.IPAddress, session.UserAgent)
	if err != nil {
		return nil, err
	}
	session.CreatedAt = time.Now()
	return &session, nil
}

// DeleteSession removes a session by token. Deleting an absent session
// is a no-op.
func (r *Repository) DeleteSession(ctx context.Context, token string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE token = $1`, token)
	return err
}

// DeleteUserSessions removes every session belonging to the user.
func (r *Repository) DeleteUserSessions(ctx context.Context, userID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID)
	return err
}

// ListSessions returns the user's live sessions, newest first.
func (r *Repository) ListSessions(ctx context.Context, userID string) ([]Session, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT token, user_id, expires_at, COALESCE(impersonated_by, ''), ip_address, user_agent, created_at
		FROM sessions WHERE user_id = $1 AND expires_at > NOW() ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var sessions []Session
	for rows.Next() {
		var s Session
		if err := rows.Scan(&s.Token, &s.UserID, &s.ExpiresAt, &s.ImpersonatedBy, &s.IPAddress, &s.UserAgent, &s.CreatedAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

// ListUsers returns a page of users per the query.
func (r *Repository) ListUsers(ctx context.Context, query ListQuery) ([]User, error) {
	where, args := buildUserFilter(query)
	sql := `SELECT ` + userColumns + ` FROM users` + where + ` ORDER BY ` + sortClause(query)
	if query.Limit > 0 {
		args = append(args, query.Limit)
		sql += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if query.Offset > 0 {
		args = append(args, query.Offset)
		sql += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

// CountUsers returns the total matching the query's filter, ignoring
// paging.
func (r *Repository) CountUsers(ctx context.Context, query ListQuery) (int, error) {
	where, args := buildUserFilter(query)
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`+where, args...).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func buildUserFilter(query ListQuery) (string, []any) {
	if query.Search == nil || query.Search.Value == "" {
		return "", nil
	}
	field := "email"
	if query.Search.Field == "name" {
		field = "name"
	}
	pattern := query.Search.Value
	switch query.Search.Operator {
	case "starts_with":
		pattern = pattern + "%"
	case "ends_with":
		pattern = "%" + pattern
	default: // contains
		pattern = "%" + pattern + "%"
	}
	return fmt.Sprintf(" WHERE %s ILIKE $1", field), []any{pattern}
}

// sortClause whitelists sortable columns; anything else falls back to
// created_at.
func sortClause(query ListQuery) string {
	column := "created_at"
	switch query.SortBy {
	case "email", "name", "role", "created_at", "updated_at":
		column = query.SortBy
	}
	dir := "ASC"
	if strings.EqualFold(query.SortDir, "desc") {
		dir = "DESC"
	}
	return column + " " + dir
}

func nullifEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
