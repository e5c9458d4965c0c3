package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"campuscms/internal/model"
)

// ErrConflict is returned when a compare-and-set update finds the row in a
// different state than the caller observed.
var ErrConflict = errors.New("record changed concurrently")

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// UserAccount bundles the identity row with its role assignment and profile
// for admin listings.
type UserAccount struct {
	User    model.User
	Role    model.Role
	Profile model.Profile
}

// CreateUserWithRole inserts the identity, its single role assignment and its
// profile in one transaction, so no account ever exists without a role.
func (s *Store) CreateUserWithRole(ctx context.Context, user model.User, role model.Role, profile model.Profile) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		INSERT INTO users (id, email, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`, user.ID, user.Email, user.PasswordHash, user.CreatedAt, user.UpdatedAt); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO role_assignments (user_id, role) VALUES ($1, $2)
	`, user.ID, role); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO profiles (user_id, display_name, department, is_active, is_verified, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, user.ID, profile.DisplayName, profile.Department, profile.IsActive, profile.IsVerified, profile.CreatedAt, profile.UpdatedAt); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (model.User, error) {
	var user model.User
	row := s.pool.QueryRow(ctx, `
		SELECT id, email, password_hash, created_at, updated_at
		FROM users
		WHERE email = $1
	`, email)
	err := row.Scan(&user.ID, &user.Email, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	return user, err
}

func (s *Store) GetUserByID(ctx context.Context, userID string) (model.User, error) {
	var user model.User
	row := s.pool.QueryRow(ctx, `
		SELECT id, email, password_hash, created_at, updated_at
		FROM users
		WHERE id = $1
	`, userID)
	err := row.Scan(&user.ID, &user.Email, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	return user, err
}

func (s *Store) GetRoleAssignment(ctx context.Context, userID string) (model.RoleAssignment, error) {
	assignment := model.RoleAssignment{UserID: userID}
	row := s.pool.QueryRow(ctx, `SELECT role FROM role_assignments WHERE user_id = $1`, userID)
	err := row.Scan(&assignment.Role)
	return assignment, err
}

// GetActor resolves the per-request actor from the role store. Handlers call
// this on every request instead of trusting token claims.
func (s *Store) GetActor(ctx context.Context, userID string) (model.Actor, error) {
	actor := model.Actor{UserID: userID}
	row := s.pool.QueryRow(ctx, `
		SELECT r.role, p.is_active, p.is_verified
		FROM role_assignments r
		JOIN profiles p ON p.user_id = r.user_id
		WHERE r.user_id = $1
	`, userID)
	err := row.Scan(&actor.Role, &actor.IsActive, &actor.IsVerified)
	return actor, err
}

func (s *Store) GetProfile(ctx context.Context, userID string) (model.Profile, error) {
	profile := model.Profile{UserID: userID}
	row := s.pool.QueryRow(ctx, `
		SELECT display_name, department, is_active, is_verified, created_at, updated_at
		FROM profiles
		WHERE user_id = $1
	`, userID)
	err := row.Scan(&profile.DisplayName, &profile.Department, &profile.IsActive, &profile.IsVerified, &profile.CreatedAt, &profile.UpdatedAt)
	return profile, err
}

func (s *Store) UpdateRole(ctx context.Context, userID string, role model.Role) error {
	tag, err := s.pool.Exec(ctx, `UPDATE role_assignments SET role = $1 WHERE user_id = $2`, role, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

type ProfileUpdate struct {
	DisplayName *string
	Department  *string
	IsActive    *bool
	IsVerified  *bool
}

func (s *Store) UpdateProfile(ctx context.Context, userID string, update ProfileUpdate, now time.Time) (model.Profile, error) {
	_, err := s.pool.Exec(ctx, `
		UPDATE profiles
		SET display_name = COALESCE($1, display_name),
		    department   = COALESCE($2, department),
		    is_active    = COALESCE($3, is_active),
		    is_verified  = COALESCE($4, is_verified),
		    updated_at   = $5
		WHERE user_id = $6
	`, update.DisplayName, update.Department, update.IsActive, update.IsVerified, now, userID)
	if err != nil {
		return model.Profile{}, err
	}
	return s.GetProfile(ctx, userID)
}

func (s *Store) ListUsers(ctx context.Context, limit, offset int) ([]UserAccount, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT u.id, u.email, u.created_at, u.updated_at,
		       r.role,
		       p.display_name, p.department, p.is_active, p.is_verified
		FROM users u
		JOIN role_assignments r ON r.user_id = u.id
		JOIN profiles p ON p.user_id = u.id
		ORDER BY u.created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	accounts := make([]UserAccount, 0, limit)
	for rows.Next() {
		var account UserAccount
		if err := rows.Scan(
			&account.User.ID,
			&account.User.Email,
			&account.User.CreatedAt,
			&account.User.UpdatedAt,
			&account.Role,
			&account.Profile.DisplayName,
			&account.Profile.Department,
			&account.Profile.IsActive,
			&account.Profile.IsVerified,
		); err != nil {
			return nil, 0, err
		}
		account.Profile.UserID = account.User.ID
		accounts = append(accounts, account)
	}
	return accounts, total, rows.Err()
}

func (s *Store) DeleteUser(ctx context.Context, userID string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, userID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) EnsureDepartment(ctx context.Context, id, name string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO departments (id, name) VALUES ($1, $2)
		ON CONFLICT (name) DO NOTHING
	`, id, name)
	return err
}

func (s *Store) CreateRefreshSession(ctx context.Context, session model.RefreshSession) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO refresh_token_sessions (id, user_id, token_hash, created_at, expires_at, revoked_at, user_agent, ip_address)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, session.ID, session.UserID, session.TokenHash, session.CreatedAt, session.ExpiresAt, session.RevokedAt, session.UserAgent, session.IPAddress)
	return err
}

func (s *Store) GetRefreshSession(ctx context.Context, tokenHash string) (model.RefreshSession, error) {
	var session model.RefreshSession
	row := s.pool.QueryRow(ctx, `
		SELECT id, user_id, token_hash, created_at, expires_at, revoked_at, user_agent, ip_address
		FROM refresh_token_sessions
		WHERE token_hash = $1
	`, tokenHash)
	err := row.Scan(&session.ID, &session.UserID, &session.TokenHash, &session.CreatedAt, &session.ExpiresAt, &session.RevokedAt, &session.UserAgent, &session.IPAddress)
	return session, err
}

func (s *Store) RevokeRefreshSession(ctx context.Context, sessionID string, revokedAt time.Time) error {
	_, err := s.pool.Exec(ctx, `UPDATE refresh_token_sessions SET revoked_at = $1 WHERE id = $2`, revokedAt, sessionID)
	return err
}

func (s *Store) RevokeRefreshSessionsByUser(ctx context.Context, userID string, revokedAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE refresh_token_sessions
		SET revoked_at = $1
		WHERE user_id = $2 AND revoked_at IS NULL
	`, revokedAt, userID)
	return err
}
