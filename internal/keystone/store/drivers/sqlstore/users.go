package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/aussiebroadwan/keystone/internal/keystone/domain"
	"github.com/aussiebroadwan/keystone/internal/keystone/store"
	"github.com/jmoiron/sqlx"
)

const userColumns = `id, email, name, password_hash, role,
	access_token_fingerprint, access_token_expires_at,
	email_verified_at, verification_token_hash, verification_expires_at,
	reset_token_hash, reset_expires_at,
	failed_logins, last_login_at, last_active_at,
	deleted_at, created_at, updated_at`

type userRow struct {
	ID                     string       `db:"id"`
	Email                  string       `db:"email"`
	Name                   string       `db:"name"`
	PasswordHash           string       `db:"password_hash"`
	Role                   string       `db:"role"`
	AccessTokenFingerprint string       `db:"access_token_fingerprint"`
	AccessTokenExpiresAt   sql.NullTime `db:"access_token_expires_at"`
	EmailVerifiedAt        sql.NullTime `db:"email_verified_at"`
	VerificationTokenHash  string       `db:"verification_token_hash"`
	VerificationExpiresAt  sql.NullTime `db:"verification_expires_at"`
	ResetTokenHash         string       `db:"reset_token_hash"`
	ResetExpiresAt         sql.NullTime `db:"reset_expires_at"`
	FailedLogins           int          `db:"failed_logins"`
	LastLoginAt            sql.NullTime `db:"last_login_at"`
	LastActiveAt           sql.NullTime `db:"last_active_at"`
	DeletedAt              sql.NullTime `db:"deleted_at"`
	CreatedAt              time.Time    `db:"created_at"`
	UpdatedAt              time.Time    `db:"updated_at"`
}

func (r userRow) toDomain() domain.User {
	return domain.User{
		ID:                     r.ID,
		Email:                  r.Email,
		Name:                   r.Name,
		PasswordHash:           r.PasswordHash,
		Role:                   domain.Role(r.Role),
		AccessTokenFingerprint: r.AccessTokenFingerprint,
		AccessTokenExpiresAt:   timePtr(r.AccessTokenExpiresAt),
		EmailVerifiedAt:        timePtr(r.EmailVerifiedAt),
		VerificationTokenHash:  r.VerificationTokenHash,
		VerificationExpiresAt:  timePtr(r.VerificationExpiresAt),
		ResetTokenHash:         r.ResetTokenHash,
		ResetExpiresAt:         timePtr(r.ResetExpiresAt),
		FailedLogins:           r.FailedLogins,
		LastLoginAt:            timePtr(r.LastLoginAt),
		LastActiveAt:           timePtr(r.LastActiveAt),
		DeletedAt:              timePtr(r.DeletedAt),
		CreatedAt:              r.CreatedAt.UTC(),
		UpdatedAt:              r.UpdatedAt.UTC(),
	}
}

type usersRepo struct {
	db sqlx.ExtContext
}

// getOne runs a single-row query returning userColumns.
func (r *usersRepo) getOne(ctx context.Context, query string, args ...any) (domain.User, error) {
	var row userRow
	if err := sqlx.GetContext(ctx, r.db, &row, r.db.Rebind(query), args...); err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return row.toDomain(), nil
}

// exec runs an UPDATE that must touch exactly one live row.
func (r *usersRepo) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = ? AND deleted_at IS NULL`, id)
}

func (r *usersRepo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = ? AND deleted_at IS NULL`, email)
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	const q = `INSERT INTO users (
		id, email, name, password_hash, role,
		email_verified_at, verification_token_hash, verification_expires_at,
		created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, r.db.Rebind(q),
		u.ID, u.Email, u.Name, u.PasswordHash, string(u.Role),
		nullTime(u.EmailVerifiedAt), u.VerificationTokenHash, nullTime(u.VerificationExpiresAt),
		u.CreatedAt.UTC(), u.UpdatedAt.UTC(),
	)
	if err != nil {
		return mapConflict(err)
	}
	return nil
}

func (r *usersRepo) ListUsers(ctx context.Context, limit, offset int) (domain.UserPage, error) {
	total, err := r.CountUsers(ctx)
	if err != nil {
		return domain.UserPage{}, err
	}

	var rows []userRow
	q := `SELECT ` + userColumns + ` FROM users WHERE deleted_at IS NULL
		ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	if err := sqlx.SelectContext(ctx, r.db, &rows, r.db.Rebind(q), limit, offset); err != nil {
		return domain.UserPage{}, err
	}

	page := domain.UserPage{
		Users:  make([]domain.User, 0, len(rows)),
		Total:  total,
		Limit:  limit,
		Offset: offset,
	}
	for _, row := range rows {
		page.Users = append(page.Users, row.toDomain())
	}
	return page, nil
}

func (r *usersRepo) CountUsers(ctx context.Context) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, r.db, &n, `SELECT COUNT(*) FROM users WHERE deleted_at IS NULL`)
	return n, err
}

func (r *usersRepo) UpdateUser(ctx context.Context, id string, upd domain.UserUpdate, at time.Time) (domain.User, error) {
	sets := []string{"updated_at = ?"}
	args := []any{at.UTC()}
	if upd.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *upd.Name)
	}
	if upd.Role != nil {
		// SET expressions read the old row, so the CASE sees the previous role.
		sets = append(sets,
			"access_token_fingerprint = CASE WHEN role <> ? THEN '' ELSE access_token_fingerprint END",
			"access_token_expires_at = CASE WHEN role <> ? THEN NULL ELSE access_token_expires_at END",
			"role = ?",
		)
		role := string(*upd.Role)
		args = append(args, role, role, role)
	}
	args = append(args, id)

	q := fmt.Sprintf(`UPDATE users SET %s WHERE id = ? AND deleted_at IS NULL RETURNING %s`,
		strings.Join(sets, ", "), userColumns)
	return r.getOne(ctx, q, args...)
}

func (r *usersRepo) SoftDeleteUser(ctx context.Context, id string, at time.Time) error {
	return r.exec(ctx, `UPDATE users SET
			deleted_at = ?, updated_at = ?,
			access_token_fingerprint = '', access_token_expires_at = NULL
		WHERE id = ? AND deleted_at IS NULL`,
		at.UTC(), at.UTC(), id)
}

func (r *usersRepo) UpdateAuthFingerprint(ctx context.Context, id string, fp domain.AuthFingerprint) (domain.User, error) {
	return r.getOne(ctx, `UPDATE users SET
			access_token_fingerprint = ?, access_token_expires_at = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
		RETURNING `+userColumns,
		fp.Fingerprint, fp.ExpiresAt.UTC(), fp.IssuedAt.UTC(), id)
}

func (r *usersRepo) ClearAuthFingerprint(ctx context.Context, id string, at time.Time) (domain.User, error) {
	return r.getOne(ctx, `UPDATE users SET
			access_token_fingerprint = '', access_token_expires_at = NULL, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
		RETURNING `+userColumns,
		at.UTC(), id)
}

func (r *usersRepo) RecordLoginSuccess(ctx context.Context, id string, at time.Time) error {
	return r.exec(ctx, `UPDATE users SET
			failed_logins = 0, last_login_at = ?, last_active_at = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL`,
		at.UTC(), at.UTC(), at.UTC(), id)
}

func (r *usersRepo) IncrementFailedLogins(ctx context.Context, id string, at time.Time) (int, error) {
	var n int
	q := `UPDATE users SET failed_logins = failed_logins + 1, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL RETURNING failed_logins`
	if err := sqlx.GetContext(ctx, r.db, &n, r.db.Rebind(q), at.UTC(), id); err != nil {
		return 0, mapNotFound(err)
	}
	return n, nil
}

func (r *usersRepo) TouchLastActive(ctx context.Context, id string, at time.Time) error {
	return r.exec(ctx, `UPDATE users SET last_active_at = ? WHERE id = ? AND deleted_at IS NULL`, at.UTC(), id)
}

func (r *usersRepo) SetVerificationToken(ctx context.Context, id, tokenHash string, expiresAt, at time.Time) error {
	return r.exec(ctx, `UPDATE users SET
			verification_token_hash = ?, verification_expires_at = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL`,
		tokenHash, expiresAt.UTC(), at.UTC(), id)
}

func (r *usersRepo) VerifyEmail(ctx context.Context, tokenHash string, at time.Time) (domain.User, error) {
	if tokenHash == "" {
		return domain.User{}, store.ErrNotFound
	}
	return r.getOne(ctx, `UPDATE users SET
			email_verified_at = ?, verification_token_hash = '', verification_expires_at = NULL, updated_at = ?
		WHERE verification_token_hash = ? AND verification_expires_at > ? AND deleted_at IS NULL
		RETURNING `+userColumns,
		at.UTC(), at.UTC(), tokenHash, at.UTC())
}

func (r *usersRepo) SetResetToken(ctx context.Context, id, tokenHash string, expiresAt, at time.Time) error {
	return r.exec(ctx, `UPDATE users SET
			reset_token_hash = ?, reset_expires_at = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL`,
		tokenHash, expiresAt.UTC(), at.UTC(), id)
}

func (r *usersRepo) ResetPassword(ctx context.Context, tokenHash, passwordHash string, at time.Time) (domain.User, error) {
	if tokenHash == "" {
		return domain.User{}, store.ErrNotFound
	}
	return r.getOne(ctx, `UPDATE users SET
			password_hash = ?, reset_token_hash = '', reset_expires_at = NULL,
			failed_logins = 0,
			access_token_fingerprint = '', access_token_expires_at = NULL,
			updated_at = ?
		WHERE reset_token_hash = ? AND reset_expires_at > ? AND deleted_at IS NULL
		RETURNING `+userColumns,
		passwordHash, at.UTC(), tokenHash, at.UTC())
}

func (r *usersRepo) ClearExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	now = now.UTC()
	var total int64

	for _, q := range []string{
		`UPDATE users SET reset_token_hash = '', reset_expires_at = NULL
			WHERE reset_expires_at IS NOT NULL AND reset_expires_at <= ?`,
		`UPDATE users SET verification_token_hash = '', verification_expires_at = NULL
			WHERE verification_expires_at IS NOT NULL AND verification_expires_at <= ?`,
		`UPDATE users SET access_token_fingerprint = '', access_token_expires_at = NULL
			WHERE access_token_expires_at IS NOT NULL AND access_token_expires_at <= ?`,
	} {
		res, err := r.db.ExecContext(ctx, r.db.Rebind(q), now)
		if err != nil {
			return total, err
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}
