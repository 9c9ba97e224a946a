package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/auth-service/internal/apperror"
	"github.com/sakif/auth-service/internal/model"
	"github.com/sakif/auth-service/internal/repository"
	"github.com/sakif/auth-service/internal/repository/sqlstore"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

// Create inserts a new user. ID and timestamps are generated here.
// A duplicate email or federated id (SQLSTATE 23505) yields apperror.ErrConflict.
func (db *DB) Create(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	user.ID = xid.New().String()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (`+sqlstore.UserColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		user.ID,
		user.Email,
		user.Username,
		sqlstore.NullString(user.PasswordHash),
		sqlstore.NullString(user.FederatedID),
		user.IsVerified,
		sqlstore.NullString(user.OTPCode),
		sqlstore.NullTime(user.OTPExpiresAt),
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user", user.Email)
		}
		return fmt.Errorf("postgres: inserting user %s: %w", user.ID, err)
	}
	return nil
}

// GetByID retrieves a user by their internal ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (db *DB) GetByID(ctx context.Context, id string) (*model.User, error) {
	return db.getOne(ctx, "id", id)
}

// GetByEmail retrieves a user by email. The caller normalises the address.
func (db *DB) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return db.getOne(ctx, "email", email)
}

// GetByFederatedID retrieves the user linked to an external identity.
// An empty id never matches: NULL federated ids are not comparable.
func (db *DB) GetByFederatedID(ctx context.Context, federatedID string) (*model.User, error) {
	if federatedID == "" {
		return nil, apperror.NotFound("user", federatedID)
	}
	return db.getOne(ctx, "federated_id", federatedID)
}

// getOne runs a single-row lookup on one of the indexed columns.
// column is always a constant from this file, never user input.
func (db *DB) getOne(ctx context.Context, column, value string) (*model.User, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+sqlstore.UserColumns+` FROM users WHERE `+column+` = $1`,
		value,
	)

	u, err := sqlstore.ScanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", value)
		}
		return nil, fmt.Errorf("postgres: getting user by %s: %w", column, err)
	}
	return u, nil
}

// Update writes all mutable fields. ID and CreatedAt never change.
// Returns apperror.ErrNotFound if the row is gone.
func (db *DB) Update(ctx context.Context, user *model.User) error {
	user.UpdatedAt = time.Now().UTC()

	result, err := db.conn.ExecContext(ctx,
		`UPDATE users
		 SET email = $1, username = $2, password_hash = $3, federated_id = $4, is_verified = $5,
		     otp_code = $6, otp_expires_at = $7, updated_at = $8
		 WHERE id = $9`,
		user.Email,
		user.Username,
		sqlstore.NullString(user.PasswordHash),
		sqlstore.NullString(user.FederatedID),
		user.IsVerified,
		sqlstore.NullString(user.OTPCode),
		sqlstore.NullTime(user.OTPExpiresAt),
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user", user.ID)
		}
		return fmt.Errorf("postgres: updating user %s: %w", user.ID, err)
	}
	return expectOneRow(result, user.ID)
}

// Delete removes a user by ID.
func (db *DB) Delete(ctx context.Context, id string) error {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: deleting user %s: %w", id, err)
	}
	return expectOneRow(result, id)
}

// expectOneRow maps "no row touched" to apperror.ErrNotFound.
func expectOneRow(result sql.Result, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: checking rows affected: %w", err)
	}
	if rows == 0 {
		return apperror.NotFound("user", id)
	}
	return nil
}
