// Package sqlstore holds the row mapping shared by the database/sql stores
// (sqlite and postgres). Both keep the same users table shape; only the
// placeholders and the driver error codes differ, and those stay in the
// store packages.
//
// OPTIONAL COLUMNS:
// model.User uses "" and nil for absent values. In SQL they are NULL, which
// is what lets the unique index on federated_id ignore accounts without one.
package sqlstore

import (
	"database/sql"
	"time"

	"github.com/sakif/auth-service/internal/model"
)

// UserColumns lists the users table columns in the order ScanUser reads them.
const UserColumns = `id, email, username, password_hash, federated_id, is_verified,
	otp_code, otp_expires_at, created_at, updated_at`

// Scanner is satisfied by *sql.Row and *sql.Rows.
type Scanner interface {
	Scan(dest ...any) error
}

// ScanUser reads one row selected with UserColumns.
// sql.ErrNoRows is returned unchanged so callers can map it to NotFound.
func ScanUser(row Scanner) (*model.User, error) {
	var (
		u            model.User
		passwordHash sql.NullString
		federatedID  sql.NullString
		otpCode      sql.NullString
		otpExpiresAt sql.NullTime
	)

	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.Username,
		&passwordHash,
		&federatedID,
		&u.IsVerified,
		&otpCode,
		&otpExpiresAt,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	u.PasswordHash = passwordHash.String
	u.FederatedID = federatedID.String
	u.OTPCode = otpCode.String
	if otpExpiresAt.Valid {
		t := otpExpiresAt.Time
		u.OTPExpiresAt = &t
	}
	return &u, nil
}

// NullString stores "" as NULL.
func NullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// NullTime stores nil as NULL and everything else in UTC.
func NullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
