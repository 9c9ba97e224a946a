package mongo

import (
	"time"

	"github.com/sakif/auth-service/internal/model"
)

// userDocument is the stored shape of a model.User.
type userDocument struct {
	ID           string     `bson:"_id"`
	Email        string     `bson:"email"`
	Username     string     `bson:"username"`
	PasswordHash string     `bson:"password_hash,omitempty"`
	FederatedID  string     `bson:"federated_id,omitempty"`
	IsVerified   bool       `bson:"is_verified"`
	OTPCode      string     `bson:"otp_code,omitempty"`
	OTPExpiresAt *time.Time `bson:"otp_expires_at,omitempty"`
	CreatedAt    time.Time  `bson:"created_at"`
	UpdatedAt    time.Time  `bson:"updated_at"`
}

func toDocument(u *model.User) *userDocument {
	doc := &userDocument{
		ID:           u.ID,
		Email:        u.Email,
		Username:     u.Username,
		PasswordHash: u.PasswordHash,
		FederatedID:  u.FederatedID,
		IsVerified:   u.IsVerified,
		OTPCode:      u.OTPCode,
		CreatedAt:    u.CreatedAt.UTC(),
		UpdatedAt:    u.UpdatedAt.UTC(),
	}
	if u.OTPExpiresAt != nil {
		t := u.OTPExpiresAt.UTC()
		doc.OTPExpiresAt = &t
	}
	return doc
}

func (d *userDocument) toModel() *model.User {
	u := &model.User{
		ID:           d.ID,
		Email:        d.Email,
		Username:     d.Username,
		PasswordHash: d.PasswordHash,
		FederatedID:  d.FederatedID,
		IsVerified:   d.IsVerified,
		OTPCode:      d.OTPCode,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
	if d.OTPExpiresAt != nil {
		t := *d.OTPExpiresAt
		u.OTPExpiresAt = &t
	}
	return u
}
