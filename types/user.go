package types

import "time"

// User represents an account in the system. Every account doubles as a
// channel that other users can subscribe to.
type User struct {
	// ID is the unique identifier of the user.
	ID int `json:"id" db:"id"`

	// Username is the unique login name chosen by the user.
	// Stored lowercase; usable interchangeably with Email at login.
	Username string `json:"username" db:"username"`

	// Email is the user's email address. Stored lowercase, unique.
	Email string `json:"email" db:"email"`

	// FullName is the user's display name.
	FullName string `json:"full_name" db:"full_name"`

	// AvatarURL points at the user's avatar in object storage.
	AvatarURL string `json:"avatar_url" db:"avatar_url"`

	// CoverImageURL points at the user's cover image in object storage.
	// Empty when the user never uploaded one.
	CoverImageURL string `json:"cover_image_url,omitempty" db:"cover_image_url"`

	// PasswordHash stores the bcrypt digest of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// RefreshToken is the single refresh token currently accepted for
	// this user. Rotated on every refresh, cleared on logout. Never
	// exposed in API responses.
	RefreshToken string `json:"-" db:"refresh_token"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Sanitized returns a copy with credential material stripped, safe to
// hand to any caller regardless of how it gets serialized.
func (u User) Sanitized() User {
	u.PasswordHash = ""
	u.RefreshToken = ""
	return u
}
