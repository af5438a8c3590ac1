package model

import (
	"slices"
	"time"
)

const (
	UserStatusActive = "active"
	UserStatusBanned = "banned"
)

type User struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Email           string    `json:"email"`
	PasswordHash    string    `json:"passwordHash,omitempty"`
	Avatar          string    `json:"avatar"`
	Role            string    `json:"role"`
	Status          string    `json:"status"`
	Bio             string    `json:"bio,omitempty"`
	Specialty       string    `json:"specialty,omitempty"`
	Verified        bool      `json:"verified"`
	Balance         int64     `json:"balance"`
	Followers       int       `json:"followers"`
	Following       int       `json:"following"`
	LikedArtworkIDs []string  `json:"likedArtworkIds"`
	CreatedAt       time.Time `json:"createdAt"`
}

func (u User) GetID() string { return u.ID }

// Public strips credentials before a user leaves the service boundary.
func (u User) Public() User {
	u.PasswordHash = ""
	return u
}

// HasLiked reports whether artworkID is in the user's liked-set.
func (u User) HasLiked(artworkID string) bool {
	return slices.Contains(u.LikedArtworkIDs, artworkID)
}

type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (s Session) GetID() string { return s.ID }

// Expired reports whether the session is past its expiry at now.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}
