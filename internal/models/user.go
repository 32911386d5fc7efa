package models

import (
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// User is a profile document in the users collection. Followers and Following
// are membership sets; the totals are maintained incrementally.
type User struct {
	ID          string     `json:"id" firestore:"-" bson:"-"`
	Name        string     `json:"name" firestore:"name" bson:"name"`
	Username    string     `json:"username" firestore:"username" bson:"username"`
	PhotoURL    string     `json:"photoURL,omitempty" firestore:"photoURL,omitempty" bson:"photoURL,omitempty"`
	Verified    bool       `json:"verified" firestore:"verified" bson:"verified"`
	Followers   []string   `json:"followers" firestore:"followers" bson:"followers"`
	Following   []string   `json:"following" firestore:"following" bson:"following"`
	TotalPosts  int64      `json:"totalPosts" firestore:"totalPosts" bson:"totalPosts"`
	TotalMedia  int64      `json:"totalMedia" firestore:"totalMedia" bson:"totalMedia"`
	PinnedPost  *string    `json:"pinnedPost" firestore:"pinnedPost" bson:"pinnedPost"`
	CreatedAt   time.Time  `json:"createdAt" firestore:"createdAt" bson:"createdAt"`
	UpdatedAt   *time.Time `json:"updatedAt" firestore:"updatedAt" bson:"updatedAt"`
}

// UserCompact is the author profile attached to enriched read results.
type UserCompact struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
	PhotoURL string `json:"photoURL,omitempty"`
	Verified bool   `json:"verified"`
}

// ToCompact converts User to UserCompact
func (u *User) ToCompact() UserCompact {
	return UserCompact{
		ID:       u.ID,
		Name:     u.Name,
		Username: u.Username,
		PhotoURL: u.PhotoURL,
		Verified: u.Verified,
	}
}

// UserStats is the per-user engagement document at users/{id}/stats/stats.
type UserStats struct {
	Likes     []string   `json:"likes" firestore:"likes" bson:"likes"`
	Reshares  []string   `json:"reshares" firestore:"reshares" bson:"reshares"`
	UpdatedAt *time.Time `json:"updatedAt" firestore:"updatedAt" bson:"updatedAt"`
}

// JwtCustomClaims are custom claims extending standard jwt.RegisteredClaims
type JwtCustomClaims struct {
	UID   string `json:"uid"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}
