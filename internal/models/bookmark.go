package models

import "time"

// Bookmark is a private saved-post marker at users/{uid}/bookmarks/{postId}
type Bookmark struct {
	ID        string    `json:"id" firestore:"id" bson:"id"`
	CreatedAt time.Time `json:"createdAt" firestore:"createdAt" bson:"createdAt"`
}
