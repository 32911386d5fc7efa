package models

import (
	"time"
)

// Post is a content entity stored in the current or the legacy posts namespace.
type Post struct {
	ID          string       `json:"id" firestore:"-" bson:"-"`
	Text        string       `json:"text" firestore:"text" bson:"text"`
	Images      []Media      `json:"images,omitempty" firestore:"images,omitempty" bson:"images,omitempty"`
	CreatedBy   string       `json:"createdBy" firestore:"createdBy" bson:"createdBy"`
	Parent      *ParentRef   `json:"parent,omitempty" firestore:"parent,omitempty" bson:"parent,omitempty"`
	LikedBy     []string     `json:"likedBy" firestore:"likedBy" bson:"likedBy"`
	ResharedBy  []string     `json:"resharedBy" firestore:"resharedBy" bson:"resharedBy"`
	ReplyCount  int64        `json:"replyCount" firestore:"replyCount" bson:"replyCount"`
	Source      *PostSource  `json:"source,omitempty" firestore:"source,omitempty" bson:"source,omitempty"`
	ExternalURL string       `json:"externalUrl,omitempty" firestore:"externalUrl,omitempty" bson:"externalUrl,omitempty"`
	IsAutomated bool         `json:"isAutomated,omitempty" firestore:"isAutomated,omitempty" bson:"isAutomated,omitempty"`
	CreatedAt   time.Time    `json:"createdAt" firestore:"createdAt" bson:"createdAt"`
	UpdatedAt   *time.Time   `json:"updatedAt" firestore:"updatedAt" bson:"updatedAt"`
}

// ParentRef links a reply to the post it answers.
type ParentRef struct {
	ID       string `json:"id" firestore:"id" bson:"id"`
	Username string `json:"username,omitempty" firestore:"username,omitempty" bson:"username,omitempty"`
}

// Media is an uploaded image or video attached to a post. Upload itself happens elsewhere.
type Media struct {
	ID   string `json:"id" firestore:"id" bson:"id"`
	Src  string `json:"src" firestore:"src" bson:"src"`
	Alt  string `json:"alt,omitempty" firestore:"alt,omitempty" bson:"alt,omitempty"`
	Type string `json:"type,omitempty" firestore:"type,omitempty" bson:"type,omitempty"`
}

// PostSource describes where an automated post came from.
type PostSource struct {
	Name string `json:"name" firestore:"name" bson:"name"`
	URL  string `json:"url" firestore:"url" bson:"url"`
}

// ParentID returns the id of the replied-to post, or "" for a top-level post.
func (p *Post) ParentID() string {
	if p == nil || p.Parent == nil {
		return ""
	}
	return p.Parent.ID
}

// HasMedia reports whether the post carries at least one attachment.
func (p *Post) HasMedia() bool {
	return p != nil && len(p.Images) > 0
}

// CreatePostRequest defines the request body for creating a new post
type CreatePostRequest struct {
	Text     string  `json:"text" validate:"required_without=Images,max=280"`
	Images   []Media `json:"images,omitempty" validate:"omitempty,max=4,dive"`
	ParentID string  `json:"parentId,omitempty" validate:"omitempty,max=128"`
}

// PostIDsRequest asks for several posts at once
type PostIDsRequest struct {
	IDs       []string `json:"ids" validate:"required,min=1,max=100,dive,required"`
	Namespace string   `json:"namespace,omitempty" validate:"omitempty,oneof=current legacy"`
}
