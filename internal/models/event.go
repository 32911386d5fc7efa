package models

import "time"

// PostEventVersion is the only schema version the trigger boundary accepts.
const PostEventVersion = 1

// Namespace names which posts collection an entity lives in.
type Namespace string

const (
	NamespaceCurrent Namespace = "current"
	NamespaceLegacy  Namespace = "legacy"
)

// EventKind is the store change that produced a PostEvent.
type EventKind string

const (
	EventCreated EventKind = "created"
	EventUpdated EventKind = "updated"
)

// PostEvent is the change notification for one post document. Before is only
// present for updates.
type PostEvent struct {
	Version   int       `json:"version" validate:"required,eq=1"`
	Kind      EventKind `json:"kind" validate:"required,oneof=created updated"`
	Namespace Namespace `json:"namespace" validate:"required,oneof=current legacy"`
	PostID    string    `json:"postId" validate:"required,max=128"`
	Before    *Post     `json:"before,omitempty" validate:"required_if=Kind updated"`
	After     *Post     `json:"after" validate:"required"`
	EmittedAt time.Time `json:"emittedAt,omitempty"`
}

// FanoutFailure is one swallowed notification fan-out failure, kept for
// operators to replay or inspect.
type FanoutFailure struct {
	ID              uint      `json:"id" gorm:"primaryKey"`
	Operation       string    `json:"operation" gorm:"size:40;index"`
	Stage           string    `json:"stage" gorm:"size:40"`
	PostID          string    `json:"post_id" gorm:"size:128;index"`
	ActorID         string    `json:"actor_id" gorm:"size:128"`
	CommittedGroups int       `json:"committed_groups"`
	TotalGroups     int       `json:"total_groups"`
	Error           string    `json:"error" gorm:"type:text"`
	CreatedAt       time.Time `json:"created_at" gorm:"index"`
}
