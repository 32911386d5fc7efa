package models

import "time"

// NotificationType is the persisted kind of a notification record.
type NotificationType string

const (
	NotificationFollowed NotificationType = "followed"
	NotificationLiked    NotificationType = "liked"
	NotificationReshared NotificationType = "reshared"
	NotificationReplied  NotificationType = "replied"
	NotificationPosted   NotificationType = "posted"
)

// Notification is a record in the notifications collection. Only the fan-out
// service creates them; readers may flip IsChecked and UpdatedAt.
type Notification struct {
	ID           string           `json:"id" firestore:"-" bson:"-"`
	Type         NotificationType `json:"type" firestore:"type" bson:"type"`
	UserID       string           `json:"userId" firestore:"userId" bson:"userId"`
	TargetUserID string           `json:"targetUserId" firestore:"targetUserId" bson:"targetUserId"`
	CreatedAt    time.Time        `json:"createdAt" firestore:"createdAt" bson:"createdAt"`
	UpdatedAt    *time.Time       `json:"updatedAt" firestore:"updatedAt" bson:"updatedAt"`
	IsChecked    bool             `json:"isChecked" firestore:"isChecked" bson:"isChecked"`
	Meta         NotificationMeta `json:"meta" firestore:"meta" bson:"meta"`
}

// NotificationMeta is the free-form payload; only the keys the engine writes are typed.
type NotificationMeta struct {
	PostID   string `json:"postId,omitempty" firestore:"postId,omitempty" bson:"postId,omitempty"`
	ParentID string `json:"parentId,omitempty" firestore:"parentId,omitempty" bson:"parentId,omitempty"`
}

// Map returns the meta payload as stored. Absent keys are omitted.
func (m NotificationMeta) Map() map[string]interface{} {
	out := map[string]interface{}{}
	if m.PostID != "" {
		out["postId"] = m.PostID
	}
	if m.ParentID != "" {
		out["parentId"] = m.ParentID
	}
	return out
}

