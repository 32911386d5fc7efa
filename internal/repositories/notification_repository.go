package repositories

import (
	"context"
	"fmt"

	"github.com/anonto42/nano-midea/engine/internal/models"
)

// NotificationRepository defines the interface for notification reads and the
// reader-side acknowledgement. Records are created only by the fan-out service.
type NotificationRepository interface {
	ListForUser(ctx context.Context, uid string, limit int) ([]models.Notification, error)
	Query(uid string, limit int) Query
	MarkChecked(ctx context.Context, uid, notificationID string) error
	NewPath() string
}

// StoreNotificationRepository implements NotificationRepository on a DocumentStore
type StoreNotificationRepository struct {
	store DocumentStore
}

// NewStoreNotificationRepository creates a new StoreNotificationRepository
func NewStoreNotificationRepository(store DocumentStore) *StoreNotificationRepository {
	return &StoreNotificationRepository{store: store}
}

func (r *StoreNotificationRepository) NewPath() string {
	return r.store.NewDocPath(NotificationsCollection)
}

// Query is the newest-first inbox query of uid.
func (r *StoreNotificationRepository) Query(uid string, limit int) Query {
	return Query{
		Collection: NotificationsCollection,
		OrderBy:    "createdAt",
		Descending: true,
		Limit:      limit,
	}.Where("targetUserId", OpEqual, uid)
}

// ListForUser returns the newest notifications addressed to uid
func (r *StoreNotificationRepository) ListForUser(ctx context.Context, uid string, limit int) ([]models.Notification, error) {
	docs, err := r.store.Find(ctx, r.Query(uid, limit))
	if err != nil {
		return nil, err
	}
	return DecodeNotifications(docs)
}

// MarkChecked flips isChecked on a notification owned by uid
func (r *StoreNotificationRepository) MarkChecked(ctx context.Context, uid, notificationID string) error {
	path := DocPath(NotificationsCollection, notificationID)
	var n models.Notification
	if err := r.store.Get(ctx, path, &n); err != nil {
		return err
	}
	if n.TargetUserID != uid {
		// Someone else's inbox reads as missing.
		return fmt.Errorf("notification %s: %w", notificationID, ErrNotFound)
	}
	return r.store.Commit(ctx, []Write{Update(path, map[string]interface{}{
		"isChecked": true,
		"updatedAt": ServerTimestamp,
	})})
}

// DecodeNotifications decodes query results into notifications carrying their ids.
func DecodeNotifications(docs []Document) ([]models.Notification, error) {
	out := make([]models.Notification, 0, len(docs))
	for _, d := range docs {
		var n models.Notification
		if err := d.DataTo(&n); err != nil {
			return nil, fmt.Errorf("decode notification %s: %w", d.ID, err)
		}
		n.ID = d.ID
		out = append(out, n)
	}
	return out, nil
}
