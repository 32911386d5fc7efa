package repositories

import "github.com/anonto42/nano-midea/engine/internal/models"

const (
	UsersCollection         = "users"
	NotificationsCollection = "notifications"
)

// Namespaces maps the current and legacy posts namespaces to collection names.
type Namespaces struct {
	Current string
	Legacy  string
}

// DefaultNamespaces is the layout used since the posts migration.
var DefaultNamespaces = Namespaces{Current: "posts", Legacy: "tweets"}

// Collection returns the collection backing ns. Unknown values map to the current namespace.
func (n Namespaces) Collection(ns models.Namespace) string {
	if ns == models.NamespaceLegacy {
		return n.Legacy
	}
	return n.Current
}

// NamespaceOf maps a collection name back to its namespace.
func (n Namespaces) NamespaceOf(collection string) (models.Namespace, bool) {
	switch collection {
	case n.Current:
		return models.NamespaceCurrent, true
	case n.Legacy:
		return models.NamespaceLegacy, true
	}
	return "", false
}

func UserPath(uid string) string {
	return DocPath(UsersCollection, uid)
}

// StatsPath is the engagement statistics document of a user.
func StatsPath(uid string) string {
	return DocPath(UserPath(uid)+"/stats", "stats")
}

func BookmarksCollection(uid string) string {
	return UserPath(uid) + "/bookmarks"
}

func BookmarkPath(uid, postID string) string {
	return DocPath(BookmarksCollection(uid), postID)
}
