package services

import "github.com/anonto42/nano-midea/engine/internal/models"

// PostDelta is the engagement added to a post between two snapshots. The
// author never appears in it.
type PostDelta struct {
	PostID         string
	AuthorID       string
	AddedLikers    []string
	AddedResharers []string
}

// Empty reports whether the update added no likers or resharers.
func (d PostDelta) Empty() bool {
	return len(d.AddedLikers) == 0 && len(d.AddedResharers) == 0
}

// DetectPostUpdate compares two snapshots of one post. It is pure: removals are
// ignored, duplicates collapse, and actions by the author are dropped.
func DetectPostUpdate(before, after *models.Post) PostDelta {
	if after == nil {
		return PostDelta{}
	}
	var beforeLikes, beforeReshares []string
	if before != nil {
		beforeLikes = before.LikedBy
		beforeReshares = before.ResharedBy
	}
	return PostDelta{
		PostID:         after.ID,
		AuthorID:       after.CreatedBy,
		AddedLikers:    added(beforeLikes, after.LikedBy, after.CreatedBy),
		AddedResharers: added(beforeReshares, after.ResharedBy, after.CreatedBy),
	}
}

// added returns the members of after missing from before, in after's order,
// without exclude.
func added(before, after []string, exclude string) []string {
	if len(after) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(before)+len(after))
	for _, id := range before {
		seen[id] = struct{}{}
	}
	var out []string
	for _, id := range after {
		if id == "" || id == exclude {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// CreationPlan is what a newly created post asks the fan-out to do.
type CreationPlan struct {
	PostID   string
	AuthorID string
	// ParentID is set for replies; the parent's author is resolved later and
	// notified only when it differs from AuthorID.
	ParentID string
}

// IsReply reports whether the post answers another post.
func (p CreationPlan) IsReply() bool { return p.ParentID != "" }

// ShouldNotifyParent reports whether the resolved parent author gets a reply notification.
func (p CreationPlan) ShouldNotifyParent(parentAuthor string) bool {
	return p.IsReply() && parentAuthor != "" && parentAuthor != p.AuthorID
}

// PlanPostCreation derives the creation fan-out for post. An authorless post
// plans nothing.
func PlanPostCreation(post *models.Post) (CreationPlan, bool) {
	if post == nil || post.CreatedBy == "" {
		return CreationPlan{}, false
	}
	return CreationPlan{
		PostID:   post.ID,
		AuthorID: post.CreatedBy,
		ParentID: post.ParentID(),
	}, true
}
