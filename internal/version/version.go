// Package version implements append-only numbered snapshots of content
// state. Version numbers per ref form a gap-free sequence starting at 1;
// a version is never updated or deleted once written, except through the
// explicit administrative Prune operation.
package version

import (
	"context"
	"encoding/json"
	"time"

	"github.com/studyable/studyhub/internal/content"
)

// Version is an immutable snapshot of a content item.
type Version struct {
	ID        int64           `json:"id"`
	Ref       content.Ref     `json:"ref"`
	Number    int             `json:"version_number"`
	AuthorID  int64           `json:"author_id"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// Store persists versions. Insert must enforce the
// (kind, id, version_number) uniqueness invariant and return
// apperr.ErrConflict when a concurrent writer already claimed the number.
type Store interface {
	Insert(ctx context.Context, v Version) (Version, error)
	MaxNumber(ctx context.Context, ref content.Ref) (int, error)
	Get(ctx context.Context, ref content.Ref, number int) (Version, error)
	List(ctx context.Context, ref content.Ref, limit, offset int) ([]Version, int, error)
	// Prune deletes all but the newest keep versions and reports how
	// many were removed.
	Prune(ctx context.Context, ref content.Ref, keep int) (int, error)
}
