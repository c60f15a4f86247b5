package content

import (
	"context"
	"fmt"

	"github.com/studyable/studyhub/internal/apperr"
)

// Resolution carries the existence and ownership facts for a resolved ref.
type Resolution struct {
	OwnerID     int64
	Public      bool
	CommunityID *int64
}

// Store looks up a single ref's facts. Implementations return
// apperr.ErrNotFound when the underlying row is absent.
type Store interface {
	Lookup(ctx context.Context, ref Ref) (Resolution, error)
}

// MembershipChecker is the community-administration collaborator.
// It answers whether a user belongs to a community.
type MembershipChecker interface {
	IsMember(ctx context.Context, communityID, userID int64) (bool, error)
}

// Registry resolves refs and guards polymorphic writes. Side-effect-free
// and safe for concurrent use.
type Registry struct {
	store   Store
	members MembershipChecker
}

// NewRegistry creates a registry. members may be nil when no community
// access checks are needed.
func NewRegistry(store Store, members MembershipChecker) *Registry {
	return &Registry{store: store, members: members}
}

// Resolve confirms the ref exists and returns its ownership facts.
func (r *Registry) Resolve(ctx context.Context, ref Ref) (Resolution, error) {
	if err := ref.Validate(); err != nil {
		return Resolution{}, err
	}
	res, err := r.store.Lookup(ctx, ref)
	if err != nil {
		return Resolution{}, fmt.Errorf("resolve %s: %w", ref, err)
	}
	return res, nil
}

// Authorize resolves the ref and checks the user may read or write it:
// the owner always may, public content is open to everyone, and
// community content is open to community members.
func (r *Registry) Authorize(ctx context.Context, ref Ref, userID int64) (Resolution, error) {
	res, err := r.Resolve(ctx, ref)
	if err != nil {
		return Resolution{}, err
	}
	if res.OwnerID == userID || res.Public {
		return res, nil
	}
	if res.CommunityID != nil && r.members != nil {
		ok, err := r.members.IsMember(ctx, *res.CommunityID, userID)
		if err != nil {
			return Resolution{}, fmt.Errorf("membership check for %s: %w", ref, err)
		}
		if ok {
			return res, nil
		}
	}
	return Resolution{}, fmt.Errorf("%w: user %d has no access to %s", apperr.ErrForbidden, userID, ref)
}
