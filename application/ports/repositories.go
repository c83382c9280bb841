package ports

import (
	"context"

	"github.com/heirloom-app/heirloom/domain/accounts"
	"github.com/heirloom-app/heirloom/domain/tree"
)

// MemberRepository persists member records for a space.
//
// Create must reserve the member's name key atomically and fail with a
// conflict error when a member with the same first/last name already exists
// in the space. Update swaps name keys when a rename changes the key.
type MemberRepository interface {
	Create(ctx context.Context, m *tree.Member) error
	Update(ctx context.Context, m *tree.Member) error
	Delete(ctx context.Context, spaceID, memberID string) error
	GetByID(ctx context.Context, spaceID, memberID string) (*tree.Member, error)
	ListBySpace(ctx context.Context, spaceID string) ([]*tree.Member, error)
}

// RelationRepository persists child -> parent relations for a space.
type RelationRepository interface {
	// SetParent replaces any existing parent relation for the child.
	// A nil parentID makes the child an explicit root.
	SetParent(ctx context.Context, spaceID, childID string, parentID *string) error
	DeleteByChild(ctx context.Context, spaceID, childID string) error
	ListBySpace(ctx context.Context, spaceID string) ([]tree.Relation, error)
	// ReplaceAll atomically swaps the space's live relation set, used by
	// version recovery.
	ReplaceAll(ctx context.Context, spaceID string, relations []tree.Relation) error
}

// VersionRepository persists immutable tree snapshots and the per-space
// active-version pointer.
type VersionRepository interface {
	// Create persists a snapshot with the next monotonic version number
	// for the space and returns the stored version.
	Create(ctx context.Context, v *tree.Version) (*tree.Version, error)
	GetByID(ctx context.Context, versionID string) (*tree.Version, error)
	ListBySpace(ctx context.Context, spaceID string) ([]*tree.Version, error)
	SetActive(ctx context.Context, spaceID, versionID string) error
	GetActive(ctx context.Context, spaceID string) (string, error)
}

// UserRepository persists application accounts.
type UserRepository interface {
	Create(ctx context.Context, u *accounts.User) error
	Update(ctx context.Context, u *accounts.User) error
	GetByUsername(ctx context.Context, username string) (*accounts.User, error)
}

// InviteRepository persists single-use registration codes.
type InviteRepository interface {
	Get(ctx context.Context, code string) (*accounts.Invite, error)
	Update(ctx context.Context, inv *accounts.Invite) error
}

// SpaceRepository persists family spaces.
type SpaceRepository interface {
	Create(ctx context.Context, s *accounts.Space) error
	GetByID(ctx context.Context, spaceID string) (*accounts.Space, error)
	List(ctx context.Context) ([]*accounts.Space, error)
}

// EventPublisher fans mutation events out to interested consumers. A nil
// publisher is valid; services treat publish failures as non-fatal.
type EventPublisher interface {
	Publish(ctx context.Context, event MutationEvent) error
}

// MutationEvent describes a tree-mutating action for downstream consumers.
type MutationEvent struct {
	Type     string `json:"type"`
	SpaceID  string `json:"space_id"`
	EntityID string `json:"entity_id,omitempty"`
	Actor    string `json:"actor,omitempty"`
}

// Mutation event types published by the tree and version services.
const (
	EventMemberCreated = "member.created"
	EventMemberUpdated = "member.updated"
	EventMemberDeleted = "member.deleted"
	EventMemberMoved   = "member.moved"
	EventSpouseLinked  = "member.spouse_linked"
	EventTreeSaved     = "tree.saved"
	EventTreeRecovered = "tree.recovered"
)
