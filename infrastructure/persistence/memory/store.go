// Package memory provides in-memory repository implementations used by
// tests and local development. Semantics mirror the DynamoDB
// implementations, including name-key uniqueness and per-space version
// numbering.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/heirloom-app/heirloom/domain/accounts"
	"github.com/heirloom-app/heirloom/domain/tree"
	apperrors "github.com/heirloom-app/heirloom/pkg/errors"
)

// MemberRepository is an in-memory member store.
type MemberRepository struct {
	mu       sync.RWMutex
	members  map[string]map[string]*tree.Member // spaceID -> memberID -> member
	nameKeys map[string]map[string]string       // spaceID -> nameKey -> memberID
}

// NewMemberRepository creates a new in-memory member repository
func NewMemberRepository() *MemberRepository {
	return &MemberRepository{
		members:  make(map[string]map[string]*tree.Member),
		nameKeys: make(map[string]map[string]string),
	}
}

func (r *MemberRepository) space(spaceID string) (map[string]*tree.Member, map[string]string) {
	if r.members[spaceID] == nil {
		r.members[spaceID] = make(map[string]*tree.Member)
		r.nameKeys[spaceID] = make(map[string]string)
	}
	return r.members[spaceID], r.nameKeys[spaceID]
}

// Create stores a member, reserving its name key.
func (r *MemberRepository) Create(ctx context.Context, m *tree.Member) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, keys := r.space(m.SpaceID)
	key := m.NameKey()
	if _, taken := keys[key]; taken {
		return apperrors.NewConflictError("member with same first_name and last_name already exists")
	}

	cp := *m
	members[m.ID] = &cp
	keys[key] = m.ID
	return nil
}

// Update stores a member, swapping name keys on rename.
func (r *MemberRepository) Update(ctx context.Context, m *tree.Member) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, keys := r.space(m.SpaceID)
	current, ok := members[m.ID]
	if !ok {
		return apperrors.NewNotFoundError("member")
	}

	oldKey, newKey := current.NameKey(), m.NameKey()
	if newKey != oldKey {
		if owner, taken := keys[newKey]; taken && owner != m.ID {
			return apperrors.NewConflictError("member with same first_name and last_name already exists")
		}
		delete(keys, oldKey)
		keys[newKey] = m.ID
	}

	cp := *m
	members[m.ID] = &cp
	return nil
}

// Delete removes a member and releases its name key.
func (r *MemberRepository) Delete(ctx context.Context, spaceID, memberID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, keys := r.space(spaceID)
	m, ok := members[memberID]
	if !ok {
		return apperrors.NewNotFoundError("member")
	}

	delete(keys, m.NameKey())
	delete(members, memberID)
	return nil
}

// GetByID returns a member by id.
func (r *MemberRepository) GetByID(ctx context.Context, spaceID, memberID string) (*tree.Member, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.members[spaceID][memberID]
	if !ok {
		return nil, apperrors.NewNotFoundError("member")
	}
	cp := *m
	return &cp, nil
}

// ListBySpace returns all members of a space in stable id order.
func (r *MemberRepository) ListBySpace(ctx context.Context, spaceID string) ([]*tree.Member, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*tree.Member, 0, len(r.members[spaceID]))
	for _, m := range r.members[spaceID] {
		cp := *m
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// RelationRepository is an in-memory relation store.
type RelationRepository struct {
	mu        sync.RWMutex
	relations map[string][]tree.Relation // spaceID -> relations in insertion order
}

// NewRelationRepository creates a new in-memory relation repository
func NewRelationRepository() *RelationRepository {
	return &RelationRepository{relations: make(map[string][]tree.Relation)}
}

// SetParent replaces the child's parent relation.
func (r *RelationRepository) SetParent(ctx context.Context, spaceID, childID string, parentID *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.relations[spaceID][:0]
	for _, rel := range r.relations[spaceID] {
		if rel.ChildID != childID {
			kept = append(kept, rel)
		}
	}

	var parent *string
	if parentID != nil {
		p := *parentID
		parent = &p
	}
	kept = append(kept, tree.Relation{
		ID:       uuid.New().String(),
		SpaceID:  spaceID,
		ChildID:  childID,
		ParentID: parent,
	})
	r.relations[spaceID] = kept
	return nil
}

// DeleteByChild removes any relation where the member is the child.
func (r *RelationRepository) DeleteByChild(ctx context.Context, spaceID, childID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.relations[spaceID][:0]
	for _, rel := range r.relations[spaceID] {
		if rel.ChildID != childID {
			kept = append(kept, rel)
		}
	}
	r.relations[spaceID] = kept
	return nil
}

// ListBySpace returns the space's relations in insertion order.
func (r *RelationRepository) ListBySpace(ctx context.Context, spaceID string) ([]tree.Relation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]tree.Relation, len(r.relations[spaceID]))
	copy(out, r.relations[spaceID])
	return out, nil
}

// ReplaceAll atomically swaps the space's relation set.
func (r *RelationRepository) ReplaceAll(ctx context.Context, spaceID string, relations []tree.Relation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	replaced := make([]tree.Relation, len(relations))
	copy(replaced, relations)
	for i := range replaced {
		if replaced[i].ID == "" {
			replaced[i].ID = uuid.New().String()
		}
		replaced[i].SpaceID = spaceID
	}
	r.relations[spaceID] = replaced
	return nil
}

// VersionRepository is an in-memory version store.
type VersionRepository struct {
	mu       sync.RWMutex
	versions map[string]*tree.Version // versionID -> version
	bySpace  map[string][]string      // spaceID -> versionIDs in creation order
	active   map[string]string        // spaceID -> active versionID
}

// NewVersionRepository creates a new in-memory version repository
func NewVersionRepository() *VersionRepository {
	return &VersionRepository{
		versions: make(map[string]*tree.Version),
		bySpace:  make(map[string][]string),
		active:   make(map[string]string),
	}
}

// Create assigns the next version number for the space and stores the
// snapshot.
func (r *VersionRepository) Create(ctx context.Context, v *tree.Version) (*tree.Version, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := 1
	ids := r.bySpace[v.SpaceID]
	if len(ids) > 0 {
		next = r.versions[ids[len(ids)-1]].Version + 1
	}

	cp := *v
	cp.ID = uuid.New().String()
	cp.Version = next
	cp.Relations = make([]tree.Relation, len(v.Relations))
	copy(cp.Relations, v.Relations)

	r.versions[cp.ID] = &cp
	r.bySpace[v.SpaceID] = append(ids, cp.ID)

	out := cp
	return &out, nil
}

// GetByID returns a version by id with its snapshot.
func (r *VersionRepository) GetByID(ctx context.Context, versionID string) (*tree.Version, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.versions[versionID]
	if !ok {
		return nil, apperrors.NewNotFoundError("version")
	}
	cp := *v
	cp.Relations = make([]tree.Relation, len(v.Relations))
	copy(cp.Relations, v.Relations)
	return &cp, nil
}

// ListBySpace returns the space's versions newest first.
func (r *VersionRepository) ListBySpace(ctx context.Context, spaceID string) ([]*tree.Version, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.bySpace[spaceID]
	out := make([]*tree.Version, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		cp := *r.versions[ids[i]]
		out = append(out, &cp)
	}
	return out, nil
}

// SetActive points the space at a version.
func (r *VersionRepository) SetActive(ctx context.Context, spaceID, versionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.versions[versionID]; !ok {
		return apperrors.NewNotFoundError("version")
	}
	r.active[spaceID] = versionID
	return nil
}

// GetActive returns the space's active version id.
func (r *VersionRepository) GetActive(ctx context.Context, spaceID string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.active[spaceID]
	if !ok {
		return "", apperrors.NewNotFoundError("active version")
	}
	return id, nil
}

// UserRepository is an in-memory user store.
type UserRepository struct {
	mu    sync.RWMutex
	users map[string]*accounts.User
}

// NewUserRepository creates a new in-memory user repository
func NewUserRepository() *UserRepository {
	return &UserRepository{users: make(map[string]*accounts.User)}
}

// Create stores a new user.
func (r *UserRepository) Create(ctx context.Context, u *accounts.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.users[u.Username]; exists {
		return apperrors.NewConflictError("username already exists")
	}
	cp := *u
	r.users[u.Username] = &cp
	return nil
}

// Update stores an existing user.
func (r *UserRepository) Update(ctx context.Context, u *accounts.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.users[u.Username]; !exists {
		return apperrors.NewNotFoundError("user")
	}
	cp := *u
	r.users[u.Username] = &cp
	return nil
}

// GetByUsername returns a user by username.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*accounts.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[username]
	if !ok {
		return nil, apperrors.NewNotFoundError("user")
	}
	cp := *u
	return &cp, nil
}

// InviteRepository is an in-memory invite store.
type InviteRepository struct {
	mu      sync.RWMutex
	invites map[string]*accounts.Invite
}

// NewInviteRepository creates a new in-memory invite repository
func NewInviteRepository() *InviteRepository {
	return &InviteRepository{invites: make(map[string]*accounts.Invite)}
}

// Seed stores an invite directly, bypassing lifecycle checks.
func (r *InviteRepository) Seed(inv *accounts.Invite) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *inv
	r.invites[inv.Code] = &cp
}

// Get returns an invite by code.
func (r *InviteRepository) Get(ctx context.Context, code string) (*accounts.Invite, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	inv, ok := r.invites[code]
	if !ok {
		return nil, apperrors.NewNotFoundError("invite")
	}
	cp := *inv
	return &cp, nil
}

// Update stores an invite.
func (r *InviteRepository) Update(ctx context.Context, inv *accounts.Invite) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.invites[inv.Code]; !ok {
		return apperrors.NewNotFoundError("invite")
	}
	cp := *inv
	r.invites[inv.Code] = &cp
	return nil
}

// SpaceRepository is an in-memory space store.
type SpaceRepository struct {
	mu     sync.RWMutex
	spaces map[string]*accounts.Space
}

// NewSpaceRepository creates a new in-memory space repository
func NewSpaceRepository() *SpaceRepository {
	return &SpaceRepository{spaces: make(map[string]*accounts.Space)}
}

// Create stores a new space.
func (r *SpaceRepository) Create(ctx context.Context, s *accounts.Space) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.spaces[s.ID]; exists {
		return apperrors.NewConflictError("space already exists")
	}
	cp := *s
	r.spaces[s.ID] = &cp
	return nil
}

// GetByID returns a space by id.
func (r *SpaceRepository) GetByID(ctx context.Context, spaceID string) (*accounts.Space, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.spaces[spaceID]
	if !ok {
		return nil, apperrors.NewNotFoundError("space")
	}
	cp := *s
	return &cp, nil
}

// List returns all spaces sorted by id.
func (r *SpaceRepository) List(ctx context.Context) ([]*accounts.Space, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*accounts.Space, 0, len(r.spaces))
	for _, s := range r.spaces {
		cp := *s
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
