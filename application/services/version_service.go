package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/heirloom-app/heirloom/application/ports"
	"github.com/heirloom-app/heirloom/domain/tree"
	apperrors "github.com/heirloom-app/heirloom/pkg/errors"
)

// VersionService implements save/recover snapshots and unsaved-change
// detection over a space's relation set.
type VersionService struct {
	versions  ports.VersionRepository
	relations ports.RelationRepository
	events    ports.EventPublisher
	logger    *zap.Logger
}

// NewVersionService creates a new version service
func NewVersionService(
	versions ports.VersionRepository,
	relations ports.RelationRepository,
	events ports.EventPublisher,
	logger *zap.Logger,
) *VersionService {
	return &VersionService{
		versions:  versions,
		relations: relations,
		events:    events,
		logger:    logger,
	}
}

// VersionList is the response shape for listing versions: most recent first,
// plus the space's active-version pointer.
type VersionList struct {
	Versions      []*tree.Version `json:"versions"`
	ActiveVersion string          `json:"active_version,omitempty"`
}

// UnsavedState reports whether the live tree differs from the active
// version's snapshot. This is the authoritative dirty flag clients
// reconcile against.
type UnsavedState struct {
	Unsaved               bool `json:"unsaved"`
	CurrentRelationsCount int  `json:"current_relations_count"`
	SavedRelationsCount   int  `json:"saved_relations_count"`
}

// Save snapshots the space's live relation set as the next monotonic version
// and makes it the active version.
func (s *VersionService) Save(ctx context.Context, spaceID, username string) (*tree.Version, error) {
	relations, err := s.relations.ListBySpace(ctx, spaceID)
	if err != nil {
		return nil, apperrors.Wrap(err, "load relations")
	}
	if len(relations) == 0 {
		return nil, apperrors.NewValidationError("no relations found to save")
	}

	v := &tree.Version{
		SpaceID:        spaceID,
		CreatedAt:      time.Now().UTC(),
		CreatedBy:      username,
		Relations:      relations,
		RelationsCount: len(relations),
	}

	saved, err := s.versions.Create(ctx, v)
	if err != nil {
		return nil, apperrors.Wrap(err, "save version")
	}

	if err := s.versions.SetActive(ctx, spaceID, saved.ID); err != nil {
		return nil, apperrors.Wrap(err, "set active version")
	}

	s.logger.Info("Saved tree version",
		zap.String("spaceID", spaceID),
		zap.Int("version", saved.Version),
		zap.Int("relations", saved.RelationsCount),
	)

	s.publish(ctx, ports.EventTreeSaved, spaceID, saved.ID, username)
	return saved, nil
}

// Recover restores the space's live relation set to the snapshot identified
// by versionID and points the active version at it. Other versions are left
// untouched.
func (s *VersionService) Recover(ctx context.Context, spaceID, username, versionID string) error {
	v, err := s.versions.GetByID(ctx, versionID)
	if err != nil {
		return err
	}
	if v.SpaceID != spaceID {
		return apperrors.NewForbiddenError("version belongs to a different space")
	}

	restored := make([]tree.Relation, len(v.Relations))
	copy(restored, v.Relations)
	for i := range restored {
		restored[i].SpaceID = spaceID
	}

	if err := s.relations.ReplaceAll(ctx, spaceID, restored); err != nil {
		return apperrors.Wrap(err, "restore relations")
	}

	if err := s.versions.SetActive(ctx, spaceID, versionID); err != nil {
		return apperrors.Wrap(err, "set active version")
	}

	s.logger.Info("Recovered tree version",
		zap.String("spaceID", spaceID),
		zap.String("versionID", versionID),
		zap.Int("relations", len(restored)),
	)

	s.publish(ctx, ports.EventTreeRecovered, spaceID, versionID, username)
	return nil
}

// ListVersions returns the space's versions newest first along with the
// active-version pointer.
func (s *VersionService) ListVersions(ctx context.Context, spaceID string) (*VersionList, error) {
	versions, err := s.versions.ListBySpace(ctx, spaceID)
	if err != nil {
		return nil, apperrors.Wrap(err, "list versions")
	}

	active, err := s.versions.GetActive(ctx, spaceID)
	if err != nil && !apperrors.IsNotFound(err) {
		return nil, apperrors.Wrap(err, "get active version")
	}

	// Snapshot payloads stay server-side; listings carry descriptors only.
	out := make([]*tree.Version, len(versions))
	for i, v := range versions {
		cp := *v
		cp.Relations = nil
		out[i] = &cp
	}

	return &VersionList{Versions: out, ActiveVersion: active}, nil
}

// Unsaved compares the live relation set against the active version's
// snapshot.
func (s *VersionService) Unsaved(ctx context.Context, spaceID string) (*UnsavedState, error) {
	relations, err := s.relations.ListBySpace(ctx, spaceID)
	if err != nil {
		return nil, apperrors.Wrap(err, "load relations")
	}

	saved := 0
	activeID, err := s.versions.GetActive(ctx, spaceID)
	if err != nil && !apperrors.IsNotFound(err) {
		return nil, apperrors.Wrap(err, "get active version")
	}
	if activeID != "" {
		if v, verr := s.versions.GetByID(ctx, activeID); verr == nil && v.SpaceID == spaceID {
			saved = v.RelationsCount
		}
	}

	return &UnsavedState{
		Unsaved:               len(relations) != saved,
		CurrentRelationsCount: len(relations),
		SavedRelationsCount:   saved,
	}, nil
}

func (s *VersionService) publish(ctx context.Context, eventType, spaceID, entityID, actor string) {
	if s.events == nil {
		return
	}
	evt := ports.MutationEvent{Type: eventType, SpaceID: spaceID, EntityID: entityID, Actor: actor}
	if err := s.events.Publish(ctx, evt); err != nil {
		s.logger.Warn("Failed to publish mutation event",
			zap.String("type", eventType),
			zap.String("spaceID", spaceID),
			zap.Error(err),
		)
	}
}
