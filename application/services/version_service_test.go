package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/heirloom-app/heirloom/infrastructure/persistence/memory"
	apperrors "github.com/heirloom-app/heirloom/pkg/errors"
)

func newVersionFixture() (*VersionService, *memory.RelationRepository) {
	relations := memory.NewRelationRepository()
	versions := memory.NewVersionRepository()
	svc := NewVersionService(versions, relations, nil, zap.NewNop())
	return svc, relations
}

func seedRelations(t *testing.T, relations *memory.RelationRepository, spaceID string, n int) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, relations.SetParent(ctx, spaceID, "root", nil))
	parent := "root"
	for i := 1; i < n; i++ {
		child := string(rune('a' + i))
		require.NoError(t, relations.SetParent(ctx, spaceID, child, &parent))
	}
}

func TestSaveRejectsEmptyTree(t *testing.T) {
	svc, _ := newVersionFixture()

	_, err := svc.Save(context.Background(), testSpace, "tester")
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
	assert.Contains(t, err.Error(), "no relations found to save")
}

func TestSaveAssignsMonotonicVersions(t *testing.T) {
	svc, relations := newVersionFixture()
	ctx := context.Background()
	seedRelations(t, relations, testSpace, 3)

	v1, err := svc.Save(ctx, testSpace, "tester")
	require.NoError(t, err)
	v2, err := svc.Save(ctx, testSpace, "tester")
	require.NoError(t, err)

	assert.Equal(t, 1, v1.Version)
	assert.Equal(t, 2, v2.Version)
	assert.Equal(t, 3, v1.RelationsCount)
	assert.Equal(t, "tester", v1.CreatedBy)

	list, err := svc.ListVersions(ctx, testSpace)
	require.NoError(t, err)
	require.Len(t, list.Versions, 2)
	assert.Equal(t, v2.ID, list.Versions[0].ID)
	assert.Equal(t, v1.ID, list.Versions[1].ID)
	assert.Equal(t, v2.ID, list.ActiveVersion)

	// Listings carry descriptors only, never the snapshots themselves.
	for _, v := range list.Versions {
		assert.Nil(t, v.Relations)
	}
}

func TestVersionNumbersArePerSpace(t *testing.T) {
	svc, relations := newVersionFixture()
	ctx := context.Background()

	seedRelations(t, relations, "space-a", 1)
	seedRelations(t, relations, "space-b", 1)

	va, err := svc.Save(ctx, "space-a", "tester")
	require.NoError(t, err)
	vb, err := svc.Save(ctx, "space-b", "tester")
	require.NoError(t, err)

	assert.Equal(t, 1, va.Version)
	assert.Equal(t, 1, vb.Version)
}

func TestRecoverRestoresSnapshot(t *testing.T) {
	svc, relations := newVersionFixture()
	ctx := context.Background()
	seedRelations(t, relations, testSpace, 2)

	saved, err := svc.Save(ctx, testSpace, "tester")
	require.NoError(t, err)

	// Drift the live tree past the snapshot.
	parent := "root"
	require.NoError(t, relations.SetParent(ctx, testSpace, "extra", &parent))

	state, err := svc.Unsaved(ctx, testSpace)
	require.NoError(t, err)
	assert.True(t, state.Unsaved)
	assert.Equal(t, 3, state.CurrentRelationsCount)
	assert.Equal(t, 2, state.SavedRelationsCount)

	require.NoError(t, svc.Recover(ctx, testSpace, "tester", saved.ID))

	restored, err := relations.ListBySpace(ctx, testSpace)
	require.NoError(t, err)
	assert.Len(t, restored, 2)

	state, err = svc.Unsaved(ctx, testSpace)
	require.NoError(t, err)
	assert.False(t, state.Unsaved)

	list, err := svc.ListVersions(ctx, testSpace)
	require.NoError(t, err)
	assert.Equal(t, saved.ID, list.ActiveVersion)
}

func TestRecoverRejectsForeignVersion(t *testing.T) {
	svc, relations := newVersionFixture()
	ctx := context.Background()
	seedRelations(t, relations, "space-other", 1)

	foreign, err := svc.Save(ctx, "space-other", "tester")
	require.NoError(t, err)

	err = svc.Recover(ctx, testSpace, "tester", foreign.ID)
	require.Error(t, err)
	assert.True(t, apperrors.IsForbidden(err))
}

func TestRecoverUnknownVersion(t *testing.T) {
	svc, _ := newVersionFixture()

	err := svc.Recover(context.Background(), testSpace, "tester", "no-such-version")
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestUnsavedWithoutActiveVersion(t *testing.T) {
	svc, relations := newVersionFixture()
	ctx := context.Background()

	// Empty live tree, nothing saved: nothing to lose.
	state, err := svc.Unsaved(ctx, testSpace)
	require.NoError(t, err)
	assert.False(t, state.Unsaved)

	seedRelations(t, relations, testSpace, 1)
	state, err = svc.Unsaved(ctx, testSpace)
	require.NoError(t, err)
	assert.True(t, state.Unsaved)
	assert.Equal(t, 0, state.SavedRelationsCount)
}
