package client

import (
	"context"
	"net/http"

	"github.com/heirloom-app/heirloom/domain/tree"
)

// VersionList is the server's version listing: newest first, plus the
// active-version pointer.
type VersionList struct {
	Versions      []*tree.Version `json:"versions"`
	ActiveVersion string          `json:"active_version,omitempty"`
}

// UnsavedState is the server's answer on whether the live tree differs
// from the active saved version.
type UnsavedState struct {
	Unsaved               bool `json:"unsaved"`
	CurrentRelationsCount int  `json:"current_relations_count"`
	SavedRelationsCount   int  `json:"saved_relations_count"`
}

// Save snapshots the live tree as a new version. On success the tracker is
// cleared and the cached tree dropped; on failure both are left untouched.
func (c *Client) Save(ctx context.Context) (*tree.Version, error) {
	var v tree.Version
	if err := c.do(ctx, http.MethodPost, "/api/v1/tree/save", nil, &v); err != nil {
		return nil, err
	}

	c.Tracker.Clear()
	c.Cache.Invalidate(c.SpaceID(), ReasonManualClear)
	return &v, nil
}

// Recover restores the live tree from a saved version. On success the
// tracker is cleared and the cached tree dropped; on failure both are left
// untouched.
func (c *Client) Recover(ctx context.Context, versionID string) error {
	body := map[string]string{"version_id": versionID}
	if err := c.do(ctx, http.MethodPost, "/api/v1/tree/recover", body, nil); err != nil {
		return err
	}

	c.Tracker.Clear()
	c.Cache.Invalidate(c.SpaceID(), ReasonStructureChanged)
	return nil
}

// ListVersions returns the space's saved versions.
func (c *Client) ListVersions(ctx context.Context) (*VersionList, error) {
	var list VersionList
	if err := c.do(ctx, http.MethodGet, "/api/v1/tree/versions", nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// Unsaved asks the server whether unsaved changes exist and reconciles the
// tracker with the answer.
func (c *Client) Unsaved(ctx context.Context) (*UnsavedState, error) {
	var state UnsavedState
	if err := c.do(ctx, http.MethodGet, "/api/v1/tree/unsaved", nil, &state); err != nil {
		return nil, err
	}

	c.Tracker.Reconcile(state.Unsaved)
	return &state, nil
}
