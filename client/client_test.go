package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/heirloom-app/heirloom/pkg/errors"
)

func respondData(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "data": data})
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   map[string]string{"code": code, "message": message},
	})
}

func treePayload() map[string]interface{} {
	return map[string]interface{}{
		"roots": []interface{}{},
		"members": []map[string]interface{}{
			{"id": "a", "first_name": "Ana", "last_name": "Reyes"},
		},
	}
}

func newTestClient(handler http.Handler) (*Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	c := New(Options{BaseURL: srv.URL})
	c.SetSession("test-token", "space-1")
	return c, srv
}

func TestGetTreeReadsThroughCache(t *testing.T) {
	fetches := 0
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/tree", r.URL.Path)
		require.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		fetches++
		respondData(w, http.StatusOK, treePayload())
	}))
	defer srv.Close()

	first, err := c.GetTree(context.Background())
	require.NoError(t, err)
	require.Len(t, first.Members, 1)

	second, err := c.GetTree(context.Background())
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, fetches)
}

func TestMutationMarksDirtyOnlyAfterServerAck(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/tree", func(w http.ResponseWriter, r *http.Request) {
		respondData(w, http.StatusOK, treePayload())
	})
	mux.HandleFunc("POST /api/v1/tree/members", func(w http.ResponseWriter, r *http.Request) {
		var in map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		if in["first_name"] == "" {
			respondError(w, http.StatusUnprocessableEntity, "VALIDATION", "first_name is required")
			return
		}
		respondData(w, http.StatusCreated, map[string]interface{}{
			"id": "m1", "first_name": in["first_name"], "last_name": in["last_name"],
		})
	})

	c, srv := newTestClient(mux)
	defer srv.Close()

	// Prime the cache so invalidation is observable.
	_, err := c.GetTree(context.Background())
	require.NoError(t, err)

	t.Run("rejected mutation leaves tracker and cache untouched", func(t *testing.T) {
		_, err := c.CreateMember(context.Background(), map[string]interface{}{
			"first_name": "", "last_name": "Reyes",
		})
		require.Error(t, err)
		assert.True(t, apperrors.IsValidation(err))
		assert.False(t, c.Tracker.IsDirty())
		assert.NotNil(t, c.Cache.Get("space-1"))
	})

	t.Run("accepted mutation marks dirty and drops the cached tree", func(t *testing.T) {
		m, err := c.CreateMember(context.Background(), map[string]interface{}{
			"first_name": "Ben", "last_name": "Reyes",
		})
		require.NoError(t, err)
		assert.Equal(t, "m1", m.ID)
		assert.True(t, c.Tracker.IsDirty())
		assert.Nil(t, c.Cache.Get("space-1"))
	})
}

func TestSaveClearsTrackerOnlyOnSuccess(t *testing.T) {
	fail := true
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/tree/save", r.URL.Path)
		if fail {
			respondError(w, http.StatusUnprocessableEntity, "VALIDATION", "no relations found to save")
			return
		}
		respondData(w, http.StatusCreated, map[string]interface{}{
			"id": "v1", "version": 1, "relations_count": 2,
		})
	}))
	defer srv.Close()

	c.Tracker.MarkDirty()

	_, err := c.Save(context.Background())
	require.Error(t, err)
	assert.True(t, c.Tracker.IsDirty())

	fail = false
	v, err := c.Save(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v.Version)
	assert.False(t, c.Tracker.IsDirty())
}

func TestRecoverSendsVersionAndResetsState(t *testing.T) {
	var got map[string]string
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/tree":
			respondData(w, http.StatusOK, treePayload())
		case "/api/v1/tree/recover":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			respondData(w, http.StatusOK, map[string]bool{"ok": true})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	_, err := c.GetTree(context.Background())
	require.NoError(t, err)
	c.Tracker.MarkDirty()

	require.NoError(t, c.Recover(context.Background(), "v42"))
	assert.Equal(t, map[string]string{"version_id": "v42"}, got)
	assert.False(t, c.Tracker.IsDirty())
	assert.Nil(t, c.Cache.Get("space-1"))
	assert.Equal(t, int64(1), c.Cache.Stats().Invalidations[ReasonStructureChanged])
}

func TestUnsavedReconcilesTracker(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/tree/unsaved", r.URL.Path)
		respondData(w, http.StatusOK, map[string]interface{}{
			"unsaved": false, "current_relations_count": 3, "saved_relations_count": 3,
		})
	}))
	defer srv.Close()

	c.Tracker.MarkDirty()

	state, err := c.Unsaved(context.Background())
	require.NoError(t, err)
	assert.False(t, state.Unsaved)
	assert.Equal(t, 3, state.CurrentRelationsCount)
	assert.False(t, c.Tracker.IsDirty())
}

func TestUnauthorizedTearsDownSession(t *testing.T) {
	var lastAuth string
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lastAuth = r.Header.Get("Authorization")
		respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "token has expired")
	}))
	defer srv.Close()

	expired := false
	c.OnSessionExpired(func() { expired = true })

	_, err := c.GetTree(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsUnauthorized(err))
	assert.True(t, expired)
	assert.Equal(t, "Bearer test-token", lastAuth)

	// Token was cleared, so the next request goes out anonymous.
	_, err = c.GetTree(context.Background())
	require.Error(t, err)
	assert.Empty(t, lastAuth)
}

func TestErrorMappingFromEnvelope(t *testing.T) {
	status, code := 0, ""
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, status, code, "boom")
	}))
	defer srv.Close()

	cases := []struct {
		name   string
		status int
		code   string
		check  func(error) bool
	}{
		{"not found", http.StatusNotFound, "NOT_FOUND", apperrors.IsNotFound},
		{"conflict", http.StatusConflict, "CONFLICT", apperrors.IsConflict},
		{"forbidden", http.StatusForbidden, "FORBIDDEN", apperrors.IsForbidden},
		{"structure", http.StatusBadRequest, "STRUCTURE", apperrors.IsStructure},
		{"validation", http.StatusUnprocessableEntity, "VALIDATION", apperrors.IsValidation},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, code = tc.status, tc.code
			err := c.DeleteMember(context.Background(), "m1")
			require.Error(t, err)
			assert.True(t, tc.check(err))
			assert.False(t, c.Tracker.IsDirty())
		})
	}
}

func TestLoginInstallsSession(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/auth/login", r.URL.Path)
		var in map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		require.Equal(t, "ana", in["username"])
		respondData(w, http.StatusOK, map[string]string{"token": "fresh-token"})
	}))
	defer srv.Close()
	c.SetSession("", "")

	require.NoError(t, c.Login(context.Background(), "ana", "secret123", "space-9"))
	assert.Equal(t, "space-9", c.SpaceID())
}
