package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heirloom-app/heirloom/domain/accounts"
	"github.com/heirloom-app/heirloom/infrastructure/config"
	"github.com/heirloom-app/heirloom/infrastructure/di"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	cfg := &config.Config{
		Environment:    "test",
		StorageBackend: "memory",
		JWTSecret:      "test-secret",
		JWTIssuer:      "heirloom-test",
		TokenTTL:       time.Hour,
		RequireInvite:  false,
		LogLevel:       "error",
	}

	container, err := di.NewContainer(context.Background(), cfg)
	require.NoError(t, err)
	require.NoError(t, container.Repos.Spaces.Create(context.Background(), &accounts.Space{
		ID:   "space-1",
		Name: "Reyes family",
	}))

	srv := httptest.NewServer(NewRouter(container).Setup())
	t.Cleanup(srv.Close)
	return srv
}

type apiEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func call(t *testing.T, srv *httptest.Server, method, path, token string, body interface{}) (int, apiEnvelope) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, srv.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env apiEnvelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func registerAndLogin(t *testing.T, srv *httptest.Server) string {
	t.Helper()

	status, _ := call(t, srv, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"username": "ana1", "password": "secret123", "space_id": "space-1",
	})
	require.Equal(t, http.StatusCreated, status)

	status, env := call(t, srv, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "ana1", "password": "secret123",
	})
	require.Equal(t, http.StatusOK, status)

	var out struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &out))
	require.NotEmpty(t, out.Token)
	return out.Token
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t)

	resp, err := srv.Client().Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestTreeEndpointsRequireAuth(t *testing.T) {
	srv := newTestServer(t)

	status, env := call(t, srv, http.MethodGet, "/api/v1/tree", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.False(t, env.Success)
}

func TestRegisterValidation(t *testing.T) {
	srv := newTestServer(t)

	status, env := call(t, srv, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"username": "ana1", "password": "short", "space_id": "space-1",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "VALIDATION", env.Error.Code)
}

func TestTreeLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	token := registerAndLogin(t, srv)

	createMember := func(first, last string) string {
		status, env := call(t, srv, http.MethodPost, "/api/v1/tree/members", token, map[string]interface{}{
			"first_name": first, "last_name": last,
		})
		require.Equal(t, http.StatusCreated, status)
		var m struct {
			ID string `json:"id"`
		}
		require.NoError(t, json.Unmarshal(env.Data, &m))
		return m.ID
	}

	ana := createMember("Ana", "Reyes")
	ben := createMember("Ben", "Reyes")

	t.Run("duplicate name conflicts", func(t *testing.T) {
		status, env := call(t, srv, http.MethodPost, "/api/v1/tree/members", token, map[string]interface{}{
			"first_name": "Ana", "last_name": "Reyes",
		})
		assert.Equal(t, http.StatusConflict, status)
		require.NotNil(t, env.Error)
		assert.Equal(t, "CONFLICT", env.Error.Code)
	})

	t.Run("move builds the tree", func(t *testing.T) {
		status, _ := call(t, srv, http.MethodPost, "/api/v1/tree/move", token, map[string]interface{}{
			"child_id": ben, "new_parent_id": ana,
		})
		require.Equal(t, http.StatusOK, status)

		status, env := call(t, srv, http.MethodGet, "/api/v1/tree", token, nil)
		require.Equal(t, http.StatusOK, status)

		var tr struct {
			Roots []struct {
				Member struct {
					ID string `json:"id"`
				} `json:"member"`
				Children []struct {
					Member struct {
						ID string `json:"id"`
					} `json:"member"`
				} `json:"children"`
			} `json:"roots"`
		}
		require.NoError(t, json.Unmarshal(env.Data, &tr))
		require.Len(t, tr.Roots, 1)
		assert.Equal(t, ana, tr.Roots[0].Member.ID)
		require.Len(t, tr.Roots[0].Children, 1)
		assert.Equal(t, ben, tr.Roots[0].Children[0].Member.ID)
	})

	t.Run("save and unsaved round trip", func(t *testing.T) {
		status, env := call(t, srv, http.MethodPost, "/api/v1/tree/save", token, nil)
		require.Equal(t, http.StatusCreated, status)

		var v struct {
			ID      string `json:"id"`
			Version int    `json:"version"`
		}
		require.NoError(t, json.Unmarshal(env.Data, &v))
		assert.Equal(t, 1, v.Version)

		status, env = call(t, srv, http.MethodGet, "/api/v1/tree/unsaved", token, nil)
		require.Equal(t, http.StatusOK, status)

		var state struct {
			Unsaved bool `json:"unsaved"`
		}
		require.NoError(t, json.Unmarshal(env.Data, &state))
		assert.False(t, state.Unsaved)

		// A structural change flips the flag; recover restores the snapshot.
		status, _ = call(t, srv, http.MethodPost, "/api/v1/tree/move", token, map[string]interface{}{
			"child_id": ben, "new_parent_id": nil,
		})
		require.Equal(t, http.StatusOK, status)

		cara := createMember("Cara", "Reyes")
		status, _ = call(t, srv, http.MethodPost, "/api/v1/tree/move", token, map[string]interface{}{
			"child_id": cara, "new_parent_id": ana,
		})
		require.Equal(t, http.StatusOK, status)

		status, env = call(t, srv, http.MethodGet, "/api/v1/tree/unsaved", token, nil)
		require.Equal(t, http.StatusOK, status)
		require.NoError(t, json.Unmarshal(env.Data, &state))
		assert.True(t, state.Unsaved)

		status, _ = call(t, srv, http.MethodPost, "/api/v1/tree/recover", token, map[string]string{
			"version_id": v.ID,
		})
		require.Equal(t, http.StatusOK, status)

		status, env = call(t, srv, http.MethodGet, "/api/v1/tree/unsaved", token, nil)
		require.Equal(t, http.StatusOK, status)
		require.NoError(t, json.Unmarshal(env.Data, &state))
		assert.False(t, state.Unsaved)
	})

	t.Run("delete with children rejected", func(t *testing.T) {
		status, env := call(t, srv, http.MethodDelete, fmt.Sprintf("/api/v1/tree/members/%s", ana), token, nil)
		assert.Equal(t, http.StatusBadRequest, status)
		require.NotNil(t, env.Error)
		assert.Equal(t, "STRUCTURE", env.Error.Code)
	})
}

func TestSpouseLinkOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	token := registerAndLogin(t, srv)

	create := func(first, last string) string {
		status, env := call(t, srv, http.MethodPost, "/api/v1/tree/members", token, map[string]interface{}{
			"first_name": first, "last_name": last,
		})
		require.Equal(t, http.StatusCreated, status)
		var m struct {
			ID string `json:"id"`
		}
		require.NoError(t, json.Unmarshal(env.Data, &m))
		return m.ID
	}

	ana := create("Ana", "Reyes")
	ben := create("Ben", "Ortiz")

	status, _ := call(t, srv, http.MethodPost, fmt.Sprintf("/api/v1/tree/members/%s/spouse", ana), token, map[string]string{
		"spouse_id": ben,
	})
	require.Equal(t, http.StatusOK, status)

	status, env := call(t, srv, http.MethodGet, fmt.Sprintf("/api/v1/tree/members/%s", ben), token, nil)
	require.Equal(t, http.StatusOK, status)

	var m struct {
		SpouseID string `json:"spouse_id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &m))
	assert.Equal(t, ana, m.SpouseID)
}
