package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/heirloom-app/heirloom/domain/tree"
	apperrors "github.com/heirloom-app/heirloom/pkg/errors"
)

// Client is the embeddable family-tree client core: an HTTP client over the
// REST contract plus the change tracker and the tree cache. One Client value
// is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger

	mu        sync.RWMutex
	token     string
	spaceID   string
	onExpired func()

	Tracker *ChangeTracker
	Cache   *TreeCache
}

// Options configures a Client.
type Options struct {
	BaseURL string
	Timeout time.Duration
	Logger  *zap.Logger
	// Metrics receives the cache counters when non-nil.
	Metrics prometheus.Registerer
}

// New creates a client against the given API base URL.
func New(opts Options) *Client {
	if opts.Timeout == 0 {
		opts.Timeout = 15 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		http:    &http.Client{Timeout: opts.Timeout},
		logger:  logger,
		Tracker: NewChangeTracker(),
		Cache:   NewTreeCache(logger, opts.Metrics),
	}
}

// SetSession installs the bearer token and the space it is scoped to.
func (c *Client) SetSession(token, spaceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
	c.spaceID = spaceID
}

// SpaceID returns the space the current session is scoped to.
func (c *Client) SpaceID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.spaceID
}

// OnSessionExpired registers a callback fired when the server answers 401
// or 403. The token is cleared before the callback runs; the embedding app
// handles the redirect.
func (c *Client) OnSessionExpired(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onExpired = fn
}

// envelope mirrors the server's response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   *struct {
		Code    string                 `json:"code"`
		Message string                 `json:"message"`
		Details map[string]interface{} `json:"details,omitempty"`
	} `json:"error,omitempty"`
}

// do performs a request and decodes the envelope into out (out may be nil).
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return apperrors.NewInternalError("encode request").WithCause(err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return apperrors.NewInternalError("build request").WithCause(err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apperrors.NewTransportError("request failed", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return apperrors.NewTransportError("read response", err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		c.expireSession()
	}

	var env envelope
	if len(data) > 0 {
		if err := json.Unmarshal(data, &env); err != nil {
			if resp.StatusCode >= 400 {
				return apperrors.NewTransportError(
					fmt.Sprintf("server returned %d with unreadable body", resp.StatusCode), err)
			}
			return apperrors.NewTransportError("decode response", err)
		}
	}

	if resp.StatusCode >= 400 || !env.Success {
		return c.errorFromEnvelope(resp.StatusCode, &env)
	}

	if out != nil && env.Data != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return apperrors.NewTransportError("decode response data", err)
		}
	}
	return nil
}

func (c *Client) expireSession() {
	c.mu.Lock()
	c.token = ""
	fn := c.onExpired
	c.mu.Unlock()

	if fn != nil {
		fn()
	}
}

func (c *Client) errorFromEnvelope(status int, env *envelope) error {
	code, message := "UNKNOWN", fmt.Sprintf("server returned %d", status)
	if env.Error != nil {
		code, message = env.Error.Code, env.Error.Message
	}

	switch status {
	case http.StatusNotFound:
		return apperrors.NewNotFoundError(message)
	case http.StatusConflict:
		return apperrors.NewConflictError(message)
	case http.StatusForbidden:
		return apperrors.NewForbiddenError(message)
	case http.StatusUnauthorized:
		return apperrors.NewUnauthorizedError(message)
	case http.StatusUnprocessableEntity, http.StatusBadRequest:
		if code == "STRUCTURE" {
			return apperrors.NewStructureError(message)
		}
		return apperrors.NewValidationError(message)
	default:
		return apperrors.NewInternalError(message)
	}
}

// GetTree returns the assembled tree for the session's space, consulting
// the cache first.
func (c *Client) GetTree(ctx context.Context) (*tree.Tree, error) {
	spaceID := c.SpaceID()
	if cached := c.Cache.Get(spaceID); cached != nil {
		return cached, nil
	}

	var t tree.Tree
	if err := c.do(ctx, http.MethodGet, "/api/v1/tree", nil, &t); err != nil {
		return nil, err
	}

	c.Cache.Set(spaceID, &t)
	return &t, nil
}

// Member mutations. Each marks the tracker dirty and invalidates the cached
// tree only after the server confirms the write.

// CreateMember creates a member in the session's space.
func (c *Client) CreateMember(ctx context.Context, in map[string]interface{}) (*tree.Member, error) {
	var m tree.Member
	if err := c.do(ctx, http.MethodPost, "/api/v1/tree/members", in, &m); err != nil {
		return nil, err
	}
	c.afterMutation(ReasonDataChanged)
	return &m, nil
}

// UpdateMember applies a partial update to a member.
func (c *Client) UpdateMember(ctx context.Context, memberID string, in map[string]interface{}) (*tree.Member, error) {
	var m tree.Member
	if err := c.do(ctx, http.MethodPatch, "/api/v1/tree/members/"+memberID, in, &m); err != nil {
		return nil, err
	}
	c.afterMutation(ReasonDataChanged)
	return &m, nil
}

// DeleteMember removes a member without children.
func (c *Client) DeleteMember(ctx context.Context, memberID string) error {
	if err := c.do(ctx, http.MethodDelete, "/api/v1/tree/members/"+memberID, nil, nil); err != nil {
		return err
	}
	c.afterMutation(ReasonStructureChanged)
	return nil
}

// Move re-parents a member. A nil newParentID makes it an explicit root.
func (c *Client) Move(ctx context.Context, childID string, newParentID *string) error {
	body := map[string]interface{}{"child_id": childID, "new_parent_id": newParentID}
	if err := c.do(ctx, http.MethodPost, "/api/v1/tree/move", body, nil); err != nil {
		return err
	}
	c.afterMutation(ReasonStructureChanged)
	return nil
}

// SetSpouse links or unlinks a spouse pairing.
func (c *Client) SetSpouse(ctx context.Context, memberID string, spouseID *string) error {
	body := map[string]interface{}{"spouse_id": spouseID}
	if err := c.do(ctx, http.MethodPost, "/api/v1/tree/members/"+memberID+"/spouse", body, nil); err != nil {
		return err
	}
	c.afterMutation(ReasonDataChanged)
	return nil
}

func (c *Client) afterMutation(reason string) {
	c.Tracker.MarkDirty()
	c.Cache.Invalidate(c.SpaceID(), reason)
}

// Login authenticates and installs the session.
func (c *Client) Login(ctx context.Context, username, password, spaceID string) error {
	var out struct {
		Token string `json:"token"`
	}
	body := map[string]string{"username": username, "password": password, "space_id": spaceID}
	if err := c.do(ctx, http.MethodPost, "/api/v1/auth/login", body, &out); err != nil {
		return err
	}
	c.SetSession(out.Token, spaceID)
	return nil
}

// Register creates an account through the invite gate.
func (c *Client) Register(ctx context.Context, inviteCode, username, email, password, spaceID string) error {
	body := map[string]string{
		"invite_code": inviteCode,
		"username":    username,
		"email":       email,
		"password":    password,
		"space_id":    spaceID,
	}
	return c.do(ctx, http.MethodPost, "/api/v1/auth/register", body, nil)
}
