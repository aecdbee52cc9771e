// Package client is a Go client for the idea canvas node API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/woragis/woragis-sub002/pkg/api"
)

const (
	defaultTimeout  = 10 * time.Second
	defaultMaxTries = 3
)

// APIError is a non-2xx response decoded from the error envelope.
type APIError struct {
	Status    int
	Type      string
	Code      string
	Message   string
	RequestID string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error %d %s (%s): %s", e.Status, e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("api error %d %s: %s", e.Status, e.Type, e.Message)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// IsConflict reports whether err is a 409 from the API, which includes
// version mismatches.
func IsConflict(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict
}

// Client talks to one API base URL. It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string
	userID     string
	maxTries   uint
	logger     *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithToken sends a bearer token on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithUserID sends the development identity header. Ignored by servers
// configured with a JWT secret.
func WithUserID(userID string) Option {
	return func(c *Client) { c.userID = userID }
}

// WithMaxTries bounds attempts for idempotent reads. 1 disables retries.
func WithMaxTries(n uint) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxTries = n
		}
	}
}

// WithLogger sets the logger used for retry notices.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New creates a client for baseURL, for example "http://localhost:8080".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		maxTries:   defaultMaxTries,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// List returns every node of an idea in insertion order.
func (c *Client) List(ctx context.Context, ideaID string) ([]api.Node, error) {
	var resp api.ListNodesResponse
	if err := c.do(ctx, http.MethodGet, c.nodesPath(ideaID), nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Nodes, nil
}

// Get returns one node.
func (c *Client) Get(ctx context.Context, ideaID, nodeID string) (*api.Node, error) {
	var node api.Node
	if err := c.do(ctx, http.MethodGet, c.nodePath(ideaID, nodeID), nil, nil, &node); err != nil {
		return nil, err
	}
	return &node, nil
}

// Edges returns the edges derived from the idea's connection lists.
func (c *Client) Edges(ctx context.Context, ideaID string) ([]api.Edge, error) {
	var resp api.ListEdgesResponse
	path := "/api/v1/ideas/" + url.PathEscape(ideaID) + "/edges"
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Edges, nil
}

// Create adds a node. Zero-valued request fields take server defaults.
func (c *Client) Create(ctx context.Context, ideaID string, req api.CreateNodeRequest) (*api.Node, error) {
	var node api.Node
	if err := c.do(ctx, http.MethodPost, c.nodesPath(ideaID), nil, req, &node); err != nil {
		return nil, err
	}
	return &node, nil
}

// UpdateFields merges the non-nil fields of req into the node.
func (c *Client) UpdateFields(ctx context.Context, ideaID, nodeID string, req api.UpdateNodeRequest) (*api.Node, error) {
	var node api.Node
	if err := c.do(ctx, http.MethodPatch, c.nodePath(ideaID, nodeID), nil, req, &node); err != nil {
		return nil, err
	}
	return &node, nil
}

// UpdatePosition moves the node.
func (c *Client) UpdatePosition(ctx context.Context, ideaID, nodeID string, x, y float64) (*api.Node, error) {
	var node api.Node
	req := api.UpdatePositionRequest{PositionX: &x, PositionY: &y}
	if err := c.do(ctx, http.MethodPut, c.nodePath(ideaID, nodeID)+"/position", nil, req, &node); err != nil {
		return nil, err
	}
	return &node, nil
}

// UpdateConnections replaces the node's connection list.
func (c *Client) UpdateConnections(ctx context.Context, ideaID, nodeID string, connections []string) (*api.Node, error) {
	if connections == nil {
		connections = []string{}
	}
	var node api.Node
	req := api.UpdateConnectionsRequest{Connections: connections}
	if err := c.do(ctx, http.MethodPut, c.nodePath(ideaID, nodeID)+"/connections", nil, req, &node); err != nil {
		return nil, err
	}
	return &node, nil
}

// Connect asks the server to append targetID to the source's list.
func (c *Client) Connect(ctx context.Context, ideaID, sourceID, targetID string) (*api.Node, error) {
	var node api.Node
	req := api.ConnectRequest{TargetID: targetID}
	if err := c.do(ctx, http.MethodPost, c.nodePath(ideaID, sourceID)+"/connections", nil, req, &node); err != nil {
		return nil, err
	}
	return &node, nil
}

// Delete removes the node.
func (c *Client) Delete(ctx context.Context, ideaID, nodeID string) error {
	return c.do(ctx, http.MethodDelete, c.nodePath(ideaID, nodeID), nil, nil, nil)
}

// DeleteIfMatch removes the node only if it is still at version.
func (c *Client) DeleteIfMatch(ctx context.Context, ideaID, nodeID string, version int) error {
	header := http.Header{"If-Match": []string{`"` + strconv.Itoa(version) + `"`}}
	return c.do(ctx, http.MethodDelete, c.nodePath(ideaID, nodeID), header, nil, nil)
}

func (c *Client) nodesPath(ideaID string) string {
	return "/api/v1/ideas/" + url.PathEscape(ideaID) + "/nodes"
}

func (c *Client) nodePath(ideaID, nodeID string) string {
	return c.nodesPath(ideaID) + "/" + url.PathEscape(nodeID)
}

// do sends one request and decodes a JSON response into out. GETs are
// retried with exponential backoff on transport errors and 503s.
func (c *Client) do(ctx context.Context, method, path string, header http.Header, body, out interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	attempt := func() (struct{}, error) {
		err := c.send(ctx, method, path, header, payload, out)
		if err != nil && !retryable(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}

	tries := c.maxTries
	if method != http.MethodGet {
		tries = 1
	}
	_, err := backoff.Retry(ctx, attempt,
		backoff.WithBackOff(newBackOff()),
		backoff.WithMaxTries(tries),
		backoff.WithNotify(func(err error, wait time.Duration) {
			c.logger.Debug("Retrying request",
				zap.String("method", method),
				zap.String("path", path),
				zap.Duration("wait", wait),
				zap.Error(err),
			)
		}),
	)
	return err
}

func newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = time.Second
	return b
}

func retryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status == http.StatusServiceUnavailable
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func (c *Client) send(ctx context.Context, method, path string, header http.Header, payload []byte, out interface{}) error {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.userID != "" {
		req.Header.Set("X-User-ID", c.userID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	var envelope struct {
		Type      string `json:"type"`
		Code      string `json:"code"`
		Message   string `json:"message"`
		RequestID string `json:"request_id"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if json.Unmarshal(raw, &envelope) == nil && envelope.Message != "" {
		apiErr.Type = envelope.Type
		apiErr.Code = envelope.Code
		apiErr.Message = envelope.Message
		apiErr.RequestID = envelope.RequestID
		return apiErr
	}
	apiErr.Message = strings.TrimSpace(string(raw))
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
