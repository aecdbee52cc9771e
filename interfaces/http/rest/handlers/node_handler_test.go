package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/woragis/woragis-sub002/application/services"
	"github.com/woragis/woragis-sub002/domain/config"
	"github.com/woragis/woragis-sub002/infrastructure/persistence/memory"
	"github.com/woragis/woragis-sub002/pkg/api"
	pkgerrors "github.com/woragis/woragis-sub002/pkg/errors"
)

func newTestRouter(t *testing.T, mutate func(*config.DomainConfig)) http.Handler {
	t.Helper()
	cfg := config.DefaultDomainConfig()
	if mutate != nil {
		mutate(cfg)
	}
	logger := zap.NewNop()
	svc := services.NewNodeService(memory.NewNodeRepository(logger), nil, config.NewHolder(cfg), logger).
		WithPositionSource(func(float64) (float64, float64) { return 10, 20 })
	h := NewNodeHandler(svc, pkgerrors.NewErrorHandler(logger, false), logger)

	r := chi.NewRouter()
	h.Routes(r)
	return r
}

func do(t *testing.T, h http.Handler, method, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeNode(t *testing.T, rec *httptest.ResponseRecorder) api.Node {
	t.Helper()
	var node api.Node
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &node))
	return node
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) pkgerrors.ErrorResponse {
	t.Helper()
	var resp pkgerrors.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func createNode(t *testing.T, h http.Handler, body interface{}) api.Node {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/ideas/idea-1/nodes", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeNode(t, rec)
}

func TestCreateNode_Defaults(t *testing.T) {
	h := newTestRouter(t, nil)

	rec := do(t, h, http.MethodPost, "/ideas/idea-1/nodes", nil)

	require.Equal(t, http.StatusCreated, rec.Code)
	node := decodeNode(t, rec)
	assert.Equal(t, "New Idea", node.Title)
	assert.Equal(t, "idea-1", node.IdeaID)
	assert.Equal(t, 10.0, node.PositionX)
	assert.Equal(t, 20.0, node.PositionY)
	assert.Equal(t, 200.0, node.Width)
	assert.Equal(t, 100.0, node.Height)
	assert.Equal(t, []string{}, node.Connections)
	assert.True(t, node.Visible)
	assert.Equal(t, 1, node.Version)
	assert.Equal(t, `"1"`, rec.Header().Get("ETag"))
	assert.Equal(t, "/ideas/idea-1/nodes/"+node.ID, rec.Header().Get("Location"))
}

func TestCreateNode_RejectsBadBodies(t *testing.T) {
	h := newTestRouter(t, nil)

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"title":`},
		{"unknown field", `{"nope":1}`},
		{"non-positive width", `{"width":0}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/ideas/idea-1/nodes", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, string(pkgerrors.ErrorTypeValidation), decodeError(t, rec).Type)
		})
	}
}

func TestListNodes(t *testing.T) {
	h := newTestRouter(t, nil)
	first := createNode(t, h, map[string]interface{}{"title": "first"})
	second := createNode(t, h, map[string]interface{}{"title": "second"})

	rec := do(t, h, http.MethodGet, "/ideas/idea-1/nodes", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp api.ListNodesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Nodes, 2)
	ids := []string{resp.Nodes[0].ID, resp.Nodes[1].ID}
	assert.ElementsMatch(t, []string{first.ID, second.ID}, ids)

	rec = do(t, h, http.MethodGet, "/ideas/other/nodes", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"nodes":[]}`, rec.Body.String())
}

func TestGetNode_NotFound(t *testing.T) {
	h := newTestRouter(t, nil)

	rec := do(t, h, http.MethodGet, "/ideas/idea-1/nodes/7b0e6c1e-3f4a-4b8e-9b1a-2d3c4e5f6a7b", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, string(pkgerrors.ErrorTypeNotFound), decodeError(t, rec).Type)
}

func TestUpdateNode_Patch(t *testing.T) {
	h := newTestRouter(t, nil)
	node := createNode(t, h, map[string]interface{}{"title": "before", "content": "keep"})

	rec := do(t, h, http.MethodPatch, "/ideas/idea-1/nodes/"+node.ID, map[string]interface{}{"title": "after"})

	require.Equal(t, http.StatusOK, rec.Code)
	updated := decodeNode(t, rec)
	assert.Equal(t, "after", updated.Title)
	assert.Equal(t, "keep", updated.Content)
	assert.Equal(t, 2, updated.Version)
	assert.Equal(t, `"2"`, rec.Header().Get("ETag"))
}

func TestUpdateNode_IfMatch(t *testing.T) {
	h := newTestRouter(t, nil)
	node := createNode(t, h, nil)
	path := "/ideas/idea-1/nodes/" + node.ID

	rec := do(t, h, http.MethodPatch, path, map[string]interface{}{"title": "a"}, "If-Match", `"1"`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodPatch, path, map[string]interface{}{"title": "b"}, "If-Match", `W/"1"`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, pkgerrors.CodeVersionMismatch, decodeError(t, rec).Code)

	rec = do(t, h, http.MethodPatch, path, map[string]interface{}{"title": "b", "expectedVersion": 3}, "If-Match", "2")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPatch, path, map[string]interface{}{"title": "b"}, "If-Match", "two")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdatePosition(t *testing.T) {
	h := newTestRouter(t, nil)
	node := createNode(t, h, nil)
	path := "/ideas/idea-1/nodes/" + node.ID + "/position"

	rec := do(t, h, http.MethodPut, path, map[string]interface{}{"positionX": 300.5, "positionY": -12})

	require.Equal(t, http.StatusOK, rec.Code)
	moved := decodeNode(t, rec)
	assert.Equal(t, 300.5, moved.PositionX)
	assert.Equal(t, -12.0, moved.PositionY)

	rec = do(t, h, http.MethodPut, path, map[string]interface{}{"positionX": 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateConnections_KeepsDuplicatesByDefault(t *testing.T) {
	h := newTestRouter(t, nil)
	a := createNode(t, h, nil)
	b := createNode(t, h, nil)

	rec := do(t, h, http.MethodPut, "/ideas/idea-1/nodes/"+a.ID+"/connections",
		map[string]interface{}{"connections": []string{b.ID, b.ID}})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{b.ID, b.ID}, decodeNode(t, rec).Connections)

	rec = do(t, h, http.MethodGet, "/ideas/idea-1/edges", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp api.ListEdgesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Edges, 2)
	assert.Equal(t, a.ID+"-"+b.ID+"-0", resp.Edges[0].ID)
	assert.Equal(t, a.ID+"-"+b.ID+"-1", resp.Edges[1].ID)
}

func TestUpdateConnections_RejectsMalformedIDs(t *testing.T) {
	h := newTestRouter(t, nil)
	a := createNode(t, h, nil)

	rec := do(t, h, http.MethodPut, "/ideas/idea-1/nodes/"+a.ID+"/connections",
		map[string]interface{}{"connections": []string{"not-a-uuid"}})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConnect_Dedupe(t *testing.T) {
	h := newTestRouter(t, func(c *config.DomainConfig) { c.DedupeConnections = true })
	a := createNode(t, h, nil)
	b := createNode(t, h, nil)
	path := "/ideas/idea-1/nodes/" + a.ID + "/connections"

	rec := do(t, h, http.MethodPost, path, map[string]interface{}{"targetId": b.ID})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, h, http.MethodPost, path, map[string]interface{}{"targetId": b.ID})
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, []string{b.ID}, decodeNode(t, rec).Connections)
}

func TestConnect_BodyUsesTargetID(t *testing.T) {
	h := newTestRouter(t, nil)
	a := createNode(t, h, nil)
	b := createNode(t, h, nil)
	path := "/ideas/idea-1/nodes/" + a.ID + "/connections"

	rec := do(t, h, http.MethodPost, path, map[string]interface{}{"target": b.ID})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, path, map[string]interface{}{"targetId": b.ID})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{b.ID}, decodeNode(t, rec).Connections)
}

func TestDeleteNode_LeavesDanglingByDefault(t *testing.T) {
	h := newTestRouter(t, nil)
	a := createNode(t, h, nil)
	b := createNode(t, h, nil)
	rec := do(t, h, http.MethodPut, "/ideas/idea-1/nodes/"+a.ID+"/connections",
		map[string]interface{}{"connections": []string{b.ID}})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodDelete, "/ideas/idea-1/nodes/"+b.ID, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/ideas/idea-1/nodes/"+a.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{b.ID}, decodeNode(t, rec).Connections)

	rec = do(t, h, http.MethodGet, "/ideas/idea-1/edges?dangling=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), b.ID))
}

func TestListEdges_DanglingFlag(t *testing.T) {
	h := newTestRouter(t, nil)

	tests := []struct {
		query string
		want  int
	}{
		{"", http.StatusOK},
		{"?dangling=false", http.StatusOK},
		{"?dangling=1", http.StatusOK},
		{"?dangling=yes", http.StatusBadRequest},
		{"?dangling=", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := do(t, h, http.MethodGet, "/ideas/idea-1/edges"+tt.query, nil)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			if tt.want == http.StatusBadRequest {
				assert.Equal(t, string(pkgerrors.ErrorTypeValidation), decodeError(t, rec).Type)
			}
		})
	}
}

func TestDeleteNode_Scrubs(t *testing.T) {
	h := newTestRouter(t, func(c *config.DomainConfig) { c.ScrubDanglingOnDelete = true })
	a := createNode(t, h, nil)
	b := createNode(t, h, nil)
	rec := do(t, h, http.MethodPut, "/ideas/idea-1/nodes/"+a.ID+"/connections",
		map[string]interface{}{"connections": []string{b.ID}})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodDelete, "/ideas/idea-1/nodes/"+b.ID, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("X-Scrubbed-Nodes"))

	rec = do(t, h, http.MethodGet, "/ideas/idea-1/nodes/"+a.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeNode(t, rec).Connections)
}

func TestDeleteNode_StaleIfMatch(t *testing.T) {
	h := newTestRouter(t, nil)
	a := createNode(t, h, nil)
	rec := do(t, h, http.MethodPatch, "/ideas/idea-1/nodes/"+a.ID, map[string]interface{}{"title": "x"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodDelete, "/ideas/idea-1/nodes/"+a.ID, nil, "If-Match", `"1"`)

	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = do(t, h, http.MethodGet, "/ideas/idea-1/nodes/"+a.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestExpectedVersion(t *testing.T) {
	three := 3
	tests := []struct {
		name    string
		header  string
		body    *int
		want    *int
		wantErr bool
	}{
		{name: "none"},
		{name: "wildcard", header: "*"},
		{name: "body only", body: &three, want: &three},
		{name: "strong tag", header: `"3"`, want: &three},
		{name: "weak tag", header: `W/"3"`, want: &three},
		{name: "bare number", header: "3", want: &three},
		{name: "agreeing body", header: `"3"`, body: &three, want: &three},
		{name: "zero", header: `"0"`, wantErr: true},
		{name: "garbage", header: "abc", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPatch, "/", nil)
			if tt.header != "" {
				req.Header.Set("If-Match", tt.header)
			}
			got, err := expectedVersion(req, tt.body)
			if tt.wantErr {
				assert.True(t, pkgerrors.IsValidation(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
