package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/woragis/woragis-sub002/application/commands"
	"github.com/woragis/woragis-sub002/application/queries"
	"github.com/woragis/woragis-sub002/application/services"
	"github.com/woragis/woragis-sub002/domain/core/entities"
	"github.com/woragis/woragis-sub002/domain/core/graph"
	"github.com/woragis/woragis-sub002/pkg/api"
	"github.com/woragis/woragis-sub002/pkg/auth"
	pkgerrors "github.com/woragis/woragis-sub002/pkg/errors"
	"github.com/woragis/woragis-sub002/pkg/utils"
)

// maxBodyBytes bounds request bodies; content is capped well below this
// by the domain limits.
const maxBodyBytes = 1 << 20

// NodeService is the application service behind the node endpoints.
type NodeService interface {
	List(ctx context.Context, q queries.ListNodesQuery) ([]*entities.IdeaNode, error)
	Get(ctx context.Context, q queries.GetNodeQuery) (*entities.IdeaNode, error)
	Edges(ctx context.Context, q queries.ListEdgesQuery) ([]graph.Edge, error)
	Create(ctx context.Context, cmd commands.CreateNodeCommand) (*entities.IdeaNode, error)
	UpdateFields(ctx context.Context, cmd commands.UpdateNodeFieldsCommand) (*entities.IdeaNode, error)
	UpdatePosition(ctx context.Context, cmd commands.UpdateNodePositionCommand) (*entities.IdeaNode, error)
	UpdateConnections(ctx context.Context, cmd commands.UpdateNodeConnectionsCommand) (*entities.IdeaNode, error)
	Connect(ctx context.Context, cmd commands.ConnectNodesCommand) (*entities.IdeaNode, error)
	Delete(ctx context.Context, cmd commands.DeleteNodeCommand) (*services.DeleteResult, error)
}

var _ NodeService = (*services.NodeService)(nil)

// NodeHandler handles node-related HTTP requests
type NodeHandler struct {
	service NodeService
	errors  *pkgerrors.ErrorHandler
	logger  *zap.Logger
}

// NewNodeHandler creates a new node handler
func NewNodeHandler(service NodeService, errorHandler *pkgerrors.ErrorHandler, logger *zap.Logger) *NodeHandler {
	return &NodeHandler{service: service, errors: errorHandler, logger: logger}
}

// Routes mounts the node endpoints under /ideas/{ideaID}.
func (h *NodeHandler) Routes(r chi.Router) {
	r.Route("/ideas/{ideaID}", func(r chi.Router) {
		r.Get("/nodes", h.ListNodes)
		r.Post("/nodes", h.CreateNode)
		r.Get("/edges", h.ListEdges)
		r.Route("/nodes/{nodeID}", func(r chi.Router) {
			r.Get("/", h.GetNode)
			r.Patch("/", h.UpdateNode)
			r.Delete("/", h.DeleteNode)
			r.Put("/position", h.UpdatePosition)
			r.Put("/connections", h.UpdateConnections)
			r.Post("/connections", h.Connect)
		})
	})
}

// ListNodes handles GET /ideas/{ideaID}/nodes
func (h *NodeHandler) ListNodes(w http.ResponseWriter, r *http.Request) {
	nodes, err := h.service.List(r.Context(), queries.ListNodesQuery{IdeaID: chi.URLParam(r, "ideaID")})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	resp := api.ListNodesResponse{Nodes: make([]api.Node, 0, len(nodes))}
	for _, n := range nodes {
		resp.Nodes = append(resp.Nodes, ToAPINode(n))
	}
	h.respondJSON(w, http.StatusOK, resp)
}

// ListEdges handles GET /ideas/{ideaID}/edges. ?dangling=true restricts
// the result to edges whose target no longer exists.
func (h *NodeHandler) ListEdges(w http.ResponseWriter, r *http.Request) {
	var dangling bool
	if raw := r.URL.Query().Get("dangling"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			h.errors.Handle(w, r, pkgerrors.NewValidationError("dangling must be a boolean").
				WithDetail("dangling", raw))
			return
		}
		dangling = parsed
	}
	edges, err := h.service.Edges(r.Context(), queries.ListEdgesQuery{
		IdeaID:       chi.URLParam(r, "ideaID"),
		DanglingOnly: dangling,
	})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	resp := api.ListEdgesResponse{Edges: make([]api.Edge, 0, len(edges))}
	for _, e := range edges {
		resp.Edges = append(resp.Edges, api.Edge{ID: e.ID(), Source: e.Source, Target: e.Target, Ordinal: e.Ordinal})
	}
	h.respondJSON(w, http.StatusOK, resp)
}

// GetNode handles GET /ideas/{ideaID}/nodes/{nodeID}
func (h *NodeHandler) GetNode(w http.ResponseWriter, r *http.Request) {
	node, err := h.service.Get(r.Context(), queries.GetNodeQuery{
		IdeaID: chi.URLParam(r, "ideaID"),
		NodeID: chi.URLParam(r, "nodeID"),
	})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	h.respondNode(w, http.StatusOK, node)
}

// CreateNode handles POST /ideas/{ideaID}/nodes
func (h *NodeHandler) CreateNode(w http.ResponseWriter, r *http.Request) {
	var req api.CreateNodeRequest
	if err := h.decode(r, &req, true); err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	node, err := h.service.Create(r.Context(), commands.CreateNodeCommand{
		IdeaID:    chi.URLParam(r, "ideaID"),
		Title:     req.Title,
		Content:   req.Content,
		Type:      req.Type,
		PositionX: req.PositionX,
		PositionY: req.PositionY,
		Width:     req.Width,
		Height:    req.Height,
		Color:     req.Color,
		Visible:   req.Visible,
		Actor:     auth.UserIDFromContext(r.Context()),
	})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	w.Header().Set("Location", r.URL.Path+"/"+node.ID().String())
	h.respondNode(w, http.StatusCreated, node)
}

// UpdateNode handles PATCH /ideas/{ideaID}/nodes/{nodeID}
func (h *NodeHandler) UpdateNode(w http.ResponseWriter, r *http.Request) {
	var req api.UpdateNodeRequest
	if err := h.decode(r, &req, false); err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	expected, err := expectedVersion(r, req.ExpectedVersion)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	node, err := h.service.UpdateFields(r.Context(), commands.UpdateNodeFieldsCommand{
		IdeaID:          chi.URLParam(r, "ideaID"),
		NodeID:          chi.URLParam(r, "nodeID"),
		Title:           req.Title,
		Content:         req.Content,
		Type:            req.Type,
		Color:           req.Color,
		Width:           req.Width,
		Height:          req.Height,
		Visible:         req.Visible,
		ExpectedVersion: expected,
		Actor:           auth.UserIDFromContext(r.Context()),
	})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	h.respondNode(w, http.StatusOK, node)
}

// UpdatePosition handles PUT /ideas/{ideaID}/nodes/{nodeID}/position
func (h *NodeHandler) UpdatePosition(w http.ResponseWriter, r *http.Request) {
	var req api.UpdatePositionRequest
	if err := h.decode(r, &req, false); err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	expected, err := expectedVersion(r, req.ExpectedVersion)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	node, err := h.service.UpdatePosition(r.Context(), commands.UpdateNodePositionCommand{
		IdeaID:          chi.URLParam(r, "ideaID"),
		NodeID:          chi.URLParam(r, "nodeID"),
		X:               *req.PositionX,
		Y:               *req.PositionY,
		ExpectedVersion: expected,
		Actor:           auth.UserIDFromContext(r.Context()),
	})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	h.respondNode(w, http.StatusOK, node)
}

// UpdateConnections handles PUT /ideas/{ideaID}/nodes/{nodeID}/connections
func (h *NodeHandler) UpdateConnections(w http.ResponseWriter, r *http.Request) {
	var req api.UpdateConnectionsRequest
	if err := h.decode(r, &req, false); err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	expected, err := expectedVersion(r, req.ExpectedVersion)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	node, err := h.service.UpdateConnections(r.Context(), commands.UpdateNodeConnectionsCommand{
		IdeaID:          chi.URLParam(r, "ideaID"),
		NodeID:          chi.URLParam(r, "nodeID"),
		Connections:     req.Connections,
		ExpectedVersion: expected,
		Actor:           auth.UserIDFromContext(r.Context()),
	})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	h.respondNode(w, http.StatusOK, node)
}

// Connect handles POST /ideas/{ideaID}/nodes/{nodeID}/connections. The
// server appends the target to the stored list.
func (h *NodeHandler) Connect(w http.ResponseWriter, r *http.Request) {
	var req api.ConnectRequest
	if err := h.decode(r, &req, false); err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	node, err := h.service.Connect(r.Context(), commands.ConnectNodesCommand{
		IdeaID:   chi.URLParam(r, "ideaID"),
		SourceID: chi.URLParam(r, "nodeID"),
		TargetID: req.TargetID,
		Actor:    auth.UserIDFromContext(r.Context()),
	})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	h.respondNode(w, http.StatusOK, node)
}

// DeleteNode handles DELETE /ideas/{ideaID}/nodes/{nodeID}
func (h *NodeHandler) DeleteNode(w http.ResponseWriter, r *http.Request) {
	expected, err := expectedVersion(r, nil)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	result, err := h.service.Delete(r.Context(), commands.DeleteNodeCommand{
		IdeaID:          chi.URLParam(r, "ideaID"),
		NodeID:          chi.URLParam(r, "nodeID"),
		ExpectedVersion: expected,
		Actor:           auth.UserIDFromContext(r.Context()),
	})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	if len(result.Scrubbed) > 0 {
		w.Header().Set("X-Scrubbed-Nodes", strconv.Itoa(len(result.Scrubbed)))
	}
	w.WriteHeader(http.StatusNoContent)
}

// decode reads a JSON body into dst and validates it. With allowEmpty an
// empty body leaves dst at its zero value.
func (h *NodeHandler) decode(r *http.Request, dst interface{}, allowEmpty bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) && allowEmpty {
			return nil
		}
		return pkgerrors.NewValidationError("invalid request body: " + err.Error())
	}
	return utils.ValidateStruct(dst)
}

// expectedVersion merges the If-Match header with the body field. Both
// may be given only if they agree.
func expectedVersion(r *http.Request, fromBody *int) (*int, error) {
	header := strings.TrimSpace(r.Header.Get("If-Match"))
	if header == "" || header == "*" {
		return fromBody, nil
	}
	header = strings.TrimPrefix(header, "W/")
	v, err := strconv.Atoi(strings.Trim(header, `"`))
	if err != nil || v < 1 {
		return nil, pkgerrors.NewValidationError("If-Match must be a node version")
	}
	if fromBody != nil && *fromBody != v {
		return nil, pkgerrors.NewValidationError("If-Match and expectedVersion disagree")
	}
	return &v, nil
}

// ETag renders a node version as a strong entity tag.
func ETag(version int) string {
	return `"` + strconv.Itoa(version) + `"`
}

func (h *NodeHandler) respondNode(w http.ResponseWriter, status int, node *entities.IdeaNode) {
	w.Header().Set("ETag", ETag(node.Version()))
	h.respondJSON(w, status, ToAPINode(node))
}

func (h *NodeHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}
