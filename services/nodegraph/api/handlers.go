// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package api exposes a host.Graph over HTTP.
//
// Routes live under /v1/nodegraph. Reads return host snapshots; writes go
// through the graph's mutex, so the API is safe to serve while a
// host.Runner ticks the same graph.
package api

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleutianAI/nodegraph/services/nodegraph/dataflow"
	"github.com/AleutianAI/nodegraph/services/nodegraph/host"
	"github.com/AleutianAI/nodegraph/services/nodegraph/nodes"
	"github.com/AleutianAI/nodegraph/services/nodegraph/registry"
)

// errNoControls is returned when changing the policy of a node that opts
// out of execution controls.
var errNoControls = errors.New("node does not expose execution controls")

// RateController adjusts the tick rate. host.Runner implements it.
type RateController interface {
	SetRate(hz float64)
	Rate() float64
}

// Options configures Handlers.
type Options struct {
	// Rate enables GET/PUT /tick when set.
	Rate RateController

	// Hub enables GET /stream when set.
	Hub *Hub

	// Logger for request handling. If nil, uses slog.Default().
	Logger *slog.Logger
}

// Handlers serves the node graph API.
//
// Thread Safety: Safe for concurrent use.
type Handlers struct {
	graph    *host.Graph
	registry *registry.Registry
	rate     RateController
	hub      *Hub
	logger   *slog.Logger
}

// NewHandlers creates handlers over g. reg lists the creatable node types
// and should be the registry g was built with.
func NewHandlers(g *host.Graph, reg *registry.Registry, opts Options) *Handlers {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		graph:    g,
		registry: reg,
		rate:     opts.Rate,
		hub:      opts.Hub,
		logger:   logger,
	}
}

// HandleHealth handles GET /v1/nodegraph/health.
//
// Response:
//
//	200 OK: HealthResponse
func (h *Handlers) HandleHealth(c *gin.Context) {
	resp := HealthResponse{
		Status:  "healthy",
		Version: ServiceVersion,
		Nodes:   h.graph.Len(),
		Ticks:   h.graph.Ticks(),
	}
	if h.hub != nil {
		resp.Clients = h.hub.Clients()
	}
	c.JSON(http.StatusOK, resp)
}

// HandleNodeTypes handles GET /v1/nodegraph/node-types.
//
// Response:
//
//	200 OK: NodeTypesResponse
func (h *Handlers) HandleNodeTypes(c *gin.Context) {
	resp := NodeTypesResponse{Types: []NodeType{}}
	if h.registry != nil {
		descs := h.registry.List()
		for _, id := range h.registry.IDs() {
			d := descs[id]
			resp.Types = append(resp.Types, NodeType{
				ID:          id,
				DisplayName: d.DisplayName,
				Category:    d.Category,
				Description: d.Description,
			})
		}
	}
	c.JSON(http.StatusOK, resp)
}

// HandleListNodes handles GET /v1/nodegraph/nodes.
//
// Response:
//
//	200 OK: host.Snapshot
func (h *Handlers) HandleListNodes(c *gin.Context) {
	c.JSON(http.StatusOK, h.graph.Snapshot())
}

// HandleGetNode handles GET /v1/nodegraph/nodes/:handle.
//
// Response:
//
//	200 OK: host.NodeView
//	400 Bad Request: Malformed handle
//	404 Not Found: No such node
func (h *Handlers) HandleGetNode(c *gin.Context) {
	handle, ok := h.handleParam(c)
	if !ok {
		return
	}
	view, found := h.graph.View(handle)
	if !found {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "node not found", Code: "NODE_NOT_FOUND"})
		return
	}
	c.JSON(http.StatusOK, view)
}

// HandleCreateNode handles POST /v1/nodegraph/nodes.
//
// Description:
//
//	Creates a node from the registry, then applies the optional policy,
//	edge and params. If any of those fail the node is removed again.
//
// Request Body:
//
//	CreateNodeRequest
//
// Response:
//
//	201 Created: host.NodeView
//	400 Bad Request: Unknown type, bad policy or bad param
//	409 Conflict: Policy set on a node without execution controls
func (h *Handlers) HandleCreateNode(c *gin.Context) {
	logger := h.requestLogger(c, "HandleCreateNode")

	var req CreateNodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Code: "INVALID_REQUEST"})
		return
	}

	handle, err := h.graph.AddNode(req.TypeID)
	if err != nil {
		h.writeError(c, logger, err)
		return
	}

	err = h.graph.WithNode(handle, func(n *dataflow.Node) error {
		if req.Policy != "" || req.Edge != "" {
			if err := applyPolicy(n, PolicyRequest{Policy: req.Policy, Edge: req.Edge}); err != nil {
				return err
			}
		}
		return applyParams(n, req.Params)
	})
	if err != nil {
		if rmErr := h.graph.RemoveNode(handle); rmErr != nil {
			logger.Error("rollback failed", slog.String("handle", handle.String()), slog.String("error", rmErr.Error()))
		}
		h.writeError(c, logger, err)
		return
	}

	view, _ := h.graph.View(handle)
	logger.Info("node created", slog.String("handle", handle.String()), slog.String("type", req.TypeID))
	c.JSON(http.StatusCreated, view)
}

// HandleDeleteNode handles DELETE /v1/nodegraph/nodes/:handle.
//
// Response:
//
//	204 No Content
//	404 Not Found: No such node
func (h *Handlers) HandleDeleteNode(c *gin.Context) {
	logger := h.requestLogger(c, "HandleDeleteNode")
	handle, ok := h.handleParam(c)
	if !ok {
		return
	}
	if err := h.graph.RemoveNode(handle); err != nil {
		h.writeError(c, logger, err)
		return
	}
	logger.Info("node removed", slog.String("handle", handle.String()))
	c.Status(http.StatusNoContent)
}

// HandleSetPolicy handles PUT /v1/nodegraph/nodes/:handle/policy.
//
// Response:
//
//	200 OK: host.NodeView
//	400 Bad Request: Unknown policy or edge
//	404 Not Found: No such node
//	409 Conflict: Node has no execution controls
func (h *Handlers) HandleSetPolicy(c *gin.Context) {
	logger := h.requestLogger(c, "HandleSetPolicy")
	handle, ok := h.handleParam(c)
	if !ok {
		return
	}
	var req PolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Code: "INVALID_REQUEST"})
		return
	}
	if err := h.graph.WithNode(handle, func(n *dataflow.Node) error {
		return applyPolicy(n, req)
	}); err != nil {
		h.writeError(c, logger, err)
		return
	}
	view, _ := h.graph.View(handle)
	c.JSON(http.StatusOK, view)
}

// HandleSetParams handles PUT /v1/nodegraph/nodes/:handle/params.
//
// Description:
//
//	Applies each param in key order. A parameter that rebuilds ports may
//	drop links whose ports no longer match; the returned view reflects the
//	rebuilt node.
//
// Response:
//
//	200 OK: host.NodeView
//	400 Bad Request: Unknown or invalid param, or node not configurable
//	404 Not Found: No such node
func (h *Handlers) HandleSetParams(c *gin.Context) {
	logger := h.requestLogger(c, "HandleSetParams")
	handle, ok := h.handleParam(c)
	if !ok {
		return
	}
	var req ParamsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Code: "INVALID_REQUEST"})
		return
	}
	if err := h.graph.WithNode(handle, func(n *dataflow.Node) error {
		return applyParams(n, req.Params)
	}); err != nil {
		h.writeError(c, logger, err)
		return
	}
	view, _ := h.graph.View(handle)
	c.JSON(http.StatusOK, view)
}

// HandleListLinks handles GET /v1/nodegraph/links.
func (h *Handlers) HandleListLinks(c *gin.Context) {
	c.JSON(http.StatusOK, LinksResponse{Links: h.graph.Links()})
}

// HandleCreateLink handles POST /v1/nodegraph/links.
//
// Request Body:
//
//	LinkRequest
//
// Response:
//
//	201 Created: host.Link
//	400 Bad Request: Bad handle, missing port, wrong direction or type mismatch
//	404 Not Found: No such node
//	409 Conflict: Input already linked, or the link would close a cycle
func (h *Handlers) HandleCreateLink(c *gin.Context) {
	logger := h.requestLogger(c, "HandleCreateLink")

	var req LinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Code: "INVALID_REQUEST"})
		return
	}
	from, err := endpointOf(req.From)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_HANDLE"})
		return
	}
	to, err := endpointOf(req.To)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_HANDLE"})
		return
	}

	if err := h.graph.Connect(from, to); err != nil {
		h.writeError(c, logger, err)
		return
	}
	logger.Info("link created", slog.String("from", from.String()), slog.String("to", to.String()))
	c.JSON(http.StatusCreated, host.Link{From: from, To: to})
}

// HandleDeleteLink handles DELETE /v1/nodegraph/links.
//
// Query Parameters:
//
//	node: Target node handle
//	port: Target input port
//
// Response:
//
//	204 No Content
//	404 Not Found: Input not linked
func (h *Handlers) HandleDeleteLink(c *gin.Context) {
	logger := h.requestLogger(c, "HandleDeleteLink")
	to, err := endpointOf(EndpointRequest{Node: c.Query("node"), Port: c.Query("port")})
	if err != nil || to.Port == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "node and port query parameters are required", Code: "INVALID_REQUEST"})
		return
	}
	if err := h.graph.Disconnect(to); err != nil {
		h.writeError(c, logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// HandleGetRate handles GET /v1/nodegraph/tick.
func (h *Handlers) HandleGetRate(c *gin.Context) {
	if h.rate == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "no runner attached", Code: "NO_RUNNER"})
		return
	}
	c.JSON(http.StatusOK, RateResponse{RateHz: h.rate.Rate(), Ticks: h.graph.Ticks()})
}

// HandleSetRate handles PUT /v1/nodegraph/tick.
//
// Response:
//
//	200 OK: RateResponse
//	400 Bad Request: Missing or negative rate
//	503 Service Unavailable: No runner attached
func (h *Handlers) HandleSetRate(c *gin.Context) {
	if h.rate == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "no runner attached", Code: "NO_RUNNER"})
		return
	}
	var req RateRequest
	if err := c.ShouldBindJSON(&req); err != nil || *req.RateHz < 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "rate_hz must be a non-negative number", Code: "INVALID_REQUEST"})
		return
	}
	h.rate.SetRate(*req.RateHz)
	c.JSON(http.StatusOK, RateResponse{RateHz: h.rate.Rate(), Ticks: h.graph.Ticks()})
}

func applyPolicy(n *dataflow.Node, req PolicyRequest) error {
	if !n.NeedsExecutionControls() {
		return errNoControls
	}
	if req.Policy != "" {
		p, err := dataflow.ParseUpdatePolicy(req.Policy)
		if err != nil {
			return invalidInput(err)
		}
		n.SetUpdatePolicy(p)
	}
	if req.Edge != "" {
		e, err := dataflow.ParseTriggerEdge(req.Edge)
		if err != nil {
			return invalidInput(err)
		}
		n.SetTriggerEdge(e)
	}
	return nil
}

// applyParams configures keys in sorted order. A failing key restores the
// params the node had before the call, so a rejected request changes nothing.
func applyParams(n *dataflow.Node, params map[string]string) error {
	prior := nodes.Params(n)
	for _, key := range slices.Sorted(maps.Keys(params)) {
		if err := nodes.Configure(n, key, params[key]); err != nil {
			return errors.Join(err, restoreParams(n, prior))
		}
	}
	return nil
}

// restoreParams replays a Params snapshot. Composite keys make some entries
// redundant, so the result is checked instead of each step.
func restoreParams(n *dataflow.Node, prior map[string]string) error {
	for _, key := range slices.Sorted(maps.Keys(prior)) {
		_ = nodes.Configure(n, key, prior[key])
	}
	if !maps.Equal(nodes.Params(n), prior) {
		return fmt.Errorf("restore params: node left at %v", nodes.Params(n))
	}
	return nil
}

func endpointOf(req EndpointRequest) (host.Endpoint, error) {
	h, err := dataflow.ParseHandle(req.Node)
	if err != nil {
		return host.Endpoint{}, err
	}
	return host.Endpoint{Node: h, Port: req.Port}, nil
}

// handleParam parses the :handle path parameter, writing a 400 on failure.
func (h *Handlers) handleParam(c *gin.Context) (dataflow.Handle, bool) {
	handle, err := dataflow.ParseHandle(c.Param("handle"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_HANDLE"})
		return dataflow.Handle{}, false
	}
	return handle, true
}

func (h *Handlers) requestLogger(c *gin.Context, handler string) *slog.Logger {
	return h.logger.With(
		slog.String("request_id", getOrCreateRequestID(c)),
		slog.String("handler", handler),
	)
}

// getOrCreateRequestID gets or creates a request ID.
func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}

// inputError marks errors caused by malformed request values.
type inputError struct{ err error }

func (e *inputError) Error() string { return e.err.Error() }
func (e *inputError) Unwrap() error { return e.err }

func invalidInput(err error) error { return &inputError{err: err} }

// writeError maps domain errors to status codes.
func (h *Handlers) writeError(c *gin.Context, logger *slog.Logger, err error) {
	status := http.StatusInternalServerError
	resp := ErrorResponse{Error: err.Error(), Code: "INTERNAL"}

	var cycle *host.CycleError
	var input *inputError
	switch {
	case errors.As(err, &cycle):
		status, resp.Code, resp.Cycle = http.StatusConflict, "LINK_CYCLE", cycle.Path
	case errors.Is(err, host.ErrInputLinked):
		status, resp.Code = http.StatusConflict, "INPUT_LINKED"
	case errors.Is(err, errNoControls):
		status, resp.Code = http.StatusConflict, "NO_EXECUTION_CONTROLS"
	case errors.Is(err, host.ErrNodeNotFound):
		status, resp.Code = http.StatusNotFound, "NODE_NOT_FOUND"
	case errors.Is(err, host.ErrNotLinked):
		status, resp.Code = http.StatusNotFound, "NOT_LINKED"
	case errors.Is(err, host.ErrUnknownNodeType), errors.Is(err, host.ErrNilRegistry):
		status, resp.Code = http.StatusBadRequest, "UNKNOWN_NODE_TYPE"
	case errors.Is(err, dataflow.ErrPortNotFound):
		status, resp.Code = http.StatusBadRequest, "PORT_NOT_FOUND"
	case errors.Is(err, dataflow.ErrWrongDirection):
		status, resp.Code = http.StatusBadRequest, "WRONG_DIRECTION"
	case errors.Is(err, dataflow.ErrTypeMismatch):
		status, resp.Code = http.StatusBadRequest, "TYPE_MISMATCH"
	case errors.Is(err, nodes.ErrNotConfigurable):
		status, resp.Code = http.StatusBadRequest, "NOT_CONFIGURABLE"
	case errors.Is(err, nodes.ErrUnknownParam), errors.Is(err, nodes.ErrInvalidParam),
		errors.Is(err, nodes.ErrUnsupportedConversion), errors.As(err, &input):
		status, resp.Code = http.StatusBadRequest, "INVALID_PARAM"
	}

	if status >= http.StatusInternalServerError {
		logger.Error("request failed", slog.String("error", err.Error()))
	} else {
		logger.Warn("request rejected", slog.String("code", resp.Code), slog.String("error", err.Error()))
	}
	c.JSON(status, resp)
}
