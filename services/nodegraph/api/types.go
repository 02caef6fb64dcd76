// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package api

import (
	"github.com/AleutianAI/nodegraph/services/nodegraph/dataflow"
	"github.com/AleutianAI/nodegraph/services/nodegraph/host"
)

// ServiceVersion is reported by the health endpoint.
const ServiceVersion = "0.1.0"

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	// Error is the error message.
	Error string `json:"error"`

	// Code is a stable machine-readable code.
	Code string `json:"code"`

	// Cycle is the node path of a rejected link, when Code is LINK_CYCLE.
	Cycle []dataflow.Handle `json:"cycle,omitempty"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Nodes   int    `json:"nodes"`
	Ticks   uint64 `json:"ticks"`
	Clients int    `json:"stream_clients"`
}

// NodeType describes one registered node type.
type NodeType struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Category    string `json:"category"`
	Description string `json:"description,omitempty"`
}

// NodeTypesResponse is returned by GET /node-types, sorted by ID.
type NodeTypesResponse struct {
	Types []NodeType `json:"types"`
}

// CreateNodeRequest is the body of POST /nodes.
type CreateNodeRequest struct {
	TypeID string `json:"type_id" binding:"required"`

	// Policy and Edge are optional; see PolicyRequest.
	Policy string `json:"policy,omitempty"`
	Edge   string `json:"edge,omitempty"`

	// Params are applied in key order after construction.
	Params map[string]string `json:"params,omitempty"`
}

// PolicyRequest is the body of PUT /nodes/:handle/policy. Empty fields
// leave the current setting in place.
type PolicyRequest struct {
	Policy string `json:"policy"`
	Edge   string `json:"edge"`
}

// ParamsRequest is the body of PUT /nodes/:handle/params.
type ParamsRequest struct {
	Params map[string]string `json:"params" binding:"required"`
}

// EndpointRequest names a port by handle string ("index.generation").
type EndpointRequest struct {
	Node string `json:"node" binding:"required"`
	Port string `json:"port" binding:"required"`
}

// LinkRequest is the body of POST /links.
type LinkRequest struct {
	From EndpointRequest `json:"from" binding:"required"`
	To   EndpointRequest `json:"to" binding:"required"`
}

// LinksResponse is returned by GET /links.
type LinksResponse struct {
	Links []host.Link `json:"links"`
}

// RateRequest is the body of PUT /tick.
type RateRequest struct {
	RateHz *float64 `json:"rate_hz" binding:"required"`
}

// RateResponse is returned by GET and PUT /tick.
type RateResponse struct {
	RateHz float64 `json:"rate_hz"`
	Ticks  uint64  `json:"ticks"`
}

// StreamMessage is one websocket frame of GET /stream.
type StreamMessage struct {
	// Type is "hello" for the first frame and "tick" afterwards.
	Type     string           `json:"type"`
	ClientID string           `json:"client_id,omitempty"`
	Tick     *host.TickReport `json:"tick,omitempty"`
}
