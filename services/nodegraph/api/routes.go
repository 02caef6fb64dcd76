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
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// RegisterRoutes registers all node graph routes with the router.
//
// Description:
//
//	Registers all /v1/nodegraph/* endpoints with the given Gin router
//	group. /tick needs Options.Rate and /stream needs Options.Hub; without
//	them those routes answer 503 or are absent.
//
// Inputs:
//
//	rg - Gin router group (typically /v1)
//	handlers - The handlers instance
//
// Endpoints:
//
//	GET    /v1/nodegraph/health - Health check
//	GET    /v1/nodegraph/node-types - Registered node types
//	GET    /v1/nodegraph/nodes - Graph snapshot
//	POST   /v1/nodegraph/nodes - Create a node
//	GET    /v1/nodegraph/nodes/:handle - One node
//	DELETE /v1/nodegraph/nodes/:handle - Remove a node
//	PUT    /v1/nodegraph/nodes/:handle/policy - Set update policy and edge
//	PUT    /v1/nodegraph/nodes/:handle/params - Set kernel params
//	GET    /v1/nodegraph/links - List links
//	POST   /v1/nodegraph/links - Connect output to input
//	DELETE /v1/nodegraph/links?node=&port= - Disconnect an input
//	GET    /v1/nodegraph/tick - Tick rate
//	PUT    /v1/nodegraph/tick - Change tick rate
//	GET    /v1/nodegraph/stream - Websocket of tick reports
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	ng := rg.Group("/nodegraph")
	{
		ng.GET("/health", handlers.HandleHealth)
		ng.GET("/node-types", handlers.HandleNodeTypes)

		ng.GET("/nodes", handlers.HandleListNodes)
		ng.POST("/nodes", handlers.HandleCreateNode)
		ng.GET("/nodes/:handle", handlers.HandleGetNode)
		ng.DELETE("/nodes/:handle", handlers.HandleDeleteNode)
		ng.PUT("/nodes/:handle/policy", handlers.HandleSetPolicy)
		ng.PUT("/nodes/:handle/params", handlers.HandleSetParams)

		ng.GET("/links", handlers.HandleListLinks)
		ng.POST("/links", handlers.HandleCreateLink)
		ng.DELETE("/links", handlers.HandleDeleteLink)

		ng.GET("/tick", handlers.HandleGetRate)
		ng.PUT("/tick", handlers.HandleSetRate)

		if handlers.hub != nil {
			ng.GET("/stream", handlers.hub.HandleStream)
		}
	}
}

// RouterOptions configures NewRouter.
type RouterOptions struct {
	// ServiceName labels server spans. Default: "nodegraph".
	ServiceName string

	// Metrics is served at /metrics when non-nil.
	Metrics http.Handler
}

// NewRouter builds a gin engine with recovery, tracing and the node graph
// routes under /v1.
func NewRouter(handlers *Handlers, opts RouterOptions) *gin.Engine {
	if opts.ServiceName == "" {
		opts.ServiceName = "nodegraph"
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(opts.ServiceName))

	if opts.Metrics != nil {
		router.GET("/metrics", gin.WrapH(opts.Metrics))
	}

	v1 := router.Group("/v1")
	RegisterRoutes(v1, handlers)
	return router
}
