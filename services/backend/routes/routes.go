// Copyright (C) 2025 StratForge AI (dev@stratforge.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stratforge-ai/stratforge/services/backend/auth"
	"github.com/stratforge-ai/stratforge/services/backend/handlers"
	"github.com/stratforge-ai/stratforge/services/backend/jobs"
	"github.com/stratforge-ai/stratforge/services/backend/ledger"
	"github.com/stratforge-ai/stratforge/services/backend/middleware"
	"github.com/stratforge-ai/stratforge/services/backend/observability"
	"github.com/stratforge-ai/stratforge/services/backend/store"
)

// Deps carries everything the route table needs. All fields are required
// unless noted.
type Deps struct {
	Orchestrator *jobs.Orchestrator
	Guard        *ledger.Guard
	Processor    *ledger.Processor
	Ledger       *store.LedgerStore
	Versions     *store.VersionStore
	Auth         auth.Provider
	Metrics      *observability.Metrics

	// WebhookSecret signs inbound billing webhooks.
	WebhookSecret []byte

	// ReanalyzeCost is the coin price of one re-analysis.
	ReanalyzeCost int64

	// Registry serves /metrics when non-nil.
	Registry *prometheus.Registry
}

// SetupRoutes wires the HTTP surface.
//
// Webhook routes authenticate by payload signature, not bearer token, so
// they sit outside the /v1 group.
func SetupRoutes(router *gin.Engine, deps Deps) {
	router.GET("/health", handlers.HealthCheck)
	if deps.Registry != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{})))
	}

	webhook := handlers.BillingWebhook(deps.Processor, deps.WebhookSecret, deps.Metrics)
	router.POST("/payments/webhook", webhook)
	router.POST("/subscription/webhook", webhook)

	v1 := router.Group("/v1")
	v1.Use(middleware.AuthMiddleware(deps.Auth))
	{
		strategies := v1.Group("/strategies")
		{
			strategies.POST("", handlers.SubmitStrategy(deps.Orchestrator))
			strategies.GET("/:id", handlers.GetStrategy(deps.Orchestrator))
			strategies.POST("/:id/retry", handlers.RetryStrategy(deps.Orchestrator))
			strategies.POST("/:id/reanalyze", handlers.ReanalyzeStrategy(deps.Orchestrator, deps.Guard, deps.ReanalyzeCost, deps.Metrics))
			strategies.GET("/:id/versions", handlers.ListVersions(deps.Orchestrator, deps.Versions))
		}

		v1.GET("/coins", handlers.GetCoins(deps.Ledger))
		v1.GET("/subscription", handlers.GetSubscription(deps.Ledger))
		v1.GET("/notifications", handlers.ListNotifications(deps.Ledger))
	}
}
