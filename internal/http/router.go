/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package http

import (
    "github.com/gin-gonic/gin"
    "github.com/parthobardhan/github-devin-dashboard/internal/config"
    "github.com/rs/zerolog"
)

func NewRouter(cfg config.Config, log zerolog.Logger, svc any) *gin.Engine {
    if cfg.AppEnv != "dev" { gin.SetMode(gin.ReleaseMode) }
    r := gin.New()
    r.Use(gin.Recovery())
    r.Use(func(c *gin.Context){
        c.Next()
        log.Info().Str("m", c.Request.Method).Str("p", c.FullPath()).Int("s", c.Writer.Status()).Msg("http")
    })

    h := NewHandlers(cfg, log, svc)

    r.GET("/healthz", h.Healthz)

    gh := r.Group("/api/github")
    gh.GET("/issues", h.Issues)
    gh.GET("/issues/:number/analyze", h.AnalyzeIssue)

    dash := r.Group("/api/dashboard")
    dash.GET("/issues", h.DashboardIssues)
    dash.GET("/stats", h.DashboardStats)
    dash.GET("/automation-ready", h.AutomationReady)
    dash.GET("/repositories/:owner/:name/stats", h.RepositoryStats)
    dash.PUT("/repositories/:owner/:name/files", h.PutRepoFiles)

    r.POST("/admin/digest/run", h.RunDigest)

    devin := r.Group("/api/devin")
    devin.GET("/health", h.AgentHealth)
    devin.GET("/stats", h.AgentStats)
    devin.POST("/scope", h.Scope)
    devin.POST("/scope/batch", h.BatchScope)
    devin.POST("/complete", h.Complete)
    devin.POST("/issues/:number/implement", h.StartImplementation)
    devin.GET("/sessions", h.Sessions)
    devin.GET("/sessions/:id", h.Session)
    devin.POST("/sessions/:id/message", h.SessionMessage)
    devin.DELETE("/scope-data", h.ClearScopeData)

    return r
}
