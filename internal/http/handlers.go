/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package http

import (
    "context"
    "errors"
    "net/http"
    "strconv"

    "github.com/gin-gonic/gin"
    "github.com/parthobardhan/github-devin-dashboard/internal/config"
    "github.com/parthobardhan/github-devin-dashboard/internal/domain"
    "github.com/parthobardhan/github-devin-dashboard/internal/services"
    "github.com/rs/zerolog"
)

type service interface {
    AnalyzeIssue(ctx context.Context, repo string, number int) (domain.Issue, domain.IssueAnalysis, error)
    ListIssues(ctx context.Context, repo string, f domain.IssueFilter) (domain.IssuesPage, error)
    DashboardIssues(ctx context.Context, f domain.DashboardFilter) ([]domain.IssueWithAnalysis, error)
    DashboardStats(ctx context.Context) (domain.DashboardStats, error)
    AutomationReady(ctx context.Context, limit int) ([]domain.IssueWithAnalysis, error)
    RepositoryStats(ctx context.Context, repo string) (domain.RepositoryStats, error)
    RunScoping(ctx context.Context, repo string, issueNumber int) (domain.ScopeResult, error)
    BatchScope(ctx context.Context, repo string, issueNumbers []int) ([]services.BatchScopeItem, error)
    RunCompletion(ctx context.Context, repo string, issueNumber int, useExistingScope bool) (domain.CompletionResult, error)
    RunImplementationGate(ctx context.Context, repo string, issueNumber int) (domain.ImplementationGate, error)
    SessionStatus(ctx context.Context, sessionID string) (*domain.Session, error)
    SendSessionMessage(ctx context.Context, sessionID, message string) error
    ListSessions(ctx context.Context, repo string, limit int) ([]domain.SessionSummary, error)
    SaveRepoFiles(ctx context.Context, repo string, files []domain.RepoFile) error
    ClearScopingData(ctx context.Context) (map[string]int64, error)
    AgentStats(ctx context.Context) (map[string]int, error)
    ProbeAgent(ctx context.Context) error
    RunWeeklyDigest(ctx context.Context) error
}

type Handlers struct {
    cfg config.Config
    log zerolog.Logger
    svc service
}

func NewHandlers(cfg config.Config, log zerolog.Logger, svc any) *Handlers {
    return &Handlers{cfg: cfg, log: log, svc: svc.(service)}
}

// fail maps domain sentinels onto HTTP statuses.
func fail(c *gin.Context, err error) {
    status := http.StatusInternalServerError
    switch {
    case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrBadRequest):
        status = http.StatusBadRequest
    case errors.Is(err, domain.ErrNotFound):
        status = http.StatusNotFound
    case errors.Is(err, domain.ErrUnauthorized):
        status = http.StatusUnauthorized
    case errors.Is(err, domain.ErrRemoteTimeout):
        status = http.StatusGatewayTimeout
    case errors.Is(err, domain.ErrRemoteServer):
        status = http.StatusBadGateway
    }
    c.JSON(status, gin.H{"error": err.Error()})
}

func (h *Handlers) repoParam(c *gin.Context) (string, bool) {
    repo := c.Query("repository")
    if repo == "" && len(h.cfg.GitHubRepos) > 0 { repo = h.cfg.GitHubRepos[0] }
    if repo == "" {
        c.JSON(http.StatusBadRequest, gin.H{"error": "repository is required"})
        return "", false
    }
    return repo, true
}

func (h *Handlers) Healthz(c *gin.Context) {
    c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handlers) Issues(c *gin.Context) {
    repo, ok := h.repoParam(c)
    if !ok { return }
    f := domain.IssueFilter{
        State:     c.DefaultQuery("state", "open"),
        Sort:      c.Query("sort"),
        Direction: c.Query("direction"),
        PerPage:   atoiDefault(c.Query("per_page"), 30),
        Page:      atoiDefault(c.Query("page"), 1),
    }
    if labels := c.Query("labels"); labels != "" { f.Labels = []string{labels} }
    page, err := h.svc.ListIssues(c.Request.Context(), repo, f)
    if err != nil { fail(c, err); return }
    c.JSON(http.StatusOK, page)
}

func (h *Handlers) AnalyzeIssue(c *gin.Context) {
    repo, ok := h.repoParam(c)
    if !ok { return }
    number, err := strconv.Atoi(c.Param("number"))
    if err != nil || number <= 0 {
        c.JSON(http.StatusBadRequest, gin.H{"error": "invalid issue number"})
        return
    }
    issue, analysis, err := h.svc.AnalyzeIssue(c.Request.Context(), repo, number)
    if err != nil { fail(c, err); return }
    c.JSON(http.StatusOK, gin.H{"issue": issue, "analysis": analysis})
}

func (h *Handlers) DashboardIssues(c *gin.Context) {
    f := domain.DashboardFilter{
        Repository:          c.Query("repository"),
        ConfidenceLevel:     domain.ConfidenceLevel(c.Query("confidence_level")),
        ComplexityLevel:     domain.ComplexityLevel(c.Query("complexity_level")),
        AutomationReadyOnly: c.Query("automation_ready") == "true",
        SortBy:              c.DefaultQuery("sort_by", "priority"),
        SortOrder:           c.DefaultQuery("sort_order", "desc"),
        Limit:               atoiDefault(c.Query("limit"), 0),
    }
    items, err := h.svc.DashboardIssues(c.Request.Context(), f)
    if err != nil { fail(c, err); return }
    c.JSON(http.StatusOK, gin.H{"issues": items, "total_count": len(items)})
}

func (h *Handlers) DashboardStats(c *gin.Context) {
    stats, err := h.svc.DashboardStats(c.Request.Context())
    if err != nil { fail(c, err); return }
    c.JSON(http.StatusOK, stats)
}

func (h *Handlers) AutomationReady(c *gin.Context) {
    limit := atoiDefault(c.Query("limit"), 10)
    items, err := h.svc.AutomationReady(c.Request.Context(), limit)
    if err != nil { fail(c, err); return }
    c.JSON(http.StatusOK, gin.H{"issues": items, "total_count": len(items)})
}

func (h *Handlers) RepositoryStats(c *gin.Context) {
    repo := c.Param("owner") + "/" + c.Param("name")
    stats, err := h.svc.RepositoryStats(c.Request.Context(), repo)
    if err != nil { fail(c, err); return }
    c.JSON(http.StatusOK, stats)
}

type scopeRequest struct {
    Repository  string `json:"repository" binding:"required"`
    IssueNumber int    `json:"issue_number" binding:"required,gt=0"`
}

func (h *Handlers) Scope(c *gin.Context) {
    var req scopeRequest
    if err := c.ShouldBindJSON(&req); err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }
    res, err := h.svc.RunScoping(c.Request.Context(), req.Repository, req.IssueNumber)
    if err != nil { fail(c, err); return }
    c.JSON(http.StatusOK, res)
}

type batchScopeRequest struct {
    Repository   string `json:"repository" binding:"required"`
    IssueNumbers []int  `json:"issue_numbers" binding:"required"`
}

func (h *Handlers) BatchScope(c *gin.Context) {
    var req batchScopeRequest
    if err := c.ShouldBindJSON(&req); err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }
    items, err := h.svc.BatchScope(c.Request.Context(), req.Repository, req.IssueNumbers)
    if err != nil { fail(c, err); return }
    c.JSON(http.StatusOK, gin.H{"results": items, "total_count": len(items)})
}

type completeRequest struct {
    Repository       string `json:"repository" binding:"required"`
    IssueNumber      int    `json:"issue_number" binding:"required,gt=0"`
    UseExistingScope *bool  `json:"use_existing_scope"`
}

func (h *Handlers) Complete(c *gin.Context) {
    var req completeRequest
    if err := c.ShouldBindJSON(&req); err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }
    useExisting := true
    if req.UseExistingScope != nil { useExisting = *req.UseExistingScope }
    res, err := h.svc.RunCompletion(c.Request.Context(), req.Repository, req.IssueNumber, useExisting)
    if err != nil { fail(c, err); return }
    c.JSON(http.StatusOK, res)
}

func (h *Handlers) StartImplementation(c *gin.Context) {
    repo, ok := h.repoParam(c)
    if !ok { return }
    number, err := strconv.Atoi(c.Param("number"))
    if err != nil || number <= 0 {
        c.JSON(http.StatusBadRequest, gin.H{"error": "invalid issue number"})
        return
    }
    gate, err := h.svc.RunImplementationGate(c.Request.Context(), repo, number)
    if err != nil { fail(c, err); return }
    c.JSON(http.StatusOK, gate)
}

func (h *Handlers) Session(c *gin.Context) {
    session, err := h.svc.SessionStatus(c.Request.Context(), c.Param("id"))
    if err != nil { fail(c, err); return }
    if session == nil {
        c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
        return
    }
    c.JSON(http.StatusOK, session)
}

type messageRequest struct {
    Message string `json:"message" binding:"required"`
}

func (h *Handlers) SessionMessage(c *gin.Context) {
    var req messageRequest
    if err := c.ShouldBindJSON(&req); err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }
    if err := h.svc.SendSessionMessage(c.Request.Context(), c.Param("id"), req.Message); err != nil {
        fail(c, err)
        return
    }
    c.JSON(http.StatusOK, gin.H{"status": "sent"})
}

func (h *Handlers) Sessions(c *gin.Context) {
    limit := atoiDefault(c.Query("limit"), 50)
    sessions, err := h.svc.ListSessions(c.Request.Context(), c.Query("repository"), limit)
    if err != nil { fail(c, err); return }
    c.JSON(http.StatusOK, gin.H{"sessions": sessions, "total_count": len(sessions)})
}

type repoFilesRequest struct {
    Files []domain.RepoFile `json:"files" binding:"required"`
}

func (h *Handlers) PutRepoFiles(c *gin.Context) {
    var req repoFilesRequest
    if err := c.ShouldBindJSON(&req); err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }
    repo := c.Param("owner") + "/" + c.Param("name")
    if err := h.svc.SaveRepoFiles(c.Request.Context(), repo, req.Files); err != nil {
        fail(c, err)
        return
    }
    c.JSON(http.StatusOK, gin.H{"status": "saved", "count": len(req.Files)})
}

func (h *Handlers) ClearScopeData(c *gin.Context) {
    counts, err := h.svc.ClearScopingData(c.Request.Context())
    if err != nil { fail(c, err); return }
    c.JSON(http.StatusOK, gin.H{"status": "cleared", "removed": counts})
}

func (h *Handlers) AgentStats(c *gin.Context) {
    stats, err := h.svc.AgentStats(c.Request.Context())
    if err != nil { fail(c, err); return }
    c.JSON(http.StatusOK, stats)
}

func (h *Handlers) RunDigest(c *gin.Context) {
    // Run in background detached from the HTTP request to avoid context cancellation
    go func(){ _ = h.svc.RunWeeklyDigest(context.Background()) }()
    c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}

func (h *Handlers) AgentHealth(c *gin.Context) {
    if err := h.svc.ProbeAgent(c.Request.Context()); err != nil {
        fail(c, err)
        return
    }
    c.JSON(http.StatusOK, gin.H{"status": "connected"})
}

func atoiDefault(s string, def int) int {
    if s == "" { return def }
    n, err := strconv.Atoi(s)
    if err != nil { return def }
    return n
}
