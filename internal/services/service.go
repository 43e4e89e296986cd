/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package services

import (
    "context"
    "errors"
    "fmt"
    "sync"
    "time"

    "github.com/parthobardhan/github-devin-dashboard/internal/adapters/devin"
    "github.com/parthobardhan/github-devin-dashboard/internal/analysis"
    "github.com/parthobardhan/github-devin-dashboard/internal/config"
    "github.com/parthobardhan/github-devin-dashboard/internal/domain"
    "github.com/rs/zerolog"
)

type IssueSource interface {
    Issue(ctx context.Context, repo string, number int) (domain.Issue, error)
    Issues(ctx context.Context, repo string, f domain.IssueFilter) (domain.IssuesPage, error)
    Comments(ctx context.Context, repo string, number int) ([]domain.Comment, error)
}

type AgentClient interface {
    CreateSession(ctx context.Context, prompt string, tags []string) (devin.SessionResponse, error)
    GetSession(ctx context.Context, sessionID string) (devin.SessionDetails, error)
    SendMessage(ctx context.Context, sessionID, message string) error
    ListSessions(ctx context.Context) ([]devin.SessionDetails, error)
}

type Store interface {
    SaveSession(ctx context.Context, s domain.Session) error
    GetSession(ctx context.Context, sessionID string) (*domain.Session, error)
    MostRecentSession(ctx context.Context, repo string, issueNumber int) (*domain.Session, error)
    ListSessions(ctx context.Context, repo string, limit int) ([]domain.SessionSummary, error)
    ActiveSessionsForIssue(ctx context.Context, repo string, issueNumber int) ([]domain.SessionSummary, error)
    SessionStats(ctx context.Context) (total, active, completed, failed, startedToday, completedToday int, err error)
    SaveScopeResult(ctx context.Context, sr domain.ScopeResult) error
    RecentScopeSummaries(ctx context.Context, repo string, limit int) ([]domain.ScopeSummary, error)
    RelevantFiles(ctx context.Context, repo string, limit int) ([]domain.RepoFile, error)
    UpsertRepoFiles(ctx context.Context, files []domain.RepoFile) error
    ClearScopingData(ctx context.Context) (sessions, results int64, err error)
    StartJobRun(ctx context.Context, kind string) (int64, error)
    FinishJobRun(ctx context.Context, id int64, success bool, errStr string) error
}

type LLM interface {
    SummarizeDigest(ctx context.Context, stats domain.DashboardStats, topIssues []domain.IssueWithAnalysis) (string, error)
}

type Notifier interface {
    SendMessage(ctx context.Context, chatID int64, text string) error
    SendMessagePlain(ctx context.Context, chatID int64, text string) error
}

// Service drives the scope and completion workflows and keeps per-issue
// caches of analyses and scope results keyed by repository#issue_number.
// A new run overwrites the cached entry wholesale.
type Service struct {
    cfg      config.Config
    log      zerolog.Logger
    store    Store
    issues   IssueSource
    agent    AgentClient
    llm      LLM
    tg       Notifier
    analyzer *analysis.Analyzer

    mu          sync.RWMutex
    scopeCache  map[string]domain.ScopeResult
    analysisMap map[string]domain.IssueAnalysis
}

func New(cfg config.Config, log zerolog.Logger, store Store, issues IssueSource, agent AgentClient, llm LLM, tg Notifier, analyzer *analysis.Analyzer) *Service {
    return &Service{
        cfg: cfg, log: log, store: store, issues: issues, agent: agent, llm: llm, tg: tg,
        analyzer:    analyzer,
        scopeCache:  map[string]domain.ScopeResult{},
        analysisMap: map[string]domain.IssueAnalysis{},
    }
}

func issueKey(repo string, number int) string { return fmt.Sprintf("%s#%d", repo, number) }

// Analyze runs the deterministic scorer and caches the result per issue.
func (s *Service) Analyze(issue domain.Issue) domain.IssueAnalysis {
    a := s.analyzer.Analyze(issue)
    s.mu.Lock()
    s.analysisMap[issueKey(a.RepositoryName, a.IssueNumber)] = a
    s.mu.Unlock()
    return a
}

func (s *Service) CachedAnalysis(repo string, number int) (domain.IssueAnalysis, bool) {
    s.mu.RLock()
    defer s.mu.RUnlock()
    a, ok := s.analysisMap[issueKey(repo, number)]
    return a, ok
}

func (s *Service) CachedScopeResult(repo string, number int) (domain.ScopeResult, bool) {
    s.mu.RLock()
    defer s.mu.RUnlock()
    sr, ok := s.scopeCache[issueKey(repo, number)]
    return sr, ok
}

// AnalyzeIssue fetches one issue and runs the deterministic scorer on it.
func (s *Service) AnalyzeIssue(ctx context.Context, repo string, number int) (domain.Issue, domain.IssueAnalysis, error) {
    issue, err := s.issues.Issue(ctx, repo, number)
    if err != nil { return domain.Issue{}, domain.IssueAnalysis{}, err }
    return issue, s.Analyze(issue), nil
}

// ListIssues proxies the issue source for raw repository listings.
func (s *Service) ListIssues(ctx context.Context, repo string, f domain.IssueFilter) (domain.IssuesPage, error) {
    return s.issues.Issues(ctx, repo, f)
}

// RunScoping drives one scoping session to a terminal state: fetch the issue,
// build a context-enriched prompt, create the session, then block polling
// until the session finishes or the configured timeout passes. A timeout
// yields a partial result with Parsed=false rather than an error.
func (s *Service) RunScoping(ctx context.Context, repo string, issueNumber int) (domain.ScopeResult, error) {
    issue, err := s.issues.Issue(ctx, repo, issueNumber)
    if err != nil { return domain.ScopeResult{}, err }

    start := time.Now()
    prompt := s.buildScopingPrompt(ctx, issue)
    tags := []string{"scoping", "analysis", fmt.Sprintf("issue-%d", issueNumber)}
    resp, err := s.agent.CreateSession(ctx, prompt, tags)
    if err != nil { return domain.ScopeResult{}, err }

    session := domain.Session{
        SessionID:      resp.SessionID,
        Status:         domain.SessionPending,
        SessionType:    domain.SessionScope,
        Prompt:         prompt,
        RepositoryName: repo,
        IssueNumber:    issueNumber,
        Tags:           tags,
        SessionURL:     resp.URL,
        GitHubIssueURL: issue.HTMLURL,
        CreatedAt:      start,
        UpdatedAt:      start,
    }
    if err := s.store.SaveSession(ctx, session); err != nil {
        s.log.Error().Err(err).Str("session_id", resp.SessionID).Msg("save session failed")
    }

    details, err := s.pollUntilTerminal(ctx, resp.SessionID)
    if err != nil {
        if errors.Is(err, domain.ErrRemoteTimeout) {
            s.log.Warn().Str("session_id", resp.SessionID).Int("issue", issueNumber).Msg("scoping timed out, returning partial result")
            partial := partialScopeResult(resp.SessionID, repo, issueNumber, start)
            s.finishScope(ctx, session, partial, domain.SessionRunning, "")
            return partial, nil
        }
        return domain.ScopeResult{}, err
    }

    switch details.Status {
    case domain.SessionFailed:
        s.finishScope(ctx, session, domain.ScopeResult{}, domain.SessionFailed, details.ErrorMessage)
        return domain.ScopeResult{}, fmt.Errorf("%w: scoping session failed: %s", domain.ErrRemoteServer, details.ErrorMessage)
    case domain.SessionCancelled:
        s.finishScope(ctx, session, domain.ScopeResult{}, domain.SessionCancelled, "")
        return domain.ScopeResult{}, fmt.Errorf("%w: scoping session cancelled", domain.ErrRemoteServer)
    }

    result := ParseScopeOutput(details.Output, resp.SessionID, repo, issueNumber, details.CreatedAt, details.CompletedAt)
    result.AnalysisDurationMinutes = time.Since(start).Minutes()
    s.finishScope(ctx, session, result, domain.SessionCompleted, "")
    s.log.Info().
        Str("session_id", resp.SessionID).
        Int("issue", issueNumber).
        Float64("confidence", result.ConfidenceScore).
        Bool("parsed", result.Parsed).
        Msg("scoping completed")
    return result, nil
}

// finishScope records the terminal session state and caches the result when
// one was produced.
func (s *Service) finishScope(ctx context.Context, session domain.Session, result domain.ScopeResult, status domain.SessionStatus, errMsg string) {
    session.Status = status
    session.ErrorMessage = errMsg
    session.UpdatedAt = time.Now()
    if status == domain.SessionCompleted {
        now := time.Now()
        session.CompletedAt = &now
    }
    if err := s.store.SaveSession(ctx, session); err != nil {
        s.log.Error().Err(err).Str("session_id", session.SessionID).Msg("update session failed")
    }
    if result.SessionID == "" { return }
    s.mu.Lock()
    s.scopeCache[issueKey(session.RepositoryName, session.IssueNumber)] = result
    s.mu.Unlock()
    if err := s.store.SaveScopeResult(ctx, result); err != nil {
        s.log.Error().Err(err).Str("session_id", session.SessionID).Msg("save scope result failed")
    }
}

// pollUntilTerminal waits on the remote session. Transient poll errors are
// logged and retried at the next tick; only the timeout or a terminal status
// ends the loop.
func (s *Service) pollUntilTerminal(ctx context.Context, sessionID string) (devin.SessionDetails, error) {
    interval := s.cfg.DevinPoll
    if interval <= 0 { interval = 10 * time.Second }
    timeout := s.cfg.DevinTimeout
    if timeout <= 0 { timeout = 5 * time.Minute }

    ctx, cancel := context.WithTimeout(ctx, timeout)
    defer cancel()

    ticker := time.NewTicker(interval)
    defer ticker.Stop()
    for {
        select {
        case <-ctx.Done():
            return devin.SessionDetails{}, fmt.Errorf("%w: session %s still not terminal", domain.ErrRemoteTimeout, sessionID)
        case <-ticker.C:
            details, err := s.agent.GetSession(ctx, sessionID)
            if err != nil {
                if ctx.Err() != nil {
                    return devin.SessionDetails{}, fmt.Errorf("%w: session %s still not terminal", domain.ErrRemoteTimeout, sessionID)
                }
                s.log.Warn().Err(err).Str("session_id", sessionID).Msg("poll failed, will retry")
                continue
            }
            if details.Status.Terminal() { return details, nil }
        }
    }
}

func partialScopeResult(sessionID, repo string, issueNumber int, start time.Time) domain.ScopeResult {
    return domain.ScopeResult{
        SessionID:               sessionID,
        IssueNumber:             issueNumber,
        RepositoryName:          repo,
        ConfidenceScore:         0.5,
        ComplexityEstimate:      "medium",
        RequirementsClarity:     0.5,
        TechnicalFeasibility:    0.5,
        ScopeCompleteness:       0.5,
        ActionPlan:              []string{"Analysis in progress..."},
        AcceptanceCriteria:      []string{"To be determined..."},
        Parsed:                  false,
        CreatedAt:               start,
        AnalysisDurationMinutes: time.Since(start).Minutes(),
    }
}

// RunCompletion starts an implementation session off a prior scope result.
// When no scope is cached (or reuse is disabled) it scopes synchronously
// first. The completion session itself is fire-and-forget: callers get back
// RUNNING and must poll separately.
func (s *Service) RunCompletion(ctx context.Context, repo string, issueNumber int, useExistingScope bool) (domain.CompletionResult, error) {
    issue, err := s.issues.Issue(ctx, repo, issueNumber)
    if err != nil { return domain.CompletionResult{}, err }

    scope, ok := domain.ScopeResult{}, false
    if useExistingScope {
        scope, ok = s.CachedScopeResult(repo, issueNumber)
    }
    if !ok {
        scope, err = s.RunScoping(ctx, repo, issueNumber)
        if err != nil { return domain.CompletionResult{}, err }
    }

    prompt := s.buildCompletionPrompt(ctx, issue, scope)
    tags := []string{"completion", "implementation", fmt.Sprintf("issue-%d", issueNumber)}
    resp, err := s.agent.CreateSession(ctx, prompt, tags)
    if err != nil { return domain.CompletionResult{}, err }

    now := time.Now()
    session := domain.Session{
        SessionID:       resp.SessionID,
        Status:          domain.SessionRunning,
        SessionType:     domain.SessionComplete,
        Prompt:          prompt,
        RepositoryName:  repo,
        IssueNumber:     issueNumber,
        Tags:            tags,
        ConfidenceScore: scope.ConfidenceScore,
        SessionURL:      resp.URL,
        GitHubIssueURL:  issue.HTMLURL,
        CreatedAt:       now,
        UpdatedAt:       now,
    }
    if err := s.store.SaveSession(ctx, session); err != nil {
        s.log.Error().Err(err).Str("session_id", resp.SessionID).Msg("save completion session failed")
    }

    s.log.Info().Str("session_id", resp.SessionID).Int("issue", issueNumber).Float64("confidence", scope.ConfidenceScore).Msg("completion session started")
    return domain.CompletionResult{
        SessionID:      resp.SessionID,
        IssueNumber:    issueNumber,
        RepositoryName: repo,
        Status:         domain.SessionRunning,
        SessionURL:     resp.URL,
        CreatedAt:      now,
    }, nil
}

// RunImplementationGate creates an implementation session only when the most
// recent session's confidence clears the bar. Confidence here is on the
// provider's 0-100 scale and the gate is strictly greater than 70.
func (s *Service) RunImplementationGate(ctx context.Context, repo string, issueNumber int) (domain.ImplementationGate, error) {
    recent, err := s.store.MostRecentSession(ctx, repo, issueNumber)
    if err != nil { return domain.ImplementationGate{}, err }
    if recent == nil {
        return domain.ImplementationGate{}, fmt.Errorf("%w: no previous session for issue #%d", domain.ErrNotFound, issueNumber)
    }

    confidence := recent.ConfidenceScore
    if details, err := s.agent.GetSession(ctx, recent.SessionID); err != nil {
        s.log.Warn().Err(err).Str("session_id", recent.SessionID).Msg("confidence refresh failed, using cached value")
    } else {
        confidence = details.ConfidenceScore
    }

    gate := domain.ImplementationGate{
        SessionID:       recent.SessionID,
        ConfidenceScore: confidence,
        RepositoryName:  repo,
        IssueNumber:     issueNumber,
    }
    if confidence <= 70 {
        gate.Message = fmt.Sprintf("Confidence score (%.0f%%) is not high enough (>70%%) for automatic implementation", confidence)
        s.log.Info().Float64("confidence", confidence).Int("issue", issueNumber).Msg("gate closed, not implementing")
        return gate, nil
    }

    prompt := s.buildImplementationPrompt(ctx, repo, issueNumber, recent, confidence)
    resp, err := s.agent.CreateSession(ctx, prompt, []string{"implementation", "auto-generated"})
    if err != nil {
        gate.Message = fmt.Sprintf("Failed to create implementation session: %v", err)
        return gate, err
    }

    now := time.Now()
    session := domain.Session{
        SessionID:       resp.SessionID,
        Status:          domain.SessionRunning,
        SessionType:     domain.SessionComplete,
        Prompt:          prompt,
        RepositoryName:  repo,
        IssueNumber:     issueNumber,
        Tags:            []string{"implementation", "auto-generated"},
        ConfidenceScore: confidence,
        SessionURL:      resp.URL,
        CreatedAt:       now,
        UpdatedAt:       now,
    }
    if err := s.store.SaveSession(ctx, session); err != nil {
        s.log.Error().Err(err).Str("session_id", resp.SessionID).Msg("save implementation session failed")
    }

    gate.ImplementationStarted = true
    gate.ImplementationSessionID = resp.SessionID
    gate.ImplementationURL = resp.URL
    gate.Message = fmt.Sprintf("Implementation session created with confidence score %.0f%%", confidence)
    s.log.Info().Str("session_id", resp.SessionID).Float64("confidence", confidence).Msg("implementation session created")
    return gate, nil
}

type BatchScopeItem struct {
    IssueNumber int                 `json:"issue_number"`
    Result      *domain.ScopeResult `json:"result,omitempty"`
    Error       string              `json:"error,omitempty"`
}

// BatchScope runs up to ten scoping workflows concurrently. Each issue is an
// independent task: one slow or timed-out scope never blocks the others.
func (s *Service) BatchScope(ctx context.Context, repo string, issueNumbers []int) ([]BatchScopeItem, error) {
    if len(issueNumbers) == 0 || len(issueNumbers) > 10 {
        return nil, fmt.Errorf("%w: between 1 and 10 issues per batch, got %d", domain.ErrValidation, len(issueNumbers))
    }
    items := make([]BatchScopeItem, len(issueNumbers))
    var wg sync.WaitGroup
    for i, n := range issueNumbers {
        wg.Add(1)
        go func(i, n int) {
            defer wg.Done()
            items[i] = BatchScopeItem{IssueNumber: n}
            res, err := s.RunScoping(ctx, repo, n)
            if err != nil {
                items[i].Error = err.Error()
                return
            }
            items[i].Result = &res
        }(i, n)
    }
    wg.Wait()
    return items, nil
}

// SessionStatus returns the freshest view of a session, preferring the remote
// API and falling back to the stored copy when the provider is unreachable.
func (s *Service) SessionStatus(ctx context.Context, sessionID string) (*domain.Session, error) {
    stored, err := s.store.GetSession(ctx, sessionID)
    if err != nil { return nil, err }

    details, err := s.agent.GetSession(ctx, sessionID)
    if err != nil {
        if stored == nil { return nil, err }
        s.log.Warn().Err(err).Str("session_id", sessionID).Msg("remote session fetch failed, serving stored copy")
        return stored, nil
    }
    if stored == nil {
        stored = &domain.Session{SessionID: sessionID, SessionType: domain.SessionGeneral, CreatedAt: details.CreatedAt}
    }
    stored.Status = details.Status
    stored.Output = details.Output
    stored.ErrorMessage = details.ErrorMessage
    stored.ConfidenceScore = details.ConfidenceScore
    stored.UpdatedAt = time.Now()
    stored.CompletedAt = details.CompletedAt
    if err := s.store.SaveSession(ctx, *stored); err != nil {
        s.log.Error().Err(err).Str("session_id", sessionID).Msg("session refresh save failed")
    }
    return stored, nil
}

func (s *Service) SendSessionMessage(ctx context.Context, sessionID, message string) error {
    return s.agent.SendMessage(ctx, sessionID, message)
}

func (s *Service) ListSessions(ctx context.Context, repo string, limit int) ([]domain.SessionSummary, error) {
    return s.store.ListSessions(ctx, repo, limit)
}

// SaveRepoFiles stores curated codebase context that later enriches scoping
// and implementation prompts for the repository.
func (s *Service) SaveRepoFiles(ctx context.Context, repo string, files []domain.RepoFile) error {
    if len(files) == 0 {
        return fmt.Errorf("%w: at least one file is required", domain.ErrValidation)
    }
    for i := range files {
        files[i].RepositoryName = repo
        if files[i].Path == "" {
            return fmt.Errorf("%w: file path must not be empty", domain.ErrValidation)
        }
    }
    return s.store.UpsertRepoFiles(ctx, files)
}

// ClearScopingData wipes stored sessions and scope results plus the in-memory
// caches. Returns counts of what was removed.
func (s *Service) ClearScopingData(ctx context.Context) (map[string]int64, error) {
    sessions, results, err := s.store.ClearScopingData(ctx)
    if err != nil { return nil, err }
    s.mu.Lock()
    cached := int64(len(s.scopeCache))
    s.scopeCache = map[string]domain.ScopeResult{}
    s.analysisMap = map[string]domain.IssueAnalysis{}
    s.mu.Unlock()
    s.log.Info().Int64("sessions", sessions).Int64("scope_results", results).Msg("scoping data cleared")
    return map[string]int64{"sessions": sessions, "scope_results": results, "cached_results": cached}, nil
}

// AgentStats reports the stored session counters.
func (s *Service) AgentStats(ctx context.Context) (map[string]int, error) {
    total, active, completed, failed, startedToday, completedToday, err := s.store.SessionStats(ctx)
    if err != nil { return nil, err }
    return map[string]int{
        "total_sessions":           total,
        "active_sessions":          active,
        "completed_sessions":       completed,
        "failed_sessions":          failed,
        "sessions_started_today":   startedToday,
        "sessions_completed_today": completedToday,
    }, nil
}

// ProbeAgent verifies connectivity to the remote agent API.
func (s *Service) ProbeAgent(ctx context.Context) error {
    _, err := s.agent.ListSessions(ctx)
    return err
}
