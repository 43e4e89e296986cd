/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package services

import (
    "context"
    "sort"
    "strings"
    "time"

    "github.com/parthobardhan/github-devin-dashboard/internal/domain"
)

// DashboardIssues fetches open issues for the configured repositories (or
// the filtered one), analyzes each, attaches active sessions, then filters
// and sorts the combined view.
func (s *Service) DashboardIssues(ctx context.Context, f domain.DashboardFilter) ([]domain.IssueWithAnalysis, error) {
    repos := s.cfg.GitHubRepos
    if f.Repository != "" { repos = []string{f.Repository} }

    var combined []domain.IssueWithAnalysis
    for _, repo := range repos {
        page, err := s.issues.Issues(ctx, repo, domain.IssueFilter{State: "open", PerPage: 100})
        if err != nil {
            s.log.Error().Err(err).Str("repo", repo).Msg("issue fetch failed")
            return nil, err
        }
        for _, issue := range page.Issues {
            item := domain.IssueWithAnalysis{Issue: issue}
            a := s.Analyze(issue)
            item.Analysis = &a
            if active, err := s.store.ActiveSessionsForIssue(ctx, issue.RepoName(), issue.Number); err != nil {
                s.log.Warn().Err(err).Int("issue", issue.Number).Msg("active sessions lookup failed")
            } else {
                item.ActiveSessions = active
            }
            combined = append(combined, item)
        }
    }

    combined = filterIssues(combined, f)
    sortIssues(combined, f.SortBy, f.SortOrder, time.Now())
    if f.Limit > 0 && len(combined) > f.Limit { combined = combined[:f.Limit] }
    return combined, nil
}

func filterIssues(items []domain.IssueWithAnalysis, f domain.DashboardFilter) []domain.IssueWithAnalysis {
    out := items[:0]
    for _, it := range items {
        if f.ConfidenceLevel != "" && (it.Analysis == nil || it.Analysis.ConfidenceLevel != f.ConfidenceLevel) { continue }
        if f.ComplexityLevel != "" && (it.Analysis == nil || it.Analysis.ComplexityLevel != f.ComplexityLevel) { continue }
        if f.AutomationReadyOnly && !it.AutomationReady() { continue }
        out = append(out, it)
    }
    return out
}

func sortIssues(items []domain.IssueWithAnalysis, sortBy, order string, now time.Time) {
    desc := !strings.EqualFold(order, "asc")
    less := func(i, j int) bool { return items[i].PriorityScore(now) < items[j].PriorityScore(now) }
    switch strings.ToLower(sortBy) {
    case "confidence":
        less = func(i, j int) bool {
            ci, cj := 0.0, 0.0
            if items[i].Analysis != nil { ci = items[i].Analysis.OverallConfidence }
            if items[j].Analysis != nil { cj = items[j].Analysis.OverallConfidence }
            return ci < cj
        }
    case "created":
        less = func(i, j int) bool { return items[i].Issue.CreatedAt.Before(items[j].Issue.CreatedAt) }
    case "updated":
        less = func(i, j int) bool { return items[i].Issue.UpdatedAt.Before(items[j].Issue.UpdatedAt) }
    }
    if desc {
        sort.SliceStable(items, func(i, j int) bool { return less(j, i) })
    } else {
        sort.SliceStable(items, less)
    }
}

func (s *Service) DashboardStats(ctx context.Context) (domain.DashboardStats, error) {
    stats := domain.DashboardStats{LastUpdated: time.Now()}

    items, err := s.DashboardIssues(ctx, domain.DashboardFilter{})
    if err != nil { return stats, err }

    stats.TotalIssues = len(items)
    var confidenceSum float64
    var analyzed int
    today := time.Now().Truncate(24 * time.Hour)
    for _, it := range items {
        if strings.EqualFold(it.Issue.State, "open") { stats.OpenIssues++ }
        if it.Analysis == nil { continue }
        analyzed++
        confidenceSum += it.Analysis.OverallConfidence
        if it.Analysis.ConfidenceLevel == domain.ConfidenceHigh { stats.HighConfidenceIssues++ }
        if it.AutomationReady() { stats.AutomatedIssues++ }
        if !it.Analysis.AnalyzedAt.Before(today) { stats.IssuesAnalyzedToday++ }
        switch it.Analysis.ComplexityLevel {
        case domain.ComplexityLow:
            stats.LowComplexityIssues++
        case domain.ComplexityMedium:
            stats.MediumComplexityIssues++
        case domain.ComplexityHigh:
            stats.HighComplexityIssues++
        }
    }
    stats.AnalyzedIssues = analyzed
    if analyzed > 0 { stats.AverageConfidenceScore = confidenceSum / float64(analyzed) }

    total, active, completed, failed, startedToday, completedToday, err := s.store.SessionStats(ctx)
    if err != nil {
        s.log.Error().Err(err).Msg("session stats query failed")
        return stats, err
    }
    stats.TotalSessions = total
    stats.ActiveSessions = active
    stats.CompletedSessions = completed
    stats.FailedSessions = failed
    stats.SessionsStartedToday = startedToday
    stats.SessionsCompletedToday = completedToday
    if completed+failed > 0 {
        stats.AutomationSuccessRate = float64(completed) / float64(completed+failed)
    }
    return stats, nil
}

// AutomationReady returns the issues worth delegating, highest priority first.
func (s *Service) AutomationReady(ctx context.Context, limit int) ([]domain.IssueWithAnalysis, error) {
    return s.DashboardIssues(ctx, domain.DashboardFilter{
        AutomationReadyOnly: true,
        SortBy:              "priority",
        Limit:               limit,
    })
}

func (s *Service) RepositoryStats(ctx context.Context, repo string) (domain.RepositoryStats, error) {
    items, err := s.DashboardIssues(ctx, domain.DashboardFilter{Repository: repo, SortBy: "priority"})
    if err != nil { return domain.RepositoryStats{}, err }

    rs := domain.RepositoryStats{RepositoryName: repo, TotalIssues: len(items)}
    var confidenceSum float64
    var analyzed int
    for _, it := range items {
        if strings.EqualFold(it.Issue.State, "open") { rs.OpenIssues++ }
        if it.Analysis == nil { continue }
        analyzed++
        confidenceSum += it.Analysis.OverallConfidence
        if it.AutomationReady() { rs.AutomatedIssues++ }
    }
    rs.AnalyzedIssues = analyzed
    if analyzed > 0 { rs.AverageConfidence = confidenceSum / float64(analyzed) }

    if sessions, err := s.store.ListSessions(ctx, repo, 10); err != nil {
        s.log.Warn().Err(err).Str("repo", repo).Msg("recent sessions lookup failed")
    } else {
        rs.RecentSessions = sessions
    }
    if len(items) > 5 { items = items[:5] }
    rs.TopIssues = items
    return rs, nil
}
