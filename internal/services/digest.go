/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package services

import (
    "context"
    "fmt"
    "strings"

    "github.com/parthobardhan/github-devin-dashboard/internal/domain"
)

// RunWeeklyDigest gathers dashboard stats plus the top automation-ready
// issues, renders a summary (LLM when configured, plain text otherwise)
// and delivers it to the configured Telegram chats.
func (s *Service) RunWeeklyDigest(ctx context.Context) error {
    runID, err := s.store.StartJobRun(ctx, "weekly_digest")
    if err != nil { s.log.Error().Err(err).Msg("start job run failed") }
    s.log.Info().Msg("WeeklyDigest: start")
    var digestErr error
    defer func() {
        if runID != 0 {
            errText := ""
            if digestErr != nil { errText = digestErr.Error() }
            _ = s.store.FinishJobRun(ctx, runID, digestErr == nil, errText)
        }
    }()

    stats, err := s.DashboardStats(ctx)
    if err != nil { digestErr = err; return err }
    top, err := s.AutomationReady(ctx, 5)
    if err != nil { s.log.Error().Err(err).Msg("automation-ready listing failed"); top = nil }

    text := ""
    if s.llm != nil && strings.TrimSpace(s.cfg.OpenAIKey) != "" {
        out, err := s.llm.SummarizeDigest(ctx, stats, top)
        if err != nil {
            s.log.Error().Err(err).Msg("llm digest summary failed; falling back to plain rendering")
        } else {
            text = out
        }
    }
    if text == "" { text = renderDigest(stats, top) }

    if len(s.cfg.TelegramChatIDs) == 0 {
        s.log.Info().Msg("WeeklyDigest: no telegram chats configured; skipping delivery")
        return nil
    }
    for _, chat := range s.cfg.TelegramChatIDs {
        if err := s.tg.SendMessagePlain(ctx, chat, text); err != nil {
            s.log.Error().Err(err).Int64("chat", chat).Msg("telegram send failed")
            digestErr = err
        }
    }
    s.log.Info().Int("chats", len(s.cfg.TelegramChatIDs)).Msg("WeeklyDigest: done")
    return digestErr
}

func renderDigest(stats domain.DashboardStats, top []domain.IssueWithAnalysis) string {
    b := &strings.Builder{}
    fmt.Fprintf(b, "GitHub-Devin Dashboard\nWeekly digest\n\n")
    fmt.Fprintf(b, "Issues: %d total, %d open, %d analyzed\n", stats.TotalIssues, stats.OpenIssues, stats.AnalyzedIssues)
    fmt.Fprintf(b, "High confidence: %d, automated: %d\n", stats.HighConfidenceIssues, stats.AutomatedIssues)
    fmt.Fprintf(b, "Sessions: %d total, %d active, %d completed, %d failed\n",
        stats.TotalSessions, stats.ActiveSessions, stats.CompletedSessions, stats.FailedSessions)
    fmt.Fprintf(b, "Avg confidence: %.0f%%, automation success: %.0f%%\n",
        stats.AverageConfidenceScore*100, stats.AutomationSuccessRate*100)
    if len(top) > 0 {
        fmt.Fprintf(b, "\nReady for automation:\n")
        for i, iw := range top {
            conf := 0.0
            if iw.Analysis != nil { conf = iw.Analysis.OverallConfidence }
            fmt.Fprintf(b, "%d. %s#%d %s (%.0f%%)\n", i+1, iw.Issue.RepoName(), iw.Issue.Number, truncate(iw.Issue.Title, 80), conf*100)
        }
    }
    return b.String()
}
