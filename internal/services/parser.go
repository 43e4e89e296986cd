package services

import (
    "regexp"
    "strconv"
    "strings"
    "time"

    "github.com/parthobardhan/github-devin-dashboard/internal/domain"
)

var confidenceRe = regexp.MustCompile(`(?i)confidence[^0-9%]{0,40}?(\d{1,3})\s*%`)

// ParseScopeOutput maps free-text session output onto a ScopeResult. Parsing
// is best-effort: fields that cannot be extracted get conservative defaults,
// and Parsed is set only when at least one real value was pulled from the
// text so callers can tell a genuine result from a defaults-only one.
func ParseScopeOutput(output, sessionID, repo string, issueNumber int, createdAt time.Time, completedAt *time.Time) domain.ScopeResult {
    lower := strings.ToLower(output)
    parsed := false

    confidence := 0.7
    if m := confidenceRe.FindStringSubmatch(output); m != nil {
        if v, err := strconv.Atoi(m[1]); err == nil && v >= 0 && v <= 100 {
            confidence = float64(v) / 100.0
            parsed = true
        }
    }

    complexity := "medium"
    switch {
    case strings.Contains(lower, "low complexity") || strings.Contains(lower, "simple"):
        complexity = "low"
        parsed = true
    case strings.Contains(lower, "high complexity") || strings.Contains(lower, "complex"):
        complexity = "high"
        parsed = true
    }

    duration := 0.0
    end := time.Now()
    if completedAt != nil { end = *completedAt }
    if !createdAt.IsZero() { duration = end.Sub(createdAt).Minutes() }

    return domain.ScopeResult{
        SessionID:            sessionID,
        IssueNumber:          issueNumber,
        RepositoryName:       repo,
        ConfidenceScore:      confidence,
        ComplexityEstimate:   complexity,
        RequirementsClarity:  0.8,
        TechnicalFeasibility: 0.8,
        ScopeCompleteness:    0.7,
        RecommendedApproach:  "Follow standard development practices",
        PotentialChallenges:  []string{"Integration complexity", "Testing requirements"},
        RequiredKnowledge:    []string{"Software engineering", "Repository conventions"},
        Dependencies:         []string{},
        ActionPlan: []string{
            "Analyze requirements",
            "Design solution",
            "Implement changes",
            "Write tests",
            "Create pull request",
        },
        AcceptanceCriteria: []string{
            "All requirements implemented",
            "Tests pass",
            "Code review approved",
        },
        Parsed:                  parsed,
        CreatedAt:               createdAt,
        AnalysisDurationMinutes: duration,
    }
}
