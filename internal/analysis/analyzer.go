/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package analysis

import (
    "math"
    "strings"
    "time"

    "github.com/parthobardhan/github-devin-dashboard/internal/domain"
    "github.com/rs/zerolog"
)

// Analyzer converts issue text and metadata into confidence, complexity and
// automation-suitability judgments. It is deterministic: the same issue
// snapshot always produces the same scores.
type Analyzer struct {
    log zerolog.Logger
    now func() time.Time
}

func New(log zerolog.Logger) *Analyzer {
    return &Analyzer{log: log.With().Str("component", "analysis").Logger(), now: time.Now}
}

const (
    weightClarity      = 0.25
    weightFeasibility  = 0.25
    weightCompleteness = 0.25
    weightContext      = 0.25
)

var complexityKeywords = map[domain.ComplexityLevel][]string{
    domain.ComplexityLow: {
        "bug", "fix", "typo", "documentation", "readme", "comment",
        "style", "formatting", "lint", "minor", "simple", "small",
    },
    domain.ComplexityMedium: {
        "feature", "enhancement", "improvement", "refactor", "update",
        "modify", "change", "add", "implement", "create",
    },
    domain.ComplexityHigh: {
        "architecture", "migration", "breaking", "major", "complex",
        "integration", "security", "performance", "scalability",
        "database", "api", "framework", "redesign", "rewrite",
    },
}

var feasibilityHigh = []string{
    "clear steps", "well defined", "specific", "detailed",
    "reproduction steps", "expected behavior", "actual behavior",
}

var feasibilityMedium = []string{"feature request", "enhancement", "improvement", "should"}

var feasibilityLow = []string{
    "vague", "unclear", "maybe", "possibly", "investigate",
    "research", "explore", "consider", "discuss",
}

// labelModifiers is an ordered substring table; the first matching pattern
// wins per label, so broad patterns must come after specific ones.
var labelModifiers = []struct {
    pattern string
    delta   float64
}{
    {"bug", 0.1},
    {"documentation", 0.15},
    {"good first issue", 0.2},
    {"help wanted", 0.1},
    {"enhancement", 0.0},
    {"feature", -0.05},
    {"breaking change", -0.2},
    {"needs investigation", -0.15},
    {"wontfix", -1.0},
    {"duplicate", -1.0},
    {"invalid", -1.0},
}

var blockingLabels = map[string]bool{
    "wontfix": true, "duplicate": true, "invalid": true, "question": true,
}

var humanJudgmentPhrases = []string{
    "design decision", "architecture decision", "should we",
    "what do you think", "opinion", "preference", "strategy",
}

// Analyze never fails: any scoring panic degrades to a conservative default
// analysis so the ingestion pipeline is never blocked by a single issue.
func (a *Analyzer) Analyze(issue domain.Issue) (out domain.IssueAnalysis) {
    defer func() {
        if r := recover(); r != nil {
            a.log.Error().Int("issue", issue.Number).Interface("panic", r).Msg("analysis failed, using defaults")
            out = a.safeDefault(issue)
        }
    }()

    text := strings.ToLower(issue.Title + " " + issue.Body)

    clarity := assessClarity(text, issue.Body)
    feasibility := assessFeasibility(text, issue.Labels)
    completeness := assessCompleteness(text, issue.Body)
    context := a.assessContext(issue)

    confidence := clarity*weightClarity +
        feasibility*weightFeasibility +
        completeness*weightCompleteness +
        context*weightContext
    confidence = clamp01(confidence + labelModifier(issue.Labels))

    complexityScore, complexityLevel := assessComplexity(text, issue.Body)

    analysis := domain.IssueAnalysis{
        IssueID:        issue.ID,
        IssueNumber:    issue.Number,
        RepositoryName: issue.RepoName(),

        OverallConfidence: confidence,
        ConfidenceLevel:   ConfidenceLevelFor(confidence),

        ComplexityScore: complexityScore,
        ComplexityLevel: complexityLevel,
        EstimatedHours:  EstimateHours(complexityLevel, confidence),

        RequirementsClarity:  clarity,
        TechnicalFeasibility: feasibility,
        ScopeCompleteness:    completeness,
        ContextAvailability:  context,

        KeyFactors:          keyFactors(issue, text, confidence),
        PotentialChallenges: challenges(issue, text, complexityLevel),
        RecommendedAction:   RecommendedAction(confidence, complexityLevel),
        AutomationSuitable:  automationSuitable(issue, text, confidence, complexityLevel),

        AnalyzedAt: a.now(),
    }

    a.log.Debug().
        Int("issue", issue.Number).
        Str("repo", analysis.RepositoryName).
        Float64("confidence", confidence).
        Str("complexity", string(complexityLevel)).
        Bool("automation_suitable", analysis.AutomationSuitable).
        Msg("issue analyzed")

    return analysis
}

func (a *Analyzer) safeDefault(issue domain.Issue) domain.IssueAnalysis {
    return domain.IssueAnalysis{
        IssueID:             issue.ID,
        IssueNumber:         issue.Number,
        RepositoryName:      issue.RepoName(),
        OverallConfidence:   0.3,
        ConfidenceLevel:     domain.ConfidenceLow,
        ComplexityScore:     0.5,
        ComplexityLevel:     domain.ComplexityUnknown,
        EstimatedHours:      EstimateHours(domain.ComplexityUnknown, 0.3),
        RequirementsClarity: 0.3, TechnicalFeasibility: 0.3,
        ScopeCompleteness: 0.3, ContextAvailability: 0.3,
        KeyFactors:          []string{"Analysis failed"},
        PotentialChallenges: []string{"Unable to analyze issue"},
        RecommendedAction:   "Manual review required",
        AutomationSuitable:  false,
        AnalyzedAt:          a.now(),
    }
}

func assessClarity(text, body string) float64 {
    score := 0.0
    if containsAny(text, "expected", "actual", "should", "when", "then", "given") {
        score += 0.3
    }
    if containsAny(text, "steps to reproduce", "how to reproduce", "reproduction", "step 1", "step 2", "1.", "2.", "3.") {
        score += 0.3
    }
    if len(text) > 100 { score += 0.2 }
    if strings.Contains(body, "```") || strings.Contains(text, "error") { score += 0.2 }
    for _, w := range []string{"maybe", "possibly", "might", "unclear", "investigate"} {
        if strings.Contains(text, w) { score -= 0.1 }
    }
    return clamp01(score)
}

func assessFeasibility(text string, labels []domain.Label) float64 {
    score := 0.5
    for _, ind := range feasibilityHigh {
        if strings.Contains(text, ind) { score += 0.15 }
    }
    for _, ind := range feasibilityMedium {
        if strings.Contains(text, ind) { score += 0.05 }
    }
    for _, ind := range feasibilityLow {
        if strings.Contains(text, ind) { score -= 0.15 }
    }
    for _, l := range labels {
        if strings.EqualFold(l.Name, "bug") {
            score += 0.2
            break
        }
    }
    if containsAny(text, "research", "investigate", "explore") { score -= 0.2 }
    return clamp01(score)
}

func assessCompleteness(text, body string) float64 {
    score := 0.0
    if containsAny(text, "acceptance criteria", "definition of done", "requirements", "must", "should", "shall") {
        score += 0.3
    }
    if containsAny(text, "deliverable", "output", "result", "outcome") { score += 0.2 }
    if containsAny(text, "constraint", "limitation", "requirement", "must not") { score += 0.2 }
    if containsAny(text, "because", "reason", "purpose", "goal", "objective") { score += 0.2 }
    if len(body) > 200 { score += 0.1 }
    return clamp01(score)
}

func (a *Analyzer) assessContext(issue domain.Issue) float64 {
    score := 0.0
    if issue.Repository != nil { score += 0.2 }
    if len(issue.Labels) > 0 {
        score += math.Min(0.3, float64(len(issue.Labels))*0.1)
    }
    if len(issue.Assignees) > 0 { score += 0.1 }
    if issue.Comments > 0 {
        score += math.Min(0.2, float64(issue.Comments)*0.05)
    }
    if issue.Milestone != "" { score += 0.1 }
    days := a.now().Sub(issue.UpdatedAt).Hours() / 24.0
    if days < 7 {
        score += 0.1
    } else if days < 30 {
        score += 0.05
    }
    return clamp01(score)
}

func assessComplexity(text, body string) (float64, domain.ComplexityLevel) {
    counts := map[domain.ComplexityLevel]int{}
    total := 0
    for level, words := range complexityKeywords {
        for _, w := range words {
            if strings.Contains(text, w) {
                counts[level]++
                total++
            }
        }
    }

    score := 0.5
    level := domain.ComplexityMedium
    if total > 0 {
        score = (float64(counts[domain.ComplexityLow])*0.2 +
            float64(counts[domain.ComplexityMedium])*0.5 +
            float64(counts[domain.ComplexityHigh])*0.8) / float64(total)
        level = ComplexityLevelFor(score)
    }

    // Long descriptions usually hide more work; tiny ones rarely do.
    if len(body) > 1000 {
        score = math.Min(1.0, score+0.1)
    } else if len(body) < 100 {
        score = math.Max(0.0, score-0.1)
    }
    return score, level
}

func labelModifier(labels []domain.Label) float64 {
    mod := 0.0
    for _, l := range labels {
        name := strings.ToLower(l.Name)
        for _, m := range labelModifiers {
            if strings.Contains(name, m.pattern) {
                mod += m.delta
                break
            }
        }
    }
    return math.Max(-0.5, math.Min(0.3, mod))
}

func ConfidenceLevelFor(score float64) domain.ConfidenceLevel {
    switch {
    case score >= 0.7:
        return domain.ConfidenceHigh
    case score >= 0.4:
        return domain.ConfidenceMedium
    default:
        return domain.ConfidenceLow
    }
}

func ComplexityLevelFor(score float64) domain.ComplexityLevel {
    switch {
    case score < 0.35:
        return domain.ComplexityLow
    case score < 0.65:
        return domain.ComplexityMedium
    default:
        return domain.ComplexityHigh
    }
}

// EstimateHours maps a complexity level to base hours, padded when confidence
// is low. Lower confidence means more time, never less.
func EstimateHours(level domain.ComplexityLevel, confidence float64) float64 {
    base := map[domain.ComplexityLevel]float64{
        domain.ComplexityLow:     2.0,
        domain.ComplexityMedium:  8.0,
        domain.ComplexityHigh:    24.0,
        domain.ComplexityUnknown: 8.0,
    }[level]
    hours := base * (1.0 + (1.0-confidence)*0.5)
    return math.Round(hours*10) / 10
}

func RecommendedAction(confidence float64, level domain.ComplexityLevel) string {
    switch {
    case confidence >= 0.8 && (level == domain.ComplexityLow || level == domain.ComplexityMedium):
        return "Suitable for automated completion"
    case confidence >= 0.6:
        return "Consider automated scoping with human review"
    case confidence >= 0.4:
        return "Requires human analysis before automation"
    default:
        return "Manual handling recommended - unclear requirements"
    }
}

func keyFactors(issue domain.Issue, text string, confidence float64) []string {
    var factors []string
    if confidence >= 0.8 {
        factors = append(factors, "High confidence - well-defined requirements")
    } else if confidence <= 0.3 {
        factors = append(factors, "Low confidence - unclear requirements")
    }
    for _, l := range issue.Labels {
        if strings.EqualFold(l.Name, "bug") {
            factors = append(factors, "Bug report - typically more straightforward")
            break
        }
    }
    if issue.Comments > 5 {
        factors = append(factors, "Active discussion - good community engagement")
    }
    if containsAny(text, "urgent", "critical", "blocker") {
        factors = append(factors, "High priority issue")
    }
    if len(issue.Body) > 500 {
        factors = append(factors, "Detailed description provided")
    }
    if len(issue.Assignees) > 0 {
        factors = append(factors, "Has assigned developers")
    }
    return factors
}

func challenges(issue domain.Issue, text string, level domain.ComplexityLevel) []string {
    var out []string
    if level == domain.ComplexityHigh {
        out = append(out, "High complexity may require human oversight")
    }
    if containsAny(text, "breaking", "migration", "architecture") {
        out = append(out, "May involve breaking changes or architectural decisions")
    }
    if containsAny(text, "ui", "ux", "design", "visual") {
        out = append(out, "UI/UX changes may require design input")
    }
    if containsAny(text, "security", "auth", "permission") {
        out = append(out, "Security implications require careful review")
    }
    if containsAny(text, "performance", "optimization", "scale") {
        out = append(out, "Performance considerations may need benchmarking")
    }
    if len(issue.Body) < 50 {
        out = append(out, "Limited description may require clarification")
    }
    if issue.Comments == 0 {
        out = append(out, "No community discussion or feedback")
    }
    return out
}

func automationSuitable(issue domain.Issue, text string, confidence float64, level domain.ComplexityLevel) bool {
    for _, l := range issue.Labels {
        if blockingLabels[strings.ToLower(l.Name)] { return false }
    }
    if confidence < 0.5 { return false }
    if level == domain.ComplexityHigh && confidence < 0.8 { return false }
    for _, phrase := range humanJudgmentPhrases {
        if strings.Contains(text, phrase) { return false }
    }
    return true
}

func containsAny(text string, phrases ...string) bool {
    for _, p := range phrases {
        if strings.Contains(text, p) { return true }
    }
    return false
}

func clamp01(v float64) float64 {
    if v < 0 { return 0 }
    if v > 1 { return 1 }
    return v
}
