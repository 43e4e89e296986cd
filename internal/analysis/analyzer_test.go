package analysis

import (
    "math"
    "math/rand"
    "strings"
    "testing"
    "time"

    "github.com/parthobardhan/github-devin-dashboard/internal/domain"
    "github.com/rs/zerolog"
)

func newTestAnalyzer(at time.Time) *Analyzer {
    a := New(zerolog.Nop())
    a.now = func() time.Time { return at }
    return a
}

func sampleIssue() domain.Issue {
    return domain.Issue{
        ID:     1,
        Number: 42,
        Title:  "Fix typo in README",
        Body: "The installation section has a spelling error. The word 'recieve' should be 'receive'. " +
            "Expected: receive. Actual: recieve. Steps to reproduce: 1. Open the README. 2. Read the installation instructions.",
        State:      "open",
        Labels:     []domain.Label{{ID: 1, Name: "documentation"}},
        Comments:   2,
        CreatedAt:  time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC),
        UpdatedAt:  time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC),
        Repository: &domain.Repository{FullName: "octo/widgets"},
    }
}

func TestAnalyze_ScoresStayInRange(t *testing.T) {
    a := newTestAnalyzer(time.Date(2026, 8, 26, 0, 0, 0, 0, time.UTC))
    rng := rand.New(rand.NewSource(7))
    words := []string{"bug", "architecture", "maybe", "should", "security", "typo", "feature", "unclear", "migration", "fix"}
    for i := 0; i < 200; i++ {
        n := rng.Intn(30)
        parts := make([]string, n)
        for j := range parts { parts[j] = words[rng.Intn(len(words))] }
        issue := sampleIssue()
        issue.Body = strings.Repeat(strings.Join(parts, " ")+" ", rng.Intn(5)+1)
        issue.Comments = rng.Intn(20)
        res := a.Analyze(issue)
        if res.OverallConfidence < 0 || res.OverallConfidence > 1 {
            t.Fatalf("confidence out of range: %v", res.OverallConfidence)
        }
        if res.ComplexityScore < 0 || res.ComplexityScore > 1 {
            t.Fatalf("complexity out of range: %v", res.ComplexityScore)
        }
        for _, s := range []float64{res.RequirementsClarity, res.TechnicalFeasibility, res.ScopeCompleteness, res.ContextAvailability} {
            if s < 0 || s > 1 { t.Fatalf("sub-score out of range: %v", s) }
        }
        if res.EstimatedHours < 0 { t.Fatalf("negative hours: %v", res.EstimatedHours) }
    }
}

func TestConfidenceLevelBoundaries(t *testing.T) {
    cases := []struct {
        score float64
        want  domain.ConfidenceLevel
    }{
        {0.0, domain.ConfidenceLow},
        {0.39, domain.ConfidenceLow},
        {0.4, domain.ConfidenceMedium},
        {0.69, domain.ConfidenceMedium},
        {0.7, domain.ConfidenceHigh},
        {1.0, domain.ConfidenceHigh},
    }
    for _, c := range cases {
        if got := ConfidenceLevelFor(c.score); got != c.want {
            t.Fatalf("level(%v) = %s, want %s", c.score, got, c.want)
        }
    }
}

func TestComplexityLevelBoundaries(t *testing.T) {
    cases := []struct {
        score float64
        want  domain.ComplexityLevel
    }{
        {0.0, domain.ComplexityLow},
        {0.34, domain.ComplexityLow},
        {0.35, domain.ComplexityMedium},
        {0.64, domain.ComplexityMedium},
        {0.65, domain.ComplexityHigh},
        {1.0, domain.ComplexityHigh},
    }
    for _, c := range cases {
        if got := ComplexityLevelFor(c.score); got != c.want {
            t.Fatalf("level(%v) = %s, want %s", c.score, got, c.want)
        }
    }
}

func TestLabelModifier_OrderIndependentAndClamped(t *testing.T) {
    labels := []domain.Label{
        {Name: "bug"}, {Name: "good first issue"}, {Name: "breaking change"}, {Name: "documentation"},
    }
    base := labelModifier(labels)
    perm := []domain.Label{labels[2], labels[0], labels[3], labels[1]}
    if got := labelModifier(perm); math.Abs(got-base) > 1e-9 {
        t.Fatalf("modifier depends on order: %v vs %v", got, base)
    }

    negative := []domain.Label{{Name: "wontfix"}, {Name: "duplicate"}, {Name: "invalid"}}
    if got := labelModifier(negative); got != -0.5 {
        t.Fatalf("expected clamp at -0.5, got %v", got)
    }
    positive := []domain.Label{{Name: "good first issue"}, {Name: "documentation"}, {Name: "bug"}, {Name: "help wanted"}}
    if got := labelModifier(positive); got != 0.3 {
        t.Fatalf("expected clamp at 0.3, got %v", got)
    }
}

func TestEstimateHours_GrowsAsConfidenceDrops(t *testing.T) {
    for _, level := range []domain.ComplexityLevel{domain.ComplexityLow, domain.ComplexityMedium, domain.ComplexityHigh, domain.ComplexityUnknown} {
        prev := -1.0
        for c := 1.0; c >= 0; c -= 0.25 {
            h := EstimateHours(level, c)
            if h <= prev {
                t.Fatalf("hours not increasing for %s: conf=%v hours=%v prev=%v", level, c, h, prev)
            }
            prev = h
        }
    }
    if got := EstimateHours(domain.ComplexityLow, 1.0); got != 2.0 {
        t.Fatalf("expected 2.0 at full confidence, got %v", got)
    }
    if got := EstimateHours(domain.ComplexityHigh, 0.0); got != 36.0 {
        t.Fatalf("expected 36.0 at zero confidence, got %v", got)
    }
}

func TestAnalyze_Deterministic(t *testing.T) {
    a := newTestAnalyzer(time.Date(2026, 8, 26, 0, 0, 0, 0, time.UTC))
    issue := sampleIssue()
    first := a.Analyze(issue)
    second := a.Analyze(issue)
    if first.OverallConfidence != second.OverallConfidence ||
        first.ComplexityScore != second.ComplexityScore ||
        first.EstimatedHours != second.EstimatedHours ||
        first.RecommendedAction != second.RecommendedAction ||
        first.AutomationSuitable != second.AutomationSuitable {
        t.Fatalf("analysis not deterministic:\n%#v\n%#v", first, second)
    }
}

func TestAnalyze_DocumentationTypo(t *testing.T) {
    a := newTestAnalyzer(time.Date(2026, 8, 26, 0, 0, 0, 0, time.UTC))
    res := a.Analyze(sampleIssue())
    if res.ConfidenceLevel != domain.ConfidenceHigh {
        t.Fatalf("expected high confidence, got %s (%v)", res.ConfidenceLevel, res.OverallConfidence)
    }
    if res.ComplexityLevel != domain.ComplexityLow {
        t.Fatalf("expected low complexity, got %s (%v)", res.ComplexityLevel, res.ComplexityScore)
    }
    if !res.AutomationSuitable { t.Fatalf("expected automation suitable") }
}

func TestAnalyze_BlockingLabelOverridesConfidence(t *testing.T) {
    a := newTestAnalyzer(time.Date(2026, 8, 26, 0, 0, 0, 0, time.UTC))
    issue := sampleIssue()
    issue.Labels = append(issue.Labels, domain.Label{Name: "wontfix"})
    res := a.Analyze(issue)
    if res.AutomationSuitable { t.Fatalf("blocking label must disable automation") }
}

func TestAnalyze_HumanJudgmentPhrasesBlockAutomation(t *testing.T) {
    a := newTestAnalyzer(time.Date(2026, 8, 26, 0, 0, 0, 0, time.UTC))
    issue := sampleIssue()
    issue.Body += " What do you think about this approach?"
    res := a.Analyze(issue)
    if res.AutomationSuitable { t.Fatalf("human judgment phrase must disable automation") }
}

func TestAnalyze_DefaultComplexityWhenNoKeywords(t *testing.T) {
    a := newTestAnalyzer(time.Date(2026, 8, 26, 0, 0, 0, 0, time.UTC))
    issue := sampleIssue()
    issue.Title = "Something odd happens"
    issue.Body = strings.Repeat("the widget misbehaves under load without obvious cause ", 3)
    res := a.Analyze(issue)
    if res.ComplexityLevel != domain.ComplexityMedium {
        t.Fatalf("expected medium complexity default, got %s", res.ComplexityLevel)
    }
    if res.ComplexityScore != 0.5 {
        t.Fatalf("expected default 0.5 complexity score, got %v", res.ComplexityScore)
    }
}
