package domain

import "time"

type ConfidenceLevel string

const (
    ConfidenceLow    ConfidenceLevel = "low"    // < 0.4
    ConfidenceMedium ConfidenceLevel = "medium" // 0.4 - 0.7
    ConfidenceHigh   ConfidenceLevel = "high"   // >= 0.7
)

type ComplexityLevel string

const (
    ComplexityLow     ComplexityLevel = "low"
    ComplexityMedium  ComplexityLevel = "medium"
    ComplexityHigh    ComplexityLevel = "high"
    ComplexityUnknown ComplexityLevel = "unknown"
)

type SessionStatus string

const (
    SessionPending   SessionStatus = "pending"
    SessionRunning   SessionStatus = "running"
    SessionCompleted SessionStatus = "completed"
    SessionFailed    SessionStatus = "failed"
    SessionCancelled SessionStatus = "cancelled"
    SessionSuspended SessionStatus = "suspended"
)

// Terminal reports whether polling should stop on this status.
func (s SessionStatus) Terminal() bool {
    switch s {
    case SessionCompleted, SessionFailed, SessionCancelled:
        return true
    }
    return false
}

type SessionType string

const (
    SessionScope    SessionType = "scope_issue"
    SessionComplete SessionType = "complete_issue"
    SessionGeneral  SessionType = "general"
)

type User struct {
    Login string `json:"login"`
    ID    int64  `json:"id"`
}

type Label struct {
    ID          int64  `json:"id"`
    Name        string `json:"name"`
    Description string `json:"description,omitempty"`
}

type Repository struct {
    ID         int64  `json:"id"`
    Name       string `json:"name"`
    FullName   string `json:"full_name"`
    Language   string `json:"language,omitempty"`
    OpenIssues int    `json:"open_issues_count"`
}

// Issue is a read-only snapshot from the issue source; the core never mutates it.
type Issue struct {
    ID         int64       `json:"id"`
    Number     int         `json:"number"`
    Title      string      `json:"title"`
    Body       string      `json:"body"`
    State      string      `json:"state"`
    User       User        `json:"user"`
    Assignees  []User      `json:"assignees"`
    Labels     []Label     `json:"labels"`
    Milestone  string      `json:"milestone,omitempty"`
    Comments   int         `json:"comments"`
    CreatedAt  time.Time   `json:"created_at"`
    UpdatedAt  time.Time   `json:"updated_at"`
    HTMLURL    string      `json:"html_url"`
    Repository *Repository `json:"repository,omitempty"`
}

func (i Issue) RepoName() string {
    if i.Repository != nil { return i.Repository.FullName }
    return "unknown"
}

type Comment struct {
    ID        int64     `json:"id"`
    Body      string    `json:"body"`
    User      User      `json:"user"`
    CreatedAt time.Time `json:"created_at"`
}

type IssueFilter struct {
    State     string
    Labels    []string
    Sort      string // created, updated, comments
    Direction string // asc, desc
    PerPage   int
    Page      int
}

type IssuesPage struct {
    Issues     []Issue `json:"issues"`
    TotalCount int     `json:"total_count"`
    Page       int     `json:"page"`
    PerPage    int     `json:"per_page"`
    HasNext    bool    `json:"has_next"`
}

// IssueAnalysis is the output of the deterministic scoring pipeline.
// All sub-scores and OverallConfidence sit in [0,1].
type IssueAnalysis struct {
    IssueID        int64  `json:"issue_id"`
    IssueNumber    int    `json:"issue_number"`
    RepositoryName string `json:"repository_name"`

    OverallConfidence float64         `json:"overall_confidence"`
    ConfidenceLevel   ConfidenceLevel `json:"confidence_level"`

    ComplexityScore float64         `json:"complexity_score"`
    ComplexityLevel ComplexityLevel `json:"complexity_level"`
    EstimatedHours  float64         `json:"estimated_hours"`

    RequirementsClarity  float64 `json:"requirements_clarity"`
    TechnicalFeasibility float64 `json:"technical_feasibility"`
    ScopeCompleteness    float64 `json:"scope_completeness"`
    ContextAvailability  float64 `json:"context_availability"`

    KeyFactors          []string `json:"key_factors"`
    PotentialChallenges []string `json:"potential_challenges"`
    RecommendedAction   string   `json:"recommended_action"`
    AutomationSuitable  bool     `json:"automation_suitable"`

    AnalyzedAt time.Time `json:"analyzed_at"`
}

// ScopeResult is produced once per scoping session. Parsed=false marks a
// best-effort result where defaults were substituted for unparseable fields.
type ScopeResult struct {
    SessionID      string `json:"session_id"`
    IssueNumber    int    `json:"issue_number"`
    RepositoryName string `json:"repository_name"`

    ConfidenceScore    float64 `json:"confidence_score"`
    ComplexityEstimate string  `json:"complexity_estimate"`
    EstimatedHours     float64 `json:"estimated_hours,omitempty"`

    RequirementsClarity  float64 `json:"requirements_clarity"`
    TechnicalFeasibility float64 `json:"technical_feasibility"`
    ScopeCompleteness    float64 `json:"scope_completeness"`

    RecommendedApproach string   `json:"recommended_approach,omitempty"`
    PotentialChallenges []string `json:"potential_challenges"`
    RequiredKnowledge   []string `json:"required_knowledge"`
    Dependencies        []string `json:"dependencies"`
    ActionPlan          []string `json:"action_plan"`
    AcceptanceCriteria  []string `json:"acceptance_criteria"`

    Parsed                  bool      `json:"parsed"`
    CreatedAt               time.Time `json:"created_at"`
    AnalysisDurationMinutes float64   `json:"analysis_duration_minutes"`
}

type CompletionResult struct {
    SessionID      string        `json:"session_id"`
    IssueNumber    int           `json:"issue_number"`
    RepositoryName string        `json:"repository_name"`
    Status         SessionStatus `json:"status"`
    SessionURL     string        `json:"session_url,omitempty"`
    CreatedAt      time.Time     `json:"created_at"`
}

// Session tracks one remote agent run. ConfidenceScore uses the provider's
// 0-100 scale, unlike the 0-1 analysis scores.
type Session struct {
    SessionID   string        `json:"session_id"`
    Status      SessionStatus `json:"status"`
    SessionType SessionType   `json:"session_type"`

    Prompt          string   `json:"prompt"`
    RepositoryName  string   `json:"repository_name,omitempty"`
    IssueNumber     int      `json:"issue_number,omitempty"`
    Tags            []string `json:"tags,omitempty"`
    Output          string   `json:"output,omitempty"`
    ErrorMessage    string   `json:"error_message,omitempty"`
    ConfidenceScore float64  `json:"confidence_score,omitempty"`

    SessionURL     string     `json:"session_url"`
    GitHubIssueURL string     `json:"github_issue_url,omitempty"`
    CreatedAt      time.Time  `json:"created_at"`
    UpdatedAt      time.Time  `json:"updated_at"`
    CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

type SessionSummary struct {
    SessionID       string        `json:"session_id"`
    SessionType     SessionType   `json:"session_type"`
    Status          SessionStatus `json:"status"`
    RepositoryName  string        `json:"repository_name,omitempty"`
    IssueNumber     int           `json:"issue_number,omitempty"`
    ConfidenceScore float64       `json:"confidence_score,omitempty"`
    CreatedAt       time.Time     `json:"created_at"`
}

// RepoFile is codebase context attached to scoping prompts.
type RepoFile struct {
    ID              int64   `json:"id"`
    RepositoryName  string  `json:"repository_name"`
    Path            string  `json:"path"`
    FileType        string  `json:"file_type,omitempty"`
    Language        string  `json:"language,omitempty"`
    ImportanceScore float64 `json:"importance_score"`
    ComplexityScore float64 `json:"complexity_score"`
    Description     string  `json:"description,omitempty"`
    RelatedIssues   []int   `json:"related_issues,omitempty"`
}

type ScopeSummary struct {
    IssueNumber         int      `json:"issue_number"`
    ConfidenceScore     float64  `json:"confidence_score"`
    ComplexityEstimate  string   `json:"complexity_estimate"`
    RecommendedApproach string   `json:"recommended_approach,omitempty"`
    KeyChallenges       []string `json:"key_challenges,omitempty"`
    CreatedAt           string   `json:"created_at"`
}

type IssueWithAnalysis struct {
    Issue          Issue            `json:"issue"`
    Analysis       *IssueAnalysis   `json:"analysis,omitempty"`
    ActiveSessions []SessionSummary `json:"active_sessions"`
}

func (iw IssueWithAnalysis) AutomationReady() bool {
    if iw.Analysis == nil { return false }
    return iw.Analysis.AutomationSuitable && iw.Analysis.OverallConfidence >= 0.7
}

// PriorityScore ranks issues for the dashboard: weighted confidence plus a
// complexity bonus plus a recency boost, capped at 1.0.
func (iw IssueWithAnalysis) PriorityScore(now time.Time) float64 {
    score := 0.0
    if iw.Analysis != nil {
        score += iw.Analysis.OverallConfidence * 0.4
        switch iw.Analysis.ComplexityLevel {
        case ComplexityLow:
            score += 0.3
        case ComplexityMedium:
            score += 0.2
        case ComplexityHigh:
            score += 0.1
        }
    }
    days := now.Sub(iw.Issue.CreatedAt).Hours() / 24.0
    if days < 7 {
        score += 0.1
    } else if days < 30 {
        score += 0.05
    }
    if len(iw.Issue.Labels) > 0 { score += 0.05 }
    if score > 1.0 { score = 1.0 }
    return score
}

type DashboardFilter struct {
    Repository          string
    ConfidenceLevel     ConfidenceLevel
    ComplexityLevel     ComplexityLevel
    AutomationReadyOnly bool
    SortBy              string // priority, confidence, created, updated
    SortOrder           string // asc, desc
    Limit               int
}

type DashboardStats struct {
    TotalIssues          int `json:"total_issues"`
    OpenIssues           int `json:"open_issues"`
    AnalyzedIssues       int `json:"analyzed_issues"`
    HighConfidenceIssues int `json:"high_confidence_issues"`
    AutomatedIssues      int `json:"automated_issues"`

    TotalSessions     int `json:"total_sessions"`
    ActiveSessions    int `json:"active_sessions"`
    CompletedSessions int `json:"completed_sessions"`
    FailedSessions    int `json:"failed_sessions"`

    AverageConfidenceScore float64 `json:"average_confidence_score"`
    AutomationSuccessRate  float64 `json:"automation_success_rate"`

    IssuesAnalyzedToday    int `json:"issues_analyzed_today"`
    SessionsStartedToday   int `json:"sessions_started_today"`
    SessionsCompletedToday int `json:"sessions_completed_today"`

    LowComplexityIssues    int `json:"low_complexity_issues"`
    MediumComplexityIssues int `json:"medium_complexity_issues"`
    HighComplexityIssues   int `json:"high_complexity_issues"`

    LastUpdated time.Time `json:"last_updated"`
}

type RepositoryStats struct {
    RepositoryName    string              `json:"repository_name"`
    TotalIssues       int                 `json:"total_issues"`
    OpenIssues        int                 `json:"open_issues"`
    AnalyzedIssues    int                 `json:"analyzed_issues"`
    AutomatedIssues   int                 `json:"automated_issues"`
    AverageConfidence float64             `json:"average_confidence"`
    RecentSessions    []SessionSummary    `json:"recent_sessions"`
    TopIssues         []IssueWithAnalysis `json:"top_issues"`
}

// ImplementationGate is the outcome of the confidence-gated implement workflow.
type ImplementationGate struct {
    SessionID               string  `json:"session_id"`
    ConfidenceScore         float64 `json:"confidence_score"`
    RepositoryName          string  `json:"repository_name"`
    IssueNumber             int     `json:"issue_number"`
    ImplementationStarted   bool    `json:"implementation_started"`
    ImplementationSessionID string  `json:"implementation_session_id,omitempty"`
    ImplementationURL       string  `json:"implementation_session_url,omitempty"`
    Message                 string  `json:"message,omitempty"`
}
