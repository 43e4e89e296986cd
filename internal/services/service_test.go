/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package services

import (
    "context"
    "errors"
    "strings"
    "sync"
    "testing"
    "time"

    "github.com/parthobardhan/github-devin-dashboard/internal/adapters/devin"
    "github.com/parthobardhan/github-devin-dashboard/internal/analysis"
    "github.com/parthobardhan/github-devin-dashboard/internal/config"
    "github.com/parthobardhan/github-devin-dashboard/internal/domain"
    "github.com/rs/zerolog"
)

type fakeIssues struct {
    issue domain.Issue
    err   error
    page  domain.IssuesPage
}

func (f *fakeIssues) Issue(ctx context.Context, repo string, number int) (domain.Issue, error) {
    return f.issue, f.err
}
func (f *fakeIssues) Issues(ctx context.Context, repo string, flt domain.IssueFilter) (domain.IssuesPage, error) {
    return f.page, f.err
}
func (f *fakeIssues) Comments(ctx context.Context, repo string, number int) ([]domain.Comment, error) {
    return nil, nil
}

type fakeAgent struct {
    mu          sync.Mutex
    created     []string // tags joined, one entry per CreateSession
    prompts     []string
    createErr   error
    details     devin.SessionDetails
    detailsErr  error
    polls       int
    nextSession int
}

func (f *fakeAgent) CreateSession(ctx context.Context, prompt string, tags []string) (devin.SessionResponse, error) {
    f.mu.Lock()
    defer f.mu.Unlock()
    if f.createErr != nil { return devin.SessionResponse{}, f.createErr }
    f.nextSession++
    f.created = append(f.created, strings.Join(tags, ","))
    f.prompts = append(f.prompts, prompt)
    return devin.SessionResponse{SessionID: "devin-test-1", URL: "https://app.devin.ai/sessions/devin-test-1"}, nil
}
func (f *fakeAgent) GetSession(ctx context.Context, sessionID string) (devin.SessionDetails, error) {
    f.mu.Lock()
    defer f.mu.Unlock()
    f.polls++
    if f.detailsErr != nil { return devin.SessionDetails{}, f.detailsErr }
    return f.details, nil
}
func (f *fakeAgent) SendMessage(ctx context.Context, sessionID, message string) error { return nil }
func (f *fakeAgent) ListSessions(ctx context.Context) ([]devin.SessionDetails, error) {
    return nil, nil
}

type fakeStore struct {
    mu       sync.Mutex
    sessions map[string]domain.Session
    results  []domain.ScopeResult
    recent   *domain.Session
    active   []domain.SessionSummary
}

func newFakeStore() *fakeStore { return &fakeStore{sessions: map[string]domain.Session{}} }

func (f *fakeStore) SaveSession(ctx context.Context, s domain.Session) error {
    f.mu.Lock()
    defer f.mu.Unlock()
    f.sessions[s.SessionID] = s
    return nil
}
func (f *fakeStore) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
    f.mu.Lock()
    defer f.mu.Unlock()
    if s, ok := f.sessions[sessionID]; ok { return &s, nil }
    return nil, nil
}
func (f *fakeStore) MostRecentSession(ctx context.Context, repo string, issueNumber int) (*domain.Session, error) {
    return f.recent, nil
}
func (f *fakeStore) ListSessions(ctx context.Context, repo string, limit int) ([]domain.SessionSummary, error) {
    return nil, nil
}
func (f *fakeStore) ActiveSessionsForIssue(ctx context.Context, repo string, issueNumber int) ([]domain.SessionSummary, error) {
    return f.active, nil
}
func (f *fakeStore) SessionStats(ctx context.Context) (total, active, completed, failed, startedToday, completedToday int, err error) {
    return 0, 0, 0, 0, 0, 0, nil
}
func (f *fakeStore) SaveScopeResult(ctx context.Context, sr domain.ScopeResult) error {
    f.mu.Lock()
    defer f.mu.Unlock()
    f.results = append(f.results, sr)
    return nil
}
func (f *fakeStore) RecentScopeSummaries(ctx context.Context, repo string, limit int) ([]domain.ScopeSummary, error) {
    return nil, nil
}
func (f *fakeStore) RelevantFiles(ctx context.Context, repo string, limit int) ([]domain.RepoFile, error) {
    return nil, nil
}
func (f *fakeStore) UpsertRepoFiles(ctx context.Context, files []domain.RepoFile) error { return nil }
func (f *fakeStore) ClearScopingData(ctx context.Context) (sessions, results int64, err error) {
    f.mu.Lock()
    defer f.mu.Unlock()
    n := int64(len(f.sessions))
    m := int64(len(f.results))
    f.sessions = map[string]domain.Session{}
    f.results = nil
    return n, m, nil
}
func (f *fakeStore) StartJobRun(ctx context.Context, kind string) (int64, error) { return 1, nil }
func (f *fakeStore) FinishJobRun(ctx context.Context, id int64, success bool, errStr string) error {
    return nil
}

type fakeNotifier struct {
    mu   sync.Mutex
    sent []string
}

func (f *fakeNotifier) SendMessage(ctx context.Context, chatID int64, text string) error {
    f.mu.Lock()
    defer f.mu.Unlock()
    f.sent = append(f.sent, text)
    return nil
}
func (f *fakeNotifier) SendMessagePlain(ctx context.Context, chatID int64, text string) error {
    return f.SendMessage(ctx, chatID, text)
}

type fakeLLM struct {
    out string
    err error
}

func (f *fakeLLM) SummarizeDigest(ctx context.Context, stats domain.DashboardStats, top []domain.IssueWithAnalysis) (string, error) {
    return f.out, f.err
}

func testIssue(number int) domain.Issue {
    return domain.Issue{
        ID:         int64(1000 + number),
        Number:     number,
        Title:      "Fix login redirect loop",
        Body:       "Steps to reproduce: open /login twice. Expected: one redirect. Actual: loop.",
        State:      "open",
        Labels:     []domain.Label{{Name: "bug"}},
        Comments:   2,
        CreatedAt:  time.Now().Add(-48 * time.Hour),
        UpdatedAt:  time.Now().Add(-2 * time.Hour),
        HTMLURL:    "https://github.com/octo/widgets/issues/42",
        Repository: &domain.Repository{FullName: "octo/widgets"},
    }
}

func newTestService(cfg config.Config, store *fakeStore, agent *fakeAgent, issues *fakeIssues, llm LLM, tg Notifier) *Service {
    log := zerolog.Nop()
    return New(cfg, log, store, issues, agent, llm, tg, analysis.New(log))
}

func TestRunScoping_CompletedSessionParsed(t *testing.T) {
    done := time.Now()
    agent := &fakeAgent{details: devin.SessionDetails{
        SessionID:   "devin-test-1",
        Status:      domain.SessionCompleted,
        Output:      "Scope analysis done. Confidence: 85%. This is a simple change.",
        CreatedAt:   done.Add(-time.Minute),
        CompletedAt: &done,
    }}
    store := newFakeStore()
    cfg := config.Config{DevinPoll: time.Millisecond, DevinTimeout: time.Second}
    svc := newTestService(cfg, store, agent, &fakeIssues{issue: testIssue(42)}, nil, nil)

    res, err := svc.RunScoping(context.Background(), "octo/widgets", 42)
    if err != nil { t.Fatalf("RunScoping: %v", err) }
    if !res.Parsed { t.Fatalf("expected parsed result") }
    if res.ConfidenceScore != 0.85 { t.Fatalf("confidence = %v, want 0.85", res.ConfidenceScore) }
    if res.ComplexityEstimate != "low" { t.Fatalf("complexity = %q, want low", res.ComplexityEstimate) }

    cached, ok := svc.CachedScopeResult("octo/widgets", 42)
    if !ok || cached.SessionID != "devin-test-1" { t.Fatalf("scope result not cached: %+v ok=%v", cached, ok) }
    saved := store.sessions["devin-test-1"]
    if saved.Status != domain.SessionCompleted { t.Fatalf("stored status = %s, want completed", saved.Status) }
    if saved.CompletedAt == nil { t.Fatalf("completed session missing CompletedAt") }
}

func TestRunScoping_TimeoutYieldsPartialResult(t *testing.T) {
    agent := &fakeAgent{details: devin.SessionDetails{SessionID: "devin-test-1", Status: domain.SessionRunning}}
    store := newFakeStore()
    cfg := config.Config{DevinPoll: time.Millisecond, DevinTimeout: 25 * time.Millisecond}
    svc := newTestService(cfg, store, agent, &fakeIssues{issue: testIssue(7)}, nil, nil)

    res, err := svc.RunScoping(context.Background(), "octo/widgets", 7)
    if err != nil { t.Fatalf("timeout must not surface as an error, got %v", err) }
    if res.Parsed { t.Fatalf("partial result must have Parsed=false") }
    if res.ConfidenceScore != 0.5 || res.ComplexityEstimate != "medium" {
        t.Fatalf("partial result = %.2f/%s, want 0.50/medium", res.ConfidenceScore, res.ComplexityEstimate)
    }
    if len(res.ActionPlan) != 1 || res.ActionPlan[0] != "Analysis in progress..." {
        t.Fatalf("partial action plan = %v", res.ActionPlan)
    }
    saved := store.sessions["devin-test-1"]
    if saved.Status != domain.SessionRunning { t.Fatalf("timed-out session stored as %s, want running", saved.Status) }
    if agent.polls == 0 { t.Fatalf("expected at least one poll before timing out") }
}

func TestRunScoping_FailedSessionReturnsRemoteError(t *testing.T) {
    agent := &fakeAgent{details: devin.SessionDetails{
        SessionID:    "devin-test-1",
        Status:       domain.SessionFailed,
        ErrorMessage: "sandbox crashed",
    }}
    store := newFakeStore()
    cfg := config.Config{DevinPoll: time.Millisecond, DevinTimeout: time.Second}
    svc := newTestService(cfg, store, agent, &fakeIssues{issue: testIssue(9)}, nil, nil)

    _, err := svc.RunScoping(context.Background(), "octo/widgets", 9)
    if !errors.Is(err, domain.ErrRemoteServer) { t.Fatalf("err = %v, want ErrRemoteServer", err) }
    if !strings.Contains(err.Error(), "sandbox crashed") { t.Fatalf("remote message lost: %v", err) }
    if _, ok := svc.CachedScopeResult("octo/widgets", 9); ok { t.Fatalf("failed scope must not be cached") }
}

func TestRunScoping_TagsCarryIssueNumber(t *testing.T) {
    done := time.Now()
    agent := &fakeAgent{details: devin.SessionDetails{SessionID: "devin-test-1", Status: domain.SessionCompleted, CompletedAt: &done}}
    cfg := config.Config{DevinPoll: time.Millisecond, DevinTimeout: time.Second}
    svc := newTestService(cfg, newFakeStore(), agent, &fakeIssues{issue: testIssue(123)}, nil, nil)

    if _, err := svc.RunScoping(context.Background(), "octo/widgets", 123); err != nil { t.Fatalf("RunScoping: %v", err) }
    if len(agent.created) != 1 || agent.created[0] != "scoping,analysis,issue-123" {
        t.Fatalf("tags = %v, want scoping,analysis,issue-123", agent.created)
    }
}

func TestRunCompletion_UsesCachedScopeAndReturnsRunning(t *testing.T) {
    done := time.Now()
    agent := &fakeAgent{details: devin.SessionDetails{SessionID: "devin-test-1", Status: domain.SessionCompleted, Output: "Confidence: 90%", CompletedAt: &done}}
    store := newFakeStore()
    cfg := config.Config{DevinPoll: time.Millisecond, DevinTimeout: time.Second}
    svc := newTestService(cfg, store, agent, &fakeIssues{issue: testIssue(5)}, nil, nil)

    if _, err := svc.RunScoping(context.Background(), "octo/widgets", 5); err != nil { t.Fatalf("scope: %v", err) }
    scopedSessions := len(agent.created)

    out, err := svc.RunCompletion(context.Background(), "octo/widgets", 5, true)
    if err != nil { t.Fatalf("RunCompletion: %v", err) }
    if out.Status != domain.SessionRunning { t.Fatalf("status = %s, want running", out.Status) }
    if len(agent.created) != scopedSessions+1 { t.Fatalf("cached scope should not trigger a second scoping session") }
    if got := agent.created[len(agent.created)-1]; got != "completion,implementation,issue-5" {
        t.Fatalf("completion tags = %q", got)
    }
}

func TestRunImplementationGate(t *testing.T) {
    cases := []struct {
        name       string
        confidence float64
        started    bool
    }{
        {"above threshold", 71, true},
        {"at threshold stays closed", 70, false},
        {"below threshold", 40, false},
    }
    for _, tc := range cases {
        t.Run(tc.name, func(t *testing.T) {
            agent := &fakeAgent{details: devin.SessionDetails{SessionID: "scope-1", Status: domain.SessionCompleted, ConfidenceScore: tc.confidence}}
            store := newFakeStore()
            store.recent = &domain.Session{SessionID: "scope-1", RepositoryName: "octo/widgets", IssueNumber: 3, ConfidenceScore: 10}
            svc := newTestService(config.Config{}, store, agent, &fakeIssues{issue: testIssue(3)}, nil, nil)

            gate, err := svc.RunImplementationGate(context.Background(), "octo/widgets", 3)
            if err != nil { t.Fatalf("gate: %v", err) }
            if gate.ImplementationStarted != tc.started {
                t.Fatalf("started = %v, want %v (confidence %.0f)", gate.ImplementationStarted, tc.started, tc.confidence)
            }
            if gate.ConfidenceScore != tc.confidence { t.Fatalf("gate should report refreshed confidence %v, got %v", tc.confidence, gate.ConfidenceScore) }
            if !tc.started && !strings.Contains(gate.Message, "not high enough") { t.Fatalf("closed gate message = %q", gate.Message) }
        })
    }
}

func TestRunImplementationGate_NoPriorSession(t *testing.T) {
    svc := newTestService(config.Config{}, newFakeStore(), &fakeAgent{}, &fakeIssues{issue: testIssue(1)}, nil, nil)
    _, err := svc.RunImplementationGate(context.Background(), "octo/widgets", 1)
    if !errors.Is(err, domain.ErrNotFound) { t.Fatalf("err = %v, want ErrNotFound", err) }
}

func TestRunImplementationGate_RefreshFallsBackToCached(t *testing.T) {
    agent := &fakeAgent{detailsErr: domain.ErrRemoteServer}
    store := newFakeStore()
    store.recent = &domain.Session{SessionID: "scope-1", RepositoryName: "octo/widgets", IssueNumber: 4, ConfidenceScore: 80}
    svc := newTestService(config.Config{}, store, agent, &fakeIssues{issue: testIssue(4)}, nil, nil)

    gate, err := svc.RunImplementationGate(context.Background(), "octo/widgets", 4)
    if err != nil { t.Fatalf("gate: %v", err) }
    if !gate.ImplementationStarted { t.Fatalf("cached confidence 80 should open the gate") }
}

func TestBatchScope_Validation(t *testing.T) {
    svc := newTestService(config.Config{}, newFakeStore(), &fakeAgent{}, &fakeIssues{}, nil, nil)
    if _, err := svc.BatchScope(context.Background(), "octo/widgets", nil); !errors.Is(err, domain.ErrValidation) {
        t.Fatalf("empty batch err = %v, want ErrValidation", err)
    }
    eleven := make([]int, 11)
    if _, err := svc.BatchScope(context.Background(), "octo/widgets", eleven); !errors.Is(err, domain.ErrValidation) {
        t.Fatalf("oversized batch err = %v, want ErrValidation", err)
    }
}

func TestBatchScope_IsolatesFailures(t *testing.T) {
    done := time.Now()
    agent := &fakeAgent{details: devin.SessionDetails{SessionID: "devin-test-1", Status: domain.SessionCompleted, CompletedAt: &done}}
    cfg := config.Config{DevinPoll: time.Millisecond, DevinTimeout: time.Second}
    svc := newTestService(cfg, newFakeStore(), agent, &fakeIssues{issue: testIssue(2)}, nil, nil)

    items, err := svc.BatchScope(context.Background(), "octo/widgets", []int{2, 3})
    if err != nil { t.Fatalf("batch: %v", err) }
    if len(items) != 2 { t.Fatalf("items = %d, want 2", len(items)) }
    for _, it := range items {
        if it.Error != "" { t.Fatalf("issue %d errored: %s", it.IssueNumber, it.Error) }
        if it.Result == nil { t.Fatalf("issue %d missing result", it.IssueNumber) }
    }
}

func TestClearScopingData_WipesCaches(t *testing.T) {
    done := time.Now()
    agent := &fakeAgent{details: devin.SessionDetails{SessionID: "devin-test-1", Status: domain.SessionCompleted, CompletedAt: &done}}
    store := newFakeStore()
    cfg := config.Config{DevinPoll: time.Millisecond, DevinTimeout: time.Second}
    svc := newTestService(cfg, store, agent, &fakeIssues{issue: testIssue(8)}, nil, nil)

    if _, err := svc.RunScoping(context.Background(), "octo/widgets", 8); err != nil { t.Fatalf("scope: %v", err) }
    counts, err := svc.ClearScopingData(context.Background())
    if err != nil { t.Fatalf("clear: %v", err) }
    if counts["cached_results"] != 1 { t.Fatalf("cached_results = %d, want 1", counts["cached_results"]) }
    if _, ok := svc.CachedScopeResult("octo/widgets", 8); ok { t.Fatalf("cache must be empty after clear") }
}

func TestRunWeeklyDigest_FallsBackToPlainRendering(t *testing.T) {
    tg := &fakeNotifier{}
    llm := &fakeLLM{err: errors.New("quota exceeded")}
    cfg := config.Config{OpenAIKey: "sk-test", TelegramChatIDs: []int64{100}}
    issues := &fakeIssues{page: domain.IssuesPage{Issues: []domain.Issue{testIssue(11)}}}
    svc := newTestService(cfg, newFakeStore(), &fakeAgent{}, issues, llm, tg)

    if err := svc.RunWeeklyDigest(context.Background()); err != nil { t.Fatalf("digest: %v", err) }
    if len(tg.sent) != 1 { t.Fatalf("sent %d messages, want 1", len(tg.sent)) }
    if !strings.Contains(tg.sent[0], "Weekly digest") { t.Fatalf("fallback digest body = %q", tg.sent[0]) }
}

func TestRunWeeklyDigest_PrefersLLMSummary(t *testing.T) {
    tg := &fakeNotifier{}
    llm := &fakeLLM{out: "All quiet this week."}
    cfg := config.Config{OpenAIKey: "sk-test", TelegramChatIDs: []int64{100, 200}}
    svc := newTestService(cfg, newFakeStore(), &fakeAgent{}, &fakeIssues{}, llm, tg)

    if err := svc.RunWeeklyDigest(context.Background()); err != nil { t.Fatalf("digest: %v", err) }
    if len(tg.sent) != 2 { t.Fatalf("sent %d messages, want one per chat", len(tg.sent)) }
    if tg.sent[0] != "All quiet this week." { t.Fatalf("digest body = %q", tg.sent[0]) }
}
