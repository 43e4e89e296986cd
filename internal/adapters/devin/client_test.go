package devin

import (
    "context"
    "encoding/json"
    "errors"
    "net/http"
    "net/http/httptest"
    "testing"
    "time"

    "github.com/parthobardhan/github-devin-dashboard/internal/config"
    "github.com/parthobardhan/github-devin-dashboard/internal/domain"
    "github.com/rs/zerolog"
)

func testClient(baseURL string) *Client {
    cfg := config.Config{DevinBaseURL: baseURL, DevinAPIKey: "k", HTTPTimeout: 2 * time.Second}
    return NewClient(cfg, zerolog.Nop())
}

func TestMapStatus(t *testing.T) {
    cases := map[string]domain.SessionStatus{
        "pending":   domain.SessionPending,
        "running":   domain.SessionRunning,
        "claimed":   domain.SessionRunning,
        "completed": domain.SessionCompleted,
        "finished":  domain.SessionCompleted,
        "FAILED":    domain.SessionFailed,
        "cancelled": domain.SessionCancelled,
        "blocked":   domain.SessionSuspended,
        "suspended": domain.SessionSuspended,
        "whatever":  domain.SessionPending,
    }
    for in, want := range cases {
        if got := MapStatus(in); got != want {
            t.Fatalf("MapStatus(%q) = %s, want %s", in, got, want)
        }
    }
}

func TestCreateSession_PostsPromptWithoutIdempotency(t *testing.T) {
    var gotBody map[string]any
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        if r.Method != http.MethodPost || r.URL.Path != "/sessions" {
            t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
        }
        decodeJSONBody(t, r, &gotBody)
        w.Write([]byte(`{"session_id":"dev-1","url":"https://app.devin.ai/sessions/dev-1"}`))
    }))
    defer srv.Close()

    resp, err := testClient(srv.URL).CreateSession(context.Background(), "scope it", []string{"scoping", "issue-7"})
    if err != nil { t.Fatalf("unexpected error: %v", err) }
    if resp.SessionID != "dev-1" { t.Fatalf("session id = %q", resp.SessionID) }
    if v, ok := gotBody["idempotent"].(bool); !ok || v {
        t.Fatalf("expected idempotent=false in request, got %v", gotBody["idempotent"])
    }
    if gotBody["prompt"] != "scope it" { t.Fatalf("prompt = %v", gotBody["prompt"]) }
}

func TestCreateSession_EmptyPromptRejectedLocally(t *testing.T) {
    _, err := testClient("http://127.0.0.1:0").CreateSession(context.Background(), "  ", nil)
    if !errors.Is(err, domain.ErrValidation) { t.Fatalf("expected validation error, got %v", err) }
}

func TestGetSession_MapsProviderStatus(t *testing.T) {
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        w.Write([]byte(`{"session_id":"dev-2","status":"finished","output":"done","confidence_score":82}`))
    }))
    defer srv.Close()

    d, err := testClient(srv.URL).GetSession(context.Background(), "dev-2")
    if err != nil { t.Fatalf("unexpected error: %v", err) }
    if d.Status != domain.SessionCompleted { t.Fatalf("status = %s", d.Status) }
    if d.ConfidenceScore != 82 { t.Fatalf("confidence = %v", d.ConfidenceScore) }
}

func TestErrorTaxonomy(t *testing.T) {
    cases := []struct {
        code int
        want error
    }{
        {http.StatusBadRequest, domain.ErrBadRequest},
        {http.StatusUnauthorized, domain.ErrUnauthorized},
        {http.StatusNotFound, domain.ErrNotFound},
        {http.StatusInternalServerError, domain.ErrRemoteServer},
    }
    for _, c := range cases {
        srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
            http.Error(w, "boom", c.code)
        }))
        _, err := testClient(srv.URL).GetSession(context.Background(), "x")
        srv.Close()
        if !errors.Is(err, c.want) {
            t.Fatalf("status %d: expected %v, got %v", c.code, c.want, err)
        }
    }
}

func TestRetryOn5xxThenSuccess(t *testing.T) {
    attempts := 0
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        attempts++
        if attempts < 2 {
            http.Error(w, "flaky", http.StatusBadGateway)
            return
        }
        w.Write([]byte(`{"session_id":"dev-3","status":"running"}`))
    }))
    defer srv.Close()

    d, err := testClient(srv.URL).GetSession(context.Background(), "dev-3")
    if err != nil { t.Fatalf("unexpected error after retry: %v", err) }
    if attempts != 2 { t.Fatalf("expected 2 attempts, got %d", attempts) }
    if d.Status != domain.SessionRunning { t.Fatalf("status = %s", d.Status) }
}

func decodeJSONBody(t *testing.T, r *http.Request, out any) {
    t.Helper()
    if err := json.NewDecoder(r.Body).Decode(out); err != nil { t.Fatalf("decode body: %v", err) }
}
