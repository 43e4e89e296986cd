/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package devin

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "io"
    "net/http"
    "strings"
    "time"

    "github.com/parthobardhan/github-devin-dashboard/internal/config"
    "github.com/parthobardhan/github-devin-dashboard/internal/domain"
    "github.com/rs/zerolog"
)

// Client talks to the remote agent API. Sessions are always created with
// idempotency disabled so a retried request never reattaches to an old run.
type Client struct {
    baseURL string
    apiKey  string
    http    *http.Client
    log     zerolog.Logger
}

func NewClient(cfg config.Config, log zerolog.Logger) *Client {
    return &Client{
        baseURL: strings.TrimRight(cfg.DevinBaseURL, "/"),
        apiKey:  cfg.DevinAPIKey,
        http:    &http.Client{Timeout: cfg.HTTPTimeout},
        log:     log,
    }
}

type SessionResponse struct {
    SessionID string `json:"session_id"`
    URL       string `json:"url"`
}

type SessionDetails struct {
    SessionID       string
    Status          domain.SessionStatus
    Output          string
    ErrorMessage    string
    ConfidenceScore float64
    URL             string
    CreatedAt       time.Time
    UpdatedAt       time.Time
    CompletedAt     *time.Time
}

func (c *Client) CreateSession(ctx context.Context, prompt string, tags []string) (SessionResponse, error) {
    if strings.TrimSpace(prompt) == "" {
        return SessionResponse{}, fmt.Errorf("%w: empty prompt", domain.ErrValidation)
    }
    body := map[string]any{"prompt": prompt, "idempotent": false}
    if len(tags) > 0 { body["tags"] = tags }
    var out SessionResponse
    if err := c.doJSON(ctx, http.MethodPost, c.baseURL+"/sessions", body, &out); err != nil {
        return SessionResponse{}, err
    }
    c.log.Info().Str("session_id", out.SessionID).Strs("tags", tags).Msg("devin session created")
    return out, nil
}

func (c *Client) GetSession(ctx context.Context, sessionID string) (SessionDetails, error) {
    if sessionID == "" {
        return SessionDetails{}, fmt.Errorf("%w: empty session id", domain.ErrValidation)
    }
    var w wireSession
    u := c.baseURL + "/sessions/" + sessionID
    if err := c.doJSON(ctx, http.MethodGet, u, nil, &w); err != nil { return SessionDetails{}, err }
    return w.toDetails(), nil
}

func (c *Client) SendMessage(ctx context.Context, sessionID, message string) error {
    if sessionID == "" {
        return fmt.Errorf("%w: empty session id", domain.ErrValidation)
    }
    u := c.baseURL + "/sessions/" + sessionID + "/messages"
    return c.doJSON(ctx, http.MethodPost, u, map[string]any{"message": message}, nil)
}

func (c *Client) ListSessions(ctx context.Context) ([]SessionDetails, error) {
    var w struct {
        Sessions []wireSession `json:"sessions"`
    }
    if err := c.doJSON(ctx, http.MethodGet, c.baseURL+"/sessions", nil, &w); err != nil { return nil, err }
    out := make([]SessionDetails, 0, len(w.Sessions))
    for _, s := range w.Sessions { out = append(out, s.toDetails()) }
    return out, nil
}

type wireSession struct {
    SessionID       string     `json:"session_id"`
    Status          string     `json:"status"`
    Output          string     `json:"output"`
    ErrorMessage    string     `json:"error_message"`
    ConfidenceScore float64    `json:"confidence_score"`
    URL             string     `json:"url"`
    CreatedAt       time.Time  `json:"created_at"`
    UpdatedAt       time.Time  `json:"updated_at"`
    CompletedAt     *time.Time `json:"completed_at"`
}

func (w wireSession) toDetails() SessionDetails {
    return SessionDetails{
        SessionID:       w.SessionID,
        Status:          MapStatus(w.Status),
        Output:          w.Output,
        ErrorMessage:    w.ErrorMessage,
        ConfidenceScore: w.ConfidenceScore,
        URL:             w.URL,
        CreatedAt:       w.CreatedAt,
        UpdatedAt:       w.UpdatedAt,
        CompletedAt:     w.CompletedAt,
    }
}

// MapStatus folds provider-specific vocabulary into the orchestrator's enum.
func MapStatus(s string) domain.SessionStatus {
    switch strings.ToLower(strings.TrimSpace(s)) {
    case "pending":
        return domain.SessionPending
    case "running", "claimed", "working":
        return domain.SessionRunning
    case "completed", "finished":
        return domain.SessionCompleted
    case "failed":
        return domain.SessionFailed
    case "cancelled", "canceled":
        return domain.SessionCancelled
    case "suspended", "blocked":
        return domain.SessionSuspended
    default:
        return domain.SessionPending
    }
}

func (c *Client) doJSON(ctx context.Context, method, u string, body any, out any) error {
    if c.baseURL == "" { return errors.New("devin: empty baseURL") }
    var payload []byte
    if body != nil {
        b, err := json.Marshal(body)
        if err != nil { return err }
        payload = b
    }
    var lastErr error
    for attempt := 0; attempt < 3; attempt++ {
        var r io.Reader
        if payload != nil { r = strings.NewReader(string(payload)) }
        req, err := http.NewRequestWithContext(ctx, method, u, r)
        if err != nil { return err }
        if payload != nil { req.Header.Set("Content-Type", "application/json") }
        if c.apiKey != "" { req.Header.Set("Authorization", "Bearer "+c.apiKey) }
        resp, err := c.http.Do(req)
        if err != nil {
            if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
                return fmt.Errorf("%w: devin: %v", domain.ErrRemoteTimeout, err)
            }
            lastErr = err
        } else {
            err := c.handle(resp, out)
            if err == nil { return nil }
            var retryable *retryableError
            if !errors.As(err, &retryable) { return err }
            lastErr = err
        }
        time.Sleep(time.Duration(300*(1<<attempt)) * time.Millisecond)
    }
    return fmt.Errorf("%w: devin: %v", domain.ErrRemoteServer, lastErr)
}

type retryableError struct{ err error }

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

func (c *Client) handle(resp *http.Response, out any) error {
    defer resp.Body.Close()
    if resp.StatusCode < 300 {
        if out == nil {
            io.Copy(io.Discard, resp.Body)
            return nil
        }
        return json.NewDecoder(resp.Body).Decode(out)
    }
    b, _ := io.ReadAll(resp.Body)
    msg := strings.TrimSpace(string(b))
    switch {
    case resp.StatusCode == http.StatusBadRequest:
        return fmt.Errorf("%w: devin: %s", domain.ErrBadRequest, msg)
    case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
        return fmt.Errorf("%w: devin status=%d", domain.ErrUnauthorized, resp.StatusCode)
    case resp.StatusCode == http.StatusNotFound:
        return fmt.Errorf("%w: devin: %s", domain.ErrNotFound, msg)
    case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
        return &retryableError{fmt.Errorf("devin status=%d body=%s", resp.StatusCode, msg)}
    default:
        return fmt.Errorf("%w: devin status=%d body=%s", domain.ErrBadRequest, resp.StatusCode, msg)
    }
}
