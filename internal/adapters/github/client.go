/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package github

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "io"
    "net/http"
    "net/url"
    "strings"
    "time"

    "github.com/parthobardhan/github-devin-dashboard/internal/config"
    "github.com/parthobardhan/github-devin-dashboard/internal/domain"
    "github.com/rs/zerolog"
)

type Client struct {
    baseURL string
    token   string
    http    *http.Client
    log     zerolog.Logger
}

func NewClient(cfg config.Config, log zerolog.Logger) *Client {
    return &Client{
        baseURL: strings.TrimRight(cfg.GitHubBaseURL, "/"),
        token:   cfg.GitHubToken,
        http:    &http.Client{Timeout: cfg.HTTPTimeout},
        log:     log,
    }
}

// ValidateRepo checks the owner/name form before any remote call is made.
func ValidateRepo(repo string) error {
    parts := strings.Split(repo, "/")
    if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
        return fmt.Errorf("%w: repository must be owner/name, got %q", domain.ErrValidation, repo)
    }
    return nil
}

func (c *Client) Issue(ctx context.Context, repo string, number int) (domain.Issue, error) {
    if err := ValidateRepo(repo); err != nil { return domain.Issue{}, err }
    if number <= 0 {
        return domain.Issue{}, fmt.Errorf("%w: issue number must be positive", domain.ErrValidation)
    }
    var w wireIssue
    u := fmt.Sprintf("%s/repos/%s/issues/%d", c.baseURL, repo, number)
    if err := c.doJSON(ctx, http.MethodGet, u, nil, &w); err != nil { return domain.Issue{}, err }
    issue := w.toDomain()
    if issue.Repository == nil {
        issue.Repository = &domain.Repository{FullName: repo, Name: strings.SplitN(repo, "/", 2)[1]}
    }
    return issue, nil
}

func (c *Client) Issues(ctx context.Context, repo string, f domain.IssueFilter) (domain.IssuesPage, error) {
    if err := ValidateRepo(repo); err != nil { return domain.IssuesPage{}, err }
    q := url.Values{}
    if f.State == "" { f.State = "open" }
    q.Set("state", f.State)
    if len(f.Labels) > 0 { q.Set("labels", strings.Join(f.Labels, ",")) }
    if f.Sort != "" { q.Set("sort", f.Sort) }
    if f.Direction != "" { q.Set("direction", f.Direction) }
    if f.PerPage <= 0 || f.PerPage > 100 { f.PerPage = 30 }
    if f.Page <= 0 { f.Page = 1 }
    q.Set("per_page", fmt.Sprint(f.PerPage))
    q.Set("page", fmt.Sprint(f.Page))

    var ws []wireIssue
    u := fmt.Sprintf("%s/repos/%s/issues?%s", c.baseURL, repo, q.Encode())
    if err := c.doJSON(ctx, http.MethodGet, u, nil, &ws); err != nil { return domain.IssuesPage{}, err }

    issues := make([]domain.Issue, 0, len(ws))
    for _, w := range ws {
        // the issues endpoint also returns pull requests; skip them
        if w.PullRequest != nil { continue }
        issue := w.toDomain()
        if issue.Repository == nil {
            issue.Repository = &domain.Repository{FullName: repo, Name: strings.SplitN(repo, "/", 2)[1]}
        }
        issues = append(issues, issue)
    }
    return domain.IssuesPage{
        Issues:  issues,
        Page:    f.Page,
        PerPage: f.PerPage,
        HasNext: len(ws) == f.PerPage,
    }, nil
}

func (c *Client) Comments(ctx context.Context, repo string, number int) ([]domain.Comment, error) {
    if err := ValidateRepo(repo); err != nil { return nil, err }
    if number <= 0 {
        return nil, fmt.Errorf("%w: issue number must be positive", domain.ErrValidation)
    }
    var ws []wireComment
    u := fmt.Sprintf("%s/repos/%s/issues/%d/comments", c.baseURL, repo, number)
    if err := c.doJSON(ctx, http.MethodGet, u, nil, &ws); err != nil { return nil, err }
    out := make([]domain.Comment, 0, len(ws))
    for _, w := range ws {
        out = append(out, domain.Comment{
            ID:        w.ID,
            Body:      w.Body,
            User:      domain.User{Login: w.User.Login, ID: w.User.ID},
            CreatedAt: w.CreatedAt,
        })
    }
    return out, nil
}

func (c *Client) Repository(ctx context.Context, repo string) (domain.Repository, error) {
    if err := ValidateRepo(repo); err != nil { return domain.Repository{}, err }
    var w wireRepo
    u := fmt.Sprintf("%s/repos/%s", c.baseURL, repo)
    if err := c.doJSON(ctx, http.MethodGet, u, nil, &w); err != nil { return domain.Repository{}, err }
    return w.toDomain(), nil
}

func (c *Client) doJSON(ctx context.Context, method, u string, body any, out any) error {
    if c.baseURL == "" { return errors.New("github: empty baseURL") }
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
        req.Header.Set("Accept", "application/vnd.github+json")
        if payload != nil { req.Header.Set("Content-Type", "application/json") }
        if c.token != "" { req.Header.Set("Authorization", "Bearer "+c.token) }
        resp, err := c.http.Do(req)
        if err != nil {
            if errors.Is(err, context.DeadlineExceeded) {
                return fmt.Errorf("%w: github: %v", domain.ErrRemoteTimeout, err)
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
    return fmt.Errorf("%w: github: %v", domain.ErrRemoteServer, lastErr)
}

type retryableError struct{ err error }

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

func (c *Client) handle(resp *http.Response, out any) error {
    defer resp.Body.Close()
    if resp.StatusCode < 300 {
        if out == nil { return nil }
        return json.NewDecoder(resp.Body).Decode(out)
    }
    b, _ := io.ReadAll(resp.Body)
    msg := strings.TrimSpace(string(b))
    switch {
    case resp.StatusCode == http.StatusNotFound:
        return fmt.Errorf("%w: github status=404 body=%s", domain.ErrNotFound, msg)
    case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
        return fmt.Errorf("%w: github status=%d body=%s", domain.ErrUnauthorized, resp.StatusCode, msg)
    case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
        return &retryableError{fmt.Errorf("github status=%d body=%s", resp.StatusCode, msg)}
    default:
        return fmt.Errorf("%w: github status=%d body=%s", domain.ErrBadRequest, resp.StatusCode, msg)
    }
}

type wireUser struct {
    Login string `json:"login"`
    ID    int64  `json:"id"`
}

type wireLabel struct {
    ID          int64  `json:"id"`
    Name        string `json:"name"`
    Description string `json:"description"`
}

type wireRepo struct {
    ID         int64  `json:"id"`
    Name       string `json:"name"`
    FullName   string `json:"full_name"`
    Language   string `json:"language"`
    OpenIssues int    `json:"open_issues_count"`
}

func (w wireRepo) toDomain() domain.Repository {
    return domain.Repository{ID: w.ID, Name: w.Name, FullName: w.FullName, Language: w.Language, OpenIssues: w.OpenIssues}
}

type wireIssue struct {
    ID        int64       `json:"id"`
    Number    int         `json:"number"`
    Title     string      `json:"title"`
    Body      string      `json:"body"`
    State     string      `json:"state"`
    User      wireUser    `json:"user"`
    Assignees []wireUser  `json:"assignees"`
    Labels    []wireLabel `json:"labels"`
    Milestone *struct {
        Title string `json:"title"`
    } `json:"milestone"`
    Comments    int       `json:"comments"`
    CreatedAt   time.Time `json:"created_at"`
    UpdatedAt   time.Time `json:"updated_at"`
    HTMLURL     string    `json:"html_url"`
    Repository  *wireRepo `json:"repository"`
    PullRequest *struct {
        URL string `json:"url"`
    } `json:"pull_request"`
}

func (w wireIssue) toDomain() domain.Issue {
    issue := domain.Issue{
        ID:        w.ID,
        Number:    w.Number,
        Title:     w.Title,
        Body:      w.Body,
        State:     w.State,
        User:      domain.User{Login: w.User.Login, ID: w.User.ID},
        Comments:  w.Comments,
        CreatedAt: w.CreatedAt,
        UpdatedAt: w.UpdatedAt,
        HTMLURL:   w.HTMLURL,
    }
    for _, a := range w.Assignees {
        issue.Assignees = append(issue.Assignees, domain.User{Login: a.Login, ID: a.ID})
    }
    for _, l := range w.Labels {
        issue.Labels = append(issue.Labels, domain.Label{ID: l.ID, Name: l.Name, Description: l.Description})
    }
    if w.Milestone != nil { issue.Milestone = w.Milestone.Title }
    if w.Repository != nil {
        r := w.Repository.toDomain()
        issue.Repository = &r
    }
    return issue
}

type wireComment struct {
    ID        int64     `json:"id"`
    Body      string    `json:"body"`
    User      wireUser  `json:"user"`
    CreatedAt time.Time `json:"created_at"`
}
