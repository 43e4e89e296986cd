package openai

import (
    "context"
    "encoding/json"
    "errors"
    "strings"

    openai "github.com/openai/openai-go/v2"
    "github.com/openai/openai-go/v2/option"
    "github.com/openai/openai-go/v2/shared"
    "github.com/parthobardhan/github-devin-dashboard/internal/config"
    "github.com/parthobardhan/github-devin-dashboard/internal/domain"
    "github.com/rs/zerolog"
)

type Client struct {
    key   string
    model string
    cli   openai.Client
    log   zerolog.Logger
}

func NewClient(cfg config.Config, log zerolog.Logger) *Client {
    model := cfg.OpenAIModel
    if strings.TrimSpace(model) == "" { model = "gpt-4.1-mini" }
    cli := openai.NewClient(option.WithAPIKey(cfg.OpenAIKey))
    return &Client{key: cfg.OpenAIKey, model: model, cli: cli, log: log}
}

// SummarizeDigest turns dashboard statistics into a short prose digest for
// the weekly report. Callers must tolerate an error and fall back to a plain
// rendering of the stats.
func (c *Client) SummarizeDigest(ctx context.Context, stats domain.DashboardStats, topIssues []domain.IssueWithAnalysis) (string, error) {
    if strings.TrimSpace(c.key) == "" { return "", errors.New("openai: missing key") }
    c.log.Info().Str("model", c.model).Msg("openai digest call")
    payload := map[string]any{"stats": stats, "top_issues": topIssues}
    userContent := ""
    if b, err := json.Marshal(payload); err == nil { userContent = string(b) }
    params := openai.ChatCompletionNewParams{
        Model: shared.ChatModel(c.model),
        Messages: []openai.ChatCompletionMessageParamUnion{
            openai.SystemMessage("You are an engineering operations analyst. Given issue-automation statistics and the top automation-ready issues, produce a concise weekly digest: automation throughput, success rate, notable high-confidence issues worth delegating, and anything that looks stuck. Plain text, no markdown tables."),
            openai.UserMessage(userContent),
        },
    }
    resp, err := c.cli.Chat.Completions.New(ctx, params)
    if err != nil { return "", err }
    if len(resp.Choices) == 0 { return "", errors.New("openai: no choices") }
    return resp.Choices[0].Message.Content, nil
}
