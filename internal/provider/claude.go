package provider

import (
	"context"
	"fmt"
	"os"

	anthropic "github.com/liushuangls/go-anthropic/v2"
)

// claudeProvider ranks candidates via Anthropic Claude.
type claudeProvider struct {
	client *anthropic.Client
	model  string
}

// NewClaude creates a Claude provider. If apiKey is empty, ANTHROPIC_API_KEY
// is used.
func NewClaude(apiKey string) Provider {
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	return &claudeProvider{
		client: anthropic.NewClient(apiKey),
		model:  "claude-3-5-haiku-latest",
	}
}

func (p *claudeProvider) Name() string { return NameClaude }

func (p *claudeProvider) Rank(ctx context.Context, query string, candidates []Candidate) (Result, error) {
	resp, err := p.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:     anthropic.Model(p.model),
		MaxTokens: 1024,
		Messages: []anthropic.Message{
			{
				Role:    anthropic.RoleUser,
				Content: []anthropic.MessageContent{anthropic.NewTextMessageContent(rankPrompt(query, candidates))},
			},
		},
	})
	if err != nil {
		return Result{}, fmt.Errorf("claude rank: %w", err)
	}
	if len(resp.Content) == 0 {
		return Result{}, fmt.Errorf("claude rank: empty response")
	}
	return parseResult(resp.Content[0].GetText())
}
