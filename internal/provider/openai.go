package provider

import (
	"context"
	"fmt"
	"os"

	openai "github.com/sashabaranov/go-openai"
)

// openaiProvider ranks candidates via the OpenAI chat API.
type openaiProvider struct {
	client *openai.Client
	model  string
}

// NewOpenAI creates an OpenAI provider. If apiKey is empty, OPENAI_API_KEY
// is used.
func NewOpenAI(apiKey string) Provider {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	return &openaiProvider{
		client: openai.NewClient(apiKey),
		model:  "gpt-4o-mini",
	}
}

func (p *openaiProvider) Name() string { return NameOpenAI }

func (p *openaiProvider) Rank(ctx context.Context, query string, candidates []Candidate) (Result, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: rankPrompt(query, candidates)},
		},
		MaxTokens: 1024,
	})
	if err != nil {
		return Result{}, fmt.Errorf("openai rank: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Result{}, fmt.Errorf("openai rank: empty response")
	}
	return parseResult(resp.Choices[0].Message.Content)
}
