package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/personakb/persona/config"
	"github.com/personakb/persona/errors"
)

// OpenAIClient implements Client against any OpenAI-compatible API
// (api.openai.com, a local Ollama/LocalAI endpoint, or a gateway).
type OpenAIClient struct {
	client         *openai.Client
	chatModel      string
	embeddingModel string
	limiter        *rate.Limiter
	timeout        time.Duration
	logger         *zap.SugaredLogger
}

// NewOpenAIClient builds a provider client from configuration.
func NewOpenAIClient(cfg config.ProviderConfig, emb config.EmbeddingsConfig, logger *zap.SugaredLogger) (*OpenAIClient, error) {
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, errors.Wrap(errors.ErrStrategyUnavailable, "provider requires an API key or a base URL")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 60
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &OpenAIClient{
		client:         openai.NewClientWithConfig(clientConfig),
		chatModel:      cfg.ChatModel,
		embeddingModel: emb.Model,
		limiter:        rate.NewLimiter(rate.Limit(float64(rpm)/60.0), rpm),
		timeout:        timeout,
		logger:         logger,
	}, nil
}

// EmbeddingModel identifies the embedding model for cache bookkeeping.
func (c *OpenAIClient) EmbeddingModel() string {
	return c.embeddingModel
}

func (c *OpenAIClient) wait(ctx context.Context) (context.Context, context.CancelFunc, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, nil, errors.Wrap(err, "rate limiter wait")
	}
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	return callCtx, cancel, nil
}

// Embed returns the embedding vector for text.
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, errors.New("text cannot be empty")
	}

	callCtx, cancel, err := c.wait(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	resp, err := c.client.CreateEmbeddings(callCtx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(c.embeddingModel),
	})
	if err != nil {
		return nil, errors.Wrap(err, "embedding request failed")
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("embedding response is empty")
	}

	return resp.Data[0].Embedding, nil
}

const rewritePrompt = `Rewrite the user's question about a person's life into search terms.
Respond with JSON only, no prose:
{"keywords": [...], "tags": [...], "entities": [...], "index_query": "..."}
"index_query" is a short space-separated keyword string for a full-text index.

Question: %s`

// RewriteQuery transforms a natural-language query into structured terms.
func (c *OpenAIClient) RewriteQuery(ctx context.Context, text string) (*QueryRewrite, error) {
	raw, err := c.chatJSON(ctx, fmt.Sprintf(rewritePrompt, text))
	if err != nil {
		return nil, err
	}

	var rewrite QueryRewrite
	if err := json.Unmarshal([]byte(raw), &rewrite); err != nil {
		return nil, errors.Wrap(err, "failed to parse rewrite response")
	}
	return &rewrite, nil
}

const scorePrompt = `Rate how relevant each statement is to the query on a 0.0-1.0 scale.
Respond with JSON only: [{"id": "...", "score": 0.0, "reason": "..."}, ...]

Query: %s

Statements:
%s`

// ScoreBatch rates each candidate's relevance to the query.
func (c *OpenAIClient) ScoreBatch(ctx context.Context, query string, candidates []Candidate) ([]Score, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	var sb strings.Builder
	for _, cand := range candidates {
		fmt.Fprintf(&sb, "- id=%s: %s\n", cand.ID, cand.Text)
	}

	raw, err := c.chatJSON(ctx, fmt.Sprintf(scorePrompt, query, sb.String()))
	if err != nil {
		return nil, err
	}

	var scores []Score
	if err := json.Unmarshal([]byte(raw), &scores); err != nil {
		return nil, errors.Wrap(err, "failed to parse score response")
	}
	return scores, nil
}

const rerankPrompt = `Order the statements from most to least relevant to the query.
Respond with JSON only: a list of ids, e.g. ["id3", "id1", "id2"].

Query: %s

Statements:
%s`

// Rerank reorders candidates by relevance, returning ids best-first.
func (c *OpenAIClient) Rerank(ctx context.Context, query string, candidates []Candidate) ([]string, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	var sb strings.Builder
	for _, cand := range candidates {
		fmt.Fprintf(&sb, "- id=%s: %s\n", cand.ID, cand.Text)
	}

	raw, err := c.chatJSON(ctx, fmt.Sprintf(rerankPrompt, query, sb.String()))
	if err != nil {
		return nil, err
	}

	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, errors.Wrap(err, "failed to parse rerank response")
	}
	return ids, nil
}

// chatJSON runs one chat completion and strips any markdown fencing from
// the model output.
func (c *OpenAIClient) chatJSON(ctx context.Context, prompt string) (string, error) {
	callCtx, cancel, err := c.wait(ctx)
	if err != nil {
		return "", err
	}
	defer cancel()

	model := c.chatModel
	if model == "" {
		model = openai.GPT4oMini
	}

	resp, err := c.client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
		Model:       model,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", errors.Wrap(err, "chat completion failed")
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content), nil
}
