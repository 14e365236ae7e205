// Package llmimpl implements the capability.Summarizer contract on an
// OpenAI-compatible chat completion API. Requests run at temperature 0
// with JSON response formatting, so the implementation is referentially
// transparent with respect to the caller's (model, template version,
// input hash) cache key; an in-process LRU keyed the same way absorbs
// repeated requests within a run.
package llmimpl

import (
	"context"
	"encoding/json"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/homer-mine/homer/pkg/alg/lru"
	"github.com/homer-mine/homer/pkg/capability"
	"github.com/homer-mine/homer/pkg/errkind"
)

// cacheEntries bounds the in-process response cache. Entries are small
// JSON maps; a few thousand covers the largest repositories' changed
// definition sets within one run.
const cacheEntries = 4096

// defaultRequestsPerSecond keeps the summarizer under typical API
// token-bucket limits without starving the pipeline's bounded fanout.
const defaultRequestsPerSecond = 2.0

// systemPrompt frames every summarization request. The template
// version in the request selects the user-prompt wording; this frame
// stays fixed so cached responses survive template iteration on the
// user side only when the version changes with the wording.
const systemPrompt = "You are a code analysis assistant. " +
	"Respond with a single JSON object and no surrounding prose."

// Summarizer talks to an OpenAI-compatible completion endpoint.
type Summarizer struct {
	client  *openai.Client
	limiter *rate.Limiter
	cache   *lru.Cache[string, map[string]any]
}

// New builds a Summarizer. An empty apiKey yields nil, the signal the
// semantic analyzer reads as "capability absent, skip".
func New(apiKey, baseURL string) *Summarizer {
	if apiKey == "" {
		return nil
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}

	return &Summarizer{
		client:  openai.NewClientWithConfig(cfg),
		limiter: rate.NewLimiter(rate.Limit(defaultRequestsPerSecond), 1),
		cache:   lru.New[string, map[string]any](lru.WithMaxEntries[string, map[string]any](cacheEntries)),
	}
}

// Summarize sends content to the model and decodes the structured JSON
// reply. Identical requests within a run are served from cache.
func (s *Summarizer) Summarize(ctx context.Context, req capability.SummaryRequest) (map[string]any, error) {
	key := cacheKey(req)

	if cached, ok := s.cache.Get(key); ok {
		return cached, nil
	}

	if waitErr := s.limiter.Wait(ctx); waitErr != nil {
		return nil, errkind.Wrap(errkind.Transient, "summarizer", req.ModelID, "rate limiter: %w", waitErr)
	}

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       req.ModelID,
		Temperature: 0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: req.Content},
		},
	})
	if err != nil {
		return nil, errkind.Wrap(errkind.Transient, "summarizer", req.ModelID, "chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, errkind.Wrap(errkind.Transient, "summarizer", req.ModelID, "empty completion response")
	}

	var payload map[string]any

	if unmarshalErr := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &payload); unmarshalErr != nil {
		return nil, errkind.Wrap(errkind.Input, "summarizer", req.ModelID, "decode completion JSON: %w", unmarshalErr)
	}

	s.cache.Put(key, payload)

	return payload, nil
}

// cacheKey derives the contract's cache identity from a request. The
// content itself stands in for the input hash: callers embed the
// subject's content hash in their prompt, and keying on the full prompt
// subsumes it.
func cacheKey(req capability.SummaryRequest) string {
	return fmt.Sprintf("%s|%s|%d|%s", req.ModelID, req.PromptTemplateVersion, len(req.Content), req.Content)
}
