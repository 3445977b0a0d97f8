// Package llm provides the generation client. Every backend speaks the
// OpenAI-compatible chat completion protocol; profiles differ only in
// endpoint, model and invocation parameters.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/hrygo/parley/ai/backend"
)

// Message represents a chat message.
type Message struct {
	Role    string // system, user, assistant
	Content string
}

// CallStats represents statistics for a single generation call.
type CallStats struct {
	// PromptTokens is the number of tokens in the input prompt.
	PromptTokens int `json:"prompt_tokens"`

	// CompletionTokens is the number of tokens in the generated response.
	CompletionTokens int `json:"completion_tokens"`

	// TotalTokens is the sum of prompt and completion tokens.
	TotalTokens int `json:"total_tokens"`

	// ThinkingDurationMs is the time from request start to first chunk
	// (TTFT). For non-streaming requests, this is the total duration.
	ThinkingDurationMs int64 `json:"thinking_duration_ms"`

	// GenerationDurationMs is from first chunk to last chunk. Zero for
	// non-streaming requests.
	GenerationDurationMs int64 `json:"generation_duration_ms,omitempty"`

	// TotalDurationMs is the total wall-clock time for the request.
	TotalDurationMs int64 `json:"total_duration_ms"`
}

// Generation-layer failure classes. The orchestrator's recovery depends
// on which one comes back: timeout triggers decomposition immediately,
// the other two are retried per policy first.
var (
	ErrBackendUnreachable = errors.New("backend unreachable")
	ErrBackendTimeout     = errors.New("backend timeout")
	ErrBackendOverloaded  = errors.New("backend overloaded")
)

// Client issues prompts to model backends.
type Client interface {
	// Generate performs a one-shot completion.
	Generate(ctx context.Context, profile *backend.Profile, messages []Message) (string, *CallStats, error)

	// GenerateStream yields text deltas in generation order with no gaps
	// or duplicates. The stats channel receives the final stats once the
	// stream completes; all three channels are closed afterwards.
	GenerateStream(ctx context.Context, profile *backend.Profile, messages []Message) (<-chan string, <-chan *CallStats, <-chan error)

	// Warmup sends a lightweight ping to establish the backend connection.
	Warmup(ctx context.Context, profile *backend.Profile)
}

type client struct {
	defaultAPIKey string
	httpClient    *http.Client
	onRetry       func(model, failure string)

	mu        sync.Mutex
	endpoints map[string]*openai.Client
}

// Option configures the generation client.
type Option func(*client)

// WithRetryHook registers a callback invoked once per transient-failure
// retry, for metrics.
func WithRetryHook(hook func(model, failure string)) Option {
	return func(c *client) {
		c.onRetry = hook
	}
}

// NewClient creates a generation client. Connections are pooled per
// endpoint and reused across requests.
func NewClient(defaultAPIKey string, opts ...Option) Client {
	c := &client{
		defaultAPIKey: defaultAPIKey,
		httpClient:    newHTTPClient(),
		endpoints:     make(map[string]*openai.Client),
		onRetry:       func(string, string) {},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func newHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}

func (c *client) clientFor(profile *backend.Profile) *openai.Client {
	apiKey := profile.APIKey
	if apiKey == "" {
		apiKey = c.defaultAPIKey
	}
	key := profile.Endpoint + "\x00" + apiKey

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.endpoints[key]; ok {
		return existing
	}

	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = profile.Endpoint
	cfg.HTTPClient = c.httpClient
	created := openai.NewClientWithConfig(cfg)
	c.endpoints[key] = created
	return created
}

func (c *client) request(profile *backend.Profile, messages []Message) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model:       profile.Model,
		MaxTokens:   profile.Params.MaxTokens,
		Temperature: profile.Params.Temperature,
		Stop:        profile.Params.Stop,
		Messages:    convertMessages(messages),
	}
}

// Retry policy: unreachable is retried once, overloaded up to twice,
// timeout never (the orchestrator needs it immediately to decompose).
const (
	unreachableRetries = 1
	overloadedRetries  = 2
	retryBackoff       = 500 * time.Millisecond
)

func (c *client) Generate(ctx context.Context, profile *backend.Profile, messages []Message) (string, *CallStats, error) {
	oc := c.clientFor(profile)
	req := c.request(profile, messages)

	startTime := time.Now()
	var lastErr error
	unreachableLeft, overloadedLeft := unreachableRetries, overloadedRetries

	for {
		resp, err := oc.CreateChatCompletion(ctx, req)
		if err == nil {
			if len(resp.Choices) == 0 {
				return "", nil, fmt.Errorf("empty response from backend %s", profile.Model)
			}
			totalMs := time.Since(startTime).Milliseconds()
			stats := &CallStats{
				PromptTokens:       resp.Usage.PromptTokens,
				CompletionTokens:   resp.Usage.CompletionTokens,
				TotalTokens:        resp.Usage.TotalTokens,
				ThinkingDurationMs: totalMs,
				TotalDurationMs:    totalMs,
			}
			return resp.Choices[0].Message.Content, stats, nil
		}

		lastErr = classifyErr(err)
		var wait bool
		switch {
		case errors.Is(lastErr, ErrBackendUnreachable) && unreachableLeft > 0:
			unreachableLeft--
			wait = true
		case errors.Is(lastErr, ErrBackendOverloaded) && overloadedLeft > 0:
			overloadedLeft--
			wait = true
		}
		if !wait {
			slog.Error("llm: generate failed", "model", profile.Model, "error", lastErr)
			return "", nil, lastErr
		}

		c.onRetry(profile.Model, failureLabel(lastErr))
		slog.Warn("llm: retrying after transient failure",
			"model", profile.Model,
			"error", lastErr)
		select {
		case <-time.After(retryBackoff):
		case <-ctx.Done():
			return "", nil, classifyErr(ctx.Err())
		}
	}
}

func (c *client) GenerateStream(ctx context.Context, profile *backend.Profile, messages []Message) (<-chan string, <-chan *CallStats, <-chan error) {
	contentChan := make(chan string, 10)
	statsChan := make(chan *CallStats, 1)
	errChan := make(chan error, 1)

	go func() {
		defer close(contentChan)
		defer close(statsChan)
		defer close(errChan)

		oc := c.clientFor(profile)
		req := c.request(profile, messages)
		req.StreamOptions = &openai.StreamOptions{IncludeUsage: true}

		startTime := time.Now()
		var firstChunkTime time.Time

		stream, err := c.openStream(ctx, oc, req, profile)
		if err != nil {
			// errChan is buffered and receives at most one value, so the
			// send never blocks; racing it against ctx.Done() could drop
			// the error on a deadline and make the caller read a
			// truncated stream as success.
			errChan <- err
			return
		}
		defer func() { _ = stream.Close() }()

		chunkCount := 0
		finish := func(usage *openai.Usage) {
			totalDuration := time.Since(startTime)
			stats := &CallStats{
				TotalDurationMs: totalDuration.Milliseconds(),
			}
			if !firstChunkTime.IsZero() {
				stats.ThinkingDurationMs = firstChunkTime.Sub(startTime).Milliseconds()
				stats.GenerationDurationMs = time.Since(firstChunkTime).Milliseconds()
			}
			if usage != nil {
				stats.PromptTokens = usage.PromptTokens
				stats.CompletionTokens = usage.CompletionTokens
				stats.TotalTokens = usage.TotalTokens
			}
			slog.Debug("llm: stream completed",
				"model", profile.Model,
				"chunks", chunkCount,
				"duration_ms", totalDuration.Milliseconds())
			statsChan <- stats
		}

		for {
			response, err := stream.Recv()
			if err != nil {
				if strings.Contains(err.Error(), "EOF") {
					finish(nil)
					return
				}
				errChan <- classifyErr(err)
				return
			}

			if response.Usage != nil && response.Usage.TotalTokens > 0 {
				finish(response.Usage)
				return
			}

			if len(response.Choices) == 0 {
				continue
			}

			delta := response.Choices[0].Delta.Content
			if delta != "" {
				if firstChunkTime.IsZero() {
					firstChunkTime = time.Now()
				}
				chunkCount++
				select {
				case contentChan <- delta:
				case <-ctx.Done():
					errChan <- classifyErr(ctx.Err())
					return
				}
			}

			if response.Choices[0].FinishReason != "" {
				finish(nil)
				return
			}
		}
	}()

	return contentChan, statsChan, errChan
}

// openStream retries transient creation failures per the retry policy.
// Once the stream is open, mid-stream errors are surfaced unretried.
func (c *client) openStream(ctx context.Context, oc *openai.Client, req openai.ChatCompletionRequest, profile *backend.Profile) (*openai.ChatCompletionStream, error) {
	unreachableLeft, overloadedLeft := unreachableRetries, overloadedRetries

	for {
		stream, err := oc.CreateChatCompletionStream(ctx, req)
		if err == nil {
			return stream, nil
		}

		classified := classifyErr(err)
		var wait bool
		switch {
		case errors.Is(classified, ErrBackendUnreachable) && unreachableLeft > 0:
			unreachableLeft--
			wait = true
		case errors.Is(classified, ErrBackendOverloaded) && overloadedLeft > 0:
			overloadedLeft--
			wait = true
		}
		if !wait {
			slog.Error("llm: stream open failed", "model", profile.Model, "error", classified)
			return nil, classified
		}

		c.onRetry(profile.Model, failureLabel(classified))
		slog.Warn("llm: retrying stream open", "model", profile.Model, "error", classified)
		select {
		case <-time.After(retryBackoff):
		case <-ctx.Done():
			return nil, classifyErr(ctx.Err())
		}
	}
}

func (c *client) Warmup(ctx context.Context, profile *backend.Profile) {
	warmupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	oc := c.clientFor(profile)
	req := openai.ChatCompletionRequest{
		Model:       profile.Model,
		MaxTokens:   1,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: "Hi"},
		},
	}

	startTime := time.Now()
	if _, err := oc.CreateChatCompletion(warmupCtx, req); err != nil {
		slog.Warn("llm: warmup ping failed (first request may be slower)",
			"model", profile.Model,
			"error", err,
			"duration_ms", time.Since(startTime).Milliseconds())
		return
	}

	slog.Info("llm: backend warmed up",
		"model", profile.Model,
		"duration_ms", time.Since(startTime).Milliseconds())
}

// failureLabel names a classified failure for metric labels.
func failureLabel(err error) string {
	switch {
	case errors.Is(err, ErrBackendTimeout):
		return "timeout"
	case errors.Is(err, ErrBackendOverloaded):
		return "overloaded"
	case errors.Is(err, ErrBackendUnreachable):
		return "unreachable"
	default:
		return "other"
	}
}

// classifyErr maps transport and provider errors onto the generation
// failure classes.
func classifyErr(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrBackendTimeout, err)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusTooManyRequests, http.StatusServiceUnavailable:
			return fmt.Errorf("%w: %v", ErrBackendOverloaded, err)
		}
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrBackendTimeout, err)
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return fmt.Errorf("%w: %v", ErrBackendUnreachable, err)
	}
	if strings.Contains(err.Error(), "connection refused") || strings.Contains(err.Error(), "no such host") {
		return fmt.Errorf("%w: %v", ErrBackendUnreachable, err)
	}

	return err
}

func convertMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		role := openai.ChatMessageRoleUser
		switch m.Role {
		case "system":
			role = openai.ChatMessageRoleSystem
		case "assistant":
			role = openai.ChatMessageRoleAssistant
		}
		out[i] = openai.ChatCompletionMessage{Role: role, Content: m.Content}
	}
	return out
}

// Helper for creating system prompts.
func SystemPrompt(content string) Message {
	return Message{Role: "system", Content: content}
}

// Helper for creating user messages.
func UserMessage(content string) Message {
	return Message{Role: "user", Content: content}
}

// Helper for creating assistant messages.
func AssistantMessage(content string) Message {
	return Message{Role: "assistant", Content: content}
}

// FormatMessages assembles the message list for one generation call.
func FormatMessages(systemPrompt string, userContent string, history []Message) []Message {
	messages := []Message{}
	if systemPrompt != "" {
		messages = append(messages, SystemPrompt(systemPrompt))
	}
	messages = append(messages, history...)
	messages = append(messages, UserMessage(userContent))
	return messages
}
