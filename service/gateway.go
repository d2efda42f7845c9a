package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/sashabaranov/go-openai"
	"google.golang.org/api/option"
)

// ModelKey names a model class. Selection is data, not code.
type ModelKey string

const (
	// ModelReasoning is the deep model for tactical analysis and drafting
	ModelReasoning ModelKey = "reasoning"
	// ModelResearch is the fast model for grounding, summarization, gating and edits
	ModelResearch ModelKey = "research"
)

// Providers understood by the gateway
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

const defaultModelTimeout = 60 * time.Second

// Message is one chat message sent to a model
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// InvokeOptions tunes a single call
type InvokeOptions struct {
	Temperature float32
	// JSON asks the model for a single JSON object
	JSON bool
}

// Gateway invokes a named model. Implementations never retry.
type Gateway interface {
	Invoke(ctx context.Context, key ModelKey, messages []Message, opts InvokeOptions) (string, error)
}

// ModelConfig is one row of the model table
type ModelConfig struct {
	Provider string
	Endpoint string
	ModelID  string
	APIKey   string
}

// chatProvider is a transport for one configured model
type chatProvider interface {
	complete(ctx context.Context, messages []Message, opts InvokeOptions) (string, error)
	close() error
}

// ModelGateway implements Gateway over OpenAI-compatible and Gemini endpoints
type ModelGateway struct {
	common
	providers map[ModelKey]chatProvider
	timeout   time.Duration
}

// GatewayOption is a functional option for ModelGateway
type GatewayOption func(*gatewaySettings)

type gatewaySettings struct {
	timeout    time.Duration
	httpClient *http.Client
	opts       []Option
}

// GatewayWithTimeout bounds each call
func GatewayWithTimeout(d time.Duration) GatewayOption {
	return func(s *gatewaySettings) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// GatewayWithHTTPClient sets the HTTP client for OpenAI-compatible providers
func GatewayWithHTTPClient(hc *http.Client) GatewayOption {
	return func(s *gatewaySettings) {
		s.httpClient = hc
	}
}

// GatewayWith applies shared options (logger, metrics)
func GatewayWith(opts ...Option) GatewayOption {
	return func(s *gatewaySettings) {
		s.opts = append(s.opts, opts...)
	}
}

// NewModelGateway builds a gateway from the model table
func NewModelGateway(ctx context.Context, table map[ModelKey]ModelConfig, opts ...GatewayOption) (*ModelGateway, error) {
	settings := gatewaySettings{timeout: defaultModelTimeout}
	for _, opt := range opts {
		opt(&settings)
	}

	g := &ModelGateway{
		common:    newCommon(settings.opts),
		providers: make(map[ModelKey]chatProvider, len(table)),
		timeout:   settings.timeout,
	}

	for key, cfg := range table {
		if cfg.ModelID == "" {
			g.Close()
			return nil, fmt.Errorf("model %s: model id not set", key)
		}
		switch strings.ToLower(cfg.Provider) {
		case ProviderOpenAI:
			clientCfg := openai.DefaultConfig(cfg.APIKey)
			if cfg.Endpoint != "" {
				clientCfg.BaseURL = strings.TrimRight(cfg.Endpoint, "/")
			}
			if settings.httpClient != nil {
				clientCfg.HTTPClient = settings.httpClient
			}
			g.providers[key] = &openaiProvider{
				client: openai.NewClientWithConfig(clientCfg),
				model:  cfg.ModelID,
			}
		case ProviderGemini, "":
			if cfg.APIKey == "" {
				g.logger.Warnf("Warning: API key not set for model %s", key)
			}
			clientOpts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
			if cfg.Endpoint != "" {
				clientOpts = append(clientOpts, option.WithEndpoint(cfg.Endpoint))
			}
			client, err := genai.NewClient(ctx, clientOpts...)
			if err != nil {
				g.Close()
				return nil, fmt.Errorf("model %s: failed to create Gemini client: %w", key, err)
			}
			g.providers[key] = &geminiProvider{client: client, model: cfg.ModelID}
		default:
			g.Close()
			return nil, fmt.Errorf("model %s: unknown provider %q", key, cfg.Provider)
		}
		g.logger.Infof("Model %s initialized (%s %s)", key, cfg.Provider, cfg.ModelID)
	}
	return g, nil
}

// Invoke implements Gateway
func (g *ModelGateway) Invoke(ctx context.Context, key ModelKey, messages []Message, opts InvokeOptions) (string, error) {
	provider, ok := g.providers[key]
	if !ok {
		return "", &ModelError{Key: key, Message: "not configured", Err: ErrUnknownModel}
	}
	if len(messages) == 0 {
		return "", &ModelError{Key: key, Message: "no messages"}
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	text, err := provider.complete(callCtx, messages, opts)
	if err == nil && strings.TrimSpace(text) == "" {
		err = ErrEmptyResponse
	}
	g.metrics.ModelCall(string(key), err, time.Since(start))

	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return "", &ModelError{Key: key, Message: fmt.Sprintf("timed out after %s", g.timeout), Err: err}
		}
		return "", &ModelError{Key: key, Message: describeProviderError(err), Err: err}
	}
	return text, nil
}

// Close releases provider clients
func (g *ModelGateway) Close() {
	for key, p := range g.providers {
		if err := p.close(); err != nil {
			g.logger.Warnf("Warning: failed to close model %s: %v", key, err)
		}
	}
}

func describeProviderError(err error) string {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Sprintf("API error: %d - %s", apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Sprintf("request failed with status %d", reqErr.HTTPStatusCode)
	}
	return "call failed"
}

type openaiProvider struct {
	client *openai.Client
	model  string
}

func (p *openaiProvider) complete(ctx context.Context, messages []Message, opts InvokeOptions) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(messages)),
		Temperature: openaiTemperature(opts.Temperature),
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    openaiRole(m.Role),
			Content: m.Content,
		})
	}
	if opts.JSON {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

func (p *openaiProvider) close() error { return nil }

// openaiTemperature keeps a zero temperature on the wire. The request field
// is omitempty, so 0 would fall back to the provider default of 1.0.
func openaiTemperature(t float32) float32 {
	if t <= 0 {
		return math.SmallestNonzeroFloat32
	}
	return t
}

func openaiRole(role string) string {
	switch role {
	case "system":
		return openai.ChatMessageRoleSystem
	case "assistant", "model":
		return openai.ChatMessageRoleAssistant
	default:
		return openai.ChatMessageRoleUser
	}
}

type geminiProvider struct {
	client *genai.Client
	model  string
}

func (p *geminiProvider) complete(ctx context.Context, messages []Message, opts InvokeOptions) (string, error) {
	model := p.client.GenerativeModel(p.model)
	model.SetTemperature(opts.Temperature)
	if opts.JSON {
		model.ResponseMIMEType = "application/json"
	}

	var system []string
	var turns []*genai.Content
	for _, m := range messages {
		switch m.Role {
		case "system":
			system = append(system, m.Content)
		case "assistant", "model":
			turns = append(turns, &genai.Content{Role: "model", Parts: []genai.Part{genai.Text(m.Content)}})
		default:
			turns = append(turns, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(m.Content)}})
		}
	}
	if len(system) > 0 {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(strings.Join(system, "\n\n"))}}
	}
	if len(turns) == 0 {
		return "", errors.New("no user message")
	}

	chat := model.StartChat()
	chat.History = turns[:len(turns)-1]
	last := turns[len(turns)-1]

	resp, err := chat.SendMessage(ctx, last.Parts...)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				b.WriteString(string(text))
			}
		}
		if b.Len() > 0 {
			break
		}
	}
	return b.String(), nil
}

func (p *geminiProvider) close() error {
	return p.client.Close()
}
