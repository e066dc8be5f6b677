package adapter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	apperrors "papergraph/backend/pkg/errors"
	"papergraph/backend/pkg/logger"
)

// LLMAdapter talks to an OpenAI-compatible service (LiteLLM, OpenRouter,
// vLLM) for chat completions and embeddings. It makes exactly one request per
// call; retries belong to the gateway.
type LLMAdapter struct {
	client         *openai.Client
	model          string
	embeddingModel string
	logger         *zap.Logger
}

// NewLLMAdapter creates a new LLM adapter. An empty embeddingModel disables
// embeddings.
func NewLLMAdapter(baseURL, apiKey, modelID, embeddingModel string) *LLMAdapter {
	// For LiteLLM, we can use a dummy API key if not provided
	if apiKey == "" {
		apiKey = "dummy-key"
	}

	config := openai.DefaultConfig(apiKey)
	config.BaseURL = baseURL + "/v1"

	return &LLMAdapter{
		client:         openai.NewClientWithConfig(config),
		model:          modelID,
		embeddingModel: embeddingModel,
		logger:         logger.Get(),
	}
}

// Model returns the default chat model
func (a *LLMAdapter) Model() string {
	return a.model
}

// EmbeddingModel returns the configured embedding model, or "" when disabled
func (a *LLMAdapter) EmbeddingModel() string {
	return a.embeddingModel
}

// Request is a single chat completion request
type Request struct {
	SystemPrompt string
	UserMessage  string
	Model        string // overrides the default model when set
	MaxTokens    int
	Temperature  float32
	JSONMode     bool
}

// Response represents the LLM's response
type Response struct {
	Content          string
	Model            string
	FinishReason     string
	PromptTokens     int
	CompletionTokens int
}

// Generate sends one chat completion request. Errors are *errors.ErrModelCall
// tagged with the failure kind so callers can decide whether to retry.
func (a *LLMAdapter) Generate(ctx context.Context, req Request) (*Response, error) {
	model := req.Model
	if model == "" {
		model = a.model
	}

	chatReq := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: req.SystemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: req.UserMessage,
			},
		},
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if req.JSONMode {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := a.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		kind := Classify(err)
		a.logger.Debug("LLM request failed",
			zap.String("model", model),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
		return nil, apperrors.NewModelCall(kind, "chat completion failed", err)
	}

	if len(resp.Choices) == 0 {
		return nil, apperrors.NewModelCall(apperrors.FailureMalformed, "no choices in LLM response", nil)
	}

	choice := resp.Choices[0]
	response := &Response{
		Content:          choice.Message.Content,
		Model:            resp.Model,
		FinishReason:     string(choice.FinishReason),
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}

	a.logger.Debug("LLM response generated",
		zap.String("model", model),
		zap.Int("prompt_tokens", response.PromptTokens),
		zap.Int("completion_tokens", response.CompletionTokens),
		zap.String("finish_reason", response.FinishReason),
	)

	return response, nil
}

// Embed returns the embedding vector for text.
func (a *LLMAdapter) Embed(ctx context.Context, text string) ([]float32, error) {
	if a.embeddingModel == "" {
		return nil, apperrors.NewModelCall(apperrors.FailureDisabled, "embeddings disabled", apperrors.ErrEmbeddingsDisabled)
	}

	resp, err := a.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(a.embeddingModel),
	})
	if err != nil {
		return nil, apperrors.NewModelCall(Classify(err), "embedding request failed", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, apperrors.NewModelCall(apperrors.FailureMalformed, "empty embedding response", nil)
	}
	return resp.Data[0].Embedding, nil
}

// Classify maps a transport or API error onto a failure kind.
func Classify(err error) apperrors.FailureKind {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) {
		return apperrors.FailureCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.FailureTimeout
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return classifyStatus(reqErr.HTTPStatusCode)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return apperrors.FailureTimeout
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return apperrors.FailureTransient
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return apperrors.FailureTransient
	}

	return apperrors.FailurePermanent
}

func classifyStatus(code int) apperrors.FailureKind {
	switch {
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return apperrors.FailureTimeout
	case code == http.StatusTooManyRequests || code >= 500:
		return apperrors.FailureTransient
	case code == 0:
		// Non-JSON error bodies from proxies surface without a status
		return apperrors.FailureTransient
	default:
		return apperrors.FailurePermanent
	}
}

// String describes the adapter for logs
func (a *LLMAdapter) String() string {
	return fmt.Sprintf("LLMAdapter(model=%s, embeddings=%q)", a.model, a.embeddingModel)
}
