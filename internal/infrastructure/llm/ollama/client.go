package ollama

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/video-evaluator/internal/infrastructure/resilience"
)

const (
	operationChat = resilience.OperationOllamaChat
	operationTags = resilience.OperationOllamaTags
)

// Client talks to the Ollama HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL string, timeout time.Duration, executor *resilience.Executor) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	if executor == nil {
		executor = resilience.NewExecutor(resilience.DefaultConfig())
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		executor:   executor,
	}
}

type chatMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type chatResponse struct {
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	PromptEvalCount int `json:"prompt_eval_count"`
	EvalCount       int `json:"eval_count"`
}

type chatResult struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// chat sends one user message, optionally with base64 images, and waits for the full reply.
func (c *Client) chat(ctx context.Context, model, prompt string, images []string) (chatResult, error) {
	req := chatRequest{
		Model:    model,
		Messages: []chatMessage{{Role: "user", Content: prompt, Images: images}},
		Stream:   false,
	}

	var resp chatResponse
	err := c.executor.Execute(ctx, operationChat, func(callCtx context.Context) error {
		return wrapTemporaryIfNeeded("chat", c.postJSON(callCtx, "/api/chat", req, &resp, "chat"))
	}, classifyOllamaError)
	if err != nil {
		return chatResult{}, err
	}
	return chatResult{
		Text:         strings.TrimSpace(resp.Message.Content),
		InputTokens:  resp.PromptEvalCount,
		OutputTokens: resp.EvalCount,
	}, nil
}

// ListModels returns the names of locally pulled models.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	var resp struct {
		Models []struct {
			Name  string `json:"name"`
			Model string `json:"model"`
		} `json:"models"`
	}
	err := c.executor.Execute(ctx, operationTags, func(callCtx context.Context) error {
		return wrapTemporaryIfNeeded("tags", c.getJSON(callCtx, "/api/tags", &resp, "tags"))
	}, classifyOllamaError)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(resp.Models))
	for _, m := range resp.Models {
		name := m.Name
		if name == "" {
			name = m.Model
		}
		out = append(out, name)
	}
	return out, nil
}
