package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// AnthropicClient implements ChatModel for the Claude messages API.
type AnthropicClient struct {
	config Config
	client *http.Client
	logger *zap.Logger
}

// NewAnthropicClient creates a new Anthropic client.
func NewAnthropicClient(cfg Config, logger *zap.Logger) *AnthropicClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://api.anthropic.com/v1"
	}
	return &AnthropicClient{
		config: cfg,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Chat sends a non-streaming chat request to Claude. Structured output is
// emulated with a forced tool call whose input schema is the response format;
// the tool input comes back as the response content.
func (c *AnthropicClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	ar := c.convertRequest(req)

	body, err := json.Marshal(ar)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.config.Endpoint+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.config.APIKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, string(respBody))
	}

	var claudeResp anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&claudeResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return c.convertResponse(req, &claudeResp), nil
}

// Anthropic-specific request/response types
type anthropicRequest struct {
	Model      string          `json:"model"`
	Messages   []anthropicMsg  `json:"messages"`
	System     string          `json:"system,omitempty"`
	MaxTokens  int             `json:"max_tokens"`
	Tools      []anthropicTool `json:"tools,omitempty"`
	ToolChoice map[string]any  `json:"tool_choice,omitempty"`
}

type anthropicMsg struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type anthropicTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema"`
}

type anthropicResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Content []struct {
		Type  string          `json:"type"`
		Text  string          `json:"text"`
		ID    string          `json:"id"`
		Name  string          `json:"name"`
		Input json.RawMessage `json:"input"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (c *AnthropicClient) convertRequest(req *ChatRequest) *anthropicRequest {
	ar := &anthropicRequest{
		Model:     req.Model,
		MaxTokens: req.MaxTokens,
	}
	if ar.MaxTokens == 0 {
		ar.MaxTokens = 4096
	}
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			ar.System = m.Content
		case RoleTool:
			ar.Messages = append(ar.Messages, anthropicMsg{
				Role: "user",
				Content: []map[string]any{{
					"type":        "tool_result",
					"tool_use_id": m.ToolCallID,
					"content":     m.Content,
				}},
			})
		default:
			role := m.Role
			if role == RoleHuman {
				role = "user"
			}
			ar.Messages = append(ar.Messages, anthropicMsg{
				Role:    role,
				Content: convertAnthropicContent(m),
			})
		}
	}
	for _, t := range req.Tools {
		ar.Tools = append(ar.Tools, anthropicTool{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			InputSchema: t.Function.Parameters,
		})
	}
	if req.ResponseFormat != nil {
		ar.Tools = append(ar.Tools, anthropicTool{
			Name:        req.ResponseFormat.Name,
			Description: "Record the structured response.",
			InputSchema: req.ResponseFormat.Schema,
		})
		ar.ToolChoice = map[string]any{"type": "tool", "name": req.ResponseFormat.Name}
	}
	return ar
}

func convertAnthropicContent(m Message) any {
	if len(m.Parts) == 0 {
		return m.Content
	}
	parts := make([]map[string]any, 0, len(m.Parts))
	for _, p := range m.Parts {
		switch p.Type {
		case "image_url":
			// Claude takes inline base64 sources; split a data URL back into
			// media type and payload.
			mediaType, data := splitDataURL(p.ImageURL)
			parts = append(parts, map[string]any{
				"type": "image",
				"source": map[string]any{
					"type":       "base64",
					"media_type": mediaType,
					"data":       data,
				},
			})
		default:
			parts = append(parts, map[string]any{"type": "text", "text": p.Text})
		}
	}
	return parts
}

func splitDataURL(url string) (mediaType, data string) {
	rest, ok := strings.CutPrefix(url, "data:")
	if !ok {
		return "application/octet-stream", url
	}
	mediaType, data, ok = strings.Cut(rest, ";base64,")
	if !ok {
		return "application/octet-stream", rest
	}
	return mediaType, data
}

func (c *AnthropicClient) convertResponse(req *ChatRequest, resp *anthropicResponse) *ChatResponse {
	out := &ChatResponse{
		ID:           resp.ID,
		Model:        resp.Model,
		FinishReason: resp.StopReason,
		Usage: Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
	}
	for _, blk := range resp.Content {
		switch blk.Type {
		case "text":
			out.Content += blk.Text
		case "tool_use":
			if req.ResponseFormat != nil && blk.Name == req.ResponseFormat.Name {
				out.Content = string(blk.Input)
				continue
			}
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				ID:   blk.ID,
				Type: "function",
				Function: ToolCallFunction{
					Name:      blk.Name,
					Arguments: string(blk.Input),
				},
			})
		}
	}
	if len(out.ToolCalls) > 0 && resp.StopReason == "tool_use" {
		out.FinishReason = "tool_calls"
	}
	return out
}
