package tools

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

	"github.com/nidhogg/agentlab/internal/provider"
)

// TavilyClient calls the Tavily search API for web search and page
// extraction.
type TavilyClient struct {
	endpoint string
	apiKey   string
	client   *http.Client
	logger   *zap.Logger
}

// NewTavilyClient creates a Tavily client.
func NewTavilyClient(endpoint, apiKey string, logger *zap.Logger) *TavilyClient {
	if endpoint == "" {
		endpoint = "https://api.tavily.com"
	}
	return &TavilyClient{
		endpoint: strings.TrimSuffix(endpoint, "/"),
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 30 * time.Second},
		logger:   logger,
	}
}

type tavilySearchResult struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

type tavilySearchResponse struct {
	Answer  string               `json:"answer"`
	Results []tavilySearchResult `json:"results"`
}

// Search runs a web search and formats the hits for model consumption.
func (t *TavilyClient) Search(ctx context.Context, query string, maxResults int) (string, error) {
	if maxResults <= 0 {
		maxResults = 5
	}
	var resp tavilySearchResponse
	err := t.post(ctx, "/search", map[string]any{
		"query":          query,
		"max_results":    maxResults,
		"include_answer": true,
	}, &resp)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	if resp.Answer != "" {
		fmt.Fprintf(&sb, "Answer: %s\n\n", resp.Answer)
	}
	for i, r := range resp.Results {
		fmt.Fprintf(&sb, "%d. %s\n%s\n%s\n\n", i+1, r.Title, r.URL, r.Content)
	}
	if sb.Len() == 0 {
		return "No results found.", nil
	}
	return sb.String(), nil
}

type tavilyExtractResponse struct {
	Results []struct {
		URL        string `json:"url"`
		RawContent string `json:"raw_content"`
	} `json:"results"`
	FailedResults []struct {
		URL   string `json:"url"`
		Error string `json:"error"`
	} `json:"failed_results"`
}

// Extract fetches the readable content of a URL.
func (t *TavilyClient) Extract(ctx context.Context, url string) (string, error) {
	var resp tavilyExtractResponse
	if err := t.post(ctx, "/extract", map[string]any{"urls": []string{url}}, &resp); err != nil {
		return "", err
	}
	if len(resp.Results) == 0 {
		if len(resp.FailedResults) > 0 {
			return "", fmt.Errorf("extract %s: %s", url, resp.FailedResults[0].Error)
		}
		return "", fmt.Errorf("extract %s: empty response", url)
	}
	return resp.Results[0].RawContent, nil
}

func (t *TavilyClient) post(ctx context.Context, path string, payload map[string]any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.apiKey)

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("tavily request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("tavily returned status %d: %s", resp.StatusCode, string(respBody))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// WebSearchTool exposes Tavily search as a callable tool.
func WebSearchTool(client *TavilyClient) (provider.Tool, Handler) {
	def := provider.Tool{
		Type: "function",
		Function: provider.ToolFunction{
			Name:        "web_search_tool",
			Description: "Search the web and return the top results with titles, URLs and snippets.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": "The search query",
					},
				},
				"required": []string{"query"},
			},
		},
	}
	return def, func(ctx context.Context, args string) (string, error) {
		var params struct {
			Query string `json:"query"`
		}
		if err := json.Unmarshal([]byte(args), &params); err != nil {
			return "", fmt.Errorf("parse arguments: %w", err)
		}
		return client.Search(ctx, params.Query, 5)
	}
}

// CrawlTool exposes Tavily page extraction as a callable tool.
func CrawlTool(client *TavilyClient) (provider.Tool, Handler) {
	def := provider.Tool{
		Type: "function",
		Function: provider.ToolFunction{
			Name:        "crawl_tool",
			Description: "Fetch a URL and return its readable content as markdown.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"url": map[string]any{
						"type":        "string",
						"description": "The URL to crawl",
					},
				},
				"required": []string{"url"},
			},
		},
	}
	return def, func(ctx context.Context, args string) (string, error) {
		var params struct {
			URL string `json:"url"`
		}
		if err := json.Unmarshal([]byte(args), &params); err != nil {
			return "", fmt.Errorf("parse arguments: %w", err)
		}
		content, err := client.Extract(ctx, params.URL)
		if err != nil {
			return "", err
		}
		if len(content) > 20000 {
			content = content[:20000] + "\n[truncated]"
		}
		return content, nil
	}
}
