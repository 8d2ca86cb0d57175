package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/nidhogg/agentlab/internal/provider"
)

const (
	browserActionTimeout = 90 * time.Second
	maxPageText          = 20000
)

// Browser drives a Chrome instance over the DevTools protocol. With a CDP
// URL it attaches to a remote browser; without one it launches a local
// headless instance per session.
type Browser struct {
	cdpURL string
	logger *zap.Logger
}

// NewBrowser creates a Browser.
func NewBrowser(cdpURL string, logger *zap.Logger) *Browser {
	return &Browser{cdpURL: cdpURL, logger: logger}
}

// Session is one live browser tab. Sessions are not safe for concurrent use
// and must be closed by the caller.
type Session struct {
	ctx     context.Context
	cancels []context.CancelFunc
}

// NewSession opens a tab that stays alive across actions, so state like
// cookies and the current page carries from one action to the next.
func (b *Browser) NewSession(ctx context.Context) (*Session, error) {
	s := &Session{}
	if b.cdpURL != "" {
		allocCtx, cancel := chromedp.NewRemoteAllocator(ctx, b.cdpURL)
		s.cancels = append(s.cancels, cancel)
		ctx = allocCtx
	} else {
		allocCtx, cancel := chromedp.NewExecAllocator(ctx,
			append(chromedp.DefaultExecAllocatorOptions[:], chromedp.Headless)...)
		s.cancels = append(s.cancels, cancel)
		ctx = allocCtx
	}
	browserCtx, cancel := chromedp.NewContext(ctx)
	s.cancels = append(s.cancels, cancel)
	s.ctx = browserCtx

	if err := chromedp.Run(browserCtx); err != nil {
		s.Close()
		return nil, fmt.Errorf("start browser: %w", err)
	}
	return s, nil
}

// Close tears the tab down.
func (s *Session) Close() {
	for i := len(s.cancels) - 1; i >= 0; i-- {
		s.cancels[i]()
	}
}

func (s *Session) run(actions ...chromedp.Action) error {
	ctx, cancel := context.WithTimeout(s.ctx, browserActionTimeout)
	defer cancel()
	return chromedp.Run(ctx, actions...)
}

// page returns the current page title and visible text, truncated.
func (s *Session) page() (string, error) {
	var title, text string
	err := s.run(
		chromedp.WaitReady("body"),
		chromedp.Title(&title),
		chromedp.Text("body", &text, chromedp.NodeVisible),
	)
	if err != nil {
		return "", fmt.Errorf("read page: %w", err)
	}
	text = strings.TrimSpace(text)
	if len(text) > maxPageText {
		text = text[:maxPageText] + "\n[truncated]"
	}
	return fmt.Sprintf("Title: %s\n\n%s", title, text), nil
}

// Navigate opens a URL and returns the rendered page.
func (s *Session) Navigate(_ context.Context, url string) (string, error) {
	if err := s.run(chromedp.Navigate(url)); err != nil {
		return "", fmt.Errorf("navigate %s: %w", url, err)
	}
	return s.page()
}

// Click clicks the first visible element matching the CSS selector and
// returns the page after the click.
func (s *Session) Click(_ context.Context, selector string) (string, error) {
	if err := s.run(chromedp.Click(selector, chromedp.NodeVisible)); err != nil {
		return "", fmt.Errorf("click %s: %w", selector, err)
	}
	return s.page()
}

// Type sends text to the element matching the CSS selector, submits with
// Enter, and returns the resulting page.
func (s *Session) Type(_ context.Context, selector, text string) (string, error) {
	if err := s.run(chromedp.SendKeys(selector, text+"\n", chromedp.NodeVisible)); err != nil {
		return "", fmt.Errorf("type into %s: %w", selector, err)
	}
	return s.page()
}

// Visit opens a URL in a fresh session and returns the rendered page.
func (b *Browser) Visit(ctx context.Context, url string) (string, error) {
	session, err := b.NewSession(ctx)
	if err != nil {
		return "", err
	}
	defer session.Close()
	return session.Navigate(ctx, url)
}

// BrowserTool exposes single page visits through a live browser, for pages
// that a plain crawler cannot render.
func BrowserTool(b *Browser) (provider.Tool, Handler) {
	def := provider.Tool{
		Type: "function",
		Function: provider.ToolFunction{
			Name:        "open_url",
			Description: "Open a URL in a real browser and return the rendered page text. Use for pages that need JavaScript.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"url": map[string]any{
						"type":        "string",
						"description": "The URL to open",
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
		return b.Visit(ctx, params.URL)
	}
}
