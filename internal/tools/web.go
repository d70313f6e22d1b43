package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/osamaelmahalawi/zeph/pkg/models"
)

// WebScrapeExecutor fetches a URL and returns its body as text,
// stripped of markup and capped in size. Only the structured call path
// exists; there is no fenced tag for scraping.
type WebScrapeExecutor struct {
	client  *http.Client
	maxBody int64
}

var tagRe = regexp.MustCompile(`<[^>]*>`)

// NewWebScrapeExecutor creates the executor with the given fetch
// timeout and body cap.
func NewWebScrapeExecutor(timeout time.Duration, maxBody int64) *WebScrapeExecutor {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	if maxBody <= 0 {
		maxBody = 256 * 1024
	}
	return &WebScrapeExecutor{
		client:  &http.Client{Timeout: timeout},
		maxBody: maxBody,
	}
}

func (e *WebScrapeExecutor) ToolDefinitions() []models.ToolDef {
	return []models.ToolDef{{
		ID:          ToolWebScrape,
		Description: "Fetch a web page and return its text content.",
		Params: []models.ToolParam{
			{Name: "url", Type: "string", Required: true},
		},
	}}
}

func (e *WebScrapeExecutor) Execute(context.Context, string) (*ToolOutput, error) {
	return nil, nil
}

func (e *WebScrapeExecutor) ExecuteConfirmed(context.Context, string) (*ToolOutput, error) {
	return nil, nil
}

func (e *WebScrapeExecutor) ExecuteToolCall(ctx context.Context, call *models.ToolCall) (*ToolOutput, error) {
	if call.ToolID != ToolWebScrape {
		return nil, nil
	}
	url := call.StringParam("url")
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return nil, &ToolError{Kind: ErrKindExecutionFailed, Command: ToolWebScrape,
			Err: fmt.Errorf("invalid url %q", url)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &ToolError{Kind: ErrKindExecutionFailed, Command: ToolWebScrape, Err: err}
	}
	req.Header.Set("User-Agent", "zeph/1.0")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, &ToolError{Kind: ErrKindExecutionFailed, Command: ToolWebScrape, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, e.maxBody))
	if err != nil {
		return nil, &ToolError{Kind: ErrKindExecutionFailed, Command: ToolWebScrape, Err: err}
	}

	text := tagRe.ReplaceAllString(string(body), " ")
	text = strings.Join(strings.Fields(text), " ")

	return &ToolOutput{
		ToolName:       ToolWebScrape,
		Summary:        fmt.Sprintf("HTTP %d from %s\n\n%s", resp.StatusCode, url, text),
		BlocksExecuted: 1,
	}, nil
}
