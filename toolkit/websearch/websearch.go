// Package websearch provides the search_web tool: current information lookup
// for health, fitness, nutrition, and medical questions.
package websearch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"

	"github.com/parley-ai/parley"
)

// FocusAreas are the supported result filters.
var FocusAreas = []string{"health", "fitness", "nutrition", "medical", "general"}

const defaultNumResults = 5

// Result is one search hit.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

// Searcher finds results for a query. Implementations wrap whatever search
// API the deployment has access to.
type Searcher interface {
	Search(ctx context.Context, query, focusArea string, limit int) ([]Result, error)
}

// SearcherFunc adapts a function to Searcher.
type SearcherFunc func(ctx context.Context, query, focusArea string, limit int) ([]Result, error)

func (f SearcherFunc) Search(ctx context.Context, query, focusArea string, limit int) ([]Result, error) {
	return f(ctx, query, focusArea, limit)
}

// Config assembles the tool.
type Config struct {
	Searcher Searcher
	// Client fetches result pages for content extraction. Nil disables
	// extraction and the tool returns snippets only.
	Client *http.Client
	// MaxPageBytes caps how much of a result page is read (default 512 KiB).
	MaxPageBytes int64
}

type searchOutput struct {
	Query   string       `json:"query"`
	Focus   string       `json:"focus_area"`
	Results []pageResult `json:"results"`
}

type pageResult struct {
	Result
	Content string `json:"content,omitempty"`
}

// New builds the search_web tool.
func New(cfg Config) (parley.Tool, error) {
	if cfg.Searcher == nil {
		return nil, fmt.Errorf("websearch: Searcher is required")
	}
	if cfg.MaxPageBytes <= 0 {
		cfg.MaxPageBytes = 512 << 10
	}

	schema := parley.Schema{
		"query": {
			Type:        parley.TypeString,
			Description: "Search query with relevant keywords",
			Required:    true,
		},
		"focus_area": {
			Type:        parley.TypeStringEnum,
			Description: "Focus area for more targeted results",
			Enum:        FocusAreas,
			Default:     "general",
		},
		"num_results": {
			Type:        parley.TypeInteger,
			Description: "Number of results to return",
			Default:     defaultNumResults,
		},
	}

	handler := func(ctx context.Context, args map[string]any) (any, error) {
		query := args["query"].(string)
		focus := args["focus_area"].(string)
		limit := args["num_results"].(int)
		if limit < 1 {
			return nil, &parley.ClientError{Reason: "num_results must be at least 1"}
		}

		results, err := cfg.Searcher.Search(ctx, query, focus, limit)
		if err != nil {
			return nil, fmt.Errorf("search %q: %w", query, err)
		}
		out := searchOutput{Query: query, Focus: focus, Results: make([]pageResult, 0, len(results))}
		for _, res := range results {
			pr := pageResult{Result: res}
			if cfg.Client != nil {
				if content, err := fetchAsMarkdown(ctx, cfg.Client, res.URL, cfg.MaxPageBytes); err == nil {
					pr.Content = content
				}
			}
			out.Results = append(out.Results, pr)
		}
		return out, nil
	}

	return parley.NewFuncTool(
		"search_web",
		"Search the internet for current information on health, fitness, nutrition, or medical topics",
		schema,
		handler,
		parley.WithTimeout(45*time.Second),
		parley.WithTags("network", "research"),
		parley.WithDescriber(describeSearch(schema)),
	)
}

// describeSearch renders the Started status line, e.g.
// "Searching the web for: HIIT recovery research".
func describeSearch(schema parley.Schema) func([]byte) string {
	return func(argsJSON []byte) string {
		args, err := schema.Validate(argsJSON)
		if err != nil {
			return "Searching the web"
		}
		return fmt.Sprintf("Searching the web for: %s", args["query"])
	}
}

// fetchAsMarkdown downloads a result page and converts it to markdown so the
// model gets readable content instead of raw HTML.
func fetchAsMarkdown(ctx context.Context, client *http.Client, url string, maxBytes int64) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes))
	if err != nil {
		return "", err
	}
	return htmltomarkdown.ConvertString(string(body))
}
