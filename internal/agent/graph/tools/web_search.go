package tools

import (
	"context"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"

	logx "github.com/apptflow-poc/server/pkg/logger"
)

// SearchProvider is the external search collaborator behind the web_search
// tool. Implementations decide how results are produced; the tool only
// shapes them for the model.
type SearchProvider interface {
	Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error)
}

type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

type WebSearchInput struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results,omitempty"`
}

type WebSearchOutput struct {
	Results []SearchResult `json:"results"`
	Total   int            `json:"total"`
	// Error carries a provider failure back to the model as tool output
	// instead of aborting the run.
	Error string `json:"error,omitempty"`
}

func createWebSearchTool(provider SearchProvider) tool.BaseTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name: ToolWebSearch,
			Desc: "Search the web for general information. Useful for questions about current events or anything outside the appointment book.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"query": {
					Type:     "string",
					Desc:     "Search query keywords.",
					Required: true,
				},
				"max_results": {
					Type: "number",
					Desc: "Maximum number of results to return (default: 5, max: 10)",
				},
			}),
		},
		func(ctx context.Context, in *WebSearchInput) (*WebSearchOutput, error) {
			query := strings.TrimSpace(in.Query)
			if query == "" {
				return &WebSearchOutput{Error: "query is required"}, nil
			}

			maxResults := in.MaxResults
			if maxResults <= 0 {
				maxResults = 5
			}
			if maxResults > 10 {
				maxResults = 10
			}

			results, err := provider.Search(ctx, query, maxResults)
			if err != nil {
				logx.Warn().Err(err).Str("query", query).Msg("web search provider failed")
				return &WebSearchOutput{Error: "search provider failed: " + err.Error()}, nil
			}

			return &WebSearchOutput{Results: results, Total: len(results)}, nil
		},
	)
}

// StaticSearchProvider answers from a canned result table. It stands in for
// a real search backend in this POC.
type StaticSearchProvider struct{}

func NewStaticSearchProvider() *StaticSearchProvider {
	return &StaticSearchProvider{}
}

func (p *StaticSearchProvider) Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error) {
	queryLower := strings.ToLower(query)

	var matched []SearchResult
	for _, r := range cannedResults {
		if strings.Contains(strings.ToLower(r.Title), queryLower) ||
			strings.Contains(strings.ToLower(r.Snippet), queryLower) {
			matched = append(matched, r)
		}
	}
	if len(matched) == 0 {
		// Generic fallback so the model always has something to ground on.
		matched = append(matched, SearchResult{
			Title:   "Search results for: " + query,
			URL:     "https://search.example.com/?q=" + strings.ReplaceAll(query, " ", "+"),
			Snippet: "No direct matches found. Try rephrasing the query.",
		})
	}
	if len(matched) > maxResults {
		matched = matched[:maxResults]
	}
	return matched, nil
}

var cannedResults = []SearchResult{
	{
		Title:   "How to prepare for a home cleaning service visit",
		URL:     "https://homecare.example.com/articles/cleaning-prep",
		Snippet: "Clear surfaces, secure pets, and note any areas needing special attention before your cleaning appointment.",
	},
	{
		Title:   "Common plumbing repair costs explained",
		URL:     "https://homecare.example.com/articles/plumbing-costs",
		Snippet: "Typical plumbing repairs range from minor fixture fixes to pipe replacements; most visits take under two hours.",
	},
	{
		Title:   "Cancellation and rescheduling policies for home services",
		URL:     "https://homecare.example.com/articles/cancellation-policy",
		Snippet: "Most providers allow free rescheduling up to 24 hours before the appointment window.",
	},
}

var _ SearchProvider = (*StaticSearchProvider)(nil)
