package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/martinemde/chatagent/agentloop"
)

const (
	serpAPITimeout    = 10 * time.Second
	duckDuckGoTimeout = 15 * time.Second
	maxSearchResults  = 10
)

var (
	ddgTitleRegex      = regexp.MustCompile(`(?s)<a[^>]+class="result__a"[^>]+href="([^"]+)"[^>]*>(.+?)</a>`)
	ddgSnippetRegex    = regexp.MustCompile(`(?s)<a[^>]+class="result__snippet"[^>]*>(.+?)</a>`)
	ddgTagRegex        = regexp.MustCompile(`<[^>]*>`)
	ddgWhitespaceRegex = regexp.MustCompile(`\s+`)
)

// SearchResult is one hit returned by a search backend.
type SearchResult struct {
	Title   string
	Link    string
	Snippet string
}

func registerWebSearch(reg *agentloop.ToolRegistry, d Deps) {
	reg.Register(agentloop.RegisteredTool{
		Definition: agentloop.ToolDefinition{
			Name:        "web_search",
			Description: "Search the web for current information, news, facts, or any online content. Returns top search results with titles, snippets, and links.",
			Parameters: objectSchema(map[string]interface{}{
				"query":       stringProp("The search query to look up on the web"),
				"num_results": intProp("Number of search results to return (default: 5, max: 10)", 5),
			}, "query"),
		},
		Executor: func(ctx context.Context, arguments json.RawMessage) (string, error) {
			args, err := agentloop.ParseToolArguments(arguments)
			if err != nil {
				return "", err
			}
			query, err := requiredString(args, "query")
			if err != nil {
				return "", err
			}
			num := intArg(args, "num_results", 5, 1, maxSearchResults)
			if d.SerpAPIKey == "" {
				return searchDuckDuckGo(ctx, d, query, num), nil
			}
			return searchSerpAPI(ctx, d, query, num), nil
		},
	})
}

func searchSerpAPI(ctx context.Context, d Deps, query string, num int) string {
	ctx, cancel := context.WithTimeout(ctx, serpAPITimeout)
	defer cancel()

	params := url.Values{}
	params.Set("q", query)
	params.Set("api_key", d.SerpAPIKey)
	params.Set("engine", "google")
	params.Set("num", strconv.Itoa(num))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.SerpAPIURL+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Sprintf("Error performing search: %v", err)
	}

	resp, err := d.HTTPClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return "Search request timed out. Please try again."
		}
		return fmt.Sprintf("Error performing search: %v", redactKey(err, d.SerpAPIKey))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 5<<20))
	if err != nil {
		if isTimeout(err) {
			return "Search request timed out. Please try again."
		}
		return fmt.Sprintf("Error performing search: %v", err)
	}

	var data struct {
		Error          string `json:"error"`
		OrganicResults []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
		} `json:"organic_results"`
	}
	if err := json.Unmarshal(body, &data); err != nil {
		if resp.StatusCode != http.StatusOK {
			return fmt.Sprintf("Error performing search: HTTP %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
		}
		return fmt.Sprintf("Error performing search: invalid response: %v", err)
	}
	if data.Error != "" {
		return fmt.Sprintf("Search error: %s", data.Error)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Sprintf("Error performing search: HTTP %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	results := make([]SearchResult, 0, len(data.OrganicResults))
	for _, r := range data.OrganicResults {
		title := r.Title
		if title == "" {
			title = "No title"
		}
		snippet := r.Snippet
		if snippet == "" {
			snippet = "No description"
		}
		results = append(results, SearchResult{Title: title, Link: r.Link, Snippet: snippet})
	}
	return formatSearchResults(query, results, num)
}

func searchDuckDuckGo(ctx context.Context, d Deps, query string, num int) string {
	ctx, cancel := context.WithTimeout(ctx, duckDuckGoTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.DuckDuckGoURL+"?q="+url.QueryEscape(query), nil)
	if err != nil {
		return fmt.Sprintf("Error performing search: %v", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := d.HTTPClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return "Search request timed out. Please try again."
		}
		return fmt.Sprintf("Error performing search: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Sprintf("Error performing search: HTTP %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 5<<20))
	if err != nil {
		if isTimeout(err) {
			return "Search request timed out. Please try again."
		}
		return fmt.Sprintf("Error performing search: %v", err)
	}
	return formatSearchResults(query, parseDuckDuckGoHTML(string(body)), num)
}

// parseDuckDuckGoHTML extracts results from the DuckDuckGo HTML endpoint.
func parseDuckDuckGoHTML(page string) []SearchResult {
	titles := ddgTitleRegex.FindAllStringSubmatch(page, 30)
	snippets := ddgSnippetRegex.FindAllStringSubmatch(page, 30)

	var results []SearchResult
	for i, match := range titles {
		link := duckDuckGoTarget(strings.ReplaceAll(match[1], "&amp;", "&"))
		title := cleanHTML(match[2])
		if link == "" || title == "" {
			continue
		}
		snippet := "No description"
		if i < len(snippets) {
			if s := cleanHTML(snippets[i][1]); s != "" {
				snippet = s
			}
		}
		results = append(results, SearchResult{Title: title, Link: link, Snippet: snippet})
	}
	return results
}

// duckDuckGoTarget unwraps DuckDuckGo's //duckduckgo.com/l/?uddg= redirect.
func duckDuckGoTarget(raw string) string {
	if strings.Contains(raw, "uddg=") {
		if strings.HasPrefix(raw, "//") {
			raw = "https:" + raw
		}
		parsed, err := url.Parse(raw)
		if err != nil {
			return ""
		}
		if target := parsed.Query().Get("uddg"); target != "" {
			return target
		}
	}
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw
	}
	return ""
}

func cleanHTML(s string) string {
	s = ddgTagRegex.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	s = ddgWhitespaceRegex.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

func formatSearchResults(query string, results []SearchResult, num int) string {
	if len(results) == 0 {
		return fmt.Sprintf("No results found for query: %s", query)
	}
	if len(results) > num {
		results = results[:num]
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Search results for '%s':\n\n", query)
	for i, r := range results {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, r.Title)
		fmt.Fprintf(&sb, "   %s\n", r.Snippet)
		fmt.Fprintf(&sb, "   🔗 %s\n\n", r.Link)
	}
	return strings.TrimSpace(sb.String())
}

// redactKey keeps the API key out of transport errors, which embed the URL.
func redactKey(err error, key string) error {
	if key == "" {
		return err
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return errors.New(strings.ReplaceAll(err.Error(), url.QueryEscape(key), "REDACTED"))
	}
	return err
}
