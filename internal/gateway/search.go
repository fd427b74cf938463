package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/ashureev/carenav/internal/domain"
)

// MaxSearchCount is the upstream per-request result cap.
const MaxSearchCount = 10

// excludedFileTypes keeps document downloads out of search results.
var excludedFileTypes = []string{"pdf", "doc", "ppt", "docx", "pptx"}

var freshnessCodes = map[string]string{
	"day":   "Day",
	"week":  "Week",
	"month": "Month",
}

var tagRe = regexp.MustCompile(`<[^>]*>`)

// SearchRequest is one web search.
type SearchRequest struct {
	Query     string
	Count     int
	Offset    int
	Freshness string
	Market    string
}

// SearchResponse is the allow-listed result of a search.
type SearchResponse struct {
	Query                 string                   `json:"query"`
	Items                 []domain.SearchCandidate `json:"items"`
	TotalEstimatedMatches int64                    `json:"totalEstimatedMatches"`
}

type webSearchResponse struct {
	WebPages struct {
		TotalEstimatedMatches int64 `json:"totalEstimatedMatches"`
		Value                 []struct {
			Name    string `json:"name"`
			URL     string `json:"url"`
			Snippet string `json:"snippet"`
		} `json:"value"`
	} `json:"webPages"`
}

// BuildQuery scopes q to the allow-listed domains and excludes document
// file types.
func BuildQuery(q string, domains []string) string {
	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(q))
	if len(domains) > 0 {
		sb.WriteString(" (")
		for i, d := range domains {
			if i > 0 {
				sb.WriteString(" OR ")
			}
			sb.WriteString("site:")
			sb.WriteString(d)
		}
		sb.WriteString(")")
	}
	for _, ft := range excludedFileTypes {
		sb.WriteString(" -filetype:")
		sb.WriteString(ft)
	}
	return sb.String()
}

// Search queries the upstream web search API and returns only results on
// allow-listed hosts.
func (s *Service) Search(ctx context.Context, req SearchRequest) (resp *SearchResponse, err error) {
	start := time.Now()
	defer func() { s.record(ctx, domain.RetrievalSearch, endpointHost(s.cfg.SearchEndpoint), err, start) }()

	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, &Error{Kind: KindInvalidRequest, Detail: "missing query"}
	}
	if s.allow.Len() == 0 {
		return nil, &Error{Kind: KindNoAllowList, Detail: "no trusted domains configured"}
	}
	if s.cfg.SearchAPIKey == "" {
		return nil, &Error{Kind: KindMisconfigured, Detail: "search API key not set"}
	}
	if err := s.searchLimiter.Wait(ctx); err != nil {
		return nil, &Error{Kind: KindRateLimitedUpstream, Detail: "search pacing", Err: err}
	}

	count := req.Count
	if count <= 0 || count > MaxSearchCount {
		count = MaxSearchCount
	}
	params := url.Values{}
	params.Set("q", BuildQuery(query, s.allow.Domains()))
	params.Set("count", strconv.Itoa(count))
	params.Set("responseFilter", "Webpages")
	params.Set("textDecorations", "false")
	if req.Offset > 0 {
		params.Set("offset", strconv.Itoa(req.Offset))
	}
	if code, ok := freshnessCodes[strings.ToLower(req.Freshness)]; ok {
		params.Set("freshness", code)
	}
	if req.Market != "" {
		params.Set("mkt", req.Market)
	}

	sctx, cancel := context.WithTimeout(ctx, s.cfg.SearchTimeout)
	defer cancel()
	httpReq, err := http.NewRequestWithContext(sctx, http.MethodGet, s.cfg.SearchEndpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, &Error{Kind: KindMisconfigured, Detail: "search endpoint", Err: err}
	}
	httpReq.Header.Set("Ocp-Apim-Subscription-Key", s.cfg.SearchAPIKey)
	httpReq.Header.Set("Accept", "application/json")

	httpResp, err := s.searchClient.Do(httpReq)
	if err != nil {
		return nil, transportError(err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(httpResp.Body, 64<<10))
		if httpResp.StatusCode == http.StatusUnauthorized || httpResp.StatusCode == http.StatusForbidden {
			return nil, &Error{Kind: KindMisconfigured, Detail: "search credentials rejected", Status: httpResp.StatusCode}
		}
		return nil, classifyStatus(httpResp.StatusCode)
	}

	var raw webSearchResponse
	if err := json.NewDecoder(io.LimitReader(httpResp.Body, 4<<20)).Decode(&raw); err != nil {
		return nil, newError(KindUpstreamError, fmt.Errorf("decode search response: %w", err))
	}

	out := &SearchResponse{
		Query:                 query,
		Items:                 make([]domain.SearchCandidate, 0, len(raw.WebPages.Value)),
		TotalEstimatedMatches: raw.WebPages.TotalEstimatedMatches,
	}
	dropped := 0
	for _, v := range raw.WebPages.Value {
		u, ok := s.allow.AllowsURL(v.URL)
		if !ok || strings.HasSuffix(strings.ToLower(u.Path), ".pdf") {
			dropped++
			continue
		}
		out.Items = append(out.Items, domain.SearchCandidate{
			Title:   cleanText(v.Name),
			URL:     u.String(),
			Snippet: cleanText(v.Snippet),
		})
	}
	if dropped > 0 {
		s.logger.Info("Dropped search results outside allow-list", "dropped", dropped, "kept", len(out.Items))
	}
	return out, nil
}

// cleanText removes inline markup and entities from upstream titles and
// snippets.
func cleanText(s string) string {
	s = html.UnescapeString(tagRe.ReplaceAllString(s, ""))
	return strings.Join(strings.Fields(s), " ")
}

func endpointHost(endpoint string) string {
	if u, err := url.Parse(endpoint); err == nil {
		return u.Hostname()
	}
	return ""
}
