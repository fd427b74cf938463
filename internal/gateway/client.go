package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ashureev/carenav/internal/domain"
)

// FetchMeta is the size information of a fetched article on the wire.
type FetchMeta struct {
	CharCount int  `json:"charCount"`
	Truncated bool `json:"truncated"`
}

// FetchResponse is the wire shape of a successful fetch.
type FetchResponse struct {
	URL   string    `json:"url,omitempty"`
	Title string    `json:"title"`
	Text  string    `json:"text"`
	Meta  FetchMeta `json:"meta"`
}

// ErrorResponse is the wire shape of a gateway failure.
type ErrorResponse struct {
	Error   string `json:"error"`
	Detail  string `json:"detail,omitempty"`
	Message string `json:"message,omitempty"`
}

// Client is a Retriever backed by a remote gateway's HTTP surface.
type Client struct {
	base string
	http *http.Client
}

// NewClient creates a client for the gateway at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout + 3*time.Second
	}
	return &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: timeout},
	}
}

// Search calls GET /api/search.
func (c *Client) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	params := url.Values{}
	params.Set("q", req.Query)
	if req.Count > 0 {
		params.Set("count", strconv.Itoa(req.Count))
	}
	if req.Offset > 0 {
		params.Set("offset", strconv.Itoa(req.Offset))
	}
	if req.Freshness != "" {
		params.Set("freshness", req.Freshness)
	}
	if req.Market != "" {
		params.Set("mkt", req.Market)
	}

	var out SearchResponse
	if err := c.get(ctx, "/api/search?"+params.Encode(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Fetch calls GET /api/fetch.
func (c *Client) Fetch(ctx context.Context, req FetchRequest) (*domain.ExtractedArticle, error) {
	params := url.Values{}
	params.Set("url", req.URL)
	if req.MaxChars > 0 {
		params.Set("maxChars", strconv.Itoa(req.MaxChars))
	}

	var out FetchResponse
	if err := c.get(ctx, "/api/fetch?"+params.Encode(), &out); err != nil {
		return nil, err
	}
	articleURL := out.URL
	if articleURL == "" {
		articleURL = req.URL
	}
	return &domain.ExtractedArticle{
		URL:       articleURL,
		Title:     out.Title,
		Text:      out.Text,
		CharCount: out.Meta.CharCount,
		Truncated: out.Meta.Truncated,
	}, nil
}

func (c *Client) get(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return &Error{Kind: KindMisconfigured, Detail: "gateway url", Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return transportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return transportError(err)
	}
	if resp.StatusCode != http.StatusOK {
		return decodeError(resp.StatusCode, body)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return newError(KindUpstreamError, fmt.Errorf("decode gateway response: %w", err))
	}
	return nil
}

// decodeError rebuilds a classified error from a gateway error body.
func decodeError(status int, body []byte) error {
	var er ErrorResponse
	if err := json.Unmarshal(body, &er); err != nil || er.Error == "" {
		gerr := classifyStatus(status)
		gerr.Err = fmt.Errorf("gateway HTTP %d", status)
		return gerr
	}
	return &Error{Kind: Kind(er.Error), Detail: er.Detail, Status: status}
}
