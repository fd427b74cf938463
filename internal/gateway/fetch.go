package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ashureev/carenav/internal/domain"
	"github.com/ashureev/carenav/internal/extract"
)

const (
	browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	browserAccept    = "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8"
	acceptLanguage   = "en-US,en;q=0.9"
	defaultReferer   = "https://www.google.com/"
)

// FetchRequest is one page fetch.
type FetchRequest struct {
	URL      string
	MaxChars int
}

// Fetch downloads an allow-listed HTML page and extracts its readable text.
// When the process-wide fetch ceiling is reached it fails at once with
// KindBusy.
func (s *Service) Fetch(ctx context.Context, req FetchRequest) (art *domain.ExtractedArticle, err error) {
	start := time.Now()
	host := ""
	defer func() { s.record(ctx, domain.RetrievalFetch, host, err, start) }()

	raw := strings.TrimSpace(req.URL)
	if raw == "" {
		return nil, &Error{Kind: KindInvalidRequest, Detail: "missing url"}
	}
	u, ok := s.allow.AllowsURL(raw)
	if u == nil || (u.Scheme == "" && u.Host == "") {
		return nil, &Error{Kind: KindInvalidRequest, Detail: "malformed url"}
	}
	host = u.Hostname()
	if !ok {
		return nil, &Error{Kind: KindDomainNotAllowed, Detail: host}
	}

	if !s.fetchSem.TryAcquire(1) {
		return nil, &Error{Kind: KindBusy, Detail: "fetch capacity reached"}
	}
	defer s.fetchSem.Release(1)

	fctx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	defer cancel()

	body, finalURL, err := s.download(fctx, u)
	if err != nil {
		return nil, err
	}

	res, err := extract.Extract(extract.StripNoise(body), finalURL, extract.Options{MaxChars: req.MaxChars})
	if err != nil {
		if errors.Is(err, extract.ErrInsufficientText) {
			return nil, &Error{Kind: KindExtractionFailed, Detail: "insufficient text", Err: err}
		}
		return nil, newError(KindExtractionFailed, err)
	}

	return &domain.ExtractedArticle{
		URL:       finalURL,
		Title:     res.Title,
		Text:      res.Text,
		CharCount: res.CharCount,
		Truncated: res.Truncated,
	}, nil
}

// download performs the GET with one origin-Referer retry on a WAF-style
// refusal and enforces the content-type and size gates.
func (s *Service) download(ctx context.Context, u *url.URL) (string, string, error) {
	resp, err := s.get(ctx, u, defaultReferer)
	if err != nil {
		return "", "", err
	}
	if blockedByWAF(resp.StatusCode) {
		drain(resp)
		s.logger.Debug("Upstream refused fetch, retrying with origin referer",
			"host", u.Hostname(),
			"status", resp.StatusCode,
		)
		resp, err = s.get(ctx, u, origin(u))
		if err != nil {
			return "", "", err
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		drain(resp)
		return "", "", classifyStatus(resp.StatusCode)
	}
	if err := checkContentType(resp.Header.Get("Content-Type"), resp.Request.URL); err != nil {
		return "", "", err
	}

	limit := s.cfg.MaxFetchBytes
	if resp.ContentLength > limit {
		return "", "", &Error{Kind: KindTooLarge, Detail: fmt.Sprintf("content-length %d exceeds %d", resp.ContentLength, limit)}
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return "", "", transportError(err)
	}
	if int64(len(data)) > limit {
		return "", "", &Error{Kind: KindTooLarge, Detail: fmt.Sprintf("body exceeds %d bytes", limit)}
	}
	return string(data), resp.Request.URL.String(), nil
}

func (s *Service) get(ctx context.Context, u *url.URL, referer string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &Error{Kind: KindInvalidRequest, Detail: "malformed url", Err: err}
	}
	req.Header.Set("User-Agent", browserUserAgent)
	req.Header.Set("Accept", browserAccept)
	req.Header.Set("Accept-Language", acceptLanguage)
	req.Header.Set("Referer", referer)

	resp, err := s.fetchClient.Do(req)
	if err != nil {
		return nil, transportError(err)
	}
	return resp, nil
}

func checkContentType(header string, final *url.URL) error {
	mediaType, _, err := mime.ParseMediaType(header)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(header))
	}
	switch mediaType {
	case "text/html", "application/xhtml+xml":
		return nil
	case "application/pdf", "application/x-pdf":
		return &Error{Kind: KindUnsupportedContentType, Detail: DetailPDF}
	}
	if mediaType == "application/octet-stream" && strings.HasSuffix(strings.ToLower(final.Path), ".pdf") {
		return &Error{Kind: KindUnsupportedContentType, Detail: DetailPDF}
	}
	if mediaType == "" {
		mediaType = "unknown"
	}
	return &Error{Kind: KindUnsupportedContentType, Detail: mediaType}
}

func blockedByWAF(status int) bool {
	return status == http.StatusForbidden ||
		status == http.StatusNotAcceptable ||
		status == http.StatusUnavailableForLegalReasons
}

func origin(u *url.URL) string {
	return u.Scheme + "://" + u.Host + "/"
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
