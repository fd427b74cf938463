// Package gateway is the trust boundary for web retrieval. It performs
// allow-listed web search and fetches pages for extraction, and nothing it
// returns ever points outside the configured allow-list.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/ashureev/carenav/internal/domain"
)

const (
	// DefaultMaxFetchBytes is the response size cap when none is configured.
	DefaultMaxFetchBytes = 2 << 20
	// DefaultMaxConcurrentFetches is the process-wide fetch ceiling.
	DefaultMaxConcurrentFetches = 2
	// DefaultTimeout bounds each search or fetch.
	DefaultTimeout = 12 * time.Second
	// DefaultSearchEndpoint is the Bing v7 web search endpoint.
	DefaultSearchEndpoint = "https://api.bing.microsoft.com/v7.0/search"

	maxRedirects = 5
)

// Retriever is what the conversation layer needs from the gateway. Both the
// in-process Service and the HTTP Client implement it.
type Retriever interface {
	Search(ctx context.Context, req SearchRequest) (*SearchResponse, error)
	Fetch(ctx context.Context, req FetchRequest) (*domain.ExtractedArticle, error)
}

// Recorder receives one audit event per search or fetch.
type Recorder interface {
	RecordRetrieval(ctx context.Context, ev domain.RetrievalEvent) error
}

// Ensure implementations satisfy Retriever.
var (
	_ Retriever = (*Service)(nil)
	_ Retriever = (*Client)(nil)
)

// Config configures a Service.
type Config struct {
	AllowedDomains       []string
	MaxFetchBytes        int64
	MaxConcurrentFetches int64
	SearchEndpoint       string
	SearchAPIKey         string
	// SearchQPS paces upstream search calls. Zero or less disables pacing.
	SearchQPS     float64
	FetchTimeout  time.Duration
	SearchTimeout time.Duration
	// Transport overrides the outbound transport, mainly for tests.
	Transport http.RoundTripper
}

// Service performs search and fetch against the public web.
type Service struct {
	cfg           Config
	allow         *AllowList
	fetchSem      *semaphore.Weighted
	searchLimiter *rate.Limiter
	fetchClient   *http.Client
	searchClient  *http.Client
	recorder      Recorder
	logger        *slog.Logger
}

// New creates a Service. recorder may be nil.
func New(cfg Config, recorder Recorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxFetchBytes <= 0 {
		cfg.MaxFetchBytes = DefaultMaxFetchBytes
	}
	if cfg.MaxConcurrentFetches <= 0 {
		cfg.MaxConcurrentFetches = DefaultMaxConcurrentFetches
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultTimeout
	}
	if cfg.SearchTimeout <= 0 {
		cfg.SearchTimeout = DefaultTimeout
	}
	if cfg.SearchEndpoint == "" {
		cfg.SearchEndpoint = DefaultSearchEndpoint
	}

	limit, burst := rate.Inf, 1
	if cfg.SearchQPS > 0 {
		limit, burst = rate.Limit(cfg.SearchQPS), max(1, int(cfg.SearchQPS))
	}

	transport := cfg.Transport
	if transport == nil {
		transport = &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          20,
			IdleConnTimeout:       30 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 10 * time.Second,
		}
	}

	s := &Service{
		cfg:           cfg,
		allow:         NewAllowList(cfg.AllowedDomains),
		fetchSem:      semaphore.NewWeighted(cfg.MaxConcurrentFetches),
		searchLimiter: rate.NewLimiter(limit, burst),
		searchClient:  &http.Client{Transport: transport},
		recorder:      recorder,
		logger:        logger,
	}
	s.fetchClient = &http.Client{
		Transport:     transport,
		CheckRedirect: s.checkRedirect,
	}
	return s
}

// AllowList returns the configured trust boundary.
func (s *Service) AllowList() *AllowList { return s.allow }

// checkRedirect keeps every hop inside the allow-list.
func (s *Service) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return &Error{Kind: KindUpstreamError, Detail: "too many redirects"}
	}
	if !s.allow.AllowsHost(req.URL.Hostname()) {
		return &Error{Kind: KindDomainNotAllowed, Detail: "redirect to " + req.URL.Hostname()}
	}
	return nil
}

func (s *Service) record(ctx context.Context, kind domain.RetrievalKind, host string, err error, start time.Time) {
	outcome := domain.OutcomeOK
	if err != nil {
		outcome = string(KindOf(err))
	}
	s.logger.Info("Retrieval finished",
		"kind", kind,
		"host", host,
		"outcome", outcome,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	if s.recorder == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	ev := domain.RetrievalEvent{
		ID:         uuid.NewString(),
		Kind:       kind,
		Host:       host,
		Outcome:    outcome,
		DurationMS: time.Since(start).Milliseconds(),
		CreatedAt:  time.Now().UTC(),
	}
	if rerr := s.recorder.RecordRetrieval(ctx, ev); rerr != nil {
		s.logger.Warn("Failed to record retrieval", "kind", kind, "error", rerr)
	}
}

// transportError classifies a failed round trip.
func transportError(err error) *Error {
	var gerr *Error
	if errors.As(err, &gerr) {
		return gerr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindServiceUnavailableUpstream, Detail: "timeout", Err: err}
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return &Error{Kind: KindServiceUnavailableUpstream, Detail: "timeout", Err: err}
	}
	return newError(KindUpstreamError, err)
}
