package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/ashureev/carenav/internal/domain"
	"github.com/ashureev/carenav/internal/gateway"
)

const (
	statsWindow     = 24 * time.Hour
	statsRecentHost = 10
)

// HandleHealth handles GET /api/health.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			h.logger.Warn("Health check: store unreachable", "error", err)
			JSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "time": time.Now().UTC()})
			return
		}
	}
	JSON(w, http.StatusOK, map[string]any{"ok": true, "time": time.Now().UTC()})
}

// HandleSearch handles GET /api/search.
func (h *Handler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := gateway.SearchRequest{
		Query:     q.Get("q"),
		Count:     atoiOrZero(q.Get("count")),
		Offset:    atoiOrZero(q.Get("offset")),
		Freshness: q.Get("freshness"),
		Market:    q.Get("mkt"),
	}

	resp, err := h.retriever.Search(r.Context(), req)
	if err != nil {
		GatewayError(w, err)
		return
	}
	if resp.Items == nil {
		resp.Items = []domain.SearchCandidate{}
	}
	JSON(w, http.StatusOK, resp)
}

// HandleFetch handles GET /api/fetch.
func (h *Handler) HandleFetch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	art, err := h.retriever.Fetch(r.Context(), gateway.FetchRequest{
		URL:      q.Get("url"),
		MaxChars: atoiOrZero(q.Get("maxChars")),
	})
	if err != nil {
		GatewayError(w, err)
		return
	}
	JSON(w, http.StatusOK, gateway.FetchResponse{
		URL:   art.URL,
		Title: art.Title,
		Text:  art.Text,
		Meta:  gateway.FetchMeta{CharCount: art.CharCount, Truncated: art.Truncated},
	})
}

// HandleStats handles GET /api/stats: retrieval outcomes over the last day.
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		Error(w, http.StatusServiceUnavailable, "audit store disabled")
		return
	}
	since := time.Now().Add(-statsWindow)
	counts, err := h.repo.OutcomeCounts(r.Context(), since)
	if err != nil {
		h.logger.Error("Failed to load outcome counts", "error", err)
		Error(w, http.StatusInternalServerError, "failed to load stats")
		return
	}
	hosts, err := h.repo.RecentHosts(r.Context(), statsRecentHost)
	if err != nil {
		h.logger.Error("Failed to load recent hosts", "error", err)
		Error(w, http.StatusInternalServerError, "failed to load stats")
		return
	}
	if counts == nil {
		counts = []domain.OutcomeCount{}
	}
	if hosts == nil {
		hosts = []string{}
	}

	resp := map[string]any{
		"since":       since.UTC(),
		"outcomes":    counts,
		"recentHosts": hosts,
	}
	if h.sessions != nil {
		resp["liveSessions"] = h.sessions.Len()
	}
	JSON(w, http.StatusOK, resp)
}

func atoiOrZero(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
