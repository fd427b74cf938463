// Package api provides HTTP handlers for the retrieval gateway and the chat
// router.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ashureev/carenav/internal/chat"
	"github.com/ashureev/carenav/internal/gateway"
	"github.com/ashureev/carenav/internal/store"
	"github.com/go-chi/chi/v5"
)

const maxRequestBodySize = 16 << 10

// Handler provides common handler utilities.
type Handler struct {
	retriever gateway.Retriever
	repo      store.Repository
	router    *chat.Router
	sessions  *chat.Manager
	limiter   *RateLimiter
	sockets   *SocketRegistry
	origins   []string
	logger    *slog.Logger
}

// Deps are the collaborators of a Handler. Repo may be nil when the process
// runs without an audit store.
type Deps struct {
	Retriever      gateway.Retriever
	Repo           store.Repository
	Router         *chat.Router
	Sessions       *chat.Manager
	Limiter        *RateLimiter
	AllowedOrigins []string
	Logger         *slog.Logger
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(d Deps) *Handler {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		retriever: d.Retriever,
		repo:      d.Repo,
		router:    d.Router,
		sessions:  d.Sessions,
		limiter:   d.Limiter,
		sockets:   NewSocketRegistry(),
		origins:   d.AllowedOrigins,
		logger:    logger,
	}
}

// RegisterRoutes mounts every endpoint on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.HandleHealth)
		r.Get("/search", h.HandleSearch)
		r.Get("/fetch", h.HandleFetch)
		r.Get("/stats", h.HandleStats)
		r.Post("/chat", h.HandleChat)
	})
	r.Get("/ws/chat", h.HandleChatSocket)
}

// Close disconnects live chat sockets.
func (h *Handler) Close() {
	h.sockets.CloseAll()
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// GatewayError writes a classified retrieval failure as
// {error, detail, message} with the status of its kind.
func GatewayError(w http.ResponseWriter, err error) {
	gerr := gateway.AsError(err)
	JSON(w, gerr.Kind.HTTPStatus(), gateway.ErrorResponse{
		Error:   string(gerr.Kind),
		Detail:  gerr.Detail,
		Message: gerr.Error(),
	})
}
