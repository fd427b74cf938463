package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/ashureev/carenav/internal/identity"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// ChatRequest is the body of POST /api/chat and of inbound socket frames.
type ChatRequest struct {
	Message string `json:"message"`
}

type socketError struct {
	Error string `json:"error"`
}

func rateKey(r *http.Request) string {
	if id := identity.ClientIDFromContext(r.Context()); id != "" {
		return id
	}
	return identity.IPFromRequest(r)
}

// HandleChat handles POST /api/chat.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	if !h.limiter.Allow(rateKey(r)) {
		Error(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		Error(w, http.StatusBadRequest, "message is required")
		return
	}

	key := identity.ChatKey(r.Context())
	h.logger.Info("Chat request",
		"chat_key", key,
		"request_id", chiMiddleware.GetReqID(r.Context()),
		"message_length", len(req.Message),
	)

	reply := h.router.Handle(r.Context(), h.sessions.Get(key), req.Message)
	JSON(w, http.StatusOK, reply)
}

// HandleChatSocket handles GET /ws/chat. Each inbound {message} frame gets
// exactly one reply frame, in order.
func (h *Handler) HandleChatSocket(w http.ResponseWriter, r *http.Request) {
	key := identity.ChatKey(r.Context())
	limitKey := rateKey(r)

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: originPatterns(h.origins),
	})
	if err != nil {
		h.logger.Warn("Failed to accept chat socket", "error", err, "chat_key", key)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "chat ended"); closeErr != nil {
			h.logger.Debug("Failed to close chat socket", "error", closeErr, "chat_key", key)
		}
	}()
	ws.SetReadLimit(maxRequestBodySize)

	h.sockets.Register(key, ws)
	defer h.sockets.Unregister(key, ws)

	h.serveSocket(r.Context(), ws, key, limitKey)
}

func (h *Handler) serveSocket(ctx context.Context, ws *websocket.Conn, key, limitKey string) {
	for {
		var req ChatRequest
		if err := wsjson.Read(ctx, ws, &req); err != nil {
			if websocket.CloseStatus(err) != -1 || errors.Is(err, context.Canceled) {
				h.logger.Debug("Chat socket closed", "chat_key", key)
			} else {
				h.logger.Warn("Chat socket read error", "error", err, "chat_key", key)
			}
			return
		}

		var out any
		switch {
		case !h.limiter.Allow(limitKey):
			out = socketError{Error: "rate limit exceeded"}
		case strings.TrimSpace(req.Message) == "":
			out = socketError{Error: "message is required"}
		default:
			out = h.router.Handle(ctx, h.sessions.Get(key), req.Message)
		}

		if err := wsjson.Write(ctx, ws, out); err != nil {
			h.logger.Debug("Chat socket write error", "error", err, "chat_key", key)
			return
		}
	}
}

// originPatterns turns configured CORS origins into websocket host patterns.
func originPatterns(origins []string) []string {
	var out []string
	for _, o := range origins {
		if o == "*" {
			return []string{"*"}
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			out = append(out, u.Host)
		}
	}
	return out
}
