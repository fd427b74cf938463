// Package identity provides anonymous per-device identity primitives. There is
// no authentication: the cookie only keeps one device's chat sessions apart
// from another's.
package identity

import (
	"context"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	ClientCookieName      = "carenav_client"
	SessionHeaderName     = "X-Session-ID"
	DefaultSessionIDValue = "default"
	clientCookieMaxAge    = 30 * 24 * time.Hour
)

type contextKey int

const (
	clientIDKey contextKey = iota
	sessionIDKey
)

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

// ClientIDFromContext extracts the anonymous client ID from the request context.
func ClientIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(clientIDKey).(string); ok {
		return v
	}
	return ""
}

// SessionIDFromContext extracts the tab session ID from the request context.
func SessionIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(sessionIDKey).(string); ok {
		return v
	}
	return DefaultSessionIDValue
}

// ChatKey identifies one conversation: a client plus one of its tab sessions.
func ChatKey(ctx context.Context) string {
	return ClientIDFromContext(ctx) + "/" + SessionIDFromContext(ctx)
}

func isValidClientID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func sanitizeSessionID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" || !sessionIDPattern.MatchString(id) {
		return DefaultSessionIDValue
	}
	return id
}

func getOrCreateClientID(w http.ResponseWriter, r *http.Request, secure bool) string {
	id := ""
	if c, err := r.Cookie(ClientCookieName); err == nil && isValidClientID(c.Value) {
		id = c.Value
	} else {
		id = uuid.NewString()
	}

	http.SetCookie(w, &http.Cookie{
		Name:     ClientCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(clientCookieMaxAge.Seconds()),
		Expires:  time.Now().Add(clientCookieMaxAge),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   secure,
	})
	return id
}

func sessionIDFromRequest(r *http.Request) string {
	sid := r.Header.Get(SessionHeaderName)
	if sid == "" {
		sid = r.URL.Query().Get("session_id")
	}
	return sanitizeSessionID(sid)
}

// Middleware injects the anonymous client ID and per-request session ID.
func Middleware(secureCookies bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientID := getOrCreateClientID(w, r, secureCookies)
			ctx := context.WithValue(r.Context(), clientIDKey, clientID)
			ctx = context.WithValue(ctx, sessionIDKey, sessionIDFromRequest(r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IPFromRequest returns a normalized remote IP.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
