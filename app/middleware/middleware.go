package appMiddleware

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const SessionKeyCtx contextKey = "sessionKey"

// SessionHeader carries the conversation key when the body does not.
const SessionHeader = "X-Session-Key"

const maxSessionKeyLen = 128

// SessionKey copies a well-formed X-Session-Key header into the request context.
func SessionKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimSpace(r.Header.Get(SessionHeader))
		if key == "" {
			next.ServeHTTP(w, r)
			return
		}
		if len(key) > maxSessionKeyLen || strings.ContainsAny(key, " \t\r\n") {
			http.Error(w, "Invalid "+SessionHeader+" header", http.StatusBadRequest)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), SessionKeyCtx, key)))
	})
}

func GetSessionKeyFromContext(ctx context.Context) (string, bool) {
	key, ok := ctx.Value(SessionKeyCtx).(string)
	return key, ok
}
