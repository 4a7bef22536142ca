package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/dukerupert/larder/internal/auth"
	"github.com/dukerupert/larder/internal/store"
)

// SessionCookieName is the cookie carrying the session token.
const SessionCookieName = "larder_session"

// RequireAuth resolves the session cookie to a user and populates
// AuthContext. Requests without a live session get a JSON 401.
func RequireAuth(sessionStore *store.SessionStore, userStore *store.UserStore, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookieName)
			if err != nil || cookie.Value == "" {
				writeError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			sess, err := sessionStore.GetByToken(r.Context(), cookie.Value)
			if err != nil {
				logger.Error("session lookup failed", "error", err)
				writeError(w, http.StatusServiceUnavailable, "storage unavailable")
				return
			}
			if sess == nil {
				writeError(w, http.StatusUnauthorized, "session expired")
				return
			}

			user, err := userStore.GetByID(r.Context(), sess.UserID)
			if err != nil {
				logger.Error("user lookup failed", "user_id", sess.UserID, "error", err)
				writeError(w, http.StatusServiceUnavailable, "storage unavailable")
				return
			}
			if user == nil {
				writeError(w, http.StatusUnauthorized, "session expired")
				return
			}

			ac := auth.AuthContext{
				UserID:    user.ID,
				Username:  user.Username,
				SessionID: sess.ID,
			}

			ctx := auth.WithAuth(r.Context(), ac)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
