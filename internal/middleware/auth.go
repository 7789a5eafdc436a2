package middleware

import (
	"context"
	"net/http"

	"github.com/viollenaki/nurtilek/internal/auth"
	"github.com/viollenaki/nurtilek/internal/session"
)

type contextKey string

const (
	UserIDKey   contextKey = "user_id"
	NicknameKey contextKey = "nickname"
	TokenKey    contextKey = "session_token"
)

// SessionCookie is the name of the cookie carrying the signed session token.
const SessionCookie = "session"

// Auth resolves the session cookie to a logged-in user and rejects the request
// with a 401 envelope otherwise. The session token is also kept in the context
// so handlers like logout can address their own session.
func Auth(sessions *session.Manager, signer *auth.Signer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookie)
			if err != nil {
				unauthorized(w)
				return
			}

			token, err := signer.Verify(cookie.Value)
			if err != nil {
				unauthorized(w)
				return
			}

			info, ok := sessions.Lookup(token)
			if !ok || info.UserID == 0 {
				unauthorized(w)
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, info.UserID)
			ctx = context.WithValue(ctx, NicknameKey, info.Nickname)
			ctx = context.WithValue(ctx, TokenKey, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"success":false,"message":"not authenticated"}`))
}

// UserID extracts the authenticated user from the request context.
func UserID(r *http.Request) int {
	id, _ := r.Context().Value(UserIDKey).(int)
	return id
}

func Nickname(r *http.Request) string {
	nickname, _ := r.Context().Value(NicknameKey).(string)
	return nickname
}

func Token(r *http.Request) string {
	token, _ := r.Context().Value(TokenKey).(string)
	return token
}
