package auth

import (
	"context"
	"net/http"
	"strings"

	"qbank/internal/app/apiresp"
	"qbank/internal/app/observability"
)

const (
	sessionCookieName = "qbank_session"
	apiKeyHeader      = "X-API-Key"
)

type actorResolver interface {
	ResolveToken(ctx context.Context, raw string) (*Actor, error)
	AuthenticateAPIKey(ctx context.Context, raw string) (*Actor, error)
}

type Handler struct {
	svc actorResolver
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RequireAuth accepts an API key header, a bearer token or the session cookie,
// in that order.
func (h *Handler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var (
			actor *Actor
			err   error
		)
		if key := strings.TrimSpace(r.Header.Get(apiKeyHeader)); key != "" {
			actor, err = h.svc.AuthenticateAPIKey(r.Context(), key)
		} else {
			actor, err = h.svc.ResolveToken(r.Context(), readToken(r))
		}
		if err != nil || !actor.Authenticated() {
			apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
			return
		}
		observability.SetUserID(r.Context(), actor.UserID)
		next.ServeHTTP(w, r.WithContext(ContextWithActor(r.Context(), actor)))
	})
}

func (h *Handler) RequireSuperuser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := CurrentActor(r.Context())
		if !ok {
			apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
			return
		}
		if !actor.IsSuperuser {
			apiresp.WriteError(w, r, http.StatusForbidden, "forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	actor, ok := CurrentActor(r.Context())
	if !ok {
		apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, actor)
}

func readToken(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get("Authorization")); v != "" {
		if token, ok := strings.CutPrefix(v, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
		return ""
	}
	c, err := r.Cookie(sessionCookieName)
	if err != nil {
		return ""
	}
	return c.Value
}
