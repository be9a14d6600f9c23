// internal/api/auth/actor.go
package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/fawad-mazhar/jobcards/internal/config"
	"github.com/fawad-mazhar/jobcards/internal/models"
)

type contextKey struct{}

// Resolver maps bearer tokens to configured workshop actors
type Resolver struct {
	actors map[string]models.Actor
}

func NewResolver(actors []config.ActorConfig) *Resolver {
	r := &Resolver{actors: make(map[string]models.Actor, len(actors))}
	for _, a := range actors {
		r.actors[a.Token] = models.Actor{ID: a.ID, Role: a.Role}
	}
	return r
}

// Resolve returns the actor owning token
func (r *Resolver) Resolve(token string) (models.Actor, bool) {
	actor, ok := r.actors[token]
	return actor, ok
}

// Middleware rejects requests without a known bearer token and stores the actor in the request context.
// Role headers sent by clients are ignored; the role always comes from configuration.
func (r *Resolver) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		token := ExtractToken(req)
		if token == "" {
			unauthorized(w, "missing bearer token")
			return
		}
		actor, ok := r.Resolve(token)
		if !ok {
			unauthorized(w, "unknown token")
			return
		}
		next.ServeHTTP(w, req.WithContext(WithActor(req.Context(), actor)))
	})
}

// ExtractToken reads the token from an "Authorization: Bearer <token>" header
func ExtractToken(req *http.Request) string {
	header := req.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func WithActor(ctx context.Context, actor models.Actor) context.Context {
	return context.WithValue(ctx, contextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (models.Actor, bool) {
	actor, ok := ctx.Value(contextKey{}).(models.Actor)
	return actor, ok
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
