package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"grain-ledger/internal/core"
)

type actorKey struct{}

// actorFromContext returns the authenticated actor stored in ctx.
func actorFromContext(ctx context.Context) (core.Actor, bool) {
	v, ok := ctx.Value(actorKey{}).(core.Actor)
	return v, ok
}

// actorClaims is the JWT payload. The subject carries the actor ID.
type actorClaims struct {
	Name string `json:"name"`
	jwt.RegisteredClaims
}

// SignActorToken issues an HS256 token for actor, valid for ttl.
func SignActorToken(secret string, actor core.Actor, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &actorClaims{
		Name: actor.FullName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.Itoa(actor.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign actor token: %w", err)
	}
	return signed, nil
}

// parseActorToken validates raw and returns the actor it names.
func parseActorToken(secret, raw string) (core.Actor, error) {
	claims := &actorClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return core.Actor{}, err
	}
	if !token.Valid {
		return core.Actor{}, errors.New("token is not valid")
	}
	id, err := strconv.Atoi(claims.Subject)
	if err != nil || id <= 0 {
		return core.Actor{}, fmt.Errorf("invalid subject %q", claims.Subject)
	}
	if strings.TrimSpace(claims.Name) == "" {
		return core.Actor{}, errors.New("token carries no actor name")
	}
	return core.Actor{ID: id, FullName: claims.Name}, nil
}

// RequireActor is chi middleware that validates the bearer token (or the
// auth_token cookie) and injects the acting user into the request context.
// Returns 401 if the token is absent or invalid.
func (h *Handler) RequireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r)
		if raw == "" {
			writeError(w, r, "authentication required", "UNAUTHORIZED", http.StatusUnauthorized)
			return
		}
		actor, err := parseActorToken(h.jwtSecret, raw)
		if err != nil {
			writeError(w, r, "invalid or expired token", "UNAUTHORIZED", http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), actorKey{}, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		scheme, token, ok := strings.Cut(auth, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if cookie, err := r.Cookie("auth_token"); err == nil {
		return cookie.Value
	}
	return ""
}

// me handles GET /api/auth/me and returns the actor behind the token.
func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		writeError(w, r, "not authenticated", "UNAUTHORIZED", http.StatusUnauthorized)
		return
	}
	writeJSON(w, actor)
}
