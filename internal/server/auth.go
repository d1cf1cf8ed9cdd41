package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/golang-jwt/jwt/v5"

	"workhub/internal/repo"
)

// AuthConfig controls how callers are identified. Issuer and Audience are
// checked only when set.
type AuthConfig struct {
	JWTSecret              string
	Issuer                 string
	Audience               string
	AllowLegacyActorHeader bool
	Logger                 *slog.Logger
}

const (
	sourceJWT    = "jwt"
	sourceAPIKey = "api_key"
	sourceLegacy = "legacy_header"
)

// Principal is the authenticated caller. Source is jwt, api_key or legacy_header.
type Principal struct {
	ActorID string
	Source  string
}

type principalKey struct{}

func withPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func principalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

func actorIDFromContext(ctx context.Context) (string, huma.StatusError) {
	if p, ok := principalFromContext(ctx); ok && p.ActorID != "" {
		return p.ActorID, nil
	}
	return "", errUnauthenticated()
}

func errUnauthenticated() huma.StatusError {
	return newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
}

func errBadCredentials() huma.StatusError {
	return newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil)
}

type authenticator struct {
	cfg    AuthConfig
	repo   repo.Repo
	parser *jwt.Parser
	logger *slog.Logger
}

func newAuthenticator(cfg AuthConfig, r repo.Repo) *authenticator {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &authenticator{cfg: cfg, repo: r, parser: jwt.NewParser(opts...), logger: logger}
}

func (a *authenticator) fromBearer(authz string) (Principal, error) {
	token, ok := bearerToken(authz)
	if !ok {
		return Principal{}, errors.New("malformed authorization header")
	}
	if strings.TrimSpace(a.cfg.JWTSecret) == "" {
		return Principal{}, errors.New("jwt secret not configured")
	}
	claims := &jwt.RegisteredClaims{}
	parsed, err := a.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return []byte(a.cfg.JWTSecret), nil
	})
	if err != nil {
		return Principal{}, err
	}
	if !parsed.Valid {
		return Principal{}, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return Principal{}, errors.New("subject claim required")
	}
	return Principal{ActorID: claims.Subject, Source: sourceJWT}, nil
}

func (a *authenticator) fromAPIKey(ctx context.Context, raw string) (Principal, error) {
	key, err := a.repo.GetAPIKeyByHash(ctx, repo.HashAPIKey(raw))
	if err != nil {
		return Principal{}, err
	}
	if key.ActorID == "" {
		return Principal{}, errors.New("api key missing actor")
	}
	if err := a.repo.TouchAPIKey(ctx, key.ID, time.Now()); err != nil {
		a.logger.Warn("record api key use", "key_id", key.ID, "err", err)
	}
	return Principal{ActorID: key.ActorID, Source: sourceAPIKey}, nil
}

// identify picks the first credential present: bearer token, then API key,
// then the legacy actor header when allowed.
func (a *authenticator) identify(req *http.Request) (Principal, huma.StatusError) {
	if authz := strings.TrimSpace(req.Header.Get("Authorization")); authz != "" {
		p, err := a.fromBearer(authz)
		if err != nil {
			a.logger.Debug("bearer token rejected", "path", req.URL.Path, "err", err)
			return Principal{}, errBadCredentials()
		}
		return p, nil
	}
	if key := strings.TrimSpace(req.Header.Get("X-Api-Key")); key != "" {
		p, err := a.fromAPIKey(req.Context(), key)
		if err != nil {
			a.logger.Debug("api key rejected", "path", req.URL.Path, "prefix", repo.KeyPrefix(key), "err", err)
			return Principal{}, errBadCredentials()
		}
		return p, nil
	}
	if actor := strings.TrimSpace(req.Header.Get("X-Actor-Id")); actor != "" && a.cfg.AllowLegacyActorHeader {
		a.logger.Warn("legacy X-Actor-Id header accepted without credentials", "actor_id", actor)
		return Principal{ActorID: actor, Source: sourceLegacy}, nil
	}
	return Principal{}, errUnauthenticated()
}

func bearerToken(authz string) (string, bool) {
	parts := strings.Fields(authz)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

func newAuthMiddleware(basePath string, cfg AuthConfig, r repo.Repo) func(http.Handler) http.Handler {
	auth := newAuthenticator(cfg, r)
	public := map[string]bool{
		path.Join(basePath, "health"):       true,
		path.Join(basePath, "openapi.json"): true,
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if !strings.HasPrefix(req.URL.Path, basePath) || public[req.URL.Path] || req.Method == http.MethodOptions {
				next.ServeHTTP(w, req)
				return
			}
			principal, err := auth.identify(req)
			if err != nil {
				respondStatusError(w, err)
				return
			}
			next.ServeHTTP(w, req.WithContext(withPrincipal(req.Context(), principal)))
		})
	}
}

func respondStatusError(w http.ResponseWriter, err huma.StatusError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.GetStatus())
	_ = json.NewEncoder(w).Encode(err)
}
