// Package auth resolves the HTTP caller to an actor id.
//
// The middleware never rejects a request. Callers without usable credentials
// continue as anonymous and the domain operation decides whether that is
// allowed, answering with an authentication-required error when it is not.
package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/artfolio/artfolio-sync/internal/components/identity"
	"github.com/artfolio/artfolio-sync/internal/platform/appctx"
	"github.com/artfolio/artfolio-sync/internal/platform/logutil"
)

// DevActorHeader names the trusted actor header accepted in dev mode.
const DevActorHeader = "X-Actor-ID"

// ActorConfig configures the actor middleware.
type ActorConfig struct {
	// Tokens verifies bearer tokens. Nil disables bearer authentication.
	Tokens *identity.TokenAuth

	// DevHeader trusts DevActorHeader when no bearer token is present.
	DevHeader bool

	// Log is the base logger for authentication warnings.
	Log *slog.Logger
}

// NewActorMiddleware returns a middleware that places the caller's actor id
// on the request context with identity.WithActor and adds actor_id to the
// request logger.
func NewActorMiddleware(cfg ActorConfig) func(http.Handler) http.Handler {
	cfg.Log = logutil.NoopIfNil(cfg.Log)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actorID := resolve(r, cfg)
			if actorID == "" {
				next.ServeHTTP(w, r)
				return
			}

			ctx := identity.WithActor(r.Context(), actorID)
			ctx = appctx.WithLogger(ctx, appctx.GetLogger(ctx, cfg.Log).With("actor_id", actorID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func resolve(r *http.Request, cfg ActorConfig) string {
	if token := bearerToken(r); token != "" {
		if cfg.Tokens == nil {
			return ""
		}
		actorID, err := cfg.Tokens.Authenticate(token)
		if err != nil {
			appctx.GetLogger(r.Context(), cfg.Log).Debug("bearer token rejected, continuing as anonymous")
			return ""
		}
		return actorID
	}
	if cfg.DevHeader {
		return strings.TrimSpace(r.Header.Get(DevActorHeader))
	}
	return ""
}

// bearerToken extracts the token of an "Authorization: Bearer" header.
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) < 7 || !strings.EqualFold(h[:7], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}
