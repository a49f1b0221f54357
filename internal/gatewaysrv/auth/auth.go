// Package auth authenticates gateway callers. Production deployments use
// HS256 bearer tokens; single-user mode accepts identity headers for local
// development.
package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"

	"github.com/datagate-io/datagate/internal/common/apperrors"
	"github.com/datagate-io/datagate/internal/common/httpx"
	"github.com/datagate-io/datagate/internal/gatewaysrv/gwcommon"
	"github.com/datagate-io/datagate/internal/gatewaysrv/gwerrors"
)

const (
	agentHeader = "X-Datagate-Agent"
	roleHeader  = "X-Datagate-Role"

	defaultLocalAgent = "local-agent"
	defaultLocalRole  = "admin"
)

var (
	ErrInvalidToken  apperrors.Error = gwerrors.ErrValidation.New("invalid token").SetStatusCode(http.StatusUnauthorized)
	ErrMissingSecret apperrors.Error = gwerrors.ErrConfiguration.New("jwt signing secret not configured")
)

// Claims are the token claims datagate issues and accepts. The subject is
// the agent id.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// IssueToken signs a token for the given agent and role.
func IssueToken(secret []byte, agentID, role string, ttl time.Duration) (string, apperrors.Error) {
	if len(secret) == 0 {
		return "", ErrMissingSecret
	}
	now := time.Now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   agentID,
			Issuer:    "datagate",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", ErrInvalidToken.Err(err)
	}
	return signed, nil
}

// ParseToken validates a token and extracts the caller identity.
func ParseToken(secret []byte, tokenStr string) (gwcommon.Identity, apperrors.Error) {
	if len(secret) == 0 {
		return gwcommon.Identity{}, ErrMissingSecret
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken.Msg("unexpected signing method")
		}
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return gwcommon.Identity{}, ErrInvalidToken.Err(err)
	}
	if claims.Subject == "" {
		return gwcommon.Identity{}, ErrInvalidToken.Msg("token has no subject")
	}
	return gwcommon.Identity{AgentID: claims.Subject, Role: claims.Role}, nil
}

// Middleware authenticates every request and stores the identity in the
// request context. In single-user mode identity comes from headers with
// local defaults; otherwise a bearer token is required.
func Middleware(secret []byte, singleUser bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var id gwcommon.Identity

			if singleUser {
				id = gwcommon.Identity{
					AgentID: headerOrDefault(r, agentHeader, defaultLocalAgent),
					Role:    headerOrDefault(r, roleHeader, defaultLocalRole),
				}
			} else {
				tokenStr, ok := bearerToken(r)
				if !ok {
					httpx.ErrUnAuthorized("missing bearer token").Send(w)
					return
				}
				var err apperrors.Error
				id, err = ParseToken(secret, tokenStr)
				if err != nil {
					log.Ctx(r.Context()).Warn().Err(err).Msg("token rejected")
					httpx.ErrUnAuthorized().Send(w)
					return
				}
			}

			ctx := gwcommon.WithIdentity(r.Context(), id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireElevated gates admin routes on the configured elevated roles.
func RequireElevated(elevatedRoles []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := gwcommon.GetIdentity(r.Context())
			if !ok || !id.Elevated(elevatedRoles) {
				httpx.ErrUnAuthorized("elevated role required").Send(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return "", false
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

func headerOrDefault(r *http.Request, key, def string) string {
	if v := r.Header.Get(key); v != "" {
		return v
	}
	return def
}
