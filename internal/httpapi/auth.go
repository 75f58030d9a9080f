package httpapi

import (
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/meridianpay/gatewaycore/internal/auth"
	"github.com/meridianpay/gatewaycore/internal/services/ratelimit"
	"go.uber.org/zap"
)

// AuthMiddleware authenticates inbound requests by JWT bearer token or
// API key/secret pair. JWT takes precedence, then X-API-Key/X-API-Secret.
type AuthMiddleware struct {
	jwt       *auth.JWTManager
	apiKeys   *auth.APIKeyGenerator
	limiter   *ratelimit.Limiter
	burst     int
	perHour   int
	logger    *zap.Logger
}

// NewAuthMiddleware constructs an AuthMiddleware. jwt may be nil to disable
// JWT authentication (e.g. when no signing key is configured).
func NewAuthMiddleware(jwtManager *auth.JWTManager, apiKeys *auth.APIKeyGenerator, limiter *ratelimit.Limiter, perHour, burst int, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{jwt: jwtManager, apiKeys: apiKeys, limiter: limiter, perHour: perHour, burst: burst, logger: logger}
}

// Wrap requires either a valid bearer JWT or API key/secret pair before
// calling next, then applies the distributed rate limiter keyed to the
// authenticated principal.
func (m *AuthMiddleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var info *auth.AuthInfo
		var err error

		if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
			info, err = m.authenticateJWT(strings.TrimPrefix(authHeader, "Bearer "))
		} else if apiKey := r.Header.Get("X-API-Key"); apiKey != "" {
			info, err = m.authenticateAPIKey(apiKey, r.Header.Get("X-API-Secret"))
		} else {
			err = errMissingCredentials
		}

		if err != nil {
			writeJSON(w, m.logger, http.StatusUnauthorized, errorBody{Error: err.Error(), Code: "UNAUTHENTICATED"})
			return
		}

		info.ClientIP = clientIP(r)
		ctx := auth.WithAuth(r.Context(), info)

		if m.limiter != nil {
			result := m.limiter.IsAllowed(ctx, ratelimit.PrefixAPI, info.AccountID, m.perHour, m.burst)
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
			if !result.Allowed {
				writeJSON(w, m.logger, http.StatusTooManyRequests, errorBody{Error: "rate limit exceeded", Code: "RATE_LIMITED", Retryable: true})
				return
			}
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

var errMissingCredentials = errUnauthorized("missing authentication credentials")

type errUnauthorized string

func (e errUnauthorized) Error() string { return string(e) }

func (m *AuthMiddleware) authenticateJWT(token string) (*auth.AuthInfo, error) {
	if m.jwt == nil {
		return nil, errUnauthorized("JWT authentication is not configured")
	}
	claims, err := m.jwt.ValidateToken(token)
	if err != nil {
		return nil, errUnauthorized("invalid token: " + err.Error())
	}
	return &auth.AuthInfo{
		Type:        auth.AuthTypeJWT,
		AccountID:   claims.AccountID,
		ServiceID:   claims.ServiceID,
		TokenJTI:    claims.ID,
		Scopes:      claims.Scopes,
		Environment: claims.Environment,
	}, nil
}

func (m *AuthMiddleware) authenticateAPIKey(apiKey, apiSecret string) (*auth.AuthInfo, error) {
	if m.apiKeys == nil || apiSecret == "" {
		return nil, errUnauthorized("missing API credentials")
	}
	principal, err := m.apiKeys.ValidateCredentials(apiKey, apiSecret)
	if err != nil {
		return nil, errUnauthorized("invalid API credentials")
	}
	return &auth.AuthInfo{
		Type:        auth.AuthTypeAPIKey,
		AccountID:   principal.AccountID,
		AccountCode: principal.AccountCode,
		Environment: principal.Environment,
	}, nil
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if parts := strings.Split(xff, ","); len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
