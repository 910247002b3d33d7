package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"courtbook/internal/config"
	"courtbook/internal/domain"
	"courtbook/internal/models"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

// Claims is the token payload issued by the identity provider.
type Claims struct {
	UserID int64  `json:"userId"`
	Role   string `json:"role"`
	Email  string `json:"email,omitempty"`
	Name   string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

type identityKey struct{}

func withIdentity(ctx context.Context, id models.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the authenticated caller set by HTTPAuth.
func IdentityFromContext(ctx context.Context) (models.Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(models.Identity)
	return id, ok
}

var errMissingToken = errors.New("missing bearer token")

// HTTPAuth verifies HS256 bearer tokens, records the caller in the user
// directory and applies the per-identity rate limit.
type HTTPAuth struct {
	secret  []byte
	issuer  string
	users   Users
	limiter *rateLimiter
	logger  *zerolog.Logger
}

func NewHTTPAuth(cfg config.APIConfig, users Users, logger *zerolog.Logger) *HTTPAuth {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &HTTPAuth{
		secret:  []byte(cfg.Auth.JWTSecret),
		issuer:  strings.TrimSpace(cfg.Auth.JWTIssuer),
		users:   users,
		limiter: newRateLimiter(cfg.RateLimit),
		logger:  logger,
	}
}

func (a *HTTPAuth) Wrap(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, err := a.parse(r.Header.Get("Authorization"))
		if err != nil {
			a.logger.Debug().Err(err).Str("path", r.URL.Path).Msg("rejected token")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		identity := models.Identity{
			UserID: claims.UserID,
			Role:   claims.Role,
			Email:  claims.Email,
			Name:   claims.Name,
		}

		if !a.limiter.allow("user:" + strconv.FormatInt(identity.UserID, 10)) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		if a.users != nil {
			if err := a.users.Touch(r.Context(), identity); err != nil {
				if domain.KindOf(err) != "" {
					writeDomainError(w, err)
					return
				}
				// Directory write failures do not block the request.
				a.logger.Warn().Err(err).Int64("user_id", identity.UserID).Msg("touch user failed")
			}
		}

		next(w, r.WithContext(withIdentity(r.Context(), identity)))
	}
}

func (a *HTTPAuth) parse(header string) (*Claims, error) {
	raw, ok := strings.CutPrefix(strings.TrimSpace(header), "Bearer ")
	raw = strings.TrimSpace(raw)
	if !ok || raw == "" {
		return nil, errMissingToken
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.UserID <= 0 {
		return nil, fmt.Errorf("token has no user id")
	}
	return claims, nil
}

// SignToken issues a token with the given identity. Used by tooling and tests.
func SignToken(secret, issuer string, id models.Identity) (string, error) {
	claims := Claims{
		UserID: id.UserID,
		Role:   id.Role,
		Email:  id.Email,
		Name:   id.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:  issuer,
			Subject: strconv.FormatInt(id.UserID, 10),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
