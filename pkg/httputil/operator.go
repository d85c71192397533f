package httputil

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/medflow/medication-ledger/pkg/actor"
	"github.com/medflow/medication-ledger/pkg/errors"
	"github.com/medflow/medication-ledger/pkg/logger"
)

// OperatorClaims are the access-token claims the ledger reads.
type OperatorClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

// Operator resolves the acting staff member for every request and stores it
// both as user context and as an actor.Actor.
//
// With a secret configured, a bearer token is required and validated (HS256).
// Without one, the service sits behind the gateway and trusts X-User-ID /
// X-User-Email. Requests with neither carry no actor.
func Operator(secret string, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/health" {
				next.ServeHTTP(w, r)
				return
			}

			var op *actor.Actor
			if secret != "" {
				claims, err := parseBearer(r.Header.Get("Authorization"), secret)
				if err != nil {
					log.Debug().Err(err).Msg("operator token rejected")
					Error(w, err)
					return
				}
				op = &actor.Actor{
					ID:       claims.Subject,
					Email:    claims.Email,
					Name:     claims.Name,
					RoleName: claims.Role,
				}
			} else if id := r.Header.Get("X-User-ID"); id != "" {
				op = &actor.Actor{
					ID:       id,
					Email:    r.Header.Get("X-User-Email"),
					RoleName: r.Header.Get("X-User-Role"),
				}
			}

			ctx := r.Context()
			if op != nil {
				ctx = WithUserContext(ctx, op.ID, op.Email, op.RoleName)
				ctx = actor.WithActor(ctx, op)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func parseBearer(header, secret string) (*OperatorClaims, error) {
	if header == "" {
		return nil, errors.Unauthorized("missing authorization header")
	}
	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return nil, errors.Unauthorized("invalid authorization header format")
	}

	token, err := jwt.ParseWithClaims(parts[1], &OperatorClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, errors.TokenExpired()
		}
		return nil, errors.TokenInvalid()
	}

	claims, ok := token.Claims.(*OperatorClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, errors.TokenInvalid()
	}
	return claims, nil
}
