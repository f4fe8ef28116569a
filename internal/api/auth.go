package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/BTreeMap/HandCoach/internal/models"
	"github.com/golang-jwt/jwt/v5"
)

// TokenIssuer is the issuer stamped on operator tokens.
const TokenIssuer = "handcoach"

var errInvalidToken = errors.New("invalid token")

// AuthService signs and verifies HS256 operator tokens.
type AuthService struct{ hmac []byte }

func NewAuthService(secret string) *AuthService { return &AuthService{hmac: []byte(secret)} }

// IssueToken signs a token for subject valid for ttl.
func (a *AuthService) IssueToken(subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    TokenIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.hmac)
}

// Parse verifies tokenStr and returns its claims.
func (a *AuthService) Parse(tokenStr string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return a.hmac, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(TokenIssuer))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidToken, err)
	}
	if !token.Valid {
		return nil, errInvalidToken
	}
	return claims, nil
}

// JWTMiddleware rejects requests without a valid bearer token.
func JWTMiddleware(a *AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := r.Header.Get("Authorization")
			if !strings.HasPrefix(h, "Bearer ") {
				writeJSONResponse(w, http.StatusUnauthorized, models.Error("Missing bearer token"))
				return
			}
			if _, err := a.Parse(strings.TrimPrefix(h, "Bearer ")); err != nil {
				slog.Warn("API rejected bearer token", "path", r.URL.Path, "error", err)
				writeJSONResponse(w, http.StatusUnauthorized, models.Error("Invalid token"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
