package ws

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("missing authentication token")
	ErrInvalidToken = errors.New("invalid authentication token")
	ErrExpiredToken = errors.New("token has expired")
)

// Authenticator extracts and validates a user identity from an inbound
// request. Both the REST surface and the websocket upgrade use it.
type Authenticator interface {
	Authenticate(r *http.Request) (userID string, err error)
}

// JWTAuth validates bearer tokens signed with a shared HMAC secret.
type JWTAuth struct {
	secretKey string
}

func NewJWTAuth(secretKey string) *JWTAuth {
	return &JWTAuth{secretKey: secretKey}
}

// Authenticate tries the Authorization header first, then the query
// parameter (browsers cannot set custom headers on a websocket upgrade).
func (a *JWTAuth) Authenticate(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" && strings.HasPrefix(authHeader, "Bearer ") {
		return a.validateToken(strings.TrimPrefix(authHeader, "Bearer "))
	}
	if token := r.URL.Query().Get("token"); token != "" {
		return a.validateToken(token)
	}
	return "", ErrMissingToken
}

// Claims carries the operator identity that a Session Bridge token grants
// access to, scoped to one run.
type Claims struct {
	UserID string `json:"user_id"`
	RunID  string `json:"run_id,omitempty"`
	jwt.RegisteredClaims
}

func (a *JWTAuth) validateToken(tokenString string) (string, error) {
	if tokenString == "" {
		return "", ErrInvalidToken
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(a.secretKey), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return "", ErrInvalidToken
	}

	userID := claims.UserID
	if userID == "" {
		userID = claims.Subject
	}
	if userID == "" {
		return "", ErrInvalidToken
	}
	return userID, nil
}

// GenerateToken issues a token for userID scoped to runID, used by the
// orchestrator when it hands a review link to an operator.
func (a *JWTAuth) GenerateToken(userID, runID string, expiresAt time.Time) (string, error) {
	claims := Claims{
		UserID: userID,
		RunID:  runID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(a.secretKey))
}
