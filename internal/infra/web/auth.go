package web

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// WorkerClaims identifies an authenticated worker-trigger caller.
type WorkerClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// AuthManager validates worker-trigger credentials. The trigger accepts
// either the shared secret or a signed caller token, so both cron-style
// invokers and authenticated schedulers can drive the queue.
type AuthManager struct {
	workerSecret string
	hmacSecret   []byte
}

func NewAuthManager(workerSecret, jwtSecret string) *AuthManager {
	return &AuthManager{workerSecret: workerSecret, hmacSecret: []byte(jwtSecret)}
}

// MintWorkerToken signs a short-lived token for an authenticated caller.
// Used by deploy tooling and tests.
func (a *AuthManager) MintWorkerToken(subject string, ttl time.Duration) (string, error) {
	if len(a.hmacSecret) == 0 {
		return "", fmt.Errorf("jwt secret is not configured")
	}
	now := time.Now()
	claims := WorkerClaims{
		Role: "worker",
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Subject:   subject,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.hmacSecret)
}

// Authorize checks a bearer credential against both accepted forms.
func (a *AuthManager) Authorize(r *http.Request) bool {
	header := r.Header.Get("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return false
	}
	credential := parts[1]

	if a.workerSecret != "" && credential == a.workerSecret {
		return true
	}
	return a.verifyToken(credential)
}

func (a *AuthManager) verifyToken(tokenStr string) bool {
	if len(a.hmacSecret) == 0 {
		return false
	}
	var claims WorkerClaims
	token, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.hmacSecret, nil
	})
	if err != nil || !token.Valid {
		return false
	}
	return claims.Role == "worker"
}
