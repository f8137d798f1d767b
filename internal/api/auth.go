package api

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// tokenSubject is the subject claim minted for operator-key logins.
const tokenSubject = "operator"

type loginRequest struct {
	OperatorKey string `json:"operator_key"`
}

type loginResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

// handleLogin exchanges the shared operator key for a short-lived JWT.
//
// POST /api/v1/auth/login
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	if s.secCfg.OperatorKey == "" {
		writeUnauthorized(w, "login disabled: no operator key configured")
		return
	}
	if subtle.ConstantTimeCompare([]byte(req.OperatorKey), []byte(s.secCfg.OperatorKey)) != 1 {
		s.logger.Warn("failed login attempt", "remote", r.RemoteAddr)
		writeUnauthorized(w, "invalid operator key")
		return
	}

	expiresAt := time.Now().Add(time.Duration(s.secCfg.JWT.AccessTokenTTL) * time.Minute)
	token, err := s.mintToken(expiresAt)
	if err != nil {
		s.logger.Error("minting token failed", "error", err)
		writeInternalError(w, "could not issue token")
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Token:     token,
		ExpiresAt: expiresAt.UTC().Format(time.RFC3339),
	})
}

// mintToken signs an HS256 access token expiring at the given time.
func (s *Server) mintToken(expiresAt time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   tokenSubject,
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ID:        uuid.NewString(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.secCfg.JWT.Secret))
}

// validateToken parses and verifies an access token, returning its subject.
func (s *Server) validateToken(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.secCfg.JWT.Secret), nil
	})
	if err != nil {
		return "", fmt.Errorf("parsing token: %w", err)
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("invalid token claims")
	}
	return claims.Subject, nil
}
