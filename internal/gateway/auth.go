package gateway

import (
	"crypto/subtle"
	"net/http"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/soyeahso/jibby/internal/config"
)

// Auth modes.
const (
	AuthNone  = "none"
	AuthToken = "token"
	AuthJWT   = "jwt"
)

// AuthResult is the outcome of an authentication attempt.
type AuthResult struct {
	OK      bool   `json:"ok"`
	Method  string `json:"method,omitempty"` // "none" | "token" | "jwt"
	Subject string `json:"subject,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// ResolvedAuth holds the resolved auth configuration for the gateway.
type ResolvedAuth struct {
	Mode      string
	Token     string
	JWTSecret string
}

// ResolveAuth resolves credentials from config, falling back to
// JIBBY_GATEWAY_TOKEN and JIBBY_GATEWAY_JWT_SECRET.
func ResolveAuth(cfg config.GatewayAuth) ResolvedAuth {
	auth := ResolvedAuth{Mode: cfg.Mode, Token: cfg.Token, JWTSecret: cfg.JWTSecret}
	if auth.Token == "" {
		auth.Token = os.Getenv("JIBBY_GATEWAY_TOKEN")
	}
	if auth.JWTSecret == "" {
		auth.JWTSecret = os.Getenv("JIBBY_GATEWAY_JWT_SECRET")
	}
	if auth.Mode == "" {
		auth.Mode = AuthToken
	}
	return auth
}

// Authorize checks WebSocket connect credentials.
func Authorize(serverAuth ResolvedAuth, clientAuth *ConnectAuth) AuthResult {
	if serverAuth.Mode == AuthNone {
		return AuthResult{OK: true, Method: AuthNone}
	}
	if clientAuth == nil {
		return AuthResult{OK: false, Reason: "no credentials provided"}
	}
	return AuthorizeToken(serverAuth, clientAuth.Token)
}

// AuthorizeToken checks a bearer credential against the configured mode.
func AuthorizeToken(serverAuth ResolvedAuth, token string) AuthResult {
	switch serverAuth.Mode {
	case AuthNone:
		return AuthResult{OK: true, Method: AuthNone}

	case AuthToken:
		if serverAuth.Token == "" {
			return AuthResult{OK: false, Reason: "server token not configured"}
		}
		if token == "" {
			return AuthResult{OK: false, Reason: "token required"}
		}
		if !safeEqual(token, serverAuth.Token) {
			return AuthResult{OK: false, Reason: "token_mismatch"}
		}
		return AuthResult{OK: true, Method: AuthToken}

	case AuthJWT:
		if serverAuth.JWTSecret == "" {
			return AuthResult{OK: false, Reason: "server jwt secret not configured"}
		}
		if token == "" {
			return AuthResult{OK: false, Reason: "token required"}
		}
		sub, err := verifyJWT(serverAuth.JWTSecret, token)
		if err != nil {
			return AuthResult{OK: false, Reason: "invalid_token"}
		}
		return AuthResult{OK: true, Method: AuthJWT, Subject: sub}

	default:
		return AuthResult{OK: false, Reason: "unknown auth mode: " + serverAuth.Mode}
	}
}

// verifyJWT validates an HS256 token and returns its subject. Tokens must
// carry an expiry.
func verifyJWT(secret, token string) (string, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	claims := &jwt.RegisteredClaims{}
	if _, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}); err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// bearerToken extracts the token from an "Authorization: Bearer" header.
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// safeEqual performs a constant-time string comparison that does not leak
// the secret's length.
func safeEqual(a, b string) bool {
	lenMatch := subtle.ConstantTimeEq(int32(len(a)), int32(len(b)))
	cmp := subtle.ConstantTimeCompare([]byte(a), []byte(b))
	return subtle.ConstantTimeSelect(lenMatch, cmp, 0) == 1
}
