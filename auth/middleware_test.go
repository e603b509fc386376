// Package auth tests JWT middleware behavior against a mock JWKS.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	testProject = "northstar-test"
	testIssuer  = "https://securetoken.google.com/" + testProject
)

func newProtectedRouter(verifier *Verifier) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Middleware(verifier, MiddlewareConfig{}))
	router.GET("/protected", func(c *gin.Context) {
		claims, ok := ClaimsFromContext(c.Request.Context())
		if !ok || claims.Subject == "" {
			c.Status(http.StatusUnauthorized)
			return
		}
		c.String(http.StatusOK, claims.Subject)
	})
	return router
}

func serve(router *gin.Engine, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestMiddlewareMissingToken(t *testing.T) {
	t.Setenv("AUTH_DISABLED", "false")
	verifier, _ := newTestVerifier(t)

	resp := serve(newProtectedRouter(verifier), "")
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestMiddlewareMalformedHeader(t *testing.T) {
	t.Setenv("AUTH_DISABLED", "false")
	verifier, _ := newTestVerifier(t)

	resp := serve(newProtectedRouter(verifier), "Token abc")
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestMiddlewareInvalidToken(t *testing.T) {
	t.Setenv("AUTH_DISABLED", "false")
	verifier, _ := newTestVerifier(t)

	badKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to create key: %v", err)
	}
	tokenString := signToken(t, badKey, "test-key", tokenClaims(verifier.issuer, verifier.audience))

	resp := serve(newProtectedRouter(verifier), "Bearer "+tokenString)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestMiddlewareWrongAudience(t *testing.T) {
	t.Setenv("AUTH_DISABLED", "false")
	verifier, key := newTestVerifier(t)
	tokenString := signToken(t, key, "test-key", tokenClaims(verifier.issuer, "someone-else"))

	resp := serve(newProtectedRouter(verifier), "Bearer "+tokenString)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestMiddlewareExpiredToken(t *testing.T) {
	t.Setenv("AUTH_DISABLED", "false")
	verifier, key := newTestVerifier(t)
	claims := tokenClaims(verifier.issuer, verifier.audience)
	claims["exp"] = time.Now().Add(-time.Hour).Unix()
	tokenString := signToken(t, key, "test-key", claims)

	resp := serve(newProtectedRouter(verifier), "Bearer "+tokenString)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestMiddlewareValidToken(t *testing.T) {
	t.Setenv("AUTH_DISABLED", "false")
	verifier, key := newTestVerifier(t)
	tokenString := signToken(t, key, "test-key", tokenClaims(verifier.issuer, verifier.audience))

	resp := serve(newProtectedRouter(verifier), "Bearer "+tokenString)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if resp.Body.String() != "user-123" {
		t.Fatalf("expected subject user-123, got %q", resp.Body.String())
	}
}

func TestMiddlewareDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Middleware(nil, MiddlewareConfig{DisableAuth: true}))
	router.GET("/protected", func(c *gin.Context) {
		claims, _ := ClaimsFromContext(c.Request.Context())
		c.String(http.StatusOK, claims.Subject)
	})

	resp := serve(router, "")
	if resp.Code != http.StatusOK || resp.Body.String() != LocalDevSubject {
		t.Fatalf("expected local dev subject, got %d %q", resp.Code, resp.Body.String())
	}
}

func TestVerifyMissingSubject(t *testing.T) {
	verifier, key := newTestVerifier(t)
	claims := tokenClaims(verifier.issuer, verifier.audience)
	delete(claims, "sub")

	if _, err := verifier.Verify(signToken(t, key, "test-key", claims)); err == nil {
		t.Fatalf("expected error for token without sub")
	}
}

func TestVerifyExtractsEmail(t *testing.T) {
	verifier, key := newTestVerifier(t)
	claims, err := verifier.Verify(signToken(t, key, "test-key", tokenClaims(verifier.issuer, verifier.audience)))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Email != "user@example.com" || claims.Issuer != testIssuer {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if len(claims.Audience) != 1 || claims.Audience[0] != testProject {
		t.Fatalf("unexpected audience: %v", claims.Audience)
	}
}

func TestNewVerifierRequiresSettings(t *testing.T) {
	if _, err := NewVerifier("", testProject, "http://localhost/jwks"); err == nil {
		t.Fatalf("expected missing issuer error")
	}
	if _, err := NewVerifier(testIssuer, "", "http://localhost/jwks"); err == nil {
		t.Fatalf("expected missing audience error")
	}
	if _, err := NewVerifier(testIssuer, testProject, ""); err == nil {
		t.Fatalf("expected missing jwks error")
	}
}

func newTestVerifier(t *testing.T) (*Verifier, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to create key: %v", err)
	}

	jwks := newJWKS(key, "test-key")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(jwks)
	}))
	t.Cleanup(server.Close)

	verifier, err := NewVerifier(testIssuer, testProject, server.URL)
	if err != nil {
		t.Fatalf("failed to create verifier: %v", err)
	}
	return verifier, key
}

func tokenClaims(issuer, audience string) jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"iss":   issuer,
		"aud":   audience,
		"sub":   "user-123",
		"email": "user@example.com",
		"exp":   now.Add(10 * time.Minute).Unix(),
		"iat":   now.Unix(),
	}
}

func signToken(t *testing.T, key *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	tokenString, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return tokenString
}

type jwksPayload struct {
	Keys []jwk `json:"keys"`
}

type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func newJWKS(key *rsa.PrivateKey, kid string) jwksPayload {
	n := base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes())
	e := base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes())
	return jwksPayload{
		Keys: []jwk{
			{
				Kty: "RSA",
				Kid: kid,
				Use: "sig",
				Alg: "RS256",
				N:   n,
				E:   e,
			},
		},
	}
}

func TestExtractBearerToken(t *testing.T) {
	token, ok := extractBearerToken("Bearer abc")
	if !ok || token != "abc" {
		t.Fatalf("expected token")
	}
	if _, ok := extractBearerToken("bearer abc"); !ok {
		t.Fatalf("expected case-insensitive scheme")
	}
	if _, ok := extractBearerToken("Bearer"); ok {
		t.Fatalf("expected invalid header")
	}
	if _, ok := extractBearerToken("Token abc"); ok {
		t.Fatalf("expected invalid scheme")
	}
	if _, ok := extractBearerToken(""); ok {
		t.Fatalf("expected empty header to be invalid")
	}
}

func TestClaimsFromContext(t *testing.T) {
	claims := &Claims{Subject: "user-1"}
	ctx := WithClaims(context.Background(), claims)
	got, ok := ClaimsFromContext(ctx)
	if !ok || got.Subject != "user-1" {
		t.Fatalf("expected claims from context")
	}
	if _, ok := ClaimsFromContext(context.Background()); ok {
		t.Fatalf("expected no claims on empty context")
	}
}
