package api

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    string
		wantErr error
	}{
		{name: "ok", header: "Bearer header.payload.signature", want: "header.payload.signature"},
		{name: "padded", header: "  Bearer a.b.c  ", want: "a.b.c"},
		{name: "missing", header: "", wantErr: errMissingAuthorization},
		{name: "scheme", header: "Basic a.b.c", wantErr: errBadAuthorization},
		{name: "segments", header: "Bearer a.b", wantErr: errBadAuthorization},
		{name: "empty token", header: "Bearer ", wantErr: errBadAuthorization},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := bearerToken(tt.header)
			if err != tt.wantErr {
				t.Fatalf("bearerToken(%q) error = %v, want %v", tt.header, err, tt.wantErr)
			}
			if got != tt.want {
				t.Fatalf("bearerToken(%q) = %q, want %q", tt.header, got, tt.want)
			}
		})
	}
}

func TestSessionFromAuthHeaderHS256(t *testing.T) {
	auth := NewTestAuth([]byte(testSecret))
	auth.Audience = "api://todo"
	auth.Issuer = "https://issuer/"

	sign := func(claims jwt.MapClaims, method jwt.SigningMethod, key any) string {
		signed, err := jwt.NewWithClaims(method, claims).SignedString(key)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return "Bearer " + signed
	}
	valid := jwt.MapClaims{
		"sub": "user-123",
		"aud": "api://todo",
		"iss": "https://issuer/",
		"exp": time.Now().Add(5 * time.Minute).Unix(),
	}

	sess, err := auth.SessionFromAuthHeader(sign(valid, jwt.SigningMethodHS256, []byte(testSecret)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sess.UserID != "user-123" {
		t.Fatalf("unexpected user %q", sess.UserID)
	}

	wrongAud := jwt.MapClaims{"sub": "u", "aud": "other", "iss": "https://issuer/", "exp": valid["exp"]}
	expired := jwt.MapClaims{"sub": "u", "aud": "api://todo", "iss": "https://issuer/", "exp": time.Now().Add(-time.Hour).Unix()}
	noExp := jwt.MapClaims{"sub": "u", "aud": "api://todo", "iss": "https://issuer/"}
	for name, header := range map[string]string{
		"wrong secret":   sign(valid, jwt.SigningMethodHS256, []byte("other")),
		"wrong audience": sign(wrongAud, jwt.SigningMethodHS256, []byte(testSecret)),
		"expired":        sign(expired, jwt.SigningMethodHS256, []byte(testSecret)),
		"no expiry":      sign(noExp, jwt.SigningMethodHS256, []byte(testSecret)),
		"unsigned":       sign(valid, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType),
	} {
		if _, err := auth.SessionFromAuthHeader(header); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestRS256WithoutJWKSFails(t *testing.T) {
	auth := NewAuth(nil, "", "", time.Minute)
	if _, err := auth.SessionFromAuthHeader("Bearer a.b.c"); err == nil {
		t.Fatalf("expected error without key set")
	}
}
