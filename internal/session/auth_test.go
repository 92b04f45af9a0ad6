package session

import (
	"context"
	"net/http"
	"strings"
	"testing"
)

func contextBackground() context.Context {
	return context.Background()
}

func newTestRequest(t *testing.T) *http.Request {
	req, err := http.NewRequest(http.MethodGet, "http://example.com/resource", nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	return req
}

func TestApplyAuthBasic(t *testing.T) {
	req := newTestRequest(t)
	cfg := AuthConfig{Kind: AuthBasic, Username: "alice", Password: "secret"}
	if err := ApplyAuth(contextBackground(), req, cfg); err != nil {
		t.Fatalf("ApplyAuth: %v", err)
	}
	got := req.Header.Get("Authorization")
	if !strings.HasPrefix(got, "Basic ") {
		t.Fatalf("expected a Basic Authorization header, got %q", got)
	}
}

func TestApplyAuthBearerStaticToken(t *testing.T) {
	req := newTestRequest(t)
	cfg := AuthConfig{Kind: AuthBearer, BearerToken: "tok-123"}
	if err := ApplyAuth(contextBackground(), req, cfg); err != nil {
		t.Fatalf("ApplyAuth: %v", err)
	}
	if got, want := req.Header.Get("Authorization"), "Bearer tok-123"; got != want {
		t.Errorf("Authorization = %q, want %q", got, want)
	}
}

func TestApplyAuthDigestRequiresChallenge(t *testing.T) {
	req := newTestRequest(t)
	cfg := AuthConfig{Kind: AuthDigest}
	if err := ApplyAuth(contextBackground(), req, cfg); err == nil {
		t.Error("expected an error when digest auth is selected without a challenge")
	}
}

func TestApplyAuthDigestProducesAuthorizationHeader(t *testing.T) {
	req := newTestRequest(t)
	cfg := AuthConfig{
		Kind:     AuthDigest,
		Username: "alice",
		Password: "secret",
		Digest: &DigestChallenge{
			Realm: "protected",
			Nonce: "abc123nonce",
			QOP:   "auth",
		},
	}
	if err := ApplyAuth(contextBackground(), req, cfg); err != nil {
		t.Fatalf("ApplyAuth: %v", err)
	}
	got := req.Header.Get("Authorization")
	if !strings.HasPrefix(got, "Digest ") {
		t.Fatalf("expected a Digest Authorization header, got %q", got)
	}
	if !strings.Contains(got, `nc=00000001`) {
		t.Errorf("expected the first request on a fresh challenge to use nc=00000001, got %q", got)
	}
	if cfg.Digest.NC != 1 {
		t.Errorf("expected the challenge's nonce count to be incremented to 1, got %d", cfg.Digest.NC)
	}
}

func TestApplyAuthNTLMSendsNegotiate(t *testing.T) {
	req := newTestRequest(t)
	cfg := AuthConfig{Kind: AuthNTLM}
	if err := ApplyAuth(contextBackground(), req, cfg); err != nil {
		t.Fatalf("ApplyAuth: %v", err)
	}
	if !strings.HasPrefix(req.Header.Get("Authorization"), "NTLM ") {
		t.Errorf("expected an NTLM negotiate header, got %q", req.Header.Get("Authorization"))
	}
}

func TestApplyAuthNone(t *testing.T) {
	req := newTestRequest(t)
	if err := ApplyAuth(contextBackground(), req, AuthConfig{Kind: AuthNone}); err != nil {
		t.Fatalf("ApplyAuth: %v", err)
	}
	if req.Header.Get("Authorization") != "" {
		t.Error("expected no Authorization header for AuthNone")
	}
}

func TestApplyAuthUnknownKind(t *testing.T) {
	req := newTestRequest(t)
	if err := ApplyAuth(contextBackground(), req, AuthConfig{Kind: AuthKind("spnego")}); err == nil {
		t.Error("expected an error for an unrecognized auth kind")
	}
}
