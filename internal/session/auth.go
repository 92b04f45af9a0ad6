package session

import (
	"context"
	"crypto/md5"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
)

// AuthKind selects which credential scheme BuildHeaders applies to a
// request (spec §4.5).
type AuthKind string

const (
	AuthNone   AuthKind = ""
	AuthBasic  AuthKind = "basic"
	AuthBearer AuthKind = "bearer"
	AuthDigest AuthKind = "digest"
	AuthNTLM   AuthKind = "ntlm" // Type-1 negotiate only; see Design Notes
)

// AuthConfig carries the credentials for whichever AuthKind is selected.
// BearerTokenSource lets a caller plug a refreshing OAuth2 token into
// pre_request without the core depending on any specific identity
// provider -- the only place golang.org/x/oauth2 is exercised in this
// package, per SPEC_FULL's domain-stack note.
type AuthConfig struct {
	Kind              AuthKind
	Username          string
	Password          string
	BearerToken       string
	BearerTokenSource oauth2.TokenSource
	Digest            *DigestChallenge
}

// DigestChallenge holds the server-issued parameters needed to compute an
// RFC 7616 digest response (spec §4.5: "full RFC-compliant HA1/HA2/response
// with nonce-count and cnonce").
type DigestChallenge struct {
	Realm     string
	Nonce     string
	QOP       string // "auth" supported; "auth-int" not attempted
	Opaque    string
	Algorithm string // "MD5" (default) is the only one implemented
	NC        int    // nonce count, incremented by ApplyAuth on every call that uses this challenge
}

// ApplyAuth sets the Authorization header (or NTLM negotiate header) on req
// per cfg.Kind. Digest requires method and path to compute HA2.
func ApplyAuth(ctx context.Context, req *http.Request, cfg AuthConfig) error {
	switch cfg.Kind {
	case AuthNone:
		return nil
	case AuthBasic:
		token := base64.StdEncoding.EncodeToString([]byte(cfg.Username + ":" + cfg.Password))
		req.Header.Set("Authorization", "Basic "+token)
		return nil
	case AuthBearer:
		token := cfg.BearerToken
		if cfg.BearerTokenSource != nil {
			tok, err := cfg.BearerTokenSource.Token()
			if err != nil {
				return fmt.Errorf("refreshing bearer token: %w", err)
			}
			token = tok.AccessToken
		}
		req.Header.Set("Authorization", "Bearer "+token)
		return nil
	case AuthDigest:
		if cfg.Digest == nil {
			return fmt.Errorf("digest auth selected without a challenge")
		}
		header, err := buildDigestHeader(req.Method, req.URL.RequestURI(), cfg.Username, cfg.Password, cfg.Digest)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", header)
		return nil
	case AuthNTLM:
		// Type-1 negotiate stub only, per the Design Notes' open question:
		// a full NTLM handshake (Type-2 challenge, Type-3 authenticate) is
		// not implemented. Sending only a negotiate message lets a server
		// that tolerates anonymous fallback proceed; a server that
		// requires the full handshake will reject the request.
		req.Header.Set("Authorization", "NTLM "+ntlmNegotiateBase64())
		return nil
	default:
		return fmt.Errorf("unknown auth kind %q", cfg.Kind)
	}
}

func buildDigestHeader(method, uri, username, password string, ch *DigestChallenge) (string, error) {
	if ch.Algorithm != "" && !strings.EqualFold(ch.Algorithm, "MD5") {
		return "", fmt.Errorf("unsupported digest algorithm %q", ch.Algorithm)
	}
	ch.NC++
	cnonce, err := randomHex(8)
	if err != nil {
		return "", err
	}
	ha1 := md5Hex(fmt.Sprintf("%s:%s:%s", username, ch.Realm, password))
	ha2 := md5Hex(fmt.Sprintf("%s:%s", method, uri))
	nc := fmt.Sprintf("%08x", ch.NC)
	qop := ch.QOP
	if qop == "" {
		qop = "auth"
	}
	response := md5Hex(fmt.Sprintf("%s:%s:%s:%s:%s:%s", ha1, ch.Nonce, nc, cnonce, qop, ha2))

	parts := []string{
		fmt.Sprintf(`username="%s"`, username),
		fmt.Sprintf(`realm="%s"`, ch.Realm),
		fmt.Sprintf(`nonce="%s"`, ch.Nonce),
		fmt.Sprintf(`uri="%s"`, uri),
		fmt.Sprintf(`qop=%s`, qop),
		fmt.Sprintf(`nc=%s`, nc),
		fmt.Sprintf(`cnonce="%s"`, cnonce),
		fmt.Sprintf(`response="%s"`, response),
	}
	if ch.Opaque != "" {
		parts = append(parts, fmt.Sprintf(`opaque="%s"`, ch.Opaque))
	}
	return "Digest " + strings.Join(parts, ", "), nil
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// ntlmNegotiateBase64 returns a minimal Type-1 NTLM negotiate message
// advertising NTLMSSP_NEGOTIATE_UNICODE | NTLMSSP_NEGOTIATE_OEM |
// NTLMSSP_REQUEST_TARGET | NTLMSSP_NEGOTIATE_NTLM.
func ntlmNegotiateBase64() string {
	msg := []byte("NTLMSSP\x00")
	msg = append(msg, 0x01, 0x00, 0x00, 0x00)             // type 1
	msg = append(msg, 0x07, 0x82, 0x08, 0x00)             // negotiate flags
	msg = append(msg, make([]byte, 16)...)                // domain/workstation security buffers, unused
	return base64.StdEncoding.EncodeToString(msg)
}
