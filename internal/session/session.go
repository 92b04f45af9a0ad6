// Package session implements the Session Layer (spec §4.5): per-session
// cookie and header state, request header construction, and the redirect
// chain following used by the HEAD probe and pre_request. The Segment
// Worker's ranged GETs go through the shared client, which does not follow
// redirects.
package session

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kagedl/resumedl/internal/corerrors"
	"github.com/kagedl/resumedl/internal/logging"
)

// State is the per-session context the spec calls SessionState (§4.5).
type State struct {
	Cookies         *CookieJar
	HeaderOverrides map[string]string
	UserAgent       string
	Referer         string
	Origin          string
	Auth            AuthConfig
}

// RequestResult is PreRequest's return shape (spec §4.5, surfaced directly
// as the pre_request tool's result per spec §6).
type RequestResult struct {
	Status        int
	Headers       http.Header
	Cookies       []*http.Cookie
	RedirectChain []string
	FinalURL      string
	Elapsed       time.Duration
	Body          []byte
}

// Manager holds all live sessions, keyed by session_id.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*State
	client   *http.Client
	log      zerolog.Logger
}

const defaultUserAgent = "resumedl/1.0"

// NewManager builds a session manager sharing one underlying transport
// across all sessions, matching the teacher's single-client-per-process
// idiom (utils.CreateHTTPClient) rather than reopening a transport per
// request.
func NewManager(cfg ClientConfig) *Manager {
	return &Manager{
		sessions: make(map[string]*State),
		client:   NewHTTPClient(cfg),
		log:      logging.For("session"),
	}
}

// Create registers a new session, optionally seeded with an explicit id
// and initial state, and returns the id (spec §4.5: create(session_id?,
// initial_state?) -> session_id).
func (m *Manager) Create(sessionID string, initial *State) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	state := initial
	if state == nil {
		state = &State{}
	}
	if state.Cookies == nil {
		state.Cookies = NewCookieJar()
	}
	if state.HeaderOverrides == nil {
		state.HeaderOverrides = make(map[string]string)
	}
	if state.UserAgent == "" {
		state.UserAgent = defaultUserAgent
	}
	m.sessions[sessionID] = state
	m.log.Debug().Str("sessionId", sessionID).Msg("session created")
	return sessionID
}

// Get returns the session state for id, creating a default one on first
// use so callers never have to special-case a cold-start session_id
// (spec §9: "external callers must tolerate an empty registry on cold
// start" applies equally to sessions).
func (m *Manager) Get(sessionID string) *State {
	m.mu.RLock()
	state, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if ok {
		return state
	}
	if sessionID == "" {
		// Create would assign a fresh uuid to an empty id; the anonymous
		// session is instead kept under "" so repeated Get("") calls share it.
		m.mu.Lock()
		defer m.mu.Unlock()
		if state, ok := m.sessions[""]; ok {
			return state
		}
		state = &State{Cookies: NewCookieJar(), HeaderOverrides: make(map[string]string), UserAgent: defaultUserAgent}
		m.sessions[""] = state
		return state
	}
	id := m.Create(sessionID, nil)
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[id]
}

// BuildHeaders merges defaults, session cookies scoped to target, and
// caller overrides, with caller overrides winning ties (spec §4.5).
func (m *Manager) BuildHeaders(sessionID string, target *url.URL, extra map[string]string) http.Header {
	state := m.Get(sessionID)
	headers := make(http.Header)

	ua := state.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	headers.Set("User-Agent", ua)
	headers.Set("Accept-Encoding", "identity")
	if state.Referer != "" {
		headers.Set("Referer", state.Referer)
	}

	for k, v := range state.HeaderOverrides {
		headers.Set(k, v)
	}

	if cookies := state.Cookies.CookiesFor(target); len(cookies) > 0 {
		parts := make([]string, 0, len(cookies))
		for _, c := range cookies {
			parts = append(parts, c.Name+"="+c.Value)
		}
		headers.Set("Cookie", strings.Join(parts, "; "))
	}

	for k, v := range extra {
		headers.Set(k, v)
	}
	return headers
}

// Client returns the shared *http.Client every session's requests go
// through. The Segment Worker uses this directly for its ranged GETs
// rather than routing each attempt through PreRequest, since PreRequest
// buffers the full response body in memory.
func (m *Manager) Client() *http.Client {
	return m.client
}

// StaticAuthHeader returns the Authorization header value for sessionID's
// auth config, for callers like the Segment Worker that send many requests
// against one session and cannot go through ApplyAuth per-request. Digest
// and NTLM are excluded: both depend on per-request state (nonce-count,
// challenge/response) that only PreRequest's single-request model handles
// correctly, so a segment download using either auth kind must go through
// pre_request first and pass the result back in as a static header instead.
func (m *Manager) StaticAuthHeader(sessionID string) (string, error) {
	state := m.Get(sessionID)
	switch state.Auth.Kind {
	case AuthNone:
		return "", nil
	case AuthBasic:
		req, _ := http.NewRequest(http.MethodGet, "http://localhost/", nil)
		if err := ApplyAuth(context.Background(), req, state.Auth); err != nil {
			return "", err
		}
		return req.Header.Get("Authorization"), nil
	case AuthBearer:
		req, _ := http.NewRequest(http.MethodGet, "http://localhost/", nil)
		if err := ApplyAuth(context.Background(), req, state.Auth); err != nil {
			return "", err
		}
		return req.Header.Get("Authorization"), nil
	default:
		return "", corerrors.New(corerrors.CodeInvalidConfig, fmt.Sprintf("auth kind %q is not supported for segment downloads", state.Auth.Kind))
	}
}

// maxRedirectsDefault is spec §4.5's default redirect cap.
const maxRedirectsDefault = 5

// PreRequest performs a request, following redirects itself (rather than
// relying on http.Client) so it can record the chain, rewrite Referer, and
// apply the 303-downgrades-to-GET rule precisely (spec §4.5).
func (m *Manager) PreRequest(ctx context.Context, sessionID, rawURL, method string, body io.Reader, extraHeaders map[string]string, followRedirects bool, maxRedirects int) (RequestResult, error) {
	if maxRedirects <= 0 {
		maxRedirects = maxRedirectsDefault
	}
	state := m.Get(sessionID)

	currentURL := rawURL
	currentMethod := method
	var chain []string
	start := time.Now()

	for redirectCount := 0; ; redirectCount++ {
		parsed, err := url.Parse(currentURL)
		if err != nil {
			return RequestResult{}, fmt.Errorf("invalid URL %q: %w", currentURL, err)
		}

		req, err := http.NewRequestWithContext(ctx, currentMethod, currentURL, body)
		if err != nil {
			return RequestResult{}, err
		}
		headers := m.BuildHeaders(sessionID, parsed, extraHeaders)
		req.Header = headers
		if err := ApplyAuth(ctx, req, state.Auth); err != nil {
			return RequestResult{}, err
		}

		resp, err := m.client.Do(req)
		if err != nil {
			return RequestResult{}, err
		}
		state.Cookies.StoreFromResponse(parsed, resp)

		isRedirect := resp.StatusCode >= 300 && resp.StatusCode < 400 && resp.Header.Get("Location") != ""
		if !isRedirect || !followRedirects {
			var respBody []byte
			if method != http.MethodHead {
				respBody, _ = io.ReadAll(resp.Body)
			}
			resp.Body.Close()
			state.Referer = currentURL
			return RequestResult{
				Status:        resp.StatusCode,
				Headers:       resp.Header,
				Cookies:       resp.Cookies(),
				RedirectChain: chain,
				FinalURL:      currentURL,
				Elapsed:       time.Since(start),
				Body:          respBody,
			}, nil
		}
		resp.Body.Close()

		if redirectCount >= maxRedirects {
			return RequestResult{}, corerrors.New(corerrors.CodeTooManyRedirects, fmt.Sprintf("exceeded %d redirects", maxRedirects))
		}

		location := resp.Header.Get("Location")
		nextURL, err := parsed.Parse(location)
		if err != nil {
			return RequestResult{}, fmt.Errorf("invalid redirect Location %q: %w", location, err)
		}
		chain = append(chain, currentURL)
		state.Referer = currentURL
		currentURL = nextURL.String()
		if resp.StatusCode == http.StatusSeeOther {
			currentMethod = http.MethodGet
			body = nil
		}
	}
}
