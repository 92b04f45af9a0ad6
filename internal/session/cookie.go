package session

import (
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Cookie is a single stored cookie with enough metadata to apply spec
// §4.5's scoping rules (domain, path, Secure, expiry) on every read.
type Cookie struct {
	Name     string
	Value    string
	Domain   string
	Path     string
	Secure   bool
	Expires  time.Time // zero means no Expires set
	MaxAge   int       // seconds; 0 means unset
	SetAt    time.Time
}

// expired reports whether the cookie should be dropped on read, per
// spec §4.5: either Expires has passed, or Max-Age has been consumed.
func (c Cookie) expired(now time.Time) bool {
	if !c.Expires.IsZero() && now.After(c.Expires) {
		return true
	}
	if c.MaxAge > 0 && now.After(c.SetAt.Add(time.Duration(c.MaxAge)*time.Second)) {
		return true
	}
	return false
}

// domainMatch implements spec §4.5's domain rule: exact match or a
// leading-dot suffix match (cookie domain ".example.com" matches
// "api.example.com").
func domainMatch(cookieDomain, host string) bool {
	cookieDomain = strings.TrimPrefix(cookieDomain, ".")
	host = strings.ToLower(host)
	cookieDomain = strings.ToLower(cookieDomain)
	if host == cookieDomain {
		return true
	}
	return strings.HasSuffix(host, "."+cookieDomain)
}

// pathMatch implements spec §4.5's path rule: the URL path must have the
// cookie's path as a prefix.
func pathMatch(cookiePath, urlPath string) bool {
	if cookiePath == "" || cookiePath == "/" {
		return true
	}
	if urlPath == cookiePath {
		return true
	}
	return strings.HasPrefix(urlPath, cookiePath) &&
		(strings.HasSuffix(cookiePath, "/") || strings.HasPrefix(urlPath[len(cookiePath):], "/"))
}

// CookieJar is a per-session cookie store, scoped by (domain, path, secure,
// expiry) on every read rather than on every write -- matching spec §4.5's
// "dropped on read" wording for expiry.
type CookieJar struct {
	cookies map[string]Cookie // keyed by domain|path|name
}

func NewCookieJar() *CookieJar {
	return &CookieJar{cookies: make(map[string]Cookie)}
}

func cookieKey(domain, path, name string) string {
	return domain + "|" + path + "|" + name
}

// StoreFromResponse parses Set-Cookie headers off resp and records them
// against reqURL's host as the default domain (spec §4.5).
func (j *CookieJar) StoreFromResponse(reqURL *url.URL, resp *http.Response) {
	now := time.Now()
	for _, c := range resp.Cookies() {
		domain := c.Domain
		if domain == "" {
			domain = reqURL.Hostname()
		}
		path := c.Path
		if path == "" {
			path = "/"
		}
		cookie := Cookie{
			Name:    c.Name,
			Value:   c.Value,
			Domain:  domain,
			Path:    path,
			Secure:  c.Secure,
			MaxAge:  c.MaxAge,
			SetAt:   now,
		}
		if !c.Expires.IsZero() {
			cookie.Expires = c.Expires
		}
		j.cookies[cookieKey(domain, path, c.Name)] = cookie
	}
}

// CookiesFor returns the cookies applicable to target, applying domain,
// path, Secure, and expiry scoping per spec §4.5.
func (j *CookieJar) CookiesFor(target *url.URL) []*http.Cookie {
	now := time.Now()
	isHTTPS := target.Scheme == "https"
	var out []*http.Cookie
	for _, c := range j.cookies {
		if c.expired(now) {
			continue
		}
		if c.Secure && !isHTTPS {
			continue
		}
		if !domainMatch(c.Domain, target.Hostname()) {
			continue
		}
		if !pathMatch(c.Path, target.Path) {
			continue
		}
		out = append(out, &http.Cookie{Name: c.Name, Value: c.Value})
	}
	return out
}

// Sweep removes cookies that have expired as of now, keeping the jar's
// memory footprint bounded for long-lived sessions.
func (j *CookieJar) Sweep() {
	now := time.Now()
	for k, c := range j.cookies {
		if c.expired(now) {
			delete(j.cookies, k)
		}
	}
}
