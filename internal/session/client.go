package session

import (
	"net"
	"net/http"
	"net/url"
	"syscall"
	"time"
)

// ClientConfig mirrors the teacher's HTTPClientConfig, generalized so the
// Session Layer can build one transport per task instead of one per CLI
// invocation.
type ClientConfig struct {
	Timeout        time.Duration
	KeepAliveTO    time.Duration
	ProxyURL       string
	ProxyUsername  string
	ProxyPassword  string
	HighThreadMode bool // advanced socket tuning for max_concurrency > 5, per spec §4.2's worker contract
}

// defaultDialBufferSize matches the teacher's DefaultBufferSize; it is the
// kernel socket buffer hint applied only in high-thread mode.
const defaultDialBufferSize = 8 * 1024 * 1024

// newTransport builds an *http.Transport tuned the way the teacher's
// NewDanzoHTTPClient does: generous idle-connection pooling, compression
// disabled (segments are fetched as raw byte ranges, and gzip would break
// Content-Range math), and an optional high-thread dialer with socket
// buffer tuning for highly parallel segment fetches.
func newTransport(cfg ClientConfig) *http.Transport {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.KeepAliveTO == 0 {
		cfg.KeepAliveTO = 60 * time.Second
	}
	transport := &http.Transport{
		IdleConnTimeout:     cfg.KeepAliveTO,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		DisableCompression:  true,
		MaxConnsPerHost:     0,
	}
	if cfg.HighThreadMode {
		transport.DialContext = (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
			Control: func(network, address string, c syscall.RawConn) error {
				return c.Control(func(fd uintptr) {
					setSocketOptions(fd, defaultDialBufferSize)
				})
			},
		}).DialContext
	}
	if cfg.ProxyURL != "" {
		if proxyURL, err := url.Parse(cfg.ProxyURL); err == nil {
			if cfg.ProxyUsername != "" {
				if cfg.ProxyPassword != "" {
					proxyURL.User = url.UserPassword(cfg.ProxyUsername, cfg.ProxyPassword)
				} else {
					proxyURL.User = url.User(cfg.ProxyUsername)
				}
			}
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}
	return transport
}

// NewHTTPClient builds a bare *http.Client for cfg. RedirectChecking is
// handled at the Session Layer (PreRequest), not here, so this client never
// follows redirects itself.
func NewHTTPClient(cfg ClientConfig) *http.Client {
	return &http.Client{
		Timeout:   cfg.Timeout,
		Transport: newTransport(cfg),
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}
