package session

import (
	"context"
	"net/http"
	"strconv"

	"github.com/kagedl/resumedl/internal/model"
)

// Probe issues a HEAD request and extracts the server metadata the
// orchestrator needs before planning segments (spec §4.3 step 1).
func (m *Manager) Probe(ctx context.Context, sessionID, rawURL string, extraHeaders map[string]string) (model.ServerMetadata, error) {
	res, err := m.PreRequest(ctx, sessionID, rawURL, http.MethodHead, nil, extraHeaders, true, maxRedirectsDefault)
	if err != nil {
		return model.ServerMetadata{}, err
	}
	meta := model.ServerMetadata{
		AcceptRanges: res.Headers.Get("Accept-Ranges") == "bytes",
		ContentType:  res.Headers.Get("Content-Type"),
		LastModified: res.Headers.Get("Last-Modified"),
		ETag:         res.Headers.Get("ETag"),
	}
	if cl := res.Headers.Get("Content-Length"); cl != "" {
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil {
			meta.ContentLength = &n
		}
	}
	return meta, nil
}
