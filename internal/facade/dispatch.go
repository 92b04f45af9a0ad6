package facade

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/kagedl/resumedl/internal/corerrors"
)

// Dispatch decodes params against the named tool's request shape and
// invokes it, rejecting any key params does not recognize with
// Config.Invalid rather than silently ignoring it -- the stdio transport's
// single entry point, used by cmd/serve and exercised directly by tests
// without needing a socket.
func (f *Facade) Dispatch(ctx context.Context, method string, params json.RawMessage) Envelope {
	switch method {
	case "pre_request":
		var p PreRequestParams
		if err := decodeStrict(params, &p); err != nil {
			return fail(err)
		}
		return f.PreRequest(ctx, p)

	case "download_file":
		var p DownloadFileParams
		if err := decodeStrict(params, &p); err != nil {
			return fail(err)
		}
		return f.DownloadFile(ctx, p)

	case "get_download_status":
		var p taskIDParams
		if err := decodeStrict(params, &p); err != nil {
			return fail(err)
		}
		return f.GetDownloadStatus(p.TaskID)

	case "pause_download":
		var p taskIDParams
		if err := decodeStrict(params, &p); err != nil {
			return fail(err)
		}
		return f.PauseDownload(p.TaskID)

	case "resume_download":
		var p taskIDParams
		if err := decodeStrict(params, &p); err != nil {
			return fail(err)
		}
		return f.ResumeDownload(ctx, p.TaskID)

	case "cancel_download":
		var p taskIDParams
		if err := decodeStrict(params, &p); err != nil {
			return fail(err)
		}
		return f.CancelDownload(p.TaskID)

	case "list_downloads":
		var p ListDownloadsParams
		if err := decodeStrict(params, &p); err != nil {
			return fail(err)
		}
		return f.ListDownloads(p)

	case "verify_integrity":
		var p VerifyIntegrityParams
		if err := decodeStrict(params, &p); err != nil {
			return fail(err)
		}
		return f.VerifyIntegrity(p)

	case "delete_download":
		var p taskIDParams
		if err := decodeStrict(params, &p); err != nil {
			return fail(err)
		}
		return f.DeleteDownload(p.TaskID)

	case "get_stats":
		return f.GetStats()

	default:
		return fail(corerrors.New(corerrors.CodeInvalidConfig, fmt.Sprintf("unknown tool %q", method)))
	}
}

type taskIDParams struct {
	TaskID string `json:"task_id"`
}

// decodeStrict rejects any field in raw that dst's json tags don't declare,
// surfacing it as Config.Invalid instead of letting an unrecognized key
// (e.g. a typo'd config field) pass through silently.
func decodeStrict(raw json.RawMessage, dst interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return corerrors.Wrap(corerrors.CodeInvalidConfig, "decoding tool parameters", err)
	}
	return nil
}
