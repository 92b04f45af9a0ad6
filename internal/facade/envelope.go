// Package facade implements the Tool Facade (spec §6): the thin,
// envelope-wrapping layer a JSON-RPC-style tool server calls into. It
// never touches the registry or resume store directly -- the Orchestrator
// and the Session Manager are its only two collaborators,
// the way the teacher's cmd package never reaches past internal.BatchDownload
// into a downloader implementation directly.
package facade

import (
	"time"

	"github.com/kagedl/resumedl/internal/corerrors"
)

// Envelope is the uniform response shape every tool call returns
// (spec §6: "Responses are wrapped as {success, data?, error?{code,message,
// details}, timestamp}").
type Envelope struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *ErrorBody  `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// ErrorBody is the error.{code,message,details} shape spec §6 names.
type ErrorBody struct {
	Code    corerrors.Code `json:"code"`
	Message string         `json:"message"`
	Details string         `json:"details,omitempty"`
}

func ok(data interface{}) Envelope {
	return Envelope{Success: true, Data: data, Timestamp: time.Now()}
}

func fail(err error) Envelope {
	body := &ErrorBody{Code: corerrors.CodeOf(err), Message: err.Error()}
	if ce, isCore := asCoreError(err); isCore && ce.Err != nil {
		body.Message = ce.Message
		body.Details = ce.Err.Error()
	}
	return Envelope{Success: false, Error: body, Timestamp: time.Now()}
}

func asCoreError(err error) (*corerrors.CoreError, bool) {
	ce, ok := err.(*corerrors.CoreError)
	return ce, ok
}
