package corerrors

import (
	"errors"
	"net"
	"net/url"
	"os"
	"syscall"
)

// ClassifyHTTPStatus maps a response status code to a taxonomy code per
// spec §7. 408 and 429 are retryable client errors; all other 4xx are
// fatal.
func ClassifyHTTPStatus(status int) Code {
	switch {
	case status == 408 || status == 429:
		return CodeServer5xx // retryable bucket, same backoff treatment as 5xx
	case status >= 500:
		return CodeServer5xx
	case status >= 400:
		return CodeClient4xx
	default:
		return CodeNetwork
	}
}

// ClassifyTransportError inspects a network/filesystem error returned by
// net/http or os and assigns it a taxonomy code. Unrecognized errors default
// to CodeNetwork, which is retryable.
func ClassifyTransportError(err error) Code {
	if err == nil {
		return ""
	}
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce.Code
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return CodeTimeout
		}
		err = urlErr.Err
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CodeTimeout
	}

	if errors.Is(err, os.ErrNotExist) {
		return CodeFSNotFound
	}
	if errors.Is(err, os.ErrPermission) {
		return CodeFSPermission
	}
	if errors.Is(err, syscall.ENOSPC) {
		return CodeFSOutOfSpace
	}
	if errors.Is(err, syscall.EACCES) {
		return CodeFSPermission
	}

	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return ClassifyTransportError(pathErr.Err)
	}

	return CodeNetwork
}
