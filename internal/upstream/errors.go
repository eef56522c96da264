package upstream

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind classifies a failed remote read
type Kind string

const (
	KindTimeout Kind = "timeout"
	KindHTTP    Kind = "http"
	KindDecode  Kind = "decode"
)

// FetchError is returned for every failed upstream or tile request
type FetchError struct {
	Kind   Kind
	URL    string
	Status int // HTTP status, 0 when no response was received
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s error fetching %s (status %d): %v", e.Kind, e.URL, e.Status, e.Err)
	}
	return fmt.Sprintf("%s error fetching %s: %v", e.Kind, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// TransportError wraps an error from http.Client.Do, telling timeouts apart
func TransportError(url string, err error) *FetchError {
	kind := KindHTTP
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		kind = KindTimeout
	}
	return &FetchError{Kind: kind, URL: url, Err: err}
}

// StatusError reports a non-2xx response
func StatusError(url string, status int, body string) *FetchError {
	return &FetchError{Kind: KindHTTP, URL: url, Status: status, Err: fmt.Errorf("unexpected response: %s", body)}
}

// DecodeError reports an undecodable body
func DecodeError(url string, err error) *FetchError {
	return &FetchError{Kind: KindDecode, URL: url, Err: err}
}

// IsNotFound reports whether err is a 404 from upstream
func IsNotFound(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Status == 404
}
