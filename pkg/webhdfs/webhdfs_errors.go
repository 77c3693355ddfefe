package webhdfs

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
)

var (
	// config
	ErrNoBaseURL      = errors.New("webhdfs: base url missing")
	ErrInvalidBaseURL = errors.New("webhdfs: invalid base url")
	ErrNoUser         = errors.New("webhdfs: user name missing")

	// request
	ErrEmptyPath          = errors.New("webhdfs: empty path")
	ErrInvalidReplication = errors.New("webhdfs: replication must be positive")
	ErrNoRedirect         = errors.New("webhdfs: namenode redirect has no location")
	ErrCanceled           = errors.New("webhdfs: canceled")

	// matched by StatusError for a 404 on a non-lookup operation
	ErrNotFound = errors.New("webhdfs: not found")

	errMissingEnvelope = errors.New("missing response envelope")
)

// RemoteException is the error body a namenode or datanode sends back.
type RemoteException struct {
	Exception     string `json:"exception"`
	JavaClassName string `json:"javaClassName"`
	Message       string `json:"message"`
}

type remoteExceptionEnvelope struct {
	RemoteException *RemoteException `json:"RemoteException"`
}

// StatusError is returned when the server answers with a non-success status.
type StatusError struct {
	Op         string
	StatusCode int
	Body       []byte
	Remote     *RemoteException // nil when the body was not a RemoteException
}

func (e *StatusError) Error() string {
	if e.Remote != nil && e.Remote.Message != "" {
		return fmt.Sprintf("webhdfs: %s: %d %s: %s", e.Op, e.StatusCode, e.Remote.Exception, e.Remote.Message)
	}
	body := bytes.TrimSpace(e.Body)
	if len(body) == 0 {
		return fmt.Sprintf("webhdfs: %s: %d %s", e.Op, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("webhdfs: %s: %d %s", e.Op, e.StatusCode, body)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// DecodeError is returned when a success body does not match the expected JSON envelope.
type DecodeError struct {
	Op   string
	Body []byte
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("webhdfs: %s: decode response: %v", e.Op, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func newStatusError(op string, code int, body []byte) *StatusError {
	statusErr := &StatusError{
		Op:         op,
		StatusCode: code,
		Body:       body,
	}

	var env remoteExceptionEnvelope
	if len(body) > 0 && jsonUnmarshal(body, &env) == nil {
		statusErr.Remote = env.RemoteException
	}

	return statusErr
}
