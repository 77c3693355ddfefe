package webhdfs

import (
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	testBaseURL  = "http://test.me/plz/"
	testUser     = "hdfs"
	testHomeBody = `{"Path":"/user/hdfs"}`
	boolResult   = `{ "boolean" : true }`
)

// stubResponse is what the recording transport answers for one operation.
type stubResponse struct {
	status int
	body   string
	header http.Header
}

// recordingTransport records every request and answers from a table keyed by op.
// GETHOMEDIRECTORY is answered with /user/hdfs unless overridden.
type recordingTransport struct {
	mu        sync.Mutex
	requests  []*http.Request
	bodies    [][]byte
	responses map[string]stubResponse
}

func newRecordingTransport(responses map[string]stubResponse) *recordingTransport {
	if responses == nil {
		responses = make(map[string]stubResponse)
	}
	if _, ok := responses[opGetHomeDirectory]; !ok {
		responses[opGetHomeDirectory] = stubResponse{status: http.StatusOK, body: testHomeBody}
	}
	return &recordingTransport{responses: responses}
}

func (rt *recordingTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	var body []byte
	if r.Body != nil {
		body, _ = io.ReadAll(r.Body)
		r.Body.Close()
	}

	rt.mu.Lock()
	rt.requests = append(rt.requests, r)
	rt.bodies = append(rt.bodies, body)
	stub, ok := rt.responses[r.URL.Query().Get("op")]
	rt.mu.Unlock()

	if !ok {
		stub = stubResponse{status: http.StatusNoContent}
	}

	header := http.Header{"Content-Type": []string{"application/json"}}
	for k, v := range stub.header {
		header[k] = v
	}

	return &http.Response{
		Status:        http.StatusText(stub.status),
		StatusCode:    stub.status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(strings.NewReader(stub.body)),
		ContentLength: int64(len(stub.body)),
		Request:       r,
	}, nil
}

func (rt *recordingTransport) urls() []string {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	urls := make([]string, len(rt.requests))
	for i, r := range rt.requests {
		urls[i] = r.URL.String()
	}
	return urls
}

func (rt *recordingTransport) last() (*http.Request, []byte) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	n := len(rt.requests)
	return rt.requests[n-1], rt.bodies[n-1]
}

func (rt *recordingTransport) body(i int) []byte {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.bodies[i]
}

func newStubClient(t *testing.T, responses map[string]stubResponse) (*Client, *recordingTransport) {
	t.Helper()

	rt := newRecordingTransport(responses)
	client, err := New(&Config{BaseURL: testBaseURL, User: testUser}, WithTransport(rt))
	require.NoError(t, err)
	return client, rt
}

func jsonResponse(body string) stubResponse {
	return stubResponse{status: http.StatusOK, body: body}
}

