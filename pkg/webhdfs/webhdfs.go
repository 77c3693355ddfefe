// Package webhdfs is a client for the Hadoop WebHDFS REST API.
//
// Every request goes to <base>/webhdfs/v1/<path> with the query string
// user.name=<user>&op=<OPERATION> followed by the operation's own
// parameters in a fixed order. Relative paths are resolved against the
// user's home directory, which is looked up once per Client.
package webhdfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/imroc/req/v3"
	"github.com/openmined/webhdfs/internal/version"
	"golang.org/x/sync/singleflight"
)

const (
	// PathPrefix is the REST root of every request path.
	PathPrefix = "/webhdfs/v1"

	// error bodies of streamed responses are cut at this size
	maxErrorBody = 64 * 1024
)

// Operation tokens.
const (
	opGetFileStatus     = "GETFILESTATUS"
	opListStatus        = "LISTSTATUS"
	opGetContentSummary = "GETCONTENTSUMMARY"
	opGetFileChecksum   = "GETFILECHECKSUM"
	opGetHomeDirectory  = "GETHOMEDIRECTORY"
	opOpen              = "OPEN"
	opCreate            = "CREATE"
	opAppend            = "APPEND"
	opMkdirs            = "MKDIRS"
	opDelete            = "DELETE"
	opRename            = "RENAME"
	opSetOwner          = "SETOWNER"
	opSetPermission     = "SETPERMISSION"
	opSetReplication    = "SETREPLICATION"
	opSetTimes          = "SETTIMES"
)

// Client is a WebHDFS client bound to one namenode and one user.
// It is safe for concurrent use.
type Client struct {
	client  *req.Client
	baseURL string
	user    string
	logger  *slog.Logger
	stats   *clientStats

	home      atomic.Pointer[string]
	homeGroup singleflight.Group
}

type options struct {
	transport http.RoundTripper
	logger    *slog.Logger
	timeout   time.Duration
	debug     bool
}

// Option configures a Client.
type Option func(*options)

// WithTransport replaces the HTTP transport, e.g. with a recording fake in tests.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) { o.transport = rt }
}

// WithLogger sets the logger request traces are written to at debug level.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithTimeout bounds each HTTP exchange, body included. Zero means no limit.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithDebug dumps every request and response to stderr.
func WithDebug() Option {
	return func(o *options) { o.debug = true }
}

// New creates a new Client
func New(cfg *Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, ErrNoBaseURL
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default().WithGroup("webhdfs")
	}

	client := req.C().
		SetCommonRetryCount(0).
		SetTimeout(o.timeout).
		SetUserAgent(version.UserAgent()).
		SetRedirectPolicy(noRedirects).
		SetJsonMarshal(jsonMarshal).
		SetJsonUnmarshal(jsonUnmarshal).
		SetLogger(nil)

	if o.debug {
		client.EnableDumpAllTo(os.Stderr)
	}
	if o.transport != nil {
		client.GetClient().Transport = o.transport
	}

	return &Client{
		client:  client,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		user:    cfg.User,
		logger:  o.logger,
		stats:   &clientStats{},
	}, nil
}

// User returns the user name sent with every request.
func (c *Client) User() string {
	return c.user
}

// Stats returns the request and payload counters seen so far.
func (c *Client) Stats() Stats {
	return c.stats.snapshot()
}

// Close releases idle connections.
func (c *Client) Close() {
	c.client.GetClient().CloseIdleConnections()
}

// redirects are handled per operation: CREATE and APPEND must not replay their body
func noRedirects(r *http.Request, via []*http.Request) error {
	return http.ErrUseLastResponse
}

// ===================================================================================================

type param struct {
	key   string
	value string
}

// call describes one namenode exchange.
type call struct {
	op       string
	method   string
	path     string
	params   []param
	lookup   bool // 404 means absent, not failed
	redirect bool // a 3xx answer is handed back to the caller
	stream   bool // leave the body unread
	body     io.Reader
}

// requestURL renders the canonical request URL:
// <base>/webhdfs/v1<path>?user.name=<user>&op=<op>[&<key>=<value>...]
// Parameters keep the order they are given in.
func (c *Client) requestURL(p string, op string, params []param) string {
	var b strings.Builder
	b.WriteString(c.baseURL)
	b.WriteString(PathPrefix)
	b.WriteString((&url.URL{Path: p}).EscapedPath())
	b.WriteString("?user.name=")
	b.WriteString(escapeQueryValue(c.user))
	b.WriteString("&op=")
	b.WriteString(op)
	for _, kv := range params {
		b.WriteByte('&')
		b.WriteString(kv.key)
		b.WriteByte('=')
		b.WriteString(escapeQueryValue(kv.value))
	}
	return b.String()
}

// escapeQueryValue keeps '/' readable so paths in parameters such as destination stay intact.
func escapeQueryValue(v string) string {
	return strings.ReplaceAll(url.QueryEscape(v), "%2F", "/")
}

// do runs one namenode exchange. found is false only for a 404 on a lookup call.
func (c *Client) do(ctx context.Context, cl *call) (resp *req.Response, found bool, err error) {
	p := cl.path
	if cl.op != opGetHomeDirectory {
		if p, err = c.resolve(ctx, p); err != nil {
			return nil, false, err
		}
	}

	r := c.client.R().SetContext(ctx)
	if cl.stream {
		r.DisableAutoReadResponse()
	}
	if cl.body != nil {
		r.SetHeader("Content-Type", "application/octet-stream").SetBody(cl.body)
	}

	c.stats.request()
	resp, err = r.Send(cl.method, c.requestURL(p, cl.op, cl.params))
	if err != nil {
		return nil, false, c.fail(c.requestError(ctx, cl.op, err))
	}

	code := resp.GetStatusCode()
	c.logger.Debug("request", "op", cl.op, "method", cl.method, "path", p, "status", code)

	switch {
	case code == http.StatusNotFound && cl.lookup:
		c.discard(resp, cl.stream)
		return nil, false, nil
	case resp.IsSuccessState(), cl.redirect && isRedirect(code):
		return resp, true, nil
	}

	return nil, false, c.fail(newStatusError(cl.op, code, c.errorBody(resp, cl.stream)))
}

// getJSON runs a call and decodes its success body into env.
func (c *Client) getJSON(ctx context.Context, cl *call, env envelope) (found bool, err error) {
	resp, found, err := c.do(ctx, cl)
	if err != nil || !found {
		return found, err
	}

	if err := c.decode(cl.op, resp.Bytes(), env); err != nil {
		return false, err
	}
	return true, nil
}

// boolean runs a mutation answered by {"boolean": <bool>}. An empty body counts as true.
func (c *Client) boolean(ctx context.Context, cl *call) (bool, error) {
	resp, _, err := c.do(ctx, cl)
	if err != nil {
		return false, err
	}

	body := resp.Bytes()
	if len(strings.TrimSpace(string(body))) == 0 {
		return true, nil
	}

	var env booleanEnvelope
	if err := c.decode(cl.op, body, &env); err != nil {
		return false, err
	}
	return *env.Boolean, nil
}

func (c *Client) decode(op string, body []byte, env envelope) error {
	if err := jsonUnmarshal(body, env); err != nil {
		return c.fail(&DecodeError{Op: op, Body: body, Err: err})
	}
	if !env.present() {
		return c.fail(&DecodeError{Op: op, Body: body, Err: errMissingEnvelope})
	}
	return nil
}

// requestError classifies a failed exchange. Cancellation is reported as ErrCanceled.
func (c *Client) requestError(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %s: %w", ErrCanceled, op, ctxErr)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %w", ErrCanceled, op, err)
	}
	return fmt.Errorf("webhdfs: %s: http request: %w", op, err)
}

func (c *Client) fail(err error) error {
	c.stats.failed(err)
	return err
}

func (c *Client) errorBody(resp *req.Response, stream bool) []byte {
	if !stream {
		return resp.Bytes()
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return body
}

func (c *Client) discard(resp *req.Response, stream bool) {
	if stream && resp.Body != nil {
		resp.Body.Close()
	}
}

func isRedirect(code int) bool {
	switch code {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}
