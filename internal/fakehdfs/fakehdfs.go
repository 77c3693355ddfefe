// Package fakehdfs is an in-memory WebHDFS namenode and datanode.
//
// It speaks enough of the REST protocol for the client and CLI tests:
// JSON envelopes, RemoteException errors, the 307 namenode to datanode
// redirect for OPEN, CREATE and APPEND. Every request is recorded so tests
// can assert on methods and raw query strings.
package fakehdfs

import (
	"log/slog"
	"net/http"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	slogGin "github.com/samber/slog-gin"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
)

const (
	namenodePrefix = "/webhdfs/v1"
	datanodePrefix = "/datanode/v1"

	DefaultHome        = "/user/hdfs"
	DefaultUser        = "hdfs"
	defaultBlockSize   = 128 * 1024 * 1024
	defaultReplication = 3
	defaultFilePerm    = 0o644
	defaultDirPerm     = 0o755
)

// Request is one recorded HTTP request.
type Request struct {
	ID       string
	Method   string
	Path     string // filesystem path, without the REST prefix
	RawQuery string
	Op       string
	Datanode bool
	Body     []byte
}

// Entry is a copy of a stored file or directory.
type Entry struct {
	Dir              bool
	Data             []byte
	Owner            string
	Group            string
	Permission       uint32
	Replication      int
	BlockSize        int64
	AccessTime       int64
	ModificationTime int64
}

type node struct {
	Entry
	id int64
}

// Server is the fake. The zero value is not usable, see New.
type Server struct {
	mu       sync.Mutex
	nodes    map[string]*node
	requests []Request
	failures map[string]int
	delays   map[string]time.Duration
	nextID   int64

	home   string
	prefix string
	logger *slog.Logger
	engine *gin.Engine

	gzip   bool
	cors   bool
	direct bool
	rate   *limiter.Rate
}

type Option func(*Server)

// WithHome sets the directory GETHOMEDIRECTORY answers with.
func WithHome(home string) Option {
	return func(s *Server) { s.home = home }
}

// WithPrefix mounts both REST roots below prefix, e.g. "/gateway".
func WithPrefix(prefix string) Option {
	return func(s *Server) { s.prefix = strings.TrimRight(prefix, "/") }
}

// WithLogger logs every request through slog-gin.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithGzip compresses JSON answers for clients that accept it. Datanode reads stay raw.
func WithGzip() Option {
	return func(s *Server) { s.gzip = true }
}

// WithCORS allows browser clients from any origin.
func WithCORS() Option {
	return func(s *Server) { s.cors = true }
}

// WithDirectWrites makes the namenode store CREATE and APPEND payloads itself
// instead of redirecting to the datanode, as HttpFS gateways do.
func WithDirectWrites() Option {
	return func(s *Server) { s.direct = true }
}

// WithRateLimit answers 429 RetriableException once a client exceeds rate.
func WithRateLimit(rate limiter.Rate) Option {
	return func(s *Server) { s.rate = &rate }
}

func New(opts ...Option) *Server {
	s := &Server{
		nodes:    make(map[string]*node),
		failures: make(map[string]int),
		delays:   make(map[string]time.Duration),
		home:     DefaultHome,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.nodes["/"] = s.newNode(true, DefaultUser, defaultDirPerm)
	s.mkdirAll(s.home, DefaultUser, defaultDirPerm)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	if s.logger != nil {
		r.Use(slogGin.NewWithConfig(s.logger, slogGin.Config{
			DefaultLevel:     slog.LevelDebug,
			ClientErrorLevel: slog.LevelWarn,
			ServerErrorLevel: slog.LevelError,
		}))
	}
	r.Use(gin.Recovery())
	r.Use(requestID)
	if s.cors {
		r.Use(cors.Default())
	}
	if s.rate != nil {
		r.Use(rateLimiter(*s.rate))
	}
	if s.gzip {
		r.Use(gzip.Gzip(gzip.BestSpeed, gzip.WithExcludedPathsRegexs([]string{datanodePrefix})))
	}

	g := r.Group(s.prefix)
	g.Any(namenodePrefix+"/*path", s.namenode)
	g.Any(datanodePrefix+"/*path", s.datanode)
	s.engine = r

	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Home returns the home directory the fake answers with.
func (s *Server) Home() string {
	return s.home
}

// ===================================================================================================

// Requests returns a copy of everything recorded since the last Reset.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// Calls counts the namenode requests for op.
func (s *Server) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, r := range s.requests {
		if !r.Datanode && r.Op == op {
			n++
		}
	}
	return n
}

// Reset forgets recorded requests and injected failures and delays. Stored files stay.
func (s *Server) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = nil
	clear(s.failures)
	clear(s.delays)
}

// Fail makes every namenode request for op answer with status.
func (s *Server) Fail(op string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[nnKey(op)] = status
}

// FailDatanode makes every datanode request for op answer with status.
func (s *Server) FailDatanode(op string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[dnKey(op)] = status
}

// Delay holds namenode requests for op until d passes or the client goes away.
func (s *Server) Delay(op string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays[nnKey(op)] = d
}

// ===================================================================================================

// WriteFile stores data at p, creating parents.
func (s *Server) WriteFile(p string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p = cleanPath(p)
	s.mkdirAll(path.Dir(p), DefaultUser, defaultDirPerm)
	n := s.newNode(false, DefaultUser, defaultFilePerm)
	n.Data = append([]byte(nil), data...)
	s.nodes[p] = n
}

// Mkdir creates p and its parents.
func (s *Server) Mkdir(p string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mkdirAll(cleanPath(p), DefaultUser, defaultDirPerm)
}

// Stat returns a copy of the entry at p.
func (s *Server) Stat(p string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[cleanPath(p)]
	if !ok {
		return Entry{}, false
	}
	e := n.Entry
	e.Data = append([]byte(nil), n.Data...)
	return e, true
}

// ===================================================================================================

func (s *Server) newNode(dir bool, owner string, perm uint32) *node {
	s.nextID++
	now := time.Now().UnixMilli()
	n := &node{
		id: 16384 + s.nextID,
		Entry: Entry{
			Dir:              dir,
			Owner:            owner,
			Group:            "supergroup",
			Permission:       perm,
			ModificationTime: now,
		},
	}
	if !dir {
		n.Replication = defaultReplication
		n.BlockSize = defaultBlockSize
		n.AccessTime = now
	}
	return n
}

// mkdirAll creates p and missing parents. It fails when a file is in the way.
func (s *Server) mkdirAll(p string, owner string, perm uint32) bool {
	if n, ok := s.nodes[p]; ok {
		return n.Dir
	}
	if p != "/" && !s.mkdirAll(path.Dir(p), owner, defaultDirPerm) {
		return false
	}
	s.nodes[p] = s.newNode(true, owner, perm)
	return true
}

// children returns the sorted names directly below directory p.
func (s *Server) children(p string) []string {
	prefix := p + "/"
	if p == "/" {
		prefix = "/"
	}

	var names []string
	for key := range s.nodes {
		if key == p || !strings.HasPrefix(key, prefix) {
			continue
		}
		if rest := key[len(prefix):]; !strings.Contains(rest, "/") {
			names = append(names, rest)
		}
	}
	sort.Strings(names)
	return names
}

// subtree returns p and every path below it.
func (s *Server) subtree(p string) []string {
	prefix := p + "/"
	if p == "/" {
		prefix = "/"
	}

	keys := []string{p}
	for key := range s.nodes {
		if key != p && strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys
}

func requestID(c *gin.Context) {
	id := uuid.New().String()
	c.Set("request_id", id)
	c.Header("X-Request-Id", id)
	c.Next()
}

func rateLimiter(rate limiter.Rate) gin.HandlerFunc {
	return mgin.NewMiddleware(
		limiter.New(memory.NewStore(), rate),
		mgin.WithLimitReachedHandler(func(c *gin.Context) {
			remoteError(c, http.StatusTooManyRequests, "RetriableException", "rate limit exceeded")
		}),
		mgin.WithErrorHandler(func(c *gin.Context, err error) {
			remoteError(c, http.StatusInternalServerError, "IOException", err.Error())
		}),
	)
}

func cleanPath(p string) string {
	if p == "" {
		return "/"
	}
	return path.Clean("/" + p)
}

func nnKey(op string) string { return "nn:" + strings.ToUpper(op) }
func dnKey(op string) string { return "dn:" + strings.ToUpper(op) }
