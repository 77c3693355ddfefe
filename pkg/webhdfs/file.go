package webhdfs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"strconv"
)

// CreateOption tunes CREATE and MKDIRS. MKDIRS only honours WithPermission.
type CreateOption func(*createOptions)

type createOptions struct {
	overwrite   *bool
	blockSize   int64
	replication int
	permission  *fs.FileMode
	bufferSize  int
}

// WithOverwrite sets whether CREATE replaces an existing file.
func WithOverwrite(overwrite bool) CreateOption {
	return func(o *createOptions) { o.overwrite = &overwrite }
}

// WithBlockSize sets the block size in bytes of a new file.
func WithBlockSize(n int64) CreateOption {
	return func(o *createOptions) { o.blockSize = n }
}

// WithReplication sets the replication factor of a new file.
func WithReplication(n int) CreateOption {
	return func(o *createOptions) { o.replication = n }
}

// WithPermission sets the permission of a new file or directory.
func WithPermission(perm fs.FileMode) CreateOption {
	return func(o *createOptions) { o.permission = &perm }
}

// WithBufferSize sets the buffer size the cluster uses while writing.
func WithBufferSize(n int) CreateOption {
	return func(o *createOptions) { o.bufferSize = n }
}

// params renders the options in canonical order:
// overwrite, blocksize, replication, permission, buffersize.
func (o *createOptions) params() ([]param, error) {
	var params []param
	if o.overwrite != nil {
		params = append(params, param{"overwrite", strconv.FormatBool(*o.overwrite)})
	}
	if o.blockSize > 0 {
		params = append(params, param{"blocksize", strconv.FormatInt(o.blockSize, 10)})
	}
	if o.replication < 0 {
		return nil, ErrInvalidReplication
	}
	if o.replication > 0 {
		params = append(params, param{"replication", strconv.Itoa(o.replication)})
	}
	if o.permission != nil {
		params = append(params, param{"permission", formatPermission(*o.permission)})
	}
	if o.bufferSize > 0 {
		params = append(params, param{"buffersize", strconv.Itoa(o.bufferSize)})
	}
	return params, nil
}

// OpenOption tunes OPEN.
type OpenOption func(*openOptions)

type openOptions struct {
	offset     int64
	length     int64
	bufferSize int
}

// WithOffset starts reading at byte n.
func WithOffset(n int64) OpenOption {
	return func(o *openOptions) { o.offset = n }
}

// WithLength reads at most n bytes.
func WithLength(n int64) OpenOption {
	return func(o *openOptions) { o.length = n }
}

// WithReadBufferSize sets the buffer size the cluster uses while reading.
func WithReadBufferSize(n int) OpenOption {
	return func(o *openOptions) { o.bufferSize = n }
}

// params renders the options in canonical order: offset, length, buffersize.
func (o *openOptions) params() []param {
	var params []param
	if o.offset > 0 {
		params = append(params, param{"offset", strconv.FormatInt(o.offset, 10)})
	}
	if o.length > 0 {
		params = append(params, param{"length", strconv.FormatInt(o.length, 10)})
	}
	if o.bufferSize > 0 {
		params = append(params, param{"buffersize", strconv.Itoa(o.bufferSize)})
	}
	return params
}

// ===================================================================================================

// OpenFile opens p for reading. The namenode redirect to a datanode is followed.
// found is false when p does not exist. The caller must close the returned reader.
func (c *Client) OpenFile(ctx context.Context, p string, opts ...OpenOption) (rc io.ReadCloser, found bool, err error) {
	var o openOptions
	for _, opt := range opts {
		opt(&o)
	}

	nn := &call{op: opOpen, method: http.MethodGet, path: p, params: o.params(), lookup: true, redirect: true, stream: true}
	resp, found, err := c.do(ctx, nn)
	if err != nil || !found {
		return nil, found, err
	}

	if isRedirect(resp.GetStatusCode()) {
		location := resp.Header.Get("Location")
		resp.Body.Close()
		if location == "" {
			return nil, false, c.fail(fmt.Errorf("%w: %s: empty location", ErrNoRedirect, opOpen))
		}

		c.stats.request()
		resp, err = c.client.R().
			SetContext(ctx).
			DisableAutoReadResponse().
			Get(location)
		if err != nil {
			return nil, false, c.fail(c.requestError(ctx, opOpen, err))
		}

		code := resp.GetStatusCode()
		c.logger.Debug("datanode request", "op", opOpen, "method", http.MethodGet, "status", code)
		if code == http.StatusNotFound {
			resp.Body.Close()
			return nil, false, nil
		}
		if !resp.IsSuccessState() {
			return nil, false, c.fail(newStatusError(opOpen, code, c.errorBody(resp, true)))
		}
	}

	return &countingBody{ReadCloser: resp.Body, stats: c.stats}, true, nil
}

// CreateFile writes the content of r to a new file at p. A nil r creates an empty file.
func (c *Client) CreateFile(ctx context.Context, r io.Reader, p string, opts ...CreateOption) error {
	var o createOptions
	for _, opt := range opts {
		opt(&o)
	}

	params, err := o.params()
	if err != nil {
		return err
	}

	return c.upload(ctx, &call{op: opCreate, method: http.MethodPut, path: p, params: params, redirect: true}, r)
}

// CreateFileFromPath uploads the local file localPath to p.
func (c *Client) CreateFileFromPath(ctx context.Context, localPath string, p string, opts ...CreateOption) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("webhdfs: %s: open local file: %w", opCreate, err)
	}
	defer f.Close()

	return c.CreateFile(ctx, f, p, opts...)
}

// AppendFile appends the content of r to the existing file p.
func (c *Client) AppendFile(ctx context.Context, r io.Reader, p string) error {
	return c.upload(ctx, &call{op: opAppend, method: http.MethodPost, path: p, redirect: true}, r)
}

// upload sends the payload with the namenode request. A 2xx answer is the
// acknowledgement; a redirect sends the same payload again to the datanode location.
func (c *Client) upload(ctx context.Context, nn *call, r io.Reader) error {
	body, err := newPayload(r)
	if err != nil {
		return c.fail(fmt.Errorf("webhdfs: %s: read payload: %w", nn.op, err))
	}
	if nn.body, err = body.rewind(); err != nil {
		return c.fail(fmt.Errorf("webhdfs: %s: read payload: %w", nn.op, err))
	}

	resp, _, err := c.do(ctx, nn)
	if err != nil {
		return err
	}

	code := resp.GetStatusCode()
	if !isRedirect(code) {
		c.stats.uploaded(body.size)
		return nil
	}

	location := resp.Header.Get("Location")
	if location == "" {
		return c.fail(fmt.Errorf("%w: %s: status %d without location", ErrNoRedirect, nn.op, code))
	}

	data, err := body.rewind()
	if err != nil {
		return c.fail(fmt.Errorf("webhdfs: %s: rewind payload: %w", nn.op, err))
	}

	c.stats.request()
	dn, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/octet-stream").
		SetBody(data).
		Send(nn.method, location)
	if err != nil {
		return c.fail(c.requestError(ctx, nn.op, err))
	}

	c.logger.Debug("datanode request", "op", nn.op, "method", nn.method, "status", dn.GetStatusCode())
	if !dn.IsSuccessState() {
		return c.fail(newStatusError(nn.op, dn.GetStatusCode(), dn.Bytes()))
	}

	c.stats.uploaded(body.size)
	return nil
}

// payload is an upload body that can be sent more than once. Seekable
// readers are rewound in place; anything else is buffered in memory.
type payload struct {
	r     io.ReadSeeker
	start int64
	size  int64
}

func newPayload(r io.Reader) (*payload, error) {
	if r == nil {
		r = bytes.NewReader(nil)
	}

	if rs, ok := r.(io.ReadSeeker); ok {
		if start, err := rs.Seek(0, io.SeekCurrent); err == nil {
			end, err := rs.Seek(0, io.SeekEnd)
			if err != nil {
				return nil, err
			}
			return &payload{r: rs, start: start, size: end - start}, nil
		}
	}

	// pipes and stdin report as seekable but fail on Seek
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return &payload{r: bytes.NewReader(data), size: int64(len(data))}, nil
}

// rewind positions the payload at its start. The returned reader hides any
// Close so the transport cannot close a caller's file between attempts.
func (p *payload) rewind() (io.Reader, error) {
	if _, err := p.r.Seek(p.start, io.SeekStart); err != nil {
		return nil, err
	}
	return struct{ io.Reader }{p.r}, nil
}

