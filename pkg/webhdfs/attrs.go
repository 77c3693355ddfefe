package webhdfs

import (
	"context"
	"io/fs"
	"net/http"
	"strconv"
	"time"
)

// CreateDirectory creates p and any missing parents.
func (c *Client) CreateDirectory(ctx context.Context, p string, opts ...CreateOption) (bool, error) {
	var o createOptions
	for _, opt := range opts {
		opt(&o)
	}

	var params []param
	if o.permission != nil {
		params = append(params, param{"permission", formatPermission(*o.permission)})
	}
	return c.boolean(ctx, &call{op: opMkdirs, method: http.MethodPut, path: p, params: params})
}

// DeleteDirectory deletes p. A non-empty directory needs recursive.
func (c *Client) DeleteDirectory(ctx context.Context, p string, recursive bool) (bool, error) {
	var params []param
	if recursive {
		params = append(params, param{"recursive", "true"})
	}
	return c.boolean(ctx, &call{op: opDelete, method: http.MethodDelete, path: p, params: params})
}

// RenameDirectory moves p to newPath. A relative newPath is resolved like p.
func (c *Client) RenameDirectory(ctx context.Context, p string, newPath string) (bool, error) {
	dst, err := c.resolve(ctx, newPath)
	if err != nil {
		return false, err
	}
	return c.mutate(ctx, opRename, p, param{"destination", dst})
}

// SetOwner changes the owner of p.
func (c *Client) SetOwner(ctx context.Context, p string, owner string) (bool, error) {
	return c.mutate(ctx, opSetOwner, p, param{"owner", owner})
}

// SetGroup changes the group of p.
func (c *Client) SetGroup(ctx context.Context, p string, group string) (bool, error) {
	return c.mutate(ctx, opSetOwner, p, param{"group", group})
}

// SetPermissions sets the permission bits of p, sent in octal.
func (c *Client) SetPermissions(ctx context.Context, p string, perm fs.FileMode) (bool, error) {
	return c.mutate(ctx, opSetPermission, p, param{"permission", formatPermission(perm)})
}

// SetReplicationFactor sets the replication factor of the file p. n must be at least 1.
func (c *Client) SetReplicationFactor(ctx context.Context, p string, n int) (bool, error) {
	if n < 1 {
		return false, ErrInvalidReplication
	}
	return c.mutate(ctx, opSetReplication, p, param{"replication", strconv.Itoa(n)})
}

// SetAccessTime sets the access time of p, sent in milliseconds since the epoch.
func (c *Client) SetAccessTime(ctx context.Context, p string, t time.Time) (bool, error) {
	return c.mutate(ctx, opSetTimes, p, param{"accesstime", formatTime(t)})
}

// SetModificationTime sets the modification time of p, sent in milliseconds since the epoch.
func (c *Client) SetModificationTime(ctx context.Context, p string, t time.Time) (bool, error) {
	return c.mutate(ctx, opSetTimes, p, param{"modificationtime", formatTime(t)})
}

func (c *Client) mutate(ctx context.Context, op string, p string, params ...param) (bool, error) {
	return c.boolean(ctx, &call{op: op, method: http.MethodPut, path: p, params: params})
}

// formatPermission renders perm as WebHDFS octal, e.g. 0o755 -> "755", sticky adds 1000.
func formatPermission(perm fs.FileMode) string {
	bits := uint64(perm.Perm())
	if perm&fs.ModeSticky != 0 {
		bits |= 0o1000
	}
	return strconv.FormatUint(bits, 8)
}

func formatTime(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}
