package webhdfs

import (
	"context"
	"fmt"
	"net/http"
	"path"
	"strings"
)

// GetHomeDirectory asks the namenode for the user's home directory.
// The first answer is also cached for resolving relative paths.
func (c *Client) GetHomeDirectory(ctx context.Context) (string, error) {
	var env pathEnvelope
	if _, err := c.getJSON(ctx, &call{op: opGetHomeDirectory, method: http.MethodGet, path: "/"}, &env); err != nil {
		return "", err
	}

	home := *env.Path
	c.home.CompareAndSwap(nil, &home)
	return home, nil
}

// homeDirectory returns the cached home directory, looking it up once.
// Concurrent first callers share a single lookup; a failed lookup is not cached.
// The shared lookup is detached from any one caller's cancellation; each caller
// stops waiting when its own ctx is done.
func (c *Client) homeDirectory(ctx context.Context) (string, error) {
	if home := c.home.Load(); home != nil {
		return *home, nil
	}

	lookup := context.WithoutCancel(ctx)
	ch := c.homeGroup.DoChan(opGetHomeDirectory, func() (any, error) {
		if home := c.home.Load(); home != nil {
			return *home, nil
		}
		if _, err := c.GetHomeDirectory(lookup); err != nil {
			return "", err
		}
		return *c.home.Load(), nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %s: %w", ErrCanceled, opGetHomeDirectory, ctx.Err())
	}
}

// resolve makes p absolute. Relative paths are joined onto the home directory.
func (c *Client) resolve(ctx context.Context, p string) (string, error) {
	if p == "" {
		return "", ErrEmptyPath
	}
	if strings.HasPrefix(p, "/") {
		return p, nil
	}

	home, err := c.homeDirectory(ctx)
	if err != nil {
		return "", err
	}
	return path.Join(home, p), nil
}
