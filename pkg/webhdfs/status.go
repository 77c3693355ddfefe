package webhdfs

import (
	"context"
	"net/http"
)

// GetFileStatus returns the status of p. found is false when p does not exist.
func (c *Client) GetFileStatus(ctx context.Context, p string) (status *FileStatus, found bool, err error) {
	var env fileStatusEnvelope
	found, err = c.getJSON(ctx, &call{op: opGetFileStatus, method: http.MethodGet, path: p, lookup: true}, &env)
	if err != nil || !found {
		return nil, found, err
	}
	return env.FileStatus, true, nil
}

// GetDirectoryStatus lists the entries of directory p. Listing a file yields
// its own status. found is false when p does not exist.
func (c *Client) GetDirectoryStatus(ctx context.Context, p string) (statuses []FileStatus, found bool, err error) {
	var env fileStatusesEnvelope
	found, err = c.getJSON(ctx, &call{op: opListStatus, method: http.MethodGet, path: p, lookup: true}, &env)
	if err != nil || !found {
		return nil, found, err
	}
	return env.FileStatuses.FileStatus, true, nil
}

// GetContentSummary returns the aggregate counts of the tree rooted at p.
func (c *Client) GetContentSummary(ctx context.Context, p string) (summary *ContentSummary, found bool, err error) {
	var env contentSummaryEnvelope
	found, err = c.getJSON(ctx, &call{op: opGetContentSummary, method: http.MethodGet, path: p, lookup: true}, &env)
	if err != nil || !found {
		return nil, found, err
	}
	return env.ContentSummary, true, nil
}

// GetFileChecksum returns the checksum of file p.
func (c *Client) GetFileChecksum(ctx context.Context, p string) (checksum *FileChecksum, found bool, err error) {
	var env fileChecksumEnvelope
	found, err = c.getJSON(ctx, &call{op: opGetFileChecksum, method: http.MethodGet, path: p, lookup: true}, &env)
	if err != nil || !found {
		return nil, found, err
	}
	return env.FileChecksum, true, nil
}
