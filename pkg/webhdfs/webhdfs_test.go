package webhdfs

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/openmined/webhdfs/internal/fakehdfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPath = "/path/to/file"

// newFakeClient starts a fake namenode below /plz, the way a gateway would mount it.
func newFakeClient(t *testing.T, opts ...fakehdfs.Option) (*Client, *fakehdfs.Server) {
	t.Helper()

	fake := fakehdfs.New(append([]fakehdfs.Option{fakehdfs.WithPrefix("/plz")}, opts...)...)
	srv := httptest.NewServer(fake.Handler())
	t.Cleanup(srv.Close)

	client, err := New(&Config{BaseURL: srv.URL + "/plz/", User: testUser})
	require.NoError(t, err)
	t.Cleanup(client.Close)

	return client, fake
}

func TestNew_ValidatesConfig(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrNoBaseURL)

	_, err = New(&Config{BaseURL: "", User: "hdfs"})
	assert.ErrorIs(t, err, ErrNoBaseURL)

	_, err = New(&Config{BaseURL: "ftp://namenode:9870", User: "hdfs"})
	assert.ErrorIs(t, err, ErrInvalidBaseURL)

	_, err = New(&Config{BaseURL: "http://namenode:9870", User: ""})
	assert.ErrorIs(t, err, ErrNoUser)

	client, err := New(&Config{BaseURL: "https://namenode:9871/", User: "hdfs"})
	require.NoError(t, err)
	assert.Equal(t, "hdfs", client.User())
}

func TestRequestURL_CanonicalOrder(t *testing.T) {
	client, err := New(&Config{BaseURL: testBaseURL, User: testUser})
	require.NoError(t, err)

	assert.Equal(t,
		"http://test.me/plz/webhdfs/v1/?user.name=hdfs&op=GETHOMEDIRECTORY",
		client.requestURL("/", opGetHomeDirectory, nil))

	assert.Equal(t,
		"http://test.me/plz/webhdfs/v1/path/to/file?user.name=hdfs&op=RENAME&destination=/path/to/file-new",
		client.requestURL(testPath, opRename, []param{{"destination", "/path/to/file-new"}}))

	// spaces in paths and values are escaped, '/' in values is kept
	assert.Equal(t,
		"http://test.me/plz/webhdfs/v1/my%20dir/a?user.name=hdfs&op=RENAME&destination=/my+dir/b%26c",
		client.requestURL("/my dir/a", opRename, []param{{"destination", "/my dir/b&c"}}))
}

func TestMutations_URLAndVerb(t *testing.T) {
	tests := []struct {
		name   string
		call   func(ctx context.Context, c *Client) (bool, error)
		method string
		query  string
	}{
		{
			name:   "SetOwner",
			call:   func(ctx context.Context, c *Client) (bool, error) { return c.SetOwner(ctx, testPath, "123") },
			method: http.MethodPut,
			query:  "user.name=hdfs&op=SETOWNER&owner=123",
		},
		{
			name:   "SetGroup",
			call:   func(ctx context.Context, c *Client) (bool, error) { return c.SetGroup(ctx, testPath, "123") },
			method: http.MethodPut,
			query:  "user.name=hdfs&op=SETOWNER&group=123",
		},
		{
			name:   "SetPermissions",
			call:   func(ctx context.Context, c *Client) (bool, error) { return c.SetPermissions(ctx, testPath, 0o123) },
			method: http.MethodPut,
			query:  "user.name=hdfs&op=SETPERMISSION&permission=123",
		},
		{
			name:   "SetReplicationFactor",
			call:   func(ctx context.Context, c *Client) (bool, error) { return c.SetReplicationFactor(ctx, testPath, 100) },
			method: http.MethodPut,
			query:  "user.name=hdfs&op=SETREPLICATION&replication=100",
		},
		{
			name: "SetAccessTime",
			call: func(ctx context.Context, c *Client) (bool, error) {
				return c.SetAccessTime(ctx, testPath, time.UnixMilli(123))
			},
			method: http.MethodPut,
			query:  "user.name=hdfs&op=SETTIMES&accesstime=123",
		},
		{
			name: "SetModificationTime",
			call: func(ctx context.Context, c *Client) (bool, error) {
				return c.SetModificationTime(ctx, testPath, time.UnixMilli(123))
			},
			method: http.MethodPut,
			query:  "user.name=hdfs&op=SETTIMES&modificationtime=123",
		},
		{
			name: "RenameDirectory",
			call: func(ctx context.Context, c *Client) (bool, error) {
				return c.RenameDirectory(ctx, testPath, testPath+"-new")
			},
			method: http.MethodPut,
			query:  "user.name=hdfs&op=RENAME&destination=/path/to/file-new",
		},
		{
			name:   "DeleteDirectory",
			call:   func(ctx context.Context, c *Client) (bool, error) { return c.DeleteDirectory(ctx, testPath, false) },
			method: http.MethodDelete,
			query:  "user.name=hdfs&op=DELETE",
		},
		{
			name:   "DeleteDirectory recursive",
			call:   func(ctx context.Context, c *Client) (bool, error) { return c.DeleteDirectory(ctx, testPath, true) },
			method: http.MethodDelete,
			query:  "user.name=hdfs&op=DELETE&recursive=true",
		},
		{
			name:   "CreateDirectory",
			call:   func(ctx context.Context, c *Client) (bool, error) { return c.CreateDirectory(ctx, "/path/to/dir") },
			method: http.MethodPut,
			query:  "user.name=hdfs&op=MKDIRS",
		},
		{
			name: "CreateDirectory with permission",
			call: func(ctx context.Context, c *Client) (bool, error) {
				return c.CreateDirectory(ctx, "/path/to/dir", WithPermission(0o700))
			},
			method: http.MethodPut,
			query:  "user.name=hdfs&op=MKDIRS&permission=700",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, fake := newFakeClient(t)
			fake.WriteFile(testPath, []byte("hello"))
			fake.Reset()

			ok, err := tt.call(context.Background(), client)
			require.NoError(t, err)
			assert.True(t, ok)

			reqs := fake.Requests()
			require.Len(t, reqs, 1, "absolute paths must not look up the home directory")
			assert.Equal(t, tt.method, reqs[0].Method)
			assert.Equal(t, tt.query, reqs[0].RawQuery)
		})
	}
}

func TestMutations_ApplyOnServer(t *testing.T) {
	ctx := context.Background()
	client, fake := newFakeClient(t)
	fake.WriteFile(testPath, []byte("hello"))

	_, err := client.SetOwner(ctx, testPath, "alice")
	require.NoError(t, err)
	_, err = client.SetGroup(ctx, testPath, "analysts")
	require.NoError(t, err)
	_, err = client.SetPermissions(ctx, testPath, 0o640)
	require.NoError(t, err)
	_, err = client.SetReplicationFactor(ctx, testPath, 2)
	require.NoError(t, err)
	_, err = client.SetAccessTime(ctx, testPath, time.UnixMilli(1000))
	require.NoError(t, err)
	_, err = client.SetModificationTime(ctx, testPath, time.UnixMilli(2000))
	require.NoError(t, err)

	entry, ok := fake.Stat(testPath)
	require.True(t, ok)
	assert.Equal(t, "alice", entry.Owner)
	assert.Equal(t, "analysts", entry.Group)
	assert.Equal(t, uint32(0o640), entry.Permission)
	assert.Equal(t, 2, entry.Replication)
	assert.Equal(t, int64(1000), entry.AccessTime)
	assert.Equal(t, int64(2000), entry.ModificationTime)

	ok, err = client.RenameDirectory(ctx, testPath, "/moved")
	require.NoError(t, err)
	assert.True(t, ok)
	_, ok = fake.Stat("/moved")
	assert.True(t, ok)

	// renaming something that is gone is a false ack, not an error
	ok, err = client.RenameDirectory(ctx, testPath, "/again")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMutations_NotFoundIsAnError(t *testing.T) {
	client, _ := newFakeClient(t)

	ok, err := client.SetOwner(context.Background(), "/missing", "alice")
	assert.False(t, ok)
	require.ErrorIs(t, err, ErrNotFound)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	assert.Equal(t, opSetOwner, statusErr.Op)
	require.NotNil(t, statusErr.Remote)
	assert.Equal(t, "FileNotFoundException", statusErr.Remote.Exception)
	assert.Contains(t, err.Error(), "File does not exist: /missing")
}

func TestDeleteDirectory_NonEmpty(t *testing.T) {
	ctx := context.Background()
	client, fake := newFakeClient(t)
	fake.WriteFile("/data/a.csv", []byte("a"))

	_, err := client.DeleteDirectory(ctx, "/data", false)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusForbidden, statusErr.StatusCode)
	assert.Equal(t, "PathIsNotEmptyDirectoryException", statusErr.Remote.Exception)

	ok, err := client.DeleteDirectory(ctx, "/data", true)
	require.NoError(t, err)
	assert.True(t, ok)
	_, exists := fake.Stat("/data/a.csv")
	assert.False(t, exists)

	ok, err = client.DeleteDirectory(ctx, "/data", true)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestArgumentValidation_SendsNothing(t *testing.T) {
	ctx := context.Background()
	client, rt := newStubClient(t, nil)

	_, err := client.SetReplicationFactor(ctx, testPath, 0)
	assert.ErrorIs(t, err, ErrInvalidReplication)

	_, _, err = client.GetFileStatus(ctx, "")
	assert.ErrorIs(t, err, ErrEmptyPath)

	err = client.CreateFile(ctx, nil, testPath, WithReplication(-1))
	assert.ErrorIs(t, err, ErrInvalidReplication)

	assert.Empty(t, rt.urls())
}

func TestBoolean_FalseAck(t *testing.T) {
	client, _ := newStubClient(t, map[string]stubResponse{
		opMkdirs: jsonResponse(`{"boolean": false}`),
	})

	ok, err := client.CreateDirectory(context.Background(), "/exists-as-file")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCanceledContext(t *testing.T) {
	client, fake := newFakeClient(t)
	fake.WriteFile(testPath, []byte("x"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := client.GetFileStatus(ctx, testPath)
	require.ErrorIs(t, err, ErrCanceled)
	assert.ErrorIs(t, err, context.Canceled)

	var statusErr *StatusError
	assert.False(t, errors.As(err, &statusErr))
}

func TestDeadlineWhileWaiting(t *testing.T) {
	client, fake := newFakeClient(t)
	fake.WriteFile(testPath, []byte("x"))
	fake.Delay(opGetFileStatus, 5*time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, _, err := client.GetFileStatus(ctx, testPath)
	require.ErrorIs(t, err, ErrCanceled)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 4*time.Second)
}

func TestServerError_CarriesStatusAndBody(t *testing.T) {
	client, fake := newFakeClient(t)
	fake.Fail(opGetContentSummary, http.StatusInternalServerError)

	_, _, err := client.GetContentSummary(context.Background(), "/")
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
	assert.Contains(t, string(statusErr.Body), "injected failure")
	assert.NotErrorIs(t, err, ErrNotFound)

	assert.Contains(t, client.Stats().LastError, "injected failure")
}

func TestServerError_PlainBody(t *testing.T) {
	client, _ := newStubClient(t, map[string]stubResponse{
		opGetFileStatus: {status: http.StatusBadGateway, body: "upstream down\n"},
	})

	_, _, err := client.GetFileStatus(context.Background(), testPath)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Nil(t, statusErr.Remote)
	assert.Equal(t, "webhdfs: GETFILESTATUS: 502 upstream down", err.Error())
}

func TestTransportIsInjectable(t *testing.T) {
	client, rt := newStubClient(t, map[string]stubResponse{
		opSetOwner: jsonResponse(boolResult),
	})

	ok, err := client.SetOwner(context.Background(), "relative/file", "bob")
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, []string{
		"http://test.me/plz/webhdfs/v1/?user.name=hdfs&op=GETHOMEDIRECTORY",
		"http://test.me/plz/webhdfs/v1/user/hdfs/relative/file?user.name=hdfs&op=SETOWNER&owner=bob",
	}, rt.urls())

	last, _ := rt.last()
	assert.Equal(t, http.MethodPut, last.Method)
}

// keep the fake's parallel use honest under -race
func TestClient_ConcurrentMixedCalls(t *testing.T) {
	client, fake := newFakeClient(t)
	fake.WriteFile("/data/a", []byte("a"))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, found, err := client.GetFileStatus(context.Background(), "/data/a")
			assert.NoError(t, err)
			assert.True(t, found)
		}()
		go func() {
			defer wg.Done()
			_, err := client.SetOwner(context.Background(), "/data/a", "alice")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
}
