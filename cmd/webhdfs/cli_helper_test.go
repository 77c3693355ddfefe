package main

import (
	"bytes"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/openmined/webhdfs/internal/fakehdfs"
	"github.com/stretchr/testify/require"
)

// testEnv is a fake namenode plus a config file pointing at it.
type testEnv struct {
	fake   *fakehdfs.Server
	url    string
	config string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	fake := fakehdfs.New()
	srv := httptest.NewServer(fake.Handler())
	t.Cleanup(srv.Close)

	config := filepath.Join(t.TempDir(), "config.json")
	body := `{"url": "` + srv.URL + `", "user": "hdfs"}`
	require.NoError(t, os.WriteFile(config, []byte(body), 0o600))

	return &testEnv{fake: fake, url: srv.URL, config: config}
}

// run executes one CLI invocation and returns stdout and stderr.
func (e *testEnv) run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()

	cmd := newRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--config", e.config}, args...))

	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func (e *testEnv) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	stdout, stderr, err := e.run(t, "", args...)
	require.NoError(t, err, "stderr: %s", stderr)
	return stdout
}
