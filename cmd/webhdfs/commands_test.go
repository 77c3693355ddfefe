package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/openmined/webhdfs/internal/fakehdfs"
	"github.com/openmined/webhdfs/internal/version"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestHomeCommand(t *testing.T) {
	env := newTestEnv(t)

	assert.Equal(t, "/user/hdfs\n", env.mustRun(t, "home"))

	var out map[string]string
	require.NoError(t, json.Unmarshal([]byte(env.mustRun(t, "home", "-o", "json")), &out))
	assert.Equal(t, "/user/hdfs", out["Path"])
}

func TestPutAndCat(t *testing.T) {
	env := newTestEnv(t)

	local := filepath.Join(t.TempDir(), "hello.txt")
	require.NoError(t, os.WriteFile(local, []byte("hello webhdfs"), 0o600))

	env.mustRun(t, "put", "--replication", "2", "--permission", "640", local, "docs/hello.txt")

	entry, ok := env.fake.Stat("/user/hdfs/docs/hello.txt")
	require.True(t, ok)
	assert.Equal(t, "hello webhdfs", string(entry.Data))
	assert.Equal(t, 2, entry.Replication)
	assert.Equal(t, uint32(0o640), entry.Permission)

	assert.Equal(t, "hello webhdfs", env.mustRun(t, "cat", "docs/hello.txt"))
	assert.Equal(t, "webhdfs", env.mustRun(t, "cat", "--offset", "6", "/user/hdfs/docs/hello.txt"))

	_, _, err := env.run(t, "", "put", local, "docs/hello.txt")
	assert.ErrorContains(t, err, "FileAlreadyExistsException")
	env.mustRun(t, "put", "-f", local, "docs/hello.txt")
}

func TestPutStdinAndAppend(t *testing.T) {
	env := newTestEnv(t)

	_, stderr, err := env.run(t, "first ", "put", "-", "/log.txt")
	require.NoError(t, err, stderr)
	_, stderr, err = env.run(t, "second", "append", "-", "/log.txt")
	require.NoError(t, err, stderr)

	entry, _ := env.fake.Stat("/log.txt")
	assert.Equal(t, "first second", string(entry.Data))
}

func TestPutDirectory(t *testing.T) {
	env := newTestEnv(t)

	dir := t.TempDir()
	write := func(rel, data string) {
		p := filepath.Join(dir, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(data), 0o600))
	}
	write("a.csv", "a")
	write("nested/b.csv", "bb")
	write("nested/skip.tmp", "x")
	write("__pycache__/mod.pyc", "x")
	write(".hdfsignore", "*.tmp\n")

	env.mustRun(t, "put", "-p", "2", dir, "/import")

	for p, want := range map[string]string{"/import/a.csv": "a", "/import/nested/b.csv": "bb"} {
		entry, ok := env.fake.Stat(p)
		require.True(t, ok, p)
		assert.Equal(t, want, string(entry.Data))
	}
	for _, p := range []string{"/import/nested/skip.tmp", "/import/__pycache__", "/import/.hdfsignore"} {
		_, ok := env.fake.Stat(p)
		assert.False(t, ok, p)
	}
}

func TestStatCommand(t *testing.T) {
	env := newTestEnv(t)
	env.fake.WriteFile("/data/a", []byte("abc"))
	env.fake.WriteFile("/data/b", []byte("de"))

	var entries []entry
	out := env.mustRun(t, "stat", "-o", "json", "/data/a", "/data/b", "/data/a")
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, "/data/a", entries[0].Path)
	assert.Equal(t, int64(3), entries[0].Length)
	assert.Equal(t, "/data/b", entries[1].Path)
	assert.Equal(t, 2, env.fake.Calls("GETFILESTATUS"))

	stdout, _, err := env.run(t, "", "stat", "/data/a", "/nope")
	assert.ErrorContains(t, err, "/nope")
	assert.Contains(t, stdout, "/data/a")
	assert.Contains(t, stdout, "-rw-r--r--")
}

func TestLsCommand(t *testing.T) {
	env := newTestEnv(t)
	env.fake.WriteFile("/user/hdfs/x.csv", []byte("1"))
	env.fake.WriteFile("/user/hdfs/y.json", []byte("2"))
	env.fake.Mkdir("/user/hdfs/sub")

	var entries []entry
	require.NoError(t, yaml.Unmarshal([]byte(env.mustRun(t, "ls", "-o", "yaml")), &entries))
	require.Len(t, entries, 3)
	assert.Equal(t, "sub", entries[0].PathSuffix)
	assert.Equal(t, "x.csv", entries[1].PathSuffix)

	out := env.mustRun(t, "ls", "--match", "*.csv", "/user/hdfs")
	assert.Contains(t, out, "/user/hdfs/x.csv")
	assert.NotContains(t, out, "y.json")
	assert.NotContains(t, out, "sub")

	_, _, err := env.run(t, "", "ls", "/missing")
	assert.ErrorContains(t, err, "no such file or directory")

	_, _, err = env.run(t, "", "ls", "--match", "[", "/user/hdfs")
	assert.ErrorContains(t, err, "invalid --match pattern")
}

func TestDuAndChecksum(t *testing.T) {
	env := newTestEnv(t)
	env.fake.WriteFile("/data/a", []byte("abc"))

	var summary map[string]any
	require.NoError(t, json.Unmarshal([]byte(env.mustRun(t, "du", "-o", "json", "/data")), &summary))
	assert.Equal(t, "/data", summary["path"])
	assert.EqualValues(t, 1, summary["fileCount"])
	assert.EqualValues(t, 3, summary["length"])

	out := env.mustRun(t, "checksum", "/data/a")
	assert.Contains(t, out, "MD5-of-0MD5-of-512CRC32C")

	_, _, err := env.run(t, "", "checksum", "/data/none")
	assert.ErrorContains(t, err, "no such file")
}

func TestMutatingCommands(t *testing.T) {
	env := newTestEnv(t)

	env.mustRun(t, "mkdir", "--permission", "750", "/a/b", "/c")
	entry, ok := env.fake.Stat("/a/b")
	require.True(t, ok)
	assert.True(t, entry.Dir)
	assert.Equal(t, uint32(0o750), entry.Permission)

	env.fake.WriteFile("/a/b/f", []byte("f"))
	env.mustRun(t, "chown", "alice", "/a/b/f")
	env.mustRun(t, "chgrp", "analysts", "/a/b/f")
	env.mustRun(t, "chmod", "600", "/a/b/f")
	env.mustRun(t, "setrep", "5", "/a/b/f")
	env.mustRun(t, "touch", "--mtime", "2015-04-23T08:16:17Z", "/a/b/f")

	entry, _ = env.fake.Stat("/a/b/f")
	assert.Equal(t, "alice", entry.Owner)
	assert.Equal(t, "analysts", entry.Group)
	assert.Equal(t, uint32(0o600), entry.Permission)
	assert.Equal(t, 5, entry.Replication)
	assert.Equal(t, int64(1429776977000), entry.ModificationTime)

	_, _, err := env.run(t, "", "setrep", "2", "/a/b")
	assert.ErrorContains(t, err, "not applied")

	env.mustRun(t, "mv", "/a/b/f", "/c/g")
	_, ok = env.fake.Stat("/c/g")
	assert.True(t, ok)

	_, _, err = env.run(t, "", "rm", "/a")
	assert.ErrorContains(t, err, "PathIsNotEmptyDirectoryException")
	env.mustRun(t, "rm", "-r", "/a")
	_, ok = env.fake.Stat("/a")
	assert.False(t, ok)

	_, _, err = env.run(t, "", "rm", "/a")
	assert.ErrorContains(t, err, "no such file or directory")
}

func TestTouchCreatesFile(t *testing.T) {
	env := newTestEnv(t)

	env.mustRun(t, "touch", "new.txt")
	entry, ok := env.fake.Stat("/user/hdfs/new.txt")
	require.True(t, ok)
	assert.Empty(t, entry.Data)

	_, _, err := env.run(t, "", "touch", "--atime", "yesterday", "new.txt")
	assert.ErrorContains(t, err, "invalid time")
}

func TestVerboseLogsRequests(t *testing.T) {
	env := newTestEnv(t)

	_, stderr, err := env.run(t, "", "-v", "home")
	require.NoError(t, err)
	assert.Contains(t, stderr, "GETHOMEDIRECTORY")
}

func TestVersionCommand(t *testing.T) {
	env := newTestEnv(t)
	assert.Equal(t, version.Detailed()+"\n", env.mustRun(t, "version"))
}

func TestServeFake(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- serveFake(ctx, ln, fakehdfs.New(fakehdfs.WithHome("/home/dev")))
	}()

	resp, err := http.Get("http://" + ln.Addr().String() + "/webhdfs/v1/?user.name=dev&op=GETHOMEDIRECTORY")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("devserver did not stop")
	}
}
