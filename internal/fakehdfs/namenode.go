package fakehdfs

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// verbs maps every supported operation to the HTTP method it must arrive with.
var verbs = map[string]string{
	"GETFILESTATUS":     http.MethodGet,
	"LISTSTATUS":        http.MethodGet,
	"GETCONTENTSUMMARY": http.MethodGet,
	"GETFILECHECKSUM":   http.MethodGet,
	"GETHOMEDIRECTORY":  http.MethodGet,
	"OPEN":              http.MethodGet,
	"CREATE":            http.MethodPut,
	"MKDIRS":            http.MethodPut,
	"RENAME":            http.MethodPut,
	"SETOWNER":          http.MethodPut,
	"SETPERMISSION":     http.MethodPut,
	"SETREPLICATION":    http.MethodPut,
	"SETTIMES":          http.MethodPut,
	"APPEND":            http.MethodPost,
	"DELETE":            http.MethodDelete,
}

func (s *Server) namenode(c *gin.Context) {
	p := cleanPath(c.Param("path"))
	op := strings.ToUpper(c.Query("op"))

	var body []byte
	if op == "CREATE" || op == "APPEND" {
		var err error
		if body, err = io.ReadAll(c.Request.Body); err != nil {
			remoteError(c, http.StatusBadRequest, "IOException", err.Error())
			return
		}
	}
	s.record(c, p, op, false, body)

	if s.intercept(c, nnKey(op)) {
		return
	}

	if c.Query("user.name") == "" {
		remoteError(c, http.StatusUnauthorized, "SecurityException", "Failed to obtain user group information")
		return
	}

	if verb, ok := verbs[op]; !ok || verb != c.Request.Method {
		remoteError(c, http.StatusBadRequest, "IllegalArgumentException",
			fmt.Sprintf("Invalid value for webhdfs parameter \"op\": %s %s", c.Request.Method, op))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch op {
	case "GETHOMEDIRECTORY":
		c.JSON(http.StatusOK, gin.H{"Path": s.home})
	case "GETFILESTATUS":
		s.getFileStatus(c, p)
	case "LISTSTATUS":
		s.listStatus(c, p)
	case "GETCONTENTSUMMARY":
		s.getContentSummary(c, p)
	case "GETFILECHECKSUM":
		s.getFileChecksum(c, p)
	case "OPEN":
		s.open(c, p)
	case "CREATE":
		s.create(c, p, body)
	case "APPEND":
		s.appendFile(c, p, body)
	case "MKDIRS":
		s.mkdirs(c, p)
	case "DELETE":
		s.deletePath(c, p)
	case "RENAME":
		s.rename(c, p)
	case "SETOWNER":
		s.setOwner(c, p)
	case "SETPERMISSION":
		s.setPermission(c, p)
	case "SETREPLICATION":
		s.setReplication(c, p)
	case "SETTIMES":
		s.setTimes(c, p)
	}
}

func (s *Server) getFileStatus(c *gin.Context, p string) {
	n, ok := s.nodes[p]
	if !ok {
		fileNotFound(c, p)
		return
	}
	c.JSON(http.StatusOK, gin.H{"FileStatus": s.fileStatus(p, n, "")})
}

func (s *Server) listStatus(c *gin.Context, p string) {
	n, ok := s.nodes[p]
	if !ok {
		fileNotFound(c, p)
		return
	}

	statuses := []gin.H{}
	if n.Dir {
		for _, name := range s.children(p) {
			child := path.Join(p, name)
			statuses = append(statuses, s.fileStatus(child, s.nodes[child], name))
		}
	} else {
		statuses = append(statuses, s.fileStatus(p, n, ""))
	}

	c.JSON(http.StatusOK, gin.H{"FileStatuses": gin.H{"FileStatus": statuses}})
}

func (s *Server) getContentSummary(c *gin.Context, p string) {
	if _, ok := s.nodes[p]; !ok {
		fileNotFound(c, p)
		return
	}

	var dirs, files, length, consumed int64
	for _, key := range s.subtree(p) {
		n := s.nodes[key]
		if n.Dir {
			dirs++
			continue
		}
		files++
		length += int64(len(n.Data))
		consumed += int64(len(n.Data)) * int64(n.Replication)
	}

	c.JSON(http.StatusOK, gin.H{"ContentSummary": gin.H{
		"directoryCount": dirs,
		"fileCount":      files,
		"length":         length,
		"quota":          -1,
		"spaceConsumed":  consumed,
		"spaceQuota":     -1,
	}})
}

func (s *Server) getFileChecksum(c *gin.Context, p string) {
	n, ok := s.nodes[p]
	if !ok || n.Dir {
		fileNotFound(c, p)
		return
	}

	// bytesPerCRC, crcPerBlock, then the md5; 28 bytes like a real MD5MD5CRC32 checksum
	sum := md5.Sum(n.Data)
	c.JSON(http.StatusOK, gin.H{"FileChecksum": gin.H{
		"algorithm": "MD5-of-0MD5-of-512CRC32C",
		"bytes":     "00000200" + "0000000000000000" + hex.EncodeToString(sum[:]),
		"length":    28,
	}})
}

func (s *Server) open(c *gin.Context, p string) {
	n, ok := s.nodes[p]
	if !ok || n.Dir {
		fileNotFound(c, p)
		return
	}
	s.redirect(c, p, "OPEN", "offset", "length")
}

func (s *Server) create(c *gin.Context, p string, body []byte) {
	if s.direct {
		s.writeData(c, p, body)
		return
	}
	if n, ok := s.nodes[p]; ok {
		if n.Dir || c.Query("overwrite") != "true" {
			remoteError(c, http.StatusForbidden, "FileAlreadyExistsException", p+" already exists")
			return
		}
	}
	s.redirect(c, p, "CREATE", "overwrite", "blocksize", "replication", "permission")
}

func (s *Server) appendFile(c *gin.Context, p string, body []byte) {
	if s.direct {
		s.appendData(c, p, body)
		return
	}
	n, ok := s.nodes[p]
	if !ok {
		fileNotFound(c, p)
		return
	}
	if n.Dir {
		remoteError(c, http.StatusBadRequest, "IOException", p+" is a directory")
		return
	}
	s.redirect(c, p, "APPEND")
}

func (s *Server) mkdirs(c *gin.Context, p string) {
	perm, ok := parsePermission(c, defaultDirPerm)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"boolean": s.mkdirAll(p, c.Query("user.name"), perm)})
}

func (s *Server) deletePath(c *gin.Context, p string) {
	n, ok := s.nodes[p]
	if !ok || p == "/" {
		c.JSON(http.StatusOK, gin.H{"boolean": false})
		return
	}

	if n.Dir && len(s.children(p)) > 0 && c.Query("recursive") != "true" {
		remoteError(c, http.StatusForbidden, "PathIsNotEmptyDirectoryException", p+" is non empty")
		return
	}

	for _, key := range s.subtree(p) {
		delete(s.nodes, key)
	}
	c.JSON(http.StatusOK, gin.H{"boolean": true})
}

func (s *Server) rename(c *gin.Context, src string) {
	dst := c.Query("destination")
	if _, ok := s.nodes[src]; !ok || dst == "" || src == "/" {
		c.JSON(http.StatusOK, gin.H{"boolean": false})
		return
	}

	dst = cleanPath(dst)
	if n, ok := s.nodes[dst]; ok && n.Dir {
		dst = path.Join(dst, path.Base(src))
	}

	parent, ok := s.nodes[path.Dir(dst)]
	_, exists := s.nodes[dst]
	if exists || !ok || !parent.Dir || dst == src || strings.HasPrefix(dst, src+"/") {
		c.JSON(http.StatusOK, gin.H{"boolean": false})
		return
	}

	for _, key := range s.subtree(src) {
		s.nodes[dst+strings.TrimPrefix(key, src)] = s.nodes[key]
		delete(s.nodes, key)
	}
	c.JSON(http.StatusOK, gin.H{"boolean": true})
}

func (s *Server) setOwner(c *gin.Context, p string) {
	n, ok := s.nodes[p]
	if !ok {
		fileNotFound(c, p)
		return
	}

	owner, group := c.Query("owner"), c.Query("group")
	if owner == "" && group == "" {
		remoteError(c, http.StatusBadRequest, "IllegalArgumentException", "Both owner and group are empty.")
		return
	}
	if owner != "" {
		n.Owner = owner
	}
	if group != "" {
		n.Group = group
	}
	c.Status(http.StatusOK)
}

func (s *Server) setPermission(c *gin.Context, p string) {
	n, ok := s.nodes[p]
	if !ok {
		fileNotFound(c, p)
		return
	}

	perm, ok := parsePermission(c, defaultDirPerm)
	if !ok {
		return
	}
	n.Permission = perm
	c.Status(http.StatusOK)
}

func (s *Server) setReplication(c *gin.Context, p string) {
	n, ok := s.nodes[p]
	if !ok {
		fileNotFound(c, p)
		return
	}

	replication, err := strconv.Atoi(c.DefaultQuery("replication", strconv.Itoa(defaultReplication)))
	if err != nil || replication < 1 {
		remoteError(c, http.StatusBadRequest, "IllegalArgumentException", "Invalid value for webhdfs parameter \"replication\"")
		return
	}
	if n.Dir {
		c.JSON(http.StatusOK, gin.H{"boolean": false})
		return
	}
	n.Replication = replication
	c.JSON(http.StatusOK, gin.H{"boolean": true})
}

func (s *Server) setTimes(c *gin.Context, p string) {
	n, ok := s.nodes[p]
	if !ok {
		fileNotFound(c, p)
		return
	}

	atime, errA := strconv.ParseInt(c.DefaultQuery("accesstime", "-1"), 10, 64)
	mtime, errM := strconv.ParseInt(c.DefaultQuery("modificationtime", "-1"), 10, 64)
	if errA != nil || errM != nil {
		remoteError(c, http.StatusBadRequest, "IllegalArgumentException", "Invalid value for webhdfs time parameter")
		return
	}
	if atime >= 0 {
		n.AccessTime = atime
	}
	if mtime >= 0 {
		n.ModificationTime = mtime
	}
	c.Status(http.StatusOK)
}

// ===================================================================================================

// redirect answers 307 with a datanode location carrying op, the user and the named query keys.
func (s *Server) redirect(c *gin.Context, p string, op string, keys ...string) {
	q := url.Values{}
	q.Set("op", op)
	q.Set("user.name", c.Query("user.name"))
	for _, key := range keys {
		if v, ok := c.GetQuery(key); ok {
			q.Set(key, v)
		}
	}

	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	location := fmt.Sprintf("%s://%s%s%s%s?%s", scheme, c.Request.Host, s.prefix, datanodePrefix,
		(&url.URL{Path: p}).EscapedPath(), q.Encode())

	c.Header("Location", location)
	c.JSON(http.StatusTemporaryRedirect, gin.H{"Location": location})
}

func (s *Server) record(c *gin.Context, p string, op string, datanode bool, body []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, Request{
		ID:       c.GetString("request_id"),
		Method:   c.Request.Method,
		Path:     p,
		RawQuery: c.Request.URL.RawQuery,
		Op:       op,
		Datanode: datanode,
		Body:     body,
	})
}

// intercept applies an injected delay or failure. It reports whether the request was answered.
func (s *Server) intercept(c *gin.Context, key string) bool {
	s.mu.Lock()
	delay := s.delays[key]
	status := s.failures[key]
	s.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-c.Request.Context().Done():
			c.Abort()
			return true
		}
	}

	if status != 0 {
		remoteError(c, status, "IOException", "injected failure")
		return true
	}
	return false
}

func parsePermission(c *gin.Context, def uint32) (uint32, bool) {
	raw, ok := c.GetQuery("permission")
	if !ok {
		return def, true
	}
	perm, err := strconv.ParseUint(raw, 8, 32)
	if err != nil || perm > 0o1777 {
		remoteError(c, http.StatusBadRequest, "IllegalArgumentException", "Invalid value for webhdfs parameter \"permission\": "+raw)
		return 0, false
	}
	return uint32(perm), true
}

func (s *Server) fileStatus(p string, n *node, suffix string) gin.H {
	status := gin.H{
		"accessTime":       n.AccessTime,
		"blockSize":        n.BlockSize,
		"fileId":           n.id,
		"group":            n.Group,
		"length":           int64(len(n.Data)),
		"modificationTime": n.ModificationTime,
		"owner":            n.Owner,
		"pathSuffix":       suffix,
		"permission":       strconv.FormatUint(uint64(n.Permission), 8),
		"replication":      n.Replication,
		"storagePolicy":    0,
		"type":             "FILE",
	}
	if n.Dir {
		status["type"] = "DIRECTORY"
		status["childrenNum"] = len(s.children(p))
	}
	return status
}

func fileNotFound(c *gin.Context, p string) {
	remoteError(c, http.StatusNotFound, "FileNotFoundException", "File does not exist: "+p)
}

func remoteError(c *gin.Context, status int, exception string, message string) {
	c.AbortWithStatusJSON(status, gin.H{"RemoteException": gin.H{
		"exception":     exception,
		"javaClassName": "java.io." + exception,
		"message":       message,
	}})
}
