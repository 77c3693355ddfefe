package fakehdfs

import (
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

func (s *Server) datanode(c *gin.Context) {
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
	s.record(c, p, op, true, body)

	if s.intercept(c, dnKey(op)) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case op == "CREATE" && c.Request.Method == http.MethodPut:
		s.writeData(c, p, body)
	case op == "APPEND" && c.Request.Method == http.MethodPost:
		s.appendData(c, p, body)
	case op == "OPEN" && c.Request.Method == http.MethodGet:
		s.readData(c, p)
	default:
		remoteError(c, http.StatusBadRequest, "IllegalArgumentException", "Invalid datanode operation "+c.Request.Method+" "+op)
	}
}

func (s *Server) writeData(c *gin.Context, p string, body []byte) {
	if n, ok := s.nodes[p]; ok && (n.Dir || c.Query("overwrite") != "true") {
		remoteError(c, http.StatusForbidden, "FileAlreadyExistsException", p+" already exists")
		return
	}

	owner := c.Query("user.name")
	if !s.mkdirAll(path.Dir(p), owner, defaultDirPerm) {
		remoteError(c, http.StatusForbidden, "ParentNotDirectoryException", path.Dir(p)+" is not a directory")
		return
	}

	perm, ok := parsePermission(c, defaultFilePerm)
	if !ok {
		return
	}

	n := s.newNode(false, owner, perm)
	n.Data = body
	if v, err := strconv.Atoi(c.Query("replication")); err == nil && v > 0 {
		n.Replication = v
	}
	if v, err := strconv.ParseInt(c.Query("blocksize"), 10, 64); err == nil && v > 0 {
		n.BlockSize = v
	}
	s.nodes[p] = n

	c.Header("Location", "hdfs://fakehdfs"+p)
	c.Status(http.StatusCreated)
}

func (s *Server) appendData(c *gin.Context, p string, body []byte) {
	n, ok := s.nodes[p]
	if !ok || n.Dir {
		fileNotFound(c, p)
		return
	}
	n.Data = append(n.Data, body...)
	n.ModificationTime = time.Now().UnixMilli()
	c.Status(http.StatusOK)
}

func (s *Server) readData(c *gin.Context, p string) {
	n, ok := s.nodes[p]
	if !ok || n.Dir {
		fileNotFound(c, p)
		return
	}

	data := n.Data
	if offset, err := strconv.ParseInt(c.Query("offset"), 10, 64); err == nil && offset > 0 {
		if offset > int64(len(data)) {
			remoteError(c, http.StatusBadRequest, "IOException", "Offset="+c.Query("offset")+" out of the range")
			return
		}
		data = data[offset:]
	}
	if length, err := strconv.ParseInt(c.Query("length"), 10, 64); err == nil && length >= 0 && length < int64(len(data)) {
		data = data[:length]
	}

	n.AccessTime = time.Now().UnixMilli()
	c.Data(http.StatusOK, "application/octet-stream", data)
}
