package webhdfs

import (
	"io/fs"
	"strconv"
	"time"
)

// FileType is the kind of an HDFS path.
type FileType string

const (
	TypeFile      FileType = "FILE"
	TypeDirectory FileType = "DIRECTORY"
	TypeSymlink   FileType = "SYMLINK"
)

// ===================================================================================================

// FileStatus is a snapshot of one path's metadata. Times are milliseconds since the epoch.
type FileStatus struct {
	AccessTime       int64    `json:"accessTime" yaml:"accessTime"`
	BlockSize        int64    `json:"blockSize" yaml:"blockSize"`
	ChildrenNum      *int     `json:"childrenNum,omitempty" yaml:"childrenNum,omitempty"`
	FileID           int64    `json:"fileId,omitempty" yaml:"fileId,omitempty"`
	Group            string   `json:"group" yaml:"group"`
	Length           int64    `json:"length" yaml:"length"`
	ModificationTime int64    `json:"modificationTime" yaml:"modificationTime"`
	Owner            string   `json:"owner" yaml:"owner"`
	PathSuffix       string   `json:"pathSuffix" yaml:"pathSuffix"`
	Permission       string   `json:"permission" yaml:"permission"`
	Replication      int      `json:"replication" yaml:"replication"`
	Symlink          string   `json:"symlink,omitempty" yaml:"symlink,omitempty"`
	Type             FileType `json:"type" yaml:"type"`
}

func (s *FileStatus) IsDir() bool {
	return s.Type == TypeDirectory
}

// ModTime returns the modification time.
func (s *FileStatus) ModTime() time.Time {
	return time.UnixMilli(s.ModificationTime)
}

// AccessedAt returns the access time.
func (s *FileStatus) AccessedAt() time.Time {
	return time.UnixMilli(s.AccessTime)
}

// Mode converts the octal permission string and the type into an fs.FileMode.
// An unparsable permission yields only the type bits.
func (s *FileStatus) Mode() fs.FileMode {
	var mode fs.FileMode
	if perm, err := strconv.ParseUint(s.Permission, 8, 32); err == nil {
		mode = fs.FileMode(perm) & fs.ModePerm
		if perm&0o1000 != 0 {
			mode |= fs.ModeSticky
		}
	}

	switch s.Type {
	case TypeDirectory:
		mode |= fs.ModeDir
	case TypeSymlink:
		mode |= fs.ModeSymlink
	}
	return mode
}

type fileStatusEnvelope struct {
	FileStatus *FileStatus `json:"FileStatus"`
}

func (e *fileStatusEnvelope) present() bool { return e.FileStatus != nil }

type fileStatusesEnvelope struct {
	FileStatuses *struct {
		FileStatus []FileStatus `json:"FileStatus"`
	} `json:"FileStatuses"`
}

func (e *fileStatusesEnvelope) present() bool { return e.FileStatuses != nil }

// ===================================================================================================

// ContentSummary aggregates the counts of a subtree.
type ContentSummary struct {
	DirectoryCount int64 `json:"directoryCount" yaml:"directoryCount"`
	FileCount      int64 `json:"fileCount" yaml:"fileCount"`
	Length         int64 `json:"length" yaml:"length"`
	Quota          int64 `json:"quota" yaml:"quota"`
	SpaceConsumed  int64 `json:"spaceConsumed" yaml:"spaceConsumed"`
	SpaceQuota     int64 `json:"spaceQuota" yaml:"spaceQuota"`
}

type contentSummaryEnvelope struct {
	ContentSummary *ContentSummary `json:"ContentSummary"`
}

func (e *contentSummaryEnvelope) present() bool { return e.ContentSummary != nil }

// ===================================================================================================

// FileChecksum is the namenode computed checksum of a file. Bytes is hex encoded.
type FileChecksum struct {
	Algorithm string `json:"algorithm" yaml:"algorithm"`
	Bytes     string `json:"bytes" yaml:"bytes"`
	Length    int    `json:"length" yaml:"length"`
}

type fileChecksumEnvelope struct {
	FileChecksum *FileChecksum `json:"FileChecksum"`
}

func (e *fileChecksumEnvelope) present() bool { return e.FileChecksum != nil }

// ===================================================================================================

type pathEnvelope struct {
	Path *string `json:"Path"`
}

func (e *pathEnvelope) present() bool { return e.Path != nil }

type booleanEnvelope struct {
	Boolean *bool `json:"boolean"`
}

func (e *booleanEnvelope) present() bool { return e.Boolean != nil }

// envelope is a decoded response body that knows whether its payload key was there.
type envelope interface {
	present() bool
}
