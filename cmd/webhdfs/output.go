package main

import (
	"fmt"
	"io"
	"path"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"
	"github.com/openmined/webhdfs/pkg/webhdfs"
	"gopkg.in/yaml.v3"
)

const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

// view is something printable in all output formats.
// data is what json and yaml encode, headers and rows are the table.
type view struct {
	data    any
	headers []string
	rows    [][]string
}

func render(w io.Writer, format string, v view) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v.data)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v.data); err != nil {
			return err
		}
		return enc.Close()
	default:
		if len(v.headers) == 0 {
			for _, row := range v.rows {
				if _, err := fmt.Fprintln(w, row[0]); err != nil {
					return err
				}
			}
			return nil
		}
		t := table.New().
			Border(lipgloss.HiddenBorder()).
			Headers(v.headers...).
			Rows(v.rows...).
			StyleFunc(func(row, col int) lipgloss.Style {
				if row == table.HeaderRow {
					return header
				}
				return cell
			})
		_, err := fmt.Fprintln(w, t.String())
		return err
	}
}

// ===================================================================================================

// entry is one listed path with its status.
type entry struct {
	Path               string `json:"path" yaml:"path"`
	webhdfs.FileStatus `yaml:",inline"`
}

var statusHeaders = []string{"MODE", "REPL", "OWNER", "GROUP", "SIZE", "MODIFIED", "PATH"}

func statusRow(p string, s *webhdfs.FileStatus) []string {
	repl := "-"
	if !s.IsDir() {
		repl = strconv.Itoa(s.Replication)
	}
	return []string{
		s.Mode().String(),
		repl,
		s.Owner,
		s.Group,
		humanize.Bytes(uint64(s.Length)),
		formatModTime(s.ModTime()),
		p,
	}
}

func statusView(entries []entry) view {
	rows := make([][]string, len(entries))
	for i := range entries {
		rows[i] = statusRow(entries[i].Path, &entries[i].FileStatus)
	}
	return view{data: entries, headers: statusHeaders, rows: rows}
}

// listingPath is the display path of a LISTSTATUS child. Listing a file yields
// the file itself with an empty suffix.
func listingPath(dir string, s *webhdfs.FileStatus) string {
	if s.PathSuffix == "" {
		return dir
	}
	return path.Join(dir, s.PathSuffix)
}

// formatModTime is relative for the last week and a date after that.
func formatModTime(t time.Time) string {
	if time.Since(t) < 7*24*time.Hour {
		return humanize.Time(t)
	}
	return t.Format(time.DateOnly)
}

func summaryView(p string, s *webhdfs.ContentSummary) view {
	quota := "none"
	if s.Quota >= 0 {
		quota = humanize.Comma(s.Quota)
	}
	return view{
		data: struct {
			Path                   string `json:"path" yaml:"path"`
			webhdfs.ContentSummary `yaml:",inline"`
		}{p, *s},
		headers: []string{"DIRS", "FILES", "SIZE", "SPACE", "QUOTA", "PATH"},
		rows: [][]string{{
			humanize.Comma(s.DirectoryCount),
			humanize.Comma(s.FileCount),
			humanize.Bytes(uint64(s.Length)),
			humanize.Bytes(uint64(s.SpaceConsumed)),
			quota,
			p,
		}},
	}
}
