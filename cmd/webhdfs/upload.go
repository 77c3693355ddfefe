package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"github.com/openmined/webhdfs/pkg/webhdfs"
	gitignore "github.com/sabhiram/go-gitignore"
	"golang.org/x/sync/errgroup"
)

const ignoreFileName = ".hdfsignore"

var defaultIgnoreLines = []string{
	ignoreFileName,
	// VCS
	".git",
	// python
	"__pycache__/",
	"*.py[cod]",
	".venv/",
	// OS-specific
	".DS_Store",
	"Thumbs.db",
	// editors
	"*.swp",
	"*~",
}

// loadIgnoreList compiles the default rules plus those of ignoreFile.
// An empty ignoreFile means dir/.hdfsignore, which may be missing.
func loadIgnoreList(dir, ignoreFile string) (*gitignore.GitIgnore, error) {
	explicit := ignoreFile != ""
	if !explicit {
		ignoreFile = filepath.Join(dir, ignoreFileName)
	}

	lines := append([]string(nil), defaultIgnoreLines...)

	file, err := os.Open(ignoreFile)
	if errors.Is(err, os.ErrNotExist) && !explicit {
		return gitignore.CompileIgnoreLines(lines...), nil
	} else if err != nil {
		return nil, fmt.Errorf("ignore file: %w", err)
	}
	defer file.Close()

	rules := 0
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			lines = append(lines, line)
			rules++
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("ignore file %s: %w", ignoreFile, err)
	}
	slog.Debug("loaded ignore file", "path", ignoreFile, "rules", rules)

	return gitignore.CompileIgnoreLines(lines...), nil
}

// treeUploader mirrors a local directory tree into HDFS.
type treeUploader struct {
	client   *webhdfs.Client
	opts     []webhdfs.CreateOption
	ignore   *gitignore.GitIgnore
	parallel int

	files atomic.Int64
	bytes atomic.Int64
}

func (u *treeUploader) upload(ctx context.Context, root, remote string) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(u.parallel, 1))

	walkErr := filepath.WalkDir(root, func(local string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		rel, err := filepath.Rel(root, local)
		if err != nil {
			return err
		}
		if rel != "." && u.ignored(filepath.ToSlash(rel), d.IsDir()) {
			slog.Debug("skip ignored", "path", rel)
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		target, err := remoteJoin(remote, root, local)
		if err != nil {
			return err
		}

		// directories are created in walk order so parents exist before their files
		if d.IsDir() {
			if _, err := u.client.CreateDirectory(ctx, target); err != nil {
				return fmt.Errorf("mkdir %s: %w", target, err)
			}
			return nil
		}
		if !d.Type().IsRegular() {
			slog.Debug("skip irregular file", "path", rel, "mode", d.Type())
			return nil
		}

		g.Go(func() error {
			info, err := d.Info()
			if err != nil {
				return err
			}
			if err := u.client.CreateFileFromPath(ctx, local, target, u.opts...); err != nil {
				return fmt.Errorf("put %s: %w", local, err)
			}
			u.files.Add(1)
			u.bytes.Add(info.Size())
			slog.Debug("uploaded", "path", target, "size", humanize.Bytes(uint64(info.Size())))
			return nil
		})
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	if walkErr != nil {
		return walkErr
	}

	slog.Info("uploaded tree", "path", remote, "files", u.files.Load(), "size", humanize.Bytes(uint64(u.bytes.Load())))
	return nil
}

// ignored matches directories with a trailing slash too, so rules like "dist/" apply.
func (u *treeUploader) ignored(rel string, dir bool) bool {
	return u.ignore.MatchesPath(rel) || dir && u.ignore.MatchesPath(rel+"/")
}
