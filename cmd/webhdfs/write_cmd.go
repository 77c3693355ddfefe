package main

import (
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/openmined/webhdfs/pkg/webhdfs"
	"github.com/spf13/cobra"
)

const stdinPath = "-"

// createFlags are the CREATE parameters put exposes.
type createFlags struct {
	overwrite   bool
	replication int
	blockSize   int64
	permission  string
}

func (f *createFlags) options() ([]webhdfs.CreateOption, error) {
	opts := []webhdfs.CreateOption{webhdfs.WithOverwrite(f.overwrite)}
	if f.replication != 0 {
		opts = append(opts, webhdfs.WithReplication(f.replication))
	}
	if f.blockSize > 0 {
		opts = append(opts, webhdfs.WithBlockSize(f.blockSize))
	}
	if f.permission != "" {
		perm, err := parsePermission(f.permission)
		if err != nil {
			return nil, err
		}
		opts = append(opts, webhdfs.WithPermission(perm))
	}
	return opts, nil
}

func newPutCmd(c *cli) *cobra.Command {
	var flags createFlags
	var ignoreFile string
	var parallel int

	cmd := &cobra.Command{
		Use:   "put LOCAL REMOTE",
		Short: "Upload a file, a directory tree or stdin (-)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			local, remote := args[0], args[1]

			opts, err := flags.options()
			if err != nil {
				return err
			}

			client, err := c.connect()
			if err != nil {
				return err
			}

			if local == stdinPath {
				return client.CreateFile(cmd.Context(), cmd.InOrStdin(), remote, opts...)
			}

			info, err := os.Stat(local)
			if err != nil {
				return err
			}

			if info.IsDir() {
				ignore, err := loadIgnoreList(local, ignoreFile)
				if err != nil {
					return err
				}
				u := &treeUploader{client: client, opts: opts, ignore: ignore, parallel: parallel}
				return u.upload(cmd.Context(), local, remote)
			}

			if err := client.CreateFileFromPath(cmd.Context(), local, remote, opts...); err != nil {
				return err
			}
			slog.Info("uploaded", "path", remote, "size", humanize.Bytes(uint64(info.Size())))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&flags.overwrite, "overwrite", "f", false, "replace existing files")
	cmd.Flags().IntVar(&flags.replication, "replication", 0, "replication factor of new files")
	cmd.Flags().Int64Var(&flags.blockSize, "blocksize", 0, "block size of new files in bytes")
	cmd.Flags().StringVar(&flags.permission, "permission", "", "octal permission of new files, e.g. 640")
	cmd.Flags().StringVar(&ignoreFile, "ignore-file", "", "gitignore style rules for directory uploads (default: LOCAL/"+ignoreFileName+")")
	cmd.Flags().IntVarP(&parallel, "parallel", "p", 4, "concurrent file uploads for directory uploads")
	return cmd
}

func newAppendCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "append LOCAL REMOTE",
		Short: "Append a local file or stdin (-) to a remote file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := c.connect()
			if err != nil {
				return err
			}

			var r io.Reader = cmd.InOrStdin()
			if args[0] != stdinPath {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}

			return client.AppendFile(cmd.Context(), r, args[1])
		},
	}
}

func newMkdirCmd(c *cli) *cobra.Command {
	var permission string

	cmd := &cobra.Command{
		Use:   "mkdir PATH...",
		Short: "Create directories and their parents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts []webhdfs.CreateOption
			if permission != "" {
				perm, err := parsePermission(permission)
				if err != nil {
					return err
				}
				opts = append(opts, webhdfs.WithPermission(perm))
			}

			client, err := c.connect()
			if err != nil {
				return err
			}

			for _, p := range args {
				ok, err := client.CreateDirectory(cmd.Context(), p, opts...)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("mkdir %s: not created", p)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&permission, "permission", "", "octal permission, e.g. 750")
	return cmd
}

func newRmCmd(c *cli) *cobra.Command {
	var recursive bool

	cmd := &cobra.Command{
		Use:   "rm PATH...",
		Short: "Delete files or directories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := c.connect()
			if err != nil {
				return err
			}

			for _, p := range args {
				ok, err := client.DeleteDirectory(cmd.Context(), p, recursive)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("rm %s: no such file or directory", p)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "delete non empty directories")
	return cmd
}

func newMvCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "mv SRC DST",
		Short: "Rename a file or directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := c.connect()
			if err != nil {
				return err
			}

			ok, err := client.RenameDirectory(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("mv %s %s: rename failed", args[0], args[1])
			}
			return nil
		},
	}
}

// parsePermission reads an octal permission like 755 or 1777.
func parsePermission(s string) (fs.FileMode, error) {
	v, err := strconv.ParseUint(s, 8, 32)
	if err != nil || v > 0o1777 {
		return 0, fmt.Errorf("invalid permission %q", s)
	}
	perm := fs.FileMode(v) & fs.ModePerm
	if v&0o1000 != 0 {
		perm |= fs.ModeSticky
	}
	return perm, nil
}

// remoteJoin maps a local path below root onto the remote tree.
func remoteJoin(remote, root, local string) (string, error) {
	rel, err := filepath.Rel(root, local)
	if err != nil {
		return "", err
	}
	if rel == "." {
		return remote, nil
	}
	return path.Join(remote, filepath.ToSlash(rel)), nil
}
