package main

import (
	"fmt"
	"io"

	"github.com/bmatcuk/doublestar/v4"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/openmined/webhdfs/pkg/webhdfs"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const statConcurrency = 8

func newHomeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "home",
		Short: "Print the home directory of the user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := c.connect()
			if err != nil {
				return err
			}

			home, err := client.GetHomeDirectory(cmd.Context())
			if err != nil {
				return err
			}

			return render(cmd.OutOrStdout(), c.format(), view{
				data: map[string]string{"Path": home},
				rows: [][]string{{home}},
			})
		},
	}
}

func newStatCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "stat PATH...",
		Short: "Show the status of one or more paths",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := c.connect()
			if err != nil {
				return err
			}

			// keep first occurrences, in order
			seen := mapset.NewThreadUnsafeSet[string]()
			var paths []string
			for _, p := range args {
				if seen.Add(p) {
					paths = append(paths, p)
				}
			}

			statuses := make([]*webhdfs.FileStatus, len(paths))
			g, ctx := errgroup.WithContext(cmd.Context())
			g.SetLimit(statConcurrency)
			for i, p := range paths {
				i, p := i, p
				g.Go(func() error {
					status, found, err := client.GetFileStatus(ctx, p)
					if err != nil {
						return fmt.Errorf("stat %s: %w", p, err)
					}
					if found {
						statuses[i] = status
					}
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			var entries []entry
			var missing []string
			for i, status := range statuses {
				if status == nil {
					missing = append(missing, paths[i])
					continue
				}
				entries = append(entries, entry{Path: paths[i], FileStatus: *status})
			}

			if len(entries) > 0 {
				if err := render(cmd.OutOrStdout(), c.format(), statusView(entries)); err != nil {
					return err
				}
			}
			if len(missing) > 0 {
				return fmt.Errorf("stat %v: no such file or directory", missing)
			}
			return nil
		},
	}
}

func newLsCmd(c *cli) *cobra.Command {
	var match string

	cmd := &cobra.Command{
		Use:   "ls [PATH]",
		Short: "List a directory, the home directory by default",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if match != "" && !doublestar.ValidatePattern(match) {
				return fmt.Errorf("invalid --match pattern %q", match)
			}

			client, err := c.connect()
			if err != nil {
				return err
			}

			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}

			statuses, found, err := client.GetDirectoryStatus(cmd.Context(), dir)
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("ls %s: no such file or directory", dir)
			}

			entries := make([]entry, 0, len(statuses))
			for _, s := range statuses {
				if match != "" {
					if ok, _ := doublestar.Match(match, s.PathSuffix); !ok {
						continue
					}
				}
				entries = append(entries, entry{Path: listingPath(dir, &s), FileStatus: s})
			}

			return render(cmd.OutOrStdout(), c.format(), statusView(entries))
		},
	}

	cmd.Flags().StringVar(&match, "match", "", "only list entries whose name matches this glob")
	return cmd
}

func newDuCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "du PATH",
		Short: "Summarize the space used by a tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := c.connect()
			if err != nil {
				return err
			}

			summary, found, err := client.GetContentSummary(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("du %s: no such file or directory", args[0])
			}

			return render(cmd.OutOrStdout(), c.format(), summaryView(args[0], summary))
		},
	}
}

func newChecksumCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "checksum PATH",
		Short: "Print the checksum of a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := c.connect()
			if err != nil {
				return err
			}

			checksum, found, err := client.GetFileChecksum(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("checksum %s: no such file", args[0])
			}

			return render(cmd.OutOrStdout(), c.format(), view{
				data:    checksum,
				headers: []string{"ALGORITHM", "BYTES", "PATH"},
				rows:    [][]string{{checksum.Algorithm, checksum.Bytes, args[0]}},
			})
		},
	}
}

func newCatCmd(c *cli) *cobra.Command {
	var offset, length int64

	cmd := &cobra.Command{
		Use:   "cat PATH",
		Short: "Write the content of a file to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := c.connect()
			if err != nil {
				return err
			}

			rc, found, err := client.OpenFile(cmd.Context(), args[0], webhdfs.WithOffset(offset), webhdfs.WithLength(length))
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("cat %s: no such file", args[0])
			}
			defer rc.Close()

			_, err = io.Copy(cmd.OutOrStdout(), rc)
			return err
		},
	}

	cmd.Flags().Int64Var(&offset, "offset", 0, "start at this byte")
	cmd.Flags().Int64Var(&length, "length", 0, "read at most this many bytes, 0 for all")
	return cmd
}
