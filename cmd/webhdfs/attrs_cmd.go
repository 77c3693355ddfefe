package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/openmined/webhdfs/pkg/webhdfs"
	"github.com/spf13/cobra"
)

// attrCmd builds a VALUE PATH command around one attribute setter.
func attrCmd(c *cli, use, short string, set func(ctx context.Context, client *webhdfs.Client, value, p string) (bool, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := c.connect()
			if err != nil {
				return err
			}

			ok, err := set(cmd.Context(), client, args[0], args[1])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%s %s: not applied", cmd.Name(), args[1])
			}
			return nil
		},
	}
}

func newChownCmd(c *cli) *cobra.Command {
	return attrCmd(c, "chown OWNER PATH", "Change the owner of a path",
		func(ctx context.Context, client *webhdfs.Client, owner, p string) (bool, error) {
			return client.SetOwner(ctx, p, owner)
		})
}

func newChgrpCmd(c *cli) *cobra.Command {
	return attrCmd(c, "chgrp GROUP PATH", "Change the group of a path",
		func(ctx context.Context, client *webhdfs.Client, group, p string) (bool, error) {
			return client.SetGroup(ctx, p, group)
		})
}

func newChmodCmd(c *cli) *cobra.Command {
	return attrCmd(c, "chmod OCTAL PATH", "Change the permission of a path",
		func(ctx context.Context, client *webhdfs.Client, mode, p string) (bool, error) {
			perm, err := parsePermission(mode)
			if err != nil {
				return false, err
			}
			return client.SetPermissions(ctx, p, perm)
		})
}

func newSetrepCmd(c *cli) *cobra.Command {
	return attrCmd(c, "setrep N PATH", "Change the replication factor of a file",
		func(ctx context.Context, client *webhdfs.Client, n, p string) (bool, error) {
			replication, err := strconv.Atoi(n)
			if err != nil {
				return false, fmt.Errorf("invalid replication %q", n)
			}
			return client.SetReplicationFactor(ctx, p, replication)
		})
}

func newTouchCmd(c *cli) *cobra.Command {
	var atime, mtime string

	cmd := &cobra.Command{
		Use:   "touch PATH",
		Short: "Create an empty file or update its times",
		Long:  "Create an empty file or update its times. Times are RFC 3339, both default to now.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now()
			accessed, err := parseTime(atime, now)
			if err != nil {
				return err
			}
			modified, err := parseTime(mtime, now)
			if err != nil {
				return err
			}

			client, err := c.connect()
			if err != nil {
				return err
			}

			ctx, p := cmd.Context(), args[0]
			_, found, err := client.GetFileStatus(ctx, p)
			if err != nil {
				return err
			}
			if !found {
				if err := client.CreateFile(ctx, nil, p); err != nil {
					return err
				}
			}

			if ok, err := client.SetModificationTime(ctx, p, modified); err != nil || !ok {
				return touchError(p, err)
			}
			if ok, err := client.SetAccessTime(ctx, p, accessed); err != nil || !ok {
				return touchError(p, err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&atime, "atime", "", "access time, RFC 3339")
	cmd.Flags().StringVar(&mtime, "mtime", "", "modification time, RFC 3339")
	return cmd
}

func parseTime(s string, def time.Time) (time.Time, error) {
	if s == "" {
		return def, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: %w", s, err)
	}
	return t, nil
}

func touchError(p string, err error) error {
	if err != nil {
		return err
	}
	return fmt.Errorf("touch %s: not applied", p)
}
