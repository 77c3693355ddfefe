package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"os/user"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/openmined/webhdfs/internal/version"
	"github.com/openmined/webhdfs/pkg/webhdfs"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	home, _        = os.UserHomeDir()
	defaultURL     = "http://localhost:9870"
	configFileName = "config"
	envPrefix      = "WEBHDFS"
)

// cli carries what every subcommand shares: the resolved config and a lazily built client.
type cli struct {
	v      *viper.Viper
	client *webhdfs.Client
}

func newRootCmd() *cobra.Command {
	c := &cli{v: viper.New()}

	rootCmd := &cobra.Command{
		Use:           "webhdfs",
		Short:         "Command line client for the Hadoop WebHDFS REST API",
		Version:       version.Detailed(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := c.loadConfig(cmd); err != nil {
				return err
			}
			setupLogger(cmd.ErrOrStderr(), c.v.GetBool("verbose"))
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.client != nil {
				c.client.Close()
			}
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.SortFlags = false
	flags.StringP("url", "u", defaultURL, "WebHDFS base URL")
	flags.String("user", "", "HDFS user name (default: $HADOOP_USER_NAME or the login user)")
	flags.StringP("config", "c", "", "config file (default: ~/.config/webhdfs/config.{json,yaml})")
	flags.StringP("output", "o", formatTable, "output format: table, json or yaml")
	flags.BoolP("verbose", "v", false, "log every request")
	flags.Duration("timeout", 0, "per request timeout, 0 for none")
	flags.Bool("dump", false, "dump raw HTTP requests and responses to stderr")

	rootCmd.AddCommand(
		newHomeCmd(c),
		newStatCmd(c),
		newLsCmd(c),
		newDuCmd(c),
		newChecksumCmd(c),
		newCatCmd(c),
		newPutCmd(c),
		newAppendCmd(c),
		newMkdirCmd(c),
		newRmCmd(c),
		newMvCmd(c),
		newChownCmd(c),
		newChgrpCmd(c),
		newChmodCmd(c),
		newSetrepCmd(c),
		newTouchCmd(c),
		newDevServerCmd(),
		newVersionCmd(),
	)

	return rootCmd
}

func main() {
	// Setup root context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, red.Render("error:"), err)
		os.Exit(1)
	}
}

// loadConfig merges, lowest first: flag defaults, the config file, .env, WEBHDFS_* and explicit flags.
func (c *cli) loadConfig(cmd *cobra.Command) error {
	// .env never overrides variables that are already set
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	v := c.v
	if f := cmd.Flag("config"); f != nil && f.Changed {
		v.SetConfigFile(f.Value.String())
	} else if envPath := os.Getenv(envPrefix + "_CONFIG"); envPath != "" {
		v.SetConfigFile(envPath)
	} else {
		v.AddConfigPath(filepath.Join(home, ".config", "webhdfs"))
		v.SetConfigName(configFileName)
	}

	if err := v.ReadInConfig(); err != nil {
		enoent := errors.Is(err, os.ErrNotExist)
		_, ok := err.(viper.ConfigFileNotFoundError)
		if !enoent && !ok {
			return fmt.Errorf("config read '%s': %w", v.ConfigFileUsed(), err)
		}
	}

	for _, key := range []string{"url", "user", "output", "verbose", "timeout", "dump"} {
		if f := cmd.Flag(key); f != nil {
			v.BindPFlag(key, f)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetDefault("user", defaultUser())

	switch format := v.GetString("output"); format {
	case formatTable, formatJSON, formatYAML:
	default:
		return fmt.Errorf("unknown output format %q", format)
	}

	return nil
}

func (c *cli) config() *webhdfs.Config {
	return &webhdfs.Config{
		BaseURL: c.v.GetString("url"),
		User:    c.v.GetString("user"),
	}
}

// connect builds the client on first use.
func (c *cli) connect() (*webhdfs.Client, error) {
	if c.client != nil {
		return c.client, nil
	}

	opts := []webhdfs.Option{webhdfs.WithTimeout(c.v.GetDuration("timeout"))}
	if c.v.GetBool("dump") {
		opts = append(opts, webhdfs.WithDebug())
	}
	client, err := webhdfs.New(c.config(), opts...)
	if err != nil {
		return nil, err
	}
	c.client = client
	return client, nil
}

func (c *cli) format() string {
	return c.v.GetString("output")
}

// defaultUser follows the Hadoop convention: HADOOP_USER_NAME, then the login user.
func defaultUser() string {
	if name := os.Getenv("HADOOP_USER_NAME"); name != "" {
		return name
	}
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return ""
}

func setupLogger(w io.Writer, verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	noColor := true
	if f, ok := w.(*os.File); ok {
		noColor = !isatty.IsTerminal(f.Fd())
	}

	slog.SetDefault(slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
		NoColor:    noColor,
	})))
}
