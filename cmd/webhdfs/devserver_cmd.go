package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/openmined/webhdfs/internal/fakehdfs"
	"github.com/spf13/cobra"
	"github.com/ulule/limiter/v3"
)

const defaultDevAddr = "127.0.0.1:9870"

type devServerFlags struct {
	addr   string
	home   string
	prefix string
	gzip   bool
	cors   bool
	rate   string
}

func newDevServerCmd() *cobra.Command {
	var flags devServerFlags

	cmd := &cobra.Command{
		Use:   "devserver",
		Short: "Run an in-memory WebHDFS namenode for local development",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := flags.options()
			if err != nil {
				return err
			}

			ln, err := net.Listen("tcp", flags.addr)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), cyan.Render("webhdfs devserver"), "listening on", green.Render("http://"+ln.Addr().String()+flags.prefix))
			return serveFake(cmd.Context(), ln, fakehdfs.New(opts...))
		},
	}

	cmd.Flags().StringVarP(&flags.addr, "bind", "b", defaultDevAddr, "address to listen on")
	cmd.Flags().StringVar(&flags.home, "home", fakehdfs.DefaultHome, "home directory answered by GETHOMEDIRECTORY")
	cmd.Flags().StringVar(&flags.prefix, "prefix", "", "mount the REST roots below this path, like a gateway")
	cmd.Flags().BoolVar(&flags.gzip, "gzip", false, "compress JSON responses")
	cmd.Flags().BoolVar(&flags.cors, "cors", false, "allow browser clients from any origin")
	cmd.Flags().StringVar(&flags.rate, "rate", "", "per client rate limit, e.g. 100-S or 1000-M")
	return cmd
}

func (f *devServerFlags) options() ([]fakehdfs.Option, error) {
	opts := []fakehdfs.Option{
		fakehdfs.WithHome(f.home),
		fakehdfs.WithPrefix(f.prefix),
		fakehdfs.WithLogger(slog.Default().WithGroup("devserver")),
	}
	if f.gzip {
		opts = append(opts, fakehdfs.WithGzip())
	}
	if f.cors {
		opts = append(opts, fakehdfs.WithCORS())
	}
	if f.rate != "" {
		rate, err := limiter.NewRateFromFormatted(f.rate)
		if err != nil {
			return nil, fmt.Errorf("invalid --rate: %w", err)
		}
		opts = append(opts, fakehdfs.WithRateLimit(rate))
	}
	return opts, nil
}

// serveFake runs the fake on ln until ctx is done.
func serveFake(ctx context.Context, ln net.Listener, fake *fakehdfs.Server) error {
	server := &http.Server{
		Handler:           fake.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- server.Serve(ln)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	slog.Info("devserver stopped")
	return nil
}
