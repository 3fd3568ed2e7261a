package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"nestling/internal/cmdlog"
	"nestling/internal/config"
	"nestling/internal/metrics"
	"nestling/internal/render"
	"nestling/internal/xclient"
)

func runCmd() *cobra.Command {
	var quiet bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Poll the home timeline until interrupted",
		Long: "Poll the home timeline until interrupted. When metrics.addr is set the same\n" +
			"server also accepts POST /read/{id} and POST /refresh.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Context())
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return cmdlog.Run(ctx, "run", func(ctx context.Context) error {
				p, err := newPrinter(cmd, cfg, quiet)
				if err != nil {
					return err
				}
				return run(ctx, cfg, p)
			})
		},
	}
	cmd.Flags().BoolVar(&quiet, "quiet", false, "do not print new tweets")
	return cmd
}

func refreshCmd() *cobra.Command {
	var quiet bool
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Fetch new tweets once, merge them and save",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Context())
			if err != nil {
				return err
			}
			return cmdlog.Run(cmd.Context(), "refresh", func(ctx context.Context) error {
				if err := requireCredentials(cfg); err != nil {
					return err
				}
				p, err := newPrinter(cmd, cfg, quiet)
				if err != nil {
					return err
				}
				unread, err := refresh(ctx, cfg, newFetcher(cfg), p)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d unread\n", unread)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&quiet, "quiet", false, "do not print new tweets")
	return cmd
}

func newPrinter(cmd *cobra.Command, cfg config.Config, quiet bool) (*render.Printer, error) {
	if quiet {
		return nil, nil
	}
	images, err := openImages(cfg)
	if err != nil {
		return nil, err
	}
	return render.NewPrinter(cmd.OutOrStdout(), images), nil
}

func requireCredentials(cfg config.Config) error {
	if !cfg.Credentials.Complete() {
		return errors.New("missing OAuth credentials: set them in the config or X_CONSUMER_KEY, X_CONSUMER_SECRET, X_ACCESS_TOKEN, X_ACCESS_SECRET")
	}
	return nil
}

func newFetcher(cfg config.Config) *xclient.V1Client {
	return xclient.NewV1Client(
		xclient.NewHTTPClient(cfg.General.APIBaseURL),
		cfg.Credentials.ConsumerKey, cfg.Credentials.ConsumerSecret,
		cfg.Credentials.AccessToken, cfg.Credentials.AccessSecret,
	)
}

// run supervises the poller, the consumer and the metrics server, then
// persists the timeline and the watermarks. A failure to persist is
// returned so the process exits non-zero.
func run(ctx context.Context, cfg config.Config, printer *render.Printer) error {
	if err := requireCredentials(cfg); err != nil {
		return err
	}
	d, err := newDaemon(ctx, cfg, newFetcher(cfg), printer)
	if err != nil {
		return err
	}
	defer d.close()
	slog.InfoContext(ctx, "timeline loaded", "entries", d.store.Len(), "unread", d.store.UnreadCount(), "since_id", d.marks.LastUpdateID())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return d.sched.Run(gctx) })
	g.Go(func() error { return d.consumer.Run(gctx) })
	g.Go(func() error { return metrics.Serve(gctx, cfg.Metrics.Addr, d.routes) })
	runErr := g.Wait()

	// The poller may have handed off a batch after the consumer's last drain.
	return errors.Join(runErr, d.shutdown(context.WithoutCancel(ctx)))
}

// refresh performs one fetch and merge outside the poll loop and saves the
// result. It returns the unread count afterwards.
func refresh(ctx context.Context, cfg config.Config, f xclient.HomeTimelineFetcher, printer *render.Printer) (int, error) {
	d, err := newDaemon(ctx, cfg, f, printer)
	if err != nil {
		return 0, err
	}
	defer d.close()
	if err := d.refresh(ctx); err != nil {
		return 0, err
	}
	if err := d.shutdown(ctx); err != nil {
		return 0, err
	}
	return d.store.UnreadCount(), nil
}
