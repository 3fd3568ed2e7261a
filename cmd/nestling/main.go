package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"nestling/internal/archive"
	"nestling/internal/cmdlog"
	"nestling/internal/config"
	"nestling/internal/imagecache"
	"nestling/internal/logging"
	"nestling/internal/model"
	"nestling/internal/render"
	"nestling/internal/timeline"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:           "nestling",
		Short:         "Headless Twitter home timeline with read state and avatar cache",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath(), "config file path")

	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(refreshCmd())
	rootCmd.AddCommand(showCmd())
	rootCmd.AddCommand(readCmd())
	rootCmd.AddCommand(avatarCmd())
	rootCmd.AddCommand(archiveCmd())

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// loadConfig reads (creating if needed) and validates the config file, then
// installs the configured logger.
func loadConfig(ctx context.Context) (config.Config, error) {
	cfg, err := config.LoadOrCreate(ctx, configPath)
	if err != nil {
		return cfg, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", configPath, err)
	}
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return cfg, err
	}
	logging.SetupDefault(os.Stderr, cfg.Logging.Format, level)
	return cfg, nil
}

func openImages(cfg config.Config) (*imagecache.Cache, error) {
	return imagecache.New(cfg.Storage.ImageCacheDir,
		imagecache.WithMaxEntries(cfg.Storage.ImageCacheMaxEntries),
		imagecache.WithLogger(slog.Default()),
	)
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdlog.Run(cmd.Context(), "init", func(ctx context.Context) error {
				if _, err := os.Stat(configPath); err == nil && !force {
					return fmt.Errorf("%s already exists (use --force to overwrite)", configPath)
				}
				if err := config.Save(configPath, config.Default()); err != nil {
					return err
				}
				abs, _ := filepath.Abs(configPath)
				render.PrintBanner()
				fmt.Println("Config written to:", abs)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config")
	return cmd
}

func showCmd() *cobra.Command {
	var unreadOnly, markup bool
	var limit int
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the saved home timeline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Context())
			if err != nil {
				return err
			}
			return cmdlog.Run(cmd.Context(), "show", func(ctx context.Context) error {
				entries, err := timeline.Load(cfg.Storage.TimelinePath)
				if err != nil {
					return err
				}
				view := timeline.NewStore(entries).View(timeline.Filter{
					UnreadOnly: unreadOnly || cfg.HomeTimeline.UnreadOnly,
					Muted:      cfg.HomeTimeline.Muted,
				})
				if limit > 0 && len(view) > limit {
					view = view[:limit]
				}
				images, err := openImages(cfg)
				if err != nil {
					return err
				}
				p := render.NewPrinter(cmd.OutOrStdout(), images)
				p.Markup = markup
				return p.Print(ctx, view)
			})
		},
	}
	cmd.Flags().BoolVar(&unreadOnly, "unread", false, "only unread tweets")
	cmd.Flags().BoolVar(&markup, "markup", false, "render links as <a href> markup")
	cmd.Flags().IntVar(&limit, "limit", 0, "print at most n tweets (0 = all)")
	return cmd
}

func readCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "read [id...]",
		Short: "Mark tweets as read",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !all && len(args) == 0 {
				return errors.New("give at least one tweet id, or --all")
			}
			cfg, err := loadConfig(cmd.Context())
			if err != nil {
				return err
			}
			return cmdlog.Run(cmd.Context(), "read", func(ctx context.Context) error {
				entries, err := timeline.Load(cfg.Storage.TimelinePath)
				if err != nil {
					return err
				}
				store := timeline.NewStore(entries)
				marks := config.NewWatermarks(cfg.HomeTimeline)

				ids := make([]model.TweetID, 0, len(args))
				if all {
					for _, e := range store.View(timeline.Filter{UnreadOnly: true}) {
						ids = append(ids, e.ID())
					}
				}
				for _, a := range args {
					id, err := model.ParseTweetID(a)
					if err != nil {
						return fmt.Errorf("tweet id %q: %w", a, err)
					}
					ids = append(ids, id)
				}

				marked := 0
				for _, id := range ids {
					if store.AcknowledgeRead(id) {
						marked++
						marks.MarkRead(id)
					} else {
						slog.WarnContext(ctx, "tweet not in timeline", "id", id)
					}
				}
				if marked == 0 {
					return nil
				}
				if err := timeline.Save(cfg.Storage.TimelinePath, store.Snapshot()); err != nil {
					return err
				}
				if err := config.SaveWatermarks(configPath, marks); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "marked %d read, %d unread left\n", marked, store.UnreadCount())
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "mark every tweet read")
	return cmd
}

func avatarCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "avatar <url>",
		Short: "Resolve an image URL to its cached file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Context())
			if err != nil {
				return err
			}
			return cmdlog.Run(cmd.Context(), "avatar", func(ctx context.Context) error {
				images, err := openImages(cfg)
				if err != nil {
					return err
				}
				path, err := images.Resolve(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), path)
				return nil
			})
		},
	}
}

func archiveCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "archive <screen_name>",
		Short: "Print archived tweets by an author",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Context())
			if err != nil {
				return err
			}
			return cmdlog.Run(cmd.Context(), "archive", func(ctx context.Context) error {
				if cfg.Storage.ArchivePath == "" {
					return errors.New("storage.archivePath is not configured")
				}
				a, err := archive.Open(cfg.Storage.ArchivePath)
				if err != nil {
					return err
				}
				defer a.Close()
				entries, err := a.ByAuthor(ctx, args[0], limit)
				if err != nil {
					return err
				}
				total, err := a.Count(ctx)
				if err != nil {
					return err
				}
				if err := render.NewPrinter(cmd.OutOrStdout(), nil).Print(ctx, entries); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d of %d archived tweets\n", len(entries), total)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "print at most n tweets (0 = all)")
	return cmd
}
