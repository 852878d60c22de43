package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"

	"storefeed/api"
	"storefeed/internal/scheduler"
	"storefeed/linktree"
	"storefeed/youtube"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "serve":
		cmdServe(args)
	case "sync":
		cmdSync(args)
	case "videos":
		cmdVideos(args)
	case "links":
		cmdLinks(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `storefeed - storefront video feed and link tree

Usage:
  storefeed serve [flags]    Run the HTTP API and the sync schedule
  storefeed sync [flags]     Run one YouTube sync and exit
  storefeed videos [flags]   List the stored videos
  storefeed links [flags]    List the link-tree rows
  storefeed help             Show this help message

Examples:
  storefeed serve --config storefeed.yaml
  YOUTUBE_API_KEY=... YOUTUBE_CHANNEL_ID=UCxxxx storefeed sync
  storefeed links --active

For help on specific command: storefeed <command> -h
`)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

// setup parses flags, loads config and builds the app.
func setup(fs *flag.FlagSet, args []string) *app {
	configPath := fs.String("config", "", "Path to a YAML or JSON config file")
	fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fatalf("loading config: %v", err)
	}
	a, err := newApp(cfg)
	if err != nil {
		fatalf("%v", err)
	}
	return a
}

func cmdServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: storefeed serve [flags]\n\nFlags:\n")
		fs.PrintDefaults()
	}
	a := setup(fs, args)
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var syncer api.Syncer
	sm, err := a.syncManager(ctx)
	if err != nil {
		a.logger.Warn("youtube sync disabled", zap.Error(err))
	} else {
		syncer = sm
	}

	sched := scheduler.New(a.logger.Named("scheduler"), a.cfg.FetchTimeout+time.Minute)
	if sm != nil && a.cfg.SyncSchedule != "" {
		err := sched.Add("youtube-sync", a.cfg.SyncSchedule, func(ctx context.Context) error {
			_, err := sm.Run(ctx, a.limits())
			if errors.Is(err, youtube.ErrSyncInProgress) {
				return nil
			}
			return err
		})
		if err != nil {
			fatalf("%v", err)
		}
	}
	sched.Start()

	if sm != nil && a.cfg.SyncOnStart {
		go func() {
			if _, err := sm.Run(ctx, a.limits()); err != nil {
				a.logger.Error("startup sync failed", zap.Error(err))
			}
		}()
	}

	server := api.New(api.Config{
		Videos:      a.store,
		Links:       linktree.NewService(a.store),
		Sync:        syncer,
		Limits:      a.limits(),
		CORSOrigins: a.cfg.CORSOrigins,
		Metrics:     a.metrics,
		Logger:      a.logger.Named("api"),
	})

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("listening", zap.String("addr", a.cfg.ListenAddr))
		errCh <- server.Listen(a.cfg.ListenAddr)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			a.logger.Error("server stopped", zap.Error(err))
		}
	case <-ctx.Done():
		a.logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.ShutdownWithContext(shutdownCtx); err != nil {
		a.logger.Warn("server shutdown", zap.Error(err))
	}
	if err := sched.Stop(shutdownCtx); err != nil {
		a.logger.Warn("scheduler shutdown", zap.Error(err))
	}
}

func cmdSync(args []string) {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	maxVideos := fs.Int("videos", -1, "Maximum regular videos to keep (default from config)")
	maxShorts := fs.Int("shorts", -1, "Maximum shorts to keep (default from config)")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: storefeed sync [flags]\n\nFlags:\n")
		fs.PrintDefaults()
	}
	a := setup(fs, args)
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sm, err := a.syncManager(ctx)
	if err != nil {
		fatalf("%v", err)
	}

	limits := a.limits()
	if *maxVideos >= 0 {
		limits.MaxVideos = *maxVideos
	}
	if *maxShorts >= 0 {
		limits.MaxShorts = *maxShorts
	}

	fmt.Fprintf(os.Stderr, "Syncing channel %s...\n", a.cfg.YouTubeChannelID)
	result, err := sm.Run(ctx, limits)
	if err != nil {
		fatalf("sync failed: %v", err)
	}
	if result.Skipped {
		fmt.Println("Nothing to sync; stored videos left unchanged.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TYPE\tORDER\tVIDEO ID\tTITLE")
	for _, v := range result.Stored {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", v.Type, v.Order, v.VideoID, truncate(v.Title, 60))
	}
	w.Flush()

	fmt.Fprintf(os.Stderr, "\nStored %d videos and %d shorts from %d candidates in %s\n",
		result.Videos, result.Shorts, result.Candidates, result.Duration.Round(time.Millisecond))
}

func cmdVideos(args []string) {
	fs := flag.NewFlagSet("videos", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: storefeed videos [flags]\n\nFlags:\n")
		fs.PrintDefaults()
	}
	a := setup(fs, args)
	defer a.Close()

	videos, err := a.store.ListVideos(context.Background())
	if err != nil {
		fatalf("listing videos: %v", err)
	}
	if len(videos) == 0 {
		fmt.Println("No videos stored.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TYPE\tORDER\tVIDEO ID\tTITLE\tUPDATED")
	for _, v := range videos {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n",
			v.Type, v.Order, v.VideoID, truncate(v.Title, 50), v.UpdatedAt.Format(time.RFC3339))
	}
	w.Flush()

	fmt.Fprintf(os.Stderr, "\nTotal: %d videos\n", len(videos))
}

func cmdLinks(args []string) {
	fs := flag.NewFlagSet("links", flag.ExitOnError)
	activeOnly := fs.Bool("active", false, "Only list active rows")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: storefeed links [flags]\n\nFlags:\n")
		fs.PrintDefaults()
	}
	a := setup(fs, args)
	defer a.Close()

	rows, err := linktree.NewService(a.store).List(context.Background(), *activeOnly)
	if err != nil {
		fatalf("listing links: %v", err)
	}
	if len(rows) == 0 {
		fmt.Println("No link rows.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ORDER\tTEXT\tHREF\tCATEGORY\tACTIVE")
	for _, r := range rows {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%v\n", r.Order, truncate(r.Text, 40), r.Href, r.Category, r.Active)
	}
	w.Flush()
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
