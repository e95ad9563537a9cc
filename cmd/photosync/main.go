package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jthorburn/photosync/internal/account"
	"github.com/jthorburn/photosync/internal/config"
	"github.com/jthorburn/photosync/internal/logging"
	"github.com/jthorburn/photosync/internal/media"
	"github.com/jthorburn/photosync/internal/reconcile"
	"github.com/jthorburn/photosync/internal/remote"
	"github.com/jthorburn/photosync/internal/store"
	"github.com/jthorburn/photosync/internal/transfer"
)

var Version = "dev"

func main() {
	if err := run(); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}

		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// accountSync bundles the per-account collaborators. The remote client
// is account-scoped because every account has its own base URL.
type accountSync struct {
	acct        account.Context
	directories *reconcile.DirectoryReconciler
	assets      *reconcile.AssetReconciler
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.NewLogger(cfg.Environment)
	logger.Info("photosync starting", slog.String("version", Version))

	registry, err := account.LoadRegistry(cfg.AccountsFile)
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.StateDBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	queue := transfer.NewQueue(logger)
	library := media.NewLibrary(cfg.LibraryDir)

	naming := reconcile.Naming{
		Mask:                cfg.FileNameMask,
		KeepOriginal:        cfg.FileNameOriginal,
		FormatCompatibility: cfg.FormatCompatibility,
	}

	viewCfg := reconcile.ViewConfig{
		Sort:             reconcile.SortByName,
		Ascending:        true,
		DirectoriesFirst: true,
		FavoritesFirst:   true,
	}

	var syncs []*accountSync

	for _, acct := range registry.All() {
		lister := remote.NewHTTPClient(acct.BaseURL, nil)
		acctLogger := logging.ForAccount(logger, acct.Name)

		syncs = append(syncs, &accountSync{
			acct:        acct,
			directories: reconcile.NewDirectoryReconciler(st, lister, queue, viewCfg, acctLogger),
			assets:      reconcile.NewAssetReconciler(st, library, lister, queue, naming, acctLogger),
		})
	}

	if len(syncs) == 0 {
		return fmt.Errorf("no accounts configured in %s", cfg.AccountsFile)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if len(os.Args) > 1 {
		return runCommand(ctx, os.Args[1:], syncs, logger)
	}

	return runLoop(ctx, cfg, syncs, library, logger)
}

// runCommand executes a one-shot subcommand: align, upload-all or refresh.
func runCommand(ctx context.Context, args []string, syncs []*accountSync, logger *slog.Logger) error {
	cmd := args[0]

	name := ""
	if len(args) > 1 {
		name = args[1]
	}

	s, err := findAccount(syncs, name)
	if err != nil {
		return err
	}

	switch cmd {
	case "align":
		count, err := s.assets.RealignLedger(ctx, s.acct)
		if err != nil {
			return err
		}

		logger.Info("ledger aligned", slog.Int("assets", count))

	case "upload-all":
		count, err := s.assets.ReconcileNewAssets(ctx, s.acct, reconcile.TriggerBulk)
		if err != nil {
			return err
		}

		logger.Info("bulk upload queued", slog.Int("assets", count))

	case "refresh":
		dir := strings.TrimRight(s.acct.BaseURL, "/")
		if len(args) > 2 {
			dir = dir + "/" + strings.Trim(args[2], "/")
		}

		view, err := s.directories.Refresh(ctx, reconcile.Scope{Account: s.acct.Name, ServerURL: dir}, true)
		if err != nil {
			return err
		}

		logger.Info("directory refreshed",
			slog.String("serverUrl", dir),
			slog.Int("records", len(view.AllRecords())),
		)

	default:
		return fmt.Errorf("unknown command %q (want align, upload-all or refresh)", cmd)
	}

	return nil
}

func findAccount(syncs []*accountSync, name string) (*accountSync, error) {
	if name == "" {
		return syncs[0], nil
	}

	for _, s := range syncs {
		if s.acct.Name == name {
			return s, nil
		}
	}

	return nil, fmt.Errorf("account %q not configured", name)
}

// runLoop is the long-running mode: an initial pass, then periodic
// ticks, library-watcher triggers and optional change-notify pushes, all
// feeding the same coalesced reconcilers.
func runLoop(ctx context.Context, cfg *config.Config, syncs []*accountSync, library *media.Library, logger *slog.Logger) error {
	g, gctx := errgroup.WithContext(ctx)

	reconcileAll := func(trigger reconcile.TriggerKind) {
		for _, s := range syncs {
			count, err := s.assets.ReconcileNewAssets(gctx, s.acct, trigger)
			if err != nil {
				logger.Warn("asset reconciliation failed",
					slog.String("account", s.acct.Name),
					slog.String("error", err.Error()),
				)

				continue
			}

			if count == 0 {
				continue
			}

			// New uploads should appear in the destination listing.
			scope := reconcile.Scope{Account: s.acct.Name, ServerURL: s.acct.UploadRoot()}
			if _, err := s.directories.Refresh(gctx, scope, false); err != nil {
				logger.Warn("post-upload refresh failed",
					slog.String("account", s.acct.Name),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	g.Go(func() error {
		reconcileAll(reconcile.TriggerIncremental)

		ticker := time.NewTicker(cfg.ScanInterval)
		defer ticker.Stop()

		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-ticker.C:
				reconcileAll(reconcile.TriggerIncremental)
			}
		}
	})

	if cfg.LibraryDir != "" {
		watcher := media.NewWatcher(library, logger, func() {
			reconcileAll(reconcile.TriggerIncremental)
		})

		g.Go(func() error {
			return watcher.Watch(gctx)
		})
	}

	if cfg.NotifyEnabled {
		for _, s := range syncs {
			s := s
			notifier := remote.NewNotifier(notifyURL(s.acct.BaseURL), logger, func(ev remote.ChangeEvent) {
				scope := reconcile.Scope{Account: s.acct.Name, ServerURL: ev.ServerURL}
				if _, err := s.directories.Refresh(gctx, scope, false); err != nil {
					logger.Warn("notify refresh failed",
						slog.String("serverUrl", ev.ServerURL),
						slog.String("error", err.Error()),
					)
				}
			})

			g.Go(func() error {
				return notifier.Run(gctx)
			})
		}
	}

	return g.Wait()
}

// notifyURL derives the change-notify websocket endpoint from the
// account's base URL.
func notifyURL(baseURL string) string {
	u := strings.TrimRight(baseURL, "/")
	u = strings.Replace(u, "https://", "wss://", 1)
	u = strings.Replace(u, "http://", "ws://", 1)

	return u + "/notify"
}
