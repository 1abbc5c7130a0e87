// ABOUTME: Sync CLI commands
// ABOUTME: One-shot forced refresh and a live-sync daemon loop
package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/harperreed/funnel/models"
)

// SyncCommand forces a refresh of both collections and the group list.
func SyncCommand(app *App, args []string) error {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	timeout := fs.Duration("timeout", 60*time.Second, "Overall sync timeout")
	_ = fs.Parse(args)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	app.Store.Hydrate()
	if err := app.Store.Load(ctx, models.TypeClient, true); err != nil {
		return fmt.Errorf("client sync failed: %w", err)
	}
	if err := app.Store.Load(ctx, models.TypeLead, true); err != nil {
		return fmt.Errorf("lead sync failed: %w", err)
	}
	if err := app.Store.AttachOpportunities(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "warning: opportunity sync failed: %v\n", err)
	}
	if _, err := app.Store.Groups(ctx, true); err != nil {
		fmt.Fprintf(os.Stderr, "warning: group sync failed: %v\n", err)
	}

	fmt.Printf("Synced %d clients, %d leads\n", len(app.Store.Clients()), len(app.Store.Leads()))
	return nil
}

// DaemonCommand runs the live-sync channel until interrupted, applying
// pushed updates to the store and mirroring them to the cache.
func DaemonCommand(app *App, args []string) error {
	fs := flag.NewFlagSet("daemon", flag.ExitOnError)
	interval := fs.Duration("refresh-interval", 5*time.Minute, "Periodic full-refresh interval")
	_ = fs.Parse(args)

	if app.Live == nil {
		return fmt.Errorf("live sync is disabled in config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app.Store.Hydrate()
	if err := app.Store.Start(ctx); err != nil {
		return fmt.Errorf("failed to start live sync: %w", err)
	}
	if err := app.Store.Load(ctx, models.TypeClient, false); err != nil {
		zap.L().Warn("initial refresh failed", zap.Error(err))
	}

	fmt.Printf("Live sync running (device %s). Ctrl-C to stop.\n", app.Live.DeviceID())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	for {
		select {
		case <-sigCh:
			fmt.Println("\nStopping.")
			return nil
		case <-ticker.C:
			if err := app.Store.Load(ctx, models.TypeClient, true); err != nil {
				zap.L().Warn("periodic refresh failed", zap.Error(err))
			}
		}
	}
}
