package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/urfave/cli"

	"eventtimers/internal/catalog"
	appLog "eventtimers/internal/log"
	"eventtimers/internal/notify"
	"eventtimers/internal/store"
	"eventtimers/internal/web"
)

var runFlags = []cli.Flag{
	cli.StringFlag{
		Name:  "listen, l",
		Usage: "HTTP listen address (overrides config if set)",
	},
	cli.BoolFlag{
		Name:  "no-http",
		Usage: "do not start the HTTP API",
	},
}

func runCmd(c *cli.Context) error {
	e, err := loadEnv(c)
	if err != nil {
		return err
	}
	if l := c.String("listen"); l != "" {
		e.cfg.Listen = l
	}

	appLog.Info("eventtimers starting", "version", version)
	appLog.Info("effective config",
		"listen", e.cfg.Listen,
		"timezone", e.cfg.Timezone,
		"frame_ms", e.cfg.FrameMillis,
		"catalog", e.cfg.Catalog.Path,
		"catalog_url_set", e.cfg.Catalog.URL != "",
		"refresh", e.cfg.Catalog.Refresh,
		"reminders", len(e.cfg.Notifications.Reminders),
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case sig := <-sigCh:
			appLog.Info("signal received, shutting down", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	tracks, err := e.tracks(time.Now())
	if err != nil {
		return err
	}
	st, err := e.newStore(tracks)
	if err != nil {
		return err
	}
	sched := notify.New(st)

	var saveMu sync.Mutex
	persist := func() {
		saveMu.Lock()
		defer saveMu.Unlock()
		if err := e.saveState(st); err != nil {
			appLog.Error("failed to save state", err, "path", e.path)
		}
	}

	cr := cron.New()
	if _, err := cr.AddFunc(e.cfg.Catalog.Refresh, func() {
		refreshCatalog(ctx, e, st)
	}); err != nil {
		return err
	}
	cr.Start()

	httpErr := make(chan error, 1)
	if c.Bool("no-http") {
		close(httpErr)
	} else {
		srv := web.NewServer(e.cfg, st, sched)
		srv.OnChange(persist)
		go func() {
			httpErr <- srv.ListenAndServe(ctx)
			close(httpErr)
		}()
	}

	runErr := frameLoop(ctx, e.cfg.FrameInterval(), sched, httpErr)
	cancel()

	// Wait for running jobs before the final save.
	<-cr.Stop().Done()
	for err := range httpErr {
		if err != nil && runErr == nil {
			runErr = err
		}
	}

	persist()
	appLog.Info("eventtimers exiting")
	return runErr
}

// frameLoop ticks the scheduler every interval until ctx is done or the HTTP
// server fails.
func frameLoop(ctx context.Context, interval time.Duration, sched *notify.Scheduler, httpErr <-chan error) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sched.Tick(time.Now())
	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-httpErr:
			if !ok {
				httpErr = nil
				continue
			}
			if err != nil {
				appLog.Error("HTTP server stopped", err)
				return err
			}
		case now := <-ticker.C:
			sched.Tick(now)
		}
	}
}

// refreshCatalog checks the update URL, then reloads the local document.
// The reload also moves day-start anchors forward.
func refreshCatalog(ctx context.Context, e *env, st *store.Store) {
	if e.cfg.Catalog.URL != "" {
		f := catalog.NewFetcher(appFs, e.cfg.Catalog.Path, e.cfg.Catalog.URL, nil)
		updated, err := f.Check(ctx)
		switch {
		case errors.Is(err, catalog.ErrNotModified):
		case err != nil:
			appLog.Error("catalog update failed", err)
		case updated:
			appLog.Info("catalog update installed", "path", e.cfg.Catalog.Path)
		}
	}

	tracks, err := e.tracks(time.Now())
	if err != nil {
		appLog.Error("catalog reload failed, keeping current tracks", err)
		return
	}
	st.SetTracks(tracks)
	appLog.Debug("catalog reloaded", "tracks", len(tracks))
}
