// Package main provides the overlay relay server entry point.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	apiconnect "github.com/osa030/onair/internal/api/connect"
	"github.com/osa030/onair/internal/api/httpapi"
	"github.com/osa030/onair/internal/api/ws"
	"github.com/osa030/onair/internal/app/hub"
	"github.com/osa030/onair/internal/app/overlay"
	"github.com/osa030/onair/internal/app/playback"
	"github.com/osa030/onair/internal/infra/config"
	"github.com/osa030/onair/internal/infra/lifecycle"
	"github.com/osa030/onair/internal/infra/logger"
	"github.com/osa030/onair/internal/infra/sqlite"
)

var (
	app        = kingpin.New("onair-relay", "onair overlay relay server")
	configPath = app.Flag("config", "Path to config file").Default("config/onair.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()
	watch      = app.Flag("watch", "Reload the config file when it changes").Default("true").Bool()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	kingpin.MustParse(app.Parse(os.Args[1:]))

	loggerConfig := logger.Config{
		Service: "relay",
		Output:  "stdout",
		Level:   "info",
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
	}
	if err := logger.Init(loggerConfig); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}
	if !*verbose {
		logger.SetLevel(cfg.Log.Level)
	}

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Relay error: %v", err)
		os.Exit(1)
	}
}

// run wires the relay and blocks until a shutdown signal or a server error.
func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := sqlite.Open(ctx, cfg.Storage.Path)
	if err != nil {
		return errors.Wrap(err, "failed to open state store")
	}
	defer func() {
		if err := store.Close(); err != nil {
			zlog.Error().Msgf("Failed to close state store: %v", err)
		}
	}()

	broadcast := hub.New(hub.Config{
		HeartbeatInterval: cfg.Hub.HeartbeatInterval(),
		WriteTimeout:      cfg.Hub.WriteTimeout(),
		SendBuffer:        cfg.Hub.SendBuffer,
	})
	clock := playback.NewClock(store, broadcast, playback.Config{Interval: cfg.Playback.TickInterval()})
	overlaySvc := overlay.NewService(store, broadcast)

	mux := http.NewServeMux()
	httpapi.RegisterRelay(mux, httpapi.RelayDeps{
		Token:        cfg.Relay.Token,
		AllowOrigins: cfg.Relay.AllowOrigins,
		Overlay:      overlaySvc,
		Playback:     clock,
		Store:        store,
		Hub:          broadcast,
		WS:           ws.NewHandler(broadcast, clock, cfg.Relay.AllowOrigins),
		Started:      time.Now(),
	})
	adminAuth := connect.WithInterceptors(apiconnect.NewAdminAuthInterceptor(cfg.Admin.Token))
	mux.Handle(apiconnect.NewPlaybackAdminHandler(apiconnect.NewPlaybackAdminService(clock), adminAuth))
	mux.Handle(apiconnect.NewCatalogAdminHandler(apiconnect.NewCatalogAdminService(store), adminAuth))

	server := &http.Server{
		Addr:              cfg.Relay.Addr,
		Handler:           h2c.NewHandler(mux, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", cfg.Relay.Addr)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", cfg.Relay.Addr)
	}

	if err := broadcast.Start(ctx); err != nil {
		return errors.Wrap(err, "failed to start hub")
	}
	if err := clock.Start(cfg.Playback.TickInterval()); err != nil {
		return errors.Wrap(err, "failed to start clock")
	}

	serverErrCh := make(chan error, 1)
	go func() {
		zlog.Info().Msgf("Starting relay: addr=%s", ln.Addr())
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	if *watch {
		go func() {
			if err := config.Watch(ctx, *configPath, reloader(clock)); err != nil {
				zlog.Error().Msgf("Config watch stopped: %v", err)
			}
		}()
	}

	lifecycle.RunHooks(ctx, cfg.Relay.Hooks.OnStarted, "on_started")
	lifecycle.Ready()

	var serveErr error
	select {
	case <-ctx.Done():
		zlog.Info().Msg("Received shutdown signal...")
	case serveErr = <-serverErrCh:
		zlog.Error().Msgf("Server error: %v", serveErr)
	}
	lifecycle.Stopping()

	// Stop producing events before disconnecting viewers.
	clock.Close()
	broadcast.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}

	zlog.Info().Msg("Relay stopped")

	lifecycle.RunHooks(shutdownCtx, cfg.Relay.Hooks.OnStopped, "on_stopped")

	if serveErr != nil {
		return errors.Wrap(serveErr, "server error")
	}
	return nil
}

// reloader applies the reloadable settings of a changed config file.
func reloader(clock *playback.Clock) func(*config.Config) {
	return func(next *config.Config) {
		lifecycle.Reloading()
		defer lifecycle.Ready()

		logger.SetLevel(next.Log.Level)

		interval := next.Playback.TickInterval()
		if clock.Running() && clock.Interval() != interval {
			if err := clock.Start(interval); err != nil {
				zlog.Error().Msgf("Failed to apply tick interval: %v", err)
				return
			}
			zlog.Info().Msgf("Tick interval changed: interval=%v", interval)
		}
	}
}
