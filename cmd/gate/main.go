// Package main provides the ingress gate entry point.
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
	"github.com/osa030/onair/internal/app/relay"
	"github.com/osa030/onair/internal/infra/config"
	"github.com/osa030/onair/internal/infra/fallback"
	"github.com/osa030/onair/internal/infra/lifecycle"
	"github.com/osa030/onair/internal/infra/logger"
	"github.com/osa030/onair/internal/infra/relayclient"
)

const relayPingTimeout = 5 * time.Second

var (
	app        = kingpin.New("onair-gate", "onair ingress gate")
	configPath = app.Flag("config", "Path to config file").Default("config/onair.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()
	watch      = app.Flag("watch", "Reload the log level when the config file changes").Default("true").Bool()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	kingpin.MustParse(app.Parse(os.Args[1:]))

	loggerConfig := logger.Config{
		Service: "gate",
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
		zlog.Error().Msgf("Gate error: %v", err)
		os.Exit(1)
	}
}

// run wires the gate and blocks until a shutdown signal or a server error.
func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := relayclient.New(relayclient.Config{
		BaseURL: cfg.Gate.RelayURL,
		Token:   cfg.Relay.Token,
		Timeout: cfg.Gate.ForwardTimeout(),
	})
	if err != nil {
		return errors.Wrap(err, "failed to create relay client")
	}

	queue, err := fallback.Open(cfg.Gate.FallbackPath)
	if err != nil {
		return errors.Wrap(err, "failed to open fallback queue")
	}
	if n, err := queue.Len(ctx); err == nil && n > 0 {
		zlog.Info().Msgf("Fallback queue has pending messages: count=%d path=%s", n, queue.Path())
	}

	forwarder := relay.NewForwarder(client, queue, relay.Config{
		ForwardTimeout: cfg.Gate.ForwardTimeout(),
		DrainRate:      cfg.Gate.DrainRatePerSec,
	})

	scheduler, err := relay.NewScheduler(cfg.Gate.DrainSchedule, forwarder)
	if err != nil {
		return errors.Wrap(err, "failed to create drain schedule")
	}

	mux := http.NewServeMux()
	httpapi.RegisterGate(mux, httpapi.GateDeps{
		Token:        cfg.Relay.Token,
		AllowOrigins: cfg.Gate.AllowOrigins,
		Forwarder:    forwarder,
		Relay:        pingWithTimeout{client},
		Started:      time.Now(),
	})
	mux.Handle(apiconnect.NewGateAdminHandler(
		apiconnect.NewGateAdminService(forwarder),
		connect.WithInterceptors(apiconnect.NewAdminAuthInterceptor(cfg.Admin.Token)),
	))

	server := &http.Server{
		Addr:              cfg.Gate.Addr,
		Handler:           h2c.NewHandler(mux, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", cfg.Gate.Addr)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", cfg.Gate.Addr)
	}

	if err := scheduler.Start(ctx); err != nil {
		return err
	}

	serverErrCh := make(chan error, 1)
	go func() {
		zlog.Info().Msgf("Starting gate: addr=%s relay=%s", ln.Addr(), cfg.Gate.RelayURL)
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	if *watch {
		go func() {
			err := config.Watch(ctx, *configPath, func(next *config.Config) {
				logger.SetLevel(next.Log.Level)
			})
			if err != nil {
				zlog.Error().Msgf("Config watch stopped: %v", err)
			}
		}()
	}

	lifecycle.RunHooks(ctx, cfg.Gate.Hooks.OnStarted, "on_started")
	lifecycle.Ready()

	var serveErr error
	select {
	case <-ctx.Done():
		zlog.Info().Msg("Received shutdown signal...")
	case serveErr = <-serverErrCh:
		zlog.Error().Msgf("Server error: %v", serveErr)
	}
	lifecycle.Stopping()

	scheduler.Stop()
	forwarder.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}

	zlog.Info().Msg("Gate stopped")

	lifecycle.RunHooks(shutdownCtx, cfg.Gate.Hooks.OnStopped, "on_stopped")

	if serveErr != nil {
		return errors.Wrap(serveErr, "server error")
	}
	return nil
}

// pingWithTimeout bounds relay health probes.
type pingWithTimeout struct {
	client *relayclient.Client
}

func (p pingWithTimeout) Ping(ctx context.Context) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, relayPingTimeout)
	defer cancel()
	return p.client.Ping(ctx)
}
