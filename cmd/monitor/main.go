// Command monitor runs the launch-lifecycle monitor: it loads the
// chain/catalog/threshold configuration, wires the RPC pool, catalog
// client, FDV calculator and lifecycle state machine, and serves the
// dashboard's REST + push-socket surface until terminated.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/launchwatch/monitor/internal/api"
	"github.com/launchwatch/monitor/internal/catalog"
	"github.com/launchwatch/monitor/internal/chain/rpcpool"
	"github.com/launchwatch/monitor/internal/config"
	"github.com/launchwatch/monitor/internal/errkind"
	"github.com/launchwatch/monitor/internal/fdv"
	"github.com/launchwatch/monitor/internal/lifecycle"
	"github.com/launchwatch/monitor/internal/logging"
	"github.com/launchwatch/monitor/internal/notifier"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := getenv("CONFIG_PATH", "configs/config.yml")
	apiPort := getenv("API_PORT", "4000")
	healthPort := getenv("HEALTH_PORT", "3000")

	cfg, err := config.Load(configPath)
	if err != nil {
		zlog := logging.New("info")
		zlog.Error().Err(err).Str("path", configPath).Msg("failed to load configuration")
		return 1
	}

	log := logging.New(cfg.Logging.Level)

	receiver := common.HexToAddress(cfg.Addresses.BuybackAddr)
	baseToken := common.HexToAddress(cfg.Addresses.VirtualToken)
	threshold, err := cfg.BigTradeThreshold()
	if err != nil {
		log.Error().Err(err).Msg("invalid threshold configuration")
		return 1
	}

	pool := rpcpool.New(cfg.Chain.RPC.HTTP, cfg.Chain.RPC.WSS, log)
	defer pool.Shutdown()

	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if selErr := pool.SelectFastest(rootCtx); selErr != nil {
		log.Warn().Err(selErr).Msg("could not race endpoints at startup, using the first configured one")
	}

	catalogClient := catalog.New(cfg.Virtuals.APIBase, "", log)
	fdvCalc := fdv.New(cfg.Virtuals.UsdQuoteURL)
	surface := api.New(log)
	health := lifecycle.NewHealthServer()

	deps := lifecycle.Deps{
		Catalog:           catalogClient,
		Sink:              surface,
		Notifier:          &notifier.Logging{Underlying: notifier.Noop{}, Log: log},
		Health:            health,
		FDVCalc:           fdvCalc,
		TaxFactory:        lifecycle.NewTaxTrackerFactory(pool, baseToken, receiver, log),
		WhaleFactory:      lifecycle.NewWhaleMonitorFactory(pool, baseToken, threshold, log),
		BuybackFactory:    lifecycle.NewBuybackMonitorFactory(pool, baseToken, receiver, cfg.BuybackRateWindow(), cfg.StallAlert(), log),
		FDVFactory:        lifecycle.NewFDVFactory(pool),
		Receiver:          receiver,
		TaxWindow:         cfg.TaxWindow(),
		BuybackRateWindow: cfg.BuybackRateWindow(),
		StallAlert:        cfg.StallAlert(),
		Log:               log,
	}
	machine := lifecycle.New(deps)

	sigCtx, stop := signal.NotifyContext(rootCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	machineErrCh := make(chan error, 1)
	go func() {
		machineErrCh <- machine.Run(sigCtx)
	}()

	httpServer := &http.Server{
		Addr:    ":" + apiPort,
		Handler: api.NewServer(surface, pool, catalogClient, cfg.Public(), log),
	}
	serverErrCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", httpServer.Addr).Msg("dashboard API listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
			return
		}
		serverErrCh <- nil
	}()

	healthMux := http.NewServeMux()
	healthMux.Handle("/healthz", health)
	healthServer := &http.Server{Addr: ":" + healthPort, Handler: healthMux}
	go func() {
		log.Info().Str("addr", healthServer.Addr).Msg("health probe listening")
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn().Err(err).Msg("health probe server failed")
		}
	}()

	exitCode := 0
	select {
	case err := <-machineErrCh:
		if err != nil && !errkind.Recoverable(err) {
			log.Error().Err(err).Msg("lifecycle machine aborted on a non-recoverable error")
			exitCode = 1
		}
		stop()
	case err := <-serverErrCh:
		if err != nil {
			log.Error().Err(err).Msg("dashboard API server failed")
			exitCode = 1
		}
		stop()
	case <-sigCtx.Done():
		log.Info().Msg("shutdown signal received")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("dashboard API server did not shut down cleanly")
	}
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("health probe server did not shut down cleanly")
	}

	select {
	case <-machineErrCh:
	case <-time.After(5 * time.Second):
	}

	return exitCode
}

func getenv(name, fallback string) string {
	if v, ok := os.LookupEnv(name); ok && v != "" {
		return v
	}
	return fallback
}
