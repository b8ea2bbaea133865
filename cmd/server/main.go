// Command server is the engine's process entry point: it loads
// configuration, wires one Registry/Book/Vault/Facade per configured pair
// behind a pairsup.Supervisor, and serves the TCP order-entry protocol
// alongside an HTTP /metrics and /ws market-data endpoint. Adapted from
// the teacher's cmd/main.go wiring shape (construct engine, construct
// server, run both under a signal-aware context) generalized from the
// teacher's single global Engine to this engine's per-pair Facade set.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"clob/internal/admin"
	"clob/internal/book"
	"clob/internal/config"
	"clob/internal/events"
	"clob/internal/facade"
	"clob/internal/ledger"
	"clob/internal/metrics"
	"clob/internal/pairsup"
	"clob/internal/registry"
	"clob/internal/server"
	"clob/internal/vault"
	"clob/internal/wire"

	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	cfg, err := config.Load(os.Getenv("CLOB_CONFIG_FILE"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	token := admin.NewToken()
	principals := admin.NewPrincipalSet(cfg.AdminPrincipals...)
	fees, err := admin.NewFeeConfig(principals, cfg.MakerBps, cfg.TakerBps, cfg.Recipient)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid fee configuration")
	}

	feed := wire.NewFeed()
	bus := events.NewBus(events.SinkFunc(func(e events.Event) {
		log.Info().Str("event", e.Name()).Msg("engine event")
	}), feed)

	sup := pairsup.New()
	ledg := ledger.NewMemoryLedger()
	pairs := make(map[admin.Pair]server.PairHandle, len(cfg.Pairs))

	for _, pc := range cfg.Pairs {
		pair := admin.Pair{Base: pc.Base, Quote: pc.Quote}
		tx := events.NewTxBus(bus)
		reg := registry.New(token, tx)
		bk := book.New()
		vlt := vault.New(token, reg, ledg, fees, tx)
		f := facade.New(token, pair, pc.BaseDecimals, pc.QuoteDecimals, reg, bk, vlt, fees, tx)

		sup.Register(pair)
		pairs[pair] = server.PairHandle{Pair: pair, BaseDecimals: pc.BaseDecimals, QuoteDecimals: pc.QuoteDecimals, Facade: f}
		log.Info().Str("base", pc.Base).Str("quote", pc.Quote).Msg("pair wired")
	}

	m := metrics.NewRegistry(prometheus.DefaultRegisterer)
	srv := server.New(cfg.ListenAddress, sup, pairs, m)

	go func() {
		if err := sup.Run(ctx); err != nil {
			log.Error().Err(err).Msg("pair supervisor exited")
		}
	}()
	go func() {
		if err := server.RunMetricsServer(ctx, cfg.MetricsAddr, feed); err != nil {
			log.Error().Err(err).Msg("metrics server exited")
		}
	}()

	if err := srv.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}
