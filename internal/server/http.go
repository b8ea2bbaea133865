package server

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"clob/internal/wire"
)

// RunMetricsServer serves Prometheus's /metrics and the market-data
// WebSocket feed on one HTTP listener, separate from the core TCP
// protocol port. It blocks until ctx is canceled.
func RunMetricsServer(ctx context.Context, address string, feed *wire.Feed) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if feed != nil {
		mux.Handle("/ws", feed)
	}

	srv := &http.Server{Addr: address, Handler: mux}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	log.Info().Str("address", address).Msg("server: metrics/feed listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
