package cli

import (
	"context"
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// serveMetrics starts a /metrics endpoint for scraping until ctx is
// cancelled. It runs in its own goroutine; failures to bind are logged,
// not fatal, since scraping is an optional ambient concern.
func serveMetrics(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Printf("cli: metrics server on %s: %v", addr, err)
	}
}
