package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/flowdesk/optionflow/internal/bus"
	"github.com/flowdesk/optionflow/internal/config"
	"github.com/flowdesk/optionflow/internal/metrics"
	"github.com/flowdesk/optionflow/internal/notify"
	"github.com/flowdesk/optionflow/internal/pipeline"
	"github.com/flowdesk/optionflow/internal/store"
)

func main() {
	log.Println("🚀 OptionFlow Engine Starting...")
	log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

	cfg := config.Load()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	memBus := bus.NewMemoryBus(func(subject string) { m.BusOverflow(subject) })
	memStore := store.NewMemoryStore()

	// NewTelegramNotifier returns a nil *TelegramNotifier when disabled; keep
	// it out of the notify.Notifier interface value in that case, otherwise
	// the pipeline's nil checks would see a non-nil interface wrapping a nil
	// pointer.
	var notifier notify.Notifier
	if tn := notify.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID); tn != nil {
		notifier = tn
	}

	p := pipeline.New(cfg, memBus, memStore, m, notifier)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	go func() {
		log.Printf("📡 Metrics and health listening on %s", cfg.MetricsAddr)
		if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
			log.Printf("⚠️ metrics server stopped: %v", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("⚠️ received %v, draining before shutdown", sig)
		cancel()
	}()

	if err := p.Run(ctx); err != nil {
		log.Fatalf("❌ pipeline exited with error: %v", err)
	}

	log.Println("✅ shutdown complete")
}
