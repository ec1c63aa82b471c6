// Package metrics exposes sync and scan progress as Prometheus series. A nil
// *Metrics is valid and records nothing, so one-shot commands can skip it.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"btc-walletscan/pkg/logger"
)

const (
	namespace = "walletscan"
)

type Metrics struct {
	registry *prometheus.Registry

	headersInserted prometheus.Counter
	headersOrphaned prometheus.Counter
	blocksScanned   prometheus.Counter
	txsScanned      prometheus.Counter
	utxosCreated    prometheus.Counter
	utxosSpent      prometheus.Counter
	bestHeight      prometheus.Gauge
	scannedHeight   prometheus.Gauge
}

// New registers every series on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		headersInserted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "headers",
			Name:      "inserted_total",
			Help:      "Headers admitted to the header store",
		}),
		headersOrphaned: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "headers",
			Name:      "orphaned_total",
			Help:      "Headers rejected because their parent is unknown",
		}),
		blocksScanned: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "blocks_total",
			Help:      "Blocks fetched and matched",
		}),
		txsScanned: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "txs_total",
			Help:      "Transactions inspected by the matcher",
		}),
		utxosCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "wallet",
			Name:      "utxos_created_total",
			Help:      "Wallet outputs created",
		}),
		utxosSpent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "wallet",
			Name:      "utxos_spent_total",
			Help:      "Wallet outputs spent",
		}),
		bestHeight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "headers",
			Name:      "best_height",
			Help:      "Height of the accepted tip",
		}),
		scannedHeight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "scanned_height",
			Help:      "Height of the last scanned block",
		}),
	}
}

func (m *Metrics) HeaderInserted() {
	if m == nil {
		return
	}
	m.headersInserted.Inc()
}

func (m *Metrics) HeaderOrphaned() {
	if m == nil {
		return
	}
	m.headersOrphaned.Inc()
}

func (m *Metrics) SetBestHeight(h int32) {
	if m == nil {
		return
	}
	m.bestHeight.Set(float64(h))
}

// BlockScanned records one matched block.
func (m *Metrics) BlockScanned(height int32, txs, created, spent int) {
	if m == nil {
		return
	}
	m.blocksScanned.Inc()
	m.txsScanned.Add(float64(txs))
	m.utxosCreated.Add(float64(created))
	m.utxosSpent.Add(float64(spent))
	m.scannedHeight.Set(float64(height))
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string, log *logger.CustomLogger) error {
	r := mux.NewRouter()
	r.Handle("/metrics", m.Handler()).Methods(http.MethodGet)

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("metrics server listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
