package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ValentinKolb/pstore/lib/store"
	"github.com/ValentinKolb/pstore/rpc/common"
	"github.com/VictoriaMetrics/metrics"
)

// serverMetrics holds the metrics of one server instance
type serverMetrics struct {
	set *metrics.Set
}

// newServerMetrics creates the metric set for a server backed by s
func newServerMetrics(s store.IStore) *serverMetrics {
	set := metrics.NewSet()
	set.NewGauge("pstore_users", func() float64 {
		return float64(s.Len())
	})
	return &serverMetrics{set: set}
}

// observe records one finished exchange
func (m *serverMetrics) observe(res Result, err error, start time.Time) {
	// tags come from the peer, only known ones become label values
	command := "unknown"
	if res.Tag == common.TagKEY || res.Tag.Valid() {
		command = res.Tag.String()
	}

	if err != nil && res.Code == "" {
		m.set.GetOrCreateCounter(`pstore_connection_errors_total`).Inc()
		return
	}

	m.set.GetOrCreateCounter(fmt.Sprintf(`pstore_requests_total{command=%q,code=%q}`, command, res.Code)).Inc()
	m.set.GetOrCreateHistogram(fmt.Sprintf(`pstore_request_duration_seconds{command=%q}`, command)).UpdateDuration(start)
}

// writePrometheus writes the server metrics followed by the process metrics
func (m *serverMetrics) writePrometheus(w io.Writer) {
	m.set.WritePrometheus(w)
	metrics.WriteProcessMetrics(w)
}

// serve exposes the metrics on endpoint until ctx is done
func (m *serverMetrics) serve(ctx context.Context, endpoint string) {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		m.writePrometheus(w)
	})

	srv := &http.Server{
		Addr:              endpoint,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	Logger.Infof("Serving metrics on http://%s/metrics", endpoint)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		Logger.Errorf("Metrics endpoint failed: %v", err)
	}
}
