package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// StartServer serves /metrics on its own port, apart from the API listener,
// and returns the server's Shutdown.
func StartServer(port int) (shutdown func(context.Context) error) {
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      serveMux(prometheus.DefaultGatherer),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("metrics server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server error", "error", err)
		}
	}()

	return server.Shutdown
}

// serveMux mounts the scrape handler plus a plain-text index of the
// service's own metric families; Go runtime and process collectors are left
// out.
func serveMux(g prometheus.Gatherer) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", Handler())
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		families, err := g.Gather()
		if err != nil {
			http.Error(w, "gathering metrics failed", http.StatusInternalServerError)
			return
		}
		var b strings.Builder
		b.WriteString("scrape: /metrics\n")
		for _, f := range families {
			if runtimeFamily(f.GetName()) {
				continue
			}
			fmt.Fprintf(&b, "%s\t%s\n", f.GetName(), f.GetType())
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprint(w, b.String())
	})
	return mux
}

func runtimeFamily(name string) bool {
	for _, p := range []string{"go_", "process_", "promhttp_"} {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}
