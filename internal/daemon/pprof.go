package daemon

import (
	"log/slog"
	"net/http"

	_ "net/http/pprof"
)

// startPprof exposes the net/http/pprof handlers for debugging a live
// sweteam daemon. Off unless an address is configured.
func startPprof(addr string) {
	if addr == "" {
		return
	}
	go func() {
		slog.Info("pprof listening", "addr", addr)
		// Handlers are registered on DefaultServeMux by the blank import.
		if err := http.ListenAndServe(addr, nil); err != nil {
			slog.Warn("pprof server stopped", "addr", addr, "err", err)
		}
	}()
}
