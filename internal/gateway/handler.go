package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// Router returns the gateway's HTTP routes.
func (g *Gateway) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Get("/ws", g.HandleWS)
	r.Get("/healthz", g.handleHealth)
	r.Get("/stats", g.handleStats)
	return r
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		log.Error().Err(err).Msg("failed to write health check response")
	}
}

func (g *Gateway) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]any{
		"connections": g.registry.Count(),
		"rooms":       g.rooms.Count(),
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		log.Error().Err(err).Msg("failed to write stats response")
	}
}
