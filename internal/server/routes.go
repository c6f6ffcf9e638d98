// Package server wires HTTP handlers into a gorilla/mux router.
package server

import (
	"net/http"

	"github.com/gorilla/mux"
)

// Routes configures and returns the application router: demo page, health
// check, and the per-room WebSocket endpoint. Callers may register further
// routes (the item catalog does) before serving.
func (s *Server) Routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/", s.ChatPageHandler).Methods(http.MethodGet)
	r.HandleFunc("/health", s.HealthHandler).Methods(http.MethodGet)
	r.HandleFunc("/ws/{roomId}", s.WebSocketHandler).Methods(http.MethodGet)
	return r
}
