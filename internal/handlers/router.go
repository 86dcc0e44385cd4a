// Package handlers is the local status API of the field client.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/xelth-com/eckwmsfield/internal/buildinfo"
	"github.com/xelth-com/eckwmsfield/internal/logging"
	"github.com/xelth-com/eckwmsfield/internal/middleware"
	"github.com/xelth-com/eckwmsfield/internal/websocket"
)

// Router wraps the mux router
type Router struct {
	*mux.Router
}

// NewRouter creates a new HTTP router with all routes. hub may be nil, in
// which case the event feed is not served.
func NewRouter(sh *SyncHandler, hub *websocket.Hub, log logging.Logger) *Router {
	r := &Router{Router: mux.NewRouter()}
	r.Use(middleware.RequestLogger(log))

	// Health check endpoint
	r.HandleFunc("/health", r.healthCheck).Methods(http.MethodGet)

	sh.RegisterRoutes(r.Router)

	if hub != nil {
		r.HandleFunc("/ws", func(w http.ResponseWriter, req *http.Request) {
			websocket.ServeWs(hub, w, req)
		})
	}
	return r
}

// ServeHTTP lowercases the path before routing; mux middleware runs only
// after a route matched.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	middleware.CaseInsensitive(r.Router).ServeHTTP(w, req)
}

type health struct {
	Status string `json:"status"`
	buildinfo.Info
}

// healthCheck returns the health status of the API
func (r *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	respondJSON(w, http.StatusOK, health{Status: "ok", Info: buildinfo.Current()})
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
