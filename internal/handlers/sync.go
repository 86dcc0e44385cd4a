package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/xelth-com/eckwmsfield/internal/models"
	"github.com/xelth-com/eckwmsfield/internal/sync"
)

// Syncer runs synchronization cycles.
type Syncer interface {
	SyncAll(ctx context.Context) sync.Result
	SyncKind(ctx context.Context, kind models.Kind) sync.Result
	IsSyncing() bool
	LastSyncTime() time.Time
}

// Connectivity reports server reachability.
type Connectivity interface {
	IsConnected() bool
}

// Authenticator reports the session state.
type Authenticator interface {
	IsAuthenticated(ctx context.Context) bool
	Email() string
}

// MetadataSource lists the recorded outcome of every kind.
type MetadataSource interface {
	ListSyncMetadata(ctx context.Context) ([]models.SyncMetadata, error)
}

// SyncHandler handles synchronization requests
type SyncHandler struct {
	engine   Syncer
	conn     Connectivity
	auth     Authenticator
	metadata MetadataSource
}

// NewSyncHandler creates a new sync handler
func NewSyncHandler(engine Syncer, conn Connectivity, auth Authenticator, metadata MetadataSource) *SyncHandler {
	return &SyncHandler{engine: engine, conn: conn, auth: auth, metadata: metadata}
}

// RegisterRoutes registers sync routes
func (sh *SyncHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/sync/status", sh.GetSyncStatus).Methods(http.MethodGet)
	r.HandleFunc("/api/sync", sh.TriggerFullSync).Methods(http.MethodPost)
	r.HandleFunc("/api/sync/{kind}", sh.SyncKind).Methods(http.MethodPost)
}

// SyncStatus is the body of GET /api/sync/status.
type SyncStatus struct {
	Syncing       bool                  `json:"syncing"`
	LastSync      *time.Time            `json:"lastSync"`
	Online        bool                  `json:"online"`
	Authenticated bool                  `json:"authenticated"`
	Email         string                `json:"email,omitempty"`
	Kinds         []models.SyncMetadata `json:"kinds"`
}

// GetSyncStatus returns the engine state and the last outcome per kind
func (sh *SyncHandler) GetSyncStatus(w http.ResponseWriter, r *http.Request) {
	kinds, err := sh.metadata.ListSyncMetadata(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if kinds == nil {
		kinds = []models.SyncMetadata{}
	}
	st := SyncStatus{
		Syncing:       sh.engine.IsSyncing(),
		Online:        sh.conn.IsConnected(),
		Authenticated: sh.auth.IsAuthenticated(r.Context()),
		Email:         sh.auth.Email(),
		Kinds:         kinds,
	}
	if last := sh.engine.LastSyncTime(); !last.IsZero() {
		st.LastSync = &last
	}
	respondJSON(w, http.StatusOK, st)
}

// TriggerFullSync runs a full cycle and returns its result
func (sh *SyncHandler) TriggerFullSync(w http.ResponseWriter, r *http.Request) {
	respondResult(w, sh.engine.SyncAll(r.Context()))
}

// SyncKind runs a cycle for a single kind
func (sh *SyncHandler) SyncKind(w http.ResponseWriter, r *http.Request) {
	kind, err := models.ParseKind(mux.Vars(r)["kind"])
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	respondResult(w, sh.engine.SyncKind(r.Context(), kind))
}

// respondResult maps rejected cycles to an HTTP status. Cycles that ran
// answer 200 even when some records failed; the body tells.
func respondResult(w http.ResponseWriter, res sync.Result) {
	status := http.StatusOK
	err := res.Err()
	switch {
	case errors.Is(err, sync.ErrAlreadySyncing):
		status = http.StatusConflict
	case errors.Is(err, sync.ErrOffline):
		status = http.StatusServiceUnavailable
	case errors.Is(err, sync.ErrUnauthenticated):
		status = http.StatusUnauthorized
	}
	respondJSON(w, status, res)
}
