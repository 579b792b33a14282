package server

import (
	"log"
	"net/http"

	"github.com/leandro-jm/bulk-migration/internal/jobstore"
	"github.com/leandro-jm/bulk-migration/internal/migration"
	"github.com/leandro-jm/bulk-migration/internal/websocket"
)

// Server is the thin CRUD + presentation layer (C9) around the engine: it
// owns no migration logic itself, only connection/preset persistence, job
// submission, and live progress fan-out.
type Server struct {
	hub     *websocket.Hub
	manager *migration.Manager
	conns   *jobstore.ConnectionStore
	presets *jobstore.PresetStore
	jobs    *jobstore.PgStore
	logger  *log.Logger
}

func New(hub *websocket.Hub, store *jobstore.PgStore, conns *jobstore.ConnectionStore, presets *jobstore.PresetStore, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		hub:     hub,
		manager: migration.NewManager(store, hub, logger),
		conns:   conns,
		presets: presets,
		jobs:    store,
		logger:  logger,
	}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/connections", s.handleCreateConnection)
	mux.HandleFunc("GET /api/connections", s.handleListConnections)
	mux.HandleFunc("GET /api/connections/{id}", s.handleGetConnection)
	mux.HandleFunc("DELETE /api/connections/{id}", s.handleDeleteConnection)
	mux.HandleFunc("POST /api/connections/{id}/test", s.handleTestConnection)

	mux.HandleFunc("POST /api/presets", s.handleCreatePreset)
	mux.HandleFunc("GET /api/presets", s.handleListPresets)
	mux.HandleFunc("GET /api/presets/{id}", s.handleGetPreset)
	mux.HandleFunc("DELETE /api/presets/{id}", s.handleDeletePreset)

	mux.HandleFunc("POST /api/migrations", s.handleSubmitMigration)
	mux.HandleFunc("GET /api/migrations/{id}", s.handleGetMigration)
	mux.HandleFunc("GET /api/migrations/{id}/logs", s.handleGetMigrationLogs)

	mux.HandleFunc("/ws/progress", s.handleWS)

	return mux
}
