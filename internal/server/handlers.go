package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/leandro-jm/bulk-migration/internal/database"
	"github.com/leandro-jm/bulk-migration/internal/jobstore"
	"github.com/leandro-jm/bulk-migration/internal/migration"
	ws "github.com/leandro-jm/bulk-migration/internal/websocket"
)

var errNoTasks = errors.New("at least one table task is required")

func newTimeoutContext(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, d)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// --- connections ---

func (s *Server) handleCreateConnection(w http.ResponseWriter, r *http.Request) {
	var rec jobstore.ConnectionRecord
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	created, err := s.conns.Create(r.Context(), rec)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleListConnections(w http.ResponseWriter, r *http.Request) {
	list, err := s.conns.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetConnection(w http.ResponseWriter, r *http.Request) {
	rec, err := s.conns.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDeleteConnection(w http.ResponseWriter, r *http.Request) {
	if err := s.conns.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTestConnection(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rec, err := s.conns.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}

	ctx, cancel := newTimeoutContext(r.Context(), 5*time.Second)
	defer cancel()

	conn, err := database.Connect(ctx, rec.Spec())
	if err != nil {
		_ = s.conns.SetStatus(r.Context(), id, jobstore.ConnectionUnreachable)
		writeJSON(w, http.StatusOK, map[string]any{"reachable": false, "error": err.Error()})
		return
	}
	defer conn.Close(ctx)

	if _, err := conn.Exec(ctx, "SELECT 1"); err != nil {
		_ = s.conns.SetStatus(r.Context(), id, jobstore.ConnectionUnreachable)
		writeJSON(w, http.StatusOK, map[string]any{"reachable": false, "error": err.Error()})
		return
	}

	_ = s.conns.SetStatus(r.Context(), id, jobstore.ConnectionOK)
	writeJSON(w, http.StatusOK, map[string]any{"reachable": true})
}

// --- presets ---

func (s *Server) handleCreatePreset(w http.ResponseWriter, r *http.Request) {
	var preset jobstore.RulePreset
	if err := json.NewDecoder(r.Body).Decode(&preset); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	created, err := s.presets.Create(r.Context(), preset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleListPresets(w http.ResponseWriter, r *http.Request) {
	list, err := s.presets.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetPreset(w http.ResponseWriter, r *http.Request) {
	preset, err := s.presets.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, preset)
}

func (s *Server) handleDeletePreset(w http.ResponseWriter, r *http.Request) {
	if err := s.presets.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- migrations ---

type submitMigrationRequest struct {
	SourceConnectionID string             `json:"source_connection_id"`
	TargetConnectionID string             `json:"target_connection_id"`
	GlobalRule         migration.Rule     `json:"global_rule"`
	Tasks              []migration.TableTask `json:"tasks"`
}

func (s *Server) handleSubmitMigration(w http.ResponseWriter, r *http.Request) {
	var req submitMigrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if len(req.Tasks) == 0 {
		writeError(w, http.StatusBadRequest, errNoTasks)
		return
	}
	if req.GlobalRule != "" && !req.GlobalRule.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid global_rule %q", req.GlobalRule))
		return
	}
	for _, t := range req.Tasks {
		if !t.Rule.Valid() {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid rule %q for table %q", t.Rule, t.TableName))
			return
		}
	}

	spec := migration.JobSpec{
		JobID:              uuid.NewString(),
		SourceConnectionID: req.SourceConnectionID,
		TargetConnectionID: req.TargetConnectionID,
		GlobalRule:         req.GlobalRule,
		Tasks:              req.Tasks,
	}

	if err := s.jobs.CreateMigration(r.Context(), spec); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if err := s.manager.Start(spec); err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": spec.JobID})
}

func (s *Server) handleGetMigration(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if record, err := s.manager.Record(id); err == nil {
		writeJSON(w, http.StatusOK, record)
		return
	}
	record, err := s.jobs.LoadMigration(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleGetMigrationLogs(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	afterID := int64(0)
	if v := r.URL.Query().Get("after"); v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			afterID = parsed
		}
	}
	limit := 200
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	logs, err := s.jobs.LoadLogs(r.Context(), id, afterID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

// --- websocket progress ---

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	jobID := r.URL.Query().Get("job_id")
	if jobID == "" {
		http.Error(w, "job_id is required", http.StatusBadRequest)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	client := ws.NewClient(conn)
	s.hub.Register(jobID, client)

	go func() {
		defer func() {
			s.hub.Unregister(jobID, client)
			client.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(24 * time.Hour))
}
