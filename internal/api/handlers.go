// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Muscled-clients-repo/unpuzzle-mvp-sub005/internal/coordinator"
	"github.com/Muscled-clients-repo/unpuzzle-mvp-sub005/internal/locks"
	"github.com/Muscled-clients-repo/unpuzzle-mvp-sub005/internal/log"
	"github.com/Muscled-clients-repo/unpuzzle-mvp-sub005/internal/progress"
	"github.com/Muscled-clients-repo/unpuzzle-mvp-sub005/internal/remote"
	"github.com/Muscled-clients-repo/unpuzzle-mvp-sub005/internal/store"
)

// FlagMutationTrace gates verbose mutation logging in the handlers.
const FlagMutationTrace = "mutation_trace"

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListEntities(w http.ResponseWriter, r *http.Request) {
	parent := chi.URLParam(r, "parent")
	if parent == "root" {
		parent = ""
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"parent":   parent,
		"entities": s.cache.Ordered(parent),
	})
}

// mutationBody is the request shape for POST /mutations.
type mutationBody struct {
	OperationID string       `json:"operationId,omitempty"`
	Type        string       `json:"type,omitempty"`
	Kind        string       `json:"kind"`
	Entity      store.Entity `json:"entity"`
}

func (s *Server) handleMutate(w http.ResponseWriter, r *http.Request) {
	var body mutationBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "malformed mutation body")
		return
	}

	req := coordinator.Request{
		OperationID: body.OperationID,
		Type:        body.Type,
		Kind:        remote.MutationKind(body.Kind),
		Entity:      body.Entity,
	}

	if s.flags.IsEnabled(FlagMutationTrace) {
		logger := log.FromContext(r.Context(), "api")
		logger.Debug().
			Str("kind", body.Kind).
			Str(log.FieldEntityID, body.Entity.ID).
			Str(log.FieldParent, body.Entity.Parent).
			Msg("mutation received")
	}

	entity, err := s.coord.Mutate(r.Context(), req)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"status": "committed", "entity": entity})
	case errors.Is(err, coordinator.ErrDuplicateOperation):
		// A duplicate submission is ignored, not failed.
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored", "reason": "duplicate"})
	case errors.Is(err, locks.ErrLockTimeout):
		writeError(w, http.StatusConflict, "lock_timeout", "resource is busy, try again")
	case errors.Is(err, coordinator.ErrOperationCancelled):
		writeError(w, http.StatusConflict, "cancelled", "operation was cancelled")
	case errors.Is(err, coordinator.ErrUnknownEntity):
		writeError(w, http.StatusNotFound, "unknown_entity", err.Error())
	default:
		// Remote failure surfaced after rollback.
		writeError(w, http.StatusBadGateway, "remote_failure", err.Error())
	}
}

// progressBody is the push-transport message shape.
type progressBody struct {
	OperationID     string    `json:"operationId"`
	ResourceKey     string    `json:"resourceKey"`
	PercentComplete float64   `json:"percentComplete"`
	BytesLoaded     int64     `json:"bytesLoaded"`
	BytesTotal      int64     `json:"bytesTotal"`
	Timestamp       time.Time `json:"timestamp"`
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	var body progressBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "malformed progress event")
		return
	}
	if body.OperationID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "operationId is required")
		return
	}

	ev := progress.Event{
		OperationID:     body.OperationID,
		Resource:        body.ResourceKey,
		PercentComplete: body.PercentComplete,
		BytesLoaded:     body.BytesLoaded,
		BytesTotal:      body.BytesTotal,
		Timestamp:       body.Timestamp,
	}
	topic := progress.TopicProgress
	if ev.PercentComplete >= 100 {
		topic = progress.TopicComplete
	}
	if err := s.bus.Publish(r.Context(), topic, ev); err != nil {
		writeError(w, http.StatusServiceUnavailable, "publish_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) handleGetOperation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	op, ok := s.registry.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown_operation", "no record for operation id")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":        op.ID,
		"type":      op.Type,
		"resource":  op.Resource,
		"startedAt": op.StartedAt,
		"endedAt":   op.EndedAt,
		"completed": op.Completed,
		"cancelled": op.Cancelled,
	})
}

func (s *Server) handleCancelOperation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	// Advisory: in-flight work is not aborted, late responses are
	// discarded by the coordinator.
	s.coord.Cancel(id)
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}
