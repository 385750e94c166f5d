// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doctray Contributors

package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/samber/oops"

	"github.com/doctray/doctray/internal/ability"
)

// handleActivityStream streams a workspace's activity feed as server-sent
// events until the client disconnects.
func (s *Server) handleActivityStream(w http.ResponseWriter, r *http.Request) {
	wsID, err := pathULID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	ab := abilityFrom(r.Context())
	if err := ab.Can(ability.ActionListen, ability.SubjectActivity, map[string]any{"workspaceId": wsID.String()}); err != nil {
		writeError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, oops.Code("STREAM_UNSUPPORTED").Errorf("response writer does not support streaming"))
		return
	}

	ch := s.deps.Broadcaster.Subscribe(wsID.String())
	defer s.deps.Broadcaster.Unsubscribe(wsID.String(), ch)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			payload, err := json.Marshal(event)
			if err != nil {
				s.deps.Log.ErrorContext(r.Context(), "activity event marshal failed",
					"workspace_id", wsID.String(), "error", err)
				continue
			}
			fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", event.ID, event.Type, payload)
			flusher.Flush()
		}
	}
}
