package orchestrator

import (
	"github.com/AaronLay10/StoryEngine/internal/events"
	"github.com/AaronLay10/StoryEngine/internal/storage/postgres"
)

// DefaultRestoreLimit is the default number of events to load for restore.
const DefaultRestoreLimit = 1000

// RestoredState is the journey reconstructed from a session's events.
type RestoredState struct {
	SessionID string
	SceneID   string
	// Visited holds entered scene ids in order, repeats included.
	Visited []string
}

// RestoreFromEvents loads the most recent session from Postgres and replays
// it. An empty sessionID selects the latest session. Returns nil state if
// client is nil or nothing was recorded.
func RestoreFromEvents(client *postgres.Client, sessionID string, limit int) (*RestoredState, int, error) {
	if client == nil {
		return nil, 0, nil
	}
	if limit <= 0 {
		limit = DefaultRestoreLimit
	}

	if sessionID == "" {
		latest, err := client.LatestSession()
		if err != nil {
			return nil, 0, err
		}
		if latest == "" {
			return nil, 0, nil
		}
		sessionID = latest
	}

	rows, err := client.QuerySession(sessionID, limit)
	if err != nil {
		return nil, 0, err
	}
	if len(rows) == 0 {
		return nil, 0, nil
	}

	// Query returns newest first
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}

	state := ReplayEvents(rows)
	state.SessionID = sessionID
	return state, len(rows), nil
}

// ReplayEvents folds chronologically ordered events into a RestoredState.
func ReplayEvents(rows []postgres.EventRow) *RestoredState {
	state := &RestoredState{}
	for _, row := range rows {
		if row.SessionID != nil && state.SessionID == "" {
			state.SessionID = *row.SessionID
		}
		switch row.Event {
		case "scene.entered":
			if id, ok := row.Fields["scene_id"].(string); ok && id != "" {
				state.SceneID = id
				state.Visited = append(state.Visited, id)
			}
		}
	}
	return state
}

// ApplyRestoredState rebuilds the journey and current scene.
// This does NOT re-emit events, render, or start audio.
func (r *Runtime) ApplyRestoredState(state *RestoredState) error {
	if state == nil || len(state.Visited) == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if state.SessionID != "" {
		r.sessionID = state.SessionID
	}
	for _, id := range state.Visited {
		if sc, ok := r.story.Find(id); ok {
			r.journey.Visit(sc)
		}
	}
	if sc, ok := r.story.Find(state.SceneID); ok {
		r.current = sc
		r.gate.reset()
	}
	return nil
}

// EmitStartupRestore emits the system.startup_restore event.
func EmitStartupRestore(restored int, sessionID string) {
	events.Emit("info", "system.startup_restore", "", map[string]interface{}{
		"restored":   restored,
		"session_id": sessionID,
	})
}
