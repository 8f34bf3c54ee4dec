package orchestrator

import (
	"errors"
	"fmt"
)

// ContentErrorKind classifies authoring errors met while navigating.
type ContentErrorKind string

const (
	SceneNotFound ContentErrorKind = "scene_not_found"
	InvalidChoice ContentErrorKind = "invalid_choice"
	NoEntryScene  ContentErrorKind = "no_entry_scene"
)

// ContentError is a recoverable navigation error. The runtime stays usable.
type ContentError struct {
	Kind ContentErrorKind `json:"kind"`
	ID   string           `json:"id,omitempty"`
}

func (e *ContentError) Error() string {
	switch e.Kind {
	case SceneNotFound:
		return fmt.Sprintf("Scene not found: %s", e.ID)
	case InvalidChoice:
		return fmt.Sprintf("Invalid choice: %s", e.ID)
	case NoEntryScene:
		return "Could not find first scene"
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.ID)
}

// ErrNothingToExport is returned when the journey has nothing of the
// requested kind.
var ErrNothingToExport = errors.New("nothing to export")
