package events

import "fmt"

var allowedEvents = map[string]struct{}{
	// story
	"story.loaded": {},
	"story.failed": {},

	// scene
	"scene.entered":   {},
	"scene.not_found": {},
	"scene.terminal":  {},

	// choice
	"choice.selected": {},
	"choice.invalid":  {},
	"choice.queued":   {},

	// audio
	"audio.started":     {},
	"audio.ended":       {},
	"audio.stopped":     {},
	"audio.unavailable": {},
	"track.switched":    {},

	// media
	"asset.failed": {},

	// export
	"export.started":   {},
	"export.completed": {},
	"export.empty":     {},
	"export.failed":    {},

	// presentation
	"skin.changed": {},

	// renderers
	"renderer.connected":    {},
	"renderer.disconnected": {},
	"intent.rejected":       {},

	// operator
	"operator.reset": {},

	// system
	"system.startup":         {},
	"system.shutdown":        {},
	"system.error":           {},
	"system.startup_restore": {},
}

func Validate(event string) error {
	if _, ok := allowedEvents[event]; !ok {
		return fmt.Errorf("unknown event: %s", event)
	}
	return nil
}
