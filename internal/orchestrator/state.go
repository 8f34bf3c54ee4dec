package orchestrator

// Gate holds choice gating for the current scene.
type Gate struct {
	// Looping is set while the scene's audio defers transitions.
	Looping bool
	// Pending is the queued next scene; empty means none.
	Pending string
}

// Active reports whether choices are currently deferred.
func (g *Gate) Active() bool {
	return g.Looping
}

// Take returns and clears the pending choice.
func (g *Gate) Take() (string, bool) {
	next := g.Pending
	g.Pending = ""
	return next, next != ""
}

func (g *Gate) reset() {
	g.Looping = false
	g.Pending = ""
}
