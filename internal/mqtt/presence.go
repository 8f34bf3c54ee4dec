package mqtt

import (
	"fmt"
	"sync"
	"time"

	"github.com/bytedance/sonic"

	"github.com/AaronLay10/StoryEngine/internal/events"
)

// Heartbeat is published periodically by an MQTT display on the presence
// topic. Skin names the theme the display is showing.
type Heartbeat struct {
	DisplayID    string `json:"display_id"`
	HeartbeatSec int    `json:"heartbeat_sec"`
	Skin         string `json:"skin,omitempty"`
}

// ParseHeartbeat decodes and validates a heartbeat.
func ParseHeartbeat(data []byte) (Heartbeat, error) {
	var hb Heartbeat
	if err := sonic.Unmarshal(data, &hb); err != nil {
		return hb, fmt.Errorf("invalid heartbeat: %w", err)
	}
	if hb.DisplayID == "" {
		return hb, fmt.Errorf("heartbeat missing display_id")
	}
	if hb.HeartbeatSec <= 0 {
		return hb, fmt.Errorf("heartbeat_sec must be positive")
	}
	return hb, nil
}

// DisplayState tracks one display's health.
type DisplayState struct {
	DisplayID    string
	LastSeen     time.Time
	HeartbeatSec int
	Skin         string
	Connected    bool
}

// Presence tracks MQTT displays by heartbeat.
type Presence struct {
	mu        sync.RWMutex
	displays  map[string]*DisplayState
	tolerance float64 // multiplier for heartbeat interval (2.0 = one missed beat)
	onSkin    func(string)
	now       func() time.Time
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// NewPresence creates a tracker. onSkin, if set, is called when a display
// reports a different skin.
func NewPresence(tolerance float64, onSkin func(string)) *Presence {
	if tolerance <= 1.0 {
		tolerance = 2.0
	}
	return &Presence{
		displays:  make(map[string]*DisplayState),
		tolerance: tolerance,
		onSkin:    onSkin,
		now:       time.Now,
		stopCh:    make(chan struct{}),
	}
}

// HandleHeartbeat records a heartbeat and emits renderer.connected for a
// new or returning display.
func (p *Presence) HandleHeartbeat(hb Heartbeat) {
	p.mu.Lock()
	prev, known := p.displays[hb.DisplayID]
	reconnect := known && !prev.Connected
	skinChanged := hb.Skin != "" && (!known || prev.Skin != hb.Skin)

	p.displays[hb.DisplayID] = &DisplayState{
		DisplayID:    hb.DisplayID,
		LastSeen:     p.now(),
		HeartbeatSec: hb.HeartbeatSec,
		Skin:         hb.Skin,
		Connected:    true,
	}
	p.mu.Unlock()

	if !known || reconnect {
		events.Emit("info", "renderer.connected", "", map[string]interface{}{
			"display_id": hb.DisplayID,
			"reconnect":  reconnect,
		})
	}
	if skinChanged && p.onSkin != nil {
		p.onSkin(hb.Skin)
	}
}

// Start begins the background health check loop.
func (p *Presence) Start(checkInterval time.Duration) {
	p.wg.Add(1)
	go p.healthCheckLoop(checkInterval)
}

// Stop stops the background health check loop.
func (p *Presence) Stop() {
	close(p.stopCh)
	p.wg.Wait()
}

func (p *Presence) healthCheckLoop(interval time.Duration) {
	defer p.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.checkHealth()
		}
	}
}

func (p *Presence) checkHealth() {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	for id, st := range p.displays {
		if !st.Connected {
			continue
		}
		timeout := time.Duration(float64(st.HeartbeatSec)*p.tolerance) * time.Second
		if now.Sub(st.LastSeen) > timeout {
			st.Connected = false
			events.Emit("warning", "renderer.disconnected", "heartbeat timeout", map[string]interface{}{
				"display_id":  id,
				"last_seen":   st.LastSeen.Format(time.RFC3339),
				"timeout_sec": timeout.Seconds(),
			})
		}
	}
}

// Display returns a copy of a display's state, or nil.
func (p *Presence) Display(id string) *DisplayState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if st, ok := p.displays[id]; ok {
		cpy := *st
		return &cpy
	}
	return nil
}

// Connected returns the ids of displays currently connected.
func (p *Presence) Connected() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var ids []string
	for id, st := range p.displays {
		if st.Connected {
			ids = append(ids, id)
		}
	}
	return ids
}
