package events

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AaronLay10/StoryEngine/internal/storage/postgres"
	"github.com/bytedance/sonic"
)

const bufferSize = 256

var buffer = NewRingBuffer(bufferSize)

var (
	pgMu     sync.RWMutex
	pgClient *postgres.Client
	// pgFailed latches after the first failed append so an unreachable
	// database reports once per client rather than once per event.
	pgFailed atomic.Bool

	outMu sync.Mutex
	out   io.Writer
)

// SetPostgresClient sets the Postgres client for event persistence.
func SetPostgresClient(client *postgres.Client) {
	pgMu.Lock()
	pgClient = client
	pgFailed.Store(false)
	pgMu.Unlock()
}

// GetPostgresClient returns the current Postgres client (for restore and
// session queries).
func GetPostgresClient() *postgres.Client {
	pgMu.RLock()
	defer pgMu.RUnlock()
	return pgClient
}

// SetOutput mirrors every emitted event as a JSON line to w. Pass nil to disable.
func SetOutput(w io.Writer) {
	outMu.Lock()
	out = w
	outMu.Unlock()
}

type Event struct {
	Timestamp string                 `json:"ts"`
	Level     string                 `json:"level"`
	Name      string                 `json:"event"`
	Message   string                 `json:"msg,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// SessionID returns the session_id field of the event, if any.
func (e Event) SessionID() string {
	s, _ := e.Fields["session_id"].(string)
	return s
}

// Emit validates name against the registry, records the event in the ring
// buffer, fans it out to subscribers, persists it when a database is set and
// mirrors it to the output writer. The JSON encoding is returned.
func Emit(level, name, msg string, fields map[string]interface{}) ([]byte, error) {
	if err := Validate(name); err != nil {
		return nil, err
	}

	ts := time.Now().UTC()
	e := Event{
		Timestamp: ts.Format(time.RFC3339Nano),
		Level:     level,
		Name:      name,
		Message:   msg,
		Fields:    fields,
	}

	buffer.Add(e)
	broadcast(e)
	persist(ts, e)

	b, err := sonic.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}

	outMu.Lock()
	if out != nil {
		fmt.Fprintln(out, string(b))
	}
	outMu.Unlock()

	return b, nil
}

// persist appends e to Postgres. The first failure is recorded as a
// system.error directly in the ring buffer; going through Emit would recurse
// into the failing database.
func persist(ts time.Time, e Event) {
	client := GetPostgresClient()
	if client == nil {
		return
	}
	err := client.Append(ts, e.Level, e.Name, e.Message, e.Fields, e.SessionID())
	if err == nil || !pgFailed.CompareAndSwap(false, true) {
		return
	}
	buffer.Add(Event{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     "error",
		Name:      "system.error",
		Message:   "postgres append failed",
		Fields:    map[string]interface{}{"error": err.Error(), "event": e.Name},
	})
}

func Snapshot() []Event {
	return buffer.Snapshot()
}

// TotalCount returns the number of events emitted since startup.
func TotalCount() int64 {
	return buffer.Total()
}

// Clear resets the event buffer. Used for testing.
func Clear() {
	buffer.Clear()
}
