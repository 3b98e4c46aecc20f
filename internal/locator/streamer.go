// streamer.go — live progress streaming over a websocket, for a connected
// devtools panel that wants to watch a long-running waitFor/expect poll's
// log lines as they arrive rather than only seeing the final result.
// Grounded on the teacher's own websocket event-tracking (cmd/dev-console's
// websocket.go) for the message-envelope shape; the transport itself is
// gorilla/websocket, the same library the rest of the pack's browser-tooling
// repos reach for over net/http's raw hijacking.
package locator

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
)

// progressMessage is one frame pushed to a streaming client.
type progressMessage struct {
	SessionID string   `json:"sessionId"`
	Lines     []string `json:"lines,omitempty"`
	Done      bool     `json:"done"`
}

// ProgressStreamer forwards a Poll's Progress log lines to a websocket
// connection until the poll finishes or the connection errors. Only one
// StreamTo call should run per *ProgressStreamer at a time; concurrent
// writes to the same websocket connection are serialized via writeMu.
type ProgressStreamer struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// NewProgressStreamer wraps an already-upgraded websocket connection.
func NewProgressStreamer(conn *websocket.Conn) *ProgressStreamer {
	return &ProgressStreamer{conn: conn}
}

// StreamTo drains progress.TakeNextLogs in a loop, writing each batch as a
// JSON text frame, until the poll finishes (TakeNextLogs returns having
// observed progress.finished) or the connection write fails. It returns the
// first write error encountered, if any.
func (s *ProgressStreamer) StreamTo(sessionID string, progress *Progress) error {
	for {
		// TakeNextLogs blocks until either a new line arrives or the poll
		// finishes (progress.go), so this never busy-loops: the only way to
		// see an empty batch here is the poll having already finished.
		lines := progress.TakeNextLogs()
		done := progress.Finished()
		if err := s.write(progressMessage{SessionID: sessionID, Lines: lines, Done: done}); err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

func (s *ProgressStreamer) write(msg progressMessage) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, b)
}
