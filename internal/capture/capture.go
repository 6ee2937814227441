// Package capture attributes raw server output lines to in-flight commands.
// The server gives no structured correlation between a stdin command and the
// lines it prints, so this is best effort: every line observed while a
// session is open belongs to that session. The drain loop keeps at most one
// queue-driven session open at a time, which removes the ambiguity for the
// common path.
package capture

import (
	"strings"
	"sync"
	"time"
)

type session struct {
	commandID   int64
	commandText string
	startedAt   time.Time
	lines       []string
}

type Capture struct {
	mu       sync.Mutex
	sessions map[int64]*session
	maxLines int
}

func New() *Capture {
	return &Capture{
		sessions: make(map[int64]*session),
		maxLines: 500,
	}
}

// Start opens a capture session for a command. Returns false if a session
// for the same id is already open.
func (c *Capture) Start(commandID int64, commandText string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, open := c.sessions[commandID]; open {
		return false
	}
	c.sessions[commandID] = &session{
		commandID:   commandID,
		commandText: commandText,
		startedAt:   time.Now(),
	}
	return true
}

// ProcessLine feeds one raw output line to every open session, in the order
// the pump observed it.
func (c *Capture) ProcessLine(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.sessions {
		if len(s.lines) < c.maxLines {
			s.lines = append(s.lines, line)
		}
	}
}

// Finish closes a session and returns its collected lines joined with
// newlines. Returns ok=false if no session was open for the id.
func (c *Capture) Finish(commandID int64) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, open := c.sessions[commandID]
	if !open {
		return "", false
	}
	delete(c.sessions, commandID)
	return strings.Join(s.lines, "\n"), true
}

// Open reports how many sessions are currently collecting.
func (c *Capture) Open() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}
