package game

import "github.com/emberfall/stoker/internal/events"

// Adapter provides game-specific behavior for a supervised server type.
type Adapter interface {
	// Game returns the game identifier (e.g., "minecraft", "vintagestory")
	Game() string

	// ParseLine extracts a structured event from a raw log line, or nil
	// if the line carries no recognized event.
	ParseLine(line string) events.Event

	// IsReady reports whether the line signals the server finished booting.
	IsReady(line string) bool

	// Level classifies a line's severity ("INFO", "WARN", "ERROR").
	Level(line string) string

	// PlayerCommand returns the command to list online players
	PlayerCommand() string

	// StopCommand returns the graceful stop command for the server
	StopCommand() string
}
