package events

import "time"

// Kind identifies a concrete event type.
type Kind string

const (
	KindServerStateChanged Kind = "server_state_changed"
	KindServerStarting     Kind = "server_starting"
	KindServerStarted      Kind = "server_started"
	KindServerStopping     Kind = "server_stopping"
	KindServerStopped      Kind = "server_stopped"
	KindServerCrashed      Kind = "server_crashed"
	KindLogLine            Kind = "log_line"
	KindPlayerJoin         Kind = "player_join"
	KindPlayerLeave        Kind = "player_leave"
	KindPlayerChat         Kind = "player_chat"
	KindPlayerDeath        Kind = "player_death"
)

// Tag groups related event kinds so a listener can subscribe to a whole
// category ("player", "server") without naming every kind.
type Tag string

const (
	TagServer Tag = "server"
	TagPlayer Tag = "player"
	TagLog    Tag = "log"
)

// Event is the payload delivered to listeners.
type Event interface {
	Kind() Kind
	Tags() []Tag
	Time() time.Time
	setTime(time.Time)
}

// Cancellable events let a high-priority listener veto further processing.
type Cancellable interface {
	Event
	Cancelled() bool
	SetCancelled(bool)
}

// Base carries the fields shared by all events.
type Base struct {
	At time.Time `json:"at"`
}

func (b *Base) Time() time.Time     { return b.At }
func (b *Base) setTime(t time.Time) { b.At = t }

// Cancel is embedded by cancellable event types.
type Cancel struct {
	Vetoed bool `json:"cancelled"`
}

func (c *Cancel) Cancelled() bool     { return c.Vetoed }
func (c *Cancel) SetCancelled(v bool) { c.Vetoed = v }

type ServerStateChanged struct {
	Base
	Old string `json:"old"`
	New string `json:"new"`
}

func (*ServerStateChanged) Kind() Kind  { return KindServerStateChanged }
func (*ServerStateChanged) Tags() []Tag { return []Tag{TagServer} }

type ServerStarting struct {
	Base
	Command string `json:"command"`
	Workdir string `json:"workdir"`
}

func (*ServerStarting) Kind() Kind  { return KindServerStarting }
func (*ServerStarting) Tags() []Tag { return []Tag{TagServer} }

type ServerStarted struct {
	Base
	PID         int           `json:"pid"`
	StartupTime time.Duration `json:"startup_time"`
}

func (*ServerStarted) Kind() Kind  { return KindServerStarted }
func (*ServerStarted) Tags() []Tag { return []Tag{TagServer} }

type ServerStopping struct {
	Base
	Reason string `json:"reason"`
	Force  bool   `json:"force"`
}

func (*ServerStopping) Kind() Kind  { return KindServerStopping }
func (*ServerStopping) Tags() []Tag { return []Tag{TagServer} }

type ServerStopped struct {
	Base
	ExitCode int           `json:"exit_code"`
	Uptime   time.Duration `json:"uptime"`
}

func (*ServerStopped) Kind() Kind  { return KindServerStopped }
func (*ServerStopped) Tags() []Tag { return []Tag{TagServer} }

// ServerCrashed is cancellable: cancelling it vetoes the auto-restart.
type ServerCrashed struct {
	Base
	Cancel
	ExitCode    int  `json:"exit_code"`
	WillRestart bool `json:"will_restart"`
}

func (*ServerCrashed) Kind() Kind  { return KindServerCrashed }
func (*ServerCrashed) Tags() []Tag { return []Tag{TagServer} }

type LogLine struct {
	Base
	Level   string `json:"level"`
	Message string `json:"message"`
}

func (*LogLine) Kind() Kind  { return KindLogLine }
func (*LogLine) Tags() []Tag { return []Tag{TagLog} }

type PlayerJoin struct {
	Base
	Name string `json:"name"`
	IP   string `json:"ip,omitempty"`
}

func (*PlayerJoin) Kind() Kind  { return KindPlayerJoin }
func (*PlayerJoin) Tags() []Tag { return []Tag{TagPlayer} }

type PlayerLeave struct {
	Base
	Name   string `json:"name"`
	Reason string `json:"reason,omitempty"`
}

func (*PlayerLeave) Kind() Kind  { return KindPlayerLeave }
func (*PlayerLeave) Tags() []Tag { return []Tag{TagPlayer} }

// PlayerChat is cancellable so a moderation listener can suppress it.
type PlayerChat struct {
	Base
	Cancel
	Name    string `json:"name"`
	Message string `json:"message"`
}

func (*PlayerChat) Kind() Kind  { return KindPlayerChat }
func (*PlayerChat) Tags() []Tag { return []Tag{TagPlayer} }

type PlayerDeath struct {
	Base
	Name    string `json:"name"`
	Message string `json:"message"`
	Killer  string `json:"killer,omitempty"`
}

func (*PlayerDeath) Kind() Kind  { return KindPlayerDeath }
func (*PlayerDeath) Tags() []Tag { return []Tag{TagPlayer} }
