package vintagestory

import (
	"regexp"
	"strings"

	"github.com/emberfall/stoker/internal/events"
	"github.com/emberfall/stoker/internal/game"
)

func init() {
	game.Register(&Adapter{})
}

type Adapter struct{}

var (
	joinRe  = regexp.MustCompile(`Player (\w+) joins`)
	leaveRe = regexp.MustCompile(`Player (\w+) left`)
	chatRe  = regexp.MustCompile(`<(\w+)> (.+)`)
	readyRe = regexp.MustCompile(`Dedicated Server now running`)
)

func (a *Adapter) Game() string { return "vintagestory" }

func (a *Adapter) ParseLine(line string) events.Event {
	if m := joinRe.FindStringSubmatch(line); m != nil {
		return &events.PlayerJoin{Name: m[1]}
	}
	if m := leaveRe.FindStringSubmatch(line); m != nil {
		return &events.PlayerLeave{Name: m[1]}
	}
	if m := chatRe.FindStringSubmatch(line); m != nil {
		return &events.PlayerChat{Name: m[1], Message: m[2]}
	}
	return nil
}

func (a *Adapter) IsReady(line string) bool {
	return readyRe.MatchString(line)
}

func (a *Adapter) Level(line string) string {
	if strings.Contains(line, "Error") || strings.Contains(line, "Exception") {
		return "ERROR"
	}
	if strings.Contains(line, "Warning") {
		return "WARN"
	}
	return "INFO"
}

func (a *Adapter) PlayerCommand() string { return "/list" }
func (a *Adapter) StopCommand() string   { return "/stop" }
