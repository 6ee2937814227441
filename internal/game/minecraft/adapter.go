package minecraft

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
	loginRe = regexp.MustCompile(`\[Server thread/INFO\].*: (\w+)\[/([\d.:]+)\] logged in with entity id`)
	joinRe  = regexp.MustCompile(`\[Server thread/INFO\].*: (\w+) joined the game`)
	leaveRe = regexp.MustCompile(`\[Server thread/INFO\].*: (\w+) left the game`)
	lostRe  = regexp.MustCompile(`\[Server thread/INFO\].*: (\w+) lost connection: (.+)`)
	chatRe  = regexp.MustCompile(`\[Server thread/INFO\].*: <(\w+)> (.+)`)
	readyRe = regexp.MustCompile(`\[Server thread/INFO\].*: Done \([\d.]+s\)!`)
	levelRe = regexp.MustCompile(`\[[^/\]]+/(\w+)\]`)

	// Vanilla death messages mentioning a second player.
	deathKillerRe = regexp.MustCompile(`\[Server thread/INFO\].*: (\w+) was (?:slain|shot|killed|blown up) by (\w+)`)
	deathRe       = regexp.MustCompile(`\[Server thread/INFO\].*: (\w+) ((?:fell|drowned|burned|starved|died|tried to swim|hit the ground|went up in flames|experienced kinetic energy).*)`)
)

func (a *Adapter) Game() string { return "minecraft" }

func (a *Adapter) ParseLine(line string) events.Event {
	if m := loginRe.FindStringSubmatch(line); m != nil {
		return &events.PlayerJoin{Name: m[1], IP: m[2]}
	}
	if m := joinRe.FindStringSubmatch(line); m != nil {
		return &events.PlayerJoin{Name: m[1]}
	}
	if m := lostRe.FindStringSubmatch(line); m != nil {
		return &events.PlayerLeave{Name: m[1], Reason: m[2]}
	}
	if m := leaveRe.FindStringSubmatch(line); m != nil {
		return &events.PlayerLeave{Name: m[1]}
	}
	if m := chatRe.FindStringSubmatch(line); m != nil {
		return &events.PlayerChat{Name: m[1], Message: m[2]}
	}
	if m := deathKillerRe.FindStringSubmatch(line); m != nil {
		return &events.PlayerDeath{Name: m[1], Message: line, Killer: m[2]}
	}
	if m := deathRe.FindStringSubmatch(line); m != nil {
		return &events.PlayerDeath{Name: m[1], Message: m[1] + " " + m[2]}
	}
	return nil
}

func (a *Adapter) IsReady(line string) bool {
	return readyRe.MatchString(line)
}

func (a *Adapter) Level(line string) string {
	if m := levelRe.FindStringSubmatch(line); m != nil {
		switch m[1] {
		case "ERROR", "FATAL":
			return "ERROR"
		case "WARN":
			return "WARN"
		}
		return "INFO"
	}
	if strings.Contains(line, "ERROR") || strings.Contains(line, "FATAL") {
		return "ERROR"
	}
	return "INFO"
}

func (a *Adapter) PlayerCommand() string { return "list" }
func (a *Adapter) StopCommand() string   { return "stop" }
