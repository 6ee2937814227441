// Package players tracks who is online by watching join/leave events.
package players

import (
	"sort"
	"sync"
	"time"

	"github.com/emberfall/stoker/internal/events"
)

type Player struct {
	Name     string    `json:"name"`
	IP       string    `json:"ip,omitempty"`
	JoinedAt time.Time `json:"joined_at"`
}

type Roster struct {
	mu     sync.RWMutex
	online map[string]*Player
}

// NewRoster subscribes to the bus and maintains the online set. Listeners
// run at Highest priority with ignore-cancelled so moderation listeners
// can't hide roster updates.
func NewRoster(bus *events.Bus) *Roster {
	r := &Roster{online: make(map[string]*Player)}

	bus.Subscribe(events.KindPlayerJoin, func(ev events.Event) error {
		join := ev.(*events.PlayerJoin)
		r.mu.Lock()
		if existing, ok := r.online[join.Name]; ok && join.IP == "" {
			// Second join line for the same login; keep the IP.
			join.IP = existing.IP
		}
		r.online[join.Name] = &Player{Name: join.Name, IP: join.IP, JoinedAt: ev.Time()}
		r.mu.Unlock()
		return nil
	}, events.Highest, true)

	bus.Subscribe(events.KindPlayerLeave, func(ev events.Event) error {
		leave := ev.(*events.PlayerLeave)
		r.mu.Lock()
		delete(r.online, leave.Name)
		r.mu.Unlock()
		return nil
	}, events.Highest, true)

	// A stop or crash empties the roster.
	clear := func(ev events.Event) error {
		r.mu.Lock()
		r.online = make(map[string]*Player)
		r.mu.Unlock()
		return nil
	}
	bus.Subscribe(events.KindServerStopped, clear, events.Highest, true)
	bus.Subscribe(events.KindServerCrashed, clear, events.Highest, true)

	return r
}

func (r *Roster) Online() []Player {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Player, 0, len(r.online))
	for _, p := range r.online {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *Roster) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.online)
}
