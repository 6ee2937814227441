package players

import (
	"testing"

	"github.com/emberfall/stoker/internal/events"
)

func TestRosterTracksJoinsAndLeaves(t *testing.T) {
	bus := events.NewBus()
	r := NewRoster(bus)

	bus.Publish(&events.PlayerJoin{Name: "steve", IP: "10.0.0.5:51000"})
	bus.Publish(&events.PlayerJoin{Name: "alex"})

	if r.Count() != 2 {
		t.Fatalf("Count = %d, want 2", r.Count())
	}
	online := r.Online()
	if online[0].Name != "alex" || online[1].Name != "steve" {
		t.Errorf("Online = %v, want sorted by name", online)
	}

	bus.Publish(&events.PlayerLeave{Name: "steve"})
	if r.Count() != 1 {
		t.Errorf("Count = %d after leave, want 1", r.Count())
	}
	if r.Online()[0].Name != "alex" {
		t.Errorf("remaining player = %s, want alex", r.Online()[0].Name)
	}
}

func TestRosterKeepsIPAcrossDuplicateJoinLines(t *testing.T) {
	bus := events.NewBus()
	r := NewRoster(bus)

	// The login line carries the IP; the "joined the game" line does not.
	bus.Publish(&events.PlayerJoin{Name: "steve", IP: "10.0.0.5:51000"})
	bus.Publish(&events.PlayerJoin{Name: "steve"})

	online := r.Online()
	if len(online) != 1 {
		t.Fatalf("Count = %d, want 1", len(online))
	}
	if online[0].IP != "10.0.0.5:51000" {
		t.Errorf("IP = %q, want preserved from login line", online[0].IP)
	}
}

func TestRosterClearsOnServerStop(t *testing.T) {
	bus := events.NewBus()
	r := NewRoster(bus)

	bus.Publish(&events.PlayerJoin{Name: "steve"})
	bus.Publish(&events.ServerStopped{ExitCode: 0})
	if r.Count() != 0 {
		t.Errorf("Count = %d after stop, want 0", r.Count())
	}

	bus.Publish(&events.PlayerJoin{Name: "alex"})
	bus.Publish(&events.ServerCrashed{ExitCode: 1})
	if r.Count() != 0 {
		t.Errorf("Count = %d after crash, want 0", r.Count())
	}
}
