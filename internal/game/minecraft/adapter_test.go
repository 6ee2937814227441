package minecraft

import (
	"testing"

	"github.com/emberfall/stoker/internal/events"
)

func TestParseLinePlayerEvents(t *testing.T) {
	a := &Adapter{}

	tests := []struct {
		name string
		line string
		want events.Event
	}{
		{
			name: "login with ip",
			line: "[12:34:56] [Server thread/INFO]: steve[/192.168.1.5:52413] logged in with entity id 261 at (8.5, 64.0, 8.5)",
			want: &events.PlayerJoin{Name: "steve", IP: "192.168.1.5:52413"},
		},
		{
			name: "joined the game",
			line: "[12:34:56] [Server thread/INFO]: alex joined the game",
			want: &events.PlayerJoin{Name: "alex"},
		},
		{
			name: "left the game",
			line: "[12:40:00] [Server thread/INFO]: alex left the game",
			want: &events.PlayerLeave{Name: "alex"},
		},
		{
			name: "lost connection",
			line: "[12:40:00] [Server thread/INFO]: steve lost connection: Timed out",
			want: &events.PlayerLeave{Name: "steve", Reason: "Timed out"},
		},
		{
			name: "chat",
			line: "[12:41:12] [Server thread/INFO]: <steve> anyone seen my diamonds",
			want: &events.PlayerChat{Name: "steve", Message: "anyone seen my diamonds"},
		},
		{
			name: "death with killer",
			line: "[12:45:00] [Server thread/INFO]: alex was slain by steve",
			want: &events.PlayerDeath{Name: "alex", Killer: "steve"},
		},
		{
			name: "environmental death",
			line: "[12:46:00] [Server thread/INFO]: steve fell from a high place",
			want: &events.PlayerDeath{Name: "steve"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := a.ParseLine(tt.line)
			if got == nil {
				t.Fatal("ParseLine returned nil")
			}
			if got.Kind() != tt.want.Kind() {
				t.Fatalf("Kind = %s, want %s", got.Kind(), tt.want.Kind())
			}
			switch want := tt.want.(type) {
			case *events.PlayerJoin:
				join := got.(*events.PlayerJoin)
				if join.Name != want.Name || join.IP != want.IP {
					t.Errorf("got %+v, want %+v", join, want)
				}
			case *events.PlayerLeave:
				leave := got.(*events.PlayerLeave)
				if leave.Name != want.Name || leave.Reason != want.Reason {
					t.Errorf("got %+v, want %+v", leave, want)
				}
			case *events.PlayerChat:
				chat := got.(*events.PlayerChat)
				if chat.Name != want.Name || chat.Message != want.Message {
					t.Errorf("got %+v, want %+v", chat, want)
				}
			case *events.PlayerDeath:
				death := got.(*events.PlayerDeath)
				if death.Name != want.Name || death.Killer != want.Killer {
					t.Errorf("got %+v, want %+v", death, want)
				}
			}
		})
	}
}

func TestParseLineIgnoresNoise(t *testing.T) {
	a := &Adapter{}
	lines := []string{
		"[12:34:56] [Server thread/INFO]: Preparing spawn area: 47%",
		"[12:34:56] [Worker-Main-2/INFO]: Preparing spawn area: 92%",
		"random stdout noise with no timestamp",
		"",
	}
	for _, line := range lines {
		if ev := a.ParseLine(line); ev != nil {
			t.Errorf("ParseLine(%q) = %v, want nil", line, ev)
		}
	}
}

func TestIsReady(t *testing.T) {
	a := &Adapter{}
	if !a.IsReady(`[12:34:56] [Server thread/INFO]: Done (13.352s)! For help, type "help"`) {
		t.Error("done line not detected as ready")
	}
	if a.IsReady("[12:34:56] [Server thread/INFO]: Starting minecraft server version 1.21") {
		t.Error("startup line wrongly detected as ready")
	}
}

func TestLevel(t *testing.T) {
	a := &Adapter{}
	tests := []struct {
		line string
		want string
	}{
		{"[12:34:56] [Server thread/INFO]: Done (13.352s)!", "INFO"},
		{"[12:34:56] [Server thread/WARN]: Can't keep up!", "WARN"},
		{"[12:34:56] [Server thread/ERROR]: Exception in tick loop", "ERROR"},
		{"FATAL: out of memory", "ERROR"},
		{"plain line", "INFO"},
	}
	for _, tt := range tests {
		if got := a.Level(tt.line); got != tt.want {
			t.Errorf("Level(%q) = %s, want %s", tt.line, got, tt.want)
		}
	}
}
