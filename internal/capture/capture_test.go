package capture

import (
	"fmt"
	"testing"
)

func TestStartAndFinish(t *testing.T) {
	c := New()

	if !c.Start(1, "list") {
		t.Fatal("Start returned false for a fresh id")
	}
	if c.Start(1, "list") {
		t.Error("Start should refuse a duplicate session")
	}

	c.ProcessLine("There are 3 of a max of 20 players online")
	c.ProcessLine("steve, alex, herobrine")

	out, ok := c.Finish(1)
	if !ok {
		t.Fatal("Finish returned ok=false for an open session")
	}
	want := "There are 3 of a max of 20 players online\nsteve, alex, herobrine"
	if out != want {
		t.Errorf("output = %q, want %q", out, want)
	}

	if _, ok := c.Finish(1); ok {
		t.Error("second Finish should return ok=false")
	}
}

func TestFinishWithoutStart(t *testing.T) {
	c := New()
	if _, ok := c.Finish(99); ok {
		t.Error("Finish on unknown id returned ok=true")
	}
}

func TestEmptySessionYieldsEmptyOutput(t *testing.T) {
	c := New()
	c.Start(1, "gamerule doDaylightCycle false")
	out, ok := c.Finish(1)
	if !ok || out != "" {
		t.Errorf("got (%q, %v), want empty output", out, ok)
	}
}

func TestConcurrentSessionsBothSeeLines(t *testing.T) {
	c := New()
	c.Start(1, "list")
	c.ProcessLine("before second")
	c.Start(2, "seed")
	c.ProcessLine("shared line")

	out1, _ := c.Finish(1)
	out2, _ := c.Finish(2)

	if out1 != "before second\nshared line" {
		t.Errorf("session 1 output = %q", out1)
	}
	if out2 != "shared line" {
		t.Errorf("session 2 output = %q", out2)
	}
	if c.Open() != 0 {
		t.Errorf("Open() = %d after finishing all sessions", c.Open())
	}
}

func TestLineCap(t *testing.T) {
	c := New()
	c.Start(1, "spammy")
	for i := 0; i < c.maxLines+100; i++ {
		c.ProcessLine(fmt.Sprintf("line %d", i))
	}
	out, _ := c.Finish(1)

	count := 1
	for _, r := range out {
		if r == '\n' {
			count++
		}
	}
	if count != c.maxLines {
		t.Errorf("captured %d lines, want cap of %d", count, c.maxLines)
	}
}
