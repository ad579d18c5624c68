package hotkey

import "testing"

func TestParseCombo(t *testing.T) {
	tests := []struct {
		spec    string
		wantErr bool
		combo   bool
		key     string
	}{
		{spec: "cmd_alt", combo: true},
		{spec: "CTRL_SHIFT", combo: true},
		{spec: "cmd", combo: true}, // lone modifier matches either side
		{spec: "f8", key: "f8"},
		{spec: "space", key: "space"},
		{spec: "a", key: "a"},
		{spec: "cmd_banana", wantErr: true},
		{spec: "banana", wantErr: true},
		{spec: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			c, err := ParseCombo(tt.spec)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseCombo(%q) accepted", tt.spec)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if c.IsCombination() != tt.combo {
				t.Errorf("IsCombination() = %v", c.IsCombination())
			}
			if c.Key != tt.key {
				t.Errorf("Key = %q, want %q", c.Key, tt.key)
			}
		})
	}
}

func TestComboString(t *testing.T) {
	c, err := ParseCombo("alt_cmd")
	if err != nil {
		t.Fatal(err)
	}
	if got := c.String(); got != "cmd_alt" {
		t.Errorf("String() = %q", got)
	}
}

type callCounter struct {
	presses  int
	releases int
}

func newCountingTracker(t *testing.T, spec string) (*Tracker, *callCounter) {
	t.Helper()
	combo, err := ParseCombo(spec)
	if err != nil {
		t.Fatal(err)
	}
	var c callCounter
	return NewTracker(combo,
		func() { c.presses++ },
		func() { c.releases++ },
	), &c
}

func TestTrackerCombinationEdges(t *testing.T) {
	tr, calls := newCountingTracker(t, "cmd_alt")

	tr.Handle(KeyEvent{Key: "cmd", Press: true})
	if calls.presses != 0 {
		t.Fatal("fired with only one modifier held")
	}

	tr.Handle(KeyEvent{Key: "alt", Press: true})
	if calls.presses != 1 || !tr.Pressed() {
		t.Fatalf("presses = %d after full combo", calls.presses)
	}

	// Key repeat while held must not re-fire.
	tr.Handle(KeyEvent{Key: "alt", Press: true})
	tr.Handle(KeyEvent{Key: "cmd", Press: true})
	if calls.presses != 1 {
		t.Errorf("presses = %d after repeats, want 1", calls.presses)
	}

	tr.Handle(KeyEvent{Key: "alt", Press: false})
	if calls.releases != 1 || tr.Pressed() {
		t.Fatalf("releases = %d after breaking combo", calls.releases)
	}

	// Releasing the second modifier must not fire again.
	tr.Handle(KeyEvent{Key: "cmd", Press: false})
	if calls.releases != 1 {
		t.Errorf("releases = %d, want 1", calls.releases)
	}
}

func TestTrackerIgnoresExtraModifiers(t *testing.T) {
	tr, calls := newCountingTracker(t, "cmd_alt")

	// A superset of the required modifiers still triggers.
	tr.Handle(KeyEvent{Key: "shift", Press: true})
	tr.Handle(KeyEvent{Key: "cmd", Press: true})
	tr.Handle(KeyEvent{Key: "alt", Press: true})
	if calls.presses != 1 {
		t.Errorf("presses = %d with extra modifier held", calls.presses)
	}
}

func TestTrackerSingleKey(t *testing.T) {
	tr, calls := newCountingTracker(t, "f8")

	tr.Handle(KeyEvent{Key: "a", Press: true})
	tr.Handle(KeyEvent{Key: "a", Press: false})
	if calls.presses != 0 {
		t.Fatal("unrelated key fired the callback")
	}

	tr.Handle(KeyEvent{Key: "f8", Press: true})
	tr.Handle(KeyEvent{Key: "f8", Press: true}) // repeat
	tr.Handle(KeyEvent{Key: "f8", Press: false})
	if calls.presses != 1 || calls.releases != 1 {
		t.Errorf("presses = %d, releases = %d", calls.presses, calls.releases)
	}
}

func TestTrackerLoneModifierMatchesBothSides(t *testing.T) {
	tr, calls := newCountingTracker(t, "cmd")

	tr.Handle(KeyEvent{Key: "cmd", Press: true})
	tr.Handle(KeyEvent{Key: "cmd", Press: false})
	if calls.presses != 1 || calls.releases != 1 {
		t.Errorf("presses = %d, releases = %d", calls.presses, calls.releases)
	}
}

func TestNormalizeKeyName(t *testing.T) {
	tests := map[string]string{
		"Left Shift":  "shift",
		"rcmd":        "cmd",
		"command":     "cmd",
		"Control":     "ctrl",
		"option":      "alt",
		"spacebar":    "space",
		"Return":      "enter",
		"escape":      "esc",
		"a":           "a",
		"right ctrl":  "ctrl",
		" Left Alt  ": "alt",
	}
	for in, want := range tests {
		if got := NormalizeKeyName(in); got != want {
			t.Errorf("NormalizeKeyName(%q) = %q, want %q", in, got, want)
		}
	}
}
