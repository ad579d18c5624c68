package hotkey

import "strings"

// KeyEvent is a normalized keyboard event from the OS hook.
type KeyEvent struct {
	Key   string // normalized key name: "cmd", "alt", "a", "space", ...
	Press bool   // true for key down, false for key up
}

// Tracker turns a stream of raw key events into edge-triggered press and
// release callbacks for one combo. For combinations it fires press when
// the required modifiers become a subset of the held set, and release
// when that stops being true.
type Tracker struct {
	combo     Combo
	onPress   func()
	onRelease func()

	held    map[Modifier]bool
	pressed bool
}

// NewTracker creates a tracker. Callbacks may be nil.
func NewTracker(combo Combo, onPress, onRelease func()) *Tracker {
	return &Tracker{
		combo:     combo,
		onPress:   onPress,
		onRelease: onRelease,
		held:      make(map[Modifier]bool),
	}
}

// Pressed reports whether the combo is currently active.
func (t *Tracker) Pressed() bool { return t.pressed }

// Handle processes one key event. Not safe for concurrent use; the
// listener calls it from a single goroutine.
func (t *Tracker) Handle(ev KeyEvent) {
	if m, ok := modifiers[ev.Key]; ok {
		if ev.Press {
			t.held[m] = true
		} else {
			delete(t.held, m)
		}
	}

	if t.combo.IsCombination() {
		active := t.comboHeld()
		switch {
		case active && !t.pressed && ev.Press:
			t.pressed = true
			t.fire(t.onPress)
		case !active && t.pressed && !ev.Press:
			t.pressed = false
			t.fire(t.onRelease)
		}
		return
	}

	if ev.Key != t.combo.Key {
		return
	}
	switch {
	case ev.Press && !t.pressed:
		t.pressed = true
		t.fire(t.onPress)
	case !ev.Press && t.pressed:
		t.pressed = false
		t.fire(t.onRelease)
	}
}

func (t *Tracker) comboHeld() bool {
	for m := range t.combo.Modifiers {
		if !t.held[m] {
			return false
		}
	}
	return true
}

func (t *Tracker) fire(fn func()) {
	if fn != nil {
		fn()
	}
}

// NormalizeKeyName maps OS hook key names onto the tracker's vocabulary,
// folding left/right variants of modifiers together.
func NormalizeKeyName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.TrimPrefix(name, "left ")
	name = strings.TrimPrefix(name, "right ")

	switch name {
	case "lcmd", "rcmd", "command", "lwin", "rwin", "super":
		return "cmd"
	case "lctrl", "rctrl", "control":
		return "ctrl"
	case "lshift", "rshift":
		return "shift"
	case "lalt", "ralt", "option":
		return "alt"
	case "spacebar":
		return "space"
	case "escape":
		return "esc"
	case "return":
		return "enter"
	}
	return name
}
