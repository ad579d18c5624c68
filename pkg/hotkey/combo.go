// Package hotkey detects the push-to-talk key globally. Combo parsing
// and press/release tracking are pure; the OS hook lives in Listener.
package hotkey

import (
	"fmt"
	"strings"
)

// Modifier is a normalized modifier key name.
type Modifier string

const (
	ModCmd   Modifier = "cmd"
	ModCtrl  Modifier = "ctrl"
	ModShift Modifier = "shift"
	ModAlt   Modifier = "alt"
)

var modifiers = map[string]Modifier{
	"cmd":     ModCmd,
	"command": ModCmd,
	"super":   ModCmd,
	"win":     ModCmd,
	"ctrl":    ModCtrl,
	"control": ModCtrl,
	"shift":   ModShift,
	"alt":     ModAlt,
	"option":  ModAlt,
}

var specialKeys = map[string]bool{
	"space": true, "tab": true, "enter": true, "backspace": true, "esc": true,
	"f1": true, "f2": true, "f3": true, "f4": true, "f5": true, "f6": true,
	"f7": true, "f8": true, "f9": true, "f10": true, "f11": true, "f12": true,
}

// Combo is either a modifier combination (all must be held together) or a
// single key.
type Combo struct {
	// Modifiers required for a combination; empty for single-key combos.
	Modifiers map[Modifier]bool
	// Key is the single key name; empty for modifier combinations.
	Key string
}

// IsCombination reports whether the combo requires held modifiers.
func (c Combo) IsCombination() bool { return len(c.Modifiers) > 0 }

func (c Combo) String() string {
	if !c.IsCombination() {
		return c.Key
	}
	var parts []string
	for _, m := range []Modifier{ModCmd, ModCtrl, ModShift, ModAlt} {
		if c.Modifiers[m] {
			parts = append(parts, string(m))
		}
	}
	return strings.Join(parts, "_")
}

// ParseCombo parses a spec like "cmd_alt", "f8", or "space". Underscore
// separated parts must all be modifiers; a spec without underscores is a
// single key.
func ParseCombo(spec string) (Combo, error) {
	spec = strings.ToLower(strings.TrimSpace(spec))
	if spec == "" {
		return Combo{}, fmt.Errorf("empty key spec")
	}

	if strings.Contains(spec, "_") {
		mods := make(map[Modifier]bool)
		for _, part := range strings.Split(spec, "_") {
			m, ok := modifiers[part]
			if !ok {
				return Combo{}, fmt.Errorf("unrecognized modifier %q in combination %q", part, spec)
			}
			mods[m] = true
		}
		return Combo{Modifiers: mods}, nil
	}

	if m, ok := modifiers[spec]; ok {
		// A lone modifier acts as a single-modifier combination so both
		// left and right variants trigger it.
		return Combo{Modifiers: map[Modifier]bool{m: true}}, nil
	}
	if len(spec) == 1 || specialKeys[spec] {
		return Combo{Key: spec}, nil
	}
	return Combo{}, fmt.Errorf("unrecognized key %q", spec)
}
