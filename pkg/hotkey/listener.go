package hotkey

import (
	"log/slog"
	"sync"

	hook "github.com/robotn/gohook"
)

// Listener runs a global keyboard hook and feeds normalized events into a
// Tracker. One listener may be active per process.
type Listener struct {
	tracker *Tracker
	log     *slog.Logger

	mu      sync.Mutex
	running bool
}

// NewListener creates a listener for combo with the given callbacks.
func NewListener(combo Combo, onPress, onRelease func(), log *slog.Logger) *Listener {
	if log == nil {
		log = slog.Default()
	}
	return &Listener{
		tracker: NewTracker(combo, onPress, onRelease),
		log:     log,
	}
}

// Start installs the OS hook and begins dispatching events on a
// background goroutine.
func (l *Listener) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return
	}
	l.running = true

	events := hook.Start()
	go l.dispatch(events)
	l.log.Info("push-to-talk listener started", "key", l.tracker.combo.String())
}

// Stop removes the OS hook. Idempotent.
func (l *Listener) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.running {
		return
	}
	l.running = false
	hook.End()
}

func (l *Listener) dispatch(events chan hook.Event) {
	for ev := range events {
		switch ev.Kind {
		case hook.KeyDown, hook.KeyHold:
			l.tracker.Handle(KeyEvent{Key: l.keyName(ev), Press: true})
		case hook.KeyUp:
			l.tracker.Handle(KeyEvent{Key: l.keyName(ev), Press: false})
		}
	}
}

func (l *Listener) keyName(ev hook.Event) string {
	name := hook.RawcodetoKeychar(ev.Rawcode)
	if name == "" && ev.Keychar != 0 && ev.Keychar != 65535 {
		name = string(ev.Keychar)
	}
	return NormalizeKeyName(name)
}
