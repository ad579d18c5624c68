// Package turn owns the turn-taking state machine: it decides when
// captured audio becomes a committed user turn and keeps the session
// alive across long idle stretches.
package turn

// State tracks where the current user turn is in its commit cycle.
type State int

const (
	// StateIdle: no turn in progress; audio may accumulate.
	StateIdle State = iota
	// StateAwaitingSpeechEnd: capture stopped, streaming trailing silence
	// while the server's voice-activity detection closes out the turn.
	StateAwaitingSpeechEnd
	// StateCommitted: the turn is committed; further commit requests are
	// ignored until the agent's response concludes.
	StateCommitted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingSpeechEnd:
		return "awaiting_speech_end"
	case StateCommitted:
		return "committed"
	default:
		return "unknown"
	}
}

// Mode selects how user turns are delimited.
type Mode int

const (
	// ModeContinuous: server voice-activity detection delimits turns;
	// stopping capture commits explicitly with silence padding.
	ModeContinuous Mode = iota
	// ModePushToTalk: the user delimits turns by holding a key; releasing
	// it stops capture and waits for the server to close the turn.
	ModePushToTalk
)

func (m Mode) String() string {
	switch m {
	case ModeContinuous:
		return "continuous"
	case ModePushToTalk:
		return "push_to_talk"
	default:
		return "unknown"
	}
}
