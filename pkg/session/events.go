// Package session defines the conversational back end the front end
// talks to: audio and text go in, typed events come out.
package session

// Event is anything the back end reports while a conversation runs.
type Event interface {
	EventType() string
}

// AgentStarted signals the agent began producing a response.
type AgentStarted struct{}

func (AgentStarted) EventType() string { return "agent_started" }

// AgentEnded signals the agent finished its response.
type AgentEnded struct{}

func (AgentEnded) EventType() string { return "agent_ended" }

// ToolStarted signals the agent invoked a tool.
type ToolStarted struct {
	Name      string
	Arguments string
}

func (ToolStarted) EventType() string { return "tool_started" }

// ToolEnded signals a tool invocation completed.
type ToolEnded struct {
	Name   string
	Output string
}

func (ToolEnded) EventType() string { return "tool_ended" }

// ErrorEvent carries a back-end error that didn't kill the session.
type ErrorEvent struct {
	Err error
}

func (ErrorEvent) EventType() string { return "error" }

// ServerKind classifies raw protocol notifications the front end reacts
// to directly.
type ServerKind string

const (
	// ServerSpeechStarted: voice activity detected in the input audio.
	ServerSpeechStarted ServerKind = "speech_started"
	// ServerSpeechStopped: voice activity ended.
	ServerSpeechStopped ServerKind = "speech_stopped"
	// ServerAudioCommitted: the input audio buffer was committed as a turn.
	ServerAudioCommitted ServerKind = "audio_committed"
	// ServerTextDelta: a fragment of the agent's text response.
	ServerTextDelta ServerKind = "text_delta"
	// ServerTextDone: the agent's text response is complete.
	ServerTextDone ServerKind = "text_done"
	// ServerTranscriptCompleted: transcription of the user's turn finished.
	ServerTranscriptCompleted ServerKind = "transcript_completed"
)

// Server is a raw protocol notification. Text carries the delta, full
// response text, or transcript depending on Kind.
type Server struct {
	Kind ServerKind
	Text string
}

func (Server) EventType() string { return "server" }
