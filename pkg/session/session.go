package session

import "context"

// Session is a live bidirectional conversation. Implementations own the
// Events channel and close it when the session ends.
type Session interface {
	// SendAudio streams a PCM16 chunk to the back end. With commit true
	// the chunk (possibly empty) also closes out the current turn.
	SendAudio(ctx context.Context, pcm []byte, commit bool) error

	// SendText submits a typed user message and requests a response.
	SendText(ctx context.Context, text string) error

	// Interrupt cancels the in-progress agent response.
	Interrupt(ctx context.Context) error

	// Events returns the stream of session events.
	Events() <-chan Event

	// Close tears the session down and releases the transport.
	Close() error
}
