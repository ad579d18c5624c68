// Package tts abstracts streaming text-to-speech providers.
package tts

import (
	"context"
	"sync"
)

// Provider converts text into streamed PCM audio.
type Provider interface {
	// Name returns the provider identifier.
	Name() string

	// Synthesize starts synthesis for one piece of text. Audio arrives on
	// the returned stream as the provider generates it.
	Synthesize(ctx context.Context, text string, opts Options) (*Stream, error)
}

// Options configures a synthesis request.
type Options struct {
	Voice      string // Voice identifier
	Model      string // Provider model; empty uses the provider default
	Language   string // Language code
	SampleRate int    // Output sample rate; 0 uses 24000
	Speed      float64
}

// Stream delivers synthesized audio chunks. The producer closes Chunks
// when synthesis finishes; Err is valid once Chunks is closed.
type Stream struct {
	chunks chan []byte

	mu  sync.Mutex
	err error

	done     chan struct{}
	doneOnce sync.Once
}

// NewStream creates a stream for a provider implementation to fill.
func NewStream() *Stream {
	return &Stream{
		chunks: make(chan []byte, 64),
		done:   make(chan struct{}),
	}
}

// Chunks returns the channel of PCM audio chunks.
func (s *Stream) Chunks() <-chan []byte {
	return s.chunks
}

// Err returns the synthesis error, if any. Read it only after Chunks is
// closed or Close has been called.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close abandons the stream. The producer stops delivering chunks.
func (s *Stream) Close() error {
	s.doneOnce.Do(func() { close(s.done) })
	return nil
}

// Done returns a channel closed when the consumer abandons the stream.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Send delivers a chunk to the consumer. Returns false once the stream
// has been closed.
func (s *Stream) Send(chunk []byte) bool {
	select {
	case s.chunks <- chunk:
		return true
	case <-s.done:
		return false
	}
}

// Fail records an error. Call before FinishSending so consumers draining
// Chunks observe it.
func (s *Stream) Fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// FinishSending closes the chunk channel to signal completion.
func (s *Stream) FinishSending() {
	close(s.chunks)
}
