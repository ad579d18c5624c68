package turn

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/vango-go/voicedesk/pkg/audio"
)

const (
	// minCommitMs rejects commits below roughly 100ms of audio; the
	// remote session errors on shorter buffers.
	minCommitMs = 100

	// continuousPadMs of silence is appended before an explicit commit so
	// server-side voice-activity detection sees the speech trail off.
	continuousPadMs = 500

	// pttSilenceChunkMs is the size of each trailing-silence chunk
	// streamed while waiting for the server to close a push-to-talk turn.
	pttSilenceChunkMs = 100

	// defaultSpeechEndTimeout bounds the wait for the server's
	// speech-ended notification after a push-to-talk release.
	defaultSpeechEndTimeout = 1500 * time.Millisecond
)

// AudioSender is the slice of the session the coordinator talks to.
type AudioSender interface {
	SendAudio(ctx context.Context, pcm []byte, commit bool) error
}

// Options configures a Coordinator.
type Options struct {
	Mode Mode
	// SpeechEndTimeout bounds the push-to-talk wait for the server's
	// speech-ended notification. Zero uses the default.
	SpeechEndTimeout time.Duration
	Logger           *slog.Logger
}

// Coordinator consumes the capture stream, forwards audio to the session,
// and runs the commit state machine. One instance owns the turn state;
// server notifications arrive via the Note methods.
type Coordinator struct {
	cfg           audio.Config
	sess          AudioSender
	speechEndWait time.Duration
	log           *slog.Logger

	mu               sync.Mutex
	mode             Mode
	state            State
	bytesSinceCommit int
	commitSignal     chan struct{} // non-nil only while awaiting speech end
}

// NewCoordinator creates a coordinator in StateIdle.
func NewCoordinator(cfg audio.Config, sess AudioSender, opts Options) *Coordinator {
	wait := opts.SpeechEndTimeout
	if wait <= 0 {
		wait = defaultSpeechEndTimeout
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{
		cfg:           cfg,
		sess:          sess,
		speechEndWait: wait,
		log:           log,
		mode:          opts.Mode,
	}
}

// Run forwards capture frames to the session until the channel closes or
// ctx is cancelled. An end-of-turn sentinel triggers the commit logic for
// the active mode.
func (c *Coordinator) Run(ctx context.Context, frames <-chan audio.Frame) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f, ok := <-frames:
			if !ok {
				return nil
			}
			if f.EndOfTurn {
				if err := c.endTurn(ctx); err != nil {
					return err
				}
				continue
			}
			if err := c.sess.SendAudio(ctx, f.Data, false); err != nil {
				return err
			}
			c.mu.Lock()
			c.bytesSinceCommit += len(f.Data)
			c.mu.Unlock()
		}
	}
}

// endTurn handles a capture-stop-with-commit request. The checks and the
// resulting state transition share one critical section so a concurrent
// NoteCommitted can never slip a second commit into the same cycle.
func (c *Coordinator) endTurn(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateCommitted {
		c.mu.Unlock()
		c.log.Debug("ignoring commit request, turn already committed")
		return nil
	}
	if min := c.cfg.BytesForDuration(minCommitMs); c.bytesSinceCommit < min {
		c.log.Debug("dropping commit below minimum",
			"bytes", c.bytesSinceCommit, "min", min)
		c.state = StateIdle
		c.bytesSinceCommit = 0
		c.mu.Unlock()
		return nil
	}

	if c.mode == ModePushToTalk {
		committed := make(chan struct{})
		c.state = StateAwaitingSpeechEnd
		c.commitSignal = committed
		c.mu.Unlock()
		return c.awaitSpeechEnd(ctx, committed)
	}

	// Continuous mode: pad with silence and commit explicitly.
	c.state = StateCommitted
	sent := c.bytesSinceCommit
	c.bytesSinceCommit = 0
	c.mu.Unlock()

	pad := audio.Silence(c.cfg.BytesForDuration(continuousPadMs))
	c.log.Info("committing turn", "bytes", sent, "pad_bytes", len(pad))
	return c.sess.SendAudio(ctx, pad, true)
}

// awaitSpeechEnd streams trailing silence until the server commits the
// turn on its own, bounded by the speech-end timeout. The server is
// configured to auto-commit when its voice-activity detection fires, so
// no explicit commit is sent here. The caller has already moved the state
// to AwaitingSpeechEnd and installed the committed channel.
func (c *Coordinator) awaitSpeechEnd(ctx context.Context, committed chan struct{}) error {
	silence := audio.Silence(c.cfg.BytesForDuration(pttSilenceChunkMs))
	deadline := time.NewTimer(c.speechEndWait)
	defer deadline.Stop()
	ticker := time.NewTicker(time.Duration(pttSilenceChunkMs) * time.Millisecond)
	defer ticker.Stop()

	c.log.Debug("streaming silence, waiting for server speech end")
	for {
		if err := c.sess.SendAudio(ctx, silence, false); err != nil {
			c.clearCommitSignal()
			return err
		}
		c.mu.Lock()
		c.bytesSinceCommit += len(silence)
		c.mu.Unlock()

		select {
		case <-committed:
			c.log.Debug("server committed turn")
			return nil
		case <-deadline.C:
			c.mu.Lock()
			if c.state == StateAwaitingSpeechEnd {
				c.state = StateCommitted
				c.bytesSinceCommit = 0
			}
			c.commitSignal = nil
			c.mu.Unlock()
			c.log.Warn("speech end wait timed out, marking turn committed",
				"timeout", c.speechEndWait)
			return nil
		case <-ctx.Done():
			c.clearCommitSignal()
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Coordinator) clearCommitSignal() {
	c.mu.Lock()
	c.commitSignal = nil
	c.mu.Unlock()
}

// NoteCommitted records a server-side commit of the input buffer and
// releases any pending speech-end wait.
func (c *Coordinator) NoteCommitted() {
	c.mu.Lock()
	c.state = StateCommitted
	c.bytesSinceCommit = 0
	if c.commitSignal != nil {
		close(c.commitSignal)
		c.commitSignal = nil
	}
	c.mu.Unlock()
}

// NoteSpeechStopped records that server voice-activity detection saw the
// speech end. The server's auto-commit follows; nothing to do locally.
func (c *Coordinator) NoteSpeechStopped() {
	c.log.Debug("server detected speech end")
}

// FinishTurn resets a committed turn to idle once the agent's response
// has concluded.
func (c *Coordinator) FinishTurn() {
	c.mu.Lock()
	if c.state == StateCommitted {
		c.state = StateIdle
		c.bytesSinceCommit = 0
	}
	c.mu.Unlock()
}

// BeginTurn resets the state for a fresh recording (push-to-talk press).
func (c *Coordinator) BeginTurn() {
	c.mu.Lock()
	c.state = StateIdle
	c.bytesSinceCommit = 0
	c.mu.Unlock()
}

// SetMode switches turn delimitation. The caller must stop capture first;
// the coordinator resets its state so the modes never overlap.
func (c *Coordinator) SetMode(mode Mode) {
	c.mu.Lock()
	c.mode = mode
	c.state = StateIdle
	c.bytesSinceCommit = 0
	c.mu.Unlock()
}

// Mode returns the active listen mode.
func (c *Coordinator) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// State returns the current turn state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}
