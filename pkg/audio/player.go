package audio

import (
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// DefaultHangover is how long after the last Write the player still
// reports IsPlaying. It papers over the natural gaps between synthesis
// chunks so callers don't see a false "finished" between sentences.
const DefaultHangover = 250 * time.Millisecond

// playerBufferDuration is the speaker-side buffer. Kept short: a long
// lookahead would make interrupts audibly laggy.
const playerBufferDuration = 100 * time.Millisecond

// Player buffers synthesized PCM for the speaker. The device callback
// pulls bytes on its own realtime thread via Read; when fewer bytes are
// buffered than the hardware asks for, the remainder is zero-padded
// silence instead of underrunning.
type Player struct {
	mu        sync.Mutex
	buf       []byte
	lastWrite time.Time

	otoCtx *oto.Context
	player *oto.Player
}

// NewPlayer opens the default playback device and starts pulling
// immediately; with an empty buffer the device plays silence.
func NewPlayer(cfg Config) (*Player, error) {
	opts := &oto.NewContextOptions{
		SampleRate:   cfg.SampleRate,
		ChannelCount: cfg.Channels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   playerBufferDuration,
	}
	otoCtx, ready, err := oto.NewContext(opts)
	if err != nil {
		return nil, fmt.Errorf("open playback device: %w", err)
	}
	<-ready

	p := &Player{otoCtx: otoCtx}
	p.player = otoCtx.NewPlayer(p)
	p.player.Play()
	return p, nil
}

// Write appends PCM bytes for playback and records the write time.
func (p *Player) Write(pcm []byte) {
	if len(pcm) == 0 {
		return
	}
	now := time.Now()
	p.mu.Lock()
	p.lastWrite = now
	p.buf = append(p.buf, pcm...)
	p.mu.Unlock()
}

// Clear discards all buffered audio. Bytes already handed to the hardware
// cannot be un-played, so an interrupt has a short audible tail.
func (p *Player) Clear() {
	p.mu.Lock()
	p.buf = p.buf[:0]
	p.mu.Unlock()
}

// Buffered returns the number of bytes awaiting playback.
func (p *Player) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buf)
}

// IsPlaying reports whether audio is buffered or a write happened within
// the hangover window. A non-positive hangover uses DefaultHangover.
func (p *Player) IsPlaying(hangover time.Duration) bool {
	if hangover <= 0 {
		hangover = DefaultHangover
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.buf) > 0 {
		return true
	}
	return !p.lastWrite.IsZero() && time.Since(p.lastWrite) < hangover
}

// Read is the device pull callback (via oto's player thread). It always
// fills the full request, zero-padding whatever isn't buffered.
func (p *Player) Read(out []byte) (int, error) {
	p.mu.Lock()
	n := copy(out, p.buf)
	p.buf = p.buf[:copy(p.buf, p.buf[n:])]
	p.mu.Unlock()

	for i := n; i < len(out); i++ {
		out[i] = 0
	}
	return len(out), nil
}

// Close stops the playback device. Buffered audio is discarded.
func (p *Player) Close() {
	p.Clear()
	if p.player != nil {
		_ = p.player.Close()
		p.player = nil
	}
}
