package audio

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
)

// capturePeriodMs is the hardware callback period. 20ms keeps chunks small
// enough for low-latency forwarding without hammering the channel.
const capturePeriodMs = 20

// frameChannelSize bounds the capture channel. At 20ms per chunk this holds
// several seconds of audio; the callback drops chunks instead of blocking
// if the consumer falls that far behind.
const frameChannelSize = 256

// Engine owns the miniaudio context shared by capture devices. One Engine
// is created per session and released on shutdown; there are no
// package-level device handles.
type Engine struct {
	ctx *malgo.AllocatedContext
}

// NewEngine initializes the audio backend. Failure here is fatal to
// session startup.
func NewEngine() (*Engine, error) {
	cfg := malgo.ContextConfig{}
	cfg.ThreadPriority = malgo.ThreadPriorityRealtime

	ctx, err := malgo.InitContext(nil, cfg, nil)
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}
	return &Engine{ctx: ctx}, nil
}

// Close releases the audio backend. Devices created from this engine must
// be closed first.
func (e *Engine) Close() {
	if e == nil || e.ctx == nil {
		return
	}
	_ = e.ctx.Uninit()
	e.ctx.Free()
	e.ctx = nil
}

// Frame is one item on the capture channel: either a PCM chunk or the
// end-of-turn sentinel pushed by Stop(commit=true). The sentinel is
// enqueued on the same channel as audio, so it is delivered only after
// every chunk from that turn.
type Frame struct {
	Data      []byte
	EndOfTurn bool
}

// MicOptions configures a MicStream.
type MicOptions struct {
	// Mute, when non-nil, is consulted by the hardware callback before
	// accepting a chunk. Returning true suppresses capture; used as a
	// half-duplex gate so speaker playback is not re-captured as speech.
	Mute func() bool

	Logger *slog.Logger
}

// MicStream bridges the microphone's realtime callback thread into the
// rest of the session via a buffered channel of Frames. The callback never
// blocks: when the channel is full, chunks are counted and dropped.
type MicStream struct {
	cfg  Config
	mute func() bool
	log  *slog.Logger

	frames  chan Frame
	device  *malgo.Device
	running atomic.Bool
	dropped atomic.Uint64

	closeOnce sync.Once
}

// NewMicStream opens the default capture device. The device is opened but
// not started; call Start to begin delivering frames.
func NewMicStream(engine *Engine, cfg Config, opts MicOptions) (*MicStream, error) {
	if engine == nil || engine.ctx == nil {
		return nil, fmt.Errorf("mic stream requires an initialized audio engine")
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	m := &MicStream{
		cfg:    cfg,
		mute:   opts.Mute,
		log:    log,
		frames: make(chan Frame, frameChannelSize),
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(cfg.Channels)
	deviceConfig.SampleRate = uint32(cfg.SampleRate)
	deviceConfig.PeriodSizeInMilliseconds = capturePeriodMs

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			m.onCapture(input)
		},
	}

	device, err := malgo.InitDevice(engine.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return nil, fmt.Errorf("open capture device: %w", err)
	}
	m.device = device
	return m, nil
}

// onCapture runs on the hardware callback thread. It must not block: it
// gates on the running flag and the mute predicate, copies the chunk
// (malgo reuses its buffer), and does a non-blocking send.
func (m *MicStream) onCapture(input []byte) {
	if !m.running.Load() || len(input) == 0 {
		return
	}
	if m.mute != nil && m.mute() {
		return
	}

	chunk := make([]byte, len(input))
	copy(chunk, input)

	select {
	case m.frames <- Frame{Data: chunk}:
	default:
		m.dropped.Add(1)
	}
}

// Frames returns the channel of captured chunks and end-of-turn sentinels.
// Chunks preserve capture order. The channel is closed by Close.
func (m *MicStream) Frames() <-chan Frame {
	return m.frames
}

// Running reports whether capture is active. Read racily by callers that
// only need a hint (status display, liveness checks).
func (m *MicStream) Running() bool {
	return m.running.Load()
}

// Dropped returns how many chunks the callback discarded because the
// channel was full.
func (m *MicStream) Dropped() uint64 {
	return m.dropped.Load()
}

// Start begins microphone capture. Calling Start while running is a no-op.
func (m *MicStream) Start() error {
	if m.running.Swap(true) {
		return nil
	}
	if m.device != nil {
		if err := m.device.Start(); err != nil {
			m.running.Store(false)
			return fmt.Errorf("start capture device: %w", err)
		}
	}
	return nil
}

// Stop halts capture. When commit is true an end-of-turn sentinel is
// enqueued after all buffered audio so the consumer can finalize the turn.
// Stopping an inactive stream is a no-op.
func (m *MicStream) Stop(commit bool) {
	if !m.running.Swap(false) {
		return
	}
	if m.device != nil {
		if err := m.device.Stop(); err != nil {
			m.log.Warn("stop capture device", "error", err)
		}
	}
	if commit {
		select {
		case m.frames <- Frame{EndOfTurn: true}:
		default:
			// The channel buffers several seconds of audio, so full here
			// means the consumer is gone. Never block the caller on it.
			m.dropped.Add(1)
			m.log.Warn("end-of-turn sentinel dropped, frame channel full")
		}
	}
}

// Close permanently releases the capture device and closes the frame
// channel. Safe to call more than once and on every shutdown path.
func (m *MicStream) Close() {
	m.closeOnce.Do(func() {
		m.running.Store(false)
		if m.device != nil {
			// Uninit blocks until the callback thread is done, so no
			// send can race the close below.
			m.device.Uninit()
			m.device = nil
		}
		if n := m.dropped.Load(); n > 0 {
			m.log.Warn("capture chunks dropped", "count", n)
		}
		close(m.frames)
	})
}
