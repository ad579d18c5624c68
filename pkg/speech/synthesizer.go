package speech

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vango-go/voicedesk/pkg/speech/tts"
)

// flushPollInterval is how often Flush re-checks the sink while waiting
// for buffered audio to drain.
const flushPollInterval = 100 * time.Millisecond

// Sink receives synthesized audio. *audio.Player satisfies it.
type Sink interface {
	Write(pcm []byte)
	Clear()
	IsPlaying(hangover time.Duration) bool
}

// Synthesizer streams agent text to a TTS provider sentence by sentence.
// Sentences synthesize concurrently so later ones don't wait on earlier
// network round trips, but their audio reaches the sink in sentence order.
type Synthesizer struct {
	provider tts.Provider
	opts     tts.Options
	sink     Sink
	log      *slog.Logger

	inflight atomic.Int64

	mu  sync.Mutex
	buf *SentenceBuffer
	gen *generation
}

// generation groups the synthesis tasks of one uninterrupted response.
// Interrupt cancels the whole generation and starts a fresh one.
type generation struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	last   chan struct{} // closed when the newest sentence finishes writing
}

func newGeneration() *generation {
	ctx, cancel := context.WithCancel(context.Background())
	return &generation{ctx: ctx, cancel: cancel}
}

// NewSynthesizer creates a synthesizer writing to sink with the given
// provider options.
func NewSynthesizer(provider tts.Provider, sink Sink, opts tts.Options, log *slog.Logger) *Synthesizer {
	if log == nil {
		log = slog.Default()
	}
	return &Synthesizer{
		provider: provider,
		opts:     opts,
		sink:     sink,
		log:      log,
		buf:      NewSentenceBuffer(),
		gen:      newGeneration(),
	}
}

// AddText feeds a text delta. Each sentence it completes starts a
// synthesis task immediately.
func (s *Synthesizer) AddText(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sentence := range s.buf.Add(text) {
		s.speakLocked(sentence)
	}
}

// Flush synthesizes any remaining fragment, then blocks until all
// synthesis tasks finish and the sink drains. Returns early if ctx is
// done or Interrupt cancels the current generation.
func (s *Synthesizer) Flush(ctx context.Context) error {
	s.mu.Lock()
	if remainder := s.buf.Flush(); remainder != "" {
		s.speakLocked(remainder)
	}
	g := s.gen
	s.mu.Unlock()

	tasksDone := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(tasksDone)
	}()

	select {
	case <-tasksDone:
	case <-ctx.Done():
		return ctx.Err()
	case <-g.ctx.Done():
		return nil
	}

	ticker := time.NewTicker(flushPollInterval)
	defer ticker.Stop()
	for s.sink.IsPlaying(0) {
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		case <-g.ctx.Done():
			return nil
		}
	}
	return nil
}

// Interrupt abandons everything: buffered text, in-flight synthesis, and
// queued audio. Audio already handed to the device still plays out.
func (s *Synthesizer) Interrupt() {
	s.mu.Lock()
	s.buf.Reset()
	old := s.gen
	s.gen = newGeneration()
	s.mu.Unlock()

	old.cancel()
	// Wait out the cancelled tasks so none of them can slip a write past
	// the clear below. Tasks exit promptly on cancellation, and the sink
	// never blocks a write, so this stays fast.
	old.wg.Wait()
	s.sink.Clear()
}

// Active reports whether speech is in flight or still audible.
func (s *Synthesizer) Active() bool {
	return s.inflight.Load() > 0 || s.sink.IsPlaying(0)
}

// speakLocked starts a synthesis task for one sentence. Caller holds mu.
// The prev/done channel pair chains tasks so audio lands in order.
func (s *Synthesizer) speakLocked(sentence string) {
	g := s.gen
	prev := g.last
	done := make(chan struct{})
	g.last = done

	g.wg.Add(1)
	s.inflight.Add(1)
	go s.speakSentence(g, sentence, prev, done)
}

func (s *Synthesizer) speakSentence(g *generation, sentence string, prev, done chan struct{}) {
	defer g.wg.Done()
	defer s.inflight.Add(-1)
	defer close(done)

	stream, err := s.provider.Synthesize(g.ctx, sentence, s.opts)
	if err != nil {
		if g.ctx.Err() == nil {
			s.log.Error("tts synthesis failed", "provider", s.provider.Name(), "error", err)
		}
		return
	}
	defer stream.Close()

	// Until the previous sentence finishes writing, hold chunks back so
	// synthesis overlaps but playback stays ordered.
	var pending [][]byte
	for {
		select {
		case <-g.ctx.Done():
			return
		case chunk, ok := <-stream.Chunks():
			if !ok {
				if prev != nil {
					select {
					case <-prev:
					case <-g.ctx.Done():
						return
					}
				}
				for _, c := range pending {
					s.sink.Write(c)
				}
				if err := stream.Err(); err != nil && g.ctx.Err() == nil {
					s.log.Error("tts stream failed", "provider", s.provider.Name(), "error", err)
				}
				return
			}
			if prev != nil {
				select {
				case <-prev:
					prev = nil
					for _, c := range pending {
						s.sink.Write(c)
					}
					pending = nil
				default:
					pending = append(pending, chunk)
					continue
				}
			}
			s.sink.Write(chunk)
		}
	}
}
