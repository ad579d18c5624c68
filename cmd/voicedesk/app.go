package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vango-go/voicedesk/pkg/audio"
	"github.com/vango-go/voicedesk/pkg/hotkey"
	"github.com/vango-go/voicedesk/pkg/session"
	"github.com/vango-go/voicedesk/pkg/session/realtime"
	"github.com/vango-go/voicedesk/pkg/speech"
	"github.com/vango-go/voicedesk/pkg/speech/tts"
	"github.com/vango-go/voicedesk/pkg/transcript"
	"github.com/vango-go/voicedesk/pkg/turn"
)

// micControl and speechControl are the slices of the audio stack the
// event and key handlers touch, narrowed so the handlers can be
// exercised without hardware.
type micControl interface {
	Start() error
	Stop(commit bool)
	Running() bool
}

type speechControl interface {
	AddText(text string)
	Flush(ctx context.Context) error
	Interrupt()
	Active() bool
}

// app holds the wired-up session runtime. One instance per session.
type app struct {
	cfg config
	log *slog.Logger
	out io.Writer

	mic    micControl
	player *audio.Player
	synth  speechControl
	sess   session.Session
	coord  *turn.Coordinator
	live   *turn.Liveness
	tlog   *transcript.Logger

	pttHeld atomic.Bool
}

func run(ctx context.Context, cfg config, log *slog.Logger, in io.Reader, out io.Writer) error {
	a := &app{cfg: cfg, log: log, out: out}
	audioCfg := audio.DefaultConfig()

	player, err := audio.NewPlayer(audioCfg)
	if err != nil {
		return err
	}
	defer player.Close()
	a.player = player

	engine, err := audio.NewEngine()
	if err != nil {
		return err
	}
	defer engine.Close()

	mic, err := audio.NewMicStream(engine, audioCfg, audio.MicOptions{
		// Half-duplex guard: drop mic audio while the assistant is audible,
		// unless the user is deliberately holding push-to-talk.
		Mute: func() bool {
			return a.player.IsPlaying(0) && !a.pttHeld.Load()
		},
		Logger: log,
	})
	if err != nil {
		return err
	}
	defer mic.Close()
	a.mic = mic

	sess, err := realtime.Connect(ctx, cfg.OpenAIKey,
		realtime.WithModel(cfg.Model),
		realtime.WithInstructions(cfg.Instructions),
		realtime.WithToolHandler(builtinTools(log)),
		realtime.WithLogger(log),
	)
	if err != nil {
		return err
	}
	defer sess.Close()
	a.sess = sess

	provider := tts.NewElevenLabs(cfg.ElevenLabsKey)
	a.synth = speech.NewSynthesizer(provider, player, tts.Options{
		Voice:      cfg.VoiceID,
		SampleRate: audioCfg.SampleRate,
	}, log)

	a.coord = turn.NewCoordinator(audioCfg, sess, turn.Options{
		Mode:   cfg.Mode,
		Logger: log,
	})

	a.live = turn.NewLiveness(
		func() bool {
			return !a.mic.Running() && a.coord.State() == turn.StateIdle && !a.pttHeld.Load()
		},
		func(ctx context.Context) error {
			return sess.SendAudio(ctx, audio.Silence(audioCfg.BytesForDuration(100)), false)
		},
		turn.LivenessOptions{Logger: log},
	)

	if cfg.TranscriptDir != "" {
		tlog, err := transcript.New(cfg.TranscriptDir, log)
		if err != nil {
			return err
		}
		defer tlog.Close()
		a.tlog = tlog
		log.Info("transcript enabled", "path", tlog.Path())
	}

	combo, err := hotkey.ParseCombo(cfg.PTTKey)
	if err != nil {
		return err
	}
	hook := hotkey.NewListener(combo, a.onPTTPress, a.onPTTRelease, log)
	hook.Start()
	defer hook.Stop()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Shutdown order: stop capture without committing, then let the
	// deferred closes release the session and both devices.
	defer a.mic.Stop(false)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.eventLoop(gctx) })
	g.Go(func() error { return ignoreCanceled(a.coord.Run(gctx, mic.Frames())) })
	g.Go(func() error { return ignoreCanceled(a.live.Run(gctx)) })
	go a.consoleLoop(gctx, cancel, in)

	a.printBanner()
	return ignoreCanceled(g.Wait())
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// eventLoop consumes session events and drives speech, turn state, and
// liveness. It returns when the session's event stream closes.
func (a *app) eventLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-a.sess.Events():
			if !ok {
				return errors.New("session event stream closed")
			}
			a.live.Touch()
			a.handleEvent(ctx, evt)
		}
	}
}

func (a *app) handleEvent(ctx context.Context, evt session.Event) {
	switch e := evt.(type) {
	case session.AgentStarted:
		a.log.Debug("agent response started")

	case session.AgentEnded:
		a.coord.FinishTurn()

	case session.ToolStarted:
		fmt.Fprintf(a.out, "[tool] %s\n", e.Name)
		a.tlog.Record(transcript.KindTool, e.Name+" "+e.Arguments)

	case session.ToolEnded:
		a.log.Debug("tool finished", "tool", e.Name)

	case session.ErrorEvent:
		a.log.Error("session error", "error", e.Err)

	case session.Server:
		a.handleServerEvent(ctx, e)
	}
}

func (a *app) handleServerEvent(ctx context.Context, e session.Server) {
	switch e.Kind {
	case session.ServerSpeechStarted:
		// Barge-in: the user started talking over the assistant.
		if a.synth.Active() {
			a.synth.Interrupt()
		}

	case session.ServerSpeechStopped:
		a.coord.NoteSpeechStopped()

	case session.ServerAudioCommitted:
		a.coord.NoteCommitted()

	case session.ServerTextDelta:
		fmt.Fprint(a.out, e.Text)
		a.synth.AddText(e.Text)

	case session.ServerTextDone:
		fmt.Fprintln(a.out)
		a.tlog.Record(transcript.KindAssistant, e.Text)
		go func() {
			if err := a.synth.Flush(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.log.Warn("speech flush failed", "error", err)
			}
		}()

	case session.ServerTranscriptCompleted:
		fmt.Fprintf(a.out, "[you] %s\n", strings.TrimSpace(e.Text))
		a.tlog.Record(transcript.KindUser, e.Text)
	}
}

// onPTTPress starts a fresh recording; releasing commits it.
func (a *app) onPTTPress() {
	if a.coord.Mode() != turn.ModePushToTalk {
		return
	}
	a.pttHeld.Store(true)

	if a.cfg.PTTInterrupts && a.synth.Active() {
		a.synth.Interrupt()
		if err := a.sess.Interrupt(context.Background()); err != nil {
			a.log.Warn("interrupt failed", "error", err)
		}
	}

	a.coord.BeginTurn()
	if err := a.mic.Start(); err != nil {
		a.log.Error("mic start failed", "error", err)
		return
	}
	fmt.Fprintln(a.out, "[ptt] recording, release to send")
}

func (a *app) onPTTRelease() {
	if a.coord.Mode() != turn.ModePushToTalk {
		return
	}
	a.pttHeld.Store(false)
	a.mic.Stop(true)
	fmt.Fprintln(a.out, "[ptt] processing")
}

func (a *app) printBanner() {
	fmt.Fprintf(a.out, "voicedesk ready (mode: %s)\n", a.coord.Mode())
	fmt.Fprintln(a.out, "Commands: /mic, /mode:continuous, /mode:ptt, /stop, /status, /quit. Anything else is sent as text.")
	if a.coord.Mode() == turn.ModePushToTalk {
		fmt.Fprintf(a.out, "Hold %s to talk.\n", a.cfg.PTTKey)
	}
}

// consoleLoop reads user commands from stdin until /quit or EOF.
func (a *app) consoleLoop(ctx context.Context, cancel context.CancelFunc, in io.Reader) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if a.handleCommand(ctx, line, cancel) {
			continue
		}

		// Free text goes straight to the agent.
		if err := a.sess.SendText(ctx, line); err != nil {
			a.log.Error("send text failed", "error", err)
		}
	}
	cancel()
}

// handleCommand dispatches slash commands; returns false for free text.
func (a *app) handleCommand(ctx context.Context, line string, cancel context.CancelFunc) bool {
	switch {
	case line == "/quit" || line == "/exit":
		a.mic.Stop(false)
		fmt.Fprintln(a.out, "bye")
		cancel()
		return true

	case line == "/mic":
		a.toggleMic()
		return true

	case strings.HasPrefix(line, "/mode:"):
		mode, err := parseMode(strings.TrimPrefix(line, "/mode:"))
		if err != nil {
			fmt.Fprintf(a.out, "mode switch error: %v\n", err)
			return true
		}
		a.switchMode(mode)
		return true

	case line == "/stop":
		a.synth.Interrupt()
		if err := a.sess.Interrupt(ctx); err != nil {
			a.log.Warn("interrupt failed", "error", err)
		}
		fmt.Fprintln(a.out, "[stopped]")
		return true

	case line == "/status":
		fmt.Fprintf(a.out, "mode=%s turn=%s mic=%v speaking=%v\n",
			a.coord.Mode(), a.coord.State(), a.mic.Running(), a.synth.Active())
		return true
	}
	return false
}

func (a *app) toggleMic() {
	if a.coord.Mode() != turn.ModeContinuous {
		fmt.Fprintln(a.out, "/mic only applies in continuous mode; hold the PTT key instead")
		return
	}
	if a.mic.Running() {
		a.mic.Stop(true)
		fmt.Fprintln(a.out, "[mic] off")
		return
	}
	a.coord.BeginTurn()
	if err := a.mic.Start(); err != nil {
		a.log.Error("mic start failed", "error", err)
		return
	}
	fmt.Fprintln(a.out, "[mic] listening")
}

// switchMode tears down the old mode's capture before installing the new
// one so the two are never active together.
func (a *app) switchMode(mode turn.Mode) {
	if a.mic.Running() {
		a.mic.Stop(false)
	}
	a.pttHeld.Store(false)
	a.coord.SetMode(mode)
	fmt.Fprintf(a.out, "[mode] %s\n", mode)
}

// builtinTools answers the small set of tools the agent can call locally.
func builtinTools(log *slog.Logger) realtime.ToolHandler {
	return func(name, arguments string) (string, error) {
		switch name {
		case "local_time":
			return fmt.Sprintf(`{"time": %q}`, time.Now().Format("Monday, January 2 2006 15:04")), nil
		default:
			log.Warn("unknown tool requested", "tool", name)
			return "", fmt.Errorf("unknown tool %q", name)
		}
	}
}
