package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/vango-go/voicedesk/internal/dotenv"
	"github.com/vango-go/voicedesk/pkg/hotkey"
	"github.com/vango-go/voicedesk/pkg/turn"
)

const (
	defaultModel  = "gpt-realtime"
	defaultPTTKey = "cmd_alt"
)

type config struct {
	OpenAIKey     string
	ElevenLabsKey string
	VoiceID       string
	Model         string
	Instructions  string
	Mode          turn.Mode
	PTTKey        string
	PTTInterrupts bool
	TranscriptDir string
	LogLevel      string
}

func parseConfig(args []string, getenv func(string) string) (config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}

	cfg := config{}
	var mode string
	fs := flag.NewFlagSet("voicedesk", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.Model, "model", defaultModel, "realtime model")
	fs.StringVar(&cfg.VoiceID, "voice", strings.TrimSpace(getenv("ELEVENLABS_VOICE_ID")), "ElevenLabs voice id (or ELEVENLABS_VOICE_ID)")
	fs.StringVar(&cfg.Instructions, "instructions", "", "optional system instructions")
	fs.StringVar(&mode, "mode", "continuous", "listen mode: continuous or ptt")
	fs.StringVar(&cfg.PTTKey, "ptt-key", defaultPTTKey, "push-to-talk key (e.g. cmd_alt, f8, space)")
	fs.BoolVar(&cfg.PTTInterrupts, "ptt-interrupts", true, "push-to-talk press interrupts assistant speech")
	fs.StringVar(&cfg.TranscriptDir, "transcripts", "", "directory for transcript files (empty disables)")
	fs.StringVar(&cfg.LogLevel, "log-level", "info", "log level: debug, info, warn, error")

	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	cfg.OpenAIKey = strings.TrimSpace(getenv("OPENAI_API_KEY"))
	cfg.ElevenLabsKey = strings.TrimSpace(getenv("ELEVENLABS_API_KEY"))

	var err error
	cfg.Mode, err = parseMode(mode)
	if err != nil {
		return config{}, err
	}
	if err := validateConfig(cfg); err != nil {
		return config{}, err
	}
	return cfg, nil
}

func parseMode(s string) (turn.Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "continuous":
		return turn.ModeContinuous, nil
	case "ptt", "push_to_talk", "push-to-talk":
		return turn.ModePushToTalk, nil
	default:
		return 0, fmt.Errorf("invalid mode %q: expected continuous or ptt", s)
	}
}

func validateConfig(cfg config) error {
	if cfg.OpenAIKey == "" {
		return errors.New("OPENAI_API_KEY is required")
	}
	if cfg.ElevenLabsKey == "" {
		return errors.New("ELEVENLABS_API_KEY is required")
	}
	if strings.TrimSpace(cfg.VoiceID) == "" {
		return errors.New("voice id is required (set -voice or ELEVENLABS_VOICE_ID)")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return errors.New("model must not be empty")
	}
	if _, err := hotkey.ParseCombo(cfg.PTTKey); err != nil {
		return fmt.Errorf("invalid ptt-key: %w", err)
	}
	return nil
}

func setupLogger(level string, w io.Writer) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

func main() {
	if err := dotenv.Load(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "voicedesk: %v\n", err)
		os.Exit(1)
	}

	cfg, err := parseConfig(os.Args[1:], os.Getenv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "voicedesk: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.LogLevel, os.Stderr)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "voicedesk: %v\n", err)
		os.Exit(1)
	}
}
