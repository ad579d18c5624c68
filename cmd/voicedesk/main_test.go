package main

import (
	"strings"
	"testing"

	"github.com/vango-go/voicedesk/pkg/turn"
)

func testEnv(overrides map[string]string) func(string) string {
	env := map[string]string{
		"OPENAI_API_KEY":      "sk-test",
		"ELEVENLABS_API_KEY":  "el-test",
		"ELEVENLABS_VOICE_ID": "voice-1",
	}
	for k, v := range overrides {
		env[k] = v
	}
	return func(key string) string { return env[key] }
}

func TestParseConfigDefaults(t *testing.T) {
	cfg, err := parseConfig(nil, testEnv(nil))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Model != defaultModel {
		t.Errorf("Model = %q", cfg.Model)
	}
	if cfg.Mode != turn.ModeContinuous {
		t.Errorf("Mode = %s", cfg.Mode)
	}
	if cfg.PTTKey != defaultPTTKey {
		t.Errorf("PTTKey = %q", cfg.PTTKey)
	}
	if !cfg.PTTInterrupts {
		t.Error("PTTInterrupts default = false, want true")
	}
	if cfg.VoiceID != "voice-1" {
		t.Errorf("VoiceID = %q, want env fallback", cfg.VoiceID)
	}
}

func TestParseConfigFlagsOverrideEnv(t *testing.T) {
	cfg, err := parseConfig(
		[]string{"-voice", "voice-2", "-mode", "ptt", "-ptt-key", "f8", "-ptt-interrupts=false"},
		testEnv(nil),
	)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.VoiceID != "voice-2" {
		t.Errorf("VoiceID = %q", cfg.VoiceID)
	}
	if cfg.Mode != turn.ModePushToTalk {
		t.Errorf("Mode = %s", cfg.Mode)
	}
	if cfg.PTTKey != "f8" {
		t.Errorf("PTTKey = %q", cfg.PTTKey)
	}
	if cfg.PTTInterrupts {
		t.Error("PTTInterrupts = true, want false")
	}
}

func TestParseConfigRequiredValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		args []string
		want string
	}{
		{
			name: "missing openai key",
			env:  map[string]string{"OPENAI_API_KEY": ""},
			want: "OPENAI_API_KEY",
		},
		{
			name: "missing elevenlabs key",
			env:  map[string]string{"ELEVENLABS_API_KEY": ""},
			want: "ELEVENLABS_API_KEY",
		},
		{
			name: "missing voice",
			env:  map[string]string{"ELEVENLABS_VOICE_ID": ""},
			want: "voice id",
		},
		{
			name: "bad mode",
			args: []string{"-mode", "sometimes"},
			want: "invalid mode",
		},
		{
			name: "bad ptt key",
			args: []string{"-ptt-key", "cmd_banana"},
			want: "ptt-key",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseConfig(tt.args, testEnv(tt.env))
			if err == nil {
				t.Fatal("config accepted")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]turn.Mode{
		"continuous":   turn.ModeContinuous,
		"ptt":          turn.ModePushToTalk,
		"push-to-talk": turn.ModePushToTalk,
		"PTT":          turn.ModePushToTalk,
	} {
		got, err := parseMode(in)
		if err != nil {
			t.Errorf("parseMode(%q) error: %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("parseMode(%q) = %s, want %s", in, got, want)
		}
	}
}
