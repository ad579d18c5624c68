package audio

import (
	"encoding/binary"
	"math"
	"testing"
)

func TestConfigByteMath(t *testing.T) {
	cfg := DefaultConfig()

	if got := cfg.BytesPerSecond(); got != 48000 {
		t.Errorf("BytesPerSecond() = %d, want 48000", got)
	}
	if got := cfg.DurationMs(4800); got != 100 {
		t.Errorf("DurationMs(4800) = %d, want 100", got)
	}
	if got := cfg.BytesForDuration(100); got != 4800 {
		t.Errorf("BytesForDuration(100) = %d, want 4800", got)
	}
	if got := cfg.BytesForDuration(500); got != 24000 {
		t.Errorf("BytesForDuration(500) = %d, want 24000", got)
	}
}

func TestBytesForDurationWholeSamples(t *testing.T) {
	cfg := Config{SampleRate: 24000, Channels: 1, BitsPerSample: 16}

	// 1ms at 24kHz is 48 bytes, already aligned; 0ms must be zero.
	if got := cfg.BytesForDuration(0); got != 0 {
		t.Errorf("BytesForDuration(0) = %d, want 0", got)
	}
	for ms := 1; ms < 10; ms++ {
		if got := cfg.BytesForDuration(ms); got%2 != 0 {
			t.Errorf("BytesForDuration(%d) = %d, not sample-aligned", ms, got)
		}
	}
}

func TestSilence(t *testing.T) {
	s := Silence(4800)
	if len(s) != 4800 {
		t.Fatalf("Silence(4800) length = %d", len(s))
	}
	for i, b := range s {
		if b != 0 {
			t.Fatalf("Silence byte %d = %d, want 0", i, b)
		}
	}
	if got := Silence(-1); len(got) != 0 {
		t.Errorf("Silence(-1) length = %d, want 0", len(got))
	}
}

func pcm16(samples ...int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

func TestRMSEnergy(t *testing.T) {
	if got := RMSEnergy(nil); got != 0 {
		t.Errorf("RMSEnergy(nil) = %f, want 0", got)
	}
	if got := RMSEnergy(Silence(480)); got != 0 {
		t.Errorf("RMSEnergy(silence) = %f, want 0", got)
	}

	// A constant full-scale signal has RMS ~1.0.
	loud := pcm16(32767, 32767, 32767, 32767)
	if got := RMSEnergy(loud); math.Abs(got-1.0) > 0.001 {
		t.Errorf("RMSEnergy(full scale) = %f, want ~1.0", got)
	}
}

func TestPeakAmplitude(t *testing.T) {
	if got := PeakAmplitude(nil); got != 0 {
		t.Errorf("PeakAmplitude(nil) = %f, want 0", got)
	}

	quiet := pcm16(100, -200, 50)
	want := 200.0 / 32768.0
	if got := PeakAmplitude(quiet); math.Abs(got-want) > 1e-9 {
		t.Errorf("PeakAmplitude = %f, want %f", got, want)
	}

	// -32768 must not overflow on negation.
	if got := PeakAmplitude(pcm16(-32768)); got != 1.0 {
		t.Errorf("PeakAmplitude(-32768) = %f, want 1.0", got)
	}
}
