package tts

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const (
	elevenLabsDefaultWSBase = "wss://api.elevenlabs.io/v1/text-to-speech/{voice_id}/stream-input"
	elevenLabsDefaultModel  = "eleven_flash_v2_5"

	elevenLabsWriteTimeout = 5 * time.Second
)

// ElevenLabsProvider streams synthesis over the ElevenLabs stream-input
// websocket. Each Synthesize call opens its own connection, sends the
// text with a flush, and reads audio chunks until the server marks the
// response final.
type ElevenLabsProvider struct {
	apiKey    string
	wsBaseURL string
	dialer    *websocket.Dialer
}

// NewElevenLabs creates a provider using the given API key.
func NewElevenLabs(apiKey string) *ElevenLabsProvider {
	return &ElevenLabsProvider{
		apiKey:    strings.TrimSpace(apiKey),
		wsBaseURL: elevenLabsDefaultWSBase,
		dialer:    websocket.DefaultDialer,
	}
}

// WithWSBaseURL overrides the websocket endpoint. Useful for tests and
// proxies; the {voice_id} placeholder is substituted per request.
func (e *ElevenLabsProvider) WithWSBaseURL(base string) *ElevenLabsProvider {
	base = strings.TrimSpace(base)
	if base != "" {
		e.wsBaseURL = base
	}
	return e
}

func (e *ElevenLabsProvider) Name() string {
	return "elevenlabs"
}

func (e *ElevenLabsProvider) Synthesize(ctx context.Context, text string, opts Options) (*Stream, error) {
	if e.apiKey == "" {
		return nil, fmt.Errorf("elevenlabs api key is required")
	}
	voiceID := strings.TrimSpace(opts.Voice)
	if voiceID == "" {
		return nil, fmt.Errorf("voice id is required")
	}

	wsURL, err := buildElevenLabsWSURL(e.wsBaseURL, voiceID, opts)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set("xi-api-key", e.apiKey)
	conn, _, err := e.dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		return nil, fmt.Errorf("dial elevenlabs: %w", err)
	}

	// The API requires an initial message with a single space before any
	// real text.
	if err := writeElevenLabsJSON(conn, map[string]any{"text": " "}); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open elevenlabs stream: %w", err)
	}

	payload := strings.TrimSpace(text)
	if payload != "" {
		// Trailing space marks a word boundary for the streaming model.
		if err := writeElevenLabsJSON(conn, map[string]any{"text": payload + " "}); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("send text: %w", err)
		}
	}
	if err := writeElevenLabsJSON(conn, map[string]any{"text": "", "flush": true}); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("flush: %w", err)
	}

	stream := NewStream()
	go e.readAudio(ctx, conn, stream)
	return stream, nil
}

// readAudio pumps server messages into the stream until the final marker,
// an error, or the consumer closes the stream.
func (e *ElevenLabsProvider) readAudio(ctx context.Context, conn *websocket.Conn, stream *Stream) {
	defer stream.FinishSending()
	defer conn.Close()

	// Unblock ReadMessage if the caller gives up first.
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stream.Done():
			_ = conn.Close()
		case <-watchDone:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-ctx.Done():
				stream.Fail(ctx.Err())
			case <-stream.Done():
			default:
				stream.Fail(fmt.Errorf("read elevenlabs stream: %w", err))
			}
			return
		}

		var msg elevenLabsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Audio != "" {
			audio, err := base64.StdEncoding.DecodeString(msg.Audio)
			if err == nil && len(audio) > 0 {
				if !stream.Send(audio) {
					return
				}
			}
		}
		if msg.IsFinal {
			return
		}
	}
}

type elevenLabsMessage struct {
	Audio   string `json:"audio"`
	IsFinal bool   `json:"isFinal"`
}

func writeElevenLabsJSON(conn *websocket.Conn, v any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(elevenLabsWriteTimeout))
	return conn.WriteJSON(v)
}

// buildElevenLabsWSURL resolves the stream-input endpoint for a voice,
// defaulting the model and raw PCM output format.
func buildElevenLabsWSURL(base, voiceID string, opts Options) (string, error) {
	if strings.TrimSpace(base) == "" {
		base = elevenLabsDefaultWSBase
	}
	base = strings.ReplaceAll(base, "{voice_id}", url.PathEscape(voiceID))
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid elevenlabs ws url: %w", err)
	}
	if u.Scheme == "" {
		u.Scheme = "wss"
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/v1/text-to-speech/" + url.PathEscape(voiceID) + "/stream-input"
	}

	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = elevenLabsDefaultModel
	}
	rate := opts.SampleRate
	if rate <= 0 {
		rate = 24000
	}

	q := u.Query()
	if q.Get("model_id") == "" {
		q.Set("model_id", model)
	}
	if q.Get("output_format") == "" {
		q.Set("output_format", "pcm_"+strconv.Itoa(rate))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
