// Package realtime implements session.Session over the OpenAI Realtime
// API. It holds a bidirectional websocket, sends audio as base64 PCM16
// chunks, and maps the protocol's JSON events onto typed session events.
package realtime

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/vango-go/voicedesk/pkg/session"
)

var _ session.Session = (*Client)(nil)

const (
	defaultModel   = "gpt-realtime"
	defaultBaseURL = "wss://api.openai.com/v1/realtime"
)

// ToolHandler executes a tool call requested by the agent and returns its
// output as a JSON string.
type ToolHandler func(name, arguments string) (string, error)

// Option configures a Client before it connects.
type Option func(*Client)

// WithModel sets the model requested at connect time.
func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

// WithBaseURL overrides the websocket endpoint. Used in tests to point at
// a local server.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// WithInstructions sets the system instructions for the session.
func WithInstructions(instructions string) Option {
	return func(c *Client) { c.instructions = instructions }
}

// WithToolHandler registers the callback run when the agent calls a tool.
func WithToolHandler(h ToolHandler) Option {
	return func(c *Client) { c.toolHandler = h }
}

// WithLogger sets the client logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// Client is a live Realtime API session.
type Client struct {
	model        string
	baseURL      string
	instructions string
	toolHandler  ToolHandler
	log          *slog.Logger

	conn   *websocket.Conn
	events chan session.Event

	// gorilla connections allow one concurrent writer.
	writeMu sync.Mutex

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// Connect dials the Realtime endpoint, configures the session for text
// responses with server-side turn detection, and starts the read loop.
func Connect(ctx context.Context, apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("realtime: api key is required")
	}

	c := &Client{
		model:   defaultModel,
		baseURL: defaultBaseURL,
		events:  make(chan session.Event, 64),
	}
	for _, o := range opts {
		o(c)
	}
	if c.log == nil {
		c.log = slog.Default()
	}

	wsURL := fmt.Sprintf("%s?model=%s", c.baseURL, c.model)
	header := http.Header{}
	header.Set("Authorization", "Bearer "+apiKey)
	header.Set("OpenAI-Beta", "realtime=v1")

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		return nil, fmt.Errorf("realtime: dial: %w", err)
	}
	c.conn = conn
	c.ctx, c.cancel = context.WithCancel(context.Background())

	if err := c.sendSessionUpdate(); err != nil {
		_ = conn.Close()
		c.cancel()
		return nil, fmt.Errorf("realtime: session update: %w", err)
	}

	go c.readLoop()
	return c, nil
}

// sendSessionUpdate configures the session: text-only responses (speech is
// synthesized locally), PCM16 audio, semantic VAD that both creates
// responses and interrupts on barge-in, and input transcription.
func (c *Client) sendSessionUpdate() error {
	return c.writeJSON(map[string]any{
		"type": "session.update",
		"session": map[string]any{
			"modalities":          []string{"text"},
			"instructions":        c.instructions,
			"input_audio_format":  "pcm16",
			"output_audio_format": "pcm16",
			"turn_detection": map[string]any{
				"type":               "semantic_vad",
				"create_response":    true,
				"interrupt_response": true,
			},
			"input_audio_transcription": map[string]any{
				"model": "whisper-1",
			},
		},
	})
}

// SendAudio appends a PCM16 chunk to the input buffer, committing the
// turn when commit is true.
func (c *Client) SendAudio(ctx context.Context, pcm []byte, commit bool) error {
	if len(pcm) > 0 {
		err := c.writeJSON(map[string]any{
			"type":  "input_audio_buffer.append",
			"audio": base64.StdEncoding.EncodeToString(pcm),
		})
		if err != nil {
			return fmt.Errorf("realtime: append audio: %w", err)
		}
	}
	if commit {
		if err := c.writeJSON(map[string]any{"type": "input_audio_buffer.commit"}); err != nil {
			return fmt.Errorf("realtime: commit audio: %w", err)
		}
	}
	return nil
}

// SendText submits a typed user message and requests a response.
func (c *Client) SendText(ctx context.Context, text string) error {
	err := c.writeJSON(map[string]any{
		"type": "conversation.item.create",
		"item": map[string]any{
			"type": "message",
			"role": "user",
			"content": []map[string]any{
				{"type": "input_text", "text": text},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("realtime: create item: %w", err)
	}
	if err := c.writeJSON(map[string]any{"type": "response.create"}); err != nil {
		return fmt.Errorf("realtime: request response: %w", err)
	}
	return nil
}

// Interrupt cancels the in-progress response.
func (c *Client) Interrupt(ctx context.Context) error {
	if err := c.writeJSON(map[string]any{"type": "response.cancel"}); err != nil {
		return fmt.Errorf("realtime: cancel response: %w", err)
	}
	return nil
}

// Events returns the event stream. The read loop closes it when the
// session ends.
func (c *Client) Events() <-chan session.Event { return c.events }

// Close tears down the connection. Idempotent.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		_ = c.conn.Close()
	})
	return nil
}

func (c *Client) writeJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(v)
}

// serverEvent is the union of incoming protocol event fields we care
// about. Unknown event types are ignored.
type serverEvent struct {
	Type string `json:"type"`

	// response.output_text.delta / .done
	Delta string `json:"delta,omitempty"`
	Text  string `json:"text,omitempty"`

	// conversation.item.input_audio_transcription.completed
	Transcript string `json:"transcript,omitempty"`

	// response.function_call_arguments.done
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
	CallID    string `json:"call_id,omitempty"`

	Error *serverErrorDetail `json:"error,omitempty"`
}

type serverErrorDetail struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// readLoop reads protocol events and dispatches them. It owns the events
// channel and closes it on exit.
func (c *Client) readLoop() {
	defer close(c.events)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() == nil {
				c.emit(session.ErrorEvent{Err: fmt.Errorf("realtime: read: %w", err)})
			}
			return
		}

		var evt serverEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			continue
		}
		c.dispatch(&evt)
	}
}

func (c *Client) dispatch(evt *serverEvent) {
	switch evt.Type {
	case "input_audio_buffer.speech_started":
		c.emit(session.Server{Kind: session.ServerSpeechStarted})
	case "input_audio_buffer.speech_stopped":
		c.emit(session.Server{Kind: session.ServerSpeechStopped})
	case "input_audio_buffer.committed":
		c.emit(session.Server{Kind: session.ServerAudioCommitted})
	case "response.created":
		c.emit(session.AgentStarted{})
	case "response.done":
		c.emit(session.AgentEnded{})
	case "response.output_text.delta", "response.text.delta":
		if evt.Delta != "" {
			c.emit(session.Server{Kind: session.ServerTextDelta, Text: evt.Delta})
		}
	case "response.output_text.done", "response.text.done":
		c.emit(session.Server{Kind: session.ServerTextDone, Text: evt.Text})
	case "conversation.item.input_audio_transcription.completed":
		if evt.Transcript != "" {
			c.emit(session.Server{Kind: session.ServerTranscriptCompleted, Text: evt.Transcript})
		}
	case "response.function_call_arguments.done":
		c.handleToolCall(evt)
	case "error":
		msg := "unknown error"
		if evt.Error != nil && evt.Error.Message != "" {
			msg = evt.Error.Message
		}
		c.emit(session.ErrorEvent{Err: fmt.Errorf("realtime: %s", msg)})
	}
}

// handleToolCall runs the registered handler and feeds the output back so
// the agent can continue its response.
func (c *Client) handleToolCall(evt *serverEvent) {
	c.emit(session.ToolStarted{Name: evt.Name, Arguments: evt.Arguments})

	if c.toolHandler == nil {
		return
	}
	output, err := c.toolHandler(evt.Name, evt.Arguments)
	if err != nil {
		output = fmt.Sprintf(`{"error": %q}`, err.Error())
	}

	if err := c.writeJSON(map[string]any{
		"type": "conversation.item.create",
		"item": map[string]any{
			"type":    "function_call_output",
			"call_id": evt.CallID,
			"output":  output,
		},
	}); err != nil {
		c.log.Error("tool output send failed", "tool", evt.Name, "error", err)
		return
	}
	_ = c.writeJSON(map[string]any{"type": "response.create"})

	c.emit(session.ToolEnded{Name: evt.Name, Output: output})
}

func (c *Client) emit(evt session.Event) {
	select {
	case c.events <- evt:
	case <-c.ctx.Done():
	}
}
