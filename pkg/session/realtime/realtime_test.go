package realtime

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-go/voicedesk/pkg/session"
)

// testServer is a scriptable Realtime endpoint: it records every client
// message and lets the test push server events.
type testServer struct {
	srv      *httptest.Server
	incoming chan map[string]any
	outgoing chan any
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{
		incoming: make(chan map[string]any, 64),
		outgoing: make(chan any, 64),
	}
	upgrader := websocket.Upgrader{}
	ts.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		go func() {
			for msg := range ts.outgoing {
				if err := conn.WriteJSON(msg); err != nil {
					return
				}
			}
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		}()

		for {
			var msg map[string]any
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			ts.incoming <- msg
		}
	}))
	t.Cleanup(ts.srv.Close)
	return ts
}

func (ts *testServer) url() string {
	return "ws" + strings.TrimPrefix(ts.srv.URL, "http")
}

func (ts *testServer) nextClientMessage(t *testing.T) map[string]any {
	t.Helper()
	select {
	case msg := <-ts.incoming:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for client message")
		return nil
	}
}

func connectTestClient(t *testing.T, ts *testServer, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithBaseURL(ts.url())}, opts...)
	c, err := Connect(context.Background(), "test-key", opts...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func nextEvent(t *testing.T, c *Client) session.Event {
	t.Helper()
	select {
	case evt, ok := <-c.Events():
		if !ok {
			t.Fatal("event channel closed")
		}
		return evt
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestConnectSendsSessionUpdate(t *testing.T) {
	ts := newTestServer(t)
	connectTestClient(t, ts, WithInstructions("be brief"))

	msg := ts.nextClientMessage(t)
	if msg["type"] != "session.update" {
		t.Fatalf("first message type = %v", msg["type"])
	}
	sess, _ := msg["session"].(map[string]any)
	if sess["input_audio_format"] != "pcm16" {
		t.Errorf("input_audio_format = %v", sess["input_audio_format"])
	}
	if sess["instructions"] != "be brief" {
		t.Errorf("instructions = %v", sess["instructions"])
	}
	td, _ := sess["turn_detection"].(map[string]any)
	if td["type"] != "semantic_vad" {
		t.Errorf("turn_detection type = %v", td["type"])
	}
}

func TestSendAudio(t *testing.T) {
	ts := newTestServer(t)
	c := connectTestClient(t, ts)
	ts.nextClientMessage(t) // session.update

	if err := c.SendAudio(context.Background(), []byte{1, 2, 3}, false); err != nil {
		t.Fatal(err)
	}
	msg := ts.nextClientMessage(t)
	if msg["type"] != "input_audio_buffer.append" {
		t.Fatalf("type = %v", msg["type"])
	}
	if msg["audio"] != base64.StdEncoding.EncodeToString([]byte{1, 2, 3}) {
		t.Errorf("audio = %v", msg["audio"])
	}

	if err := c.SendAudio(context.Background(), []byte{4}, true); err != nil {
		t.Fatal(err)
	}
	if msg := ts.nextClientMessage(t); msg["type"] != "input_audio_buffer.append" {
		t.Fatalf("type = %v", msg["type"])
	}
	if msg := ts.nextClientMessage(t); msg["type"] != "input_audio_buffer.commit" {
		t.Errorf("commit message type = %v", msg["type"])
	}
}

func TestSendAudioEmptyCommit(t *testing.T) {
	ts := newTestServer(t)
	c := connectTestClient(t, ts)
	ts.nextClientMessage(t)

	if err := c.SendAudio(context.Background(), nil, true); err != nil {
		t.Fatal(err)
	}
	if msg := ts.nextClientMessage(t); msg["type"] != "input_audio_buffer.commit" {
		t.Errorf("type = %v, want bare commit without an append", msg["type"])
	}
}

func TestSendText(t *testing.T) {
	ts := newTestServer(t)
	c := connectTestClient(t, ts)
	ts.nextClientMessage(t)

	if err := c.SendText(context.Background(), "hello"); err != nil {
		t.Fatal(err)
	}
	msg := ts.nextClientMessage(t)
	if msg["type"] != "conversation.item.create" {
		t.Fatalf("type = %v", msg["type"])
	}
	if msg := ts.nextClientMessage(t); msg["type"] != "response.create" {
		t.Errorf("followup type = %v", msg["type"])
	}
}

func TestInterrupt(t *testing.T) {
	ts := newTestServer(t)
	c := connectTestClient(t, ts)
	ts.nextClientMessage(t)

	if err := c.Interrupt(context.Background()); err != nil {
		t.Fatal(err)
	}
	if msg := ts.nextClientMessage(t); msg["type"] != "response.cancel" {
		t.Errorf("type = %v", msg["type"])
	}
}

func TestEventMapping(t *testing.T) {
	ts := newTestServer(t)
	c := connectTestClient(t, ts)
	ts.nextClientMessage(t)

	ts.outgoing <- map[string]any{"type": "input_audio_buffer.speech_started"}
	ts.outgoing <- map[string]any{"type": "input_audio_buffer.speech_stopped"}
	ts.outgoing <- map[string]any{"type": "input_audio_buffer.committed"}
	ts.outgoing <- map[string]any{"type": "response.created"}
	ts.outgoing <- map[string]any{"type": "response.output_text.delta", "delta": "Hi"}
	ts.outgoing <- map[string]any{"type": "response.output_text.done", "text": "Hi there."}
	ts.outgoing <- map[string]any{"type": "response.done"}
	ts.outgoing <- map[string]any{
		"type":       "conversation.item.input_audio_transcription.completed",
		"transcript": "hello world",
	}
	ts.outgoing <- map[string]any{
		"type":  "error",
		"error": map[string]any{"type": "server_error", "message": "boom"},
	}

	wantKinds := []session.ServerKind{
		session.ServerSpeechStarted,
		session.ServerSpeechStopped,
		session.ServerAudioCommitted,
	}
	for _, want := range wantKinds {
		evt, ok := nextEvent(t, c).(session.Server)
		if !ok || evt.Kind != want {
			t.Fatalf("event = %#v, want kind %s", evt, want)
		}
	}

	if _, ok := nextEvent(t, c).(session.AgentStarted); !ok {
		t.Fatal("want AgentStarted")
	}
	if evt, ok := nextEvent(t, c).(session.Server); !ok || evt.Kind != session.ServerTextDelta || evt.Text != "Hi" {
		t.Fatalf("delta event = %#v", evt)
	}
	if evt, ok := nextEvent(t, c).(session.Server); !ok || evt.Kind != session.ServerTextDone || evt.Text != "Hi there." {
		t.Fatalf("done event = %#v", evt)
	}
	if _, ok := nextEvent(t, c).(session.AgentEnded); !ok {
		t.Fatal("want AgentEnded")
	}
	if evt, ok := nextEvent(t, c).(session.Server); !ok || evt.Kind != session.ServerTranscriptCompleted || evt.Text != "hello world" {
		t.Fatalf("transcript event = %#v", evt)
	}
	if evt, ok := nextEvent(t, c).(session.ErrorEvent); !ok || !strings.Contains(evt.Err.Error(), "boom") {
		t.Fatalf("error event = %#v", evt)
	}
}

func TestToolCallRoundTrip(t *testing.T) {
	ts := newTestServer(t)
	c := connectTestClient(t, ts, WithToolHandler(func(name, args string) (string, error) {
		if name != "lookup" || args != `{"q":"x"}` {
			t.Errorf("tool call = %s(%s)", name, args)
		}
		return `{"answer":42}`, nil
	}))
	ts.nextClientMessage(t)

	ts.outgoing <- map[string]any{
		"type":      "response.function_call_arguments.done",
		"name":      "lookup",
		"arguments": `{"q":"x"}`,
		"call_id":   "call_1",
	}

	if evt, ok := nextEvent(t, c).(session.ToolStarted); !ok || evt.Name != "lookup" {
		t.Fatalf("event = %#v, want ToolStarted", evt)
	}

	msg := ts.nextClientMessage(t)
	if msg["type"] != "conversation.item.create" {
		t.Fatalf("type = %v", msg["type"])
	}
	item, _ := msg["item"].(map[string]any)
	if item["type"] != "function_call_output" || item["call_id"] != "call_1" {
		t.Errorf("item = %v", item)
	}
	if msg := ts.nextClientMessage(t); msg["type"] != "response.create" {
		t.Errorf("followup type = %v", msg["type"])
	}

	if evt, ok := nextEvent(t, c).(session.ToolEnded); !ok || evt.Output != `{"answer":42}` {
		t.Fatalf("event = %#v, want ToolEnded", evt)
	}
}

func TestCloseEndsEventStream(t *testing.T) {
	ts := newTestServer(t)
	c := connectTestClient(t, ts)
	ts.nextClientMessage(t)

	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}

	select {
	case _, ok := <-c.Events():
		if ok {
			// Drain anything queued before close.
			for range c.Events() {
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event channel never closed")
	}
}
