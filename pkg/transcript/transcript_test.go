package transcript

import (
	"bufio"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"testing"
)

func testLogger(t *testing.T) *Logger {
	t.Helper()
	l, err := New(t.TempDir(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatal(err)
	}
	return l
}

func TestRecordWritesJSONL(t *testing.T) {
	l := testLogger(t)
	path := l.Path()

	l.Record(KindUser, "hello")
	l.Record(KindAssistant, "hi there")
	l.Record(KindTool, `{"name":"local_time"}`)
	l.Record(KindUser, "") // empty text is skipped
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("bad line %q: %v", scanner.Text(), err)
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		t.Fatal(err)
	}

	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	if entries[0].Kind != KindUser || entries[0].Text != "hello" {
		t.Errorf("entry 0 = %+v", entries[0])
	}
	if entries[1].Kind != KindAssistant {
		t.Errorf("entry 1 = %+v", entries[1])
	}
	if entries[0].Time.IsZero() {
		t.Error("entry timestamp is zero")
	}
}

func TestNilLoggerIsNoop(t *testing.T) {
	var l *Logger
	l.Record(KindUser, "ignored")
	if got := l.Path(); got != "" {
		t.Errorf("Path() = %q", got)
	}
	if err := l.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	l := testLogger(t)
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}
	l.Record(KindUser, "after close") // must not panic
}
