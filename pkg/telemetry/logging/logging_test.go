package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()

	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("invalid JSON log line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{name: "json", config: Config{Level: "info", Format: "json"}},
		{name: "text", config: Config{Level: "debug", Format: "text"}},
		{name: "console", config: Config{Level: "WARN", Format: "console"}},
		{name: "defaults", config: Config{}},
		{name: "invalid level", config: Config{Level: "loud"}, wantErr: true},
		{name: "invalid format", config: Config{Format: "xml"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.config.Writer = &bytes.Buffer{}
			logger, err := New(tt.config)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && logger == nil {
				t.Fatal("New() returned nil logger")
			}
		})
	}
}

func TestLogger_ContextFields(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: "info", Writer: &buf})
	if err != nil {
		t.Fatal(err)
	}

	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithInteractionID(ctx, "int-1")
	ctx = WithModel(ctx, "llama3")

	logger.InfoContext(ctx, "proxied", "status", 200)

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1", len(lines))
	}
	for k, want := range map[string]any{"request_id": "req-1", "interaction_id": "int-1", "model": "llama3", "status": 200.0} {
		if lines[0][k] != want {
			t.Errorf("%s = %v, want %v", k, lines[0][k], want)
		}
	}
}

func TestLogger_Redaction(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: "debug", RedactPII: true, Writer: &buf})
	if err != nil {
		t.Fatal(err)
	}

	logger.With("authorization", "Bearer abcdef").Info("request",
		"note", "contact alice@example.com with key sk-live123",
		"api_key", "secretvalue",
		"tokens_generated", 42,
	)

	lines := decodeLines(t, &buf)
	line := lines[0]

	if got := line["authorization"]; got != "Bear***" {
		t.Errorf("authorization = %v", got)
	}
	note := line["note"].(string)
	if strings.Contains(note, "alice@example.com") || strings.Contains(note, "sk-live123") {
		t.Errorf("note not redacted: %q", note)
	}
	if got := line["api_key"]; got != "secr***" {
		t.Errorf("api_key = %v", got)
	}
	if got := line["tokens_generated"]; got != 42.0 {
		t.Errorf("tokens_generated = %v, want untouched 42", got)
	}
}

func TestLogger_SetLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: "info", Writer: &buf})
	if err != nil {
		t.Fatal(err)
	}

	logger.Debug("hidden")
	if buf.Len() != 0 {
		t.Fatal("debug line written at info level")
	}

	if err := logger.SetLevel("debug"); err != nil {
		t.Fatal(err)
	}
	logger.Debug("visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Error("debug line missing after SetLevel(debug)")
	}
	if logger.Level() != slog.LevelDebug {
		t.Errorf("Level() = %v", logger.Level())
	}

	if err := logger.SetLevel("nope"); err == nil {
		t.Error("SetLevel accepted an invalid level")
	}
}

func TestLogger_SetDefault(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	logger, err := New(Config{Level: "info", RedactPII: true, Writer: &buf})
	if err != nil {
		t.Fatal(err)
	}
	logger.SetDefault()

	ctx := WithRequestID(context.Background(), "req-9")
	slog.Default().With("component", "test").InfoContext(ctx, "hello", "password", "hunter22")

	line := decodeLines(t, &buf)[0]
	if line["request_id"] != "req-9" || line["component"] != "test" {
		t.Errorf("default logger lost fields: %v", line)
	}
	if line["password"] != "hunt***" {
		t.Errorf("password = %v", line["password"])
	}
}

func TestPromptPreview(t *testing.T) {
	long := strings.Repeat("é", 500)
	if got := []rune(PromptPreview(long)); len(got) != PromptPreviewLength {
		t.Errorf("preview has %d runes, want %d", len(got), PromptPreviewLength)
	}

	if got := PromptPreview("mail bob@example.org please"); strings.Contains(got, "bob@example.org") {
		t.Errorf("preview not redacted: %q", got)
	}
}
