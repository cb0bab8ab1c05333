package proxy

import (
	"strings"
	"testing"
)

func TestResponseAccumulator(t *testing.T) {
	tests := []struct {
		name        string
		chunks      []string
		wantTokens  int
		wantPrompt  int
		wantPreview string
	}{
		{
			name: "eval count wins",
			chunks: []string{
				`{"response":"Hello"}` + "\n",
				`{"response":" world"}` + "\n",
				`{"response":"","done":true,"eval_count":7,"prompt_eval_count":3}` + "\n",
			},
			wantTokens:  7,
			wantPrompt:  3,
			wantPreview: "Hello world",
		},
		{
			name: "line split across chunks",
			chunks: []string{
				`{"respo`,
				`nse":"one two"}` + "\n" + `{"response":" thr`,
				`ee"}` + "\n",
			},
			wantTokens:  3,
			wantPreview: "one two three",
		},
		{
			name: "word split across fragments counts once",
			chunks: []string{
				`{"response":"Hel"}` + "\n",
				`{"response":"lo wor"}` + "\n",
				`{"response":"ld"}` + "\n",
			},
			wantTokens:  2,
			wantPreview: "Hello world",
		},
		{
			name: "chat messages",
			chunks: []string{
				`{"message":{"role":"assistant","content":"Sure, "}}` + "\n",
				`{"message":{"role":"assistant","content":"here it is"},"done":true}` + "\n",
			},
			wantTokens:  4,
			wantPreview: "Sure, here it is",
		},
		{
			name: "final line without newline",
			chunks: []string{
				`{"response":"a b"}` + "\n",
				`{"done":true,"eval_count":12}`,
			},
			wantTokens:  12,
			wantPreview: "a b",
		},
		{
			name: "malformed lines are skipped",
			chunks: []string{
				"not json\n",
				`{"response":"ok"}` + "\n",
				`{"response":` + "\n",
			},
			wantTokens:  1,
			wantPreview: "ok",
		},
		{
			name: "server sent events",
			chunks: []string{
				`data: {"choices":[{"delta":{"content":"hi there"}}]}` + "\n\n",
				`data: {"choices":[],"usage":{"prompt_tokens":4,"completion_tokens":9}}` + "\n\n",
				"data: [DONE]\n\n",
			},
			wantTokens:  9,
			wantPrompt:  4,
			wantPreview: "hi there",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acc := NewResponseAccumulator(200)
			for _, c := range tt.chunks {
				acc.Write([]byte(c))
			}
			stats := acc.Stats()

			if stats.TokensGenerated != tt.wantTokens {
				t.Errorf("TokensGenerated = %d, want %d", stats.TokensGenerated, tt.wantTokens)
			}
			if stats.PromptTokens != tt.wantPrompt {
				t.Errorf("PromptTokens = %d, want %d", stats.PromptTokens, tt.wantPrompt)
			}
			if stats.Preview != tt.wantPreview {
				t.Errorf("Preview = %q, want %q", stats.Preview, tt.wantPreview)
			}
		})
	}
}

func TestResponseAccumulator_PreviewBound(t *testing.T) {
	acc := NewResponseAccumulator(5)
	acc.Write([]byte(`{"response":"héllo wörld"}` + "\n"))

	if got := acc.Stats().Preview; got != "héllo" {
		t.Errorf("Preview = %q, want %q", got, "héllo")
	}
}

func TestResponseAccumulator_OversizedLine(t *testing.T) {
	acc := NewResponseAccumulator(200)
	acc.Write([]byte(`{"response":"` + strings.Repeat("x", maxLineBytes) + `"}` + "\n"))
	acc.Write([]byte(`{"response":"after"}` + "\n"))

	stats := acc.Stats()
	if stats.TokensGenerated != 1 || stats.Preview != "after" {
		t.Errorf("Stats() = %+v, want only the line after the oversized one", stats)
	}
}

func TestParseResponseBody(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantTokens int
		wantEval   float64
		wantLoad   float64
	}{
		{
			name:       "generate",
			body:       `{"model":"llama3","response":"The sky is blue","done":true,"eval_count":25,"prompt_eval_count":10,"eval_duration":500000000,"load_duration":250000000}`,
			wantTokens: 25,
			wantEval:   0.5,
			wantLoad:   0.25,
		},
		{
			name:       "no eval count falls back to words",
			body:       `{"response":"one two three"}`,
			wantTokens: 3,
		},
		{
			name:       "model listing",
			body:       `{"models":[{"name":"llama3:latest"}]}`,
			wantTokens: 0,
		},
		{
			name:       "not json",
			body:       `<html>bad gateway</html>`,
			wantTokens: 0,
		},
		{
			name:       "ndjson body",
			body:       `{"response":"a"}` + "\n" + `{"done":true,"eval_count":2}` + "\n",
			wantTokens: 2,
		},
		{
			name:       "empty",
			body:       ``,
			wantTokens: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stats := ParseResponseBody([]byte(tt.body), 200)
			if stats.TokensGenerated != tt.wantTokens {
				t.Errorf("TokensGenerated = %d, want %d", stats.TokensGenerated, tt.wantTokens)
			}
			if stats.EvalDurationSeconds != tt.wantEval {
				t.Errorf("EvalDurationSeconds = %v, want %v", stats.EvalDurationSeconds, tt.wantEval)
			}
			if stats.LoadDurationSeconds != tt.wantLoad {
				t.Errorf("LoadDurationSeconds = %v, want %v", stats.LoadDurationSeconds, tt.wantLoad)
			}
		})
	}
}
