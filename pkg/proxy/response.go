package proxy

import (
	"bytes"
	"encoding/json"
	"strings"
	"unicode"
)

// maxLineBytes bounds the partial NDJSON line kept between chunks. Longer
// lines are skipped for metric extraction; relaying is unaffected.
const maxLineBytes = 1 << 20

// responseFields is the tolerant view of one upstream JSON object. Every
// field is optional.
type responseFields struct {
	Response *string `json:"response"`
	Message  *struct {
		Content string `json:"content"`
	} `json:"message"`
	EvalCount       *int   `json:"eval_count"`
	PromptEvalCount *int   `json:"prompt_eval_count"`
	EvalDuration    *int64 `json:"eval_duration"`
	LoadDuration    *int64 `json:"load_duration"`
	Usage           *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Choices []struct {
		Message *struct {
			Content string `json:"content"`
		} `json:"message"`
		Delta *struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// text returns the generated fragment carried by the object.
func (f *responseFields) text() (string, bool) {
	switch {
	case f.Response != nil:
		return *f.Response, true
	case f.Message != nil:
		return f.Message.Content, true
	}
	for _, c := range f.Choices {
		if c.Message != nil {
			return c.Message.Content, true
		}
		if c.Delta != nil {
			return c.Delta.Content, true
		}
	}
	return "", false
}

// ResponseStats are the metrics extracted from an upstream response.
type ResponseStats struct {
	TokensGenerated     int
	PromptTokens        int
	EvalDurationSeconds float64
	LoadDurationSeconds float64
	Preview             string
}

// ResponseAccumulator extracts ResponseStats from response bytes as they
// are relayed. It reassembles NDJSON lines split across chunks.
//
// The generated token count is the last eval_count (or usage
// completion_tokens) reported by upstream. When none is reported, words in
// the generated text fragments are counted incrementally, carrying word
// state across fragments so a word split between fragments counts once.
type ResponseAccumulator struct {
	previewMax int

	line     []byte
	skipLine bool

	reported   int
	hasReport  bool
	words      int
	inWord     bool
	stats      ResponseStats
	preview    strings.Builder
	previewLen int
}

// NewResponseAccumulator creates an accumulator keeping at most previewMax
// runes of generated text.
func NewResponseAccumulator(previewMax int) *ResponseAccumulator {
	return &ResponseAccumulator{previewMax: previewMax}
}

// Write consumes a chunk. It never fails.
func (a *ResponseAccumulator) Write(p []byte) (int, error) {
	n := len(p)
	for len(p) > 0 {
		i := bytes.IndexByte(p, '\n')
		if i < 0 {
			a.appendPartial(p)
			break
		}
		a.appendPartial(p[:i])
		a.endLine()
		p = p[i+1:]
	}
	return n, nil
}

func (a *ResponseAccumulator) appendPartial(p []byte) {
	if a.skipLine {
		return
	}
	if len(a.line)+len(p) > maxLineBytes {
		a.line = a.line[:0]
		a.skipLine = true
		return
	}
	a.line = append(a.line, p...)
}

func (a *ResponseAccumulator) endLine() {
	if !a.skipLine {
		a.consumeLine(a.line)
	}
	a.line = a.line[:0]
	a.skipLine = false
}

func (a *ResponseAccumulator) consumeLine(line []byte) {
	line = bytes.TrimSpace(line)
	// Server-sent events from OpenAI-compatible endpoints.
	line = bytes.TrimPrefix(line, []byte("data:"))
	line = bytes.TrimSpace(line)
	if len(line) == 0 || line[0] != '{' {
		return
	}

	var f responseFields
	if err := json.Unmarshal(line, &f); err != nil {
		return
	}
	a.consume(&f)
}

func (a *ResponseAccumulator) consume(f *responseFields) {
	if text, ok := f.text(); ok {
		a.countWords(text)
		a.appendPreview(text)
	}
	if f.EvalCount != nil {
		a.reported, a.hasReport = *f.EvalCount, true
	}
	if f.PromptEvalCount != nil {
		a.stats.PromptTokens = *f.PromptEvalCount
	}
	if f.EvalDuration != nil {
		a.stats.EvalDurationSeconds = float64(*f.EvalDuration) / 1e9
	}
	if f.LoadDuration != nil {
		a.stats.LoadDurationSeconds = float64(*f.LoadDuration) / 1e9
	}
	if f.Usage != nil {
		if f.Usage.CompletionTokens > 0 {
			a.reported, a.hasReport = f.Usage.CompletionTokens, true
		}
		if f.Usage.PromptTokens > 0 {
			a.stats.PromptTokens = f.Usage.PromptTokens
		}
	}
}

func (a *ResponseAccumulator) countWords(text string) {
	for _, r := range text {
		if unicode.IsSpace(r) {
			a.inWord = false
			continue
		}
		if !a.inWord {
			a.words++
			a.inWord = true
		}
	}
}

func (a *ResponseAccumulator) appendPreview(text string) {
	for _, r := range text {
		if a.previewLen >= a.previewMax {
			return
		}
		a.preview.WriteRune(r)
		a.previewLen++
	}
}

// Stats flushes any unterminated final line and returns the totals.
func (a *ResponseAccumulator) Stats() ResponseStats {
	if len(a.line) > 0 {
		a.endLine()
	}

	stats := a.stats
	stats.Preview = a.preview.String()
	if a.hasReport {
		stats.TokensGenerated = a.reported
	} else {
		stats.TokensGenerated = a.words
	}
	return stats
}

// ParseResponseBody extracts stats from a complete response body: a single
// JSON object, or NDJSON when upstream streamed anyway. Anything else
// yields zero stats.
func ParseResponseBody(body []byte, previewMax int) ResponseStats {
	acc := NewResponseAccumulator(previewMax)

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var f responseFields
		if err := json.Unmarshal(trimmed, &f); err == nil {
			acc.consume(&f)
			return acc.Stats()
		}
	}

	acc.Write(body)
	return acc.Stats()
}
