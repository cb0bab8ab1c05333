package categorizer

import (
	"regexp"
	"sort"
	"strings"
	"sync"
	"unicode"
)

const (
	// EmptyLabel is returned for empty or whitespace-only prompts.
	EmptyLabel = "empty"

	// DefaultOverflowLabel is returned for unmatched prompts once the
	// fingerprint table is full.
	DefaultOverflowLabel = "other"

	// DefaultCeiling is the default fingerprint table capacity.
	DefaultCeiling = 50

	// fingerprintPrefix namespaces fingerprint labels so they can never
	// collide with rule labels or the reserved labels above.
	fingerprintPrefix = "topic_"

	// maxFingerprintLen bounds the length of a fingerprint label.
	maxFingerprintLen = 20
)

// Rule maps a case-insensitive pattern to a category label.
type Rule struct {
	Pattern *regexp.Regexp
	Label   string
}

// DefaultRules returns the built-in keyword rules in priority order.
// The first matching rule wins.
func DefaultRules() []Rule {
	return []Rule{
		{regexp.MustCompile(`summar`), "summarize"},
		{regexp.MustCompile(`translat`), "translate"},
		{regexp.MustCompile(`explain`), "explain"},
		{regexp.MustCompile(`write.*code`), "code_write"},
		{regexp.MustCompile(`debug|fix`), "code_debug"},
		{regexp.MustCompile(`question|what|how|why|when`), "question"},
		{regexp.MustCompile(`creat|generat`), "creative"},
		{regexp.MustCompile(`compar`), "compare"},
		{regexp.MustCompile(`analy`), "analyze"},
		{regexp.MustCompile(`help`), "help"},
		{regexp.MustCompile(`list|enumerate`), "list"},
	}
}

// Categorizer maps free-text prompts to a bounded set of category labels.
//
// Prompts that match no rule are fingerprinted by their first word. Up to
// Ceiling distinct fingerprints are registered as their own label; after
// that every new fingerprint maps to the overflow label. Registered
// fingerprints are never evicted, so a prompt always yields the same label
// for the lifetime of the Categorizer.
//
// Categorizer is safe for concurrent use.
type Categorizer struct {
	rules    []Rule
	ceiling  int
	overflow string

	mu     sync.RWMutex
	table  map[string]string
	misses uint64
}

// Option configures a Categorizer.
type Option func(*Categorizer)

// WithCeiling sets the fingerprint table capacity. Zero disables
// fingerprint labels entirely.
func WithCeiling(n int) Option {
	return func(c *Categorizer) {
		if n >= 0 {
			c.ceiling = n
		}
	}
}

// WithOverflowLabel sets the label returned once the table is full.
func WithOverflowLabel(label string) Option {
	return func(c *Categorizer) {
		if label != "" {
			c.overflow = label
		}
	}
}

// WithRules replaces the built-in rules.
func WithRules(rules []Rule) Option {
	return func(c *Categorizer) {
		c.rules = rules
	}
}

// New creates a Categorizer with the built-in rules.
func New(opts ...Option) *Categorizer {
	c := &Categorizer{
		rules:    DefaultRules(),
		ceiling:  DefaultCeiling,
		overflow: DefaultOverflowLabel,
		table:    make(map[string]string),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Categorize returns the category label for prompt.
func (c *Categorizer) Categorize(prompt string) string {
	if strings.TrimSpace(prompt) == "" {
		return EmptyLabel
	}

	lower := strings.ToLower(prompt)
	for _, r := range c.rules {
		if r.Pattern.MatchString(lower) {
			return r.Label
		}
	}

	fp := Fingerprint(prompt)
	if fp == "" {
		return c.overflow
	}

	c.mu.RLock()
	label, ok := c.table[fp]
	c.mu.RUnlock()
	if ok {
		return label
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Double-check after acquiring write lock
	if label, ok := c.table[fp]; ok {
		return label
	}
	if len(c.table) >= c.ceiling {
		c.misses++
		return c.overflow
	}

	label = fingerprintPrefix + fp
	c.table[fp] = label
	return label
}

// Fingerprint derives the table key for a prompt: its first
// whitespace-delimited word, lowercased, reduced to letters and digits and
// truncated to a fixed length. It returns "" when nothing usable remains.
func Fingerprint(prompt string) string {
	fields := strings.Fields(prompt)
	if len(fields) == 0 {
		return ""
	}

	var sb strings.Builder
	for _, r := range strings.ToLower(fields[0]) {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			continue
		}
		if sb.Len()+len(string(r)) > maxFingerprintLen {
			break
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// Count returns the number of registered fingerprint labels.
func (c *Categorizer) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.table)
}

// Overflowed returns how many prompts were assigned the overflow label
// because the table was full.
func (c *Categorizer) Overflowed() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.misses
}

// Ceiling returns the fingerprint table capacity.
func (c *Categorizer) Ceiling() int {
	return c.ceiling
}

// Labels returns every label this Categorizer can currently produce:
// rule labels, registered fingerprint labels and the reserved labels.
// The result is sorted.
func (c *Categorizer) Labels() []string {
	seen := map[string]struct{}{EmptyLabel: {}, c.overflow: {}}
	for _, r := range c.rules {
		seen[r.Label] = struct{}{}
	}

	c.mu.RLock()
	for _, label := range c.table {
		seen[label] = struct{}{}
	}
	c.mu.RUnlock()

	labels := make([]string, 0, len(seen))
	for label := range seen {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}
