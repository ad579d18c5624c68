// Package speech turns streamed agent text into audible speech: a
// sentence splitter feeds a synthesizer that runs one TTS call per
// completed sentence and writes the audio to the playback buffer.
package speech

import "strings"

// SentenceBuffer accumulates text deltas and extracts complete sentences.
// Synthesizing per sentence keeps latency low: speech starts as soon as the
// first sentence completes instead of waiting for the whole response.
type SentenceBuffer struct {
	buffer strings.Builder
}

// NewSentenceBuffer creates an empty sentence buffer.
func NewSentenceBuffer() *SentenceBuffer {
	return &SentenceBuffer{}
}

// Add appends a text delta and returns any sentences completed by it.
// Sentences end on '.', '!', '?' or a newline; the trailing incomplete
// fragment stays buffered.
func (b *SentenceBuffer) Add(text string) []string {
	b.buffer.WriteString(text)

	content := b.buffer.String()
	var sentences []string

	lastEnd := 0
	for i := 0; i < len(content); i++ {
		if isSentenceEnd(content, i) {
			sentence := strings.TrimSpace(content[lastEnd : i+1])
			if sentence != "" {
				sentences = append(sentences, sentence)
			}
			lastEnd = i + 1
		}
	}

	if lastEnd > 0 {
		remainder := content[lastEnd:]
		b.buffer.Reset()
		b.buffer.WriteString(remainder)
	}

	return sentences
}

// Flush returns any remaining text and clears the buffer.
func (b *SentenceBuffer) Flush() string {
	result := strings.TrimSpace(b.buffer.String())
	b.buffer.Reset()
	return result
}

// Reset discards buffered text without returning it. Used on interrupt.
func (b *SentenceBuffer) Reset() {
	b.buffer.Reset()
}

// Pending returns the buffered fragment without clearing it.
func (b *SentenceBuffer) Pending() string {
	return b.buffer.String()
}

// isSentenceEnd reports whether position i is a sentence boundary.
func isSentenceEnd(s string, i int) bool {
	if i >= len(s) {
		return false
	}

	c := s[i]
	if c == '\n' {
		return true
	}
	if c != '.' && c != '!' && c != '?' {
		return false
	}

	// Don't split abbreviations (Dr., e.g., ...).
	if c == '.' && isAbbreviation(s, i) {
		return false
	}

	// Require whitespace or end of string after the punctuation, so
	// "3.14" and mid-word punctuation don't split.
	if i+1 < len(s) && s[i+1] != ' ' && s[i+1] != '\n' && s[i+1] != '\r' && s[i+1] != '\t' {
		return false
	}

	return true
}

// isAbbreviation reports whether the period at position i likely ends an
// abbreviation rather than a sentence.
func isAbbreviation(s string, i int) bool {
	if i < 1 {
		return false
	}

	commonAbbreviations := []string{
		"Dr.", "Mr.", "Mrs.", "Ms.", "Jr.", "Sr.",
		"Prof.", "Rev.", "Gen.", "Col.", "Lt.", "Sgt.",
		"Inc.", "Ltd.", "Corp.", "Co.", "vs.", "etc.",
		"i.e.", "e.g.", "a.m.", "p.m.", "U.S.", "U.K.",
	}

	start := i
	for start > 0 && s[start-1] != ' ' && s[start-1] != '\n' {
		start--
	}
	word := s[start : i+1]

	for _, abbr := range commonAbbreviations {
		if strings.EqualFold(word, abbr) {
			return true
		}
	}

	// Single uppercase letter followed by a period reads as an initial.
	if s[i-1] >= 'A' && s[i-1] <= 'Z' {
		if i < 2 || s[i-2] == ' ' || s[i-2] == '\n' {
			return true
		}
	}

	return false
}
