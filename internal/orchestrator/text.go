package orchestrator

import (
	"strings"
	"unicode"
)

var terminationPhrases = map[string]bool{
	"exit":     true,
	"quit":     true,
	"q":        true,
	"bye":      true,
	"goodbye":  true,
	"bye bye":  true,
	"good bye": true,
	"see you":  true,
	"see ya":   true,
}

// IsTermination reports whether text is one of the phrases that end a
// conversation. Case, repeated spaces and surrounding punctuation are
// ignored.
func IsTermination(text string) bool {
	trimmed := strings.TrimFunc(strings.ToLower(text), func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	})
	return terminationPhrases[strings.Join(strings.Fields(trimmed), " ")]
}

type segment struct {
	text string
	// end marks the segment as the last piece of a sentence.
	end bool
}

// sentenceStream finds sentence ends in text that arrives in pieces. A
// sentence ends at '.', '!' or '?' (optionally followed by closing quotes
// or brackets) followed by whitespace.
type sentenceStream struct {
	afterTerm bool
}

func (s *sentenceStream) feed(text string) []segment {
	var segs []segment
	start := 0
	for i, r := range text {
		switch {
		case r == '.' || r == '!' || r == '?':
			s.afterTerm = true
		case s.afterTerm && strings.ContainsRune(`"')]`, r):
		case unicode.IsSpace(r) && s.afterTerm:
			segs = append(segs, segment{text: text[start:i], end: true})
			start = i
			s.afterTerm = false
		case unicode.IsSpace(r):
		default:
			s.afterTerm = false
		}
	}
	if start < len(text) {
		segs = append(segs, segment{text: text[start:]})
	}
	return segs
}

// splitSentences splits a complete reply into sentences. Leading
// whitespace stays with the following sentence so the pieces concatenate
// back to the original text.
func splitSentences(text string) []string {
	var (
		s   sentenceStream
		out []string
		cur strings.Builder
	)
	for _, seg := range s.feed(text) {
		cur.WriteString(seg.text)
		if seg.end {
			if strings.TrimSpace(cur.String()) != "" {
				out = append(out, cur.String())
				cur.Reset()
			}
		}
	}
	if strings.TrimSpace(cur.String()) != "" {
		out = append(out, cur.String())
	}
	return out
}
