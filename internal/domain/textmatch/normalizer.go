// Package textmatch turns free-text outcome statements into keyword sets and
// compares them with set similarity. Everything here is pure and safe for
// concurrent use once constructed.
package textmatch

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// DefaultMinTokenLength is the shortest token (in characters) that survives normalization.
const DefaultMinTokenLength = 2

// DefaultStopwords are Vietnamese function words that carry no topical signal.
var DefaultStopwords = []string{
	"và", "của", "cho", "với", "từ", "trong", "là", "được", "có", "một",
	"các", "theo", "về", "này", "đó", "nào", "khi", "sau", "trước", "để",
	"bằng", "như", "hoặc", "nếu", "thì", "mà", "đã", "sẽ", "đang", "cũng",
	"rất",
}

// NormalizerConfig configures a Normalizer.
type NormalizerConfig struct {
	// MinTokenLength drops tokens with fewer characters (runes, not bytes).
	MinTokenLength int

	// Stopwords are removed after lowercasing. Matching is exact.
	Stopwords []string
}

// DefaultNormalizerConfig returns the production defaults.
func DefaultNormalizerConfig() NormalizerConfig {
	stop := make([]string, len(DefaultStopwords))
	copy(stop, DefaultStopwords)
	return NormalizerConfig{
		MinTokenLength: DefaultMinTokenLength,
		Stopwords:      stop,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// NORMALIZER
// ══════════════════════════════════════════════════════════════════════════════

// Normalizer tokenizes text into keyword sets. The zero value is not usable;
// construct with NewNormalizer.
type Normalizer struct {
	minLen    int
	stopwords map[string]struct{}
}

// NewNormalizer builds an immutable Normalizer from cfg.
func NewNormalizer(cfg NormalizerConfig) *Normalizer {
	minLen := cfg.MinTokenLength
	if minLen < 1 {
		minLen = 1
	}

	stop := make(map[string]struct{}, len(cfg.Stopwords))
	for _, w := range cfg.Stopwords {
		w = strings.ToLower(norm.NFC.String(strings.TrimSpace(w)))
		if w != "" {
			stop[w] = struct{}{}
		}
	}

	return &Normalizer{minLen: minLen, stopwords: stop}
}

// Normalize returns the keyword set of text. Empty or punctuation-only input
// yields an empty set.
func (n *Normalizer) Normalize(text string) KeywordSet {
	set := make(KeywordSet)
	for _, tok := range n.Tokens(text) {
		set[tok] = struct{}{}
	}
	return set
}

// Tokens returns the surviving tokens of text in order, duplicates included.
func (n *Normalizer) Tokens(text string) []string {
	if text == "" {
		return nil
	}

	// Precomposed and combining-mark spellings of the same letter must agree.
	text = strings.ToLower(norm.NFC.String(text))
	text = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r) || r == '_' {
			return r
		}
		return ' '
	}, text)

	fields := strings.Fields(text)
	out := fields[:0]
	for _, tok := range fields {
		if utf8.RuneCountInString(tok) < n.minLen {
			continue
		}
		if _, stop := n.stopwords[tok]; stop {
			continue
		}
		out = append(out, tok)
	}
	return out
}

// IsStopword reports whether w is in the configured stopword list.
func (n *Normalizer) IsStopword(w string) bool {
	_, ok := n.stopwords[strings.ToLower(norm.NFC.String(w))]
	return ok
}

// ══════════════════════════════════════════════════════════════════════════════
// KEYWORD SET
// ══════════════════════════════════════════════════════════════════════════════

// KeywordSet is a set of normalized tokens.
type KeywordSet map[string]struct{}

// NewKeywordSet builds a set from already-normalized tokens.
func NewKeywordSet(tokens ...string) KeywordSet {
	s := make(KeywordSet, len(tokens))
	for _, t := range tokens {
		s[t] = struct{}{}
	}
	return s
}

// Len returns the number of tokens.
func (s KeywordSet) Len() int {
	return len(s)
}

// Has reports membership.
func (s KeywordSet) Has(tok string) bool {
	_, ok := s[tok]
	return ok
}

// Merge adds every token of other into s.
func (s KeywordSet) Merge(other KeywordSet) {
	for t := range other {
		s[t] = struct{}{}
	}
}

// Sorted returns the tokens in lexical order.
func (s KeywordSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for t := range s {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Shared returns the tokens present in both sets, sorted.
func Shared(a, b KeywordSet) []string {
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	out := make([]string, 0, len(small))
	for t := range small {
		if large.Has(t) {
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out
}
