// Package spam tracks per-member message bursts and scores each message for spam signals.
//
// Scoring is a pure function of the current sliding window, the message text and the member's
// recent history; the Tracker adds the persistence around it (window pruning, slow-mode state and
// a short-lived cache of bot-suspicion reports).
package spam

import (
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/spaolacci/murmur3"
)

// Score weights.
const (
	FrequencyPenalty  = 5
	RepetitionPenalty = 10
	LinkPenalty       = 3 // per link, once at least MinLinks are present
	GibberishPenalty  = 5
	LengthPenalty     = 3

	MinLinks           = 2
	repetitionLookback = 5
	repetitionMinimum  = 3
	gibberishMinLength = 10
	gibberishRatio     = 0.4
)

var linkPattern = regexp.MustCompile(`(?i)https?://`)

// Config holds the tracker thresholds.
type Config struct {
	MessageThreshold    int           // messages within Window that trigger the frequency penalty
	Window              time.Duration // sliding window span
	LengthThreshold     int           // runes above which the length penalty applies
	AccountAgeThreshold time.Duration
	LinkRatioThreshold  float64
	SuspicionCacheTTL   time.Duration
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		MessageThreshold:    5,
		Window:              10 * time.Second,
		LengthThreshold:     200,
		AccountAgeThreshold: 7 * 24 * time.Hour,
		LinkRatioThreshold:  0.5,
		SuspicionCacheTTL:   10 * time.Minute,
	}
}

// Breakdown is the per-signal contribution to a message score.
type Breakdown struct {
	Frequency  int
	Repetition int
	Links      int
	Gibberish  int
	Length     int
	LinkCount  int
}

// Total is the additive message score.
func (b Breakdown) Total() int {
	return b.Frequency + b.Repetition + b.Links + b.Gibberish + b.Length
}

// Prune returns the timestamps in window that are no older than now-span. The input is not modified.
func Prune(window []time.Time, now time.Time, span time.Duration) []time.Time {
	cutoff := now.Add(-span)
	out := make([]time.Time, 0, len(window)+1)
	for _, t := range window {
		if !t.Before(cutoff) {
			out = append(out, t)
		}
	}
	return out
}

// Normalize trims and lower-cases message text for repeat comparison.
func Normalize(content string) string { return strings.ToLower(strings.TrimSpace(content)) }

// Fingerprint hashes the normalized message text. It keys the stored-message index; equality checks
// compare Normalize output since distinct texts can share a fingerprint.
func Fingerprint(content string) uint32 {
	return murmur3.Sum32([]byte(Normalize(content)))
}

// CountLinks returns the number of http(s) URL schemes in content.
func CountLinks(content string) int {
	return len(linkPattern.FindAllStringIndex(content, -1))
}

// Score computes the message score. windowLen is the window size after the current message was
// added; history holds the member's most recent stored messages, newest first, including this one.
func Score(cfg Config, windowLen int, content string, history []string) Breakdown {
	var b Breakdown
	if cfg.MessageThreshold > 0 && windowLen >= cfg.MessageThreshold {
		b.Frequency = FrequencyPenalty
	}
	if repeated(history) {
		b.Repetition = RepetitionPenalty
	}
	b.LinkCount = CountLinks(content)
	if b.LinkCount >= MinLinks {
		b.Links = LinkPenalty * b.LinkCount
	}
	n := utf8.RuneCountInString(content)
	if n > gibberishMinLength {
		alnum := 0
		for _, r := range content {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				alnum++
			}
		}
		if float64(alnum)/float64(n) < gibberishRatio {
			b.Gibberish = GibberishPenalty
		}
	}
	if cfg.LengthThreshold > 0 && n > cfg.LengthThreshold {
		b.Length = LengthPenalty
	}
	return b
}

// repeated reports whether at least three of the last five messages exist and all normalize to the
// same text.
func repeated(history []string) bool {
	if len(history) > repetitionLookback {
		history = history[:repetitionLookback]
	}
	if len(history) < repetitionMinimum {
		return false
	}
	first := Normalize(history[0])
	for _, h := range history[1:] {
		if Normalize(h) != first {
			return false
		}
	}
	return true
}
