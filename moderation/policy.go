package moderation

import (
	"fmt"
	"time"
)

const (
	spamBanReason  = "Automated ban: Bot spam detected"
	spamWarnReason = "Spam detected. Slow mode applied. Please avoid rapid/repeated messages."
)

// Policy holds the escalation thresholds.
type Policy struct {
	ScoreThreshold    int
	BanThreshold      int
	SlowMode          time.Duration
	ProfanitySlowMode time.Duration
}

func DefaultPolicy() Policy {
	return Policy{ScoreThreshold: 15, BanThreshold: 25, SlowMode: 5 * time.Minute, ProfanitySlowMode: 30 * time.Minute}
}

// Decision is the set of sanctions to apply for one offense. A ban excludes the others.
type Decision struct {
	Ban      bool
	Warn     bool
	SlowMode time.Duration
	Reason   string
	Category string
}

// None reports whether no sanction is required.
func (d Decision) None() bool { return !d.Ban && !d.Warn && d.SlowMode <= 0 }

// Kind is a short label for logs and metrics.
func (d Decision) Kind() string {
	switch {
	case d.Ban:
		return "ban"
	case d.Warn && d.SlowMode > 0:
		return "warn+slowmode"
	case d.Warn:
		return "warn"
	case d.SlowMode > 0:
		return "slowmode"
	}
	return "none"
}

// NeedsSuspicion reports whether the score is high enough that the account must be assessed.
func (p Policy) NeedsSuspicion(score int) bool { return score >= p.BanThreshold }

// ForSpam maps a spam score to a decision. Only accounts that look automated are banned; others
// get slow mode and a warning.
func (p Policy) ForSpam(score int, likelyAutomated bool) Decision {
	if score >= p.BanThreshold && likelyAutomated {
		return Decision{Ban: true, Reason: spamBanReason, Category: "Spam"}
	}
	if score >= p.ScoreThreshold {
		return Decision{Warn: true, SlowMode: p.SlowMode, Reason: spamWarnReason, Category: "Spam"}
	}
	return Decision{}
}

// ForProfanity escalates on the member's offense count for the category, including this one.
func (p Policy) ForProfanity(count int, category string) Decision {
	switch {
	case count <= 0:
		return Decision{}
	case count == 1:
		return Decision{Warn: true, Reason: fmt.Sprintf("Use of inappropriate language (%s) is not allowed.", category), Category: category}
	case count == 2:
		d := p.ProfanitySlowMode
		if d <= 0 {
			d = 30 * time.Minute
		}
		return Decision{Warn: true, SlowMode: d, Reason: "Final warning: Repeated use of inappropriate language. Slow mode applied.", Category: category}
	default:
		return Decision{Ban: true, Reason: "Banned for repeated violations: " + category, Category: category}
	}
}
