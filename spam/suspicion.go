package spam

import (
	"regexp"
	"time"
	"unicode/utf8"
)

// Suspicion weights; a total of SuspicionThreshold or more marks the account as likely automated.
const (
	YoungAccountPenalty  = 5
	LinkHeavyPenalty     = 5
	DefaultAvatarPenalty = 2
	UsernamePenalty      = 3
	SuspicionThreshold   = 10

	maxUsernameLength = 25
)

var (
	manyDigits = regexp.MustCompile(`\d{4,}`)
	anyLetter  = regexp.MustCompile(`[a-zA-Z]`)
)

// Account is the platform profile data used for bot suspicion.
type Account struct {
	Username      string
	CreatedAt     time.Time // zero when unknown
	DefaultAvatar bool
}

// HistoryStats summarizes the member's stored messages.
type HistoryStats struct {
	Total     int
	WithLinks int
}

// SuspicionReport is the per-signal bot-suspicion score.
type SuspicionReport struct {
	Age      int
	Links    int
	Avatar   int
	Username int
}

func (r SuspicionReport) Total() int { return r.Age + r.Links + r.Avatar + r.Username }

// LikelyAutomated reports whether the account crosses the suspicion threshold.
func (r SuspicionReport) LikelyAutomated() bool { return r.Total() >= SuspicionThreshold }

// Suspicion scores an account for automation signals.
func Suspicion(cfg Config, acct Account, hist HistoryStats, now time.Time) SuspicionReport {
	var r SuspicionReport
	if !acct.CreatedAt.IsZero() && now.Sub(acct.CreatedAt) < cfg.AccountAgeThreshold {
		r.Age = YoungAccountPenalty
	}
	if hist.Total > 0 && float64(hist.WithLinks)/float64(hist.Total) > cfg.LinkRatioThreshold {
		r.Links = LinkHeavyPenalty
	}
	if acct.DefaultAvatar {
		r.Avatar = DefaultAvatarPenalty
	}
	if SuspiciousUsername(acct.Username) {
		r.Username = UsernamePenalty
	}
	return r
}

// SuspiciousUsername matches long digit runs, overly long names and names without ASCII letters.
func SuspiciousUsername(name string) bool {
	return manyDigits.MatchString(name) || utf8.RuneCountInString(name) > maxUsernameLength || !anyLetter.MatchString(name)
}
