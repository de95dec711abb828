package moderation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/onnwee/cultbot/activity"
	"github.com/onnwee/cultbot/profanity"
	"github.com/onnwee/cultbot/spam"
	"github.com/onnwee/cultbot/telemetry"
)

// historyDepth is how many stored messages feed the repetition check.
const historyDepth = 5

// Message is a chat message entering the pipeline.
type Message struct {
	MessageID   string
	ChannelID   string
	UserID      string
	Username    string
	Mention     string
	CommunityID string
	Content     string
	At          time.Time
}

func (m Message) target() Target {
	return Target{UserID: m.UserID, Username: m.Username, Mention: m.Mention, CommunityID: m.CommunityID, ChannelID: m.ChannelID}
}

// AccountFunc loads the author's profile. It is only called when a spam score is high enough to
// need a bot-suspicion check.
type AccountFunc func(ctx context.Context) (spam.Account, error)

// Outcome is what the pipeline did with a message.
type Outcome string

const (
	OutcomeClean     Outcome = "clean"
	OutcomeSlowMode  Outcome = "slow_mode_blocked"
	OutcomeProfanity Outcome = "profanity"
	OutcomeSpam      Outcome = "spam"
)

// Verdict reports the checks run on one message.
type Verdict struct {
	Outcome    Outcome
	Match      *profanity.Match
	Offenses   int
	Evaluation spam.Evaluation
	Suspicion  *spam.SuspicionReport
	Decision   Decision
}

// Pipeline runs each message through slow mode, tracking, profanity and spam, in that order.
type Pipeline struct {
	Collector *activity.Collector
	Detector  *profanity.Detector
	Tracker   *spam.Tracker
	Moderator *Moderator
	Enforcer  Enforcer
	Policy    Policy
}

// Process handles one message. A slow-mode block or profanity hit stops processing; spam is only
// scored for messages that pass both.
func (p *Pipeline) Process(ctx context.Context, m Message, account AccountFunc) (Verdict, error) {
	ctx, span := telemetry.StartSpan(ctx, "moderation", "moderation.process", telemetry.CommunityAttr(m.CommunityID), telemetry.UserAttr(m.UserID))
	defer span.End()
	lg := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "moderation"))
	if m.At.IsZero() {
		m.At = time.Now().UTC()
	}
	t := m.target()

	slow, err := p.Tracker.IsInSlowMode(ctx, m.UserID, m.CommunityID)
	if err != nil {
		lg.Warn("slow mode lookup failed", slog.Any("err", err))
	}
	if slow {
		if err := p.Enforcer.DeleteMessage(ctx, t, m.MessageID); err != nil {
			lg.Warn("delete slow mode message failed", slog.Any("err", err))
		}
		if err := p.Enforcer.Notice(ctx, t, NoticeSlowMode); err != nil {
			lg.Warn("slow mode notice failed", slog.Any("err", err))
		}
		telemetry.SetSpanSuccess(span)
		return Verdict{Outcome: OutcomeSlowMode}, nil
	}

	fingerprint := spam.Fingerprint(m.Content)
	if err := p.Collector.TrackMessage(ctx, activity.Message{
		MessageID: m.MessageID, UserID: m.UserID, Username: m.Username, CommunityID: m.CommunityID,
		ChannelID: m.ChannelID, Content: m.Content, At: m.At,
	}, fingerprint); err != nil {
		lg.Warn("track message failed", slog.Any("err", err))
	}

	if match, ok := p.Detector.Check(m.Content); ok {
		v, err := p.handleProfanity(ctx, lg, m, t, match)
		if err != nil {
			telemetry.RecordError(span, err)
		}
		return v, err
	}

	v, err := p.handleSpam(ctx, lg, m, t, account)
	if err != nil {
		telemetry.RecordError(span, err)
		return v, err
	}
	telemetry.SetSpanSuccess(span)
	return v, nil
}

func (p *Pipeline) handleProfanity(ctx context.Context, lg *slog.Logger, m Message, t Target, match profanity.Match) (Verdict, error) {
	telemetry.IncVec(telemetry.ProfanityHits, string(match.Kind))
	category := string(match.Category)
	v := Verdict{Outcome: OutcomeProfanity, Match: &match}

	if err := p.Enforcer.DeleteMessage(ctx, t, m.MessageID); err != nil {
		lg.Warn("delete message failed", slog.String("message", m.MessageID), slog.Any("err", err))
	}
	if err := p.Collector.Store().FlagMessage(ctx, m.MessageID, fmt.Sprintf("%s: %s", category, match.Term)); err != nil {
		lg.Warn("flag message failed", slog.Any("err", err))
	}
	count, err := p.Moderator.RecordDeletion(ctx, t, category, category+" detected in message")
	if err != nil {
		return v, err
	}
	v.Offenses = count
	v.Decision = p.Policy.ForProfanity(count, category)
	lg.Info("profanity removed", slog.String("user", m.UserID), slog.String("kind", string(match.Kind)),
		slog.Int("offenses", count), slog.String("decision", v.Decision.Kind()))
	execErr := p.Moderator.Execute(ctx, t, v.Decision)
	if err := p.Enforcer.Notice(ctx, t, NoticeMessageRemoved); err != nil {
		lg.Warn("removal notice failed", slog.Any("err", err))
	}
	return v, execErr
}

func (p *Pipeline) handleSpam(ctx context.Context, lg *slog.Logger, m Message, t Target, account AccountFunc) (Verdict, error) {
	store := p.Collector.Store()
	history, err := store.RecentContents(ctx, m.UserID, m.CommunityID, historyDepth)
	if err != nil {
		lg.Warn("message history failed", slog.Any("err", err))
	}
	ev, err := p.Tracker.EvaluateMessage(ctx, spam.Message{UserID: m.UserID, CommunityID: m.CommunityID, Content: m.Content, At: m.At}, history)
	if err != nil {
		return Verdict{Outcome: OutcomeClean}, fmt.Errorf("evaluate message: %w", err)
	}
	v := Verdict{Outcome: OutcomeClean, Evaluation: ev}

	automated := false
	if p.Policy.NeedsSuspicion(ev.Score) {
		acct := spam.Account{Username: m.Username}
		if account != nil {
			if a, err := account(ctx); err != nil {
				lg.Warn("account lookup failed", slog.String("user", m.UserID), slog.Any("err", err))
			} else {
				acct = a
			}
		}
		total, links, err := store.LinkStats(ctx, m.UserID, m.CommunityID)
		if err != nil {
			lg.Warn("link stats failed", slog.Any("err", err))
		}
		report := p.Tracker.AssessAccount(m.UserID, m.CommunityID, acct, spam.HistoryStats{Total: total, WithLinks: links})
		v.Suspicion = &report
		automated = report.LikelyAutomated()
	}

	v.Decision = p.Policy.ForSpam(ev.Score, automated)
	if v.Decision.None() {
		return v, nil
	}
	v.Outcome = OutcomeSpam
	lg.Info("spam detected", slog.String("user", m.UserID), slog.Int("score", ev.Score),
		slog.Bool("likely_automated", automated), slog.String("decision", v.Decision.Kind()))
	return v, p.Moderator.Execute(ctx, t, v.Decision)
}
