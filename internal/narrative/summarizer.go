package narrative

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/lox/huntstack/internal/cache"
	"github.com/lox/huntstack/internal/hunt"
	"github.com/lox/huntstack/internal/metrics"
)

const (
	DefaultSummaryTTL = 6 * time.Hour
	MaxChatMessage    = 2000

	weeklySystemPrompt = `You are a waterfowl hunting guide writing a short weekly outlook for hunters.
Use only the survey counts and weather signals provided. Mention which refuges
are building or arriving, whether a cold front or north wind is pushing birds,
and any weather alerts. Keep it under 150 words. Do not invent numbers.`

	chatSystemPrompt = `You are a helpful assistant for waterfowl hunters in the central and
Mississippi flyways. Answer briefly. If you do not know current counts or
regulations, say so and suggest checking the state wildlife agency.`
)

// ActivitySource supplies the migration snapshot for a state.
type ActivitySource interface {
	StateMigration(ctx context.Context, state string) (*hunt.StateActivity, error)
}

type Summary struct {
	State       string    `json:"state"`
	Summary     string    `json:"summary"`
	Provider    string    `json:"provider"`
	GeneratedAt time.Time `json:"generatedAt"`
}

type ChatReply struct {
	ConversationID string `json:"conversationId"`
	Reply          string `json:"reply"`
}

// Summarizer narrates migration activity with an LLM.
type Summarizer struct {
	provider Provider
	activity ActivitySource
	cache    *cache.TTL[Summary]
	ttl      time.Duration
	clock    clockwork.Clock
	logger   *zap.Logger
}

// NewSummarizer returns a summarizer. A nil provider makes every call return
// ErrDisabled.
func NewSummarizer(p Provider, activity ActivitySource, clock clockwork.Clock, ttl time.Duration, logger *zap.Logger) *Summarizer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if ttl <= 0 {
		ttl = DefaultSummaryTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Summarizer{
		provider: p,
		activity: activity,
		cache:    cache.New[Summary]("summaries", clock),
		ttl:      ttl,
		clock:    clock,
		logger:   logger.Named("narrative"),
	}
}

func (s *Summarizer) Enabled() bool {
	return s != nil && s.provider != nil
}

// Weekly returns the cached weekly outlook for a state, generating it when
// missing or stale.
func (s *Summarizer) Weekly(ctx context.Context, state string) (*Summary, error) {
	if !s.Enabled() {
		return nil, ErrDisabled
	}
	state = strings.ToUpper(strings.TrimSpace(state))
	if sum, ok := s.cache.Get(state); ok {
		return &sum, nil
	}
	return s.Refresh(ctx, state)
}

// Refresh regenerates the weekly outlook regardless of the cache.
func (s *Summarizer) Refresh(ctx context.Context, state string) (*Summary, error) {
	if !s.Enabled() {
		return nil, ErrDisabled
	}
	state = strings.ToUpper(strings.TrimSpace(state))

	act, err := s.activity.StateMigration(ctx, state)
	if err != nil {
		return nil, err
	}

	text, err := s.complete(ctx, weeklySystemPrompt, WeeklyPrompt(act))
	if err != nil {
		s.logger.Warn("weekly summary failed", zap.String("state", state), zap.Error(err))
		return nil, err
	}

	sum := Summary{
		State:       state,
		Summary:     text,
		Provider:    s.provider.Name(),
		GeneratedAt: s.clock.Now().UTC(),
	}
	s.cache.Put(state, sum, s.ttl)
	return &sum, nil
}

// Chat answers a single message. A new conversation id is issued when none
// is supplied.
func (s *Summarizer) Chat(ctx context.Context, conversationID, message string) (*ChatReply, error) {
	if !s.Enabled() {
		return nil, ErrDisabled
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, eris.New("message is required")
	}
	message = truncate(message, MaxChatMessage)
	if conversationID == "" {
		conversationID = uuid.NewString()
	}

	text, err := s.complete(ctx, chatSystemPrompt, message)
	if err != nil {
		s.logger.Warn("chat failed", zap.String("conversation", conversationID), zap.Error(err))
		return nil, err
	}
	return &ChatReply{ConversationID: conversationID, Reply: text}, nil
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func (s *Summarizer) complete(ctx context.Context, system, user string) (string, error) {
	text, err := s.provider.Complete(ctx, system, user)
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.LLMRequestsTotal.WithLabelValues(s.provider.Name(), status).Inc()
	return text, err
}

// WeeklyPrompt renders a state's migration snapshot as prompt text.
func WeeklyPrompt(act *hunt.StateActivity) string {
	var b strings.Builder
	fmt.Fprintf(&b, "State: %s (%s flyway)\n", act.StateName, act.Flyway)

	if pf := act.PushFactor; pf != nil {
		fmt.Fprintf(&b, "Push score: %d/3. Cold front present: %t. Cold front incoming: %t. North wind: %t. Sub-freezing: %t.\n",
			pf.PushScore, pf.ColdFrontPresent, pf.ColdFrontIncoming, pf.NorthWind, pf.SubFreezing)
		if pf.ShortForecast != "" {
			fmt.Fprintf(&b, "Current forecast: %s, wind %s %s.\n", pf.ShortForecast, pf.WindSpeed, pf.WindDirection)
		}
		for _, a := range pf.Alerts {
			fmt.Fprintf(&b, "Alert: %s (%s)\n", a.Event, a.Severity)
		}
	} else {
		b.WriteString("Weather signals unavailable.\n")
	}

	b.WriteString("Latest refuge surveys:\n")
	for _, l := range act.Locations {
		count := "no count"
		if l.Count != nil {
			count = fmt.Sprintf("%d", *l.Count)
		}
		change := ""
		if l.DeltaPercent != nil {
			change = fmt.Sprintf(", %+.1f%%", *l.DeltaPercent)
		}
		fmt.Fprintf(&b, "- %s: %s %s on %s (%s%s)\n",
			l.LocationName, l.SpeciesName, count, l.SurveyDate, l.MigrationStatus, change)
	}
	return b.String()
}
