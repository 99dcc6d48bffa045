package agent

import (
	"fmt"
	"strings"

	"github.com/soyeahso/baogate/internal/domain"
)

// TrailingModelTurnPolicy decides what happens to a model Turn at the end of
// a normalized history.
type TrailingModelTurnPolicy string

const (
	// TrailingKeep leaves a trailing model Turn in place; the next exchange
	// simply adds a user Turn after it.
	TrailingKeep TrailingModelTurnPolicy = "keep"
	// TrailingDrop removes trailing model Turns so the history ends on a user Turn.
	TrailingDrop TrailingModelTurnPolicy = "drop"
)

// ParseTrailingPolicy maps a config string to a policy. Empty means keep.
func ParseTrailingPolicy(s string) (TrailingModelTurnPolicy, error) {
	switch TrailingModelTurnPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", TrailingKeep:
		return TrailingKeep, nil
	case TrailingDrop:
		return TrailingDrop, nil
	}
	return "", fmt.Errorf("unknown trailing model turn policy %q", s)
}

// BotMatcher recognises the bot's own past messages by display name or by
// identity marker.
type BotMatcher struct {
	names      map[string]struct{}
	identities map[string]struct{}
}

// NewBotMatcher builds a matcher. Empty entries are ignored.
func NewBotMatcher(names, identities []string) BotMatcher {
	m := BotMatcher{
		names:      make(map[string]struct{}, len(names)),
		identities: make(map[string]struct{}, len(identities)),
	}
	for _, n := range names {
		if n != "" {
			m.names[n] = struct{}{}
		}
	}
	for _, id := range identities {
		if id != "" {
			m.identities[id] = struct{}{}
		}
	}
	return m
}

// Match reports whether msg was written by the bot.
func (m BotMatcher) Match(msg domain.HistoryMessage) bool {
	if _, ok := m.names[msg.AuthorName]; ok && msg.AuthorName != "" {
		return true
	}
	_, ok := m.identities[msg.AuthorIdentity]
	return ok && msg.AuthorIdentity != ""
}

// NormalizeOptions configures Normalize.
type NormalizeOptions struct {
	MaxHistory    int // most recent messages kept; <= 0 keeps all
	Bot           BotMatcher
	DefaultAuthor string
	Greeting      string
	Trailing      TrailingModelTurnPolicy
}

// Normalize turns raw chat history (oldest first) into Turns that can seed a
// session. It never fails: messages with empty content are skipped.
// Whitespace-only content is kept as written.
//
// The result always starts with a user Turn. When the history is empty or
// opens with the bot speaking, a greeting user Turn is prepended.
func Normalize(history []domain.HistoryMessage, opts NormalizeOptions) []domain.Turn {
	valid := make([]domain.HistoryMessage, 0, len(history))
	for _, msg := range history {
		if msg.Content == "" {
			continue
		}
		valid = append(valid, msg)
	}

	if opts.MaxHistory > 0 && len(valid) > opts.MaxHistory {
		valid = valid[len(valid)-opts.MaxHistory:]
	}

	turns := make([]domain.Turn, 0, len(valid)+1)
	for _, msg := range valid {
		if opts.Bot.Match(msg) {
			turns = append(turns, domain.ModelTurn(msg.Content))
			continue
		}
		author := msg.AuthorName
		if author == "" {
			author = opts.DefaultAuthor
		}
		turns = append(turns, domain.UserTurn(author, msg.Content))
	}

	if len(turns) == 0 || turns[0].Role == domain.RoleModel {
		greeting := domain.Turn{Role: domain.RoleUser, Text: opts.Greeting}
		turns = append([]domain.Turn{greeting}, turns...)
	}

	if opts.Trailing == TrailingDrop {
		// turns[0] is always a user Turn, so this stops before emptying the slice.
		for turns[len(turns)-1].Role == domain.RoleModel {
			turns = turns[:len(turns)-1]
		}
	}

	return turns
}
