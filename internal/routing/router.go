// Package routing connects chat front-ends to the session facade.
package routing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/soyeahso/baogate/internal/agent"
	"github.com/soyeahso/baogate/internal/channel"
	"github.com/soyeahso/baogate/internal/domain"
	"github.com/soyeahso/baogate/internal/logging"
)

// Facade is the part of agent.Runner the router drives.
type Facade interface {
	Feed(ctx context.Context, u domain.Utterance) error
	Respond(ctx context.Context, u domain.Utterance) (*agent.Reply, error)
}

// Router sends front-end lines to the facade: lines addressed to the bot
// get a reply, everything else is fed as context.
type Router struct {
	channels *channel.Registry
	facade   Facade
	names    func() []string
	timeout  time.Duration
	queues   *sessionQueues
	log      *logging.Logger
}

// NewRouter creates a message router. names returns the words that address
// the bot (its nick and persona names); it is consulted per message since
// an IRC nick can change after connect.
func NewRouter(
	channels *channel.Registry,
	facade Facade,
	names func() []string,
	timeout time.Duration,
	log *logging.Logger,
) *Router {
	return &Router{
		channels: channels,
		facade:   facade,
		names:    names,
		timeout:  timeout,
		queues:   newSessionQueues(),
		log:      log.Sub("router"),
	}
}

// SessionChannelID is the session key for a front-end conversation,
// e.g. "irc:#bao".
func SessionChannelID(msg domain.InboundMessage) string {
	return msg.ChannelID + ":" + msg.ChatID
}

// Addressed reports whether body mentions any of names, case-insensitively.
func Addressed(body string, names []string) bool {
	lower := strings.ToLower(body)
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" && strings.Contains(lower, strings.ToLower(n)) {
			return true
		}
	}
	return false
}

// HandleInbound processes one front-end line.
func (r *Router) HandleInbound(ctx context.Context, msg domain.InboundMessage) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	author := msg.FromName
	if author == "" {
		author = msg.From
	}
	u := domain.Utterance{
		ChannelID:  SessionChannelID(msg),
		AuthorName: author,
		Content:    msg.Body,
		Timestamp:  msg.Timestamp,
	}
	log := r.log.With("session", u.ChannelID)

	var names []string
	if r.names != nil {
		names = r.names()
	}
	if !Addressed(msg.Body, names) {
		if err := r.facade.Feed(ctx, u); err != nil {
			log.Error().Err(err).Str("from", msg.From).Msg("feed failed")
			return
		}
		log.Debug().Str("from", msg.From).Msg("line fed")
		return
	}

	reply, err := r.facade.Respond(ctx, u)
	if err != nil {
		log.Error().Err(err).Str("from", msg.From).Msg("respond failed")
		return
	}

	out := domain.OutboundMessage{
		ChannelID: msg.ChannelID,
		To:        replyTarget(msg),
		Body:      reply.Text,
	}
	if err := r.SendTo(ctx, out.ChannelID, out.To, out.Body); err != nil {
		log.Error().Err(err).Str("to", out.To).Msg("failed to send reply")
		return
	}

	log.Info().
		Str("to", out.To).
		Str("sessionId", reply.SessionID).
		Str("model", reply.Model).
		Dur("duration", reply.Duration).
		Msg("reply sent")
}

// Wire registers the router on every channel. Lines of one session are handled
// in arrival order; different sessions proceed in parallel.
func (r *Router) Wire(ctx context.Context) {
	for _, id := range r.channels.List() {
		ch, ok := r.channels.Get(id)
		if !ok {
			continue
		}
		ch.OnMessage(func(msg domain.InboundMessage) {
			r.Enqueue(ctx, msg)
		})
		r.log.Debug().Str("channel", id).Msg("wired message handler")
	}
}

// Enqueue schedules msg behind any lines of the same session still being handled.
func (r *Router) Enqueue(ctx context.Context, msg domain.InboundMessage) {
	r.queues.enqueue(SessionChannelID(msg), func() {
		r.HandleInbound(ctx, msg)
	})
}

// replyTarget determines where to send the response.
func replyTarget(msg domain.InboundMessage) string {
	if msg.ChatType == domain.ChatTypeDM {
		return msg.From
	}
	return msg.ChatID
}

// SendTo sends a message to a specific channel.
func (r *Router) SendTo(ctx context.Context, channelID, target, body string) error {
	ch, ok := r.channels.Get(channelID)
	if !ok {
		return fmt.Errorf("channel not found: %s", channelID)
	}
	return ch.Send(ctx, domain.OutboundMessage{
		ChannelID: channelID,
		To:        target,
		Body:      body,
	})
}
