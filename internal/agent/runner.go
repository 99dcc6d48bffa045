package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/soyeahso/baogate/internal/domain"
	"github.com/soyeahso/baogate/internal/hooks"
	"github.com/soyeahso/baogate/internal/llm"
	"github.com/soyeahso/baogate/internal/logging"
)

// RunnerConfig configures the session facade.
type RunnerConfig struct {
	Model       string
	MaxTokens   int
	Temperature *float64
	Tools       []string

	// SystemInstruction seeds sessions created on first contact.
	SystemInstruction string
	// RevivalInstruction seeds revived sessions; "{room}" names the room.
	RevivalInstruction string
	DefaultRoom        string
	DefaultAuthor      string

	Normalize NormalizeOptions
}

// Reply is the model's answer to Respond.
type Reply struct {
	Text      string        `json:"text"`
	Timestamp time.Time     `json:"timestamp"`
	SessionID string        `json:"sessionId"`
	Model     string        `json:"model,omitempty"`
	Usage     llm.Usage     `json:"usage"`
	Duration  time.Duration `json:"duration"`
}

// RevivalRequest asks for a channel's session to be rebuilt from history.
// A nil History means none was supplied; an empty one is valid.
type RevivalRequest struct {
	ChannelID string
	RoomName  string
	History   []domain.HistoryMessage
}

// Runner is the session facade. Every operation on a channel runs under that
// channel's lock, and an exchange's user and model Turns are committed only
// after the provider answered.
type Runner struct {
	cfg      RunnerConfig
	registry *llm.Registry
	sessions SessionStore
	locks    *channelLocks
	hooks    *hooks.Manager
	log      *logging.Logger
	now      func() time.Time
}

// NewRunner creates a Runner. hooks may be nil.
func NewRunner(
	cfg RunnerConfig,
	registry *llm.Registry,
	sessions SessionStore,
	hookMgr *hooks.Manager,
	log *logging.Logger,
) *Runner {
	return &Runner{
		cfg:      cfg,
		registry: registry,
		sessions: sessions,
		locks:    newChannelLocks(),
		hooks:    hookMgr,
		log:      log.Sub("agent"),
		now:      time.Now,
	}
}

// Sessions exposes the underlying store for read-only listings.
func (r *Runner) Sessions() SessionStore { return r.sessions }

// Feed adds a chat line to the channel's context. The provider still
// processes the turn so the model's side of the context advances, but the
// reply is discarded.
func (r *Runner) Feed(ctx context.Context, u domain.Utterance) error {
	_, err := r.exchange(ctx, u, "feed")
	return err
}

// Respond adds a chat line to the channel's context and returns the model's reply.
func (r *Runner) Respond(ctx context.Context, u domain.Utterance) (*Reply, error) {
	return r.exchange(ctx, u, "respond")
}

// Revive replaces the channel's session with one seeded from req.History and
// returns the number of seeded Turns.
func (r *Runner) Revive(ctx context.Context, req RevivalRequest) (int, error) {
	if req.ChannelID == "" || req.History == nil {
		return 0, &ValidationError{Message: "Invalid request format. channelId and history array are required."}
	}

	release, err := r.locks.acquire(ctx, req.ChannelID)
	if err != nil {
		return 0, fmt.Errorf("waiting for channel %s: %w", req.ChannelID, err)
	}
	defer release()

	turns := Normalize(req.History, r.cfg.Normalize)
	defaults := SessionDefaults{
		SystemInstruction: BuildRevivalInstruction(r.cfg.RevivalInstruction, req.RoomName, r.cfg.DefaultRoom),
		Tools:             r.cfg.Tools,
	}

	sess, err := r.sessions.Replace(req.ChannelID, defaults, turns)
	if err != nil {
		return 0, fmt.Errorf("replacing session for %s: %w", req.ChannelID, err)
	}

	r.log.Info().
		Str("channel", req.ChannelID).
		Str("room", req.RoomName).
		Str("sessionId", sess.ID).
		Int("historyLen", len(req.History)).
		Int("turns", len(turns)).
		Msg("session revived")

	r.hooks.EmitAsync(ctx, hooks.EventSessionRevived, map[string]any{
		"channelId": req.ChannelID,
		"sessionId": sess.ID,
		"room":      req.RoomName,
		"turns":     len(turns),
	})

	return len(turns), nil
}

func (r *Runner) exchange(ctx context.Context, u domain.Utterance, op string) (*Reply, error) {
	author := u.AuthorName
	if author == "" {
		author = r.cfg.DefaultAuthor
	}
	log := r.log.With("channel", u.ChannelID)

	release, err := r.locks.acquire(ctx, u.ChannelID)
	if err != nil {
		return nil, fmt.Errorf("waiting for channel %s: %w", u.ChannelID, err)
	}
	defer release()

	sess, created, err := r.sessions.GetOrCreate(u.ChannelID, SessionDefaults{
		SystemInstruction: r.cfg.SystemInstruction,
		Tools:             r.cfg.Tools,
	})
	if err != nil {
		return nil, fmt.Errorf("loading session for %s: %w", u.ChannelID, err)
	}
	if created {
		log.Info().Str("sessionId", sess.ID).Msg("session created")
		r.hooks.EmitAsync(ctx, hooks.EventSessionCreated, map[string]any{
			"channelId": u.ChannelID,
			"sessionId": sess.ID,
		})
	}

	userTurn := domain.UserTurn(author, u.Content)
	log.Debug().
		Str("op", op).
		Str("sessionId", sess.ID).
		Str("author", author).
		Int("historyLen", len(sess.Turns)).
		Msg("exchange started")

	resp, err := r.complete(ctx, sess, userTurn)
	if err != nil {
		log.Error().Err(err).Str("op", op).Str("sessionId", sess.ID).Msg("exchange failed")
		r.hooks.EmitAsync(ctx, hooks.EventExchangeFailed, map[string]any{
			"channelId": u.ChannelID,
			"op":        op,
			"error":     err.Error(),
		})
		return nil, fmt.Errorf("%w: %w", ErrProvider, err)
	}

	// Commit both Turns together; an abandoned call above leaves history untouched.
	if err := r.sessions.AppendExchange(u.ChannelID, sess.ID, userTurn, domain.ModelTurn(resp.Content)); err != nil {
		return nil, fmt.Errorf("committing exchange for %s: %w", u.ChannelID, err)
	}

	log.Info().
		Str("op", op).
		Str("sessionId", sess.ID).
		Str("model", resp.Model).
		Dur("duration", resp.Duration).
		Int("inputTokens", resp.Usage.InputTokens).
		Int("outputTokens", resp.Usage.OutputTokens).
		Msg("exchange completed")

	r.hooks.EmitAsync(ctx, hooks.EventExchangeCompleted, map[string]any{
		"channelId": u.ChannelID,
		"sessionId": sess.ID,
		"op":        op,
	})

	return &Reply{
		Text:      resp.Content,
		Timestamp: r.now(),
		SessionID: sess.ID,
		Model:     resp.Model,
		Usage:     resp.Usage,
		Duration:  resp.Duration,
	}, nil
}

func (r *Runner) complete(ctx context.Context, sess *domain.Session, user domain.Turn) (*llm.CompletionResponse, error) {
	client, err := r.registry.Resolve(r.cfg.Model)
	if err != nil {
		return nil, err
	}

	messages := make([]llm.Message, 0, len(sess.Turns)+1)
	for _, t := range sess.Turns {
		messages = append(messages, llm.Message{Role: string(t.Role), Content: t.Text})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: user.Text})

	resp, err := client.Complete(ctx, llm.CompletionRequest{
		Model:       r.cfg.Model,
		System:      sess.SystemInstruction,
		Tools:       sess.Tools,
		Messages:    messages,
		MaxTokens:   r.cfg.MaxTokens,
		Temperature: r.cfg.Temperature,
	})
	if err != nil {
		return nil, err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		// The caller gave up while the provider was answering.
		return nil, ctxErr
	}
	if resp == nil {
		return nil, errors.New("provider returned no response")
	}
	return resp, nil
}
