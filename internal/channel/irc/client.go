// Package irc attaches IRC channels to the gateway using girc.
package irc

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/lrstanley/girc"
	"github.com/soyeahso/baogate/internal/config"
	"github.com/soyeahso/baogate/internal/domain"
	"github.com/soyeahso/baogate/internal/logging"
	"github.com/soyeahso/baogate/internal/version"
)

// ChannelID identifies the IRC front-end in the channel registry.
const ChannelID = "irc"

// maxLineBytes keeps PRIVMSG lines under the 512-byte protocol limit once
// the prefix and target are added.
const maxLineBytes = 400

var errNotConnected = errors.New("irc: not connected")

// Channel implements domain.Channel for IRC.
type Channel struct {
	cfg config.IRCConfig
	log *logging.Logger

	mu      sync.RWMutex
	client  *girc.Client
	handler func(msg domain.InboundMessage)
	running bool
	lastErr string
}

// New creates an IRC channel from configuration.
func New(cfg config.IRCConfig, log *logging.Logger) *Channel {
	return &Channel{
		cfg: cfg,
		log: log.Sub("irc"),
	}
}

func (c *Channel) ID() string { return ChannelID }

// Nick returns the bot's current nick, or the configured one before connecting.
func (c *Channel) Nick() string {
	c.mu.RLock()
	cl := c.client
	c.mu.RUnlock()
	if cl != nil {
		if n := cl.GetNick(); n != "" {
			return n
		}
	}
	return c.cfg.Nick
}

func (c *Channel) OnMessage(handler func(msg domain.InboundMessage)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = handler
}

// Status returns the current runtime status.
func (c *Channel) Status() domain.ChannelStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return domain.ChannelStatus{
		ChannelID: ChannelID,
		Connected: c.client != nil && c.client.IsConnected(),
		Running:   c.running,
		LastError: c.lastErr,
	}
}

func (c *Channel) gircConfig() girc.Config {
	port := c.cfg.Port
	if port == 0 {
		port = 6667
		if c.cfg.UseTLS {
			port = 6697
		}
	}

	gc := girc.Config{
		Server:  c.cfg.Server,
		Port:    port,
		Nick:    c.cfg.Nick,
		User:    c.cfg.Nick,
		Name:    "baogate chat proxy",
		SSL:     c.cfg.UseTLS,
		Version: version.UserAgent(),
	}
	if c.cfg.UseTLS {
		gc.TLSConfig = &tls.Config{ServerName: c.cfg.Server}
	}
	if c.cfg.SASL && c.cfg.Password != "" {
		gc.SASL = &girc.SASLPlain{User: c.cfg.Nick, Pass: c.cfg.Password}
	} else if c.cfg.Password != "" {
		gc.ServerPass = c.cfg.Password
	}
	return gc
}

// Start connects to the IRC server and processes messages until the
// connection ends or ctx is cancelled.
func (c *Channel) Start(ctx context.Context) error {
	gc := c.gircConfig()
	client := girc.New(gc)
	client.Handlers.Add(girc.CONNECTED, c.onConnected)
	client.Handlers.Add(girc.PRIVMSG, c.onPrivmsg)
	client.Handlers.Add(girc.DISCONNECTED, c.onDisconnected)

	c.mu.Lock()
	c.client = client
	c.running = true
	c.lastErr = ""
	c.mu.Unlock()

	c.log.Info().
		Str("server", gc.Server).
		Int("port", gc.Port).
		Str("nick", gc.Nick).
		Strs("channels", c.cfg.Channels).
		Bool("tls", gc.SSL).
		Msg("connecting to IRC")

	errCh := make(chan error, 1)
	go func() {
		errCh <- client.Connect()
	}()

	select {
	case err := <-errCh:
		c.mu.Lock()
		c.running = false
		if err != nil {
			c.lastErr = err.Error()
		}
		c.mu.Unlock()
		if err != nil {
			return fmt.Errorf("irc connect: %w", err)
		}
		return nil
	case <-ctx.Done():
		client.Close()
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
		return ctx.Err()
	}
}

// Stop quits the IRC server.
func (c *Channel) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil && c.client.IsConnected() {
		c.log.Info().Msg("disconnecting from IRC")
		c.client.Quit("baogate shutting down")
	}
	c.running = false
	return nil
}

// Send delivers a reply to an IRC channel or nick, one PRIVMSG per line.
func (c *Channel) Send(ctx context.Context, msg domain.OutboundMessage) error {
	if msg.To == "" {
		return errors.New("irc: no target specified")
	}
	c.mu.RLock()
	client := c.client
	c.mu.RUnlock()
	if client == nil || !client.IsConnected() {
		return errNotConnected
	}

	lines := splitMessage(msg.Body, maxLineBytes)
	for _, line := range lines {
		if err := ctx.Err(); err != nil {
			return err
		}
		client.Cmd.Message(msg.To, line)
	}

	c.log.Debug().Str("to", msg.To).Int("lines", len(lines)).Msg("sent IRC message")
	return nil
}

func (c *Channel) onConnected(cl *girc.Client, _ girc.Event) {
	c.log.Info().Str("nick", cl.GetNick()).Msg("connected to IRC")
	for _, ch := range c.cfg.Channels {
		c.log.Info().Str("channel", ch).Msg("joining channel")
		cl.Cmd.Join(ch)
	}
}

func (c *Channel) onPrivmsg(cl *girc.Client, e girc.Event) {
	c.handlePrivmsg(cl.GetNick(), e)
}

func (c *Channel) onDisconnected(_ *girc.Client, _ girc.Event) {
	c.log.Warn().Msg("disconnected from IRC")
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
}

// handlePrivmsg turns a channel PRIVMSG into an InboundMessage. The bot's
// own lines and direct messages are ignored.
func (c *Channel) handlePrivmsg(self string, e girc.Event) {
	if e.Source == nil || len(e.Params) == 0 {
		return
	}
	if strings.EqualFold(e.Source.Name, self) {
		return
	}
	if !e.IsFromChannel() {
		c.log.Debug().Str("nick", e.Source.Name).Msg("ignoring direct message")
		return
	}

	body := e.Last()
	if e.IsAction() {
		body = e.StripAction()
	}

	msg := domain.InboundMessage{
		ID:        uuid.New().String(),
		ChannelID: ChannelID,
		From:      e.Source.Name,
		FromName:  e.Source.Name,
		ChatID:    e.Params[0],
		ChatType:  domain.ChatTypeGroup,
		Body:      body,
		Timestamp: time.Now(),
	}
	if !e.Timestamp.IsZero() {
		msg.Timestamp = e.Timestamp
	}

	c.mu.RLock()
	handler := c.handler
	c.mu.RUnlock()
	if handler != nil {
		handler(msg)
	}
}

// splitMessage breaks text into IRC-sized lines. Each newline starts a new
// line; blank lines are dropped. Long lines are cut at maxLen bytes without
// splitting a UTF-8 sequence.
func splitMessage(text string, maxLen int) []string {
	var chunks []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		for len(line) > maxLen {
			cut := maxLen
			for cut > 0 && !utf8.RuneStart(line[cut]) {
				cut--
			}
			if cut == 0 {
				cut = maxLen
			}
			chunks = append(chunks, line[:cut])
			line = line[cut:]
		}
		if strings.TrimSpace(line) != "" {
			chunks = append(chunks, line)
		}
	}
	return chunks
}
