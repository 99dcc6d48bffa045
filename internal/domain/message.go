package domain

import "time"

// HistoryMessage is one line of externally supplied chat history, as sent
// with a revival request. Empty fields mean "not provided".
type HistoryMessage struct {
	AuthorName     string    `json:"authorName,omitempty"`
	AuthorIdentity string    `json:"authorIdentity,omitempty"`
	Content        string    `json:"content"`
	Timestamp      time.Time `json:"timestamp,omitzero"` // informational; order is positional
}

// Utterance is a single live chat line addressed to a channel's session.
type Utterance struct {
	ChannelID  string
	AuthorName string
	Content    string
	Timestamp  time.Time
}

// ChatType classifies the conversation context of a front-end message.
type ChatType string

const (
	ChatTypeDM    ChatType = "dm"
	ChatTypeGroup ChatType = "group"
)

// InboundMessage is a message received from a chat front-end such as IRC.
type InboundMessage struct {
	ID        string    `json:"id"`
	ChannelID string    `json:"channelId"`
	From      string    `json:"from"`
	FromName  string    `json:"fromName,omitempty"`
	ChatID    string    `json:"chatId"`
	ChatType  ChatType  `json:"chatType"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
}

// OutboundMessage is a message to be sent via a chat front-end.
type OutboundMessage struct {
	ChannelID string `json:"channelId"`
	To        string `json:"to"`
	Body      string `json:"body"`
}
