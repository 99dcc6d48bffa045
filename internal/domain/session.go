package domain

import (
	"slices"
	"time"
)

// Role tags who produced a Turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Turn is one role-tagged unit of conversation state. Turns are never
// modified after they are appended to a Session.
type Turn struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt,omitzero"`
}

// UserTurn builds a user Turn that names its speaker, so the model can tell
// participants of a group chat apart.
func UserTurn(author, content string) Turn {
	return Turn{Role: RoleUser, Text: author + ": " + content}
}

// ModelTurn builds a model Turn carrying text verbatim.
func ModelTurn(text string) Turn {
	return Turn{Role: RoleModel, Text: text}
}

// Session is the running conversation context for one channel.
type Session struct {
	ID                string    `json:"id"`
	ChannelID         string    `json:"channelId"`
	SystemInstruction string    `json:"systemInstruction"`
	Tools             []string  `json:"tools,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
	Turns             []Turn    `json:"turns,omitempty"`
}

// Clone returns a deep copy that shares no slices with s.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Tools = slices.Clone(s.Tools)
	c.Turns = slices.Clone(s.Turns)
	return &c
}

// Summary condenses a Session for listings.
func (s *Session) Summary() SessionSummary {
	sum := SessionSummary{
		ID:        s.ID,
		ChannelID: s.ChannelID,
		TurnCount: len(s.Turns),
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
	if n := len(s.Turns); n > 0 {
		sum.LastRole = s.Turns[n-1].Role
	}
	return sum
}

// SessionSummary is the listing view of a Session.
type SessionSummary struct {
	ID        string    `json:"id"`
	ChannelID string    `json:"channelId"`
	TurnCount int       `json:"turnCount"`
	LastRole  Role      `json:"lastRole,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
