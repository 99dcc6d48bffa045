// Package llm defines the conversation model client interface and the HTTP
// providers that implement it.
//
// A provider receives the whole exchange on every call: the session's system
// instruction, its enabled provider-side tools, the prior turns and the new
// user turn. Providers hold no conversation state of their own.
package llm

import (
	"context"
	"time"
)

// Role constants for messages.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Tool names understood by providers that support server-side tools.
const (
	ToolGoogleSearch  = "googleSearch"
	ToolCodeExecution = "codeExecution"
)

// Message is a single turn in a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is the input to Complete. The last message is the new
// user turn.
type CompletionRequest struct {
	Model       string    `json:"model,omitempty"`
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
	Tools       []string  `json:"tools,omitempty"`
	MaxTokens   int       `json:"maxTokens,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
}

// CompletionResponse is the result of a completion.
type CompletionResponse struct {
	Content    string        `json:"content"`
	StopReason string        `json:"stopReason,omitempty"`
	Usage      Usage         `json:"usage"`
	Model      string        `json:"model,omitempty"`
	Duration   time.Duration `json:"duration,omitempty"`
}

// Usage tracks token consumption.
type Usage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
}

// Client is the interface all conversation model providers implement.
type Client interface {
	// Complete sends a request and returns the full response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Name returns the provider name (e.g., "gemini", "ollama").
	Name() string
}

// APIClientConfig holds settings shared by the HTTP providers.
type APIClientConfig struct {
	APIKey   string
	Model    string
	Endpoint string
	Timeout  time.Duration
}
