package llm

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/soyeahso/baogate/internal/config"
	"github.com/soyeahso/baogate/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func silentLog() *logging.Logger {
	return logging.New(nil, "silent")
}

func TestRegistryRegisterAndResolve(t *testing.T) {
	reg := NewRegistry(silentLog())
	reg.Register("gemini", &MockClient{ProviderName: "gemini"})

	client, err := reg.Resolve("gemini")
	require.NoError(t, err)
	assert.Equal(t, "gemini", client.Name())
}

func TestRegistryAlias(t *testing.T) {
	reg := NewRegistry(silentLog())
	reg.Register("gemini", &MockClient{ProviderName: "gemini"})
	reg.Alias("gemini-2.0-flash", "gemini")

	client, err := reg.Resolve("gemini-2.0-flash")
	require.NoError(t, err)
	assert.Equal(t, "gemini", client.Name())
}

func TestRegistryFallback(t *testing.T) {
	reg := NewRegistry(silentLog())
	reg.Register("ollama", &MockClient{ProviderName: "ollama"})
	reg.SetFallback("ollama")

	client, err := reg.Resolve("llama3")
	require.NoError(t, err)
	assert.Equal(t, "ollama", client.Name())
}

func TestRegistryResolveNotFound(t *testing.T) {
	reg := NewRegistry(silentLog())

	_, err := reg.Resolve("nonexistent")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no model provider")
}

func TestRegistryList(t *testing.T) {
	reg := NewRegistry(silentLog())
	reg.Register("b", &MockClient{ProviderName: "b"})
	reg.Register("a", &MockClient{ProviderName: "a"})

	assert.Equal(t, []string{"a", "b"}, reg.List())
}

func TestNewRegistryFromConfig(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.ProviderConfig
		provider string
		wantErr  bool
	}{
		{"gemini", config.ProviderConfig{Name: "gemini", APIKey: "k", Model: "gemini-2.0-flash"}, "gemini", false},
		{"gemini without key", config.ProviderConfig{Name: "gemini", Model: "gemini-2.0-flash"}, "", true},
		{"ollama", config.ProviderConfig{Name: "ollama", Model: "llama3", Tools: []string{"googleSearch"}}, "ollama", false},
		{"unknown", config.ProviderConfig{Name: "claude", Model: "x"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg, err := NewRegistryFromConfig(tt.cfg, silentLog())
			if tt.wantErr {
				var cfgErr *config.ConfigError
				assert.ErrorAs(t, err, &cfgErr)
				return
			}
			require.NoError(t, err)

			client, err := reg.Resolve(tt.cfg.Model)
			require.NoError(t, err)
			assert.Equal(t, tt.provider, client.Name())
		})
	}
}

func TestProviderErrorString(t *testing.T) {
	withCode := &ProviderError{Provider: "gemini", Code: 429, Message: "quota exceeded"}
	assert.Equal(t, "gemini: 429 quota exceeded", withCode.Error())

	noCode := &ProviderError{Provider: "ollama", Message: "request failed"}
	assert.Equal(t, "ollama: request failed", noCode.Error())
}

func TestMockClientDefault(t *testing.T) {
	mock := &MockClient{ProviderName: "mock"}
	resp, err := mock.Complete(context.Background(), CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "mock response", resp.Content)
}

func TestRedactKey(t *testing.T) {
	assert.Equal(t,
		`Post "http://x/models/m:generateContent?key=REDACTED": dial tcp: refused`,
		redactKey(`Post "http://x/models/m:generateContent?key=secret": dial tcp: refused`))
	assert.Equal(t, "no key here", redactKey("no key here"))
	assert.Equal(t, "url?key=REDACTED", redactKey("url?key=secret"))
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"abc", 5, "abc"},
		{"abcdef", 3, "abc..."},
		{"안녕하세요", 15, "안녕하세요"},
		{"안녕하세요", 6, "안녕..."},
		{"안녕하세요", 5, "안..."},
		{"안녕하세요", 4, "안..."},
		{"안녕하세요", 2, "..."},
		{"a안녕", 2, "a..."},
	}
	for _, tt := range tests {
		got := truncate(tt.in, tt.n)
		assert.Equal(t, tt.want, got, "truncate(%q, %d)", tt.in, tt.n)
		assert.True(t, utf8.ValidString(got))
	}
}

func TestProviderErrorBodyKeepsRunesWhole(t *testing.T) {
	// 1 byte of ASCII shifts every 3-byte rune off the cut point.
	body := "x" + strings.Repeat("가", maxErrorBody)
	srv := newOllamaTestServer(t, http.StatusInternalServerError, body, nil)

	_, err := newTestOllama(srv.URL).Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.True(t, utf8.ValidString(perr.Message))
	assert.True(t, strings.HasSuffix(perr.Message, "..."))
	assert.LessOrEqual(t, len(perr.Message), maxErrorBody+len("..."))
}
