package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOllamaTestServer(t *testing.T, status int, response string, capture *ollamaChatRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/chat", r.URL.Path)
		if capture != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(capture))
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestOllama(endpoint string) *OllamaAPIClient {
	return NewOllamaAPIClient(APIClientConfig{Model: "llama3", Endpoint: endpoint + "/", Timeout: 5 * time.Second})
}

func TestOllamaComplete(t *testing.T) {
	var body ollamaChatRequest
	srv := newOllamaTestServer(t, http.StatusOK, `{
		"message": {"role": "assistant", "content": "hello there"},
		"done_reason": "stop",
		"prompt_eval_count": 20,
		"eval_count": 4
	}`, &body)

	temp := 0.2
	resp, err := newTestOllama(srv.URL).Complete(context.Background(), CompletionRequest{
		System: "You are Bao.",
		Tools:  []string{ToolGoogleSearch},
		Messages: []Message{
			{Role: RoleUser, Content: "hi"},
			{Role: RoleModel, Content: "hey"},
			{Role: RoleUser, Content: "how are you"},
		},
		Temperature: &temp,
		MaxTokens:   64,
	})
	require.NoError(t, err)

	assert.Equal(t, "hello there", resp.Content)
	assert.Equal(t, "stop", resp.StopReason)
	assert.Equal(t, "llama3", resp.Model)
	assert.Equal(t, 20, resp.Usage.InputTokens)
	assert.Equal(t, 4, resp.Usage.OutputTokens)

	assert.Equal(t, "llama3", body.Model)
	assert.False(t, body.Stream)
	require.Len(t, body.Messages, 4)
	assert.Equal(t, ollamaMessage{Role: "system", Content: "You are Bao."}, body.Messages[0])
	assert.Equal(t, "user", body.Messages[1].Role)
	assert.Equal(t, "assistant", body.Messages[2].Role)
	assert.Equal(t, "user", body.Messages[3].Role)
	require.NotNil(t, body.Options)
	assert.Equal(t, 64, body.Options.NumPredict)
	require.NotNil(t, body.Options.Temperature)
	assert.InDelta(t, 0.2, *body.Options.Temperature, 1e-9)
}

func TestOllamaComplete_NoSystemNoOptions(t *testing.T) {
	var body ollamaChatRequest
	srv := newOllamaTestServer(t, http.StatusOK, `{"message": {"role": "assistant", "content": "ok"}}`, &body)

	_, err := newTestOllama(srv.URL).Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "ping"}},
	})
	require.NoError(t, err)
	require.Len(t, body.Messages, 1)
	assert.Equal(t, "user", body.Messages[0].Role)
	assert.Nil(t, body.Options)
}

func TestOllamaComplete_Errors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		response string
		wantCode int
		wantMsg  string
	}{
		{"error field", http.StatusNotFound, `{"error": "model \"llama3\" not found"}`, 404, `model "llama3" not found`},
		{"raw body", http.StatusInternalServerError, `boom`, 500, "boom"},
		{"empty content", http.StatusOK, `{"message": {"role": "assistant", "content": ""}}`, 0, "empty response"},
		{"malformed", http.StatusOK, `{not json`, 0, "malformed response"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newOllamaTestServer(t, tt.status, tt.response, nil)
			_, err := newTestOllama(srv.URL).Complete(context.Background(), CompletionRequest{
				Messages: []Message{{Role: RoleUser, Content: "hi"}},
			})
			var perr *ProviderError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, "ollama", perr.Provider)
			assert.Equal(t, tt.wantCode, perr.Code)
			assert.Contains(t, perr.Message, tt.wantMsg)
		})
	}
}

func TestOllamaDefaultEndpoint(t *testing.T) {
	c := NewOllamaAPIClient(APIClientConfig{Model: "llama3"})
	assert.Equal(t, "http://localhost:11434", c.baseURL)
	assert.Equal(t, "ollama", c.Name())
}
