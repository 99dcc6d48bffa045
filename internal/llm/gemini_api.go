package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// GeminiAPIClient talks to the Gemini generateContent REST endpoint.
type GeminiAPIClient struct {
	apiKey   string
	model    string
	endpoint string
	client   *http.Client
}

// NewGeminiAPIClient creates a Gemini client. Endpoint is the API base,
// e.g. https://generativelanguage.googleapis.com/v1beta.
func NewGeminiAPIClient(cfg APIClientConfig) *GeminiAPIClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &GeminiAPIClient{
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		endpoint: strings.TrimSuffix(cfg.Endpoint, "/"),
		client:   &http.Client{Timeout: timeout},
	}
}

// Name returns the provider name.
func (g *GeminiAPIClient) Name() string {
	return "gemini"
}

// Complete sends the full conversation and returns the first candidate's text.
func (g *GeminiAPIClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()

	model := req.Model
	if model == "" || model == g.Name() {
		model = g.model
	}
	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		g.endpoint, url.PathEscape(model), url.QueryEscape(g.apiKey))

	var result geminiResponse
	if err := postJSON(ctx, g.client, g.Name(), endpoint, g.buildRequestBody(req), &result, geminiErrorMessage); err != nil {
		return nil, err
	}

	return g.responseToCompletion(&result, model, time.Since(start))
}

func (g *GeminiAPIClient) buildRequestBody(req CompletionRequest) geminiRequest {
	body := geminiRequest{
		Contents: make([]geminiContent, 0, len(req.Messages)),
	}

	if req.System != "" {
		body.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.System}}}
	}

	for _, msg := range req.Messages {
		role := RoleUser
		if msg.Role == RoleModel {
			role = RoleModel
		}
		body.Contents = append(body.Contents, geminiContent{
			Role:  role,
			Parts: []geminiPart{{Text: msg.Content}},
		})
	}

	for _, name := range req.Tools {
		switch name {
		case ToolGoogleSearch:
			body.Tools = append(body.Tools, geminiTool{GoogleSearch: &struct{}{}})
		case ToolCodeExecution:
			body.Tools = append(body.Tools, geminiTool{CodeExecution: &struct{}{}})
		}
	}

	if req.MaxTokens > 0 || req.Temperature != nil {
		body.GenerationConfig = &geminiGenerationConfig{
			MaxOutputTokens: req.MaxTokens,
			Temperature:     req.Temperature,
		}
	}

	return body
}

func (g *GeminiAPIClient) responseToCompletion(resp *geminiResponse, model string, duration time.Duration) (*CompletionResponse, error) {
	if len(resp.Candidates) == 0 {
		msg := "no candidates returned"
		if resp.PromptFeedback.BlockReason != "" {
			msg += " (block reason: " + resp.PromptFeedback.BlockReason + ")"
		}
		return nil, &ProviderError{Provider: g.Name(), Message: msg}
	}

	candidate := resp.Candidates[0]
	var content strings.Builder
	for _, part := range candidate.Content.Parts {
		content.WriteString(part.Text)
	}
	if content.Len() == 0 {
		return nil, &ProviderError{
			Provider: g.Name(),
			Message:  fmt.Sprintf("empty response (finish reason: %s)", candidate.FinishReason),
		}
	}

	return &CompletionResponse{
		Content:    content.String(),
		StopReason: candidate.FinishReason,
		Model:      model,
		Duration:   duration,
		Usage: Usage{
			InputTokens:  resp.UsageMetadata.PromptTokenCount,
			OutputTokens: resp.UsageMetadata.CandidatesTokenCount,
		},
	}, nil
}

func geminiErrorMessage(body []byte) string {
	var e struct {
		Error struct {
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &e) != nil || e.Error.Message == "" {
		return ""
	}
	if e.Error.Status != "" {
		return e.Error.Status + ": " + e.Error.Message
	}
	return e.Error.Message
}

// Wire structures

type geminiRequest struct {
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	Contents          []geminiContent         `json:"contents"`
	Tools             []geminiTool            `json:"tools,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type geminiTool struct {
	GoogleSearch  *struct{} `json:"googleSearch,omitempty"`
	CodeExecution *struct{} `json:"codeExecution,omitempty"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
	Temperature     *float64 `json:"temperature,omitempty"`
}

type geminiResponse struct {
	Candidates     []geminiCandidate `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason"`
}
