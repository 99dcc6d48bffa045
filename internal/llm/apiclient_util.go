package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/soyeahso/baogate/internal/version"
)

// maxErrorBody bounds how much of a failed response is quoted in errors.
const maxErrorBody = 512

// postJSON marshals body, POSTs it to url and decodes a 2xx response into out.
// Non-2xx responses become a *ProviderError carrying the status code and the
// message extracted by errMessage (or the raw body when it finds none).
func postJSON(ctx context.Context, client *http.Client, provider, url string, body, out any, errMessage func([]byte) string) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", version.UserAgent())

	resp, err := client.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &ProviderError{Provider: provider, Message: "request failed: " + redactKey(err.Error())}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &ProviderError{Provider: provider, Message: "failed to read response: " + err.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := ""
		if errMessage != nil {
			msg = errMessage(respBody)
		}
		if msg == "" {
			msg = truncate(strings.TrimSpace(string(respBody)), maxErrorBody)
		}
		return &ProviderError{Provider: provider, Code: resp.StatusCode, Message: msg}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return &ProviderError{Provider: provider, Message: "malformed response: " + err.Error()}
	}
	return nil
}

// redactKey strips a ?key= query value from transport errors, which quote the URL.
func redactKey(s string) string {
	i := strings.Index(s, "key=")
	if i < 0 {
		return s
	}
	end := strings.IndexAny(s[i:], "&\" ")
	if end < 0 {
		return s[:i] + "key=REDACTED"
	}
	return s[:i] + "key=REDACTED" + s[i+end:]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
