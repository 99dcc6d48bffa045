package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/soyeahso/baogate/internal/config"
	"github.com/soyeahso/baogate/internal/version"
)

// gatewayClient talks to a running gateway over HTTP.
type gatewayClient struct {
	base  string
	token string
	http  *http.Client
}

func newGatewayClient(cfg config.Config, urlOverride string) *gatewayClient {
	base := urlOverride
	if base == "" {
		base = gatewayBaseURL(cfg.Gateway)
	}
	token := cfg.Gateway.Auth.Token
	if token == "" {
		token = os.Getenv("BAOGATE_GATEWAY_TOKEN")
	}
	timeout := time.Duration(cfg.Gateway.RequestTimeoutSeconds)*time.Second + 10*time.Second
	return &gatewayClient{
		base:  strings.TrimRight(base, "/"),
		token: token,
		http:  &http.Client{Timeout: timeout},
	}
}

// gatewayBaseURL is the local URL of a gateway started with cfg.
func gatewayBaseURL(cfg config.GatewayConfig) string {
	scheme := "http"
	if cfg.TLS != nil && cfg.TLS.Enabled {
		scheme = "https"
	}
	host := "127.0.0.1"
	if cfg.Bind == "custom" && cfg.CustomBindHost != "" && cfg.CustomBindHost != "0.0.0.0" {
		host = cfg.CustomBindHost
	}
	return scheme + "://" + net.JoinHostPort(host, strconv.Itoa(cfg.Port))
}

// gatewayError is a non-2xx answer from the gateway.
type gatewayError struct {
	Status  int
	Message string
}

func (e *gatewayError) Error() string {
	return fmt.Sprintf("gateway returned %d: %s", e.Status, e.Message)
}

func (c *gatewayClient) do(ctx context.Context, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		rdr = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rdr)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", version.UserAgent())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("contacting gateway at %s: %w", c.base, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading gateway response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		var eb struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(data, &eb) != nil || eb.Message == "" {
			eb.Message = strings.TrimSpace(string(data))
		}
		return &gatewayError{Status: resp.StatusCode, Message: eb.Message}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding gateway response: %w", err)
	}
	return nil
}

func (c *gatewayClient) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *gatewayClient) post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}
