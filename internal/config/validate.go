package config

import (
	"fmt"
	"slices"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// Validate checks a Config for issues. Returns nil if valid.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue
	oneOf := func(path, got string, valid []string) {
		if got != "" && !slices.Contains(valid, got) {
			issues = append(issues, ValidationIssue{
				Path:    path,
				Message: fmt.Sprintf("must be one of %v, got %q", valid, got),
			})
		}
	}

	if cfg.Gateway.Port < 0 || cfg.Gateway.Port > 65535 {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.port",
			Message: fmt.Sprintf("port must be 0-65535, got %d", cfg.Gateway.Port),
		})
	}
	oneOf("gateway.bind", cfg.Gateway.Bind, []string{"loopback", "lan", "custom"})
	if cfg.Gateway.Bind == "custom" && cfg.Gateway.CustomBindHost == "" {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.customBindHost",
			Message: "required when bind is custom",
		})
	}
	if cfg.Gateway.MaxBodyBytes < 0 {
		issues = append(issues, ValidationIssue{Path: "gateway.maxBodyBytes", Message: "must not be negative"})
	}
	oneOf("gateway.auth.mode", cfg.Gateway.Auth.Mode, []string{"none", "token"})
	if cfg.Gateway.Auth.Mode == "token" && cfg.Gateway.Auth.Token == "" {
		issues = append(issues, ValidationIssue{Path: "gateway.auth.token", Message: "required when auth mode is token"})
	}
	if tls := cfg.Gateway.TLS; tls != nil && tls.Enabled && (tls.CertFile == "" || tls.KeyFile == "") {
		issues = append(issues, ValidationIssue{Path: "gateway.tls", Message: "certFile and keyFile are required when TLS is enabled"})
	}

	oneOf("provider.name", cfg.Provider.Name, []string{"gemini", "ollama"})
	if cfg.Provider.Name == "gemini" && cfg.Provider.APIKey == "" {
		issues = append(issues, ValidationIssue{
			Path:    "provider.apiKey",
			Message: "required for gemini (or set BAOGATE_API_KEY / API_KEY)",
		})
	}
	if cfg.Provider.Model == "" {
		issues = append(issues, ValidationIssue{Path: "provider.model", Message: "required"})
	}
	for _, tool := range cfg.Provider.Tools {
		oneOf("provider.tools", tool, []string{"googleSearch", "codeExecution"})
	}
	if t := cfg.Provider.Temperature; t != nil && (*t < 0 || *t > 2) {
		issues = append(issues, ValidationIssue{
			Path:    "provider.temperature",
			Message: fmt.Sprintf("must be between 0 and 2, got %g", *t),
		})
	}

	if len(cfg.Persona.BotNames) == 0 && len(cfg.Persona.BotIdentities) == 0 {
		issues = append(issues, ValidationIssue{
			Path:    "persona",
			Message: "at least one of botNames or botIdentities is required",
		})
	}

	oneOf("session.store", cfg.Session.Store, []string{"memory", "sqlite"})
	oneOf("session.trailingModelTurn", cfg.Session.TrailingModelTurn, []string{TrailingKeep, TrailingDrop})
	if cfg.Session.MaxHistory < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "session.maxHistory",
			Message: fmt.Sprintf("must not be negative, got %d", cfg.Session.MaxHistory),
		})
	}

	oneOf("logging.level", cfg.Logging.Level, []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"})
	oneOf("logging.format", cfg.Logging.Format, []string{"console", "json"})

	for i, h := range cfg.Hooks.Commands {
		if h.Event == "" || h.Command == "" {
			issues = append(issues, ValidationIssue{
				Path:    fmt.Sprintf("hooks.commands[%d]", i),
				Message: "event and command are required",
			})
		}
	}

	if irc := cfg.Channels.IRC; irc != nil && irc.Enabled {
		if irc.Server == "" {
			issues = append(issues, ValidationIssue{Path: "channels.irc.server", Message: "server is required"})
		}
		if irc.Nick == "" {
			issues = append(issues, ValidationIssue{Path: "channels.irc.nick", Message: "nick is required"})
		}
		if irc.Port < 0 || irc.Port > 65535 {
			issues = append(issues, ValidationIssue{
				Path:    "channels.irc.port",
				Message: fmt.Sprintf("port must be 0-65535, got %d", irc.Port),
			})
		}
		if irc.SASL && irc.Password == "" {
			issues = append(issues, ValidationIssue{Path: "channels.irc.sasl", Message: "SASL requires a password to be set"})
		}
	}

	return issues
}
