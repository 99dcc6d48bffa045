package config

import "fmt"

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

const (
	DefaultPort           = 3000
	DefaultMaxBodyBytes   = 10 << 20
	DefaultRequestTimeout = 300
	DefaultModel          = "gemini-2.0-flash"
	DefaultGeminiEndpoint = "https://generativelanguage.googleapis.com/v1beta"
	DefaultOllamaEndpoint = "http://127.0.0.1:11434"
	DefaultMaxHistory     = 50
	DefaultChannel        = "default"
	DefaultAuthor         = "사용자"
	DefaultRoom           = "그룹"
	DefaultGreeting       = "안녕하세요! 다시 돌아왔어요."

	TrailingKeep = "keep"
	TrailingDrop = "drop"
)

// DefaultSystemInstruction seeds sessions created on first contact.
const DefaultSystemInstruction = `너의 이름은 바오야. 여러 사람이 함께 있는 단체 채팅방에 참여하고 있어.
사용자 메시지는 "이름: 내용" 형식으로 전달돼. 누가 말했는지 구분해서 자연스럽게 대화에 참여해.
답변은 짧고 친근하게, 채팅방 분위기에 맞춰서 해줘.`

// DefaultRevivalInstruction seeds sessions rebuilt from history. {room} names the chat room.
const DefaultRevivalInstruction = `너는 '{room}' 채팅방에 있는 AI 어시스턴트 바오야.
이전 대화 기록을 참고해서 자연스럽게 대화를 이어가.
사용자 메시지는 "이름: 내용" 형식으로 전달돼.`

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	cfg := Config{}
	applyDefaults(&cfg)
	return cfg
}

// applyDefaults fills zero-value fields with sensible defaults.
func applyDefaults(cfg *Config) {
	g := &cfg.Gateway
	if g.Port == 0 {
		g.Port = DefaultPort
	}
	if g.Bind == "" {
		g.Bind = "lan"
	}
	if g.MaxBodyBytes == 0 {
		g.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if g.RequestTimeoutSeconds == 0 {
		g.RequestTimeoutSeconds = DefaultRequestTimeout
	}
	if g.Auth.Mode == "" {
		g.Auth.Mode = "none"
	}

	p := &cfg.Provider
	if p.Name == "" {
		p.Name = "gemini"
	}
	if p.Model == "" {
		p.Model = DefaultModel
	}
	if p.Endpoint == "" {
		switch p.Name {
		case "ollama":
			p.Endpoint = DefaultOllamaEndpoint
		default:
			p.Endpoint = DefaultGeminiEndpoint
		}
	}
	if p.TimeoutSeconds == 0 {
		p.TimeoutSeconds = 120
	}
	if p.Tools == nil {
		p.Tools = []string{"googleSearch"}
	}

	pe := &cfg.Persona
	if len(pe.BotNames) == 0 {
		pe.BotNames = []string{"바오"}
	}
	if len(pe.BotIdentities) == 0 {
		pe.BotIdentities = []string{"bao"}
	}
	if pe.DefaultAuthor == "" {
		pe.DefaultAuthor = DefaultAuthor
	}
	if pe.Greeting == "" {
		pe.Greeting = DefaultGreeting
	}
	if pe.SystemInstruction == "" {
		pe.SystemInstruction = DefaultSystemInstruction
	}
	if pe.RevivalInstruction == "" {
		pe.RevivalInstruction = DefaultRevivalInstruction
	}
	if pe.DefaultRoom == "" {
		pe.DefaultRoom = DefaultRoom
	}

	s := &cfg.Session
	if s.Store == "" {
		s.Store = "memory"
	}
	if s.DefaultChannel == "" {
		s.DefaultChannel = DefaultChannel
	}
	if s.MaxHistory == 0 {
		s.MaxHistory = DefaultMaxHistory
	}
	if s.TrailingModelTurn == "" {
		s.TrailingModelTurn = TrailingKeep
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}

	if irc := cfg.Channels.IRC; irc != nil && irc.Port == 0 {
		if irc.UseTLS {
			irc.Port = 6697
		} else {
			irc.Port = 6667
		}
	}
}
