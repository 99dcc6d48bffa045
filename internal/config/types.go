package config

// Config is the root baogate configuration.
type Config struct {
	Gateway  GatewayConfig  `yaml:"gateway,omitempty"`
	Provider ProviderConfig `yaml:"provider,omitempty"`
	Persona  PersonaConfig  `yaml:"persona,omitempty"`
	Session  SessionConfig  `yaml:"session,omitempty"`
	Logging  LoggingConfig  `yaml:"logging,omitempty"`
	Hooks    HooksConfig    `yaml:"hooks,omitempty"`
	Channels ChannelsConfig `yaml:"channels,omitempty"`
}

// GatewayConfig defines the HTTP/WebSocket front door.
type GatewayConfig struct {
	Port                  int         `yaml:"port,omitempty"`
	Bind                  string      `yaml:"bind,omitempty"` // "loopback" | "lan" | "custom"
	CustomBindHost        string      `yaml:"customBindHost,omitempty"`
	AllowedOrigins        []string    `yaml:"allowedOrigins,omitempty"`
	MaxBodyBytes          int64       `yaml:"maxBodyBytes,omitempty"`
	RequestTimeoutSeconds int         `yaml:"requestTimeoutSeconds,omitempty"`
	EnableWebSocket       *bool       `yaml:"enableWebSocket,omitempty"`
	Auth                  GatewayAuth `yaml:"auth,omitempty"`
	TLS                   *TLSConfig  `yaml:"tls,omitempty"`
}

// GatewayAuth guards the gateway with a shared bearer token.
type GatewayAuth struct {
	Mode  string `yaml:"mode,omitempty"` // "none" | "token"
	Token string `yaml:"token,omitempty"`
}

// TLSConfig enables HTTPS on the gateway listener.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"certFile,omitempty"`
	KeyFile  string `yaml:"keyFile,omitempty"`
}

// WebSocketEnabled reports whether the /ws endpoint is mounted. Defaults to true.
func (g GatewayConfig) WebSocketEnabled() bool {
	return g.EnableWebSocket == nil || *g.EnableWebSocket
}

// ProviderConfig selects and configures the conversation model backend.
type ProviderConfig struct {
	Name           string   `yaml:"name,omitempty"` // "gemini" | "ollama"
	APIKey         string   `yaml:"apiKey,omitempty"`
	Model          string   `yaml:"model,omitempty"`
	Endpoint       string   `yaml:"endpoint,omitempty"`
	TimeoutSeconds int      `yaml:"timeoutSeconds,omitempty"`
	Tools          []string `yaml:"tools,omitempty"` // provider-side tools, e.g. "googleSearch"
	MaxTokens      int      `yaml:"maxTokens,omitempty"`
	Temperature    *float64 `yaml:"temperature,omitempty"`
}

// PersonaConfig describes who the bot is and how raw chat history maps onto it.
type PersonaConfig struct {
	BotNames           []string `yaml:"botNames,omitempty"`
	BotIdentities      []string `yaml:"botIdentities,omitempty"`
	DefaultAuthor      string   `yaml:"defaultAuthor,omitempty"`
	Greeting           string   `yaml:"greeting,omitempty"`
	SystemInstruction  string   `yaml:"systemInstruction,omitempty"`
	RevivalInstruction string   `yaml:"revivalInstruction,omitempty"` // {room} is replaced with the room name
	DefaultRoom        string   `yaml:"defaultRoom,omitempty"`
}

// SessionConfig defines session storage and history shaping.
type SessionConfig struct {
	Store             string `yaml:"store,omitempty"` // "memory" | "sqlite"
	DatabasePath      string `yaml:"databasePath,omitempty"`
	DefaultChannel    string `yaml:"defaultChannel,omitempty"`
	MaxHistory        int    `yaml:"maxHistory,omitempty"`
	TrailingModelTurn string `yaml:"trailingModelTurn,omitempty"` // "keep" | "drop"
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty"`  // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	Format string `yaml:"format,omitempty"` // "console" | "json"
	File   string `yaml:"file,omitempty"`
}

// HooksConfig binds shell commands to gateway events.
type HooksConfig struct {
	Commands []HookCommand `yaml:"commands,omitempty"`
}

// HookCommand runs Command through the shell when Event fires.
type HookCommand struct {
	Event          string `yaml:"event"`
	Command        string `yaml:"command"`
	TimeoutSeconds int    `yaml:"timeoutSeconds,omitempty"`
}

// ChannelsConfig holds chat front-ends other than HTTP.
type ChannelsConfig struct {
	IRC *IRCConfig `yaml:"irc,omitempty"`
}

// IRCConfig defines the IRC front-end.
type IRCConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Server   string   `yaml:"server"`
	Port     int      `yaml:"port,omitempty"`
	Nick     string   `yaml:"nick"`
	Password string   `yaml:"password,omitempty"`
	Channels []string `yaml:"channels"`
	UseTLS   bool     `yaml:"useTLS,omitempty"`
	SASL     bool     `yaml:"sasl,omitempty"`
}
