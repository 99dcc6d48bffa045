package agent

import (
	"github.com/soyeahso/baogate/internal/config"
)

// RunnerConfigFromConfig derives the facade's settings from a loaded config.
func RunnerConfigFromConfig(cfg config.Config) (RunnerConfig, error) {
	policy, err := ParseTrailingPolicy(cfg.Session.TrailingModelTurn)
	if err != nil {
		return RunnerConfig{}, err
	}
	pe := cfg.Persona
	return RunnerConfig{
		Model:              cfg.Provider.Model,
		MaxTokens:          cfg.Provider.MaxTokens,
		Temperature:        cfg.Provider.Temperature,
		Tools:              cfg.Provider.Tools,
		SystemInstruction:  pe.SystemInstruction,
		RevivalInstruction: pe.RevivalInstruction,
		DefaultRoom:        pe.DefaultRoom,
		DefaultAuthor:      pe.DefaultAuthor,
		Normalize: NormalizeOptions{
			MaxHistory:    cfg.Session.MaxHistory,
			Bot:           NewBotMatcher(pe.BotNames, pe.BotIdentities),
			DefaultAuthor: pe.DefaultAuthor,
			Greeting:      pe.Greeting,
			Trailing:      policy,
		},
	}, nil
}
