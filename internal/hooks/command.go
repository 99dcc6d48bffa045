package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"

	"github.com/soyeahso/baogate/internal/config"
)

const defaultCommandTimeout = 30 * time.Second

// CommandHandler returns a Handler that runs command through "sh -c" with the
// JSON-encoded Payload on stdin.
func CommandHandler(command string, timeout time.Duration) Handler {
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}
	return func(ctx context.Context, p Payload) error {
		input, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("encoding payload: %w", err)
		}

		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		cmd := exec.CommandContext(ctx, "sh", "-c", command)
		cmd.Stdin = bytes.NewReader(input)
		cmd.Env = append(cmd.Environ(), "BAOGATE_EVENT="+p.Event)
		var stderr bytes.Buffer
		cmd.Stderr = &stderr

		if err := cmd.Run(); err != nil {
			return fmt.Errorf("hook command %q: %w: %s", command, err, bytes.TrimSpace(stderr.Bytes()))
		}
		return nil
	}
}

// RegisterCommands installs the configured shell hooks. Unknown event names
// are logged and skipped.
func (m *Manager) RegisterCommands(cmds []config.HookCommand) {
	for i, c := range cmds {
		if !IsKnownEvent(c.Event) {
			m.log.Warn().Str("event", c.Event).Msg("ignoring hook for unknown event")
			continue
		}
		name := fmt.Sprintf("command[%d]", i)
		m.On(c.Event, name, CommandHandler(c.Command, time.Duration(c.TimeoutSeconds)*time.Second))
	}
}
