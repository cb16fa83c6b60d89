package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/soyeahso/flowbridge/internal/config"
)

const defaultCommandTimeout = 10 * time.Second

// CommandHandler runs entry.Command through sh with the JSON payload on stdin.
func CommandHandler(entry config.HookEntry) Handler {
	timeout := time.Duration(entry.Timeout) * time.Millisecond
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}

	return func(ctx context.Context, p Payload) error {
		body, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("encoding payload: %w", err)
		}

		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		cmd := exec.CommandContext(ctx, "sh", "-c", entry.Command)
		cmd.Stdin = bytes.NewReader(body)
		cmd.WaitDelay = time.Second
		cmd.Env = append(cmd.Environ(), "FLOWBRIDGE_HOOK_EVENT="+p.Event)

		var stderr bytes.Buffer
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			return fmt.Errorf("hook command %q: %w: %s", entry.Command, err, strings.TrimSpace(stderr.String()))
		}
		return nil
	}
}

// RegisterConfig adds a command handler for every configured hook entry and
// returns how many were registered.
func (m *Manager) RegisterConfig(cfg config.HooksConfig) int {
	byEvent := map[string][]config.HookEntry{
		EventHandover:           cfg.Handover,
		EventFallbackEscalation: cfg.FallbackEscalation,
		EventReplySent:          cfg.ReplySent,
		EventGatewayStart:       cfg.GatewayStart,
		EventGatewayStop:        cfg.GatewayStop,
	}

	n := 0
	for event, entries := range byEvent {
		for i, entry := range entries {
			if strings.TrimSpace(entry.Command) == "" {
				continue
			}
			m.On(event, fmt.Sprintf("config:%s:%d", event, i), CommandHandler(entry))
			n++
		}
	}
	return n
}
