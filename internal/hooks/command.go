package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/soyeahso/mercora/internal/config"
)

const defaultCommandTimeout = 10 * time.Second

// maxHookOutput caps how much command output is kept for error messages.
const maxHookOutput = 4096

// RegisterCommands wires every configured hook command to its event. Each
// command runs through the shell with the JSON payload on stdin.
func RegisterCommands(m *Manager, cfg config.HooksConfig) int {
	n := 0
	for event, entries := range map[string][]config.HookEntry{
		EventGatewayStart:   cfg.GatewayStart,
		EventGatewayStop:    cfg.GatewayStop,
		EventAgentCreated:   cfg.AgentCreated,
		EventSessionCreated: cfg.SessionCreated,
		EventSessionDeleted: cfg.SessionDeleted,
		EventOrderPlaced:    cfg.OrderPlaced,
	} {
		for i, e := range entries {
			if strings.TrimSpace(e.Command) == "" {
				continue
			}
			m.On(event, fmt.Sprintf("command:%s:%d", event, i), CommandHandler(e))
			n++
		}
	}
	return n
}

// CommandHandler returns a handler that runs entry's command.
func CommandHandler(entry config.HookEntry) Handler {
	timeout := defaultCommandTimeout
	if entry.Timeout > 0 {
		timeout = time.Duration(entry.Timeout) * time.Millisecond
	}

	return func(ctx context.Context, p Payload) error {
		body, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("encoding hook payload: %w", err)
		}

		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		cmd := shellCommand(ctx, entry.Command)
		cmd.Stdin = bytes.NewReader(body)
		cmd.Env = append(cmd.Environ(), "MERCORA_HOOK_EVENT="+p.Event)

		var out bytes.Buffer
		cmd.Stdout = &out
		cmd.Stderr = &out
		cmd.WaitDelay = time.Second

		if err := cmd.Run(); err != nil {
			if ctx.Err() == context.DeadlineExceeded {
				return fmt.Errorf("hook command timed out after %s", timeout)
			}
			output := strings.TrimSpace(out.String())
			if len(output) > maxHookOutput {
				output = output[:maxHookOutput]
			}
			if output != "" {
				return fmt.Errorf("hook command failed: %w: %s", err, output)
			}
			return fmt.Errorf("hook command failed: %w", err)
		}
		return nil
	}
}

func shellCommand(ctx context.Context, command string) *exec.Cmd {
	if runtime.GOOS == "windows" {
		return exec.CommandContext(ctx, "cmd", "/C", command)
	}
	return exec.CommandContext(ctx, "sh", "-c", command)
}
