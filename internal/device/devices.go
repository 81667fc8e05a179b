// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package device

import (
	"context"
	"strings"
)

// Attached is one line of "adb devices".
type Attached struct {
	Serial string `json:"serial"`
	State  string `json:"state"`
}

func parseDevices(output string) []Attached {
	var out []Attached
	for _, line := range strings.Split(output, "\n") {
		f := strings.Fields(line)
		if len(f) < 2 || strings.HasPrefix(line, "List of devices") || strings.HasPrefix(f[0], "*") {
			continue
		}
		out = append(out, Attached{Serial: f[0], State: f[1]})
	}
	return out
}

// ListDevices returns the devices the bridge tool currently sees.
func ListDevices(ctx context.Context, env Env) ([]Attached, error) {
	env = env.withDefaults()
	ctx, span := startSpan(ctx, env, "device.ListDevices")
	defer span.End()
	executor := env.Executor
	if executor == nil {
		if env.SSH.Host != "" {
			ssh := NewSSHExecutor(env)
			defer ssh.Close()
			executor = ssh
		} else {
			executor = NewLocalExecutor(env)
		}
	}
	out, err := executor.Execute(ctx, []string{env.ADB, "devices"})
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	return parseDevices(out), nil
}
