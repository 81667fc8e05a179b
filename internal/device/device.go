// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package device

import (
	"context"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Device is the capability set needed to bring an automation agent up on one device.
// AndroidDevice drives a real device through adb; tests and alternate backends supply
// their own implementations.
type Device interface {
	IsDeviceReady(ctx context.Context) bool

	Install(ctx context.Context, app App) error
	Uninstall(ctx context.Context, app App) error
	ClearUserData(ctx context.Context, app App) error
	StartAgent(ctx context.Context, app App, hostPort int) error
	ForwardPort(ctx context.Context, hostPort int) error

	IsAgentRunning(ctx context.Context) (bool, error)
	AgentPort() int

	Model(ctx context.Context) (string, error)
	Locale(ctx context.Context) (Locale, error)
	ScreenSize(ctx context.Context) (string, error)
	ScreenSizeMatches(ctx context.Context, requested string) bool
	TargetPlatform(ctx context.Context) (TargetPlatform, error)
}

// State is a step of the agent lifecycle. States only move forward.
type State int

const (
	StateUnconfigured State = iota
	StateBooted
	StateAppInstalled
	StateAgentLaunched
	StatePortExposed
	StateVerified
)

func (s State) String() string {
	switch s {
	case StateUnconfigured:
		return "unconfigured"
	case StateBooted:
		return "booted"
	case StateAppInstalled:
		return "app_installed"
	case StateAgentLaunched:
		return "agent_launched"
	case StatePortExposed:
		return "port_exposed"
	case StateVerified:
		return "verified"
	default:
		return "unknown"
	}
}

// AndroidDevice controls one device through the bridge tool.
// It is not safe for concurrent use; distinct devices may be driven concurrently.
type AndroidDevice struct {
	env       Env
	exec      Executor
	ssh       *SSHExecutor // owned; nil unless created here
	http      *http.Client
	agentPort int
	state     State
	facts     Facts
}

var _ Device = (*AndroidDevice)(nil)

// NewAndroidDevice returns a handle for env.Serial (empty targets the only attached device).
func NewAndroidDevice(env Env) *AndroidDevice {
	env = env.withDefaults()
	executor := env.Executor
	var owned *SSHExecutor
	if executor == nil {
		if env.SSH.Host != "" {
			owned = NewSSHExecutor(env)
			executor = owned
		} else {
			executor = NewLocalExecutor(env)
		}
	}
	client := env.HTTPClient
	if client == nil {
		client = &http.Client{
			Timeout:   env.HTTPTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	return &AndroidDevice{env: env, exec: executor, ssh: owned, http: client}
}

// Serial returns the configured selector, empty when none.
func (d *AndroidDevice) Serial() string { return d.env.Serial }

// AgentPort returns the host port recorded by StartAgent, zero before launch.
func (d *AndroidDevice) AgentPort() int { return d.agentPort }

func (d *AndroidDevice) State() State { return d.state }

// Close releases the SSH connection opened for this handle. An executor supplied through
// Env.Executor is left to its owner.
func (d *AndroidDevice) Close() error {
	if d.ssh == nil {
		return nil
	}
	return d.ssh.Close()
}

func (d *AndroidDevice) environment() Env { return d.env }

func (d *AndroidDevice) advance(to State) {
	if to > d.state {
		d.state = to
	}
}

// adb runs a bridge command against this device.
func (d *AndroidDevice) adb(ctx context.Context, args ...string) (string, error) {
	return d.exec.Execute(ctx, Command(d.env.ADB, d.env.Serial, args...))
}

func envOf(d Device) Env {
	if e, ok := d.(interface{ environment() Env }); ok {
		return e.environment()
	}
	return Env{}.withDefaults()
}
