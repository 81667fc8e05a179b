// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package device

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/containerd/errdefs"
	"go.opentelemetry.io/otel/attribute"
)

func (d *AndroidDevice) Install(ctx context.Context, app App) error {
	ctx, span := startSpan(ctx, d.env, "device.Install",
		attribute.String("package", app.Package),
		attribute.String("path", app.Path),
	)
	defer span.End()
	logEvent(d.env, "install start", "package", app.Package, "path", app.Path, "size", app.HumanSize())
	if _, err := d.adb(ctx, "install", "-r", app.Path); err != nil {
		err = &InstallError{Op: "install", Package: app.Package, Err: err}
		recordSpanError(span, err)
		return err
	}
	d.advance(StateAppInstalled)
	logEvent(d.env, "install finished", "package", app.Package)
	return nil
}

func (d *AndroidDevice) Uninstall(ctx context.Context, app App) error {
	ctx, span := startSpan(ctx, d.env, "device.Uninstall", attribute.String("package", app.Package))
	defer span.End()
	if _, err := d.adb(ctx, "uninstall", app.Package); err != nil {
		err = &InstallError{Op: "uninstall", Package: app.Package, Err: err}
		recordSpanError(span, err)
		return err
	}
	logEvent(d.env, "uninstalled", "package", app.Package)
	return nil
}

func (d *AndroidDevice) ClearUserData(ctx context.Context, app App) error {
	ctx, span := startSpan(ctx, d.env, "device.ClearUserData", attribute.String("package", app.Package))
	defer span.End()
	if _, err := d.adb(ctx, "shell", "pm", "clear", app.Package); err != nil {
		err = &InstallError{Op: "clear", Package: app.Package, Err: err}
		recordSpanError(span, err)
		return err
	}
	logEvent(d.env, "user data cleared", "package", app.Package)
	return nil
}

// StartAgent launches the instrumentation and forwards hostPort to it. The forward is
// issued even when the launch command fails; the agent port is recorded once both were
// attempted. hostPort 0 reuses the recorded port, or picks a free local port on first launch.
func (d *AndroidDevice) StartAgent(ctx context.Context, app App, hostPort int) error {
	if hostPort == 0 && d.agentPort != 0 {
		hostPort = d.agentPort
	}
	if hostPort == 0 {
		port, err := FindFreePort(9000, 9100)
		if err != nil {
			return err
		}
		hostPort = port
	}
	if d.agentPort != 0 && d.agentPort != hostPort {
		return preconditionf("agent already started on port %d", d.agentPort)
	}
	ctx, span := startSpan(ctx, d.env, "device.StartAgent",
		attribute.String("package", app.Package),
		attribute.String("main_activity", app.MainActivity),
		attribute.Int("host_port", hostPort),
	)
	defer span.End()

	_, launchErr := d.adb(ctx, "shell", "am", "instrument",
		"-e", "main_activity", app.MainActivity,
		d.env.AgentComponent,
	)
	if launchErr != nil {
		launchErr = fmt.Errorf("launch instrumentation %s: %w", d.env.AgentComponent, launchErr)
		recordSpanError(span, launchErr)
		logEvent(d.env, "agent launch failed", "component", d.env.AgentComponent, "error", launchErr.Error())
	} else {
		d.advance(StateAgentLaunched)
		logEvent(d.env, "agent launched", "component", d.env.AgentComponent, "main_activity", app.MainActivity)
	}

	forwardErr := d.ForwardPort(ctx, hostPort)
	d.agentPort = hostPort
	return errors.Join(launchErr, forwardErr)
}

// AttachAgent records hostPort as the forward of an agent that was launched elsewhere,
// so IsAgentRunning can reach it. The same rule as StartAgent applies to a port already set.
func (d *AndroidDevice) AttachAgent(hostPort int) error {
	if hostPort <= 0 {
		return errdefs.ErrInvalidArgument.WithMessage(fmt.Sprintf("invalid host port %d", hostPort))
	}
	if d.agentPort != 0 && d.agentPort != hostPort {
		return preconditionf("agent already started on port %d", d.agentPort)
	}
	d.agentPort = hostPort
	return nil
}

func (d *AndroidDevice) ForwardPort(ctx context.Context, hostPort int) error {
	ctx, span := startSpan(ctx, d.env, "device.ForwardPort",
		attribute.Int("host_port", hostPort),
		attribute.Int("device_port", d.env.DevicePort),
	)
	defer span.End()
	_, err := d.adb(ctx, "forward",
		"tcp:"+strconv.Itoa(hostPort),
		"tcp:"+strconv.Itoa(d.env.DevicePort),
	)
	if err != nil {
		err = &PortForwardError{HostPort: hostPort, DevicePort: d.env.DevicePort, Err: err}
		recordSpanError(span, err)
		return err
	}
	d.advance(StatePortExposed)
	logEvent(d.env, "port forwarded", "host_port", hostPort, "device_port", d.env.DevicePort)
	return nil
}

// FindFreePort returns the first local TCP port in [start, end) that can be bound.
func FindFreePort(start, end int) (int, error) {
	for p := start; p < end; p++ {
		l, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", p))
		if err != nil {
			continue
		}
		_ = l.Close()
		return p, nil
	}
	return 0, fmt.Errorf("no free port found in %d..%d", start, end)
}

// SetupOptions tunes Setup.
type SetupOptions struct {
	HostPort     int           // 0 reuses the recorded port or picks a free one
	BootTimeout  time.Duration // 0 performs a single readiness check
	ScreenSize   string        // required "WxH"; empty accepts any
	Reinstall    bool          // uninstall before installing
	ClearData    bool          // clear app data after install
	Mode         LaunchMode    // empty uses the device configuration
	AgentTimeout time.Duration // bound for LaunchWaitForAgent; 0 uses the device configuration
}

// Setup brings the agent up: readiness, install, launch, forward, verification.
// The first failing step aborts the rest.
func Setup(ctx context.Context, dev Device, app App, opts SetupOptions) error {
	env := envOf(dev)
	ctx, span := startSpan(ctx, env, "device.Setup",
		attribute.String("package", app.Package),
		attribute.Int("host_port", opts.HostPort),
	)
	defer span.End()
	fail := func(step string, err error) error {
		err = fmt.Errorf("setup %s: %w", step, err)
		recordSpanError(span, err)
		logEvent(env, "setup failed", "step", step, "error", err.Error())
		return err
	}

	if err := app.Validate(); err != nil {
		return fail("validate", err)
	}
	mode := opts.Mode
	if mode == "" {
		mode = env.LaunchMode
	}
	if !mode.Valid() {
		return fail("validate", errdefs.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("launch mode must be %q or %q, got %q", LaunchWaitForAgent, LaunchFireAndForget, mode)))
	}
	if opts.BootTimeout > 0 {
		if err := WaitForBoot(ctx, dev, opts.BootTimeout, nil); err != nil {
			return fail("boot", err)
		}
	} else if !dev.IsDeviceReady(ctx) {
		return fail("boot", preconditionf("device is not ready"))
	}
	if !dev.ScreenSizeMatches(ctx, opts.ScreenSize) {
		return fail("screen", preconditionf("screen size does not match %s", opts.ScreenSize))
	}
	if opts.Reinstall {
		if err := dev.Uninstall(ctx, app); err != nil {
			logEvent(env, "uninstall before install failed", "package", app.Package, "error", err.Error())
		}
	}
	if err := dev.Install(ctx, app); err != nil {
		return fail("install", err)
	}
	if opts.ClearData {
		if err := dev.ClearUserData(ctx, app); err != nil {
			return fail("clear", err)
		}
	}
	if err := dev.StartAgent(ctx, app, opts.HostPort); err != nil {
		return fail("start agent", err)
	}

	switch mode {
	case LaunchFireAndForget:
		running, err := dev.IsAgentRunning(ctx)
		if err != nil {
			return fail("verify", err)
		}
		if !running {
			return fail("verify", preconditionf("agent on port %d did not identify itself", dev.AgentPort()))
		}
	default:
		timeout := opts.AgentTimeout
		if timeout == 0 {
			timeout = env.AgentTimeout
		}
		if err := WaitForAgent(ctx, dev, timeout); err != nil {
			return fail("verify", err)
		}
	}
	span.SetAttributes(attribute.Int("agent_port", dev.AgentPort()))
	logEvent(env, "setup finished", "package", app.Package, "agent_port", dev.AgentPort(), "mode", string(mode))
	return nil
}
