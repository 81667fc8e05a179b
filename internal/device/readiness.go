// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package device

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

var bootPollInterval = 500 * time.Millisecond

// ProgressFunc receives boot-wait stages: waiting_adb, checking_bootanim, boot_complete.
type ProgressFunc func(status string, elapsed time.Duration)

// parseBootAnim reports whether a init.svc.bootanim value means the boot animation ended.
func parseBootAnim(raw string) bool {
	return strings.Contains(strings.TrimSpace(raw), "stopped")
}

// IsDeviceReady is a single boot check. Bridge failures read as "not ready yet".
func (d *AndroidDevice) IsDeviceReady(ctx context.Context) bool {
	out, err := d.adb(ctx, "shell", "getprop", "init.svc.bootanim")
	if err != nil {
		return false
	}
	ready := parseBootAnim(out)
	if ready {
		d.advance(StateBooted)
	}
	return ready
}

// WaitForDevice blocks until the bridge sees the device.
func (d *AndroidDevice) WaitForDevice(ctx context.Context) error {
	_, err := d.adb(ctx, "wait-for-device")
	return err
}

// WaitForBoot polls IsDeviceReady until it succeeds or timeout elapses.
func WaitForBoot(ctx context.Context, dev Device, timeout time.Duration, progress ProgressFunc) error {
	env := envOf(dev)
	ctx, span := startSpan(ctx, env, "device.WaitForBoot", attribute.String("timeout", timeout.String()))
	defer span.End()

	start := time.Now()
	report := func(status string) {
		if progress != nil {
			progress(status, time.Since(start))
		}
	}
	deadline := start.Add(timeout)

	report("waiting_adb")
	if w, ok := dev.(interface{ WaitForDevice(context.Context) error }); ok {
		waitCtx, cancel := context.WithDeadline(ctx, deadline)
		err := w.WaitForDevice(waitCtx)
		cancel()
		if err != nil {
			logEvent(env, "wait for device failed", "error", err.Error())
		}
	}

	for time.Now().Before(deadline) {
		report("checking_bootanim")
		if dev.IsDeviceReady(ctx) {
			report("boot_complete")
			span.SetAttributes(attribute.Bool("boot_completed", true))
			logEvent(env, "device booted", "serial", env.Serial, "elapsed", time.Since(start).String())
			return nil
		}
		select {
		case <-ctx.Done():
			recordSpanError(span, ctx.Err())
			return ctx.Err()
		case <-time.After(bootPollInterval):
		}
	}

	err := fmt.Errorf("boot timeout after %s (init.svc.bootanim never reported stopped)", timeout)
	logEvent(env, "wait for boot timeout", "serial", env.Serial, "timeout", timeout.String())
	recordSpanError(span, err)
	return err
}
