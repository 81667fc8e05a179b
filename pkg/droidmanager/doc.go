// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

/*
Package droidmanager provides a Go library for bringing the selendroid automation agent
up on Android devices and keeping track of it.

# Overview

The library drives devices through the adb bridge tool: it waits for boot, installs the
application under test, launches the agent instrumentation, forwards a host port to the
agent and verifies the agent answers on its status endpoint.

# Quick Start

	import "github.com/forkbombeu/droidctl/pkg/droidmanager"

	func main() {
		mgr := droidmanager.New()

		port, err := mgr.Setup(droidmanager.SetupOptions{
			Serial: "emulator-5554",
			App: droidmanager.App{
				Path:         "/apps/selendroid-test-app.apk",
				Package:      "io.selendroid.testapp",
				MainActivity: "io.selendroid.testapp.HomeScreenActivity",
			},
			BootTimeout: 2 * time.Minute,
		})
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println("agent on port", port)
	}

# Lifecycle

A device handle moves forward through these states:

1. unconfigured
2. booted (boot animation stopped)
3. app installed
4. agent launched
5. port exposed (host port forwarded to the agent port)
6. verified (status endpoint answered with the agent marker)

Setup performs all steps and aborts on the first failure. The individual steps are
also available (Install, Uninstall, ClearUserData, IsAgentRunning).

# Device Facts

Model, locale, screen size and platform level are read from the device on first use
and cached on the handle. The Manager keeps one handle per serial, so facts and the
agent port survive across calls.

# Launch Modes

"wait" (default) retries the status check with exponential backoff until the agent
answers or the agent timeout elapses. "fire-and-forget" checks once right after the
forward.

# Environment Configuration

By default, the manager auto-detects its settings from environment variables:
- ADB, ANDROID_SDK_ROOT (adb location)
- ANDROID_SERIAL (default device)
- DROIDCTL_AGENT_COMPONENT, DROIDCTL_DEVICE_PORT, DROIDCTL_STATUS_PATH
- DROIDCTL_SSH_HOST (run adb on a remote host)

Use NewWithEnv() to override them.

# Thread Safety

Manager instances are not thread-safe. Create one Manager per goroutine when driving
several devices in parallel.

# License

AGPL-3.0-only

Copyright (C) 2025 Forkbomb B.V.
*/
package droidmanager
