// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package device

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Fixed agent identifiers. The instrumentation listens on DefaultDevicePort inside the
// device and answers DefaultStatusPath with a body containing DefaultMarker.
const (
	DefaultAgentComponent = "io.selendroid/.ServerInstrumentation"
	DefaultDevicePort     = 8080
	DefaultStatusPath     = "/wd/hub/status"
	DefaultMarker         = "selendroid"
)

// LaunchMode selects how Setup confirms the agent after forwarding its port.
type LaunchMode string

const (
	// LaunchFireAndForget checks the agent once right after the forward.
	LaunchFireAndForget LaunchMode = "fire-and-forget"
	// LaunchWaitForAgent retries the check with exponential backoff.
	LaunchWaitForAgent LaunchMode = "wait"
)

// Valid reports whether m is one of the known launch modes.
func (m LaunchMode) Valid() bool {
	return m == LaunchFireAndForget || m == LaunchWaitForAgent
}

type Env struct {
	ADB            string        // adb (ADB, or $ANDROID_SDK_ROOT/platform-tools/adb)
	Serial         string        // ANDROID_SERIAL (optional)
	AgentComponent string        // DROIDCTL_AGENT_COMPONENT
	DevicePort     int           // DROIDCTL_DEVICE_PORT (default 8080)
	StatusPath     string        // DROIDCTL_STATUS_PATH (default /wd/hub/status)
	Marker         string        // DROIDCTL_MARKER (default selendroid)
	HTTPTimeout    time.Duration // DROIDCTL_HTTP_TIMEOUT (default 5s)
	AgentTimeout   time.Duration // DROIDCTL_AGENT_TIMEOUT (default 30s)
	LaunchMode     LaunchMode    // DROIDCTL_LAUNCH_MODE (default wait)
	SSH            SSHConfig
	// HTTPClient overrides the client used for the status check.
	HTTPClient *http.Client
	// Executor overrides how bridge commands are run. Nil selects the local or SSH
	// executor depending on SSH.Host.
	Executor Executor
	// CorrelationID is used to tie logs to a specific workflow/activity.
	CorrelationID string
	// Context is used to parent OpenTelemetry spans.
	Context context.Context
}

// SSHConfig describes a remote host that has the device attached.
type SSHConfig struct {
	Host           string // DROIDCTL_SSH_HOST (host or host:port)
	User           string // DROIDCTL_SSH_USER
	KeyFile        string // DROIDCTL_SSH_KEY
	KnownHostsFile string // DROIDCTL_SSH_KNOWN_HOSTS (default ~/.ssh/known_hosts)
	Insecure       bool   // DROIDCTL_SSH_INSECURE skips host key verification
}

func Detect() Env {
	home, _ := os.UserHomeDir()

	adb := os.Getenv("ADB")
	if adb == "" {
		if sdk := os.Getenv("ANDROID_SDK_ROOT"); sdk != "" {
			adb = filepath.Join(sdk, "platform-tools", "adb")
		} else {
			adb = "adb"
		}
	}

	return Env{
		ADB:            adb,
		Serial:         os.Getenv("ANDROID_SERIAL"),
		AgentComponent: getenv("DROIDCTL_AGENT_COMPONENT", DefaultAgentComponent),
		DevicePort:     getenvInt("DROIDCTL_DEVICE_PORT", DefaultDevicePort),
		StatusPath:     getenv("DROIDCTL_STATUS_PATH", DefaultStatusPath),
		Marker:         getenv("DROIDCTL_MARKER", DefaultMarker),
		HTTPTimeout:    getenvDuration("DROIDCTL_HTTP_TIMEOUT", 5*time.Second),
		AgentTimeout:   getenvDuration("DROIDCTL_AGENT_TIMEOUT", 30*time.Second),
		LaunchMode:     LaunchMode(getenv("DROIDCTL_LAUNCH_MODE", string(LaunchWaitForAgent))),
		SSH: SSHConfig{
			Host:           os.Getenv("DROIDCTL_SSH_HOST"),
			User:           getenv("DROIDCTL_SSH_USER", os.Getenv("USER")),
			KeyFile:        getenv("DROIDCTL_SSH_KEY", filepath.Join(home, ".ssh", "id_ed25519")),
			KnownHostsFile: getenv("DROIDCTL_SSH_KNOWN_HOSTS", filepath.Join(home, ".ssh", "known_hosts")),
			Insecure:       os.Getenv("DROIDCTL_SSH_INSECURE") == "1",
		},
		CorrelationID: os.Getenv("DROIDCTL_CORRELATION_ID"),
		Context:       context.Background(),
	}
}

func getenv(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func getenvInt(k string, def int) int {
	n, err := strconv.Atoi(os.Getenv(k))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func getenvDuration(k string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(k))
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// withDefaults fills zero values so a hand-built Env behaves like a detected one.
func (env Env) withDefaults() Env {
	if env.ADB == "" {
		env.ADB = "adb"
	}
	if env.AgentComponent == "" {
		env.AgentComponent = DefaultAgentComponent
	}
	if env.DevicePort == 0 {
		env.DevicePort = DefaultDevicePort
	}
	if env.StatusPath == "" {
		env.StatusPath = DefaultStatusPath
	}
	if env.Marker == "" {
		env.Marker = DefaultMarker
	}
	if env.HTTPTimeout == 0 {
		env.HTTPTimeout = 5 * time.Second
	}
	if env.AgentTimeout == 0 {
		env.AgentTimeout = 30 * time.Second
	}
	if env.LaunchMode == "" {
		env.LaunchMode = LaunchWaitForAgent
	}
	return env
}
