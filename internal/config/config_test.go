// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/forkbombeu/droidctl/internal/device"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ANDROID_SERIAL", "emulator-5554")
	cfg, err := Load(viper.New(), "")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Serial != "emulator-5554" {
		t.Fatalf("expected serial from ANDROID_SERIAL, got %q", cfg.Serial)
	}
	if cfg.Agent.DevicePort != device.DefaultDevicePort {
		t.Fatalf("expected default device port, got %d", cfg.Agent.DevicePort)
	}
	if cfg.Agent.LaunchMode != string(device.LaunchWaitForAgent) {
		t.Fatalf("expected wait launch mode, got %q", cfg.Agent.LaunchMode)
	}
}

func TestLoadFileAndEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "droidctl.yaml")
	content := `adb: /opt/sdk/platform-tools/adb
serial: emulator-5556
agent:
  device_port: 8081
  http_timeout: 2s
  launch_mode: fire-and-forget
ssh:
  host: farm.example.org
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("DROIDCTL_SERIAL", "emulator-5558")

	cfg, err := Load(viper.New(), path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.ADB != "/opt/sdk/platform-tools/adb" {
		t.Fatalf("unexpected adb %q", cfg.ADB)
	}
	if cfg.Serial != "emulator-5558" {
		t.Fatalf("expected environment to override the file, got %q", cfg.Serial)
	}
	if cfg.Agent.HTTPTimeout != 2*time.Second {
		t.Fatalf("unexpected http timeout %s", cfg.Agent.HTTPTimeout)
	}

	env := cfg.Env(context.Background())
	if env.DevicePort != 8081 || env.LaunchMode != device.LaunchFireAndForget {
		t.Fatalf("unexpected env %+v", env)
	}
	if env.SSH.Host != "farm.example.org" {
		t.Fatalf("unexpected ssh host %q", env.SSH.Host)
	}
	if env.Context == nil {
		t.Fatal("expected env context to be set")
	}
}

func TestLoadRejectsUnknownLaunchMode(t *testing.T) {
	t.Setenv("DROIDCTL_AGENT_LAUNCH_MODE", "eventually")
	_, err := Load(viper.New(), "")
	if err == nil || !strings.Contains(err.Error(), "launch_mode") {
		t.Fatalf("expected launch mode error, got %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(viper.New(), filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for a missing config file")
	}
}
