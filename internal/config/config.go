// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

// Package config layers defaults, a config file, DROIDCTL_* environment variables and
// command-line flags into a device.Env.
package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/forkbombeu/droidctl/internal/device"
)

// Config is the complete droidctl configuration.
type Config struct {
	ADB           string      `mapstructure:"adb"`
	Serial        string      `mapstructure:"serial"`
	CorrelationID string      `mapstructure:"correlation_id"`
	Agent         AgentConfig `mapstructure:"agent"`
	SSH           SSHConfig   `mapstructure:"ssh"`
	OTel          OTelConfig  `mapstructure:"otel"`
}

// AgentConfig controls how the agent is launched and checked.
type AgentConfig struct {
	// Component is the instrumentation component started with "am instrument".
	Component string `mapstructure:"component"`
	// DevicePort is where the agent listens inside the device.
	DevicePort int `mapstructure:"device_port"`
	// StatusPath is queried on the forwarded host port.
	StatusPath string `mapstructure:"status_path"`
	// Marker must appear in the status body.
	Marker      string        `mapstructure:"marker"`
	HTTPTimeout time.Duration `mapstructure:"http_timeout"`
	// Timeout bounds the wait for the agent in "wait" launch mode.
	Timeout time.Duration `mapstructure:"timeout"`
	// LaunchMode is "wait" or "fire-and-forget".
	LaunchMode string `mapstructure:"launch_mode"`
}

// SSHConfig selects a remote host that runs the bridge tool.
type SSHConfig struct {
	Host       string `mapstructure:"host"`
	User       string `mapstructure:"user"`
	Key        string `mapstructure:"key"`
	KnownHosts string `mapstructure:"known_hosts"`
	Insecure   bool   `mapstructure:"insecure"`
}

type OTelConfig struct {
	Endpoint string `mapstructure:"endpoint"`
}

// Default derives the configuration from the process environment.
func Default() *Config {
	env := device.Detect()
	return &Config{
		ADB:           env.ADB,
		Serial:        env.Serial,
		CorrelationID: env.CorrelationID,
		Agent: AgentConfig{
			Component:   env.AgentComponent,
			DevicePort:  env.DevicePort,
			StatusPath:  env.StatusPath,
			Marker:      env.Marker,
			HTTPTimeout: env.HTTPTimeout,
			Timeout:     env.AgentTimeout,
			LaunchMode:  string(env.LaunchMode),
		},
		SSH: SSHConfig{
			Host:       env.SSH.Host,
			User:       env.SSH.User,
			Key:        env.SSH.KeyFile,
			KnownHosts: env.SSH.KnownHostsFile,
			Insecure:   env.SSH.Insecure,
		},
	}
}

// SetDefaults registers Default() values on v.
func SetDefaults(v *viper.Viper) {
	defaults := Default()

	v.SetDefault("adb", defaults.ADB)
	v.SetDefault("serial", defaults.Serial)
	v.SetDefault("correlation_id", defaults.CorrelationID)

	v.SetDefault("agent.component", defaults.Agent.Component)
	v.SetDefault("agent.device_port", defaults.Agent.DevicePort)
	v.SetDefault("agent.status_path", defaults.Agent.StatusPath)
	v.SetDefault("agent.marker", defaults.Agent.Marker)
	v.SetDefault("agent.http_timeout", defaults.Agent.HTTPTimeout)
	v.SetDefault("agent.timeout", defaults.Agent.Timeout)
	v.SetDefault("agent.launch_mode", defaults.Agent.LaunchMode)

	v.SetDefault("ssh.host", defaults.SSH.Host)
	v.SetDefault("ssh.user", defaults.SSH.User)
	v.SetDefault("ssh.key", defaults.SSH.Key)
	v.SetDefault("ssh.known_hosts", defaults.SSH.KnownHosts)
	v.SetDefault("ssh.insecure", defaults.SSH.Insecure)

	v.SetDefault("otel.endpoint", defaults.OTel.Endpoint)
}

// Load reads file (optional) into v and decodes the result.
func Load(v *viper.Viper, file string) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix("DROIDCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config %s: %w", file, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if !device.LaunchMode(c.Agent.LaunchMode).Valid() {
		return fmt.Errorf("agent.launch_mode must be %q or %q, got %q",
			device.LaunchWaitForAgent, device.LaunchFireAndForget, c.Agent.LaunchMode)
	}
	if c.Agent.DevicePort <= 0 || c.Agent.DevicePort > 65535 {
		return fmt.Errorf("agent.device_port out of range: %d", c.Agent.DevicePort)
	}
	return nil
}

// Env converts the configuration into a device environment parented on ctx.
func (c *Config) Env(ctx context.Context) device.Env {
	if ctx == nil {
		ctx = context.Background()
	}
	return device.Env{
		ADB:            c.ADB,
		Serial:         c.Serial,
		AgentComponent: c.Agent.Component,
		DevicePort:     c.Agent.DevicePort,
		StatusPath:     c.Agent.StatusPath,
		Marker:         c.Agent.Marker,
		HTTPTimeout:    c.Agent.HTTPTimeout,
		AgentTimeout:   c.Agent.Timeout,
		LaunchMode:     device.LaunchMode(c.Agent.LaunchMode),
		SSH: device.SSHConfig{
			Host:           c.SSH.Host,
			User:           c.SSH.User,
			KeyFile:        c.SSH.Key,
			KnownHostsFile: c.SSH.KnownHosts,
			Insecure:       c.SSH.Insecure,
		},
		CorrelationID: c.CorrelationID,
		Context:       ctx,
	}
}
