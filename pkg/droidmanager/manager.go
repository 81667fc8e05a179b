// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package droidmanager

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/forkbombeu/droidctl/internal/device"
)

// Device is the capability set of one controllable device.
type Device = device.Device

// Executor runs bridge command lines; set Environment.Executor to replace adb.
type Executor = device.Executor

// Manager provides high-level device operations. Device handles are created on first use
// per serial and reused, so facts and the agent port persist across calls.
type Manager struct {
	env     device.Env
	devices map[string]*device.AndroidDevice
}

// New creates a new Manager with auto-detected environment.
func New() *Manager {
	return &Manager{
		env: device.Detect(),
	}
}

// NewWithCorrelationID creates a new Manager with a correlation ID for structured logs.
func NewWithCorrelationID(correlationID string) *Manager {
	return NewWithContextAndCorrelationID(context.Background(), correlationID)
}

// NewWithContext creates a new Manager with a custom context for tracing.
func NewWithContext(ctx context.Context) *Manager {
	return NewWithContextAndCorrelationID(ctx, "")
}

// NewWithContextAndCorrelationID creates a new Manager with a custom context and correlation ID.
func NewWithContextAndCorrelationID(ctx context.Context, correlationID string) *Manager {
	env := device.Detect()
	if ctx == nil {
		ctx = context.Background()
	}
	env.Context = ctx
	env.CorrelationID = correlationID
	return &Manager{
		env: env,
	}
}

// NewWithEnv creates a new Manager with custom environment configuration.
func NewWithEnv(env Environment) *Manager {
	ctx := env.Context
	if ctx == nil {
		ctx = context.Background()
	}
	return &Manager{
		env: device.Env{
			ADB:            env.ADBBin,
			Serial:         env.DefaultSerial,
			AgentComponent: env.AgentComponent,
			DevicePort:     env.DevicePort,
			StatusPath:     env.StatusPath,
			Marker:         env.Marker,
			HTTPTimeout:    env.HTTPTimeout,
			AgentTimeout:   env.AgentTimeout,
			LaunchMode:     device.LaunchMode(env.LaunchMode),
			SSH: device.SSHConfig{
				Host:           env.SSHHost,
				User:           env.SSHUser,
				KeyFile:        env.SSHKeyFile,
				KnownHostsFile: env.SSHKnownHostsFile,
				Insecure:       env.SSHInsecure,
			},
			HTTPClient:    env.HTTPClient,
			Executor:      env.Executor,
			CorrelationID: env.CorrelationID,
			Context:       ctx,
		},
	}
}

// Environment holds configuration for the bridge tool and the agent.
type Environment struct {
	ADBBin            string          // Path to adb binary (default: "adb")
	DefaultSerial     string          // Serial used when a call passes "" (optional)
	AgentComponent    string          // Instrumentation component (default: io.selendroid/.ServerInstrumentation)
	DevicePort        int             // Agent port inside the device (default: 8080)
	StatusPath        string          // Status endpoint path (default: /wd/hub/status)
	Marker            string          // Token expected in the status body (default: selendroid)
	HTTPTimeout       time.Duration   // Status check timeout (default: 5s)
	AgentTimeout      time.Duration   // Wait bound for the agent (default: 30s)
	LaunchMode        string          // "wait" (default) or "fire-and-forget"
	SSHHost           string          // Run adb on this host over SSH (optional)
	SSHUser           string          // SSH user
	SSHKeyFile        string          // SSH private key
	SSHKnownHostsFile string          // known_hosts file
	SSHInsecure       bool            // Skip host key verification
	HTTPClient        *http.Client    // Custom client for the status check (optional)
	Executor          Executor        // Custom command executor (optional)
	CorrelationID     string          // Correlation ID for log enrichment
	Context           context.Context // Context for tracing
}

// App identifies the application under test.
type App struct {
	Path         string // Absolute path to the APK
	Package      string // Package id (e.g., io.selendroid.testapp)
	MainActivity string // Main activity (e.g., io.selendroid.testapp.HomeScreenActivity)
}

func (a App) toDevice() device.App {
	return device.App{Path: a.Path, Package: a.Package, MainActivity: a.MainActivity}
}

// DeviceInfo is one attached device as reported by adb.
type DeviceInfo struct {
	Serial string // Device serial (e.g., emulator-5554)
	State  string // adb state (device, offline, unauthorized)
}

// Facts contains identity properties of a device.
type Facts struct {
	Model      string // ro.product.model
	Locale     string // language_COUNTRY
	ScreenSize string // WxH
	APILevel   int    // ro.build.version.sdk
	Platform   string // Named platform
}

// SetupOptions contains options for bringing the agent up on a device.
type SetupOptions struct {
	Serial       string        // Device serial ("" = default serial or the only device)
	App          App           // Application under test (required)
	HostPort     int           // Host port forwarded to the agent (0 = auto-assign)
	BootTimeout  time.Duration // Wait for boot up to this long (0 = single readiness check)
	ScreenSize   string        // Required screen size "WxH" (optional)
	Reinstall    bool          // Uninstall before installing
	ClearData    bool          // Clear app data after installing
	LaunchMode   string        // "wait" or "fire-and-forget" (default: environment)
	AgentTimeout time.Duration // Wait bound for the agent (default: environment)
}

func (m *Manager) startSpan(name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if m.env.CorrelationID != "" {
		attrs = append(attrs, attribute.String("correlation_id", m.env.CorrelationID))
	}
	ctx := m.env.Context
	if ctx == nil {
		ctx = context.Background()
	}
	return otel.Tracer("droidmanager").Start(ctx, name, trace.WithAttributes(attrs...))
}

// Device returns the handle for serial ("" = default serial).
func (m *Manager) Device(serial string) Device {
	return m.handle(serial)
}

func (m *Manager) handle(serial string) *device.AndroidDevice {
	if serial == "" {
		serial = m.env.Serial
	}
	if m.devices == nil {
		m.devices = make(map[string]*device.AndroidDevice)
	}
	if d, ok := m.devices[serial]; ok {
		return d
	}
	env := m.env
	env.Serial = serial
	d := device.NewAndroidDevice(env)
	m.devices[serial] = d
	return d
}

// Close releases the connections held by every device handle.
func (m *Manager) Close() error {
	var errs []error
	for serial, d := range m.devices {
		if err := d.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(m.devices, serial)
	}
	return errors.Join(errs...)
}

// Devices lists devices attached to the bridge.
func (m *Manager) Devices() ([]DeviceInfo, error) {
	ctx, span := m.startSpan("droidmanager.Devices")
	defer span.End()
	attached, err := device.ListDevices(ctx, m.env)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	result := make([]DeviceInfo, len(attached))
	for i, a := range attached {
		result[i] = DeviceInfo{Serial: a.Serial, State: a.State}
	}
	return result, nil
}

// IsReady reports whether the device finished booting.
func (m *Manager) IsReady(serial string) bool {
	ctx, span := m.startSpan("droidmanager.IsReady", attribute.String("serial", serial))
	defer span.End()
	return m.handle(serial).IsDeviceReady(ctx)
}

// WaitForBoot waits for the device to finish booting.
func (m *Manager) WaitForBoot(serial string, timeout time.Duration) error {
	ctx, span := m.startSpan("droidmanager.WaitForBoot", attribute.String("serial", serial))
	defer span.End()
	return device.WaitForBoot(ctx, m.handle(serial), timeout, nil)
}

// Install installs (or replaces) the app.
func (m *Manager) Install(serial string, app App) error {
	ctx, span := m.startSpan("droidmanager.Install", attribute.String("serial", serial))
	defer span.End()
	return m.handle(serial).Install(ctx, app.toDevice())
}

// Uninstall removes the app by package id.
func (m *Manager) Uninstall(serial string, app App) error {
	ctx, span := m.startSpan("droidmanager.Uninstall", attribute.String("serial", serial))
	defer span.End()
	return m.handle(serial).Uninstall(ctx, app.toDevice())
}

// ClearUserData wipes the app's data.
func (m *Manager) ClearUserData(serial string, app App) error {
	ctx, span := m.startSpan("droidmanager.ClearUserData", attribute.String("serial", serial))
	defer span.End()
	return m.handle(serial).ClearUserData(ctx, app.toDevice())
}

// Setup installs the app, starts the agent and verifies it. Returns the host port.
func (m *Manager) Setup(opts SetupOptions) (int, error) {
	ctx, span := m.startSpan("droidmanager.Setup",
		attribute.String("serial", opts.Serial),
		attribute.String("package", opts.App.Package),
	)
	defer span.End()
	d := m.handle(opts.Serial)
	err := device.Setup(ctx, d, opts.App.toDevice(), device.SetupOptions{
		HostPort:     opts.HostPort,
		BootTimeout:  opts.BootTimeout,
		ScreenSize:   opts.ScreenSize,
		Reinstall:    opts.Reinstall,
		ClearData:    opts.ClearData,
		Mode:         device.LaunchMode(opts.LaunchMode),
		AgentTimeout: opts.AgentTimeout,
	})
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	return d.AgentPort(), nil
}

// IsAgentRunning checks the agent started on serial.
func (m *Manager) IsAgentRunning(serial string) (bool, error) {
	ctx, span := m.startSpan("droidmanager.IsAgentRunning", attribute.String("serial", serial))
	defer span.End()
	return m.handle(serial).IsAgentRunning(ctx)
}

// Facts reads (and caches) the device's identity properties.
func (m *Manager) Facts(serial string) (Facts, error) {
	ctx, span := m.startSpan("droidmanager.Facts", attribute.String("serial", serial))
	defer span.End()
	d := m.handle(serial)
	var f Facts
	var err error
	if f.Model, err = d.Model(ctx); err != nil {
		return Facts{}, err
	}
	locale, err := d.Locale(ctx)
	if err != nil {
		return Facts{}, err
	}
	f.Locale = locale.String()
	if f.ScreenSize, err = d.ScreenSize(ctx); err != nil {
		return Facts{}, err
	}
	platform, err := d.TargetPlatform(ctx)
	if err != nil {
		return Facts{}, err
	}
	f.APILevel = platform.APILevel()
	f.Platform = platform.String()
	return f, nil
}

// FindFreePort finds a free local port for the agent forward.
func (m *Manager) FindFreePort(start, end int) (int, error) {
	return device.FindFreePort(start, end)
}
