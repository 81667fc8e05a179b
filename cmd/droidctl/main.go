// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/forkbombeu/droidctl/internal/config"
	core "github.com/forkbombeu/droidctl/internal/device"
	"github.com/forkbombeu/droidctl/internal/status"
	"github.com/forkbombeu/droidctl/internal/telemetry"
)

func main() {
	v := viper.New()
	var cfgFile string
	var env core.Env
	var shutdown telemetry.ShutdownFunc = func(context.Context) error { return nil }

	root := &cobra.Command{
		Use:           "droidctl",
		Short:         "Install, launch and supervise the selendroid agent on an Android device",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v, cfgFile)
			if err != nil {
				return err
			}
			if cfg.CorrelationID == "" {
				cfg.CorrelationID = uuid.NewString()
			}
			shutdown, err = telemetry.Setup(cmd.Context(), "droidctl", cfg.OTel.Endpoint)
			if err != nil {
				return fmt.Errorf("telemetry: %w", err)
			}
			env = cfg.Env(cmd.Context())
			return nil
		},
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, toml or json)")
	root.PersistentFlags().String("serial", "", "device serial (default: $ANDROID_SERIAL or the only attached device)")
	root.PersistentFlags().String("adb", "", "path to adb")
	root.PersistentFlags().String("ssh-host", "", "run adb on this host over SSH")
	root.PersistentFlags().String("ssh-user", "", "SSH user")
	root.PersistentFlags().String("ssh-key", "", "SSH private key")
	root.PersistentFlags().Bool("ssh-insecure", false, "skip SSH host key verification")
	root.PersistentFlags().String("otel-endpoint", "", "OTLP/HTTP traces endpoint URL")
	root.PersistentFlags().String("launch-mode", "", "agent verification: wait or fire-and-forget")
	for key, flag := range map[string]string{
		"serial":            "serial",
		"adb":               "adb",
		"ssh.host":          "ssh-host",
		"ssh.user":          "ssh-user",
		"ssh.key":           "ssh-key",
		"ssh.insecure":      "ssh-insecure",
		"otel.endpoint":     "otel-endpoint",
		"agent.launch_mode": "launch-mode",
	} {
		_ = v.BindPFlag(key, root.PersistentFlags().Lookup(flag))
	}

	var opened []*core.AndroidDevice
	newDevice := func() *core.AndroidDevice {
		d := core.NewAndroidDevice(env)
		opened = append(opened, d)
		return d
	}

	// devices
	var devicesJSON bool
	devicesCmd := &cobra.Command{
		Use:   "devices",
		Short: "List devices attached to adb",
		RunE: func(cmd *cobra.Command, args []string) error {
			ls, err := core.ListDevices(cmd.Context(), env)
			if err != nil {
				return err
			}
			if devicesJSON {
				return printJSON(ls)
			}
			if len(ls) == 0 {
				fmt.Println("(no devices)")
				return nil
			}
			for _, d := range ls {
				fmt.Printf("%-24s %s\n", d.Serial, d.State)
			}
			return nil
		},
	}
	devicesCmd.Flags().BoolVar(&devicesJSON, "json", false, "output JSON")
	root.AddCommand(devicesCmd)

	// ready
	readyCmd := &cobra.Command{
		Use:   "ready",
		Short: "Check once whether the device finished booting (exit 1 if not)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !newDevice().IsDeviceReady(cmd.Context()) {
				return errors.New("device not ready")
			}
			fmt.Println("ready")
			return nil
		},
	}
	root.AddCommand(readyCmd)

	// wait-boot
	var bootTimeout time.Duration
	waitBootCmd := &cobra.Command{
		Use:   "wait-boot",
		Short: "Poll until the boot animation stopped",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := core.WaitForBoot(cmd.Context(), newDevice(), bootTimeout, func(stage string, elapsed time.Duration) {
				fmt.Fprintf(os.Stderr, "%-18s %s\n", stage, elapsed.Round(time.Millisecond))
			})
			if err != nil {
				return err
			}
			fmt.Println("booted")
			return nil
		},
	}
	waitBootCmd.Flags().DurationVar(&bootTimeout, "timeout", 3*time.Minute, "boot timeout")
	root.AddCommand(waitBootCmd)

	// install / uninstall / clear
	var appPath, appPackage, appActivity string
	appFlags := func(c *cobra.Command) {
		c.Flags().StringVar(&appPath, "apk", "", "absolute path to the APK")
		c.Flags().StringVar(&appPackage, "package", "", "application package id")
		c.Flags().StringVar(&appActivity, "activity", "", "main activity")
	}
	app := func() core.App {
		return core.App{Path: appPath, Package: appPackage, MainActivity: appActivity}
	}

	installCmd := &cobra.Command{
		Use:   "install",
		Short: "Install (replace) an APK",
		RunE: func(cmd *cobra.Command, args []string) error {
			if appPath == "" {
				return errors.New("--apk is required")
			}
			a := app()
			if err := newDevice().Install(cmd.Context(), a); err != nil {
				return err
			}
			fmt.Printf("Installed %s (%s)\n", a.Path, a.HumanSize())
			return nil
		},
	}
	appFlags(installCmd)
	root.AddCommand(installCmd)

	uninstallCmd := &cobra.Command{
		Use:   "uninstall",
		Short: "Uninstall a package",
		RunE: func(cmd *cobra.Command, args []string) error {
			if appPackage == "" {
				return errors.New("--package is required")
			}
			if err := newDevice().Uninstall(cmd.Context(), app()); err != nil {
				return err
			}
			fmt.Printf("Uninstalled %s\n", appPackage)
			return nil
		},
	}
	appFlags(uninstallCmd)
	root.AddCommand(uninstallCmd)

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear a package's user data",
		RunE: func(cmd *cobra.Command, args []string) error {
			if appPackage == "" {
				return errors.New("--package is required")
			}
			if err := newDevice().ClearUserData(cmd.Context(), app()); err != nil {
				return err
			}
			fmt.Printf("Cleared %s\n", appPackage)
			return nil
		},
	}
	appFlags(clearCmd)
	root.AddCommand(clearCmd)

	// start-agent
	var agentPort int
	startAgentCmd := &cobra.Command{
		Use:   "start-agent",
		Short: "Launch the agent instrumentation and forward its port (no verification)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if appActivity == "" {
				return errors.New("--activity is required")
			}
			d := newDevice()
			if err := d.StartAgent(cmd.Context(), app(), agentPort); err != nil {
				return err
			}
			fmt.Printf("Agent started, forwarded on 127.0.0.1:%d\n", d.AgentPort())
			return nil
		},
	}
	appFlags(startAgentCmd)
	startAgentCmd.Flags().IntVar(&agentPort, "port", 0, "host port (auto if omitted)")
	root.AddCommand(startAgentCmd)

	// forward
	var forwardPort int
	forwardCmd := &cobra.Command{
		Use:   "forward",
		Short: "Forward a host port to the agent port on the device",
		RunE: func(cmd *cobra.Command, args []string) error {
			if forwardPort <= 0 {
				return errors.New("--port is required")
			}
			if err := newDevice().ForwardPort(cmd.Context(), forwardPort); err != nil {
				return err
			}
			fmt.Printf("Forwarded tcp:%d -> tcp:%d\n", forwardPort, env.DevicePort)
			return nil
		},
	}
	forwardCmd.Flags().IntVar(&forwardPort, "port", 0, "host port")
	root.AddCommand(forwardCmd)

	// alive
	var alivePort int
	var aliveJSON bool
	aliveCmd := &cobra.Command{
		Use:   "alive",
		Short: "Query the agent status endpoint on a forwarded port",
		RunE: func(cmd *cobra.Command, args []string) error {
			if alivePort <= 0 {
				return errors.New("--port is required")
			}
			d := newDevice()
			if err := d.ForwardPort(cmd.Context(), alivePort); err != nil {
				return err
			}
			if err := d.AttachAgent(alivePort); err != nil {
				return err
			}
			running, err := d.IsAgentRunning(cmd.Context())
			if err != nil {
				return err
			}
			if aliveJSON {
				st, err := d.AgentStatus(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(st)
			}
			if !running {
				return errors.New("agent answered but did not identify itself")
			}
			fmt.Println("agent running")
			return nil
		},
	}
	aliveCmd.Flags().IntVar(&alivePort, "port", 0, "host port the agent is forwarded on")
	aliveCmd.Flags().BoolVar(&aliveJSON, "json", false, "print the status payload")
	root.AddCommand(aliveCmd)

	// facts
	var factsJSON bool
	factsCmd := &cobra.Command{
		Use:   "facts",
		Short: "Show model, locale, screen size and platform level",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			d := newDevice()
			model, err := d.Model(ctx)
			if err != nil {
				return err
			}
			locale, err := d.Locale(ctx)
			if err != nil {
				return err
			}
			screen, err := d.ScreenSize(ctx)
			if err != nil {
				return err
			}
			platform, err := d.TargetPlatform(ctx)
			if err != nil {
				return err
			}
			if factsJSON {
				return printJSON(map[string]any{
					"model":       model,
					"locale":      locale.String(),
					"screen_size": screen,
					"api_level":   platform.APILevel(),
					"platform":    platform.String(),
				})
			}
			fmt.Printf("Model:    %s\nLocale:   %s\nScreen:   %s\nPlatform: %s\n", model, locale, screen, platform)
			return nil
		},
	}
	factsCmd.Flags().BoolVar(&factsJSON, "json", false, "output JSON")
	root.AddCommand(factsCmd)

	// screen-matches
	screenMatchesCmd := &cobra.Command{
		Use:   "screen-matches [WxH]",
		Short: "Exit 0 if the screen size equals WxH (or no size is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			requested := ""
			if len(args) == 1 {
				requested = args[0]
			}
			if !newDevice().ScreenSizeMatches(cmd.Context(), requested) {
				return fmt.Errorf("screen size does not match %s", requested)
			}
			fmt.Println("match")
			return nil
		},
	}
	root.AddCommand(screenMatchesCmd)

	// storage-path
	var storagePath string
	var storageSDK int
	storageCmd := &cobra.Command{
		Use:   "storage-path",
		Short: "Resolve the external storage root (queries the device unless --path and --sdk are given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if storagePath != "" && storageSDK > 0 {
				fmt.Println(core.ExternalStorageDir(storagePath, core.TargetPlatform(storageSDK)))
				return nil
			}
			dir, err := newDevice().StorageRoot(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Println(dir)
			return nil
		},
	}
	storageCmd.Flags().StringVar(&storagePath, "path", "", "external storage path as reported by the device")
	storageCmd.Flags().IntVar(&storageSDK, "sdk", 0, "platform level")
	root.AddCommand(storageCmd)

	// setup
	var setupOpts core.SetupOptions
	var setupMode string
	setupCmd := &cobra.Command{
		Use:   "setup",
		Short: "Wait for boot → install → launch agent → forward → verify",
		RunE: func(cmd *cobra.Command, args []string) error {
			if appPath == "" || appPackage == "" || appActivity == "" {
				return errors.New("--apk, --package and --activity are required")
			}
			setupOpts.Mode = core.LaunchMode(setupMode)
			d := newDevice()
			if err := core.Setup(cmd.Context(), d, app(), setupOpts); err != nil {
				return err
			}
			fmt.Printf("Agent ready on 127.0.0.1:%d\n", d.AgentPort())
			return nil
		},
	}
	appFlags(setupCmd)
	setupCmd.Flags().IntVar(&setupOpts.HostPort, "port", 0, "host port (auto if omitted)")
	setupCmd.Flags().DurationVar(&setupOpts.BootTimeout, "boot-timeout", 3*time.Minute, "boot wait (0 = single check)")
	setupCmd.Flags().StringVar(&setupOpts.ScreenSize, "screen", "", "required screen size WxH")
	setupCmd.Flags().BoolVar(&setupOpts.Reinstall, "reinstall", false, "uninstall before installing")
	setupCmd.Flags().BoolVar(&setupOpts.ClearData, "clear", false, "clear app data after installing")
	setupCmd.Flags().StringVar(&setupMode, "mode", "", "wait or fire-and-forget (default from config)")
	setupCmd.Flags().DurationVar(&setupOpts.AgentTimeout, "agent-timeout", 0, "agent wait bound (default from config)")
	root.AddCommand(setupCmd)

	// serve-status
	var serveAddr string
	serveCmd := &cobra.Command{
		Use:   "serve-status",
		Short: "Serve a static agent status endpoint (simulated agent for testing)",
		RunE: func(cmd *cobra.Command, args []string) error {
			srv := &http.Server{
				Addr:              serveAddr,
				Handler:           status.NewMux(env.StatusPath, status.Default()),
				ReadHeaderTimeout: 5 * time.Second,
			}
			fmt.Printf("Serving %s on %s\n", env.StatusPath, serveAddr)
			return srv.ListenAndServe()
		},
	}
	serveCmd.Flags().StringVar(&serveAddr, "addr", "127.0.0.1:8080", "listen address")
	root.AddCommand(serveCmd)

	err := root.Execute()
	for _, d := range opened {
		_ = d.Close()
	}
	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if shutdownErr := shutdown(flushCtx); shutdownErr != nil {
		fmt.Fprintln(os.Stderr, "telemetry shutdown:", shutdownErr)
	}
	cancel()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
