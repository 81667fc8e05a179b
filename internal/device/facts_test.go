// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package device

import (
	"context"
	"errors"
	"testing"

	"github.com/containerd/errdefs"
)

const dumpsysDisplay = `DISPLAY MANAGER (dumpsys display)
  mOnlyCode=false
  mDisplayDevices:
    mDefaultViewport=DisplayViewport{valid=true}
  Display Devices: size=1
  DisplayDeviceInfo{"Built-in Screen": uniqueId="local:0", 1080 x 2400, modeId 1}
    mPhys=PhysicalDisplayInfo{1080 x 2400, 60.000004 fps, density 2.625, 420.0 x 420.0 dpi, secure true, appVsyncOffset 1000000}
    mPhys=PhysicalDisplayInfo{720 x 1280, 60.0 fps, density 2.0}
`

func TestModelIsReadOnce(t *testing.T) {
	exec := newFakeExecutor().on("shell getprop ro.product.model", ok("Nexus 5\r\n"))
	d := newTestDevice(t, exec)

	for i := 0; i < 3; i++ {
		model, err := d.Model(context.Background())
		if err != nil {
			t.Fatalf("Model returned error: %v", err)
		}
		if model != "Nexus 5" {
			t.Fatalf("expected Nexus 5, got %q", model)
		}
	}
	if n := exec.count("ro.product.model"); n != 1 {
		t.Fatalf("expected one bridge call, got %d", n)
	}
}

func TestModelFailureIsNotCached(t *testing.T) {
	exec := newFakeExecutor().on("shell getprop ro.product.model",
		fail(errors.New("device offline")),
		ok("Pixel 6\n"),
	)
	d := newTestDevice(t, exec)

	if _, err := d.Model(context.Background()); err == nil {
		t.Fatal("expected first read to fail")
	}
	model, err := d.Model(context.Background())
	if err != nil {
		t.Fatalf("second read returned error: %v", err)
	}
	if model != "Pixel 6" {
		t.Fatalf("expected Pixel 6, got %q", model)
	}
}

func TestLocaleCombinesLanguageAndCountry(t *testing.T) {
	exec := newFakeExecutor().
		on("shell getprop persist.sys.language", ok("en\r\n")).
		on("shell getprop persist.sys.country", ok("us\r\n"))
	d := newTestDevice(t, exec)

	locale, err := d.Locale(context.Background())
	if err != nil {
		t.Fatalf("Locale returned error: %v", err)
	}
	if locale.String() != "en_US" {
		t.Fatalf("expected en_US, got %q", locale.String())
	}
	if _, err := d.Locale(context.Background()); err != nil {
		t.Fatalf("Locale returned error: %v", err)
	}
	if n := exec.count("persist.sys.language"); n != 1 {
		t.Fatalf("expected language to be read once, got %d", n)
	}
}

func TestLocalePartialReadIsNotCached(t *testing.T) {
	exec := newFakeExecutor().
		on("shell getprop persist.sys.language", ok("de")).
		on("shell getprop persist.sys.country", fail(errors.New("closed")), ok("DE"))
	d := newTestDevice(t, exec)

	if _, err := d.Locale(context.Background()); err == nil {
		t.Fatal("expected failure when the country read fails")
	}
	locale, err := d.Locale(context.Background())
	if err != nil {
		t.Fatalf("Locale returned error: %v", err)
	}
	if locale.String() != "de_DE" {
		t.Fatalf("expected de_DE, got %q", locale.String())
	}
	if n := exec.count("persist.sys.language"); n != 2 {
		t.Fatalf("expected both properties to be re-read, got %d language reads", n)
	}
}

func TestLocaleWithoutCountry(t *testing.T) {
	if got := (Locale{Language: "FR"}).String(); got != "fr" {
		t.Fatalf("expected fr, got %q", got)
	}
}

func TestScreenSizeParsesFirstPhysicalDisplay(t *testing.T) {
	exec := newFakeExecutor().on("shell dumpsys display", ok(dumpsysDisplay))
	d := newTestDevice(t, exec)

	size, err := d.ScreenSize(context.Background())
	if err != nil {
		t.Fatalf("ScreenSize returned error: %v", err)
	}
	if size != "1080x2400" {
		t.Fatalf("expected 1080x2400, got %q", size)
	}
	if !d.ScreenSizeMatches(context.Background(), "1080x2400") {
		t.Fatal("expected exact size to match")
	}
	if d.ScreenSizeMatches(context.Background(), "720x1280") {
		t.Fatal("expected other size not to match")
	}
	if n := exec.count("dumpsys display"); n != 1 {
		t.Fatalf("expected dumpsys to run once, got %d", n)
	}
}

func TestScreenSizeWithoutPhysicalDisplay(t *testing.T) {
	exec := newFakeExecutor().on("shell dumpsys display", ok("DISPLAY MANAGER (dumpsys display)\n"))
	d := newTestDevice(t, exec)

	_, err := d.ScreenSize(context.Background())
	if !errdefs.IsNotFound(err) {
		t.Fatalf("expected not-found error, got %v", err)
	}
	if d.ScreenSizeMatches(context.Background(), "1080x2400") {
		t.Fatal("expected no match when the size is unknown")
	}
}

func TestScreenSizeMatchesEmptyRequestSkipsDevice(t *testing.T) {
	exec := newFakeExecutor()
	d := newTestDevice(t, exec)

	if !d.ScreenSizeMatches(context.Background(), "") {
		t.Fatal("expected empty request to match")
	}
	if len(exec.commands()) != 0 {
		t.Fatalf("expected no bridge calls, got %v", exec.commands())
	}
}

func TestTargetPlatform(t *testing.T) {
	exec := newFakeExecutor().on("shell getprop ro.build.version.sdk", ok("23\r\n"))
	d := newTestDevice(t, exec)

	platform, err := d.TargetPlatform(context.Background())
	if err != nil {
		t.Fatalf("TargetPlatform returned error: %v", err)
	}
	if platform != Android23 {
		t.Fatalf("expected Android23, got %v", platform)
	}
	if _, err := d.TargetPlatform(context.Background()); err != nil {
		t.Fatalf("TargetPlatform returned error: %v", err)
	}
	if n := exec.count("ro.build.version.sdk"); n != 1 {
		t.Fatalf("expected one bridge call, got %d", n)
	}
}

func TestTargetPlatformNotANumber(t *testing.T) {
	exec := newFakeExecutor().on("shell getprop ro.build.version.sdk", ok("not-a-number"))
	d := newTestDevice(t, exec)

	_, err := d.TargetPlatform(context.Background())
	var platformErr *UnknownPlatformError
	if !errors.As(err, &platformErr) {
		t.Fatalf("expected UnknownPlatformError, got %v", err)
	}
	if platformErr.Value != "not-a-number" {
		t.Fatalf("expected raw value in error, got %q", platformErr.Value)
	}
	if !errdefs.IsInvalidArgument(err) {
		t.Fatalf("expected invalid argument classification, got %v", err)
	}
}
