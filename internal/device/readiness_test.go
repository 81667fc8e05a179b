// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package device

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func shortBootPoll(t *testing.T) {
	t.Helper()
	previous := bootPollInterval
	bootPollInterval = 10 * time.Millisecond
	t.Cleanup(func() { bootPollInterval = previous })
}

func TestIsDeviceReady(t *testing.T) {
	tests := []struct {
		name   string
		answer fakeAnswer
		want   bool
	}{
		{"stopped", ok("stopped\r\n"), true},
		{"running", ok("running\n"), false},
		{"empty", ok(""), false},
		{"bridge error", fail(errors.New("device offline")), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := newFakeExecutor().on("shell getprop init.svc.bootanim", tt.answer)
			d := newTestDevice(t, exec)
			if got := d.IsDeviceReady(context.Background()); got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
			if tt.want && d.State() != StateBooted {
				t.Fatalf("expected state booted, got %v", d.State())
			}
		})
	}
}

func TestWaitForBootReportsStages(t *testing.T) {
	shortBootPoll(t)
	exec := newFakeExecutor().on("shell getprop init.svc.bootanim",
		ok("running"),
		ok("running"),
		ok("stopped"),
	)
	d := newTestDevice(t, exec)

	var statuses []string
	err := WaitForBoot(context.Background(), d, 5*time.Second, func(status string, elapsed time.Duration) {
		_ = elapsed
		statuses = append(statuses, status)
	})
	if err != nil {
		t.Fatalf("WaitForBoot returned error: %v", err)
	}
	want := []string{"waiting_adb", "checking_bootanim", "checking_bootanim", "checking_bootanim", "boot_complete"}
	if strings.Join(statuses, ",") != strings.Join(want, ",") {
		t.Fatalf("expected %v, got %v", want, statuses)
	}
	if exec.count("wait-for-device") != 1 {
		t.Fatalf("expected wait-for-device before polling, got %v", exec.commands())
	}
}

func TestWaitForBootWithStubScript(t *testing.T) {
	shortBootPoll(t)
	adb := writeADBStub(t, "case \"$1\" in\n"+
		"  wait-for-device)\n"+
		"    exit 0\n"+
		"    ;;\n"+
		"  -s)\n"+
		"    echo \"stopped\"\n"+
		"    exit 0\n"+
		"    ;;\n"+
		"esac\n"+
		"exit 1\n")
	d := NewAndroidDevice(Env{ADB: adb, Serial: "emulator-5554", Context: context.Background()})

	if err := WaitForBoot(context.Background(), d, 5*time.Second, nil); err != nil {
		t.Fatalf("WaitForBoot returned error: %v", err)
	}
}

func TestWaitForBootTimeout(t *testing.T) {
	shortBootPoll(t)
	exec := newFakeExecutor().on("shell getprop init.svc.bootanim", ok("running"))
	d := newTestDevice(t, exec)

	err := WaitForBoot(context.Background(), d, 50*time.Millisecond, nil)
	if err == nil || !strings.Contains(err.Error(), "boot timeout") {
		t.Fatalf("expected boot timeout, got %v", err)
	}
}

func TestWaitForBootCancelled(t *testing.T) {
	shortBootPoll(t)
	exec := newFakeExecutor().on("shell getprop init.svc.bootanim", ok("running"))
	d := newTestDevice(t, exec)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(30*time.Millisecond, cancel)
	err := WaitForBoot(ctx, d, time.Minute, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
