// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package device

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/containerd/errdefs"
)

func TestAppValidate(t *testing.T) {
	if err := testApp.Validate(); err != nil {
		t.Fatalf("expected valid app, got %v", err)
	}
	err := App{Path: "app.apk"}.Validate()
	if !errdefs.IsInvalidArgument(err) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
	for _, want := range []string{"absolute", "package", "main activity"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in %v", want, err)
		}
	}
}

func TestAppHumanSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.apk")
	if err := os.WriteFile(path, make([]byte, 2048), 0o644); err != nil {
		t.Fatalf("write apk: %v", err)
	}
	app := App{Path: path}
	if app.SizeBytes() != 2048 {
		t.Fatalf("expected 2048 bytes, got %d", app.SizeBytes())
	}
	if got := app.HumanSize(); got != "2.048kB" {
		t.Fatalf("unexpected human size %q", got)
	}
	if got := (App{Path: filepath.Join(t.TempDir(), "missing.apk")}).HumanSize(); got != "unknown" {
		t.Fatalf("expected unknown size, got %q", got)
	}
}
