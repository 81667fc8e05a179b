// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package device

import (
	"context"
	"fmt"
	"path"
	"strings"
)

const (
	multiUserStorageRoot = "/storage/emulated/0"
	legacyStorageRoot    = "/storage/emulated/legacy"

	ExtensionDexName = "extension.dex"
	CrashLogName     = "app_crash.log"
)

// ExternalStorageDir rewrites the multi-user external storage root to the legacy
// single-user root on platforms below API 23. Other paths are returned unchanged.
func ExternalStorageDir(externalStoragePath string, platform TargetPlatform) string {
	if platform < Android23 && strings.Contains(externalStoragePath, multiUserStorageRoot) {
		rewritten := strings.Replace(externalStoragePath, multiUserStorageRoot, legacyStorageRoot, 1)
		if i := strings.Index(rewritten, legacyStorageRoot); i >= 0 {
			rewritten = rewritten[:i+len(legacyStorageRoot)]
		}
		logEvent(Env{}, "converted external storage directory", "from", externalStoragePath, "to", rewritten)
		return rewritten
	}
	return externalStoragePath
}

// ExtensionDex is where an extension artifact lives on the device.
func ExtensionDex(externalStoragePath string, platform TargetPlatform) string {
	return path.Join(ExternalStorageDir(externalStoragePath, platform), ExtensionDexName)
}

// CrashLog is where the agent writes application crash reports on the device.
func CrashLog(externalStoragePath string, platform TargetPlatform) string {
	return path.Join(ExternalStorageDir(externalStoragePath, platform), CrashLogName)
}

// StorageRoot resolves the device's external storage root, applying the legacy rewrite for
// the device's platform level.
func (d *AndroidDevice) StorageRoot(ctx context.Context) (string, error) {
	out, err := d.adb(ctx, "shell", "echo", "$EXTERNAL_STORAGE")
	if err != nil {
		return "", fmt.Errorf("read external storage path: %w", err)
	}
	root := strings.TrimSpace(normalizeProp(out))
	if root == "" {
		root = multiUserStorageRoot
	}
	platform, err := d.TargetPlatform(ctx)
	if err != nil {
		return "", err
	}
	return ExternalStorageDir(root, platform), nil
}
