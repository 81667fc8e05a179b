// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package device

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/containerd/errdefs"
	"github.com/docker/go-units"
)

// App describes an installable application artifact.
type App struct {
	Path         string `json:"path"`
	Package      string `json:"package"`
	MainActivity string `json:"main_activity"`
}

// Validate reports which descriptor fields are missing.
func (a App) Validate() error {
	var errs []error
	if a.Path == "" {
		errs = append(errs, errdefs.ErrInvalidArgument.WithMessage("app path is empty"))
	} else if !filepath.IsAbs(a.Path) {
		errs = append(errs, errdefs.ErrInvalidArgument.WithMessage("app path must be absolute: "+a.Path))
	}
	if a.Package == "" {
		errs = append(errs, errdefs.ErrInvalidArgument.WithMessage("app package is empty"))
	}
	if a.MainActivity == "" {
		errs = append(errs, errdefs.ErrInvalidArgument.WithMessage("app main activity is empty"))
	}
	return errors.Join(errs...)
}

// SizeBytes returns the artifact size, or -1 if it cannot be read.
func (a App) SizeBytes() int64 {
	st, err := os.Stat(a.Path)
	if err != nil {
		return -1
	}
	return st.Size()
}

// HumanSize formats the artifact size for logs.
func (a App) HumanSize() string {
	size := a.SizeBytes()
	if size < 0 {
		return "unknown"
	}
	return units.HumanSize(float64(size))
}
