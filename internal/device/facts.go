// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package device

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/containerd/errdefs"
	"go.opentelemetry.io/otel/attribute"
)

// Locale is the device language/country pair.
type Locale struct {
	Language string `json:"language"`
	Country  string `json:"country"`
}

func (l Locale) String() string {
	lang := strings.ToLower(l.Language)
	if l.Country == "" {
		return lang
	}
	return lang + "_" + strings.ToUpper(l.Country)
}

// Facts memoizes device properties. An entry is filled by the first successful read and
// never recomputed; failed reads leave it empty.
type Facts struct {
	model          *string
	locale         *Locale
	screenSize     *string
	targetPlatform *TargetPlatform
}

var physicalDisplayRe = regexp.MustCompile(`(?m)PhysicalDisplayInfo\{(.*?),`)

// normalizeProp drops line breaks from a getprop answer.
func normalizeProp(raw string) string {
	return strings.NewReplacer("\r", "", "\n", "").Replace(raw)
}

// parseScreenSize extracts the first "W x H" from dumpsys display output, spaces removed.
func parseScreenSize(output string) (string, bool) {
	m := physicalDisplayRe.FindStringSubmatch(output)
	if m == nil {
		return "", false
	}
	return strings.ReplaceAll(m[1], " ", ""), true
}

func (d *AndroidDevice) getProp(ctx context.Context, key string) (string, error) {
	out, err := d.adb(ctx, "shell", "getprop", key)
	if err != nil {
		return "", err
	}
	return normalizeProp(out), nil
}

func (d *AndroidDevice) Model(ctx context.Context) (string, error) {
	if d.facts.model != nil {
		return *d.facts.model, nil
	}
	model, err := d.getProp(ctx, "ro.product.model")
	if err != nil {
		return "", fmt.Errorf("read model: %w", err)
	}
	d.facts.model = &model
	return model, nil
}

func (d *AndroidDevice) Locale(ctx context.Context) (Locale, error) {
	if d.facts.locale != nil {
		return *d.facts.locale, nil
	}
	language, err := d.getProp(ctx, "persist.sys.language")
	if err != nil {
		return Locale{}, fmt.Errorf("read language: %w", err)
	}
	country, err := d.getProp(ctx, "persist.sys.country")
	if err != nil {
		return Locale{}, fmt.Errorf("read country: %w", err)
	}
	locale := Locale{Language: language, Country: country}
	d.facts.locale = &locale
	return locale, nil
}

func (d *AndroidDevice) ScreenSize(ctx context.Context) (string, error) {
	if d.facts.screenSize != nil {
		return *d.facts.screenSize, nil
	}
	ctx, span := startSpan(ctx, d.env, "device.ScreenSize")
	defer span.End()
	out, err := d.adb(ctx, "shell", "dumpsys", "display")
	if err != nil {
		recordSpanError(span, err)
		return "", fmt.Errorf("dumpsys display: %w", err)
	}
	size, ok := parseScreenSize(out)
	if !ok {
		err := errdefs.ErrNotFound.WithMessage("no PhysicalDisplayInfo in dumpsys display output")
		recordSpanError(span, err)
		return "", err
	}
	span.SetAttributes(attribute.String("screen_size", size))
	d.facts.screenSize = &size
	return size, nil
}

// ScreenSizeMatches treats an empty request as "any size"; otherwise the memoized size must
// equal requested exactly.
func (d *AndroidDevice) ScreenSizeMatches(ctx context.Context, requested string) bool {
	if requested == "" {
		return true
	}
	size, err := d.ScreenSize(ctx)
	if err != nil {
		return false
	}
	return size == requested
}

func (d *AndroidDevice) TargetPlatform(ctx context.Context) (TargetPlatform, error) {
	if d.facts.targetPlatform != nil {
		return *d.facts.targetPlatform, nil
	}
	raw, err := d.getProp(ctx, "ro.build.version.sdk")
	if err != nil {
		return 0, fmt.Errorf("read sdk level: %w", err)
	}
	platform, err := ParseTargetPlatform(raw)
	if err != nil {
		return 0, err
	}
	d.facts.targetPlatform = &platform
	return platform, nil
}
