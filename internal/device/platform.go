// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package device

import (
	"fmt"
	"strconv"
	"strings"
)

// TargetPlatform is an Android SDK level known to this tool.
type TargetPlatform int

const (
	Android10 TargetPlatform = 10 + iota
	Android11
	Android12
	Android13
	Android14
	Android15
	Android16
	Android17
	Android18
	Android19
	Android20
	Android21
	Android22
	Android23
	Android24
	Android25
	Android26
	Android27
	Android28
	Android29
	Android30
	Android31
	Android32
	Android33
	Android34
	Android35
	Android36
)

var platformNames = map[TargetPlatform]string{
	Android10: "GINGERBREAD_MR1",
	Android11: "HONEYCOMB",
	Android12: "HONEYCOMB_MR1",
	Android13: "HONEYCOMB_MR2",
	Android14: "ICE_CREAM_SANDWICH",
	Android15: "ICE_CREAM_SANDWICH_MR1",
	Android16: "JELLY_BEAN",
	Android17: "JELLY_BEAN_MR1",
	Android18: "JELLY_BEAN_MR2",
	Android19: "KITKAT",
	Android20: "KITKAT_WATCH",
	Android21: "LOLLIPOP",
	Android22: "LOLLIPOP_MR1",
	Android23: "M",
	Android24: "N",
	Android25: "N_MR1",
	Android26: "O",
	Android27: "O_MR1",
	Android28: "P",
	Android29: "Q",
	Android30: "R",
	Android31: "S",
	Android32: "S_V2",
	Android33: "TIRAMISU",
	Android34: "UPSIDE_DOWN_CAKE",
	Android35: "VANILLA_ICE_CREAM",
	Android36: "BAKLAVA",
}

// APILevel returns the SDK integer.
func (p TargetPlatform) APILevel() int { return int(p) }

func (p TargetPlatform) String() string {
	if name, ok := platformNames[p]; ok {
		return fmt.Sprintf("ANDROID%d (%s)", int(p), name)
	}
	return fmt.Sprintf("ANDROID%d", int(p))
}

// Known reports whether p belongs to the enumeration.
func (p TargetPlatform) Known() bool {
	_, ok := platformNames[p]
	return ok
}

// ParseTargetPlatform maps a raw ro.build.version.sdk value to a TargetPlatform.
func ParseTargetPlatform(raw string) (TargetPlatform, error) {
	value := strings.TrimSpace(raw)
	level, err := strconv.Atoi(value)
	if err != nil {
		return 0, &UnknownPlatformError{Value: value, Err: err}
	}
	platform := TargetPlatform(level)
	if !platform.Known() {
		return 0, &UnknownPlatformError{Value: value}
	}
	return platform, nil
}
