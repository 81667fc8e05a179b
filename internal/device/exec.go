// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package device

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os/exec"
	"sync"

	"github.com/containerd/errdefs"
)

// Executor runs a bridge command line and returns its captured output.
// argv[0] is the bridge tool; the rest are its arguments.
type Executor interface {
	Execute(ctx context.Context, argv []string) (string, error)
}

// Command builds a bridge argv, inserting "-s serial" right after the tool when a serial
// is configured.
func Command(adb, serial string, args ...string) []string {
	argv := make([]string, 0, len(args)+3)
	argv = append(argv, adb)
	if serial != "" {
		argv = append(argv, "-s", serial)
	}
	return append(argv, args...)
}

// LocalExecutor runs commands on this host.
type LocalExecutor struct {
	env Env
}

func NewLocalExecutor(env Env) *LocalExecutor {
	return &LocalExecutor{env: env}
}

func (l *LocalExecutor) Execute(ctx context.Context, argv []string) (string, error) {
	if len(argv) == 0 {
		return "", &ShellExecutionError{Err: errdefs.ErrInvalidArgument.WithMessage("empty command")}
	}
	if ctx == nil {
		ctx = context.Background()
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	var buf outputBuffer
	cmd.Stdout = &buf
	cmd.Stderr = io.MultiWriter(&buf, newCommandLogWriter(l.env, argv[0], argv[1:]))
	if err := cmd.Run(); err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
			err = fmt.Errorf("%w: %w", errdefs.ErrNotFound, err)
		}
		logEvent(l.env, "command failed", "command", argv[0], "argv", argv, "error", err.Error())
		return buf.String(), &ShellExecutionError{Argv: argv, Output: buf.String(), Err: err}
	}
	return buf.String(), nil
}

// outputBuffer collects stdout and stderr, which are copied by separate goroutines.
type outputBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *outputBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *outputBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
