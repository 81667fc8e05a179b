// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package device

import (
	"context"
	"net"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// fakeExecutor answers bridge commands from a table keyed by the arguments after the
// tool and serial, joined with spaces.
type fakeExecutor struct {
	mu      sync.Mutex
	calls   [][]string
	answers map[string][]fakeAnswer
}

type fakeAnswer struct {
	out string
	err error
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{answers: map[string][]fakeAnswer{}}
}

// on queues answers for a command; the last one repeats.
func (f *fakeExecutor) on(command string, answers ...fakeAnswer) *fakeExecutor {
	f.answers[command] = append(f.answers[command], answers...)
	return f
}

func (f *fakeExecutor) Execute(_ context.Context, argv []string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]string(nil), argv...))
	args := argv[1:]
	if len(args) >= 2 && args[0] == "-s" {
		args = args[2:]
	}
	key := strings.Join(args, " ")
	queue := f.answers[key]
	if len(queue) == 0 {
		return "", nil
	}
	answer := queue[0]
	if len(queue) > 1 {
		f.answers[key] = queue[1:]
	}
	return answer.out, answer.err
}

func (f *fakeExecutor) count(command string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, argv := range f.calls {
		if strings.HasSuffix(strings.Join(argv, " "), command) {
			n++
		}
	}
	return n
}

func (f *fakeExecutor) commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, argv := range f.calls {
		out[i] = strings.Join(argv, " ")
	}
	return out
}

func ok(out string) fakeAnswer { return fakeAnswer{out: out} }

func fail(err error) fakeAnswer { return fakeAnswer{err: err} }

func newTestDevice(t *testing.T, exec Executor) *AndroidDevice {
	t.Helper()
	return NewAndroidDevice(Env{
		ADB:      "adb",
		Serial:   "emulator-5554",
		Executor: exec,
		Context:  context.Background(),
	})
}

// writeADBStub installs a shell script standing in for adb.
func writeADBStub(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "adb")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatalf("write adb script: %v", err)
	}
	return path
}

func serverPort(t *testing.T, srv *httptest.Server) int {
	t.Helper()
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse server url: %v", err)
	}
	_, portStr, err := net.SplitHostPort(u.Host)
	if err != nil {
		t.Fatalf("split host port: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("parse port: %v", err)
	}
	return port
}
