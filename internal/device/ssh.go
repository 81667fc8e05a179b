// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/containerd/errdefs"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// SSHExecutor runs bridge commands on a remote host that has the device attached.
// The connection is opened on first use and reused until Close.
type SSHExecutor struct {
	env    Env
	cfg    SSHConfig
	mu     sync.Mutex
	client *ssh.Client
}

func NewSSHExecutor(env Env) *SSHExecutor {
	return &SSHExecutor{env: env, cfg: env.SSH}
}

func (s *SSHExecutor) Execute(ctx context.Context, argv []string) (string, error) {
	if len(argv) == 0 {
		return "", &ShellExecutionError{Err: errdefs.ErrInvalidArgument.WithMessage("empty command")}
	}
	if ctx == nil {
		ctx = context.Background()
	}
	client, err := s.dial()
	if err != nil {
		return "", &ShellExecutionError{Argv: argv, Err: err}
	}
	session, err := client.NewSession()
	if err != nil {
		s.reset()
		return "", &ShellExecutionError{Argv: argv, Err: fmt.Errorf("ssh session: %w", err)}
	}
	defer session.Close()

	var buf outputBuffer
	session.Stdout = &buf
	session.Stderr = io.MultiWriter(&buf, newCommandLogWriter(s.env, argv[0], argv[1:]))

	done := make(chan error, 1)
	go func() { done <- session.Run(quoteArgv(argv)) }()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		_ = session.Close()
		// Run returns once the output copiers stopped writing to buf.
		<-done
		out := buf.String()
		return out, &ShellExecutionError{Argv: argv, Output: out, Err: ctx.Err()}
	case err := <-done:
		if err != nil {
			var exitErr *ssh.ExitError
			if errors.As(err, &exitErr) && exitErr.ExitStatus() == 127 {
				err = fmt.Errorf("%w: %w", errdefs.ErrNotFound, err)
			}
			logEvent(s.env, "command failed", "command", argv[0], "host", s.cfg.Host, "error", err.Error())
			return buf.String(), &ShellExecutionError{Argv: argv, Output: buf.String(), Err: err}
		}
		return buf.String(), nil
	}
}

// Close releases the underlying SSH connection.
func (s *SSHExecutor) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	return err
}

func (s *SSHExecutor) reset() {
	_ = s.Close()
}

func (s *SSHExecutor) dial() (*ssh.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		return s.client, nil
	}
	config, err := s.clientConfig()
	if err != nil {
		return nil, err
	}
	addr := s.cfg.Host
	if _, _, splitErr := net.SplitHostPort(addr); splitErr != nil {
		addr = net.JoinHostPort(addr, "22")
	}
	client, err := ssh.Dial("tcp", addr, config)
	if err != nil {
		return nil, fmt.Errorf("%w: ssh dial %s: %w", errdefs.ErrUnavailable, addr, err)
	}
	logEvent(s.env, "ssh connected", "host", addr, "user", config.User)
	s.client = client
	return client, nil
}

func (s *SSHExecutor) clientConfig() (*ssh.ClientConfig, error) {
	if s.cfg.Host == "" {
		return nil, errdefs.ErrInvalidArgument.WithMessage("ssh host is not configured")
	}
	key, err := os.ReadFile(s.cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("read ssh key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("parse ssh key %s: %w", s.cfg.KeyFile, err)
	}
	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if !s.cfg.Insecure {
		hostKeyCallback, err = knownhosts.New(s.cfg.KnownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("load known hosts: %w", err)
		}
	}
	return &ssh.ClientConfig{
		User:            s.cfg.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         10 * time.Second,
	}, nil
}

// quoteArgv renders argv as a POSIX shell command line.
func quoteArgv(argv []string) string {
	quoted := make([]string, len(argv))
	for i, arg := range argv {
		quoted[i] = shellQuote(arg)
	}
	return strings.Join(quoted, " ")
}

func shellQuote(arg string) string {
	if arg == "" {
		return "''"
	}
	safe := true
	for _, r := range arg {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' ||
			strings.ContainsRune("-_./:=@%+,", r)) {
			safe = false
			break
		}
	}
	if safe {
		return arg
	}
	return "'" + strings.ReplaceAll(arg, "'", `'\''`) + "'"
}
