// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/containerd/errdefs"
	"go.opentelemetry.io/otel/attribute"

	"github.com/forkbombeu/droidctl/internal/status"
)

var agentPollInterval = 250 * time.Millisecond

func (d *AndroidDevice) statusURL() string {
	return fmt.Sprintf("http://127.0.0.1:%d%s", d.agentPort, d.env.StatusPath)
}

// fetchStatus performs the status GET and returns the body of a 200 answer.
func (d *AndroidDevice) fetchStatus(ctx context.Context) (string, error) {
	if d.agentPort == 0 {
		return "", preconditionf("agent port is not set; start the agent first")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	url := d.statusURL()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", &LivenessCheckError{URL: url, Err: err}
	}
	resp, err := d.http.Do(req)
	if err != nil {
		return "", &LivenessCheckError{URL: url, Err: err}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &LivenessCheckError{URL: url, StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return "", &LivenessCheckError{
			URL:        url,
			StatusCode: resp.StatusCode,
			Err:        errors.New(http.StatusText(resp.StatusCode)),
		}
	}
	return string(body), nil
}

// IsAgentRunning queries the forwarded status endpoint once. It is true only for a 200 answer
// whose body carries the agent marker; transport failures and non-200 answers are
// returned as *LivenessCheckError.
func (d *AndroidDevice) IsAgentRunning(ctx context.Context) (bool, error) {
	ctx, span := startSpan(ctx, d.env, "device.IsAgentRunning", attribute.Int("host_port", d.agentPort))
	defer span.End()
	body, err := d.fetchStatus(ctx)
	if err != nil {
		recordSpanError(span, err)
		return false, err
	}
	running := strings.Contains(body, d.env.Marker)
	span.SetAttributes(attribute.Bool("running", running))
	if running {
		d.advance(StateVerified)
	}
	return running, nil
}

// AgentStatus returns the decoded status payload of a running agent.
func (d *AndroidDevice) AgentStatus(ctx context.Context) (status.Response, error) {
	body, err := d.fetchStatus(ctx)
	if err != nil {
		return status.Response{}, err
	}
	return status.Decode([]byte(body))
}

// WaitForAgent retries IsAgentRunning with exponential backoff until it reports true or
// timeout elapses. The last check error is returned on timeout.
func WaitForAgent(ctx context.Context, dev Device, timeout time.Duration) error {
	env := envOf(dev)
	ctx, span := startSpan(ctx, env, "device.WaitForAgent",
		attribute.Int("host_port", dev.AgentPort()),
		attribute.String("timeout", timeout.String()),
	)
	defer span.End()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = agentPollInterval
	policy.MaxInterval = 2 * time.Second

	attempts := 0
	_, err := backoff.Retry(ctx, func() (bool, error) {
		attempts++
		running, err := dev.IsAgentRunning(ctx)
		if err != nil {
			if errdefs.IsFailedPrecondition(err) {
				return false, backoff.Permanent(err)
			}
			return false, err
		}
		if !running {
			return false, fmt.Errorf("agent on port %d answered without %q", dev.AgentPort(), env.Marker)
		}
		return true, nil
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxElapsedTime(timeout),
		backoff.WithNotify(func(err error, next time.Duration) {
			logEvent(env, "agent not ready", "host_port", dev.AgentPort(), "retry_in", next.String(), "error", err.Error())
		}),
	)
	span.SetAttributes(attribute.Int("attempts", attempts))
	if err != nil {
		recordSpanError(span, err)
		return err
	}
	logEvent(env, "agent running", "host_port", dev.AgentPort(), "attempts", attempts)
	return nil
}
