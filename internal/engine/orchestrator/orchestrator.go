// Package orchestrator spawns one isolate subprocess per script execution
// and classifies subprocess-level failure distinctly from in-sandbox
// failure.
//
// The orchestrator's error channel is strictly separate from the output
// envelope: a non-nil error means the sandbox itself failed to run
// (ProcessSpawnError, ProcessTimeout, OutputParseError); a failure envelope
// means the script ran and failed, and is passed through untouched.
package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/scriptbridge/scriptbridge/internal/infrastructure/logging"
	"github.com/scriptbridge/scriptbridge/internal/shared/types"
)

// Class identifies an orchestrator-level failure.
type Class string

const (
	ClassSpawn       Class = "ProcessSpawnError"
	ClassTimeout     Class = "ProcessTimeout"
	ClassOutputParse Class = "OutputParseError"
)

// minHeadroom keeps the outer timeout strictly greater than the in-isolate
// limit, covering process startup and teardown.
const minHeadroom = 2 * time.Second

// pipeDrainDelay bounds how long Wait may block on unclosed stdio pipes
// after the child exits or the deadline fires.
const pipeDrainDelay = time.Second

// ProcessError is an orchestrator-level failure: the sandbox never produced
// a valid script-level result.
type ProcessError struct {
	Class Class
	Err   error
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf("%s: %v", e.Class, e.Err)
}

func (e *ProcessError) Unwrap() error {
	return e.Err
}

// Config defines orchestrator configuration.
type Config struct {
	Binary        string        // isolate binary path or name resolved via PATH
	OuterTimeout  time.Duration // must exceed the in-isolate limit; raised if it does not
	MaxConcurrent int           // concurrent subprocess cap; zero means unlimited
}

// Orchestrator runs execution requests in isolate subprocesses.
type Orchestrator struct {
	cfg    Config
	logger *logging.Logger
	sem    chan struct{}
}

// New creates an orchestrator. A nil logger disables diagnostics.
func New(cfg Config, logger *logging.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.NewNop()
	}
	var sem chan struct{}
	if cfg.MaxConcurrent > 0 {
		sem = make(chan struct{}, cfg.MaxConcurrent)
	}
	return &Orchestrator{cfg: cfg, logger: logger, sem: sem}
}

// Execute runs one request in a fresh subprocess: writes a single input
// envelope to stdin, reads a single output envelope from stdout. The
// returned error is non-nil only for orchestrator-level failures.
func (o *Orchestrator) Execute(ctx context.Context, req *types.ExecuteRequest) (*types.ExecuteResult, error) {
	req.ApplyDefaults()
	if err := req.Validate(); err != nil {
		return nil, &ProcessError{Class: ClassSpawn, Err: err}
	}

	if o.sem != nil {
		select {
		case o.sem <- struct{}{}:
			defer func() { <-o.sem }()
		case <-ctx.Done():
			return nil, &ProcessError{Class: ClassTimeout, Err: ctx.Err()}
		}
	}

	envelope, err := sonic.Marshal(req)
	if err != nil {
		return nil, &ProcessError{Class: ClassSpawn, Err: fmt.Errorf("encoding input envelope: %w", err)}
	}

	ctx, cancel := context.WithTimeout(ctx, o.outerTimeout(req))
	defer cancel()

	cmd := exec.CommandContext(ctx, o.cfg.Binary)
	cmd.Stdin = bytes.NewReader(envelope)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	// The deadline must bound the whole process tree, not just the direct
	// child: a grandchild inheriting the stdout pipe would otherwise keep
	// Run blocked long past the deadline. Start the child in its own
	// process group, kill the group on cancellation, and bound the pipe
	// drain after exit.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = pipeDrainDelay

	start := time.Now()
	runErr := cmd.Run()
	o.logger.Debug("isolate subprocess finished",
		zap.Duration("duration", time.Since(start)),
		zap.Int("stdout_bytes", stdout.Len()),
		zap.Error(runErr),
	)

	if ctx.Err() == context.DeadlineExceeded {
		return nil, &ProcessError{Class: ClassTimeout, Err: fmt.Errorf("subprocess exceeded outer timeout of %s", o.outerTimeout(req))}
	}

	// A parseable envelope wins even on a non-zero exit: the script-level
	// result is authoritative whenever the subprocess managed to produce one.
	if result, ok := decodeEnvelope(stdout.Bytes()); ok {
		return result, nil
	}

	if runErr != nil {
		return nil, &ProcessError{Class: ClassSpawn, Err: spawnError(o.cfg.Binary, runErr, stderr.String())}
	}
	return nil, &ProcessError{Class: ClassOutputParse, Err: fmt.Errorf("subprocess stdout is not a valid output envelope: %q", truncate(stdout.String(), 200))}
}

// outerTimeout returns the configured outer bound, raised when it does not
// strictly exceed the request's in-isolate limit.
func (o *Orchestrator) outerTimeout(req *types.ExecuteRequest) time.Duration {
	inner := time.Duration(req.TimeLimitMs) * time.Millisecond
	outer := o.cfg.OuterTimeout
	if outer <= inner {
		outer = inner + minHeadroom
	}
	return outer
}

// decodeEnvelope parses subprocess stdout as an output envelope.
func decodeEnvelope(data []byte) (*types.ExecuteResult, bool) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, false
	}
	var result types.ExecuteResult
	if err := sonic.Unmarshal(trimmed, &result); err != nil {
		return nil, false
	}
	// A failure envelope without an error message is not a real envelope
	if !result.Success && result.Error == "" {
		return nil, false
	}
	return &result, true
}

// spawnError builds an actionable error for a subprocess that never
// produced output.
func spawnError(binary string, runErr error, stderr string) error {
	if errors.Is(runErr, exec.ErrNotFound) || strings.Contains(runErr.Error(), "executable file not found") {
		return fmt.Errorf("isolate binary %q not found; build it with `go build ./cmd/isolate` and put it on PATH", binary)
	}
	if stderr != "" {
		return fmt.Errorf("%w: %s", runErr, truncate(strings.TrimSpace(stderr), 200))
	}
	return runErr
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
