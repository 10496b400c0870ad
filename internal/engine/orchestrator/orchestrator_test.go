package orchestrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scriptbridge/scriptbridge/internal/shared/types"
)

// stubBinary writes an executable shell script standing in for the isolate
// binary.
func stubBinary(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "isolate-stub")
	err := os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755)
	require.NoError(t, err)
	return path
}

func newTestOrchestrator(binary string) *Orchestrator {
	return New(Config{Binary: binary, OuterTimeout: 10 * time.Second}, nil)
}

func TestExecuteSuccessEnvelope(t *testing.T) {
	bin := stubBinary(t, `cat > /dev/null
echo '{"success":true,"result":2,"logs":["hi"]}'`)

	result, err := newTestOrchestrator(bin).Execute(context.Background(), &types.ExecuteRequest{Code: "1 + 1"})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, float64(2), result.Result)
	assert.Equal(t, []string{"hi"}, result.Logs)
}

func TestExecuteFailureEnvelopePassesThrough(t *testing.T) {
	bin := stubBinary(t, `cat > /dev/null
echo '{"success":false,"error":"TimeoutError: execution time limit exceeded","logs":[]}'`)

	result, err := newTestOrchestrator(bin).Execute(context.Background(), &types.ExecuteRequest{Code: "while(true){}"})
	require.NoError(t, err, "script-level failure is not an orchestrator failure")
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "TimeoutError")
}

func TestExecuteEnvelopeWinsOverNonZeroExit(t *testing.T) {
	bin := stubBinary(t, `cat > /dev/null
echo '{"success":false,"error":"boom","logs":[]}'
exit 3`)

	result, err := newTestOrchestrator(bin).Execute(context.Background(), &types.ExecuteRequest{Code: "x"})
	require.NoError(t, err)
	assert.Equal(t, "boom", result.Error)
}

func TestExecuteBinaryNotFound(t *testing.T) {
	result, err := newTestOrchestrator("scriptbridge-isolate-does-not-exist").Execute(context.Background(), &types.ExecuteRequest{Code: "1"})
	assert.Nil(t, result)

	var perr *ProcessError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ClassSpawn, perr.Class)
	assert.Contains(t, perr.Error(), "not found")
	assert.Contains(t, perr.Error(), "cmd/isolate")
}

func TestExecuteCrashWithStderr(t *testing.T) {
	bin := stubBinary(t, `cat > /dev/null
echo 'isolate panicked' >&2
exit 1`)

	_, err := newTestOrchestrator(bin).Execute(context.Background(), &types.ExecuteRequest{Code: "1"})
	var perr *ProcessError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ClassSpawn, perr.Class)
	assert.Contains(t, perr.Error(), "isolate panicked")
}

func TestExecuteGarbageOutput(t *testing.T) {
	bin := stubBinary(t, `cat > /dev/null
echo 'not json at all'`)

	_, err := newTestOrchestrator(bin).Execute(context.Background(), &types.ExecuteRequest{Code: "1"})
	var perr *ProcessError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ClassOutputParse, perr.Class)
	assert.Contains(t, perr.Error(), "not a valid output envelope")
}

func TestExecuteEmptyFailureEnvelopeIsParseError(t *testing.T) {
	bin := stubBinary(t, `cat > /dev/null
echo '{}'`)

	_, err := newTestOrchestrator(bin).Execute(context.Background(), &types.ExecuteRequest{Code: "1"})
	var perr *ProcessError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ClassOutputParse, perr.Class)
}

func TestExecuteOuterTimeout(t *testing.T) {
	bin := stubBinary(t, `sleep 30`)

	o := New(Config{Binary: bin, OuterTimeout: 300 * time.Millisecond}, nil)
	start := time.Now()
	_, err := o.Execute(context.Background(), &types.ExecuteRequest{Code: "1", TimeLimitMs: 50})

	var perr *ProcessError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ClassTimeout, perr.Class)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestExecuteOrphanedChildDoesNotBlock(t *testing.T) {
	// A background child inherits the stdout pipe and outlives the stub.
	// The envelope must still come back promptly instead of waiting for
	// the grandchild to release the pipe.
	bin := stubBinary(t, `sleep 30 &
cat > /dev/null
echo '{"success":true,"result":7,"logs":[]}'`)

	o := New(Config{Binary: bin, OuterTimeout: 10 * time.Second}, nil)
	start := time.Now()
	result, err := o.Execute(context.Background(), &types.ExecuteRequest{Code: "7"})

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestExecuteInvalidRequest(t *testing.T) {
	_, err := newTestOrchestrator("unused").Execute(context.Background(), &types.ExecuteRequest{})
	var perr *ProcessError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ClassSpawn, perr.Class)
}

func TestOuterTimeoutRaisedAboveInnerLimit(t *testing.T) {
	o := New(Config{Binary: "x", OuterTimeout: time.Second}, nil)
	req := &types.ExecuteRequest{TimeLimitMs: 5000}
	assert.Equal(t, 7*time.Second, o.outerTimeout(req))

	req = &types.ExecuteRequest{TimeLimitMs: 100}
	assert.Equal(t, time.Second, o.outerTimeout(req))
}

func TestProcessErrorUnwrap(t *testing.T) {
	inner := errors.New("root cause")
	perr := &ProcessError{Class: ClassSpawn, Err: inner}
	assert.ErrorIs(t, perr, inner)
}
