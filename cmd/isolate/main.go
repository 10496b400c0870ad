package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/scriptbridge/scriptbridge/internal/engine/bridge"
	"github.com/scriptbridge/scriptbridge/internal/engine/isolate"
	"github.com/scriptbridge/scriptbridge/internal/engine/normalize"
	"github.com/scriptbridge/scriptbridge/internal/engine/redact"
	"github.com/scriptbridge/scriptbridge/internal/infrastructure/logging"
	"github.com/scriptbridge/scriptbridge/internal/shared/types"
)

// maxStdinBytes bounds the input envelope read.
const maxStdinBytes = types.MaxCodeBytes + types.MaxContextBytes + 64*1024

func main() {
	logger := logging.NewSubprocess(os.Getenv("LOG_LEVEL"))
	defer logger.Sync()

	result := run(logger)
	emit(result)
}

func run(logger *logging.Logger) *types.ExecuteResult {
	input, err := io.ReadAll(io.LimitReader(os.Stdin, maxStdinBytes))
	if err != nil {
		return types.Fail(fmt.Sprintf("reading input envelope: %v", err), nil)
	}

	var req types.ExecuteRequest
	if err := sonic.Unmarshal(input, &req); err != nil {
		return types.Fail(fmt.Sprintf("invalid input envelope: %v", err), nil)
	}
	req.ApplyDefaults()
	if err := req.Validate(); err != nil {
		return types.Fail(err.Error(), nil)
	}

	// Soft runtime ceiling; the watchdog interrupt fires before the
	// runtime itself would abort.
	debug.SetMemoryLimit(int64(req.MemoryLimit) << 20)

	opts := isolate.Options{
		TimeLimit:     time.Duration(req.TimeLimitMs) * time.Millisecond,
		MemoryLimitMB: req.MemoryLimit,
	}
	var callLog *bridge.CallLog
	if req.APIBaseURL != "" {
		client := bridge.New(bridge.Config{
			BaseURL: req.APIBaseURL,
			Prefix:  req.APIPrefix,
			Headers: req.Headers,
		})
		callLog = bridge.NewCallLog()
		client.SetRecorder(callLog)
		opts.Bridge = client
	}

	logger.Debug("running isolate",
		zap.Int("code_bytes", len(req.Code)),
		zap.Int("time_limit_ms", req.TimeLimitMs),
		zap.Int("memory_limit_mb", req.MemoryLimit),
		zap.Bool("bridge_enabled", opts.Bridge != nil),
	)

	prog := normalize.Normalize(req.Code)
	result := isolate.Execute(context.Background(), prog, req.Context, opts)
	if callLog != nil {
		result.BridgeCalls = callLog.Calls()
	}
	return redact.Result(result)
}

// emit writes the output envelope to stdout. The envelope is the only
// thing ever written there.
func emit(result *types.ExecuteResult) {
	data, err := sonic.Marshal(result)
	if err != nil {
		data, _ = sonic.Marshal(types.Fail(fmt.Sprintf("encoding output envelope: %v", err), nil))
	}
	os.Stdout.Write(data)
	os.Stdout.Write([]byte("\n"))
}
