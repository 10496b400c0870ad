package bridge

import (
	"sync"
	"time"

	"github.com/scriptbridge/scriptbridge/internal/shared/types"
)

// CallLog is a Recorder that accumulates one record per completed call.
// The isolate attaches the records to its output envelope so the parent
// process can feed its metrics registry.
type CallLog struct {
	mu    sync.Mutex
	calls []types.BridgeCall
}

// NewCallLog creates an empty call log.
func NewCallLog() *CallLog {
	return &CallLog{}
}

// RecordBridgeCall implements Recorder.
func (l *CallLog) RecordBridgeCall(method string, status int, duration time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, types.BridgeCall{
		Method:     method,
		Status:     status,
		DurationMs: duration.Milliseconds(),
	})
}

// Calls returns a copy of the recorded calls in completion order.
func (l *CallLog) Calls() []types.BridgeCall {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]types.BridgeCall(nil), l.calls...)
}
