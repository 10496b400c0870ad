package types

import (
	"fmt"

	"github.com/bytedance/sonic"
)

// Execution limits and defaults.
const (
	DefaultTimeLimitMs   = 5000
	DefaultMemoryLimitMB = 64

	// MaxCodeBytes bounds script text before an isolate is created.
	MaxCodeBytes = 128 * 1024
	// MaxContextBytes bounds the serialized context payload.
	MaxContextBytes = 2 * 1024 * 1024
)

// ExecuteRequest is the input envelope for one script execution.
// It is immutable once built; one request maps to exactly one isolate lifetime.
type ExecuteRequest struct {
	Code        string                 `json:"code"`
	Context     map[string]interface{} `json:"context,omitempty"`
	APIBaseURL  string                 `json:"apiBaseUrl,omitempty"` // empty disables the bridge
	Headers     map[string]string      `json:"headers,omitempty"`
	APIPrefix   string                 `json:"apiPrefix,omitempty"`
	TimeLimitMs int                    `json:"timeLimitMs,omitempty"`
	MemoryLimit int                    `json:"memoryLimit,omitempty"` // MB
}

// ApplyDefaults fills unset limits with engine defaults.
func (r *ExecuteRequest) ApplyDefaults() {
	if r.TimeLimitMs <= 0 {
		r.TimeLimitMs = DefaultTimeLimitMs
	}
	if r.MemoryLimit <= 0 {
		r.MemoryLimit = DefaultMemoryLimitMB
	}
}

// Validate checks required fields and input size bounds.
func (r *ExecuteRequest) Validate() error {
	if r.Code == "" {
		return fmt.Errorf("code is required")
	}
	if len(r.Code) > MaxCodeBytes {
		return fmt.Errorf("code exceeds %d byte limit", MaxCodeBytes)
	}
	if r.Context != nil {
		data, err := sonic.Marshal(r.Context)
		if err != nil {
			return fmt.Errorf("context is not serializable: %w", err)
		}
		if len(data) > MaxContextBytes {
			return fmt.Errorf("context exceeds %d byte limit", MaxContextBytes)
		}
	}
	return nil
}

// BridgeCall records one upstream API call made during an execution. The
// isolate runs in a subprocess, so call records ride the output envelope
// back to the parent, which feeds them into its metrics registry.
type BridgeCall struct {
	Method     string `json:"method"`
	Status     int    `json:"status"`
	DurationMs int64  `json:"durationMs"`
}

// ExecuteResult is the output envelope for one script execution.
type ExecuteResult struct {
	Success     bool
	Result      interface{}
	Error       string
	Logs        []string
	BridgeCalls []BridgeCall
}

// Ok creates a successful result.
func Ok(result interface{}, logs []string) *ExecuteResult {
	return &ExecuteResult{Success: true, Result: result, Logs: logs}
}

// Fail creates a failed result.
func Fail(message string, logs []string) *ExecuteResult {
	return &ExecuteResult{Success: false, Error: message, Logs: logs}
}

// MarshalJSON enforces the envelope shape: result is present iff success,
// error is present iff failure, logs is always present.
func (r *ExecuteResult) MarshalJSON() ([]byte, error) {
	logs := r.Logs
	if logs == nil {
		logs = []string{}
	}
	out := map[string]interface{}{
		"success": r.Success,
		"logs":    logs,
	}
	if r.Success {
		out["result"] = r.Result
	} else {
		out["error"] = r.Error
	}
	if len(r.BridgeCalls) > 0 {
		out["bridgeCalls"] = r.BridgeCalls
	}
	return sonic.Marshal(out)
}

// UnmarshalJSON decodes the wire envelope back into the struct form.
func (r *ExecuteResult) UnmarshalJSON(data []byte) error {
	var aux struct {
		Success     bool         `json:"success"`
		Result      interface{}  `json:"result"`
		Error       string       `json:"error"`
		Logs        []string     `json:"logs"`
		BridgeCalls []BridgeCall `json:"bridgeCalls"`
	}
	if err := sonic.Unmarshal(data, &aux); err != nil {
		return err
	}
	r.Success = aux.Success
	r.Result = aux.Result
	r.Error = aux.Error
	r.Logs = aux.Logs
	r.BridgeCalls = aux.BridgeCalls
	if r.Logs == nil {
		r.Logs = []string{}
	}
	return nil
}
