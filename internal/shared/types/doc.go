// Package types provides shared data structures for the script engine.
//
// This package defines the execution envelope exchanged between the
// orchestrator and the isolate subprocess, ensuring both sides agree on
// one wire contract.
//
// Core Types:
//   - ExecuteRequest: Input envelope (code, context, bridge configuration)
//   - ExecuteResult: Output envelope (success/result/error plus ordered logs)
//
// Envelope Rules:
//   - result is present iff success
//   - error is present iff not success
//   - logs is always present, possibly empty, ordered by emission time
//
// Example Usage:
//
//	req := &types.ExecuteRequest{Code: "1 + 1"}
//	req.ApplyDefaults()
package types
