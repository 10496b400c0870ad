// Package main is the entry point for the ScriptBridge tool server.
//
// The server exposes two tools to an agent runtime: execute a script
// against a live HTTP API, and query a flattened API description. Each
// script runs in its own isolate subprocess.
//
// Architecture:
//
//	Agent runtime → Tool server → isolate subprocess (goja VM)
//	                           → upstream HTTP API (host bridge)
//
// Configuration:
//   - Environment variables (12-factor)
//   - CLI flags (override env vars)
//
// Usage:
//
//	# Production mode
//	./scriptbridge -port 8700
//
//	# Development mode (colored logs, debug level)
//	./scriptbridge -dev
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
