// Package server provides HTTP server setup and initialization.
//
// This package orchestrates all components:
//   - HTTP routing with Gin framework
//   - Middleware stack (metrics, CORS, rate limiting, recovery)
//   - Isolate subprocess orchestrator
//   - API description provider
//
// Server Lifecycle:
//  1. Load configuration from environment
//  2. Initialize logger and metrics
//  3. Wire the orchestrator and description provider
//  4. Setup HTTP routes and middleware
//  5. Start HTTP server
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	srv := server.New(cfg)
//	if err := srv.Run(); err != nil {
//	    log.Fatal(err)
//	}
package server
