// Package http exposes the two script tools over HTTP.
//
// Endpoints:
//   - POST /tools/execute: run a script, optionally against the live API
//   - POST /tools/query: run a read-only script against the API description
//   - GET  /health: liveness plus execution counters
//
// Script-level failures are returned as 200 with a failure envelope; only
// sandbox-level failures (spawn, outer timeout, unparseable output) map to
// 5xx statuses.
package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/scriptbridge/scriptbridge/internal/engine/orchestrator"
	"github.com/scriptbridge/scriptbridge/internal/engine/redact"
	"github.com/scriptbridge/scriptbridge/internal/infrastructure/config"
	"github.com/scriptbridge/scriptbridge/internal/infrastructure/logging"
	"github.com/scriptbridge/scriptbridge/internal/infrastructure/monitoring"
	"github.com/scriptbridge/scriptbridge/internal/shared/id"
	"github.com/scriptbridge/scriptbridge/internal/shared/types"
)

// DescriptionBinding is the context variable name under which the flattened
// API description is injected for query scripts.
const DescriptionBinding = "spec"

// maxRequestBytes bounds an execute request body: code plus context plus
// envelope overhead.
const maxRequestBytes = types.MaxCodeBytes + types.MaxContextBytes + 64*1024

// Executor runs one execution request to completion.
type Executor interface {
	Execute(ctx context.Context, req *types.ExecuteRequest) (*types.ExecuteResult, error)
}

// Descriptions supplies the prepared API description tree.
type Descriptions interface {
	Description(ctx context.Context) (map[string]interface{}, error)
}

// Handlers holds the tool endpoint handlers.
type Handlers struct {
	executor Executor
	specs    Descriptions
	api      config.APIConfig
	engine   config.EngineConfig
	metrics  *monitoring.Metrics
	logger   *logging.Logger
}

// NewHandlers creates the tool handlers. specs and metrics may be nil.
func NewHandlers(executor Executor, specs Descriptions, api config.APIConfig, engine config.EngineConfig, metrics *monitoring.Metrics, logger *logging.Logger) *Handlers {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Handlers{executor: executor, specs: specs, api: api, engine: engine, metrics: metrics, logger: logger}
}

// Execute runs a caller-authored script, with the bridge enabled when an API
// base URL is present in the request or the service configuration.
func (h *Handlers) Execute(c *gin.Context) {
	req, ok := h.bindRequest(c)
	if !ok {
		return
	}
	h.applyAPIDefaults(req)
	h.run(c, req)
}

// Query runs a read-only script against the flattened API description. The
// bridge is always disabled and any caller-supplied upstream settings are
// dropped.
func (h *Handlers) Query(c *gin.Context) {
	req, ok := h.bindRequest(c)
	if !ok {
		return
	}

	if h.specs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no API description configured"})
		return
	}
	tree, err := h.specs.Description(c.Request.Context())
	if err != nil {
		h.logger.Error("description load failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "API description unavailable"})
		return
	}
	if tree == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no API description configured"})
		return
	}

	req.APIBaseURL = ""
	req.APIPrefix = ""
	req.Headers = nil
	if req.Context == nil {
		req.Context = make(map[string]interface{}, 1)
	}
	req.Context[DescriptionBinding] = tree

	h.run(c, req)
}

// Health reports liveness and execution counters.
func (h *Handlers) Health(c *gin.Context) {
	body := gin.H{"status": "ok"}
	if h.metrics != nil {
		snap := h.metrics.GetSnapshot()
		body["uptime_seconds"] = int64(time.Since(h.metrics.StartTime()).Seconds())
		body["executions_total"] = snap.TotalExecutions
		body["executions_failed"] = snap.FailedExecutions
		body["bridge_calls_total"] = snap.TotalBridgeCalls
	}
	c.JSON(http.StatusOK, body)
}

func (h *Handlers) bindRequest(c *gin.Context) (*types.ExecuteRequest, bool) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxRequestBytes)

	var req types.ExecuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return nil, false
	}
	// Service-configured limits fill unset fields before the built-in
	// defaults apply. Explicit request values always win.
	if req.TimeLimitMs <= 0 {
		req.TimeLimitMs = h.engine.TimeLimitMs
	}
	if req.MemoryLimit <= 0 {
		req.MemoryLimit = h.engine.MemoryLimitMB
	}
	req.ApplyDefaults()
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}
	return &req, true
}

// applyAPIDefaults fills upstream settings from configuration when the
// request leaves them unset. Caller headers win over configured ones.
func (h *Handlers) applyAPIDefaults(req *types.ExecuteRequest) {
	if req.APIBaseURL == "" {
		req.APIBaseURL = h.api.BaseURL
	}
	if req.APIPrefix == "" {
		req.APIPrefix = h.api.Prefix
	}
	if len(h.api.Headers) > 0 {
		merged := make(map[string]string, len(h.api.Headers)+len(req.Headers))
		for k, v := range h.api.Headers {
			merged[k] = v
		}
		for k, v := range req.Headers {
			merged[k] = v
		}
		req.Headers = merged
	}
}

func (h *Handlers) run(c *gin.Context, req *types.ExecuteRequest) {
	execID := id.NewExecutionID()
	log := h.logger.With(zap.String("execution_id", string(execID)))
	log.Info("executing script",
		zap.Int("code_bytes", len(req.Code)),
		zap.Bool("bridge_enabled", req.APIBaseURL != ""),
	)

	var timer *monitoring.ExecutionTimer
	if h.metrics != nil {
		timer = monitoring.NewExecutionTimer(h.metrics)
	}

	result, err := h.executor.Execute(c.Request.Context(), req)

	if err != nil {
		status, outcome := classifyProcessError(err)
		if timer != nil {
			timer.Stop(outcome)
		}
		// Subprocess errors can carry stderr fragments, so they get the
		// same credential scrub as script output.
		msg := redact.String(err.Error())
		log.Error("sandbox failure", zap.String("error", msg))
		c.JSON(status, types.Fail(msg, nil))
		return
	}

	if timer != nil {
		timer.Stop(outcomeOf(result))
	}
	if h.metrics != nil {
		for _, call := range result.BridgeCalls {
			h.metrics.RecordBridgeCall(call.Method, call.Status, time.Duration(call.DurationMs)*time.Millisecond)
		}
	}
	log.Info("execution finished", zap.Bool("success", result.Success))
	c.JSON(http.StatusOK, result)
}

// classifyProcessError maps an orchestrator failure to an HTTP status and a
// metrics outcome.
func classifyProcessError(err error) (int, monitoring.Outcome) {
	var perr *orchestrator.ProcessError
	if errors.As(err, &perr) {
		switch perr.Class {
		case orchestrator.ClassTimeout:
			return http.StatusGatewayTimeout, monitoring.OutcomeProcessTimeout
		case orchestrator.ClassOutputParse:
			return http.StatusBadGateway, monitoring.OutcomeOutputParse
		}
	}
	return http.StatusInternalServerError, monitoring.OutcomeSpawnError
}

// outcomeOf derives the metrics outcome from a script-level result.
func outcomeOf(result *types.ExecuteResult) monitoring.Outcome {
	switch {
	case result.Success:
		return monitoring.OutcomeSuccess
	case strings.HasPrefix(result.Error, "TimeoutError"):
		return monitoring.OutcomeTimeout
	case strings.HasPrefix(result.Error, "MemoryLimitExceeded"):
		return monitoring.OutcomeMemoryExceeded
	default:
		return monitoring.OutcomeScriptError
	}
}
