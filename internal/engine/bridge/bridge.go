package bridge

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
)

// defaultHeaders is the fixed header set merged under caller-configured
// static headers.
var defaultHeaders = map[string]string{
	"Content-Type": "application/json",
	"Accept":       "application/json",
	"User-Agent":   "ScriptBridge/1.0",
}

// Config defines bridge configuration.
type Config struct {
	BaseURL string            // upstream API root, required
	Prefix  string            // optional path prefix, e.g. "/api"
	Headers map[string]string // caller-configured static headers, win on collision
	Timeout time.Duration     // per-call transport cap; zero means 30s
}

// Response is the resolved outcome of one bridge call. Exactly one of Body
// or Err is meaningful: Err non-empty marks a sanitized error shape.
type Response struct {
	Status int
	Body   interface{}
	Err    string
}

// Map renders the response in the shape scripts observe.
func (r Response) Map() map[string]interface{} {
	if r.Err != "" {
		return map[string]interface{}{"error": r.Err, "status": r.Status}
	}
	return map[string]interface{}{"status": r.Status, "body": r.Body}
}

// Recorder observes completed bridge calls for metrics.
type Recorder interface {
	RecordBridgeCall(method string, status int, duration time.Duration)
}

// Client issues upstream HTTP requests on behalf of sandboxed scripts.
type Client struct {
	resty    *resty.Client
	cfg      Config
	recorder Recorder
}

// New creates a bridge client. No retries: a failed call resolves to an
// error shape and retrying is the script's decision.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	rc := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(0)

	for k, v := range defaultHeaders {
		rc.SetHeader(k, v)
	}
	for k, v := range cfg.Headers {
		rc.SetHeader(k, v)
	}

	return &Client{resty: rc, cfg: cfg}
}

// SetRecorder attaches a metrics recorder.
func (c *Client) SetRecorder(r Recorder) {
	c.recorder = r
}

// Call performs one upstream request. It always returns a resolved
// Response; transport failures and exception-shaped payloads come back as
// sanitized error shapes, never as panics or unresolved states.
func (c *Client) Call(ctx context.Context, method, path string, body interface{}) Response {
	start := time.Now()
	method = strings.ToUpper(strings.TrimSpace(method))

	url := c.URL(path)
	req := c.resty.R().SetContext(ctx)

	// GET/HEAD carry no body regardless of what the script supplied
	if body != nil && method != "GET" && method != "HEAD" {
		req.SetBody(body)
	}

	resp, err := req.Execute(method, url)
	if err != nil {
		c.record(method, 0, start)
		return Response{Status: 0, Err: fmt.Sprintf("request failed: %v", err)}
	}

	out := sanitize(resp.StatusCode(), resp.Body())
	c.record(method, out.Status, start)
	return out
}

// URL builds the absolute request URL from base, prefix, and path.
func (c *Client) URL(path string) string {
	p := JoinPrefix(c.cfg.Prefix, path)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return strings.TrimSuffix(c.cfg.BaseURL, "/") + p
}

// JoinPrefix prepends the configured prefix unless the path already
// carries it, inserting a separating slash if absent.
func JoinPrefix(prefix, path string) string {
	if prefix == "" || strings.HasPrefix(path, prefix) {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		return prefix + "/" + path
	}
	return prefix + path
}

// sanitize parses a response body and strips exception internals.
func sanitize(status int, body []byte) Response {
	var parsed interface{}
	if err := sonic.Unmarshal(body, &parsed); err != nil {
		// Non-JSON upstream reply: raw text with status
		return Response{Status: status, Body: string(body)}
	}

	if obj, ok := parsed.(map[string]interface{}); ok {
		if _, found := obj["exception"]; found {
			return Response{Status: status, Err: exceptionMessage(obj)}
		}
	}

	return Response{Status: status, Body: parsed}
}

// exceptionMessage extracts the human-readable message from an
// exception-shaped payload. Stack traces and internals are dropped.
func exceptionMessage(obj map[string]interface{}) string {
	for _, key := range []string{"message", "detail", "error"} {
		if s, ok := obj[key].(string); ok && s != "" {
			return s
		}
	}
	if s, ok := obj["exception"].(string); ok && s != "" {
		return s
	}
	return "upstream error"
}

func (c *Client) record(method string, status int, start time.Time) {
	if c.recorder != nil {
		c.recorder.RecordBridgeCall(method, status, time.Since(start))
	}
}
