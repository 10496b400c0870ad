// Package provider loads API descriptions for injection into script
// executions.
//
// A description comes from a local file or an HTTP(S) URL, in JSON or YAML.
// Before it is handed to a script it is flattened (every internal pointer
// resolved) and filtered down to the allowed HTTP methods, then cached by
// source so repeated executions do not refetch it.
package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/goccy/go-yaml"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/scriptbridge/scriptbridge/internal/infrastructure/logging"
	"github.com/scriptbridge/scriptbridge/internal/shared/types"
	"github.com/scriptbridge/scriptbridge/internal/spec/flatten"
)

// maxDescriptionBytes bounds how large a fetched description may be. The
// flattened tree rides in the execution context alongside caller bindings,
// so the cap stays below the context budget and oversized documents are
// rejected here with a clear error instead of failing request validation
// downstream.
const maxDescriptionBytes = types.MaxContextBytes / 2

// httpMethods are the keys filtered inside path items. Anything else in a
// path item (parameters, summary) is kept as-is.
var httpMethods = map[string]bool{
	"get": true, "put": true, "post": true, "delete": true,
	"options": true, "head": true, "patch": true, "trace": true,
}

// Config defines description loading configuration.
type Config struct {
	Source  string   // file path or http(s) URL
	Methods []string // allowed methods in path items; empty keeps all
}

// Provider loads, flattens and caches API descriptions.
type Provider struct {
	cfg    Config
	logger *logging.Logger
	client *retryablehttp.Client

	mu    sync.RWMutex
	cache map[string]map[string]interface{}
}

// New creates a provider. A nil logger disables diagnostics.
func New(cfg Config, logger *logging.Logger) *Provider {
	if logger == nil {
		logger = logging.NewNop()
	}
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.RetryWaitMin = 200 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.HTTPClient.Timeout = 30 * time.Second
	client.Logger = nil
	return &Provider{
		cfg:    cfg,
		logger: logger,
		client: client,
		cache:  make(map[string]map[string]interface{}),
	}
}

// Description returns the prepared description for the configured source.
// Returns nil without error when no source is configured.
func (p *Provider) Description(ctx context.Context) (map[string]interface{}, error) {
	if p.cfg.Source == "" {
		return nil, nil
	}
	return p.Load(ctx, p.cfg.Source)
}

// Load returns the prepared description for a source, fetching and preparing
// it on first use.
func (p *Provider) Load(ctx context.Context, source string) (map[string]interface{}, error) {
	p.mu.RLock()
	cached, ok := p.cache[source]
	p.mu.RUnlock()
	if ok {
		return cached, nil
	}

	raw, err := p.fetch(ctx, source)
	if err != nil {
		return nil, err
	}
	tree, err := decode(raw)
	if err != nil {
		return nil, fmt.Errorf("decoding description from %s: %w", source, err)
	}

	prepared := filterMethods(flatten.Resolve(tree), p.cfg.Methods)
	p.logger.Info("description loaded",
		zap.String("source", source),
		zap.Int("bytes", len(raw)),
		zap.Strings("methods", p.cfg.Methods),
	)

	p.mu.Lock()
	p.cache[source] = prepared
	p.mu.Unlock()
	return prepared, nil
}

// Refresh drops the cached entry for a source.
func (p *Provider) Refresh(source string) {
	p.mu.Lock()
	delete(p.cache, source)
	p.mu.Unlock()
}

func (p *Provider) fetch(ctx context.Context, source string) ([]byte, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, source, nil)
		if err != nil {
			return nil, fmt.Errorf("building description request: %w", err)
		}
		resp, err := p.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetching description from %s: %w", source, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("fetching description from %s: status %d", source, resp.StatusCode)
		}
		data, err := io.ReadAll(io.LimitReader(resp.Body, maxDescriptionBytes+1))
		if err != nil {
			return nil, fmt.Errorf("reading description body: %w", err)
		}
		if len(data) > maxDescriptionBytes {
			return nil, fmt.Errorf("description from %s exceeds %d byte limit", source, maxDescriptionBytes)
		}
		return data, nil
	}

	data, err := os.ReadFile(source)
	if err != nil {
		return nil, fmt.Errorf("reading description file: %w", err)
	}
	if len(data) > maxDescriptionBytes {
		return nil, fmt.Errorf("description file %s exceeds %d byte limit", source, maxDescriptionBytes)
	}
	return data, nil
}

// decode parses a description as JSON first, then YAML.
func decode(data []byte) (map[string]interface{}, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil, fmt.Errorf("description is empty")
	}

	if trimmed[0] == '{' {
		var tree map[string]interface{}
		if err := sonic.Unmarshal([]byte(trimmed), &tree); err != nil {
			return nil, err
		}
		return tree, nil
	}

	var tree map[string]interface{}
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, err
	}
	return tree, nil
}

// filterMethods strips disallowed HTTP methods from every path item. An
// empty allow-list keeps everything.
func filterMethods(tree map[string]interface{}, methods []string) map[string]interface{} {
	if len(methods) == 0 {
		return tree
	}
	allowed := make(map[string]bool, len(methods))
	for _, m := range methods {
		allowed[strings.ToLower(m)] = true
	}

	paths, ok := tree["paths"].(map[string]interface{})
	if !ok {
		return tree
	}
	filtered := make(map[string]interface{}, len(paths))
	for route, item := range paths {
		pathItem, ok := item.(map[string]interface{})
		if !ok {
			filtered[route] = item
			continue
		}
		kept := make(map[string]interface{}, len(pathItem))
		for key, op := range pathItem {
			if httpMethods[strings.ToLower(key)] && !allowed[strings.ToLower(key)] {
				continue
			}
			kept[key] = op
		}
		if hasOperation(kept) {
			filtered[route] = kept
		}
	}
	tree["paths"] = filtered
	return tree
}

// hasOperation reports whether a filtered path item still carries at least
// one HTTP method.
func hasOperation(item map[string]interface{}) bool {
	for key := range item {
		if httpMethods[strings.ToLower(key)] {
			return true
		}
	}
	return false
}
