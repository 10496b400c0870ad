package isolate

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scriptbridge/scriptbridge/internal/engine/bridge"
	"github.com/scriptbridge/scriptbridge/internal/engine/normalize"
)

func run(t *testing.T, code string, bindings map[string]interface{}, opts Options) *typesResult {
	t.Helper()
	res := Execute(context.Background(), normalize.Normalize(code), bindings, opts)
	require.NotNil(t, res)
	return &typesResult{res.Success, res.Result, res.Error, res.Logs}
}

// typesResult avoids repeating the long struct literal in assertions.
type typesResult struct {
	Success bool
	Result  interface{}
	Error   string
	Logs    []string
}

func TestExecuteExpression(t *testing.T) {
	res := run(t, "1 + 1", nil, Options{})

	assert.True(t, res.Success)
	assert.EqualValues(t, 2, res.Result)
	assert.Empty(t, res.Logs)
}

func TestExecuteWithLogs(t *testing.T) {
	res := run(t, "console.log('x'); 42", nil, Options{})

	assert.True(t, res.Success)
	assert.EqualValues(t, 42, res.Result)
	assert.Equal(t, []string{"x"}, res.Logs)
}

func TestExecuteLogOrdering(t *testing.T) {
	res := run(t, "console.log('a'); console.warn('b'); console.error('c'); null", nil, Options{})

	assert.True(t, res.Success)
	assert.Equal(t, []string{"a", "b", "c"}, res.Logs)
}

func TestExecuteUndefinedResult(t *testing.T) {
	res := run(t, "const x = 1;", nil, Options{})

	assert.True(t, res.Success)
	assert.Nil(t, res.Result)
}

func TestExecuteArrowCallable(t *testing.T) {
	res := run(t, "() => 'called'", nil, Options{})

	assert.True(t, res.Success)
	assert.Equal(t, "called", res.Result)
}

func TestExecuteRuntimeThrow(t *testing.T) {
	res := run(t, "throw new Error('boom')", nil, Options{})

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "boom")
}

func TestExecuteSyntaxFallbackReportsOriginalError(t *testing.T) {
	res := run(t, "this is ::: not javascript", nil, Options{})

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "SyntaxError")
}

func TestExecuteTimeout(t *testing.T) {
	start := time.Now()
	res := run(t, "let i = 0; while (true) { i++; }", nil, Options{TimeLimit: 100 * time.Millisecond})

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "TimeoutError")
	assert.Less(t, time.Since(start), 3*time.Second, "runaway script must be terminated")
}

func TestExecuteLogsKeptOnFailure(t *testing.T) {
	res := run(t, "console.log('before'); throw new Error('after')", nil, Options{})

	assert.False(t, res.Success)
	assert.Equal(t, []string{"before"}, res.Logs)
}

func TestExecuteContextBindings(t *testing.T) {
	bindings := map[string]interface{}{
		"ctx": map[string]interface{}{"name": "widget", "count": 3},
	}
	res := run(t, "ctx.name + ':' + ctx.count", bindings, Options{})

	assert.True(t, res.Success)
	assert.Equal(t, "widget:3", res.Result)
}

func TestExecuteBindingsAreFrozen(t *testing.T) {
	original := map[string]interface{}{"value": "untouched"}
	bindings := map[string]interface{}{"ctx": original}

	res := run(t, "ctx.value = 'mutated'; ctx.value", bindings, Options{})

	assert.True(t, res.Success)
	// Frozen inside the isolate: the write is silently ignored
	assert.Equal(t, "untouched", res.Result)
	// And the host copy is never shared
	assert.Equal(t, "untouched", original["value"])
}

func TestExecuteDangerousGlobalsRemoved(t *testing.T) {
	res := run(t, "typeof require + ' ' + typeof process", nil, Options{})

	assert.True(t, res.Success)
	assert.Equal(t, "undefined undefined", res.Result)
}

func TestExecuteNoBridgeMeansNoAPI(t *testing.T) {
	res := run(t, "typeof api", nil, Options{})

	assert.True(t, res.Success)
	assert.Equal(t, "undefined", res.Result)
}

func TestExecuteBridgeCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/products", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id": 1}, {"id": 2}]`))
	}))
	defer srv.Close()

	client := bridge.New(bridge.Config{BaseURL: srv.URL, Prefix: "/api"})
	res := run(t, "const r = await api('GET', '/products'); r.body.length", nil, Options{Bridge: client})

	assert.True(t, res.Success, "error: %s", res.Error)
	assert.EqualValues(t, 2, res.Result)
}

func TestExecuteBridgeSanitizedError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"exception": "NoResultFound", "message": "Not Found"}`))
	}))
	defer srv.Close()

	client := bridge.New(bridge.Config{BaseURL: srv.URL})
	res := run(t, "await api('GET', '/missing')", nil, Options{Bridge: client})

	require.True(t, res.Success, "error: %s", res.Error)
	m := res.Result.(map[string]interface{})
	assert.Equal(t, "Not Found", m["error"])
	assert.EqualValues(t, http.StatusNotFound, m["status"])
	assert.NotContains(t, m, "exception")
}

func TestExecutePromiseAll(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"path": "` + r.URL.Path + `"}`))
	}))
	defer srv.Close()

	client := bridge.New(bridge.Config{BaseURL: srv.URL})
	code := `
		const [a, b] = await Promise.all([api('GET', '/a'), api('GET', '/b')]);
		a.body.path + b.body.path
	`
	res := run(t, code, nil, Options{Bridge: client})

	assert.True(t, res.Success, "error: %s", res.Error)
	assert.Equal(t, "/a/b", res.Result)
}

func TestExecuteMemoryLimit(t *testing.T) {
	code := `
		const chunks = [];
		while (true) {
			chunks.push(new Array(65536).fill('xxxxxxxxxxxxxxxx'));
		}
	`
	res := run(t, code, nil, Options{TimeLimit: 10 * time.Second, MemoryLimitMB: 64})

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "MemoryLimitExceeded")
}

func TestExecuteConsoleObjectArgs(t *testing.T) {
	res := run(t, "console.log('n', {a: 1}); true", nil, Options{})

	assert.True(t, res.Success)
	require.Len(t, res.Logs, 1)
	assert.Contains(t, res.Logs[0], `"a"`)
}
