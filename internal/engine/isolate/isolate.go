package isolate

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/dop251/goja"

	"github.com/scriptbridge/scriptbridge/internal/engine/bridge"
	"github.com/scriptbridge/scriptbridge/internal/engine/normalize"
	"github.com/scriptbridge/scriptbridge/internal/shared/types"
)

// Interrupt signals distinguish why the VM was aborted.
const (
	timeoutSignal = "time limit"
	memorySignal  = "memory limit"
)

const maxCallStackSize = 1024

// memPollInterval is how often the watchdog samples heap usage.
const memPollInterval = 10 * time.Millisecond

// Options defines per-execution resource bounds and capabilities.
type Options struct {
	TimeLimit     time.Duration
	MemoryLimitMB int
	Bridge        *bridge.Client // nil disables api()
}

// host owns one VM for one execution.
type host struct {
	vm     *goja.Runtime
	logs   []string
	logsMu sync.Mutex
}

// callFrame crosses from the VM goroutine to the bridge dispatcher.
type callFrame struct {
	method string
	path   string
	body   interface{}
	reply  chan bridge.Response
}

// Execute runs a normalized program inside a fresh isolate and returns its
// structured result. It never panics and never lets a script-level failure
// escape as an error: every outcome is an ExecuteResult.
func Execute(ctx context.Context, prog normalize.Program, bindings map[string]interface{}, opts Options) (result *types.ExecuteResult) {
	h := &host{vm: goja.New(), logs: []string{}}

	// Host-side panics become a failure envelope, and teardown runs on
	// every exit path.
	defer func() {
		if r := recover(); r != nil {
			result = types.Fail(fmt.Sprintf("internal error: %v", r), h.snapshotLogs())
		}
		h.vm.ClearInterrupt()
	}()

	if opts.TimeLimit <= 0 {
		opts.TimeLimit = time.Duration(types.DefaultTimeLimitMs) * time.Millisecond
	}
	if opts.MemoryLimitMB <= 0 {
		opts.MemoryLimitMB = types.DefaultMemoryLimitMB
	}

	// The execution deadline bounds everything, including awaited bridge
	// calls.
	ctx, cancel := context.WithTimeout(ctx, opts.TimeLimit)
	defer cancel()

	h.vm.SetMaxCallStackSize(maxCallStackSize)
	h.setupGlobals()

	if err := h.injectBindings(bindings); err != nil {
		return types.Fail(fmt.Sprintf("invalid context binding: %v", err), h.snapshotLogs())
	}

	if opts.Bridge != nil {
		done := h.startDispatcher(ctx, opts.Bridge)
		defer close(done)
	}

	// Wall-clock limit
	timer := time.AfterFunc(opts.TimeLimit, func() {
		h.vm.Interrupt(timeoutSignal)
	})
	defer timer.Stop()

	// Heap ceiling
	stopWatch := h.startMemoryWatchdog(opts.MemoryLimitMB)
	defer close(stopWatch)

	val, err := h.vm.RunString(wrap(prog))
	if err != nil {
		return types.Fail(h.classify(err, prog), h.snapshotLogs())
	}

	value, errMsg := h.settle(val)
	if errMsg != "" {
		return types.Fail(errMsg, h.snapshotLogs())
	}
	return types.Ok(value, h.snapshotLogs())
}

// wrap turns a normalized program into the script the VM actually runs.
func wrap(prog normalize.Program) string {
	if prog.Callable {
		return "(async function() { return (" + prog.Body + "\n)(); })();"
	}
	return "(async function() {\n" + prog.Body + "\n})();"
}

// settle extracts the final value from the wrapper's promise.
func (h *host) settle(val goja.Value) (interface{}, string) {
	p, ok := val.Export().(*goja.Promise)
	if !ok {
		return exportValue(val), ""
	}
	switch p.State() {
	case goja.PromiseStateFulfilled:
		return exportValue(p.Result()), ""
	case goja.PromiseStateRejected:
		return nil, reasonString(p.Result())
	default:
		// Can only happen if the script awaited something the host never
		// resolves; api() always resolves, so this is a script bug.
		return nil, "script did not settle: a pending promise was never resolved"
	}
}

// classify maps a VM error to the failure taxonomy.
func (h *host) classify(err error, prog normalize.Program) string {
	if interrupted, ok := err.(*goja.InterruptedError); ok {
		switch fmt.Sprint(interrupted.Value()) {
		case memorySignal:
			return "MemoryLimitExceeded: heap ceiling exceeded, isolate terminated"
		default:
			return "TimeoutError: execution time limit exceeded"
		}
	}
	if ex, ok := err.(*goja.Exception); ok {
		return reasonString(ex.Value())
	}
	// Compile error: when the program is a normalizer fallback, report the
	// original parse error instead of the fallback's secondary one.
	if prog.ParseErr != "" {
		return "SyntaxError: " + prog.ParseErr
	}
	return firstLine(err.Error())
}

// setupGlobals configures the captured console and removes escape hatches.
func (h *host) setupGlobals() {
	vm := h.vm

	// Remove ambient runtime globals
	vm.Set("require", goja.Undefined())
	vm.Set("process", goja.Undefined())
	vm.Set("module", goja.Undefined())
	vm.Set("exports", goja.Undefined())

	// Shadow the console so all diagnostic output is captured
	console := vm.NewObject()
	for _, level := range []string{"log", "warn", "error", "info", "debug"} {
		console.Set(level, h.makeConsoleFunc())
	}
	vm.Set("console", console)

	// Timers are no-ops: the isolate has no event loop to honor them
	noop := func(call goja.FunctionCall) goja.Value { return goja.Undefined() }
	vm.Set("setTimeout", noop)
	vm.Set("setInterval", noop)
}

// makeConsoleFunc appends stringified arguments, in call order, to the log
// sequence.
func (h *host) makeConsoleFunc() func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = stringify(arg)
		}
		h.logsMu.Lock()
		h.logs = append(h.logs, strings.Join(parts, " "))
		h.logsMu.Unlock()
		return goja.Undefined()
	}
}

// injectBindings installs deep-copied, recursively frozen context entries
// as named globals. Mutating them inside the isolate never affects the
// host: the VM only ever sees a JSON round-trip of the caller's data.
func (h *host) injectBindings(bindings map[string]interface{}) error {
	if len(bindings) == 0 {
		return nil
	}

	fn, err := h.vm.RunString(`(function(s) {
		var o = JSON.parse(s);
		(function freeze(x) {
			if (x === null || typeof x !== "object" || Object.isFrozen(x)) return;
			Object.freeze(x);
			Object.getOwnPropertyNames(x).forEach(function(k) { freeze(x[k]); });
		})(o);
		return o;
	})`)
	if err != nil {
		return err
	}
	parseAndFreeze, _ := goja.AssertFunction(fn)

	global := h.vm.GlobalObject()
	for name, value := range bindings {
		data, err := sonic.Marshal(value)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		frozen, err := parseAndFreeze(goja.Undefined(), h.vm.ToValue(string(data)))
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if err := global.Set(name, frozen); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// startDispatcher binds api() and starts the host-side goroutine that
// performs the real network I/O. The VM is single-threaded and api()
// blocks the script until its reply arrives, so at most one frame is
// ever in flight: calls compose under Promise.all but resolve strictly
// in dispatch order.
func (h *host) startDispatcher(ctx context.Context, client *bridge.Client) chan struct{} {
	calls := make(chan callFrame)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case frame := <-calls:
				frame.reply <- client.Call(ctx, frame.method, frame.path, frame.body)
			case <-done:
				return
			}
		}
	}()

	h.vm.Set("api", func(call goja.FunctionCall) goja.Value {
		method := call.Argument(0).String()
		path := call.Argument(1).String()
		var body interface{}
		if arg := call.Argument(2); !goja.IsUndefined(arg) && !goja.IsNull(arg) {
			body = arg.Export()
		}

		frame := callFrame{method: method, path: path, body: body, reply: make(chan bridge.Response, 1)}

		select {
		case calls <- frame:
		case <-ctx.Done():
			return h.vm.ToValue(deadlineResponse())
		}

		select {
		case resp := <-frame.reply:
			return h.vm.ToValue(resp.Map())
		case <-ctx.Done():
			return h.vm.ToValue(deadlineResponse())
		}
	})

	return done
}

// deadlineResponse is what a bridge call observes when the execution
// deadline expires mid-flight. The call still resolves; the VM interrupt
// fires as soon as script execution resumes.
func deadlineResponse() map[string]interface{} {
	return map[string]interface{}{"error": "execution deadline exceeded", "status": 0}
}

// startMemoryWatchdog samples heap usage and interrupts the VM when the
// ceiling is crossed. goja has no native heap cap; subprocess isolation
// guarantees only this isolate dies.
func (h *host) startMemoryWatchdog(limitMB int) chan struct{} {
	stop := make(chan struct{})
	limit := uint64(limitMB) * 1024 * 1024

	go func() {
		ticker := time.NewTicker(memPollInterval)
		defer ticker.Stop()
		var stats runtime.MemStats
		for {
			select {
			case <-ticker.C:
				runtime.ReadMemStats(&stats)
				if stats.HeapAlloc > limit {
					h.vm.Interrupt(memorySignal)
					return
				}
			case <-stop:
				return
			}
		}
	}()

	return stop
}

func (h *host) snapshotLogs() []string {
	h.logsMu.Lock()
	defer h.logsMu.Unlock()
	return append([]string{}, h.logs...)
}

// exportValue converts a goja value to a plain Go value, mapping
// undefined/null to nil.
func exportValue(val goja.Value) interface{} {
	if val == nil || goja.IsUndefined(val) || goja.IsNull(val) {
		return nil
	}
	return val.Export()
}

// stringify renders a console argument: objects as JSON, everything else
// via string conversion.
func stringify(val goja.Value) string {
	if val == nil {
		return "undefined"
	}
	if goja.IsUndefined(val) || goja.IsNull(val) {
		return val.String()
	}
	switch val.Export().(type) {
	case map[string]interface{}, []interface{}:
		if data, err := sonic.Marshal(val.Export()); err == nil {
			return string(data)
		}
	}
	return val.String()
}

// reasonString renders a thrown value or rejection reason.
func reasonString(val goja.Value) string {
	if val == nil {
		return "script error"
	}
	return firstLine(val.String())
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}
