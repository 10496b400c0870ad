/*
Package isolate provides one bounded JavaScript execution environment per
script invocation.

# Overview

Each invocation gets a fresh goja VM with:

  - A hard wall-clock limit enforced through VM interrupts
  - A heap ceiling enforced by a memory watchdog
  - Read-only, deep-copied context bindings (frozen snapshots)
  - A captured console (log output never reaches a real console)
  - The api() host-call primitive, when a bridge is configured

# Security Model

Sandboxed code cannot:
  - Access filesystem, network, or process state directly
  - Observe or mutate host data through context bindings
  - Run past the wall-clock limit or the heap ceiling
  - Escape through require/process/module or timer globals

The only path out is api(), which blocks the script's own execution while
the host dispatches the real network I/O and delivers the resolution back
over a channel.

# Lifecycle

An isolate is single-purpose: created for one execution, torn down
unconditionally on every exit path (success, script failure, or host-side
panic). Nothing persists across invocations.
*/
package isolate
