/*
Package bridge provides the single controlled host-call primitive exposed to
sandboxed scripts.

# Overview

A running script reaches the outside world through exactly one function,
api(method, path, body), which the isolate forwards to this package. The
bridge owns everything on the host side of that call:

  - Path prefixing and base-URL joining
  - Default + caller-configured header merging (caller wins)
  - Body encoding (omitted for GET/HEAD)
  - Response parsing and error-shape sanitization

# Sanitization

Upstream APIs leak internals in error payloads. When a response body parses
as JSON and carries an exception-shaped field, the bridge replaces it with a
sanitized shape holding only the human-readable message and the HTTP status.
Stack traces never cross the boundary back into the isolate. Bodies that do
not parse as JSON come back as raw text with the status attached.

# Resolution Guarantee

Every call resolves: success, sanitized error, or raw fallback. The bridge
never panics into the isolate and never retries; retry policy belongs to
the script, which can issue further calls.
*/
package bridge
