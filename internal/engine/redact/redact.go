// Package redact strips credential-shaped substrings from anything the
// engine logs or returns, and renders final execution output.
//
// Redaction applies only to string-typed fields (error messages, free-text
// log lines). Structured result data is the script's own computed output
// and is returned verbatim.
package redact

import (
	"regexp"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/scriptbridge/scriptbridge/internal/shared/types"
)

// Marker replaces every redacted credential.
const Marker = "Bearer [REDACTED]"

// bearerRe matches bearer credentials in free text, case-insensitive.
var bearerRe = regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9\-._~+/]+=*`)

// String redacts bearer credentials from a single string.
func String(s string) string {
	return bearerRe.ReplaceAllString(s, Marker)
}

// Strings redacts bearer credentials from a slice of log lines, in place.
func Strings(lines []string) []string {
	for i, line := range lines {
		lines[i] = String(line)
	}
	return lines
}

// Result redacts the string-typed fields of an execution result: the error
// message and the log lines. The structured result value is untouched.
func Result(r *types.ExecuteResult) *types.ExecuteResult {
	if r == nil {
		return nil
	}
	r.Error = String(r.Error)
	r.Logs = Strings(r.Logs)
	return r
}

// Format renders an execution result as human-readable text: the result as
// canonical indented JSON, followed by a delimited logs section when logs
// are non-empty.
func Format(r *types.ExecuteResult) string {
	var b strings.Builder

	if r.Success {
		data, err := sonic.ConfigDefault.MarshalIndent(r.Result, "", "  ")
		if err != nil {
			b.WriteString("null")
		} else {
			b.Write(data)
		}
	} else {
		b.WriteString("Error: ")
		b.WriteString(r.Error)
	}

	if len(r.Logs) > 0 {
		b.WriteString("\n\n--- logs ---\n")
		b.WriteString(strings.Join(r.Logs, "\n"))
	}

	return b.String()
}
