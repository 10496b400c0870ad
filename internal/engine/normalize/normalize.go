// Package normalize rewrites raw script snippets into value-returning
// program bodies.
//
// A snippet arrives as untrusted text: it may be a bare expression, a
// multi-statement program, a complete arrow function, or not JavaScript at
// all. Normalization is a pure text transform built on the goja parser; it
// never executes caller code and never fails: every input produces some
// program text, with genuinely unparseable input degrading to a fallback
// that re-surfaces the syntax error inside the isolate.
package normalize

import (
	"strings"

	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/parser"
)

// Snippets are parsed inside an async-function wrapper so that top-level
// await and bare return statements are legal, exactly as they will be when
// the isolate wraps the body for execution.
const parseWrapPrefix = "async function __body__() {\n"
const parseWrapSuffix = "\n}"

// Program is the output of normalization.
type Program struct {
	// Body is the program body. When Callable is false it is wrapped in an
	// async zero-argument callable and invoked; when Callable is true it is
	// itself a complete callable and is invoked directly.
	Body     string
	Callable bool
	// ParseErr holds the original parse error when Body is a syntactic
	// fallback. The isolate reports this instead of the confusing secondary
	// error the fallback would produce.
	ParseErr string
}

// Normalize rewrites a raw snippet into a value-returning program body.
//
// Rules, in order:
//  1. A single arrow-function-expression statement passes through unchanged
//     and is flagged callable.
//  2. Text that fails to parse as a program body is retried as a single
//     parenthesized expression; if that also fails it becomes a
//     `return <text>` fallback carrying the original parse error.
//  3. A program with zero top-level statements passes through unchanged.
//  4. A final bare expression statement is rewritten to an explicit return
//     of the same expression; everything before it is untouched.
//  5. A program ending in a declaration or control-flow construct passes
//     through unchanged.
func Normalize(src string) Program {
	body, err := parseBody(src)
	if err != nil {
		// Retry as a single parenthesized expression (object literals and
		// the like parse as expressions but not as statements).
		if _, exprErr := parseBody("return (" + src + "\n);"); exprErr == nil {
			return Program{Body: "return (" + src + "\n);"}
		}
		return Program{
			Body:     "return " + src + ";",
			ParseErr: firstLine(err.Error()),
		}
	}

	if len(body) == 0 {
		return Program{Body: src}
	}

	if len(body) == 1 {
		if stmt, ok := body[0].(*ast.ExpressionStatement); ok {
			if _, isArrow := stmt.Expression.(*ast.ArrowFunctionLiteral); isArrow {
				return Program{Body: src, Callable: true}
			}
		}
	}

	last := body[len(body)-1]
	if _, ok := last.(*ast.ExpressionStatement); ok {
		// file.Idx is 1-based and offset by the parse wrapper
		off := int(last.Idx0()) - 1 - len(parseWrapPrefix)
		if off >= 0 && off <= len(src) {
			return Program{Body: src[:off] + "return " + src[off:]}
		}
	}

	return Program{Body: src}
}

// parseBody parses snippet text as an async function body and returns its
// top-level statements.
func parseBody(src string) ([]ast.Statement, error) {
	prog, err := parser.ParseFile(nil, "script.js", parseWrapPrefix+src+parseWrapSuffix, 0)
	if err != nil {
		return nil, err
	}
	if len(prog.Body) == 0 {
		return nil, nil
	}
	fn, ok := prog.Body[0].(*ast.FunctionDeclaration)
	if !ok || fn.Function == nil || fn.Function.Body == nil {
		return nil, nil
	}
	return fn.Function.Body.List, nil
}

// firstLine trims a multi-line parser error to its first line.
func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}
