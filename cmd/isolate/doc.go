// Package main is the isolate subprocess entry point.
//
// The parent service spawns one instance per script execution. The process
// reads exactly one input envelope from stdin, runs the script in a goja VM
// under time and memory bounds, writes exactly one output envelope to
// stdout, and exits. Stdout carries nothing but the envelope; diagnostics
// go to stderr.
//
// Running a separate process per script means a runaway allocation kills
// only this process, never the service.
package main
