// Package tfvars writes variables.auto.tfvars: a tagged-variant value
// writer per spec.md §9's design note ("define a tagged-variant for
// values (string, number, bool) and render each with explicit quoting
// rules. Never interpolate raw strings into HCL."). Keys are written in
// insertion order so the generated file is stable across repeated runs
// against the same inputs, which the idempotence property in spec.md §8
// depends on when comparing a re-rendered file.
package tfvars

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/exasol-infra/exasol-orchestrator/internal/orcherrors"
)

// Value is a tagged variant of the three HCL literal kinds this writer
// supports. Use String, Number, or Bool to construct one.
type Value struct {
	kind   valueKind
	str    string
	num    float64
	boolean bool
}

type valueKind int

const (
	kindString valueKind = iota
	kindNumber
	kindBool
)

// String builds a quoted-string Value.
func String(s string) Value { return Value{kind: kindString, str: s} }

// Number builds a bare numeric Value.
func Number(n float64) Value { return Value{kind: kindNumber, num: n} }

// Int builds a bare numeric Value from an int.
func Int(n int) Value { return Value{kind: kindNumber, num: float64(n)} }

// Bool builds a bare boolean Value.
func Bool(b bool) Value { return Value{kind: kindBool, boolean: b} }

// Render returns the HCL literal for v. Strings are quoted with Go's
// %q (which escapes embedded quotes/backslashes); numbers and booleans
// are rendered bare, matching `key = value` lines with "strings quoted,
// numbers and booleans bare" from spec.md §6.
func (v Value) Render() string {
	switch v.kind {
	case kindString:
		return strconv.Quote(v.str)
	case kindNumber:
		return formatNumber(v.num)
	case kindBool:
		return strconv.FormatBool(v.boolean)
	default:
		return `""`
	}
}

func formatNumber(n float64) string {
	if n == float64(int64(n)) {
		return strconv.FormatInt(int64(n), 10)
	}
	return strconv.FormatFloat(n, 'g', -1, 64)
}

// Writer accumulates ordered key/value pairs and renders them as a
// variables.auto.tfvars document.
type Writer struct {
	keys   []string
	values map[string]Value
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer {
	return &Writer{values: make(map[string]Value)}
}

// Set adds or overwrites key, preserving its original position if it was
// already set.
func (w *Writer) Set(key string, value Value) *Writer {
	if _, exists := w.values[key]; !exists {
		w.keys = append(w.keys, key)
	}
	w.values[key] = value
	return w
}

// Render produces the full file content.
func (w *Writer) Render() string {
	var sb strings.Builder
	for _, key := range w.keys {
		fmt.Fprintf(&sb, "%s = %s\n", key, w.values[key].Render())
	}
	return sb.String()
}

// WriteFile renders and writes the document to path.
func (w *Writer) WriteFile(path string) error {
	if err := os.WriteFile(path, []byte(w.Render()), 0o640); err != nil {
		return orcherrors.Internal("failed to write variables.auto.tfvars", err)
	}
	return nil
}
