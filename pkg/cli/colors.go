/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

/*
Package cli provides terminal output helpers for the kafkad command line tools.

COLORS:
=======
Messages are prefixed with an icon and colored with ANSI escape codes:
- Success (✓) green, Error (✗) red, Warning (⚠) yellow, Info (ℹ) cyan

Colors are disabled when NO_COLOR is set or the output is not a terminal.

USAGE:
======

	out := cli.NewPrinter(os.Stdout)
	out.Header("Broker")
	out.KeyValue("address", addr)
	out.Success("connected to %s", addr)
*/
package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// ANSI color codes for terminal output.
const (
	Reset  = "\033[0m"
	Bold   = "\033[1m"
	Dim    = "\033[2m"
	Red    = "\033[31m"
	Green  = "\033[32m"
	Yellow = "\033[33m"
	Cyan   = "\033[36m"
)

// Icons for CLI output
const (
	IconSuccess = "✓"
	IconError   = "✗"
	IconWarning = "⚠"
	IconInfo    = "ℹ"
	IconArrow   = "→"
)

// Printer writes formatted messages to one writer.
type Printer struct {
	w     io.Writer
	color bool
}

// NewPrinter returns a Printer for w. Colors are enabled only when w is a
// terminal and NO_COLOR is unset.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w, color: colorsWanted(w)}
}

func colorsWanted(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// SetColors overrides terminal detection.
func (p *Printer) SetColors(enabled bool) {
	p.color = enabled
}

func (p *Printer) colorize(color, text string) string {
	if !p.color {
		return text
	}
	return color + text + Reset
}

// Success prints a success message.
func (p *Printer) Success(format string, args ...interface{}) {
	fmt.Fprintln(p.w, p.colorize(Green, IconSuccess+" "+fmt.Sprintf(format, args...)))
}

// Error prints an error message with an optional hint.
func (p *Printer) Error(err error, hint string) {
	fmt.Fprintln(p.w, p.colorize(Red, IconError+" "+err.Error()))
	if hint != "" {
		fmt.Fprintln(p.w, p.colorize(Dim, "  "+IconArrow+" Hint: "+hint))
	}
}

// Warning prints a warning message.
func (p *Printer) Warning(format string, args ...interface{}) {
	fmt.Fprintln(p.w, p.colorize(Yellow, IconWarning+" "+fmt.Sprintf(format, args...)))
}

// Info prints an info message.
func (p *Printer) Info(format string, args ...interface{}) {
	fmt.Fprintln(p.w, p.colorize(Cyan, IconInfo+" "+fmt.Sprintf(format, args...)))
}

// Header prints a section title.
func (p *Printer) Header(text string) {
	fmt.Fprintln(p.w, p.colorize(Bold+Cyan, text))
}

// KeyValue prints an indented key-value pair.
func (p *Printer) KeyValue(key string, value interface{}) {
	fmt.Fprintf(p.w, "  %s: %v\n", p.colorize(Dim, key), value)
}

// Table prints rows as left-aligned columns.
func (p *Printer) Table(headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i := 0; i < len(row) && i < len(widths); i++ {
			if len(row[i]) > widths[i] {
				widths[i] = len(row[i])
			}
		}
	}

	line := func(cells []string) string {
		parts := make([]string, len(widths))
		for i := range widths {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			parts[i] = fmt.Sprintf("%-*s", widths[i], cell)
		}
		return "  " + strings.TrimRight(strings.Join(parts, "  "), " ")
	}

	fmt.Fprintln(p.w, p.colorize(Dim, line(headers)))
	for _, row := range rows {
		fmt.Fprintln(p.w, line(row))
	}
}
