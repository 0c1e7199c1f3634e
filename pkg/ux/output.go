// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ux renders autotab's terminal output with lipgloss.
//
// A Printer writes either styled output for people or plain tab-separated
// lines for scripts (Machine mode), chosen once at construction.
package ux

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Brand palette.
var (
	ColorTealBright  = lipgloss.Color("#2CD7C7")
	ColorTealPrimary = lipgloss.Color("#20B9B4")
	ColorTealDeep    = lipgloss.Color("#16858E")
	ColorSlate       = lipgloss.Color("#2C4A54")
	ColorWarning     = lipgloss.Color("#F4D03F")
	ColorError       = lipgloss.Color("#E74C3C")
)

// Styles holds the shared lipgloss styles.
var Styles = struct {
	Title   lipgloss.Style
	Key     lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Box     lipgloss.Style
}{
	Title:   lipgloss.NewStyle().Bold(true).Foreground(ColorTealBright),
	Key:     lipgloss.NewStyle().Foreground(ColorTealPrimary),
	Muted:   lipgloss.NewStyle().Foreground(ColorSlate),
	Success: lipgloss.NewStyle().Foreground(ColorTealBright),
	Warning: lipgloss.NewStyle().Foreground(ColorWarning),
	Error:   lipgloss.NewStyle().Foreground(ColorError),
	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorTealDeep).
		Padding(0, 1),
}

// Printer writes styled or machine-readable output.
type Printer struct {
	w       io.Writer
	machine bool
}

// NewPrinter returns a Printer for w. Machine mode is used when w is not a
// terminal.
func NewPrinter(w io.Writer) *Printer {
	machine := true
	if f, ok := w.(interface{ Fd() uintptr }); ok {
		machine = !isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd())
	}
	return &Printer{w: w, machine: machine}
}

// NewMachinePrinter returns a Printer that never styles.
func NewMachinePrinter(w io.Writer) *Printer {
	return &Printer{w: w, machine: true}
}

// Machine reports whether output is plain.
func (p *Printer) Machine() bool { return p.machine }

// Title prints a heading. Machine mode skips it.
func (p *Printer) Title(text string) {
	if p.machine {
		return
	}
	fmt.Fprintln(p.w, Styles.Title.Render(text))
}

// Box prints content under a title inside a rounded border. Machine mode
// prints "title:" followed by the content.
func (p *Printer) Box(title, content string) {
	if p.machine {
		fmt.Fprintf(p.w, "%s:\n%s\n", title, strings.TrimRight(content, "\n"))
		return
	}
	body := Styles.Title.Render(title) + "\n" + strings.TrimRight(content, "\n")
	fmt.Fprintln(p.w, Styles.Box.Render(body))
}

// KeyValues prints aligned key/value pairs in order.
func (p *Printer) KeyValues(pairs [][2]string) {
	width := 0
	for _, kv := range pairs {
		width = max(width, lipgloss.Width(kv[0]))
	}
	for _, kv := range pairs {
		if p.machine {
			fmt.Fprintf(p.w, "%s\t%s\n", kv[0], kv[1])
			continue
		}
		key := Styles.Key.Render(kv[0] + strings.Repeat(" ", width-lipgloss.Width(kv[0])))
		fmt.Fprintf(p.w, "%s  %s\n", key, kv[1])
	}
}

// Table prints rows under a header with aligned columns.
func (p *Printer) Table(header []string, rows [][]string) {
	if p.machine {
		fmt.Fprintln(p.w, strings.Join(header, "\t"))
		for _, row := range rows {
			fmt.Fprintln(p.w, strings.Join(row, "\t"))
		}
		return
	}
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i := range min(len(row), len(widths)) {
			widths[i] = max(widths[i], lipgloss.Width(row[i]))
		}
	}
	line := func(cells []string, style lipgloss.Style) string {
		parts := make([]string, len(widths))
		for i := range widths {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			parts[i] = style.Render(cell + strings.Repeat(" ", widths[i]-lipgloss.Width(cell)))
		}
		return strings.TrimRight(strings.Join(parts, "  "), " ")
	}
	fmt.Fprintln(p.w, line(header, Styles.Key.Bold(true)))
	for _, row := range rows {
		fmt.Fprintln(p.w, line(row, lipgloss.NewStyle()))
	}
}

// Success prints a success line.
func (p *Printer) Success(text string) {
	if p.machine {
		fmt.Fprintln(p.w, "OK "+text)
		return
	}
	fmt.Fprintln(p.w, Styles.Success.Render("✓ "+text))
}
