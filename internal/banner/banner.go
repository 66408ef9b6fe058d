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
Package banner provides the startup banner display for kafkad.

OVERVIEW:
=========
Displays an ASCII art banner with version information when the server or
the probe starts, followed by a compact view of the effective configuration.
Uses ANSI escape codes for colors.

USAGE:
======

	banner.PrintTo(writer)                 // Print to custom writer
	banner.PrintServerWithConfig(cfg)      // Print server banner with configuration

The banner text is embedded at compile time from banner.txt.
*/
package banner

import (
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"

	"kafkad/internal/config"
)

//go:embed banner.txt
var bannerText string

// ANSI escape codes for terminal text formatting.
const (
	AnsiRed    = "\033[31m"
	AnsiGreen  = "\033[32m"
	AnsiYellow = "\033[33m"
	AnsiCyan   = "\033[36m"
	AnsiReset  = "\033[0m"
	AnsiBold   = "\033[1m"
	AnsiDim    = "\033[2m"
)

// Version information
const (
	Version   = "0.4.0"
	Copyright = "Copyright (c) 2026 Firefly Software Solutions Inc."
	License   = "Licensed under Apache License 2.0"
)

// GetBanner returns the raw ASCII banner text.
func GetBanner() string {
	return bannerText
}

// GetBannerLines returns the banner as individual lines.
func GetBannerLines() []string {
	return strings.Split(strings.TrimRight(bannerText, "\n"), "\n")
}

// Print displays the banner with version and copyright information.
func Print() {
	PrintTo(os.Stdout)
}

// PrintTo writes the banner to the specified writer.
func PrintTo(w io.Writer) {
	printArt(w)
	fmt.Fprintln(w, AnsiGreen+AnsiBold+"  kafkad"+AnsiReset+" "+AnsiDim+"v"+Version+AnsiReset)
	fmt.Fprintln(w, AnsiDim+"  Kafka wire protocol front end"+AnsiReset)
	fmt.Fprintln(w)
	fmt.Fprintln(w, AnsiDim+"  "+Copyright+AnsiReset)
	fmt.Fprintln(w)
}

// PrintCompact prints a one-line version string.
func PrintCompact(w io.Writer, tool string) {
	fmt.Fprintln(w, AnsiCyan+AnsiBold+tool+AnsiReset+" v"+Version)
}

func printArt(w io.Writer) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, AnsiCyan+AnsiBold)
	for _, line := range GetBannerLines() {
		fmt.Fprintln(w, "  "+line)
	}
	fmt.Fprintln(w, AnsiReset)
}

// PrintServerWithConfig prints the server banner with the effective configuration.
func PrintServerWithConfig(cfg *config.Config) {
	PrintServerWithConfigTo(os.Stdout, cfg)
}

// PrintServerWithConfigTo writes the server banner with configuration to the specified writer.
func PrintServerWithConfigTo(w io.Writer, cfg *config.Config) {
	printArt(w)
	fmt.Fprintln(w, AnsiGreen+AnsiBold+"  kafkad"+AnsiReset+" "+AnsiDim+"v"+Version+AnsiReset)
	fmt.Fprintln(w)

	printConfigSource(w, cfg)
	printCompactConfig(w, cfg)

	fmt.Fprintln(w, AnsiDim+"  "+Copyright+AnsiReset)
	fmt.Fprintln(w)

	printLogSeparator(w)
}

func printLogSeparator(w io.Writer) {
	const lineWidth = 78
	text := " LOGS START HERE "
	padding := (lineWidth - len(text) - 4) / 2
	if padding < 0 {
		padding = 0
	}
	line := strings.Repeat("-", padding)
	fmt.Fprintf(w, "  %svv%s %s%s%s %svv%s\n",
		AnsiYellow, line, AnsiBold, text, AnsiReset+AnsiYellow, line, AnsiReset)
	fmt.Fprintln(w)
}

func printConfigSource(w io.Writer, cfg *config.Config) {
	fmt.Fprint(w, "  "+AnsiDim+"Config: "+AnsiReset)
	if cfg.ConfigFile != "" {
		fmt.Fprintln(w, AnsiYellow+cfg.ConfigFile+AnsiReset)
	} else {
		fmt.Fprintln(w, AnsiDim+"defaults + environment"+AnsiReset)
	}
	fmt.Fprintln(w)
}

func printCompactConfig(w io.Writer, cfg *config.Config) {
	const lineWidth = 78

	printSectionHeader(w, "Server", lineWidth)
	printRow3(w,
		fmtKV("Listen", AnsiGreen+cfg.BindAddr()+AnsiReset),
		fmtKV("Node", fmt.Sprintf("%d", cfg.NodeID)),
		fmtKV("Log", cfg.LogLevel))
	printRow3(w,
		fmtKV("Max request", formatBytes(int64(cfg.MaxRequestBytes))),
		fmtKV("Drain", cfg.DrainTimeout().String()),
		fmtKV("Idle", idleString(cfg)))
	fmt.Fprintln(w)

	printSectionHeader(w, "Cluster", lineWidth)
	printRow2(w,
		fmtKV("ID", cfg.ClusterID),
		fmtKV("Advertised", cfg.GetAdvertisedHost()))
	topics := make([]string, 0, len(cfg.Topics))
	for _, t := range cfg.Topics {
		topics = append(topics, fmt.Sprintf("%s(%d)", t.Name, t.Partitions))
	}
	if len(topics) == 0 {
		printRow2(w, fmtKV("Topics", AnsiDim+"none"+AnsiReset), "")
	} else {
		printRow2(w, fmtKV("Topics", strings.Join(topics, ", ")), "")
	}
	fmt.Fprintln(w)

	printSectionHeader(w, "Endpoints", lineWidth)
	if cfg.Metrics.Enabled {
		printRow2(w, fmtEnabled("Metrics", true), cfg.Metrics.Addr+"/metrics")
	} else {
		printRow2(w, fmtEnabled("Metrics", false), "")
	}
	fmt.Fprintln(w)
}

func idleString(cfg *config.Config) string {
	if cfg.IdleTimeoutSecs == 0 {
		return "off"
	}
	return cfg.IdleTimeout().String()
}

func printSectionHeader(w io.Writer, title string, width int) {
	titleLen := len(title) + 4 // "[ title ]"
	leftPad := 2
	rightPad := width - leftPad - titleLen
	if rightPad < 0 {
		rightPad = 0
	}
	fmt.Fprintf(w, "  %s[ %s%s%s ]%s%s\n",
		AnsiDim+strings.Repeat("-", leftPad),
		AnsiReset+AnsiCyan+AnsiBold, title, AnsiReset+AnsiDim,
		strings.Repeat("-", rightPad),
		AnsiReset)
}

func fmtKV(key, value string) string {
	return fmt.Sprintf("%s%s:%s %s", AnsiDim, key, AnsiReset, value)
}

func fmtEnabled(name string, enabled bool) string {
	if enabled {
		return AnsiGreen + name + AnsiReset
	}
	return AnsiDim + name + AnsiReset
}

func printRow3(w io.Writer, col1, col2, col3 string) {
	fmt.Fprintf(w, "  %-32s %-26s %s\n", col1, col2, col3)
}

func printRow2(w io.Writer, col1, col2 string) {
	fmt.Fprintf(w, "  %-40s %s\n", col1, col2)
}

func formatBytes(bytes int64) string {
	if bytes <= 0 {
		return "default"
	}
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.0f%cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
