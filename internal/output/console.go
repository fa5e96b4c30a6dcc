// Package output renders frame reports for humans (console, summary table)
// and for pipes (NDJSON, YAML).
package output

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/wesleyorama2/tinyprof/prof"
	"github.com/wesleyorama2/tinyprof/prof/stats"
)

// ANSI escape codes for cursor control
const (
	cursorUp  = "\033[%dA" // Move cursor up N lines
	clearLine = "\033[2K"  // Clear entire line
)

// indentUnit is the indentation of one tree level.
const indentUnit = "    "

// ColorMode selects when the console uses colors.
type ColorMode string

const (
	// ColorsAuto uses colors on a color-capable terminal
	ColorsAuto ColorMode = "auto"
	// ColorsAlways forces colors
	ColorsAlways ColorMode = "always"
	// ColorsNever disables colors
	ColorsNever ColorMode = "never"
)

// ConsoleConfig contains configuration for Console.
type ConsoleConfig struct {
	Writer io.Writer
	Colors ColorMode

	// FrameBudget colors durations by their share of a frame; zero
	// disables the slow/critical colors.
	FrameBudget time.Duration

	ForceTTY bool
	Quiet    bool
}

// Console renders frame reports as indented trees. On a terminal Update
// redraws the latest frame of every stream in place; otherwise
// PrintUpdate writes one status line per stream.
type Console struct {
	writer io.Writer
	scheme *ColorScheme
	budget time.Duration
	isTTY  bool
	quiet  bool

	mu          sync.Mutex
	linesOutput int // Number of lines in the live display
}

// NewConsole creates a new console renderer.
func NewConsole(config ConsoleConfig) *Console {
	if config.Writer == nil {
		config.Writer = os.Stdout
	}

	isTTY := config.ForceTTY || isTerminal(config.Writer)

	var scheme *ColorScheme
	switch config.Colors {
	case ColorsAlways:
		scheme = ForcedColorScheme()
	case ColorsNever:
		scheme = NoColorScheme()
	default:
		if isTTY && supportsColors() {
			scheme = ForcedColorScheme()
		} else {
			scheme = NoColorScheme()
		}
	}

	return &Console{
		writer: config.Writer,
		scheme: scheme,
		budget: config.FrameBudget,
		isTTY:  isTTY,
		quiet:  config.Quiet,
	}
}

// isTerminal checks if the writer is a terminal.
func isTerminal(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		return checkIsTerminal(f)
	}
	return false
}

// supportsColors checks if the terminal supports colors.
func supportsColors() bool {
	// Check for explicit color disable
	if os.Getenv("NO_COLOR") != "" {
		return false
	}

	// Check for explicit color enable
	if os.Getenv("FORCE_COLOR") != "" {
		return true
	}

	term := os.Getenv("TERM")
	return term != "" && term != "dumb"
}

// IsTTY returns whether the output is a terminal.
func (c *Console) IsTTY() bool {
	return c.isTTY
}

// RenderReport renders one report: a header line, then every region
// indented by depth, then any late resolutions it carries.
func (c *Console) RenderReport(r prof.FrameReport) []string {
	s := c.scheme
	lines := []string{fmt.Sprintf("%s %s",
		s.Thread.Sprint(r.ThreadName),
		s.Dim.Sprintf("[%s] frame %d", r.Source, r.FrameIndex))}

	r.Walk(func(path []int, n prof.Node) bool {
		lines = append(lines, fmt.Sprintf("%s%s: %s",
			strings.Repeat(indentUnit, len(path)),
			s.Region.Sprint(n.Name),
			c.renderDuration(n)))
		return true
	})

	for _, res := range r.Resolved {
		lines = append(lines, fmt.Sprintf("%s%s",
			indentUnit,
			s.Dim.Sprintf("%s (frame %d) resolved: %s", res.Name, res.Frame, FormatRegionDuration(res.Duration))))
	}
	return lines
}

func (c *Console) renderDuration(n prof.Node) string {
	if n.Pending {
		return c.scheme.Pending.Sprint("pending")
	}
	return c.scheme.DurationColor(n.Duration, c.budget).Sprint(FormatRegionDuration(n.Duration))
}

// RenderVariables renders trace variables sorted by name, or nothing when
// there are none.
func (c *Console) RenderVariables(vars map[string]float64) []string {
	if len(vars) == 0 {
		return nil
	}

	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s=%s", name, c.scheme.Variable.Sprintf("%g", vars[name]))
	}
	return []string{indentUnit + c.scheme.Dim.Sprint("vars: ") + strings.Join(parts, " ")}
}

// PrintReport writes one report and its variables.
func (c *Console) PrintReport(r prof.FrameReport) {
	if c.quiet {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, line := range c.RenderReport(r) {
		c.writeln(line)
	}
	for _, line := range c.RenderVariables(r.Variables) {
		c.writeln(line)
	}
}

// PrintVariables writes the trace variables of one stream.
func (c *Console) PrintVariables(key stats.StreamKey, vars map[string]float64) {
	if c.quiet || len(vars) == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.writeln(c.scheme.Thread.Sprint(key.String()))
	for _, line := range c.RenderVariables(vars) {
		c.writeln(line)
	}
}

// Update redraws the latest frame of every stream in place. It does
// nothing when the output is not a terminal.
func (c *Console) Update(col *stats.Collector) {
	if c.quiet || !c.isTTY {
		return
	}

	var lines []string
	for _, key := range col.Streams() {
		latest, ok := col.Latest(key)
		if !ok {
			continue
		}
		lines = append(lines, c.RenderReport(latest)...)
		lines = append(lines, c.RenderVariables(col.Variables(key))...)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.clearLive()
	c.linesOutput = len(lines)
	for _, line := range lines {
		c.writeln(line)
	}
}

// PrintUpdate prints one status line per stream. Used when output is not
// a TTY (e.g., piped to a file or CI/CD).
func (c *Console) PrintUpdate(col *stats.Collector) {
	if c.quiet {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, key := range col.Streams() {
		latest, ok := col.Latest(key)
		if !ok {
			continue
		}

		var total time.Duration
		pending := 0
		for _, root := range latest.Roots {
			if root.Pending {
				pending++
				continue
			}
			total += root.Duration
		}

		line := fmt.Sprintf("[%s] frame %d | roots: %d | total: %s",
			key, latest.FrameIndex, len(latest.Roots), FormatRegionDuration(total))
		if pending > 0 {
			line += fmt.Sprintf(" | pending: %d", pending)
		}
		c.writeln(line)
	}
}

// Clear removes the live display, if any, so a summary can follow it.
func (c *Console) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearLive()
}

func (c *Console) clearLive() {
	if !c.isTTY || c.linesOutput == 0 {
		return
	}
	c.write(fmt.Sprintf(cursorUp, c.linesOutput))
	for i := 0; i < c.linesOutput; i++ {
		c.write(clearLine + "\n")
	}
	c.write(fmt.Sprintf(cursorUp, c.linesOutput))
	c.linesOutput = 0
}

// write writes to the output without a newline.
func (c *Console) write(s string) {
	fmt.Fprint(c.writer, s)
}

// writeln writes to the output with a newline.
func (c *Console) writeln(s string) {
	fmt.Fprintln(c.writer, s)
}

// FormatRegionDuration formats a region duration with a unit suited to its
// magnitude, e.g. "850ns", "12.5µs", "1.234ms" or "2.500s".
func FormatRegionDuration(d time.Duration) string {
	switch {
	case d < time.Microsecond:
		return fmt.Sprintf("%dns", d.Nanoseconds())
	case d < time.Millisecond:
		return fmt.Sprintf("%.1fµs", float64(d)/float64(time.Microsecond))
	case d < time.Second:
		return fmt.Sprintf("%.3fms", float64(d)/float64(time.Millisecond))
	default:
		return fmt.Sprintf("%.3fs", d.Seconds())
	}
}

// formatNumber formats a number with thousands separators.
func formatNumber(n int64) string {
	str := fmt.Sprintf("%d", n)
	if len(str) <= 3 {
		return str
	}

	// Add thousands separators
	var result strings.Builder
	offset := len(str) % 3
	if offset > 0 {
		result.WriteString(str[:offset])
	}
	for i := offset; i < len(str); i += 3 {
		if result.Len() > 0 {
			result.WriteString(",")
		}
		result.WriteString(str[i : i+3])
	}
	return result.String()
}
