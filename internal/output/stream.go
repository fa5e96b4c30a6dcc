package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/wesleyorama2/tinyprof/prof"
)

// Format represents the available report output formats
type Format string

const (
	// FormatText is the default human-readable console format
	FormatText Format = "text"
	// FormatNDJSON writes one JSON object per report per line
	FormatNDJSON Format = "ndjson"
	// FormatYAML writes one YAML document per report
	FormatYAML Format = "yaml"
	// FormatNone discards reports; only the summary is printed
	FormatNone Format = "none"
)

// ParseFormat converts a string to a Format.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case "", FormatText:
		return FormatText, nil
	case FormatNDJSON, "json":
		return FormatNDJSON, nil
	case FormatYAML:
		return FormatYAML, nil
	case FormatNone:
		return FormatNone, nil
	default:
		return FormatText, fmt.Errorf("invalid output format: %q (expected: text|ndjson|yaml|none)", s)
	}
}

// ReportWriter writes drained reports to a stream.
type ReportWriter interface {
	Write(reports ...prof.FrameReport) error
}

// NDJSONWriter writes one JSON object per report per line.
type NDJSONWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewNDJSONWriter creates an NDJSONWriter on w.
func NewNDJSONWriter(w io.Writer) *NDJSONWriter {
	return &NDJSONWriter{enc: json.NewEncoder(w)}
}

// Write encodes reports in order.
func (w *NDJSONWriter) Write(reports ...prof.FrameReport) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, r := range reports {
		if err := w.enc.Encode(r); err != nil {
			return fmt.Errorf("failed to encode report %s frame %d: %w", r.ThreadName, r.FrameIndex, err)
		}
	}
	return nil
}

// YAMLWriter writes one YAML document per report.
type YAMLWriter struct {
	mu  sync.Mutex
	enc *yaml.Encoder
}

// NewYAMLWriter creates a YAMLWriter on w.
func NewYAMLWriter(w io.Writer) *YAMLWriter {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	return &YAMLWriter{enc: enc}
}

// Write encodes reports in order.
func (w *YAMLWriter) Write(reports ...prof.FrameReport) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, r := range reports {
		if err := w.enc.Encode(toYAMLReport(r)); err != nil {
			return fmt.Errorf("failed to encode report %s frame %d: %w", r.ThreadName, r.FrameIndex, err)
		}
	}
	return nil
}

// Close flushes the encoder.
func (w *YAMLWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.enc.Close()
}

// yamlReport mirrors the JSON shape of a report: durations in seconds,
// pending durations null.
type yamlReport struct {
	Thread    string             `yaml:"thread"`
	Source    string             `yaml:"source"`
	Frame     uint64             `yaml:"frame"`
	Variables map[string]float64 `yaml:"variables,omitempty"`
	Roots     []yamlNode         `yaml:"roots"`
	Resolved  []yamlResolution   `yaml:"resolved,omitempty"`
}

type yamlNode struct {
	Name     string     `yaml:"name"`
	ID       string     `yaml:"id"`
	Duration *float64   `yaml:"duration"`
	Children []yamlNode `yaml:"children,omitempty"`
}

type yamlResolution struct {
	Frame    uint64  `yaml:"frame"`
	Path     []int   `yaml:"path,flow"`
	Name     string  `yaml:"name"`
	ID       string  `yaml:"id"`
	Duration float64 `yaml:"duration"`
}

func toYAMLReport(r prof.FrameReport) yamlReport {
	out := yamlReport{
		Thread:    r.ThreadName,
		Source:    r.Source.String(),
		Frame:     r.FrameIndex,
		Variables: r.Variables,
		Roots:     toYAMLNodes(r.Roots),
	}
	for _, res := range r.Resolved {
		out.Resolved = append(out.Resolved, yamlResolution{
			Frame:    res.Frame,
			Path:     res.Path,
			Name:     res.Name,
			ID:       res.ID,
			Duration: res.Duration.Seconds(),
		})
	}
	return out
}

func toYAMLNodes(nodes []prof.Node) []yamlNode {
	if len(nodes) == 0 {
		return nil
	}
	out := make([]yamlNode, len(nodes))
	for i, n := range nodes {
		out[i] = yamlNode{Name: n.Name, ID: n.ID, Children: toYAMLNodes(n.Children)}
		if secs, ok := n.Seconds(); ok {
			out[i].Duration = &secs
		}
	}
	return out
}
