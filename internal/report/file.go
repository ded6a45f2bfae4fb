package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"sigs.k8s.io/yaml"

	"relaymatrix/internal/scheduler"
)

// Format selects how a report is serialized.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// Formats lists the accepted values of --output.
var Formats = []string{string(FormatTable), string(FormatJSON), string(FormatYAML)}

// ParseFormat validates an --output value.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case "", FormatTable:
		return FormatTable, nil
	case FormatJSON, FormatYAML:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q (valid: %s)", s, strings.Join(Formats, ", "))
	}
}

// Marshal serializes r as JSON or YAML. The YAML form follows the json tags.
func Marshal(r *scheduler.RunReport, format Format) ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report to JSON: %w", err)
	}
	switch format {
	case FormatJSON:
		return append(data, '\n'), nil
	case FormatYAML:
		out, err := yaml.JSONToYAML(data)
		if err != nil {
			return nil, fmt.Errorf("failed to convert report to YAML: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("format %q cannot be marshalled", format)
	}
}

// Write prints r to w in the given format.
func Write(w io.Writer, r *scheduler.RunReport, format Format, opts TableOptions) error {
	if format == FormatTable || format == "" {
		WriteSummary(w, r, opts)
		return nil
	}
	data, err := Marshal(r, format)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// Save writes the detailed report to path and returns the file written. If
// path is a directory (existing, or ending in a separator) a timestamped file
// is created inside it. The format follows the extension: .yaml and .yml
// produce YAML, everything else JSON.
func Save(path string, r *scheduler.RunReport) (string, error) {
	if isDir(path) {
		name := fmt.Sprintf("relaymatrix-report-%s.json", r.StartedAt.Format("20060102-150405"))
		if r.StartedAt.IsZero() {
			name = fmt.Sprintf("relaymatrix-report-%s.json", time.Now().Format("20060102-150405"))
		}
		path = filepath.Join(path, name)
	}

	format := FormatJSON
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		format = FormatYAML
	}

	data, err := Marshal(r, format)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write report file: %w", err)
	}
	return path, nil
}

func isDir(path string) bool {
	if strings.HasSuffix(path, string(filepath.Separator)) || strings.HasSuffix(path, "/") {
		return true
	}
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
