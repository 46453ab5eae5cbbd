// Package frontmatter splits and composes documents that start with a YAML
// header block delimited by "---" lines.
package frontmatter

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Delimiter opens and closes the header block.
const Delimiter = "---"

// ErrUnterminated indicates an opening delimiter without a closing one.
var ErrUnterminated = errors.New("header block is not terminated")

// Split separates the header block from the body. ok is false when the
// content does not start with a delimiter line.
func Split(content string) (header, body string, ok bool, err error) {
	normalized := strings.ReplaceAll(content, "\r\n", "\n")
	if !strings.HasPrefix(normalized, Delimiter+"\n") {
		return "", content, false, nil
	}
	rest := normalized[len(Delimiter)+1:]

	// The header may be empty, in which case the closing delimiter is first.
	if strings.HasPrefix(rest, Delimiter+"\n") || rest == Delimiter {
		return "", strings.TrimPrefix(strings.TrimPrefix(rest, Delimiter), "\n"), true, nil
	}
	end := strings.Index(rest, "\n"+Delimiter+"\n")
	if end < 0 {
		if strings.HasSuffix(rest, "\n"+Delimiter) {
			return rest[:len(rest)-len(Delimiter)-1], "", true, nil
		}
		return "", content, true, ErrUnterminated
	}
	return rest[:end], rest[end+len(Delimiter)+2:], true, nil
}

// Parse splits content and decodes the header into a map. A document
// without a header yields an empty map and the whole content as body. On a
// malformed header the body is still returned alongside the error.
func Parse(content string) (map[string]any, string, error) {
	header, body, ok, err := Split(content)
	if err != nil {
		return map[string]any{}, body, err
	}
	fields := map[string]any{}
	if !ok || strings.TrimSpace(header) == "" {
		return fields, body, nil
	}
	if err := yaml.Unmarshal([]byte(header), &fields); err != nil {
		return map[string]any{}, body, fmt.Errorf("parsing header: %w", err)
	}
	if fields == nil {
		fields = map[string]any{}
	}
	return fields, body, nil
}

// Compose renders v as a YAML header followed by body.
func Compose(v any, body string) (string, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("encoding header: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("encoding header: %w", err)
	}

	var b strings.Builder
	b.WriteString(Delimiter + "\n")
	b.WriteString(buf.String())
	b.WriteString(Delimiter + "\n")
	if body != "" {
		b.WriteString("\n")
		b.WriteString(strings.TrimLeft(body, "\n"))
	}
	return b.String(), nil
}

// String returns fields[key] as a string, formatting scalars.
func String(fields map[string]any, key string) string {
	switch v := fields[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case time.Time:
		// Unquoted dates decode as timestamps.
		if v.Hour() == 0 && v.Minute() == 0 && v.Second() == 0 && v.Nanosecond() == 0 {
			return v.Format("2006-01-02")
		}
		return v.Format(time.RFC3339)
	default:
		return fmt.Sprint(v)
	}
}

// Strings returns fields[key] as a string list. A scalar string is split
// on commas.
func Strings(fields map[string]any, key string) []string {
	switch v := fields[key].(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s := strings.TrimSpace(fmt.Sprint(item)); s != "" {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return v
	case string:
		var out []string
		for _, part := range strings.Split(v, ",") {
			if s := strings.TrimSpace(part); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Float returns fields[key] as a float, or 0 when absent or not numeric.
func Float(fields map[string]any, key string) float64 {
	switch v := fields[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err == nil {
			return f
		}
	}
	return 0
}
