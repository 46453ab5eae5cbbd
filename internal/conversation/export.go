package conversation

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/slack-go/slack"
)

const maxExportLineSize = 10 * 1024 * 1024 // 10MB

// ParseResult contains messages and any errors encountered while parsing an export.
type ParseResult struct {
	Messages   []RawMessage
	ErrorCount int
	Errors     []ParseError
}

// ParseError represents a parsing error at a specific entry.
type ParseError struct {
	Line  int
	Error string
}

func (r *ParseResult) addError(line int, msg string) {
	r.ErrorCount++
	if len(r.Errors) < 10 {
		r.Errors = append(r.Errors, ParseError{Line: line, Error: msg})
	}
}

// ParseExport reads a chat export. The file is either a JSON array of
// Slack-shaped messages or one message object per line. Malformed entries
// are counted and skipped rather than failing the whole file.
func ParseExport(path string) (*ParseResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening export: %w", err)
	}

	result := &ParseResult{Messages: make([]RawMessage, 0), Errors: make([]ParseError, 0)}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var entries []json.RawMessage
		if err := json.Unmarshal(trimmed, &entries); err != nil {
			return nil, fmt.Errorf("parsing export array: %w", err)
		}
		for i, entry := range entries {
			result.parseEntry(i+1, entry)
		}
		return result, nil
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), maxExportLineSize)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		result.parseEntry(lineNum, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning export: %w", err)
	}
	return result, nil
}

func (r *ParseResult) parseEntry(line int, entry []byte) {
	var sm slack.Msg
	if err := json.Unmarshal(entry, &sm); err != nil {
		r.addError(line, fmt.Sprintf("JSON parse error: %v", err))
		return
	}
	if skipped(sm) {
		return
	}
	raw, err := toRaw(sm)
	if err != nil {
		r.addError(line, fmt.Sprintf("message parse error: %v", err))
		return
	}
	r.Messages = append(r.Messages, raw)
}

// ExportSource serves history and threads from a parsed export file.
type ExportSource struct {
	path     string
	channel  string
	messages []RawMessage
}

// NewExportSource parses the export at path. The channel name defaults to
// the file name without extension.
func NewExportSource(path, channel string) (*ExportSource, *ParseResult, error) {
	result, err := ParseExport(path)
	if err != nil {
		return nil, nil, err
	}
	if channel == "" {
		channel = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return &ExportSource{path: path, channel: channel, messages: result.Messages}, result, nil
}

// NewExportSourceFromMessages builds a source from already-parsed messages.
func NewExportSourceFromMessages(channel string, msgs []RawMessage) *ExportSource {
	return &ExportSource{channel: channel, messages: msgs}
}

// Describe identifies the export.
func (e *ExportSource) Describe() Source {
	src := Source{Kind: SourceExport, ChannelID: e.channel, ChannelName: e.channel}
	if e.path != "" {
		src.Metadata = map[string]string{"file": filepath.Base(e.path)}
	}
	return src
}

// History returns every message that is not a thread reply. Threaded
// replies are served through Replies.
func (e *ExportSource) History(_ context.Context, _ Window) ([]RawMessage, error) {
	out := make([]RawMessage, 0, len(e.messages))
	roots := make(map[string]bool)
	for _, m := range e.messages {
		if !m.IsReply() {
			roots[m.ID] = true
		}
	}
	for _, m := range e.messages {
		// Replies whose root is missing from the export stay in history.
		if m.IsReply() && roots[m.ThreadID] {
			continue
		}
		if m.IsReply() {
			out = append(out, m)
			continue
		}
		out = append(out, e.withReplyCount(m))
	}
	return out, nil
}

// Replies returns the replies of threadID found in the export.
func (e *ExportSource) Replies(_ context.Context, threadID string) ([]RawMessage, error) {
	var out []RawMessage
	for _, m := range e.messages {
		if m.ThreadID == threadID && m.ID != threadID {
			out = append(out, m)
		}
	}
	return out, nil
}

// withReplyCount fills in the reply count when the export omitted it.
func (e *ExportSource) withReplyCount(root RawMessage) RawMessage {
	if root.ReplyCount > 0 {
		return root
	}
	n := 0
	for _, m := range e.messages {
		if m.ThreadID == root.ID && m.ID != root.ID {
			n++
		}
	}
	root.ReplyCount = n
	return root
}

var _ ChatSource = (*ExportSource)(nil)
