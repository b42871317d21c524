package logging

import (
	"bufio"
	"compress/gzip"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// LogEntry is one parsed line of the core's JSON log.
type LogEntry struct {
	Timestamp     time.Time      `json:"time"`
	Level         string         `json:"level"`
	Message       string         `json:"msg"`
	Component     string         `json:"component,omitempty"`
	Kind          string         `json:"kind,omitempty"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	SubjectID     string         `json:"subject_id,omitempty"`
	Attrs         map[string]any `json:"attrs,omitempty"`
}

// LogFilter selects log entries. Zero-valued fields do not filter; set
// fields are combined with AND.
type LogFilter struct {
	// Level keeps entries at or above this level (DEBUG < INFO < WARN < ERROR).
	Level string

	StartTime time.Time
	EndTime   time.Time

	Component     string
	Kind          string
	CorrelationID string
	SubjectID     string

	// MessageContains keeps entries whose message contains this substring.
	MessageContains string
}

var levelOrder = map[string]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

var entryFields = map[string]bool{
	"time":         true,
	"level":        true,
	"msg":          true,
	KeyComponent:   true,
	KeyKind:        true,
	KeyCorrelation: true,
	KeySubject:     true,
}

// AggregateLogs reads the active log file in dir together with any rotated
// backups (plain or gzip) and returns every parseable entry sorted by time.
// Malformed lines are skipped.
func AggregateLogs(dir string) ([]LogEntry, error) {
	active := filepath.Join(dir, LogFileName)
	if _, err := os.Stat(active); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no log file found in %s: %w", dir, err)
		}
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	backups, err := filepath.Glob(active + ".*")
	if err != nil {
		return nil, fmt.Errorf("failed to list rotated logs: %w", err)
	}

	var entries []LogEntry
	for _, path := range append(backups, active) {
		fileEntries, err := readLogFile(path)
		if err != nil {
			return nil, err
		}
		entries = append(entries, fileEntries...)
	}

	slices.SortStableFunc(entries, func(a, b LogEntry) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	return entries, nil
}

func readLogFile(path string) ([]LogEntry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var r io.Reader = file
	if strings.HasSuffix(path, ".gz") {
		zr, err := gzip.NewReader(file)
		if err != nil {
			return nil, fmt.Errorf("failed to open compressed log %s: %w", path, err)
		}
		defer func() { _ = zr.Close() }()
		r = zr
	}
	return ParseLogEntries(r)
}

// ParseLogEntries parses newline-delimited JSON log lines from r.
func ParseLogEntries(r io.Reader) ([]LogEntry, error) {
	scanner := bufio.NewScanner(r)
	const maxLine = 1024 * 1024
	scanner.Buffer(make([]byte, 64*1024), maxLine)

	var entries []LogEntry
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		entry, err := parseLogEntry(line)
		if err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading log file: %w", err)
	}
	return entries, nil
}

func parseLogEntry(line string) (LogEntry, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return LogEntry{}, fmt.Errorf("invalid JSON: %w", err)
	}

	str := func(key string) string {
		s, _ := raw[key].(string)
		return s
	}

	entry := LogEntry{
		Level:         str("level"),
		Message:       str("msg"),
		Component:     str(KeyComponent),
		Kind:          str(KeyKind),
		CorrelationID: str(KeyCorrelation),
		SubjectID:     str(KeySubject),
		Attrs:         make(map[string]any),
	}
	if t, err := time.Parse(time.RFC3339Nano, str("time")); err == nil {
		entry.Timestamp = t
	}
	for k, v := range raw {
		if !entryFields[k] {
			entry.Attrs[k] = v
		}
	}
	return entry, nil
}

// FilterLogs returns the entries matching filter, preserving order.
func FilterLogs(entries []LogEntry, filter LogFilter) []LogEntry {
	if filter == (LogFilter{}) {
		return entries
	}

	var filtered []LogEntry
	for _, entry := range entries {
		if filter.Matches(entry) {
			filtered = append(filtered, entry)
		}
	}
	return filtered
}

// Matches reports whether entry satisfies every set criterion of f.
func (f LogFilter) Matches(entry LogEntry) bool {
	if f.Level != "" {
		want, okWant := levelOrder[strings.ToUpper(f.Level)]
		got, okGot := levelOrder[entry.Level]
		if okWant && okGot && got < want {
			return false
		}
	}
	if !f.StartTime.IsZero() && entry.Timestamp.Before(f.StartTime) {
		return false
	}
	if !f.EndTime.IsZero() && entry.Timestamp.After(f.EndTime) {
		return false
	}

	exact := []struct{ want, got string }{
		{f.Component, entry.Component},
		{f.Kind, entry.Kind},
		{f.CorrelationID, entry.CorrelationID},
		{f.SubjectID, entry.SubjectID},
	}
	for _, e := range exact {
		if e.want != "" && e.want != e.got {
			return false
		}
	}

	return f.MessageContains == "" || strings.Contains(entry.Message, f.MessageContains)
}

// ExportLogEntries writes entries to outputPath in the given format.
// Supported formats: "json", "text", "csv".
func ExportLogEntries(entries []LogEntry, outputPath string, format string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if err := WriteLogEntries(file, entries, format); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}

// WriteLogEntries renders entries to w in the given format.
func WriteLogEntries(w io.Writer, entries []LogEntry, format string) error {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	case "text", "":
		return writeText(w, entries)
	case "csv":
		return writeCSV(w, entries)
	default:
		return fmt.Errorf("unsupported export format: %s (supported: json, text, csv)", format)
	}
}

// FormatEntry renders a single entry as one human-readable line:
// [TIMESTAMP] LEVEL component - MESSAGE (kind=.., correlation=..) {attrs}
func FormatEntry(entry LogEntry) string {
	parts := []string{
		fmt.Sprintf("[%s]", entry.Timestamp.Format("2006-01-02 15:04:05.000")),
		entry.Level,
	}
	if entry.Component != "" {
		parts = append(parts, entry.Component)
	}
	parts = append(parts, "-", entry.Message)

	var ctx []string
	if entry.Kind != "" {
		ctx = append(ctx, "kind="+entry.Kind)
	}
	if entry.SubjectID != "" {
		ctx = append(ctx, "subject="+entry.SubjectID)
	}
	if entry.CorrelationID != "" {
		ctx = append(ctx, "correlation="+entry.CorrelationID)
	}
	if len(ctx) > 0 {
		parts = append(parts, "("+strings.Join(ctx, ", ")+")")
	}

	if len(entry.Attrs) > 0 {
		if b, err := json.Marshal(entry.Attrs); err == nil {
			parts = append(parts, string(b))
		}
	}
	return strings.Join(parts, " ")
}

func writeText(w io.Writer, entries []LogEntry) error {
	for _, entry := range entries {
		if _, err := fmt.Fprintln(w, FormatEntry(entry)); err != nil {
			return fmt.Errorf("failed to write text entry: %w", err)
		}
	}
	return nil
}

func writeCSV(w io.Writer, entries []LogEntry) error {
	writer := csv.NewWriter(w)

	header := []string{"timestamp", "level", "message", "component", "kind", "correlation_id", "subject_id", "attrs"}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, entry := range entries {
		attrs := ""
		if len(entry.Attrs) > 0 {
			if b, err := json.Marshal(entry.Attrs); err == nil {
				attrs = string(b)
			}
		}
		record := []string{
			entry.Timestamp.Format(time.RFC3339Nano),
			entry.Level,
			entry.Message,
			entry.Component,
			entry.Kind,
			entry.CorrelationID,
			entry.SubjectID,
			attrs,
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}
