package audit

import (
	"encoding/json"
	"fmt"
	"io"
)

// JSONFormatter serializes audit entries as newline-delimited JSON.
type JSONFormatter struct {
	// Prefix is prepended to every line, useful for syslog-style tagging.
	Prefix string
}

// Format renders a single entry.
func (f *JSONFormatter) Format(entry *Entry) ([]byte, error) {
	if entry == nil {
		return nil, fmt.Errorf("cannot format nil entry")
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal audit entry: %w", err)
	}

	if f.Prefix != "" {
		data = append([]byte(f.Prefix), data...)
	}
	return append(data, '\n'), nil
}

// Write formats the entry and writes it to w in one call.
func (f *JSONFormatter) Write(w io.Writer, entry *Entry) error {
	data, err := f.Format(entry)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
