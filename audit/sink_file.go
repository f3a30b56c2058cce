package audit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// FileSinkConfig configures a file-backed audit device.
type FileSinkConfig struct {
	// Path is the audit log file path.
	Path string

	// RotateMegabytes is the size at which the file is rotated.
	RotateMegabytes int

	// RotateMaxFiles is the number of rotated files to keep (0 = keep all).
	RotateMaxFiles int
}

// FileSink writes JSON audit entries to a rotating file.
type FileSink struct {
	mu        sync.Mutex
	writer    *lumberjack.Logger
	formatter *JSONFormatter
}

// NewFileSink creates a file sink, creating the parent directory if needed.
func NewFileSink(config FileSinkConfig) (*FileSink, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("audit file path is required")
	}
	if err := os.MkdirAll(filepath.Dir(config.Path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}

	rotateMegabytes := config.RotateMegabytes
	if rotateMegabytes <= 0 {
		rotateMegabytes = 100
	}

	return &FileSink{
		writer: &lumberjack.Logger{
			Filename:   config.Path,
			MaxSize:    rotateMegabytes,
			MaxBackups: config.RotateMaxFiles,
			LocalTime:  true,
		},
		formatter: &JSONFormatter{},
	}, nil
}

// Log implements Device.
func (s *FileSink) Log(ctx context.Context, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.formatter.Write(s.writer, entry)
}

// Close implements Device.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writer.Close()
}
