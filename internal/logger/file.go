package logger

import (
	"io"

	"gopkg.in/natefinch/lumberjack.v2"
)

// FileConfig holds configuration for file-based log output with rotation.
type FileConfig struct {
	Path      string
	MaxSizeMB int
	MaxFiles  int
}

const (
	defaultLogPath   = "logs/mailqueue.log"
	defaultMaxSizeMB = 100
)

// NewFileWriter returns a size-rotated log file writer. Rotated files are gzipped.
func NewFileWriter(cfg FileConfig) io.Writer {
	if cfg.Path == "" {
		cfg.Path = defaultLogPath
	}
	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = defaultMaxSizeMB
	}
	return &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxFiles,
		Compress:   true,
	}
}
