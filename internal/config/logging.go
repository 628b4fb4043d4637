package config

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LogOutput returns the writer all component loggers share. With LogFile set
// it is a size-rotated file, otherwise stderr.
func (c *Config) LogOutput() io.Writer {
	if c.LogFile == "" {
		return os.Stderr
	}
	return &lumberjack.Logger{
		Filename:   c.LogFile,
		MaxSize:    c.LogMaxSizeMB,
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	}
}

// NewLogger creates a component logger writing to out with a "[component] "
// prefix
func NewLogger(out io.Writer, component string) *log.Logger {
	return log.New(out, "["+component+"] ", log.LstdFlags)
}
