package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/HKUDS/graffitibot-go/pkg/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogFileName is the active log file inside the configured directory.
const LogFileName = "graffitibot.log"

// RotatableLogger writes to a file and rotates it once it grows past
// MaxSize. Rotated files are kept as <name>.1 (newest) to <name>.N.
type RotatableLogger struct {
	Filename   string
	MaxSize    int64 // bytes
	MaxBackups int
	file       *os.File
	mu         sync.Mutex
}

// NewRotatableLogger creates a new RotatableLogger.
func NewRotatableLogger(filename string, maxSize int64, maxBackups int) *RotatableLogger {
	return &RotatableLogger{
		Filename:   filename,
		MaxSize:    maxSize,
		MaxBackups: maxBackups,
	}
}

func (l *RotatableLogger) open() error {
	file, err := os.OpenFile(l.Filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	l.file = file
	return nil
}

func (l *RotatableLogger) close() error {
	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

func (l *RotatableLogger) rotate() error {
	if err := l.close(); err != nil {
		return err
	}

	if l.MaxBackups > 0 {
		os.Remove(fmt.Sprintf("%s.%d", l.Filename, l.MaxBackups))
		for i := l.MaxBackups - 1; i >= 1; i-- {
			os.Rename(fmt.Sprintf("%s.%d", l.Filename, i), fmt.Sprintf("%s.%d", l.Filename, i+1))
		}
		os.Rename(l.Filename, l.Filename+".1")
	} else {
		os.Remove(l.Filename)
	}

	return l.open()
}

// Write appends p, rotating first if the file is already over MaxSize.
// A single write is never split across files.
func (l *RotatableLogger) Write(p []byte) (n int, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		if err := l.open(); err != nil {
			// Fallback to stderr if file open fails
			return os.Stderr.Write(p)
		}
	}

	info, err := l.file.Stat()
	if err == nil && l.MaxSize > 0 && info.Size() > 0 && info.Size()+int64(len(p)) > l.MaxSize {
		if err := l.rotate(); err != nil {
			return 0, err
		}
	}

	return l.file.Write(p)
}

// Sync flushes the current file.
func (l *RotatableLogger) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	return l.file.Sync()
}

// Close closes the current file. A later Write reopens it.
func (l *RotatableLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.close()
}

// SetupLogger builds a JSON zap logger writing to stderr and, when cfg.Dir
// is set, to a rotating file in that directory.
func SetupLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, fmt.Errorf("log level %q: %w", cfg.Level, err)
		}
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewJSONEncoder(encoderCfg)

	sinks := []zapcore.WriteSyncer{zapcore.Lock(os.Stderr)}
	if cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
			return nil, err
		}
		maxSize := int64(cfg.MaxSizeMB) * 1024 * 1024
		if maxSize <= 0 {
			maxSize = 10 * 1024 * 1024
		}
		file := NewRotatableLogger(filepath.Join(cfg.Dir, LogFileName), maxSize, cfg.MaxBackups)
		sinks = append(sinks, zapcore.AddSync(file))
	}

	core := zapcore.NewCore(encoder, zapcore.NewMultiWriteSyncer(sinks...), level)
	return zap.New(core, zap.AddCaller()), nil
}
