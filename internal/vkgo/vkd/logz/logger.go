// Copyright 2025 V Kontakte LLC
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package logz

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v2"
)

// Logger is a zap.Logger wrapper that
// 1. makes defaults for card gallery daemons
// 2. adds trace level
// 3. tags messages with the subsystem they came from
type Logger struct {
	Level Level

	zapLogger *zap.Logger
}

type Config struct {
	// Level is one of trace/debug/info/warn/error/dpanic/panic/fatal.
	Level string `yaml:"level"`
	// Encoding is json or console.
	Encoding string `yaml:"encoding"`
	// DisableStacktrace turns off stack traces for error level and above.
	DisableStacktrace bool `yaml:"disable_stacktrace"`
	// FullCaller prints the full path to the file in every line.
	FullCaller bool     `yaml:"full_caller"`
	Outputs    []string `yaml:"outputs"`
}

func DefaultConfig() Config {
	return Config{
		Level:    "info",
		Encoding: "console",
		Outputs:  []string{"stderr"},
	}
}

// LoadConfigFile reads yaml config, fields missing in file keep default values.
func LoadConfigFile(path string) (Config, error) {
	config := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return config, fmt.Errorf("failed to read logger config %q: %w", path, err)
	}
	if err := yaml.UnmarshalStrict(data, &config); err != nil {
		return config, fmt.Errorf("failed to parse logger config %q: %w", path, err)
	}
	return config, nil
}

func New(config Config) (*Logger, error) {
	zCfg := zap.NewProductionConfig()

	lvl, err := ParseLevel(config.Level)
	if err != nil {
		return nil, err
	}
	if lvl.Level() <= zapcore.DebugLevel {
		zCfg.Sampling = nil
	}

	zCfg.Level = lvl
	zCfg.DisableStacktrace = config.DisableStacktrace
	zCfg.Encoding = config.Encoding
	zCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if len(config.Outputs) > 0 {
		zCfg.OutputPaths = config.Outputs
	}

	if config.Encoding == "console" {
		zCfg.EncoderConfig.EncodeTime = func(t time.Time, encoder zapcore.PrimitiveArrayEncoder) {
			encoder.AppendString(t.Format("2006-01-02 15:04:05.000"))
		}
		zCfg.EncoderConfig.EncodeLevel = capitalLevelEncoder
	} else {
		zCfg.EncoderConfig.EncodeLevel = lowerCaseLevelEncoder
	}

	if config.FullCaller {
		zCfg.EncoderConfig.EncodeCaller = zapcore.FullCallerEncoder
	} else {
		zCfg.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
	}

	logger, err := zCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("error building logger: %w", err)
	}
	// we wrap zap, so skip one frame to report the real caller
	logger = logger.WithOptions(zap.AddCallerSkip(1)).With(zap.Int("pid", os.Getpid()))

	return &Logger{
		Level:     zCfg.Level,
		zapLogger: logger,
	}, nil
}

// NewNop returns logger which drops everything, for tests.
func NewNop() *Logger {
	return &Logger{
		Level:     zap.NewAtomicLevel(),
		zapLogger: zap.NewNop(),
	}
}

func NewFromLogger(logger *zap.Logger) *Logger {
	return &Logger{
		Level:     zap.NewAtomicLevel(),
		zapLogger: logger,
	}
}

func (l *Logger) NewSubsystem(subsystem string) *Logger {
	return l.With(zap.String("subsystem", subsystem))
}

func (l *Logger) With(args ...Field) *Logger {
	return &Logger{
		Level:     l.Level,
		zapLogger: l.zapLogger.With(args...),
	}
}

// Sync flushes buffered log entries.
func (l *Logger) Sync() error {
	return l.zapLogger.Sync()
}

func (l *Logger) Trace(message string, args ...Field) {
	l.zapLogger.Log(TraceLevel, message, args...)
}

func (l *Logger) Debug(message string, args ...Field) {
	l.zapLogger.Log(zapcore.DebugLevel, message, args...)
}

func (l *Logger) Info(message string, args ...Field) {
	l.zapLogger.Log(zapcore.InfoLevel, message, args...)
}

func (l *Logger) Warn(message string, args ...Field) {
	l.zapLogger.Log(zapcore.WarnLevel, message, args...)
}

func (l *Logger) Error(message string, args ...Field) {
	l.zapLogger.Log(zapcore.ErrorLevel, message, args...)
}

// Printf lets the logger be passed where log.Printf-style func is expected
func (l *Logger) Printf(message string, args ...interface{}) {
	l.zapLogger.Sugar().Logf(zapcore.InfoLevel, message, args...)
}
