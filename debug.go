// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package packet

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ZaparooProject/go-packet/internal/syncutil"
	"github.com/rs/zerolog"
)

const logTimeFormat = "15:04:05.000"

// debugEnabled controls whether debug logging reaches the console.
// The session log, when open, receives every level regardless.
var debugEnabled = false

var consoleLevel = zerolog.Disabled

// Logging state. The package logger writes through logSink, which fans out
// to the console writer and the session log (when one is open).
var (
	logMu            syncutil.RWMutex
	consoleOut       io.Writer = os.Stderr
	sessionLogWriter io.Writer
	sinkWriter       zerolog.LevelWriter
)

var logger = zerolog.New(logSink{}).
	Level(zerolog.DebugLevel).
	With().Timestamp().Str("component", "packet").
	Logger()

func init() {
	// Enable debug logging if DEBUG environment variable is set
	if os.Getenv("PACKET_DEBUG") != "" || os.Getenv("DEBUG") != "" {
		debugEnabled = true
		consoleLevel = zerolog.DebugLevel
	}
	rebuildSinkLocked()
}

// logSink forwards every event to the current writer set.
type logSink struct{}

func (s logSink) Write(p []byte) (int, error) {
	return s.WriteLevel(zerolog.NoLevel, p)
}

func (logSink) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	logMu.RLock()
	defer logMu.RUnlock()
	return sinkWriter.WriteLevel(level, p)
}

func plainLevel(i any) string {
	if s, ok := i.(string); ok {
		return strings.ToUpper(s) + ":"
	}
	return "???:"
}

func sessionConsole(w io.Writer) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{
		Out:         w,
		TimeFormat:  logTimeFormat,
		NoColor:     true,
		FormatLevel: plainLevel,
	}
}

// rebuildSinkLocked recomputes the writer set. Caller holds logMu (or is init).
func rebuildSinkLocked() {
	console := zerolog.ConsoleWriter{
		Out:        consoleOut,
		TimeFormat: logTimeFormat,
		NoColor:    consoleOut != os.Stderr && consoleOut != os.Stdout,
	}
	writers := []io.Writer{
		&zerolog.FilteredLevelWriter{
			Writer: zerolog.LevelWriterAdapter{Writer: console},
			Level:  consoleLevel,
		},
	}
	if sessionLogWriter != nil {
		writers = append(writers, sessionConsole(sessionLogWriter))
	}
	sinkWriter = zerolog.MultiLevelWriter(writers...)
}

// Logger returns the package logger. Links derive their loggers from it
// unless WithLogger supplies one.
func Logger() zerolog.Logger {
	return logger
}

// Debugf logs debug information.
// Always writes to session log file (if initialized) with timestamp.
// Only reaches the console when debug mode is enabled.
func Debugf(format string, args ...any) {
	logger.Debug().Msg(fmt.Sprintf(format, args...))
}

// Debugln logs debug information, formatting args like fmt.Sprint.
// Always writes to session log file (if initialized) with timestamp.
// Only reaches the console when debug mode is enabled.
func Debugln(args ...any) {
	logger.Debug().Msg(strings.TrimSuffix(fmt.Sprintln(args...), "\n"))
}

// SetDebugEnabled allows programmatic control of debug logging
// Useful for testing or application-controlled debug modes
func SetDebugEnabled(enabled bool) {
	logMu.Lock()
	defer logMu.Unlock()
	debugEnabled = enabled
	if enabled {
		consoleLevel = zerolog.DebugLevel
	} else {
		consoleLevel = zerolog.Disabled
	}
	rebuildSinkLocked()
}

// SetLogLevel sets the minimum level written to the console output.
// The session log always receives every level.
func SetLogLevel(level zerolog.Level) {
	logMu.Lock()
	defer logMu.Unlock()
	consoleLevel = level
	debugEnabled = level <= zerolog.DebugLevel
	rebuildSinkLocked()
}

// SetLogOutput redirects console logging, which defaults to os.Stderr.
func SetLogOutput(w io.Writer) {
	logMu.Lock()
	defer logMu.Unlock()
	if w == nil {
		w = os.Stderr
	}
	consoleOut = w
	rebuildSinkLocked()
}
