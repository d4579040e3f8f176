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
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// sessionLogPrefix names session log files: packet_YYYYMMDD_HHMMSS.log
const sessionLogPrefix = "packet_"

// The open session log. Guarded by logMu.
var (
	sessionLogFile *os.File
	sessionLogPath string
)

// InitSessionLog opens a session log in the working directory and returns
// its path. Every log event at any level is copied into it until
// CloseSessionLog.
func InitSessionLog() (string, error) {
	return InitSessionLogIn(".")
}

// InitSessionLogIn is InitSessionLog with an explicit directory. An already
// open session log is closed first.
func InitSessionLogIn(dir string) (string, error) {
	if err := CloseSessionLog(); err != nil {
		return "", err
	}

	name := sessionLogPrefix + time.Now().Format("20060102_150405") + ".log"
	path := filepath.Join(dir, name)
	f, err := os.Create(path) //nolint:gosec // name is generated, dir comes from the caller
	if err != nil {
		return "", fmt.Errorf("failed to create session log: %w", err)
	}

	fileLogger(f).Info().
		Int("pid", os.Getpid()).
		Str("os", runtime.GOOS+"/"+runtime.GOARCH).
		Str("go", runtime.Version()).
		Str("args", strings.Join(os.Args, " ")).
		Msg("session log started")

	logMu.Lock()
	sessionLogFile = f
	sessionLogPath = path
	sessionLogWriter = f
	rebuildSinkLocked()
	logMu.Unlock()
	return path, nil
}

// CloseSessionLog detaches and closes the session log, if one is open.
func CloseSessionLog() error {
	logMu.Lock()
	f := sessionLogFile
	sessionLogFile = nil
	sessionLogPath = ""
	sessionLogWriter = nil
	rebuildSinkLocked()
	logMu.Unlock()

	if f == nil {
		return nil
	}
	fileLogger(f).Info().Msg("session log closed")
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close session log: %w", err)
	}
	return nil
}

// GetSessionLogPath returns the open session log path, or "".
func GetSessionLogPath() string {
	logMu.RLock()
	defer logMu.RUnlock()
	return sessionLogPath
}

// fileLogger writes directly to f in the session log format.
func fileLogger(f *os.File) *zerolog.Logger {
	l := zerolog.New(sessionConsole(f)).With().Timestamp().Logger()
	return &l
}
