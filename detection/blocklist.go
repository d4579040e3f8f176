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

package detection

import (
	"path/filepath"
	"strings"
)

// DefaultBlocklist returns USB devices that are never probed. Writing a
// probe frame to them is known to upset the device.
func DefaultBlocklist() []string {
	return []string{
		"1366:*",    // SEGGER J-Link debug probes (CDC console)
		"0483:374B", // ST-LINK/V2-1 virtual COM port
	}
}

// FormatVIDPID joins USB vendor and product IDs as "VVVV:PPPP".
func FormatVIDPID(vid, pid string) string {
	vid = strings.ToUpper(strings.TrimSpace(vid))
	pid = strings.ToUpper(strings.TrimSpace(pid))
	if vid == "" || pid == "" {
		return ""
	}
	return vid + ":" + pid
}

// IsBlocked checks if a USB device is in the blocklist. An entry of the
// form "VVVV:*" blocks every product of that vendor.
func IsBlocked(vidpid string, blocklist []string) bool {
	vidpid = strings.ToUpper(strings.TrimSpace(vidpid))
	if vidpid == "" {
		return false
	}
	vid, _, _ := strings.Cut(vidpid, ":")

	for _, blocked := range blocklist {
		blocked = strings.ToUpper(strings.TrimSpace(blocked))
		if vidpid == blocked {
			return true
		}
		if bVID, bPID, ok := strings.Cut(blocked, ":"); ok && bPID == "*" && bVID == vid {
			return true
		}
	}
	return false
}

// IsPathIgnored checks if a device path should be ignored.
// Paths are compared after cleaning and case folding.
func IsPathIgnored(devicePath string, ignorePaths []string) bool {
	if devicePath == "" || len(ignorePaths) == 0 {
		return false
	}

	normalizedDevice := normalizedPath(devicePath)
	for _, ignorePath := range ignorePaths {
		if ignorePath == "" {
			continue
		}
		if devicePath == ignorePath || normalizedDevice == normalizedPath(ignorePath) {
			return true
		}
	}
	return false
}

// normalizedPath normalizes a device path for comparison
func normalizedPath(path string) string {
	// Lowercase too, since Windows COM names are case-insensitive
	return strings.ToLower(filepath.Clean(path))
}
