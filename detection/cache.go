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
	"maps"
	"time"

	"github.com/ZaparooProject/go-packet/internal/syncutil"
)

type cacheEntry struct {
	timestamp time.Time
	devices   []DeviceInfo
}

// resultCache keeps the last non-empty result per transport. Devices are
// copied on the way in and out.
type resultCache struct {
	entries map[string]cacheEntry
	now     func() time.Time
	mu      syncutil.RWMutex
}

var cache = newResultCache()

func newResultCache() *resultCache {
	return &resultCache{
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

func (c *resultCache) get(transport string, ttl time.Duration) ([]DeviceInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.entries[transport]
	if !exists || c.now().Sub(entry.timestamp) > ttl {
		return nil, false
	}
	return copyDevices(entry.devices), true
}

func (c *resultCache) set(transport string, devices []DeviceInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[transport] = cacheEntry{
		devices:   copyDevices(devices),
		timestamp: c.now(),
	}
}

func (c *resultCache) clear(transport string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, transport)
}

func (c *resultCache) clearAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}

func copyDevices(devices []DeviceInfo) []DeviceInfo {
	out := make([]DeviceInfo, len(devices))
	for i, d := range devices {
		out[i] = d
		out[i].Metadata = maps.Clone(d.Metadata)
	}
	return out
}
