/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package undo

import (
	"sync"
	"time"
)

// Snapshot represents a reversible state blob for one document.
// Blob content is opaque to the manager. TS is when the snapshot was captured.
type Snapshot struct {
	Key  string
	Op   string
	Blob []byte
	TS   time.Time
}

// Config controls how many snapshots are kept.
type Config struct {
	// MaxDepth limits snapshots kept per document (0 means 1).
	MaxDepth int
}

// Manager provides an in-memory undo stack per document.
// It is safe for concurrent use.
type Manager struct {
	cfg  Config
	mu   sync.Mutex
	undo map[string][]Snapshot
}

func NewManager(cfg Config) *Manager {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = 1
	}
	return &Manager{cfg: cfg, undo: make(map[string][]Snapshot)}
}

// PushSnapshot records a snapshot for a document, dropping the oldest ones
// beyond MaxDepth.
func (m *Manager) PushSnapshot(s Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.TS.IsZero() {
		s.TS = time.Now()
	}
	stack := append(m.undo[s.Key], s)
	if extra := len(stack) - m.cfg.MaxDepth; extra > 0 {
		stack = append([]Snapshot(nil), stack[extra:]...)
	}
	m.undo[s.Key] = stack
}

// Undo pops the newest snapshot of a document.
func (m *Manager) Undo(key string) (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stack := m.undo[key]
	if len(stack) == 0 {
		return Snapshot{}, false
	}
	s := stack[len(stack)-1]
	if len(stack) == 1 {
		delete(m.undo, key)
	} else {
		m.undo[key] = stack[:len(stack)-1]
	}
	return s, true
}

// Peek returns the newest snapshot of a document without removing it.
func (m *Manager) Peek(key string) (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stack := m.undo[key]
	if len(stack) == 0 {
		return Snapshot{}, false
	}
	return stack[len(stack)-1], true
}

// Clear drops the stack of a document.
func (m *Manager) Clear(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.undo, key)
}
