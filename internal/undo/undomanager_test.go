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
	"testing"
	"time"
)

func TestUndoSingleStep(t *testing.T) {
	m := NewManager(Config{})
	doc := "cells.json"
	t0 := time.Now()
	m.PushSnapshot(Snapshot{Key: doc, Op: "delete", Blob: []byte("a"), TS: t0})
	m.PushSnapshot(Snapshot{Key: doc, Op: "copy", Blob: []byte("b"), TS: t0.Add(time.Second)})
	if s, ok := m.Peek(doc); !ok || s.Op != "copy" {
		t.Fatalf("peek expected copy, got ok=%v op=%q", ok, s.Op)
	}
	s, ok := m.Undo(doc)
	if !ok || string(s.Blob) != "b" {
		t.Fatalf("undo expected 'b', got ok=%v blob=%q", ok, string(s.Blob))
	}
	if _, ok := m.Undo(doc); ok {
		t.Fatalf("only one step is kept by default")
	}
}

func TestDeeperStack(t *testing.T) {
	m := NewManager(Config{MaxDepth: 3})
	for _, b := range []string{"1", "2", "3", "4"} {
		m.PushSnapshot(Snapshot{Key: "d", Blob: []byte(b)})
	}
	for _, want := range []string{"4", "3", "2"} {
		s, ok := m.Undo("d")
		if !ok || string(s.Blob) != want {
			t.Fatalf("undo expected %q, got ok=%v blob=%q", want, ok, string(s.Blob))
		}
	}
	if _, ok := m.Undo("d"); ok {
		t.Fatalf("expected depth cap 3")
	}
}

func TestDocumentsAreIndependent(t *testing.T) {
	m := NewManager(Config{})
	m.PushSnapshot(Snapshot{Key: "a.json", Blob: []byte("a")})
	m.PushSnapshot(Snapshot{Key: "b.json", Blob: []byte("b")})
	m.Clear("a.json")
	if _, ok := m.Peek("a.json"); ok {
		t.Fatalf("cleared document still has a snapshot")
	}
	if s, ok := m.Undo("b.json"); !ok || string(s.Blob) != "b" {
		t.Fatalf("other document lost its snapshot: ok=%v blob=%q", ok, s.Blob)
	}
}

func TestZeroTimestampIsStamped(t *testing.T) {
	m := NewManager(Config{})
	m.PushSnapshot(Snapshot{Key: "d", Blob: []byte("x")})
	s, ok := m.Peek("d")
	if !ok || s.TS.IsZero() {
		t.Fatalf("expected stamped snapshot, got ok=%v ts=%v", ok, s.TS)
	}
}

func TestConcurrentPushAndUndo(t *testing.T) {
	m := NewManager(Config{MaxDepth: 4})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				m.PushSnapshot(Snapshot{Key: "d", Blob: []byte{byte(j)}})
				m.Undo("d")
			}
		}()
	}
	wg.Wait()
	n := 0
	for {
		if _, ok := m.Undo("d"); !ok {
			break
		}
		n++
	}
	if n > 4 {
		t.Fatalf("depth cap exceeded: %d", n)
	}
}
