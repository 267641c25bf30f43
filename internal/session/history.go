/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package session

import (
	"encoding/json"
	"log/slog"
	"time"

	"imannotate/internal/annotation"
	applog "imannotate/internal/log"
	"imannotate/internal/undo"
)

// snapshot records the committed state before a destructive scene command.
func (s *Session) snapshot(op string) {
	if s.restoring {
		return
	}
	blob, err := json.Marshal(s.scene.Export())
	if err != nil {
		s.log.Warn("undo snapshot failed", slog.String("op", op), slog.Any("err", err))
		return
	}
	s.history.PushSnapshot(undo.Snapshot{Key: s.key, Op: op, Blob: blob})
}

// CanUndo reports whether Undo would change anything.
func (s *Session) CanUndo() bool {
	if s.scene.InProgress() != nil {
		return true
	}
	_, ok := s.history.Peek(s.key)
	return ok
}

// Undo removes the last point of the shape under construction or, when no
// shape is being drawn, reverts the last delete, copy, relabel or move.
// Only one step is kept.
func (s *Session) Undo() bool {
	if s.scene.InProgress() != nil {
		return s.scene.UndoLastPoint()
	}
	snap, ok := s.history.Undo(s.key)
	if !ok {
		return false
	}
	var a annotation.Annotations
	if err := json.Unmarshal(snap.Blob, &a); err != nil {
		s.log.Warn("undo snapshot unreadable", slog.Any("err", err))
		return false
	}
	s.restoring = true
	defer func() { s.restoring = false }()
	if err := s.scene.Load(a); err != nil {
		s.log.Warn("undo restore failed", slog.String("op", snap.Op), slog.Any("err", err))
		return false
	}
	applog.WithOperation(s.log, "undo").Debug("restored",
		slog.String("op", snap.Op), slog.Duration("age", time.Since(snap.TS)))
	return true
}
