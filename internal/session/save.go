/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package session

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	applog "imannotate/internal/log"
	"imannotate/internal/storage"
)

// Document serializes the committed scene state against the open image.
// An image that only exists as embedded data stays embedded whatever the
// EmbedImage option says.
func (s *Session) Document() (*storage.Document, []storage.Row, error) {
	if s.image == nil {
		return nil, nil, ErrNoDocument
	}
	embed := s.opts.EmbedImage
	if s.embedded && !embed {
		s.log.Warn("keeping embedded image data, no file backs it", slog.String("image", s.imagePath))
		embed = true
	}
	meta := storage.ImageMeta{
		Path:   s.imagePath,
		Width:  s.image.Width(),
		Height: s.image.Height(),
		Data:   s.image.Data,
	}
	d, rows := storage.Serialize(s.scene.Export(), meta, storage.SaveOptions{EmbedImage: embed})
	return d, rows, nil
}

// Save writes the document and its CSV export to path (SuggestedPath when
// empty) and updates the folder catalog. A catalog failure is logged and
// does not fail the save.
func (s *Session) Save(ctx context.Context, path string) error {
	l := applog.WithOperation(s.log, "save")
	d, rows, err := s.Document()
	if err != nil {
		return err
	}
	if strings.TrimSpace(path) == "" {
		path = s.SuggestedPath()
	}
	if filepath.Ext(path) == "" {
		path += ".json"
	}
	ctx = applog.WithDocument(ctx, path)
	if err := storage.Save(path, d, rows); err != nil {
		l.ErrorContext(ctx, "save failed", slog.Any("err", err))
		return err
	}
	if s.opts.UpdateCatalog {
		if err := storage.RecordDocument(ctx, path, d); err != nil {
			l.WarnContext(ctx, "catalog update failed", slog.Any("err", err))
		}
	}
	s.docPath = path
	s.name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	s.action = "SAVED"
	l.InfoContext(ctx, "saved", slog.Int("objects", len(d.Objects)))
	return nil
}

// CrashDir is where crash reports and autosaves of this document go.
func (s *Session) CrashDir() string {
	if p := s.SuggestedPath(); p != "" {
		return storage.BackupDir(p)
	}
	return ""
}

// Autosave writes the current state next to the backups without touching
// the document itself.
func (s *Session) Autosave() (string, error) {
	d, _, err := s.Document()
	if err != nil {
		return "", err
	}
	dir := s.CrashDir()
	if dir == "" {
		return "", fmt.Errorf("autosave: %w", ErrNoDocument)
	}
	return storage.AutosaveCrash(dir, s.name, d)
}
