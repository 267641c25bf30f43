/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	applog "imannotate/internal/log"
	"imannotate/internal/version"

	// Pure-Go SQLite driver (CGO-free)
	_ "modernc.org/sqlite"
)

const (
	IndexFileName = "catalog.sqlite"

	// schemaVersion tracks the local SQLite schema of the catalog.
	schemaVersion = 2
)

// IndexPath returns the catalog database path for documents in dir.
func IndexPath(dir string) string {
	return filepath.Join(dir, MetaDirName, IndexFileName)
}

// InitOrOpenIndex ensures the catalog exists for dir, opens it in WAL mode and
// brings the schema up to date.
func InitOrOpenIndex(dir string) (*sql.DB, error) {
	l := applog.WithOperation(applog.WithComponent("storage"), "index_init").With(
		slog.String("dir", dir),
	)
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("directory is required")
	}
	if err := os.MkdirAll(filepath.Join(dir, MetaDirName), 0o755); err != nil {
		l.Error("create meta dir failed", slog.Any("err", err))
		return nil, fmt.Errorf("create %s dir: %w", MetaDirName, err)
	}

	path := IndexPath(dir)
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", filepath.ToSlash(path))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		l.Error("sqlite open failed", slog.Any("err", err))
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		_ = db.Close()
		l.Error("enable WAL failed", slog.Any("err", err))
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON;"); err != nil {
		l.Warn("enable foreign_keys failed", slog.Any("err", err))
	}
	if err := ensureMetaAndVersion(ctx, db); err != nil {
		_ = db.Close()
		l.Error("ensure meta/version failed", slog.Any("err", err))
		return nil, err
	}
	if err := ensureIndexSchema(ctx, db); err != nil {
		_ = db.Close()
		l.Error("ensure index schema failed", slog.Any("err", err))
		return nil, err
	}
	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		l.Error("run migrations failed", slog.Any("err", err))
		return nil, err
	}
	l.Debug("catalog ready", slog.String("path", path))
	return db, nil
}

func ensureMetaAndVersion(ctx context.Context, db *sql.DB) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS version (
			id          INTEGER PRIMARY KEY CHECK(id=1),
			schema      INTEGER NOT NULL,
			app         TEXT,
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		);`,
	}
	for _, q := range ddl {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	now := time.Now().UTC().Format(time.RFC3339)
	appv := version.String()
	var cur int
	err := db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&cur)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// a fresh database gets version 1 and is migrated from there
		if _, err := db.ExecContext(ctx, `INSERT INTO version (id, schema, app, created_at, updated_at) VALUES(1, 1, ?, ?, ?)`, appv, now, now); err != nil {
			return fmt.Errorf("insert version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read version: %w", err)
	default:
		if _, err := db.ExecContext(ctx, `UPDATE version SET app=?, updated_at=? WHERE id=1`, appv, now); err != nil {
			return fmt.Errorf("update version: %w", err)
		}
	}
	return nil
}

func ensureIndexSchema(ctx context.Context, db *sql.DB) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			path        TEXT PRIMARY KEY,
			image_path  TEXT,
			width       INTEGER NOT NULL,
			height      INTEGER NOT NULL,
			objects     INTEGER NOT NULL,
			updated_at  TEXT    NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS labels (
			path   TEXT    NOT NULL,
			label  TEXT    NOT NULL,
			type   TEXT    NOT NULL,
			count  INTEGER NOT NULL,
			PRIMARY KEY(path, label, type),
			FOREIGN KEY(path) REFERENCES documents(path) ON DELETE CASCADE
		);`,
	}
	for _, q := range ddl {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("ensure index schema: %w", err)
		}
	}
	return nil
}

// runMigrations applies incremental schema migrations up to schemaVersion.
func runMigrations(ctx context.Context, db *sql.DB) error {
	var cur int
	if err := db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&cur); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	for cur < schemaVersion {
		next := cur + 1
		var stmts []string
		switch next {
		case 2:
			stmts = []string{`CREATE INDEX IF NOT EXISTS idx_labels_label ON labels(label);`}
		}
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", next, err)
		}
		for _, q := range stmts {
			if _, err := tx.ExecContext(ctx, q); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("migration %d stmt failed: %w", next, err)
			}
		}
		if _, err := tx.ExecContext(ctx, `UPDATE version SET schema=?, updated_at=? WHERE id=1`, next, time.Now().UTC().Format(time.RFC3339)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d update version: %w", next, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d commit: %w", next, err)
		}
		cur = next
	}
	return nil
}

// CatalogEntry summarizes one saved document.
type CatalogEntry struct {
	Path      string
	ImagePath string
	Width     int
	Height    int
	Objects   int
	UpdatedAt time.Time
}

// LabelCount is the number of objects of one type under one label.
type LabelCount struct {
	Label string
	Type  string
	Count int
}

// RecordDocument upserts the catalog entry for the document saved at docPath.
func RecordDocument(ctx context.Context, docPath string, d *Document) error {
	db, err := InitOrOpenIndex(filepath.Dir(docPath))
	if err != nil {
		return err
	}
	defer db.Close()
	return recordDocument(ctx, db, docPath, d)
}

func recordDocument(ctx context.Context, db *sql.DB, docPath string, d *Document) error {
	key := filepath.Base(docPath)
	counts := map[[2]string]int{}
	for i := range d.Objects {
		if i < len(d.Label) && i < len(d.Type) {
			counts[[2]string{d.Label[i], d.Type[i]}]++
		}
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := tx.ExecContext(ctx, `DELETE FROM labels WHERE path=?`, key); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("clear labels: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO documents(path, image_path, width, height, objects, updated_at) VALUES(?,?,?,?,?,?)
		ON CONFLICT(path) DO UPDATE SET image_path=excluded.image_path, width=excluded.width, height=excluded.height,
		objects=excluded.objects, updated_at=excluded.updated_at`,
		key, d.ImagePath, d.Width(), d.Height(), len(d.Objects), now); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("upsert document: %w", err)
	}
	for k, n := range counts {
		if _, err := tx.ExecContext(ctx, `INSERT INTO labels(path, label, type, count) VALUES(?,?,?,?)`, key, k[0], k[1], n); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert label count: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ListDocuments returns catalog entries for dir ordered by path.
func ListDocuments(ctx context.Context, dir string) ([]CatalogEntry, error) {
	db, err := InitOrOpenIndex(dir)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	rows, err := db.QueryContext(ctx, `SELECT path, COALESCE(image_path,''), width, height, objects, updated_at FROM documents ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()
	var out []CatalogEntry
	for rows.Next() {
		var e CatalogEntry
		var ts string
		if err := rows.Scan(&e.Path, &e.ImagePath, &e.Width, &e.Height, &e.Objects, &ts); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		e.UpdatedAt, _ = time.Parse(time.RFC3339, ts)
		out = append(out, e)
	}
	return out, rows.Err()
}

// LabelCounts aggregates object counts per label and type across dir.
func LabelCounts(ctx context.Context, dir string) ([]LabelCount, error) {
	db, err := InitOrOpenIndex(dir)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	rows, err := db.QueryContext(ctx, `SELECT label, type, SUM(count) FROM labels GROUP BY label, type ORDER BY label, type`)
	if err != nil {
		return nil, fmt.Errorf("query labels: %w", err)
	}
	defer rows.Close()
	var out []LabelCount
	for rows.Next() {
		var c LabelCount
		if err := rows.Scan(&c.Label, &c.Type, &c.Count); err != nil {
			return nil, fmt.Errorf("scan label count: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// RebuildIndex clears the catalog for dir and re-records every loadable
// annotation document found there. It returns the number of documents indexed.
func RebuildIndex(ctx context.Context, dir string) (int, error) {
	l := applog.WithOperation(applog.WithComponent("storage"), "index_rebuild")
	db, err := InitOrOpenIndex(dir)
	if err != nil {
		return 0, err
	}
	defer db.Close()
	for _, q := range []string{`DELETE FROM labels;`, `DELETE FROM documents;`} {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return 0, fmt.Errorf("clear catalog: %w", err)
		}
	}
	ents, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read dir: %w", err)
	}
	n := 0
	for _, e := range ents {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".json") {
			continue
		}
		p := filepath.Join(dir, e.Name())
		d, err := Load(p)
		if err != nil {
			l.Debug("skip non-annotation json", slog.String("path", p), slog.Any("err", err))
			continue
		}
		if err := recordDocument(ctx, db, p, d); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// DetectAndRebuildIndex rebuilds the catalog when it cannot be opened or
// fails an integrity check. It reports whether a rebuild happened.
func DetectAndRebuildIndex(ctx context.Context, dir string) (bool, error) {
	path := IndexPath(dir)
	db, err := InitOrOpenIndex(dir)
	if err != nil {
		backupIndexFile(path)
		_ = os.Remove(path)
		if _, rbErr := RebuildIndex(ctx, dir); rbErr != nil {
			return false, fmt.Errorf("rebuild after open failure: %w (open err: %v)", rbErr, err)
		}
		return true, nil
	}
	var chk string
	needs := db.QueryRowContext(ctx, `PRAGMA quick_check;`).Scan(&chk) != nil || !strings.Contains(strings.ToLower(chk), "ok")
	_ = db.Close()
	if !needs {
		return false, nil
	}
	backupIndexFile(path)
	_ = os.Remove(path)
	if _, err := RebuildIndex(ctx, dir); err != nil {
		return false, err
	}
	return true, nil
}

// backupIndexFile copies the catalog into the backups folder.
func backupIndexFile(indexPath string) {
	bdir := filepath.Join(filepath.Dir(indexPath), BackupsDirName)
	_ = os.MkdirAll(bdir, 0o755)
	stamp := time.Now().Format("20060102-150405")
	bak := filepath.Join(bdir, fmt.Sprintf("%s.%s.bak", filepath.Base(indexPath), stamp))
	if data, err := os.ReadFile(indexPath); err == nil {
		_ = os.WriteFile(bak, data, 0o644)
	}
}
