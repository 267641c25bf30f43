/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	// MetaDirName holds per-directory backups and the catalog.
	MetaDirName    = ".imannotate"
	BackupsDirName = "backups"
)

// ErrNeedImage is matched by NeedImageError.
var ErrNeedImage = errors.New("referenced image is not available")

// NeedImageError reports that a document's image could not be read and no
// bytes were embedded. Callers may ask the user for a substitute path.
type NeedImageError struct {
	Path string
	Err  error
}

func (e *NeedImageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("need image %q: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("need image %q", e.Path)
}

func (e *NeedImageError) Unwrap() error        { return e.Err }
func (e *NeedImageError) Is(target error) bool { return target == ErrNeedImage }

// BackupDir returns the backup folder for documents in docPath's directory.
func BackupDir(docPath string) string {
	return filepath.Join(filepath.Dir(docPath), MetaDirName, BackupsDirName)
}

// Save writes the document transactionally, keeping a timestamped backup of
// the previous version, and then writes the CSV export next to it. Every
// failure matches ErrSaveFailed.
func Save(path string, d *Document, rows []Row) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("%w: empty path", ErrSaveFailed)
	}
	if d == nil {
		return fmt.Errorf("%w: nil document", ErrSaveFailed)
	}
	data, err := Encode(d)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSaveFailed, err)
	}

	if _, statErr := os.Stat(path); statErr == nil {
		stamp := time.Now().Format("20060102-150405")
		bpath := filepath.Join(BackupDir(path), fmt.Sprintf("%s.%s.bak", filepath.Base(path), stamp))
		if cerr := copyFile(path, bpath); cerr != nil {
			return fmt.Errorf("%w: backup current document: %w", ErrSaveFailed, cerr)
		}
	}
	if err := replaceFile(path, data); err != nil {
		return fmt.Errorf("%w: %w", ErrSaveFailed, err)
	}

	var buf strings.Builder
	if err := WriteCSV(&buf, rows); err != nil {
		return fmt.Errorf("%w: render csv: %w", ErrSaveFailed, err)
	}
	if err := replaceFile(CSVPath(path), []byte(buf.String())); err != nil {
		return fmt.Errorf("%w: %w", ErrSaveFailed, err)
	}
	return nil
}

// replaceFile writes data to a temp file in the target directory and renames
// it over path.
func replaceFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("ensure dir: %w", err)
	}
	temp := filepath.Join(dir, fmt.Sprintf(".%s.tmp-%d-%d", filepath.Base(path), os.Getpid(), rand.Int()))
	if err := writeFileSync(temp, data); err != nil {
		_ = os.Remove(temp)
		return fmt.Errorf("write temp %s: %w", filepath.Base(path), err)
	}
	// On Windows, replace by removing destination first if needed
	if _, err := os.Stat(path); err == nil {
		_ = os.Remove(path)
	}
	if err := os.Rename(temp, path); err != nil {
		_ = os.Remove(temp)
		return fmt.Errorf("replace %s: %w", filepath.Base(path), err)
	}
	return nil
}

// Load reads and validates the document at path.
func Load(path string) (*Document, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	d, err := Decode(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return d, nil
}

// LatestBackup loads the newest backup of the document at path.
func LatestBackup(path string) (*Document, string, error) {
	bdir := BackupDir(path)
	ents, err := os.ReadDir(bdir)
	if err != nil {
		return nil, "", fmt.Errorf("read backups dir: %w", err)
	}
	prefix := filepath.Base(path) + "."
	var candidates []string
	for _, e := range ents {
		name := e.Name()
		if strings.HasPrefix(name, prefix) && strings.HasSuffix(name, ".bak") {
			candidates = append(candidates, filepath.Join(bdir, name))
		}
	}
	if len(candidates) == 0 {
		return nil, "", errors.New("no backups found")
	}
	sort.Strings(candidates) // timestamp in name yields lexicographic order
	latest := candidates[len(candidates)-1]
	d, err := Load(latest)
	if err != nil {
		return nil, latest, err
	}
	return d, latest, nil
}

// ResolveImage returns the image bytes for d: embedded data first, then
// imagePath as recorded, then imagePath relative to the document and finally
// a file of the same name next to the document. It returns the path the bytes
// came from ("" for embedded data). When nothing is readable the error is a
// *NeedImageError.
func ResolveImage(d *Document, docPath string) ([]byte, string, error) {
	data, err := DecodeImageData(d)
	if err != nil {
		return nil, "", err
	}
	if data != nil {
		return data, "", nil
	}
	if strings.TrimSpace(d.ImagePath) == "" {
		return nil, "", &NeedImageError{Path: ""}
	}
	docDir := filepath.Dir(docPath)
	candidates := []string{d.ImagePath}
	if !filepath.IsAbs(d.ImagePath) {
		candidates = append(candidates, filepath.Join(docDir, d.ImagePath))
	}
	candidates = append(candidates, filepath.Join(docDir, filepath.Base(filepath.FromSlash(d.ImagePath))))
	var firstErr error
	for _, p := range candidates {
		b, err := os.ReadFile(p)
		if err == nil {
			return b, p, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, "", &NeedImageError{Path: d.ImagePath, Err: firstErr}
}

// AutosaveCrash writes d as <dir>/<name>.crash-<stamp>.json and returns the
// path written.
func AutosaveCrash(dir, name string, d *Document) (string, error) {
	if d == nil {
		return "", errors.New("nil document")
	}
	if name == "" {
		name = "untitled"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("ensure autosave dir: %w", err)
	}
	data, err := Encode(d)
	if err != nil {
		return "", err
	}
	stamp := time.Now().Format("20060102-150405")
	p := filepath.Join(dir, fmt.Sprintf("%s.crash-%s.json", strings.TrimSuffix(name, filepath.Ext(name)), stamp))
	if err := writeFileSync(p, data); err != nil {
		return "", fmt.Errorf("write autosave: %w", err)
	}
	return p, nil
}

// writeFileSync writes data to a file, ensures it is flushed to disk.
func writeFileSync(path string, data []byte) (err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Sync()
}

// copyFile copies a file from src to dst (overwrites dst if exists).
func copyFile(src, dst string) (err error) {
	sf, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sf.Close(); err == nil {
			err = cerr
		}
	}()
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	df, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := df.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := io.Copy(df, sf); err != nil {
		return err
	}
	return df.Sync()
}
