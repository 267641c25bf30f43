/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */


// Package session is the document controller between the annotation scene
// and the outside world: it opens images and annotation documents, saves,
// routes undo and drives the exporters.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"imannotate/internal/annotation"
	"imannotate/internal/config"
	"imannotate/internal/imaging"
	applog "imannotate/internal/log"
	"imannotate/internal/storage"
	"imannotate/internal/undo"
)

// ErrNoDocument is returned by operations that need an open image.
var ErrNoDocument = errors.New("no document open")

// Prompter is the dialog collaborator. Returning ok=false cancels.
type Prompter interface {
	// SubstituteImage asks for a replacement when a document's image is missing.
	SubstituteImage(recorded string) (path string, ok bool)
	// ChooseLabelFile offers an annotation document to load over a freshly
	// opened image. An empty path skips.
	ChooseLabelFile(imagePath string) (path string, ok bool)
}

// Options configure a session.
type Options struct {
	Style         annotation.Style
	Epsilon       float64
	PreviewColor  annotation.Color
	Labels        []annotation.LabelDef
	EmbedImage    bool
	CropSize      int
	UpdateCatalog bool
	Prompter      Prompter
}

// OptionsFromConfig maps the user configuration onto session options.
func OptionsFromConfig(cfg config.AppConfig) Options {
	a := cfg.Annotation
	return Options{
		Style:         a.Style(),
		Epsilon:       a.Epsilon,
		PreviewColor:  a.Preview(),
		Labels:        a.LabelDefs(),
		EmbedImage:    a.EmbedImage,
		CropSize:      a.CropSize,
		UpdateCatalog: cfg.General.UpdateCatalog,
	}
}

// Session owns one scene and the document it shows.
type Session struct {
	opts    Options
	scene   *annotation.Scene
	history *undo.Manager
	log     *slog.Logger

	image     *imaging.Image
	imagePath string // as recorded in the document
	docPath   string // "" until opened from or saved to a document
	name      string
	action    string
	key       string // undo history key of the open document
	restoring bool
	// embedded is set when the image came from the document's imageData
	// and no file on disk backs it.
	embedded bool
}

// New creates a session with an empty scene.
func New(opts Options) *Session {
	if opts.Style == (annotation.Style{}) {
		opts.Style = annotation.DefaultStyle()
	}
	s := &Session{
		opts:    opts,
		scene:   annotation.NewScene(opts.Style),
		history: undo.NewManager(undo.Config{MaxDepth: 1}),
		log:     applog.WithComponent("session"),
	}
	if opts.Epsilon > 0 {
		s.scene.SetEpsilon(opts.Epsilon)
	}
	if opts.PreviewColor != (annotation.Color{}) {
		s.scene.SetPreviewColor(opts.PreviewColor)
	}
	if len(opts.Labels) > 0 {
		if err := s.scene.ReinitializeClasses(opts.Labels); err != nil {
			s.log.Warn("configured labels ignored", slog.Any("err", err))
		}
	}
	s.scene.OnBeforeEdit(s.snapshot)
	return s
}

func (s *Session) Scene() *annotation.Scene { return s.scene }
func (s *Session) Image() *imaging.Image    { return s.image }
func (s *Session) DocumentPath() string     { return s.docPath }
func (s *Session) Name() string             { return s.name }

// Configure updates the save and export settings. Scene style, labels and
// the prompter are left alone.
func (s *Session) Configure(opts Options) {
	s.opts.EmbedImage = opts.EmbedImage
	s.opts.CropSize = opts.CropSize
	s.opts.UpdateCatalog = opts.UpdateCatalog
}

// SetPrompter replaces the dialog collaborator.
func (s *Session) SetPrompter(p Prompter) { s.opts.Prompter = p }

// SuggestedPath is where Save writes when no path is given.
func (s *Session) SuggestedPath() string {
	if s.docPath != "" {
		return s.docPath
	}
	if s.image != nil && s.image.Path != "" {
		return strings.TrimSuffix(s.image.Path, filepath.Ext(s.image.Path)) + ".json"
	}
	return ""
}

func (s *Session) ctx(ctx context.Context) context.Context {
	if p := s.SuggestedPath(); p != "" {
		return applog.WithDocument(ctx, p)
	}
	return ctx
}

// Open loads an annotation document (.json) or an image. The next document
// is fully read and validated before the current one is replaced; on error
// the session is unchanged.
func (s *Session) Open(ctx context.Context, path string) error {
	l := applog.WithOperation(s.log, "open")
	var err error
	switch {
	case strings.EqualFold(filepath.Ext(path), ".json"):
		err = s.openDocument(path)
	case imaging.IsImagePath(path):
		err = s.openImage(path)
	default:
		err = fmt.Errorf("%s: %w", filepath.Base(path), imaging.ErrUnsupported)
	}
	if err != nil {
		l.WarnContext(ctx, "open failed", slog.String("path", path), slog.Any("err", err))
		return err
	}
	l.InfoContext(s.ctx(ctx), "opened", slog.Int("objects", s.scene.Len()))
	return nil
}

func (s *Session) openDocument(path string) error {
	doc, err := storage.Load(path)
	if err != nil {
		return err
	}
	a, err := storage.Deserialize(doc)
	if err != nil {
		return err
	}
	recorded := doc.ImagePath
	data, src, err := storage.ResolveImage(doc, path)
	if errors.Is(err, storage.ErrNeedImage) && s.opts.Prompter != nil {
		p, ok := s.opts.Prompter.SubstituteImage(doc.ImagePath)
		if !ok || p == "" {
			return err
		}
		if data, err = os.ReadFile(p); err != nil {
			return fmt.Errorf("substitute image: %w", err)
		}
		src, recorded = p, p
	}
	if err != nil {
		return err
	}
	img, err := imaging.Decode(data)
	if err != nil {
		return err
	}
	img.Path = src
	if err := s.install(a, true); err != nil {
		return err
	}
	s.setDocument(img, recorded, path)
	if src == "" {
		bare := *doc
		bare.ImageData = ""
		_, _, ferr := storage.ResolveImage(&bare, path)
		s.embedded = ferr != nil
	}
	return nil
}

func (s *Session) openImage(path string) error {
	img, err := imaging.Open(path)
	if err != nil {
		return err
	}
	var a annotation.Annotations
	withLabels := false
	if s.opts.Prompter != nil {
		if lp, ok := s.opts.Prompter.ChooseLabelFile(path); ok && lp != "" {
			doc, err := storage.Load(lp)
			if err != nil {
				return fmt.Errorf("label file: %w", err)
			}
			if a, err = storage.Deserialize(doc); err != nil {
				return fmt.Errorf("label file: %w", err)
			}
			withLabels = true
		}
	}
	if err := s.install(a, withLabels); err != nil {
		return err
	}
	s.setDocument(img, path, "")
	return nil
}

func (s *Session) install(a annotation.Annotations, load bool) error {
	if !load {
		s.scene.Reset()
		return nil
	}
	return s.scene.Load(a)
}

func (s *Session) setDocument(img *imaging.Image, recorded, docPath string) {
	s.history.Clear(s.key)
	s.image = img
	s.imagePath = recorded
	s.docPath = docPath
	base := img.Path
	if docPath != "" {
		base = docPath
	}
	s.name = strings.TrimSuffix(filepath.Base(base), filepath.Ext(base))
	s.key = base
	s.action = "LOADED"
	s.embedded = false
}

// Reset clears the scene and forgets the current document.
func (s *Session) Reset() {
	s.history.Clear(s.key)
	s.key = ""
	s.scene.Reset()
	s.image = nil
	s.imagePath = ""
	s.docPath = ""
	s.name = ""
	s.action = ""
	s.embedded = false
}

// Status renders the status line, e.g. "LOADED: cells | MODE: drawing | LABEL: nucleus".
func (s *Session) Status() string {
	label := ""
	if c := s.scene.ActiveLabel(); c != nil {
		label = "LABEL: " + c.Name
	}
	if s.image == nil {
		return fmt.Sprintf("NO IMAGE | MODE: %s | %s", s.scene.Mode(), label)
	}
	return fmt.Sprintf("%s: %s | MODE: %s | %s", s.action, s.name, s.scene.Mode(), label)
}

// ImageList lists the images and documents next to the open file.
func (s *Session) ImageList() ([]string, error) {
	p := s.SuggestedPath()
	if p == "" {
		return nil, ErrNoDocument
	}
	return imaging.ListImages(filepath.Dir(p))
}
