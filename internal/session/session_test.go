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
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"imannotate/internal/annotation"
	"imannotate/internal/config"
	"imannotate/internal/geom"
	"imannotate/internal/imaging"
	"imannotate/internal/storage"
)

func writePNG(t *testing.T, path string, w, h int) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 90, A: 255})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return path
}

func click(s *annotation.Scene, x, y float64) {
	s.PointerDown(geom.Pt(x, y), annotation.ButtonPrimary, 0)
	s.PointerUp(geom.Pt(x, y), annotation.ButtonPrimary)
}

// drawSample commits a square polygon and a point.
func drawSample(t *testing.T, sc *annotation.Scene) {
	t.Helper()
	sc.SetMode(annotation.ModeDrawing)
	click(sc, 2, 2)
	click(sc, 20, 2)
	click(sc, 20, 20)
	click(sc, 2, 20)
	click(sc, 2, 2)
	click(sc, 30, 10)
	sc.CompleteAnnotation()
	if sc.Len() != 2 {
		t.Fatalf("setup: expected 2 shapes, got %d", sc.Len())
	}
}

type fakePrompter struct {
	substitute string
	labelFile  string
	asked      []string
}

func (f *fakePrompter) SubstituteImage(recorded string) (string, bool) {
	f.asked = append(f.asked, "image:"+recorded)
	return f.substitute, f.substitute != ""
}

func (f *fakePrompter) ChooseLabelFile(imagePath string) (string, bool) {
	f.asked = append(f.asked, "labels:"+filepath.Base(imagePath))
	return f.labelFile, f.labelFile != ""
}

func openedSession(t *testing.T, opts Options) (*Session, string) {
	t.Helper()
	dir := t.TempDir()
	imgPath := writePNG(t, filepath.Join(dir, "cells.png"), 40, 30)
	s := New(opts)
	if err := s.Open(context.Background(), imgPath); err != nil {
		t.Fatalf("open image: %v", err)
	}
	return s, dir
}

func TestOpenImageStartsEmptyDocument(t *testing.T) {
	s, dir := openedSession(t, Options{})
	if s.Scene().Len() != 0 {
		t.Fatalf("expected empty scene")
	}
	if got, want := s.Status(), "LOADED: cells | MODE: navigation | LABEL: default"; got != want {
		t.Fatalf("status = %q, want %q", got, want)
	}
	if got, want := s.SuggestedPath(), filepath.Join(dir, "cells.json"); got != want {
		t.Fatalf("suggested path = %q, want %q", got, want)
	}
	if s.Image().Width() != 40 || s.Image().Height() != 30 {
		t.Fatalf("unexpected image size %dx%d", s.Image().Width(), s.Image().Height())
	}
}

func TestSaveAndReopenDocument(t *testing.T) {
	ctx := context.Background()
	s, dir := openedSession(t, Options{UpdateCatalog: true})
	drawSample(t, s.Scene())
	if err := s.Save(ctx, ""); err != nil {
		t.Fatalf("save: %v", err)
	}
	docPath := filepath.Join(dir, "cells.json")
	if s.DocumentPath() != docPath {
		t.Fatalf("document path = %q", s.DocumentPath())
	}
	if _, err := os.Stat(storage.CSVPath(docPath)); err != nil {
		t.Fatalf("csv missing: %v", err)
	}
	if !strings.HasPrefix(s.Status(), "SAVED: cells | MODE: drawing") {
		t.Fatalf("unexpected status %q", s.Status())
	}
	entries, err := storage.ListDocuments(ctx, dir)
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	if len(entries) != 1 || entries[0].Objects != 2 {
		t.Fatalf("unexpected catalog entries: %+v", entries)
	}

	r := New(Options{})
	if err := r.Open(ctx, docPath); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	shapes := r.Scene().Shapes()
	if len(shapes) != 2 || shapes[0].Type != annotation.TypePolygon || shapes[1].Type != annotation.TypePoint {
		t.Fatalf("unexpected shapes after reopen: %d", len(shapes))
	}
	if !shapes[0].Closed || shapes[0].Len() != 4 {
		t.Fatalf("polygon not restored: closed=%v len=%d", shapes[0].Closed, shapes[0].Len())
	}
	if r.Image().Width() != 40 {
		t.Fatalf("image not resolved")
	}
}

func TestSaveAddsExtension(t *testing.T) {
	s, dir := openedSession(t, Options{})
	if err := s.Save(context.Background(), filepath.Join(dir, "out")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "out.json")); err != nil {
		t.Fatalf("expected out.json: %v", err)
	}
}

func TestOpenRejectsUnknownExtension(t *testing.T) {
	s, dir := openedSession(t, Options{})
	notes := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(notes, []byte("cells"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := s.Open(context.Background(), notes); !errors.Is(err, imaging.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
	if s.Name() != "cells" {
		t.Fatalf("document replaced by rejected open: %q", s.Name())
	}
}

func TestOpenRejectedDocumentKeepsState(t *testing.T) {
	s, dir := openedSession(t, Options{})
	drawSample(t, s.Scene())
	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte(`{"objects": [[[1,2]]], "type": []}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := s.Open(context.Background(), bad); err == nil {
		t.Fatalf("expected error for malformed document")
	}
	if s.Scene().Len() != 2 {
		t.Fatalf("scene changed by rejected document: %d shapes", s.Scene().Len())
	}
	if s.Name() != "cells" {
		t.Fatalf("document name changed to %q", s.Name())
	}
}

func TestOpenDocumentWithMissingImage(t *testing.T) {
	ctx := context.Background()
	s, dir := openedSession(t, Options{})
	drawSample(t, s.Scene())
	if err := s.Save(ctx, ""); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := os.Remove(filepath.Join(dir, "cells.png")); err != nil {
		t.Fatal(err)
	}
	docPath := filepath.Join(dir, "cells.json")

	r := New(Options{})
	err := r.Open(ctx, docPath)
	if !errors.Is(err, storage.ErrNeedImage) {
		t.Fatalf("expected ErrNeedImage, got %v", err)
	}
	if r.Image() != nil || r.Scene().Len() != 0 {
		t.Fatalf("failed open must not install anything")
	}

	other := writePNG(t, filepath.Join(t.TempDir(), "moved.png"), 40, 30)
	p := &fakePrompter{substitute: other}
	r.SetPrompter(p)
	if err := r.Open(ctx, docPath); err != nil {
		t.Fatalf("open with substitute: %v", err)
	}
	if r.Image().Path != other || r.Scene().Len() != 2 {
		t.Fatalf("substitute not used: path=%q len=%d", r.Image().Path, r.Scene().Len())
	}
	if len(p.asked) != 1 || !strings.HasPrefix(p.asked[0], "image:") {
		t.Fatalf("unexpected prompts: %v", p.asked)
	}
}

func TestEmbeddedImageSurvivesRemoval(t *testing.T) {
	ctx := context.Background()
	s, dir := openedSession(t, Options{EmbedImage: true})
	drawSample(t, s.Scene())
	if err := s.Save(ctx, ""); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := os.Remove(filepath.Join(dir, "cells.png")); err != nil {
		t.Fatal(err)
	}
	r := New(Options{})
	if err := r.Open(ctx, filepath.Join(dir, "cells.json")); err != nil {
		t.Fatalf("open embedded: %v", err)
	}
	if r.Image().Height() != 30 {
		t.Fatalf("embedded image not decoded")
	}
}

func TestResaveKeepsEmbeddedOnlyImage(t *testing.T) {
	ctx := context.Background()
	s, dir := openedSession(t, Options{EmbedImage: true})
	drawSample(t, s.Scene())
	docPath := filepath.Join(dir, "cells.json")
	if err := s.Save(ctx, docPath); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := os.Remove(filepath.Join(dir, "cells.png")); err != nil {
		t.Fatal(err)
	}
	r := New(Options{})
	if err := r.Open(ctx, docPath); err != nil {
		t.Fatalf("open embedded: %v", err)
	}
	d, _, err := r.Document()
	if err != nil {
		t.Fatalf("document: %v", err)
	}
	if d.ImageData == "" {
		t.Fatalf("embedded image data dropped on resave")
	}
	if err := r.Save(ctx, docPath); err != nil {
		t.Fatalf("resave: %v", err)
	}
	again := New(Options{})
	if err := again.Open(ctx, docPath); err != nil {
		t.Fatalf("reopen after resave: %v", err)
	}
	if again.Image().Width() != 40 || again.Scene().Len() != 2 {
		t.Fatalf("reopened %dx? with %d shapes", again.Image().Width(), again.Scene().Len())
	}
}

func TestOpenImageWithLabelFile(t *testing.T) {
	ctx := context.Background()
	s, dir := openedSession(t, Options{})
	drawSample(t, s.Scene())
	if err := s.Save(ctx, ""); err != nil {
		t.Fatalf("save: %v", err)
	}
	second := writePNG(t, filepath.Join(dir, "cells2.png"), 40, 30)
	p := &fakePrompter{labelFile: filepath.Join(dir, "cells.json")}
	r := New(Options{Prompter: p})
	if err := r.Open(ctx, second); err != nil {
		t.Fatalf("open: %v", err)
	}
	if r.Scene().Len() != 2 {
		t.Fatalf("label file not applied: %d shapes", r.Scene().Len())
	}
	if r.DocumentPath() != "" || r.Name() != "cells2" {
		t.Fatalf("image open must not adopt the label file: doc=%q name=%q", r.DocumentPath(), r.Name())
	}

	// a fresh image without labels empties the scene
	p.labelFile = ""
	if err := r.Open(ctx, second); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if r.Scene().Len() != 0 {
		t.Fatalf("expected reset scene, got %d shapes", r.Scene().Len())
	}
}

func TestUndoRoutesToDrawingThenSnapshot(t *testing.T) {
	s, _ := openedSession(t, Options{})
	sc := s.Scene()
	drawSample(t, sc)

	click(sc, 35, 25)
	if !s.CanUndo() || !s.Undo() {
		t.Fatalf("expected undo of the in-progress point")
	}
	if sc.InProgress() != nil || sc.Len() != 2 {
		t.Fatalf("in-progress shape should be discarded, committed kept")
	}
	if s.CanUndo() {
		t.Fatalf("nothing destructive happened yet")
	}

	id := sc.Shapes()[0].ID
	if err := sc.Select(id); err != nil {
		t.Fatalf("select: %v", err)
	}
	if !sc.DeleteSelected() {
		t.Fatalf("delete failed")
	}
	if sc.Len() != 1 {
		t.Fatalf("expected 1 shape after delete")
	}
	if !s.Undo() {
		t.Fatalf("expected undo of delete")
	}
	if sc.Len() != 2 || sc.Shapes()[0].Type != annotation.TypePolygon {
		t.Fatalf("delete not reverted")
	}
	if s.Undo() {
		t.Fatalf("only one step of history is kept")
	}
}

func TestUndoRevertsRelabel(t *testing.T) {
	s, _ := openedSession(t, Options{})
	sc := s.Scene()
	drawSample(t, sc)
	defs := []annotation.LabelDef{{Name: "cell", Color: annotation.Red}, {Name: "dust", Color: annotation.Black}}
	if err := sc.ReinitializeClasses(defs); err != nil {
		t.Fatalf("reinit: %v", err)
	}
	if !slices.Equal(sc.LabelNames(), []string{"cell", "dust"}) {
		t.Fatalf("labels = %v", sc.LabelNames())
	}
	if !s.Undo() {
		t.Fatalf("expected undo of relabel")
	}
	if !slices.Equal(sc.LabelNames(), []string{"default"}) {
		t.Fatalf("labels after undo = %v", sc.LabelNames())
	}
	if sc.Shapes()[0].Label != "default" {
		t.Fatalf("shape label not restored: %q", sc.Shapes()[0].Label)
	}
}

func TestExports(t *testing.T) {
	s, dir := openedSession(t, Options{CropSize: 16})
	drawSample(t, s.Scene())
	out := filepath.Join(dir, "exports")
	checks := map[string]func(string) error{
		"overlay.png": s.ExportOverlay,
		"mask.png": func(p string) error {
			n, err := s.ExportMask(p)
			// 18x18 square drawn by drawSample
			if err == nil && (n < 17*17 || n > 19*19) {
				t.Errorf("masked pixels = %d", n)
			}
			return err
		},
		"cells.svg":   s.ExportSVG,
		"cells.pdf":   s.ExportPDF,
	}
	for name, fn := range checks {
		p := filepath.Join(out, name)
		if err := fn(p); err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if st, err := os.Stat(p); err != nil || st.Size() == 0 {
			t.Fatalf("%s not written: %v", name, err)
		}
	}
	paths, err := s.CropPatches(filepath.Join(dir, "patch"))
	if err != nil {
		t.Fatalf("crop: %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("expected 2 patches, got %v", paths)
	}
}

func TestCenters(t *testing.T) {
	a := annotation.Annotations{Records: []annotation.Record{
		{Type: annotation.TypePolygon, Points: []geom.Point{geom.Pt(0, 0), geom.Pt(4, 0), geom.Pt(4, 4), geom.Pt(0, 4)}},
		{Type: annotation.TypePoint, Points: []geom.Point{geom.Pt(7, 9)}},
	}}
	got := Centers(a)
	if len(got) != 2 || !got[0].Eq(geom.Pt(2, 2)) || !got[1].Eq(geom.Pt(7, 9)) {
		t.Fatalf("centers = %v", got)
	}
}

func TestOperationsWithoutDocument(t *testing.T) {
	s := New(Options{})
	if err := s.Save(context.Background(), "x.json"); !errors.Is(err, ErrNoDocument) {
		t.Fatalf("save: %v", err)
	}
	if _, err := s.ExportMask("m.png"); !errors.Is(err, ErrNoDocument) {
		t.Fatalf("mask: %v", err)
	}
	if _, err := s.ImageList(); !errors.Is(err, ErrNoDocument) {
		t.Fatalf("image list: %v", err)
	}
	if _, err := s.Autosave(); !errors.Is(err, ErrNoDocument) {
		t.Fatalf("autosave: %v", err)
	}
	if got := s.Status(); got != "NO IMAGE | MODE: navigation | LABEL: default" {
		t.Fatalf("status = %q", got)
	}
}

func TestAutosaveAndReset(t *testing.T) {
	s, dir := openedSession(t, Options{})
	drawSample(t, s.Scene())
	p, err := s.Autosave()
	if err != nil {
		t.Fatalf("autosave: %v", err)
	}
	if filepath.Dir(p) != storage.BackupDir(filepath.Join(dir, "cells.json")) {
		t.Fatalf("autosave in unexpected dir: %s", p)
	}
	if _, err := storage.Load(p); err != nil {
		t.Fatalf("autosave unreadable: %v", err)
	}
	s.Reset()
	if s.Image() != nil || s.Scene().Len() != 0 || s.CrashDir() != "" {
		t.Fatalf("reset incomplete")
	}
}

func TestImageList(t *testing.T) {
	s, dir := openedSession(t, Options{})
	writePNG(t, filepath.Join(dir, "B.png"), 4, 4)
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := s.ImageList()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !slices.Equal(got, []string{"B.png", "cells.png"}) {
		t.Fatalf("list = %v", got)
	}
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.Defaults()
	cfg.Annotation.Epsilon = 9
	cfg.Annotation.Labels = []config.LabelConfig{{Name: "cell", Color: "#ff0000"}, {Name: "dust"}}
	s := New(OptionsFromConfig(cfg))
	if s.Scene().Epsilon() != 9 {
		t.Fatalf("epsilon = %v", s.Scene().Epsilon())
	}
	if !slices.Equal(s.Scene().LabelNames(), []string{"cell", "dust"}) {
		t.Fatalf("labels = %v", s.Scene().LabelNames())
	}
	if s.CanUndo() {
		t.Fatalf("configured labels must not leave an undo step")
	}
}

func TestConfigureAppliesSaveSettings(t *testing.T) {
	ctx := context.Background()
	s, dir := openedSession(t, Options{})
	s.Configure(Options{EmbedImage: true, CropSize: 8})
	drawSample(t, s.Scene())
	if err := s.Save(ctx, ""); err != nil {
		t.Fatalf("save: %v", err)
	}
	doc, err := storage.Load(filepath.Join(dir, "cells.json"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if doc.ImageData == "" {
		t.Fatalf("expected embedded image after Configure")
	}
	files, err := s.CropPatches(filepath.Join(dir, "p"))
	if err != nil || len(files) != 2 {
		t.Fatalf("crop patches: %v %v", files, err)
	}
}
