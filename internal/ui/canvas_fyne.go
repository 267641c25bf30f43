//go:build fyne && cgo

/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package ui

import (
	"image"
	"image/color"
	"image/draw"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/widget"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"imannotate/internal/annotation"
	"imannotate/internal/export"
	"imannotate/internal/geom"
	"imannotate/internal/session"
	"imannotate/internal/viewport"
)

var canvasBackground = color.RGBA{R: 30, G: 30, B: 34, A: 255}

// AnnotationCanvas shows the session image with its annotations and feeds
// pointer and key input to the scene through a viewport.
type AnnotationCanvas struct {
	widget.BaseWidget

	sess  *session.Session
	view  *viewport.Viewport
	input *viewport.Adapter

	held annotation.Button
	mods annotation.Modifiers
	// refit once the widget has a size
	fitPending bool
}

var (
	_ desktop.Mouseable  = (*AnnotationCanvas)(nil)
	_ desktop.Hoverable  = (*AnnotationCanvas)(nil)
	_ desktop.Cursorable = (*AnnotationCanvas)(nil)
	_ fyne.Draggable     = (*AnnotationCanvas)(nil)
	_ fyne.Scrollable    = (*AnnotationCanvas)(nil)
)

func NewAnnotationCanvas(s *session.Session) *AnnotationCanvas {
	c := &AnnotationCanvas{sess: s, view: viewport.New(0, 0)}
	c.input = viewport.NewAdapter(c.view, s.Scene(), s.Undo)
	c.ExtendBaseWidget(c)
	return c
}

func (c *AnnotationCanvas) PreferredSize() fyne.Size { return fyne.NewSize(800, 600) }

// View exposes the viewport for zoom controls.
func (c *AnnotationCanvas) View() *viewport.Viewport { return c.view }

// ImageChanged picks up the session image size and fits it to the widget.
func (c *AnnotationCanvas) ImageChanged() {
	if img := c.sess.Image(); img != nil && img.Img != nil {
		b := img.Img.Bounds()
		c.view.SetImageSize(b.Dx(), b.Dy())
	} else {
		c.view.SetImageSize(0, 0)
	}
	c.fitPending = true
	if sz := c.Size(); sz.Width > 0 && sz.Height > 0 {
		c.view.Fit()
		c.fitPending = false
	}
	c.Refresh()
}

// FitView resets zoom and pan so the whole image is visible.
func (c *AnnotationCanvas) FitView() {
	c.view.Fit()
	c.Refresh()
}

func (c *AnnotationCanvas) Resize(size fyne.Size) {
	c.BaseWidget.Resize(size)
	c.view.Resize(float64(size.Width), float64(size.Height))
	if c.fitPending && size.Width > 0 && size.Height > 0 {
		c.view.Fit()
		c.fitPending = false
	}
}

// HandleKey applies a shortcut and reports whether it was used.
func (c *AnnotationCanvas) HandleKey(k viewport.Key, mods annotation.Modifiers) bool {
	if !c.input.KeyDown(k, mods) {
		return false
	}
	c.Refresh()
	return true
}

func (c *AnnotationCanvas) MouseDown(e *desktop.MouseEvent) {
	b := toButton(e.Button)
	c.held |= b
	c.mods = toMods(e.Modifier)
	c.input.PointerDown(toPoint(e.Position), b, c.mods)
	c.Refresh()
}

func (c *AnnotationCanvas) MouseUp(e *desktop.MouseEvent) {
	b := toButton(e.Button)
	c.held &^= b
	c.input.PointerUp(toPoint(e.Position), b)
	c.Refresh()
}

func (c *AnnotationCanvas) MouseIn(*desktop.MouseEvent) {}
func (c *AnnotationCanvas) MouseOut()                   {}

func (c *AnnotationCanvas) MouseMoved(e *desktop.MouseEvent) {
	c.mods = toMods(e.Modifier)
	c.input.PointerMove(toPoint(e.Position), c.held, c.mods)
	c.Refresh()
}

// Dragged carries no button or modifier state; both are remembered from MouseDown.
func (c *AnnotationCanvas) Dragged(e *fyne.DragEvent) {
	c.input.PointerMove(toPoint(e.Position), c.held, c.mods)
	c.Refresh()
}

func (c *AnnotationCanvas) DragEnd() {}

func (c *AnnotationCanvas) Scrolled(e *fyne.ScrollEvent) {
	switch {
	case e.Scrolled.DY > 0:
		c.input.Scroll(toPoint(e.Position), 1)
	case e.Scrolled.DY < 0:
		c.input.Scroll(toPoint(e.Position), -1)
	default:
		return
	}
	c.Refresh()
}

func (c *AnnotationCanvas) Cursor() desktop.Cursor {
	if c.input.Panning() {
		return desktop.PointerCursor
	}
	switch c.sess.Scene().Cursor() {
	case annotation.CursorDraw:
		return desktop.CrosshairCursor
	case annotation.CursorPoint, annotation.CursorGrab:
		return desktop.PointerCursor
	}
	return desktop.DefaultCursor
}

func toPoint(p fyne.Position) geom.Point { return geom.Pt(float64(p.X), float64(p.Y)) }

func toButton(b desktop.MouseButton) annotation.Button {
	var out annotation.Button
	if b&desktop.MouseButtonPrimary != 0 {
		out |= annotation.ButtonPrimary
	}
	if b&desktop.MouseButtonSecondary != 0 {
		out |= annotation.ButtonSecondary
	}
	if b&desktop.MouseButtonTertiary != 0 {
		out |= annotation.ButtonMiddle
	}
	return out
}

func toMods(m fyne.KeyModifier) annotation.Modifiers {
	var out annotation.Modifiers
	if m&fyne.KeyModifierShift != 0 {
		out |= annotation.ModShift
	}
	if m&fyne.KeyModifierControl != 0 {
		out |= annotation.ModCtrl
	}
	if m&fyne.KeyModifierAlt != 0 {
		out |= annotation.ModAlt
	}
	return out
}

// paint renders the canvas at pixel size w x h.
func (c *AnnotationCanvas) paint(w, h int) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(canvasBackground), image.Point{}, draw.Src)
	size := c.Size()
	if size.Width <= 0 || w <= 0 {
		return dst
	}
	px := float64(w) / float64(size.Width)
	m := geom.Scale(px, px).Mul(c.view.Transform())
	if img := c.sess.Image(); img != nil && img.Img != nil {
		xdraw.ApproxBiLinear.Transform(dst, f64.Aff3{m.A, m.C, m.E, m.B, m.D, m.F}, img.Img, img.Img.Bounds(), xdraw.Over, nil)
	}
	annotation.Render(c.sess.Scene(), &screenSurface{r: export.NewRaster(dst), m: m})
	return dst
}

// screenSurface maps scene coordinates onto the widget raster.
type screenSurface struct {
	r *export.Raster
	m geom.Affine
}

func (s *screenSurface) apply(pts []geom.Point) []geom.Point {
	out := make([]geom.Point, len(pts))
	for i, p := range pts {
		out[i] = s.m.Apply(p)
	}
	return out
}

func (s *screenSurface) scale(v float64) float64 {
	if v *= s.m.ScaleFactor(); v < 1 {
		return 1
	}
	return v
}

func (s *screenSurface) DrawPath(pts []geom.Point, closed bool, c annotation.Color, width float64) {
	s.r.DrawPath(s.apply(pts), closed, c, s.scale(width))
}

func (s *screenSurface) FillCircle(center geom.Point, radius float64, c annotation.Color) {
	s.r.FillCircle(s.m.Apply(center), s.scale(radius), c)
}

func (s *screenSurface) Invalidate() { s.r.Invalidate() }

func (c *AnnotationCanvas) CreateRenderer() fyne.WidgetRenderer {
	r := &annotationCanvasRenderer{c: c, raster: canvas.NewRaster(c.paint)}
	r.objects = []fyne.CanvasObject{r.raster}
	return r
}

type annotationCanvasRenderer struct {
	c       *AnnotationCanvas
	raster  *canvas.Raster
	objects []fyne.CanvasObject
}

func (r *annotationCanvasRenderer) Destroy()                     {}
func (r *annotationCanvasRenderer) Objects() []fyne.CanvasObject { return r.objects }
func (r *annotationCanvasRenderer) MinSize() fyne.Size           { return fyne.NewSize(200, 150) }
func (r *annotationCanvasRenderer) Refresh()                     { canvas.Refresh(r.raster) }

func (r *annotationCanvasRenderer) Layout(size fyne.Size) {
	r.raster.Resize(size)
	r.raster.Move(fyne.NewPos(0, 0))
}
