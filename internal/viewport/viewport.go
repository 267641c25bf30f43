/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */


// Package viewport maps between widget (screen) coordinates and image
// (scene) coordinates and turns raw input events into scene commands.
package viewport

import (
	"math"

	"imannotate/internal/geom"
)

// Zoom limits and the factor applied per wheel step.
const (
	ZoomStep = 1.1
	MinZoom  = 0.02
	MaxZoom  = 50.0
)

// Viewport centers the image in the view, then applies zoom and pan.
type Viewport struct {
	zoom   float64
	offset geom.Point // pan in screen units
	imgW   float64
	imgH   float64
	viewW  float64
	viewH  float64
}

func New(viewW, viewH float64) *Viewport {
	return &Viewport{zoom: 1, viewW: viewW, viewH: viewH}
}

func (v *Viewport) Zoom() float64        { return v.zoom }
func (v *Viewport) Offset() geom.Point   { return v.offset }
func (v *Viewport) ViewSize() geom.Point { return geom.Pt(v.viewW, v.viewH) }

// SetImageSize records the scene extent used for centering and Fit.
func (v *Viewport) SetImageSize(w, h int) {
	v.imgW, v.imgH = float64(w), float64(h)
}

// Resize updates the widget size.
func (v *Viewport) Resize(w, h float64) {
	v.viewW, v.viewH = w, h
}

// origin is the screen position of scene (0,0).
func (v *Viewport) origin() geom.Point {
	return geom.Pt(
		v.viewW/2-v.imgW*v.zoom/2+v.offset.X,
		v.viewH/2-v.imgH*v.zoom/2+v.offset.Y,
	)
}

// Transform maps scene to screen coordinates.
func (v *Viewport) Transform() geom.Affine {
	o := v.origin()
	return geom.Translate(o.X, o.Y).Mul(geom.Scale(v.zoom, v.zoom))
}

func (v *Viewport) ToScreen(p geom.Point) geom.Point { return v.Transform().Apply(p) }
func (v *Viewport) ToScene(p geom.Point) geom.Point  { return v.Transform().Invert().Apply(p) }

// ImageRect is the image extent in screen coordinates.
func (v *Viewport) ImageRect() geom.Rect {
	o := v.origin()
	return geom.R(o.X, o.Y, v.imgW*v.zoom, v.imgH*v.zoom)
}

// Fit scales the image to fit the view and centers it.
func (v *Viewport) Fit() {
	v.offset = geom.Point{}
	if v.imgW <= 0 || v.imgH <= 0 || v.viewW <= 0 || v.viewH <= 0 {
		v.zoom = 1
		return
	}
	v.zoom = clampZoom(math.Min(v.viewW/v.imgW, v.viewH/v.imgH))
}

// ZoomAt changes zoom by ZoomStep per step (negative steps zoom out) while
// keeping the scene point under anchor fixed on screen.
func (v *Viewport) ZoomAt(anchor geom.Point, steps float64) {
	if steps == 0 {
		return
	}
	sp := v.ToScene(anchor)
	v.zoom = clampZoom(v.zoom * math.Pow(ZoomStep, steps))
	moved := v.ToScreen(sp)
	v.offset = v.offset.Add(anchor.Sub(moved))
}

// Pan moves the image by delta screen units.
func (v *Viewport) Pan(delta geom.Point) {
	v.offset = v.offset.Add(delta)
}

func clampZoom(z float64) float64 {
	switch {
	case math.IsNaN(z) || z < MinZoom:
		return MinZoom
	case z > MaxZoom:
		return MaxZoom
	}
	return z
}
