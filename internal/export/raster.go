/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"golang.org/x/image/vector"

	"imannotate/internal/annotation"
	"imannotate/internal/geom"
)

// circleSegments is the polygon resolution used for vertex markers.
const circleSegments = 24

// Raster is an annotation.Surface backed by an in-memory image.
// Paths and markers are anti-aliased with the x/image vector rasterizer.
type Raster struct {
	dst    draw.Image
	z      *vector.Rasterizer
	frames int
}

// NewRaster wraps dst. Coordinates are in dst pixel space with the origin
// at dst.Bounds().Min.
func NewRaster(dst draw.Image) *Raster {
	b := dst.Bounds()
	return &Raster{dst: dst, z: vector.NewRasterizer(b.Dx(), b.Dy())}
}

// Frames reports how many times the surface was invalidated.
func (r *Raster) Frames() int { return r.frames }

// Invalidate marks the end of a render pass.
func (r *Raster) Invalidate() { r.frames++ }

// DrawPath strokes the polyline through pts with round joins.
func (r *Raster) DrawPath(pts []geom.Point, closed bool, c annotation.Color, width float64) {
	if len(pts) < 2 {
		return
	}
	if width < 1 {
		width = 1
	}
	half := width / 2
	n := len(pts) - 1
	if closed {
		n = len(pts)
	}
	for i := 0; i < n; i++ {
		a, b := pts[i], pts[(i+1)%len(pts)]
		r.segment(a, b, half, c.RGBA())
	}
	if width > 1 {
		for _, p := range pts {
			r.FillCircle(p, half, c)
		}
	}
}

func (r *Raster) segment(a, b geom.Point, half float64, c color.RGBA) {
	d := b.Sub(a)
	l := math.Sqrt(d.LenSq())
	if l == 0 {
		return
	}
	nrm := geom.Pt(-d.Y/l*half, d.X/l*half)
	r.fill([]geom.Point{a.Add(nrm), b.Add(nrm), b.Sub(nrm), a.Sub(nrm)}, c)
}

// FillCircle paints a filled disc.
func (r *Raster) FillCircle(center geom.Point, radius float64, c annotation.Color) {
	if radius <= 0 {
		return
	}
	pts := make([]geom.Point, circleSegments)
	for i := range pts {
		t := 2 * math.Pi * float64(i) / circleSegments
		pts[i] = geom.Pt(center.X+radius*math.Cos(t), center.Y+radius*math.Sin(t))
	}
	r.fill(pts, c.RGBA())
}

// FillPolygon paints the interior of a closed ring.
func (r *Raster) FillPolygon(pts []geom.Point, c annotation.Color) {
	if len(pts) < 3 {
		return
	}
	r.fill(pts, c.RGBA())
}

func (r *Raster) fill(pts []geom.Point, c color.RGBA) {
	b := r.dst.Bounds()
	r.z.Reset(b.Dx(), b.Dy())
	r.z.MoveTo(float32(pts[0].X), float32(pts[0].Y))
	for _, p := range pts[1:] {
		r.z.LineTo(float32(p.X), float32(p.Y))
	}
	r.z.ClosePath()
	r.z.Draw(r.dst, b, image.NewUniform(c), image.Point{})
}
