/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package annotation

import "imannotate/internal/geom"

// Surface is the drawing capability a rendering backend offers.
type Surface interface {
	DrawPath(pts []geom.Point, closed bool, c Color, width float64)
	FillCircle(center geom.Point, radius float64, c Color)
	Invalidate()
}

// Render draws committed shapes in z-order, then the shape under
// construction and its preview, and finally invalidates the surface.
func Render(s *Scene, dst Surface) {
	for _, sh := range s.shapes {
		DrawShape(dst, sh)
	}
	if d := s.draw; d != nil {
		DrawShape(dst, d.Shape)
		if !d.Preview.From.Eq(d.Preview.To) {
			dst.DrawPath([]geom.Point{d.Preview.From, d.Preview.To}, false, d.Preview.Color, d.Shape.Style.LineWidth)
		}
	}
	dst.Invalidate()
}

// DrawShape renders one shape with its vertex markers.
func DrawShape(dst Surface, sh *Shape) {
	if sh.Len() == 0 {
		return
	}
	c := sh.LineColor
	if sh.Selected {
		c = sh.Style.SelectColor
	}
	if sh.Len() > 1 {
		dst.DrawPath(sh.Points, sh.Closed, c, sh.Style.LineWidth)
	}
	hi, _ := sh.Highlighted()
	for i, p := range sh.Points {
		vc := sh.Style.VertexColor
		if i == hi {
			vc = sh.Style.HighlightVertexColor
		}
		dst.FillCircle(p, sh.Style.VertexRadius(i, hi), vc)
	}
}
