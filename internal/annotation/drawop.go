/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package annotation

import "imannotate/internal/geom"

// Preview is the rubber-band segment from the last placed vertex to the
// pointer.
type Preview struct {
	From, To geom.Point
	Color    Color
	// Snapped is set while To sits on the first vertex.
	Snapped bool
}

// DrawOp bundles the shape under construction with its preview. It is
// created on the first click and discarded as a whole on finalize or undo.
type DrawOp struct {
	Shape   *Shape
	Preview Preview
}

func newDrawOp(start geom.Point, style Style, c, previewColor Color) *DrawOp {
	s := NewShape(style)
	s.LineColor = c
	s.AddPoint(start)
	return &DrawOp{
		Shape:   s,
		Preview: Preview{From: start, To: start, Color: previewColor},
	}
}

// track moves the preview end to p, snapping to the first vertex when the
// shape has more than one point and p lies within epsilon of it.
func (d *DrawOp) track(p geom.Point, epsilon float64, previewColor Color) {
	d.Preview.Color = previewColor
	d.Preview.Snapped = false
	d.Shape.HighlightClear()
	if first := d.Shape.Points[0]; d.Shape.Len() > 1 && geom.DistSq(p, first) <= epsilon {
		p = first
		d.Preview.Color = d.Shape.LineColor
		d.Preview.Snapped = true
		d.Shape.HighlightVertex(0)
	}
	d.Preview.To = p
}

// rewind restarts the preview at the current last vertex.
func (d *DrawOp) rewind() {
	if n := d.Shape.Len(); n > 0 {
		d.Preview.From = d.Shape.Points[n-1]
		d.Preview.To = d.Preview.From
		d.Preview.Snapped = false
	}
}
