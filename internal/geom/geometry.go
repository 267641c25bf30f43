/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package geom holds the 2D primitives shared by the annotation scene, the
// viewport and the exporters. Coordinates are image pixels: x grows to the
// right, y grows downwards.
package geom

import "math"

// Point is a position (or a delta) in scene space.
type Point struct{ X, Y float64 }

func Pt(x, y float64) Point { return Point{X: x, Y: y} }

func (p Point) Add(q Point) Point        { return Point{p.X + q.X, p.Y + q.Y} }
func (p Point) Sub(q Point) Point        { return Point{p.X - q.X, p.Y - q.Y} }
func (p Point) Scale(f float64) Point    { return Point{p.X * f, p.Y * f} }
func (p Point) IsZero() bool             { return p.X == 0 && p.Y == 0 }
func (p Point) Eq(q Point) bool          { return p.X == q.X && p.Y == q.Y }
func (p Point) Dot(q Point) float64      { return p.X*q.X + p.Y*q.Y }
func (p Point) LenSq() float64           { return p.X*p.X + p.Y*p.Y }
func (p Point) Lerp(q Point, t float64) Point {
	return Point{p.X + (q.X-p.X)*t, p.Y + (q.Y-p.Y)*t}
}

// DistSq is the squared euclidean distance, the metric used for snapping and
// vertex hit-testing.
func DistSq(a, b Point) float64 { return a.Sub(b).LenSq() }

// SegmentDistSq returns the squared distance from p to the segment a-b.
func SegmentDistSq(p, a, b Point) float64 {
	ab := b.Sub(a)
	l := ab.LenSq()
	if l == 0 {
		return DistSq(p, a)
	}
	t := p.Sub(a).Dot(ab) / l
	switch {
	case t <= 0:
		return DistSq(p, a)
	case t >= 1:
		return DistSq(p, b)
	}
	return DistSq(p, a.Lerp(b, t))
}

// PointInPolygon reports whether p lies inside the closed ring pts using the
// even-odd rule. Rings with fewer than three vertices contain nothing.
func PointInPolygon(p Point, pts []Point) bool {
	n := len(pts)
	if n < 3 {
		return false
	}
	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		a, b := pts[i], pts[j]
		if (a.Y > p.Y) != (b.Y > p.Y) {
			x := (b.X-a.X)*(p.Y-a.Y)/(b.Y-a.Y) + a.X
			if p.X < x {
				inside = !inside
			}
		}
	}
	return inside
}

// PolylineDistSq is the squared distance from p to the open chain pts. With
// closed set, the last vertex is joined back to the first.
func PolylineDistSq(p Point, pts []Point, closed bool) float64 {
	switch len(pts) {
	case 0:
		return math.Inf(1)
	case 1:
		return DistSq(p, pts[0])
	}
	best := math.Inf(1)
	for i := 1; i < len(pts); i++ {
		best = math.Min(best, SegmentDistSq(p, pts[i-1], pts[i]))
	}
	if closed && len(pts) > 2 {
		best = math.Min(best, SegmentDistSq(p, pts[len(pts)-1], pts[0]))
	}
	return best
}

// Centroid returns the arithmetic mean of the vertices.
func Centroid(pts []Point) Point {
	if len(pts) == 0 {
		return Point{}
	}
	var c Point
	for _, p := range pts {
		c = c.Add(p)
	}
	return c.Scale(1 / float64(len(pts)))
}

// Area returns the absolute shoelace area of the ring.
func Area(pts []Point) float64 {
	if len(pts) < 3 {
		return 0
	}
	var s float64
	for i := range pts {
		j := (i + 1) % len(pts)
		s += pts[i].X*pts[j].Y - pts[j].X*pts[i].Y
	}
	return math.Abs(s) / 2
}
