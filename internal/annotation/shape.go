/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package annotation

import (
	"fmt"

	"github.com/google/uuid"

	"imannotate/internal/geom"
)

// ObjectType classifies a finalized shape.
type ObjectType int

const (
	TypeNone ObjectType = iota
	TypePolygon
	TypeLine
	TypePoint
)

func (t ObjectType) String() string {
	switch t {
	case TypePolygon:
		return "Polygon"
	case TypeLine:
		return "Line"
	case TypePoint:
		return "Point"
	}
	return ""
}

// ParseObjectType maps the persisted type names back to ObjectType.
func ParseObjectType(s string) (ObjectType, error) {
	switch s {
	case "Polygon":
		return TypePolygon, nil
	case "Line":
		return TypeLine, nil
	case "Point":
		return TypePoint, nil
	}
	return TypeNone, fmt.Errorf("unknown object type %q", s)
}

// ValidCount reports whether n points satisfy the arity of the type.
func (t ObjectType) ValidCount(n int) bool {
	switch t {
	case TypePolygon:
		return n >= 3
	case TypeLine:
		return n >= 2
	case TypePoint:
		return n == 1
	}
	return false
}

// AllPoints targets every vertex in MoveBy.
const AllPoints = -1

// Shape is one annotated object. ID is the key used by label classes and the
// scene to refer to it.
type Shape struct {
	ID        string
	Points    []geom.Point
	Closed    bool
	Type      ObjectType
	Label     string
	LineColor Color
	Selected  bool
	Style     Style

	highlight int
}

func NewShape(style Style) *Shape {
	return &Shape{ID: uuid.NewString(), Style: style, highlight: -1}
}

func (s *Shape) Len() int { return len(s.Points) }

// AddPoint appends p, or closes the shape when p equals the first point.
func (s *Shape) AddPoint(p geom.Point) {
	if len(s.Points) > 0 && p.Eq(s.Points[0]) {
		s.Closed = true
	} else {
		s.Points = append(s.Points, p)
	}
	s.Selected = true
}

// PopPoint removes the last point. ok is false on an empty shape.
func (s *Shape) PopPoint() (p geom.Point, ok bool) {
	n := len(s.Points)
	if n == 0 {
		return geom.Point{}, false
	}
	p = s.Points[n-1]
	s.Points = s.Points[:n-1]
	if s.highlight >= len(s.Points) {
		s.highlight = -1
	}
	return p, true
}

// MoveBy translates the target vertex, or all of them for AllPoints.
// It returns false for an index that is out of range.
func (s *Shape) MoveBy(target int, delta geom.Point) bool {
	if target == AllPoints {
		for i := range s.Points {
			s.Points[i] = s.Points[i].Add(delta)
		}
		return true
	}
	if target < 0 || target >= len(s.Points) {
		return false
	}
	s.Points[target] = s.Points[target].Add(delta)
	return true
}

// ContainsPoint hit-tests p. Polygons use an even-odd fill test, lines the
// squared distance to their nearest segment and points the squared distance
// to their single vertex, both against tolSq.
func (s *Shape) ContainsPoint(p geom.Point, tolSq float64) bool {
	if len(s.Points) == 0 {
		return false
	}
	switch s.Type {
	case TypePolygon:
		return geom.PointInPolygon(p, s.Points)
	case TypePoint:
		return geom.DistSq(p, s.Points[0]) <= tolSq
	default:
		return geom.PolylineDistSq(p, s.Points, s.Closed) <= tolSq
	}
}

// NearestVertex returns the closest vertex within tolSq, or -1.
func (s *Shape) NearestVertex(p geom.Point, tolSq float64) int {
	best, idx := tolSq, -1
	for i, v := range s.Points {
		if d := geom.DistSq(p, v); d <= best {
			best, idx = d, i
		}
	}
	return idx
}

func (s *Shape) HighlightVertex(i int) { s.highlight = i }
func (s *Shape) HighlightClear()       { s.highlight = -1 }

// Highlighted returns the highlighted vertex index; ok is false when none is
// set or the index no longer refers to a vertex.
func (s *Shape) Highlighted() (int, bool) {
	if s.highlight < 0 || s.highlight >= len(s.Points) {
		return -1, false
	}
	return s.highlight, true
}

func (s *Shape) Bounds() geom.Rect { return geom.Bounds(s.Points) }

// Clone copies geometry, type, label and style under a fresh ID. Selection
// state is not carried over.
func (s *Shape) Clone() *Shape {
	c := *s
	c.ID = uuid.NewString()
	c.Points = append([]geom.Point(nil), s.Points...)
	c.Selected = false
	c.highlight = -1
	return &c
}
