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

	"imannotate/internal/geom"
)

// Record is the persisted view of one committed shape.
type Record struct {
	Points []geom.Point
	Type   ObjectType
	Label  string
	Color  Color
}

// Annotations is a detached snapshot of a scene's committed state.
type Annotations struct {
	Records []Record
	Classes []LabelDef
}

// Export snapshots committed shapes in z-order together with the classes.
func (s *Scene) Export() Annotations {
	a := Annotations{
		Records: make([]Record, 0, len(s.shapes)),
		Classes: make([]LabelDef, 0, len(s.classes)),
	}
	for _, sh := range s.shapes {
		a.Records = append(a.Records, Record{
			Points: append([]geom.Point(nil), sh.Points...),
			Type:   sh.Type,
			Label:  sh.Label,
			Color:  sh.LineColor,
		})
	}
	for _, c := range s.classes {
		a.Classes = append(a.Classes, LabelDef{Name: c.Name, Color: c.FillColor})
	}
	return a
}

// Load replaces the scene content with a. Everything is validated and built
// before the scene is touched, so a rejected snapshot leaves the previous
// state intact. A snapshot without classes keeps the current ones.
func (s *Scene) Load(a Annotations) error {
	defs := a.Classes
	if len(defs) == 0 {
		defs = s.Export().Classes
	}
	if err := validateDefs(defs); err != nil {
		return err
	}
	classes := make([]*LabelClass, 0, len(defs))
	byName := make(map[string]*LabelClass, len(defs))
	for _, d := range defs {
		c := NewLabelClass(d.Name, d.Color)
		classes = append(classes, c)
		byName[d.Name] = c
	}
	shapes := make([]*Shape, 0, len(a.Records))
	for i, r := range a.Records {
		if !r.Type.ValidCount(len(r.Points)) {
			return fmt.Errorf("object %d: %d points for type %q", i+1, len(r.Points), r.Type)
		}
		c, ok := byName[r.Label]
		if !ok {
			return fmt.Errorf("object %d: %w: %q", i+1, ErrUnknownLabel, r.Label)
		}
		sh := NewShape(s.style)
		sh.Points = append([]geom.Point(nil), r.Points...)
		sh.Type = r.Type
		sh.Closed = r.Type == TypePolygon
		sh.Label = c.Name
		sh.LineColor = r.Color
		c.add(sh.ID)
		shapes = append(shapes, sh)
	}

	s.Reset()
	s.classes = classes
	s.shapes = shapes
	s.clampActive()
	s.changed()
	return nil
}
