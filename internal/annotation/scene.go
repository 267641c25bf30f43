/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package annotation implements the interactive annotation engine: shapes,
// label classes and the scene state machine that turns pointer and keyboard
// input into committed annotations.
//
// A Scene is driven from a single event loop and does no locking.
package annotation

import (
	"errors"
	"fmt"

	"imannotate/internal/geom"
)

var (
	ErrUnknownLabel = errors.New("unknown label class")
	ErrUnknownShape = errors.New("unknown shape")
	ErrInvalidClass = errors.New("invalid label classes")
)

const (
	DefaultLabel   = "default"
	DefaultEpsilon = 30.0
)

var (
	DefaultLabelColor   = Color{0x00, 0x06, 0xff, 255}
	DefaultPreviewColor = Color{0x03, 0xfc, 0x42, 255}
)

type Mode int

const (
	ModeNavigation Mode = iota
	ModeDrawing
	ModeMoving
)

func (m Mode) String() string {
	switch m {
	case ModeDrawing:
		return "drawing"
	case ModeMoving:
		return "moving"
	}
	return "navigation"
}

type PolyStatus int

const (
	StatusReady PolyStatus = iota
	StatusInProgress
)

// Button is a bit set of pointer buttons.
type Button uint8

const (
	ButtonPrimary Button = 1 << iota
	ButtonSecondary
	ButtonMiddle
)

type Modifiers uint8

const (
	ModShift Modifiers = 1 << iota
	ModCtrl
	ModAlt
)

// Cursor is a hint for the hosting UI.
type Cursor int

const (
	CursorDefault Cursor = iota
	CursorDraw
	CursorPoint
	CursorGrab
)

// PropertyRequest is raised by a secondary click on the selected shape so the
// host can show a label editor. Labels is empty, never nil, when the scene
// has no classes.
type PropertyRequest struct {
	ShapeID string
	Type    ObjectType
	Label   string
	Labels  []string
}

// Scene is the root aggregate of one open document.
type Scene struct {
	mode    Mode
	status  PolyStatus
	shapes  []*Shape
	draw    *DrawOp
	classes []*LabelClass
	active  int

	selected       string
	selectedVertex int

	epsilon      float64
	previewColor Color
	style        Style
	cursor       Cursor

	dragging bool
	dragged  bool
	prev     geom.Point

	onChange     []func()
	onProperties func(PropertyRequest)
	beforeEdit   func(op string)
}

// NewScene returns a scene in navigation mode with the default class.
func NewScene(style Style) *Scene {
	return &Scene{
		classes:        []*LabelClass{NewLabelClass(DefaultLabel, DefaultLabelColor)},
		selectedVertex: -1,
		epsilon:        DefaultEpsilon,
		previewColor:   DefaultPreviewColor,
		style:          style,
	}
}

// OnChange registers a redraw callback.
func (s *Scene) OnChange(fn func()) { s.onChange = append(s.onChange, fn) }

func (s *Scene) OnProperties(fn func(PropertyRequest)) { s.onProperties = fn }

// OnBeforeEdit is called right before a destructive edit of committed state
// (delete, copy, reassign, relabel, move). op names the edit.
func (s *Scene) OnBeforeEdit(fn func(op string)) { s.beforeEdit = fn }

func (s *Scene) changed() {
	for _, fn := range s.onChange {
		fn()
	}
}

func (s *Scene) edit(op string) {
	if s.beforeEdit != nil {
		s.beforeEdit(op)
	}
}

// accessors

func (s *Scene) Mode() Mode             { return s.mode }
func (s *Scene) Status() PolyStatus     { return s.status }
func (s *Scene) Cursor() Cursor         { return s.cursor }
func (s *Scene) Epsilon() float64       { return s.epsilon }
func (s *Scene) PreviewColor() Color    { return s.previewColor }
func (s *Scene) Style() Style           { return s.style }
func (s *Scene) ActiveLabelIndex() int  { return s.active }
func (s *Scene) DrawOp() *DrawOp        { return s.draw }
func (s *Scene) Shapes() []*Shape       { return append([]*Shape(nil), s.shapes...) }
func (s *Scene) Classes() []*LabelClass { return append([]*LabelClass(nil), s.classes...) }
func (s *Scene) Len() int               { return len(s.shapes) }

// InProgress returns the shape under construction, or nil.
func (s *Scene) InProgress() *Shape {
	if s.draw == nil {
		return nil
	}
	return s.draw.Shape
}

// ActiveLabel returns the class new shapes are assigned to.
func (s *Scene) ActiveLabel() *LabelClass {
	if len(s.classes) == 0 {
		return nil
	}
	return s.classes[s.clampActive()]
}

// LabelNames lists class names in order; never nil.
func (s *Scene) LabelNames() []string {
	names := make([]string, 0, len(s.classes))
	for _, c := range s.classes {
		names = append(names, c.Name)
	}
	return names
}

// Selection returns the selected shape and vertex index (-1 for none). A
// selection whose shape or vertex vanished is reported as nothing selected.
func (s *Scene) Selection() (*Shape, int) {
	sh := s.ShapeByID(s.selected)
	if sh == nil {
		return nil, -1
	}
	if s.selectedVertex < 0 || s.selectedVertex >= sh.Len() {
		return sh, -1
	}
	return sh, s.selectedVertex
}

func (s *Scene) ShapeByID(id string) *Shape {
	if id == "" {
		return nil
	}
	for _, sh := range s.shapes {
		if sh.ID == id {
			return sh
		}
	}
	return nil
}

func (s *Scene) indexOf(id string) int {
	for i, sh := range s.shapes {
		if sh.ID == id {
			return i
		}
	}
	return -1
}

func (s *Scene) classByName(name string) (int, *LabelClass) {
	for i, c := range s.classes {
		if c.Name == name {
			return i, c
		}
	}
	return -1, nil
}

// FindOwner returns the class holding shape id, or nil.
func (s *Scene) FindOwner(id string) *LabelClass {
	for _, c := range s.classes {
		if c.Has(id) {
			return c
		}
	}
	return nil
}

func (s *Scene) clampActive() int {
	if s.active < 0 || s.active >= len(s.classes) {
		s.active = 0
	}
	return s.active
}

// SetMode switches the interaction mode. A shape under construction is kept
// and can be continued after returning to drawing mode.
func (s *Scene) SetMode(m Mode) {
	if s.mode == m {
		return
	}
	s.mode = m
	s.dragging = false
	switch m {
	case ModeDrawing:
		s.cursor = CursorDraw
		s.clearSelection()
	default:
		s.cursor = CursorDefault
	}
	s.changed()
}

// PointerDown handles a button press at scene position p.
func (s *Scene) PointerDown(p geom.Point, b Button, mods Modifiers) {
	if b&ButtonSecondary != 0 {
		s.requestProperties()
		return
	}
	if b&ButtonPrimary == 0 {
		return
	}
	switch s.mode {
	case ModeDrawing:
		s.cursor = CursorDraw
		s.placePoint(p)
	case ModeMoving:
		s.cursor = CursorGrab
		s.selectByPoint(p)
		s.prev = p
		s.dragging = s.selected != ""
		s.dragged = false
		s.changed()
	case ModeNavigation:
		s.cursor = CursorGrab
	}
}

// PointerMove handles pointer motion; held is the set of pressed buttons.
func (s *Scene) PointerMove(p geom.Point, held Button, mods Modifiers) {
	if s.mode == ModeDrawing {
		s.cursor = CursorDraw
		if s.draw != nil {
			s.draw.track(p, s.epsilon, s.previewColor)
			if s.draw.Preview.Snapped {
				s.cursor = CursorPoint
			}
			s.changed()
		}
		return
	}
	if s.mode == ModeMoving && s.dragging && held&ButtonPrimary != 0 {
		s.drag(p, mods)
		return
	}
	s.hover(p)
}

// PointerUp ends a drag.
func (s *Scene) PointerUp(p geom.Point, b Button) {
	if b&ButtonPrimary != 0 {
		s.dragging = false
		s.dragged = false
	}
	if s.mode != ModeDrawing {
		s.cursor = CursorDefault
	}
}

func (s *Scene) placePoint(p geom.Point) {
	if s.draw == nil {
		var c Color
		if cls := s.ActiveLabel(); cls != nil {
			c = cls.FillColor
		}
		s.draw = newDrawOp(p, s.style, c, s.previewColor)
		s.status = StatusInProgress
		s.changed()
		return
	}
	sh := s.draw.Shape
	if first := sh.Points[0]; sh.Len() > 1 && geom.DistSq(p, first) <= s.epsilon {
		p = first
		s.cursor = CursorPoint
	}
	sh.AddPoint(p)
	if sh.Closed {
		if sh.Len() < 3 {
			// too few distinct vertices for a polygon
			sh.Closed = false
			s.changed()
			return
		}
		s.finalize(TypePolygon)
		return
	}
	s.draw.rewind()
	s.changed()
}

// CompleteAnnotation finalizes the shape under construction as a Point (one
// vertex) or a Line. It is a no-op when nothing is being drawn.
func (s *Scene) CompleteAnnotation() {
	if s.draw == nil || s.draw.Shape.Len() == 0 {
		return
	}
	if s.draw.Shape.Len() == 1 {
		s.finalize(TypePoint)
		return
	}
	s.finalize(TypeLine)
}

func (s *Scene) finalize(t ObjectType) {
	sh := s.draw.Shape
	s.draw = nil
	sh.Type = t
	sh.Closed = t == TypePolygon
	sh.Selected = false
	sh.HighlightClear()
	s.shapes = append(s.shapes, sh)
	if cls := s.ActiveLabel(); cls != nil {
		cls.AssignObject(sh)
	}
	s.status = StatusReady
	s.changed()
}

// UndoLastPoint removes the last vertex of the shape under construction, or
// discards the shape when only its first vertex remains. It reports whether
// anything was undone.
func (s *Scene) UndoLastPoint() bool {
	if s.draw == nil {
		return false
	}
	if s.draw.Shape.Len() > 1 {
		s.draw.Shape.PopPoint()
		s.draw.Shape.Closed = false
		s.draw.rewind()
	} else {
		s.draw = nil
		s.status = StatusReady
	}
	s.changed()
	return true
}

func (s *Scene) drag(p geom.Point, mods Modifiers) {
	sh, v := s.Selection()
	if sh == nil {
		s.dragging = false
		return
	}
	delta := p.Sub(s.prev)
	if delta.IsZero() {
		return
	}
	if !s.dragged {
		s.edit("move")
		s.dragged = true
	}
	whole := v < 0 || (mods&ModShift != 0 && sh.Type == TypeLine)
	if whole {
		sh.MoveBy(AllPoints, delta)
	} else {
		sh.MoveBy(v, p.Sub(sh.Points[v]))
	}
	s.prev = p
	s.changed()
}

func (s *Scene) selectByPoint(p geom.Point) {
	if sh, v := s.Selection(); sh != nil && v >= 0 {
		sh.HighlightVertex(v)
		return
	}
	if sh := s.shapeAt(p); sh != nil {
		s.selectShape(sh)
	}
}

// shapeAt returns the topmost committed shape containing p.
func (s *Scene) shapeAt(p geom.Point) *Shape {
	for i := len(s.shapes) - 1; i >= 0; i-- {
		if s.shapes[i].ContainsPoint(p, s.epsilon) {
			return s.shapes[i]
		}
	}
	return nil
}

func (s *Scene) hover(p geom.Point) {
	prevID, prevV := s.selected, s.selectedVertex
	s.hoverAt(p)
	if s.selected != prevID || s.selectedVertex != prevV {
		s.changed()
	}
}

func (s *Scene) hoverAt(p geom.Point) {
	for i := len(s.shapes) - 1; i >= 0; i-- {
		if v := s.shapes[i].NearestVertex(p, s.epsilon); v >= 0 {
			s.selectVertex(s.shapes[i], v)
			return
		}
	}
	if sh := s.shapeAt(p); sh != nil {
		s.selectShape(sh)
		return
	}
	s.clearSelection()
}

func (s *Scene) selectShape(sh *Shape) {
	s.clearSelection()
	sh.Selected = true
	s.selected = sh.ID
}

func (s *Scene) selectVertex(sh *Shape, v int) {
	s.clearSelection()
	sh.HighlightVertex(v)
	s.selected = sh.ID
	s.selectedVertex = v
}

func (s *Scene) clearSelection() {
	for _, sh := range s.shapes {
		sh.Selected = false
		sh.HighlightClear()
	}
	s.selected = ""
	s.selectedVertex = -1
}

// ClearSelection drops any hover or click selection.
func (s *Scene) ClearSelection() {
	s.clearSelection()
	s.changed()
}

// Select marks the shape with the given ID as selected.
func (s *Scene) Select(id string) error {
	sh := s.ShapeByID(id)
	if sh == nil {
		return fmt.Errorf("%w: %s", ErrUnknownShape, id)
	}
	s.selectShape(sh)
	s.changed()
	return nil
}

func (s *Scene) requestProperties() {
	sh, _ := s.Selection()
	if sh == nil || s.onProperties == nil {
		return
	}
	s.onProperties(PropertyRequest{
		ShapeID: sh.ID,
		Type:    sh.Type,
		Label:   sh.Label,
		Labels:  s.LabelNames(),
	})
}

// DeleteSelected removes the selected shape from the scene and its class.
func (s *Scene) DeleteSelected() bool {
	sh, _ := s.Selection()
	if sh == nil {
		return false
	}
	s.edit("delete")
	i := s.indexOf(sh.ID)
	s.shapes = append(s.shapes[:i], s.shapes[i+1:]...)
	if owner := s.FindOwner(sh.ID); owner != nil {
		_ = owner.UntieShape(sh.ID)
	}
	s.clearSelection()
	s.dragging = false
	s.changed()
	return true
}

// CopySelected duplicates the selected shape on top of the stack, assigns it
// to the same class and selects the copy. It returns the new ID.
func (s *Scene) CopySelected() (string, bool) {
	sh, _ := s.Selection()
	if sh == nil {
		return "", false
	}
	s.edit("copy")
	c := sh.Clone()
	s.shapes = append(s.shapes, c)
	owner := s.FindOwner(sh.ID)
	if owner == nil {
		owner = s.ActiveLabel()
	}
	if owner != nil {
		owner.AssignObject(c)
	}
	s.selectShape(c)
	s.changed()
	return c.ID, true
}

// ReassignLabel moves shape id to the class named name.
func (s *Scene) ReassignLabel(id, name string) error {
	sh := s.ShapeByID(id)
	if sh == nil {
		return fmt.Errorf("%w: %s", ErrUnknownShape, id)
	}
	_, cls := s.classByName(name)
	if cls == nil {
		return fmt.Errorf("%w: %q", ErrUnknownLabel, name)
	}
	old := s.FindOwner(id)
	if old == cls {
		return nil
	}
	s.edit("reassign")
	if old != nil {
		if err := old.UntieShape(id); err != nil {
			return err
		}
	}
	cls.AssignObject(sh)
	s.changed()
	return nil
}

// ReinitializeClasses renames and recolors classes in place, appends new
// ones and, when the list shrinks, moves members of dropped classes into the
// first class. The active index falls back to 0 if it no longer exists.
func (s *Scene) ReinitializeClasses(defs []LabelDef) error {
	if err := validateDefs(defs); err != nil {
		return err
	}
	s.edit("relabel")
	var orphans []string
	if len(defs) < len(s.classes) {
		for _, c := range s.classes[len(defs):] {
			orphans = append(orphans, c.members...)
		}
		s.classes = s.classes[:len(defs)]
	}
	for i, d := range defs {
		if i < len(s.classes) {
			c := s.classes[i]
			c.Name, c.FillColor = d.Name, d.Color
			s.restamp(c)
			continue
		}
		s.classes = append(s.classes, NewLabelClass(d.Name, d.Color))
	}
	for _, id := range orphans {
		if sh := s.ShapeByID(id); sh != nil {
			s.classes[0].AssignObject(sh)
		}
	}
	s.clampActive()
	s.changed()
	return nil
}

func validateDefs(defs []LabelDef) error {
	if len(defs) == 0 {
		return fmt.Errorf("%w: at least one class is required", ErrInvalidClass)
	}
	seen := make(map[string]bool, len(defs))
	for _, d := range defs {
		if d.Name == "" {
			return fmt.Errorf("%w: empty class name", ErrInvalidClass)
		}
		if seen[d.Name] {
			return fmt.Errorf("%w: duplicate class %q", ErrInvalidClass, d.Name)
		}
		seen[d.Name] = true
	}
	return nil
}

func (s *Scene) restamp(c *LabelClass) {
	for _, id := range c.members {
		if sh := s.ShapeByID(id); sh != nil {
			c.AssignObject(sh)
		}
	}
}

// SetActiveLabel selects the class used for newly finalized shapes.
func (s *Scene) SetActiveLabel(i int) error {
	if i < 0 || i >= len(s.classes) {
		return fmt.Errorf("%w: index %d", ErrUnknownLabel, i)
	}
	s.active = i
	s.changed()
	return nil
}

// SetActiveColor recolors the active class and all of its members.
func (s *Scene) SetActiveColor(c Color) {
	cls := s.ActiveLabel()
	if cls == nil {
		return
	}
	cls.FillColor = c
	s.restamp(cls)
	s.changed()
}

// SetLineWidth applies w to every shape, including the one being drawn.
func (s *Scene) SetLineWidth(w float64) {
	if w <= 0 {
		return
	}
	s.style.LineWidth = w
	for _, sh := range s.shapes {
		sh.Style.LineWidth = w
	}
	if s.draw != nil {
		s.draw.Shape.Style.LineWidth = w
	}
	s.changed()
}

// SetEpsilon sets the squared-distance snap and hit threshold.
func (s *Scene) SetEpsilon(e float64) {
	if e > 0 {
		s.epsilon = e
	}
}

func (s *Scene) SetPreviewColor(c Color) {
	s.previewColor = c
	if s.draw != nil && !s.draw.Preview.Snapped {
		s.draw.Preview.Color = c
	}
	s.changed()
}

// Reset clears shapes, class memberships, selection and any shape under
// construction. Classes themselves are kept.
func (s *Scene) Reset() {
	s.shapes = nil
	for _, c := range s.classes {
		c.clear()
	}
	s.draw = nil
	s.status = StatusReady
	s.selected = ""
	s.selectedVertex = -1
	s.dragging = false
	s.dragged = false
	s.changed()
}
