/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package annotation

import (
	"errors"
	"testing"

	"imannotate/internal/geom"
)

func drawingScene(t *testing.T) *Scene {
	t.Helper()
	s := NewScene(DefaultStyle())
	s.SetMode(ModeDrawing)
	return s
}

func click(s *Scene, x, y float64) {
	s.PointerDown(geom.Pt(x, y), ButtonPrimary, 0)
	s.PointerUp(geom.Pt(x, y), ButtonPrimary)
}

func TestPolygonClosureDoesNotDuplicateFirstPoint(t *testing.T) {
	s := drawingScene(t)
	click(s, 0, 0)
	click(s, 10, 0)
	click(s, 10, 10)
	click(s, 0, 0)

	if s.Len() != 1 {
		t.Fatalf("expected 1 committed shape, got %d", s.Len())
	}
	sh := s.Shapes()[0]
	if sh.Type != TypePolygon || !sh.Closed {
		t.Fatalf("expected closed polygon, got type=%v closed=%v", sh.Type, sh.Closed)
	}
	want := []geom.Point{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}}
	if len(sh.Points) != len(want) {
		t.Fatalf("points = %v, want %v", sh.Points, want)
	}
	for i := range want {
		if !sh.Points[i].Eq(want[i]) {
			t.Fatalf("point %d = %v, want %v", i, sh.Points[i], want[i])
		}
	}
	if s.Status() != StatusReady || s.InProgress() != nil {
		t.Fatalf("draw operation should be torn down after finalize")
	}
	if sh.Label != DefaultLabel || sh.LineColor != DefaultLabelColor {
		t.Fatalf("shape not stamped by default class: %q %v", sh.Label, sh.LineColor)
	}
	if !s.ActiveLabel().Has(sh.ID) {
		t.Fatalf("shape not a member of the active class")
	}
}

func TestVertexSnapIsBitEqual(t *testing.T) {
	s := drawingScene(t)
	first := geom.Pt(100.25, 50.75)
	s.PointerDown(first, ButtonPrimary, 0)
	click(s, 200, 50)
	click(s, 150, 150)
	// squared distance 2*3^2 = 18 <= 30
	near := geom.Pt(103.25, 53.75)
	s.PointerMove(near, 0, 0)
	if d := s.DrawOp(); !d.Preview.To.Eq(first) || !d.Preview.Snapped {
		t.Fatalf("preview not snapped: %+v", d.Preview)
	}
	if s.DrawOp().Preview.Color != s.InProgress().LineColor {
		t.Fatalf("snapped preview should take the shape color")
	}
	if s.Cursor() != CursorPoint {
		t.Fatalf("expected point cursor while snapped")
	}
	s.PointerDown(near, ButtonPrimary, 0)
	if s.Len() != 1 {
		t.Fatalf("expected polygon to be finalized by snap")
	}
	sh := s.Shapes()[0]
	if !sh.Points[0].Eq(first) || len(sh.Points) != 3 {
		t.Fatalf("unexpected points after snap: %v", sh.Points)
	}
}

func TestPreviewOutsideEpsilonUsesPreviewColor(t *testing.T) {
	s := drawingScene(t)
	click(s, 0, 0)
	click(s, 50, 0)
	s.PointerMove(geom.Pt(6, 0), 0, 0) // 36 > 30
	d := s.DrawOp()
	if d.Preview.Snapped || d.Preview.Color != DefaultPreviewColor || !d.Preview.To.Eq(geom.Pt(6, 0)) {
		t.Fatalf("unexpected preview: %+v", d.Preview)
	}
	if !d.Preview.From.Eq(geom.Pt(50, 0)) {
		t.Fatalf("preview should start at the last vertex, got %v", d.Preview.From)
	}
}

func TestClosingTwoPointShapeIsRejected(t *testing.T) {
	s := drawingScene(t)
	click(s, 0, 0)
	click(s, 40, 0)
	click(s, 1, 1)
	if s.Len() != 0 {
		t.Fatalf("two-point polygon must not be committed")
	}
	in := s.InProgress()
	if in == nil || in.Len() != 2 || in.Closed {
		t.Fatalf("shape should stay open with 2 points, got %+v", in)
	}
}

func TestSecondClickOnFirstPointIsIgnored(t *testing.T) {
	s := drawingScene(t)
	click(s, 5, 5)
	click(s, 5, 5)
	if in := s.InProgress(); in == nil || in.Len() != 1 || in.Closed {
		t.Fatalf("duplicate first point must not close the shape: %+v", in)
	}
}

func TestPrematureFinalizeAsPoint(t *testing.T) {
	s := drawingScene(t)
	click(s, 3, 4)
	s.CompleteAnnotation()
	if s.Len() != 1 {
		t.Fatalf("expected one shape")
	}
	sh := s.Shapes()[0]
	if sh.Type != TypePoint || sh.Len() != 1 || sh.Closed {
		t.Fatalf("unexpected point shape: %+v", sh)
	}
}

func TestPrematureFinalizeAsLine(t *testing.T) {
	s := drawingScene(t)
	click(s, 0, 0)
	click(s, 5, 5)
	s.CompleteAnnotation()
	sh := s.Shapes()[0]
	if sh.Type != TypeLine || sh.Closed || sh.Len() != 2 {
		t.Fatalf("unexpected line shape: type=%v closed=%v n=%d", sh.Type, sh.Closed, sh.Len())
	}
	if s.DrawOp() != nil {
		t.Fatalf("preview should be removed on finalize")
	}
}

func TestCompleteAnnotationWithoutShapeIsNoop(t *testing.T) {
	s := drawingScene(t)
	s.CompleteAnnotation()
	if s.Len() != 0 || s.Status() != StatusReady {
		t.Fatalf("finalize on nothing should be a no-op")
	}
}

func TestUndoNearEmptyRestoresPriorState(t *testing.T) {
	s := drawingScene(t)
	click(s, 0, 0)
	s.CompleteAnnotation()
	before, status := s.Len(), s.Status()

	click(s, 20, 20)
	if !s.UndoLastPoint() {
		t.Fatalf("expected undo to act on the in-progress shape")
	}
	if s.InProgress() != nil || s.DrawOp() != nil {
		t.Fatalf("in-progress shape should be discarded")
	}
	if s.Len() != before || s.Status() != status {
		t.Fatalf("state changed: len %d->%d status %v->%v", before, s.Len(), status, s.Status())
	}
	if s.UndoLastPoint() {
		t.Fatalf("undo with nothing in progress should report false")
	}
}

func TestUndoPopsLastPointAndRewindsPreview(t *testing.T) {
	s := drawingScene(t)
	click(s, 0, 0)
	click(s, 10, 0)
	click(s, 10, 10)
	s.UndoLastPoint()
	in := s.InProgress()
	if in.Len() != 2 {
		t.Fatalf("expected 2 points after undo, got %d", in.Len())
	}
	if !s.DrawOp().Preview.From.Eq(geom.Pt(10, 0)) {
		t.Fatalf("preview not rewound: %v", s.DrawOp().Preview.From)
	}
}

func TestLabelExclusivityAfterReassign(t *testing.T) {
	s := drawingScene(t)
	if err := s.ReinitializeClasses([]LabelDef{{"A", Red}, {"B", Green}}); err != nil {
		t.Fatal(err)
	}
	click(s, 1, 1)
	s.CompleteAnnotation()
	id := s.Shapes()[0].ID
	a, b := s.Classes()[0], s.Classes()[1]
	if !a.Has(id) {
		t.Fatalf("shape should start in A")
	}
	if err := s.ReassignLabel(id, "B"); err != nil {
		t.Fatalf("reassign: %v", err)
	}
	if a.Has(id) || !b.Has(id) {
		t.Fatalf("shape must move from A to B")
	}
	if s.FindOwner(id) != b {
		t.Fatalf("FindOwner should return B")
	}
	sh := s.ShapeByID(id)
	if sh.Label != "B" || sh.LineColor != Green {
		t.Fatalf("shape not restamped: %q %v", sh.Label, sh.LineColor)
	}
	if err := s.ReassignLabel(id, "nope"); !errors.Is(err, ErrUnknownLabel) {
		t.Fatalf("expected ErrUnknownLabel, got %v", err)
	}
	if err := s.ReassignLabel("missing", "A"); !errors.Is(err, ErrUnknownShape) {
		t.Fatalf("expected ErrUnknownShape, got %v", err)
	}
}

func squareScene(t *testing.T) (*Scene, *Shape) {
	t.Helper()
	s := drawingScene(t)
	click(s, 0, 0)
	click(s, 100, 0)
	click(s, 100, 100)
	click(s, 0, 100)
	click(s, 0, 0)
	if s.Len() != 1 {
		t.Fatalf("setup: expected a committed square")
	}
	return s, s.Shapes()[0]
}

func TestDeleteRemovesFromAllIndices(t *testing.T) {
	s, sh := squareScene(t)
	s.SetMode(ModeMoving)
	s.PointerMove(geom.Pt(50, 50), 0, 0)
	if got, _ := s.Selection(); got != sh {
		t.Fatalf("hover inside square should select it")
	}
	if !s.DeleteSelected() {
		t.Fatalf("delete reported nothing selected")
	}
	if s.Len() != 0 {
		t.Fatalf("shape still committed")
	}
	if s.FindOwner(sh.ID) != nil {
		t.Fatalf("shape still in a class")
	}
	if got, v := s.Selection(); got != nil || v != -1 {
		t.Fatalf("selection not cleared")
	}
	if s.DeleteSelected() {
		t.Fatalf("second delete should be a no-op")
	}
}

func TestHoverPrefersVertexThenFill(t *testing.T) {
	s, sh := squareScene(t)
	s.SetMode(ModeMoving)
	s.PointerMove(geom.Pt(101, 99), 0, 0)
	got, v := s.Selection()
	if got != sh || v != 2 {
		t.Fatalf("expected vertex 2 highlighted, got shape=%v v=%d", got, v)
	}
	if hi, ok := sh.Highlighted(); !ok || hi != 2 || sh.Selected {
		t.Fatalf("vertex highlight and whole-shape selection must be exclusive")
	}
	s.PointerMove(geom.Pt(50, 50), 0, 0)
	if _, v := s.Selection(); v != -1 || !sh.Selected {
		t.Fatalf("expected whole shape selected")
	}
	s.PointerMove(geom.Pt(500, 500), 0, 0)
	if got, _ := s.Selection(); got != nil || sh.Selected {
		t.Fatalf("expected selection cleared outside")
	}
}

func TestHoverTopmostWins(t *testing.T) {
	s, below := squareScene(t)
	s.SetMode(ModeMoving)
	s.PointerMove(geom.Pt(50, 50), 0, 0)
	id, _ := s.CopySelected()
	s.PointerMove(geom.Pt(500, 500), 0, 0)
	s.PointerMove(geom.Pt(50, 50), 0, 0)
	got, _ := s.Selection()
	if got == below || got.ID != id {
		t.Fatalf("expected later shape to win hit-test")
	}
}

func TestNoHoverWhileDrawing(t *testing.T) {
	s, sh := squareScene(t)
	s.PointerMove(geom.Pt(50, 50), 0, 0)
	if got, _ := s.Selection(); got != nil || sh.Selected {
		t.Fatalf("drawing mode must not hover-select")
	}
}

func TestDragMovesWholeShape(t *testing.T) {
	s, sh := squareScene(t)
	s.SetMode(ModeMoving)
	var edits []string
	s.OnBeforeEdit(func(op string) { edits = append(edits, op) })
	s.PointerMove(geom.Pt(50, 50), 0, 0)
	s.PointerDown(geom.Pt(50, 50), ButtonPrimary, 0)
	s.PointerMove(geom.Pt(55, 60), ButtonPrimary, 0)
	s.PointerMove(geom.Pt(60, 70), ButtonPrimary, 0)
	s.PointerUp(geom.Pt(60, 70), ButtonPrimary)
	if !sh.Points[0].Eq(geom.Pt(10, 20)) || !sh.Points[2].Eq(geom.Pt(110, 120)) {
		t.Fatalf("shape not translated: %v", sh.Points)
	}
	if len(edits) != 1 || edits[0] != "move" {
		t.Fatalf("expected a single move edit, got %v", edits)
	}
}

func TestDragMovesSelectedVertexOnly(t *testing.T) {
	s, sh := squareScene(t)
	s.SetMode(ModeMoving)
	s.PointerMove(geom.Pt(100, 100), 0, 0)
	s.PointerDown(geom.Pt(100, 100), ButtonPrimary, 0)
	s.PointerMove(geom.Pt(120, 130), ButtonPrimary, 0)
	if !sh.Points[2].Eq(geom.Pt(120, 130)) {
		t.Fatalf("vertex not moved: %v", sh.Points[2])
	}
	if !sh.Points[0].Eq(geom.Pt(0, 0)) {
		t.Fatalf("other vertices must stay put")
	}
}

func TestShiftDragOnLineVertexMovesWholeLine(t *testing.T) {
	s := drawingScene(t)
	click(s, 0, 0)
	click(s, 100, 0)
	s.CompleteAnnotation()
	line := s.Shapes()[0]
	s.SetMode(ModeMoving)
	s.PointerMove(geom.Pt(100, 0), 0, 0)
	s.PointerDown(geom.Pt(100, 0), ButtonPrimary, ModShift)
	s.PointerMove(geom.Pt(110, 5), ButtonPrimary, ModShift)
	if !line.Points[0].Eq(geom.Pt(10, 5)) || !line.Points[1].Eq(geom.Pt(110, 5)) {
		t.Fatalf("line not translated as a whole: %v", line.Points)
	}
}

func TestNavigationDragDoesNotMoveShapes(t *testing.T) {
	s, sh := squareScene(t)
	s.SetMode(ModeNavigation)
	s.PointerDown(geom.Pt(50, 50), ButtonPrimary, 0)
	s.PointerMove(geom.Pt(70, 70), ButtonPrimary, 0)
	if !sh.Points[0].Eq(geom.Pt(0, 0)) {
		t.Fatalf("navigation mode must not move shapes")
	}
}

func TestCopySelectedJoinsSourceClass(t *testing.T) {
	s, sh := squareScene(t)
	if err := s.ReinitializeClasses([]LabelDef{{"cell", Red}, {"nucleus", Green}}); err != nil {
		t.Fatal(err)
	}
	if err := s.ReassignLabel(sh.ID, "nucleus"); err != nil {
		t.Fatal(err)
	}
	if err := s.Select(sh.ID); err != nil {
		t.Fatal(err)
	}
	id, ok := s.CopySelected()
	if !ok || s.Len() != 2 {
		t.Fatalf("copy failed")
	}
	c := s.ShapeByID(id)
	if c.Type != TypePolygon || c.Label != "nucleus" || !s.Classes()[1].Has(id) {
		t.Fatalf("copy has wrong type or class: %+v", c)
	}
	c.MoveBy(AllPoints, geom.Pt(1, 1))
	if sh.Points[0].Eq(c.Points[0]) {
		t.Fatalf("copy must not share points with source")
	}
	if got, _ := s.Selection(); got != c {
		t.Fatalf("copy should be selected")
	}
}

func TestReinitializeShrinkClampsActiveAndKeepsMembership(t *testing.T) {
	s := drawingScene(t)
	if err := s.ReinitializeClasses([]LabelDef{{"a", Red}, {"b", Green}, {"c", White}}); err != nil {
		t.Fatal(err)
	}
	if err := s.SetActiveLabel(2); err != nil {
		t.Fatal(err)
	}
	click(s, 1, 1)
	s.CompleteAnnotation()
	id := s.Shapes()[0].ID

	if err := s.ReinitializeClasses([]LabelDef{{"x", Black}}); err != nil {
		t.Fatal(err)
	}
	if s.ActiveLabelIndex() != 0 {
		t.Fatalf("active index should clamp to 0, got %d", s.ActiveLabelIndex())
	}
	if len(s.Classes()) != 1 {
		t.Fatalf("expected 1 class")
	}
	if owner := s.FindOwner(id); owner == nil || owner.Name != "x" {
		t.Fatalf("orphaned shape should move to the first class")
	}
	if sh := s.ShapeByID(id); sh.Label != "x" || sh.LineColor != Black {
		t.Fatalf("orphan not restamped: %+v", sh)
	}
}

func TestReinitializeRenamesInPlace(t *testing.T) {
	s, sh := squareScene(t)
	if err := s.ReinitializeClasses([]LabelDef{{"tumor", Red}, {"stroma", Green}}); err != nil {
		t.Fatal(err)
	}
	if sh.Label != "tumor" || sh.LineColor != Red {
		t.Fatalf("member not restamped: %q %v", sh.Label, sh.LineColor)
	}
	if s.Classes()[1].Len() != 0 {
		t.Fatalf("new class should be empty")
	}
	if err := s.ReinitializeClasses(nil); !errors.Is(err, ErrInvalidClass) {
		t.Fatalf("expected ErrInvalidClass for empty list, got %v", err)
	}
	if err := s.ReinitializeClasses([]LabelDef{{"a", Red}, {"a", Green}}); !errors.Is(err, ErrInvalidClass) {
		t.Fatalf("expected ErrInvalidClass for duplicates, got %v", err)
	}
}

func TestPropertiesRequestedOnSecondaryClick(t *testing.T) {
	s, sh := squareScene(t)
	var got *PropertyRequest
	s.OnProperties(func(r PropertyRequest) { got = &r })
	s.SetMode(ModeMoving)
	s.PointerDown(geom.Pt(50, 50), ButtonSecondary, 0)
	if got != nil {
		t.Fatalf("no request expected without selection")
	}
	s.PointerMove(geom.Pt(50, 50), 0, 0)
	s.PointerDown(geom.Pt(50, 50), ButtonSecondary, 0)
	if got == nil || got.ShapeID != sh.ID || got.Type != TypePolygon || got.Label != DefaultLabel {
		t.Fatalf("unexpected request: %+v", got)
	}
	if len(got.Labels) != 1 || got.Labels[0] != DefaultLabel {
		t.Fatalf("unexpected labels: %v", got.Labels)
	}
}

func TestSetActiveColorRestampsMembers(t *testing.T) {
	s, sh := squareScene(t)
	s.SetActiveColor(Red)
	if sh.LineColor != Red || s.ActiveLabel().FillColor != Red {
		t.Fatalf("color not applied")
	}
	s.SetLineWidth(4)
	if sh.Style.LineWidth != 4 || s.Style().LineWidth != 4 {
		t.Fatalf("line width not applied retroactively")
	}
}

func TestResetClearsEverything(t *testing.T) {
	s, sh := squareScene(t)
	click(s, 1, 1)
	s.Reset()
	if s.Len() != 0 || s.InProgress() != nil || s.Status() != StatusReady {
		t.Fatalf("reset incomplete")
	}
	if s.FindOwner(sh.ID) != nil || s.ActiveLabel().Len() != 0 {
		t.Fatalf("class members not cleared")
	}
}

func TestExportLoadRoundTrip(t *testing.T) {
	s, _ := squareScene(t)
	if err := s.ReinitializeClasses([]LabelDef{{"a", Red}, {"b", Green}}); err != nil {
		t.Fatal(err)
	}
	click(s, 7, 7)
	s.CompleteAnnotation()
	id := s.Shapes()[1].ID
	if err := s.ReassignLabel(id, "b"); err != nil {
		t.Fatal(err)
	}
	snap := s.Export()

	other := NewScene(DefaultStyle())
	if err := other.Load(snap); err != nil {
		t.Fatalf("load: %v", err)
	}
	if other.Len() != 2 {
		t.Fatalf("expected 2 shapes")
	}
	got := other.Shapes()
	if got[0].Type != TypePolygon || !got[0].Closed || got[1].Type != TypePoint || got[1].Label != "b" {
		t.Fatalf("unexpected shapes after load: %+v %+v", got[0], got[1])
	}
	if other.FindOwner(got[1].ID).Name != "b" {
		t.Fatalf("membership not rebuilt")
	}
}

func TestLoadRejectsWithoutTouchingScene(t *testing.T) {
	s, sh := squareScene(t)
	bad := Annotations{
		Records: []Record{{Points: []geom.Point{{X: 1, Y: 1}}, Type: TypePolygon, Label: DefaultLabel}},
	}
	if err := s.Load(bad); err == nil {
		t.Fatalf("expected error for one-point polygon")
	}
	unknown := Annotations{
		Classes: []LabelDef{{"a", Red}},
		Records: []Record{{Points: []geom.Point{{X: 1, Y: 1}}, Type: TypePoint, Label: "zzz"}},
	}
	if err := s.Load(unknown); !errors.Is(err, ErrUnknownLabel) {
		t.Fatalf("expected ErrUnknownLabel, got %v", err)
	}
	if s.Len() != 1 || s.Shapes()[0] != sh || s.FindOwner(sh.ID) == nil {
		t.Fatalf("scene modified by rejected load")
	}
}

func TestOnChangeFires(t *testing.T) {
	s := drawingScene(t)
	n := 0
	s.OnChange(func() { n++ })
	click(s, 1, 1)
	if n == 0 {
		t.Fatalf("expected change notification")
	}
}
