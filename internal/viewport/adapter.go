/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package viewport

import (
	"imannotate/internal/annotation"
	"imannotate/internal/geom"
)

// Key is a toolkit-neutral key name.
type Key string

const (
	KeyE      Key = "E"
	KeyM      Key = "M"
	KeyN      Key = "N"
	KeyC      Key = "C"
	KeyK      Key = "K"
	KeyZ      Key = "Z"
	KeyDelete Key = "Delete"
)

// Adapter forwards widget input to the scene in scene coordinates. The
// primary button pans in navigation mode and the middle button always pans.
type Adapter struct {
	View  *Viewport
	Scene *annotation.Scene
	// Undo is invoked for Ctrl+Z; nil falls back to removing the last point.
	Undo func() bool

	panning bool
	last    geom.Point
}

func NewAdapter(v *Viewport, s *annotation.Scene, undo func() bool) *Adapter {
	return &Adapter{View: v, Scene: s, Undo: undo}
}

// Panning reports whether a pan drag is active.
func (a *Adapter) Panning() bool { return a.panning }

func (a *Adapter) PointerDown(screen geom.Point, b annotation.Button, mods annotation.Modifiers) {
	if b&annotation.ButtonMiddle != 0 || (b&annotation.ButtonPrimary != 0 && a.Scene.Mode() == annotation.ModeNavigation) {
		a.panning = true
		a.last = screen
	}
	a.Scene.PointerDown(a.View.ToScene(screen), b, mods)
}

func (a *Adapter) PointerMove(screen geom.Point, held annotation.Button, mods annotation.Modifiers) {
	if a.panning {
		a.View.Pan(screen.Sub(a.last))
		a.last = screen
		return
	}
	a.Scene.PointerMove(a.View.ToScene(screen), held, mods)
}

func (a *Adapter) PointerUp(screen geom.Point, b annotation.Button) {
	if a.panning && b&(annotation.ButtonPrimary|annotation.ButtonMiddle) != 0 {
		a.panning = false
	}
	a.Scene.PointerUp(a.View.ToScene(screen), b)
}

// Scroll zooms around the pointer; steps > 0 zooms in.
func (a *Adapter) Scroll(screen geom.Point, steps float64) {
	a.View.ZoomAt(screen, steps)
}

// KeyDown maps shortcuts to scene commands and reports whether the key was used.
func (a *Adapter) KeyDown(k Key, mods annotation.Modifiers) bool {
	if mods&annotation.ModCtrl != 0 {
		if k != KeyZ {
			return false
		}
		if a.Undo != nil {
			return a.Undo()
		}
		return a.Scene.UndoLastPoint()
	}
	switch k {
	case KeyE:
		a.Scene.SetMode(annotation.ModeDrawing)
	case KeyM:
		a.Scene.SetMode(annotation.ModeMoving)
	case KeyN:
		a.Scene.SetMode(annotation.ModeNavigation)
	case KeyC:
		a.Scene.CompleteAnnotation()
	case KeyK:
		_, ok := a.Scene.CopySelected()
		return ok
	case KeyDelete:
		return a.Scene.DeleteSelected()
	default:
		return false
	}
	return true
}
