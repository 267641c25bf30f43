/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package annotation

import "errors"

var ErrNotMember = errors.New("shape is not a member of label class")

// LabelClass is a named, colored category. It records member shapes by ID
// only; the scene owns the shapes.
type LabelClass struct {
	Name      string
	FillColor Color

	members []string
	index   map[string]struct{}
}

func NewLabelClass(name string, c Color) *LabelClass {
	return &LabelClass{Name: name, FillColor: c, index: map[string]struct{}{}}
}

// AssignObject adds s to the class and stamps the class name and color onto
// it. Untying s from a previous owner is the caller's job.
func (l *LabelClass) AssignObject(s *Shape) {
	l.add(s.ID)
	s.Label = l.Name
	s.LineColor = l.FillColor
}

func (l *LabelClass) add(id string) {
	if l.index == nil {
		l.index = map[string]struct{}{}
	}
	if _, ok := l.index[id]; ok {
		return
	}
	l.index[id] = struct{}{}
	l.members = append(l.members, id)
}

// UntieShape removes id from the member set.
func (l *LabelClass) UntieShape(id string) error {
	if _, ok := l.index[id]; !ok {
		return ErrNotMember
	}
	delete(l.index, id)
	for i, m := range l.members {
		if m == id {
			l.members = append(l.members[:i], l.members[i+1:]...)
			break
		}
	}
	return nil
}

func (l *LabelClass) Has(id string) bool {
	_, ok := l.index[id]
	return ok
}

func (l *LabelClass) Len() int { return len(l.members) }

// Members returns member IDs in assignment order.
func (l *LabelClass) Members() []string { return append([]string(nil), l.members...) }

func (l *LabelClass) clear() {
	l.members = nil
	l.index = map[string]struct{}{}
}

// LabelDef is a (name, color) pair used to define or export classes.
type LabelDef struct {
	Name  string
	Color Color
}
