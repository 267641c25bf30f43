/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package annotation

// Style carries the visual parameters of a shape. It is passed by value into
// every new shape; there is no package-level mutable default.
type Style struct {
	PointSize            float64
	HighlightSize        float64
	LineWidth            float64
	SelectColor          Color
	VertexColor          Color
	HighlightVertexColor Color
}

func DefaultStyle() Style {
	return Style{
		PointSize:            1.5,
		HighlightSize:        3.0,
		LineWidth:            1.0,
		SelectColor:          White,
		VertexColor:          Green,
		HighlightVertexColor: Red,
	}
}

// VertexRadius returns the marker radius for vertex i of a shape whose
// highlighted vertex is hi (-1 for none).
func (s Style) VertexRadius(i, hi int) float64 {
	if i == hi {
		return s.PointSize * s.HighlightSize
	}
	return s.PointSize
}
