/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package ui

import (
	"fmt"
	"strings"

	"imannotate/internal/annotation"
)

// ParseLabelLines reads one class per line as "name #rrggbb". The color may
// be omitted, in which case the previous class color (or the default) is reused.
// Blank lines and lines starting with '#' followed by a space are skipped.
func ParseLabelLines(text string) ([]annotation.LabelDef, error) {
	var defs []annotation.LabelDef
	last := annotation.DefaultLabelColor
	for n, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "# ") {
			continue
		}
		name, c := line, last
		if i := strings.LastIndex(line, " "); i > 0 && strings.HasPrefix(line[i+1:], "#") {
			parsed, err := annotation.ParseColor(line[i+1:])
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", n+1, err)
			}
			name, c = strings.TrimSpace(line[:i]), parsed
		}
		defs = append(defs, annotation.LabelDef{Name: name, Color: c})
		last = c
	}
	if len(defs) == 0 {
		return nil, fmt.Errorf("no labels given")
	}
	return defs, nil
}

// FormatLabelLines is the inverse of ParseLabelLines.
func FormatLabelLines(defs []annotation.LabelDef) string {
	var b strings.Builder
	for _, d := range defs {
		fmt.Fprintf(&b, "%s %s\n", d.Name, d.Color.Hex())
	}
	return b.String()
}
